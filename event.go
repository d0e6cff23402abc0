package cadence

import "time"

type eventKind uint8

const (
	evSegmentSent eventKind = iota
	evSegmentRetransmitted
	evSegmentAcked
	evZeroWindow
	evWindowOpened
	evBeginCall
	evCallResolved
	evTeardown
	evTimerExpiry
)

func (self eventKind) String() string {
	switch self {
	case evSegmentSent:
		return "segmentSent"
	case evSegmentRetransmitted:
		return "segmentRetransmitted"
	case evSegmentAcked:
		return "segmentAcked"
	case evZeroWindow:
		return "zeroWindow"
	case evWindowOpened:
		return "windowOpened"
	case evBeginCall:
		return "beginCall"
	case evCallResolved:
		return "callResolved"
	case evTeardown:
		return "teardown"
	case evTimerExpiry:
		return "timerExpiry"
	default:
		return "???"
	}
}

// Event is one unit of work for the loop. Segment and call events originate
// with the state machine collaborator; timer expiries originate with the
// loop's own deadline sweep. Events for a single connection are dispatched in
// the order they were enqueued.
//
type Event struct {
	kind   eventKind
	conn   *ConnTiming
	seq    int32
	at     time.Time
	sup    *Supervisor
	timer  timerKind
	gen    uint64
	result chan error
}
