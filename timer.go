package cadence

import "time"

type timerKind uint8

const (
	timerRetx timerKind = iota
	timerProbe
	timerCall
)

func (self timerKind) String() string {
	switch self {
	case timerRetx:
		return "retx"
	case timerProbe:
		return "probe"
	case timerCall:
		return "call"
	default:
		return "???"
	}
}

type timerState uint8

const (
	timerDisarmed timerState = iota
	timerArmed
	timerExpired
)

// timer is the shared shape of the retransmission, probe, and user-call
// timers. Every arm and disarm bumps the generation, so an expiry event that
// was already enqueued when the timer changed carries a stale generation and
// is discarded at delivery.
type timer struct {
	state    timerState
	deadline time.Time
	interval time.Duration
	backoffs int
	gen      uint64
}

func (self *timer) arm(deadline time.Time, interval time.Duration) uint64 {
	self.state = timerArmed
	self.deadline = deadline
	self.interval = interval
	self.gen++
	return self.gen
}

// disarm is idempotent; disarming an already-disarmed timer only invalidates
// any in-flight expiry.
func (self *timer) disarm() {
	self.state = timerDisarmed
	self.backoffs = 0
	self.gen++
}

// expire transitions Armed to Expired when the delivered generation is still
// current. Stale deliveries leave the timer untouched.
func (self *timer) expire(gen uint64) bool {
	if self.state != timerArmed || gen != self.gen {
		return false
	}
	self.state = timerExpired
	return true
}

func (self *timer) armed() bool {
	return self.state == timerArmed
}
