package cadence

import (
	"time"

	"github.com/emirpasic/gods/trees/btree"
	"github.com/emirpasic/gods/utils"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const waitlistOrder = 16

// Loop is the single-threaded event dispatcher. Every operation on connection
// timing state runs on the loop goroutine, which is what makes the rest of the
// package lock-free: samples, acks, window signals, and timer expiries are all
// serialized through one bounded queue. Armed timers live on a btree waitlist
// ordered by deadline; the nearest deadline drives a single wakeup timer, and
// each expiry is re-delivered through the queue so it is ordered against the
// other events of its connection.
//
type Loop struct {
	events   chan *Event
	waitlist *waitlist
	now      func() time.Time
	closed   chan struct{}
	ii       InstrumentInstance
}

func NewLoop(cfg *Config, ii InstrumentInstance) *Loop {
	return &Loop{
		events:   make(chan *Event, 1<<cfg.LoopQueueSizeExp),
		waitlist: newWaitlist(),
		now:      time.Now,
		closed:   make(chan struct{}),
		ii:       ii,
	}
}

// Start runs the dispatcher until Close.
func (self *Loop) Start() {
	go self.run()
}

func (self *Loop) Close() {
	select {
	case <-self.closed:
	default:
		close(self.closed)
	}
}

// Enqueue submits an event without blocking. A full queue is a reportable
// condition for the caller, never a silent drop.
func (self *Loop) Enqueue(ev *Event) error {
	select {
	case self.events <- ev:
		return nil
	default:
		if self.ii != nil {
			self.ii.QueueFull()
		}
		return errors.Errorf("event queue full, rejecting [%s]", ev.kind)
	}
}

func (self *Loop) SegmentSent(conn *ConnTiming, seq int32) error {
	return self.Enqueue(&Event{kind: evSegmentSent, conn: conn, seq: seq, at: self.now()})
}

func (self *Loop) SegmentRetransmitted(conn *ConnTiming, seq int32) error {
	return self.Enqueue(&Event{kind: evSegmentRetransmitted, conn: conn, seq: seq, at: self.now()})
}

func (self *Loop) SegmentAcked(conn *ConnTiming, seq int32) error {
	return self.Enqueue(&Event{kind: evSegmentAcked, conn: conn, seq: seq, at: self.now()})
}

func (self *Loop) ZeroWindow(conn *ConnTiming) error {
	return self.Enqueue(&Event{kind: evZeroWindow, conn: conn})
}

func (self *Loop) WindowOpened(conn *ConnTiming) error {
	return self.Enqueue(&Event{kind: evWindowOpened, conn: conn})
}

func (self *Loop) BeginCall(conn *ConnTiming) error {
	return self.Enqueue(&Event{kind: evBeginCall, conn: conn})
}

func (self *Loop) CallResolved(conn *ConnTiming) error {
	return self.Enqueue(&Event{kind: evCallResolved, conn: conn})
}

// Teardown tears the connection down on the loop goroutine, so the timer
// state is never touched from the caller's goroutine while an expiry is in
// flight. It blocks until the teardown has been dispatched.
func (self *Loop) Teardown(conn *ConnTiming) error {
	ev := &Event{kind: evTeardown, conn: conn, result: make(chan error, 1)}
	if err := self.Enqueue(ev); err != nil {
		return err
	}
	select {
	case err := <-ev.result:
		return err
	case <-self.closed:
		return errors.Errorf("loop closed before teardown of [%s]", conn.Peer())
	}
}

func (self *Loop) run() {
	logrus.Info("started")
	defer logrus.Warn("exited")

	wakeup := time.NewTimer(time.Hour)
	defer wakeup.Stop()

	for {
		self.rearm(wakeup)
		select {
		case ev := <-self.events:
			self.dispatch(ev)
		case <-wakeup.C:
			self.sweep()
		case <-self.closed:
			return
		}
	}
}

func (self *Loop) rearm(wakeup *time.Timer) {
	if !wakeup.Stop() {
		select {
		case <-wakeup.C:
		default:
		}
	}
	if deadline, found := self.waitlist.peek(); found {
		wait := deadline.Sub(self.now())
		if wait < 0 {
			wait = 0
		}
		wakeup.Reset(wait)
	} else {
		wakeup.Reset(time.Hour)
	}
}

// sweep moves every due waitlist entry into the event queue. If the queue is
// full the entry goes back on the waitlist and is retried on the next wakeup;
// the expiry is delayed, never lost.
func (self *Loop) sweep() {
	now := self.now()
	for _, pe := range self.waitlist.due(now) {
		ev := &Event{kind: evTimerExpiry, sup: pe.sup, timer: pe.kind, gen: pe.gen}
		if err := self.Enqueue(ev); err != nil {
			self.waitlist.add(now.Add(time.Millisecond), pe)
		}
	}
}

func (self *Loop) dispatch(ev *Event) {
	switch ev.kind {
	case evSegmentSent:
		ev.conn.segmentSent(ev.seq, ev.at)
	case evSegmentRetransmitted:
		ev.conn.segmentRetransmitted(ev.seq)
	case evSegmentAcked:
		ev.conn.segmentAcked(ev.seq, ev.at)
	case evZeroWindow:
		ev.conn.sup.ZeroWindow()
	case evWindowOpened:
		ev.conn.sup.WindowOpened()
	case evBeginCall:
		ev.conn.sup.BeginCall()
	case evCallResolved:
		ev.conn.sup.CallResolved()
	case evTeardown:
		err := ev.conn.Teardown()
		if ev.result != nil {
			ev.result <- err
		}
	case evTimerExpiry:
		ev.sup.Expire(ev.timer, ev.gen)
	default:
		logrus.Errorf("dropping unknown event [%d]", ev.kind)
	}
}

// schedule implements scheduler. It is only ever invoked from the loop
// goroutine, during dispatch of an event that armed a timer.
func (self *Loop) schedule(sup *Supervisor, kind timerKind, gen uint64, deadline time.Time) {
	self.waitlist.add(deadline, &pendingExpiry{sup: sup, kind: kind, gen: gen})
}

type pendingExpiry struct {
	sup  *Supervisor
	kind timerKind
	gen  uint64
}

// waitlist orders pending expiries by deadline. Entries sharing a deadline
// hang off a single tree node.
type waitlist struct {
	tree *btree.Tree
	size int
}

func newWaitlist() *waitlist {
	return &waitlist{tree: btree.NewWith(waitlistOrder, utils.TimeComparator)}
}

func (self *waitlist) add(deadline time.Time, pe *pendingExpiry) {
	if v, found := self.tree.Get(deadline); found {
		self.tree.Put(deadline, append(v.([]*pendingExpiry), pe))
	} else {
		self.tree.Put(deadline, []*pendingExpiry{pe})
	}
	self.size++
}

func (self *waitlist) peek() (time.Time, bool) {
	if self.tree.Size() < 1 {
		return time.Time{}, false
	}
	return self.tree.LeftKey().(time.Time), true
}

// due removes and returns every entry with a deadline at or before now, in
// deadline order.
func (self *waitlist) due(now time.Time) []*pendingExpiry {
	var out []*pendingExpiry
	for self.tree.Size() > 0 {
		deadline := self.tree.LeftKey().(time.Time)
		if deadline.After(now) {
			break
		}
		v, _ := self.tree.Get(deadline)
		pes := v.([]*pendingExpiry)
		self.tree.Remove(deadline)
		self.size -= len(pes)
		out = append(out, pes...)
	}
	return out
}

func (self *waitlist) len() int {
	return self.size
}
