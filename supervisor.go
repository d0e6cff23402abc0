package cadence

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Actions is implemented by the state machine collaborator. The supervisor
// calls it to request work when a timer expires; implementations must not
// block.
//
type Actions interface {
	Retransmit()
	Probe()
	CallExpired(err error)
	Closed(err error)
}

// scheduler arranges delivery of a timer expiry at the given deadline. The
// delivered generation is revalidated by the supervisor, so a scheduler may
// deliver late or deliver for a timer that has since been re-armed.
type scheduler interface {
	schedule(sup *Supervisor, kind timerKind, gen uint64, deadline time.Time)
}

// Supervisor owns the timer state of one connection: the retransmission
// timer, the zero-window probe timer, and the user-call deadline. All methods
// must be invoked from the event loop context; nothing here takes a lock.
//
// Expiry policy: the retransmission deadline doubles on each consecutive
// expiry without feeding the estimator (the sample would be ambiguous), and
// stays clamped to the configured RTO bounds. The probe interval doubles from
// the probe floor to the probe ceiling and resets when the peer window
// reopens. Either timer aborts the connection once its accumulated wait
// reaches the connection timeout.
//
type Supervisor struct {
	cfg        *Config
	est        *Estimator
	actions    Actions
	sched      scheduler
	retx       timer
	probe      timer
	call       timer
	retxAccum  time.Duration
	probeAccum time.Duration
	dead       bool
	cause      error
	now        func() time.Time
	ii         InstrumentInstance
}

func NewSupervisor(cfg *Config, est *Estimator, actions Actions, sched scheduler, ii InstrumentInstance) *Supervisor {
	return &Supervisor{
		cfg:     cfg,
		est:     est,
		actions: actions,
		sched:   sched,
		now:     time.Now,
		ii:      ii,
	}
}

// ArmRetx starts the retransmission timer at the current RTO. A timer that is
// already running is left alone; the deadline belongs to the oldest
// outstanding segment.
func (self *Supervisor) ArmRetx() {
	if self.dead || self.retx.armed() {
		return
	}
	rto := self.est.Rto()
	gen := self.retx.arm(self.now().Add(rto), rto)
	self.schedule(timerRetx, gen, self.retx.deadline)
}

// AckReceived disarms the retransmission timer and resets its backoff
// sequence; the next arm starts from a fresh RTO.
func (self *Supervisor) AckReceived() {
	if self.dead {
		return
	}
	self.retx.disarm()
	self.retxAccum = 0
}

// ZeroWindow starts the probe timer at the probe floor.
func (self *Supervisor) ZeroWindow() {
	if self.dead || self.probe.armed() {
		return
	}
	interval := self.cfg.ProbeLowerBound()
	gen := self.probe.arm(self.now().Add(interval), interval)
	self.schedule(timerProbe, gen, self.probe.deadline)
}

// WindowOpened disarms the probe timer; the next zero-window episode starts
// again from the probe floor.
func (self *Supervisor) WindowOpened() {
	if self.dead {
		return
	}
	self.probe.disarm()
	self.probeAccum = 0
}

// BeginCall arms the user-call deadline for a blocking user operation. On a
// dead connection the call fails immediately with the death cause; it would
// otherwise block forever with no timer left to expire it.
func (self *Supervisor) BeginCall() {
	if self.dead {
		self.actions.CallExpired(self.cause)
		return
	}
	if self.call.armed() {
		return
	}
	gen := self.call.arm(self.now().Add(self.cfg.ConnectionTimeout()), self.cfg.ConnectionTimeout())
	self.schedule(timerCall, gen, self.call.deadline)
}

// CallResolved disarms the user-call deadline.
func (self *Supervisor) CallResolved() {
	if self.dead {
		return
	}
	self.call.disarm()
}

// Expire delivers a timer expiry. Deliveries carrying a stale generation are
// discarded, which makes disarm effective even against an already-enqueued
// expiry.
func (self *Supervisor) Expire(kind timerKind, gen uint64) {
	if self.dead {
		return
	}
	switch kind {
	case timerRetx:
		if self.retx.expire(gen) {
			self.expireRetx()
		}
	case timerProbe:
		if self.probe.expire(gen) {
			self.expireProbe()
		}
	case timerCall:
		if self.call.expire(gen) {
			self.expireCall()
		}
	default:
		logrus.Errorf("unknown timer kind [%d]", kind)
	}
}

func (self *Supervisor) expireRetx() {
	self.retxAccum += self.retx.interval
	if self.retxAccum >= self.cfg.ConnectionTimeout() {
		self.abort(errors.Wrap(ErrConnectionAborted, "retransmission ceiling"))
		return
	}
	interval := self.retx.interval * 2
	if interval > self.cfg.RtoUpperBound() {
		interval = self.cfg.RtoUpperBound()
	}
	backoffs := self.retx.backoffs + 1
	gen := self.retx.arm(self.now().Add(interval), interval)
	self.retx.backoffs = backoffs
	self.schedule(timerRetx, gen, self.retx.deadline)
	if self.ii != nil {
		self.ii.RetxExpiry(interval, backoffs)
	}
	self.actions.Retransmit()
}

func (self *Supervisor) expireProbe() {
	self.probeAccum += self.probe.interval
	if self.probeAccum >= self.cfg.ConnectionTimeout() {
		self.abort(errors.Wrap(ErrConnectionAborted, "probe ceiling"))
		return
	}
	interval := self.probe.interval * 2
	if interval > self.cfg.ProbeUpperBound() {
		interval = self.cfg.ProbeUpperBound()
	}
	backoffs := self.probe.backoffs + 1
	gen := self.probe.arm(self.now().Add(interval), interval)
	self.probe.backoffs = backoffs
	self.schedule(timerProbe, gen, self.probe.deadline)
	if self.ii != nil {
		self.ii.ProbeExpiry(interval, backoffs)
	}
	self.actions.Probe()
}

func (self *Supervisor) expireCall() {
	self.call.disarm()
	if self.ii != nil {
		self.ii.CallTimeout()
	}
	self.actions.CallExpired(errors.Wrap(ErrTimeout, "user call deadline"))
}

// abort is fatal to the connection: every timer is disarmed, the blocked user
// call (if any) fails with the abort cause, and the state machine is told to
// tear the connection down.
func (self *Supervisor) abort(err error) {
	callPending := self.call.armed()
	self.retx.disarm()
	self.probe.disarm()
	self.call.disarm()
	self.dead = true
	self.cause = err
	if self.ii != nil {
		self.ii.Aborted(err)
	}
	if callPending {
		self.actions.CallExpired(err)
	}
	self.actions.Closed(err)
}

// Teardown disarms everything without signaling the state machine; used when
// the connection closes for reasons outside this subsystem.
func (self *Supervisor) Teardown() {
	self.retx.disarm()
	self.probe.disarm()
	self.call.disarm()
	self.dead = true
	if self.cause == nil {
		self.cause = errors.Wrap(ErrConnectionAborted, "connection torn down")
	}
}

// Dead reports whether the connection was aborted or torn down.
func (self *Supervisor) Dead() bool {
	return self.dead
}

// RetxDeadline exposes the armed retransmission deadline, primarily for the
// state machine when it schedules around the timer.
func (self *Supervisor) RetxDeadline() (time.Time, bool) {
	return self.retx.deadline, self.retx.armed()
}

func (self *Supervisor) schedule(kind timerKind, gen uint64, deadline time.Time) {
	if self.sched != nil {
		self.sched.schedule(self, kind, gen, deadline)
	}
}
