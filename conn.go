package cadence

import (
	"time"

	"github.com/pkg/errors"
)

// ConnTiming is the per-connection timing unit handed to the state machine
// once admission succeeds: one buffer slot, one RTT sampler feeding one
// estimator, and one timer supervisor. It is created on admission and torn
// down exactly once, whatever the teardown cause.
//
type ConnTiming struct {
	peer    string
	slot    *Slot
	est     *Estimator
	sampler *Sampler
	sup     *Supervisor
	torn    bool
}

// NewConnTiming admits the peer against the pool and wires the timing unit
// into the loop. Admission failure (ErrResourceExhausted) leaves no residue;
// the caller must refuse the connection attempt.
func NewConnTiming(cfg *Config, pool *Pool, loop *Loop, peer string, actions Actions, ii InstrumentInstance) (*ConnTiming, error) {
	slot, err := pool.Admit(peer)
	if err != nil {
		return nil, errors.Wrapf(err, "admission for peer [%s]", peer)
	}
	c := &ConnTiming{
		peer: peer,
		slot: slot,
	}
	c.est = NewEstimator(cfg, ii)
	c.sampler = NewSampler(c.est, ii)
	var sched scheduler
	if loop != nil {
		sched = loop
	}
	c.sup = NewSupervisor(cfg, c.est, actions, sched, ii)
	return c, nil
}

// Teardown releases the slot and disarms every timer. Like the other timing
// operations it must run on the loop goroutine when a loop is wired; callers
// go through Loop.Teardown. Safe against the slot double-release error
// because teardown itself is guarded.
func (self *ConnTiming) Teardown() error {
	if self.torn {
		return errors.Errorf("connection [%s] already torn down", self.peer)
	}
	self.torn = true
	self.sup.Teardown()
	return self.slot.Release()
}

// Rto exposes the current retransmission timeout for the state machine's
// scheduling decisions.
func (self *ConnTiming) Rto() time.Duration {
	return self.est.Rto()
}

func (self *ConnTiming) Peer() string {
	return self.peer
}

func (self *ConnTiming) Slot() *Slot {
	return self.slot
}

func (self *ConnTiming) Supervisor() *Supervisor {
	return self.sup
}

func (self *ConnTiming) segmentSent(seq int32, at time.Time) {
	self.sampler.Sent(seq, at)
	self.sup.ArmRetx()
}

func (self *ConnTiming) segmentRetransmitted(seq int32) {
	self.sampler.Retransmitted(seq)
}

func (self *ConnTiming) segmentAcked(seq int32, at time.Time) {
	self.sampler.Acked(seq, at)
	self.sup.AckReceived()
}
