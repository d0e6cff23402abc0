package cadence

import "time"

// Sampler times at most one segment round trip at a time and forwards eligible
// observations to the estimator. A retransmission of the measured segment
// poisons the measurement (Karn's algorithm): the acknowledgment could belong
// to either transmission, so no sample is taken from it.
//
type Sampler struct {
	est      *Estimator
	seq      int32
	sentAt   time.Time
	pending  bool
	poisoned bool
	ii       InstrumentInstance
}

func NewSampler(est *Estimator, ii InstrumentInstance) *Sampler {
	return &Sampler{
		est: est,
		ii:  ii,
	}
}

// Sent begins a measurement for the given sequence number. While a measurement
// is outstanding further sends are not timed.
func (self *Sampler) Sent(seq int32, at time.Time) {
	if self.pending {
		return
	}
	self.seq = seq
	self.sentAt = at
	self.pending = true
	self.poisoned = false
}

// Retransmitted marks the measured segment as ambiguous. The measurement stays
// pending so a later send is not mistaken for the original, but its
// acknowledgment will be discarded.
func (self *Sampler) Retransmitted(seq int32) {
	if self.pending && seq == self.seq {
		self.poisoned = true
	}
}

// Acked completes the measurement when the acknowledgment covers the measured
// sequence number. Poisoned measurements are discarded without touching the
// estimator.
func (self *Sampler) Acked(seq int32, at time.Time) {
	if !self.pending || seq < self.seq {
		return
	}
	self.pending = false
	if self.poisoned {
		if self.ii != nil {
			self.ii.SampleDiscarded(self.seq)
		}
		return
	}
	self.est.Sample(at.Sub(self.sentAt))
}

// Pending reports whether a measurement is outstanding.
func (self *Sampler) Pending() bool {
	return self.pending
}
