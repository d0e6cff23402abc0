package cadence

import "time"

// Estimator maintains the smoothed round-trip time (SRTT) and round-trip time
// variation (RTTVAR) for a single connection, and derives the current
// retransmission timeout from them:
//
//     RTTVAR <- (1 - beta) * RTTVAR + beta * |SRTT - R'|
//     SRTT   <- (1 - alpha) * SRTT + alpha * R'
//     RTO    <- SRTT + max(G, K * RTTVAR)
//
// with alpha = 1/AlphaDivisor, beta = 1/BetaDivisor, and G the clock
// granularity, per RFC 6298. RTO is always clamped into the configured
// [lower, upper] bounds. Callers must only feed samples from segments
// unambiguously tied to a single transmission (Karn's algorithm); the Sampler
// enforces that.
//
type Estimator struct {
	cfg       *Config
	srtt      time.Duration
	rttvar    time.Duration
	rto       time.Duration
	hasSample bool
	ii        InstrumentInstance
}

func NewEstimator(cfg *Config, ii InstrumentInstance) *Estimator {
	return &Estimator{
		cfg: cfg,
		rto: cfg.RtoLowerBound(),
		ii:  ii,
	}
}

// Sample folds one eligible round-trip observation into the estimate. The
// variation update precedes the smoothing update, so RTTVAR is computed
// against the previous SRTT.
func (self *Estimator) Sample(rtt time.Duration) {
	if rtt < 0 {
		rtt = 0
	}
	if !self.hasSample {
		self.srtt = rtt
		self.rttvar = rtt / 2
		self.hasSample = true
	} else {
		delta := self.srtt - rtt
		if delta < 0 {
			delta = -delta
		}
		beta := time.Duration(self.cfg.BetaDivisor)
		alpha := time.Duration(self.cfg.AlphaDivisor)
		self.rttvar = self.rttvar - self.rttvar/beta + delta/beta
		self.srtt = self.srtt - self.srtt/alpha + rtt/alpha
	}
	if self.rttvar < 0 {
		self.rttvar = 0
	}
	if self.srtt < 0 {
		self.srtt = 0
	}
	self.rto = self.clamp(self.compute())
	if self.ii != nil {
		self.ii.RttSample(rtt)
		self.ii.NewRto(self.rto)
	}
}

func (self *Estimator) compute() time.Duration {
	variance := time.Duration(self.cfg.K) * self.rttvar
	if variance < 0 || variance/time.Duration(self.cfg.K) != self.rttvar {
		// multiplication overflowed
		return self.cfg.RtoUpperBound()
	}
	if variance < self.cfg.RtoGranularity() {
		variance = self.cfg.RtoGranularity()
	}
	rto := self.srtt + variance
	if rto < self.srtt {
		// addition overflowed
		return self.cfg.RtoUpperBound()
	}
	return rto
}

func (self *Estimator) clamp(rto time.Duration) time.Duration {
	if rto < self.cfg.RtoLowerBound() {
		return self.cfg.RtoLowerBound()
	}
	if rto > self.cfg.RtoUpperBound() {
		return self.cfg.RtoUpperBound()
	}
	return rto
}

// Rto is the current retransmission timeout, always within the configured
// bounds. Before the first sample it holds the configured lower bound.
func (self *Estimator) Rto() time.Duration {
	return self.rto
}

func (self *Estimator) Srtt() (time.Duration, bool) {
	return self.srtt, self.hasSample
}

func (self *Estimator) Rttvar() (time.Duration, bool) {
	return self.rttvar, self.hasSample
}
