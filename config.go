package cadence

import (
	"fmt"
	"time"

	"github.com/openziti-incubator/cf"
	"github.com/pkg/errors"
)

// Default maximum segment sizes. The right value depends on the link layer the
// surrounding stack is compiled against; callers on IPv6 links should set
// Config.Mss to MssIPv6 (1280 minimum MTU - IPv6 header - TCP header).
const (
	MssDefault = 576
	MssIPv6    = 1220
)

// Config carries every tunable of the timing and resource-sizing core. It is
// constructed once, validated once, and then treated as read-only by every
// component that holds a reference to it.
//
type Config struct {
	ConnectionTimeoutMs int `cf:"connection_timeout_ms"`
	MslMs               int `cf:"msl_ms"`
	Mss                 int `cf:"mss"`
	BufferMultiplier    int `cf:"buffer_multiplier"`
	BufferCount         int `cf:"buffer_count"`
	RtoLowerBoundMs     int `cf:"rto_lower_bound_ms"`
	RtoUpperBoundMs     int `cf:"rto_upper_bound_ms"`
	RtoGranularityMs    int `cf:"rto_granularity_ms"`
	AlphaDivisor        int `cf:"alpha_divisor"`
	BetaDivisor         int `cf:"beta_divisor"`
	K                   int `cf:"k"`
	ProbeLowerBoundMs   int `cf:"probe_lower_bound_ms"`
	ProbeUpperBoundMs   int `cf:"probe_upper_bound_ms"`
	QueueSizeExp        int `cf:"queue_size_exp"`
	LoopQueueSizeExp    int `cf:"loop_queue_size_exp"`
	i                   Instrument
}

func NewBaselineConfig() *Config {
	return &Config{
		ConnectionTimeoutMs: 120 * 1000,
		MslMs:               30 * 1000,
		Mss:                 MssDefault,
		BufferMultiplier:    1,
		BufferCount:         1,
		RtoLowerBoundMs:     1 * 1000,
		RtoUpperBoundMs:     60 * 1000,
		RtoGranularityMs:    10,
		AlphaDivisor:        8,
		BetaDivisor:         4,
		K:                   4,
		ProbeLowerBoundMs:   1 * 1000,
		ProbeUpperBoundMs:   60 * 1000,
		QueueSizeExp:        2,
		LoopQueueSizeExp:    3,
	}
}

func (self *Config) Load(data map[string]interface{}) error {
	if err := cf.Bind(self, data, cf.DefaultOptions()); err != nil {
		return errors.Wrap(err, "unable to load config")
	}
	if v, found := data["instrument"]; found {
		if submap, ok := v.(map[string]interface{}); ok {
			var icf map[string]interface{}
			if v, found := submap["config"]; found {
				if c, ok := v.(map[string]interface{}); ok {
					icf = c
				} else {
					return errors.New("invalid 'instrument/config' value")
				}
			}
			if v, found := submap["name"]; found {
				if name, ok := v.(string); ok {
					i, err := NewInstrument(name, icf)
					if err != nil {
						return errors.Wrap(err, "error creating instrument")
					}
					self.i = i
				} else {
					return errors.New("invalid 'instrument/name' value")
				}
			} else {
				return errors.New("missing 'instrument/name'")
			}
		} else {
			return errors.New("invalid 'instrument' value")
		}
	}
	return nil
}

// SetInstrument installs the instrument used by components constructed against
// this config. A nil instrument is replaced by the no-op implementation.
func (self *Config) SetInstrument(i Instrument) {
	self.i = i
}

func (self *Config) Instrument() Instrument {
	if self.i == nil {
		return NewNilInstrument()
	}
	return self.i
}

// Validate enforces the ordering and positivity invariants. A config that
// fails validation is unusable; callers are expected to abort startup.
func (self *Config) Validate() error {
	if self.Mss < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "mss [%d] must be positive", self.Mss)
	}
	if self.BufferMultiplier < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "buffer_multiplier [%d] must be positive", self.BufferMultiplier)
	}
	if self.BufferCount < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "buffer_count [%d] must be positive", self.BufferCount)
	}
	if self.RtoLowerBoundMs < 1 || self.RtoUpperBoundMs < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "rto bounds [%d, %d] must be positive", self.RtoLowerBoundMs, self.RtoUpperBoundMs)
	}
	if self.RtoLowerBoundMs >= self.RtoUpperBoundMs {
		return errors.Wrapf(ErrInvalidConfiguration, "rto_lower_bound_ms [%d] must be < rto_upper_bound_ms [%d]", self.RtoLowerBoundMs, self.RtoUpperBoundMs)
	}
	if self.RtoGranularityMs < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "rto_granularity_ms [%d] must be positive", self.RtoGranularityMs)
	}
	if self.AlphaDivisor < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "alpha_divisor [%d] must be positive", self.AlphaDivisor)
	}
	if self.BetaDivisor < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "beta_divisor [%d] must be positive", self.BetaDivisor)
	}
	if self.K < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "k [%d] must be positive", self.K)
	}
	if self.ProbeLowerBoundMs < 1 || self.ProbeUpperBoundMs < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "probe bounds [%d, %d] must be positive", self.ProbeLowerBoundMs, self.ProbeUpperBoundMs)
	}
	if self.ProbeLowerBoundMs > self.ProbeUpperBoundMs {
		return errors.Wrapf(ErrInvalidConfiguration, "probe_lower_bound_ms [%d] must be <= probe_upper_bound_ms [%d]", self.ProbeLowerBoundMs, self.ProbeUpperBoundMs)
	}
	if self.ConnectionTimeoutMs < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "connection_timeout_ms [%d] must be positive", self.ConnectionTimeoutMs)
	}
	if self.MslMs < 1 {
		return errors.Wrapf(ErrInvalidConfiguration, "msl_ms [%d] must be positive", self.MslMs)
	}
	if self.QueueSizeExp < 0 || self.LoopQueueSizeExp < 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "queue size exponents [%d, %d] must not be negative", self.QueueSizeExp, self.LoopQueueSizeExp)
	}
	return nil
}

// WindowSize is the advertised receive window, and therefore the size of a
// single receive buffer slot.
func (self *Config) WindowSize() int {
	return self.Mss * self.BufferMultiplier
}

func (self *Config) ConnectionTimeout() time.Duration {
	return time.Duration(self.ConnectionTimeoutMs) * time.Millisecond
}

func (self *Config) Msl() time.Duration {
	return time.Duration(self.MslMs) * time.Millisecond
}

func (self *Config) RtoLowerBound() time.Duration {
	return time.Duration(self.RtoLowerBoundMs) * time.Millisecond
}

func (self *Config) RtoUpperBound() time.Duration {
	return time.Duration(self.RtoUpperBoundMs) * time.Millisecond
}

func (self *Config) RtoGranularity() time.Duration {
	return time.Duration(self.RtoGranularityMs) * time.Millisecond
}

func (self *Config) ProbeLowerBound() time.Duration {
	return time.Duration(self.ProbeLowerBoundMs) * time.Millisecond
}

func (self *Config) ProbeUpperBound() time.Duration {
	return time.Duration(self.ProbeUpperBoundMs) * time.Millisecond
}

func (self *Config) Dump() string {
	out := "cadence.Config{\n"
	out += fmt.Sprintf("\t%-24s %d\n", "connection_timeout_ms", self.ConnectionTimeoutMs)
	out += fmt.Sprintf("\t%-24s %d\n", "msl_ms", self.MslMs)
	out += fmt.Sprintf("\t%-24s %d\n", "mss", self.Mss)
	out += fmt.Sprintf("\t%-24s %d\n", "buffer_multiplier", self.BufferMultiplier)
	out += fmt.Sprintf("\t%-24s %d\n", "buffer_count", self.BufferCount)
	out += fmt.Sprintf("\t%-24s %d\n", "rto_lower_bound_ms", self.RtoLowerBoundMs)
	out += fmt.Sprintf("\t%-24s %d\n", "rto_upper_bound_ms", self.RtoUpperBoundMs)
	out += fmt.Sprintf("\t%-24s %d\n", "rto_granularity_ms", self.RtoGranularityMs)
	out += fmt.Sprintf("\t%-24s %d\n", "alpha_divisor", self.AlphaDivisor)
	out += fmt.Sprintf("\t%-24s %d\n", "beta_divisor", self.BetaDivisor)
	out += fmt.Sprintf("\t%-24s %d\n", "k", self.K)
	out += fmt.Sprintf("\t%-24s %d\n", "probe_lower_bound_ms", self.ProbeLowerBoundMs)
	out += fmt.Sprintf("\t%-24s %d\n", "probe_upper_bound_ms", self.ProbeUpperBoundMs)
	out += fmt.Sprintf("\t%-24s %d\n", "queue_size_exp", self.QueueSizeExp)
	out += fmt.Sprintf("\t%-24s %d\n", "loop_queue_size_exp", self.LoopQueueSizeExp)
	out += "}"
	return out
}
