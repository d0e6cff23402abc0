package cadence

import (
	"time"

	"github.com/pkg/errors"
)

type Instrument interface {
	NewInstance(id string) InstrumentInstance
}

// InstrumentInstance observes the timing core of a single connection (or a
// shared pool). Implementations must be cheap; every callback runs on the
// event loop goroutine.
type InstrumentInstance interface {
	// admission
	Admitted(peer string, free int)
	AdmissionRejected(peer string)
	Released(peer string, free int)

	// estimation
	RttSample(rtt time.Duration)
	SampleDiscarded(seq int32)
	NewRto(rto time.Duration)

	// timers
	RetxExpiry(interval time.Duration, backoffs int)
	ProbeExpiry(interval time.Duration, backoffs int)
	CallTimeout()
	Aborted(err error)

	// loop
	QueueFull()

	// instrument lifecycle
	Shutdown()
}

func NewInstrument(name string, config map[string]interface{}) (Instrument, error) {
	switch name {
	case "metrics":
		return NewMetricsInstrument(config)
	case "logger":
		return NewLoggerInstrument(), nil
	case "nil":
		return NewNilInstrument(), nil
	default:
		return nil, errors.Errorf("unknown instrument '%s'", name)
	}
}
