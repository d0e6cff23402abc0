package cadence

import "time"

type nilInstrument struct{}

func NewNilInstrument() Instrument {
	return &nilInstrument{}
}

func (self *nilInstrument) NewInstance(_ string) InstrumentInstance {
	return &NilInstrumentInstance{}
}

type NilInstrumentInstance struct{}

func (n NilInstrumentInstance) Admitted(peer string, free int) {}

func (n NilInstrumentInstance) AdmissionRejected(peer string) {}

func (n NilInstrumentInstance) Released(peer string, free int) {}

func (n NilInstrumentInstance) RttSample(rtt time.Duration) {}

func (n NilInstrumentInstance) SampleDiscarded(seq int32) {}

func (n NilInstrumentInstance) NewRto(rto time.Duration) {}

func (n NilInstrumentInstance) RetxExpiry(interval time.Duration, backoffs int) {}

func (n NilInstrumentInstance) ProbeExpiry(interval time.Duration, backoffs int) {}

func (n NilInstrumentInstance) CallTimeout() {}

func (n NilInstrumentInstance) Aborted(err error) {}

func (n NilInstrumentInstance) QueueFull() {}

func (n NilInstrumentInstance) Shutdown() {}
