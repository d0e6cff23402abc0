package cadence

import (
	"time"

	"github.com/sirupsen/logrus"
)

type loggerInstrument struct{}

func NewLoggerInstrument() Instrument {
	return &loggerInstrument{}
}

func (self *loggerInstrument) NewInstance(id string) InstrumentInstance {
	return &loggerInstrumentInstance{id: id}
}

type loggerInstrumentInstance struct {
	id string
}

func (self *loggerInstrumentInstance) Admitted(peer string, free int) {
	logrus.Infof("[%s] admitted peer [%s] (free: %d)", self.id, peer, free)
}

func (self *loggerInstrumentInstance) AdmissionRejected(peer string) {
	logrus.Warnf("[%s] admission rejected, peer [%s]", self.id, peer)
}

func (self *loggerInstrumentInstance) Released(peer string, free int) {
	logrus.Infof("[%s] released peer [%s] (free: %d)", self.id, peer, free)
}

func (self *loggerInstrumentInstance) RttSample(rtt time.Duration) {
	logrus.Infof("[%s] rtt sample [%s]", self.id, rtt)
}

func (self *loggerInstrumentInstance) SampleDiscarded(seq int32) {
	logrus.Warnf("[%s] ~ discarded ambiguous sample [#%d]", self.id, seq)
}

func (self *loggerInstrumentInstance) NewRto(rto time.Duration) {
	logrus.Infof("[%s] !+ rto [%s]", self.id, rto)
}

func (self *loggerInstrumentInstance) RetxExpiry(interval time.Duration, backoffs int) {
	logrus.Warnf("[%s] !> retx expiry, next [%s] (backoffs: %d)", self.id, interval, backoffs)
}

func (self *loggerInstrumentInstance) ProbeExpiry(interval time.Duration, backoffs int) {
	logrus.Warnf("[%s] ?> probe expiry, next [%s] (backoffs: %d)", self.id, interval, backoffs)
}

func (self *loggerInstrumentInstance) CallTimeout() {
	logrus.Warnf("[%s] user call timeout", self.id)
}

func (self *loggerInstrumentInstance) Aborted(err error) {
	logrus.Errorf("[%s] aborted (%v)", self.id, err)
}

func (self *loggerInstrumentInstance) QueueFull() {
	logrus.Errorf("[%s] event queue full", self.id)
}

func (self *loggerInstrumentInstance) Shutdown() {
	logrus.Infof("[%s] shutdown", self.id)
}
