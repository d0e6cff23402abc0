package cadence

import (
	"fmt"
	"io/ioutil"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/openziti-incubator/cf"
	"github.com/openziti/cadence/util"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// MetricsInstrument captures timestamped samples of the timing core (rtt, rto,
// backoff intervals, admission counters) and writes them out as CSV datasets
// for the analyzer tooling in cmd/cadence/influx.
//
type MetricsInstrument struct {
	lock      sync.Mutex
	Config    *MetricsInstrumentConfig
	instances []*metricsInstrumentInstance
}

type MetricsInstrumentConfig struct {
	Path       string `cf:"path"`
	SnapshotMs int    `cf:"snapshot_ms"`
}

func NewMetricsInstrument(config map[string]interface{}) (Instrument, error) {
	i := &MetricsInstrument{
		Config: &MetricsInstrumentConfig{
			SnapshotMs: 1000,
		},
	}
	if err := cf.Bind(i.Config, config, cf.DefaultOptions()); err != nil {
		return nil, errors.Wrap(err, "unable to load config")
	}
	logrus.Infof(cf.Dump(i.Config, cf.DefaultOptions()))
	return i, nil
}

func (self *MetricsInstrument) NewInstance(id string) InstrumentInstance {
	self.lock.Lock()
	defer self.lock.Unlock()
	ii := &metricsInstrumentInstance{
		id:    id,
		close: make(chan struct{}, 1),
	}
	go ii.snapshotter(self.Config.SnapshotMs)
	self.instances = append(self.instances, ii)
	return ii
}

func (self *MetricsInstrument) WriteAllSamples() error {
	self.lock.Lock()
	defer self.lock.Unlock()

	for _, ii := range self.instances {
		prefix := strings.ReplaceAll(fmt.Sprintf("%s_", ii.id), ":", "-")
		if err := os.MkdirAll(self.Config.Path, os.ModePerm); err != nil {
			return err
		}
		outPath, err := ioutil.TempDir(self.Config.Path, prefix)
		if err != nil {
			return err
		}
		logrus.Infof("writing metrics to: %s", outPath)

		if err := util.WriteMetricsId("cadence.1", outPath, nil); err != nil {
			return err
		}
		ii.lock.Lock()
		datasets := map[string][]*util.Sample{
			"rtt_ms":        ii.rttMs,
			"rto_ms":        ii.rtoMs,
			"retx_ms":       ii.retxMs,
			"probe_ms":      ii.probeMs,
			"admissions":    ii.admissions,
			"rejections":    ii.rejections,
			"releases":      ii.releases,
			"call_timeouts": ii.callTimeouts,
			"aborts":        ii.aborts,
			"queue_full":    ii.queueFull,
		}
		for name, samples := range datasets {
			if err := util.WriteSamples(name, outPath, samples); err != nil {
				ii.lock.Unlock()
				return err
			}
		}
		ii.lock.Unlock()
	}
	return nil
}

type metricsInstrumentInstance struct {
	id     string
	lock   sync.Mutex
	close  chan struct{}
	closed bool

	rttMsVal   int64
	rttMs      []*util.Sample
	rtoMsVal   int64
	rtoMs      []*util.Sample
	retxMsVal  int64
	retxMs     []*util.Sample
	probeMsVal int64
	probeMs    []*util.Sample

	admissionsAccum   int64
	admissions        []*util.Sample
	rejectionsAccum   int64
	rejections        []*util.Sample
	releasesAccum     int64
	releases          []*util.Sample
	callTimeoutsAccum int64
	callTimeouts      []*util.Sample
	abortsAccum       int64
	aborts            []*util.Sample
	queueFullAccum    int64
	queueFull         []*util.Sample
}

func (self *metricsInstrumentInstance) Admitted(string, int) {
	self.lock.Lock()
	self.admissionsAccum++
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) AdmissionRejected(string) {
	self.lock.Lock()
	self.rejectionsAccum++
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) Released(string, int) {
	self.lock.Lock()
	self.releasesAccum++
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) RttSample(rtt time.Duration) {
	self.lock.Lock()
	self.rttMsVal = rtt.Milliseconds()
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) SampleDiscarded(int32) {}

func (self *metricsInstrumentInstance) NewRto(rto time.Duration) {
	self.lock.Lock()
	self.rtoMsVal = rto.Milliseconds()
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) RetxExpiry(interval time.Duration, _ int) {
	self.lock.Lock()
	self.retxMsVal = interval.Milliseconds()
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) ProbeExpiry(interval time.Duration, _ int) {
	self.lock.Lock()
	self.probeMsVal = interval.Milliseconds()
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) CallTimeout() {
	self.lock.Lock()
	self.callTimeoutsAccum++
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) Aborted(error) {
	self.lock.Lock()
	self.abortsAccum++
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) QueueFull() {
	self.lock.Lock()
	self.queueFullAccum++
	self.lock.Unlock()
}

func (self *metricsInstrumentInstance) Shutdown() {
	if !self.closed {
		self.closed = true
		close(self.close)
	}
}

func (self *metricsInstrumentInstance) snapshotter(ms int) {
	logrus.Infof("started for [%s]", self.id)
	defer logrus.Warnf("exited for [%s]", self.id)
	for {
		time.Sleep(time.Duration(ms) * time.Millisecond)
		self.snapshot()
		select {
		case <-self.close:
			return
		default:
		}
	}
}

func (self *metricsInstrumentInstance) snapshot() {
	self.lock.Lock()
	defer self.lock.Unlock()
	now := time.Now()
	self.rttMs = append(self.rttMs, &util.Sample{Ts: now, V: self.rttMsVal})
	self.rtoMs = append(self.rtoMs, &util.Sample{Ts: now, V: self.rtoMsVal})
	self.retxMs = append(self.retxMs, &util.Sample{Ts: now, V: self.retxMsVal})
	self.probeMs = append(self.probeMs, &util.Sample{Ts: now, V: self.probeMsVal})
	self.admissions = append(self.admissions, &util.Sample{Ts: now, V: self.admissionsAccum})
	self.rejections = append(self.rejections, &util.Sample{Ts: now, V: self.rejectionsAccum})
	self.releases = append(self.releases, &util.Sample{Ts: now, V: self.releasesAccum})
	self.callTimeouts = append(self.callTimeouts, &util.Sample{Ts: now, V: self.callTimeoutsAccum})
	self.aborts = append(self.aborts, &util.Sample{Ts: now, V: self.abortsAccum})
	self.queueFull = append(self.queueFull, &util.Sample{Ts: now, V: self.queueFullAccum})
}
