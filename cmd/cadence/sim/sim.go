package sim

import (
	"fmt"
	"io/ioutil"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/openziti/cadence"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v2"
)

func sim(_ *cobra.Command, _ []string) {
	cfg := cadence.NewBaselineConfig()
	if configPath != "" {
		data, err := ioutil.ReadFile(configPath)
		if err != nil {
			logrus.Fatalf("error reading config [%s] (%v)", configPath, err)
		}
		overrides := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &overrides); err != nil {
			logrus.Fatalf("error parsing config [%s] (%v)", configPath, err)
		}
		if err := cfg.Load(overrides); err != nil {
			logrus.Fatalf("error loading config [%s] (%v)", configPath, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		logrus.Fatalf("unusable config (%v)", err)
	}
	if configDump {
		fmt.Println(cfg.Dump())
	}

	var i cadence.Instrument
	var mi *cadence.MetricsInstrument
	if metricsRoot != "" {
		ins, err := cadence.NewInstrument("metrics", map[string]interface{}{"path": metricsRoot, "snapshot_ms": 250})
		if err != nil {
			logrus.Fatalf("error creating metrics instrument (%v)", err)
		}
		i = ins
		mi = ins.(*cadence.MetricsInstrument)
	} else {
		i = cadence.NewLoggerInstrument()
	}

	peer := "10.99.0.1:9000"
	ii := i.NewInstance(peer)
	pool := cadence.NewPool(cfg, ii)
	loop := cadence.NewLoop(cfg, ii)

	link := &lossyLink{
		loop:   loop,
		loss:   lossFraction,
		rtt:    time.Duration(linkRttMs) * time.Millisecond,
		jitter: time.Duration(linkJitterMs) * time.Millisecond,
		done:   make(chan struct{}),
	}
	conn, err := cadence.NewConnTiming(cfg, pool, loop, peer, link, ii)
	if err != nil {
		logrus.Fatalf("admission failed (%v)", err)
	}
	link.conn = conn

	loop.Start()
	defer loop.Close()

	link.drive(time.Duration(runSeconds) * time.Second)

	if err := loop.Teardown(conn); err != nil {
		logrus.Errorf("teardown (%v)", err)
	}
	ii.Shutdown()
	if mi != nil {
		if err := mi.WriteAllSamples(); err != nil {
			logrus.Errorf("error writing samples (%v)", err)
		}
	}
}

// lossyLink plays the role of the state machine and the network at once: it
// sends a segment on a short cadence, delays the ack by the link round trip,
// and drops acks at the configured loss rate so the retransmission path gets
// real work.
type lossyLink struct {
	loop    *cadence.Loop
	conn    *cadence.ConnTiming
	loss    float64
	rtt     time.Duration
	jitter  time.Duration
	lastSeq int32
	aborted int32
	done    chan struct{}
}

func (self *lossyLink) drive(duration time.Duration) {
	deadline := time.Now().Add(duration)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var seq int32
	for time.Now().Before(deadline) {
		select {
		case <-self.done:
			logrus.Warn("link stopped after abort")
			return
		case <-ticker.C:
		}

		seq++
		atomic.StoreInt32(&self.lastSeq, seq)
		if err := self.loop.SegmentSent(self.conn, seq); err != nil {
			logrus.Errorf("send (%v)", err)
			continue
		}
		self.deliverAck(seq)

		// an occasional zero-window episode exercises the probe timer
		if seq%97 == 0 {
			_ = self.loop.ZeroWindow(self.conn)
			reopen := self.rtt * 4
			time.AfterFunc(reopen, func() {
				_ = self.loop.WindowOpened(self.conn)
			})
		}
	}
}

func (self *lossyLink) deliverAck(seq int32) {
	if rand.Float64() < self.loss {
		return
	}
	delay := self.rtt
	if self.jitter > 0 {
		delay += time.Duration(rand.Int63n(int64(self.jitter)))
	}
	time.AfterFunc(delay, func() {
		_ = self.loop.SegmentAcked(self.conn, seq)
	})
}

func (self *lossyLink) Retransmit() {
	seq := atomic.LoadInt32(&self.lastSeq)
	_ = self.loop.SegmentRetransmitted(self.conn, seq)
	// the retransmitted copy still gets acked, it just never yields a sample
	self.deliverAck(seq)
}

func (self *lossyLink) Probe() {
	logrus.Debugf("probe tx")
}

func (self *lossyLink) CallExpired(err error) {
	logrus.Warnf("call expired (%v)", err)
}

func (self *lossyLink) Closed(err error) {
	if atomic.CompareAndSwapInt32(&self.aborted, 0, 1) {
		logrus.Errorf("connection closed (%v)", err)
		close(self.done)
	}
}
