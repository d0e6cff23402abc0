package cadence

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type schedEntry struct {
	kind     timerKind
	gen      uint64
	deadline time.Time
}

type recordingScheduler struct {
	entries []*schedEntry
}

func (self *recordingScheduler) schedule(_ *Supervisor, kind timerKind, gen uint64, deadline time.Time) {
	self.entries = append(self.entries, &schedEntry{kind, gen, deadline})
}

func (self *recordingScheduler) last(kind timerKind) *schedEntry {
	for i := len(self.entries) - 1; i >= 0; i-- {
		if self.entries[i].kind == kind {
			return self.entries[i]
		}
	}
	return nil
}

func (self *recordingScheduler) intervals(kind timerKind, from time.Time) []time.Duration {
	var out []time.Duration
	for _, e := range self.entries {
		if e.kind == kind {
			out = append(out, e.deadline.Sub(from))
		}
	}
	return out
}

type recordingActions struct {
	retransmits int
	probes      int
	callErrs    []error
	closedErrs  []error
}

func (self *recordingActions) Retransmit() {
	self.retransmits++
}

func (self *recordingActions) Probe() {
	self.probes++
}

func (self *recordingActions) CallExpired(err error) {
	self.callErrs = append(self.callErrs, err)
}

func (self *recordingActions) Closed(err error) {
	self.closedErrs = append(self.closedErrs, err)
}

func newTestSupervisor(t *testing.T) (*Supervisor, *recordingScheduler, *recordingActions, time.Time) {
	cfg := NewBaselineConfig()
	require.NoError(t, cfg.Validate())
	est := NewEstimator(cfg, nil)
	sched := &recordingScheduler{}
	act := &recordingActions{}
	sup := NewSupervisor(cfg, est, act, sched, nil)
	clock := time.Now()
	sup.now = func() time.Time { return clock }
	return sup, sched, act, clock
}

func TestRetxBackoffDoubling(t *testing.T) {
	sup, sched, act, clock := newTestSupervisor(t)

	sup.ArmRetx()
	for i := 0; i < 20 && len(act.closedErrs) == 0; i++ {
		e := sched.last(timerRetx)
		sup.Expire(timerRetx, e.gen)
	}

	intervals := sched.intervals(timerRetx, clock)
	// 1s rto, then strict doubling until the 60s ceiling, then abort
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
	}, intervals)
	for _, interval := range intervals {
		assert.True(t, interval <= 60*time.Second)
	}
	assert.Equal(t, 6, act.retransmits)
	require.Len(t, act.closedErrs, 1)
	assert.True(t, errors.Is(act.closedErrs[0], ErrConnectionAborted))
	assert.True(t, sup.Dead())
}

func TestRetxAckReset(t *testing.T) {
	sup, sched, act, clock := newTestSupervisor(t)

	sup.ArmRetx()
	sup.Expire(timerRetx, sched.last(timerRetx).gen)
	assert.Equal(t, 1, act.retransmits)

	backedOff := sched.last(timerRetx)
	sup.AckReceived()

	// expiry enqueued before the ack is stale
	sup.Expire(timerRetx, backedOff.gen)
	assert.Equal(t, 1, act.retransmits)

	// a fresh arm starts over from the current rto
	sup.ArmRetx()
	assert.Equal(t, 1*time.Second, sched.last(timerRetx).deadline.Sub(clock))
	assert.Equal(t, time.Duration(0), sup.retxAccum)
}

func TestProbeBackoff(t *testing.T) {
	sup, sched, act, clock := newTestSupervisor(t)

	sup.ZeroWindow()
	for i := 0; i < 6; i++ {
		sup.Expire(timerProbe, sched.last(timerProbe).gen)
	}

	intervals := sched.intervals(timerProbe, clock)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		60 * time.Second,
	}, intervals)
	assert.Equal(t, 6, act.probes)
	assert.Empty(t, act.closedErrs)

	// a reopened window resets the probe sequence to the floor
	sup.WindowOpened()
	sup.ZeroWindow()
	assert.Equal(t, 1*time.Second, sched.last(timerProbe).deadline.Sub(clock))
}

func TestProbeCeiling(t *testing.T) {
	sup, sched, act, _ := newTestSupervisor(t)

	sup.ZeroWindow()
	for i := 0; i < 20 && len(act.closedErrs) == 0; i++ {
		sup.Expire(timerProbe, sched.last(timerProbe).gen)
	}
	require.Len(t, act.closedErrs, 1)
	assert.True(t, errors.Is(act.closedErrs[0], ErrConnectionAborted))
}

func TestCallTimeout(t *testing.T) {
	sup, sched, act, clock := newTestSupervisor(t)

	sup.BeginCall()
	e := sched.last(timerCall)
	// fires at the connection timeout, not before
	assert.Equal(t, 120*time.Second, e.deadline.Sub(clock))

	sup.Expire(timerCall, e.gen)
	require.Len(t, act.callErrs, 1)
	assert.True(t, errors.Is(act.callErrs[0], ErrTimeout))

	// a call timeout does not close the connection
	assert.Empty(t, act.closedErrs)
	assert.False(t, sup.Dead())
}

func TestCallResolvedDiscardsExpiry(t *testing.T) {
	sup, sched, act, _ := newTestSupervisor(t)

	sup.BeginCall()
	e := sched.last(timerCall)
	sup.CallResolved()
	sup.Expire(timerCall, e.gen)
	assert.Empty(t, act.callErrs)
}

func TestBeginCallAfterDeath(t *testing.T) {
	sup, sched, act, _ := newTestSupervisor(t)

	sup.ArmRetx()
	for i := 0; i < 20 && len(act.closedErrs) == 0; i++ {
		sup.Expire(timerRetx, sched.last(timerRetx).gen)
	}
	require.True(t, sup.Dead())

	// a call begun after death fails immediately with the abort cause
	sup.BeginCall()
	require.Len(t, act.callErrs, 1)
	assert.True(t, errors.Is(act.callErrs[0], ErrConnectionAborted))
	assert.Nil(t, sched.last(timerCall))
}

func TestBeginCallAfterTeardown(t *testing.T) {
	sup, sched, act, _ := newTestSupervisor(t)

	sup.Teardown()
	sup.BeginCall()
	require.Len(t, act.callErrs, 1)
	assert.True(t, errors.Is(act.callErrs[0], ErrConnectionAborted))
	assert.Nil(t, sched.last(timerCall))
}

func TestAbortFailsBlockedCall(t *testing.T) {
	sup, sched, act, _ := newTestSupervisor(t)

	sup.BeginCall()
	sup.ArmRetx()
	for i := 0; i < 20 && len(act.closedErrs) == 0; i++ {
		sup.Expire(timerRetx, sched.last(timerRetx).gen)
	}

	require.Len(t, act.closedErrs, 1)
	require.Len(t, act.callErrs, 1)
	assert.True(t, errors.Is(act.callErrs[0], ErrConnectionAborted))
	assert.True(t, sup.Dead())
}
