package cadence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimatorFirstSample(t *testing.T) {
	cfg := NewBaselineConfig()
	require.NoError(t, cfg.Validate())
	est := NewEstimator(cfg, nil)

	est.Sample(200 * time.Millisecond)

	srtt, ok := est.Srtt()
	assert.True(t, ok)
	assert.Equal(t, 200*time.Millisecond, srtt)
	rttvar, ok := est.Rttvar()
	assert.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, rttvar)

	// srtt + max(g, k*rttvar) = 600ms, below the floor
	assert.Equal(t, cfg.RtoLowerBound(), est.Rto())
}

func TestEstimatorRecurrence(t *testing.T) {
	cfg := NewBaselineConfig()
	est := NewEstimator(cfg, nil)

	est.Sample(200 * time.Millisecond)
	srtt, _ := est.Srtt()
	rttvar, _ := est.Rttvar()
	assert.Equal(t, 200*time.Millisecond, srtt)
	assert.Equal(t, 100*time.Millisecond, rttvar)

	est.Sample(220 * time.Millisecond)
	srtt, _ = est.Srtt()
	rttvar, _ = est.Rttvar()
	// rttvar = 100 - 100/4 + |200-220|/4 = 80ms, using the previous srtt
	assert.Equal(t, 80*time.Millisecond, rttvar)
	// srtt = 200 - 200/8 + 220/8 = 202.5ms
	assert.Equal(t, time.Duration(202500000), srtt)

	est.Sample(190 * time.Millisecond)
	srtt, _ = est.Srtt()
	rttvar, _ = est.Rttvar()
	// rttvar = 80 - 80/4 + |202.5-190|/4 = 63.125ms
	assert.Equal(t, time.Duration(63125000), rttvar)
	// srtt = 202.5 - 202.5/8 + 190/8 = 200.9375ms
	assert.Equal(t, time.Duration(200937500), srtt)

	// raw rto stays under one second throughout, so the floor holds
	assert.Equal(t, cfg.RtoLowerBound(), est.Rto())
}

func TestEstimatorConvergence(t *testing.T) {
	cfg := NewBaselineConfig()
	est := NewEstimator(cfg, nil)

	for i := 0; i < 200; i++ {
		est.Sample(2 * time.Second)
	}
	srtt, _ := est.Srtt()
	rttvar, _ := est.Rttvar()
	assert.Equal(t, 2*time.Second, srtt)
	assert.True(t, rttvar < time.Millisecond)
	// variation decayed below the granularity term
	assert.Equal(t, 2*time.Second+cfg.RtoGranularity(), est.Rto())

	// sustained increase must raise rto
	before := est.Rto()
	for i := 0; i < 200; i++ {
		est.Sample(5 * time.Second)
	}
	assert.True(t, est.Rto() > before)
	assert.Equal(t, 5*time.Second+cfg.RtoGranularity(), est.Rto())

	// sustained decrease must lower it again
	for i := 0; i < 200; i++ {
		est.Sample(2 * time.Second)
	}
	assert.Equal(t, 2*time.Second+cfg.RtoGranularity(), est.Rto())
}

func TestEstimatorBounds(t *testing.T) {
	cfg := NewBaselineConfig()
	est := NewEstimator(cfg, nil)

	// before any sample
	assert.Equal(t, cfg.RtoLowerBound(), est.Rto())

	est.Sample(10 * time.Minute)
	assert.Equal(t, cfg.RtoUpperBound(), est.Rto())

	est2 := NewEstimator(cfg, nil)
	est2.Sample(-50 * time.Millisecond)
	srtt, _ := est2.Srtt()
	assert.Equal(t, time.Duration(0), srtt)
	assert.Equal(t, cfg.RtoLowerBound(), est2.Rto())
}
