package cadence

import (
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolSizing(t *testing.T) {
	cfg := NewBaselineConfig()
	cfg.BufferCount = 4
	p := NewPool(cfg, nil)

	assert.Equal(t, 4, p.Free())
	slot, err := p.Admit("10.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, uint32(cfg.WindowSize()), slot.Size)
	assert.Equal(t, cfg.WindowSize(), len(slot.Data))
}

func TestPoolExhaustion(t *testing.T) {
	cfg := NewBaselineConfig()
	cfg.BufferCount = 3
	p := NewPool(cfg, nil)

	var slots []*Slot
	for i := 0; i < 3; i++ {
		slot, err := p.Admit(fmt.Sprintf("10.0.0.%d:9000", i))
		require.NoError(t, err)
		slots = append(slots, slot)
	}
	_, err := p.Admit("10.0.0.99:9000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceExhausted))

	require.NoError(t, p.Release(slots[1]))
	_, err = p.Admit("10.0.0.100:9000")
	assert.NoError(t, err)
	_, err = p.Admit("10.0.0.101:9000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceExhausted))
}

func TestPoolSingleBuffer(t *testing.T) {
	cfg := NewBaselineConfig()
	p := NewPool(cfg, nil)

	slot, err := p.Admit("10.0.0.1:9000")
	require.NoError(t, err)
	_, err = p.Admit("10.0.0.2:9000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceExhausted))

	require.NoError(t, p.Release(slot))
	_, err = p.Admit("10.0.0.3:9000")
	assert.NoError(t, err)
}

func TestPoolDoubleRelease(t *testing.T) {
	cfg := NewBaselineConfig()
	p := NewPool(cfg, nil)

	slot, err := p.Admit("10.0.0.1:9000")
	require.NoError(t, err)
	require.NoError(t, p.Release(slot))
	assert.Error(t, p.Release(slot))
	assert.Equal(t, 1, p.Free())
}

func TestPoolQuietTime(t *testing.T) {
	cfg := NewBaselineConfig()
	cfg.BufferCount = 2
	p := NewPool(cfg, nil)
	now := time.Now()
	p.now = func() time.Time { return now }

	slot, err := p.Admit("10.0.0.1:9000")
	require.NoError(t, err)
	require.NoError(t, p.Release(slot))

	// same tuple inside the quiet window
	_, err = p.Admit("10.0.0.1:9000")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceExhausted))

	// a different tuple is unaffected
	_, err = p.Admit("10.0.0.2:9000")
	assert.NoError(t, err)

	now = now.Add(2*cfg.Msl() + time.Second)
	_, err = p.Admit("10.0.0.1:9000")
	assert.NoError(t, err)
}

func TestPoolQuietPurge(t *testing.T) {
	cfg := NewBaselineConfig()
	cfg.BufferCount = 4
	p := NewPool(cfg, nil)
	now := time.Now()
	p.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		slot, err := p.Admit(fmt.Sprintf("10.0.0.%d:9000", i))
		require.NoError(t, err)
		require.NoError(t, p.Release(slot))
	}
	assert.Equal(t, 3, len(p.quiet))

	// every expired window is purged on the next admission, not just the
	// admitting tuple's
	now = now.Add(2*cfg.Msl() + time.Second)
	_, err := p.Admit("10.0.0.99:9000")
	require.NoError(t, err)
	assert.Equal(t, 0, len(p.quiet))
}
