package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQPHUsesTrueHourScaling(t *testing.T) {
	cfg := Config{Type: QPH, N: 3600}
	// 3600 events/hour must resolve to exactly 1 event/second, not the
	// 60/minute scaling a per-hour config would get if it reused the
	// per-minute constructor.
	assert.InDelta(t, 1.0, float64(cfg.Quota()), 1e-9)
}

func TestQPMScaling(t *testing.T) {
	cfg := Config{Type: QPM, N: 120}
	assert.InDelta(t, 2.0, float64(cfg.Quota()), 1e-9)
}

func TestQPSScaling(t *testing.T) {
	cfg := Config{Type: QPS, N: 50}
	assert.InDelta(t, 50.0, float64(cfg.Quota()), 1e-9)
}

func TestKeyedIsolatesKeys(t *testing.T) {
	k := NewKeyed(Config{Type: QPS, N: 1})

	assert.True(t, k.Allow("a"))
	assert.False(t, k.Allow("a"), "second immediate call against the same key should be throttled")
	assert.True(t, k.Allow("b"), "a different key must have its own independent bucket")
}

func TestKeyedBurstAtLeastOne(t *testing.T) {
	cfg := Config{Type: QPH, N: 1}
	assert.GreaterOrEqual(t, cfg.Burst(), 1)
}
