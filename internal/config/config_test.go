package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Minute, cfg.ShortHoldTTL)
	assert.Equal(t, 25*time.Minute, cfg.LongHoldTTL)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 0.01, cfg.PaymentTolerance)
	assert.Equal(t, time.Hour, cfg.IdempotencyTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("HOLD_TTL_SHORT", "90s")
	t.Setenv("HOLD_TTL_LONG", "10m")
	t.Setenv("PAYMENT_TOLERANCE", "0.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 90*time.Second, cfg.ShortHoldTTL)
	assert.Equal(t, 10*time.Minute, cfg.LongHoldTTL)
	assert.Equal(t, 0.5, cfg.PaymentTolerance)
}

func TestLoadRejectsGarbage(t *testing.T) {
	t.Setenv("HOLD_TTL_SHORT", "not-a-duration")
	t.Setenv("HOLD_TTL_LONG", "-5m")
	t.Setenv("PAYMENT_TOLERANCE", "banana")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.ShortHoldTTL)
	assert.Equal(t, 25*time.Minute, cfg.LongHoldTTL)
	assert.Equal(t, 0.01, cfg.PaymentTolerance)
}
