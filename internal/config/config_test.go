package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYOS_CHECKSUM_KEY", "checksum")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.HTTP.Port)
	assert.Equal(t, "/api/v1", cfg.HTTP.APIPrefix)
	assert.Equal(t, 15*time.Minute, cfg.Payment.PendingTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Payment.SchedulerInterval)
	assert.Equal(t, 10*time.Second, cfg.PayOS.Timeout)
	assert.Equal(t, 100, cfg.Payment.SweepBatchSize)
	assert.Equal(t, "checksum", cfg.PayOS.ChecksumKey)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAYOS_CHECKSUM_KEY", "checksum")
	t.Setenv("PAYMENT_PENDING_TIMEOUT_MINUTES", "30")
	t.Setenv("PAYMENT_SCHEDULER_INTERVAL", "5m")
	t.Setenv("GATEWAY_TIMEOUT", "3s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Payment.PendingTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Payment.SchedulerInterval)
	assert.Equal(t, 3*time.Second, cfg.PayOS.Timeout)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadRequiresChecksumKey(t *testing.T) {
	t.Setenv("PAYOS_CHECKSUM_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYOS_CHECKSUM_KEY")
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := Config{
		PayOS:   PayOSConfig{ChecksumKey: "k", Timeout: time.Second},
		Payment: PaymentConfig{PendingTimeout: 0, SchedulerInterval: -time.Second, SweepBatchSize: 1},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PAYMENT_PENDING_TIMEOUT_MINUTES")
	assert.Contains(t, err.Error(), "PAYMENT_SCHEDULER_INTERVAL")
}
