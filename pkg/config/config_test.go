package config_test

import (
	"testing"

	"github.com/acgs/agentbus/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"REDIS_URL", "KAFKA_BOOTSTRAP", "OPA_URL", "AUDIT_URL",
		"DRIFT_PSI_THRESHOLD", "DRIFT_SHARE_THRESHOLD",
		"MIN_SAMPLES_FOR_DRIFT", "MIN_SAMPLES_FOR_PREDICTION",
		"ENABLE_COLD_START_FALLBACK", "BUS_QUEUE_CAPACITY",
		"CONSTITUTIONAL_HASH", "STRATEGY_ORDER", "DELIBERATION_THRESHOLD",
		"FAIL_CLOSED",
	} {
		t.Setenv(key, "")
	}

	cfg := config.Load()

	assert.Equal(t, "cdd01ef066bc6cf2", cfg.ConstitutionalHash)
	assert.Equal(t, 0.8, cfg.DeliberationThreshold)
	assert.True(t, cfg.FailClosed)
	assert.True(t, cfg.EnableColdStartFallback)
	assert.Equal(t, []string{"rust", "opa", "dynamic", "static"}, cfg.StrategyOrder)
	assert.Equal(t, 10000, cfg.BusQueueCapacity)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CONSTITUTIONAL_HASH", "deadbeefcafef00d")
	t.Setenv("DELIBERATION_THRESHOLD", "0.5")
	t.Setenv("FAIL_CLOSED", "false")
	t.Setenv("STRATEGY_ORDER", "opa,static")
	t.Setenv("BUS_QUEUE_CAPACITY", "256")

	cfg := config.Load()

	assert.Equal(t, "deadbeefcafef00d", cfg.ConstitutionalHash)
	assert.Equal(t, 0.5, cfg.DeliberationThreshold)
	assert.False(t, cfg.FailClosed)
	assert.Equal(t, []string{"opa", "static"}, cfg.StrategyOrder)
	assert.Equal(t, 256, cfg.BusQueueCapacity)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("DELIBERATION_THRESHOLD", "not-a-float")
	t.Setenv("BUS_QUEUE_CAPACITY", "not-an-int")
	t.Setenv("FAIL_CLOSED", "not-a-bool")

	cfg := config.Load()

	assert.Equal(t, 0.8, cfg.DeliberationThreshold)
	assert.Equal(t, 10000, cfg.BusQueueCapacity)
	assert.True(t, cfg.FailClosed)
}
