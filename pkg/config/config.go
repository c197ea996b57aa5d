// Package config loads the bus's typed configuration from environment
// variables, once at start-up. There is no runtime reflection on
// configuration: every field below is named and typed.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every external knob named in the bus's external
// interfaces contract, plus the bus-level defaults needed to boot it.
type Config struct {
	RedisURL       string
	KafkaBootstrap string
	OPAURL         string
	AuditURL       string

	DriftPSIThreshold       float64
	DriftShareThreshold     float64
	MinSamplesForDrift      int
	MinSamplesForPrediction int
	EnableColdStartFallback bool

	BusQueueCapacity      int
	TenantIDDefault       string
	ConstitutionalHash    string
	StrategyOrder         []string
	DeliberationThreshold float64
	FailClosed            bool

	OPATimeout       time.Duration
	PolicyTimeout    time.Duration
	RedisTimeout     time.Duration
	KafkaTimeout     time.Duration
	AuditTimeout     time.Duration
	GuardrailTimeout time.Duration
}

// Load builds a Config from the process environment, applying the
// defaults used throughout the bus when a variable is unset.
func Load() *Config {
	return &Config{
		RedisURL:       getString("REDIS_URL", "redis://localhost:6379/0"),
		KafkaBootstrap: getString("KAFKA_BOOTSTRAP", ""),
		OPAURL:         getString("OPA_URL", "http://localhost:8181"),
		AuditURL:       getString("AUDIT_URL", "http://localhost:8282"),

		DriftPSIThreshold:       getFloat("DRIFT_PSI_THRESHOLD", 0.2),
		DriftShareThreshold:     getFloat("DRIFT_SHARE_THRESHOLD", 0.1),
		MinSamplesForDrift:      getInt("MIN_SAMPLES_FOR_DRIFT", 200),
		MinSamplesForPrediction: getInt("MIN_SAMPLES_FOR_PREDICTION", 50),
		EnableColdStartFallback: getBool("ENABLE_COLD_START_FALLBACK", true),

		BusQueueCapacity:      getInt("BUS_QUEUE_CAPACITY", 10000),
		TenantIDDefault:       getString("BUS_TENANT_ID_DEFAULT", "default"),
		ConstitutionalHash:    getString("CONSTITUTIONAL_HASH", "cdd01ef066bc6cf2"),
		StrategyOrder:         getList("STRATEGY_ORDER", []string{"rust", "opa", "dynamic", "static"}),
		DeliberationThreshold: getFloat("DELIBERATION_THRESHOLD", 0.8),
		FailClosed:            getBool("FAIL_CLOSED", true),

		OPATimeout:       getDuration("OPA_TIMEOUT", 5*time.Second),
		PolicyTimeout:    getDuration("POLICY_TIMEOUT", 5*time.Second),
		RedisTimeout:     getDuration("REDIS_TIMEOUT", 5*time.Second),
		KafkaTimeout:     getDuration("KAFKA_TIMEOUT", 10*time.Second),
		AuditTimeout:     getDuration("AUDIT_TIMEOUT", 5*time.Second),
		GuardrailTimeout: getDuration("GUARDRAIL_TIMEOUT", 15*time.Second),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
