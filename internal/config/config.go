// Package config aggregates per-component settings for a breaker
// deployment, the way the internal/config/config.go composes
// PostgresConfig/PoolConfig/ObservabilityConfig into one Config with a
// DefaultConfig constructor and json tags for file-based loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oriys/distcb/breaker"
)

// RedisConfig holds connection settings for the distributed store.
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"` // default "cb:"
}

// TracingConfig mirrors the ObservabilityConfig.Tracing shape.
type TracingConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Exporter   string  `json:"exporter" yaml:"exporter"` // otlp-http, stdout
	Endpoint   string  `json:"endpoint" yaml:"endpoint"`
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
}

// MetricsConfig mirrors the ObservabilityConfig.Metrics shape.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

// LoggingConfig mirrors the ObservabilityConfig.Logging shape.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"` // debug, info, warn, error
}

// ObservabilityConfig aggregates tracing, metrics and logging settings.
type ObservabilityConfig struct {
	Tracing TracingConfig `json:"tracing" yaml:"tracing"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// BreakerConfig is the JSON/YAML-loadable shape of breaker.Options; it
// exists because breaker.Options.Ramp.HoldDuration etc. are time.Duration,
// which the stdlib encoding packages don't parse from "1s"-style strings
// without help, the same problem solved ad hoc per field in
// internal/config/config.go (e.g. PoolConfig.IdleTTL).
type BreakerConfig struct {
	Key                      string `json:"key" yaml:"key"`
	WindowSeconds            int    `json:"window_seconds" yaml:"window_seconds"`
	BucketSeconds            int    `json:"bucket_seconds" yaml:"bucket_seconds"`
	MinSamples               int    `json:"min_samples" yaml:"min_samples"`
	FailureRateToOpen        float64 `json:"failure_rate_to_open" yaml:"failure_rate_to_open"`
	OpenCooldownSeconds      int    `json:"open_cooldown_seconds" yaml:"open_cooldown_seconds"`
	HalfOpenMaxProbes        int    `json:"half_open_max_probes" yaml:"half_open_max_probes"`
	HalfOpenSuccessesToClose int    `json:"half_open_successes_to_close" yaml:"half_open_successes_to_close"`
	RampPercentages          []int  `json:"ramp_percentages" yaml:"ramp_percentages"`
	RampHoldSeconds          int    `json:"ramp_hold_seconds" yaml:"ramp_hold_seconds"`
	RampMaxFailureRatePerStep float64 `json:"ramp_max_failure_rate_per_step" yaml:"ramp_max_failure_rate_per_step"`
}

// Options converts the loadable shape into breaker.Options.
func (c BreakerConfig) Options() breaker.Options {
	return breaker.Options{
		Key:                      c.Key,
		Window:                   time.Duration(c.WindowSeconds) * time.Second,
		Bucket:                   time.Duration(c.BucketSeconds) * time.Second,
		MinSamples:               c.MinSamples,
		FailureRateToOpen:        c.FailureRateToOpen,
		OpenCooldown:             time.Duration(c.OpenCooldownSeconds) * time.Second,
		HalfOpenMaxProbes:        c.HalfOpenMaxProbes,
		HalfOpenSuccessesToClose: c.HalfOpenSuccessesToClose,
		Ramp: breaker.Ramp{
			Percentages:           c.RampPercentages,
			HoldDuration:          time.Duration(c.RampHoldSeconds) * time.Second,
			MaxFailureRatePerStep: c.RampMaxFailureRatePerStep,
		},
	}
}

// Config is the central configuration struct for a breaker deployment.
type Config struct {
	Breaker       BreakerConfig       `json:"breaker" yaml:"breaker"`
	Redis         RedisConfig         `json:"redis" yaml:"redis"`
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`
}

// DefaultConfig returns the defaults used when no config file is given: a
// 60s window of 10s buckets, a 50% failure threshold over at least 10
// samples, a 30s cooldown, 3 probe successes to close, and a 25/50/100
// recovery ramp held 30s per step.
func DefaultConfig() *Config {
	return &Config{
		Breaker: BreakerConfig{
			Key:                       "default",
			WindowSeconds:             60,
			BucketSeconds:             10,
			MinSamples:                10,
			FailureRateToOpen:         0.5,
			OpenCooldownSeconds:       30,
			HalfOpenMaxProbes:         1,
			HalfOpenSuccessesToClose:  3,
			RampPercentages:           []int{25, 50, 100},
			RampHoldSeconds:           30,
			RampMaxFailureRatePerStep: 0.1,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "cb:",
		},
		Observability: ObservabilityConfig{
			Tracing: TracingConfig{Enabled: false, Exporter: "otlp-http", Endpoint: "localhost:4318", SampleRate: 1.0},
			Metrics: MetricsConfig{Enabled: true, Namespace: "breaker"},
			Logging: LoggingConfig{Level: "info"},
		},
	}
}

// LoadYAML reads a Config from a YAML file, starting from DefaultConfig so
// unspecified fields keep their defaults.
func LoadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadJSON reads a Config from a JSON file, starting from DefaultConfig.
func LoadJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
