package main

import (
	"errors"
	"math"
	"time"
)

// Config validation errors
var (
	ErrInvalidStructure   = errors.New("structure must be one of the registered containers")
	ErrInvalidProducers   = errors.New("producers must be positive")
	ErrInvalidConsumers   = errors.New("consumers must be positive")
	ErrInvalidItems       = errors.New("items_per_producer must be positive")
	ErrTooManyItems       = errors.New("producers * items_per_producer must fit in 32 bits")
	ErrSPSCConcurrency    = errors.New("spsc_queue requires exactly one producer and one consumer")
	ErrInvalidHazardSlots = errors.New("hazard_slots must cover every producer and consumer")
	ErrInvalidPushRate    = errors.New("push_rate cannot be negative")
	ErrInvalidPushBurst   = errors.New("push_burst cannot be negative")
	ErrInvalidTimeout     = errors.New("timeout must be positive")
	ErrInvalidLogFormat   = errors.New("log_format must be 'json' or 'console'")
	ErrInvalidLogLevel    = errors.New("log_level must be debug, info, warn, or error")
)

// Config holds a stress run configuration. Environment variables are read with
// the LOCKFREE_ prefix.
type Config struct {
	Structure        string        `envconfig:"STRUCTURE" default:"helping_queue"`
	Producers        int           `envconfig:"PRODUCERS" default:"4"`
	Consumers        int           `envconfig:"CONSUMERS" default:"4"`
	ItemsPerProducer int           `envconfig:"ITEMS_PER_PRODUCER" default:"100000"`
	HazardSlots      int           `envconfig:"HAZARD_SLOTS" default:"100"`
	PushRate         int           `envconfig:"PUSH_RATE" default:"0"` // pushes per second per producer, 0 means unlimited
	PushBurst        int           `envconfig:"PUSH_BURST" default:"1"` // 0 means one second of PushRate
	Timeout          time.Duration `envconfig:"TIMEOUT" default:"5m"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR" default:""` // empty disables the endpoint
	ReportPath       string        `envconfig:"REPORT_PATH" default:""`
	LogFormat        string        `envconfig:"LOG_FORMAT" default:"json"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
}

// ValidateConfig validates the configuration and returns an error if invalid
func ValidateConfig(cfg *Config) error {
	if _, ok := structures[cfg.Structure]; !ok {
		return ErrInvalidStructure
	}
	if cfg.Producers <= 0 {
		return ErrInvalidProducers
	}
	if cfg.Consumers <= 0 {
		return ErrInvalidConsumers
	}
	if cfg.ItemsPerProducer <= 0 {
		return ErrInvalidItems
	}
	if int64(cfg.Producers)*int64(cfg.ItemsPerProducer) > math.MaxUint32 {
		return ErrTooManyItems
	}
	if cfg.Structure == "spsc_queue" && (cfg.Producers != 1 || cfg.Consumers != 1) {
		return ErrSPSCConcurrency
	}
	if cfg.Structure == "hazard_stack" && cfg.HazardSlots < cfg.Producers+cfg.Consumers {
		return ErrInvalidHazardSlots
	}
	if cfg.PushRate < 0 {
		return ErrInvalidPushRate
	}
	if cfg.PushBurst < 0 {
		return ErrInvalidPushBurst
	}
	if cfg.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return ErrInvalidLogFormat
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" && cfg.LogLevel != "error" {
		return ErrInvalidLogLevel
	}
	return nil
}

// DefaultConfig returns a Config with default values
func DefaultConfig() Config {
	return Config{
		Structure:        "helping_queue",
		Producers:        4,
		Consumers:        4,
		ItemsPerProducer: 100000,
		HazardSlots:      100,
		PushRate:         0,
		PushBurst:        1,
		Timeout:          5 * time.Minute,
		MetricsAddr:      "",
		ReportPath:       "",
		LogFormat:        "json",
		LogLevel:         "info",
	}
}
