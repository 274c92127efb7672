package main

import (
	"testing"
	"time"
)

func TestValidateConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, want nil", err)
	}
}

func TestValidateConfig_UnknownStructure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Structure = "skiplist"
	if err := ValidateConfig(&cfg); err != ErrInvalidStructure {
		t.Errorf("ValidateConfig() error = %v, want %v", err, ErrInvalidStructure)
	}
}

func TestValidateConfig_EveryStructure(t *testing.T) {
	for _, name := range StructureNames() {
		cfg := DefaultConfig()
		cfg.Structure = name
		if name == "spsc_queue" {
			cfg.Producers, cfg.Consumers = 1, 1
		}
		if err := ValidateConfig(&cfg); err != nil {
			t.Errorf("ValidateConfig(%s) error = %v, want nil", name, err)
		}
	}
}

func TestValidateConfig_Counts(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   error
	}{
		{"zero producers", func(c *Config) { c.Producers = 0 }, ErrInvalidProducers},
		{"negative consumers", func(c *Config) { c.Consumers = -1 }, ErrInvalidConsumers},
		{"zero items", func(c *Config) { c.ItemsPerProducer = 0 }, ErrInvalidItems},
		{"value overflow", func(c *Config) { c.Producers, c.ItemsPerProducer = 1<<16, 1<<17 }, ErrTooManyItems},
		{"negative rate", func(c *Config) { c.PushRate = -5 }, ErrInvalidPushRate},
		{"negative burst", func(c *Config) { c.PushBurst = -1 }, ErrInvalidPushBurst},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, ErrInvalidTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if err := ValidateConfig(&cfg); err != tt.want {
				t.Errorf("ValidateConfig() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateConfig_SPSCConcurrency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Structure = "spsc_queue"
	cfg.Producers = 2
	cfg.Consumers = 1
	if err := ValidateConfig(&cfg); err != ErrSPSCConcurrency {
		t.Errorf("ValidateConfig() error = %v, want %v", err, ErrSPSCConcurrency)
	}
}

func TestValidateConfig_HazardSlots(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Structure = "hazard_stack"
	cfg.HazardSlots = cfg.Producers + cfg.Consumers - 1
	if err := ValidateConfig(&cfg); err != ErrInvalidHazardSlots {
		t.Errorf("ValidateConfig() error = %v, want %v", err, ErrInvalidHazardSlots)
	}

	// Other structures do not use the table.
	cfg.Structure = "refcount_stack"
	if err := ValidateConfig(&cfg); err != nil {
		t.Errorf("ValidateConfig() error = %v, want nil", err)
	}
}

func TestValidateConfig_InvalidLogFormat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFormat = "xml"
	if err := ValidateConfig(&cfg); err != ErrInvalidLogFormat {
		t.Errorf("ValidateConfig() error = %v, want %v", err, ErrInvalidLogFormat)
	}
}

func TestValidateConfig_ValidLogLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := DefaultConfig()
		cfg.LogLevel = level
		if err := ValidateConfig(&cfg); err != nil {
			t.Errorf("ValidateConfig() with level %q error = %v, want nil", level, err)
		}
	}

	cfg := DefaultConfig()
	cfg.LogLevel = "trace"
	if err := ValidateConfig(&cfg); err != ErrInvalidLogLevel {
		t.Errorf("ValidateConfig() error = %v, want %v", err, ErrInvalidLogLevel)
	}
}

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Structure != "helping_queue" {
		t.Errorf("Structure = %q, want helping_queue", cfg.Structure)
	}
	if cfg.HazardSlots != 100 {
		t.Errorf("HazardSlots = %d, want 100", cfg.HazardSlots)
	}
	if cfg.PushBurst != 1 {
		t.Errorf("PushBurst = %d, want 1", cfg.PushBurst)
	}
	if cfg.Timeout != 5*time.Minute {
		t.Errorf("Timeout = %v, want 5m", cfg.Timeout)
	}
	if cfg.MetricsAddr != "" {
		t.Errorf("MetricsAddr = %q, want empty", cfg.MetricsAddr)
	}
}
