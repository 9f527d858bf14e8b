// Package config provides configuration loading for discoveryd.
package config

import (
	"fmt"
	"time"
)

// Config is the full daemon configuration.
type Config struct {
	Server     Server     `koanf:"server"`
	Logging    Logging    `koanf:"logging"`
	Reasoning  Reasoning  `koanf:"reasoning"`
	Governance Governance `koanf:"governance"`
	Events     Events     `koanf:"events"`
	Telemetry  Telemetry  `koanf:"telemetry"`
	Engine     Engine     `koanf:"engine"`
}

// Server configures the HTTP API.
type Server struct {
	Addr            string   `koanf:"addr"`
	ReadTimeout     Duration `koanf:"read_timeout"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// Logging configures the zap logger.
type Logging struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Reasoning configures the reasoning-service client.
type Reasoning struct {
	BaseURL           string  `koanf:"base_url"`
	Model             string  `koanf:"model"`
	APIKey            Secret  `koanf:"api_key"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// Governance holds the run policy limits.
type Governance struct {
	MaxCycles               int     `koanf:"max_cycles"`
	NoveltyThreshold        float64 `koanf:"novelty_threshold"`
	MaxRepairAttempts       int     `koanf:"max_repair_attempts"`
	ClarificationConfidence float64 `koanf:"clarification_confidence"`
	MaxRecursionDepth       int     `koanf:"max_recursion_depth"`
}

// Events configures event stream publication.
type Events struct {
	NATSURL  string `koanf:"nats_url"`
	Embedded bool   `koanf:"embedded"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Enabled        bool   `koanf:"enabled"`
	Endpoint       string `koanf:"endpoint"`
	Protocol       string `koanf:"protocol"`
	Insecure       bool   `koanf:"insecure"`
	ServiceName    string `koanf:"service_name"`
	ServiceVersion string `koanf:"service_version"`
}

// Engine configures discovery-run behavior.
type Engine struct {
	Deliberate bool `koanf:"deliberate"`
}

// Default returns the stock configuration. The reasoning API key has no
// default and must come from the config file or environment.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: Logging{Level: "info", Format: "json"},
		Reasoning: Reasoning{
			Model:             "gpt-4o-mini",
			RequestsPerSecond: 2,
		},
		Governance: Governance{
			MaxCycles:               5,
			NoveltyThreshold:        0.75,
			MaxRepairAttempts:       1,
			ClarificationConfidence: 0.6,
			MaxRecursionDepth:       50,
		},
		Events: Events{Embedded: true},
		Telemetry: Telemetry{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "discoveryd",
			ServiceVersion: "0.1.0",
		},
		Engine: Engine{Deliberate: false},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console; got %q", c.Logging.Format)
	}

	if !c.Reasoning.APIKey.IsSet() {
		return fmt.Errorf("reasoning.api_key is required")
	}
	if c.Reasoning.RequestsPerSecond <= 0 {
		return fmt.Errorf("reasoning.requests_per_second must be positive")
	}

	if c.Governance.MaxCycles < 1 {
		return fmt.Errorf("governance.max_cycles must be at least 1")
	}
	if c.Governance.NoveltyThreshold < 0 || c.Governance.NoveltyThreshold > 1 {
		return fmt.Errorf("governance.novelty_threshold must be in [0,1]")
	}
	if c.Governance.MaxRepairAttempts < 0 {
		return fmt.Errorf("governance.max_repair_attempts must not be negative")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
		}
		switch c.Telemetry.Protocol {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http; got %q", c.Telemetry.Protocol)
		}
	}

	return nil
}
