// Package config loads and validates application configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Store         StoreConfig         `yaml:"store"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency"`
	Catalogue     CatalogueConfig     `yaml:"catalogue"`
	Access        AccessConfig        `yaml:"access"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// StoreConfig describes submission persistence settings.
type StoreConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	Migrate         bool          `yaml:"migrate"`
}

// IdempotencyConfig describes transition de-duplication settings.
type IdempotencyConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
	Breaker    BreakerConfig `yaml:"breaker"`
}

// BreakerConfig describes the circuit breaker guarding a remote store.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// CatalogueConfig describes the indicator catalogue and form conversion.
type CatalogueConfig struct {
	File           string `yaml:"file"`
	UnknownFields  string `yaml:"unknown_fields"`
	MaxDetailItems int    `yaml:"max_detail_items"`
}

// AccessConfig describes the role visibility policy.
type AccessConfig struct {
	UnknownRole string `yaml:"unknown_role"`
	PolicyFile  string `yaml:"policy_file"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Exporter          string  `yaml:"exporter"`
	Endpoint          string  `yaml:"endpoint"`
	SamplingRate      float64 `yaml:"sampling_rate"`
	ForceSampleErrors bool    `yaml:"force_sample_errors"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:          "memory",
			DSNEnv:          "READINESS_DATABASE_URL",
			MaxConns:        10,
			MinConns:        1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Enabled:    true,
			Driver:     "memory",
			AddrEnv:    "READINESS_REDIS_ADDR",
			DefaultTTL: 24 * time.Hour,
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Cooldown:         30 * time.Second,
			},
		},
		Catalogue: CatalogueConfig{
			UnknownFields:  "drop",
			MaxDetailItems: 100,
		},
		Access: AccessConfig{
			UnknownRole: "deny",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all fields hold supported values.
func (c *Config) Validate() error {
	var errs []string

	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSNEnv == "" {
			errs = append(errs, "store.dsn_env is required for the postgres driver")
		}
		if c.Store.MaxConns < 1 {
			errs = append(errs, "store.max_conns must be at least 1")
		}
		if c.Store.MinConns < 0 || c.Store.MinConns > c.Store.MaxConns {
			errs = append(errs, "store.min_conns must be between 0 and store.max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not one of memory, postgres", c.Store.Driver))
	}

	if c.Idempotency.Enabled {
		switch c.Idempotency.Driver {
		case "memory":
		case "redis":
			if c.Idempotency.AddrEnv == "" {
				errs = append(errs, "idempotency.addr_env is required for the redis driver")
			}
		default:
			errs = append(errs, fmt.Sprintf("idempotency.driver %q is not one of memory, redis", c.Idempotency.Driver))
		}
		if c.Idempotency.DefaultTTL <= 0 {
			errs = append(errs, "idempotency.default_ttl must be positive")
		}
		if b := c.Idempotency.Breaker; b.FailureThreshold < 0 || b.SuccessThreshold < 0 || b.Cooldown < 0 {
			errs = append(errs, "idempotency.breaker values must not be negative")
		}
	}

	if c.Catalogue.UnknownFields != "drop" && c.Catalogue.UnknownFields != "reject" {
		errs = append(errs, fmt.Sprintf("catalogue.unknown_fields %q is not one of drop, reject", c.Catalogue.UnknownFields))
	}
	if c.Catalogue.MaxDetailItems < 0 {
		errs = append(errs, "catalogue.max_detail_items must not be negative")
	}

	if c.Access.UnknownRole != "deny" && c.Access.UnknownRole != "allow" {
		errs = append(errs, fmt.Sprintf("access.unknown_role %q is not one of deny, allow", c.Access.UnknownRole))
	}

	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, "observability.tracing.sampling_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// applyEnvOverrides reads READINESS_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("READINESS_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("READINESS_IDEMPOTENCY_DRIVER"); v != "" {
		cfg.Idempotency.Driver = v
	}
	if v := os.Getenv("READINESS_IDEMPOTENCY_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Idempotency.Enabled = b
		}
	}
	if v := os.Getenv("READINESS_CATALOGUE_FILE"); v != "" {
		cfg.Catalogue.File = v
	}
	if v := os.Getenv("READINESS_CATALOGUE_UNKNOWN_FIELDS"); v != "" {
		cfg.Catalogue.UnknownFields = v
	}
	if v := os.Getenv("READINESS_ACCESS_UNKNOWN_ROLE"); v != "" {
		cfg.Access.UnknownRole = v
	}
	if v := os.Getenv("READINESS_ACCESS_POLICY_FILE"); v != "" {
		cfg.Access.PolicyFile = v
	}
	if v := os.Getenv("READINESS_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("READINESS_TRACING_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Observability.Tracing.Enabled = b
		}
	}
}
