package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "postgres" {
		t.Errorf("Store.Driver = %q, want postgres", cfg.Store.Driver)
	}
	if cfg.Store.DSNEnv != "READINESS_TEST_DSN" {
		t.Errorf("Store.DSNEnv = %q", cfg.Store.DSNEnv)
	}
	if cfg.Store.MaxConns != 20 || cfg.Store.MinConns != 2 {
		t.Errorf("Store conns = %d/%d, want 20/2", cfg.Store.MaxConns, cfg.Store.MinConns)
	}
	if cfg.Store.ConnMaxLifetime != 10*time.Minute {
		t.Errorf("Store.ConnMaxLifetime = %v, want 10m", cfg.Store.ConnMaxLifetime)
	}
	if !cfg.Store.Migrate {
		t.Error("Store.Migrate = false, want true")
	}
	if cfg.Idempotency.Driver != "redis" || cfg.Idempotency.DB != 3 {
		t.Errorf("Idempotency = %+v", cfg.Idempotency)
	}
	if cfg.Idempotency.DefaultTTL != 12*time.Hour {
		t.Errorf("Idempotency.DefaultTTL = %v, want 12h", cfg.Idempotency.DefaultTTL)
	}
	if b := cfg.Idempotency.Breaker; b.FailureThreshold != 3 || b.SuccessThreshold != 2 || b.Cooldown != time.Minute {
		t.Errorf("Idempotency.Breaker = %+v, want 3/2 (default)/1m", b)
	}
	if cfg.Catalogue.UnknownFields != "reject" {
		t.Errorf("Catalogue.UnknownFields = %q", cfg.Catalogue.UnknownFields)
	}
	if cfg.Catalogue.MaxDetailItems != 50 {
		t.Errorf("Catalogue.MaxDetailItems = %d, want 50", cfg.Catalogue.MaxDetailItems)
	}
	if cfg.Access.UnknownRole != "allow" {
		t.Errorf("Access.UnknownRole = %q", cfg.Access.UnknownRole)
	}
	if cfg.Access.PolicyFile != "/etc/readiness/policy.yaml" {
		t.Errorf("Access.PolicyFile = %q", cfg.Access.PolicyFile)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.Observability.LogLevel)
	}
	if !cfg.Observability.Tracing.Enabled || cfg.Observability.Tracing.Exporter != "stdout" {
		t.Errorf("Tracing = %+v", cfg.Observability.Tracing)
	}
	// Not in the file, so the default survives.
	if !cfg.Observability.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want default true")
	}
}

func TestLoad_emptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory", cfg.Store.Driver)
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_malformed(t *testing.T) {
	_, err := Load("testdata/malformed.yaml")
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Fatalf("Load() error = %v, want parsing error", err)
	}
}

func TestLoad_invalidValues(t *testing.T) {
	_, err := Load("testdata/bad_driver.yaml")
	if err == nil {
		t.Fatal("Load() with bad driver should return error")
	}
	for _, want := range []string{"store.driver", "catalogue.unknown_fields"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Store.Driver != "memory" {
		t.Errorf("default Store.Driver = %q, want memory", cfg.Store.Driver)
	}
	if cfg.Idempotency.DefaultTTL != 24*time.Hour {
		t.Errorf("default Idempotency.DefaultTTL = %v, want 24h", cfg.Idempotency.DefaultTTL)
	}
	if cfg.Catalogue.UnknownFields != "drop" {
		t.Errorf("default Catalogue.UnknownFields = %q, want drop", cfg.Catalogue.UnknownFields)
	}
	if cfg.Catalogue.MaxDetailItems != 100 {
		t.Errorf("default Catalogue.MaxDetailItems = %d, want 100", cfg.Catalogue.MaxDetailItems)
	}
	if cfg.Access.UnknownRole != "deny" {
		t.Errorf("default Access.UnknownRole = %q, want deny", cfg.Access.UnknownRole)
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("default LogLevel = %q, want info", cfg.Observability.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("READINESS_STORE_DRIVER", "memory")
	t.Setenv("READINESS_IDEMPOTENCY_ENABLED", "false")
	t.Setenv("READINESS_CATALOGUE_UNKNOWN_FIELDS", "drop")
	t.Setenv("READINESS_ACCESS_UNKNOWN_ROLE", "deny")
	t.Setenv("READINESS_OBSERVABILITY_LOG_LEVEL", "error")
	t.Setenv("READINESS_TRACING_ENABLED", "false")

	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Driver != "memory" {
		t.Errorf("Store.Driver = %q, want memory (env override)", cfg.Store.Driver)
	}
	if cfg.Idempotency.Enabled {
		t.Error("Idempotency.Enabled = true, want false (env override)")
	}
	if cfg.Catalogue.UnknownFields != "drop" {
		t.Errorf("Catalogue.UnknownFields = %q, want drop (env override)", cfg.Catalogue.UnknownFields)
	}
	if cfg.Access.UnknownRole != "deny" {
		t.Errorf("Access.UnknownRole = %q, want deny (env override)", cfg.Access.UnknownRole)
	}
	if cfg.Observability.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env override)", cfg.Observability.LogLevel)
	}
	if cfg.Observability.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false (env override)")
	}
}

func TestEnvOverrides_badBoolIgnored(t *testing.T) {
	t.Setenv("READINESS_IDEMPOTENCY_ENABLED", "sometimes")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Idempotency.Enabled {
		t.Error("Idempotency.Enabled = false, want default true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"postgres without dsn env", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.DSNEnv = ""
		}, "store.dsn_env"},
		{"postgres min above max", func(c *Config) {
			c.Store.Driver = "postgres"
			c.Store.MinConns = 20
		}, "store.min_conns"},
		{"redis without addr env", func(c *Config) {
			c.Idempotency.Driver = "redis"
			c.Idempotency.AddrEnv = ""
		}, "idempotency.addr_env"},
		{"unknown idempotency driver", func(c *Config) {
			c.Idempotency.Driver = "etcd"
		}, "idempotency.driver"},
		{"zero ttl", func(c *Config) {
			c.Idempotency.DefaultTTL = 0
		}, "idempotency.default_ttl"},
		{"negative breaker threshold", func(c *Config) {
			c.Idempotency.Breaker.FailureThreshold = -1
		}, "idempotency.breaker"},
		{"negative detail cap", func(c *Config) {
			c.Catalogue.MaxDetailItems = -1
		}, "catalogue.max_detail_items"},
		{"unknown role policy", func(c *Config) {
			c.Access.UnknownRole = "maybe"
		}, "access.unknown_role"},
		{"sampling rate", func(c *Config) {
			c.Observability.Tracing.SamplingRate = 1.5
		}, "sampling_rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestValidate_disabledIdempotencySkipsDriver(t *testing.T) {
	cfg := Defaults()
	cfg.Idempotency.Enabled = false
	cfg.Idempotency.Driver = "etcd"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}
