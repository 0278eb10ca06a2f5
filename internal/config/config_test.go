package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWithMemoryStorage(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("DUE_SWEEP_CRON", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Fatalf("expected default addr, got %s", cfg.HTTP.Addr)
	}
	if cfg.Projection.PDFCount != 12 || cfg.Projection.XLSXCount != 24 || cfg.Projection.MaxCount != 120 {
		t.Fatalf("unexpected projection defaults: %+v", cfg.Projection)
	}
	if cfg.Scheduler.DueSweepCron != "0 6 * * *" {
		t.Fatalf("unexpected cron %s", cfg.Scheduler.DueSweepCron)
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
environment: staging
http:
  addr: ":9090"
database:
  storage: postgres
  dsn: postgres://file
projection:
  cap_by_remaining: true
  max_count: 60
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("STORAGE", "")
	t.Setenv("PG_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://env")
	t.Setenv("HTTP_ADDR", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" || cfg.Environment != "staging" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Database.DSN != "postgres://env" {
		t.Fatalf("env should override dsn, got %s", cfg.Database.DSN)
	}
	if !cfg.Projection.CapByRemaining || cfg.Projection.MaxCount != 60 || cfg.Projection.PDFCount != 12 {
		t.Fatalf("unexpected projection config: %+v", cfg.Projection)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"postgres without dsn", func(c *Config) { c.Database.DSN = "" }},
		{"unknown storage", func(c *Config) { c.Database.Storage = "sqlite" }},
		{"zero max count", func(c *Config) { c.Projection.MaxCount = 0 }},
		{"count above max", func(c *Config) { c.Projection.XLSXCount = 500 }},
		{"missing cron", func(c *Config) { c.Scheduler.DueSweepCron = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.Database.DSN = "postgres://x"
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
