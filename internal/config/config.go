package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds the service configuration.
type Config struct {
	Environment string           `yaml:"environment"`
	Log         LogConfig        `yaml:"log"`
	HTTP        HTTPConfig       `yaml:"http"`
	Database    DatabaseConfig   `yaml:"database"`
	Auth        AuthConfig       `yaml:"auth"`
	Projection  ProjectionConfig `yaml:"projection"`
	Scheduler   SchedulerConfig  `yaml:"scheduler"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects and configures storage.
type DatabaseConfig struct {
	Storage string `yaml:"storage"`
	DSN     string `yaml:"dsn"`
}

// AuthConfig configures JWT validation.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ProjectionConfig bounds schedule projections.
type ProjectionConfig struct {
	DefaultCount   int  `yaml:"default_count"`
	PDFCount       int  `yaml:"pdf_count"`
	XLSXCount      int  `yaml:"xlsx_count"`
	MaxCount       int  `yaml:"max_count"`
	CapByRemaining bool `yaml:"cap_by_remaining"`
}

// SchedulerConfig configures background jobs.
type SchedulerConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DueSweepCron  string        `yaml:"due_sweep_cron"`
	JobTimeout    time.Duration `yaml:"job_timeout"`
	DueSweepLimit int           `yaml:"due_sweep_limit"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Environment: "development",
		Log:         LogConfig{Level: "info"},
		HTTP:        HTTPConfig{Addr: ":8080", ShutdownTimeout: 10 * time.Second},
		Database:    DatabaseConfig{Storage: StoragePostgres},
		Projection: ProjectionConfig{
			DefaultCount: 12,
			PDFCount:     12,
			XLSXCount:    24,
			MaxCount:     120,
		},
		Scheduler: SchedulerConfig{
			Enabled:       true,
			DueSweepCron:  "0 6 * * *",
			JobTimeout:    5 * time.Minute,
			DueSweepLimit: 1000,
		},
	}
}

// Load reads .env (if present), the YAML file named by CONFIG_FILE (if set)
// and environment overrides, in that order.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Environment = strings.ToLower(getenvDefault("ENVIRONMENT", cfg.Environment))
	cfg.Log.Level = strings.ToLower(getenvDefault("LOG_LEVEL", cfg.Log.Level))
	cfg.HTTP.Addr = getenvDefault("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Database.Storage = strings.ToLower(getenvDefault("STORAGE", cfg.Database.Storage))
	cfg.Database.DSN = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.Database.DSN))
	cfg.Auth.JWTSecret = getenvDefault("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Scheduler.DueSweepCron = getenvDefault("DUE_SWEEP_CRON", cfg.Scheduler.DueSweepCron)
	cfg.Scheduler.Enabled = getenvBoolDefault("SCHEDULER_ENABLED", cfg.Scheduler.Enabled)
	cfg.Projection.CapByRemaining = getenvBoolDefault("PROJECTION_CAP_BY_REMAINING", cfg.Projection.CapByRemaining)
}

// Validate checks the configuration for values the service cannot run with.
func (c Config) Validate() error {
	switch c.Database.Storage {
	case StoragePostgres:
		if c.Database.DSN == "" {
			return errors.New("config: DATABASE_URL is required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage %q", c.Database.Storage)
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http addr required")
	}
	p := c.Projection
	if p.MaxCount < 1 {
		return errors.New("config: projection max_count must be positive")
	}
	if p.DefaultCount < 1 || p.PDFCount < 1 || p.XLSXCount < 1 {
		return errors.New("config: projection counts must be positive")
	}
	if p.DefaultCount > p.MaxCount || p.PDFCount > p.MaxCount || p.XLSXCount > p.MaxCount {
		return errors.New("config: projection counts exceed max_count")
	}
	if c.Scheduler.Enabled && c.Scheduler.DueSweepCron == "" {
		return errors.New("config: due sweep cron required when scheduler is enabled")
	}
	return nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvBoolDefault(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
