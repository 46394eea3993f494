package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port             string        `mapstructure:"PORT"`
	Env              string        `mapstructure:"ENV"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	DBMaxConns       int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns       int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	LockTTL          time.Duration `mapstructure:"LOCK_TTL"`
	LockPrefix       string        `mapstructure:"LOCK_PREFIX"`
	AuthSigningKey   string        `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer       string        `mapstructure:"AUTH_ISSUER"`
	AuthAudience     string        `mapstructure:"AUTH_AUDIENCE"`
	CORSOrigins      []string      `mapstructure:"CORS_ORIGINS"`
	MaxUploadSize    string        `mapstructure:"MAX_UPLOAD_SIZE"`
	BatchInputDir    string        `mapstructure:"BATCH_INPUT_DIR"`
	BatchArchiveDir  string        `mapstructure:"BATCH_ARCHIVE_DIR"`
	BatchErrorDir    string        `mapstructure:"BATCH_ERROR_DIR"`
	BatchWorkers     int           `mapstructure:"BATCH_WORKERS"`
	// BatchReceiptMode decides when an inbox file has finished arriving:
	// done_signal, stable_size or immediate.
	BatchReceiptMode string        `mapstructure:"BATCH_RECEIPT_MODE"`
	BatchStableWait  time.Duration `mapstructure:"BATCH_STABLE_WAIT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "LOCK_TTL", "LOCK_PREFIX",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
	"MAX_UPLOAD_SIZE",
	"BATCH_INPUT_DIR", "BATCH_ARCHIVE_DIR", "BATCH_ERROR_DIR", "BATCH_WORKERS",
	"BATCH_RECEIPT_MODE", "BATCH_STABLE_WAIT",
}

// Load reads configuration from the environment, falling back to a .env file
// in the working directory. Nothing is required here; commands that need a
// database call RequireDatabase.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("LOCK_PREFIX", "schedimport:slot")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("MAX_UPLOAD_SIZE", "10M")
	v.SetDefault("BATCH_INPUT_DIR", "./data/inbox")
	v.SetDefault("BATCH_ARCHIVE_DIR", "./data/archive")
	v.SetDefault("BATCH_ERROR_DIR", "./data/error")
	v.SetDefault("BATCH_WORKERS", 3)
	v.SetDefault("BATCH_RECEIPT_MODE", "stable_size")
	v.SetDefault("BATCH_STABLE_WAIT", "10s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// RequireDatabase reports a missing DATABASE_URL.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// Validate checks that the configuration is safe to serve with. Outside
// development a signing key is required so that JWT authentication is
// enforced.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY must be set when ENV=%q; "+
			"refusing to start without authentication", c.Env)
	}
	if c.AuthSigningKey != "" && len(c.AuthSigningKey) < 32 {
		return fmt.Errorf("AUTH_SIGNING_KEY must be at least 32 bytes, got %d", len(c.AuthSigningKey))
	}
	if c.LockTTL <= 0 {
		return fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL)
	}
	if c.BatchWorkers < 1 {
		return fmt.Errorf("BATCH_WORKERS must be at least 1, got %d", c.BatchWorkers)
	}
	switch c.BatchReceiptMode {
	case "done_signal", "immediate":
	case "stable_size":
		if c.BatchStableWait <= 0 {
			return fmt.Errorf("BATCH_STABLE_WAIT must be positive, got %s", c.BatchStableWait)
		}
	default:
		return fmt.Errorf("BATCH_RECEIPT_MODE must be done_signal, stable_size or immediate, got %q", c.BatchReceiptMode)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) exceeds DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
