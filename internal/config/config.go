package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/zap/zapcore"
)

// Config holds runtime settings read from COMPASS_* environment variables.
type Config struct {
	Addr            string        `env:"COMPASS_ADDR"             envDefault:"127.0.0.1:8080"`
	BasePath        string        `env:"COMPASS_BASE_PATH"        envDefault:"/v1"`
	JWTSecret       string        `env:"COMPASS_JWT_SECRET"`
	Workspace       string        `env:"COMPASS_WORKSPACE"        envDefault:"."`
	CatalogFile     string        `env:"COMPASS_CATALOG_FILE"`
	InviteDays      int           `env:"COMPASS_INVITE_DAYS"      envDefault:"30"`
	LogLevel        string        `env:"COMPASS_LOG_LEVEL"        envDefault:"info"`
	LogDev          bool          `env:"COMPASS_LOG_DEV"          envDefault:"false"`
	OTelEndpoint    string        `env:"COMPASS_OTEL_ENDPOINT"`
	ShutdownTimeout time.Duration `env:"COMPASS_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate ensures the config values are usable.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return fmt.Errorf("COMPASS_ADDR is required")
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("COMPASS_BASE_PATH must start with /")
	}
	if c.InviteDays <= 0 {
		return fmt.Errorf("COMPASS_INVITE_DAYS must be positive")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("COMPASS_LOG_LEVEL: %w", err)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("COMPASS_SHUTDOWN_TIMEOUT must not be negative")
	}
	return nil
}
