// Package server provides configuration helpers that define runtime defaults,
// validation, and origin policy parameters for the relay.
package server

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultPort            = ":3000"
	defaultAllowedOrigin   = "http://localhost:5173"
	defaultMaxMessageSize  = 8192
	defaultShutdownTimeout = 10 * time.Second
	defaultLogLevel        = "info"
)

// Config holds the relay server settings. Defaults come from defaultConfig;
// the env tags only name the overriding variables.
type Config struct {
	Port            string        `env:"SERVER_PORT"`
	AllowedOrigin   string        `env:"ALLOWED_ORIGIN"`
	MaxMessageSize  int64         `env:"MAX_MESSAGE_SIZE"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
	LogLevel        string        `env:"LOG_LEVEL"`
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

func defaultConfig() Config {
	return Config{
		Port:            defaultPort,
		AllowedOrigin:   defaultAllowedOrigin,
		MaxMessageSize:  defaultMaxMessageSize,
		ShutdownTimeout: defaultShutdownTimeout,
		LogLevel:        defaultLogLevel,
	}
}

// ParseConfig starts from the defaults, applies the environment, then lets
// command-line flags override both.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Port, "port", cfg.Port, "listen address")
	fs.StringVar(&cfg.AllowedOrigin, "allowed-origin", cfg.AllowedOrigin, "browser origin allowed to open websocket connections (* for any)")
	fs.Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "maximum inbound frame size in bytes")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	return sanitizeConfig(cfg), nil
}

// sanitizeConfig replaces unusable values with defaults.
func sanitizeConfig(cfg Config) Config {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	return cfg
}
