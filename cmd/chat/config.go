package main

import (
	"errors"
	"flag"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the terminal client settings.
type Config struct {
	ServerURL       string        `env:"CHAT_SERVER_URL"       envDefault:"ws://localhost:3000/ws"`
	Origin          string        `env:"CHAT_ORIGIN"           envDefault:"http://localhost:5173"`
	Name            string        `env:"CHAT_NAME"`
	ReconnectWindow time.Duration `env:"CHAT_RECONNECT_WINDOW" envDefault:"2m"`
	LogLevel        string        `env:"LOG_LEVEL"             envDefault:"warn"`
}

// ParseConfig loads the environment, then lets command-line flags override it.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "relay websocket URL")
	fs.StringVar(&cfg.Origin, "origin", cfg.Origin, "Origin header sent to the relay")
	fs.StringVar(&cfg.Name, "name", cfg.Name, "display name (prompted for when empty)")
	fs.DurationVar(&cfg.ReconnectWindow, "reconnect-window", cfg.ReconnectWindow, "how long to keep retrying a lost connection")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return Config{}, fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return Config{}, fmt.Errorf("server url %q: scheme must be ws or wss", cfg.ServerURL)
	}
	return cfg, nil
}
