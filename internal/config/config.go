package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"

	"community-realtime/internal/realtime"
)

// Config is the runtime configuration shared by the commands. Values come
// from REALTIME_* environment variables; flags may override them afterwards.
type Config struct {
	URL    string `env:"URL" envDefault:"ws://localhost:8080/ws"`
	Listen string `env:"LISTEN" envDefault:":8080"`

	BaseDelay   time.Duration `env:"BASE_DELAY" envDefault:"1s"`
	MaxDelay    time.Duration `env:"MAX_DELAY" envDefault:"30s"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"5"` // negative disables reconnect
	// StableAfter is how long a connection must last before the attempt
	// counter resets; 0 resets it on every open.
	StableAfter time.Duration `env:"STABLE_AFTER" envDefault:"0s"`

	PingPeriod time.Duration `env:"PING_PERIOD" envDefault:"10s"`
	PongWait   time.Duration `env:"PONG_WAIT" envDefault:"25s"`
}

// Load parses the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "REALTIME_"}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate checks the endpoint URL and the reconnect settings.
func (c Config) Validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", c.URL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid url %q: scheme must be ws or wss", c.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", c.URL)
	}
	if c.BaseDelay <= 0 || c.MaxDelay <= 0 {
		return errors.New("reconnect delays must be positive")
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.New("max delay must not be below base delay")
	}
	if c.StableAfter < 0 {
		return errors.New("stable after must not be negative")
	}
	if c.PingPeriod > 0 && c.PongWait > 0 && c.PingPeriod >= c.PongWait {
		return errors.New("ping period must be shorter than pong wait")
	}
	return nil
}

// ChannelOptions maps the config onto realtime.Options.
func (c Config) ChannelOptions() realtime.Options {
	return realtime.Options{
		URL: c.URL,
		Reconnect: realtime.ReconnectPolicy{
			BaseDelay:   c.BaseDelay,
			MaxDelay:    c.MaxDelay,
			MaxAttempts: c.MaxAttempts,
		},
		StableAfter: c.StableAfter,
		PingPeriod:  c.PingPeriod,
		PongWait:    c.PongWait,
	}
}
