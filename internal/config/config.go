package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	// ArchiveDB is the SQLite file for the round history. Empty disables it.
	ArchiveDB string `env:"ARCHIVE_DB"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"30s"`
	ViewerBuffer      int           `env:"VIEWER_BUFFER" envDefault:"16"`

	// Requests per client IP per window, applied to join and leave. A whole
	// room usually shares one address.
	JoinLimit  int           `env:"JOIN_LIMIT" envDefault:"600"`
	JoinWindow time.Duration `env:"JOIN_WINDOW" envDefault:"1m"`

	// PublicURL is the base URL encoded in the join QR code. When empty it is
	// derived from the request.
	PublicURL string `env:"PUBLIC_URL"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	}
	if c.ViewerBuffer < 1 {
		return fmt.Errorf("VIEWER_BUFFER must be at least 1, got %d", c.ViewerBuffer)
	}
	if c.JoinLimit < 1 || c.JoinWindow <= 0 {
		return fmt.Errorf("JOIN_LIMIT and JOIN_WINDOW must be positive, got %d/%s", c.JoinLimit, c.JoinWindow)
	}
	return nil
}
