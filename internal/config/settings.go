package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds process-level configuration read from the environment.
type Settings struct {
	// RequestTimeout bounds every request to a tool server.
	RequestTimeout time.Duration `env:"TOOLBRIDGE_REQUEST_TIMEOUT" envDefault:"30s"`

	// LogLevel selects the slog level: debug, info, warn, error.
	LogLevel string `env:"TOOLBRIDGE_LOG_LEVEL" envDefault:"info"`

	// FallbackEnabled controls whether protocol failures are masked with
	// simulated responses.
	FallbackEnabled bool `env:"TOOLBRIDGE_FALLBACK" envDefault:"true"`
}

// ParseSettings loads settings from environment variables.
func ParseSettings() (*Settings, error) {
	var settings Settings
	if err := env.Parse(&settings); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &settings, nil
}

// SlogLevel maps the configured log level onto a slog level. Unknown
// values select info.
func (s *Settings) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
