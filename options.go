package toolbridge

import (
	"log/slog"
	"time"

	"github.com/lodeworks/toolbridge/internal/fallback"
	"github.com/lodeworks/toolbridge/internal/server"
)

// Option configures a Bridge using the functional options pattern.
type Option func(*bridgeOptions)

type bridgeOptions struct {
	logger           *slog.Logger
	requestTimeout   time.Duration
	generator        fallback.Generator
	fallbackDisabled bool
	factory          server.TransportFactory
}

// WithLogger sets the logger for operation tracking.
// If not set, logging is disabled (silent operation).
func WithLogger(logger *slog.Logger) Option {
	return func(o *bridgeOptions) {
		o.logger = logger
	}
}

// WithRequestTimeout sets the global per-request timeout. Tools that
// legitimately run longer than this inherit the fallback behavior instead
// of a longer deadline. Defaults to 30 seconds.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(o *bridgeOptions) {
		o.requestTimeout = timeout
	}
}

// WithFallbackGenerator replaces the default simulated-response generator.
func WithFallbackGenerator(generator fallback.Generator) Option {
	return func(o *bridgeOptions) {
		o.generator = generator
	}
}

// WithFallbackDisabled turns off fallback masking: protocol failures are
// returned to callers as failed results instead of simulated successes.
func WithFallbackDisabled() Option {
	return func(o *bridgeOptions) {
		o.fallbackDisabled = true
	}
}

// WithTransportFactory replaces the process-spawning transport with a
// custom one. Intended for testing and alternative launch mechanisms.
func WithTransportFactory(factory server.TransportFactory) Option {
	return func(o *bridgeOptions) {
		o.factory = factory
	}
}
