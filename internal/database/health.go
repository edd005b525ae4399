package database

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned by HealthChecker while the breaker is open.
var ErrUnavailable = errors.New("database unavailable")

// Pinger checks connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckerConfig holds configuration for the health checker.
type HealthCheckerConfig struct {
	// Timeout bounds a single ping.
	// Default: 2 seconds
	Timeout time.Duration

	// FailureThreshold is the number of consecutive failed pings that opens the breaker.
	// Default: 3
	FailureThreshold uint32

	// OpenTimeout is how long the breaker stays open before probing again.
	// Default: 30 seconds
	OpenTimeout time.Duration

	// Logger receives breaker state changes.
	Logger zerolog.Logger
}

// HealthChecker pings the database through a circuit breaker so readiness
// probes fail fast while the database is down.
type HealthChecker struct {
	pinger  Pinger
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewHealthChecker creates a health checker around pinger.
func NewHealthChecker(pinger Pinger, cfg HealthCheckerConfig) *HealthChecker {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	threshold := cfg.FailureThreshold
	logger := cfg.Logger
	settings := gobreaker.Settings{
		Name:        "database",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	}

	return &HealthChecker{
		pinger:  pinger,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker[struct{}](settings),
	}
}

// Check pings the database. It returns ErrUnavailable without pinging while
// the breaker is open.
func (h *HealthChecker) Check(ctx context.Context) error {
	_, err := h.breaker.Execute(func() (struct{}, error) {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		return struct{}{}, h.pinger.Ping(pingCtx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrUnavailable
	}
	return err
}

// State returns the breaker state name: closed, half-open or open.
func (h *HealthChecker) State() string {
	return h.breaker.State().String()
}
