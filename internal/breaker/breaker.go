// Package breaker wraps sony/gobreaker to protect backend I/O (Redis, the
// credential directory) from cascading failures. When a backend starts
// failing, the circuit opens and callers fail fast instead of queueing on a
// dead connection.
package breaker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrOpen is returned when the circuit is open and the call was rejected
// without reaching the backend.
var ErrOpen = errors.New("circuit breaker is open")

// Config holds the circuit breaker tuning knobs.
type Config struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing a probe.
	// Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// Breaker is a named circuit breaker with closed, open, and half-open
// states. The zero value is not usable; construct with New.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a circuit breaker with default configuration.
func New(name string) *Breaker {
	return NewWithConfig(name, Config{})
}

// NewWithConfig creates a circuit breaker with custom configuration.
// Zero-valued fields fall back to the defaults documented on Config.
func NewWithConfig(name string, cfg Config) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			// A caller abandoning its request says nothing about backend
			// health; only real backend failures may trip the circuit.
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the circuit breaker. If the circuit is open it
// returns ErrOpen immediately. A context that is already done is reported
// as the context's error without touching the breaker state.
func (b *Breaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrOpen
		}
		return nil, err
	}
	return result, nil
}

// State returns the current state: "closed", "open", or "half-open".
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
