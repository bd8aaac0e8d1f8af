package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerSettings configures the circuit breaker in front of a backend.
type BreakerSettings struct {
	Name     string
	Fails    int           // consecutive failures before opening
	OpenFor  time.Duration // time spent open before a half-open trial request
	Interval time.Duration // closed-state counter reset period, 0 = never
	// OnStateChange is notified on every transition (optional).
	OnStateChange func(name string, from, to gobreaker.State)
}

// Guarded wraps a Store with a circuit breaker. Keys are validated before
// the breaker is consulted; ErrNotFound and caller cancellations do not
// count as failures.
type Guarded struct {
	next Store
	cb   *gobreaker.CircuitBreaker
}

var _ Store = (*Guarded)(nil)

func NewGuarded(next Store, s BreakerSettings) *Guarded {
	if s.Name == "" {
		s.Name = "store"
	}
	if s.Fails < 1 {
		s.Fails = 5
	}
	if s.OpenFor <= 0 {
		s.OpenFor = 10 * time.Second
	}
	fails := uint32(s.Fails)
	return &Guarded{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:     s.Name,
			Interval: s.Interval,
			Timeout:  s.OpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
			OnStateChange: s.OnStateChange,
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, ErrNotFound) ||
					errors.Is(err, ErrInvalidKey) ||
					errors.Is(err, context.Canceled)
			},
		}),
	}
}

// State exposes the breaker state for health reporting.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

func (g *Guarded) Snapshot(ctx context.Context) ([]Entry, error) {
	res, err := g.cb.Execute(func() (any, error) {
		return g.next.Snapshot(ctx)
	})
	if err != nil {
		return nil, g.wrap(err)
	}
	return res.([]Entry), nil
}

func (g *Guarded) Update(ctx context.Context, key string, fields map[string]any) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.next.Update(ctx, key, fields)
	})
	return g.wrap(err)
}

func (g *Guarded) Put(ctx context.Context, key string, fields map[string]any) error {
	if err := ValidKey(key); err != nil {
		return err
	}
	_, err := g.cb.Execute(func() (any, error) {
		return nil, g.next.Put(ctx, key, fields)
	})
	return g.wrap(err)
}

func (g *Guarded) Close() error { return g.next.Close() }

func (g *Guarded) wrap(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s breaker %v", ErrUnavailable, g.cb.Name(), err)
	}
	return err
}
