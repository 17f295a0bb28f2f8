package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Group] failed or had an
// open circuit breaker.
var ErrAllFailed = errors.New("resilience: all providers failed")

// Entry is one member of a [Group].
type Entry[T any] struct {
	Name    string
	Value   T
	Breaker *CircuitBreaker
}

// Group holds a primary and zero or more fallbacks of the same provider type,
// each behind its own breaker. Entries are tried in registration order.
type Group[T any] struct {
	entries []Entry[T]
	cfg     CircuitBreakerConfig
	log     *slog.Logger
}

// NewGroup creates a [Group] with primary as the first entry. cfg is the
// template for every entry's breaker; its Name is replaced per entry and
// context cancellation never counts as a failure.
func NewGroup[T any](primaryName string, primary T, cfg CircuitBreakerConfig) *Group[T] {
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &Group[T]{cfg: cfg, log: cfg.Logger}
	g.Add(primaryName, primary)
	return g
}

// Add appends a fallback. Not safe to call concurrently with [Do].
func (g *Group[T]) Add(name string, v T) {
	cb := g.cfg
	cb.Name = name
	g.entries = append(g.entries, Entry[T]{Name: name, Value: v, Breaker: NewCircuitBreaker(cb)})
}

// Entries returns the members in the order they are tried.
func (g *Group[T]) Entries() []Entry[T] { return g.entries }

// Do calls fn on each entry in turn until one succeeds. fn receives the
// entry's done callback and must invoke it exactly once, either right away
// or, for calls whose outcome is only known later, when that outcome is
// known. A failing entry is logged and the next one is tried, unless ctx has
// ended, in which case ctx's error is returned.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(e Entry[T], done func(error)) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	for _, e := range g.entries {
		done, err := e.Breaker.Allow()
		if err != nil {
			g.log.Debug("skipping provider, circuit open", "provider", e.Name)
			lastErr = fmt.Errorf("%s: %w", e.Name, err)
			continue
		}
		res, err := fn(e, done)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		lastErr = fmt.Errorf("%s: %w", e.Name, err)
		g.log.Warn("provider failed, trying next", "provider", e.Name, "err", err)
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
