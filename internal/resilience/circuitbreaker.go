// Package resilience keeps one failing language model from stalling every
// play.
//
// Each backend sits behind a [CircuitBreaker], a three-state breaker
// (closed, open, half-open). [Group] orders a primary and its fallbacks and
// moves on to the next healthy entry when a call cannot be started.
// [LLMFallback] exposes a group as an ordinary llm.Provider.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Allow] while the breaker is
// open and the reset timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [CircuitBreaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls with [ErrCircuitOpen] until the reset timeout
	// elapses.
	StateOpen

	// StateHalfOpen lets a limited number of trial calls through. Enough
	// successes close the breaker; any failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds tuning knobs for a [CircuitBreaker].
type CircuitBreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// MaxFailures is the number of consecutive failures in the closed state
	// before the breaker opens. Default: 3.
	MaxFailures int

	// ResetTimeout is how long the breaker stays open before it lets trial calls
	// through. Default: 30s.
	ResetTimeout time.Duration

	// HalfOpenMax is the number of trial calls allowed in the half-open state
	// and the number of successes needed to close again. Default: 1.
	HalfOpenMax int

	// IsFailure decides whether an error counts against the breaker. When nil
	// every non-nil error counts.
	IsFailure func(error) bool

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// CircuitBreaker implements the three-state circuit breaker pattern. Calls
// are admitted with [CircuitBreaker.Allow] and reported through the returned
// function, which lets the outcome of a long stream be recorded when it ends
// rather than when it starts.
type CircuitBreaker struct {
	name         string
	maxFailures  int
	resetTimeout time.Duration
	halfOpenMax  int
	isFailure    func(error) bool
	now          func() time.Time
	log          *slog.Logger

	mu              sync.Mutex
	state           State
	consecutiveFail int
	openedAt        time.Time
	trials          int
	trialSuccesses  int
}

// NewCircuitBreaker creates a [CircuitBreaker]. Zero-value config fields are
// replaced with defaults.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMax <= 0 {
		cfg.HalfOpenMax = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return err != nil }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CircuitBreaker{
		name:         cfg.Name,
		maxFailures:  cfg.MaxFailures,
		resetTimeout: cfg.ResetTimeout,
		halfOpenMax:  cfg.HalfOpenMax,
		isFailure:    cfg.IsFailure,
		now:          cfg.Now,
		log:          cfg.Logger,
		state:        StateClosed,
	}
}

// Allow admits one call. It returns [ErrCircuitOpen] when the call must not
// be made. Otherwise the caller must invoke done exactly once with the
// call's outcome.
func (cb *CircuitBreaker) Allow() (done func(error), err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.resetTimeout {
			return nil, ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.trials = 0
		cb.trialSuccesses = 0
		cb.log.Info("circuit breaker half-open", "name", cb.name)
	}

	trial := cb.state == StateHalfOpen
	if trial {
		if cb.trials >= cb.halfOpenMax {
			return nil, ErrCircuitOpen
		}
		cb.trials++
	}

	var once sync.Once
	return func(err error) {
		once.Do(func() { cb.record(trial, err) })
	}, nil
}

// Execute runs fn if the breaker admits it and records the result.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	done, err := cb.Allow()
	if err != nil {
		return err
	}
	err = fn()
	done(err)
	return err
}

func (cb *CircuitBreaker) record(trial bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if !cb.isFailure(err) {
		if !trial {
			cb.consecutiveFail = 0
			return
		}
		// A trial can finish after another trial already re-opened the breaker.
		if cb.state != StateHalfOpen {
			return
		}
		cb.trialSuccesses++
		if cb.trialSuccesses >= cb.halfOpenMax {
			cb.state = StateClosed
			cb.consecutiveFail = 0
			cb.log.Info("circuit breaker closed", "name", cb.name)
		}
		return
	}

	if trial {
		cb.trip()
		cb.log.Warn("circuit breaker re-opened", "name", cb.name, "err", err)
		return
	}
	cb.consecutiveFail++
	if cb.state == StateClosed && cb.consecutiveFail >= cb.maxFailures {
		cb.trip()
		cb.log.Warn("circuit breaker opened", "name", cb.name, "consecutive_failures", cb.consecutiveFail, "err", err)
	}
}

// trip opens the breaker. cb.mu must be held.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.trials = 0
	cb.trialSuccesses = 0
}

// State returns the current state. An open breaker whose reset timeout has
// elapsed reports [StateHalfOpen]; the transition itself happens on the next
// [CircuitBreaker.Allow].
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.resetTimeout {
		return StateHalfOpen
	}
	return cb.state
}

// Reset forces the breaker back to [StateClosed].
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.consecutiveFail = 0
	cb.trials = 0
	cb.trialSuccesses = 0
}
