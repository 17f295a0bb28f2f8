package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func call(ctx context.Context, g *Group[string], fail map[string]error) (string, error) {
	return Do(ctx, g, func(e Entry[string], done func(error)) (string, error) {
		err := fail[e.Value]
		done(err)
		if err != nil {
			return "", err
		}
		return e.Value, nil
	})
}

func TestGroup_PrimaryFirst(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", "a", CircuitBreakerConfig{})
	g.Add("b", "b")

	got, err := call(context.Background(), g, nil)
	if err != nil || got != "a" {
		t.Errorf("Do = %q, %v; want a", got, err)
	}
}

func TestGroup_Failover(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", "a", CircuitBreakerConfig{})
	g.Add("b", "b")
	g.Add("c", "c")

	got, err := call(context.Background(), g, map[string]error{"a": errTest, "b": errTest})
	if err != nil || got != "c" {
		t.Errorf("Do = %q, %v; want c", got, err)
	}
}

func TestGroup_AllFailed(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", "a", CircuitBreakerConfig{})
	g.Add("b", "b")

	_, err := call(context.Background(), g, map[string]error{"a": errTest, "b": errTest})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, errTest) {
		t.Errorf("err = %v, want ErrAllFailed wrapping errTest", err)
	}
}

func TestGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	g := NewGroup("a", "a", CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now})
	g.Add("b", "b")

	// Trip a.
	if _, err := call(context.Background(), g, map[string]error{"a": errTest}); err != nil {
		t.Fatal(err)
	}
	if got := g.Entries()[0].Breaker.State(); got != StateOpen {
		t.Fatalf("a breaker = %v, want open", got)
	}

	calls := 0
	got, err := Do(context.Background(), g, func(e Entry[string], done func(error)) (string, error) {
		calls++
		done(nil)
		return e.Value, nil
	})
	if err != nil || got != "b" || calls != 1 {
		t.Errorf("Do = %q, %v after %d calls; want b after 1", got, err, calls)
	}

	clock.Advance(time.Minute)
	got, _ = call(context.Background(), g, nil)
	if got != "a" {
		t.Errorf("after reset timeout Do = %q, want a", got)
	}
}

func TestGroup_CancelledContextStops(t *testing.T) {
	t.Parallel()
	g := NewGroup("a", "a", CircuitBreakerConfig{MaxFailures: 1})
	g.Add("b", "b")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := call(ctx, g, map[string]error{"a": context.Canceled})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if got := g.Entries()[0].Breaker.State(); got != StateClosed {
		t.Errorf("cancellation tripped the breaker: %v", got)
	}
}
