package resilience

import (
	"context"
	"errors"

	"github.com/MrWong99/curtaincall/pkg/provider/llm"
)

// LLMFallback implements [llm.Provider] on top of a [Group] of language
// models. Failover happens only when a call cannot be opened. A stream that
// fails part way is reported to the caller as usual and counted against its
// backend's breaker.
type LLMFallback struct {
	group *Group[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred
// backend.
func NewLLMFallback(primaryName string, primary llm.Provider, cfg CircuitBreakerConfig) *LLMFallback {
	return &LLMFallback{group: NewGroup(primaryName, primary, cfg)}
}

// AddFallback registers another backend, tried after those already added.
func (f *LLMFallback) AddFallback(name string, p llm.Provider) {
	f.group.Add(name, p)
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return Do(ctx, f.group, func(e Entry[llm.Provider], done func(error)) (*llm.CompletionResponse, error) {
		resp, err := e.Value.Complete(ctx, req)
		done(err)
		return resp, err
	})
}

// StreamCompletion opens a stream on the first healthy backend. The
// backend's breaker records the outcome when the stream ends.
func (f *LLMFallback) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	return Do(ctx, f.group, func(e Entry[llm.Provider], done func(error)) (<-chan llm.Chunk, error) {
		in, err := e.Value.StreamCompletion(ctx, req)
		if err != nil {
			done(err)
			return nil, err
		}
		out := make(chan llm.Chunk)
		go func() {
			defer close(out)
			var streamErr error
			defer func() { done(streamErr) }()
			for c := range in {
				if c.FinishReason == llm.FinishError {
					streamErr = errors.New(c.Text)
				}
				select {
				case out <- c:
				case <-ctx.Done():
					streamErr = ctx.Err()
					for range in {
					}
					return
				}
			}
		}()
		return out, nil
	})
}

// Capabilities reports the primary backend's capabilities.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	return f.group.entries[0].Value.Capabilities()
}
