// Package mock provides a test double for the llm.Provider interface.
//
// Responses are scripted per call: the n-th StreamCompletion receives
// Responses[n], and once the script runs out the last entry repeats. This makes
// it straightforward to model a backend that always truncates, or one that
// truncates twice and then finishes.
//
//	p := &mock.Provider{Responses: []mock.Response{
//	    {Text: "ACT ONE", FinishReason: llm.FinishLength},
//	    {Text: " ends.", FinishReason: llm.FinishStop},
//	}}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/curtaincall/pkg/provider/llm"
)

// Response is one scripted reply.
type Response struct {
	// Text is split into Chunks of at most ChunkSize runes (whole text when zero).
	Text string

	// FinishReason is attached to the last chunk.
	FinishReason string

	// StartErr, if non-nil, is returned from StreamCompletion and Complete.
	StartErr error

	// StreamErr, if non-empty, is emitted as a FinishError chunk after Text.
	StreamErr string
}

// Call records one request made to the provider.
type Call struct {
	Ctx       context.Context
	Req       llm.CompletionRequest
	Streaming bool
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// Responses is consumed in call order across StreamCompletion and Complete.
	Responses []Response

	// ChunkSize splits each response into several chunks when positive.
	ChunkSize int

	// ModelCapabilities is returned by Capabilities.
	ModelCapabilities llm.ModelCapabilities

	// Calls records every request in order. Messages are deep-copied.
	Calls []Call
}

var _ llm.Provider = (*Provider)(nil)

func (p *Provider) next(ctx context.Context, req llm.CompletionRequest, streaming bool) Response {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]llm.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs

	idx := len(p.Calls)
	p.Calls = append(p.Calls, Call{Ctx: ctx, Req: req, Streaming: streaming})

	if len(p.Responses) == 0 {
		return Response{FinishReason: llm.FinishStop}
	}
	if idx >= len(p.Responses) {
		idx = len(p.Responses) - 1
	}
	return p.Responses[idx]
}

// StreamCompletion records the call and streams the next scripted response.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	resp := p.next(ctx, req, true)
	if resp.StartErr != nil {
		return nil, resp.StartErr
	}

	chunks := split(resp.Text, p.ChunkSize)
	if len(chunks) == 0 {
		chunks = []llm.Chunk{{}}
	}
	chunks[len(chunks)-1].FinishReason = resp.FinishReason
	if resp.StreamErr != "" {
		chunks = append(chunks, llm.Chunk{Text: resp.StreamErr, FinishReason: llm.FinishError})
	}

	ch := make(chan llm.Chunk, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case <-ctx.Done():
				return
			case ch <- c:
			}
		}
	}()
	return ch, nil
}

// Complete records the call and returns the next scripted response whole.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp := p.next(ctx, req, false)
	if resp.StartErr != nil {
		return nil, resp.StartErr
	}
	return &llm.CompletionResponse{Content: resp.Text, FinishReason: resp.FinishReason}, nil
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return p.ModelCapabilities
}

// CallCount returns the number of requests made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Request returns a copy of the i-th recorded request.
func (p *Provider) Request(i int) llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls[i].Req
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

func split(text string, size int) []llm.Chunk {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if size <= 0 || size >= len(runes) {
		return []llm.Chunk{{Text: text}}
	}
	var out []llm.Chunk
	for len(runes) > 0 {
		n := min(size, len(runes))
		out = append(out, llm.Chunk{Text: string(runes[:n])})
		runes = runes[n:]
	}
	return out
}
