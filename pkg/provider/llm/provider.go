// Package llm defines the Provider interface for the text-generation backends
// that write and critique scripts.
//
// A provider wraps a remote or local model API (Anthropic Claude, OpenAI,
// Gemini, a local Ollama instance) behind a uniform streaming interface so the
// agent loops never import an SDK directly.
//
// Implementors must be safe for concurrent use. Channels returned by
// StreamCompletion must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package llm

import "context"

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce one response.
// Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is the role instruction sent ahead of the history.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is the
	// user turn that drives the response.
	Messages []Message

	// MaxTokens is the output ceiling for this call. Zero means provider default.
	MaxTokens int

	// Temperature controls randomness. Zero leaves the provider default in place.
	Temperature float64
}

// Chunk is a fragment emitted by a streaming completion.
type Chunk struct {
	// Text is the incremental text content. May be empty on the final chunk.
	Text string

	// FinishReason is set on the final chunk. See the FinishReason constants.
	// When it equals [FinishError], Text holds the error message instead of
	// generated content.
	FinishReason string
}

// CompletionResponse is returned by the non-streaming Complete method.
type CompletionResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// StreamCompletion sends req to the model and returns a channel that emits
	// Chunk values as they arrive. The channel is closed when generation ends
	// or ctx is cancelled. Failures after the stream has started are reported
	// as a Chunk with FinishReason [FinishError]; the error return is non-nil
	// only when the stream could not be opened at all.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan Chunk, error)

	// Complete sends req and waits for the full response.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the configured model.
	Capabilities() ModelCapabilities
}
