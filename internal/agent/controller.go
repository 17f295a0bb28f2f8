package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/prompt"
	"github.com/MrWong99/curtaincall/pkg/provider/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxContinuations is the continuation budget used when
// [Controller.MaxContinuations] is zero.
const DefaultMaxContinuations = 4

// ProviderError reports a failure returned by the LLM backend, as opposed to
// a precondition failure or a cancelled context. Provider errors are never
// retried.
type ProviderError struct {
	// Provider names the backend ("anthropic", "openai", ...).
	Provider string

	// Role is the agent role the call was made for.
	Role string

	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s (%s): %v", e.Provider, e.Role, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Call describes one logical request to the model.
type Call struct {
	// Role names the agent ("writer", "director", "playwright", "critic").
	// It labels metrics, logs and errors.
	Role string

	// Round is copied onto every chunk event emitted for this call.
	Round int

	System string

	// History is the conversation so far. It is not modified.
	History []llm.Message

	// User is the message that drives this response.
	User string

	// MaxTokens is the output ceiling for each network call.
	MaxTokens int

	// ContinuePrompt names the prompt sent to resume a truncated response.
	// Defaults to [prompt.ContinueScript].
	ContinuePrompt string

	// Subject is how warnings refer to the text being written ("Script",
	// "Play"). Defaults to "Script".
	Subject string
}

// Result is the outcome of a single streamed call.
type Result struct {
	Text string

	// FinishReason is the normalised reason reported by the provider.
	FinishReason string

	// Truncated is true when the response stopped at the output ceiling.
	Truncated bool
}

// Controller performs streamed LLM calls on behalf of the agent loops.
// The zero value is not usable; LLM must be set.
type Controller struct {
	LLM llm.Provider

	// Provider labels metrics and errors. Defaults to "llm".
	Provider string

	// MaxContinuations is the number of extra calls allowed after a truncated
	// response. Zero selects [DefaultMaxContinuations]; a negative value
	// disables continuation.
	MaxContinuations int

	// Temperature is passed to every request. Zero keeps the backend default.
	Temperature float64

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

func (c *Controller) budget() int {
	switch {
	case c.MaxContinuations == 0:
		return DefaultMaxContinuations
	case c.MaxContinuations < 0:
		return 0
	}
	return c.MaxContinuations
}

func (c *Controller) metrics() *observe.Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return observe.DefaultMetrics()
}

func (c *Controller) providerName() string {
	if c.Provider != "" {
		return c.Provider
	}
	return "llm"
}

func (c *Controller) request(call Call) llm.CompletionRequest {
	msgs := make([]llm.Message, 0, len(call.History)+1)
	msgs = append(msgs, call.History...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: call.User})
	return llm.CompletionRequest{
		SystemPrompt: call.System,
		Messages:     msgs,
		MaxTokens:    call.MaxTokens,
		Temperature:  c.Temperature,
	}
}

// Stream performs exactly one streamed call. Every non-empty text fragment is
// passed to emit as an event of the given kind. A failed stream start or an
// error chunk is returned as a [*ProviderError]; an emit failure or context
// cancellation is returned as is.
func (c *Controller) Stream(ctx context.Context, call Call, kind Kind, emit Emit) (res Result, err error) {
	ctx, span := observe.StartSpan(ctx, "llm.stream", trace.WithAttributes(
		attribute.String("llm.provider", c.providerName()),
		attribute.String("agent.role", call.Role),
		attribute.Int("llm.max_tokens", call.MaxTokens),
	))
	start := time.Now()
	defer func() {
		c.record(ctx, call.Role, start, err)
		span.SetAttributes(attribute.String("llm.finish_reason", res.FinishReason))
		observe.EndSpan(span, err)
	}()

	ch, err := c.LLM.StreamCompletion(ctx, c.request(call))
	if err != nil {
		return Result{}, &ProviderError{Provider: c.providerName(), Role: call.Role, Err: err}
	}

	var sb strings.Builder
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return Result{Text: sb.String()}, ctx.Err()
		case chunk, ok := <-ch:
			if !ok {
				if err := ctx.Err(); err != nil {
					return Result{Text: sb.String()}, err
				}
				return finish(sb.String(), res.FinishReason), nil
			}
			if chunk.FinishReason == llm.FinishError {
				go drain(ch)
				return Result{Text: sb.String()}, &ProviderError{
					Provider: c.providerName(),
					Role:     call.Role,
					Err:      errors.New(chunk.Text),
				}
			}
			if chunk.Text != "" {
				sb.WriteString(chunk.Text)
				if err := emit(Event{Kind: kind, Round: call.Round, Text: chunk.Text}); err != nil {
					go drain(ch)
					return Result{Text: sb.String()}, err
				}
			}
			if chunk.FinishReason != "" {
				res.FinishReason = chunk.FinishReason
			}
		}
	}
}

func finish(text, reason string) Result {
	if reason == "" {
		reason = llm.FinishStop
	}
	return Result{Text: text, FinishReason: reason, Truncated: llm.IsTruncation(reason)}
}

// Continue streams call and keeps asking the model to resume for as long as
// the response is truncated and the continuation budget allows. Each resumed
// call sees the original user message, everything produced so far as an
// assistant turn, and the continuation prompt. A warning event precedes each
// continuation; exhausting the budget emits exactly one further warning and
// returns what was produced. The returned text is the concatenation of every
// partial response in call order.
func (c *Controller) Continue(ctx context.Context, call Call, kind Kind, emit Emit) (string, error) {
	contName := call.ContinuePrompt
	if contName == "" {
		contName = prompt.ContinueScript
	}
	contMsg, err := prompt.Get(contName, nil)
	if err != nil {
		return "", err
	}
	subject := call.Subject
	if subject == "" {
		subject = "Script"
	}

	log := observe.With(ctx, c.Logger).With("role", call.Role)
	budget := c.budget()
	history := append([]llm.Message(nil), call.History...)
	user := call.User
	var acc strings.Builder

	for attempt := 0; ; attempt++ {
		res, err := c.Stream(ctx, Call{
			Role:      call.Role,
			Round:     call.Round,
			System:    call.System,
			History:   history,
			User:      user,
			MaxTokens: call.MaxTokens,
		}, kind, emit)
		if err != nil {
			return acc.String(), err
		}
		acc.WriteString(res.Text)

		if !res.Truncated {
			return acc.String(), nil
		}

		if attempt == budget {
			c.metrics().RecordContinuation(ctx, "limit_reached")
			log.Warn("continuation limit reached", "continuations", budget, "chars", acc.Len())
			msg := fmt.Sprintf("%s is very long and reached the continuation limit (%d). "+
				"It may be slightly incomplete at the very end.", subject, budget)
			if err := emit(Event{Kind: KindWarning, Round: call.Round, Text: msg}); err != nil {
				return acc.String(), err
			}
			return acc.String(), nil
		}

		history = append(history,
			llm.Message{Role: llm.RoleUser, Content: user},
			llm.Message{Role: llm.RoleAssistant, Content: acc.String()},
		)
		user = contMsg

		c.metrics().RecordContinuation(ctx, "fetched")
		log.Debug("response truncated, continuing", "attempt", attempt+1, "budget", budget)
		msg := fmt.Sprintf("%s is long, fetching continuation %d of %d…", subject, attempt+1, budget)
		if err := emit(Event{Kind: KindWarning, Round: call.Round, Text: msg}); err != nil {
			return acc.String(), err
		}
	}
}

// Complete performs one bounded non-streaming call with no continuation.
func (c *Controller) Complete(ctx context.Context, call Call) (res Result, err error) {
	ctx, span := observe.StartSpan(ctx, "llm.complete", trace.WithAttributes(
		attribute.String("llm.provider", c.providerName()),
		attribute.String("agent.role", call.Role),
	))
	start := time.Now()
	defer func() {
		c.record(ctx, call.Role, start, err)
		observe.EndSpan(span, err)
	}()

	resp, err := c.LLM.Complete(ctx, c.request(call))
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, &ProviderError{Provider: c.providerName(), Role: call.Role, Err: err}
	}
	return finish(resp.Content, resp.FinishReason), nil
}

func (c *Controller) record(ctx context.Context, role string, start time.Time, err error) {
	m := c.metrics()
	m.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			attribute.String("provider", c.providerName()),
			attribute.String("role", role),
		),
	)
	status := "ok"
	var perr *ProviderError
	if errors.As(err, &perr) {
		status = "error"
		m.RecordProviderError(ctx, c.providerName(), "llm")
	} else if err != nil {
		status = "cancelled"
	}
	m.RecordProviderRequest(ctx, c.providerName(), "llm", status)
}

// drain discards the remaining chunks so the provider goroutine can exit.
func drain(ch <-chan llm.Chunk) {
	for range ch {
	}
}
