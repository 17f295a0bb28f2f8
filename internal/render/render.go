// Package render turns a parsed script into one continuous WAV file.
//
// Segments are synthesised strictly in script order, one TTS request at a
// time. Text longer than the provider's per-request limit is split at
// sentence boundaries first. A short silence follows every segment, longer
// after headings. Any synthesis failure aborts the whole render; partial audio
// is never returned.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/script"
	"github.com/MrWong99/curtaincall/internal/voice"
	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Defaults applied when the corresponding [Renderer] field is zero.
const (
	DefaultDialogueSilence = 300 * time.Millisecond
	DefaultHeadingSilence  = 800 * time.Millisecond
	DefaultTimeout         = 30 * time.Second
)

// Comedian is the voice-map key used for single-performer renders.
const Comedian = "COMEDIAN"

// EventKind discriminates render events.
type EventKind string

const (
	KindProgress EventKind = "progress"
	KindDone     EventKind = "done"
	KindError    EventKind = "error"
)

// Event is one item in a render stream. A stream carries zero or more
// progress events followed by exactly one done or error event.
type Event struct {
	Kind EventKind

	// Progress: 1-based position of the unit about to be synthesised.
	Current int
	Total   int
	Speaker string

	// Done.
	WAV      []byte
	VoiceMap map[string]string
	Duration time.Duration

	Err error
}

// MarshalJSON encodes the event for clients. The WAV payload is reported by
// size only; clients fetch the audio separately.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind       EventKind         `json:"kind"`
		Current    int               `json:"current,omitempty"`
		Total      int               `json:"total,omitempty"`
		Speaker    string            `json:"speaker,omitempty"`
		Bytes      int               `json:"bytes,omitempty"`
		DurationMS int64             `json:"duration_ms,omitempty"`
		VoiceMap   map[string]string `json:"voice_map,omitempty"`
		Error      string            `json:"error,omitempty"`
	}
	w := wire{
		Kind:       e.Kind,
		Current:    e.Current,
		Total:      e.Total,
		Speaker:    e.Speaker,
		Bytes:      len(e.WAV),
		DurationMS: e.Duration.Milliseconds(),
		VoiceMap:   e.VoiceMap,
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	return json.Marshal(w)
}

// SegmentError reports which segment failed to synthesise.
type SegmentError struct {
	// Index is the 0-based position of the segment in the input.
	Index   int
	Speaker string
	Err     error
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("render: segment %d (%s): %v", e.Index, e.Speaker, e.Err)
}

func (e *SegmentError) Unwrap() error { return e.Err }

// Renderer synthesises scripts through one TTS provider.
type Renderer struct {
	TTS tts.Provider

	// Provider labels metrics. Defaults to "tts".
	Provider string

	// Language is passed to the provider with every request.
	Language string

	DialogueSilence time.Duration
	HeadingSilence  time.Duration

	// Timeout bounds each synthesis request.
	Timeout time.Duration

	// Format is the output format. Zero selects [audio.Output].
	Format audio.Format

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

func (r *Renderer) format() audio.Format {
	if r.Format == (audio.Format{}) {
		return audio.Output
	}
	return r.Format
}

func (r *Renderer) metrics() *observe.Metrics {
	if r.Metrics != nil {
		return r.Metrics
	}
	return observe.DefaultMetrics()
}

func (r *Renderer) providerName() string {
	if r.Provider != "" {
		return r.Provider
	}
	return "tts"
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// gap returns the silence that follows a segment of type t.
func (r *Renderer) gap(t script.SegmentType) time.Duration {
	if t == script.Heading {
		return orDefault(r.HeadingSilence, DefaultHeadingSilence)
	}
	return orDefault(r.DialogueSilence, DefaultDialogueSilence)
}

// RenderPlay synthesises segments with one voice per speaker taken from
// voices. An empty segment list is an error wrapping [script.ErrEmptyScript].
func (r *Renderer) RenderPlay(ctx context.Context, segments []script.Segment, voices *voice.Assigner) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		res, err := r.renderPlay(ctx, segments, voices, out)
		r.finish(ctx, out, res, err)
	}()
	return out
}

// RenderMonologue synthesises text as one continuous performance in a single
// voice with comedian delivery and no inserted silence.
func (r *Renderer) RenderMonologue(ctx context.Context, text, voiceID string) <-chan Event {
	out := make(chan Event, 8)
	go func() {
		defer close(out)
		res, err := r.renderMonologue(ctx, text, voiceID, out)
		r.finish(ctx, out, res, err)
	}()
	return out
}

func (r *Renderer) finish(ctx context.Context, out chan<- Event, res Result, err error) {
	ev := Event{Kind: KindDone, WAV: res.WAV, VoiceMap: res.VoiceMap, Duration: res.Duration}
	if err != nil {
		ev = Event{Kind: KindError, Err: err}
	}
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}

func (r *Renderer) progress(ctx context.Context, out chan<- Event, current, total int, speaker string) error {
	select {
	case out <- Event{Kind: KindProgress, Current: current, Total: total, Speaker: speaker}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Renderer) renderPlay(ctx context.Context, segments []script.Segment, voices *voice.Assigner, out chan<- Event) (res Result, err error) {
	if len(segments) == 0 {
		return Result{}, fmt.Errorf("render: %w", script.ErrEmptyScript)
	}
	ctx, span := observe.StartSpan(ctx, "render.play", trace.WithAttributes(
		attribute.Int("render.segments", len(segments)),
	))
	defer func() { observe.EndSpan(span, err) }()
	start := time.Now()

	log := observe.With(ctx, r.Logger)
	buf := audio.NewBuffer(r.format())
	defer func() {
		if err != nil {
			buf.Discard()
		}
	}()

	for i, seg := range segments {
		if err := r.progress(ctx, out, i+1, len(segments), seg.Speaker); err != nil {
			return Result{}, err
		}
		v := voices.Voice(seg.Speaker)
		if err := r.speak(ctx, buf, seg.Text, v, tts.DeliveryEnsemble); err != nil {
			return Result{}, &SegmentError{Index: i, Speaker: seg.Speaker, Err: err}
		}
		if err := buf.AppendSilence(r.gap(seg.Type)); err != nil {
			return Result{}, err
		}
		r.metrics().RecordSegment(ctx, string(seg.Type))
	}

	dur := buf.Duration()
	wav, err := buf.Finalize()
	if err != nil {
		return Result{}, err
	}
	r.metrics().RenderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("mode", "ensemble")))
	vm := voices.Map()
	log.Info("play rendered", "segments", len(segments), "characters", len(vm), "audio", dur)
	return Result{WAV: wav, VoiceMap: vm, Duration: dur}, nil
}

func (r *Renderer) renderMonologue(ctx context.Context, text, voiceID string, out chan<- Event) (res Result, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("render: %w", script.ErrNoText)
	}
	chunks := script.Chunk(text, r.TTS.MaxChars())
	ctx, span := observe.StartSpan(ctx, "render.monologue", trace.WithAttributes(
		attribute.Int("render.chunks", len(chunks)),
	))
	defer func() { observe.EndSpan(span, err) }()
	start := time.Now()

	buf := audio.NewBuffer(r.format())
	defer func() {
		if err != nil {
			buf.Discard()
		}
	}()

	for i, chunk := range chunks {
		if err := r.progress(ctx, out, i+1, len(chunks), Comedian); err != nil {
			return Result{}, err
		}
		if err := r.synthesize(ctx, buf, chunk, voiceID, tts.DeliveryComedian); err != nil {
			return Result{}, &SegmentError{Index: i, Speaker: Comedian, Err: err}
		}
	}

	dur := buf.Duration()
	wav, err := buf.Finalize()
	if err != nil {
		return Result{}, err
	}
	r.metrics().RenderDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("mode", "monologue")))
	observe.With(ctx, r.Logger).Info("monologue rendered", "chunks", len(chunks), "audio", dur)
	return Result{WAV: wav, VoiceMap: map[string]string{Comedian: voiceID}, Duration: dur}, nil
}

// speak synthesises text, split into provider-sized chunks, into buf.
func (r *Renderer) speak(ctx context.Context, buf *audio.Buffer, text, voiceID string, d tts.Delivery) error {
	for _, chunk := range script.Chunk(text, r.TTS.MaxChars()) {
		if err := r.synthesize(ctx, buf, chunk, voiceID, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) synthesize(ctx context.Context, buf *audio.Buffer, text, voiceID string, d tts.Delivery) error {
	ctx, cancel := context.WithTimeout(ctx, orDefault(r.Timeout, DefaultTimeout))
	defer cancel()

	m := r.metrics()
	start := time.Now()
	clip, err := r.TTS.Synthesize(ctx, tts.Request{
		Text:     text,
		Voice:    voiceID,
		Language: r.Language,
		Delivery: d,
	})
	m.TTSDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("provider", r.providerName())))
	if err != nil {
		m.RecordProviderRequest(ctx, r.providerName(), "tts", "error")
		m.RecordProviderError(ctx, r.providerName(), "tts")
		return err
	}
	m.RecordProviderRequest(ctx, r.providerName(), "tts", "ok")
	return buf.Append(clip)
}

// Result is the outcome of a successful render.
type Result struct {
	WAV      []byte
	VoiceMap map[string]string
	Duration time.Duration
}

// ErrNoResult is returned by Collect when the stream closes without a done or
// error event, which happens when the render context is cancelled.
var ErrNoResult = errors.New("render: stream ended without a result")

// Collect drains a render stream. onProgress, when non-nil, is called for
// every progress event.
func Collect(events <-chan Event, onProgress func(Event)) (Result, error) {
	var (
		res Result
		err = ErrNoResult
	)
	for ev := range events {
		switch ev.Kind {
		case KindProgress:
			if onProgress != nil {
				onProgress(ev)
			}
		case KindDone:
			res, err = Result{WAV: ev.WAV, VoiceMap: ev.VoiceMap, Duration: ev.Duration}, nil
		case KindError:
			err = ev.Err
		}
	}
	return res, err
}
