// Package agent holds the building blocks shared by the play-writing loops:
// the [Event] stream they produce, per-role conversation [History], and the
// [Controller] that performs streamed LLM calls with automatic continuation
// when a response hits the output ceiling.
//
// The loops themselves live in sub-packages:
//
//   - discussion: a Story Writer and a Director alternate for a fixed number
//     of rounds, then the Director writes the final script.
//   - oneact: a single comedy playwright drafts a micro-play which a
//     comedy director critiques and the playwright revises.
//
// Each loop runs as a producer goroutine that owns its histories and sends
// events on a channel. The channel is closed after the terminal event
// ([KindFinalDone] or [KindError]). Consumers stop a loop by cancelling the
// context passed to Run.
package agent

import (
	"context"
	"encoding/json"
)

// Kind discriminates the variants of [Event].
type Kind string

const (
	// Discussion loop.
	KindRoundStart    Kind = "round_start"
	KindWriterChunk   Kind = "writer_chunk"
	KindWriterDone    Kind = "writer_done"
	KindDirectorChunk Kind = "director_chunk"
	KindDirectorDone  Kind = "director_done"

	// One-act loop.
	KindChunk         Kind = "chunk"
	KindInitialDone   Kind = "initial_done"
	KindCritiqueStart Kind = "critique_start"
	KindCritiqueChunk Kind = "critique_chunk"
	KindCritiqueDone  Kind = "critique_done"
	KindRevisionStart Kind = "revision_start"
	KindRevisionChunk Kind = "revision_chunk"
	KindRevisionDone  Kind = "revision_done"

	// Shared.
	KindWarning   Kind = "warning"
	KindFinalDone Kind = "final_done"
	KindError     Kind = "error"
)

// Terminal reports whether k ends an event stream.
func (k Kind) Terminal() bool {
	return k == KindFinalDone || k == KindError
}

// Event is one item in a loop's output stream. Which fields are set depends
// on Kind: chunk kinds carry an incremental Text fragment, done kinds carry
// the complete text of that step, start kinds carry Round and Total, and
// [KindError] carries Err.
type Event struct {
	Kind  Kind
	Round int
	Total int
	Text  string
	Err   error
}

// MarshalJSON encodes the event for clients, rendering Err as a string.
func (e Event) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind  Kind   `json:"kind"`
		Round int    `json:"round,omitempty"`
		Total int    `json:"total,omitempty"`
		Text  string `json:"text,omitempty"`
		Error string `json:"error,omitempty"`
	}
	w := wire{Kind: e.Kind, Round: e.Round, Total: e.Total, Text: e.Text}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	return json.Marshal(w)
}

// Emit delivers one event to the consumer. It returns a non-nil error when
// the consumer has gone away, in which case the producer must stop.
type Emit func(Event) error

// ChannelEmit returns an [Emit] that sends on ch and gives up when ctx is done.
func ChannelEmit(ctx context.Context, ch chan<- Event) Emit {
	return func(ev Event) error {
		select {
		case ch <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain reads events until the stream closes and returns the text of the
// final_done event, or the error carried by the error event.
func Drain(events <-chan Event) (string, error) {
	var (
		final string
		err   error
	)
	for ev := range events {
		switch ev.Kind {
		case KindFinalDone:
			final = ev.Text
		case KindError:
			err = ev.Err
		}
	}
	return final, err
}
