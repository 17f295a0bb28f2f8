// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (OpenAI tts-1, Sarvam
// bulbul, ElevenLabs) and turns one bounded piece of text into one clip of
// PCM audio. Providers advertise a per-request character limit; callers are
// responsible for chunking longer text before calling Synthesize.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/curtaincall/pkg/audio"
)

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req.Text with req.Voice and returns the decoded audio.
	// Text longer than MaxChars is rejected. A non-success response from the
	// service is returned as an error; there are no retries.
	Synthesize(ctx context.Context, req Request) (audio.Clip, error)

	// MaxChars is the per-request character limit, counted in runes.
	MaxChars() int

	// Casting returns the provider's default narrator voice and the pools used
	// to assign character and solo-performer voices.
	Casting() Casting

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
