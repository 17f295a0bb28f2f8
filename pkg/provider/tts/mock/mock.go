// Package mock provides a test double for the tts.Provider interface.
//
// By default every Synthesize call returns a clip whose length is derived from
// the input text, so tests can assert exact durations. Set ClipFunc for full
// control, or FailOn to inject an error at a specific call.
//
//	p := &mock.Provider{Limit: 40}
//	clip, _ := p.Synthesize(ctx, tts.Request{Text: "Hello.", Voice: "fable"})
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Limit is returned by MaxChars. Zero means 4000.
	Limit int

	// CastingResult is returned by Casting.
	CastingResult tts.Casting

	// ClipFunc, if set, produces the clip for each call.
	ClipFunc func(req tts.Request) audio.Clip

	// FailOn makes the n-th Synthesize call (1-based) return Err. Zero disables.
	FailOn int

	// Err is returned by the failing call.
	Err error

	// Voices is returned by ListVoices.
	Voices []tts.VoiceProfile

	// Requests records every Synthesize request in order.
	Requests []tts.Request
}

var _ tts.Provider = (*Provider)(nil)

// MillisPerChar is the duration the default clip allocates to each byte of text.
const MillisPerChar = 10

// Synthesize records req and returns a clip of MillisPerChar ms per byte of
// req.Text in the 24 kHz output format, unless ClipFunc or FailOn say otherwise.
func (p *Provider) Synthesize(_ context.Context, req tts.Request) (audio.Clip, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	n := len(p.Requests)
	fn, failOn, err := p.ClipFunc, p.FailOn, p.Err
	p.mu.Unlock()

	if failOn > 0 && n == failOn {
		return audio.Clip{}, err
	}
	if fn != nil {
		return fn(req), nil
	}
	samples := len(req.Text) * MillisPerChar * audio.Output.SampleRate / 1000
	return audio.Clip{PCM: make([]byte, samples*2), Format: audio.Output}, nil
}

// MaxChars returns Limit, or 4000 when unset.
func (p *Provider) MaxChars() int {
	if p.Limit == 0 {
		return 4000
	}
	return p.Limit
}

// Casting returns CastingResult.
func (p *Provider) Casting() tts.Casting { return p.CastingResult }

// ListVoices returns Voices.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	return p.Voices, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tts.Request(nil), p.Requests...)
}
