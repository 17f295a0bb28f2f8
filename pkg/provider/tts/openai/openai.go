// Package openai provides a TTS provider backed by the OpenAI speech API
// (tts-1). Responses are requested as WAV and decoded to PCM.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

const (
	defaultModel = "tts-1"

	// tts-1 accepts up to 4096 characters; stay safely under.
	maxChars = 4000

	defaultTimeout = 30 * time.Second
)

// Built-in voices.
const (
	VoiceAlloy   = "alloy"
	VoiceEcho    = "echo"
	VoiceFable   = "fable"
	VoiceOnyx    = "onyx"
	VoiceNova    = "nova"
	VoiceShimmer = "shimmer"
)

var voiceGenders = map[string]string{
	VoiceAlloy:   "",
	VoiceEcho:    "male",
	VoiceFable:   "male",
	VoiceOnyx:    "male",
	VoiceNova:    "female",
	VoiceShimmer: "female",
}

// Provider implements tts.Provider using the OpenAI speech endpoint.
type Provider struct {
	client  oai.Client
	model   string
	timeout time.Duration
}

var _ tts.Provider = (*Provider)(nil)

type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithModel selects the speech model (default "tts-1").
func WithModel(model string) Option {
	return func(c *config) { c.model = model }
}

// WithTimeout bounds each synthesis request (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs an OpenAI TTS provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	cfg := &config{model: defaultModel, timeout: defaultTimeout}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:  oai.NewClient(reqOpts...),
		model:   cfg.model,
		timeout: cfg.timeout,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	if err := tts.CheckLength("openai tts", req.Text, maxChars); err != nil {
		return audio.Clip{}, err
	}
	if _, ok := voiceGenders[req.Voice]; !ok {
		return audio.Clip{}, fmt.Errorf("openai tts: unknown voice %q", req.Voice)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          req.Text,
		Voice:          oai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return audio.Clip{}, fmt.Errorf("openai tts: speech returned status %d", resp.StatusCode)
	}
	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: read response: %w", err)
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("openai tts: %w", err)
	}
	return clip, nil
}

// MaxChars implements tts.Provider.
func (p *Provider) MaxChars() int { return maxChars }

// Casting implements tts.Provider. Fable narrates; the other five voices are
// cycled for characters. Every voice may perform solo.
func (p *Provider) Casting() tts.Casting {
	return tts.Casting{
		Narrator:   VoiceFable,
		Characters: []string{VoiceAlloy, VoiceEcho, VoiceOnyx, VoiceNova, VoiceShimmer},
		Soloists:   []string{VoiceAlloy, VoiceEcho, VoiceFable, VoiceOnyx, VoiceNova, VoiceShimmer},
	}
}

// ListVoices implements tts.Provider. The OpenAI catalogue is fixed.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	ids := p.Casting().Soloists
	profiles := make([]tts.VoiceProfile, 0, len(ids))
	for _, id := range ids {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       id,
			Name:     id,
			Provider: "openai",
			Gender:   voiceGenders[id],
		})
	}
	return profiles, nil
}
