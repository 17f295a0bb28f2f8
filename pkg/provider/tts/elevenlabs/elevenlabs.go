// Package elevenlabs provides an ElevenLabs-backed TTS provider using the
// ElevenLabs stream-input WebSocket API. Each Synthesize call opens one
// socket, sends the whole chunk, flushes, and collects PCM until the service
// marks the final frame.
package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

const (
	wsEndpointFmt    = "wss://api.elevenlabs.io/v1/text-to-speech/%s/stream-input?model_id=%s&output_format=%s"
	voicesEndpoint   = "https://api.elevenlabs.io/v1/voices"
	defaultModel     = "eleven_multilingual_v2"
	defaultOutputFmt = "pcm_24000"
	maxChars         = 5000
	defaultTimeout   = 30 * time.Second
)

// Premade voices available on every account.
const (
	VoiceAdam   = "pNInz6obpgDQGcFmaJgB"
	VoiceRachel = "21m00Tcm4TlvDq8ikWAM"
	VoiceAntoni = "ErXwobaYiN019PkySvjV"
	VoiceBella  = "EXAVITQu4vr4xnSDxMaL"
	VoiceJosh   = "TxGEqnHWrfWFTfGW9XJX"
	VoiceElli   = "MF3mGyEYCl7XYWbV7PMO"
	VoiceArnold = "VR6AewLTigWG4xSOukaG"
	VoiceDomi   = "AZnzlk1XvdvUeBnXmlld"
)

// Option is a functional option for configuring the ElevenLabs Provider.
type Option func(*Provider)

// WithModel sets the ElevenLabs model ID (e.g., "eleven_flash_v2_5").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithOutputFormat sets the PCM output format ("pcm_16000", "pcm_24000", ...).
func WithOutputFormat(format string) Option {
	return func(p *Provider) { p.outputFormat = format }
}

// WithNarrator sets the narrator voice id reported by Casting.
func WithNarrator(voiceID string) Option {
	return func(p *Provider) { p.narrator = voiceID }
}

// WithEndpoints overrides the WebSocket URL format and the voices URL.
// wsFormat receives voice id, model and output format, in that order.
func WithEndpoints(wsFormat, voicesURL string) Option {
	return func(p *Provider) {
		p.wsFormat = wsFormat
		p.voicesURL = voicesURL
	}
}

// WithTimeout bounds each synthesis request (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements tts.Provider backed by the ElevenLabs streaming API.
type Provider struct {
	apiKey       string
	model        string
	outputFormat string
	narrator     string
	wsFormat     string
	voicesURL    string
	timeout      time.Duration
	httpClient   *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new ElevenLabs Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("elevenlabs: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		model:        defaultModel,
		outputFormat: defaultOutputFmt,
		narrator:     VoiceAdam,
		wsFormat:     wsEndpointFmt,
		voicesURL:    voicesEndpoint,
		timeout:      defaultTimeout,
		httpClient:   &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if _, err := sampleRate(p.outputFormat); err != nil {
		return nil, err
	}
	return p, nil
}

// sampleRate parses "pcm_<rate>" output formats. Only raw PCM is supported so
// that chunks can be concatenated without decoding.
func sampleRate(outputFormat string) (int, error) {
	rate, ok := strings.CutPrefix(outputFormat, "pcm_")
	if !ok {
		return 0, fmt.Errorf("elevenlabs: output format %q is not raw PCM", outputFormat)
	}
	n, err := strconv.Atoi(rate)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("elevenlabs: invalid sample rate in output format %q", outputFormat)
	}
	return n, nil
}

// ---- WebSocket message types ----

type textMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
}

type audioResponse struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// boiMessage is the initial "begin of input" handshake.
type boiMessage struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	XiAPIKey      string         `json:"xi_api_key"`
}

func settingsFor(d tts.Delivery) *voiceSettings {
	if d == tts.DeliveryComedian {
		return &voiceSettings{Stability: 0.35, SimilarityBoost: 0.75, Style: 0.6}
	}
	return &voiceSettings{Stability: 0.5, SimilarityBoost: 0.75}
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	if err := tts.CheckLength("elevenlabs", req.Text, maxChars); err != nil {
		return audio.Clip{}, err
	}
	if req.Voice == "" {
		return audio.Clip{}, errors.New("elevenlabs: voice must not be empty")
	}
	rate, _ := sampleRate(p.outputFormat)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, buildURLForVoice(p.wsFormat, req.Voice, p.model, p.outputFormat), nil)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("elevenlabs: dial: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(4 << 20)

	// ElevenLabs requires a non-empty first text value.
	outbound := []any{
		boiMessage{Text: " ", VoiceSettings: settingsFor(req.Delivery), XiAPIKey: p.apiKey},
		textMessage{Text: req.Text + " "},
		textMessage{Text: ""},
	}
	for _, m := range outbound {
		b, err := json.Marshal(m)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: encode message: %w", err)
		}
		if err := conn.Write(ctx, websocket.MessageText, b); err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: send: %w", err)
		}
	}

	var pcm []byte
	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				break
			}
			return audio.Clip{}, fmt.Errorf("elevenlabs: read: %w", err)
		}
		var resp audioResponse
		if err := json.Unmarshal(msg, &resp); err != nil {
			return audio.Clip{}, fmt.Errorf("elevenlabs: decode message: %w", err)
		}
		if resp.Error != "" {
			return audio.Clip{}, fmt.Errorf("elevenlabs: %s: %s", resp.Error, resp.Message)
		}
		if resp.Audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(resp.Audio)
			if err != nil {
				return audio.Clip{}, fmt.Errorf("elevenlabs: decode audio: %w", err)
			}
			pcm = append(pcm, chunk...)
		}
		if resp.IsFinal {
			break
		}
	}
	conn.Close(websocket.StatusNormalClosure, "done")

	if len(pcm) == 0 {
		return audio.Clip{}, errors.New("elevenlabs: no audio received")
	}
	pcm = pcm[:len(pcm)-len(pcm)%2]
	return audio.Clip{
		PCM:    pcm,
		Format: audio.Format{SampleRate: rate, Channels: 1, BitsPerSample: 16},
	}, nil
}

// MaxChars implements tts.Provider.
func (p *Provider) MaxChars() int { return maxChars }

// Casting implements tts.Provider using the premade voices.
func (p *Provider) Casting() tts.Casting {
	all := []string{VoiceAdam, VoiceRachel, VoiceAntoni, VoiceBella, VoiceJosh, VoiceElli, VoiceArnold, VoiceDomi}
	chars := make([]string, 0, len(all))
	for _, v := range all {
		if v != p.narrator {
			chars = append(chars, v)
		}
	}
	return tts.Casting{Narrator: p.narrator, Characters: chars, Soloists: all}
}

// ---- ListVoices ----

type voicesResponse struct {
	Voices []elevenLabsVoice `json:"voices"`
}

type elevenLabsVoice struct {
	VoiceID  string            `json:"voice_id"`
	Name     string            `json:"name"`
	Category string            `json:"category"`
	Labels   map[string]string `json:"labels"`
}

// ListVoices returns all voices available from ElevenLabs for the configured API key.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.voicesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices: %w", err)
	}
	req.Header.Set("xi-api-key", p.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("elevenlabs: list voices: unexpected status %d", resp.StatusCode)
	}

	var vr voicesResponse
	if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("elevenlabs: list voices decode: %w", err)
	}
	return toProfiles(vr), nil
}

func toProfiles(vr voicesResponse) []tts.VoiceProfile {
	profiles := make([]tts.VoiceProfile, 0, len(vr.Voices))
	for _, v := range vr.Voices {
		meta := make(map[string]string, len(v.Labels)+1)
		for k, val := range v.Labels {
			meta[k] = val
		}
		if v.Category != "" {
			meta["category"] = v.Category
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.VoiceID,
			Name:     v.Name,
			Provider: "elevenlabs",
			Gender:   v.Labels["gender"],
			Metadata: meta,
		})
	}
	return profiles
}

func buildURLForVoice(format, voiceID, model, outputFormat string) string {
	return fmt.Sprintf(format, voiceID, model, outputFormat)
}
