// Package sarvam provides a TTS provider backed by the Sarvam AI
// text-to-speech API (bulbul:v3), which covers English and the major Indian
// languages with a catalogue of named speakers.
package sarvam

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

const (
	defaultEndpoint = "https://api.sarvam.ai/text-to-speech"
	defaultModel    = "bulbul:v3"
	sampleRate      = 24000

	// bulbul:v3 accepts up to 2500 characters per call; stay safely under.
	maxChars = 2400

	defaultTimeout = 30 * time.Second

	// NarratorDefault is the narrator used when none is configured.
	NarratorDefault = "kabir"

	defaultLanguageCode = "en-IN"
)

// LanguageCodes maps the human-readable content language to the Sarvam
// target_language_code. Unknown languages fall back to en-IN.
var LanguageCodes = map[string]string{
	"English":         "en-IN",
	"Hindi (हिंदी)":   "hi-IN",
	"Bengali (বাংলা)": "bn-IN",
}

// Speakers is the bulbul:v3 catalogue keyed by the lowercase speaker id the
// API expects, valued by gender ("M" or "F").
var Speakers = map[string]string{
	"shubh": "M", "aditya": "M", "rahul": "M", "rohan": "M",
	"amit": "M", "dev": "M", "ratan": "M", "varun": "M",
	"manan": "M", "sumit": "M", "kabir": "M", "aayan": "M",
	"ashutosh": "M", "advait": "M", "anand": "M", "tarun": "M",
	"sunny": "M", "mani": "M", "gokul": "M", "vijay": "M",
	"mohit": "M", "rehan": "M", "soham": "M", "abhilash": "M",
	"karun": "M", "hitesh": "M",

	"ritu": "F", "priya": "F", "neha": "F", "pooja": "F",
	"simran": "F", "kavya": "F", "ishita": "F", "shreya": "F",
	"roopa": "F", "amelia": "F", "sophia": "F", "tanya": "F",
	"shruti": "F", "suhani": "F", "kavitha": "F", "rupali": "F",
	"anushka": "F", "manisha": "F", "vidya": "F", "arya": "F",
}

// characterPool alternates female and male voices.
var characterPool = []string{
	"priya", "aditya", "neha", "rahul", "simran", "dev",
	"pooja", "varun", "kavya", "rohan",
}

// LanguageCode returns the Sarvam code for language, defaulting to en-IN.
func LanguageCode(language string) string {
	if code, ok := LanguageCodes[language]; ok {
		return code
	}
	return defaultLanguageCode
}

// Option is a functional option for configuring the Sarvam Provider.
type Option func(*Provider)

// WithEndpoint overrides the text-to-speech endpoint URL.
func WithEndpoint(url string) Option {
	return func(p *Provider) { p.endpoint = url }
}

// WithModel sets the Sarvam model id (default "bulbul:v3").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithNarrator sets the narrator voice reported by Casting.
func WithNarrator(voice string) Option {
	return func(p *Provider) { p.narrator = voice }
}

// WithHTTPClient replaces the HTTP client. The client's own timeout is left
// untouched; each request is additionally bounded by WithTimeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithTimeout bounds each synthesis request (default 30s).
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// Provider implements tts.Provider backed by the Sarvam REST API.
type Provider struct {
	apiKey     string
	endpoint   string
	model      string
	narrator   string
	timeout    time.Duration
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a new Sarvam Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("sarvam: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		endpoint:   defaultEndpoint,
		model:      defaultModel,
		narrator:   NarratorDefault,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	if _, ok := Speakers[p.narrator]; !ok {
		return nil, fmt.Errorf("sarvam: unknown narrator voice %q", p.narrator)
	}
	return p, nil
}

// ---- request / response shapes ----

type synthesisRequest struct {
	Text                string   `json:"text"`
	TargetLanguageCode  string   `json:"target_language_code"`
	Speaker             string   `json:"speaker"`
	Model               string   `json:"model"`
	OutputAudioCodec    string   `json:"output_audio_codec"`
	SpeechSampleRate    int      `json:"speech_sample_rate"`
	EnablePreprocessing bool     `json:"enable_preprocessing"`
	Pace                *float64 `json:"pace,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
}

type synthesisResponse struct {
	Audios []string `json:"audios"`
}

// buildRequest maps a tts.Request onto the Sarvam JSON body. Comedian
// delivery is slightly slower (pace 0.9) and more expressive (temperature
// 0.85, against a service default of 0.6).
func (p *Provider) buildRequest(req tts.Request) synthesisRequest {
	body := synthesisRequest{
		Text:                req.Text,
		TargetLanguageCode:  LanguageCode(req.Language),
		Speaker:             req.Voice,
		Model:               p.model,
		OutputAudioCodec:    "wav",
		SpeechSampleRate:    sampleRate,
		EnablePreprocessing: true,
	}
	if req.Delivery == tts.DeliveryComedian {
		pace, temp := 0.9, 0.85
		body.Pace = &pace
		body.Temperature = &temp
	}
	return body
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	if err := tts.CheckLength("sarvam", req.Text, maxChars); err != nil {
		return audio.Clip{}, err
	}
	if _, ok := Speakers[req.Voice]; !ok {
		return audio.Clip{}, fmt.Errorf("sarvam: unknown speaker %q", req.Voice)
	}

	payload, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("sarvam: encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return audio.Clip{}, fmt.Errorf("sarvam: create request: %w", err)
	}
	httpReq.Header.Set("api-subscription-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("sarvam: POST text-to-speech: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return audio.Clip{}, fmt.Errorf("sarvam: API error %d: %s", resp.StatusCode, snippet)
	}

	var sr synthesisResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return audio.Clip{}, fmt.Errorf("sarvam: decode response: %w", err)
	}
	return decodeAudios(sr.Audios)
}

// decodeAudios base64-decodes each WAV payload and concatenates the PCM.
func decodeAudios(audios []string) (audio.Clip, error) {
	if len(audios) == 0 {
		return audio.Clip{}, errors.New("sarvam: API returned no audio data")
	}
	var out audio.Clip
	for i, enc := range audios {
		wav, err := base64.StdEncoding.DecodeString(enc)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("sarvam: decode audio %d: %w", i, err)
		}
		clip, err := audio.DecodeWAV(wav)
		if err != nil {
			return audio.Clip{}, fmt.Errorf("sarvam: audio %d: %w", i, err)
		}
		if i == 0 {
			out.Format = clip.Format
		} else if clip.Format != out.Format {
			return audio.Clip{}, fmt.Errorf("sarvam: audio %d is %s, expected %s", i, clip.Format, out.Format)
		}
		out.PCM = append(out.PCM, clip.PCM...)
	}
	return out, nil
}

// MaxChars implements tts.Provider.
func (p *Provider) MaxChars() int { return maxChars }

// Casting implements tts.Provider. The narrator is removed from the character
// pool so no character shares the narrator's voice.
func (p *Provider) Casting() tts.Casting {
	chars := make([]string, 0, len(characterPool))
	for _, v := range characterPool {
		if v != p.narrator {
			chars = append(chars, v)
		}
	}
	return tts.Casting{
		Narrator:   p.narrator,
		Characters: chars,
		Soloists:   sortedSpeakers(),
	}
}

// ListVoices implements tts.Provider. The catalogue is static.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	ids := sortedSpeakers()
	profiles := make([]tts.VoiceProfile, 0, len(ids))
	for _, id := range ids {
		gender := "male"
		if Speakers[id] == "F" {
			gender = "female"
		}
		profiles = append(profiles, tts.VoiceProfile{
			ID:       id,
			Name:     displayName(id),
			Provider: "sarvam",
			Gender:   gender,
			Metadata: map[string]string{"model": p.model},
		})
	}
	return profiles, nil
}
