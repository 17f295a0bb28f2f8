// Package coqui provides a TTS provider backed by a self-hosted Coqui TTS
// server.
//
// Two server flavours are supported:
//
//   - [APIModeStandard] targets the stock "tts-server" shipped with the
//     Coqui TTS package. Synthesis is GET /api/tts with the text, speaker and
//     language passed as query parameters; the speaker list comes from
//     GET /details.
//   - [APIModeXTTS] targets the XTTS v2 streaming server. Synthesis is
//     POST /tts_to_audio/ with a JSON body naming a studio speaker; the
//     speaker list comes from GET /studio_speakers.
//
// Both flavours answer with a WAV file, which is returned in its native
// format. The render pipeline converts it to the output format.
package coqui

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

const (
	standardEndpoint       = "/api/tts"
	detailsEndpoint        = "/details"
	xttsEndpoint           = "/tts_to_audio/"
	studioSpeakersEndpoint = "/studio_speakers"

	// XTTS splits long input itself but degrades past a few hundred
	// characters per sentence group.
	maxChars = 1000

	defaultTimeout  = 60 * time.Second
	defaultLanguage = "en"
)

// APIMode selects which Coqui server flavour the provider talks to.
type APIMode int

const (
	// APIModeStandard targets the stock Coqui "tts-server".
	APIModeStandard APIMode = iota

	// APIModeXTTS targets the XTTS v2 API server.
	APIModeXTTS
)

// String implements fmt.Stringer.
func (m APIMode) String() string {
	switch m {
	case APIModeStandard:
		return "standard"
	case APIModeXTTS:
		return "xtts"
	default:
		return fmt.Sprintf("APIMode(%d)", int(m))
	}
}

// ParseAPIMode maps "standard" or "xtts" (case-insensitive) to an APIMode.
func ParseAPIMode(s string) (APIMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "standard":
		return APIModeStandard, nil
	case "xtts":
		return APIModeXTTS, nil
	default:
		return 0, fmt.Errorf("coqui: unknown api mode %q (want standard or xtts)", s)
	}
}

// LanguageCodes maps the human-readable content language to the ISO code
// Coqui models expect.
var LanguageCodes = map[string]string{
	"English":         "en",
	"Hindi (हिंदी)":   "hi",
	"Bengali (বাংলা)": "bn",
}

// Default line-ups. The standard server is assumed to run the multi-speaker
// VCTK model; XTTS ships a fixed set of studio speakers.
var (
	vctkCasting = tts.Casting{
		Narrator:   "p226",
		Characters: []string{"p225", "p227", "p228", "p232", "p229", "p243"},
		Soloists:   []string{"p225", "p226", "p227", "p228", "p229", "p232", "p243"},
	}
	xttsCasting = tts.Casting{
		Narrator:   "Damien Black",
		Characters: []string{"Claribel Dervla", "Andrew Chipper", "Daisy Studious", "Craig Gutsy", "Gracie Wise", "Viktor Eka"},
		Soloists:   []string{"Andrew Chipper", "Claribel Dervla", "Craig Gutsy", "Damien Black", "Daisy Studious", "Gracie Wise", "Viktor Eka"},
	}
)

// Option is a functional option for configuring the Coqui Provider.
type Option func(*Provider)

// WithAPIMode selects the server flavour (default [APIModeStandard]).
func WithAPIMode(m APIMode) Option {
	return func(p *Provider) { p.mode = m }
}

// WithLanguage forces a language code for every request, overriding the
// mapping from the play's content language.
func WithLanguage(code string) Option {
	return func(p *Provider) { p.language = code }
}

// WithNarrator overrides the narrator voice reported by Casting.
func WithNarrator(voice string) Option {
	return func(p *Provider) { p.narrator = voice }
}

// WithCharacters overrides the character voice pool reported by Casting.
func WithCharacters(voices []string) Option {
	return func(p *Provider) { p.characters = slices.Clone(voices) }
}

// WithTimeout bounds each request (default 60s). Local servers without a GPU
// can be slow.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements tts.Provider against a Coqui TTS server.
type Provider struct {
	serverURL  string
	mode       APIMode
	language   string
	narrator   string
	characters []string
	timeout    time.Duration
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Coqui Provider for the server at serverURL
// (e.g. "http://localhost:5002").
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	if _, err := url.Parse(serverURL); err != nil {
		return nil, fmt.Errorf("coqui: invalid serverURL: %w", err)
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Mode reports the configured server flavour.
func (p *Provider) Mode() APIMode { return p.mode }

func (p *Provider) languageCode(language string) string {
	if p.language != "" {
		return p.language
	}
	if code, ok := LanguageCodes[language]; ok {
		return code
	}
	return defaultLanguage
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	if err := tts.CheckLength("coqui", req.Text, maxChars); err != nil {
		return audio.Clip{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var (
		httpReq *http.Request
		err     error
	)
	switch p.mode {
	case APIModeXTTS:
		httpReq, err = p.xttsRequest(ctx, req)
	default:
		httpReq, err = p.standardRequest(ctx, req)
	}
	if err != nil {
		return audio.Clip{}, err
	}

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return audio.Clip{}, fmt.Errorf("coqui: %s returned status %d: %s", httpReq.URL.Path, resp.StatusCode, snippet)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: read audio: %w", err)
	}
	clip, err := audio.DecodeWAV(wav)
	if err != nil {
		return audio.Clip{}, fmt.Errorf("coqui: %w", err)
	}
	return clip, nil
}

func (p *Provider) standardRequest(ctx context.Context, req tts.Request) (*http.Request, error) {
	params := url.Values{}
	params.Set("text", req.Text)
	if req.Voice != "" {
		params.Set("speaker_id", req.Voice)
	}
	params.Set("language_id", p.languageCode(req.Language))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+standardEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	httpReq.Header.Set("Accept", "audio/wav")
	return httpReq, nil
}

type xttsBody struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

func (p *Provider) xttsRequest(ctx context.Context, req tts.Request) (*http.Request, error) {
	// XTTS has no default speaker.
	if req.Voice == "" {
		return nil, errors.New("coqui: xtts mode requires a voice")
	}
	payload, err := json.Marshal(xttsBody{
		Text:       req.Text,
		SpeakerWav: req.Voice,
		Language:   p.languageCode(req.Language),
	})
	if err != nil {
		return nil, fmt.Errorf("coqui: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+xttsEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("coqui: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/wav")
	return httpReq, nil
}

// MaxChars implements tts.Provider.
func (p *Provider) MaxChars() int { return maxChars }

// Casting implements tts.Provider. Overrides from [WithNarrator] and
// [WithCharacters] replace the mode's default line-up, and the narrator is
// kept out of the character pool.
func (p *Provider) Casting() tts.Casting {
	base := vctkCasting
	if p.mode == APIModeXTTS {
		base = xttsCasting
	}
	narrator := base.Narrator
	if p.narrator != "" {
		narrator = p.narrator
	}
	pool := base.Characters
	if len(p.characters) > 0 {
		pool = p.characters
	}
	chars := make([]string, 0, len(pool))
	for _, v := range pool {
		if v != narrator {
			chars = append(chars, v)
		}
	}
	soloists := slices.Clone(base.Soloists)
	if len(p.characters) > 0 {
		soloists = append(slices.Clone(p.characters), narrator)
		slices.Sort(soloists)
		soloists = slices.Compact(soloists)
	}
	return tts.Casting{Narrator: narrator, Characters: chars, Soloists: soloists}
}

// ListVoices implements tts.Provider by asking the server for its speakers.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if p.mode == APIModeXTTS {
		return p.listVoicesXTTS(ctx)
	}
	return p.listVoicesStandard(ctx)
}

func (p *Provider) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("coqui: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("coqui: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("coqui: GET %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("coqui: decode %s response: %w", path, err)
	}
	return nil
}

// listVoicesXTTS reads GET /studio_speakers, a JSON object keyed by speaker
// name. The values hold speaker embeddings and are ignored.
func (p *Provider) listVoicesXTTS(ctx context.Context) ([]tts.VoiceProfile, error) {
	var raw map[string]json.RawMessage
	if err := p.getJSON(ctx, studioSpeakersEndpoint, &raw); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	slices.Sort(names)

	profiles := make([]tts.VoiceProfile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "coqui",
			Metadata: map[string]string{"mode": "xtts"},
		})
	}
	return profiles, nil
}

type detailsResponse struct {
	ModelName string   `json:"model_name"`
	Language  string   `json:"language"`
	Speakers  []string `json:"speakers"`
}

// listVoicesStandard reads GET /details. A single-speaker model yields one
// profile with an empty ID, which the server accepts as its only voice.
func (p *Provider) listVoicesStandard(ctx context.Context) ([]tts.VoiceProfile, error) {
	var details detailsResponse
	if err := p.getJSON(ctx, detailsEndpoint, &details); err != nil {
		return nil, err
	}
	meta := func() map[string]string {
		m := map[string]string{"mode": "standard"}
		if details.ModelName != "" {
			m["model_name"] = details.ModelName
		}
		if details.Language != "" {
			m["language"] = details.Language
		}
		return m
	}

	if len(details.Speakers) == 0 {
		name := details.ModelName
		if name == "" {
			name = "default"
		}
		return []tts.VoiceProfile{{Name: name, Provider: "coqui", Metadata: meta()}}, nil
	}

	speakers := slices.Clone(details.Speakers)
	slices.Sort(speakers)
	profiles := make([]tts.VoiceProfile, 0, len(speakers))
	for _, s := range speakers {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       s,
			Name:     s,
			Provider: "coqui",
			Metadata: meta(),
		})
	}
	return profiles, nil
}
