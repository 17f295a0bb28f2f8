// Package app wires the providers, the writing loops and the audio pipeline
// into one application shared by the HTTP server and the command line.
//
// New builds the App from a validated configuration and a pair of providers
// created through the config registry. Plays live in the in-memory
// [SessionManager]; [App.Write] runs the configured writing loop for a
// session and [App.Render] turns its finished script into audio.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/agent/discussion"
	"github.com/MrWong99/curtaincall/internal/agent/oneact"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/render"
	"github.com/MrWong99/curtaincall/internal/voice"
	"github.com/MrWong99/curtaincall/pkg/provider/llm"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
)

// Providers holds the two provider slots. Populated by main via the config
// registry.
type Providers struct {
	LLM llm.Provider
	TTS tts.Provider
}

// App owns the configuration and providers and builds the per-play workers.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	log       *slog.Logger
	sessions  *SessionManager
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithMetrics replaces the global metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the base logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithSessionManager injects a session store instead of creating an empty one.
func WithSessionManager(sm *SessionManager) Option {
	return func(a *App) { a.sessions = sm }
}

// New creates an App. Both providers are required.
func New(cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is nil")
	}
	if providers == nil || providers.LLM == nil {
		return nil, errors.New("app: an LLM provider is required")
	}
	if providers.TTS == nil {
		return nil, errors.New("app: a TTS provider is required")
	}
	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	if a.sessions == nil {
		a.sessions = NewSessionManager()
	}
	return a, nil
}

// Config returns the application configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Sessions returns the session store.
func (a *App) Sessions() *SessionManager { return a.sessions }

// TTS returns the speech provider.
func (a *App) TTS() tts.Provider { return a.providers.TTS }

// Controller returns a model-call controller configured from the generation
// settings.
func (a *App) Controller() *agent.Controller {
	return &agent.Controller{
		LLM:              a.providers.LLM,
		Provider:         a.cfg.Providers.LLM.Name,
		MaxContinuations: a.cfg.Generation.MaxContinuations,
		Temperature:      a.cfg.Generation.Temperature,
		Metrics:          a.metrics,
		Logger:           a.log,
	}
}

// Renderer returns an audio renderer for language.
func (a *App) Renderer(language string) *render.Renderer {
	return &render.Renderer{
		TTS:             a.providers.TTS,
		Provider:        a.cfg.Providers.TTS.Name,
		Language:        language,
		DialogueSilence: a.cfg.Audio.DialogueSilence,
		HeadingSilence:  a.cfg.Audio.HeadingSilence,
		Timeout:         a.cfg.Audio.TTSTimeout,
		Metrics:         a.metrics,
		Logger:          a.log,
	}
}

// Assigner returns a fresh voice assigner using the configured narrator, or
// the provider's default narrator when none is configured.
func (a *App) Assigner() *voice.Assigner {
	casting := a.providers.TTS.Casting()
	narrator := a.cfg.Audio.NarratorVoice
	if narrator == "" {
		narrator = casting.Narrator
	}
	return voice.New(narrator, casting.Characters)
}

// ErrNoSoloVoice is returned when no voice is available for a solo render.
var ErrNoSoloVoice = errors.New("app: no solo voice configured and provider offers none")

// SoloVoice picks the voice for a single-performer render: requested, then the
// configured solo voice, then the provider's first soloist.
func (a *App) SoloVoice(requested string) (string, error) {
	if v := strings.TrimSpace(requested); v != "" {
		return v, nil
	}
	if a.cfg.Audio.SoloVoice != "" {
		return a.cfg.Audio.SoloVoice, nil
	}
	if s := a.providers.TTS.Casting().Soloists; len(s) > 0 {
		return s[0], nil
	}
	if n := a.providers.TTS.Casting().Narrator; n != "" {
		return n, nil
	}
	return "", ErrNoSoloVoice
}

// runner is implemented by both writing loops.
type runner interface {
	Run(ctx context.Context) <-chan agent.Event
}

func (a *App) newRunner(req Request) (runner, error) {
	g := a.cfg.Generation
	switch req.Mode {
	case config.ModeDiscussion:
		return discussion.New(discussion.Config{
			Genre:          req.Genre,
			Theme:          req.Theme,
			Tone:           req.Tone,
			Language:       req.Language,
			MaxRounds:      req.Rounds,
			MaxTokensRound: g.MaxTokensRound,
			MaxTokensFinal: g.MaxTokensFinal,
		}, a.Controller()), nil
	case config.ModeOneAct:
		return oneact.New(oneact.Config{
			Theme:             req.Theme,
			Language:          req.Language,
			CritiqueRounds:    req.CritiqueRounds,
			MaxTokens:         g.MaxTokensFinal,
			MaxTokensCritique: g.MaxTokensCritique,
		}, a.Controller()), nil
	}
	return nil, fmt.Errorf("app: unknown mode %q", req.Mode)
}

// Write runs the writing loop for s and returns its event stream. Every event
// is also recorded on the session. A session is written at most once.
func (a *App) Write(ctx context.Context, s *Session) (<-chan agent.Event, error) {
	r, err := a.newRunner(s.Request)
	if err != nil {
		return nil, err
	}
	if err := s.beginWriting(); err != nil {
		return nil, err
	}
	log := a.log.With("session", s.ID, "mode", s.Request.Mode)
	log.Info("writing play", "theme", s.Request.Theme, "language", s.Request.Language)

	in := r.Run(ctx)
	out := make(chan agent.Event, 16)
	go func() {
		defer close(out)
		var terminal bool
		for ev := range in {
			s.observe(ev)
			terminal = terminal || ev.Kind.Terminal()
			select {
			case out <- ev:
			case <-ctx.Done():
				// Keep recording so the session reflects the real outcome.
				for ev := range in {
					s.observe(ev)
					terminal = terminal || ev.Kind.Terminal()
				}
				if !terminal {
					s.abort(ctx.Err())
				}
				return
			}
		}
		if !terminal {
			s.abort(ctx.Err())
		}
		st := s.Snapshot()
		log.Info("play writing finished", "status", st.Status, "chars", len(st.Script))
	}()
	return out, nil
}

// Request describes one play to write.
type Request struct {
	Mode           config.Mode `json:"mode"`
	Genre          string      `json:"genre,omitempty"`
	Theme          string      `json:"theme"`
	Tone           string      `json:"tone,omitempty"`
	Language       string      `json:"language,omitempty"`
	Rounds         int         `json:"rounds,omitempty"`
	CritiqueRounds int         `json:"critique_rounds,omitempty"`
}

// Normalize fills empty fields of r from defaults and validates the result.
// CritiqueRounds is taken as given: zero is a valid one-act setting.
func (r Request) Normalize(defaults config.PlayConfig) (Request, error) {
	if r.Mode == "" {
		r.Mode = defaults.Mode
	}
	if r.Genre == "" {
		r.Genre = defaults.Genre
	}
	if strings.TrimSpace(r.Theme) == "" {
		r.Theme = defaults.Theme
	}
	if r.Tone == "" {
		r.Tone = defaults.Tone
	}
	if r.Language == "" {
		r.Language = defaults.Language
	}
	if r.Rounds == 0 {
		r.Rounds = defaults.Rounds
	}

	var errs []error
	if !r.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("mode %q is invalid; valid values: discussion, oneact", r.Mode))
	}
	if strings.TrimSpace(r.Theme) == "" {
		errs = append(errs, errors.New("theme is required"))
	}
	if r.Rounds < 1 || r.Rounds > config.MaxRounds {
		errs = append(errs, fmt.Errorf("rounds %d is out of range [1, %d]", r.Rounds, config.MaxRounds))
	}
	if r.CritiqueRounds < 0 || r.CritiqueRounds > config.MaxCritiqueRounds {
		errs = append(errs, fmt.Errorf("critique_rounds %d is out of range [0, %d]", r.CritiqueRounds, config.MaxCritiqueRounds))
	}
	return r, errors.Join(errs...)
}
