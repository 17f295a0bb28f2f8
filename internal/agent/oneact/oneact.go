// Package oneact writes short comic micro-plays.
//
// A comedy playwright drafts a two-character one-act from a single theme.
// A comedy director then critiques the current script and the playwright
// rewrites it, for a configured number of rounds (possibly zero). The draft
// and each revision resume automatically when cut off; critiques are a single
// short call.
//
// [RewriteMonologue] turns a finished script into one spoken monologue for a
// single performer.
package oneact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/prompt"
)

// Output ceilings, in tokens.
const (
	DefaultMaxTokens          = 64000
	DefaultMaxTokensCritique  = 1024
	DefaultMaxTokensMonologue = 1024
)

var (
	// ErrEmptyDraft is reported when the initial draft has no text, leaving
	// nothing to critique.
	ErrEmptyDraft = errors.New("oneact: initial draft was empty, cannot start critique loop")

	// ErrEmptyScript is returned by RewriteMonologue for a blank script.
	ErrEmptyScript = errors.New("oneact: script is empty")

	// ErrAlreadyRun is reported when Run is called a second time on a Loop.
	ErrAlreadyRun = errors.New("oneact: loop already run")
)

// Config describes one micro-play.
type Config struct {
	Theme    string
	Language string

	// CritiqueRounds is the number of critique/revise rounds. Zero skips
	// the critique stage.
	CritiqueRounds int

	// MaxTokens bounds each draft and revision call.
	MaxTokens int

	// MaxTokensCritique bounds each critique call.
	MaxTokensCritique int
}

// Loop is one generate-critique-revise run. It is single-use.
type Loop struct {
	cfg  Config
	ctrl *agent.Controller
	log  *slog.Logger
	ran  atomic.Bool

	final atomic.Pointer[string]
}

// New prepares a loop for cfg. ctrl performs every model call.
func New(cfg Config, ctrl *agent.Controller) *Loop {
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.CritiqueRounds < 0 {
		cfg.CritiqueRounds = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.MaxTokensCritique <= 0 {
		cfg.MaxTokensCritique = DefaultMaxTokensCritique
	}
	log := ctrl.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Loop{cfg: cfg, ctrl: ctrl, log: log.With("loop", "oneact")}
}

// FinalScript returns the finished script once the run has completed.
func (l *Loop) FinalScript() (string, bool) {
	if p := l.final.Load(); p != nil {
		return *p, true
	}
	return "", false
}

// Run starts the loop and returns its event stream. The channel is closed
// after the terminal event.
func (l *Loop) Run(ctx context.Context) <-chan agent.Event {
	out := make(chan agent.Event, 16)
	if !l.ran.CompareAndSwap(false, true) {
		out <- agent.Event{Kind: agent.KindError, Err: ErrAlreadyRun}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		m := l.ctrl.Metrics
		if m == nil {
			m = observe.DefaultMetrics()
		}
		m.ActiveSessions.Add(ctx, 1)
		defer m.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

		emit := agent.ChannelEmit(ctx, out)
		if err := l.run(ctx, emit); err != nil {
			if ctx.Err() != nil {
				l.log.Info("one-act cancelled", "err", err)
				return
			}
			l.log.Error("one-act failed", "err", err)
			_ = emit(agent.Event{Kind: agent.KindError, Err: err})
		}
	}()
	return out
}

func (l *Loop) run(ctx context.Context, emit agent.Emit) error {
	lang := map[string]string{"language": l.cfg.Language}
	playwrightSystem, err := prompt.Get(prompt.FunnyPlaySystem, lang)
	if err != nil {
		return err
	}

	// 1. Initial draft.
	draftPrompt, err := prompt.Get(prompt.FunnyPlayGenerate, map[string]string{
		"theme":    l.cfg.Theme,
		"language": l.cfg.Language,
	})
	if err != nil {
		return err
	}
	current, err := l.ctrl.Continue(ctx, agent.Call{
		Role:           "playwright",
		System:         playwrightSystem,
		User:           draftPrompt,
		MaxTokens:      l.cfg.MaxTokens,
		ContinuePrompt: prompt.ContinuePlay,
		Subject:        "Play",
	}, agent.KindChunk, emit)
	if err != nil {
		return wrap("Initial generation error", err)
	}
	if strings.TrimSpace(current) == "" {
		return ErrEmptyDraft
	}
	if err := emit(agent.Event{Kind: agent.KindInitialDone, Text: current}); err != nil {
		return err
	}

	// 2. Critique and revise.
	var directorSystem string
	if l.cfg.CritiqueRounds > 0 {
		if directorSystem, err = prompt.Get(prompt.FunnyPlayDirectorSystem, lang); err != nil {
			return err
		}
	}
	total := l.cfg.CritiqueRounds
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(agent.Event{Kind: agent.KindCritiqueStart, Round: n, Total: total}); err != nil {
			return err
		}

		critiquePrompt, err := prompt.Get(prompt.FunnyPlayDirectorCritique, map[string]string{"script": current})
		if err != nil {
			return err
		}
		res, err := l.ctrl.Stream(ctx, agent.Call{
			Role:      "critic",
			Round:     n,
			System:    directorSystem,
			User:      critiquePrompt,
			MaxTokens: l.cfg.MaxTokensCritique,
		}, agent.KindCritiqueChunk, emit)
		if err != nil {
			return wrap(fmt.Sprintf("Director error (round %d)", n), err)
		}
		critique := res.Text
		if err := emit(agent.Event{Kind: agent.KindCritiqueDone, Round: n, Text: critique}); err != nil {
			return err
		}
		if err := emit(agent.Event{Kind: agent.KindRevisionStart, Round: n, Total: total}); err != nil {
			return err
		}

		revisePrompt, err := prompt.Get(prompt.FunnyPlayRevise, map[string]string{
			"critique": critique,
			"script":   current,
			"language": l.cfg.Language,
		})
		if err != nil {
			return err
		}
		revised, err := l.ctrl.Continue(ctx, agent.Call{
			Role:           "playwright",
			Round:          n,
			System:         playwrightSystem,
			User:           revisePrompt,
			MaxTokens:      l.cfg.MaxTokens,
			ContinuePrompt: prompt.ContinuePlay,
			Subject:        "Play",
		}, agent.KindRevisionChunk, emit)
		if err != nil {
			return wrap(fmt.Sprintf("Revision error (round %d)", n), err)
		}
		if err := emit(agent.Event{Kind: agent.KindRevisionDone, Round: n, Text: revised}); err != nil {
			return err
		}
		l.log.Debug("revision complete", "round", n, "chars", len(revised))
		current = revised
	}

	// 3. Done.
	l.final.Store(&current)
	l.log.Info("one-act written", "critique_rounds", total, "chars", len(current))
	return emit(agent.Event{Kind: agent.KindFinalDone, Text: current})
}

// RewriteMonologue rewrites a finished script as a single spoken monologue in
// language. It is one bounded non-streaming call with no continuation; the
// returned text is trimmed. maxTokens of zero selects
// [DefaultMaxTokensMonologue].
func RewriteMonologue(ctx context.Context, ctrl *agent.Controller, script, language string, maxTokens int) (string, error) {
	if strings.TrimSpace(script) == "" {
		return "", ErrEmptyScript
	}
	if language == "" {
		language = "English"
	}
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokensMonologue
	}
	system, err := prompt.Get(prompt.MonologueSystem, map[string]string{"language": language})
	if err != nil {
		return "", err
	}
	user, err := prompt.Get(prompt.MonologueRewrite, map[string]string{"script": script, "language": language})
	if err != nil {
		return "", err
	}
	res, err := ctrl.Complete(ctx, agent.Call{
		Role:      "comedian",
		System:    system,
		User:      user,
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("oneact: rewrite monologue: %w", err)
	}
	return strings.TrimSpace(res.Text), nil
}

func wrap(prefix string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", prefix, err)
}
