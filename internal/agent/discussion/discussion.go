// Package discussion runs the two-agent play-writing discussion.
//
// A Story Writer and a Director alternate for a fixed number of rounds: the
// Writer drafts or revises, the Director critiques. Each agent keeps its own
// history; the Director sees every draft and the Writer sees every critique.
// After the last round the Director writes the complete final script, with
// automatic continuation when the response is cut off at the output ceiling.
//
// A run makes exactly 2*MaxRounds calls for the rounds plus 1+k calls for the
// final script, where k is the number of continuations taken.
package discussion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/play"
	"github.com/MrWong99/curtaincall/internal/prompt"
	"github.com/MrWong99/curtaincall/pkg/provider/llm"
)

// Default output ceilings, in tokens.
const (
	DefaultMaxTokensRound = 64000
	DefaultMaxTokensFinal = 64000
)

// ErrAlreadyRun is reported when Run is called a second time on a Session.
var ErrAlreadyRun = errors.New("discussion: session already run")

// Config is the creative brief plus per-call output ceilings.
type Config struct {
	Genre    string
	Theme    string
	Tone     string
	Language string

	// MaxRounds is the number of writer/director exchanges. Values below 1
	// select [play.DefaultMaxRounds].
	MaxRounds int

	MaxTokensRound int
	MaxTokensFinal int
}

// Session is one discussion. It is single-use.
type Session struct {
	cfg  Config
	ctrl *agent.Controller
	play *play.Session
	log  *slog.Logger
	ran  atomic.Bool

	// Owned by the Run goroutine.
	writer   agent.History
	director agent.History
}

// New prepares a discussion for cfg. ctrl performs every model call.
func New(cfg Config, ctrl *agent.Controller) *Session {
	if cfg.MaxRounds < 1 {
		cfg.MaxRounds = play.DefaultMaxRounds
	}
	if cfg.Language == "" {
		cfg.Language = "English"
	}
	if cfg.MaxTokensRound <= 0 {
		cfg.MaxTokensRound = DefaultMaxTokensRound
	}
	if cfg.MaxTokensFinal <= 0 {
		cfg.MaxTokensFinal = DefaultMaxTokensFinal
	}
	log := ctrl.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		cfg:  cfg,
		ctrl: ctrl,
		play: play.New(play.Brief{
			Genre:     cfg.Genre,
			Theme:     cfg.Theme,
			Tone:      cfg.Tone,
			Language:  cfg.Language,
			MaxRounds: cfg.MaxRounds,
		}),
		log: log.With("loop", "discussion"),
	}
}

// Play returns the session record. It is safe to read while Run is active.
func (s *Session) Play() *play.Session { return s.play }

// Run starts the discussion and returns its event stream. The channel is
// closed after the terminal event. Cancelling ctx stops the run at the next
// event boundary; no further events are delivered.
func (s *Session) Run(ctx context.Context) <-chan agent.Event {
	out := make(chan agent.Event, 16)
	if !s.ran.CompareAndSwap(false, true) {
		out <- agent.Event{Kind: agent.KindError, Err: ErrAlreadyRun}
		close(out)
		return out
	}

	go func() {
		defer close(out)
		m := s.ctrl.Metrics
		if m == nil {
			m = observe.DefaultMetrics()
		}
		m.ActiveSessions.Add(ctx, 1)
		defer m.ActiveSessions.Add(context.WithoutCancel(ctx), -1)

		emit := agent.ChannelEmit(ctx, out)
		if err := s.run(ctx, emit); err != nil {
			if ctx.Err() != nil {
				s.log.Info("discussion cancelled", "err", err)
				return
			}
			s.log.Error("discussion failed", "err", err)
			_ = emit(agent.Event{Kind: agent.KindError, Err: err})
		}
	}()
	return out
}

func (s *Session) run(ctx context.Context, emit agent.Emit) error {
	total := s.cfg.MaxRounds
	writerSystem, err := prompt.Get(prompt.StoryWriterSystem, nil)
	if err != nil {
		return err
	}
	directorSystem, err := prompt.Get(prompt.DirectorSystem, nil)
	if err != nil {
		return err
	}

	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(agent.Event{Kind: agent.KindRoundStart, Round: n, Total: total}); err != nil {
			return err
		}

		// Writer turn.
		writerPrompt, err := s.writerPrompt(n)
		if err != nil {
			return err
		}
		res, err := s.ctrl.Stream(ctx, agent.Call{
			Role:      "writer",
			Round:     n,
			System:    writerSystem,
			History:   s.writer.Messages(),
			User:      writerPrompt,
			MaxTokens: s.cfg.MaxTokensRound,
		}, agent.KindWriterChunk, emit)
		if err != nil {
			return roleError("Writer", err)
		}
		if res.Truncated {
			s.log.Warn("writer response truncated", "round", n)
			msg := fmt.Sprintf("Round %d Writer response was truncated. Consider reducing rounds so each round stays focused.", n)
			if err := emit(agent.Event{Kind: agent.KindWarning, Round: n, Text: msg}); err != nil {
				return err
			}
		}
		writerText := res.Text
		s.writer.Append(llm.RoleUser, writerPrompt)
		s.writer.Append(llm.RoleAssistant, writerText)
		s.director.Append(llm.RoleUser, writerText)
		if err := emit(agent.Event{Kind: agent.KindWriterDone, Round: n, Text: writerText}); err != nil {
			return err
		}

		// Director turn.
		directorPrompt, err := prompt.Get(prompt.DirectorCritique, map[string]string{
			"round":    strconv.Itoa(n),
			"total":    strconv.Itoa(total),
			"draft":    writerText,
			"language": s.cfg.Language,
		})
		if err != nil {
			return err
		}
		res, err = s.ctrl.Stream(ctx, agent.Call{
			Role:      "director",
			Round:     n,
			System:    directorSystem,
			History:   s.director.Messages(),
			User:      directorPrompt,
			MaxTokens: s.cfg.MaxTokensRound,
		}, agent.KindDirectorChunk, emit)
		if err != nil {
			return roleError("Director", err)
		}
		if res.Truncated {
			s.log.Warn("director response truncated", "round", n)
			msg := fmt.Sprintf("Round %d Director response was truncated.", n)
			if err := emit(agent.Event{Kind: agent.KindWarning, Round: n, Text: msg}); err != nil {
				return err
			}
		}
		directorText := res.Text
		s.director.Append(llm.RoleAssistant, directorText)
		s.writer.Append(llm.RoleUser, "[Director's feedback]\n"+directorText)
		s.play.AddRound(n, writerText, directorText)
		s.log.Debug("round complete", "round", n, "writer_chars", len(writerText), "director_chars", len(directorText))
		if err := emit(agent.Event{Kind: agent.KindDirectorDone, Round: n, Text: directorText}); err != nil {
			return err
		}
	}

	// Final script.
	if err := ctx.Err(); err != nil {
		return err
	}
	finalPrompt, err := prompt.Get(prompt.DirectorFinalRound, map[string]string{"language": s.cfg.Language})
	if err != nil {
		return err
	}
	final, err := s.ctrl.Continue(ctx, agent.Call{
		Role:      "director",
		System:    directorSystem,
		History:   s.director.Messages(),
		User:      finalPrompt,
		MaxTokens: s.cfg.MaxTokensFinal,
		Subject:   "Script",
	}, agent.KindDirectorChunk, emit)
	if err != nil {
		return roleError("Final script", err)
	}
	if err := s.play.Finalize(final); err != nil {
		return err
	}
	s.log.Info("final script written", "rounds", total, "chars", len(final))
	return emit(agent.Event{Kind: agent.KindFinalDone, Text: final})
}

func (s *Session) writerPrompt(n int) (string, error) {
	if n == 1 {
		return prompt.Get(prompt.StoryWriterOpening, map[string]string{
			"genre":    s.cfg.Genre,
			"theme":    s.cfg.Theme,
			"tone":     s.cfg.Tone,
			"language": s.cfg.Language,
		})
	}
	return prompt.Get(prompt.StoryWriterRevise, map[string]string{
		"round":    strconv.Itoa(n),
		"total":    strconv.Itoa(s.cfg.MaxRounds),
		"language": s.cfg.Language,
	})
}

// roleError prefixes provider failures with the role that failed. Context
// errors pass through unchanged.
func roleError(role string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s error: %w", role, err)
}
