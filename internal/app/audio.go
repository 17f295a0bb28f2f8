package app

import (
	"context"
	"fmt"

	"github.com/MrWong99/curtaincall/internal/agent/oneact"
	"github.com/MrWong99/curtaincall/internal/render"
	"github.com/MrWong99/curtaincall/internal/script"
)

// AudioOptions selects how a finished script is performed.
type AudioOptions struct {
	// Solo renders the play as one performer instead of a cast.
	Solo bool

	// Voice overrides the solo voice. Ignored for ensemble renders.
	Voice string

	// Rewrite asks the model to turn the script into a stand-up monologue
	// before a solo render. Without it the script is flattened as written.
	Rewrite bool
}

// Render synthesises the final script of s and returns the render stream.
// The finished audio is stored on the session. Preconditions (no script, a
// render already running) are returned directly; everything else arrives as
// the stream's error event.
func (a *App) Render(ctx context.Context, s *Session, opts AudioOptions) (<-chan render.Event, error) {
	text, ok := s.Script()
	if !ok {
		return nil, ErrNotWritten
	}
	if err := s.beginRendering(opts.Solo); err != nil {
		return nil, err
	}
	log := a.log.With("session", s.ID, "solo", opts.Solo)

	out := make(chan render.Event, 8)
	go func() {
		defer close(out)
		res, err := a.render(ctx, s, text, opts, out)
		s.endRendering(res, err)
		if err != nil {
			log.Warn("audio render failed", "err", err)
		}
	}()
	return out, nil
}

func (a *App) render(ctx context.Context, s *Session, text string, opts AudioOptions, out chan<- render.Event) (render.Result, error) {
	lang := s.Request.Language
	r := a.Renderer(lang)

	var in <-chan render.Event
	if opts.Solo {
		v, err := a.SoloVoice(opts.Voice)
		if err != nil {
			return render.Result{}, a.fail(ctx, out, err)
		}
		// The script must have something to perform even when it is about to
		// be rewritten.
		performed, err := script.FlattenStrict(script.Parse(text))
		if err != nil {
			return render.Result{}, a.fail(ctx, out, fmt.Errorf("app: %w", err))
		}
		// A rewritten monologue is spoken as returned. Parsing it again would
		// drop lines that happen to start like a heading.
		if opts.Rewrite {
			performed, err = oneact.RewriteMonologue(ctx, a.Controller(), text, lang, a.cfg.Generation.MaxTokensMonologue)
			if err != nil {
				return render.Result{}, a.fail(ctx, out, err)
			}
		}
		in = r.RenderMonologue(ctx, performed, v)
	} else {
		segs, err := script.ParseStrict(text)
		if err != nil {
			return render.Result{}, a.fail(ctx, out, fmt.Errorf("app: %w", err))
		}
		in = r.RenderPlay(ctx, segs, a.Assigner())
	}

	var (
		res render.Result
		err = render.ErrNoResult
	)
	for ev := range in {
		switch ev.Kind {
		case render.KindDone:
			res, err = render.Result{WAV: ev.WAV, VoiceMap: ev.VoiceMap, Duration: ev.Duration}, nil
		case render.KindError:
			err = ev.Err
		}
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
	if err == render.ErrNoResult && ctx.Err() != nil {
		err = ctx.Err()
	}
	return res, err
}

// fail sends err as the stream's terminal event and returns it.
func (a *App) fail(ctx context.Context, out chan<- render.Event, err error) error {
	select {
	case out <- render.Event{Kind: render.KindError, Err: err}:
	case <-ctx.Done():
	}
	return err
}
