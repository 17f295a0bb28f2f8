package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/app"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/output"
	"github.com/MrWong99/curtaincall/internal/render"
)

type writeFlags struct {
	configPath     string
	mode           string
	genre          string
	theme          string
	tone           string
	language       string
	rounds         int
	critiqueRounds int
	scriptPath     string

	audio     bool
	solo      bool
	voice     string
	rewrite   bool
	audioPath string
}

func parseWriteFlags(args []string) (writeFlags, error) {
	var f writeFlags
	fs := flag.NewFlagSet("write", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "config.yaml", "path to the YAML configuration file")
	fs.StringVar(&f.mode, "mode", "", "writing mode: discussion or oneact (default from config)")
	fs.StringVar(&f.genre, "genre", "", "genre of the play")
	fs.StringVar(&f.theme, "theme", "", "premise of the play")
	fs.StringVar(&f.tone, "tone", "", "tone of the play")
	fs.StringVar(&f.language, "language", "", "language the play is written and spoken in")
	fs.IntVar(&f.rounds, "rounds", 0, "writer/director rounds in discussion mode")
	fs.IntVar(&f.critiqueRounds, "critique-rounds", -1, "critique rounds in oneact mode (default from config)")
	fs.StringVar(&f.scriptPath, "script", "", "where to save the script (overrides output.script_path)")
	fs.BoolVar(&f.audio, "audio", false, "render the finished play to audio")
	fs.BoolVar(&f.solo, "solo", false, "perform the play as a single comedian instead of a cast")
	fs.StringVar(&f.voice, "voice", "", "voice for -solo")
	fs.BoolVar(&f.rewrite, "rewrite", false, "rewrite the play as a stand-up monologue before a -solo render")
	fs.StringVar(&f.audioPath, "out", "", "where to save the audio (overrides output.audio_path)")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if f.solo {
		f.audio = true
	}
	return f, nil
}

func (f writeFlags) request(defaults config.PlayConfig) (app.Request, error) {
	req := app.Request{
		Mode:           config.Mode(f.mode),
		Genre:          f.genre,
		Theme:          f.theme,
		Tone:           f.tone,
		Language:       f.language,
		Rounds:         f.rounds,
		CritiqueRounds: f.critiqueRounds,
	}
	if f.critiqueRounds < 0 {
		req.CritiqueRounds = defaults.CritiqueRounds
	}
	return req.Normalize(defaults)
}

func runWrite(args []string) int {
	f, err := parseWriteFlags(args)
	if err != nil {
		return 2
	}
	cfg, ok := loadConfig(f.configPath)
	if !ok {
		return 1
	}
	if f.scriptPath != "" {
		cfg.Output.ScriptPath = f.scriptPath
	}
	if f.audioPath != "" {
		cfg.Output.AudioPath = f.audioPath
	}
	req, err := f.request(cfg.Play)
	if err != nil {
		fmt.Fprintf(os.Stderr, "curtaincall: %v\n", err)
		return 2
	}

	application, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess := application.Sessions().Create(req)
	if err := writePlay(ctx, application, sess, os.Stdout); err != nil {
		slog.Error("writing failed", "err", err)
		return 1
	}
	if !f.audio {
		return 0
	}
	if err := renderPlay(ctx, application, sess, app.AudioOptions{Solo: f.solo, Voice: f.voice, Rewrite: f.rewrite}); err != nil {
		slog.Error("audio render failed", "err", err)
		return 1
	}
	return 0
}

// writePlay streams the writing loop to w and saves the final script.
func writePlay(ctx context.Context, a *app.App, sess *app.Session, w io.Writer) error {
	events, err := a.Write(ctx, sess)
	if err != nil {
		return err
	}
	for ev := range events {
		if ev.Kind == agent.KindError {
			// Drain so the loop can finish recording.
			for range events {
			}
			return ev.Err
		}
		printEvent(w, ev)
	}
	text, ok := sess.Script()
	if !ok {
		if err := ctx.Err(); err != nil {
			return err
		}
		return app.ErrNotWritten
	}
	path := a.Config().Output.ScriptPath
	if err := output.WriteScript(path, text); err != nil {
		return err
	}
	slog.Info("script saved", "path", path, "summary", sess.Record().Summary())
	return nil
}

// printEvent writes the human-readable form of ev to w. Warnings go to the
// log instead.
func printEvent(w io.Writer, ev agent.Event) {
	switch ev.Kind {
	case agent.KindRoundStart:
		fmt.Fprintf(w, "\n=== Round %d/%d ===\n\n--- Writer ---\n", ev.Round, ev.Total)
	case agent.KindWriterDone:
		fmt.Fprint(w, "\n\n--- Director ---\n")
	case agent.KindCritiqueStart:
		fmt.Fprintf(w, "\n=== Critique %d/%d ===\n", ev.Round, ev.Total)
	case agent.KindRevisionStart:
		fmt.Fprintf(w, "\n=== Revision %d/%d ===\n", ev.Round, ev.Total)
	case agent.KindWriterChunk, agent.KindDirectorChunk, agent.KindChunk,
		agent.KindCritiqueChunk, agent.KindRevisionChunk:
		fmt.Fprint(w, ev.Text)
	case agent.KindDirectorDone, agent.KindInitialDone, agent.KindCritiqueDone, agent.KindRevisionDone:
		fmt.Fprintln(w)
	case agent.KindWarning:
		slog.Warn(ev.Text, "round", ev.Round)
	case agent.KindFinalDone:
		fmt.Fprintf(w, "\n=== Final script ===\n\n%s\n", ev.Text)
	}
}

// renderPlay performs the session's script and saves the WAV.
func renderPlay(ctx context.Context, a *app.App, sess *app.Session, opts app.AudioOptions) error {
	events, err := a.Render(ctx, sess, opts)
	if err != nil {
		return err
	}
	res, err := render.Collect(events, func(ev render.Event) {
		slog.Info("synthesising", "segment", ev.Current, "of", ev.Total, "speaker", ev.Speaker)
	})
	if err != nil {
		return err
	}
	path := a.Config().Output.AudioPath
	if err := output.WriteWAV(path, res.WAV); err != nil {
		return err
	}

	speakers := make([]string, 0, len(res.VoiceMap))
	for s := range res.VoiceMap {
		speakers = append(speakers, s)
	}
	sort.Strings(speakers)
	for _, s := range speakers {
		slog.Info("cast", "speaker", s, "voice", res.VoiceMap[s])
	}
	slog.Info("audio saved", "path", path, "duration", res.Duration, "bytes", len(res.WAV))
	return nil
}
