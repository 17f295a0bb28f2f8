// Command curtaincall writes short plays with language-model agents and
// performs them with text-to-speech.
//
// Usage:
//
//	curtaincall serve  [-config config.yaml]
//	curtaincall write  [-config config.yaml] [-mode discussion|oneact] [-audio] [-solo]
//	curtaincall voices [-config config.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/curtaincall/internal/app"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/health"
	"github.com/MrWong99/curtaincall/internal/observe"
	"github.com/MrWong99/curtaincall/internal/server"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage(os.Stderr)
		return 2
	}
	cmd, rest := args[0], args[1:]

	// Provider keys usually live in .env during development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "curtaincall: .env: %v\n", err)
	}

	switch cmd {
	case "serve":
		return runServe(rest)
	case "write":
		return runWrite(rest)
	case "voices":
		return runVoices(rest)
	case "help", "-h", "-help", "--help":
		usage(os.Stdout)
		return 0
	}
	fmt.Fprintf(os.Stderr, "curtaincall: unknown command %q\n", cmd)
	usage(os.Stderr)
	return 2
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: curtaincall <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  serve    run the HTTP and websocket API")
	fmt.Fprintln(w, "  write    write one play in the terminal, optionally with audio")
	fmt.Fprintln(w, "  voices   list the voices of the configured TTS provider")
}

// loadConfig loads path, sets up the default logger and reports failures on
// stderr. A missing file falls back to the built-in defaults.
func loadConfig(path string) (*config.Config, bool) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "curtaincall: config file %q not found, using defaults\n", path)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "curtaincall: %v\n", err)
		return nil, false
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	return cfg, true
}

// newApp builds the providers named in cfg and the application around them.
func newApp(cfg *config.Config, opts ...app.Option) (*app.App, error) {
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return nil, err
	}
	return app.New(cfg, providers, opts...)
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	addr := fs.String("addr", "", "listen address (overrides server.listen_addr)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	if *addr != "" {
		cfg.Server.ListenAddr = *addr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "curtaincall", ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	application, err := newApp(cfg, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	hh := health.New(health.Checker{
		Name: "tts",
		Check: func(ctx context.Context) error {
			_, err := application.TTS().ListVoices(ctx)
			return err
		},
	})
	srv := server.New(application,
		server.WithHealth(hh),
		server.WithMetrics(metrics),
		server.WithMetricsHandler(tel.MetricsHandler),
		server.WithOriginPatterns(cfg.Server.AllowedOrigins...),
	)
	httpSrv := srv.HTTPServer(cfg.Server.ListenAddr)

	printStartupSummary(os.Stdout, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready, press Ctrl+C to shut down", "listen_addr", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		hh.Drain()

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── voices ────────────────────────────────────────────────────────────────────

func runVoices(args []string) int {
	fs := flag.NewFlagSet("voices", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, ok := loadConfig(*configPath)
	if !ok {
		return 1
	}
	application, err := newApp(cfg)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	voices, err := application.TTS().ListVoices(ctx)
	if err != nil {
		slog.Error("list voices failed", "provider", cfg.Providers.TTS.Name, "err", err)
		return 1
	}
	casting := application.TTS().Casting()
	fmt.Printf("%-28s %-24s %-8s %s\n", "ID", "NAME", "GENDER", "ROLE")
	for _, v := range voices {
		fmt.Printf("%-28s %-24s %-8s %s\n", v.ID, v.Name, v.Gender, role(v.ID, casting.Narrator, casting.Soloists))
	}
	return 0
}

func role(id, narrator string, soloists []string) string {
	if id == narrator {
		return "narrator"
	}
	for _, s := range soloists {
		if s == id {
			return "soloist"
		}
	}
	return ""
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║      curtaincall — startup summary    ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider(w, "TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	fmt.Fprintf(w, "║  Default mode    : %-19s ║\n", cfg.Play.Mode)
	fmt.Fprintf(w, "║  Language        : %-19s ║\n", truncate(cfg.Play.Language, 19))
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, truncate(value, 19))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// ── Logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
