package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/curtaincall/internal/agent"
	"github.com/MrWong99/curtaincall/internal/app"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/resilience"
	"github.com/MrWong99/curtaincall/pkg/audio"
	"github.com/MrWong99/curtaincall/pkg/provider/llm"
	llmmock "github.com/MrWong99/curtaincall/pkg/provider/llm/mock"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/curtaincall/pkg/provider/tts/mock"
)

const testScript = "ACT ONE\nBARISTA: One latte.\n(The machine sighs.)\nMACHINE: I love you."

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	wantLLM := []string{"anthropic", "deepseek", "gemini", "groq", "mistral", "ollama", "openai"}
	if got := reg.Names("llm"); !slices.Equal(got, wantLLM) {
		t.Errorf("llm names = %v, want %v", got, wantLLM)
	}
	wantTTS := []string{"coqui", "elevenlabs", "openai", "sarvam"}
	if got := reg.Names("tts"); !slices.Equal(got, wantTTS) {
		t.Errorf("tts names = %v, want %v", got, wantTTS)
	}

	// Every name the config accepts must have a factory.
	for _, kind := range []string{"llm", "tts"} {
		for _, name := range config.ValidProviderNames[kind] {
			if !slices.Contains(reg.Names(kind), name) {
				t.Errorf("%s/%s is valid in config but not registered", kind, name)
			}
		}
	}
}

func TestBuildProviders_BadTimeout(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	cfg := config.Default()
	cfg.Providers.LLM = config.ProviderEntry{Name: "openai", APIKey: "k", Model: "gpt-4o", Options: map[string]any{"timeout": "soon"}}
	if _, err := buildProviders(cfg, reg); err == nil || !strings.Contains(err.Error(), "timeout") {
		t.Errorf("err = %v, want timeout parse error", err)
	}
}

func TestCoquiFactory(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	p, err := reg.CreateTTS(config.ProviderEntry{
		Name:    "coqui",
		BaseURL: "http://localhost:5002",
		Options: map[string]any{"api_mode": "xtts", "narrator": "Viktor Eka", "characters": []any{"Gracie Wise", "Craig Gutsy"}},
	})
	if err != nil {
		t.Fatalf("CreateTTS: %v", err)
	}
	c := p.Casting()
	if c.Narrator != "Viktor Eka" || !slices.Equal(c.Characters, []string{"Gracie Wise", "Craig Gutsy"}) {
		t.Errorf("casting = %+v", c)
	}

	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui"}); err == nil {
		t.Error("expected error without base_url")
	}
	if _, err := reg.CreateTTS(config.ProviderEntry{Name: "coqui", BaseURL: "http://x", Options: map[string]any{"api_mode": "piper"}}); err == nil {
		t.Error("expected error for unknown api_mode")
	}
}

func TestOptDuration(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		opts    map[string]any
		want    time.Duration
		wantOK  bool
		wantErr bool
	}{
		{"nil map", nil, 0, false, false},
		{"absent", map[string]any{"x": "1s"}, 0, false, false},
		{"valid", map[string]any{"timeout": "45s"}, 45 * time.Second, true, false},
		{"not a string", map[string]any{"timeout": 45}, 0, false, true},
		{"unparsable", map[string]any{"timeout": "soon"}, 0, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok, err := optDuration(tt.opts, "timeout")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("optDuration = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestWriteFlags_Request(t *testing.T) {
	t.Parallel()
	defaults := config.Default().Play
	defaults.CritiqueRounds = 2

	f, err := parseWriteFlags([]string{"-mode", "oneact", "-theme", "robots", "-solo"})
	if err != nil {
		t.Fatal(err)
	}
	if !f.audio {
		t.Error("-solo should imply -audio")
	}
	req, err := f.request(defaults)
	if err != nil {
		t.Fatal(err)
	}
	if req.Mode != config.ModeOneAct || req.Theme != "robots" || req.CritiqueRounds != 2 {
		t.Errorf("request = %+v", req)
	}

	f, _ = parseWriteFlags([]string{"-critique-rounds", "0"})
	req, err = f.request(defaults)
	if err != nil {
		t.Fatal(err)
	}
	if req.CritiqueRounds != 0 {
		t.Errorf("CritiqueRounds = %d, want 0", req.CritiqueRounds)
	}

	f, _ = parseWriteFlags([]string{"-rounds", "99"})
	if _, err := f.request(defaults); err == nil {
		t.Error("expected error for rounds out of range")
	}
}

func TestPrintEvent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	for _, ev := range []agent.Event{
		{Kind: agent.KindRoundStart, Round: 1, Total: 2},
		{Kind: agent.KindWriterChunk, Text: "Draft"},
		{Kind: agent.KindWriterDone, Text: "Draft"},
		{Kind: agent.KindDirectorChunk, Text: "Notes"},
		{Kind: agent.KindDirectorDone, Text: "Notes"},
		{Kind: agent.KindFinalDone, Text: "THE END"},
	} {
		printEvent(&buf, ev)
	}
	out := buf.String()
	for _, want := range []string{"=== Round 1/2 ===", "--- Writer ---\nDraft", "--- Director ---\nNotes", "=== Final script ===\n\nTHE END"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteAndRenderPlay(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Output.ScriptPath = filepath.Join(dir, "out", "play.txt")
	cfg.Output.AudioPath = filepath.Join(dir, "out", "play.wav")

	l := &llmmock.Provider{Responses: []llmmock.Response{{Text: testScript, FinishReason: llm.FinishStop}}}
	s := &ttsmock.Provider{CastingResult: tts.Casting{Narrator: "fable", Characters: []string{"alloy", "echo"}}}
	a, err := app.New(cfg, &app.Providers{LLM: l, TTS: s})
	if err != nil {
		t.Fatal(err)
	}
	req, err := app.Request{Mode: config.ModeOneAct, Theme: "coffee"}.Normalize(cfg.Play)
	if err != nil {
		t.Fatal(err)
	}
	sess := a.Sessions().Create(req)

	var stdout bytes.Buffer
	if err := writePlay(context.Background(), a, sess, &stdout); err != nil {
		t.Fatalf("writePlay: %v", err)
	}
	got, err := os.ReadFile(cfg.Output.ScriptPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != testScript+"\n" {
		t.Errorf("script file = %q", got)
	}
	if !strings.Contains(stdout.String(), "BARISTA: One latte.") {
		t.Errorf("stdout = %q", stdout.String())
	}

	if err := renderPlay(context.Background(), a, sess, app.AudioOptions{}); err != nil {
		t.Fatalf("renderPlay: %v", err)
	}
	wav, err := os.ReadFile(cfg.Output.AudioPath)
	if err != nil {
		t.Fatal(err)
	}
	if clip, err := audio.DecodeWAV(wav); err != nil || clip.Format != audio.Output {
		t.Errorf("DecodeWAV: format %+v, err %v", clip.Format, err)
	}
}

func TestWritePlay_Failure(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Output.ScriptPath = filepath.Join(t.TempDir(), "play.txt")

	boom := errors.New("provider down")
	l := &llmmock.Provider{Responses: []llmmock.Response{{StartErr: boom}}}
	a, err := app.New(cfg, &app.Providers{LLM: l, TTS: &ttsmock.Provider{}})
	if err != nil {
		t.Fatal(err)
	}
	req, _ := app.Request{Mode: config.ModeOneAct, Theme: "coffee"}.Normalize(cfg.Play)
	sess := a.Sessions().Create(req)

	if err := writePlay(context.Background(), a, sess, &bytes.Buffer{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
	if _, err := os.Stat(cfg.Output.ScriptPath); !os.IsNotExist(err) {
		t.Errorf("script file should not exist, stat err = %v", err)
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	if got := run([]string{"dance"}); got != 2 {
		t.Errorf("run = %d, want 2", got)
	}
	if got := run(nil); got != 2 {
		t.Errorf("run = %d, want 2", got)
	}
}

func TestSummaryHelpers(t *testing.T) {
	t.Parallel()
	if got := truncate("Bengali (বাংলা)", 19); got != "Bengali (বাংলা)" {
		t.Errorf("truncate short = %q", got)
	}
	if got := truncate("anthropic / claude-sonnet-4-6", 19); len([]rune(got)) != 19 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate long = %q", got)
	}
	if got := role("fable", "fable", nil); got != "narrator" {
		t.Errorf("role = %q", got)
	}
	if got := role("onyx", "fable", []string{"onyx"}); got != "soloist" {
		t.Errorf("role = %q", got)
	}

	var buf bytes.Buffer
	printStartupSummary(&buf, config.Default())
	if !strings.Contains(buf.String(), "anthropic") {
		t.Errorf("summary = %s", buf.String())
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	reg.RegisterLLM("fake", func(config.ProviderEntry) (llm.Provider, error) { return &llmmock.Provider{}, nil })
	reg.RegisterTTS("fake", func(config.ProviderEntry) (tts.Provider, error) { return &ttsmock.Provider{}, nil })

	cfg := config.Default()
	cfg.Providers.LLM = config.ProviderEntry{Name: "fake", Model: "a"}
	cfg.Providers.TTS = config.ProviderEntry{Name: "fake"}

	ps, err := buildProviders(cfg, reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ps.LLM.(*llmmock.Provider); !ok {
		t.Errorf("LLM = %T, want the bare provider without fallbacks", ps.LLM)
	}

	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "fake", Model: "b"}}
	ps, err = buildProviders(cfg, reg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ps.LLM.(*resilience.LLMFallback); !ok {
		t.Errorf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}

	cfg.Providers.LLMFallbacks = []config.ProviderEntry{{Name: "missing", Model: "c"}}
	if _, err := buildProviders(cfg, reg); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
