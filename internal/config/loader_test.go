package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/curtaincall/internal/config"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"log level", "server:\n  log_level: verbose\n", "server.log_level"},
		{"mode", "play:\n  mode: sonnet\n", "play.mode"},
		{"rounds high", "play:\n  rounds: 9\n", "play.rounds"},
		{"rounds negative", "play:\n  rounds: -1\n", "play.rounds"},
		{"critique rounds", "play:\n  critique_rounds: 6\n", "play.critique_rounds"},
		{"temperature", "generation:\n  temperature: 3\n", "generation.temperature"},
		{"negative tokens", "generation:\n  max_tokens_critique: -5\n", "generation.max_tokens_critique"},
		{"silence", "audio:\n  dialogue_silence: -1s\n", "silences"},
		{"model for unknown llm", "providers:\n  llm:\n    name: llamafile\n", "providers.llm.model"},
		{"fallback name", "providers:\n  llm_fallbacks:\n    - model: x\n", "providers.llm_fallbacks[0].name"},
		{"fallback model", "providers:\n  llm_fallbacks:\n    - name: groq\n", "providers.llm_fallbacks[0].model"},
		{"failover", "providers:\n  failover:\n    max_failures: -2\n", "providers.failover.max_failures"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidate_ZeroCritiqueRoundsIsValid(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("play:\n  mode: oneact\n  critique_rounds: 0\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Play.CritiqueRounds != 0 {
		t.Errorf("critique_rounds = %d", cfg.Play.CritiqueRounds)
	}
}

func TestValidate_NegativeContinuationsDisables(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("generation:\n  max_continuations: -1\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Generation.MaxContinuations != -1 {
		t.Errorf("max_continuations = %d, want -1", cfg.Generation.MaxContinuations)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Server.LogLevel = "loud"
	cfg.Play.Mode = "epic"
	cfg.Play.Rounds = 100

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	for _, want := range []string{"log_level", "play.mode", "play.rounds"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestValidProviderNames(t *testing.T) {
	t.Parallel()
	for _, kind := range []string{"llm", "tts"} {
		if len(config.ValidProviderNames[kind]) == 0 {
			t.Errorf("ValidProviderNames[%q] is empty", kind)
		}
	}
}

func TestLoad_Fallbacks(t *testing.T) {
	t.Parallel()
	yaml := `providers:
  llm:
    name: anthropic
  llm_fallbacks:
    - name: openai
    - name: ollama
      model: llama3.3
      base_url: http://localhost:11434
  failover:
    reset_timeout: 2m
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fbs := cfg.Providers.LLMFallbacks
	if len(fbs) != 2 || fbs[0].Model != "gpt-4o" || fbs[1].Model != "llama3.3" {
		t.Errorf("fallbacks = %+v", fbs)
	}
	if f := cfg.Providers.Failover; f.MaxFailures != 3 || f.ResetTimeout.String() != "2m0s" {
		t.Errorf("failover = %+v", f)
	}
}
