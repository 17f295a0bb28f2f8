package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Round limits enforced by [Validate] and by the API.
const (
	MaxRounds         = 8
	MaxCritiqueRounds = 5
)

// Languages lists the content languages the prompts and voices are tuned
// for. Other values are accepted with a warning.
var Languages = []string{"English", "Hindi (हिंदी)", "Bengali (বাংলা)"}

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"anthropic", "openai", "gemini", "ollama", "deepseek", "mistral", "groq"},
	"tts": {"openai", "sarvam", "elevenlabs", "coqui"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${VAR} references from
// the environment, applies defaults, and validates the result. An empty
// document yields the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.ExpandEnv(string(raw))

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero field of cfg with its default.
func ApplyDefaults(cfg *Config) {
	setDefault(&cfg.Server.ListenAddr, ":8080")
	setDefault(&cfg.Server.LogLevel, LogInfo)
	setDefault(&cfg.Server.ShutdownTimeout, 15*time.Second)

	setDefault(&cfg.Providers.LLM.Name, "anthropic")
	if cfg.Providers.LLM.Model == "" {
		cfg.Providers.LLM.Model = defaultLLMModel(cfg.Providers.LLM.Name)
	}
	setDefault(&cfg.Providers.TTS.Name, "openai")
	for i := range cfg.Providers.LLMFallbacks {
		fb := &cfg.Providers.LLMFallbacks[i]
		if fb.Model == "" {
			fb.Model = defaultLLMModel(fb.Name)
		}
	}
	setDefault(&cfg.Providers.Failover.MaxFailures, 3)
	setDefault(&cfg.Providers.Failover.ResetTimeout, 30*time.Second)

	setDefault(&cfg.Generation.MaxTokensRound, 64000)
	setDefault(&cfg.Generation.MaxTokensFinal, 64000)
	setDefault(&cfg.Generation.MaxTokensCritique, 1024)
	setDefault(&cfg.Generation.MaxTokensMonologue, 1024)
	setDefault(&cfg.Generation.MaxContinuations, 4)

	setDefault(&cfg.Play.Mode, ModeDiscussion)
	setDefault(&cfg.Play.Genre, "Comedy")
	setDefault(&cfg.Play.Theme, "A sentient coffee machine falls in love with a barista who wants to quit their job")
	setDefault(&cfg.Play.Tone, "Satirical and absurd")
	setDefault(&cfg.Play.Language, "English")
	setDefault(&cfg.Play.Rounds, 5)
	// CritiqueRounds keeps zero: a single-shot one-act is a valid choice.

	setDefault(&cfg.Audio.DialogueSilence, 300*time.Millisecond)
	setDefault(&cfg.Audio.HeadingSilence, 800*time.Millisecond)
	setDefault(&cfg.Audio.TTSTimeout, 30*time.Second)

	setDefault(&cfg.Output.ScriptPath, "play.txt")
	setDefault(&cfg.Output.AudioPath, "play.wav")
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

func defaultLLMModel(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-sonnet-4-6"
	case "openai":
		return "gpt-4o"
	case "gemini":
		return "gemini-2.5-pro"
	}
	return ""
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", cfg.Server.ShutdownTimeout))
	}

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.LLM.Model == "" {
		errs = append(errs, fmt.Errorf("providers.llm.model is required for %q", cfg.Providers.LLM.Name))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
			continue
		}
		if fb.Model == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].model is required for %q", i, fb.Name))
		}
		validateProviderName("llm", fb.Name)
	}
	if cfg.Providers.Failover.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("providers.failover.max_failures %d must not be negative", cfg.Providers.Failover.MaxFailures))
	}
	if cfg.Providers.Failover.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("providers.failover.reset_timeout %s must not be negative", cfg.Providers.Failover.ResetTimeout))
	}

	g := cfg.Generation
	for _, f := range []struct {
		name string
		v    int
	}{
		{"max_tokens_round", g.MaxTokensRound},
		{"max_tokens_final", g.MaxTokensFinal},
		{"max_tokens_critique", g.MaxTokensCritique},
		{"max_tokens_monologue", g.MaxTokensMonologue},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("generation.%s %d must not be negative", f.name, f.v))
		}
	}
	if g.Temperature < 0 || g.Temperature > 2 {
		errs = append(errs, fmt.Errorf("generation.temperature %.2f is out of range [0, 2]", g.Temperature))
	}

	p := cfg.Play
	if p.Mode != "" && !p.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("play.mode %q is invalid; valid values: discussion, oneact", p.Mode))
	}
	if p.Rounds < 0 || p.Rounds > MaxRounds {
		errs = append(errs, fmt.Errorf("play.rounds %d is out of range [1, %d]", p.Rounds, MaxRounds))
	}
	if p.CritiqueRounds < 0 || p.CritiqueRounds > MaxCritiqueRounds {
		errs = append(errs, fmt.Errorf("play.critique_rounds %d is out of range [0, %d]", p.CritiqueRounds, MaxCritiqueRounds))
	}
	if p.Language != "" && !slices.Contains(Languages, p.Language) {
		slog.Warn("play.language is not one of the tuned languages; output quality may vary",
			"language", p.Language,
			"known", Languages,
		)
	}

	a := cfg.Audio
	if a.DialogueSilence < 0 || a.HeadingSilence < 0 {
		errs = append(errs, errors.New("audio silences must not be negative"))
	}
	if a.TTSTimeout < 0 {
		errs = append(errs, fmt.Errorf("audio.tts_timeout %s must not be negative", a.TTSTimeout))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	if slices.Contains(ValidProviderNames[kind], name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", ValidProviderNames[kind],
	)
}
