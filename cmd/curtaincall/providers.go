package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/curtaincall/internal/app"
	"github.com/MrWong99/curtaincall/internal/config"
	"github.com/MrWong99/curtaincall/internal/resilience"
	"github.com/MrWong99/curtaincall/pkg/provider/llm"
	"github.com/MrWong99/curtaincall/pkg/provider/llm/anyllm"
	oallm "github.com/MrWong99/curtaincall/pkg/provider/llm/openai"
	"github.com/MrWong99/curtaincall/pkg/provider/tts"
	"github.com/MrWong99/curtaincall/pkg/provider/tts/coqui"
	"github.com/MrWong99/curtaincall/pkg/provider/tts/elevenlabs"
	oatts "github.com/MrWong99/curtaincall/pkg/provider/tts/openai"
	"github.com/MrWong99/curtaincall/pkg/provider/tts/sarvam"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// Hosted any-llm backends share the same pattern: optional APIKey and
	// optional BaseURL.
	for _, providerName := range []string{"anthropic", "gemini", "deepseek", "mistral", "groq"} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := config.OptString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d, ok, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oatts.Option
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if d, ok, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, oatts.WithTimeout(d))
		}
		return oatts.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("sarvam", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []sarvam.Option
		if entry.BaseURL != "" {
			opts = append(opts, sarvam.WithEndpoint(entry.BaseURL))
		}
		if entry.Model != "" {
			opts = append(opts, sarvam.WithModel(entry.Model))
		}
		if v := config.OptString(entry.Options, "narrator"); v != "" {
			opts = append(opts, sarvam.WithNarrator(v))
		}
		if d, ok, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, sarvam.WithTimeout(d))
		}
		return sarvam.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := config.OptString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if v := config.OptString(entry.Options, "narrator"); v != "" {
			opts = append(opts, elevenlabs.WithNarrator(v))
		}
		if d, ok, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, elevenlabs.WithTimeout(d))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	// coqui is self-hosted; BaseURL is the server address and is required.
	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		mode, err := coqui.ParseAPIMode(config.OptString(entry.Options, "api_mode"))
		if err != nil {
			return nil, err
		}
		opts := []coqui.Option{coqui.WithAPIMode(mode)}
		if lang := config.OptString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if v := config.OptString(entry.Options, "narrator"); v != "" {
			opts = append(opts, coqui.WithNarrator(v))
		}
		if chars := config.OptStrings(entry.Options, "characters"); len(chars) > 0 {
			opts = append(opts, coqui.WithCharacters(chars))
		}
		if d, ok, err := optDuration(entry.Options, "timeout"); err != nil {
			return nil, err
		} else if ok {
			opts = append(opts, coqui.WithTimeout(d))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	for _, kind := range []string{"llm", "tts"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	p, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = p
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if len(cfg.Providers.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(cfg.Providers.LLM.Name, p, resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Providers.Failover.MaxFailures,
			ResetTimeout: cfg.Providers.Failover.ResetTimeout,
		})
		for i, entry := range cfg.Providers.LLMFallbacks {
			fp, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %d %q: %w", i, entry.Name, err)
			}
			fb.AddFallback(fmt.Sprintf("%s/%s", entry.Name, entry.Model), fp)
			slog.Info("provider created", "kind", "llm-fallback", "name", entry.Name, "model", entry.Model)
		}
		ps.LLM = fb
	}

	t, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = t
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	return ps, nil
}

// optDuration parses a duration string such as "45s" from a provider Options
// map. ok is false when the key is absent.
func optDuration(opts map[string]any, key string) (d time.Duration, ok bool, err error) {
	s := config.OptString(opts, key)
	if s == "" {
		if _, present := opts[key]; present {
			return 0, false, errors.New("option " + key + " must be a duration string")
		}
		return 0, false, nil
	}
	d, err = time.ParseDuration(s)
	if err != nil {
		return 0, false, fmt.Errorf("option %s: %w", key, err)
	}
	return d, true, nil
}
