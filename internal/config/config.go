// Package config provides the configuration schema, loader, and provider
// registry for curtaincall.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Mode selects how a play is written.
type Mode string

const (
	// ModeDiscussion runs the writer/director discussion for a full play.
	ModeDiscussion Mode = "discussion"

	// ModeOneAct drafts a short comic play and refines it through critique
	// rounds.
	ModeOneAct Mode = "oneact"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	return m == ModeDiscussion || m == ModeOneAct
}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Generation GenerationConfig `yaml:"generation"`
	Play       PlayConfig       `yaml:"play"`
	Audio      AudioConfig      `yaml:"audio"`
	Output     OutputConfig     `yaml:"output"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the API listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	LogLevel LogLevel `yaml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AllowedOrigins lists host patterns accepted on websocket upgrades in
	// addition to same-origin requests.
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// ProvidersConfig selects the language model and the speech backend. Each
// entry names a provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	TTS ProviderEntry `yaml:"tts"`

	// LLMFallbacks are tried in order when the primary language model fails
	// to start a call or its circuit breaker is open.
	LLMFallbacks []ProviderEntry `yaml:"llm_fallbacks"`

	Failover FailoverConfig `yaml:"failover"`
}

// FailoverConfig tunes the circuit breaker kept for each language model when
// fallbacks are configured.
type FailoverConfig struct {
	// MaxFailures is the number of consecutive failures that opens a breaker.
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long an open breaker rejects calls before probing.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "anthropic", "sarvam").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider. Usually written as
	// "${ANTHROPIC_API_KEY}" and expanded from the environment.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model (e.g., "claude-sonnet-4-6", "bulbul:v3").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// GenerationConfig bounds the model calls.
type GenerationConfig struct {
	// MaxTokensRound caps each writer and director turn of a discussion.
	MaxTokensRound int `yaml:"max_tokens_round"`

	// MaxTokensFinal caps the final script call and every one-act draft or
	// revision.
	MaxTokensFinal int `yaml:"max_tokens_final"`

	MaxTokensCritique  int `yaml:"max_tokens_critique"`
	MaxTokensMonologue int `yaml:"max_tokens_monologue"`

	// MaxContinuations is the number of follow-up requests made for a
	// truncated script. Zero selects the default; negative disables.
	MaxContinuations int `yaml:"max_continuations"`

	Temperature float64 `yaml:"temperature"`
}

// PlayConfig holds the defaults for plays written from the command line and
// for API requests that omit fields.
type PlayConfig struct {
	Mode     Mode   `yaml:"mode"`
	Genre    string `yaml:"genre"`
	Theme    string `yaml:"theme"`
	Tone     string `yaml:"tone"`
	Language string `yaml:"language"`

	// Rounds is the number of writer/director rounds (discussion mode).
	Rounds int `yaml:"rounds"`

	// CritiqueRounds is the number of critique/revise rounds (oneact mode).
	CritiqueRounds int `yaml:"critique_rounds"`
}

// AudioConfig tunes audio rendering.
type AudioConfig struct {
	// NarratorVoice overrides the provider's default narrator.
	NarratorVoice string `yaml:"narrator_voice"`

	// SoloVoice is the voice used for single-performer renders. Empty picks
	// the provider's first soloist.
	SoloVoice string `yaml:"solo_voice"`

	DialogueSilence time.Duration `yaml:"dialogue_silence"`
	HeadingSilence  time.Duration `yaml:"heading_silence"`

	// TTSTimeout bounds each synthesis request.
	TTSTimeout time.Duration `yaml:"tts_timeout"`
}

// OutputConfig names the files written by the write command.
type OutputConfig struct {
	ScriptPath string `yaml:"script_path"`
	AudioPath  string `yaml:"audio_path"`
}
