// Package config provides the configuration schema, loader, provider registry,
// and hot-reload watcher for voiceturn.
package config

import (
	"log/slog"
	"time"
)

const (
	defaultStageTimeout = 30 * time.Second
	defaultResetTimeout = 30 * time.Second
)

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

// Slog maps l to the corresponding [slog.Level]. Unknown values map to info.
func (l LogLevel) Slog() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure. Load it with [Load] or
// [LoadFromReader]; both fill unset fields via [ApplyDefaults].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Assistant  AssistantConfig  `yaml:"assistant"`
	Turn       TurnConfig       `yaml:"turn"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`

	// DiagnosticsAddr is the listen address of the metrics and health server
	// (e.g., "127.0.0.1:9090"). Empty disables the server.
	DiagnosticsAddr string `yaml:"diagnostics_addr"`
}

// ProvidersConfig selects the implementation behind each remote stage and the
// local audio device layer. Each entry names a factory in the [Registry].
type ProvidersConfig struct {
	STT   ProviderEntry `yaml:"stt"`
	LLM   ProviderEntry `yaml:"llm"`
	TTS   ProviderEntry `yaml:"tts"`
	Audio ProviderEntry `yaml:"audio"`

	// Fallbacks are tried in order when the primary of a stage fails or its
	// circuit breaker is open.
	Fallbacks FallbacksConfig `yaml:"fallbacks"`
}

// FallbacksConfig lists secondary providers per remote stage.
type FallbacksConfig struct {
	STT []ProviderEntry `yaml:"stt"`
	LLM []ProviderEntry `yaml:"llm"`
	TTS []ProviderEntry `yaml:"tts"`
}

// ProviderEntry is the configuration block shared by all provider kinds.
type ProviderEntry struct {
	// Name selects the registered implementation (e.g., "openai", "whisper").
	Name string `yaml:"name"`

	// APIKey authenticates against the provider's API, if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a model within the provider (e.g., "gpt-4o-mini", "whisper-1").
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// AssistantConfig tunes the remote calls of a turn. All fields are
// hot-reloadable and apply from the next call on.
type AssistantConfig struct {
	// Voice is the initially selected synthesis voice.
	Voice string `yaml:"voice"`

	// SystemPrompt precedes every chat request.
	SystemPrompt string `yaml:"system_prompt"`

	// Temperature in [0, 2]. Zero uses the provider default.
	Temperature float64 `yaml:"temperature"`

	// MaxTokens caps the reply. Zero uses the provider default.
	MaxTokens int `yaml:"max_tokens"`

	// Language is the BCP-47 transcription hint. Empty auto-detects.
	Language string `yaml:"language"`

	// StageTimeout bounds each remote call, and each fallback attempt within
	// it. Zero means the 30s default; a negative value disables the bound.
	StageTimeout time.Duration `yaml:"stage_timeout"`
}

// TurnConfig holds the local capture and silence detection parameters. They
// apply from the next turn on.
type TurnConfig struct {
	PowerInterval     time.Duration `yaml:"power_interval"`
	SilenceInterval   time.Duration `yaml:"silence_interval"`
	PreviousThreshold float64       `yaml:"previous_threshold"`
	CurrentThreshold  float64       `yaml:"current_threshold"`
	InputDivisor      float64       `yaml:"input_divisor"`
	OutputDivisor     float64       `yaml:"output_divisor"`
	CapturePath       string        `yaml:"capture_path"`
	SampleRate        int           `yaml:"sample_rate"`
	Channels          int           `yaml:"channels"`
}

// ResilienceConfig tunes the circuit breaker placed in front of every
// configured provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}
