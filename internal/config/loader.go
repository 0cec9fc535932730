package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voiceturn/internal/voice"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt":   {"openai", "deepgram", "whisper", "whisper-native"},
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"tts":   {"openai", "elevenlabs", "coqui"},
	"audio": {"portaudio"},
}

// Load reads the YAML configuration file at path. A .env file in the same
// directory, if present, is loaded into the process environment first
// without overriding variables that are already set. ${VAR} references in the
// file are then expanded from the environment.
func Load(path string) (*Config, error) {
	if err := loadDotEnv(path); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes the YAML in r, fills
// defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(expandEnv(raw)))
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

// envRef matches ${NAME}. A bare $NAME is left alone so that prompts may
// contain dollar signs.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${NAME} references with the environment value. Unset
// variables expand to the empty string.
func expandEnv(raw []byte) []byte {
	return envRef.ReplaceAllFunc(raw, func(ref []byte) []byte {
		return []byte(os.Getenv(string(ref[2 : len(ref)-1])))
	})
}

// loadDotEnv loads the .env file next to the config, if there is one.
func loadDotEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if _, err := os.Stat(envPath); err != nil {
		return nil
	}
	if err := godotenv.Load(envPath); err != nil {
		return fmt.Errorf("config: load %q: %w", envPath, err)
	}
	slog.Debug("config: loaded environment file", "path", envPath)
	return nil
}

// ApplyDefaults fills every unset field. Zero means unset for all numeric
// turn and resilience fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Providers.Audio.Name == "" {
		cfg.Providers.Audio.Name = "portaudio"
	}

	if cfg.Assistant.Voice == "" {
		cfg.Assistant.Voice = string(tts.DefaultVoice)
	}
	if cfg.Assistant.StageTimeout == 0 {
		cfg.Assistant.StageTimeout = defaultStageTimeout
	}

	p := voice.DefaultParams()
	t := &cfg.Turn
	setDefault(&t.PowerInterval, p.PowerInterval)
	setDefault(&t.SilenceInterval, p.SilenceInterval)
	setDefault(&t.PreviousThreshold, p.PreviousThreshold)
	setDefault(&t.CurrentThreshold, p.CurrentThreshold)
	setDefault(&t.InputDivisor, p.InputDivisor)
	setDefault(&t.OutputDivisor, p.OutputDivisor)
	setDefault(&t.CapturePath, p.Capture.Path)
	setDefault(&t.SampleRate, p.Capture.SampleRate)
	setDefault(&t.Channels, p.Capture.Channels)

	r := &cfg.Resilience
	setDefault(&r.MaxFailures, 3)
	setDefault(&r.ResetTimeout, defaultResetTimeout)
	setDefault(&r.HalfOpenMax, 1)
}

func setDefault[T comparable](field *T, def T) {
	var zero T
	if *field == zero {
		*field = def
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	for _, stage := range []struct {
		kind      string
		entry     ProviderEntry
		fallbacks []ProviderEntry
	}{
		{"stt", cfg.Providers.STT, cfg.Providers.Fallbacks.STT},
		{"llm", cfg.Providers.LLM, cfg.Providers.Fallbacks.LLM},
		{"tts", cfg.Providers.TTS, cfg.Providers.Fallbacks.TTS},
	} {
		if stage.entry.Name == "" {
			errs = append(errs, fmt.Errorf("providers.%s.name is required", stage.kind))
		}
		validateProviderName(stage.kind, stage.entry.Name)
		for i, fb := range stage.fallbacks {
			if fb.Name == "" {
				errs = append(errs, fmt.Errorf("providers.fallbacks.%s[%d].name is required", stage.kind, i))
			}
			validateProviderName(stage.kind, fb.Name)
		}
	}
	validateProviderName("audio", cfg.Providers.Audio.Name)

	a := cfg.Assistant
	if _, err := tts.ParseVoice(a.Voice); err != nil {
		errs = append(errs, fmt.Errorf("assistant.voice %q is invalid; valid values: %v", a.Voice, tts.Voices()))
	}
	if a.Temperature < 0 || a.Temperature > 2 {
		errs = append(errs, fmt.Errorf("assistant.temperature %.2f is out of range [0, 2]", a.Temperature))
	}
	if a.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("assistant.max_tokens %d must not be negative", a.MaxTokens))
	}

	if err := TurnParams(cfg.Turn).Validate(); err != nil {
		errs = append(errs, fmt.Errorf("turn: %w", err))
	}

	r := cfg.Resilience
	if r.MaxFailures < 0 || r.HalfOpenMax < 0 || r.ResetTimeout < 0 {
		errs = append(errs, errors.New("resilience values must not be negative"))
	}

	return errors.Join(errs...)
}

// TurnParams converts the turn section into controller parameters.
func TurnParams(t TurnConfig) voice.Params {
	p := voice.Params{
		PowerInterval:     t.PowerInterval,
		SilenceInterval:   t.SilenceInterval,
		PreviousThreshold: t.PreviousThreshold,
		CurrentThreshold:  t.CurrentThreshold,
		InputDivisor:      t.InputDivisor,
		OutputDivisor:     t.OutputDivisor,
	}
	p.Capture.Path = t.CapturePath
	p.Capture.SampleRate = t.SampleRate
	p.Capture.Channels = t.Channels
	return p
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or a third-party registration",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
