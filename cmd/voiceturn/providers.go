package main

import (
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voiceturn/internal/app"
	"github.com/MrWong99/voiceturn/internal/config"
	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/audio/portaudio"
	"github.com/MrWong99/voiceturn/pkg/provider/llm"
	"github.com/MrWong99/voiceturn/pkg/provider/llm/anyllm"
	llmopenai "github.com/MrWong99/voiceturn/pkg/provider/llm/openai"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
	"github.com/MrWong99/voiceturn/pkg/provider/stt/deepgram"
	sttopenai "github.com/MrWong99/voiceturn/pkg/provider/stt/openai"
	"github.com/MrWong99/voiceturn/pkg/provider/stt/whisper"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
	"github.com/MrWong99/voiceturn/pkg/provider/tts/coqui"
	"github.com/MrWong99/voiceturn/pkg/provider/tts/elevenlabs"
	ttsopenai "github.com/MrWong99/voiceturn/pkg/provider/tts/openai"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation package.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, sttopenai.WithTimeout(d))
		}
		return sttopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, whisper.WithTimeout(d))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		if n := entry.OptInt("threads", 0); n > 0 {
			opts = append(opts, whisper.WithNativeThreads(uint(n)))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []llmopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, llmopenai.WithOrganization(org))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, llmopenai.WithTimeout(d))
		}
		if n := entry.OptInt("max_retries", -1); n >= 0 {
			opts = append(opts, llmopenai.WithMaxRetries(n))
		}
		return llmopenai.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining vendors share the any-llm pattern: optional APIKey plus
	// optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
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

	// ── TTS ───────────────────────────────────────────────────────────────────

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []ttsopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, ttsopenai.WithBaseURL(entry.BaseURL))
		}
		if speed := entry.OptFloat("speed", 0); speed > 0 {
			opts = append(opts, ttsopenai.WithSpeed(speed))
		}
		if s := entry.OptString("instructions"); s != "" {
			opts = append(opts, ttsopenai.WithInstructions(s))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, ttsopenai.WithTimeout(d))
		}
		return ttsopenai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		if outputFmt := entry.OptString("output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if ids, err := voiceMap(entry.OptStringMap("voice_ids")); err != nil {
			return nil, err
		} else if len(ids) > 0 {
			opts = append(opts, elevenlabs.WithVoiceIDs(ids))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []coqui.Option
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if mode := entry.OptString("api_mode"); mode != "" {
			opts = append(opts, coqui.WithAPIMode(coqui.APIMode(mode)))
		}
		if rate := entry.OptInt("sample_rate", 0); rate > 0 {
			opts = append(opts, coqui.WithOutputSampleRate(rate))
		}
		if d := entry.OptDuration("timeout", 0); d > 0 {
			opts = append(opts, coqui.WithTimeout(d))
		}
		if speakers, err := voiceMap(entry.OptStringMap("speakers")); err != nil {
			return nil, err
		} else if len(speakers) > 0 {
			opts = append(opts, coqui.WithSpeakers(speakers))
		}
		return coqui.New(entry.BaseURL, opts...)
	})

	// ── Audio ─────────────────────────────────────────────────────────────────

	reg.RegisterAudio("portaudio", func(entry config.ProviderEntry) (audio.Platform, error) {
		return portaudio.New(portaudio.WithBufferMs(entry.OptInt("buffer_ms", 0)))
	})

	for _, kind := range []string{"stt", "llm", "tts", "audio"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// voiceMap keys a per-voice option map by catalogue voice.
func voiceMap(m map[string]string) (map[tts.Voice]string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[tts.Voice]string, len(m))
	for k, v := range m {
		voice, err := tts.ParseVoice(k)
		if err != nil {
			return nil, err
		}
		out[voice] = v
	}
	return out, nil
}

// buildProviders instantiates the primary and fallback providers named in cfg
// and returns them in an [app.Providers] for the application to consume.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}
	var err error

	if ps.STT, err = buildChain("stt", reg.CreateSTT, cfg.Providers.STT, cfg.Providers.Fallbacks.STT); err != nil {
		return nil, err
	}
	if ps.LLM, err = buildChain("llm", reg.CreateLLM, cfg.Providers.LLM, cfg.Providers.Fallbacks.LLM); err != nil {
		return nil, err
	}
	if ps.TTS, err = buildChain("tts", reg.CreateTTS, cfg.Providers.TTS, cfg.Providers.Fallbacks.TTS); err != nil {
		return nil, err
	}

	// A missing audio device is not fatal: the controller reports it through
	// its Error phase and the diagnostics endpoints.
	if name := cfg.Providers.Audio.Name; name != "" {
		p, err := reg.CreateAudio(cfg.Providers.Audio)
		if err != nil {
			slog.Error("audio platform unavailable", "name", name, "err", err)
		} else {
			ps.Audio = p
			slog.Info("provider created", "kind", "audio", "name", name)
		}
	}
	return ps, nil
}

func buildChain[T any](kind string, create func(config.ProviderEntry) (T, error), primary config.ProviderEntry, fallbacks []config.ProviderEntry) ([]app.Named[T], error) {
	chain := make([]app.Named[T], 0, 1+len(fallbacks))
	for i, entry := range append([]config.ProviderEntry{primary}, fallbacks...) {
		p, err := create(entry)
		if err != nil {
			if i == 0 {
				return nil, fmt.Errorf("create %s provider %q: %w", kind, entry.Name, err)
			}
			slog.Warn("skipping fallback provider", "kind", kind, "name", entry.Name, "err", err)
			continue
		}
		chain = append(chain, app.Named[T]{Name: entry.Name, Provider: p})
		slog.Info("provider created", "kind", kind, "name", entry.Name, "fallback", i > 0)
	}
	return chain, nil
}
