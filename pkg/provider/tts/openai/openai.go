// Package openai provides a TTS provider backed by the OpenAI speech API
// (tts-1, tts-1-hd, gpt-4o-mini-tts).
//
// Speech is requested as raw 24 kHz mono PCM and wrapped into a WAV container
// locally, so the payload is playable without a decoder for compressed
// formats.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

const (
	// DefaultModel is used when New is given an empty model.
	DefaultModel = "tts-1"

	// pcmSampleRate is the fixed rate of the API's "pcm" response format.
	pcmSampleRate = 24000
)

// Compile-time assertion that Provider satisfies tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI API.
type Provider struct {
	client       oai.Client
	model        string
	speed        float64
	instructions string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL      string
	timeout      time.Duration
	speed        float64
	instructions string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithSpeed sets the speaking rate (0.25–4.0). Zero keeps the API default.
func WithSpeed(speed float64) Option {
	return func(c *config) {
		c.speed = speed
	}
}

// WithInstructions sets delivery instructions (tone, accent). Only honoured by
// the gpt-4o-mini-tts model family.
func WithInstructions(s string) Option {
	return func(c *config) {
		c.instructions = s
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}
	return &Provider{
		client:       oai.NewClient(reqOpts...),
		model:        model,
		speed:        cfg.speed,
		instructions: cfg.instructions,
	}, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if !voice.Valid() {
		return nil, fmt.Errorf("openai: %w: %q", tts.ErrUnknownVoice, voice)
	}
	params := oai.AudioSpeechNewParams{
		Input:          text,
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if p.speed > 0 {
		params.Speed = oai.Float(p.speed)
	}
	if p.instructions != "" {
		params.Instructions = oai.String(p.instructions)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai: read speech: %w", err)
	}
	wav, err := audio.WrapPCM16(raw, pcmSampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return wav, nil
}

// ListVoices implements tts.Provider. The OpenAI catalogue is static.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	voices := tts.Voices()
	out := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		out = append(out, tts.VoiceProfile{
			ID:       string(v),
			Name:     string(v),
			Provider: "openai",
			Metadata: map[string]string{"model": p.model},
		})
	}
	return out, nil
}
