// Package assistant implements the remote half of a voice turn on top of the
// provider abstractions: transcription through an [stt.Provider], a single-turn
// chat completion through an [llm.Provider], and speech synthesis through a
// [tts.Provider].
//
// A [Client] satisfies voice.Assistant. Its [Settings] can be swapped at any
// time with [Client.Update]; calls already in flight keep the settings they
// started with.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voiceturn/internal/observe"
	"github.com/MrWong99/voiceturn/internal/resilience"
	"github.com/MrWong99/voiceturn/pkg/provider/llm"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// ErrEmptyAudio is returned by Transcribe for a zero-length payload.
var ErrEmptyAudio = errors.New("assistant: empty audio")

// Settings are the tunables applied to each call.
type Settings struct {
	// SystemPrompt is sent ahead of the user's utterance. Empty sends none.
	SystemPrompt string

	// Temperature for the chat completion. Zero uses the provider default.
	Temperature float64

	// MaxTokens caps the reply length. Zero uses the provider default.
	MaxTokens int

	// Language is the BCP-47 hint for transcription. Empty auto-detects.
	Language string

	// StageTimeout bounds each remote call. Behind a resilience fallback
	// chain it bounds every attempt, so each backend gets the full budget.
	// Zero or negative disables the bound.
	StageTimeout time.Duration
}

// DefaultSettings returns the settings used when none are supplied.
func DefaultSettings() Settings {
	return Settings{
		SystemPrompt: "You are a helpful voice assistant. Answer in one or two short spoken sentences.",
		StageTimeout: 30 * time.Second,
	}
}

// Names labels the providers in metrics and spans. Behind a fallback chain the
// entry that handled the call is used instead.
type Names struct {
	STT string
	LLM string
	TTS string
}

// Client is a voice.Assistant backed by provider implementations.
type Client struct {
	stt     stt.Provider
	llm     llm.Provider
	tts     tts.Provider
	names   Names
	metrics *observe.Metrics

	settings atomic.Pointer[Settings]
}

// Option is a functional option for [New].
type Option func(*Client)

// WithSettings sets the initial settings.
func WithSettings(s Settings) Option {
	return func(c *Client) { c.settings.Store(&s) }
}

// WithNames sets the provider labels. Empty names are left at their default.
func WithNames(n Names) Option {
	return func(c *Client) {
		if n.STT != "" {
			c.names.STT = n.STT
		}
		if n.LLM != "" {
			c.names.LLM = n.LLM
		}
		if n.TTS != "" {
			c.names.TTS = n.TTS
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client. All three providers are required.
func New(s stt.Provider, l llm.Provider, t tts.Provider, opts ...Option) (*Client, error) {
	if s == nil || l == nil || t == nil {
		return nil, errors.New("assistant: stt, llm and tts providers are required")
	}
	c := &Client{
		stt:   s,
		llm:   l,
		tts:   t,
		names: Names{STT: "stt", LLM: "llm", TTS: "tts"},
	}
	def := DefaultSettings()
	c.settings.Store(&def)
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c, nil
}

// Settings returns the current settings.
func (c *Client) Settings() Settings { return *c.settings.Load() }

// Update replaces the settings for calls that start afterwards.
func (c *Client) Update(s Settings) { c.settings.Store(&s) }

// Transcribe converts a WAV utterance into trimmed text. Silence yields an
// empty string and no error.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", ErrEmptyAudio
	}
	s := c.Settings()
	tr, err := call(ctx, c, s, "stt", c.names.STT, c.stt, c.metrics.STTDuration, func(ctx context.Context) (*stt.Transcript, error) {
		return c.stt.Transcribe(ctx, stt.Request{Audio: audio, Language: s.Language})
	})
	if err != nil {
		return "", err
	}
	if tr == nil {
		return "", nil
	}
	return strings.TrimSpace(tr.Text), nil
}

// Chat answers prompt in a single exchange; no history is kept between turns.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	s := c.Settings()
	req := llm.CompletionRequest{
		Messages:     []llm.Message{llm.UserMessage(prompt)},
		SystemPrompt: s.SystemPrompt,
		Temperature:  s.Temperature,
		MaxTokens:    s.MaxTokens,
	}
	resp, err := call(ctx, c, s, "llm", c.names.LLM, c.llm, c.metrics.LLMDuration, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return c.llm.Complete(ctx, req)
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", nil
	}
	if resp.FinishReason == "length" {
		observe.Logger(ctx).Debug("assistant: reply truncated", "max_tokens", s.MaxTokens)
	}
	return strings.TrimSpace(resp.Content), nil
}

// Synthesize renders text with voice into a WAV payload.
func (c *Client) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if !voice.Valid() {
		return nil, fmt.Errorf("assistant: %w: %q", tts.ErrUnknownVoice, voice)
	}
	return call(ctx, c, c.Settings(), "tts", c.names.TTS, c.tts, c.metrics.TTSDuration, func(ctx context.Context) ([]byte, error) {
		return c.tts.Synthesize(ctx, text, voice)
	})
}

// chain is implemented by the resilience fallbacks.
type chain interface {
	Status() []resilience.EntryStatus
}

// call runs fn under the stage timeout and records its latency and outcome
// against the provider that handled it. A chain bounds each of its attempts
// with the timeout; any other provider is bounded as a whole. A cancelled
// call is reported with status "cancelled" and is not counted as a provider
// error.
func call[T any](ctx context.Context, c *Client, s Settings, kind, provider string, p any, hist metric.Float64Histogram, fn func(context.Context) (T, error)) (T, error) {
	parent := ctx
	if _, chained := p.(chain); chained {
		ctx = resilience.WithAttemptTimeout(ctx, s.StageTimeout)
	} else if s.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.StageTimeout)
		defer cancel()
	}
	ctx, attempts := resilience.TrackAttempts(ctx)

	start := time.Now()
	v, err := fn(ctx)
	elapsed := time.Since(start).Seconds()

	// Every failed attempt but the last was absorbed by a fallback; the last
	// one carries the call's outcome.
	if tried := attempts(); len(tried) > 0 {
		for _, a := range tried[:len(tried)-1] {
			c.metrics.RecordProviderRequest(ctx, a.Name, kind, "error")
			c.metrics.RecordProviderError(ctx, a.Name, kind)
		}
		provider = tried[len(tried)-1].Name
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("provider", provider))
	hist.Record(ctx, elapsed, metric.WithAttributes(attribute.String("provider", provider)))

	switch {
	case err == nil:
		c.metrics.RecordProviderRequest(ctx, provider, kind, "ok")
		return v, nil
	case errors.Is(err, context.Canceled):
		c.metrics.RecordProviderRequest(ctx, provider, kind, "cancelled")
	default:
		c.metrics.RecordProviderRequest(ctx, provider, kind, "error")
		c.metrics.RecordProviderError(ctx, provider, kind)
		if errors.Is(err, context.DeadlineExceeded) && parent.Err() == nil && ctx.Err() != nil {
			err = fmt.Errorf("timed out after %s: %w", s.StageTimeout, err)
		}
	}
	var zero T
	return zero, fmt.Errorf("%s %s: %w", kind, provider, err)
}
