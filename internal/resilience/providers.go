package resilience

import (
	"context"

	"github.com/MrWong99/voiceturn/pkg/provider/llm"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// STTFallback implements [stt.Provider] with failover across transcription
// backends.
type STTFallback struct {
	*FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Transcribe sends req to the first healthy backend.
func (f *STTFallback) Transcribe(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(ctx context.Context, p stt.Provider) (*stt.Transcript, error) {
		return p.Transcribe(ctx, req)
	})
}

// LLMFallback implements [llm.Provider] with failover across chat backends.
type LLMFallback struct {
	*FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

// NewLLMFallback creates an [LLMFallback] with primary as the preferred backend.
func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Complete sends req to the first healthy backend.
func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(ctx context.Context, p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// TTSFallback implements [tts.Provider] with failover across synthesis
// backends.
type TTSFallback struct {
	*FallbackGroup[tts.Provider]
}

var _ tts.Provider = (*TTSFallback)(nil)

// NewTTSFallback creates a [TTSFallback] with primary as the preferred backend.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	return &TTSFallback{NewFallbackGroup(primary, primaryName, cfg)}
}

// Synthesize renders text on the first healthy backend.
func (f *TTSFallback) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(ctx context.Context, p tts.Provider) ([]byte, error) {
		return p.Synthesize(ctx, text, voice)
	})
}

// ListVoices returns the voices of the first healthy backend.
func (f *TTSFallback) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return ExecuteWithResult(ctx, f.FallbackGroup, func(ctx context.Context, p tts.Provider) ([]tts.VoiceProfile, error) {
		return p.ListVoices(ctx)
	})
}
