package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/voiceturn/internal/observe"
	"github.com/MrWong99/voiceturn/internal/resilience"
	"github.com/MrWong99/voiceturn/pkg/provider/llm"
	llmmock "github.com/MrWong99/voiceturn/pkg/provider/llm/mock"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
	sttmock "github.com/MrWong99/voiceturn/pkg/provider/stt/mock"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
	ttsmock "github.com/MrWong99/voiceturn/pkg/provider/tts/mock"
)

// blockingLLM waits for its context to end.
type blockingLLM struct{}

func (blockingLLM) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// deadlineLLM reports whether its context carried a deadline.
type deadlineLLM struct{ saw *bool }

func (d deadlineLLM) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	_, *d.saw = ctx.Deadline()
	return &llm.CompletionResponse{Content: "ok"}, nil
}

type fixture struct {
	stt    *sttmock.Provider
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	reader *sdkmetric.ManualReader
}

func newClient(t *testing.T, opts ...Option) (*Client, *fixture) {
	t.Helper()
	f := &fixture{
		stt: &sttmock.Provider{Result: &stt.Transcript{Text: "  what time is it?\n"}},
		llm: &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " It is noon. ", FinishReason: "stop"}},
		tts: &ttsmock.Provider{SynthesizeResult: []byte("RIFF-speech")},
	}
	m := f.newMetrics(t)
	opts = append([]Option{WithMetrics(m), WithNames(Names{STT: "whisper", LLM: "openai", TTS: "coqui"})}, opts...)
	c, err := New(f.stt, f.llm, f.tts, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, f
}

// newMetrics returns metrics collected by f.reader.
func (f *fixture) newMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	f.reader = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

// requests sums voiceturn.provider.requests for the given attributes.
func (f *fixture) requests(t *testing.T, provider, status string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "voiceturn.provider.requests" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				p, _ := dp.Attributes.Value(attribute.Key("provider"))
				s, _ := dp.Attributes.Value(attribute.Key("status"))
				if p.AsString() == provider && s.AsString() == status {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestNew_RequiresProviders(t *testing.T) {
	if _, err := New(nil, &llmmock.Provider{}, &ttsmock.Provider{}); err == nil {
		t.Error("expected error for missing stt provider")
	}
	c, err := New(&sttmock.Provider{}, &llmmock.Provider{}, &ttsmock.Provider{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Settings(); got != DefaultSettings() {
		t.Errorf("Settings = %+v, want defaults", got)
	}
}

func TestClient_Exchange(t *testing.T) {
	c, f := newClient(t, WithSettings(Settings{
		SystemPrompt: "Be brief.",
		Temperature:  0.4,
		MaxTokens:    64,
		Language:     "en",
	}))
	ctx := context.Background()

	text, err := c.Transcribe(ctx, []byte("RIFF-utterance"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "what time is it?" {
		t.Errorf("transcript = %q", text)
	}
	sttCalls := f.stt.Calls()
	if len(sttCalls) != 1 || string(sttCalls[0].Req.Audio) != "RIFF-utterance" || sttCalls[0].Req.Language != "en" {
		t.Errorf("stt calls = %+v", sttCalls)
	}

	reply, err := c.Chat(ctx, text)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply != "It is noon." {
		t.Errorf("reply = %q", reply)
	}
	llmCalls := f.llm.Calls()
	if len(llmCalls) != 1 {
		t.Fatalf("llm calls = %d, want 1", len(llmCalls))
	}
	req := llmCalls[0].Req
	if req.SystemPrompt != "Be brief." || req.Temperature != 0.4 || req.MaxTokens != 64 {
		t.Errorf("request settings = %+v", req)
	}
	if len(req.Messages) != 1 || req.Messages[0] != llm.UserMessage("what time is it?") {
		t.Errorf("messages = %+v, want the single user utterance", req.Messages)
	}

	speech, err := c.Synthesize(ctx, reply, tts.Onyx)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(speech) != "RIFF-speech" {
		t.Errorf("speech = %q", speech)
	}
	ttsCalls := f.tts.Calls()
	if len(ttsCalls) != 1 || ttsCalls[0].Text != "It is noon." || ttsCalls[0].Voice != tts.Onyx {
		t.Errorf("tts calls = %+v", ttsCalls)
	}

	for _, p := range []string{"whisper", "openai", "coqui"} {
		if got := f.requests(t, p, "ok"); got != 1 {
			t.Errorf("%s ok requests = %d, want 1", p, got)
		}
	}
}

func TestClient_TranscribeEmptyAudio(t *testing.T) {
	c, f := newClient(t)
	if _, err := c.Transcribe(context.Background(), nil); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
	if n := len(f.stt.Calls()); n != 0 {
		t.Errorf("stt called %d times", n)
	}
}

func TestClient_ProviderError(t *testing.T) {
	c, f := newClient(t)
	boom := errors.New("503 service unavailable")
	f.stt.Err = boom

	_, err := c.Transcribe(context.Background(), []byte("RIFF"))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
	if got := f.requests(t, "whisper", "error"); got != 1 {
		t.Errorf("error requests = %d, want 1", got)
	}
}

func TestClient_StageTimeout(t *testing.T) {
	c, err := New(&sttmock.Provider{}, blockingLLM{}, &ttsmock.Provider{},
		WithSettings(Settings{StageTimeout: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Now()
	_, err = c.Chat(context.Background(), "hello")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Chat took %v, the stage timeout was not applied", elapsed)
	}
}

func TestClient_StageTimeoutPerFallbackAttempt(t *testing.T) {
	f := &fixture{}
	chat := resilience.NewLLMFallback(blockingLLM{}, "hung", resilience.FallbackConfig{})
	chat.AddFallback("backup", &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Still here."}})
	c, err := New(&sttmock.Provider{}, chat, &ttsmock.Provider{},
		WithMetrics(f.newMetrics(t)),
		WithSettings(Settings{StageTimeout: 20 * time.Millisecond}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	reply, err := c.Chat(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Chat: %v, want the fallback to answer after the hung attempt", err)
	}
	if reply != "Still here." {
		t.Errorf("reply = %q", reply)
	}
	if got := f.requests(t, "hung", "error"); got != 1 {
		t.Errorf("hung error requests = %d, want 1", got)
	}
	if got := f.requests(t, "backup", "ok"); got != 1 {
		t.Errorf("backup ok requests = %d, want 1", got)
	}
}

func TestClient_LabelsServingFallback(t *testing.T) {
	f := &fixture{}
	boom := errors.New("502 bad gateway")
	tr := resilience.NewSTTFallback(&sttmock.Provider{Err: boom}, "deepgram", resilience.FallbackConfig{})
	tr.AddFallback("whisper", &sttmock.Provider{Result: &stt.Transcript{Text: "hi"}})
	c, err := New(tr, &llmmock.Provider{}, &ttsmock.Provider{},
		WithMetrics(f.newMetrics(t)),
		WithNames(Names{STT: "deepgram"}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := c.Transcribe(context.Background(), []byte("RIFF")); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	tests := []struct {
		provider, status string
		want             int64
	}{
		{"deepgram", "error", 1},
		{"deepgram", "ok", 0},
		{"whisper", "ok", 1},
		{"whisper", "error", 0},
	}
	for _, tt := range tests {
		if got := f.requests(t, tt.provider, tt.status); got != tt.want {
			t.Errorf("%s %s requests = %d, want %d", tt.provider, tt.status, got, tt.want)
		}
	}
}

func TestClient_NegativeStageTimeoutDisablesBound(t *testing.T) {
	var sawDeadline bool
	p := &deadlineLLM{saw: &sawDeadline}
	c, err := New(&sttmock.Provider{}, p, &ttsmock.Provider{},
		WithSettings(Settings{StageTimeout: -1}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Chat(context.Background(), "hello"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if sawDeadline {
		t.Error("provider saw a deadline, want the bound disabled")
	}
}

func TestClient_CancelledIsNotAnError(t *testing.T) {
	c, f := newClient(t)
	f.llm.CompleteErr = context.Canceled

	_, err := c.Chat(context.Background(), "hello")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if got := f.requests(t, "openai", "cancelled"); got != 1 {
		t.Errorf("cancelled requests = %d, want 1", got)
	}
	if got := f.requests(t, "openai", "error"); got != 0 {
		t.Errorf("error requests = %d, want 0", got)
	}
}

func TestClient_Update(t *testing.T) {
	c, f := newClient(t)
	ctx := context.Background()

	if _, err := c.Chat(ctx, "one"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	c.Update(Settings{SystemPrompt: "Answer like a pirate."})
	if _, err := c.Chat(ctx, "two"); err != nil {
		t.Fatalf("Chat: %v", err)
	}

	calls := f.llm.Calls()
	if len(calls) != 2 {
		t.Fatalf("llm calls = %d, want 2", len(calls))
	}
	if calls[0].Req.SystemPrompt != DefaultSettings().SystemPrompt {
		t.Errorf("first prompt = %q", calls[0].Req.SystemPrompt)
	}
	if calls[1].Req.SystemPrompt != "Answer like a pirate." {
		t.Errorf("second prompt = %q", calls[1].Req.SystemPrompt)
	}
	if got := c.Settings().SystemPrompt; got != "Answer like a pirate." {
		t.Errorf("Settings().SystemPrompt = %q", got)
	}
}

func TestClient_SynthesizeUnknownVoice(t *testing.T) {
	c, f := newClient(t)
	_, err := c.Synthesize(context.Background(), "hi", tts.Voice("robot"))
	if !errors.Is(err, tts.ErrUnknownVoice) {
		t.Fatalf("err = %v, want ErrUnknownVoice", err)
	}
	if n := len(f.tts.Calls()); n != 0 {
		t.Errorf("tts called %d times", n)
	}
}
