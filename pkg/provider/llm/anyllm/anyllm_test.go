package anyllm

import (
	"context"
	"slices"
	"strings"
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/voiceturn/pkg/provider/llm"
)

func TestNew_EmptyProviderName(t *testing.T) {
	if _, err := New("", "gpt-4o"); err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	if _, err := New("openai", ""); err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil || !strings.Contains(err.Error(), "anthropic, deepseek") {
		t.Fatalf("err = %v, want unsupported backend listing the sorted names", err)
	}
}

func TestBackends(t *testing.T) {
	want := []string{"anthropic", "deepseek", "gemini", "groq", "llamacpp", "llamafile", "mistral", "ollama", "openai"}
	if got := Backends(); !slices.Equal(got, want) {
		t.Errorf("Backends() = %v, want %v", got, want)
	}
}

// TestNew_OpenAI_MissingAPIKey relies on OPENAI_API_KEY being cleared for the test.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New("openai", "gpt-4o"); err == nil {
		t.Fatal("expected error for missing API key")
	}
}

func TestNew_Backends(t *testing.T) {
	tests := []struct {
		backend string
		opts    []anyllmlib.Option
	}{
		{"openai", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-test")}},
		{"Anthropic", []anyllmlib.Option{anyllmlib.WithAPIKey("sk-ant-test")}},
		{"ollama", nil},
		{"llamacpp", nil},
		{"llamafile", nil},
	}
	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			p, err := New(tt.backend, "some-model", tt.opts...)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.model != "some-model" {
				t.Errorf("model = %q", p.model)
			}
		})
	}
}

func TestBackend_Lowercased(t *testing.T) {
	p, err := New("Anthropic", "claude", anyllmlib.WithAPIKey("sk-ant-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.Backend() != "anthropic" {
		t.Errorf("Backend() = %q, want anthropic", p.Backend())
	}
}

func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Be brief.",
		Messages:     []llm.Message{llm.UserMessage("hi")},
		Temperature:  0.7,
		MaxTokens:    128,
	})
	if params.Model != "gpt-4o" {
		t.Errorf("Model = %q", params.Model)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Role != llm.RoleUser {
		t.Errorf("second role = %q, want user", params.Messages[1].Role)
	}
	if params.Temperature == nil || *params.Temperature != 0.7 {
		t.Errorf("Temperature = %v", params.Temperature)
	}
	if params.MaxTokens == nil || *params.MaxTokens != 128 {
		t.Errorf("MaxTokens = %v", params.MaxTokens)
	}
}

func TestBuildParams_ZeroOptionalFieldsOmitted(t *testing.T) {
	p := &Provider{model: "m"}
	params := p.buildParams(llm.CompletionRequest{Messages: []llm.Message{llm.UserMessage("hi")}})
	if params.Temperature != nil {
		t.Error("Temperature should be nil when zero")
	}
	if params.MaxTokens != nil {
		t.Error("MaxTokens should be nil when zero")
	}
	if len(params.Messages) != 1 {
		t.Errorf("messages = %d, want 1", len(params.Messages))
	}
}

func TestComplete_NoMessages(t *testing.T) {
	p := &Provider{model: "m"}
	if _, err := p.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected error for empty request")
	}
}
