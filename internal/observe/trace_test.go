package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTracer installs a synchronous in-memory tracer provider for one test.
func useTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLog points the default logger at a buffer for one test.
func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func TestTurnID(t *testing.T) {
	ctx := context.Background()
	if got := TurnID(ctx); got != "" {
		t.Errorf("TurnID(background) = %q", got)
	}
	ctx = WithTurn(ctx, "turn-1")
	if got := TurnID(WithTurn(ctx, "turn-2")); got != "turn-2" {
		t.Errorf("inner TurnID = %q, want turn-2", got)
	}
	if got := TurnID(ctx); got != "turn-1" {
		t.Errorf("TurnID = %q, want turn-1", got)
	}
}

func TestStartSpan_TagsTurn(t *testing.T) {
	exp := useTracer(t)

	ctx := WithTurn(context.Background(), "abc")
	ctx, parent := StartSpan(ctx, "voice.turn")
	_, child := StartSpan(ctx, "voice.transcribe")
	child.End()
	parent.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	for _, s := range spans {
		var found bool
		for _, kv := range s.Attributes {
			if kv.Key == TurnIDKey && kv.Value.AsString() == "abc" {
				found = true
			}
		}
		if !found {
			t.Errorf("span %q missing %s", s.Name, TurnIDKey)
		}
	}
	if spans[0].Parent.SpanID() != spans[1].SpanContext.SpanID() {
		t.Error("child span is not parented to the turn span")
	}
}

func TestStartSpan_NoTurn(t *testing.T) {
	exp := useTracer(t)
	_, span := StartSpan(context.Background(), "plain")
	span.End()
	for _, kv := range exp.GetSpans()[0].Attributes {
		if kv.Key == TurnIDKey {
			t.Errorf("unexpected turn attribute %v", kv.Value)
		}
	}
}

func TestTraceID(t *testing.T) {
	useTracer(t)
	if got := TraceID(context.Background()); got != "" {
		t.Errorf("TraceID(background) = %q", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "op")
		id := TraceID(ctx)
		span.End()
		if len(id) != 32 || strings.Trim(id, "0123456789abcdef") != "" {
			t.Fatalf("TraceID = %q, want 32 hex digits", id)
		}
		if seen[id] {
			t.Fatalf("duplicate trace ID %s", id)
		}
		seen[id] = true
	}
}

func TestLogger(t *testing.T) {
	useTracer(t)

	tests := []struct {
		name    string
		ctx     func() context.Context
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     context.Background,
			notWant: []string{"turn_id", "trace_id", "span_id"},
		},
		{
			name:    "turn only",
			ctx:     func() context.Context { return WithTurn(context.Background(), "t1") },
			want:    []string{"turn_id=t1"},
			notWant: []string{"trace_id"},
		},
		{
			name: "turn and span",
			ctx: func() context.Context {
				ctx, span := StartSpan(WithTurn(context.Background(), "t2"), "op")
				t.Cleanup(func() { span.End() })
				return ctx
			},
			want: []string{"turn_id=t2", "trace_id=", "span_id="},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := captureLog(t)
			Logger(tt.ctx()).Info("hello")
			out := buf.String()
			for _, s := range tt.want {
				if !strings.Contains(out, s) {
					t.Errorf("log %q missing %q", out, s)
				}
			}
			for _, s := range tt.notWant {
				if strings.Contains(out, s) {
					t.Errorf("log %q should not contain %q", out, s)
				}
			}
		})
	}
}
