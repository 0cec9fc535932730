package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TurnIDKey is the span attribute carrying the turn a span belongs to.
const TurnIDKey = attribute.Key("voiceturn.turn_id")

type turnKey struct{}

// WithTurn tags ctx with a turn ID. Spans started from the returned context
// and loggers built by [Logger] carry it.
func WithTurn(ctx context.Context, turnID string) context.Context {
	return context.WithValue(ctx, turnKey{}, turnID)
}

// TurnID returns the turn ID set by [WithTurn], or "".
func TurnID(ctx context.Context) string {
	id, _ := ctx.Value(turnKey{}).(string)
	return id
}

// Tracer returns the voiceturn tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(scope)
}

// StartSpan starts a span on [Tracer]. The caller ends it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if id := TurnID(ctx); id != "" {
		opts = append(opts, trace.WithAttributes(TurnIDKey.String(id)))
	}
	return Tracer().Start(ctx, name, opts...)
}

// TraceID returns the hex trace ID of the span in ctx, or "".
func TraceID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger with the turn and span of ctx attached.
func Logger(ctx context.Context) *slog.Logger {
	var args []any
	if id := TurnID(ctx); id != "" {
		args = append(args, slog.String("turn_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args,
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if len(args) == 0 {
		return slog.Default()
	}
	return slog.Default().With(args...)
}
