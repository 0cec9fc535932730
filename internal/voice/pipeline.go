package voice

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/voiceturn/internal/observe"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// pipelineTask is one transcribe, chat, synthesize run. The controller flips
// cancelled before dropping its reference; the task checks it between
// stages and the controller ignores any completion from a task it no longer
// holds.
type pipelineTask struct {
	turnID    string
	started   time.Time
	cancelled atomic.Bool
}

func (t *pipelineTask) cancel() { t.cancelled.Store(true) }

// checkpoint returns ErrCancelled once the task has been invalidated.
func (t *pipelineTask) checkpoint() error {
	if t.cancelled.Load() {
		return ErrCancelled
	}
	return nil
}

// runPipeline executes the remote stages in order. voice is read only when
// synthesis starts so that a selection made mid-turn still applies.
func runPipeline(ctx context.Context, t *pipelineTask, a Assistant, artifact []byte, voice func() tts.Voice) ([]byte, error) {
	ctx = observe.WithTurn(ctx, t.turnID)
	ctx, span := observe.StartSpan(ctx, "voice.turn")
	defer span.End()

	text, err := runStage(ctx, t, StageTranscribe, func(ctx context.Context) (string, error) {
		return a.Transcribe(ctx, artifact)
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	observe.Logger(ctx).Debug("voice: transcribed", "chars", len(text))

	reply, err := runStage(ctx, t, StageChat, func(ctx context.Context) (string, error) {
		return a.Chat(ctx, text)
	})
	if err != nil {
		return nil, endSpan(span, err)
	}

	speech, err := runStage(ctx, t, StageSynthesize, func(ctx context.Context) ([]byte, error) {
		return a.Synthesize(ctx, reply, voice())
	})
	if err != nil {
		return nil, endSpan(span, err)
	}
	return speech, nil
}

// runStage performs one remote call followed by a cancellation checkpoint.
func runStage[T any](ctx context.Context, t *pipelineTask, stage Stage, call func(context.Context) (T, error)) (T, error) {
	ctx, span := observe.StartSpan(ctx, "voice."+string(stage))
	defer span.End()

	var zero T
	v, err := call(ctx)
	if err != nil {
		if t.cancelled.Load() || errors.Is(err, context.Canceled) {
			return zero, endSpan(span, ErrCancelled)
		}
		return zero, endSpan(span, &RemoteCallError{Stage: stage, Err: err})
	}
	if err := t.checkpoint(); err != nil {
		return zero, endSpan(span, err)
	}
	return v, nil
}

func endSpan(span trace.Span, err error) error {
	if errors.Is(err, ErrCancelled) {
		span.SetAttributes(attribute.Bool("cancelled", true))
		return err
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
