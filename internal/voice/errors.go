package voice

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy is returned by StartCapture while a turn is recording,
	// processing or playing.
	ErrBusy = errors.New("voice: a turn is already in progress")

	// ErrCancelled marks a pipeline task that was invalidated by Cancel or by
	// a newer turn. It never reaches the Error phase.
	ErrCancelled = errors.New("voice: turn cancelled")

	// ErrArtifactIO is returned when the finished recording cannot be read
	// back from disk.
	ErrArtifactIO = errors.New("voice: cannot read recorded artifact")

	// ErrNoPlatform is the cause of the Error phase when the controller was
	// built without an audio platform.
	ErrNoPlatform = errors.New("voice: no audio platform")

	// ErrStopped is returned by commands issued after Run has returned.
	ErrStopped = errors.New("voice: controller stopped")

	// ErrRunning is returned when Run is called twice.
	ErrRunning = errors.New("voice: controller already running")
)

// Stage names one remote call of the turn pipeline.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageChat       Stage = "chat"
	StageSynthesize Stage = "synthesize"
)

// ResourceError reports that an audio device or the recording artifact could
// not be used. Op describes what was attempted.
type ResourceError struct {
	Op  string
	Err error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("voice: %s: %v", e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// RemoteCallError reports a failed assistant call.
type RemoteCallError struct {
	Stage Stage
	Err   error
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("voice: %s failed: %v", e.Stage, e.Err)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
