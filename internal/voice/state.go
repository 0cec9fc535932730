package voice

import "time"

// Phase is the controller's current activity.
type Phase int

const (
	Idle Phase = iota
	RecordingSpeech
	ProcessingSpeech
	PlayingSpeech
	Error
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case RecordingSpeech:
		return "recording"
	case ProcessingSpeech:
		return "processing"
	case PlayingSpeech:
		return "playing"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// State is the controller's observable state. Err is non-nil only in the
// Error phase.
type State struct {
	Phase Phase
	Err   error
}

func (s State) String() string {
	if s.Phase == Error && s.Err != nil {
		return "error: " + s.Err.Error()
	}
	return s.Phase.String()
}

// Transition is published to subscribers on every state change.
type Transition struct {
	From   State
	To     State
	TurnID string
	At     time.Time
}

// busy reports whether p holds a turn resource.
func (p Phase) busy() bool {
	return p == RecordingSpeech || p == ProcessingSpeech || p == PlayingSpeech
}
