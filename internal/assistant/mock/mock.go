// Package mock provides an in-memory assistant for controller tests.
//
// Each stage can be made to fail, or to block on a gate channel until the
// test releases it, which is how cancellation at a given stage is exercised:
//
//	a := &mock.Assistant{ChatGate: make(chan struct{})}
//	// ... drive the controller into ProcessingSpeech ...
//	// wait until a.ChatCalls() == 1, cancel, then close(a.ChatGate)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// SynthesizeCall records one Synthesize invocation.
type SynthesizeCall struct {
	Text  string
	Voice tts.Voice
}

// Assistant is a scriptable implementation of the voice assistant
// collaborator. Set the exported fields before use; they are read under the
// mock's lock on every call.
type Assistant struct {
	mu sync.Mutex

	// Transcript is returned by Transcribe.
	Transcript string
	// TranscribeErr is returned by Transcribe when non-nil.
	TranscribeErr error
	// TranscribeGate, when non-nil, blocks Transcribe until it is closed or
	// receives a value.
	TranscribeGate chan struct{}

	// Reply is returned by Chat.
	Reply string
	// ChatErr is returned by Chat when non-nil.
	ChatErr error
	// ChatGate blocks Chat like TranscribeGate.
	ChatGate chan struct{}

	// Speech is returned by Synthesize.
	Speech []byte
	// SynthesizeErr is returned by Synthesize when non-nil.
	SynthesizeErr error
	// SynthesizeGate blocks Synthesize like TranscribeGate.
	SynthesizeGate chan struct{}

	transcribes [][]byte
	chats       []string
	synths      []SynthesizeCall
}

// Transcribe records audio and returns Transcript or TranscribeErr.
func (a *Assistant) Transcribe(ctx context.Context, audio []byte) (string, error) {
	a.mu.Lock()
	a.transcribes = append(a.transcribes, audio)
	gate, text, err := a.TranscribeGate, a.Transcript, a.TranscribeErr
	a.mu.Unlock()
	if werr := wait(ctx, gate); werr != nil {
		return "", werr
	}
	return text, err
}

// Chat records prompt and returns Reply or ChatErr.
func (a *Assistant) Chat(ctx context.Context, prompt string) (string, error) {
	a.mu.Lock()
	a.chats = append(a.chats, prompt)
	gate, reply, err := a.ChatGate, a.Reply, a.ChatErr
	a.mu.Unlock()
	if werr := wait(ctx, gate); werr != nil {
		return "", werr
	}
	return reply, err
}

// Synthesize records the call and returns Speech or SynthesizeErr.
func (a *Assistant) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	a.mu.Lock()
	a.synths = append(a.synths, SynthesizeCall{Text: text, Voice: voice})
	gate, speech, err := a.SynthesizeGate, a.Speech, a.SynthesizeErr
	a.mu.Unlock()
	if werr := wait(ctx, gate); werr != nil {
		return nil, werr
	}
	if err != nil {
		return nil, err
	}
	return speech, nil
}

// Set runs fn under the mock's lock, for changing fields while calls may be
// in flight.
func (a *Assistant) Set(fn func(a *Assistant)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a)
}

// TranscribeCalls returns the audio passed to every Transcribe call.
func (a *Assistant) TranscribeCalls() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]byte(nil), a.transcribes...)
}

// ChatCalls returns the prompt of every Chat call.
func (a *Assistant) ChatCalls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.chats...)
}

// SynthesizeCalls returns every Synthesize call.
func (a *Assistant) SynthesizeCalls() []SynthesizeCall {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]SynthesizeCall(nil), a.synths...)
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
