package voice

import (
	"context"

	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// Assistant is the remote collaborator behind the turn pipeline. The three
// calls run strictly in sequence, each consuming the previous one's output.
type Assistant interface {
	// Transcribe converts a WAV utterance into text.
	Transcribe(ctx context.Context, audio []byte) (string, error)

	// Chat answers prompt.
	Chat(ctx context.Context, prompt string) (string, error)

	// Synthesize renders text with voice and returns a WAV payload.
	Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error)
}
