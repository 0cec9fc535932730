// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the OpenAI speech API
// or a local Coqui server) and turns one complete reply into one playable
// RIFF/WAV payload.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text with the given voice and returns a complete WAV
	// payload. Providers map catalogue voices onto their own voice identifiers.
	//
	// Returns an error if the backend rejects the request or ctx is cancelled
	// before the audio has been received.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)

	// ListVoices returns the voices the backend offers.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
