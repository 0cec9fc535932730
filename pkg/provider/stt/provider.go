// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., the OpenAI audio API, a
// whisper.cpp server, or an in-process whisper.cpp model) and turns one
// complete recorded utterance into text. Utterances are delivered as RIFF/WAV
// payloads exactly as they were captured.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// Request is one utterance to transcribe.
type Request struct {
	// Audio is a complete RIFF/WAV payload.
	Audio []byte

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string

	// Prompt is optional context that biases recognition (names, jargon).
	// Providers that do not support prompting ignore it.
	Prompt string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Transcribe recognises the speech in req.Audio. An utterance without
	// recognisable speech yields a Transcript with empty Text and a nil error.
	//
	// Returns an error if the audio cannot be decoded, the backend rejects the
	// request, or ctx is cancelled.
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}
