package stt

import "time"

// Transcript is a speech-to-text result for one utterance.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the detected or requested language, if the provider reports it.
	Language string

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Segments holds per-segment timing when the provider reports it.
	Segments []Segment

	// Duration is the length of the transcribed audio.
	Duration time.Duration
}

// Segment is a timed span of a transcript.
type Segment struct {
	Text  string
	Start time.Duration
	End   time.Duration
}
