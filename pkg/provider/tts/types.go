package tts

import (
	"errors"
	"fmt"
	"strings"
)

// Voice names one of the assistant voices a user can select.
type Voice string

// The fixed voice catalogue.
const (
	Alloy   Voice = "alloy"
	Echo    Voice = "echo"
	Fable   Voice = "fable"
	Onyx    Voice = "onyx"
	Nova    Voice = "nova"
	Shimmer Voice = "shimmer"
)

// DefaultVoice is selected until the user picks another one.
const DefaultVoice = Alloy

// ErrUnknownVoice is returned by [ParseVoice] for names outside the catalogue.
var ErrUnknownVoice = errors.New("tts: unknown voice")

var catalogue = []Voice{Alloy, Echo, Fable, Onyx, Nova, Shimmer}

// Voices returns the voice catalogue in display order.
func Voices() []Voice {
	return append([]Voice(nil), catalogue...)
}

// Valid reports whether v is part of the catalogue.
func (v Voice) Valid() bool {
	for _, c := range catalogue {
		if c == v {
			return true
		}
	}
	return false
}

// ParseVoice resolves a case-insensitive voice name.
func ParseVoice(name string) (Voice, error) {
	v := Voice(strings.ToLower(strings.TrimSpace(name)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownVoice, name)
	}
	return v, nil
}

// VoiceProfile describes a voice as offered by a concrete TTS backend.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Provider identifies which TTS provider this voice belongs to.
	Provider string `json:"provider"`

	// Metadata holds provider-specific voice attributes (model, type, etc.).
	Metadata map[string]string `json:"metadata,omitempty"`
}
