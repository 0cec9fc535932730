package whisper

import (
	"fmt"

	"github.com/MrWong99/voiceturn/pkg/audio"
)

// modelSampleRate is the only input rate whisper models accept.
const modelSampleRate = 16000

// prepare decodes a WAV utterance and converts it to 16 kHz mono, the format
// whisper.cpp expects.
func prepare(wav []byte) (*audio.PCM, error) {
	pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("whisper: %w", err)
	}
	return pcm.Mono().Resample(modelSampleRate), nil
}
