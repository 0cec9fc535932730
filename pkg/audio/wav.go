package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	// bitDepth is fixed at 16 for every artifact voiceturn writes.
	bitDepth = 16

	// formatPCM is the WAVE_FORMAT_PCM tag.
	formatPCM = 1
)

// ErrInvalidWAV is returned by [DecodeWAV] when the payload is not a readable
// RIFF/WAV container.
var ErrInvalidWAV = errors.New("audio: invalid wav payload")

// PCM is decoded, interleaved 16-bit audio.
type PCM struct {
	// Samples holds interleaved sample values in the int16 range.
	Samples []int

	// SampleRate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// Frames returns the number of sample frames (samples per channel).
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Duration returns the playback length of p.
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// WAVWriter streams 16-bit PCM into a WAV container. The header sizes are
// patched on Close, so the destination must be seekable.
type WAVWriter struct {
	enc    *wav.Encoder
	format *goaudio.Format
}

// NewWAVWriter starts a 16-bit PCM WAV stream on w.
func NewWAVWriter(w io.WriteSeeker, sampleRate, channels int) *WAVWriter {
	return &WAVWriter{
		enc:    wav.NewEncoder(w, sampleRate, bitDepth, channels, formatPCM),
		format: &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
	}
}

// Write appends interleaved samples.
func (w *WAVWriter) Write(samples []int) error {
	if len(samples) == 0 {
		return nil
	}
	return w.enc.Write(&goaudio.IntBuffer{
		Format:         w.format,
		Data:           samples,
		SourceBitDepth: bitDepth,
	})
}

// Close finalises the container headers. It does not close the underlying
// writer.
func (w *WAVWriter) Close() error {
	return w.enc.Close()
}

// DecodeWAV parses a complete WAV payload. Samples of other bit depths are
// rescaled to the 16-bit range.
func DecodeWAV(data []byte) (*PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrInvalidWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("audio: decode wav: %w", err)
	}
	if buf == nil || buf.Format == nil {
		return nil, ErrInvalidWAV
	}
	return &PCM{
		Samples:    rescale(buf.Data, int(dec.BitDepth)),
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// EncodeWAV serialises p into a 16-bit PCM WAV payload.
func EncodeWAV(p *PCM) ([]byte, error) {
	if p == nil || p.SampleRate <= 0 || p.Channels <= 0 {
		return nil, errors.New("audio: encode wav: invalid format")
	}
	var sink memFile
	w := NewWAVWriter(&sink, p.SampleRate, p.Channels)
	if err := w.Write(p.Samples); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	return sink.buf, nil
}

// WrapPCM16 wraps raw little-endian signed 16-bit PCM (as returned by most
// speech synthesis APIs in "pcm" mode) into a WAV payload. A trailing odd byte
// is ignored.
func WrapPCM16(raw []byte, sampleRate, channels int) ([]byte, error) {
	n := len(raw) / 2
	samples := make([]int, n)
	for i := range n {
		samples[i] = int(int16(binary.LittleEndian.Uint16(raw[i*2:])))
	}
	return EncodeWAV(&PCM{Samples: samples, SampleRate: sampleRate, Channels: channels})
}

// rescale converts samples of the given source bit depth into the int16 range.
func rescale(samples []int, depth int) []int {
	switch {
	case depth == bitDepth || depth == 0:
		return samples
	case depth == 8:
		// 8-bit WAV is unsigned.
		out := make([]int, len(samples))
		for i, s := range samples {
			out[i] = (s - 128) << 8
		}
		return out
	case depth > bitDepth:
		shift := uint(depth - bitDepth)
		out := make([]int, len(samples))
		for i, s := range samples {
			out[i] = s >> shift
		}
		return out
	default:
		shift := uint(bitDepth - depth)
		out := make([]int, len(samples))
		for i, s := range samples {
			out[i] = s << shift
		}
		return out
	}
}

// memFile is an in-memory io.WriteSeeker for encoding WAV payloads without a
// temporary file.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(m.pos) + offset
	case io.SeekEnd:
		next = int64(len(m.buf)) + offset
	default:
		return 0, errors.New("audio: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("audio: negative seek position")
	}
	m.pos = int(next)
	return next, nil
}
