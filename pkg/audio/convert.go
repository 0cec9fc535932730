package audio

import "fmt"

// Mono returns p down-mixed to a single channel by averaging every frame. If p
// is already mono it is returned unchanged.
func (p *PCM) Mono() *PCM {
	if p.Channels <= 1 {
		return p
	}
	frames := p.Frames()
	out := make([]int, frames)
	for i := range frames {
		var sum int
		for ch := range p.Channels {
			sum += p.Samples[i*p.Channels+ch]
		}
		out[i] = clamp16(sum / p.Channels)
	}
	return &PCM{Samples: out, SampleRate: p.SampleRate, Channels: 1}
}

// Resample converts p to dstRate using linear interpolation per channel. If
// the rates already match, or either rate is invalid, p is returned unchanged.
func (p *PCM) Resample(dstRate int) *PCM {
	if p.SampleRate <= 0 || dstRate <= 0 || p.SampleRate == dstRate || p.Channels <= 0 {
		return p
	}
	srcFrames := p.Frames()
	dstFrames := int(int64(srcFrames) * int64(dstRate) / int64(p.SampleRate))
	out := make([]int, dstFrames*p.Channels)
	ratio := float64(p.SampleRate) / float64(dstRate)

	for i := range dstFrames {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)
		next := srcIdx + 1
		if next >= srcFrames {
			next = srcIdx
		}
		for ch := range p.Channels {
			s0 := float64(p.Samples[srcIdx*p.Channels+ch])
			s1 := float64(p.Samples[next*p.Channels+ch])
			out[i*p.Channels+ch] = clamp16(int(s0*(1-frac) + s1*frac))
		}
	}
	return &PCM{Samples: out, SampleRate: dstRate, Channels: p.Channels}
}

// Float32 returns the samples normalised to [-1.0, 1.0].
func (p *PCM) Float32() []float32 {
	out := make([]float32, len(p.Samples))
	for i, s := range p.Samples {
		out[i] = float32(s) / fullScale
	}
	return out
}

// String returns a human-readable format, e.g. "16000Hz mono".
func (p *PCM) String() string {
	ch := "mono"
	if p.Channels == 2 {
		ch = "stereo"
	} else if p.Channels > 2 {
		ch = fmt.Sprintf("%dch", p.Channels)
	}
	return fmt.Sprintf("%dHz %s", p.SampleRate, ch)
}

func clamp16(v int) int {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return v
}
