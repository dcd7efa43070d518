package audio

import (
	"errors"
	"math"
)

// Buffer holds interleaved PCM samples normalized to [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
	Channels   int
}

// ErrEmptyBuffer is returned by operations that need at least one sample.
var ErrEmptyBuffer = errors.New("audio: empty buffer")

// Frames returns the number of sample frames in the buffer.
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Peak returns the maximum absolute sample amplitude.
func (b *Buffer) Peak() float64 {
	peak := 0.0
	for _, s := range b.Samples {
		if a := math.Abs(s); a > peak {
			peak = a
		}
	}
	return peak
}

// MeanSquare returns the mean squared amplitude across all samples.
func (b *Buffer) MeanSquare() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range b.Samples {
		sum += s * s
	}
	return sum / float64(len(b.Samples))
}

// Scale multiplies every sample by gain in place.
func (b *Buffer) Scale(gain float64) {
	for i := range b.Samples {
		b.Samples[i] *= gain
	}
}

// Normalize scales the buffer down to ceiling when its peak exceeds it.
// Buffers already below the ceiling are left untouched. Reports whether
// scaling was applied.
func (b *Buffer) Normalize(ceiling float64) bool {
	peak := b.Peak()
	if peak <= ceiling || peak == 0 {
		return false
	}
	b.Scale(ceiling / peak)
	return true
}

// DownmixMono averages all channels into a single channel.
func (b *Buffer) DownmixMono() *Buffer {
	if b.Channels <= 1 {
		return &Buffer{Samples: append([]float64(nil), b.Samples...), SampleRate: b.SampleRate, Channels: 1}
	}
	frames := b.Frames()
	out := make([]float64, frames)
	for f := 0; f < frames; f++ {
		sum := 0.0
		for c := 0; c < b.Channels; c++ {
			sum += b.Samples[f*b.Channels+c]
		}
		out[f] = sum / float64(b.Channels)
	}
	return &Buffer{Samples: out, SampleRate: b.SampleRate, Channels: 1}
}

// Resample converts the buffer to the target sample rate using linear
// interpolation per channel. The input is returned unchanged when the rates
// already match.
func (b *Buffer) Resample(rate int) *Buffer {
	if rate == b.SampleRate || b.SampleRate == 0 {
		return b
	}
	srcFrames := b.Frames()
	dstFrames := int(math.Round(float64(srcFrames) * float64(rate) / float64(b.SampleRate)))
	out := make([]float64, dstFrames*b.Channels)
	ratio := float64(b.SampleRate) / float64(rate)
	for f := 0; f < dstFrames; f++ {
		pos := float64(f) * ratio
		i0 := int(pos)
		if i0 >= srcFrames-1 {
			i0 = srcFrames - 1
		}
		i1 := i0 + 1
		if i1 >= srcFrames {
			i1 = srcFrames - 1
		}
		frac := pos - float64(i0)
		for c := 0; c < b.Channels; c++ {
			s0 := b.Samples[i0*b.Channels+c]
			s1 := b.Samples[i1*b.Channels+c]
			out[f*b.Channels+c] = s0 + (s1-s0)*frac
		}
	}
	return &Buffer{Samples: out, SampleRate: rate, Channels: b.Channels}
}

// Truncate shortens the buffer to the given frame count in place.
func (b *Buffer) Truncate(frames int) {
	if frames < 0 {
		frames = 0
	}
	if frames < b.Frames() {
		b.Samples = b.Samples[:frames*b.Channels]
	}
}

// PadTo zero-pads the buffer to the given frame count in place. Buffers
// already at or beyond the target length are left unchanged.
func (b *Buffer) PadTo(frames int) {
	need := frames*b.Channels - len(b.Samples)
	if need <= 0 {
		return
	}
	b.Samples = append(b.Samples, make([]float64, need)...)
}

// Add sums another buffer into this one sample-wise. Both buffers must share
// sample rate and channel count; the shorter operand is treated as silence
// past its end.
func (b *Buffer) Add(other *Buffer) error {
	if other.SampleRate != b.SampleRate || other.Channels != b.Channels {
		return errors.New("audio: buffer format mismatch")
	}
	if len(other.Samples) > len(b.Samples) {
		b.PadTo(other.Frames())
	}
	for i, s := range other.Samples {
		b.Samples[i] += s
	}
	return nil
}
