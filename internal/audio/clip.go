package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// BytesPerSample is the size of one PCM16 mono sample.
const BytesPerSample = 2

var (
	// ErrEmptyClip is returned when a clip carries no samples.
	ErrEmptyClip = errors.New("audio clip is empty")
	// ErrUnalignedPCM is returned when PCM data is not a whole number of samples.
	ErrUnalignedPCM = errors.New("pcm data is not aligned to 16-bit samples")
	// ErrRateMismatch is returned when clips with different sample rates are joined.
	ErrRateMismatch = errors.New("clips have different sample rates")
)

// Clip is a block of PCM16 little-endian mono audio.
type Clip struct {
	PCM        []byte
	SampleRate int
}

// NewClip validates pcm and wraps it in a Clip.
func NewClip(pcm []byte, sampleRate int) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	if len(pcm)%BytesPerSample != 0 {
		return nil, ErrUnalignedPCM
	}
	return &Clip{PCM: pcm, SampleRate: sampleRate}, nil
}

// Samples returns the number of samples in the clip.
func (c *Clip) Samples() int {
	if c == nil {
		return 0
	}
	return len(c.PCM) / BytesPerSample
}

// Duration returns the play time of the clip at its native rate.
func (c *Clip) Duration() time.Duration {
	if c == nil || c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Samples()) * time.Second / time.Duration(c.SampleRate)
}

// Sample returns the i-th sample.
func (c *Clip) Sample(i int) int16 {
	return int16(binary.LittleEndian.Uint16(c.PCM[i*BytesPerSample:])) //nolint:gosec
}

// Concat joins clips back to back with no gap. Every clip must share the
// sample rate of the first one.
func Concat(clips ...*Clip) (*Clip, error) {
	if len(clips) == 0 {
		return nil, ErrEmptyClip
	}
	rate := clips[0].SampleRate
	size := 0
	for i, c := range clips {
		if c.SampleRate != rate {
			return nil, fmt.Errorf("%w: clip %d is %d Hz, want %d Hz", ErrRateMismatch, i, c.SampleRate, rate)
		}
		size += len(c.PCM)
	}
	pcm := make([]byte, 0, size)
	for _, c := range clips {
		pcm = append(pcm, c.PCM...)
	}
	return &Clip{PCM: pcm, SampleRate: rate}, nil
}

// FromFloat32 converts float samples to PCM16, clamping to [-1, 1].
func FromFloat32(samples []float32, sampleRate int) *Clip {
	pcm := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		var q int16
		if v < 0 {
			q = int16(v * 0x8000)
		} else {
			q = int16(v * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(pcm[i*BytesPerSample:], uint16(q)) //nolint:gosec
	}
	return &Clip{PCM: pcm, SampleRate: sampleRate}
}

// Silence returns a clip of d worth of zero samples.
func Silence(d time.Duration, sampleRate int) *Clip {
	n := int(d * time.Duration(sampleRate) / time.Second)
	return &Clip{PCM: make([]byte, n*BytesPerSample), SampleRate: sampleRate}
}
