package audio

import (
	"encoding/binary"
	"io"
	"math"
	"sync"
	"sync/atomic"
)

// stream reads a clip as PCM16 mono at outRate, stepping through the source
// with linear interpolation. The step is recomputed on every Read so a rate
// change takes effect within one output buffer.
type stream struct {
	clip    *Clip
	outRate int
	rate    atomic.Uint64 // float64 bits

	mu  sync.Mutex
	pos float64 // position in source samples
}

func newStream(clip *Clip, outRate int, rate float64) *stream {
	s := &stream{clip: clip, outRate: outRate}
	s.setRate(rate)
	return s
}

func (s *stream) setRate(rate float64) {
	if rate <= 0 {
		rate = 1
	}
	s.rate.Store(math.Float64bits(rate))
}

func (s *stream) playbackRate() float64 {
	return math.Float64frombits(s.rate.Load())
}

func (s *stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := s.clip.Samples()
	step := float64(s.clip.SampleRate) / float64(s.outRate) * s.playbackRate()

	n := 0
	for ; n+BytesPerSample <= len(p); n += BytesPerSample {
		idx := int(s.pos)
		if idx >= total {
			break
		}
		frac := s.pos - float64(idx)
		v := float64(s.clip.Sample(idx))
		if idx+1 < total {
			v += (float64(s.clip.Sample(idx+1)) - v) * frac
		}
		binary.LittleEndian.PutUint16(p[n:], uint16(int16(v))) //nolint:gosec
		s.pos += step
	}
	if n == 0 && len(p) >= BytesPerSample {
		return 0, io.EOF
	}
	return n, nil
}
