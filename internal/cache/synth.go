package cache

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/observe"
)

// Synthesizer is the speech source a Synthesizer wraps.
type Synthesizer interface {
	Initialize(ctx context.Context) error
	Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error)
}

// CachedSynthesizer answers from the disk cache before asking next, and
// stores what next produces.
type CachedSynthesizer struct {
	next    Synthesizer
	disk    *DiskCache
	metrics *observe.Metrics
}

// NewCachedSynthesizer wraps next with disk.
func NewCachedSynthesizer(next Synthesizer, disk *DiskCache, m *observe.Metrics) *CachedSynthesizer {
	return &CachedSynthesizer{next: next, disk: disk, metrics: m}
}

// Initialize initializes the wrapped synthesizer.
func (s *CachedSynthesizer) Initialize(ctx context.Context) error {
	return s.next.Initialize(ctx)
}

// Synthesize returns the cached clip for voice and text, synthesizing and
// storing it on a miss. A failed store is logged and the clip still
// returned.
func (s *CachedSynthesizer) Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error) {
	key := Key(voice, text)
	if clip, ok := s.disk.Get(key); ok {
		s.metrics.RecordCacheLookup(ctx, true)
		return clip, nil
	}
	s.metrics.RecordCacheLookup(ctx, false)

	clip, err := s.next.Synthesize(ctx, text, voice)
	if err != nil {
		return nil, err
	}
	if err := s.disk.Put(key, clip); err != nil {
		log.Warn("disk cache store failed", "err", err)
	}
	return clip, nil
}
