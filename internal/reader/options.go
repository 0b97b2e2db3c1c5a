package reader

import (
	"github.com/dgnsrekt/readaloud/internal/observe"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/segment"
)

// Speed bounds.
const (
	MinSpeed = 0.1
	MaxSpeed = 4.0
)

// Defaults for the engine options.
const (
	DefaultPrefetchWindow = 2
	DefaultConcurrency    = 2
)

// Settings are the caller's reading preferences.
type Settings struct {
	Voice string  `json:"voice" yaml:"voice"`
	Speed float64 `json:"speed" yaml:"speed"`
}

// DefaultSettings reads at normal speed with the engine's default voice.
func DefaultSettings() Settings {
	return Settings{Speed: 1}
}

func (s *Settings) normalize() error {
	if s.Speed == 0 {
		s.Speed = 1
	}
	return validSpeed(s.Speed)
}

// Hooks are notified after the engine releases its lock, so they may call
// back into the engine.
type Hooks struct {
	OnStateChange func(from, to State)
	OnSegment     func(info queue.Info)
	OnError       func(err error)
	OnFinished    func()
}

// Option configures an Engine.
type Option func(*Engine)

// WithSegmenter replaces the default segmenter.
func WithSegmenter(s *segment.Segmenter) Option {
	return func(e *Engine) { e.segmenter = s }
}

// WithHighlightClasses sets the pending and active marker classes.
func WithHighlightClasses(pending, active string) Option {
	return func(e *Engine) {
		if pending != "" {
			e.pendingClass = pending
		}
		if active != "" {
			e.activeClass = active
		}
	}
}

// WithPrefetchWindow sets how many segments ahead of the current one are
// synthesized while it plays.
func WithPrefetchWindow(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.window = n
		}
	}
}

// WithConcurrency bounds concurrent synthesis requests per queue.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithMetrics records session and cache metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// OnStateChange is called for every state change.
func OnStateChange(fn func(from, to State)) Option {
	return func(e *Engine) { e.hooks.OnStateChange = fn }
}

// OnSegment is called when a segment becomes current.
func OnSegment(fn func(info queue.Info)) Option {
	return func(e *Engine) { e.hooks.OnSegment = fn }
}

// OnError is called when a session fails.
func OnError(fn func(err error)) Option {
	return func(e *Engine) { e.hooks.OnError = fn }
}

// OnFinished is called when a session reads to the end of the queue.
func OnFinished(fn func()) Option {
	return func(e *Engine) { e.hooks.OnFinished = fn }
}
