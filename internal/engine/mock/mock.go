// Package mock is a deterministic speech backend that renders a tone whose
// length follows the word count of the text.
package mock

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/protocol"
)

// SampleRate is the rate of every generated clip.
const SampleRate = 24000

// WordDuration is the tone length per word.
const WordDuration = 60 * time.Millisecond

// ErrUnknownVoice is returned for voices the engine does not have.
var ErrUnknownVoice = errors.New("unknown voice")

var voiceFreq = map[string]float64{
	"mock_low":  220,
	"mock_mid":  440,
	"mock_high": 880,
}

// DefaultVoice is used when a request names none.
const DefaultVoice = "mock_mid"

// Engine is safe for concurrent use.
type Engine struct {
	// Delay, when set, returns how long to wait before answering a
	// generate request for text.
	Delay func(text string) time.Duration
	// Fail, when set, can reject a generate request.
	Fail func(text string) error
	// InitErr is returned by Init when non-nil.
	InitErr error

	mu     sync.Mutex
	inits  int
	calls  map[string]int
	config protocol.ModelConfig
}

// New returns an engine with no delays or failures.
func New() *Engine {
	return &Engine{calls: make(map[string]int)}
}

// Init records the config.
func (e *Engine) Init(ctx context.Context, cfg protocol.ModelConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inits++
	if e.InitErr != nil {
		return e.InitErr
	}
	e.config = cfg
	return nil
}

// Voices returns the fixed voice list.
func (e *Engine) Voices(ctx context.Context) ([]string, error) {
	return []string{"mock_high", "mock_low", "mock_mid"}, nil
}

// Generate renders a sine tone at the voice's pitch.
func (e *Engine) Generate(ctx context.Context, text, voice string) (*audio.Clip, error) {
	if voice == "" {
		voice = DefaultVoice
	}
	freq, ok := voiceFreq[voice]
	if !ok {
		return nil, ErrUnknownVoice
	}

	e.mu.Lock()
	if e.calls == nil {
		e.calls = make(map[string]int)
	}
	e.calls[text]++
	e.mu.Unlock()

	if e.Delay != nil {
		if d := e.Delay(text); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if e.Fail != nil {
		if err := e.Fail(text); err != nil {
			return nil, err
		}
	}
	return Tone(text, freq), nil
}

// Tone renders the clip Generate would return for text at freq.
func Tone(text string, freq float64) *audio.Clip {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	n := int(time.Duration(words) * WordDuration * SampleRate / time.Second)
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(0.2 * math.Sin(2*math.Pi*freq*float64(i)/SampleRate))
	}
	return audio.FromFloat32(samples, SampleRate)
}

// Inits returns how many times Init was called.
func (e *Engine) Inits() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inits
}

// Calls returns how many times text was generated.
func (e *Engine) Calls(text string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[text]
}

// Config returns the last config passed to a successful Init.
func (e *Engine) Config() protocol.ModelConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config
}
