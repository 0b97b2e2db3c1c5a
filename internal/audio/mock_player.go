package audio

import (
	"sync"
	"sync/atomic"
)

// MockPlayer implements Player without producing sound. By default every
// clip finishes as soon as it starts; with Manual set, a clip plays until
// Finish or Stop is called.
type MockPlayer struct {
	// Manual keeps clips playing until Finish is called.
	Manual bool

	callbacks MockCallbacks

	mu     sync.Mutex
	state  PlayerState
	rate   float64
	played []*Clip
	done   chan struct{}

	playCount   atomic.Int64
	pauseCount  atomic.Int64
	resumeCount atomic.Int64
	stopCount   atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay   func(clip *Clip)
	OnPause  func()
	OnResume func()
	OnStop   func()
}

// NewMockPlayer creates a mock player with the given callbacks.
func NewMockPlayer(callbacks MockCallbacks) *MockPlayer {
	return &MockPlayer{callbacks: callbacks, rate: 1}
}

// Play records clip and either finishes it immediately or waits for Finish.
func (mp *MockPlayer) Play(clip *Clip, rate float64) (<-chan struct{}, error) {
	if clip.Samples() == 0 {
		return nil, ErrEmptyClip
	}

	mp.mu.Lock()
	if mp.state == StateClosed {
		mp.mu.Unlock()
		return nil, ErrPlayerClosed
	}
	mp.stopLocked()
	mp.played = append(mp.played, clip)
	mp.rate = rate
	mp.done = make(chan struct{})
	done := mp.done
	mp.state = StatePlaying
	mp.playCount.Add(1)
	if !mp.Manual {
		mp.finishLocked()
	}
	mp.mu.Unlock()

	if mp.callbacks.OnPlay != nil {
		mp.callbacks.OnPlay(clip)
	}
	return done, nil
}

// Finish completes the current clip as if it had played to the end.
func (mp *MockPlayer) Finish() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.finishLocked()
}

func (mp *MockPlayer) finishLocked() {
	if mp.done != nil {
		close(mp.done)
		mp.done = nil
	}
	if mp.state != StateClosed {
		mp.state = StateStopped
	}
}

// Pause pauses the current clip.
func (mp *MockPlayer) Pause() error {
	mp.mu.Lock()
	if mp.state != StatePlaying {
		mp.mu.Unlock()
		return ErrNotPlaying
	}
	mp.state = StatePaused
	mp.pauseCount.Add(1)
	mp.mu.Unlock()

	if mp.callbacks.OnPause != nil {
		mp.callbacks.OnPause()
	}
	return nil
}

// Resume resumes a paused clip.
func (mp *MockPlayer) Resume() error {
	mp.mu.Lock()
	if mp.state != StatePaused {
		mp.mu.Unlock()
		return ErrNotPaused
	}
	mp.state = StatePlaying
	mp.resumeCount.Add(1)
	mp.mu.Unlock()

	if mp.callbacks.OnResume != nil {
		mp.callbacks.OnResume()
	}
	return nil
}

// Stop stops and releases the current clip.
func (mp *MockPlayer) Stop() error {
	mp.mu.Lock()
	stopped := mp.stopLocked()
	mp.mu.Unlock()

	if stopped && mp.callbacks.OnStop != nil {
		mp.callbacks.OnStop()
	}
	return nil
}

func (mp *MockPlayer) stopLocked() bool {
	if mp.state != StatePlaying && mp.state != StatePaused {
		return false
	}
	mp.finishLocked()
	mp.stopCount.Add(1)
	return true
}

// SetRate records the playback rate.
func (mp *MockPlayer) SetRate(rate float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.rate = rate
}

// Close stops playback and rejects further clips.
func (mp *MockPlayer) Close() error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stopLocked()
	mp.state = StateClosed
	return nil
}

// State returns the player state.
func (mp *MockPlayer) State() PlayerState {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.state
}

// Rate returns the last playback rate.
func (mp *MockPlayer) Rate() float64 {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.rate
}

// Played returns the clips played so far, in order.
func (mp *MockPlayer) Played() []*Clip {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return append([]*Clip(nil), mp.played...)
}

// PlayCount returns the number of Play calls that started a clip.
func (mp *MockPlayer) PlayCount() int64 { return mp.playCount.Load() }

// PauseCount returns the number of successful Pause calls.
func (mp *MockPlayer) PauseCount() int64 { return mp.pauseCount.Load() }

// ResumeCount returns the number of successful Resume calls.
func (mp *MockPlayer) ResumeCount() int64 { return mp.resumeCount.Load() }

// StopCount returns the number of Stop calls that stopped a clip.
func (mp *MockPlayer) StopCount() int64 { return mp.stopCount.Load() }
