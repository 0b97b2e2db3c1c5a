package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// Player plays one clip at a time. Play returns a channel that is closed when
// the clip has finished or was stopped; starting a new clip stops and
// releases the previous one.
type Player interface {
	Play(clip *Clip, rate float64) (<-chan struct{}, error)
	Pause() error
	Resume() error
	Stop() error
	SetRate(rate float64)
	Close() error
}

// PlayerState is the state of a Player.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StatePaused
	StateClosed
)

func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrPlayerClosed is returned by operations on a closed player.
	ErrPlayerClosed = errors.New("player is closed")
	// ErrNotPlaying is returned by Pause when nothing is playing.
	ErrNotPlaying = errors.New("player is not playing")
	// ErrNotPaused is returned by Resume when nothing is paused.
	ErrNotPaused = errors.New("player is not paused")
)

// PlayerConfig configures the output device.
type PlayerConfig struct {
	SampleRate int           // 44100 or 48000 Hz
	BufferSize time.Duration // device buffer
}

// DefaultPlayerConfig returns the default output configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 48000,
		BufferSize: 80 * time.Millisecond,
	}
}

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func otoContext(cfg PlayerConfig) (*oto.Context, error) {
	otoOnce.Do(func() {
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: 1,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferSize,
		})
		if err != nil {
			otoErr = fmt.Errorf("failed to create oto context: %w", err)
			return
		}
		<-ready
		otoCtx, otoRate = ctx, cfg.SampleRate
	})
	if otoErr == nil && otoRate != cfg.SampleRate {
		return nil, fmt.Errorf("oto context already running at %d Hz", otoRate)
	}
	return otoCtx, otoErr
}

// OtoPlayer plays clips through the system audio device.
type OtoPlayer struct {
	context *oto.Context
	outRate int

	stateMu sync.Mutex
	state   atomic.Int32
	rate    atomic.Uint64 // last requested rate, float64 bits

	player *oto.Player
	stream *stream
	done   chan struct{}
	closed bool // done has been closed
}

// NewOtoPlayer opens the audio device.
func NewOtoPlayer(cfg PlayerConfig) (*OtoPlayer, error) {
	if cfg.SampleRate != 44100 && cfg.SampleRate != 48000 {
		return nil, fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", cfg.SampleRate)
	}
	if cfg.BufferSize <= 0 {
		return nil, errors.New("buffer size must be positive")
	}
	ctx, err := otoContext(cfg)
	if err != nil {
		return nil, err
	}
	p := &OtoPlayer{context: ctx, outRate: cfg.SampleRate}
	p.state.Store(int32(StateStopped))
	p.rate.Store(math.Float64bits(1))
	return p, nil
}

// Play stops whatever is playing and starts clip at the given rate.
func (p *OtoPlayer) Play(clip *Clip, rate float64) (<-chan struct{}, error) {
	if clip.Samples() == 0 {
		return nil, ErrEmptyClip
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if PlayerState(p.state.Load()) == StateClosed {
		return nil, ErrPlayerClosed
	}
	p.stopLocked()

	p.setRateLocked(rate)
	s := newStream(clip, p.outRate, rate)
	player := p.context.NewPlayer(s)
	done := make(chan struct{})

	p.player, p.stream, p.done, p.closed = player, s, done, false
	player.Play()
	p.state.Store(int32(StatePlaying))

	log.Debug("audio playback started", "duration", clip.Duration(), "rate", rate)
	go p.watch(player, done)
	return done, nil
}

// watch closes done once player has drained its stream.
func (p *OtoPlayer) watch(player *oto.Player, done chan struct{}) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		p.stateMu.Lock()
		if p.player != player {
			// Stopped or replaced; stopLocked already closed done.
			p.stateMu.Unlock()
			return
		}
		if PlayerState(p.state.Load()) == StatePlaying && !player.IsPlaying() {
			p.releaseLocked()
			p.state.Store(int32(StateStopped))
			p.stateMu.Unlock()
			log.Debug("audio playback finished")
			return
		}
		p.stateMu.Unlock()
	}
}

// Pause pauses the current clip in place.
func (p *OtoPlayer) Pause() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if PlayerState(p.state.Load()) != StatePlaying {
		return ErrNotPlaying
	}
	p.player.Pause()
	p.state.Store(int32(StatePaused))
	return nil
}

// Resume continues the current clip from where it was paused.
func (p *OtoPlayer) Resume() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if PlayerState(p.state.Load()) != StatePaused {
		return ErrNotPaused
	}
	p.player.Play()
	p.state.Store(int32(StatePlaying))
	return nil
}

// Stop halts and releases the current clip.
func (p *OtoPlayer) Stop() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.stopLocked()
	return nil
}

func (p *OtoPlayer) stopLocked() {
	switch PlayerState(p.state.Load()) {
	case StateStopped, StateClosed:
		return
	}
	p.player.Pause()
	p.releaseLocked()
	p.state.Store(int32(StateStopped))
}

func (p *OtoPlayer) releaseLocked() {
	if p.player != nil {
		if err := p.player.Close(); err != nil {
			log.Debug("closing oto player", "err", err)
		}
		p.player = nil
	}
	p.stream = nil
	if p.done != nil && !p.closed {
		close(p.done)
		p.closed = true
	}
}

// SetRate changes the playback rate of the current and future clips.
func (p *OtoPlayer) SetRate(rate float64) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.setRateLocked(rate)
}

func (p *OtoPlayer) setRateLocked(rate float64) {
	if rate <= 0 {
		rate = 1
	}
	p.rate.Store(math.Float64bits(rate))
	if p.stream != nil {
		p.stream.setRate(rate)
	}
}

// State returns the player state.
func (p *OtoPlayer) State() PlayerState {
	return PlayerState(p.state.Load())
}

// Close stops playback. The oto context lives for the rest of the process.
func (p *OtoPlayer) Close() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	p.stopLocked()
	p.state.Store(int32(StateClosed))
	return nil
}

// Rate returns the last requested playback rate.
func (p *OtoPlayer) Rate() float64 {
	return math.Float64frombits(p.rate.Load())
}
