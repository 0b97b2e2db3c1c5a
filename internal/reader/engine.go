// Package reader is the playback engine. It segments a document into a
// queue, keeps audio for the next few segments synthesizing ahead of the
// one being read, highlights the current segment, and drives the player
// through a small Idle/Playing/Paused state machine.
//
// Each play session owns a context (its token). Start, Jump and Stop cancel
// the previous token before acting, and only the call that cancelled a
// token finalizes shared state. A session that reaches the end of the queue
// finalizes itself.
package reader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/highlight"
	"github.com/dgnsrekt/readaloud/internal/observe"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/segment"
	"golang.org/x/net/html"
)

// Synthesizer produces speech. bridge.Client implements it.
type Synthesizer interface {
	Initialize(ctx context.Context) error
	Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error)
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	State    State    `json:"state"`
	Index    int      `json:"index"`
	Total    int      `json:"total"`
	Settings Settings `json:"settings"`
}

// Engine is safe for concurrent use.
type Engine struct {
	doc       *document.Document
	synth     Synthesizer
	player    audio.Player
	segmenter *segment.Segmenter
	metrics   *observe.Metrics
	hooks     Hooks

	window       int
	concurrency  int
	pendingClass string
	activeClass  string

	settings atomic.Pointer[Settings]

	// mu is taken before the document lock, never after it.
	mu      sync.Mutex
	sm      stateMachine
	hl      *highlight.Highlighter
	q       *queue.Queue
	pf      *queue.Prefetcher
	index   int
	scope   document.Locator
	cancel  context.CancelFunc // cancels the live token
	resumed chan struct{}      // closed when a pause ends
	events  []func()
}

// New creates an idle engine.
func New(doc *document.Document, synth Synthesizer, player audio.Player, opts ...Option) *Engine {
	e := &Engine{
		doc:          doc,
		synth:        synth,
		player:       player,
		segmenter:    segment.New(),
		window:       DefaultPrefetchWindow,
		concurrency:  DefaultConcurrency,
		pendingClass: highlight.DefaultPendingClass,
		activeClass:  highlight.DefaultActiveClass,
		index:        -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	s := DefaultSettings()
	e.settings.Store(&s)

	e.hl = highlight.New(e.segmenter.Visibility.Excluded)
	e.hl.PendingClass = e.pendingClass
	e.hl.ActiveClass = e.activeClass
	e.sm.onChange = func(from, to State) {
		log.Debug("reader state", "from", from, "to", to)
		if fn := e.hooks.OnStateChange; fn != nil {
			e.events = append(e.events, func() { fn(from, to) })
		}
	}
	return e
}

// unlock releases mu and then runs the hooks queued while it was held.
func (e *Engine) unlock() {
	events := e.events
	e.events = nil
	e.mu.Unlock()
	for _, fn := range events {
		fn()
	}
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	return *e.settings.Load()
}

// SetVoice changes the voice used by later synthesis requests. Audio that
// is already cached keeps its old voice until ClearCache.
func (e *Engine) SetVoice(voice string) {
	s := e.Settings()
	s.Voice = voice
	e.settings.Store(&s)
}

// SetSpeed changes the playback rate, including for the segment that is
// playing now.
func (e *Engine) SetSpeed(speed float64) error {
	if err := validSpeed(speed); err != nil {
		return err
	}
	s := e.Settings()
	s.Speed = speed
	e.settings.Store(&s)
	e.player.SetRate(speed)
	return nil
}

func validSpeed(speed float64) error {
	if speed < MinSpeed || speed > MaxSpeed {
		return fmt.Errorf("%w: %v not in [%v, %v]", ErrInvalidSpeed, speed, MinSpeed, MaxSpeed)
	}
	return nil
}

// SetScope limits later Starts to the subtree at loc. A nil locator reads
// the whole document.
func (e *Engine) SetScope(loc document.Locator) {
	e.mu.Lock()
	defer e.unlock()
	e.scope = loc
}

// Snapshot returns the current state, position and settings.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.unlock()
	return Snapshot{
		State:    e.sm.Current(),
		Index:    e.index,
		Total:    e.q.Len(),
		Settings: e.Settings(),
	}
}

// Queue returns a view of every segment of the current queue.
func (e *Engine) Queue() []queue.Info {
	e.mu.Lock()
	q := e.q
	e.unlock()
	return q.Infos()
}

// Start reads the document from the beginning with s. A running session is
// stopped first. It returns ErrNothingToRead when the document has no
// readable blocks.
func (e *Engine) Start(ctx context.Context, s Settings) error {
	if err := s.normalize(); err != nil {
		return err
	}

	e.mu.Lock()
	if e.sm.Current() != Idle {
		e.stopLocked()
	}
	scope := e.scope
	e.unlock()

	e.settings.Store(&s)
	e.player.SetRate(s.Speed)

	if err := e.synth.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize synthesis: %w", err)
	}

	var segs []*queue.Segment
	e.doc.View(func(root *html.Node) {
		if scope != nil {
			segs = e.segmenter.SegmentWithin(root, scope)
			return
		}
		segs = e.segmenter.Segment(root)
	})

	e.mu.Lock()
	defer e.unlock()
	// Another Start may have won the race while we were segmenting.
	if e.sm.Current() != Idle {
		e.stopLocked()
	}
	e.discardQueueLocked()
	if len(segs) == 0 {
		log.Info("nothing to read", "source", e.doc.Source())
		return ErrNothingToRead
	}

	e.q = queue.New(segs)
	e.pf = queue.NewPrefetcher(e.q, e.generate,
		queue.WithConcurrency(e.concurrency),
		queue.WithMetrics(e.metrics),
	)
	log.Info("reading", "segments", len(segs), "voice", s.Voice, "speed", s.Speed)

	e.sm.Transition(Playing)
	e.launchLocked(0)
	return nil
}

// generate is the prefetcher's Generator. The voice is read per request.
func (e *Engine) generate(ctx context.Context, text string) (*audio.Clip, error) {
	return e.synth.Synthesize(ctx, text, e.Settings().Voice)
}

// Pause holds the current session. The segment that is playing pauses in
// place and Resume continues it from the same sample.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.transitionLocked("pause", Paused, Playing); err != nil {
		return err
	}
	e.resumed = make(chan struct{})
	if err := e.player.Pause(); err != nil && !errors.Is(err, audio.ErrNotPlaying) {
		log.Warn("pause player", "err", err)
	}
	return nil
}

// Resume continues a paused session.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.unlock()
	if err := e.transitionLocked("resume", Playing, Paused); err != nil {
		return err
	}
	e.releasePauseLocked()
	if err := e.player.Resume(); err != nil && !errors.Is(err, audio.ErrNotPaused) {
		log.Warn("resume player", "err", err)
	}
	return nil
}

// Toggle starts when idle, pauses when playing and resumes when paused.
func (e *Engine) Toggle(ctx context.Context, s Settings) error {
	e.mu.Lock()
	state := e.sm.Current()
	e.unlock()

	switch state {
	case Playing:
		return e.Pause()
	case Paused:
		return e.Resume()
	default:
		return e.Start(ctx, s)
	}
}

// Jump abandons the current segment and reads from segment i.
func (e *Engine) Jump(ctx context.Context, i int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.unlock()
	if e.q == nil {
		return ErrNoQueue
	}
	if i < 0 || i >= e.q.Len() {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, e.q.Len())
	}

	e.cancelLocked()
	e.releasePauseLocked()
	e.haltLocked()
	e.sm.Transition(Playing)
	e.launchLocked(i)
	return nil
}

// Stop ends the session, silences audio and removes the highlight. Stopping
// an idle engine succeeds.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.unlock()
	e.stopLocked()
	return nil
}

func (e *Engine) stopLocked() {
	e.cancelLocked()
	e.releasePauseLocked()
	e.haltLocked()
	if e.sm.Current() != Idle {
		e.sm.Transition(Idle)
	}
	e.index = -1
}

// ClearCache stops and forgets every synthesized clip of the queue.
func (e *Engine) ClearCache() error {
	e.mu.Lock()
	defer e.unlock()
	e.stopLocked()
	if e.pf != nil {
		e.pf.Reset()
	}
	return nil
}

// Close stops the engine and abandons background synthesis.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.stopLocked()
	pf := e.pf
	e.unlock()
	if pf != nil {
		pf.Close()
	}
	return nil
}

// transitionLocked moves to to when the current state is want.
func (e *Engine) transitionLocked(op string, to, want State) error {
	from := e.sm.Current()
	if from != want || !e.sm.Transition(to) {
		err := &TransitionError{Op: op, From: from, To: to}
		log.Warn("rejected transition", "op", op, "state", from)
		return err
	}
	return nil
}

func (e *Engine) cancelLocked() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
}

func (e *Engine) releasePauseLocked() {
	if e.resumed != nil {
		close(e.resumed)
		e.resumed = nil
	}
}

// haltLocked releases the audio handle and the highlight.
func (e *Engine) haltLocked() {
	if err := e.player.Stop(); err != nil {
		log.Debug("stop player", "err", err)
	}
	e.doc.Update(func(*html.Node) { e.hl.Clear() })
}

func (e *Engine) launchLocked(start int) {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.loop(ctx, e.pf, start)
}

// discardQueueLocked drops the current queue. Its generations that have
// not been issued yet never start.
func (e *Engine) discardQueueLocked() {
	if e.pf != nil {
		e.pf.Discard()
	}
	e.q, e.pf = nil, nil
}

// loop is one play session. It returns without touching shared state once
// its token is cancelled.
func (e *Engine) loop(ctx context.Context, pf *queue.Prefetcher, start int) {
	defer e.metrics.SessionStarted(ctx)()
	q := pf.Queue()

	for i := start; i < q.Len(); i++ {
		e.mu.Lock()
		if ctx.Err() != nil || !e.sm.Current().Active() {
			e.unlock()
			return
		}
		e.index = i
		e.markPendingLocked(q.At(i), i)
		if fn := e.hooks.OnSegment; fn != nil {
			info := q.Info(i)
			e.events = append(e.events, func() { fn(info) })
		}
		future := pf.ResultFor(i)
		e.unlock()

		clip, err := future.Wait(ctx)
		if err != nil {
			if ctx.Err() == nil {
				e.fail(ctx, i, err)
			}
			return
		}

		done, ok := e.play(ctx, clip, i)
		if !ok {
			return
		}
		e.mu.Lock()
		pf.Prefetch(i+1, e.window)
		e.unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return
		}
	}

	e.mu.Lock()
	defer e.unlock()
	if ctx.Err() != nil {
		return
	}
	e.haltLocked()
	e.cancelLocked()
	e.sm.Transition(Idle)
	e.index = -1
	log.Info("finished reading")
	if fn := e.hooks.OnFinished; fn != nil {
		e.events = append(e.events, fn)
	}
}

// play waits out a pause, then activates the highlight and starts clip.
func (e *Engine) play(ctx context.Context, clip *audio.Clip, i int) (<-chan struct{}, bool) {
	for {
		e.mu.Lock()
		if ctx.Err() != nil {
			e.unlock()
			return nil, false
		}
		if e.sm.Current() != Paused {
			break
		}
		resumed := e.resumed
		e.unlock()
		select {
		case <-resumed:
		case <-ctx.Done():
			return nil, false
		}
	}
	defer e.unlock()

	e.doc.Update(func(*html.Node) { e.hl.Activate() })
	if clip.Samples() == 0 {
		// Nothing to hear, e.g. a block of symbols.
		log.Debug("segment has no audio", "index", i)
		done := make(chan struct{})
		close(done)
		return done, true
	}
	done, err := e.player.Play(clip, e.Settings().Speed)
	if err != nil {
		e.failLocked(i, err)
		return nil, false
	}
	e.metrics.RecordSegmentPlayed(ctx)
	return done, true
}

// markPendingLocked highlights seg, finding its region again if the
// document changed since segmentation.
func (e *Engine) markPendingLocked(seg *queue.Segment, i int) {
	e.doc.Update(func(root *html.Node) {
		region := seg.Region
		if !document.Attached(root, region) {
			region = seg.Locator.Resolve(root)
		}
		if region == nil {
			e.hl.Clear()
			log.Debug("segment region not locatable", "index", i, "locator", seg.Locator)
			return
		}
		e.hl.MarkPending(region, seg.Text)
	})
}

func (e *Engine) fail(ctx context.Context, i int, err error) {
	e.mu.Lock()
	defer e.unlock()
	if ctx.Err() != nil {
		return
	}
	e.failLocked(i, err)
}

// failLocked ends the live session in Idle and reports err.
func (e *Engine) failLocked(i int, err error) {
	serr := &SynthesisError{Index: i, Cause: err}
	log.Error("reading failed", "index", i, "err", err)
	e.stopLocked()
	if fn := e.hooks.OnError; fn != nil {
		e.events = append(e.events, func() { fn(serr) })
	}
}
