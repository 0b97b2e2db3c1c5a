// Package bridge talks to the out-of-process synthesis worker.
//
// A Client starts the worker lazily, waits for its ready handshake, and
// multiplexes concurrent requests over one JSON-lines pipe. Responses are
// matched to requests by correlation id, so they may complete in any order.
// When the worker dies every pending request fails with ErrWorkerExited and
// the next call starts a fresh worker.
package bridge

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/observe"
	"github.com/dgnsrekt/readaloud/internal/protocol"
	"github.com/dgnsrekt/readaloud/internal/sentence"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Defaults for Config.
const (
	DefaultRequestTimeout = 60 * time.Second
	DefaultMaxChars       = 220
)

// Status is the worker's readiness as seen by the client.
type Status int

const (
	// NotReady means no worker is running or its model is not loaded.
	NotReady Status = iota
	// Ready means init succeeded on the running worker.
	Ready
	// Failed means the worker could not be asked.
	Failed
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "not-ready"
	}
}

// Config configures a Client.
type Config struct {
	Model protocol.ModelConfig
	// RequestTimeout bounds each request, including the wait for the
	// worker's handshake.
	RequestTimeout time.Duration
	// RequestsPerSecond paces outgoing requests. Zero means unlimited.
	RequestsPerSecond float64
	// MaxChars is the longest text sent in one generate request. Longer
	// text is split at sentence boundaries. Zero or less disables splitting.
	MaxChars int
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		Model:          protocol.DefaultModelConfig(),
		RequestTimeout: DefaultRequestTimeout,
		MaxChars:       DefaultMaxChars,
	}
}

// Client is safe for concurrent use.
type Client struct {
	dialer  Dialer
	cfg     Config
	limiter *rate.Limiter
	metrics *observe.Metrics

	ids  atomic.Uint64
	init singleflight.Group

	mu     sync.Mutex
	w      *workerConn
	closed bool
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records request metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New returns a client that starts workers with d. No worker is started
// until the first request.
func New(d Dialer, cfg Config, opts ...Option) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	c := &Client{dialer: d, cfg: cfg}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// workerConn is one worker process and its request plumbing.
type workerConn struct {
	conn *Conn

	out   chan []byte   // frames in issue order
	ready chan struct{} // closed after the handshake
	dead  chan struct{} // closed when the worker is gone

	initialized atomic.Bool

	mu      sync.Mutex
	pending map[uint64]chan protocol.Response

	closeOnce sync.Once
}

// worker returns the running worker, starting one if needed.
func (c *Client) worker(ctx context.Context) (*workerConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.w != nil {
		return c.w, nil
	}

	conn, err := c.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	w := &workerConn{
		conn:    conn,
		out:     make(chan []byte, 256),
		ready:   make(chan struct{}),
		dead:    make(chan struct{}),
		pending: make(map[uint64]chan protocol.Response),
	}
	c.w = w
	c.metrics.RecordWorkerStart(ctx)
	go c.readLoop(w)
	go w.writeLoop()
	return w, nil
}

// readLoop delivers responses until the worker's stdout ends.
func (c *Client) readLoop(w *workerConn) {
	br := bufio.NewReader(w.conn.Stdout)
	handshake := false
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			var resp protocol.Response
			if jerr := json.Unmarshal(line, &resp); jerr != nil {
				log.Warn("bridge: bad response line", "err", jerr)
			} else if resp.Type == protocol.TypeReady {
				if !handshake {
					handshake = true
					close(w.ready)
					log.Debug("bridge: worker ready")
				}
			} else {
				w.deliver(resp)
			}
		}
		if err != nil {
			log.Debug("bridge: worker output closed", "err", err)
			break
		}
	}

	c.mu.Lock()
	if c.w == w {
		c.w = nil
	}
	c.mu.Unlock()
	w.shutdown()
}

// writeLoop writes frames in order once the handshake is done.
func (w *workerConn) writeLoop() {
	select {
	case <-w.ready:
	case <-w.dead:
		return
	}
	for {
		select {
		case frame := <-w.out:
			if _, err := w.conn.Stdin.Write(frame); err != nil {
				log.Warn("bridge: write request", "err", err)
				w.shutdown()
				return
			}
		case <-w.dead:
			return
		}
	}
}

func (w *workerConn) register(id uint64) (chan protocol.Response, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return nil, false
	}
	ch := make(chan protocol.Response, 1)
	w.pending[id] = ch
	return ch, true
}

func (w *workerConn) unregister(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.pending, id)
}

// deliver routes resp to its waiter exactly once.
func (w *workerConn) deliver(resp protocol.Response) {
	w.mu.Lock()
	ch, ok := w.pending[resp.ID]
	delete(w.pending, resp.ID)
	w.mu.Unlock()
	if !ok {
		log.Debug("bridge: dropping response for unknown request", "id", resp.ID)
		return
	}
	ch <- resp
}

// shutdown fails every pending request and releases the worker.
func (w *workerConn) shutdown() {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.pending = nil
		w.mu.Unlock()
		close(w.dead)
		if w.conn.Close != nil {
			if err := w.conn.Close(); err != nil {
				log.Debug("bridge: close worker", "err", err)
			}
		}
	})
}

// call sends one request to w and waits for its response.
func (c *Client) call(ctx context.Context, w *workerConn, typ protocol.Type, payload any) (resp protocol.Response, err error) {
	started := time.Now()
	defer func() { c.metrics.RecordSynthesis(ctx, string(typ), started, err) }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return resp, err
		}
	}

	id := c.ids.Add(1)
	req, err := protocol.NewRequest(id, typ, payload)
	if err != nil {
		return resp, err
	}
	frame, err := json.Marshal(req)
	if err != nil {
		return resp, err
	}
	frame = append(frame, '\n')

	ch, ok := w.register(id)
	if !ok {
		return resp, ErrWorkerExited
	}

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case w.out <- frame:
	case <-w.dead:
		return resp, ErrWorkerExited
	case <-timer.C:
		w.unregister(id)
		return resp, fmt.Errorf("%w: %s after %v", ErrTimeout, typ, c.cfg.RequestTimeout)
	case <-ctx.Done():
		w.unregister(id)
		return resp, ctx.Err()
	}

	select {
	case resp = <-ch:
	case <-w.dead:
		// The response may have been delivered just before the worker died.
		select {
		case resp = <-ch:
		default:
			return resp, ErrWorkerExited
		}
	case <-timer.C:
		w.unregister(id)
		return resp, fmt.Errorf("%w: %s after %v", ErrTimeout, typ, c.cfg.RequestTimeout)
	case <-ctx.Done():
		w.unregister(id)
		return resp, ctx.Err()
	}

	if !resp.OK {
		if resp.Error == protocol.NotInitialized {
			w.initialized.Store(false)
			return resp, ErrNotInitialized
		}
		return resp, fmt.Errorf("%w: %s", ErrWorkerFailed, resp.Error)
	}
	return resp, nil
}

// Initialize starts the worker if needed and loads the model. It succeeds
// at most once per worker; concurrent callers share one request. A failed
// init may be retried.
func (c *Client) Initialize(ctx context.Context) error {
	w, err := c.worker(ctx)
	if err != nil {
		return err
	}
	if w.initialized.Load() {
		return nil
	}

	ch := c.init.DoChan(fmt.Sprintf("init-%p", w), func() (any, error) {
		if w.initialized.Load() {
			return nil, nil
		}
		// Shared by every waiter, so it must not die with the first caller.
		ictx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RequestTimeout)
		defer cancel()
		if _, err := c.call(ictx, w, protocol.TypeInit, c.cfg.Model); err != nil {
			return nil, fmt.Errorf("initialize worker: %w", err)
		}
		w.initialized.Store(true)
		log.Info("synthesis worker initialized", "model", c.cfg.Model.Model, "device", c.cfg.Model.Device)
		return nil, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ready returns an initialized worker.
func (c *Client) ready(ctx context.Context) (*workerConn, error) {
	if err := c.Initialize(ctx); err != nil {
		return nil, err
	}
	return c.worker(ctx)
}

// ListVoices returns the worker's voices.
func (c *Client) ListVoices(ctx context.Context) ([]string, error) {
	w, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := c.call(ctx, w, protocol.TypeVoices, nil)
	if err != nil {
		return nil, err
	}
	return resp.Voices, nil
}

// Synthesize returns the audio for text. Text longer than MaxChars is split
// at sentence boundaries; the pieces are requested together and joined
// without gaps.
func (c *Client) Synthesize(ctx context.Context, text, voice string) (*audio.Clip, error) {
	w, err := c.ready(ctx)
	if err != nil {
		return nil, err
	}

	units := []string{text}
	if c.cfg.MaxChars > 0 && utf8.RuneCountInString(text) > c.cfg.MaxChars {
		units = sentence.Chunk(text, c.cfg.MaxChars)
		log.Debug("bridge: split long text", "chars", utf8.RuneCountInString(text), "units", len(units))
	}
	if len(units) == 1 {
		return c.generate(ctx, w, units[0], voice)
	}

	clips := make([]*audio.Clip, len(units))
	g, gctx := errgroup.WithContext(ctx)
	for i, unit := range units {
		g.Go(func() error {
			clip, err := c.generate(gctx, w, unit, voice)
			if err != nil {
				return err
			}
			clips[i] = clip
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, clip := range clips[1:] {
		if clip.SampleRate != clips[0].SampleRate {
			return nil, fmt.Errorf("%w: unit %d is %d Hz, first unit is %d Hz",
				ErrSampleRateMismatch, i+1, clip.SampleRate, clips[0].SampleRate)
		}
	}
	return audio.Concat(clips...)
}

func (c *Client) generate(ctx context.Context, w *workerConn, text, voice string) (*audio.Clip, error) {
	resp, err := c.call(ctx, w, protocol.TypeGenerate, protocol.GeneratePayload{Text: text, Voice: voice})
	if err != nil {
		return nil, err
	}
	clip, err := audio.NewClip(resp.Audio, resp.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerFailed, err)
	}
	return clip, nil
}

// Status reports readiness without starting a worker.
func (c *Client) Status(ctx context.Context) Status {
	c.mu.Lock()
	w := c.w
	c.mu.Unlock()
	if w == nil {
		return NotReady
	}
	if !w.initialized.Load() {
		return NotReady
	}
	resp, err := c.call(ctx, w, protocol.TypeStatus, nil)
	if err != nil {
		log.Debug("bridge: status request failed", "err", err)
		return Failed
	}
	if resp.Ready {
		return Ready
	}
	return NotReady
}

// Close stops the worker. Pending requests fail with ErrWorkerExited.
func (c *Client) Close() error {
	c.mu.Lock()
	w := c.w
	c.w = nil
	c.closed = true
	c.mu.Unlock()
	if w != nil {
		w.shutdown()
	}
	return nil
}

// IsWorkerGone reports whether err means the worker went away.
func IsWorkerGone(err error) bool {
	return errors.Is(err, ErrWorkerExited) || errors.Is(err, ErrClosed)
}
