package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/observe"
	"golang.org/x/sync/semaphore"
)

// ErrIndexOutOfRange is returned for a segment index outside the queue.
var ErrIndexOutOfRange = errors.New("segment index out of range")

// Generator synthesizes the audio for one piece of text.
type Generator func(ctx context.Context, text string) (*audio.Clip, error)

// Prefetcher is the per-queue audio cache. Each segment has at most one
// generation in flight; asking for it again returns the same Future.
// Generation runs on the prefetcher's own context, so a play session that
// gives up waiting does not cancel the synthesis.
type Prefetcher struct {
	q       *Queue
	gen     Generator
	sem     *semaphore.Weighted
	metrics *observe.Metrics

	// ctx gates waiting for a slot; genCtx is what issued requests run on.
	ctx       context.Context
	cancel    context.CancelFunc
	genCtx    context.Context
	genCancel context.CancelFunc
	wg        sync.WaitGroup
}

// Option configures a Prefetcher.
type Option func(*Prefetcher)

// WithConcurrency bounds how many generations run at once.
func WithConcurrency(n int) Option {
	return func(p *Prefetcher) {
		if n > 0 {
			p.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithMetrics records cache hits and misses.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Prefetcher) {
		p.metrics = m
	}
}

// NewPrefetcher creates the cache for q.
func NewPrefetcher(q *Queue, gen Generator, opts ...Option) *Prefetcher {
	genCtx, genCancel := context.WithCancel(context.Background())
	ctx, cancel := context.WithCancel(genCtx)
	p := &Prefetcher{
		q:         q,
		gen:       gen,
		sem:       semaphore.NewWeighted(4),
		ctx:       ctx,
		cancel:    cancel,
		genCtx:    genCtx,
		genCancel: genCancel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Queue returns the queue this cache serves.
func (p *Prefetcher) Queue() *Queue {
	return p.q
}

// ResultFor returns the future for segment i, starting generation if no
// audio exists and none is in flight.
func (p *Prefetcher) ResultFor(i int) *Future {
	seg := p.q.At(i)
	if seg == nil {
		f := newFuture()
		f.resolve(nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, i))
		return f
	}

	p.q.mu.Lock()
	if seg.future != nil {
		f := seg.future
		p.q.mu.Unlock()
		p.metrics.RecordCacheLookup(p.ctx, true)
		return f
	}
	f := newFuture()
	seg.future = f
	seg.status = Generating
	p.wg.Add(1)
	p.q.mu.Unlock()

	p.metrics.RecordCacheLookup(p.ctx, false)
	log.Debug("generating segment", "index", i)
	go p.generate(i, seg, f)
	return f
}

// Prefetch starts generation for segments [from, from+window) without
// waiting for any of them.
func (p *Prefetcher) Prefetch(from, window int) {
	if from < 0 {
		from = 0
	}
	for i := from; i < from+window && i < p.q.Len(); i++ {
		p.ResultFor(i)
	}
}

// Reset forgets all audio. Generations still in flight finish into their
// own futures but no longer update their segments.
func (p *Prefetcher) Reset() {
	p.q.mu.Lock()
	defer p.q.mu.Unlock()
	for _, seg := range p.q.segments {
		seg.status = NotGenerated
		seg.clip = nil
		seg.future = nil
	}
}

// Wait blocks until every generation started so far has finished.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}

// Discard abandons the queue: generations still waiting for a slot fail
// with context.Canceled, while requests already issued run to completion.
// It does not block.
func (p *Prefetcher) Discard() {
	p.cancel()
}

// Close cancels every generation, issued or not, and waits for them.
func (p *Prefetcher) Close() {
	p.genCancel()
	p.wg.Wait()
}

func (p *Prefetcher) generate(i int, seg *Segment, f *Future) {
	defer p.wg.Done()

	var (
		clip *audio.Clip
		err  error
	)
	if err = p.sem.Acquire(p.ctx, 1); err == nil {
		if err = p.ctx.Err(); err == nil {
			clip, err = p.gen(p.genCtx, seg.Text)
		}
		p.sem.Release(1)
	}
	if err != nil {
		log.Debug("segment generation failed", "index", i, "err", err)
	}

	p.q.mu.Lock()
	if seg.future == f {
		if err != nil {
			// Allow a later request to retry.
			seg.status = NotGenerated
			seg.future = nil
		} else {
			seg.status = Generated
			seg.clip = clip
		}
	}
	p.q.mu.Unlock()

	f.resolve(clip, err)
}
