package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
)

// fakeGenerator counts calls per text and can hold generations until
// released.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   map[string]int
	total   atomic.Int64
	gate    chan struct{}
	failFor string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{calls: map[string]int{}}
}

func (g *fakeGenerator) generate(ctx context.Context, text string) (*audio.Clip, error) {
	g.mu.Lock()
	g.calls[text]++
	gate := g.gate
	g.mu.Unlock()
	g.total.Add(1)

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if text == g.failFor {
		return nil, errors.New("synthesis failed")
	}
	return &audio.Clip{PCM: []byte(text), SampleRate: 24000}, nil
}

func (g *fakeGenerator) count(text string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[text]
}

func newTestQueue(texts ...string) *Queue {
	segs := make([]*Segment, len(texts))
	for i, t := range texts {
		segs[i] = &Segment{Text: t}
	}
	return New(segs)
}

func TestResultForDeduplicates(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	p := NewPrefetcher(newTestQueue("a", "b"), gen.generate)
	defer p.Close()

	var wg sync.WaitGroup
	futures := make([]*Future, 10)
	for i := range futures {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			futures[i] = p.ResultFor(0)
		}(i)
	}
	wg.Wait()

	for i, f := range futures {
		if f != futures[0] {
			t.Fatalf("future %d differs from the first one", i)
		}
	}
	if got := p.Queue().Status(0); got != Generating {
		t.Errorf("Status(0) = %v, want generating", got)
	}

	close(gen.gate)
	clip, err := futures[0].Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if string(clip.PCM) != "a" {
		t.Errorf("clip = %q, want %q", clip.PCM, "a")
	}
	if got := gen.count("a"); got != 1 {
		t.Errorf("generator called %d times for the same segment, want 1", got)
	}
	if got := p.Queue().Status(0); got != Generated {
		t.Errorf("Status(0) = %v, want generated", got)
	}
	if p.ResultFor(0) != futures[0] {
		t.Error("a generated segment should return its resolved future")
	}
}

func TestPrefetchWindow(t *testing.T) {
	gen := newFakeGenerator()
	p := NewPrefetcher(newTestQueue("0", "1", "2", "3", "4"), gen.generate)
	defer p.Close()

	p.Prefetch(1, 2)
	p.Wait()

	want := map[int]Status{0: NotGenerated, 1: Generated, 2: Generated, 3: NotGenerated, 4: NotGenerated}
	for i, st := range want {
		if got := p.Queue().Status(i); got != st {
			t.Errorf("Status(%d) = %v, want %v", i, got, st)
		}
	}

	// A window running off the end of the queue is clipped.
	p.Prefetch(3, 10)
	p.Wait()
	if gen.total.Load() != 4 {
		t.Errorf("generator calls = %d, want 4", gen.total.Load())
	}
}

func TestResetForcesRegeneration(t *testing.T) {
	gen := newFakeGenerator()
	p := NewPrefetcher(newTestQueue("a", "b"), gen.generate)
	defer p.Close()

	p.Prefetch(0, 2)
	p.Wait()
	p.Reset()

	for i := 0; i < 2; i++ {
		if got := p.Queue().Status(i); got != NotGenerated {
			t.Errorf("Status(%d) after Reset = %v, want not-generated", i, got)
		}
		if _, ok := p.Queue().Clip(i); ok {
			t.Errorf("Clip(%d) should be gone after Reset", i)
		}
	}

	if _, err := p.ResultFor(0).Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := gen.count("a"); got != 2 {
		t.Errorf("generator calls for a = %d, want 2", got)
	}
}

func TestResetDuringGeneration(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	p := NewPrefetcher(newTestQueue("a"), gen.generate)
	defer p.Close()

	old := p.ResultFor(0)
	p.Reset()
	close(gen.gate)

	if _, err := old.Wait(context.Background()); err != nil {
		t.Fatalf("in-flight generation should still resolve, got %v", err)
	}
	p.Wait()
	if got := p.Queue().Status(0); got != NotGenerated {
		t.Errorf("Status(0) = %v, a stale generation must not repopulate the segment", got)
	}
	if p.ResultFor(0) == old {
		t.Error("ResultFor after Reset returned the stale future")
	}
}

func TestFailedGenerationCanRetry(t *testing.T) {
	gen := newFakeGenerator()
	gen.failFor = "bad"
	p := NewPrefetcher(newTestQueue("bad"), gen.generate)
	defer p.Close()

	if _, err := p.ResultFor(0).Wait(context.Background()); err == nil {
		t.Fatal("expected a synthesis error")
	}
	p.Wait()
	if got := p.Queue().Status(0); got != NotGenerated {
		t.Errorf("Status(0) after failure = %v, want not-generated", got)
	}
	p.ResultFor(0)
	p.Wait()
	if got := gen.count("bad"); got != 2 {
		t.Errorf("generator calls = %d, want a retry", got)
	}
}

func TestWaitHonoursContext(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	p := NewPrefetcher(newTestQueue("slow"), gen.generate)
	defer func() {
		close(gen.gate)
		p.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := p.ResultFor(0).Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() error = %v, want deadline exceeded", err)
	}
}

func TestResultForOutOfRange(t *testing.T) {
	p := NewPrefetcher(newTestQueue("a"), newFakeGenerator().generate)
	defer p.Close()

	for _, i := range []int{-1, 1} {
		if _, err := p.ResultFor(i).Wait(context.Background()); !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("ResultFor(%d) error = %v, want ErrIndexOutOfRange", i, err)
		}
	}
}

func TestConcurrencyBound(t *testing.T) {
	var running, peak atomic.Int64
	gate := make(chan struct{})
	gen := func(ctx context.Context, text string) (*audio.Clip, error) {
		n := running.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-gate
		running.Add(-1)
		return &audio.Clip{PCM: []byte{0, 0}, SampleRate: 24000}, nil
	}

	p := NewPrefetcher(newTestQueue("a", "b", "c", "d", "e"), gen, WithConcurrency(2))
	p.Prefetch(0, 5)
	time.Sleep(50 * time.Millisecond)
	close(gate)
	p.Close()

	if peak.Load() > 2 {
		t.Errorf("peak concurrent generations = %d, want <= 2", peak.Load())
	}
}

func TestDiscardSkipsWaitingGenerations(t *testing.T) {
	gen := newFakeGenerator()
	gen.gate = make(chan struct{})
	p := NewPrefetcher(newTestQueue("a", "b"), gen.generate, WithConcurrency(1))
	defer p.Close()

	first := p.ResultFor(0)
	deadline := time.Now().Add(time.Second)
	for gen.total.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("first generation never started")
		}
		time.Sleep(time.Millisecond)
	}
	second := p.ResultFor(1)

	p.Discard()
	if _, err := second.Wait(context.Background()); !errors.Is(err, context.Canceled) {
		t.Errorf("waiting generation error = %v, want context.Canceled", err)
	}
	close(gen.gate)
	if _, err := first.Wait(context.Background()); err != nil {
		t.Errorf("issued generation error = %v, it should run to completion", err)
	}
	if got := gen.count("b"); got != 0 {
		t.Errorf("generator calls for the waiting segment = %d, want 0", got)
	}
}
