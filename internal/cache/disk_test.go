package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/readaloud/internal/audio"
)

func testClip(t *testing.T, n int, rate int) *audio.Clip {
	t.Helper()
	pcm := make([]byte, n*2)
	for i := range pcm {
		pcm[i] = byte(i % 251)
	}
	clip, err := audio.NewClip(pcm, rate)
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	return clip
}

func TestKey(t *testing.T) {
	tests := []struct {
		name          string
		voiceA, textA string
		voiceB, textB string
		same          bool
	}{
		{"same input", "af", "Hello.", "af", "Hello.", true},
		{"voice differs", "af", "Hello.", "bf", "Hello.", false},
		{"text differs", "af", "Hello.", "af", "Hello!", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Key(tt.voiceA, tt.textA) == Key(tt.voiceB, tt.textB)
			if got != tt.same {
				t.Errorf("same = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestDiskCacheRoundTrip(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()

	clip := testClip(t, 1000, 24000)
	key := Key("af", "Hello.")
	if _, ok := dc.Get(key); ok {
		t.Fatal("hit on empty cache")
	}
	if err := dc.Put(key, clip); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := dc.Get(key)
	if !ok {
		t.Fatal("miss after Put")
	}
	if got.SampleRate != 24000 || string(got.PCM) != string(clip.PCM) {
		t.Errorf("clip changed: rate %d, %d bytes", got.SampleRate, len(got.PCM))
	}

	stats := dc.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.ItemCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestDiskCachePersists(t *testing.T) {
	dir := t.TempDir()
	key := Key("af", "Persisted.")

	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	if err := dc.Put(key, testClip(t, 100, 22050)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok := reopened.Get(key)
	if !ok {
		t.Fatal("entry lost across reopen")
	}
	if got.SampleRate != 22050 || got.Samples() != 100 {
		t.Errorf("got rate %d samples %d", got.SampleRate, got.Samples())
	}
}

func TestDiskCacheTTL(t *testing.T) {
	dir := t.TempDir()
	key := Key("af", "Old.")

	dc, err := NewDiskCache(dir, 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	if err := dc.Put(key, testClip(t, 10, 24000)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := dc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	reopened, err := NewDiskCache(dir, 1<<20, 3, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.Contains(key) {
		t.Error("expired entry survived reopen")
	}
}

func TestDiskCacheEviction(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()

	first, second := Key("af", "one"), Key("af", "two")
	if err := dc.Put(first, testClip(t, 500, 24000)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Shrink capacity to what the first entry uses so the next Put evicts it.
	dc.mu.Lock()
	dc.capacity = dc.size
	dc.mu.Unlock()

	if err := dc.Put(second, testClip(t, 500, 24000)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if dc.Contains(first) {
		t.Error("oldest entry not evicted")
	}
	if !dc.Contains(second) {
		t.Error("new entry missing")
	}
	if dc.Stats().Evictions != 1 {
		t.Errorf("evictions = %d", dc.Stats().Evictions)
	}
}

func TestDiskCacheTooLarge(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 8, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()
	err = dc.Put(Key("af", "big"), testClip(t, 4000, 24000))
	if !errors.Is(err, ErrItemTooLarge) {
		t.Errorf("err = %v, want ErrItemTooLarge", err)
	}
}

func TestDiskCacheClear(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()
	key := Key("af", "gone")
	if err := dc.Put(key, testClip(t, 10, 24000)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := dc.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if dc.Contains(key) || dc.Stats().Size != 0 {
		t.Error("entries left after Clear")
	}
}

type countingSynth struct {
	mu    sync.Mutex
	calls map[string]int
	clip  *audio.Clip
	err   error
}

func (s *countingSynth) Initialize(context.Context) error { return nil }

func (s *countingSynth) Synthesize(_ context.Context, text, voice string) (*audio.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[voice+"|"+text]++
	return s.clip, s.err
}

func TestCachedSynthesizer(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()

	inner := &countingSynth{clip: testClip(t, 50, 24000)}
	s := NewCachedSynthesizer(inner, dc, nil)
	ctx := context.Background()

	for range 3 {
		if _, err := s.Synthesize(ctx, "Hello.", "af"); err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
	}
	if _, err := s.Synthesize(ctx, "Hello.", "bf"); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if n := inner.calls["af|Hello."]; n != 1 {
		t.Errorf("af synthesized %d times, want 1", n)
	}
	if n := inner.calls["bf|Hello."]; n != 1 {
		t.Errorf("bf synthesized %d times, want 1", n)
	}
}

func TestCachedSynthesizerError(t *testing.T) {
	dc, err := NewDiskCache(t.TempDir(), 1<<20, 3, 0)
	if err != nil {
		t.Fatalf("NewDiskCache: %v", err)
	}
	defer dc.Close()

	boom := errors.New("boom")
	s := NewCachedSynthesizer(&countingSynth{err: boom}, dc, nil)
	if _, err := s.Synthesize(context.Background(), "x", "af"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if dc.Contains(Key("af", "x")) {
		t.Error("failure was cached")
	}
}
