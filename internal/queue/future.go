package queue

import (
	"context"

	"github.com/dgnsrekt/readaloud/internal/audio"
)

// Future is the eventual audio of one segment. It resolves exactly once.
type Future struct {
	done chan struct{}
	clip *audio.Clip
	err  error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(clip *audio.Clip, err error) {
	f.clip, f.err = clip, err
	close(f.done)
}

// Done is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done. Giving up on a
// future does not cancel the synthesis behind it.
func (f *Future) Wait(ctx context.Context) (*audio.Clip, error) {
	select {
	case <-f.done:
		return f.clip, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
