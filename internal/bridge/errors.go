package bridge

import "errors"

var (
	// ErrTimeout is returned when a request gets no response in time.
	ErrTimeout = errors.New("synthesis request timed out")
	// ErrWorkerExited is returned for requests pending when the worker died.
	ErrWorkerExited = errors.New("synthesis worker exited")
	// ErrWorkerFailed wraps an error reported by the worker.
	ErrWorkerFailed = errors.New("synthesis worker failed")
	// ErrSampleRateMismatch is returned when the pieces of one utterance
	// come back at different sample rates.
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
	// ErrNotInitialized is returned when the worker has no model loaded.
	ErrNotInitialized = errors.New("synthesis worker not initialized")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("bridge closed")
)
