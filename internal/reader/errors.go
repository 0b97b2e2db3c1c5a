package reader

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/readaloud/internal/queue"
)

var (
	// ErrNothingToRead is returned by Start when the document has no
	// readable blocks. The engine stays Idle.
	ErrNothingToRead = errors.New("nothing to read")
	// ErrInvalidTransition is wrapped by every TransitionError.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrNoQueue is returned by Jump before any Start built a queue.
	ErrNoQueue = errors.New("no queue")
	// ErrIndexOutOfRange is returned by Jump for an index outside the queue.
	ErrIndexOutOfRange = queue.ErrIndexOutOfRange
	// ErrInvalidSpeed is returned for a speed outside [MinSpeed, MaxSpeed].
	ErrInvalidSpeed = errors.New("invalid speed")
)

// TransitionError reports an operation that is not valid in the current
// state. The state is left unchanged.
type TransitionError struct {
	Op   string
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: cannot go from %s to %s", e.Op, e.From, e.To)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// SynthesisError reports a segment whose audio could not be produced. The
// session that needed it has ended.
type SynthesisError struct {
	Index int
	Cause error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesize segment %d: %v", e.Index, e.Cause)
}

// Unwrap returns the cause.
func (e *SynthesisError) Unwrap() error {
	return e.Cause
}
