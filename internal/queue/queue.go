package queue

import (
	"fmt"
	"sync"

	"github.com/dgnsrekt/readaloud/internal/audio"
	"github.com/dgnsrekt/readaloud/internal/document"
	"golang.org/x/net/html"
)

// Status is the generation state of a segment.
type Status int

const (
	// NotGenerated means no audio exists and none is being made.
	NotGenerated Status = iota
	// Generating means exactly one synthesis is in flight.
	Generating
	// Generated means the segment's audio is available.
	Generated
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case NotGenerated:
		return "not-generated"
	case Generating:
		return "generating"
	case Generated:
		return "generated"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status name.
func (s *Status) UnmarshalText(b []byte) error {
	for _, st := range []Status{NotGenerated, Generating, Generated} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown segment status %q", b)
}

// Segment is one readable block of the document.
type Segment struct {
	Locator document.Locator
	Region  *html.Node // may be stale; re-resolve through Locator
	Text    string

	// Guarded by the owning Queue's mutex.
	status Status
	clip   *audio.Clip
	future *Future
}

// NewSegment creates a segment for region with its locator and text.
func NewSegment(region *html.Node, text string) *Segment {
	return &Segment{
		Locator: document.LocatorOf(region),
		Region:  region,
		Text:    text,
	}
}

// Info is a read-only view of a segment.
type Info struct {
	Index   int    `json:"index" yaml:"index"`
	Locator string `json:"locator" yaml:"locator"`
	Text    string `json:"text" yaml:"text"`
	Status  Status `json:"status" yaml:"status"`
}

// Queue is an ordered, immutable sequence of segments.
type Queue struct {
	mu       sync.Mutex
	segments []*Segment
}

// New builds a queue. The slice must not be modified afterwards.
func New(segments []*Segment) *Queue {
	return &Queue{segments: segments}
}

// Len returns the number of segments.
func (q *Queue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.segments)
}

// At returns segment i, or nil when i is out of range.
func (q *Queue) At(i int) *Segment {
	if q == nil || i < 0 || i >= len(q.segments) {
		return nil
	}
	return q.segments[i]
}

// Status returns the generation status of segment i.
func (q *Queue) Status(i int) Status {
	seg := q.At(i)
	if seg == nil {
		return NotGenerated
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return seg.status
}

// Clip returns the audio of segment i if it has been generated.
func (q *Queue) Clip(i int) (*audio.Clip, bool) {
	seg := q.At(i)
	if seg == nil {
		return nil, false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return seg.clip, seg.status == Generated
}

// Infos returns a snapshot of every segment.
func (q *Queue) Infos() []Info {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Info, len(q.segments))
	for i, s := range q.segments {
		out[i] = Info{Index: i, Locator: s.Locator.String(), Text: s.Text, Status: s.status}
	}
	return out
}

// Info returns a snapshot of segment i.
func (q *Queue) Info(i int) Info {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.segments[i]
	return Info{Index: i, Locator: s.Locator.String(), Text: s.Text, Status: s.status}
}
