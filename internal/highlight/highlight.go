// Package highlight marks the text currently being read inside a document
// tree.
package highlight

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgnsrekt/readaloud/internal/document"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Default class names.
const (
	DefaultPendingClass = "readaloud-pending"
	DefaultActiveClass  = "readaloud-active"
)

// Mode says how the current marker was placed.
type Mode int

const (
	// None means nothing is marked.
	None Mode = iota
	// Exact means the text range was found and wrapped.
	Exact
	// Fallback means the whole region carries the marker class.
	Fallback
)

// String returns the string representation of the mode.
func (m Mode) String() string {
	switch m {
	case Exact:
		return "exact"
	case Fallback:
		return "fallback"
	default:
		return "none"
	}
}

// Phase is the visual phase of the current marker.
type Phase int

const (
	Cleared Phase = iota
	Pending
	Active
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Active:
		return "active"
	default:
		return "cleared"
	}
}

// Highlighter owns at most one marker in a tree. It mutates the tree, so
// callers must hold the document's write lock. It is not safe for
// concurrent use.
type Highlighter struct {
	PendingClass string
	ActiveClass  string
	// Exclude prunes subtrees from matching. It should match the function
	// used to compute segment text.
	Exclude func(*html.Node) bool

	mode   Mode
	phase  Phase
	region *html.Node
	marks  []*html.Node
}

// New returns a highlighter with the default class names.
func New(exclude func(*html.Node) bool) *Highlighter {
	return &Highlighter{
		PendingClass: DefaultPendingClass,
		ActiveClass:  DefaultActiveClass,
		Exclude:      exclude,
	}
}

// Current reports the mode and phase of the marker.
func (h *Highlighter) Current() (Mode, Phase) {
	return h.mode, h.phase
}

// Marks returns the wrapper elements of an exact marker.
func (h *Highlighter) Marks() []*html.Node {
	return h.marks
}

// MarkPending clears any previous marker and marks the first occurrence of
// text inside region as pending. When text cannot be found the whole region
// is marked instead.
func (h *Highlighter) MarkPending(region *html.Node, text string) Mode {
	h.Clear()
	if region == nil {
		return None
	}
	h.region = region
	h.phase = Pending

	if start, end, ok := h.locate(region, document.NormalizeSpace(text)); ok {
		h.marks = h.wrap(region, start, end)
	}
	if len(h.marks) > 0 {
		h.mode = Exact
	} else {
		h.mode = Fallback
		document.AddClass(region, h.PendingClass)
	}
	return h.mode
}

// Activate restyles the current marker from pending to active. It reports
// false when there is no pending marker.
func (h *Highlighter) Activate() bool {
	if h.phase != Pending {
		return false
	}
	switch h.mode {
	case Exact:
		for _, m := range h.marks {
			document.RemoveClass(m, h.PendingClass)
			document.AddClass(m, h.ActiveClass)
		}
	case Fallback:
		document.RemoveClass(h.region, h.PendingClass)
		document.AddClass(h.region, h.ActiveClass)
	}
	h.phase = Active
	return true
}

// Clear removes the marker and restores the original text nodes.
func (h *Highlighter) Clear() {
	switch h.mode {
	case Exact:
		parents := make(map[*html.Node]struct{}, len(h.marks))
		for _, m := range h.marks {
			if p := unwrap(m); p != nil {
				parents[p] = struct{}{}
			}
		}
		for p := range parents {
			mergeText(p)
		}
	case Fallback:
		document.RemoveClass(h.region, h.PendingClass)
		document.RemoveClass(h.region, h.ActiveClass)
	}
	h.mode = None
	h.phase = Cleared
	h.region = nil
	h.marks = nil
}

// point is a byte position inside a text node.
type point struct {
	node  *html.Node
	start int // offset of the character
	end   int // offset just past it
}

// locate maps the normalized target back to positions in the tree. start is
// the first character of the match, end the last.
func (h *Highlighter) locate(region *html.Node, target string) (start, end point, ok bool) {
	if target == "" {
		return point{}, point{}, false
	}
	var (
		norm  strings.Builder
		index []point
		space bool
	)
	for _, run := range document.TextRuns(region, h.Exclude) {
		if run.Break {
			space = true
		}
		data := run.Node.Data
		for off, r := range data {
			if unicode.IsSpace(r) {
				space = true
				continue
			}
			p := point{node: run.Node, start: off, end: off + utf8.RuneLen(r)}
			if space && norm.Len() > 0 {
				// The collapsed space belongs to the character it precedes.
				norm.WriteByte(' ')
				index = append(index, p)
			}
			space = false
			norm.WriteRune(r)
			index = append(index, p)
		}
	}

	s := norm.String()
	at := strings.Index(s, target)
	if at < 0 {
		return point{}, point{}, false
	}
	first := utf8.RuneCountInString(s[:at])
	last := first + utf8.RuneCountInString(target) - 1
	return index[first], index[last], true
}

// wrap splits the boundary text nodes and wraps every text node between
// start and end in a mark element.
func (h *Highlighter) wrap(region *html.Node, start, end point) []*html.Node {
	var nodes []*html.Node
	inRange := false
	for _, run := range document.TextRuns(region, h.Exclude) {
		if run.Node == start.node {
			inRange = true
		}
		if inRange {
			nodes = append(nodes, run.Node)
		}
		if run.Node == end.node {
			break
		}
	}

	var marks []*html.Node
	for _, n := range nodes {
		from, to := 0, len(n.Data)
		if n == start.node {
			from = start.start
		}
		if n == end.node {
			to = end.end
		}
		if from >= to || strings.TrimSpace(n.Data[from:to]) == "" {
			continue
		}
		target := isolate(n, from, to)
		marks = append(marks, h.wrapNode(target))
	}
	return marks
}

// isolate splits n so that a single text node holds Data[from:to] and
// returns it.
func isolate(n *html.Node, from, to int) *html.Node {
	if to < len(n.Data) {
		after := &html.Node{Type: html.TextNode, Data: n.Data[to:]}
		n.Parent.InsertBefore(after, n.NextSibling)
		n.Data = n.Data[:to]
	}
	if from > 0 {
		before := &html.Node{Type: html.TextNode, Data: n.Data[:from]}
		n.Parent.InsertBefore(before, n)
		n.Data = n.Data[from:]
	}
	return n
}

func (h *Highlighter) wrapNode(n *html.Node) *html.Node {
	mark := &html.Node{
		Type:     html.ElementNode,
		Data:     atom.Mark.String(),
		DataAtom: atom.Mark,
		Attr:     []html.Attribute{{Key: "class", Val: h.PendingClass}},
	}
	parent := n.Parent
	parent.InsertBefore(mark, n)
	parent.RemoveChild(n)
	mark.AppendChild(n)
	return mark
}

// unwrap moves the children of m into its place and returns the parent.
func unwrap(m *html.Node) *html.Node {
	parent := m.Parent
	if parent == nil {
		return nil
	}
	for c := m.FirstChild; c != nil; c = m.FirstChild {
		m.RemoveChild(c)
		parent.InsertBefore(c, m)
	}
	parent.RemoveChild(m)
	return parent
}

// mergeText joins adjacent text children of p.
func mergeText(p *html.Node) {
	for c := p.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.TextNode && next != nil && next.Type == html.TextNode {
			c.Data += next.Data
			p.RemoveChild(next)
			continue
		}
		c = next
	}
}
