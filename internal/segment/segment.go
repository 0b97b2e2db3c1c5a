// Package segment turns a document tree into the ordered list of readable
// blocks that make up a reading queue.
package segment

import (
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"github.com/dgnsrekt/readaloud/internal/sentence"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Segmenter extracts readable blocks from a document.
type Segmenter struct {
	// Visibility decides which subtrees are pruned.
	Visibility *document.Visibility
	// MinChars drops blocks with fewer normalized characters.
	MinChars int
	// MaxChars, when positive, splits long blocks into sentence chunks that
	// share the block's region.
	MaxChars int
}

// New returns a Segmenter with default visibility rules.
func New() *Segmenter {
	return &Segmenter{Visibility: document.DefaultVisibility(), MinChars: 1}
}

// Segment returns the readable blocks under the best root of the document.
// An empty result means there is nothing to read.
func (s *Segmenter) Segment(doc *html.Node) []*queue.Segment {
	root := s.chooseRoot(doc)
	if root == nil {
		return nil
	}
	return s.segmentRoot(root)
}

// SegmentWithin segments only the subtree at loc, standing in for reading
// the current selection. A locator that does not resolve or points at an
// invisible element yields nothing.
func (s *Segmenter) SegmentWithin(doc *html.Node, loc document.Locator) []*queue.Segment {
	root := loc.Resolve(doc)
	if root == nil || !s.vis().Visible(root) {
		return nil
	}
	// A selection inside a single block still reads that block.
	if segs := s.segmentRoot(root); len(segs) > 0 {
		return segs
	}
	text := document.InnerText(root, s.vis().Excluded)
	if text == "" || utf8.RuneCountInString(text) < s.MinChars {
		return nil
	}
	return s.split(root, text)
}

func (s *Segmenter) vis() *document.Visibility {
	if s.Visibility == nil {
		return document.DefaultVisibility()
	}
	return s.Visibility
}

// chooseRoot prefers a visible <article>, then a visible <main>, then <body>.
func (s *Segmenter) chooseRoot(doc *html.Node) *html.Node {
	for _, tag := range []atom.Atom{atom.Article, atom.Main} {
		for _, n := range document.FindAll(doc, tag) {
			if s.vis().Visible(n) {
				return n
			}
		}
	}
	if body := document.FindFirst(doc, atom.Body); body != nil {
		return body
	}
	return doc
}

type candidate struct {
	node *html.Node
	text string
}

// segmentRoot collects candidates under root and keeps the lowest ones.
func (s *Segmenter) segmentRoot(root *html.Node) []*queue.Segment {
	vis := s.vis()

	// A post-order walk sees descendants before their ancestors, so an
	// element is a leaf candidate exactly when none of its descendants was.
	var leaves []candidate
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		hasCandidate := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || vis.Excluded(c) {
				continue
			}
			if walk(c) {
				hasCandidate = true
			}
		}
		if hasCandidate || n == root || document.Inline(n) {
			return hasCandidate
		}
		text := document.InnerText(n, vis.Excluded)
		if text == "" || utf8.RuneCountInString(text) < s.MinChars {
			return false
		}
		leaves = append(leaves, candidate{node: n, text: text})
		return true
	}
	walk(root)

	var out []*queue.Segment
	for _, c := range leaves {
		out = append(out, s.split(c.node, c.text)...)
	}
	log.Debug("segmented document", "blocks", len(leaves), "segments", len(out))
	return out
}

// split returns one segment per chunk of text, all pointing at region.
func (s *Segmenter) split(region *html.Node, text string) []*queue.Segment {
	if s.MaxChars <= 0 || utf8.RuneCountInString(text) <= s.MaxChars {
		return []*queue.Segment{queue.NewSegment(region, text)}
	}
	chunks := sentence.Chunk(text, s.MaxChars)
	out := make([]*queue.Segment, 0, len(chunks))
	for _, chunk := range chunks {
		out = append(out, queue.NewSegment(region, chunk))
	}
	return out
}
