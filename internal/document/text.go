package document

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// inlineTags are elements that only decorate text inside a block.
var inlineTags = map[atom.Atom]bool{
	atom.A: true, atom.Abbr: true, atom.B: true, atom.Bdi: true, atom.Bdo: true,
	atom.Br: true, atom.Cite: true, atom.Code: true, atom.Data: true, atom.Del: true,
	atom.Dfn: true, atom.Em: true, atom.Font: true, atom.I: true, atom.Ins: true,
	atom.Kbd: true, atom.Label: true, atom.Mark: true, atom.Q: true, atom.S: true,
	atom.Samp: true, atom.Small: true, atom.Span: true, atom.Strong: true, atom.Sub: true,
	atom.Sup: true, atom.Time: true, atom.U: true, atom.Var: true, atom.Wbr: true,
	atom.Img: true,
}

// Inline reports whether n is an inline decoration element.
func Inline(n *html.Node) bool {
	return n.Type == html.ElementNode && inlineTags[n.DataAtom]
}

// NormalizeSpace collapses runs of whitespace to a single space and trims
// the result.
func NormalizeSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Run is one text node reached by TextRuns. Break is set when a line break
// or block boundary separates it from the previous run.
type Run struct {
	Node  *html.Node
	Break bool
}

// TextRuns returns the text nodes under n in document order, pruning
// subtrees for which exclude returns true.
func TextRuns(n *html.Node, exclude func(*html.Node) bool) []Run {
	var (
		runs    []Run
		pending bool
	)
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			runs = append(runs, Run{Node: c, Break: pending && len(runs) > 0})
			pending = false
			return
		case html.ElementNode:
			if exclude != nil && exclude(c) {
				return
			}
			if c.DataAtom == atom.Br {
				pending = true
				return
			}
		}
		block := c.Type == html.ElementNode && !Inline(c)
		if block {
			pending = true
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
		if block {
			pending = true
		}
	}
	for k := n.FirstChild; k != nil; k = k.NextSibling {
		walk(k)
	}
	return runs
}

// RawText concatenates runs, inserting a newline at every break.
func RawText(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		if r.Break {
			b.WriteByte('\n')
		}
		b.WriteString(r.Node.Data)
	}
	return b.String()
}

// InnerText returns the whitespace-normalized text under n, skipping
// excluded subtrees.
func InnerText(n *html.Node, exclude func(*html.Node) bool) string {
	return NormalizeSpace(RawText(TextRuns(n, exclude)))
}

// FindFirst returns the first element under n with the given tag.
func FindFirst(n *html.Node, tag atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every element under n with the given tag, in document order.
func FindAll(n *html.Node, tag atom.Atom) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode && c.DataAtom == tag {
			out = append(out, c)
		}
		for k := c.FirstChild; k != nil; k = k.NextSibling {
			walk(k)
		}
	}
	walk(n)
	return out
}

// Contains reports whether d is a descendant of a (or a itself).
func Contains(a, d *html.Node) bool {
	for cur := d; cur != nil; cur = cur.Parent {
		if cur == a {
			return true
		}
	}
	return false
}

// Attached reports whether n is still part of the tree rooted at root.
func Attached(root, n *html.Node) bool {
	return n != nil && root != nil && Contains(root, n)
}
