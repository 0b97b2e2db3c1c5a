package document

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// ErrBadLocator is returned when a locator string cannot be parsed.
var ErrBadLocator = errors.New("invalid locator")

// Step is one level of a Locator: an element tag and its 1-based position
// among siblings with the same tag.
type Step struct {
	Tag   string
	Index int
}

// Locator is a structural path from the document root to an element. It
// survives re-parsing the same markup, so a region can be found again after
// its node was detached.
type Locator []Step

// LocatorOf computes the locator of element n.
func LocatorOf(n *html.Node) Locator {
	var steps Locator
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		idx := 1
		for s := cur.PrevSibling; s != nil; s = s.PrevSibling {
			if s.Type == html.ElementNode && s.Data == cur.Data {
				idx++
			}
		}
		steps = append(steps, Step{Tag: cur.Data, Index: idx})
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return steps
}

// Resolve finds the element l points to under root, or nil.
func (l Locator) Resolve(root *html.Node) *html.Node {
	if root == nil || len(l) == 0 {
		return nil
	}
	cur := root
	for _, step := range l {
		var next *html.Node
		seen := 0
		for c := cur.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode || c.Data != step.Tag {
				continue
			}
			seen++
			if seen == step.Index {
				next = c
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// Equal reports whether two locators name the same path.
func (l Locator) Equal(o Locator) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if l[i] != o[i] {
			return false
		}
	}
	return true
}

// String formats the locator as /html[1]/body[1]/p[3].
func (l Locator) String() string {
	var b strings.Builder
	for _, s := range l {
		fmt.Fprintf(&b, "/%s[%d]", s.Tag, s.Index)
	}
	return b.String()
}

// ParseLocator parses the String form of a locator.
func ParseLocator(s string) (Locator, error) {
	if !strings.HasPrefix(s, "/") {
		return nil, fmt.Errorf("%w: %q", ErrBadLocator, s)
	}
	var l Locator
	for _, part := range strings.Split(s[1:], "/") {
		open := strings.IndexByte(part, '[')
		if open <= 0 || !strings.HasSuffix(part, "]") {
			return nil, fmt.Errorf("%w: step %q", ErrBadLocator, part)
		}
		idx, err := strconv.Atoi(part[open+1 : len(part)-1])
		if err != nil || idx < 1 {
			return nil, fmt.Errorf("%w: step %q", ErrBadLocator, part)
		}
		l = append(l, Step{Tag: part[:open], Index: idx})
	}
	return l, nil
}
