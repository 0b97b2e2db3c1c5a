// Package document holds the parsed HTML tree that the reader walks and
// decorates.
//
// The tree stands in for a browser DOM: it is shared between the engine,
// which wraps the spoken text in highlight markers, and any viewer that
// renders it. All access goes through View and Update so that a watcher can
// swap in a freshly parsed tree while the reader is running.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoBody is returned when a parsed document has no <body>.
var ErrNoBody = errors.New("document has no body")

// Document is a parsed HTML tree guarded for concurrent use.
type Document struct {
	mu      sync.RWMutex
	root    *html.Node
	source  string
	version int
}

// Parse reads an HTML document from r.
func Parse(r io.Reader) (*Document, error) {
	root, err := parseTree(r)
	if err != nil {
		return nil, err
	}
	return &Document{root: root}, nil
}

// ParseString parses an HTML document from a string.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

// FromMarkdown renders markdown to HTML and parses the result.
func FromMarkdown(src []byte) (*Document, error) {
	out, err := renderMarkdown(src)
	if err != nil {
		return nil, err
	}
	return Parse(bytes.NewReader(out))
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldhtml.WithUnsafe()),
)

func renderMarkdown(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html><html><body><article>\n")
	if err := md.Convert(src, &buf); err != nil {
		return nil, fmt.Errorf("unable to render markdown: %w", err)
	}
	buf.WriteString("</article></body></html>\n")
	return buf.Bytes(), nil
}

func parseTree(r io.Reader) (*html.Node, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("unable to parse html: %w", err)
	}
	if FindFirst(root, atom.Body) == nil {
		return nil, ErrNoBody
	}
	return root, nil
}

// Source returns where the document was loaded from, if known.
func (d *Document) Source() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.source
}

// Version increases every time the tree is replaced.
func (d *Document) Version() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.version
}

// View calls fn with the current root under a read lock. fn must not
// mutate the tree or keep the root after returning.
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fn(d.root)
}

// Update calls fn with the current root under the write lock.
func (d *Document) Update(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Replace swaps in a new tree. References into the old tree become
// detached and must be re-resolved through their locators.
func (d *Document) Replace(root *html.Node) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root = root
	d.version++
}

// Render writes the current tree as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return html.Render(w, d.root)
}
