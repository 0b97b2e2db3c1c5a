package document

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func mustParse(t *testing.T, s string) *Document {
	t.Helper()
	doc, err := ParseString(s)
	if err != nil {
		t.Fatalf("ParseString() error = %v", err)
	}
	return doc
}

func root(doc *Document) *html.Node {
	var r *html.Node
	doc.View(func(n *html.Node) { r = n })
	return r
}

func TestNormalizeSpace(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"   ", ""},
		{"a", "a"},
		{"  hello \n\t world  ", "hello world"},
		{"a  b", "a b"},
	}
	for _, tt := range tests {
		if got := NormalizeSpace(tt.in); got != tt.want {
			t.Errorf("NormalizeSpace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInnerText(t *testing.T) {
	doc := mustParse(t, `<html><body><div id="x">
		<p>Hello <b>bold</b> world</p>
		<p>Line one<br>line two</p>
		<script>var x = 1;</script>
		<span hidden>secret</span>
	</div></body></html>`)

	div := FindFirst(root(doc), atom.Div)
	vis := DefaultVisibility()
	got := InnerText(div, vis.Excluded)
	want := "Hello bold world Line one line two"
	if got != want {
		t.Errorf("InnerText() = %q, want %q", got, want)
	}
}

func TestVisibility(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		hidden bool
	}{
		{"plain", `<p>x</p>`, false},
		{"hidden attribute", `<p hidden>x</p>`, true},
		{"aria hidden", `<p aria-hidden="true">x</p>`, true},
		{"aria not hidden", `<p aria-hidden="false">x</p>`, false},
		{"display none", `<p style="color: red; display: none">x</p>`, true},
		{"display none important", `<p style="display:none !important">x</p>`, true},
		{"visibility hidden", `<p style="visibility:hidden">x</p>`, true},
		{"opacity zero", `<p style="opacity: 0">x</p>`, true},
		{"opacity half", `<p style="opacity: 0.5">x</p>`, false},
		{"zero height", `<p style="height: 0px">x</p>`, true},
		{"hidden class", `<p class="note sr-only">x</p>`, true},
	}

	vis := DefaultVisibility()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := mustParse(t, "<html><body>"+tt.markup+"</body></html>")
			p := FindFirst(root(doc), atom.P)
			if got := vis.Hidden(p); got != tt.hidden {
				t.Errorf("Hidden() = %v, want %v", got, tt.hidden)
			}
		})
	}
}

func TestVisibleChecksAncestors(t *testing.T) {
	doc := mustParse(t, `<html><body><div style="display:none"><p>x</p></div><noscript><p>y</p></noscript></body></html>`)
	vis := DefaultVisibility()
	for _, p := range FindAll(root(doc), atom.P) {
		if vis.Visible(p) {
			t.Errorf("paragraph %q should be invisible through its ancestor", InnerText(p, nil))
		}
	}
}

func TestLocatorRoundTrip(t *testing.T) {
	markup := `<html><body><article><h1>T</h1><p>one</p><div><p>nested</p></div><p>two</p></article></body></html>`
	doc := mustParse(t, markup)

	ps := FindAll(root(doc), atom.P)
	if len(ps) != 3 {
		t.Fatalf("expected 3 paragraphs, got %d", len(ps))
	}

	loc := LocatorOf(ps[2])
	if got, want := loc.String(), "/html[1]/body[1]/article[1]/p[2]"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if loc.Resolve(root(doc)) != ps[2] {
		t.Error("Resolve() did not return the original node")
	}

	parsed, err := ParseLocator(loc.String())
	if err != nil {
		t.Fatalf("ParseLocator() error = %v", err)
	}
	if !parsed.Equal(loc) {
		t.Errorf("ParseLocator() = %v, want %v", parsed, loc)
	}

	// The locator still finds the same region in a fresh parse of the markup.
	again := mustParse(t, markup)
	n := loc.Resolve(root(again))
	if n == nil || InnerText(n, nil) != "two" {
		t.Errorf("Resolve() on re-parsed tree = %v, want the paragraph \"two\"", n)
	}
}

func TestParseLocatorErrors(t *testing.T) {
	for _, s := range []string{"", "html[1]", "/html", "/html[0]", "/html[x]", "/[1]"} {
		if _, err := ParseLocator(s); err == nil {
			t.Errorf("ParseLocator(%q) expected an error", s)
		}
	}
}

func TestResolveMissing(t *testing.T) {
	doc := mustParse(t, `<html><body><p>one</p></body></html>`)
	loc := Locator{{"html", 1}, {"body", 1}, {"p", 2}}
	if n := loc.Resolve(root(doc)); n != nil {
		t.Errorf("Resolve() = %v, want nil", n)
	}
}

func TestReplaceDetaches(t *testing.T) {
	doc := mustParse(t, `<html><body><p>one</p></body></html>`)
	old := FindFirst(root(doc), atom.P)
	if !Attached(root(doc), old) {
		t.Fatal("paragraph should be attached before Replace")
	}

	fresh := mustParse(t, `<html><body><p>one</p></body></html>`)
	doc.Replace(root(fresh))
	if Attached(root(doc), old) {
		t.Error("paragraph should be detached after Replace")
	}
	if doc.Version() != 1 {
		t.Errorf("Version() = %d, want 1", doc.Version())
	}
}

func TestFromMarkdown(t *testing.T) {
	doc, err := FromMarkdown([]byte("# Title\n\nSome *emphasis* here.\n\n- item one\n- item two\n"))
	if err != nil {
		t.Fatalf("FromMarkdown() error = %v", err)
	}
	article := FindFirst(root(doc), atom.Article)
	if article == nil {
		t.Fatal("markdown should be wrapped in an article")
	}
	if got := len(FindAll(article, atom.Li)); got != 2 {
		t.Errorf("found %d list items, want 2", got)
	}
	if got := InnerText(FindFirst(article, atom.P), nil); got != "Some emphasis here." {
		t.Errorf("paragraph text = %q", got)
	}
}

func TestClassHelpers(t *testing.T) {
	doc := mustParse(t, `<html><body><p class="a">x</p></body></html>`)
	p := FindFirst(root(doc), atom.P)

	AddClass(p, "b")
	AddClass(p, "b")
	if got := Attr(p, "class"); got != "a b" {
		t.Errorf("class = %q, want %q", got, "a b")
	}
	RemoveClass(p, "a")
	RemoveClass(p, "b")
	if HasAttr(p, "class") {
		t.Errorf("class attribute should be removed once empty")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(path, []byte("Hello from a file.\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Source() != path {
		t.Errorf("Source() = %q, want %q", doc.Source(), path)
	}
	var sb strings.Builder
	if err := doc.Render(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "Hello from a file.") {
		t.Errorf("rendered document lost the text: %s", sb.String())
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte("<html><body><p>before</p></body></html>"), 0o600); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reloaded := make(chan struct{}, 16)
	go func() { _ = doc.Watch(ctx, func() { reloaded <- struct{}{} }) }()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-reloaded:
			var text string
			doc.View(func(r *html.Node) { text = InnerText(FindFirst(r, atom.Body), nil) })
			if text != "after" {
				t.Errorf("text after reload = %q, want %q", text, "after")
			}
			return
		case <-tick.C:
			_ = os.WriteFile(path, []byte("<html><body><p>after</p></body></html>"), 0o600)
		case <-deadline:
			t.Fatal("document was not reloaded")
		}
	}
}
