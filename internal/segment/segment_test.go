package segment

import (
	"reflect"
	"strings"
	"testing"

	"github.com/dgnsrekt/readaloud/internal/document"
	"github.com/dgnsrekt/readaloud/internal/queue"
	"golang.org/x/net/html"
)

func parse(t *testing.T, s string) *html.Node {
	t.Helper()
	n, err := html.Parse(strings.NewReader(s))
	if err != nil {
		t.Fatalf("html.Parse() error = %v", err)
	}
	return n
}

func texts(segs []*queue.Segment) []string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, s.Text)
	}
	return out
}

const articlePage = `<html><body>
<nav>Menu</nav>
<article>
  <h1>Title</h1>
  <p>First <em>para</em>.</p>
  <div><p>Nested</p></div>
  <p hidden>Secret</p>
  <script>x()</script>
  <ul><li>One</li><li>Two</li></ul>
</article>
<footer>Footer</footer>
</body></html>`

func TestSegment(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "article root with leaves only",
			doc:  articlePage,
			want: []string{"Title", "First para.", "Nested", "One", "Two"},
		},
		{
			name: "hidden article falls through to main",
			doc:  `<body><article hidden><p>A</p></article><main><p>B</p></main></body>`,
			want: []string{"B"},
		},
		{
			name: "body when no article or main",
			doc:  `<body><h2>Head</h2><p>Body text</p></body>`,
			want: []string{"Head", "Body text"},
		},
		{
			name: "invisible styles and classes pruned",
			doc: `<body>
				<p style="display: none">a</p>
				<p style="visibility:hidden">b</p>
				<p aria-hidden="true">c</p>
				<p class="sr-only">d</p>
				<p>e</p></body>`,
			want: []string{"e"},
		},
		{
			name: "inline-only content is not a block",
			doc:  `<body><p><span>one</span> <strong>two</strong></p></body>`,
			want: []string{"one two"},
		},
		{
			name: "nothing readable",
			doc:  `<body><script>x()</script><p>   </p><style>p{}</style></body>`,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := texts(New().Segment(parse(t, tt.doc)))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Segment() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSegmentRegionsAreDisjoint(t *testing.T) {
	segs := New().Segment(parse(t, articlePage))
	for i, a := range segs {
		for j, b := range segs {
			if i == j {
				continue
			}
			if document.Contains(a.Region, b.Region) {
				t.Errorf("segment %d region contains segment %d region", i, j)
			}
		}
	}
}

func TestSegmentLocators(t *testing.T) {
	root := parse(t, articlePage)
	segs := New().Segment(root)
	if len(segs) != 5 {
		t.Fatalf("len(segs) = %d, want 5", len(segs))
	}
	if got, want := segs[2].Locator.String(), "/html[1]/body[1]/article[1]/div[1]/p[1]"; got != want {
		t.Errorf("Locator = %q, want %q", got, want)
	}
	for i, s := range segs {
		if s.Locator.Resolve(root) != s.Region {
			t.Errorf("segment %d locator does not resolve to its region", i)
		}
	}
}

func TestMinChars(t *testing.T) {
	s := New()
	s.MinChars = 3
	got := texts(s.Segment(parse(t, `<body><p>ok</p><p>long enough</p></body>`)))
	if want := []string{"long enough"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Segment() = %q, want %q", got, want)
	}
}

func TestMaxCharsChunking(t *testing.T) {
	s := New()
	s.MaxChars = 30
	root := parse(t, `<body><p>First sentence here. Second sentence here.</p><p>Short.</p></body>`)
	segs := s.Segment(root)
	want := []string{"First sentence here.", "Second sentence here.", "Short."}
	if got := texts(segs); !reflect.DeepEqual(got, want) {
		t.Fatalf("Segment() = %q, want %q", got, want)
	}
	if segs[0].Region != segs[1].Region {
		t.Error("chunks of one block should share a region")
	}
	if !segs[0].Locator.Equal(segs[1].Locator) {
		t.Error("chunks of one block should share a locator")
	}
}

func TestSegmentWithin(t *testing.T) {
	root := parse(t, articlePage)
	s := New()

	tests := []struct {
		name string
		loc  string
		want []string
	}{
		{"container", "/html[1]/body[1]/article[1]/ul[1]", []string{"One", "Two"}},
		{"single block", "/html[1]/body[1]/article[1]/p[1]", []string{"First para."}},
		{"hidden element", "/html[1]/body[1]/article[1]/p[2]", nil},
		{"missing element", "/html[1]/body[1]/section[1]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc, err := document.ParseLocator(tt.loc)
			if err != nil {
				t.Fatalf("ParseLocator() error = %v", err)
			}
			segs := s.SegmentWithin(root, loc)
			if len(segs) == 0 && len(tt.want) == 0 {
				return
			}
			if got := texts(segs); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SegmentWithin() = %q, want %q", got, tt.want)
			}
		})
	}
}
