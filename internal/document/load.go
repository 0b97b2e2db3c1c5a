package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/mitchellh/go-homedir"
)

// ClipboardSource is the source name that reads the system clipboard.
const ClipboardSource = "clipboard:"

var markdownExtensions = []string{".md", ".markdown", ".mdown", ".mkd", ".txt"}

// IsMarkdown reports whether a source name looks like a markdown file.
func IsMarkdown(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range markdownExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads a document from a file path, "-" for stdin, an http(s) URL, or
// "clipboard:". Markdown sources are rendered to HTML first; clipboard and
// stdin content is treated as markdown unless it looks like HTML.
func Load(ctx context.Context, src string) (*Document, error) {
	var (
		data     []byte
		err      error
		markdown bool
		name     = src
	)

	switch {
	case src == "-":
		data, err = io.ReadAll(os.Stdin)
		markdown = !looksLikeHTML(data)
	case src == ClipboardSource:
		var s string
		s, err = clipboard.ReadAll()
		data = []byte(s)
		markdown = !looksLikeHTML(data)
	case strings.Contains(src, "://"):
		data, err = fetch(ctx, src)
		markdown = IsMarkdown(src) && !looksLikeHTML(data)
	default:
		name, err = homedir.Expand(src)
		if err != nil {
			return nil, fmt.Errorf("unable to expand path: %w", err)
		}
		if abs, aerr := filepath.Abs(name); aerr == nil {
			name = abs
		}
		data, err = os.ReadFile(name)
		markdown = IsMarkdown(name)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", src, err)
	}

	doc, err := Decode(data, markdown)
	if err != nil {
		return nil, err
	}
	doc.source = name
	return doc, nil
}

// Decode parses data as markdown or HTML.
func Decode(data []byte, markdown bool) (*Document, error) {
	if markdown {
		return FromMarkdown(data)
	}
	return Parse(strings.NewReader(string(data)))
}

func looksLikeHTML(data []byte) bool {
	s := strings.ToLower(strings.TrimSpace(string(data)))
	return strings.HasPrefix(s, "<!doctype html") || strings.HasPrefix(s, "<html") || strings.HasPrefix(s, "<body")
}

func fetch(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%s is not a supported protocol", u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Join(errors.New("unable to read response"), err)
	}
	return data, nil
}
