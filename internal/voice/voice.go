// Package voice describes and matches the voice IDs a speech worker
// reports. Kokoro IDs look like "af_heart" (language, gender, name) and
// piper IDs like "en_US-lessac-medium" (locale, name, quality).
package voice

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrNoMatch is returned when a query matches no voice.
var ErrNoMatch = errors.New("no matching voice")

// Voice is a parsed voice ID.
type Voice struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name" yaml:"name"`
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
	Gender   string `json:"gender,omitempty" yaml:"gender,omitempty"`
	Quality  string `json:"quality,omitempty" yaml:"quality,omitempty"`
}

// kokoroLanguages maps the first letter of a kokoro voice ID to its tag.
var kokoroLanguages = map[byte]language.Tag{
	'a': language.AmericanEnglish,
	'b': language.BritishEnglish,
	'e': language.Spanish,
	'f': language.French,
	'h': language.Hindi,
	'i': language.Italian,
	'j': language.Japanese,
	'p': language.BrazilianPortuguese,
	'z': language.Chinese,
}

var title = cases.Title(language.English)

// Parse interprets id. Unknown shapes keep the ID as a title-cased name.
func Parse(id string) Voice {
	v := Voice{ID: id}

	if parts := strings.SplitN(id, "-", 3); len(parts) >= 2 && strings.Contains(parts[0], "_") {
		if tag, err := language.Parse(strings.ReplaceAll(parts[0], "_", "-")); err == nil {
			v.Language = languageName(tag)
			v.Name = humanize(parts[1])
			if len(parts) == 3 {
				v.Quality = parts[2]
			}
			return v
		}
	}

	if isKokoro(id) {
		v.Language = languageName(kokoroLanguages[id[0]])
		if id[1] == 'f' {
			v.Gender = "female"
		} else {
			v.Gender = "male"
		}
		v.Name = humanize(id[3:])
		return v
	}

	v.Name = humanize(id)
	return v
}

// isKokoro reports whether id has the "af_heart" shape: a known language
// letter, f or m, an underscore and no dashes.
func isKokoro(id string) bool {
	if len(id) < 4 || id[2] != '_' || strings.Contains(id, "-") {
		return false
	}
	if id[1] != 'f' && id[1] != 'm' {
		return false
	}
	_, ok := kokoroLanguages[id[0]]
	return ok
}

func languageName(tag language.Tag) string {
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return tag.String()
}

func humanize(s string) string {
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return title.String(strings.TrimSpace(s))
}

// Label renders v for menus, like "Heart (American English, female)".
func (v Voice) Label() string {
	var details []string
	for _, d := range []string{v.Language, v.Gender, v.Quality} {
		if d != "" {
			details = append(details, d)
		}
	}
	if len(details) == 0 {
		return v.Name
	}
	return fmt.Sprintf("%s (%s)", v.Name, strings.Join(details, ", "))
}

// String implements fmt.Stringer.
func (v Voice) String() string { return v.Label() }

// Describe parses every ID, sorted by language and then name.
func Describe(ids []string) []Voice {
	voices := make([]Voice, 0, len(ids))
	for _, id := range ids {
		voices = append(voices, Parse(id))
	}
	slices.SortStableFunc(voices, func(a, b Voice) int {
		if c := strings.Compare(a.Language, b.Language); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return voices
}

// source lets fuzzy search IDs and labels together.
type source []Voice

func (s source) String(i int) string { return s[i].ID + " " + s[i].Label() }
func (s source) Len() int            { return len(s) }

// Match resolves query to one of ids. An exact ID wins, ignoring case;
// otherwise the best fuzzy match over IDs and labels is used.
func Match(query string, ids []string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%w: empty query", ErrNoMatch)
	}
	for _, id := range ids {
		if strings.EqualFold(id, query) {
			return id, nil
		}
	}

	voices := make(source, 0, len(ids))
	for _, id := range ids {
		voices = append(voices, Parse(id))
	}
	matches := fuzzy.FindFrom(query, voices)
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %q", ErrNoMatch, query)
	}
	return voices[matches[0].Index].ID, nil
}
