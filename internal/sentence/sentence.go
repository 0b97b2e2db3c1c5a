// Package sentence splits text into sentence-like units for synthesis.
//
// A boundary is a terminal mark (. ! ? …) followed by whitespace and then
// something that can start a sentence: an uppercase letter, a digit, an
// opening quote, or an opening bracket. A newline is always a boundary.
package sentence

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Common abbreviations that end in a period but do not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "inc": true, "ltd": true, "co": true,
	"no": true, "vol": true, "fig": true, "approx": true,
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func canStartSentence(r rune) bool {
	switch r {
	case '“', '"', '(', '[', '‘', '\'':
		return true
	}
	return unicode.IsUpper(r) || unicode.IsDigit(r)
}

// Split breaks text into sentences. Surrounding whitespace is trimmed and
// empty pieces are dropped.
func Split(text string) []string {
	runes := []rune(text)
	var (
		out   []string
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(string(runes[start:end])); s != "" {
			out = append(out, s)
		}
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r == '\n' {
			emit(i)
			start = i + 1
			continue
		}
		if !isTerminal(r) || i+1 >= len(runes) || !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if r == '.' && isAbbreviation(runes[start:i]) {
			continue
		}
		j := i + 1
		for j < len(runes) && unicode.IsSpace(runes[j]) && runes[j] != '\n' {
			j++
		}
		if j < len(runes) && canStartSentence(runes[j]) {
			emit(i + 1)
			start = j
			i = j - 1
		}
	}
	emit(len(runes))
	return out
}

// isAbbreviation reports whether the word ending the sentence so far is a
// known abbreviation.
func isAbbreviation(before []rune) bool {
	i := len(before)
	for i > 0 && !unicode.IsSpace(before[i-1]) {
		i--
	}
	word := strings.ToLower(strings.TrimLeft(string(before[i:]), "(\"“"))
	return abbreviations[word]
}

// Chunk groups sentences into pieces of at most maxChars characters. A
// sentence longer than maxChars is broken at word boundaries; a single word
// longer than maxChars is kept whole. maxChars <= 0 disables chunking.
func Chunk(text string, maxChars int) []string {
	sentences := Split(text)
	if maxChars <= 0 {
		if len(sentences) == 0 {
			return nil
		}
		return []string{strings.Join(sentences, " ")}
	}

	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	add := func(piece string) {
		n := utf8.RuneCountInString(piece)
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+n > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(piece)
	}

	for _, s := range sentences {
		if utf8.RuneCountInString(s) <= maxChars {
			add(s)
			continue
		}
		flush()
		for _, w := range strings.Fields(s) {
			add(w)
		}
		flush()
	}
	flush()
	return out
}

// EstimateDuration estimates how long text takes to speak at 150 words per
// minute.
func EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	if words == 0 {
		words = 1
	}
	return time.Duration(float64(words) * 60.0 / 150.0 * float64(time.Second))
}
