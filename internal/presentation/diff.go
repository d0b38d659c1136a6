package presentation

import (
	"strings"
	"time"
	"unicode"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	// wordDiffTimeout bounds the diff of a single edit.
	wordDiffTimeout = 100 * time.Millisecond
	// maxDiffTokens keeps token runes below the surrogate range.
	maxDiffTokens = 0xD800
)

type segmentType int

const (
	segmentUnchanged segmentType = iota
	segmentAdded
	segmentDeleted
)

// segment is a run of text with its diff status.
type segment struct {
	Type segmentType
	Text string
}

// tokenize splits text into words, whitespace runs and single punctuation
// characters, so that joining the tokens gives back text.
// Example: "foo.bar baz()" -> ["foo", ".", "bar", " ", "baz", "(", ")"]
func tokenize(text string) []string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			flush()
			tokens = append(tokens, string(r))
			continue
		}
		current.WriteRune(r)
	}
	flush()
	return tokens
}

// wordDiff computes an inline word-level diff from old to new.
func wordDiff(oldText, newText string) []segment {
	if oldText == newText {
		if oldText == "" {
			return nil
		}
		return []segment{{Type: segmentUnchanged, Text: oldText}}
	}

	// Map each distinct token to one rune so the character diff runs over
	// whole words.
	index := make(map[string]rune)
	var table []string
	encode := func(tokens []string) []rune {
		out := make([]rune, len(tokens))
		for i, tok := range tokens {
			r, ok := index[tok]
			if !ok {
				r = rune(len(table))
				index[tok] = r
				table = append(table, tok)
			}
			out[i] = r
		}
		return out
	}
	oldRunes := encode(tokenize(oldText))
	newRunes := encode(tokenize(newText))
	if len(table) >= maxDiffTokens {
		return []segment{{Type: segmentDeleted, Text: oldText}, {Type: segmentAdded, Text: newText}}
	}

	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = wordDiffTimeout
	diffs := dmp.DiffMainRunes(oldRunes, newRunes, false)

	var segments []segment
	for _, d := range diffs {
		var text strings.Builder
		for _, r := range d.Text {
			text.WriteString(table[r])
		}
		if text.Len() == 0 {
			continue
		}
		typ := segmentUnchanged
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			typ = segmentAdded
		case diffmatchpatch.DiffDelete:
			typ = segmentDeleted
		}
		segments = append(segments, segment{Type: typ, Text: text.String()})
	}
	return segments
}

// renderWordDiff renders segments with deletions struck through and
// additions highlighted.
func renderWordDiff(segments []segment) string {
	var b strings.Builder
	for _, s := range segments {
		switch s.Type {
		case segmentAdded:
			b.WriteString(AddedStyle.Render(s.Text))
		case segmentDeleted:
			b.WriteString(DeletedStyle.Render(s.Text))
		default:
			b.WriteString(s.Text)
		}
	}
	return b.String()
}
