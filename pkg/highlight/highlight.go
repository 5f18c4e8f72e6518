// Package highlight locates search terms inside message text and cuts
// short snippets around the first hit for result lists. Matching follows
// the search index: terms are matched case-insensitively as word
// prefixes, so the query "photo" highlights all of "photosynthesis".
package highlight

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coregx/ahocorasick"
)

// DefaultSnippetRadius is the number of bytes of context kept on either
// side of the first match when no radius is given.
const DefaultSnippetRadius = 80

const ellipsis = "…"

// Span marks a matched byte range. Offsets index the string the span was
// produced for and Text carries the original slice with casing intact.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Highlighter finds the terms of one search query in arbitrary text.
type Highlighter struct {
	ac    *ahocorasick.Automaton
	terms []string
}

// New compiles the terms of query into a Highlighter. Terms are
// canonicalized the same way scanned text is, so casing, curly quotes
// and surrounding punctuation never break a match. An empty or
// all-punctuation query yields a highlighter that matches nothing.
func New(query string) (*Highlighter, error) {
	seen := make(map[string]bool)
	var terms []string
	for _, field := range strings.Fields(query) {
		term, _ := canonicalize(strings.ReplaceAll(field, `"`, ""))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		terms = append(terms, term)
	}

	h := &Highlighter{terms: terms}
	if len(terms) == 0 {
		return h, nil
	}

	ac, err := ahocorasick.NewBuilder().
		AddStrings(terms).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	h.ac = ac
	return h, nil
}

// Terms returns the canonical query terms the highlighter was built from.
func (h *Highlighter) Terms() []string {
	return h.terms
}

// Spans scans text and returns the highlighted ranges, sorted by start
// offset with overlaps merged. A term only counts when it begins a word,
// and the span runs to the end of that word to mirror prefix search.
func (h *Highlighter) Spans(text string) []Span {
	if h.ac == nil || text == "" {
		return nil
	}

	canon, offsets := canonicalize(text)
	if canon == "" {
		return nil
	}

	matches := h.ac.FindAllOverlapping([]byte(canon))
	spans := make([]Span, 0, len(matches))
	for _, m := range matches {
		if m.Start > 0 && canon[m.Start-1] != ' ' {
			continue
		}
		end := m.End
		for end < len(canon) && canon[end] != ' ' {
			end++
		}

		origStart := mapOffset(m.Start, offsets, len(text))
		origEnd := mapOffset(end, offsets, len(text))
		if origStart >= origEnd || origEnd > len(text) {
			continue
		}
		spans = append(spans, Span{
			Start: origStart,
			End:   origEnd,
			Text:  text[origStart:origEnd],
		})
	}

	return mergeSpans(text, spans)
}

// Snippet runs Spans and windows the text around the first hit. Without
// hits it returns the head of the text and no spans.
func (h *Highlighter) Snippet(text string, radius int) (string, []Span) {
	return Snippet(text, h.Spans(text), radius)
}

// Snippet cuts a window of radius bytes around the first span and
// rebases every span that fits inside it onto the returned string, so
// snippet[span.Start:span.End] is the highlighted text. Cut points widen
// to whitespace and therefore never split a UTF-8 sequence. Truncated
// edges are marked with an ellipsis.
func Snippet(text string, spans []Span, radius int) (string, []Span) {
	if radius <= 0 {
		radius = DefaultSnippetRadius
	}

	if len(spans) == 0 {
		if len(text) <= 2*radius {
			return text, nil
		}
		end := widenRight(text, 2*radius)
		return strings.TrimRight(text[:end], " \t\n") + ellipsis, nil
	}

	first := spans[0]
	start := first.Start - radius
	if start < 0 {
		start = 0
	}
	end := first.End + radius
	if end > len(text) {
		end = len(text)
	}
	start = widenLeft(text, start)
	end = widenRight(text, end)
	for start < first.Start && isBreak(text[start]) {
		start++
	}
	for end > first.End && isBreak(text[end-1]) {
		end--
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(ellipsis)
	}
	prefix := b.Len()
	b.WriteString(text[start:end])
	if end < len(text) {
		b.WriteString(ellipsis)
	}

	var rebased []Span
	for _, s := range spans {
		if s.Start < start || s.End > end {
			continue
		}
		rebased = append(rebased, Span{
			Start: s.Start - start + prefix,
			End:   s.End - start + prefix,
			Text:  s.Text,
		})
	}
	return b.String(), rebased
}

// widenLeft moves i back to the nearest whitespace boundary so no word
// is cut open. Whitespace bytes are ASCII, so the result is always a
// rune boundary.
func widenLeft(s string, i int) int {
	for i > 0 && !isBreak(s[i-1]) {
		i--
	}
	return i
}

// widenRight moves i forward to the end of the word it lands in.
func widenRight(s string, i int) int {
	for i < len(s) && !isBreak(s[i]) {
		i++
	}
	return i
}

func isBreak(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// mergeSpans sorts spans by start offset and folds overlapping ranges
// into one, re-slicing Text to cover the union.
func mergeSpans(text string, spans []Span) []Span {
	if len(spans) < 2 {
		return spans
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		return spans[i].End > spans[j].End
	})

	out := spans[:1]
	for _, s := range spans[1:] {
		last := &out[len(out)-1]
		if s.Start <= last.End {
			if s.End > last.End {
				last.End = s.End
				last.Text = text[last.Start:last.End]
			}
			continue
		}
		out = append(out, s)
	}
	return out
}

// canonicalize lowercases s, folds curly apostrophes and dashes to their
// ASCII forms, and collapses every separator run to a single space. The
// returned offsets map each canonical byte to the start of the rune in s
// that produced it, with one extra entry for the end of the string, so
// matches found on the canonical form can be sliced out of the original.
func canonicalize(s string) (string, []int) {
	var canon strings.Builder
	canon.Grow(len(s))
	offsets := make([]int, 0, len(s)+1)

	sepStart := -1
	for i, r := range s {
		r = foldRune(r)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !isJoiner(r) {
			if sepStart < 0 {
				sepStart = i
			}
			continue
		}
		if sepStart >= 0 && canon.Len() > 0 {
			canon.WriteByte(' ')
			offsets = append(offsets, sepStart)
		}
		sepStart = -1
		for n := utf8.RuneLen(r); n > 0; n-- {
			offsets = append(offsets, i)
		}
		canon.WriteRune(r)
	}
	if sepStart >= 0 {
		offsets = append(offsets, sepStart)
	} else {
		offsets = append(offsets, len(s))
	}

	return canon.String(), offsets
}

func foldRune(r rune) rune {
	r = unicode.ToLower(r)
	switch r {
	case '’', '‘':
		return '\''
	case '–', '—':
		return '-'
	}
	return r
}

// isJoiner reports punctuation kept inside a token, so contractions and
// hyphenated terms match as one word.
func isJoiner(r rune) bool {
	return r == '\'' || r == '-'
}

// mapOffset converts a canonical byte offset back to an offset in the
// original text.
func mapOffset(i int, offsets []int, originalLen int) int {
	if i < 0 {
		return 0
	}
	if i >= len(offsets) {
		return originalLen
	}
	return offsets[i]
}
