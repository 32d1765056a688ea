package sqlite

import (
	"strings"
	"unicode"
)

// Segmenter splits text into whitespace-separated words before it is indexed
// or queried. Languages without whitespace word boundaries need one for
// keyword search to match anything shorter than a whole sentence.
type Segmenter interface {
	Segment(text string) string
}

// PassThrough returns text unchanged.
type PassThrough struct{}

func (PassThrough) Segment(text string) string { return text }

// CJKSegmenter isolates every Han, Hiragana, Katakana and Hangul rune as its
// own word and leaves all other text alone. Unigram indexing gives recall on
// CJK text without a dictionary.
type CJKSegmenter struct{}

func (CJKSegmenter) Segment(text string) string {
	var (
		b       strings.Builder
		prevCJK bool
	)
	b.Grow(len(text) + len(text)/2)

	for i, r := range text {
		cjk := isCJK(r)
		if i > 0 && (cjk || prevCJK) && !unicode.IsSpace(r) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
		prevCJK = cjk
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
