package store

import "strings"

// isCJK reports whether r is in the CJK Unified Ideographs block.
func isCJK(r rune) bool {
	return r >= 0x4E00 && r <= 0x9FFF
}

func isLatin(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// Tokenize splits text into lexical units. Each CJK ideograph is its own
// token, maximal runs of ASCII letters become one lower-cased token, and
// everything else (digits, punctuation, other scripts) separates tokens
// without producing any.
func Tokenize(text string) []string {
	spans := tokenizeSpans(text)
	tokens := make([]string, len(spans))
	for i, sp := range spans {
		tokens[i] = sp.term
	}
	return tokens
}

// tokenSpan is a token with its byte offsets in the source text.
type tokenSpan struct {
	term       string
	start, end int
}

// tokenizeSpans tokenizes text and keeps byte offsets for the bleve analyzer.
func tokenizeSpans(text string) []tokenSpan {
	var spans []tokenSpan
	start := -1

	flush := func(end int) {
		if start >= 0 {
			spans = append(spans, tokenSpan{term: strings.ToLower(text[start:end]), start: start, end: end})
			start = -1
		}
	}

	for i, r := range text {
		switch {
		case isLatin(r):
			if start < 0 {
				start = i
			}
		case isCJK(r):
			flush(i)
			spans = append(spans, tokenSpan{term: string(r), start: i, end: i + len(string(r))})
		default:
			flush(i)
		}
	}
	flush(len(text))

	return spans
}
