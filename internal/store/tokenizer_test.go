package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"cjk per character", "小红书营销", []string{"小", "红", "书", "营", "销"}},
		{"latin words lowercased", "Hello, World!", []string{"hello", "world"}},
		{"digits dropped", "top10 tips 2024", []string{"top", "tips"}},
		{"mixed scripts", "RED营销tips", []string{"red", "营", "销", "tips"}},
		{"non ascii letters split words", "café", []string{"caf"}},
		{"other scripts dropped", "ひらがな ok", []string{"ok"}},
		{"empty", "", []string{}},
		{"only punctuation", "... --- !!!", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	text := "Andrew Ng 吴恩达 machine learning 教程"
	assert.Equal(t, Tokenize(text), Tokenize(text))
}

func TestTokenizeSpans_Offsets(t *testing.T) {
	spans := tokenizeSpans("ab 小c")
	assert.Equal(t, []tokenSpan{
		{term: "ab", start: 0, end: 2},
		{term: "小", start: 3, end: 6},
		{term: "c", start: 6, end: 7},
	}, spans)
}
