package search

import (
	"strings"
	"unicode"

	"github.com/hyperjump/yomu/internal/embedding"
)

// DefaultSnippetLength is the snippet size, in characters, attached to query hits.
const DefaultSnippetLength = 240

// Highlight cuts content to maxLen characters around the earliest query term it contains.
// Trimmed ends are marked with "...". Content without a match is cut from the start.
func Highlight(content, query string, maxLen int) string {
	r := []rune(content)
	if maxLen <= 0 || len(r) <= maxLen {
		return content
	}
	lower := make([]rune, len(r))
	for i, c := range r {
		lower[i] = unicode.ToLower(c)
	}
	pos := -1
	for _, term := range embedding.Words(query) {
		if i := indexRunes(lower, []rune(term)); i >= 0 && (pos < 0 || i < pos) {
			pos = i
		}
	}

	start := 0
	if pos > 0 {
		start = pos - maxLen/3
		if start < 0 {
			start = 0
		}
		if start+maxLen > len(r) {
			start = len(r) - maxLen
		}
	}
	end := start + maxLen
	out := strings.TrimSpace(string(r[start:end]))
	if start > 0 {
		out = "..." + out
	}
	if end < len(r) {
		out += "..."
	}
	return out
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return -1
	}
	for i := 0; i+len(sub) <= len(s); i++ {
		match := true
		for j := range sub {
			if s[i+j] != sub[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
