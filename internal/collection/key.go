// Package collection manages per-document indexes: one semantic store, one lexical
// index and one fused retriever per normalized document key.
package collection

import (
	"path/filepath"
	"strings"
	"unicode"
)

// DefaultKey is used when a filename normalizes to nothing.
const DefaultKey = "default"

// NormalizeKey derives a collection key from a filename: the extension is dropped,
// every rune that is not a letter or digit becomes '_', runs of '_' collapse and
// leading or trailing '_' are trimmed. "My Report (2024).pdf" becomes "My_Report_2024".
func NormalizeKey(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		base = ""
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))

	var b strings.Builder
	underscore := false
	for _, r := range base {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore {
			b.WriteByte('_')
			underscore = true
		}
	}
	key := strings.Trim(b.String(), "_")
	if key == "" {
		return DefaultKey
	}
	return key
}
