package embedding

import (
	"strings"
	"unicode"
)

// BERT special token IDs.
const (
	tokenCLS   = 101
	tokenSEP   = 102
	vocabWords = 30000
)

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer maps lowercased words to hashed IDs inside the BERT vocabulary range.
// It does not match any real vocabulary; models loaded with it only see word identity.
type SimpleTokenizer struct{}

// Tokenize returns [CLS] words... [SEP] padded to maxTokens. Words past the limit are dropped.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 2 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = tokenCLS
	attentionMask[0] = 1
	pos := 1
	for _, w := range Words(text) {
		if pos >= maxTokens-1 {
			break
		}
		// Keep clear of the special IDs below 1000.
		inputIDs[pos] = int64(1000 + HashString(w)%(vocabWords-1000))
		attentionMask[pos] = 1
		pos++
	}
	inputIDs[pos] = tokenSEP
	attentionMask[pos] = 1
	return inputIDs, attentionMask, tokenTypeIDs
}

// Words lowercases text and splits it on every rune that is not a letter or digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// HashString returns a deterministic non-negative hash for use as a token ID or bucket.
func HashString(s string) int {
	var h uint32
	for _, c := range s {
		h = 31*h + uint32(c)
	}
	return int(h)
}
