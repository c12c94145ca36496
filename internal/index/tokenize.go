package index

import "strings"

// Tokenize splits message text into lowercased word tokens for the token
// index, dropping punctuation. Tokens shorter than 1 rune never occur; an
// all-punctuation message tokenizes to nil.
func Tokenize(message string) []string {
	return strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z':
			return false
		case r >= '0' && r <= '9':
			return false
		case r == '_':
			return false
		default:
			return true
		}
	})
}
