package querylang

import (
	"regexp"
	"strings"
)

// CompileGlob converts a shell-style glob (*, ?, [abc]) into an anchored,
// case-insensitive regexp.
func CompileGlob(pattern string) (*regexp.Regexp, error) {
	re, err := globToRegex(pattern)
	if err != nil {
		return nil, err
	}
	return regexp.Compile(re)
}

func globToRegex(pattern string) (string, error) {
	var b strings.Builder
	b.WriteString("(?i)^")

	i := 0
	for i < len(pattern) {
		ch := pattern[i]
		switch ch {
		case '*':
			b.WriteString(".*")
			i++
		case '?':
			b.WriteByte('.')
			i++
		case '[':
			j := i + 1
			if j < len(pattern) && pattern[j] == '!' {
				j++
			}
			if j < len(pattern) && pattern[j] == ']' {
				j++
			}
			for j < len(pattern) && pattern[j] != ']' {
				j++
			}
			if j >= len(pattern) {
				return "", ErrInvalidGlob
			}
			b.WriteByte('[')
			classBody := pattern[i+1 : j]
			if len(classBody) > 0 && classBody[0] == '!' {
				b.WriteByte('^')
				classBody = classBody[1:]
			}
			b.WriteString(classBody)
			b.WriteByte(']')
			i = j + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(ch)))
			i++
		}
	}

	b.WriteByte('$')
	return b.String(), nil
}
