package utils

import (
	"strings"
	"unicode"
)

// LettersUpper drops every non-letter rune and upper-cases the rest.
func LettersUpper(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}

// IsDigits reports whether s consists only of ASCII digits. With n > 0 the
// length must also be exactly n; with n == 0 any non-empty string qualifies.
func IsDigits(s string, n int) bool {
	if s == "" || (n > 0 && len(s) != n) {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
