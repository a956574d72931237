package util

import (
	"fmt"
	"unicode/utf8"
)

// Ellipsis is appended by Truncate when text is cut.
const Ellipsis = "..."

// Truncate keeps the first n characters of s and appends Ellipsis when s is
// longer than n characters. Strings of n characters or fewer are returned as is.
// Lengths are counted in runes and the kept prefix is the input's own bytes,
// so invalid UTF-8 passes through unchanged.
func Truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	cut := 0
	for i := 0; i < n; i++ {
		if cut >= len(s) {
			return s
		}
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	if cut >= len(s) {
		return s
	}
	return s[:cut] + Ellipsis
}

// TruncateLog bounds provider error bodies before they reach logs or errors.
func TruncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
