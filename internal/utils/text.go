package utils

import "unicode/utf8"

// CharLen counts characters (runes), not bytes.
func CharLen(s string) int {
	return utf8.RuneCountInString(s)
}

// TruncateChars returns at most n leading characters of s without splitting
// a UTF-8 sequence.
func TruncateChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

// Ellipsize shortens s to max characters, marking the cut with "...".
func Ellipsize(s string, max int) string {
	if CharLen(s) <= max {
		return s
	}
	if max <= 3 {
		return TruncateChars(s, max)
	}
	return TruncateChars(s, max-3) + "..."
}
