package utils

import "unicode/utf8"

// Truncate cuts s to maxLen runes for one-line listings such as cited
// memories, ending the cut with "...". A non-positive maxLen keeps s whole.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
