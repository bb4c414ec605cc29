package utils

import "strings"

// Snippet returns the first maxLen characters of s with internal whitespace
// collapsed, appending an ellipsis when truncated. Used for vector-path
// result snippets; the keyword path gets engine-aligned snippets instead.
func Snippet(s string, maxLen int) string {
	s = strings.Join(strings.Fields(s), " ")
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	cut := strings.LastIndex(s[:maxLen], " ")
	if cut <= 0 {
		cut = maxLen
	}
	return s[:cut] + "…"
}
