package chat

import "strings"

// FormatReply renders a reply as plain chat text: the speaker label, one
// space, then the response.
func FormatReply(r Reply) string {
	if r.Label == "" {
		return r.Text
	}
	return r.Label + " " + r.Text
}

// Truncate shortens s to at most max runes, marking the cut with an
// ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return strings.TrimRightFunc(string(runes[:max-1]), isSpace) + "…"
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t'
}
