// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import "strings"

// markdownSpecial holds the characters that change Markdown rendering.
const markdownSpecial = "\\`*_{}[]()#+-.!|<>~"

// EscapeMarkdown backslash-escapes Markdown syntax in s and folds newlines
// into spaces so the text stays inside one paragraph.
func EscapeMarkdown(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\r':
			continue
		case r == '\n':
			b.WriteByte(' ')
		case strings.ContainsRune(markdownSpecial, r):
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
