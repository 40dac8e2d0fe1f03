package util

import (
	"strings"
	"unicode"
)

// CleanDisplayName strips control and invisible characters from a
// client-supplied label and collapses whitespace runs to a single space.
func CleanDisplayName(name string) string {
	builder := strings.Builder{}
	builder.Grow(len(name))

	pendingSpace := false
	for _, char := range name {
		if unicode.IsSpace(char) {
			pendingSpace = builder.Len() > 0
			continue
		}

		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}

		if pendingSpace {
			builder.WriteByte(' ')
			pendingSpace = false
		}
		builder.WriteRune(char)
	}

	return builder.String()
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters that should be stripped from labels.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
