package util

import (
	"strings"
	"unicode"
)

const (
	MaxTextLength = 255
	MaxTagLength  = 32
)

// CleanText trims s, drops control and invisible characters and cuts the
// result to max runes. A max of zero or less disables the cut.
func CleanText(s string, max int) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return ""
	}

	builder := strings.Builder{}
	builder.Grow(len(trimmed))

	for _, char := range trimmed {
		if unicode.IsControl(char) || isInvisibleUnicode(char) {
			continue
		}

		builder.WriteRune(char)
	}

	cleaned := strings.TrimSpace(builder.String())

	// Truncate by runes (not bytes) to avoid splitting multi-byte characters.
	runes := []rune(cleaned)
	if max > 0 && len(runes) > max {
		cleaned = strings.TrimSpace(string(runes[:max]))
	}

	return cleaned
}

// NormalizeEmail lowercases and cleans an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(CleanText(email, MaxTextLength))
}

// NormalizeTags cleans and lowercases tags, collapsing inner whitespace to a
// dash and dropping empties and duplicates. Order of first appearance is kept.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))

	for _, tag := range tags {
		cleaned := strings.ToLower(CleanText(tag, MaxTagLength))
		cleaned = strings.Join(strings.Fields(cleaned), "-")
		if cleaned == "" {
			continue
		}
		if _, exists := seen[cleaned]; exists {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}

	return out
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters that should be stripped from user input.
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
