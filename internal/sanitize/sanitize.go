// Package sanitize cleans user-supplied run labels before they are stored in
// the run catalog, written to Arrow metadata or echoed back to MCP clients.
package sanitize

import (
	"regexp"
	"strings"
)

// MaxNameLength is the maximum allowed length for run names.
const MaxNameLength = 80

var (
	reRepeatedHyphens     = regexp.MustCompile(`-{2,}`)
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// RunName keeps only [a-zA-Z0-9._-], turns whitespace into hyphens,
// collapses repeated hyphens and underscores and truncates to
// MaxNameLength. Leading and trailing separators are trimmed.
func RunName(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range stripControlChars(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '-', r == '_', r == '.':
			b.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n':
			b.WriteRune('-')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")
	s = strings.Trim(s, "-_.")

	if len(s) > MaxNameLength {
		s = strings.TrimRight(s[:MaxNameLength], "-_.")
	}
	return s
}

// stripControlChars removes ASCII control characters (0x00-0x1F) and DEL,
// except for newline and tab.
func stripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r < 0x20 && r != '\n' && r != '\t') || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
