// Package sanitize cleans free text arriving through the MCP tools before it
// is stored in a cognitive map: scenario names, descriptions and node labels.
// Stored text is later returned to agents, so markup that could be read as
// instructions is stripped while the wording is kept.
package sanitize

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionLength caps scenario descriptions, in runes.
const MaxDescriptionLength = 2000

// MaxNameLength caps scenario names and node labels, in runes.
const MaxNameLength = 120

var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reMarkdownHeading matches markdown headings at the start of a line.
	reMarkdownHeading = regexp.MustCompile(`(?m)^#{1,6}\s+`)

	reTripleBacktick    = regexp.MustCompile("```+")
	reExcessiveNewlines = regexp.MustCompile(`\n{3,}`)
	reSpaceRun          = regexp.MustCompile(`[ \t]+`)
)

// Description sanitizes multi-line text:
//  1. Strip control characters except \n and \t (\r\n becomes \n)
//  2. Strip XML/HTML tags
//  3. Replace markdown headings with list markers
//  4. Collapse code fences to a single backtick
//  5. Collapse 3+ newlines to 2, then trim
//  6. Truncate to MaxDescriptionLength runes
func Description(input string) string {
	if input == "" {
		return ""
	}
	s := strings.ReplaceAll(input, "\r\n", "\n")
	s = stripControlChars(s, true)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reMarkdownHeading.ReplaceAllString(s, "- ")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reExcessiveNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	return truncate(s, MaxDescriptionLength)
}

// Name sanitizes single-line text: control characters and newlines become
// spaces, tags are stripped, whitespace runs collapse, and the result is
// truncated to MaxNameLength runes.
func Name(input string) string {
	if input == "" {
		return ""
	}
	s := stripControlChars(input, false)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reSpaceRun.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncate(s, MaxNameLength)
}

// stripControlChars drops ASCII control characters. With multiline set, \n
// and \t are kept; otherwise they become spaces.
func stripControlChars(s string, multiline bool) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '\n' || r == '\t' || r == '\r':
			if multiline && r != '\r' {
				b.WriteRune(r)
			} else {
				b.WriteByte(' ')
			}
		case r < 0x20 || r == 0x7f:
			continue
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxRunes]))
}
