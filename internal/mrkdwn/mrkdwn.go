// Package mrkdwn rewrites standard markdown, as produced by language models,
// into Slack's mrkdwn dialect.
package mrkdwn

import (
	"regexp"
	"strings"
)

var (
	headingPattern = regexp.MustCompile(`^#{1,3}\s+(.+)$`)
	boldPattern    = regexp.MustCompile(`\*\*(.+?)\*\*`)
	bulletPattern  = regexp.MustCompile(`^(\s*)[-*]\s+`)
)

// FromMarkdown converts heading, bold and bullet constructs to their mrkdwn
// equivalents: level 1-3 headings become *bold* lines with the hash markers
// removed, **bold** narrows to *bold*, and leading */- list markers become
// bullet glyphs. Fenced code blocks and inline code spans pass through
// untouched, and already-converted text is returned unchanged.
func FromMarkdown(text string) string {
	if text == "" {
		return text
	}
	lines := strings.Split(text, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		lines[i] = convertLine(line)
	}
	return strings.Join(lines, "\n")
}

func convertLine(line string) string {
	if !strings.Contains(line, "`") {
		return convertSegment(line, true)
	}
	// Odd-indexed segments sit inside inline code spans.
	parts := strings.Split(line, "`")
	for i := 0; i < len(parts); i += 2 {
		parts[i] = convertSegment(parts[i], i == 0)
	}
	return strings.Join(parts, "`")
}

func convertSegment(segment string, lineStart bool) string {
	if lineStart {
		if m := headingPattern.FindStringSubmatch(segment); m != nil {
			// Bold markers inside a heading are redundant once the whole
			// line is emphasized.
			title := boldPattern.ReplaceAllString(m[1], "$1")
			return "*" + strings.TrimSpace(title) + "*"
		}
		segment = bulletPattern.ReplaceAllString(segment, "${1}• ")
	}
	return boldPattern.ReplaceAllString(segment, "*$1*")
}
