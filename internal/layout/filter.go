package layout

import (
	"regexp"
	"strings"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

var (
	// standardLinePattern: an all-caps mnemonic at the start and a byte range,
	// optionally parenthesized, at the end.
	standardLinePattern = regexp.MustCompile(`^[A-Z]{2,}.*\(?\d+ *-? ?\d+\)?\s*$`)

	// legacyLinePattern: the per-line record marker "D".
	legacyLinePattern = regexp.MustCompile(`^D\s`)
)

// Line is a candidate field line and its 1-based position in the document.
type Line struct {
	Number int
	Text   string
}

// FilterLines returns the lines of text that plausibly describe one field in
// the given dialect. Everything else (narrative, headers, footnotes) is dropped.
func FilterLines(text string, dialect types.Dialect) []Line {
	pattern := standardLinePattern
	if dialect == types.DialectLegacy1998 {
		pattern = legacyLinePattern
	}

	var lines []Line
	for i, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, "\r")
		if pattern.MatchString(raw) {
			lines = append(lines, Line{Number: i + 1, Text: raw})
		}
	}
	return lines
}
