// Package layout turns raw record layout documents into ordered field
// descriptors. It selects the document's dialect, trims supplemental
// appendices, filters candidate field lines and parses each one.
package layout

import (
	"strings"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// DefaultEndMarker ends the basic portion of a layout document. Text after it
// describes supplements and industry codes that are not part of the record.
const DefaultEndMarker = "END OF BASIC PORTION OF THE RECORD"

// DefaultLegacyMarkers identify the vintages written in the legacy dialect.
func DefaultLegacyMarkers() []string {
	return []string{"199801"}
}

// DialectSelector picks a dialect from a document's vintage tag and truncates
// its text at the end-of-basic-record marker.
type DialectSelector struct {
	legacyMarkers []string
	endMarker     string
}

// NewDialectSelector creates a selector. An empty endMarker disables truncation.
func NewDialectSelector(legacyMarkers []string, endMarker string) *DialectSelector {
	markers := make([]string, len(legacyMarkers))
	copy(markers, legacyMarkers)
	return &DialectSelector{
		legacyMarkers: markers,
		endMarker:     endMarker,
	}
}

// NewDefaultDialectSelector creates a selector with the historical markers.
func NewDefaultDialectSelector() *DialectSelector {
	return NewDialectSelector(DefaultLegacyMarkers(), DefaultEndMarker)
}

// Select returns the dialect for a vintage tag. The lookup is static on the
// tag; document content is never inspected.
func (s *DialectSelector) Select(vintage string) types.Dialect {
	for _, marker := range s.legacyMarkers {
		if marker != "" && strings.Contains(vintage, marker) {
			return types.DialectLegacy1998
		}
	}
	return types.DialectStandard
}

// Truncate returns the text before the first end-of-basic-record marker, or
// the whole text when the marker is absent.
func (s *DialectSelector) Truncate(text string) string {
	if s.endMarker == "" {
		return text
	}
	if idx := strings.Index(text, s.endMarker); idx >= 0 {
		return text[:idx]
	}
	return text
}
