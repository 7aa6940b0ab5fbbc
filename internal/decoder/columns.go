// Package decoder slices fixed-width extract lines into named columns using a
// resolved schema.
package decoder

import (
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// ColumnSpec is one output column with its byte range in native slicing
// convention: 0-based, half-open.
type ColumnSpec struct {
	Name  string
	Start int
	End   int
	Kind  types.ColumnKind
}

// ColumnSpecs converts the non-filler fields of s into slice bounds.
// A field covering bytes [StartPos, EndPos] (1-based, inclusive) becomes
// line[StartPos-1 : EndPos]. Filler fields are skipped but their bytes are
// never reassigned to neighbouring columns.
func ColumnSpecs(s *types.Schema, textColumns map[string]bool) []ColumnSpec {
	specs := make([]ColumnSpec, 0, len(s.Fields))
	for _, f := range s.Fields {
		if f.IsFiller() {
			continue
		}
		kind := types.KindNumeric
		if textColumns[f.Name] {
			kind = types.KindText
		}
		specs = append(specs, ColumnSpec{
			Name:  f.Name,
			Start: f.StartPos - 1,
			End:   f.EndPos,
			Kind:  kind,
		})
	}
	return specs
}

// Slice returns the bytes of line covered by spec, clamped to the line's
// length. Inverted ranges yield an empty value.
func (c ColumnSpec) Slice(line string) string {
	start, end := c.Start, c.End
	if start < 0 {
		start = 0
	}
	if end > len(line) {
		end = len(line)
	}
	if start >= end {
		return ""
	}
	return line[start:end]
}
