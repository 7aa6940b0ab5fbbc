// Package types provides the core data types for cpsdecode: layout fields,
// schemas, dates and decoded tables.
package types

import "strings"

// Dialect identifies the textual encoding of a record layout document.
type Dialect string

const (
	// DialectStandard covers every vintage except one: a field line starts with
	// an all-caps mnemonic and ends with a byte range such as "121- 122".
	DialectStandard Dialect = "standard"

	// DialectLegacy1998 is the single irregular vintage whose field lines start
	// with the record marker "D" and carry no end position or description.
	DialectLegacy1998 Dialect = "legacy-1998"
)

// fillerToken marks placeholder fields that occupy bytes but carry no data.
const fillerToken = "FILLER"

// FieldDescriptor describes one variable's position in a fixed-width row.
type FieldDescriptor struct {
	// Name is the variable mnemonic (e.g. "PRTAGE")
	Name string `json:"var_name" yaml:"var_name"`

	// Length is the declared byte count
	Length int `json:"var_len" yaml:"var_len"`

	// Description is free text from the layout document, empty for the legacy dialect
	Description string `json:"desc" yaml:"desc"`

	// StartPos is the 1-based inclusive first byte
	StartPos int `json:"start_pos" yaml:"start_pos"`

	// EndPos is the 1-based inclusive last byte
	EndPos int `json:"end_pos" yaml:"end_pos"`
}

// IsFiller reports whether the field is a placeholder.
func (f FieldDescriptor) IsFiller() bool {
	return strings.Contains(strings.ToUpper(f.Name), fillerToken)
}

// Span returns the number of bytes covered by the position range.
func (f FieldDescriptor) Span() int {
	return f.EndPos - f.StartPos + 1
}

// Schema is one full record layout, valid for extracts dated on or after
// EffectiveDate until the next registered layout takes over.
type Schema struct {
	// Vintage is the identifying tag of the layout document (e.g. "cps_dict_199801")
	Vintage string `json:"vintage"`

	// EffectiveDate is the earliest extract date the layout applies to
	EffectiveDate YearMonth `json:"effective_date"`

	// Dialect is the textual encoding the layout was parsed from
	Dialect Dialect `json:"dialect"`

	// Fields holds the variables in layout order
	Fields []FieldDescriptor `json:"fields"`
}

// Width returns the declared record width: the largest end position in the schema.
func (s *Schema) Width() int {
	width := 0
	for _, f := range s.Fields {
		if f.EndPos > width {
			width = f.EndPos
		}
	}
	return width
}

// Field returns the first field with the given name.
func (s *Schema) Field(name string) (FieldDescriptor, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// ColumnNames returns the non-filler field names in schema order.
func (s *Schema) ColumnNames() []string {
	names := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if !f.IsFiller() {
			names = append(names, f.Name)
		}
	}
	return names
}

// Clone returns a deep copy whose Fields slice can be modified independently.
func (s *Schema) Clone() *Schema {
	cp := *s
	cp.Fields = make([]FieldDescriptor, len(s.Fields))
	copy(cp.Fields, s.Fields)
	return &cp
}
