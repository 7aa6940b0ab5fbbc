package types

// ColumnKind says how a decoded column's values are interpreted.
type ColumnKind string

const (
	// KindNumeric columns hold numeric codes; empty means missing
	KindNumeric ColumnKind = "numeric"

	// KindText columns are kept as literal text (leading zeros, hyphen placeholders)
	KindText ColumnKind = "text"
)

// Column is one output column of a decoded extract.
type Column struct {
	// Name is the schema field name
	Name string `json:"name"`

	// Kind is numeric unless the column is on the text allow-list
	Kind ColumnKind `json:"kind"`
}

// DecodedTable is the tabular form of one fixed-width extract.
type DecodedTable struct {
	// ExtractDate is the period the extract belongs to
	ExtractDate YearMonth `json:"extract_date"`

	// SchemaDate is the effective date of the schema used to decode it
	SchemaDate YearMonth `json:"schema_date"`

	// Columns are the non-filler fields, in schema order
	Columns []Column `json:"columns"`

	// Rows holds one slice of values per input line, aligned with Columns
	Rows [][]string `json:"rows"`
}

// ColumnIndex returns the position of the named column, or -1.
func (t *DecodedTable) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}
