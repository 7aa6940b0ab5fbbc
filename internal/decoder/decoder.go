package decoder

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// maxLineBytes bounds a single extract line.
const maxLineBytes = 16 * 1024 * 1024

// gzipMagic starts every gzip stream.
var gzipMagic = []byte{0x1f, 0x8b}

// ValueCount is one distinct offending value and how often it occurred.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// TextColumnIssue reports a numeric column that held non-numeric values.
type TextColumnIssue struct {
	Column string       `json:"column"`
	Rows   int          `json:"rows"`
	Values []ValueCount `json:"values"`
}

// Result is the outcome of decoding one extract.
type Result struct {
	Table *types.DecodedTable

	// Anomalies holds one DECODE_ANOMALY per line shorter than the schema width
	Anomalies errors.List

	// TextIssues lists numeric columns that contained non-numeric values
	TextIssues []TextColumnIssue
}

// Issues returns every recoverable problem as structured errors: the short
// line anomalies followed by one UNEXPECTED_TEXT_COLUMN per offending column.
func (r *Result) Issues() errors.List {
	out := make(errors.List, 0, len(r.Anomalies)+len(r.TextIssues))
	out = append(out, r.Anomalies...)
	for _, issue := range r.TextIssues {
		out = append(out, issue.Error())
	}
	return out
}

// Error converts the issue into a structured error.
func (i TextColumnIssue) Error() *errors.Error {
	values := make([]string, 0, len(i.Values))
	for _, v := range i.Values {
		values = append(values, fmt.Sprintf("%q×%d", v.Value, v.Count))
	}
	return errors.NewDecodeError(errors.CodeUnexpectedTextColumn,
		fmt.Sprintf("column %s holds non-numeric values", i.Column)).
		WithDetails(map[string]interface{}{
			"column": i.Column,
			"rows":   i.Rows,
			"values": strings.Join(values, ", "),
		})
}

// Decoder decodes extracts against a schema. It is safe for concurrent use.
type Decoder struct {
	textColumns map[string]bool
}

// New creates a decoder that keeps the named columns as literal text.
func New(textColumns []string) *Decoder {
	text := make(map[string]bool, len(textColumns))
	for _, c := range textColumns {
		text[c] = true
	}
	return &Decoder{textColumns: text}
}

// Decode reads every line of r and slices it according to s. Lines shorter
// than the schema width are kept with their missing trailing values empty
// and reported as DECODE_ANOMALY. The returned table has exactly one row per
// input line. Numeric values lose their padding spaces; text columns keep
// their bytes exactly.
func (d *Decoder) Decode(r io.Reader, s *types.Schema, extractDate types.YearMonth) (*Result, error) {
	specs := ColumnSpecs(s, d.textColumns)
	if len(specs) == 0 {
		return nil, errors.New(errors.ErrCategorySchema, errors.CodeEmptySchema,
			fmt.Sprintf("schema %s has no data columns", s.Vintage))
	}
	width := s.Width()

	table := &types.DecodedTable{
		ExtractDate: extractDate,
		SchemaDate:  s.EffectiveDate,
		Columns:     make([]types.Column, len(specs)),
	}
	for i, spec := range specs {
		table.Columns[i] = types.Column{Name: spec.Name, Kind: spec.Kind}
	}

	result := &Result{Table: table}
	invalid := make([]map[string]int, len(specs))
	invalidRows := make([]int, len(specs))

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")

		if len(line) < width {
			result.Anomalies = append(result.Anomalies, errors.NewDecodeError(errors.CodeDecodeAnomaly,
				fmt.Sprintf("line %d is %d bytes, schema width is %d", lineNo, len(line), width)).
				WithDetails(map[string]interface{}{
					"line":   lineNo,
					"length": len(line),
					"width":  width,
				}))
		}

		row := make([]string, len(specs))
		for i, spec := range specs {
			value := spec.Slice(line)
			if spec.Kind == types.KindText {
				row[i] = value
				continue
			}
			value = strings.Trim(value, " ")
			row[i] = value
			if value != "" && !isNumeric(value) {
				if invalid[i] == nil {
					invalid[i] = make(map[string]int)
				}
				invalid[i][value]++
				invalidRows[i]++
			}
		}
		table.Rows = append(table.Rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.NewStorageError(errors.CodeReadFailed,
			fmt.Sprintf("read failed after line %d", lineNo), err)
	}

	for i, values := range invalid {
		if values == nil {
			continue
		}
		result.TextIssues = append(result.TextIssues, TextColumnIssue{
			Column: specs[i].Name,
			Rows:   invalidRows[i],
			Values: sortedCounts(values),
		})
	}
	return result, nil
}

// DecodeBytes decodes an in-memory extract, decompressing it first when it
// is gzip-compressed.
func (d *Decoder) DecodeBytes(data []byte, s *types.Schema, extractDate types.YearMonth) (*Result, error) {
	r, err := OpenExtract(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return d.Decode(r, s, extractDate)
}

// OpenExtract returns a reader over the plain text of an extract, detecting
// gzip compression by its magic bytes.
func OpenExtract(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(gzipMagic))
	if err != nil && err != io.EOF {
		return nil, errors.NewStorageError(errors.CodeReadFailed, "peek extract header", err)
	}
	if bytes.Equal(head, gzipMagic) {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, errors.NewStorageError(errors.CodeReadFailed, "open gzip extract", err)
		}
		return zr, nil
	}
	return br, nil
}

// numericPattern matches signed decimals. Spellings such as NaN or 1e2 count
// as text.
var numericPattern = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)$`)

func isNumeric(v string) bool {
	return numericPattern.MatchString(v)
}

// sortedCounts orders values by descending count, then by value.
func sortedCounts(values map[string]int) []ValueCount {
	out := make([]ValueCount, 0, len(values))
	for v, n := range values {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	return out
}
