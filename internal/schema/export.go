package schema

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// TableHeader is the column order of the tabular schema export.
var TableHeader = []string{"var_name", "var_len", "desc", "start_pos", "end_pos"}

// WriteTable writes the schema as a CSV table, one row per field in schema order.
func WriteTable(w io.Writer, s *types.Schema) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(TableHeader); err != nil {
		return fmt.Errorf("schema: write table header: %w", err)
	}
	for _, f := range s.Fields {
		record := []string{
			f.Name,
			strconv.Itoa(f.Length),
			f.Description,
			strconv.Itoa(f.StartPos),
			strconv.Itoa(f.EndPos),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("schema: write field %s: %w", f.Name, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadTable reads fields written by WriteTable.
func ReadTable(r io.Reader) ([]types.FieldDescriptor, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(TableHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("schema: read table header: %w", err)
	}
	for i, name := range TableHeader {
		if header[i] != name {
			return nil, fmt.Errorf("schema: unexpected table column %q at %d, want %q", header[i], i, name)
		}
	}

	var fields []types.FieldDescriptor
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("schema: read table: %w", err)
		}
		nums, err := atoiFields(record[1], record[3], record[4])
		if err != nil {
			return nil, fmt.Errorf("schema: field %s: %w", record[0], err)
		}
		fields = append(fields, types.FieldDescriptor{
			Name:        record[0],
			Length:      nums[0],
			Description: record[2],
			StartPos:    nums[1],
			EndPos:      nums[2],
		})
	}
	return fields, nil
}

// DefaultTextColumns are decoded as literal text: the sample identifier and
// the serial suffix can carry leading zeros and hyphen placeholders.
func DefaultTextColumns() []string {
	return []string{"HRSAMPLE", "HRSERSUF"}
}

// WriteInfix writes the schema as an infix dictionary block. Filler fields are
// omitted; fields named in textColumns are marked str.
//
//	infix dictionary {
//	    HRHHID 1-15
//	    str HRSAMPLE 71-74
//	}
func WriteInfix(w io.Writer, s *types.Schema, textColumns []string) error {
	text := make(map[string]bool, len(textColumns))
	for _, c := range textColumns {
		text[c] = true
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "infix dictionary {")
	for _, f := range s.Fields {
		if f.IsFiller() {
			continue
		}
		prefix := ""
		if text[f.Name] {
			prefix = "str "
		}
		fmt.Fprintf(bw, "    %s%s %d-%d\n", prefix, f.Name, f.StartPos, f.EndPos)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

var infixLinePattern = regexp.MustCompile(`^\s*(str\s+)?(\w+)\s+(\d+)\s*-\s*(\d+)\s*$`)

// InfixDictionary is the content of a parsed infix dictionary.
type InfixDictionary struct {
	Fields      []types.FieldDescriptor
	TextColumns []string
}

// ReadInfix parses an infix dictionary block. Lengths are derived from the
// ranges; descriptions are empty.
func ReadInfix(r io.Reader) (*InfixDictionary, error) {
	scanner := bufio.NewScanner(r)
	dict := &InfixDictionary{}
	opened, closed := false, false
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case !opened:
			if !strings.HasPrefix(line, "infix dictionary") || !strings.HasSuffix(line, "{") {
				return nil, fmt.Errorf("schema: line %d: expected infix dictionary header", lineNo)
			}
			opened = true
		case line == "}":
			closed = true
		case closed:
			return nil, fmt.Errorf("schema: line %d: content after closing brace", lineNo)
		default:
			m := infixLinePattern.FindStringSubmatch(line)
			if m == nil {
				return nil, fmt.Errorf("schema: line %d: malformed entry %q", lineNo, line)
			}
			nums, err := atoiFields(m[3], m[4])
			if err != nil {
				return nil, fmt.Errorf("schema: line %d: %w", lineNo, err)
			}
			dict.Fields = append(dict.Fields, types.FieldDescriptor{
				Name:     m[2],
				Length:   nums[1] - nums[0] + 1,
				StartPos: nums[0],
				EndPos:   nums[1],
			})
			if m[1] != "" {
				dict.TextColumns = append(dict.TextColumns, m[2])
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("schema: read infix dictionary: %w", err)
	}
	if !opened || !closed {
		return nil, fmt.Errorf("schema: unterminated infix dictionary")
	}
	return dict, nil
}

func atoiFields(values ...string) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", v)
		}
		out[i] = n
	}
	return out, nil
}
