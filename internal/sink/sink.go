// Package sink writes decoded extracts to their output formats and
// publishes them, with a metadata sidecar, to object storage.
package sink

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/golang/snappy"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// Output formats.
const (
	FormatCSV    = "csv"
	FormatSQLite = "sqlite"
)

// Extension returns the object suffix for a format.
func Extension(format string, compress bool) string {
	switch format {
	case FormatSQLite:
		return ".sqlite"
	default:
		if compress {
			return ".csv.sz"
		}
		return ".csv"
	}
}

// UniqueColumnNames returns the table's column names with repeated names
// suffixed "_2", "_3" and so on, so they can serve as identifiers.
func UniqueColumnNames(t *types.DecodedTable) []string {
	seen := make(map[string]int, len(t.Columns))
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		seen[c.Name]++
		if n := seen[c.Name]; n > 1 {
			name := c.Name + "_" + strconv.Itoa(n)
			for seen[name] > 0 {
				n++
				name = c.Name + "_" + strconv.Itoa(n)
			}
			seen[name]++
			names[i] = name
			continue
		}
		names[i] = c.Name
	}
	return names
}

// WriteCSV writes a header of column names followed by one record per row.
func WriteCSV(w io.Writer, t *types.DecodedTable) error {
	bw := bufio.NewWriter(w)
	cw := csv.NewWriter(bw)
	if err := cw.Write(UniqueColumnNames(t)); err != nil {
		return fmt.Errorf("sink: failed to write header: %w", err)
	}
	for i, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("sink: failed to write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("sink: failed to flush csv: %w", err)
	}
	return bw.Flush()
}

// WriteSnappyCSV writes the CSV form inside a snappy framed stream.
func WriteSnappyCSV(w io.Writer, t *types.DecodedTable) error {
	sw := snappy.NewBufferedWriter(w)
	if err := WriteCSV(sw, t); err != nil {
		sw.Close()
		return err
	}
	if err := sw.Close(); err != nil {
		return fmt.Errorf("sink: failed to close snappy stream: %w", err)
	}
	return nil
}
