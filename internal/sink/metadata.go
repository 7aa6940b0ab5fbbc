package sink

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cpsdecode/cpsdecode/internal/bloom"
	"github.com/cpsdecode/cpsdecode/internal/decoder"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// MetadataSidecar represents the .meta.json file written next to every
// decoded extract.
type MetadataSidecar struct {
	ExtractID    string                    `json:"extract_id"`
	Source       string                    `json:"source"`
	ExtractDate  types.YearMonth           `json:"extract_date"`
	SchemaDate   types.YearMonth           `json:"schema_date"`
	Vintage      string                    `json:"vintage"`
	Fingerprint  string                    `json:"fingerprint"`
	Format       string                    `json:"format"`
	RowCount     int64                     `json:"row_count"`
	Columns      []types.Column            `json:"columns"`
	Anomalies    map[string]int            `json:"anomalies"`
	TextIssues   []decoder.TextColumnIssue `json:"text_issues,omitempty"`
	Checksum     string                    `json:"checksum"`
	BloomFilters map[string]*bloom.Encoded `json:"bloom_filters"`
	CreatedAt    int64                     `json:"created_at"`
}

// MetadataGenerator builds sidecars for decoded extracts.
type MetadataGenerator struct {
	keyColumns []string
	targetFPR  float64
}

// NewMetadataGenerator creates a generator that builds bloom filters over
// the named key columns.
func NewMetadataGenerator(keyColumns []string, targetFPR float64) *MetadataGenerator {
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}
	return &MetadataGenerator{keyColumns: keyColumns, targetFPR: targetFPR}
}

// Generate creates the sidecar for one decode result. Key columns absent
// from the table are skipped.
func (g *MetadataGenerator) Generate(result *decoder.Result, s *types.Schema, fingerprint string) *MetadataSidecar {
	t := result.Table
	sidecar := &MetadataSidecar{
		ExtractDate:  t.ExtractDate,
		SchemaDate:   t.SchemaDate,
		Vintage:      s.Vintage,
		Fingerprint:  fingerprint,
		RowCount:     int64(len(t.Rows)),
		Columns:      t.Columns,
		Anomalies:    result.Issues().CountByCode(),
		TextIssues:   result.TextIssues,
		BloomFilters: make(map[string]*bloom.Encoded),
		CreatedAt:    time.Now().Unix(),
	}

	for _, col := range g.keyColumns {
		idx := t.ColumnIndex(col)
		if idx < 0 {
			continue
		}
		values := make([]string, len(t.Rows))
		for i, row := range t.Rows {
			values[i] = row[idx]
		}
		sidecar.BloomFilters[col] = bloom.ForColumn(values, g.targetFPR).Encode(col)
	}
	return sidecar
}

// AnomalyCount is the total number of recoverable issues recorded.
func (s *MetadataSidecar) AnomalyCount() int64 {
	var n int64
	for _, c := range s.Anomalies {
		n += int64(c)
	}
	return n
}

// MayContain reports whether the extract may hold value in a key column.
// Columns without a filter always answer true.
func (s *MetadataSidecar) MayContain(column, value string) (bool, error) {
	enc, ok := s.BloomFilters[column]
	if !ok {
		return true, nil
	}
	f, err := bloom.Decode(enc)
	if err != nil {
		return false, fmt.Errorf("metadata: column %s: %w", column, err)
	}
	return f.MayContain(value), nil
}

// KeyColumns returns the columns that carry a bloom filter, sorted.
func (s *MetadataSidecar) KeyColumns() []string {
	cols := make([]string, 0, len(s.BloomFilters))
	for c := range s.BloomFilters {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// ToJSON serializes the sidecar.
func (s *MetadataSidecar) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to marshal sidecar: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a sidecar.
func FromJSON(data []byte) (*MetadataSidecar, error) {
	var sidecar MetadataSidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return nil, fmt.Errorf("metadata: failed to unmarshal sidecar: %w", err)
	}
	return &sidecar, nil
}

// CreatedAtTime returns the creation time as time.Time.
func (s *MetadataSidecar) CreatedAtTime() time.Time {
	return time.Unix(s.CreatedAt, 0)
}

// MetadataPath returns the sidecar object path for an output object path.
func MetadataPath(outputPath string) string {
	for _, ext := range []string{".csv.sz", ".csv", ".sqlite"} {
		if strings.HasSuffix(outputPath, ext) {
			return strings.TrimSuffix(outputPath, ext) + ".meta.json"
		}
	}
	return outputPath + ".meta.json"
}
