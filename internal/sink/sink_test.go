package sink

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"path/filepath"
	"testing"

	"github.com/golang/snappy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cpsdecode/cpsdecode/internal/decoder"
	"github.com/cpsdecode/cpsdecode/internal/storage"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

func testSchema() *types.Schema {
	return &types.Schema{
		Vintage:       "cps_dict_199401",
		EffectiveDate: types.MustParseYearMonth("199401"),
		Dialect:       types.DialectStandard,
		Fields: []types.FieldDescriptor{
			{Name: "HRHHID", Length: 4, StartPos: 1, EndPos: 4},
			{Name: "HRSAMPLE", Length: 3, StartPos: 5, EndPos: 7},
			{Name: "FILLER", Length: 1, StartPos: 8, EndPos: 8},
			{Name: "PEAGE", Length: 2, StartPos: 9, EndPos: 10},
		},
	}
}

func decodeTest(t *testing.T, data string) *decoder.Result {
	t.Helper()
	d := decoder.New([]string{"HRSAMPLE"})
	res, err := d.DecodeBytes([]byte(data), testSchema(), types.MustParseYearMonth("199502"))
	require.NoError(t, err)
	return res
}

func TestUniqueColumnNames(t *testing.T) {
	table := &types.DecodedTable{Columns: []types.Column{
		{Name: "A"}, {Name: "B"}, {Name: "A"}, {Name: "A_2"}, {Name: "A"},
	}}
	assert.Equal(t, []string{"A", "B", "A_2", "A_2_2", "A_3"}, UniqueColumnNames(table))
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".csv", Extension(FormatCSV, false))
	assert.Equal(t, ".csv.sz", Extension(FormatCSV, true))
	assert.Equal(t, ".sqlite", Extension(FormatSQLite, true))
}

func TestWriteCSV(t *testing.T) {
	res := decodeTest(t, "0001A01 35\n0002-0- 7\n")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, res.Table))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"HRHHID", "HRSAMPLE", "PEAGE"},
		{"0001", "A01", "35"},
		{"0002", "-0-", "7"},
	}, records)
}

func TestWriteSnappyCSV(t *testing.T) {
	res := decodeTest(t, "0001A01 35\n")

	var buf bytes.Buffer
	require.NoError(t, WriteSnappyCSV(&buf, res.Table))

	plain, err := io.ReadAll(snappy.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, "HRHHID,HRSAMPLE,PEAGE\n0001,A01,35\n", string(plain))
}

func TestWriteSQLite(t *testing.T) {
	ctx := context.Background()
	res := decodeTest(t, "0001A01 35\n0002B02   \n")
	path := filepath.Join(t.TempDir(), "out.sqlite")

	require.NoError(t, WriteSQLite(ctx, path, res.Table, SQLiteMeta(res.Table, "cps_dict_199401", "abc")))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM "observations"`).Scan(&count))
	assert.Equal(t, 2, count)

	var sample string
	var age sql.NullInt64
	require.NoError(t, db.QueryRow(`SELECT "HRSAMPLE", "PEAGE" FROM "observations" WHERE "HRHHID" = 2`).Scan(&sample, &age))
	assert.Equal(t, "B02", sample)
	assert.False(t, age.Valid, "empty numeric value should be NULL")

	var vintage string
	require.NoError(t, db.QueryRow(`SELECT value FROM "_decode_meta" WHERE key = 'vintage'`).Scan(&vintage))
	assert.Equal(t, "cps_dict_199401", vintage)

	// writing again replaces the file
	require.NoError(t, WriteSQLite(ctx, path, res.Table, nil))
}

func TestMetadataGenerator(t *testing.T) {
	res := decodeTest(t, "0001A01 35\n0002B02 X7\n0003\n")
	gen := NewMetadataGenerator([]string{"HRHHID", "MISSING"}, 0.01)
	sidecar := gen.Generate(res, testSchema(), "fp")

	assert.Equal(t, int64(3), sidecar.RowCount)
	assert.Equal(t, "199401", sidecar.SchemaDate.String())
	assert.Equal(t, 1, sidecar.Anomalies["DECODE_ANOMALY"])
	assert.Equal(t, 1, sidecar.Anomalies["UNEXPECTED_TEXT_COLUMN"])
	assert.Equal(t, int64(2), sidecar.AnomalyCount())
	assert.Equal(t, []string{"HRHHID"}, sidecar.KeyColumns())

	data, err := sidecar.ToJSON()
	require.NoError(t, err)
	back, err := FromJSON(data)
	require.NoError(t, err)

	ok, err := back.MayContain("HRHHID", "0002")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = back.MayContain("PEAGE", "anything")
	require.NoError(t, err)
	assert.True(t, ok, "columns without filters cannot be excluded")
}

func TestMetadataPath(t *testing.T) {
	assert.Equal(t, "decoded/cpsb9502.meta.json", MetadataPath("decoded/cpsb9502.csv"))
	assert.Equal(t, "decoded/cpsb9502.meta.json", MetadataPath("decoded/cpsb9502.csv.sz"))
	assert.Equal(t, "decoded/cpsb9502.meta.json", MetadataPath("decoded/cpsb9502.sqlite"))
}

func TestExporter_Export(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, opts := range []Options{
		{Format: FormatCSV},
		{Format: FormatCSV, Compress: true},
		{Format: FormatSQLite, KeyColumns: []string{"HRHHID"}},
	} {
		exp := NewExporter(store, t.TempDir(), opts)
		out, err := exp.Export(ctx, Request{
			ExtractID:  "id-1",
			Source:     "raw/cpsb9502.dat",
			OutputBase: "decoded/cpsb9502",
			Result:     decodeTest(t, "0001A01 35\n"),
			Schema:     testSchema(),
		})
		require.NoError(t, err)
		assert.Equal(t, exp.OutputPath("decoded/cpsb9502"), out.OutputPath)
		assert.NotEmpty(t, out.Checksum)
		assert.Positive(t, out.SizeBytes)

		exists, err := store.Exists(ctx, out.OutputPath)
		require.NoError(t, err)
		assert.True(t, exists)

		data, err := store.ReadObject(ctx, out.MetadataPath)
		require.NoError(t, err)
		sidecar, err := FromJSON(data)
		require.NoError(t, err)
		assert.Equal(t, out.Checksum, sidecar.Checksum)
		assert.Equal(t, "raw/cpsb9502.dat", sidecar.Source)
		assert.Equal(t, opts.Format, sidecar.Format)
	}
}
