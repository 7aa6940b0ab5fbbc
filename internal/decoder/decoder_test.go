package decoder

import (
	"bytes"
	"compress/gzip"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

var extractDate = types.MustParseYearMonth("199502")

func testSchema() *types.Schema {
	return &types.Schema{
		Vintage:       "cps_dict_199401",
		EffectiveDate: types.MustParseYearMonth("199401"),
		Fields: []types.FieldDescriptor{
			{Name: "HRHHID", Length: 4, StartPos: 1, EndPos: 4},
			{Name: "FILLER", Length: 2, StartPos: 5, EndPos: 6},
			{Name: "HRSAMPLE", Length: 3, StartPos: 7, EndPos: 9},
			{Name: "PRTAGE", Length: 2, StartPos: 10, EndPos: 11},
		},
	}
}

func TestColumnSpecs(t *testing.T) {
	specs := ColumnSpecs(testSchema(), map[string]bool{"HRSAMPLE": true})

	want := []ColumnSpec{
		{Name: "HRHHID", Start: 0, End: 4, Kind: types.KindNumeric},
		{Name: "HRSAMPLE", Start: 6, End: 9, Kind: types.KindText},
		{Name: "PRTAGE", Start: 9, End: 11, Kind: types.KindNumeric},
	}
	if !reflect.DeepEqual(specs, want) {
		t.Errorf("ColumnSpecs() = %+v, want %+v", specs, want)
	}
}

func TestColumnSpec_Slice(t *testing.T) {
	line := "1234XX05A42"

	tests := []struct {
		spec ColumnSpec
		want string
	}{
		{ColumnSpec{Start: 0, End: 4}, "1234"},
		{ColumnSpec{Start: 6, End: 9}, "05A"},
		{ColumnSpec{Start: 9, End: 11}, "42"},
		{ColumnSpec{Start: 0, End: 1}, "1"},
		{ColumnSpec{Start: 10, End: 11}, "2"},
		{ColumnSpec{Start: 9, End: 20}, "42"},
		{ColumnSpec{Start: 15, End: 20}, ""},
		{ColumnSpec{Start: 793, End: 680}, ""},
	}
	for _, tt := range tests {
		if got := tt.spec.Slice(line); got != tt.want {
			t.Errorf("Slice(%d:%d) = %q, want %q", tt.spec.Start, tt.spec.End, got, tt.want)
		}
	}
}

func TestDecode(t *testing.T) {
	d := New([]string{"HRSAMPLE"})
	input := "0001XX05A42\n0002  -0199\r\n"

	res, err := d.Decode(strings.NewReader(input), testSchema(), extractDate)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	if res.Table.ExtractDate != extractDate || res.Table.SchemaDate.String() != "199401" {
		t.Errorf("table dates = %s/%s", res.Table.ExtractDate, res.Table.SchemaDate)
	}
	want := [][]string{
		{"0001", "05A", "42"},
		{"0002", "-01", "99"},
	}
	if !reflect.DeepEqual(res.Table.Rows, want) {
		t.Errorf("rows = %v, want %v", res.Table.Rows, want)
	}
	if len(res.Anomalies) != 0 || len(res.TextIssues) != 0 {
		t.Errorf("unexpected issues: %v", res.Issues())
	}
	if res.Table.ColumnIndex("FILLER") != -1 {
		t.Error("filler must not be an output column")
	}
}

func TestDecode_ShortLine(t *testing.T) {
	s := &types.Schema{
		Vintage: "one-field",
		Fields:  []types.FieldDescriptor{{Name: "PWSSWGT", Length: 10, StartPos: 1, EndPos: 10}},
	}

	res, err := New(nil).Decode(strings.NewReader("1234567\n"), s, extractDate)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(res.Table.Rows) != 1 || res.Table.Rows[0][0] != "1234567" {
		t.Errorf("rows = %v", res.Table.Rows)
	}
	if len(res.Anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(res.Anomalies))
	}
	a := res.Anomalies[0]
	if a.Code != errors.CodeDecodeAnomaly || !a.Recoverable || a.Details["line"] != 1 {
		t.Errorf("anomaly = %+v", a)
	}
}

func TestDecode_TruncatedTrailingFields(t *testing.T) {
	res, err := New(nil).Decode(strings.NewReader("0001XX05A42\n0003XX0\n\n"), testSchema(), extractDate)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(res.Table.Rows) != 3 {
		t.Fatalf("row count %d must equal line count 3", len(res.Table.Rows))
	}
	if !reflect.DeepEqual(res.Table.Rows[1], []string{"0003", "0", ""}) {
		t.Errorf("truncated row = %v", res.Table.Rows[1])
	}
	if !reflect.DeepEqual(res.Table.Rows[2], []string{"", "", ""}) {
		t.Errorf("empty row = %v", res.Table.Rows[2])
	}
	if len(res.Anomalies) != 2 {
		t.Errorf("anomalies = %d, want 2", len(res.Anomalies))
	}
}

func TestDecode_UnexpectedText(t *testing.T) {
	input := "0001XX05A42\n0002XX05A-1\n0003XX05A 1\nABCDXX05Ax1\nABCDXX05Ax2\n"

	res, err := New(nil).Decode(strings.NewReader(input), testSchema(), extractDate)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	byColumn := map[string]TextColumnIssue{}
	for _, issue := range res.TextIssues {
		byColumn[issue.Column] = issue
	}
	if len(byColumn) != 3 {
		t.Fatalf("issues = %+v, want HRHHID, HRSAMPLE and PRTAGE", res.TextIssues)
	}
	if got := byColumn["HRHHID"].Values; !reflect.DeepEqual(got, []ValueCount{{"ABCD", 2}}) {
		t.Errorf("HRHHID values = %v", got)
	}
	if got := byColumn["PRTAGE"].Values; !reflect.DeepEqual(got, []ValueCount{{"x1", 1}, {"x2", 1}}) {
		t.Errorf("PRTAGE values = %v", got)
	}

	issues := res.Issues()
	if len(issues) != 3 || issues[0].Code != errors.CodeUnexpectedTextColumn {
		t.Errorf("Issues() = %v", issues)
	}
}

func TestDecode_NumericSpellings(t *testing.T) {
	s := &types.Schema{
		Vintage: "one-field",
		Fields:  []types.FieldDescriptor{{Name: "PWSSWGT", Length: 4, StartPos: 1, EndPos: 4}},
	}
	input := "NaN \nInf \n1e2 \n0x1 \n12.5\n-7  \n+3  \n.25 \n"

	res, err := New(nil).Decode(strings.NewReader(input), s, extractDate)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(res.TextIssues) != 1 {
		t.Fatalf("issues = %+v, want one for PWSSWGT", res.TextIssues)
	}
	want := []ValueCount{{"0x1", 1}, {"1e2", 1}, {"Inf", 1}, {"NaN", 1}}
	if got := res.TextIssues[0].Values; !reflect.DeepEqual(got, want) {
		t.Errorf("values = %v, want %v", got, want)
	}
}

func TestDecode_TextColumnsKeepBytes(t *testing.T) {
	input := "0001XX 5 42\n0002XXA  7 \n"

	res, err := New([]string{"HRSAMPLE"}).Decode(strings.NewReader(input), testSchema(), extractDate)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	want := [][]string{
		{"0001", " 5 ", "42"},
		{"0002", "A  ", "7"},
	}
	if !reflect.DeepEqual(res.Table.Rows, want) {
		t.Errorf("rows = %q, want %q", res.Table.Rows, want)
	}
	if len(res.TextIssues) != 0 {
		t.Errorf("unexpected issues: %v", res.TextIssues)
	}
}

func TestDecode_EmptySchema(t *testing.T) {
	s := &types.Schema{Fields: []types.FieldDescriptor{{Name: "FILLER", Length: 3, StartPos: 1, EndPos: 3}}}
	if _, err := New(nil).Decode(strings.NewReader("abc\n"), s, extractDate); err == nil {
		t.Error("expected error for schema without data columns")
	}
}

func TestDecodeBytes_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("0001XX05A42\n"))
	zw.Close()

	res, err := New([]string{"HRSAMPLE"}).DecodeBytes(buf.Bytes(), testSchema(), extractDate)
	if err != nil {
		t.Fatalf("DecodeBytes() error: %v", err)
	}
	if len(res.Table.Rows) != 1 || res.Table.Rows[0][1] != "05A" {
		t.Errorf("rows = %v", res.Table.Rows)
	}

	plain, err := New(nil).DecodeBytes([]byte("0001XX00142\n"), testSchema(), extractDate)
	if err != nil || len(plain.Table.Rows) != 1 {
		t.Errorf("plain DecodeBytes() = %v, %v", plain, err)
	}

	empty, err := New(nil).DecodeBytes(nil, testSchema(), extractDate)
	if err != nil || len(empty.Table.Rows) != 0 {
		t.Errorf("empty DecodeBytes() = %v, %v", empty, err)
	}
}

func TestProperty_DecodeDeterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	d := New([]string{"HRSAMPLE"})
	s := testSchema()

	properties.Property("decoding the same input twice yields identical tables", prop.ForAll(
		func(lines []string) bool {
			input := strings.Join(lines, "\n")
			first, err1 := d.Decode(strings.NewReader(input), s, extractDate)
			second, err2 := d.Decode(strings.NewReader(input), s, extractDate)
			if err1 != nil || err2 != nil {
				return false
			}
			return reflect.DeepEqual(first, second)
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("row count equals line count", prop.ForAll(
		func(lines []string) bool {
			var sb strings.Builder
			for _, l := range lines {
				sb.WriteString(l)
				sb.WriteString("\n")
			}
			res, err := d.Decode(strings.NewReader(sb.String()), s, extractDate)
			if err != nil {
				return false
			}
			return len(res.Table.Rows) == len(lines)
		},
		gen.SliceOf(gen.NumString()),
	))

	properties.TestingRun(t)
}
