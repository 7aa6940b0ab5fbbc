package schema

import (
	"bytes"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/cpsdecode/cpsdecode/internal/errors"
	"github.com/cpsdecode/cpsdecode/pkg/types"
)

func field(name string, length, start, end int) types.FieldDescriptor {
	return types.FieldDescriptor{Name: name, Length: length, StartPos: start, EndPos: end}
}

// contiguousSchema lays fields back to back starting at byte 1.
func contiguousSchema(lengths []int) *types.Schema {
	s := &types.Schema{Vintage: "cps_dict_200301", EffectiveDate: types.MustParseYearMonth("200301")}
	pos := 1
	for i, n := range lengths {
		s.Fields = append(s.Fields, types.FieldDescriptor{
			Name:        fmt.Sprintf("VAR%d", i),
			Length:      n,
			Description: fmt.Sprintf("VARIABLE %d, \"QUOTED\"", i),
			StartPos:    pos,
			EndPos:      pos + n - 1,
		})
		pos += n
	}
	return s
}

func TestCorrector_DefaultTable(t *testing.T) {
	c, err := NewCorrector(DefaultCorrections())
	if err != nil {
		t.Fatalf("NewCorrector() error: %v", err)
	}

	raw := &types.Schema{
		Vintage:       "cps_dict_199506",
		EffectiveDate: types.MustParseYearMonth("199506"),
		Fields: []types.FieldDescriptor{
			field("PEAFNOW", 2, 1, 3),
			field("PXFNTVTY", 2, 794, 680),
		},
	}

	got, applied := c.Apply(raw)
	if len(applied) != 2 {
		t.Fatalf("applied %d corrections, want 2", len(applied))
	}
	if got.Fields[0].Length != 3 {
		t.Errorf("PEAFNOW length = %d, want 3", got.Fields[0].Length)
	}
	if got.Fields[1].StartPos != 679 {
		t.Errorf("PXFNTVTY start = %d, want 679", got.Fields[1].StartPos)
	}
	if raw.Fields[1].StartPos != 794 {
		t.Error("Apply must not modify its input")
	}
}

func TestCorrector_OnlyMatchingVersion(t *testing.T) {
	c, _ := NewCorrector(DefaultCorrections())

	s := &types.Schema{
		EffectiveDate: types.MustParseYearMonth("199509"),
		Fields:        []types.FieldDescriptor{field("PEAFNOW", 2, 1, 2)},
	}
	if _, applied := c.Apply(s); len(applied) != 0 {
		t.Errorf("199509 carries the right PEAFNOW length, got corrections %v", applied)
	}

	s.EffectiveDate = types.MustParseYearMonth("202401")
	s.Fields = []types.FieldDescriptor{field("PXFNTVTY", 2, 794, 795)}
	if _, applied := c.Apply(s); len(applied) != 0 {
		t.Errorf("unlisted versions must be left alone, got %v", applied)
	}
}

func TestNewCorrector_RejectsUnknownAttribute(t *testing.T) {
	_, err := NewCorrector([]Correction{{Field: "X", Attribute: "width", From: 1, To: 2}})
	if err == nil {
		t.Fatal("expected error for unknown attribute")
	}
}

func TestProperty_CorrectionIdempotent(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	dates := []string{"199401", "199404", "199506", "199509", "200301"}

	properties.Property("applying corrections twice equals applying once", prop.ForAll(
		func(dateIdx, start, length int) bool {
			c, err := NewCorrector(DefaultCorrections())
			if err != nil {
				return false
			}
			raw := &types.Schema{
				EffectiveDate: types.MustParseYearMonth(dates[dateIdx]),
				Fields: []types.FieldDescriptor{
					field("PEAFNOW", length, 1, length),
					field("PXFNTVTY", 2, start, start+1),
				},
			}
			once, _ := c.Apply(raw)
			twice, applied := c.Apply(once)
			return len(applied) == 0 && reflect.DeepEqual(once, twice)
		},
		gen.IntRange(0, len(dates)-1),
		gen.OneConstOf(679, 794, 800),
		gen.IntRange(1, 3),
	))

	properties.TestingRun(t)
}

func TestValidator_ScenarioGap(t *testing.T) {
	v := NewValidator(DefaultToleratedInvertedFields())
	s := &types.Schema{Vintage: "test", Fields: []types.FieldDescriptor{
		field("A", 1, 1, 1),
		field("B", 2, 3, 4),
	}}

	r := v.Validate(s)
	if r.Valid() {
		t.Fatal("gap between non-filler fields must be a violation")
	}
	if !strings.Contains(r.Violations[0].Message, "gap") {
		t.Errorf("violation = %v", r.Violations[0])
	}
	if errors.GetCode(r.Err()) != errors.CodeIntegrityViolation {
		t.Errorf("Err() code = %s", errors.GetCode(r.Err()))
	}
}

func TestValidator(t *testing.T) {
	v := NewValidator(DefaultToleratedInvertedFields())

	tests := []struct {
		name       string
		fields     []types.FieldDescriptor
		valid      bool
		warnings   int
		violations int
	}{
		{
			name:   "contiguous",
			fields: []types.FieldDescriptor{field("A", 2, 1, 2), field("B", 3, 3, 5)},
			valid:  true,
		},
		{
			name:       "empty",
			fields:     nil,
			violations: 1,
		},
		{
			name:       "first field not at byte 1",
			fields:     []types.FieldDescriptor{field("A", 2, 2, 3)},
			violations: 1,
		},
		{
			name:       "overlap",
			fields:     []types.FieldDescriptor{field("A", 3, 1, 3), field("B", 2, 3, 4)},
			violations: 1,
		},
		{
			name:     "gap at filler",
			fields:   []types.FieldDescriptor{field("A", 2, 1, 2), field("FILLER", 2, 5, 6), field("B", 1, 7, 7)},
			valid:    true,
			warnings: 1,
		},
		{
			name:     "length slop",
			fields:   []types.FieldDescriptor{field("A", 3, 1, 2), field("B", 1, 3, 3)},
			valid:    true,
			warnings: 1,
		},
		{
			name:     "filler length slop tolerated silently",
			fields:   []types.FieldDescriptor{field("A", 2, 1, 2), field("PADFILLER", 9, 3, 4)},
			valid:    true,
			warnings: 0,
		},
		{
			name:     "tolerated inverted field",
			fields:   []types.FieldDescriptor{field("A", 678, 1, 678), field("PXFNTVTY", 2, 794, 680), field("B", 1, 681, 681)},
			valid:    true,
			warnings: 2,
		},
		{
			name:       "inverted field elsewhere",
			fields:     []types.FieldDescriptor{field("A", 2, 1, 2), field("B", 2, 5, 4)},
			violations: 2,
		},
		{
			name:     "duplicate name",
			fields:   []types.FieldDescriptor{field("A", 1, 1, 1), field("A", 1, 2, 2)},
			valid:    true,
			warnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.Validate(&types.Schema{Vintage: tt.name, Fields: tt.fields})
			if r.Valid() != tt.valid {
				t.Errorf("Valid() = %v, want %v (violations: %v)", r.Valid(), tt.valid, r.Violations)
			}
			if len(r.Warnings) != tt.warnings {
				t.Errorf("warnings = %d, want %d: %v", len(r.Warnings), tt.warnings, r.Warnings)
			}
			if len(r.Violations) != tt.violations {
				t.Errorf("violations = %d, want %d: %v", len(r.Violations), tt.violations, r.Violations)
			}
		})
	}
}

func TestProperty_ContiguousSchemasValidate(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	v := NewValidator(DefaultToleratedInvertedFields())

	properties.Property("valid schemas have contiguous non-filler neighbours", prop.ForAll(
		func(lengths []int) bool {
			s := contiguousSchema(append([]int{1}, lengths...))
			if !v.Validate(s).Valid() {
				return false
			}
			for i := 1; i < len(s.Fields); i++ {
				if s.Fields[i].StartPos != s.Fields[i-1].EndPos+1 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(1, 12)),
	))

	properties.Property("shifting any field breaks validation", prop.ForAll(
		func(lengths []int, shift int) bool {
			s := contiguousSchema(append([]int{1, 1}, lengths...))
			idx := len(s.Fields) - 1
			s.Fields[idx].StartPos += shift
			s.Fields[idx].EndPos += shift
			return !v.Validate(s).Valid()
		},
		gen.SliceOf(gen.IntRange(1, 12)),
		gen.IntRange(1, 5),
	))

	properties.TestingRun(t)
}

func TestProperty_TableRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("table export then read yields identical fields", prop.ForAll(
		func(lengths []int) bool {
			s := contiguousSchema(lengths)
			var buf bytes.Buffer
			if err := WriteTable(&buf, s); err != nil {
				return false
			}
			fields, err := ReadTable(&buf)
			if err != nil {
				return false
			}
			if len(fields) == 0 && len(s.Fields) == 0 {
				return true
			}
			return reflect.DeepEqual(fields, s.Fields)
		},
		gen.SliceOf(gen.IntRange(1, 40)),
	))

	properties.TestingRun(t)
}

func TestReadTable_RejectsWrongHeader(t *testing.T) {
	_, err := ReadTable(strings.NewReader("name,len,desc,start,end\n"))
	if err == nil {
		t.Fatal("expected header error")
	}
}

func TestInfix_WriteRead(t *testing.T) {
	s := &types.Schema{Fields: []types.FieldDescriptor{
		field("HRHHID", 15, 1, 15),
		field("FILLER", 2, 16, 17),
		field("HRSAMPLE", 4, 18, 21),
		field("HRSERSUF", 2, 22, 23),
	}}

	var buf bytes.Buffer
	if err := WriteInfix(&buf, s, DefaultTextColumns()); err != nil {
		t.Fatalf("WriteInfix() error: %v", err)
	}

	want := "infix dictionary {\n    HRHHID 1-15\n    str HRSAMPLE 18-21\n    str HRSERSUF 22-23\n}\n"
	if buf.String() != want {
		t.Errorf("WriteInfix() =\n%s\nwant\n%s", buf.String(), want)
	}

	dict, err := ReadInfix(&buf)
	if err != nil {
		t.Fatalf("ReadInfix() error: %v", err)
	}
	if len(dict.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(dict.Fields))
	}
	if dict.Fields[1] != field("HRSAMPLE", 4, 18, 21) {
		t.Errorf("HRSAMPLE = %+v", dict.Fields[1])
	}
	if !reflect.DeepEqual(dict.TextColumns, []string{"HRSAMPLE", "HRSERSUF"}) {
		t.Errorf("text columns = %v", dict.TextColumns)
	}
}

func TestReadInfix_Malformed(t *testing.T) {
	cases := []string{
		"HRHHID 1-15\n",
		"infix dictionary {\n    HRHHID 1-15\n",
		"infix dictionary {\n    HRHHID one-15\n}\n",
	}
	for _, c := range cases {
		if _, err := ReadInfix(strings.NewReader(c)); err == nil {
			t.Errorf("expected error for %q", c)
		}
	}
}

func TestValidator_Dictionary(t *testing.T) {
	v := NewValidator(DefaultToleratedInvertedFields())

	tests := []struct {
		name       string
		fields     []types.FieldDescriptor
		warnings   int
		violations int
	}{
		{
			name:   "gaps left by omitted filler",
			fields: []types.FieldDescriptor{field("A", 4, 1, 4), field("B", 2, 9, 10)},
		},
		{
			name:     "tolerated inverted field",
			fields:   []types.FieldDescriptor{field("A", 678, 1, 678), field("PXFNTVTY", 115, 794, 680), field("B", 1, 681, 681)},
			warnings: 1,
		},
		{
			name: "overlap, inversion and zero start",
			fields: []types.FieldDescriptor{
				field("A", 4, 1, 4),
				field("B", 4, 3, 6),
				field("C", -1, 9, 7),
				field("D", 3, 0, 2),
			},
			violations: 4,
		},
		{
			name:       "empty",
			violations: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := v.ValidateDictionary(&types.Schema{Vintage: "test.dct", Fields: tt.fields})
			if len(r.Warnings) != tt.warnings {
				t.Errorf("warnings = %d, want %d: %v", len(r.Warnings), tt.warnings, r.Warnings)
			}
			if len(r.Violations) != tt.violations {
				t.Errorf("violations = %d, want %d: %v", len(r.Violations), tt.violations, r.Violations)
			}
			if tt.violations > 0 && errors.GetCode(r.Err()) != errors.CodeIntegrityViolation {
				t.Errorf("Err() code = %s", errors.GetCode(r.Err()))
			}
		})
	}
}

func TestWriteWorkbook(t *testing.T) {
	schemas := []*types.Schema{
		contiguousSchema([]int{15, 2}),
		{Vintage: "cps_dict_199801", Fields: []types.FieldDescriptor{field("HRHHID", 15, 1, 15)}},
	}

	var buf bytes.Buffer
	if err := WriteWorkbook(&buf, schemas); err != nil {
		t.Fatalf("WriteWorkbook() error: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Error("workbook should be a zip container")
	}
	if err := WriteWorkbook(&buf, nil); err == nil {
		t.Error("expected error for empty export")
	}
}

func TestFingerprint(t *testing.T) {
	a := contiguousSchema([]int{2, 3, 4})
	b := a.Clone()
	b.Fields[0].Description = "different text"
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("descriptions must not affect the fingerprint")
	}
	b.Fields[1].EndPos++
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("positions must affect the fingerprint")
	}
}
