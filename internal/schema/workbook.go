package schema

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/cpsdecode/cpsdecode/pkg/types"
)

// maxSheetName is the longest sheet name a workbook accepts.
const maxSheetName = 31

// WriteWorkbook writes one sheet per schema, named after its vintage, with
// the same columns as the CSV table export.
func WriteWorkbook(w io.Writer, schemas []*types.Schema) error {
	if len(schemas) == 0 {
		return fmt.Errorf("schema: no schemas to export")
	}

	f := excelize.NewFile()
	defer f.Close()

	style, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})

	defaultSheet := f.GetSheetName(0)
	for i, s := range schemas {
		sheet := sheetName(s)
		if i == 0 {
			if err := f.SetSheetName(defaultSheet, sheet); err != nil {
				return fmt.Errorf("schema: rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("schema: add sheet %s: %w", sheet, err)
		}

		for col, name := range TableHeader {
			cell, _ := excelize.CoordinatesToCellName(col+1, 1)
			f.SetCellValue(sheet, cell, name)
			f.SetCellStyle(sheet, cell, cell, style)
		}

		for row, field := range s.Fields {
			values := []interface{}{field.Name, field.Length, field.Description, field.StartPos, field.EndPos}
			for col, v := range values {
				cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
				f.SetCellValue(sheet, cell, v)
			}
		}

		f.SetColWidth(sheet, "A", "A", 14)
		f.SetColWidth(sheet, "C", "C", 48)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("schema: write workbook: %w", err)
	}
	return nil
}

func sheetName(s *types.Schema) string {
	name := s.Vintage
	if name == "" {
		name = s.EffectiveDate.String()
	}
	if len(name) > maxSheetName {
		name = name[len(name)-maxSheetName:]
	}
	return name
}
