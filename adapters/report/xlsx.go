package report

import (
	"github.com/xuri/excelize/v2"
)

// WriteWorkbook writes all tables to one xlsx workbook, one sheet per table.
// The workbook duplicates the TSV output for users who inspect results in a
// spreadsheet.
func WriteWorkbook(path string, tables ...Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := t.Name
		if i == 0 {
			// Reuse the default sheet rather than leaving an empty Sheet1.
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return err
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return err
			}
		}

		for c, h := range t.Headers {
			cell, _ := excelize.CoordinatesToCellName(c+1, 1)
			if err := f.SetCellValue(sheet, cell, h); err != nil {
				return err
			}
		}
		for r, row := range t.Rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
				if err := f.SetCellValue(sheet, cell, v); err != nil {
					return err
				}
			}
		}
	}
	return f.SaveAs(path)
}
