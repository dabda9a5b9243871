package dataset

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

// DefaultSheet is the worksheet name used when writing workbooks.
const DefaultSheet = "Sheet1"

// WriteXLSX writes the table to a new workbook at path. Numeric columns are
// stored as numbers and missing cells are left empty.
func WriteXLSX(t *Table, path, sheet string) error {
	if sheet == "" {
		sheet = DefaultSheet
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open stream writer: %w", err)
	}

	header := make([]interface{}, t.Width())
	for i, name := range t.Names() {
		header[i] = name
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r := range t.Rows() {
		values := make([]interface{}, t.Width())
		for c, col := range t.columns {
			values[c] = cellValue(col, r)
		}
		axis, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, values); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func cellValue(col *Column, r int) interface{} {
	cell := col.cells[r]
	if cell.Missing() {
		return nil
	}
	switch col.typ {
	case TypeInteger:
		return int64(cell.Num)
	case TypeFloat:
		return cell.Num
	default:
		return cell.Text
	}
}
