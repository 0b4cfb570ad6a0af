// Package spreadsheet writes extracted text into XLSX workbooks with excelize.
package spreadsheet

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	// SheetName is the single worksheet of a text workbook
	SheetName = "Extracted Text"

	// defaultSheet is the sheet excelize creates in a new workbook
	defaultSheet = "Sheet1"

	columnWidth = 80
)

// WorkbookError represents errors related to workbook operations
type WorkbookError struct {
	Operation string
	Cause     error
}

func (e *WorkbookError) Error() string {
	return fmt.Sprintf("workbook error during %s: %v", e.Operation, e.Cause)
}

func (e *WorkbookError) Unwrap() error {
	return e.Cause
}

// DataError represents errors writing a specific cell
type DataError struct {
	Location string
	Cause    error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error at %s: %v", e.Location, e.Cause)
}

func (e *DataError) Unwrap() error {
	return e.Cause
}

// FromLines writes a workbook with a single sheet holding one line per row in column A.
// Lines are stored as strings; cells longer than the XLSX limit are truncated by excelize.
func FromLines(lines []string, w io.Writer) error {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName(defaultSheet, SheetName); err != nil {
		return &WorkbookError{Operation: "rename sheet", Cause: err}
	}
	if err := f.SetColWidth(SheetName, "A", "A", columnWidth); err != nil {
		return &WorkbookError{Operation: "set column width", Cause: err}
	}

	for i, line := range lines {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return &DataError{Location: fmt.Sprintf("row %d", i+1), Cause: err}
		}
		if err := f.SetCellStr(SheetName, cell, line); err != nil {
			return &DataError{Location: cell, Cause: err}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return &WorkbookError{Operation: "write", Cause: err}
	}
	return nil
}
