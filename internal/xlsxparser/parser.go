// =============================================================================
// chms-migrate - XLSX Workbook Parser
// =============================================================================
//
// This module reads a legacy export delivered as one workbook with one sheet
// per table. The first row of each sheet holds the column headers.
//
// WORKBOOK STRUCTURE:
//
//	Sheet "individuals":
//	| IndividualId | HouseholdId | FamilyPosition | FirstName | ... |
//	| 1001         | 42          | Head           | Ruth      | ... |
//
//	Sheet "contributions":
//	| ContributionId | FundName | SubFundName | Amount | ... |
//
// Sheets whose names start with "_" are ignored (notes, pivot tables).
// Sheet names are matched case-insensitively.
//
// =============================================================================

package xlsxparser

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// ErrNoSheet is returned by Table when the workbook has no such sheet.
var ErrNoSheet = errors.New("no such sheet")

// Workbook is an open export workbook.
type Workbook struct {
	file   *excelize.File
	path   string
	sheets map[string]string // lower-cased name -> sheet name
}

// Open opens the workbook at path.
func Open(path string) (*Workbook, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	return newWorkbook(f, path), nil
}

// OpenReader reads a workbook from r.
func OpenReader(r io.Reader) (*Workbook, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook: %w", err)
	}
	return newWorkbook(f, ""), nil
}

func newWorkbook(f *excelize.File, path string) *Workbook {
	wb := &Workbook{file: f, path: path, sheets: make(map[string]string)}
	for _, name := range f.GetSheetList() {
		if strings.HasPrefix(name, "_") {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, dup := wb.sheets[key]; !dup {
			wb.sheets[key] = name
		}
	}
	return wb
}

// Sheets returns the table sheets in workbook order.
func (wb *Workbook) Sheets() []string {
	var out []string
	for _, name := range wb.file.GetSheetList() {
		if !strings.HasPrefix(name, "_") {
			out = append(out, name)
		}
	}
	return out
}

// HasSheet reports whether the workbook has a sheet for the table.
func (wb *Workbook) HasSheet(table string) bool {
	_, ok := wb.sheets[strings.ToLower(strings.TrimSpace(table))]
	return ok
}

// Table reads the sheet for table into a snapshot named name.
//
// RETURNS:
//   - The snapshot; a sheet with only a header row yields an empty one.
//   - An error wrapping ErrNoSheet when the sheet is missing.
func (wb *Workbook) Table(table, name string) (*snapshot.Snapshot, error) {
	sheet, ok := wb.sheets[strings.ToLower(strings.TrimSpace(table))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoSheet, table)
	}

	rows, err := wb.file.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows of sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}

	headers := cleanHeaders(rows[0])
	data := make([][]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if isRowEmpty(row) {
			continue
		}
		cells := make([]string, len(headers))
		for i := range headers {
			if i < len(row) {
				cells[i] = strings.TrimSpace(row[i])
			}
		}
		data = append(data, cells)
	}
	return snapshot.New(name, headers, data), nil
}

// Close releases the workbook.
func (wb *Workbook) Close() error {
	return wb.file.Close()
}

// cleanHeaders removes inner spaces and names blank headers Column_N.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, h := range headers {
		h = strings.Join(strings.Fields(h), "")
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = h
	}
	return cleaned
}

// isRowEmpty checks if a row contains only empty cells.
func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
