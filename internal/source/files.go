package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/csvparser"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/xlsxparser"
)

// =============================================================================
// CSV DIRECTORY
// =============================================================================

// CSVDir reads <table>.csv files from one directory. File names are matched
// case-insensitively.
type CSVDir struct {
	fs       afero.Fs
	dir      string
	settings config.CSVSettings
	files    map[string]string // lower-cased stem -> file name
}

// NewCSVDir lists dir once and returns the source.
func NewCSVDir(fs afero.Fs, dir string, settings config.CSVSettings) (*CSVDir, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read export directory: %w", err)
	}

	files := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if !strings.EqualFold(ext, ".csv") {
			continue
		}
		stem := strings.ToLower(strings.TrimSuffix(e.Name(), ext))
		files[stem] = e.Name()
	}
	return &CSVDir{fs: fs, dir: dir, settings: settings, files: files}, nil
}

// Execute parses the table's file.
func (c *CSVDir) Execute(ctx context.Context, q Query) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, ok := c.files[strings.ToLower(q.table())]
	if !ok {
		return nil, fmt.Errorf("%w: no %s.csv in %s", ErrUnknownTable, q.table(), c.dir)
	}

	data, err := csvparser.ParseFile(c.fs, filepath.Join(c.dir, name), c.settings)
	if err != nil {
		return nil, err
	}
	return project(data.Snapshot(q.Name), q), nil
}

// Close is a no-op; files are closed after each Execute.
func (c *CSVDir) Close() error { return nil }

// =============================================================================
// XLSX WORKBOOK
// =============================================================================

// XLSX reads one sheet per table from a workbook.
type XLSX struct {
	wb *xlsxparser.Workbook
}

// OpenXLSX opens the workbook at path.
func OpenXLSX(path string) (*XLSX, error) {
	wb, err := xlsxparser.Open(path)
	if err != nil {
		return nil, err
	}
	return &XLSX{wb: wb}, nil
}

// Execute reads the table's sheet.
func (x *XLSX) Execute(ctx context.Context, q Query) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap, err := x.wb.Table(q.table(), q.Name)
	if err != nil {
		if errors.Is(err, xlsxparser.ErrNoSheet) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownTable, err)
		}
		return nil, err
	}
	return project(snap, q), nil
}

// Close closes the workbook.
func (x *XLSX) Close() error {
	return x.wb.Close()
}
