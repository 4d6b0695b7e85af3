// =============================================================================
// chms-migrate - CSV Package Writer
// =============================================================================
//
// Writes one CSV file per record kind into a package directory. Files are
// opened the first time a kind is written and stream from then on.
//
// FLATTENING:
//   - Scalar fields become columns named after their json tag
//   - Nil pointers and zero times are blank cells
//   - []string fields are joined with "|"
//   - Slices of structs go to a file of their own, one row per element,
//     keyed by the parent's id:
//
//       Person.Addresses           → PersonAddresses.csv (PersonId, ...)
//       FinancialTransaction.Details → FinancialTransactionDetail.csv
//
//     Details already carry TransactionId and get no extra key column.
//
// =============================================================================

package csvwriter

import (
	"encoding/csv"
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// TimeLayout is how dates and timestamps are rendered.
const TimeLayout = "2006-01-02T15:04:05"

// ListSeparator joins []string cells.
const ListSeparator = "|"

// nestedFiles overrides the file and key column of nested slices.
var nestedFiles = map[string]struct {
	file      string
	keyColumn string
}{
	"Details": {file: string(types.KindFinancialTransactionDetail)},
}

// =============================================================================
// WRITER
// =============================================================================

type file struct {
	handle  afero.File
	csv     *csv.Writer
	columns []string
	rows    int
}

// Writer writes records to a directory of CSV files. It implements
// types.Writer; Close must be called to flush the files.
type Writer struct {
	fs    afero.Fs
	dir   string
	files map[string]*file
	order []string
}

// NewWriter creates dir on fs and returns a writer into it.
func NewWriter(fs afero.Fs, dir string) (*Writer, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create package directory: %w", err)
	}
	return &Writer{fs: fs, dir: dir, files: make(map[string]*file)}, nil
}

// Write flattens r into its kind's file and any nested files.
func (w *Writer) Write(r types.Record) error {
	v := reflect.ValueOf(r)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("csv writer: %s is not a struct", r.Kind())
	}

	kind := string(r.Kind())
	columns, cells, nested := flatten(v)
	if err := w.writeRow(kind, columns, cells); err != nil {
		return err
	}

	parentID := strconv.Itoa(r.RecordID())
	for _, n := range nested {
		name, key := kind+n.field, kind+"Id"
		if o, ok := nestedFiles[n.field]; ok {
			name, key = o.file, o.keyColumn
		}
		for i := 0; i < n.items.Len(); i++ {
			item := n.items.Index(i)
			if item.Kind() == reflect.Pointer {
				item = item.Elem()
			}
			childCols, childCells, _ := flatten(item)
			if key != "" {
				childCols = append([]string{key}, childCols...)
				childCells = append([]string{parentID}, childCells...)
			}
			if err := w.writeRow(name, childCols, childCells); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) writeRow(name string, columns, cells []string) error {
	f, err := w.file(name, columns)
	if err != nil {
		return err
	}
	if err := f.csv.Write(cells); err != nil {
		return fmt.Errorf("write %s row: %w", name, err)
	}
	f.rows++
	return nil
}

// file returns the open file for name, creating it with its header row.
func (w *Writer) file(name string, columns []string) (*file, error) {
	if f, ok := w.files[name]; ok {
		return f, nil
	}
	path := filepath.Join(w.dir, name+".csv")
	handle, err := w.fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	f := &file{handle: handle, csv: csv.NewWriter(handle), columns: columns}
	if err := f.csv.Write(columns); err != nil {
		_ = handle.Close()
		return nil, fmt.Errorf("write %s header: %w", name, err)
	}
	w.files[name] = f
	w.order = append(w.order, name)
	return f, nil
}

// Files returns the file names written so far, in creation order.
func (w *Writer) Files() []string {
	out := make([]string, len(w.order))
	for i, name := range w.order {
		out[i] = name + ".csv"
	}
	return out
}

// Rows returns the data rows written per file name.
func (w *Writer) Rows() map[string]int {
	out := make(map[string]int, len(w.files))
	for name, f := range w.files {
		out[name+".csv"] = f.rows
	}
	return out
}

// Close flushes and closes every file.
func (w *Writer) Close() error {
	var errs []error
	for _, name := range w.order {
		f := w.files[name]
		f.csv.Flush()
		if err := f.csv.Error(); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", name, err))
		}
		if err := f.handle.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	w.files = make(map[string]*file)
	w.order = nil
	return errors.Join(errs...)
}

// =============================================================================
// FLATTENING
// =============================================================================

var (
	timeType    = reflect.TypeOf(time.Time{})
	decimalType = reflect.TypeOf(decimal.Decimal{})
)

type nestedSlice struct {
	field string
	items reflect.Value
}

// flatten returns the columns and cells of a struct value and its nested
// struct slices.
func flatten(v reflect.Value) (columns, cells []string, nested []nestedSlice) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = field.Name
		}

		fv := v.Field(i)
		if fv.Kind() == reflect.Slice {
			elem := fv.Type().Elem()
			if elem.Kind() == reflect.Pointer {
				elem = elem.Elem()
			}
			if elem.Kind() == reflect.Struct && elem != timeType && elem != decimalType {
				nested = append(nested, nestedSlice{field: field.Name, items: fv})
				continue
			}
		}
		columns = append(columns, name)
		cells = append(cells, cell(fv))
	}
	return columns, cells, nested
}

// cell renders one field value.
func cell(v reflect.Value) string {
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}
	switch v.Type() {
	case timeType:
		t := v.Interface().(time.Time)
		if t.IsZero() {
			return ""
		}
		return t.Format(TimeLayout)
	case decimalType:
		return v.Interface().(decimal.Decimal).StringFixed(2)
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Slice:
		parts := make([]string, v.Len())
		for i := range parts {
			parts[i] = cell(v.Index(i))
		}
		return strings.Join(parts, ListSeparator)
	default:
		return fmt.Sprint(v.Interface())
	}
}
