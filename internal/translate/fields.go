package translate

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// fields reads typed cells from one row and turns every malformed cell into
// a Warning instead of an error.
type fields struct {
	row      snapshot.Row
	warnings []Warning
}

func read(row snapshot.Row) *fields {
	return &fields{row: row}
}

func (f *fields) warn(field, format string, args ...any) {
	f.warnings = append(f.warnings, Warning{
		Row:     f.row.Number,
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	})
}

func (f *fields) str(col string) string {
	return f.row.Get(col)
}

// intPtr returns nil for blank and malformed cells.
func (f *fields) intPtr(col string) *int {
	v, present, err := f.row.Int(col)
	if err != nil {
		f.warn(col, "%v", err)
		return nil
	}
	if !present {
		return nil
	}
	return &v
}

func (f *fields) boolOr(col string, def bool) bool {
	v, present, err := f.row.Bool(col)
	if err != nil {
		f.warn(col, "%v", err)
		return def
	}
	if !present {
		return def
	}
	return v
}

func (f *fields) timePtr(col string) *time.Time {
	v, present, err := f.row.Time(col)
	if err != nil {
		f.warn(col, "%v", err)
		return nil
	}
	if !present {
		return nil
	}
	return &v
}

func (f *fields) amount(col string) decimal.Decimal {
	v, present, err := f.row.Decimal(col)
	if err != nil {
		f.warn(col, "%v", err)
		return decimal.Zero
	}
	if !present {
		f.warn(col, "missing amount")
	}
	return v
}
