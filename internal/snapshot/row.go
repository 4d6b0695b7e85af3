package snapshot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is a read-only view of one snapshot row.
//
// Every typed accessor follows the same contract:
//   - (zero, false, nil)   the column is missing or the cell is blank
//   - (value, true, nil)   the cell parsed
//   - (zero, true, err)    the cell is present but malformed
//
// Blank is never an error. Translators decide whether a missing value matters.
type Row struct {
	hdr   *header
	cells []string

	// Number is the 1-based position of the row in its snapshot.
	Number int
}

// Get returns the trimmed cell value, or "" when the column is absent.
func (r Row) Get(column string) string {
	if r.hdr == nil {
		return ""
	}
	p, ok := r.hdr.position(column)
	if !ok || p >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[p])
}

// Has reports whether the row's snapshot carries the column.
func (r Row) Has(column string) bool {
	if r.hdr == nil {
		return false
	}
	_, ok := r.hdr.position(column)
	return ok
}

// Blank reports whether the cell is missing or whitespace.
func (r Row) Blank(column string) bool {
	return r.Get(column) == ""
}

// String returns the trimmed cell and whether it is non-blank.
func (r Row) String(column string) (string, bool) {
	v := r.Get(column)
	return v, v != ""
}

// Int parses the cell as an integer. Integral decimals such as "42.0"
// (common in sqlite and spreadsheet exports) are accepted.
func (r Row) Int(column string) (int, bool, error) {
	v := r.Get(column)
	if v == "" {
		return 0, false, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n, true, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32*2 {
		return 0, true, fmt.Errorf("%s: %q is not an integer", column, v)
	}
	return int(f), true, nil
}

// Bool parses the cell as a flag. Access-style "-1" counts as true.
func (r Row) Bool(column string) (bool, bool, error) {
	v := r.Get(column)
	if v == "" {
		return false, false, nil
	}
	switch strings.ToLower(v) {
	case "1", "-1", "true", "t", "yes", "y":
		return true, true, nil
	case "0", "false", "f", "no", "n":
		return false, true, nil
	}
	return false, true, fmt.Errorf("%s: %q is not a boolean", column, v)
}

// timeLayouts are tried in order. Legacy exports mix ISO and US formats.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04",
	"01/02/2006",
	"1/2/2006",
	"1/2/06 15:04",
	"1/2/06",
	"20060102",
}

// ParseTime parses a legacy date/time string using the known layouts.
func ParseTime(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognized date", v)
}

// Time parses the cell as a date or timestamp.
func (r Row) Time(column string) (time.Time, bool, error) {
	v := r.Get(column)
	if v == "" {
		return time.Time{}, false, nil
	}
	t, err := ParseTime(v)
	if err != nil {
		return time.Time{}, true, fmt.Errorf("%s: %w", column, err)
	}
	return t, true, nil
}

// Decimal parses the cell as a money amount. Currency symbols and thousands
// separators are stripped first.
func (r Row) Decimal(column string) (decimal.Decimal, bool, error) {
	v := r.Get(column)
	if v == "" {
		return decimal.Zero, false, nil
	}
	cleaned := strings.NewReplacer("$", "", ",", "", " ", "").Replace(v)
	negative := strings.HasPrefix(cleaned, "(") && strings.HasSuffix(cleaned, ")")
	cleaned = strings.Trim(cleaned, "()")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("%s: %q is not an amount", column, v)
	}
	if negative {
		d = d.Neg()
	}
	return d, true, nil
}

// Values returns the row as a column → value map. Intended for logging.
func (r Row) Values() map[string]string {
	out := make(map[string]string)
	if r.hdr == nil {
		return out
	}
	for i, col := range r.hdr.columns {
		if i < len(r.cells) {
			out[col] = strings.TrimSpace(r.cells[i])
		} else {
			out[col] = ""
		}
	}
	return out
}
