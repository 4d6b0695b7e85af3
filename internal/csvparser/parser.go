// =============================================================================
// chms-migrate - CSV Parser Module
// =============================================================================
//
// This module parses one CSV export of a legacy table into a snapshot. It
// handles the variations seen in church-management exports:
//   - Different delimiters (comma, pipe, tab, semicolon)
//   - Multi-line headers
//   - Metadata rows before the data
//   - Windows-1252 and ISO-8859-1 files, and UTF-8 with or without a BOM
//
// =============================================================================

package csvparser

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// CSVData is one parsed file.
type CSVData struct {
	// Headers are the merged column headers.
	Headers []string

	// Records holds the data rows, each padded or cut to len(Headers).
	Records [][]string

	// SourceFile is the path the data was read from.
	SourceFile string
}

// Snapshot converts the data into a snapshot named name.
func (d *CSVData) Snapshot(name string) *snapshot.Snapshot {
	return snapshot.New(name, d.Headers, d.Records)
}

// ParseFile opens a CSV file on fs and parses it.
func ParseFile(fs afero.Fs, path string, settings config.CSVSettings) (*CSVData, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	data, err := Parse(file, settings)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	data.SourceFile = path
	return data, nil
}

// Parse decodes r to UTF-8, merges the header rows and returns the data rows
// from settings.DataStartRow on.
func Parse(r io.Reader, settings config.CSVSettings) (*CSVData, error) {
	dec, err := decoder(settings.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(bufio.NewReader(transform.NewReader(r, dec)))
	reader.Comma = delimiter(settings.Delimiter)
	// Exports are not consistent about trailing empty columns.
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	headers, err := mergeHeaders(rows, settings.HeaderRows)
	if err != nil {
		return nil, err
	}
	return &CSVData{
		Headers: headers,
		Records: dataRows(rows, len(headers), settings),
	}, nil
}

// decoder returns the decoder for a configured encoding name. UTF-8 input
// has its byte order mark stripped.
func decoder(name string) (transform.Transformer, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.BOMOverride(unicode.UTF8.NewDecoder()), nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252.NewDecoder(), nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "ISO-8859-15":
		return charmap.ISO8859_15.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// delimiter maps the configured delimiter name to the field separator.
func delimiter(name string) rune {
	switch strings.ToLower(name) {
	case "", ",", "comma":
		return ','
	case "\\t", "\t", "tab":
		return '\t'
	case "|", "pipe":
		return '|'
	case ";", "semicolon":
		return ';'
	}
	r, _ := utf8.DecodeRuneInString(name)
	return r
}

// mergeHeaders folds the first n rows into one header per column. Cells are
// stacked top to bottom and their words run together, so a two-row header
//
//	"Individual", "",     "Date Of"
//	"Id",         "Name", "Birth"
//
// becomes IndividualId, Name, DateOfBirth. A column with no header text is
// named Column_N.
func mergeHeaders(rows [][]string, n int) ([]string, error) {
	if n < 1 {
		return nil, fmt.Errorf("header_rows must be at least 1")
	}
	if len(rows) < n {
		return nil, fmt.Errorf("file has %d rows, fewer than the %d header rows", len(rows), n)
	}

	width := 0
	for _, row := range rows[:n] {
		width = max(width, len(row))
	}
	headers := make([]string, width)
	for col := range headers {
		var b strings.Builder
		for _, row := range rows[:n] {
			if col < len(row) {
				for _, word := range strings.Fields(row[col]) {
					b.WriteString(word)
				}
			}
		}
		headers[col] = b.String()
		if headers[col] == "" {
			headers[col] = fmt.Sprintf("Column_%d", col+1)
		}
	}
	return headers, nil
}

// dataRows returns the rows from the 1-based start row on, trimmed and cut
// or padded to width. Blank rows are skipped.
func dataRows(rows [][]string, width int, settings config.CSVSettings) [][]string {
	start := max(settings.DataStartRow-1, settings.HeaderRows)
	out := [][]string{}
	for i := start; i < len(rows); i++ {
		row := rows[i]
		blank := !slices.ContainsFunc(row, func(cell string) bool {
			return strings.TrimSpace(cell) != ""
		})
		if blank {
			continue
		}
		values := make([]string, width)
		for col := 0; col < width && col < len(row); col++ {
			values[col] = strings.TrimSpace(row[col])
		}
		out = append(out, values)
	}
	return out
}
