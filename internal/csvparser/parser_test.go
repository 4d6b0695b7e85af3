package csvparser

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/config"
)

func settings(delim string, headerRows, dataStart int, enc string) config.CSVSettings {
	return config.CSVSettings{Delimiter: delim, HeaderRows: headerRows, DataStartRow: dataStart, Encoding: enc}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		settings    config.CSVSettings
		wantHeaders []string
		wantRecords [][]string
	}{
		{
			name:        "comma with blank row and short row",
			input:       "IndividualId,FirstName,LastName\n1001, Ruth ,Moab\n\n1002,Boaz\n",
			settings:    settings(",", 1, 2, "UTF-8"),
			wantHeaders: []string{"IndividualId", "FirstName", "LastName"},
			wantRecords: [][]string{{"1001", "Ruth", "Moab"}, {"1002", "Boaz", ""}},
		},
		{
			name:        "pipe with two header rows",
			input:       "Individual|Household|\nId|Id|Note\n1|42|hi\n",
			settings:    settings("pipe", 2, 3, "UTF-8"),
			wantHeaders: []string{"IndividualId", "HouseholdId", "Note"},
			wantRecords: [][]string{{"1", "42", "hi"}},
		},
		{
			name:        "metadata row before data",
			input:       "GroupId\tGroupName\nexported 2021-03-07\n7\tChoir\n",
			settings:    settings("tab", 1, 3, "UTF-8"),
			wantHeaders: []string{"GroupId", "GroupName"},
			wantRecords: [][]string{{"7", "Choir"}},
		},
		{
			name:        "blank header and BOM",
			input:       "\ufeffFundName,,Amount\nGeneral,x,10.00\n",
			settings:    settings(",", 1, 2, ""),
			wantHeaders: []string{"FundName", "Column_2", "Amount"},
			wantRecords: [][]string{{"General", "x", "10.00"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Parse(strings.NewReader(tt.input), tt.settings)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(tt.wantHeaders, data.Headers); diff != "" {
				t.Errorf("headers (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantRecords, data.Records); diff != "" {
				t.Errorf("records (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParse_Windows1252(t *testing.T) {
	// "José" with é as 0xE9.
	input := "FirstName\nJos\xe9\n"

	data, err := Parse(strings.NewReader(input), settings(",", 1, 2, "Windows-1252"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got := data.Records[0][0]; got != "José" {
		t.Errorf("FirstName = %q, want José", got)
	}
}

func TestParse_Errors(t *testing.T) {
	if _, err := Parse(strings.NewReader(""), settings(",", 1, 2, "UTF-8")); err == nil {
		t.Error("empty input: want error")
	}
	if _, err := Parse(strings.NewReader("a\n"), settings(",", 1, 2, "EBCDIC")); err == nil {
		t.Error("unknown encoding: want error")
	}
	if _, err := Parse(strings.NewReader("a\n"), settings(",", 3, 4, "UTF-8")); err == nil {
		t.Error("too few header rows: want error")
	}
}

func TestParseFile_Snapshot(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/export/individuals.csv", []byte("IndividualId,HouseholdId\n1001,42\n1002,42\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	data, err := ParseFile(fs, "/export/individuals.csv", settings(",", 1, 2, "UTF-8"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	snap := data.Snapshot("individuals")

	if snap.Name() != "individuals" || snap.Len() != 2 {
		t.Fatalf("snapshot %q has %d rows", snap.Name(), snap.Len())
	}
	if got := snap.Index("HouseholdId").Lookup("42"); len(got) != 2 {
		t.Errorf("household 42 rows = %d, want 2", len(got))
	}

	if _, err := ParseFile(fs, "/export/missing.csv", settings(",", 1, 2, "UTF-8")); err == nil {
		t.Error("missing file: want error")
	}
}
