package source

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

func firstNames(snap *snapshot.Snapshot) []string {
	var out []string
	for _, r := range snap.Rows() {
		out = append(out, r.Get("FirstName"))
	}
	return out
}

func newSQLiteExport(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "legacy.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	stmts := []string{
		`CREATE TABLE individuals (IndividualId INTEGER, HouseholdId INTEGER, FirstName TEXT, DateOfBirth TEXT, Amount REAL)`,
		`INSERT INTO individuals VALUES (1001, 42, 'Ruth', '1980-05-01', 12.5)`,
		`INSERT INTO individuals VALUES (1002, 42, 'Boaz', NULL, NULL)`,
		`CREATE TABLE "Group Members" (GroupId INTEGER, IndividualId INTEGER)`,
		`INSERT INTO "Group Members" VALUES (7, 1001)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return path
}

func TestSQLite_Execute(t *testing.T) {
	src, err := OpenSQLite(newSQLiteExport(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()
	ctx := context.Background()

	snap, err := src.Execute(ctx, Query{Name: TableIndividuals})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if diff := cmp.Diff([]string{"Ruth", "Boaz"}, firstNames(snap)); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}
	if got := snap.Row(0).Get("Amount"); got != "12.5" {
		t.Errorf("Amount = %q", got)
	}
	if !snap.Row(1).Blank("DateOfBirth") {
		t.Errorf("NULL should read as blank, got %q", snap.Row(1).Get("DateOfBirth"))
	}

	members, err := src.Execute(ctx, Query{Name: TableGroupMembers, Table: "Group Members"})
	if err != nil {
		t.Fatalf("execute quoted table: %v", err)
	}
	if members.Name() != TableGroupMembers || members.Len() != 1 {
		t.Errorf("members %q len %d", members.Name(), members.Len())
	}

	custom, err := src.Execute(ctx, Query{
		Name:    TableIndividuals,
		SQL:     "SELECT IndividualId, FirstName FROM individuals WHERE HouseholdId = 42 ORDER BY IndividualId DESC",
		Columns: []string{"FirstName", "Gender"},
	})
	if err != nil {
		t.Fatalf("execute custom: %v", err)
	}
	if diff := cmp.Diff([]string{"FirstName", "Gender"}, custom.Columns()); diff != "" {
		t.Errorf("projected columns (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Boaz", "Ruth"}, firstNames(custom)); diff != "" {
		t.Errorf("custom order (-want +got):\n%s", diff)
	}

	if _, err := src.Execute(ctx, Query{Name: TablePledges}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("missing table err = %v, want ErrUnknownTable", err)
	}
}

func TestOpenSQLite_MissingFile(t *testing.T) {
	if _, err := OpenSQLite(filepath.Join(t.TempDir(), "nope.db")); err == nil {
		t.Fatal("want error for missing database file")
	}
}

func TestCSVDir_Execute(t *testing.T) {
	fs := afero.NewMemMapFs()
	_ = afero.WriteFile(fs, "/export/Individuals.CSV", []byte("IndividualId|FirstName\n1001|Ruth\n"), 0o644)
	_ = afero.WriteFile(fs, "/export/readme.txt", []byte("ignored"), 0o644)

	src, err := NewCSVDir(fs, "/export", config.CSVSettings{Delimiter: "|", HeaderRows: 1, DataStartRow: 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	snap, err := src.Execute(context.Background(), Query{Name: TableIndividuals})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if diff := cmp.Diff([]string{"Ruth"}, firstNames(snap)); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	if _, err := src.Execute(context.Background(), Query{Name: "readme"}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("non-csv file err = %v, want ErrUnknownTable", err)
	}
}

func TestXLSX_Execute(t *testing.T) {
	f := excelize.NewFile()
	_ = f.SetSheetName("Sheet1", "people")
	_ = f.SetSheetRow("people", "A1", &[]any{"IndividualId", "FirstName"})
	_ = f.SetSheetRow("people", "A2", &[]any{1001, "Ruth"})
	path := filepath.Join(t.TempDir(), "export.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = f.Close()

	src, err := Open(config.SourceConfig{Kind: config.SourceXLSX, Path: path, Tables: map[string]string{TableIndividuals: "People"}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer src.Close()

	cfg := config.SourceConfig{Tables: map[string]string{TableIndividuals: "People"}}
	snap, err := src.Execute(context.Background(), QueryFor(cfg, TableIndividuals))
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if snap.Name() != TableIndividuals {
		t.Errorf("name = %q", snap.Name())
	}
	if diff := cmp.Diff([]string{"Ruth"}, firstNames(snap)); diff != "" {
		t.Errorf("names (-want +got):\n%s", diff)
	}

	if _, err := src.Execute(context.Background(), Query{Name: TableNotes}); !errors.Is(err, ErrUnknownTable) {
		t.Errorf("missing sheet err = %v, want ErrUnknownTable", err)
	}
}

func TestMemory_FreshSnapshots(t *testing.T) {
	m := NewMemory().Add(TableIndividuals, []string{"FirstName"}, []string{"Ruth"})
	ctx := context.Background()

	first, _ := m.Execute(ctx, Query{Name: TableIndividuals})
	first.Release()

	second, err := m.Execute(ctx, Query{Name: TableIndividuals})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if second.Len() != 1 {
		t.Errorf("second snapshot len = %d, want 1 after releasing the first", second.Len())
	}
	if m.Executed(TableIndividuals) != 2 {
		t.Errorf("executed = %d", m.Executed(TableIndividuals))
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := m.Execute(cancelled, Query{Name: TableIndividuals}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled err = %v", err)
	}
}
