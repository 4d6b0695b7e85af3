package utils

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func fixedManager(fs afero.Fs) *PackageManager {
	pm := NewPackageManager(fs, "/out")
	pm.Now = func() time.Time { return time.Date(2024, 1, 15, 14, 30, 22, 0, time.UTC) }
	return pm
}

func TestPackageName(t *testing.T) {
	pm := fixedManager(afero.NewMemMapFs())

	tests := []struct {
		format string
		params map[string]string
		want   string
	}{
		{format: "chms_{timestamp}", want: "chms_20240115_143022"},
		{format: "{source}-{date}-{time}", params: map[string]string{"source": "fellowship"}, want: "fellowship-20240115-143022"},
		{format: "a/b\\c", want: "a_b_c"},
		{format: "  ", want: "chms_20240115_143022"},
	}
	for _, tt := range tests {
		if got := pm.PackageName(tt.format, tt.params); got != tt.want {
			t.Errorf("PackageName(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}

	a, b := pm.PackageName("{uuid}", nil), pm.PackageName("{uuid}", nil)
	if len(a) != 36 || a == b {
		t.Errorf("uuid names = %q, %q", a, b)
	}
}

func TestCreatePackageDir(t *testing.T) {
	fs := afero.NewMemMapFs()
	pm := fixedManager(fs)

	dir, err := pm.CreatePackageDir("chms_1")
	if err != nil {
		t.Fatalf("CreatePackageDir: %v", err)
	}
	if ok, _ := afero.DirExists(fs, dir); !ok {
		t.Errorf("%s not created", dir)
	}
	if _, err := pm.CreatePackageDir("chms_1"); err == nil {
		t.Error("existing package directory was reused")
	}
}

func TestZipPackage(t *testing.T) {
	fs := afero.NewMemMapFs()
	pm := fixedManager(fs)
	files := map[string]string{
		"/out/pkg/Person.csv":          "Id\n1\n",
		"/out/pkg/interchange.xml":     "<Interchange/>\n",
		"/out/pkg/nested/warnings.log": "none\n",
	}
	for path, body := range files {
		if err := afero.WriteFile(fs, path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	zipPath, err := pm.ZipPackage("/out/pkg/")
	if err != nil {
		t.Fatalf("ZipPackage: %v", err)
	}
	if zipPath != "/out/pkg.zip" {
		t.Errorf("zip path = %q", zipPath)
	}

	data, err := afero.ReadFile(fs, zipPath)
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip does not open: %v", err)
	}
	got := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		got[f.Name] = string(body)
	}
	want := map[string]string{
		"Person.csv":          "Id\n1\n",
		"interchange.xml":     "<Interchange/>\n",
		"nested/warnings.log": "none\n",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("zip entries (-want +got):\n%s", diff)
	}
}

func TestWarningLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	log, err := NewWarningLog(fs, "/out/pkg/warnings.log")
	if err != nil {
		t.Fatalf("NewWarningLog: %v", err)
	}
	entries := []WarningLogEntry{
		{Stage: "Individuals", Table: "individuals", Row: 4, Field: "Gender", Message: `unmapped value "X"`},
		{Stage: "Notes", Table: "notes", Row: 2, Message: "household 999 has no members"},
	}
	for _, e := range entries {
		if err := log.Add(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := log.Close(); err != nil {
		t.Fatal(err)
	}
	if log.Count() != 2 {
		t.Errorf("Count = %d", log.Count())
	}

	data, _ := afero.ReadFile(fs, "/out/pkg/warnings.log")
	want := "[Individuals] individuals row 4, Gender: unmapped value \"X\"\n" +
		"[Notes] notes row 2: household 999 has no members\n"
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("log (-want +got):\n%s", diff)
	}
}

func TestWriteSummaryLog(t *testing.T) {
	fs := afero.NewMemMapFs()
	start := time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC)
	summary := RunSummary{
		StartTime:  start,
		EndTime:    start.Add(90 * time.Second),
		Source:     "sqlite:/data/export.db",
		PackageDir: "/out/chms_1",
		Formats:    []string{"csv", "xml"},
		Stages: []StageSummary{
			{Name: "Individuals", Rows: 5, Emitted: map[string]int{"Person": 5, "Campus": 2}},
			{Name: "Notes", Error: "stage Notes: extract notes: unknown table"},
		},
		AuditRecords: 7,
		AuditErrors:  1,
	}
	if err := WriteSummaryLog(fs, summary, "/out/chms_1/summary.log"); err != nil {
		t.Fatalf("WriteSummaryLog: %v", err)
	}
	data, _ := afero.ReadFile(fs, "/out/chms_1/summary.log")
	out := string(data)
	for _, frag := range []string{
		"Duration:       1m30s",
		"Formats:        csv, xml",
		"Campus                       2",
		"Notes              FAILED",
		"Error: stage Notes: extract notes: unknown table",
		"Stages Failed:      1",
		"Dangling:           1",
	} {
		if !strings.Contains(out, frag) {
			t.Errorf("summary missing %q\n%s", frag, out)
		}
	}
}
