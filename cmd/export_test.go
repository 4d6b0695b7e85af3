package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/source"
	"github.com/ginjaninja78/chms-migrate/internal/translate"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

const individualsCSV = `IndividualId,HouseholdId,FamilyPosition,FirstName,LastName,SubStatus,Gender
100,42,Head,Naomi,Smith,North Campus,F
101,42,Spouse,Elim,Smith,,M
`

// exportFixture writes individuals.csv to a temp directory and returns a
// configuration that reads it.
func exportFixture(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "individuals.csv"), []byte(individualsCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Source.Kind = config.SourceCSV
	cfg.Source.Path = dir
	cfg.Output.Directory = "/out"
	cfg.Output.Formats = []string{config.FormatCSV, config.FormatXML}
	cfg.Stages = []string{"Individuals"}
	return cfg
}

func TestRunExport_WritesPackage(t *testing.T) {
	cfg := exportFixture(t)
	cfg.Output.Zip = true
	cfg.Audit.Enabled = true
	fsys := afero.NewMemMapFs()
	log, _ := test.NewNullLogger()

	report, err := runExport(context.Background(), cfg, false, fsys, log)
	if err != nil {
		t.Fatalf("runExport: %v", err)
	}

	emitted := report.Result.Emitted()
	if emitted[types.KindPerson] != 2 || emitted[types.KindCampus] != 1 {
		t.Errorf("emitted = %v", emitted)
	}
	for _, name := range []string{
		"Person.csv", "Campus.csv", "interchange.xml", "interchange.xsd",
		cfg.Output.SummaryLog, cfg.Output.WarningLog,
	} {
		if ok, _ := afero.Exists(fsys, filepath.Join(report.PackageDir, name)); !ok {
			t.Errorf("package is missing %s", name)
		}
	}
	if ok, _ := afero.Exists(fsys, filepath.Join(report.PackageDir, auditLogName)); ok {
		t.Error("audit log written for a clean audit")
	}
	if report.ZipPath != report.PackageDir+".zip" {
		t.Errorf("zip path = %q", report.ZipPath)
	}
	if ok, _ := afero.Exists(fsys, report.ZipPath); !ok {
		t.Error("zip not written")
	}

	if report.Audit == nil || report.Audit.ErrorCount != 0 {
		t.Fatalf("audit = %+v", report.Audit)
	}
	if want := total(emitted); report.Audit.RecordsChecked != want {
		t.Errorf("audited %d records, emitted %d", report.Audit.RecordsChecked, want)
	}

	summary, _ := afero.ReadFile(fsys, filepath.Join(report.PackageDir, cfg.Output.SummaryLog))
	if !strings.Contains(string(summary), "Individuals        ok") {
		t.Errorf("summary:\n%s", summary)
	}

	var out bytes.Buffer
	printReport(&out, report)
	if !strings.Contains(out.String(), "✓ Individuals") || !strings.Contains(out.String(), "Package: /out/") {
		t.Errorf("report:\n%s", out.String())
	}
}

func TestRunExport_DryRunWritesNothing(t *testing.T) {
	cfg := exportFixture(t)
	fsys := afero.NewMemMapFs()
	log, _ := test.NewNullLogger()

	report, err := runExport(context.Background(), cfg, true, fsys, log)
	if err != nil {
		t.Fatalf("runExport: %v", err)
	}
	if report.Result.Emitted()[types.KindPerson] != 2 {
		t.Errorf("emitted = %v", report.Result.Emitted())
	}
	if ok, _ := afero.Exists(fsys, "/out"); ok {
		t.Error("dry run created the output directory")
	}
}

func TestRunExport_FailedStageKeepsGoing(t *testing.T) {
	cfg := exportFixture(t)
	cfg.Stages = []string{"Companies", "Individuals"}
	fsys := afero.NewMemMapFs()
	log, _ := test.NewNullLogger()

	report, err := runExport(context.Background(), cfg, false, fsys, log)
	if !errors.Is(err, source.ErrUnknownTable) {
		t.Fatalf("err = %v, want ErrUnknownTable", err)
	}
	if report == nil || len(report.Result.Stages) != 2 {
		t.Fatalf("report = %+v", report)
	}
	if !strings.Contains(report.Result.LastError(), "companies") {
		t.Errorf("LastError = %q", report.Result.LastError())
	}
	if report.Result.Emitted()[types.KindPerson] != 2 {
		t.Error("Individuals did not run after Companies failed")
	}
	summary, _ := afero.ReadFile(fsys, filepath.Join(report.PackageDir, cfg.Output.SummaryLog))
	if !strings.Contains(string(summary), "Companies          FAILED") {
		t.Errorf("summary:\n%s", summary)
	}
}

func TestRunExport_ValueMapOverride(t *testing.T) {
	cfg := exportFixture(t)
	cfg.Output.Formats = []string{config.FormatCSV}
	cfg.Mappings = map[string]config.MappingConfig{
		translate.MapGender: {Values: map[string]string{"F": "Woman"}},
	}
	fsys := afero.NewMemMapFs()
	log, _ := test.NewNullLogger()

	report, err := runExport(context.Background(), cfg, false, fsys, log)
	if err != nil {
		t.Fatalf("runExport: %v", err)
	}
	data, _ := afero.ReadFile(fsys, filepath.Join(report.PackageDir, "Person.csv"))
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "Naomi") || !strings.Contains(lines[1], "Woman") {
		t.Errorf("Person.csv:\n%s", data)
	}
}

func TestRunExport_UnknownStage(t *testing.T) {
	cfg := exportFixture(t)
	cfg.Stages = []string{"Sermons"}
	log, _ := test.NewNullLogger()

	if _, err := runExport(context.Background(), cfg, true, afero.NewMemMapFs(), log); err == nil {
		t.Error("unknown stage accepted")
	}
}

func TestFanOut_ClosesEveryWriter(t *testing.T) {
	var closed []string
	f := fanOut{
		closingWriter{name: "a", closed: &closed, err: errors.New("disk full")},
		closingWriter{name: "b", closed: &closed},
	}
	if err := f.Write(&types.Campus{Id: 1}); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Close = %v", err)
	}
	if strings.Join(closed, ",") != "a,b" {
		t.Errorf("closed = %v", closed)
	}
}

type closingWriter struct {
	name   string
	closed *[]string
	err    error
}

func (w closingWriter) Write(types.Record) error { return nil }

func (w closingWriter) Close() error {
	*w.closed = append(*w.closed, w.name)
	return w.err
}

type flushingWriter struct {
	closingWriter
	flushed *int
	err     error
}

func (w flushingWriter) Flush() error {
	*w.flushed++
	return w.err
}

func TestFanOut_FlushesBatchingWriters(t *testing.T) {
	var closed []string
	var a, b int
	f := fanOut{
		flushingWriter{closingWriter: closingWriter{name: "a", closed: &closed}, flushed: &a, err: errors.New("rejected")},
		closingWriter{name: "plain", closed: &closed},
		flushingWriter{closingWriter: closingWriter{name: "b", closed: &closed}, flushed: &b},
	}
	if err := f.Flush(); err == nil || !strings.Contains(err.Error(), "rejected") {
		t.Errorf("Flush = %v", err)
	}
	if a != 1 || b != 1 {
		t.Errorf("flushed a=%d b=%d, want 1 each", a, b)
	}
}
