// =============================================================================
// chms-migrate - Export Command
// =============================================================================
//
// This file defines the 'export' command, which runs the migration pipeline
// against the configured source and writes one interchange package.
//
// COMMAND USAGE:
//   chms-migrate export [flags]
//
// FLAGS:
//   --stage    : Run only the named stages (repeatable or comma separated)
//   --format   : Override output.formats (csv, xml, api)
//   --dry-run  : Translate everything but write nothing
//
// EXPORT PIPELINE:
//   1. Load configuration and set up logging
//   2. Open the source
//   3. Create the package directory and the writers
//   4. Run the stages; a failed stage does not stop the others
//   5. Close the writers, write the audit, summary and warning logs
//   6. Optionally zip the package
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/pipeline"
	"github.com/ginjaninja78/chms-migrate/internal/source"
	"github.com/ginjaninja78/chms-migrate/internal/translate"
	"github.com/ginjaninja78/chms-migrate/internal/types"
	"github.com/ginjaninja78/chms-migrate/internal/validation"
	"github.com/ginjaninja78/chms-migrate/pkg/utils"
)

// auditLogName is written into the package when the audit finds issues.
const auditLogName = "audit.log"

var (
	dryRun      bool
	stageFlags  []string
	formatFlags []string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Translate the legacy export into an interchange package",
	Long: `The export command runs the pipeline stages in order:

  Individuals, Companies, Notes, FinancialAccounts, FinancialPledges,
  FinancialBatches, Contributions, Groups, Attendance

Each stage reads the tables it needs, writes its records and releases its
data before the next stage starts. A stage that fails is reported and the
remaining stages still run.

On completion:
  - The package directory holds one file per record kind (csv) and/or
    interchange.xml (xml), plus summary.log and warnings.log
  - With the api format, records are posted to the bulk import API
  - With audit enabled, unresolved references are written to audit.log`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if len(stageFlags) > 0 {
			cfg.Stages = stageFlags
		}
		if len(formatFlags) > 0 {
			cfg.Output.Formats = formatFlags
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		log, closer, err := newLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		report, err := runExport(ctx, cfg, dryRun, afero.NewOsFs(), log)
		if report != nil {
			printReport(cmd.OutOrStdout(), report)
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringSliceVar(
		&stageFlags,
		"stage",
		nil,
		"Run only these stages (default: config stages, or all)",
	)
	exportCmd.Flags().StringSliceVar(
		&formatFlags,
		"format",
		nil,
		"Output formats: csv, xml, api (default: config output.formats)",
	)
	exportCmd.Flags().BoolVar(
		&dryRun,
		"dry-run",
		false,
		"Translate every stage without writing a package",
	)
}

// =============================================================================
// EXPORT
// =============================================================================

// exportReport is what an export produced.
type exportReport struct {
	Start      time.Time
	End        time.Time
	DryRun     bool
	PackageDir string
	ZipPath    string
	Result     *pipeline.RunResult
	Audit      *validation.Result
	Warnings   int
}

// runExport runs the configured stages and writes the package to fsys. The
// report is returned whenever the pipeline ran, even if err is set.
func runExport(ctx context.Context, cfg *config.Config, dryRun bool, fsys afero.Fs, log logrus.FieldLogger) (*exportReport, error) {
	report := &exportReport{Start: time.Now(), DryRun: dryRun}

	stages, err := pipeline.ParseStages(cfg.Stages)
	if err != nil {
		return nil, err
	}
	fallback, err := identity.ParseFallback(cfg.Identity.AttendanceFallback)
	if err != nil {
		return nil, err
	}
	values := translate.DefaultValueMaps()
	for name, m := range cfg.Mappings {
		values.Merge(name, m.Values, m.Default)
	}

	src, err := source.Open(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	var (
		sink     types.Writer = types.WriterFunc(func(types.Record) error { return nil })
		warnings *utils.WarningLog
		pm       *utils.PackageManager
	)
	if !dryRun {
		pm = utils.NewPackageManager(fsys, cfg.Output.Directory)
		name := pm.PackageName(cfg.Output.PackageName, map[string]string{"source": cfg.Source.Kind})
		dir, err := pm.CreatePackageDir(name)
		if err != nil {
			return nil, err
		}
		report.PackageDir = dir

		if sink, err = openWriters(ctx, cfg, fsys, dir, log); err != nil {
			return nil, err
		}
		if warnings, err = utils.NewWarningLog(fsys, filepath.Join(dir, cfg.Output.WarningLog)); err != nil {
			_ = closeWriter(sink)
			return nil, err
		}
	}

	var auditor *validation.Auditor
	if cfg.Audit.Enabled {
		auditor = validation.NewAuditor(sink, validation.Options{FailOnDangling: cfg.Audit.FailOnDangling})
		sink = auditor
	}

	var warnErr error
	p := pipeline.New(pipeline.Options{
		Source:               src,
		Writer:               sink,
		SourceConfig:         cfg.Source,
		Values:               values,
		AttendanceFallback:   fallback,
		AttendanceMaxRetries: cfg.Identity.AttendanceMaxRetries,
		Logger:               log,
		OnWarning: func(stage pipeline.Stage, table string, w translate.Warning) {
			report.Warnings++
			if warnings == nil || warnErr != nil {
				return
			}
			warnErr = warnings.Add(utils.WarningLogEntry{
				Stage:   string(stage),
				Table:   table,
				Row:     w.Row,
				Field:   w.Field,
				Message: w.Message,
			})
		},
	})

	log.WithFields(logrus.Fields{"source": cfg.Source.Path, "stages": len(stages), "dry_run": dryRun}).Info("Export started")
	report.Result = p.Run(ctx, stages...)

	var errs []error
	if err := report.Result.Err(); err != nil {
		errs = append(errs, err)
	}
	if err := closeWriter(sink); err != nil {
		errs = append(errs, fmt.Errorf("close writers: %w", err))
	}
	if warnings != nil {
		if err := errors.Join(warnErr, warnings.Close()); err != nil {
			errs = append(errs, fmt.Errorf("warning log: %w", err))
		}
	}
	if auditor != nil {
		report.Audit = auditor.Result()
		if !dryRun && len(report.Audit.Issues) > 0 {
			if err := validation.WriteIssueLog(fsys, report.Audit.Issues, filepath.Join(report.PackageDir, auditLogName)); err != nil {
				errs = append(errs, err)
			}
		}
	}

	report.End = time.Now()
	if !dryRun {
		summaryPath := filepath.Join(report.PackageDir, cfg.Output.SummaryLog)
		if err := utils.WriteSummaryLog(fsys, buildSummary(cfg, report), summaryPath); err != nil {
			errs = append(errs, err)
		}
		if cfg.Output.Zip {
			zipPath, err := pm.ZipPackage(report.PackageDir)
			if err != nil {
				errs = append(errs, err)
			}
			report.ZipPath = zipPath
		}
	}

	log.WithFields(logrus.Fields{
		"records":  total(report.Result.Emitted()),
		"warnings": report.Warnings,
		"package":  report.PackageDir,
	}).Info("Export finished")
	return report, errors.Join(errs...)
}

// buildSummary converts the report for the summary log.
func buildSummary(cfg *config.Config, report *exportReport) utils.RunSummary {
	s := utils.RunSummary{
		StartTime:  report.Start,
		EndTime:    report.End,
		Source:     cfg.Source.Kind + ":" + cfg.Source.Path,
		PackageDir: report.PackageDir,
		Formats:    cfg.Output.Formats,
	}
	for _, r := range report.Result.Stages {
		stage := utils.StageSummary{
			Name:     string(r.Stage),
			Rows:     r.Rows,
			Emitted:  make(map[string]int, len(r.Emitted)),
			Dropped:  r.Dropped,
			Warnings: r.Warnings,
			Duration: r.Duration,
		}
		for k, n := range r.Emitted {
			stage.Emitted[string(k)] = n
		}
		if r.Err != nil {
			stage.Error = r.Err.Error()
		}
		s.Stages = append(s.Stages, stage)
	}
	if report.Result.Cancelled != nil {
		s.Cancelled = report.Result.Cancelled.Error()
	}
	if a := report.Audit; a != nil {
		s.AuditRecords = a.RecordsChecked
		s.AuditReferences = a.ReferencesChecked
		s.AuditErrors = a.ErrorCount
		s.AuditWarnings = a.WarningCount
	}
	return s
}

// printReport prints the run summary to the console.
func printReport(out io.Writer, report *exportReport) {
	res := report.Result
	if res == nil {
		return
	}
	failed := 0
	fmt.Fprintln(out, "=== chms-migrate export ===")
	for _, s := range res.Stages {
		if s.Err != nil {
			failed++
			fmt.Fprintf(out, "  ✗ %-18s %v\n", s.Stage, s.Err)
			continue
		}
		fmt.Fprintf(out, "  ✓ %-18s %d records, %d dropped, %d warnings\n", s.Stage, s.Total(), s.Dropped, s.Warnings)
	}
	if res.Cancelled != nil {
		fmt.Fprintf(out, "  Cancelled: %v\n", res.Cancelled)
	}

	emitted := res.Emitted()
	fmt.Fprintln(out, "\n=== Export Complete ===")
	fmt.Fprintf(out, "Stages run:      %d\n", len(res.Stages))
	fmt.Fprintf(out, "Stages failed:   %d\n", failed)
	fmt.Fprintf(out, "Records:         %d\n", total(emitted))
	for _, k := range types.Kinds() {
		if n := emitted[k]; n > 0 {
			fmt.Fprintf(out, "  %-28s %d\n", k, n)
		}
	}
	fmt.Fprintf(out, "Warnings:        %d\n", report.Warnings)
	if a := report.Audit; a != nil {
		fmt.Fprintf(out, "Dangling refs:   %d of %d\n", a.ErrorCount, a.ReferencesChecked)
	}
	fmt.Fprintf(out, "Time elapsed:    %s\n", report.End.Sub(report.Start).Round(time.Millisecond))
	switch {
	case report.DryRun:
		fmt.Fprintln(out, "\nDry run: no package written.")
	case report.ZipPath != "":
		fmt.Fprintf(out, "\nPackage: %s (%s)\n", report.PackageDir, report.ZipPath)
	default:
		fmt.Fprintf(out, "\nPackage: %s\n", report.PackageDir)
	}
}

func total(emitted map[types.Kind]int) int {
	n := 0
	for _, c := range emitted {
		n += c
	}
	return n
}
