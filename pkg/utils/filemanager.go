// =============================================================================
// chms-migrate - Package File Manager
// =============================================================================
//
// This module manages the files around an export run:
//   - Package directory naming and creation
//   - Zip packaging of a finished package
//   - The streaming warning log
//   - The run summary log
//
// PACKAGE LAYOUT:
//   <output>/chms_20240115_143022/
//     Person.csv, PersonAddresses.csv, ...   <!-- csv format -->
//     interchange.xml                        <!-- xml format -->
//     summary.log
//     warnings.log
//   <output>/chms_20240115_143022.zip        <!-- when zipping is enabled -->
//
// All file access goes through afero so tests can run on a memory filesystem.
//
// =============================================================================

package utils

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
)

// =============================================================================
// PACKAGE MANAGER
// =============================================================================

// PackageManager creates and finishes package directories.
type PackageManager struct {
	// Fs is the filesystem packages are written to.
	Fs afero.Fs

	// OutputDir is the directory packages are created in.
	OutputDir string

	// Now returns the time used for {timestamp} placeholders.
	Now func() time.Time
}

// NewPackageManager returns a manager for outputDir on fs.
func NewPackageManager(fs afero.Fs, outputDir string) *PackageManager {
	return &PackageManager{Fs: fs, OutputDir: outputDir, Now: time.Now}
}

// =============================================================================
// PACKAGE NAMING
// =============================================================================

// PackageName expands a package name format.
//
// PARAMETERS:
//   - format: The name format. Placeholders:
//       {uuid}      - A random UUID
//       {timestamp} - Current timestamp (YYYYMMDD_HHMMSS)
//       {date}      - Current date (YYYYMMDD)
//       {time}      - Current time (HHMMSS)
//       {key}       - Any key in params
//   - params: Extra placeholder values.
//
// RETURNS:
//   - The expanded name. Path separators are replaced with "_".
//
// EXAMPLE:
//   format: "chms_{source}_{timestamp}"
//   params: {"source": "fellowship"}
//   output: "chms_fellowship_20240115_143022"
func (pm *PackageManager) PackageName(format string, params map[string]string) string {
	now := pm.now()

	replacements := map[string]string{
		"{uuid}":      uuid.New().String(),
		"{timestamp}": now.Format("20060102_150405"),
		"{date}":      now.Format("20060102"),
		"{time}":      now.Format("150405"),
	}
	for key, value := range params {
		replacements["{"+key+"}"] = value
	}

	result := format
	for placeholder, value := range replacements {
		result = strings.ReplaceAll(result, placeholder, value)
	}
	result = strings.NewReplacer("/", "_", `\`, "_").Replace(strings.TrimSpace(result))
	if result == "" {
		result = "chms_" + now.Format("20060102_150405")
	}
	return result
}

// CreatePackageDir creates OutputDir/name. An existing package is never
// reused.
func (pm *PackageManager) CreatePackageDir(name string) (string, error) {
	dir := filepath.Join(pm.OutputDir, name)
	if exists, err := afero.Exists(pm.Fs, dir); err != nil {
		return "", fmt.Errorf("check package directory: %w", err)
	} else if exists {
		return "", fmt.Errorf("package directory %s already exists", dir)
	}
	if err := pm.Fs.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return dir, nil
}

func (pm *PackageManager) now() time.Time {
	if pm.Now == nil {
		return time.Now()
	}
	return pm.Now()
}

// =============================================================================
// ZIP PACKAGING
// =============================================================================

// ZipPackage writes dir and everything under it to dir + ".zip". Entry names
// are relative to dir and use forward slashes.
//
// RETURNS:
//   - The path to the zip file.
//   - An error if packaging fails.
func (pm *PackageManager) ZipPackage(dir string) (string, error) {
	zipPath := strings.TrimRight(dir, `/\`) + ".zip"

	var files []string
	err := afero.Walk(pm.Fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk package: %w", err)
	}
	sort.Strings(files)

	out, err := pm.Fs.Create(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to create zip: %w", err)
	}
	zw := zip.NewWriter(out)

	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			_ = out.Close()
			return "", err
		}
		if err := pm.addToZip(zw, path, filepath.ToSlash(rel)); err != nil {
			_ = out.Close()
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("failed to finish zip: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("failed to close zip: %w", err)
	}
	return zipPath, nil
}

func (pm *PackageManager) addToZip(zw *zip.Writer, path, name string) error {
	src, err := pm.Fs.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	dst, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: pm.now()})
	if err != nil {
		return fmt.Errorf("add %s to zip: %w", name, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("add %s to zip: %w", name, err)
	}
	return nil
}

// =============================================================================
// WARNING LOG
// =============================================================================

// WarningLogEntry is one row warning.
type WarningLogEntry struct {
	Stage   string
	Table   string
	Row     int
	Field   string
	Message string
}

// WarningLog streams row warnings to a file, one line each.
type WarningLog struct {
	file   afero.File
	writer *bufio.Writer
	count  int
}

// NewWarningLog creates the log at path on fs.
func NewWarningLog(fs afero.Fs, path string) (*WarningLog, error) {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := fs.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create warning log: %w", err)
	}
	return &WarningLog{file: file, writer: bufio.NewWriter(file)}, nil
}

// Add appends one entry.
//
// FORMAT:
//   [Stage] table row N, Field: message
func (l *WarningLog) Add(e WarningLogEntry) error {
	l.count++
	line := fmt.Sprintf("[%s] %s row %d", e.Stage, e.Table, e.Row)
	if e.Field != "" {
		line += ", " + e.Field
	}
	_, err := fmt.Fprintf(l.writer, "%s: %s\n", line, e.Message)
	return err
}

// Count returns the number of entries written.
func (l *WarningLog) Count() int {
	return l.count
}

// Close flushes and closes the log.
func (l *WarningLog) Close() error {
	if err := l.writer.Flush(); err != nil {
		_ = l.file.Close()
		return fmt.Errorf("failed to flush warning log: %w", err)
	}
	return l.file.Close()
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about an export run.
type RunSummary struct {
	StartTime  time.Time
	EndTime    time.Time
	Source     string
	PackageDir string
	Formats    []string
	Stages     []StageSummary
	Cancelled  string

	AuditRecords    int
	AuditReferences int
	AuditErrors     int
	AuditWarnings   int
}

// StageSummary is the outcome of one stage.
type StageSummary struct {
	Name     string
	Rows     int
	Emitted  map[string]int
	Dropped  int
	Warnings int
	Duration time.Duration
	Error    string
}

// WriteSummaryLog writes the run summary to path on fs.
func WriteSummaryLog(fs afero.Fs, summary RunSummary, path string) error {
	file, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	rule := strings.Repeat("=", 80)

	fmt.Fprintf(w, "chms-migrate - Export Summary\n%s\n\n", rule)
	fmt.Fprintf(w, "Run Information:\n")
	fmt.Fprintf(w, "  Start Time:     %s\n", summary.StartTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  End Time:       %s\n", summary.EndTime.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration:       %s\n", summary.EndTime.Sub(summary.StartTime))
	fmt.Fprintf(w, "  Source:         %s\n", summary.Source)
	fmt.Fprintf(w, "  Package:        %s\n", summary.PackageDir)
	fmt.Fprintf(w, "  Formats:        %s\n\n", strings.Join(summary.Formats, ", "))

	failed := 0
	fmt.Fprintf(w, "Stages:\n%s\n", strings.Repeat("-", 80))
	for _, s := range summary.Stages {
		status := "ok"
		if s.Error != "" {
			status = "FAILED"
			failed++
		}
		fmt.Fprintf(w, "  %-18s %-6s rows=%d dropped=%d warnings=%d time=%s\n",
			s.Name, status, s.Rows, s.Dropped, s.Warnings, s.Duration.Round(time.Millisecond))
		kinds := make([]string, 0, len(s.Emitted))
		for k := range s.Emitted {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "      %-28s %d\n", k, s.Emitted[k])
		}
		if s.Error != "" {
			fmt.Fprintf(w, "      Error: %s\n", s.Error)
		}
	}
	if summary.Cancelled != "" {
		fmt.Fprintf(w, "  Cancelled: %s\n", summary.Cancelled)
	}

	fmt.Fprintf(w, "\nStatistics:\n")
	fmt.Fprintf(w, "  Stages Run:         %d\n", len(summary.Stages))
	fmt.Fprintf(w, "  Stages Failed:      %d\n", failed)
	fmt.Fprintf(w, "  Records Audited:    %d\n", summary.AuditRecords)
	fmt.Fprintf(w, "  References Checked: %d\n", summary.AuditReferences)
	fmt.Fprintf(w, "  Dangling:           %d\n", summary.AuditErrors)
	fmt.Fprintf(w, "  Audit Warnings:     %d\n", summary.AuditWarnings)
	fmt.Fprintf(w, "\n%s\nEnd of Summary\n", rule)

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush summary file: %w", err)
	}
	return nil
}
