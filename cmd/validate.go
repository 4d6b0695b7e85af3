// =============================================================================
// chms-migrate - Validate Command
// =============================================================================
//
// COMMAND USAGE:
//   chms-migrate validate [--check-source]
//
// Loads and validates the configuration without running any stage. With
// --check-source the source is opened and every logical table is looked up.
//
// =============================================================================

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/pipeline"
	"github.com/ginjaninja78/chms-migrate/internal/source"
)

var checkSource bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration without exporting",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := describeConfig(out, cfg); err != nil {
			return err
		}
		if checkSource {
			if _, err := checkTables(cmd.Context(), out, cfg.Source); err != nil {
				return err
			}
		}
		fmt.Fprintln(out, "\nConfiguration is valid.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().BoolVar(&checkSource, "check-source", false, "Open the source and look up every table")
}

// describeConfig prints the effective settings. It fails on settings that
// only the pipeline itself would reject.
func describeConfig(out io.Writer, cfg *config.Config) error {
	stages, err := pipeline.ParseStages(cfg.Stages)
	if err != nil {
		return err
	}
	if _, err := identity.ParseFallback(cfg.Identity.AttendanceFallback); err != nil {
		return err
	}

	fmt.Fprintln(out, "=== Configuration ===")
	fmt.Fprintf(out, "Source:          %s %s\n", cfg.Source.Kind, cfg.Source.Path)
	fmt.Fprintf(out, "Stages:          %d\n", len(stages))
	fmt.Fprintf(out, "Formats:         %s\n", describeFormats(cfg))
	fmt.Fprintf(out, "Output:          %s/%s\n", cfg.Output.Directory, cfg.Output.PackageName)
	fmt.Fprintf(out, "Attendance ids:  %s fallback\n", cfg.Identity.AttendanceFallback)
	fmt.Fprintf(out, "Audit:           %t\n", cfg.Audit.Enabled)
	fmt.Fprintf(out, "Value maps:      %d override(s)\n", len(cfg.Mappings))
	return nil
}

// checkTables looks up every logical table and returns the missing ones.
// Missing tables are reported, not treated as errors: most are optional.
func checkTables(ctx context.Context, out io.Writer, cfg config.SourceConfig) ([]string, error) {
	src, err := source.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open source: %w", err)
	}
	defer src.Close()

	var missing []string
	fmt.Fprintln(out, "\n=== Source Tables ===")
	for _, table := range source.Tables() {
		snap, err := src.Execute(ctx, source.QueryFor(cfg, table))
		switch {
		case errors.Is(err, source.ErrUnknownTable):
			missing = append(missing, table)
			fmt.Fprintf(out, "  - %-16s missing\n", table)
		case err != nil:
			return missing, fmt.Errorf("read %s: %w", table, err)
		default:
			fmt.Fprintf(out, "  ✓ %-16s %d rows\n", table, snap.Len())
			snap.Release()
		}
	}
	return missing, nil
}

// formatNames lists the enabled formats in a fixed order.
func formatNames(cfg *config.Config) []string {
	var out []string
	for _, f := range []string{config.FormatCSV, config.FormatXML, config.FormatAPI} {
		if cfg.Output.HasFormat(f) {
			out = append(out, f)
		}
	}
	return out
}

// describeFormats names the enabled formats and the import endpoint.
func describeFormats(cfg *config.Config) string {
	names := formatNames(cfg)
	if slices.Contains(names, config.FormatAPI) {
		names[slices.Index(names, config.FormatAPI)] = "api (" + cfg.ImportAPI.BaseURL + ")"
	}
	return strings.Join(names, ", ")
}
