// =============================================================================
// chms-migrate - Root Command
// =============================================================================
//
// This file defines the root command. Every other command is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (chms-migrate)
//   ├── exportCmd   (chms-migrate export)
//   ├── stagesCmd   (chms-migrate stages)
//   ├── validateCmd (chms-migrate validate)
//   └── versionCmd  (chms-migrate version)
//
// CONFIGURATION:
//   --config names the YAML file. When the flag is left at its default and
//   the file does not exist, the run is configured from CHMS_* environment
//   variables alone.
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/logging"
)

// defaultConfigFile is used when --config is not given.
const defaultConfigFile = "config.yaml"

// cfgFile holds the path to the configuration file.
var cfgFile string

// verbose forces debug logging.
var verbose bool

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "chms-migrate",
	Short: "Migrate a legacy church-management export into an interchange package",
	Long: `chms-migrate reads a legacy church-management export (a SQLite database,
a directory of CSV files or an XLSX workbook) and translates it into
canonical people, households, giving, groups and attendance records.

Every record gets a stable integer id derived from its natural key, so
running the same export twice produces the same package.

Example Usage:
  chms-migrate export                          # Run every stage
  chms-migrate export --stage Individuals      # Run one stage
  chms-migrate export --format csv,xml         # Choose the writers
  chms-migrate validate                        # Check the configuration
  chms-migrate stages                          # List the stages in run order`,

	SilenceUsage: true,

	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		defaultConfigFile,
		"Path to the configuration file",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig loads the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := cfgFile
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the application logger. --verbose overrides the level.
func newLogger(cfg config.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	level := cfg.Level
	if verbose {
		level = "debug"
	}
	return logging.Setup(level, cfg.Format, cfg.File)
}
