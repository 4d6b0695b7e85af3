// =============================================================================
// chms-migrate - Configuration Module
// =============================================================================
//
// This module loads the single run configuration: where the legacy export
// lives, which stages run, where the interchange package goes and how the
// value mappings differ from the built-in defaults.
//
// LOAD ORDER:
//   1. YAML file (config.yaml)
//   2. Environment overrides (CHMS_* variables)
//   3. Defaults for anything still unset
//   4. Validation
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Source kinds.
const (
	SourceSQLite = "sqlite"
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
)

// Output formats.
const (
	FormatCSV = "csv"
	FormatXML = "xml"
	FormatAPI = "api"
)

// =============================================================================
// CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the whole run configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Output    OutputConfig    `yaml:"output"`
	ImportAPI ImportAPIConfig `yaml:"import_api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Identity  IdentityConfig  `yaml:"identity"`
	Audit     AuditConfig     `yaml:"audit"`

	// Stages restricts the run to the named stages, in pipeline order.
	// Empty means every stage.
	Stages []string `yaml:"stages" env:"CHMS_STAGES" envSeparator:","`

	// Mappings overrides or extends the built-in value maps
	// (gender, marital_status, phone_type, ...), keyed by map name.
	Mappings map[string]MappingConfig `yaml:"mappings"`
}

// =============================================================================
// SOURCE SETTINGS
// =============================================================================

// SourceConfig describes the legacy export.
type SourceConfig struct {
	// Kind is one of "sqlite", "csv" or "xlsx".
	// Default: "sqlite"
	Kind string `yaml:"kind" env:"CHMS_SOURCE_KIND"`

	// Path is the database file, the directory of CSV files, or the workbook.
	Path string `yaml:"path" env:"CHMS_SOURCE_PATH"`

	// Tables maps a logical table (individuals, contributions, ...) to the
	// physical table, file stem or sheet name. Unmapped tables use the
	// logical name.
	Tables map[string]string `yaml:"tables"`

	// Queries replaces the generated SELECT for a logical table.
	// Only used by the sqlite source.
	Queries map[string]string `yaml:"queries"`

	// CSVSettings applies to the csv source.
	CSVSettings CSVSettings `yaml:"csv_settings"`
}

// Table returns the physical name of a logical table.
func (s SourceConfig) Table(logical string) string {
	if t, ok := s.Tables[logical]; ok && strings.TrimSpace(t) != "" {
		return t
	}
	return logical
}

// CSVSettings contains CSV-specific parsing settings.
type CSVSettings struct {
	// Delimiter is the field separator: ",", "|", "tab", ";".
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of header rows, merged into one header.
	// Default: 1
	HeaderRows int `yaml:"header_rows"`

	// DataStartRow is the 1-based row where data begins.
	// Default: HeaderRows + 1
	DataStartRow int `yaml:"data_start_row"`

	// Encoding of the files: "UTF-8", "Windows-1252" or "ISO-8859-1".
	// Default: "UTF-8"
	Encoding string `yaml:"encoding" env:"CHMS_SOURCE_ENCODING"`
}

// =============================================================================
// OUTPUT SETTINGS
// =============================================================================

// OutputConfig controls the interchange package.
type OutputConfig struct {
	// Formats lists the writers to run: "csv", "xml", "api".
	// Default: ["csv"]
	Formats []string `yaml:"formats" env:"CHMS_OUTPUT_FORMATS" envSeparator:","`

	// Directory receives one package directory per run.
	// Default: "./output"
	Directory string `yaml:"directory" env:"CHMS_OUTPUT_DIR"`

	// PackageName names the package directory.
	// Placeholders:
	//   {uuid}      - A random UUID
	//   {timestamp} - Run start (YYYYMMDD_HHMMSS)
	// Default: "chms_{timestamp}"
	PackageName string `yaml:"package_name"`

	// Zip additionally packs the package directory into <name>.zip.
	Zip bool `yaml:"zip" env:"CHMS_OUTPUT_ZIP"`

	// SummaryLog and WarningLog are written inside the package directory.
	// Defaults: "summary.log", "warnings.log"
	SummaryLog string `yaml:"summary_log"`
	WarningLog string `yaml:"warning_log"`
}

// HasFormat reports whether the named writer is enabled.
func (o OutputConfig) HasFormat(format string) bool {
	for _, f := range o.Formats {
		if strings.EqualFold(strings.TrimSpace(f), format) {
			return true
		}
	}
	return false
}

// ImportAPIConfig configures the bulk-import client used by the "api" format.
type ImportAPIConfig struct {
	BaseURL string `yaml:"base_url" env:"CHMS_IMPORT_URL"`
	APIKey  string `yaml:"api_key" env:"CHMS_IMPORT_API_KEY"`

	// BatchSize is the number of records per POST.
	// Default: 500
	BatchSize int `yaml:"batch_size" env:"CHMS_IMPORT_BATCH_SIZE"`

	// Timeout per request.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout" env:"CHMS_IMPORT_TIMEOUT"`

	// MaxRetries for retryable failures (5xx, connection errors).
	// Default: 3
	MaxRetries int `yaml:"max_retries" env:"CHMS_IMPORT_MAX_RETRIES"`
}

// =============================================================================
// LOGGING SETTINGS
// =============================================================================

// LoggingConfig controls the application log.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level" env:"CHMS_LOG_LEVEL"`

	// Format: "text" or "json".
	// Default: "text"
	Format string `yaml:"format" env:"CHMS_LOG_FORMAT"`

	// File additionally receives the log. Empty logs to stderr only.
	File string `yaml:"file" env:"CHMS_LOG_FILE"`
}

// =============================================================================
// IDENTITY AND AUDIT SETTINGS
// =============================================================================

// IdentityConfig tunes the attendance id allocator.
type IdentityConfig struct {
	// AttendanceFallback is "random" or "rehash".
	// Default: "random"
	AttendanceFallback string `yaml:"attendance_fallback" env:"CHMS_ATTENDANCE_FALLBACK"`

	// AttendanceMaxRetries bounds the fallback draws per collision.
	// Default: 10000
	AttendanceMaxRetries int `yaml:"attendance_max_retries" env:"CHMS_ATTENDANCE_MAX_RETRIES"`
}

// AuditConfig controls the referential audit of the emitted set.
type AuditConfig struct {
	Enabled bool `yaml:"enabled" env:"CHMS_AUDIT"`

	// FailOnDangling turns dangling references into a run error instead of
	// a report.
	FailOnDangling bool `yaml:"fail_on_dangling" env:"CHMS_AUDIT_FAIL"`
}

// MappingConfig is one value map override.
type MappingConfig struct {
	// Values maps a source value (case-insensitive) to the target value.
	Values map[string]string `yaml:"values"`

	// Default replaces the map's fallback for unknown values.
	Default string `yaml:"default"`
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration file, applies environment overrides and
// defaults, and validates the result.
//
// PARAMETERS:
//   - path: The configuration file. Empty skips the file and uses the
//     environment and defaults only.
//
// RETURNS:
//   - The configuration.
//   - An error wrapping ErrInvalid when validation fails.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate checks the configuration again after command-line flags have
// changed it.
func (c *Config) Validate() error {
	return validate(c)
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = SourceSQLite
	}
	cfg.Source.Kind = strings.ToLower(cfg.Source.Kind)
	applyCSVDefaults(&cfg.Source.CSVSettings)

	if len(cfg.Output.Formats) == 0 {
		cfg.Output.Formats = []string{FormatCSV}
	}
	if cfg.Output.Directory == "" {
		cfg.Output.Directory = "./output"
	}
	if cfg.Output.PackageName == "" {
		cfg.Output.PackageName = "chms_{timestamp}"
	}
	if cfg.Output.SummaryLog == "" {
		cfg.Output.SummaryLog = "summary.log"
	}
	if cfg.Output.WarningLog == "" {
		cfg.Output.WarningLog = "warnings.log"
	}

	if cfg.ImportAPI.BatchSize == 0 {
		cfg.ImportAPI.BatchSize = 500
	}
	if cfg.ImportAPI.Timeout == 0 {
		cfg.ImportAPI.Timeout = 30 * time.Second
	}
	if cfg.ImportAPI.MaxRetries == 0 {
		cfg.ImportAPI.MaxRetries = 3
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if cfg.Identity.AttendanceFallback == "" {
		cfg.Identity.AttendanceFallback = "random"
	}
	if cfg.Identity.AttendanceMaxRetries == 0 {
		cfg.Identity.AttendanceMaxRetries = 10_000
	}
}

// applyCSVDefaults fills in CSV parsing defaults.
func applyCSVDefaults(s *CSVSettings) {
	if s.Delimiter == "" {
		s.Delimiter = ","
	}
	if s.HeaderRows == 0 {
		s.HeaderRows = 1
	}
	if s.DataStartRow == 0 {
		s.DataStartRow = s.HeaderRows + 1
	}
	if s.Encoding == "" {
		s.Encoding = "UTF-8"
	}
}

// validate checks the configuration after defaults are applied. Every
// problem is reported, not just the first.
func validate(cfg *Config) error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch cfg.Source.Kind {
	case SourceSQLite, SourceCSV, SourceXLSX:
	default:
		bad("source.kind %q is not sqlite, csv or xlsx", cfg.Source.Kind)
	}
	if cfg.Source.Path == "" {
		bad("source.path is required")
	}
	if len(cfg.Source.Queries) > 0 && cfg.Source.Kind != SourceSQLite {
		bad("source.queries only apply to the sqlite source")
	}

	s := cfg.Source.CSVSettings
	if s.HeaderRows < 1 {
		bad("csv_settings.header_rows must be at least 1")
	}
	if s.DataStartRow <= s.HeaderRows {
		bad("csv_settings.data_start_row %d must follow the %d header rows", s.DataStartRow, s.HeaderRows)
	}

	for _, f := range cfg.Output.Formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case FormatCSV, FormatXML, FormatAPI:
		default:
			bad("output.formats: unknown format %q", f)
		}
	}
	if cfg.Output.HasFormat(FormatAPI) && cfg.ImportAPI.BaseURL == "" {
		bad("import_api.base_url is required for the api format")
	}
	if cfg.ImportAPI.BatchSize < 1 {
		bad("import_api.batch_size must be positive")
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		bad("logging.level %q is not debug, info, warn or error", cfg.Logging.Level)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		bad("logging.format %q is not text or json", cfg.Logging.Format)
	}

	switch strings.ToLower(cfg.Identity.AttendanceFallback) {
	case "random", "rehash":
	default:
		bad("identity.attendance_fallback %q is not random or rehash", cfg.Identity.AttendanceFallback)
	}
	if cfg.Identity.AttendanceMaxRetries < 1 {
		bad("identity.attendance_max_retries must be positive")
	}

	return errors.Join(errs...)
}
