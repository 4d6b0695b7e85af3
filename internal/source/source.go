// =============================================================================
// chms-migrate - Source Readers
// =============================================================================
//
// A Source executes one query per logical table and returns the result as a
// snapshot the caller owns. Every Execute returns a fresh snapshot; the
// pipeline releases it when the stage that asked for it is done.
//
// IMPLEMENTATIONS:
//   - SQLite: a file database, one SELECT per table (or a configured query)
//   - CSVDir: a directory holding <table>.csv per table
//   - XLSX:   a workbook holding one sheet per table
//   - Memory: tables held in memory, for tests and dry runs
//
// =============================================================================

package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// ErrUnknownTable is returned when the export has no such table.
var ErrUnknownTable = errors.New("unknown table")

// Logical table names.
const (
	TableIndividuals    = "individuals"
	TableCompanies      = "companies"
	TableAddresses      = "addresses"
	TablePhones         = "phones"
	TableCommunications = "communications"
	TableAttributes     = "attributes"
	TableNotes          = "notes"
	TableFunds          = "funds"
	TableBatches        = "batches"
	TableContributions  = "contributions"
	TablePledges        = "pledges"
	TableGroups         = "groups"
	TableGroupMembers   = "groupmembers"
	TableAttendance     = "attendance"
)

// Tables returns every logical table.
func Tables() []string {
	return []string{
		TableIndividuals, TableCompanies, TableAddresses, TablePhones,
		TableCommunications, TableAttributes, TableNotes, TableFunds,
		TableBatches, TableContributions, TablePledges, TableGroups,
		TableGroupMembers, TableAttendance,
	}
}

// Query asks a source for one logical table.
type Query struct {
	// Name is the logical table; it names the returned snapshot.
	Name string

	// Table is the physical table, file stem or sheet. Defaults to Name.
	Table string

	// Columns, when set, projects the result to these columns.
	Columns []string

	// SQL replaces the generated SELECT. Only the sqlite source reads it.
	SQL string
}

func (q Query) table() string {
	if strings.TrimSpace(q.Table) != "" {
		return q.Table
	}
	return q.Name
}

// Source reads legacy tables.
type Source interface {
	// Execute runs q and returns a new snapshot owned by the caller.
	// A missing table returns an error wrapping ErrUnknownTable.
	Execute(ctx context.Context, q Query) (*snapshot.Snapshot, error)

	// Close releases the underlying database or file.
	Close() error
}

// Open returns the source described by the configuration.
func Open(cfg config.SourceConfig) (Source, error) {
	var (
		src Source
		err error
	)
	switch cfg.Kind {
	case config.SourceSQLite:
		src, err = OpenSQLite(cfg.Path)
	case config.SourceCSV:
		src, err = NewCSVDir(afero.NewOsFs(), cfg.Path, cfg.CSVSettings)
	case config.SourceXLSX:
		src, err = OpenXLSX(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// QueryFor builds the query for a logical table from the configuration.
func QueryFor(cfg config.SourceConfig, name string) Query {
	return Query{
		Name:  name,
		Table: cfg.Table(name),
		SQL:   cfg.Queries[name],
	}
}

// project applies q.Columns to snap. Columns the table lacks come back
// blank. The original is released when a projection is made.
func project(snap *snapshot.Snapshot, q Query) *snapshot.Snapshot {
	if len(q.Columns) == 0 {
		return snap
	}
	out := snap.Project(q.Columns...)
	snap.Release()
	return out
}
