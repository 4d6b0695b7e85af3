package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// SQLite reads tables from a SQLite database file.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens an existing database file. Connections are query-only.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	cleanPath := filepath.Clean(path)
	// The driver would create a missing file.
	if _, err := os.Stat(cleanPath); err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	db, err := sql.Open("sqlite", cleanPath+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Execute runs q.SQL, or SELECT * FROM the table, and reads every row as
// text. NULL becomes a blank cell.
func (s *SQLite) Execute(ctx context.Context, q Query) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stmt := q.SQL
	if strings.TrimSpace(stmt) == "" {
		stmt = "SELECT * FROM " + quoteIdent(q.table())
	}

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, fmt.Errorf("%w: %s: %v", ErrUnknownTable, q.table(), err)
		}
		return nil, fmt.Errorf("query %s: %w", q.Name, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", q.Name, err)
	}

	var data [][]string
	cells := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range cells {
		dest[i] = &cells[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s row %d: %w", q.Name, len(data)+1, err)
		}
		record := make([]string, len(columns))
		for i, c := range cells {
			if c.Valid {
				record[i] = c.String
			}
		}
		data = append(data, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Name, err)
	}

	return project(snapshot.New(q.Name, columns, data), q), nil
}

// Close closes the database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
