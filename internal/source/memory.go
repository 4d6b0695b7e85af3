package source

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// Memory is a source backed by in-memory tables.
type Memory struct {
	mu     sync.Mutex
	tables map[string]memTable

	// executed counts Execute calls per logical table.
	executed map[string]int
}

type memTable struct {
	columns []string
	rows    [][]string
}

// NewMemory returns an empty memory source.
func NewMemory() *Memory {
	return &Memory{tables: make(map[string]memTable), executed: make(map[string]int)}
}

// Add stores a table. Rows are copied.
func (m *Memory) Add(table string, columns []string, rows ...[]string) *Memory {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([][]string, len(rows))
	for i, r := range rows {
		copied[i] = append([]string(nil), r...)
	}
	m.tables[strings.ToLower(table)] = memTable{columns: append([]string(nil), columns...), rows: copied}
	return m
}

// Execute returns a new snapshot over a copy of the table.
func (m *Memory) Execute(ctx context.Context, q Query) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[strings.ToLower(q.table())]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, q.table())
	}
	m.executed[q.Name]++

	rows := make([][]string, len(t.rows))
	for i, r := range t.rows {
		rows[i] = append([]string(nil), r...)
	}
	return project(snapshot.New(q.Name, t.columns, rows), q), nil
}

// Executed reports how many times the logical table was read.
func (m *Memory) Executed(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.executed[name]
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
