// =============================================================================
// chms-migrate - Relational Snapshot
// =============================================================================
//
// A Snapshot is one materialized query result from the legacy export: a fixed
// set of named columns and the rows returned for them, in source order.
//
// Once a table is in memory there is no database to push joins to, so the
// translators work against snapshots directly:
//   - Select / Filter      : predicate-based row selection (source order kept)
//   - Index                : hash index on a join column, built once per
//                            snapshot and reused for O(1) lookups
//   - Row accessors        : typed column access by (case-insensitive) name
//
// OWNERSHIP:
//   A snapshot belongs to exactly one pipeline stage. The stage calls Release
//   during cleanup so the rows and indices can be collected before the next
//   stage extracts its own tables.
//
// =============================================================================

package snapshot

import (
	"strings"
)

// =============================================================================
// SNAPSHOT STRUCTURE
// =============================================================================

// header is shared between a snapshot, the rows it hands out, and any
// snapshots derived from it with Filter.
type header struct {
	columns []string
	lookup  map[string]int
}

func newHeader(columns []string) *header {
	h := &header{
		columns: make([]string, len(columns)),
		lookup:  make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		col = strings.TrimSpace(col)
		h.columns[i] = col
		key := strings.ToLower(col)
		if _, exists := h.lookup[key]; !exists {
			h.lookup[key] = i
		}
	}
	return h
}

func (h *header) position(column string) (int, bool) {
	i, ok := h.lookup[strings.ToLower(strings.TrimSpace(column))]
	return i, ok
}

// Snapshot is an in-memory table.
type Snapshot struct {
	// name is the logical table the rows came from (e.g. "individuals").
	name string

	hdr  *header
	rows [][]string

	// indices caches the hash indices built by Index, keyed by column.
	indices map[string]*Index

	released bool
}

// New creates a snapshot from a header and raw cell rows.
// Rows shorter than the header are treated as having blank trailing cells.
func New(name string, columns []string, rows [][]string) *Snapshot {
	return &Snapshot{
		name:    name,
		hdr:     newHeader(columns),
		rows:    rows,
		indices: make(map[string]*Index),
	}
}

// Name returns the logical table name.
func (s *Snapshot) Name() string {
	return s.name
}

// Columns returns the column names in source order.
func (s *Snapshot) Columns() []string {
	out := make([]string, len(s.hdr.columns))
	copy(out, s.hdr.columns)
	return out
}

// HasColumn reports whether the snapshot carries the named column.
func (s *Snapshot) HasColumn(column string) bool {
	_, ok := s.hdr.position(column)
	return ok
}

// Len returns the number of rows. A released snapshot has no rows.
func (s *Snapshot) Len() int {
	return len(s.rows)
}

// Row returns the i-th row (0-based).
func (s *Snapshot) Row(i int) Row {
	return Row{hdr: s.hdr, cells: s.rows[i], Number: i + 1}
}

// Rows returns all rows in source order.
func (s *Snapshot) Rows() []Row {
	out := make([]Row, len(s.rows))
	for i := range s.rows {
		out[i] = s.Row(i)
	}
	return out
}

// Each calls fn for every row in source order and stops at the first error.
func (s *Snapshot) Each(fn func(Row) error) error {
	for i := range s.rows {
		if err := fn(s.Row(i)); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SELECTION
// =============================================================================

// Select returns the rows matching the predicate, in source order.
// A nil predicate matches every row.
func (s *Snapshot) Select(pred Predicate) []Row {
	var out []Row
	for i := range s.rows {
		row := s.Row(i)
		if pred == nil || pred(row) {
			out = append(out, row)
		}
	}
	return out
}

// Filter returns a new snapshot holding only the matching rows.
// The cell slices are shared with the parent; releasing either one does not
// affect the other's ability to hand out rows it still references.
func (s *Snapshot) Filter(name string, pred Predicate) *Snapshot {
	var rows [][]string
	for i, cells := range s.rows {
		if pred == nil || pred(s.Row(i)) {
			rows = append(rows, cells)
		}
	}
	return &Snapshot{
		name:    name,
		hdr:     s.hdr,
		rows:    rows,
		indices: make(map[string]*Index),
	}
}

// Project returns a new snapshot restricted to the named columns. Columns
// the snapshot does not carry are kept in the header with blank cells.
func (s *Snapshot) Project(columns ...string) *Snapshot {
	positions := make([]int, len(columns))
	for i, col := range columns {
		if p, ok := s.hdr.position(col); ok {
			positions[i] = p
		} else {
			positions[i] = -1
		}
	}

	rows := make([][]string, len(s.rows))
	for r, cells := range s.rows {
		projected := make([]string, len(columns))
		for i, p := range positions {
			if p >= 0 && p < len(cells) {
				projected[i] = cells[p]
			}
		}
		rows[r] = projected
	}

	return New(s.name, columns, rows)
}

// =============================================================================
// INDICES
// =============================================================================

// Index returns the hash index for the column, building it on first use.
func (s *Snapshot) Index(column string) *Index {
	key := strings.ToLower(strings.TrimSpace(column))
	if ix, ok := s.indices[key]; ok {
		return ix
	}

	ix := newIndex(column)
	for i := range s.rows {
		row := s.Row(i)
		ix.add(row.Get(column), row)
	}
	s.indices[key] = ix
	return ix
}

// =============================================================================
// RELEASE
// =============================================================================

// Release drops every row and index held by the snapshot.
// It is safe to call more than once.
func (s *Snapshot) Release() {
	s.rows = nil
	s.indices = make(map[string]*Index)
	s.released = true
}

// Released reports whether Release has been called.
func (s *Snapshot) Released() bool {
	return s.released
}

// Set is the group of snapshots a single stage extracted. Releasing the set
// releases every member.
type Set []*Snapshot

// Release releases every snapshot in the set.
func (ss Set) Release() {
	for _, s := range ss {
		if s != nil {
			s.Release()
		}
	}
}
