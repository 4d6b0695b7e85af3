package snapshot

import "strconv"

// Index is a hash index over one column of a snapshot. Buckets keep rows in
// source order, so First is the first matching row in the export.
type Index struct {
	column  string
	buckets map[string][]Row
	order   []string
}

func newIndex(column string) *Index {
	return &Index{
		column:  column,
		buckets: make(map[string][]Row),
	}
}

func (ix *Index) add(value string, row Row) {
	key := NormalizeKey(value)
	if _, ok := ix.buckets[key]; !ok {
		ix.order = append(ix.order, key)
	}
	ix.buckets[key] = append(ix.buckets[key], row)
}

// Column returns the indexed column name.
func (ix *Index) Column() string {
	return ix.column
}

// Lookup returns every row whose indexed column equals key.
func (ix *Index) Lookup(key string) []Row {
	return ix.buckets[NormalizeKey(key)]
}

// LookupInt is Lookup for integer keys.
func (ix *Index) LookupInt(key int) []Row {
	return ix.Lookup(strconv.Itoa(key))
}

// First returns the first row whose indexed column equals key.
func (ix *Index) First(key string) (Row, bool) {
	rows := ix.Lookup(key)
	if len(rows) == 0 {
		return Row{}, false
	}
	return rows[0], true
}

// Keys returns the distinct normalized keys in first-seen order. The blank
// key is included when some rows have no value.
func (ix *Index) Keys() []string {
	out := make([]string, len(ix.order))
	copy(out, ix.order)
	return out
}

// Len returns the number of distinct keys.
func (ix *Index) Len() int {
	return len(ix.order)
}
