// =============================================================================
// chms-migrate - Entity Translators
// =============================================================================
//
// A translator maps one source row to one canonical record. Every translator
// has the same shape:
//
//   func(row snapshot.Row, ctx *Context) Outcome[R]
//
// FAILURE POLICY:
//   - A malformed or missing field becomes a Warning. The record is still
//     produced and the warning text is appended to its Note (or Summary).
//   - OK is false only when the row lacks the key that makes the record
//     meaningful (no id, no resolvable person, no group name...). The
//     caller drops the row.
//   - Err is set only for conditions that must stop the stage, such as
//     attendance id exhaustion.
//
// Translators never log and never write; the pipeline does both.
//
// =============================================================================

package translate

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/chms-migrate/internal/household"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// =============================================================================
// OUTCOME
// =============================================================================

// Warning is a recoverable problem found while translating a row.
type Warning struct {
	Row     int
	Field   string
	Message string
}

func (w Warning) String() string {
	if w.Field == "" {
		return w.Message
	}
	return fmt.Sprintf("%s: %s", w.Field, w.Message)
}

// Outcome is the result of translating one row.
type Outcome[R any] struct {
	Record   R
	OK       bool
	Warnings []Warning
	Err      error
}

// Func is the uniform translator signature.
type Func[R any] func(row snapshot.Row, ctx *Context) Outcome[R]

// Notes joins warning texts the way they are stored on a record.
func Notes(ws []Warning) string {
	parts := make([]string, 0, len(ws))
	for _, w := range ws {
		parts = append(parts, w.String())
	}
	return strings.Join(parts, "; ")
}

// appendNote adds text to an existing note, separated by "; ".
func appendNote(note, text string) string {
	switch {
	case text == "":
		return note
	case note == "":
		return text
	}
	return note + "; " + text
}

func emit[R any](r R, ws []Warning) Outcome[R] {
	return Outcome[R]{Record: r, OK: true, Warnings: ws}
}

func drop[R any](ws []Warning) Outcome[R] {
	return Outcome[R]{Warnings: ws}
}

// =============================================================================
// CONTEXT
// =============================================================================

// Attached is a value that belongs to a person (or business) by id.
type Attached[T any] struct {
	PersonID int
	Value    T
}

// Context bundles the per-stage lookups translators consult. Fields a stage
// does not need stay nil.
type Context struct {
	Households *household.Resolver
	Emails     *EmailIndex
	Allocator  *identity.Allocator
	Values     ValueMaps

	// Per-person children collected before people are translated.
	Addresses  map[int][]types.Address
	Phones     map[int][]types.PhoneNumber
	Attributes map[int][]types.AttributeValue
}

// NewContext returns a context with default value maps.
func NewContext() *Context {
	return &Context{Values: DefaultValueMaps()}
}
