// =============================================================================
// chms-migrate - Referential Audit
// =============================================================================
//
// The auditor sits between the pipeline and the package writers. It records
// the id of every record that passes through it and, when the run is over,
// checks every ForeignId those records carry against the ids that were
// actually emitted.
//
// CHECKS:
//   1. Dangling reference: a ForeignId names an id that was never emitted
//      for the referenced kind (error)
//   2. Duplicate id: the same kind emitted the same id twice (warning)
//
//   A reference to a Person is satisfied by a Business with that id, since
//   businesses share the person id space.
//
// ERROR HANDLING:
//   - Issues are collected, never returned from Write
//   - Close returns ErrDangling only when FailOnDangling is set
//
// =============================================================================

package validation

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// ErrDangling is returned by Close when dangling references were found and
// the auditor was told to fail on them.
var ErrDangling = errors.New("dangling references")

// Severity levels.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// =============================================================================
// ISSUES
// =============================================================================

// Issue is one audit finding.
type Issue struct {
	Severity string

	// Kind and ID identify the record the issue is about.
	Kind types.Kind
	ID   int

	// Field, RefKind and RefID are set for reference issues.
	Field   string
	RefKind types.Kind
	RefID   int

	Message string
}

// Error implements the error interface.
func (i *Issue) Error() string {
	if i.Field == "" {
		return fmt.Sprintf("[%s] %s %d: %s", strings.ToUpper(i.Severity), i.Kind, i.ID, i.Message)
	}
	return fmt.Sprintf("[%s] %s %d, Field '%s': %s (%s %d)",
		strings.ToUpper(i.Severity), i.Kind, i.ID, i.Field, i.Message, i.RefKind, i.RefID)
}

// Result summarizes an audit.
type Result struct {
	// Valid is true when there are no errors.
	Valid bool

	Issues       []*Issue
	ErrorCount   int
	WarningCount int

	RecordsChecked    int
	ReferencesChecked int
}

func (r *Result) add(i *Issue) {
	r.Issues = append(r.Issues, i)
	if i.Severity == SeverityError {
		r.ErrorCount++
	} else {
		r.WarningCount++
	}
}

// =============================================================================
// AUDITOR
// =============================================================================

// Options configures an Auditor.
type Options struct {
	// FailOnDangling makes Close return ErrDangling when any reference is
	// left unresolved.
	FailOnDangling bool
}

type pendingRef struct {
	kind types.Kind
	id   int
	ref  types.Reference
}

// Auditor is a types.Writer that forwards records to next and audits them.
type Auditor struct {
	next    types.Writer
	options Options

	ids        map[types.Kind]map[int]struct{}
	refs       []pendingRef
	duplicates []*Issue
	records    int
}

// NewAuditor wraps next. next may be nil to audit without writing.
func NewAuditor(next types.Writer, options Options) *Auditor {
	return &Auditor{
		next:    next,
		options: options,
		ids:     make(map[types.Kind]map[int]struct{}),
	}
}

// Write records r and forwards it.
func (a *Auditor) Write(r types.Record) error {
	kind, id := r.Kind(), r.RecordID()
	a.records++
	a.record(kind, id)

	// Details travel inside their transaction but share one id space.
	if t, ok := r.(*types.FinancialTransaction); ok {
		for _, d := range t.Details {
			a.record(types.KindFinancialTransactionDetail, d.Id)
		}
	}

	for _, ref := range r.References() {
		a.refs = append(a.refs, pendingRef{kind: kind, id: id, ref: ref})
	}

	if a.next == nil {
		return nil
	}
	return a.next.Write(r)
}

func (a *Auditor) record(kind types.Kind, id int) {
	seen := a.ids[kind]
	if seen == nil {
		seen = make(map[int]struct{})
		a.ids[kind] = seen
	}
	if _, dup := seen[id]; dup {
		a.duplicates = append(a.duplicates, &Issue{
			Severity: SeverityWarning,
			Kind:     kind,
			ID:       id,
			Message:  "id emitted more than once",
		})
	}
	seen[id] = struct{}{}
}

// Emitted reports whether a record of kind with id has been written.
func (a *Auditor) Emitted(kind types.Kind, id int) bool {
	if _, ok := a.ids[kind][id]; ok {
		return true
	}
	if kind == types.KindPerson {
		_, ok := a.ids[types.KindBusiness][id]
		return ok
	}
	return false
}

// Result checks every reference seen so far.
func (a *Auditor) Result() *Result {
	res := &Result{RecordsChecked: a.records, ReferencesChecked: len(a.refs)}
	for _, d := range a.duplicates {
		res.add(d)
	}
	for _, p := range a.refs {
		if a.Emitted(p.ref.Kind, p.ref.ID) {
			continue
		}
		res.add(&Issue{
			Severity: SeverityError,
			Kind:     p.kind,
			ID:       p.id,
			Field:    p.ref.Field,
			RefKind:  p.ref.Kind,
			RefID:    p.ref.ID,
			Message:  "reference not emitted",
		})
	}
	res.Valid = res.ErrorCount == 0
	return res
}

// Flush flushes next when it buffers records.
func (a *Auditor) Flush() error {
	if f, ok := a.next.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close closes next when it is an io.Closer, then applies FailOnDangling.
func (a *Auditor) Close() error {
	var errs []error
	if c, ok := a.next.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.options.FailOnDangling {
		if res := a.Result(); res.ErrorCount > 0 {
			errs = append(errs, fmt.Errorf("%w: %d unresolved", ErrDangling, res.ErrorCount))
		}
	}
	return errors.Join(errs...)
}

// =============================================================================
// ISSUE FORMATTING
// =============================================================================

// FormatIssues renders issues one per line.
func FormatIssues(issues []*Issue) string {
	if len(issues) == 0 {
		return "No audit issues found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d audit issue(s):\n\n", len(issues))
	for i, issue := range issues {
		fmt.Fprintf(&b, "%d. %s\n", i+1, issue.Error())
	}
	return b.String()
}

// WriteIssueLog writes the formatted issues to path on fs.
func WriteIssueLog(fs afero.Fs, issues []*Issue, path string) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, []byte(FormatIssues(issues)), 0o644); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}
	return nil
}
