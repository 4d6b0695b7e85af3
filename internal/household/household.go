// =============================================================================
// chms-migrate - Household Resolver
// =============================================================================
//
// Many source records (addresses, phones, notes, pledges, contributions) name
// a household but no individual. The resolver maps such a household to one
// representative person so the canonical record still has a PersonId.
//
// RESOLUTION ORDER (when no explicit individual is given):
//   1. The head of household
//   2. The first non-visitor member, in source row order
//   3. The first member of any kind, visitors included
//   4. Nothing; the caller drops the record
//
// Givers add a fifth step before giving up: a household known to be a
// company resolves to its business alias (identity.BusinessID).
//
// The resolver is built once per stage from the individuals table and
// dropped with the stage's other state.
//
// =============================================================================

package household

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// Source columns read from the individuals table.
const (
	ColIndividualID   = "IndividualId"
	ColHouseholdID    = "HouseholdId"
	ColFamilyPosition = "FamilyPosition"
)

// Family positions as they appear in the legacy export.
const (
	PositionHead    = "Head"
	PositionSpouse  = "Spouse"
	PositionChild   = "Child"
	PositionVisitor = "Visitor"
)

// ErrMissingColumns is returned by Build when the individuals snapshot lacks
// the id columns the resolver joins on.
var ErrMissingColumns = errors.New("household: individuals snapshot is missing id columns")

// Via records which step of the fallback chain produced a person.
type Via int

const (
	ViaNone Via = iota
	ViaExplicit
	ViaHead
	ViaMember
	ViaVisitor
	ViaBusiness
)

func (v Via) String() string {
	switch v {
	case ViaExplicit:
		return "explicit"
	case ViaHead:
		return "head"
	case ViaMember:
		return "member"
	case ViaVisitor:
		return "visitor"
	case ViaBusiness:
		return "business"
	}
	return "none"
}

// Member is one individual of a household.
type Member struct {
	IndividualID int
	HouseholdID  int
	Position     string
	Visitor      bool
	Row          snapshot.Row
}

// IsHead reports whether the member is flagged head of household.
func (m Member) IsHead() bool {
	return strings.EqualFold(m.Position, PositionHead)
}

// IsAdult reports whether the member counts as an adult for family-level
// lookups such as the household email.
func (m Member) IsAdult() bool {
	switch {
	case strings.EqualFold(m.Position, PositionHead),
		strings.EqualFold(m.Position, PositionSpouse),
		strings.EqualFold(m.Position, PositionVisitor):
		return true
	}
	return false
}

// Resolution is the outcome of a successful lookup.
type Resolution struct {
	PersonID int
	Via      Via
}

// Filter restricts which members may stand in for a household.
type Filter func(Member) bool

// Resolver answers household questions for one stage.
type Resolver struct {
	heads     map[int]Member
	members   map[int][]Member
	byID      map[int]Member
	companies map[int]struct{}
	skipped   int
}

// Build indexes the individuals snapshot. Rows without a parseable
// IndividualId or HouseholdId are skipped and counted. The first head seen
// for a household wins.
func Build(individuals *snapshot.Snapshot) (*Resolver, error) {
	if individuals == nil {
		return nil, fmt.Errorf("%w: nil snapshot", ErrMissingColumns)
	}
	if !individuals.HasColumn(ColIndividualID) || !individuals.HasColumn(ColHouseholdID) {
		return nil, fmt.Errorf("%w: %s needs %s and %s", ErrMissingColumns, individuals.Name(), ColIndividualID, ColHouseholdID)
	}

	r := &Resolver{
		heads:     make(map[int]Member),
		members:   make(map[int][]Member),
		byID:      make(map[int]Member),
		companies: make(map[int]struct{}),
	}

	for _, row := range individuals.Rows() {
		ind, okI, errI := row.Int(ColIndividualID)
		hh, okH, errH := row.Int(ColHouseholdID)
		if !okI || !okH || errI != nil || errH != nil {
			r.skipped++
			continue
		}

		pos := row.Get(ColFamilyPosition)
		m := Member{
			IndividualID: ind,
			HouseholdID:  hh,
			Position:     pos,
			Visitor:      strings.EqualFold(pos, PositionVisitor),
			Row:          row,
		}
		r.members[hh] = append(r.members[hh], m)
		if _, dup := r.byID[ind]; !dup {
			r.byID[ind] = m
		}
		if _, seen := r.heads[hh]; !seen && m.IsHead() {
			r.heads[hh] = m
		}
	}

	return r, nil
}

// WithCompanies marks households that represent organizations. It returns
// the resolver for chaining.
func (r *Resolver) WithCompanies(householdIDs ...int) *Resolver {
	for _, id := range householdIDs {
		r.companies[id] = struct{}{}
	}
	return r
}

// IsCompany reports whether the household was marked as a company.
func (r *Resolver) IsCompany(householdID int) bool {
	_, ok := r.companies[householdID]
	return ok
}

// Head returns the head of household, if one was declared.
func (r *Resolver) Head(householdID int) (Member, bool) {
	m, ok := r.heads[householdID]
	return m, ok
}

// HeadMap returns household id → head individual id.
func (r *Resolver) HeadMap() map[int]int {
	out := make(map[int]int, len(r.heads))
	for hh, m := range r.heads {
		out[hh] = m.IndividualID
	}
	return out
}

// Members returns the household's members in source order.
func (r *Resolver) Members(householdID int) []Member {
	return r.members[householdID]
}

// Individual returns the member record for an individual id.
func (r *Resolver) Individual(individualID int) (Member, bool) {
	m, ok := r.byID[individualID]
	return m, ok
}

// Skipped returns how many individuals rows had unusable ids.
func (r *Resolver) Skipped() int {
	return r.skipped
}

// Resolve returns the person a record should be attributed to. A non-nil
// individualID wins outright; otherwise the household is walked in the
// documented order. Filters, when given, apply to the household steps.
func (r *Resolver) Resolve(individualID, householdID *int, filters ...Filter) (Resolution, bool) {
	if individualID != nil {
		return Resolution{PersonID: *individualID, Via: ViaExplicit}, true
	}
	if householdID == nil {
		return Resolution{}, false
	}
	return r.resolveHousehold(*householdID, filters)
}

// ResolveGiver is Resolve with the business alias as the last resort for
// company households.
func (r *Resolver) ResolveGiver(individualID, householdID *int) (Resolution, bool) {
	if res, ok := r.Resolve(individualID, householdID); ok {
		return res, true
	}
	if householdID != nil && r.IsCompany(*householdID) {
		return Resolution{PersonID: identity.BusinessID(*householdID), Via: ViaBusiness}, true
	}
	return Resolution{}, false
}

func (r *Resolver) resolveHousehold(householdID int, filters []Filter) (Resolution, bool) {
	keep := func(m Member) bool {
		for _, f := range filters {
			if !f(m) {
				return false
			}
		}
		return true
	}

	if head, ok := r.heads[householdID]; ok && keep(head) {
		return Resolution{PersonID: head.IndividualID, Via: ViaHead}, true
	}

	members := r.members[householdID]
	for _, m := range members {
		if !m.Visitor && keep(m) {
			return Resolution{PersonID: m.IndividualID, Via: ViaMember}, true
		}
	}
	for _, m := range members {
		if keep(m) {
			return Resolution{PersonID: m.IndividualID, Via: ViaVisitor}, true
		}
	}
	return Resolution{}, false
}

// Adults is a Filter that keeps heads, spouses and visitors.
func Adults(m Member) bool {
	return m.IsAdult()
}
