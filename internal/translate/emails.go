package translate

import (
	"strconv"
	"strings"

	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

// Communications columns.
const (
	ColCommType  = "CommType"
	ColCommValue = "CommValue"
)

// EmailIndex splits the communications table once into the three subsets
// the email chain consults, each indexed by its join column.
type EmailIndex struct {
	individual *snapshot.Index // email rows by IndividualId
	login      *snapshot.Index // login rows by IndividualId
	household  *snapshot.Index // email rows with no individual, by HouseholdId
	subsets    snapshot.Set
}

func isEmailType(r snapshot.Row) bool {
	return strings.Contains(strings.ToLower(r.Get(ColCommType)), "email")
}

// NewEmailIndex builds the index. The derived snapshots share cells with
// comms; Release drops them.
func NewEmailIndex(comms *snapshot.Snapshot) *EmailIndex {
	email := snapshot.Func(isEmailType)
	withValue := snapshot.Present(ColCommValue)

	individual := comms.Filter("individual_email",
		snapshot.And(email, withValue, snapshot.Present(ColIndividualID)))
	login := comms.Filter("login",
		snapshot.And(snapshot.Eq(ColCommType, "Login"), withValue, snapshot.Present(ColIndividualID)))
	hh := comms.Filter("household_email",
		snapshot.And(email, withValue, snapshot.Blank(ColIndividualID), snapshot.Present(ColHouseholdID)))

	return &EmailIndex{
		individual: individual.Index(ColIndividualID),
		login:      login.Index(ColIndividualID),
		household:  hh.Index(ColHouseholdID),
		subsets:    snapshot.Set{individual, login, hh},
	}
}

// Release drops the derived subsets.
func (e *EmailIndex) Release() {
	if e == nil {
		return
	}
	e.subsets.Release()
	*e = EmailIndex{}
}

// Resolve walks the email chain for one person:
// individual email → login → household email (adults only).
// It returns the chosen address and every other distinct address found,
// which become search keys.
func (e *EmailIndex) Resolve(personID int, householdID *int, adult bool) (primary string, others []string) {
	if e == nil || e.individual == nil {
		return "", nil
	}

	var candidates []string
	for _, r := range e.individual.LookupInt(personID) {
		candidates = append(candidates, r.Get(ColCommValue))
	}
	for _, r := range e.login.LookupInt(personID) {
		candidates = append(candidates, r.Get(ColCommValue))
	}
	if adult && householdID != nil {
		for _, r := range e.household.LookupInt(*householdID) {
			candidates = append(candidates, r.Get(ColCommValue))
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		key := strings.ToLower(c)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if primary == "" {
			primary = c
			continue
		}
		others = append(others, c)
	}
	return primary, others
}

// Household returns the first household-level email.
func (e *EmailIndex) Household(householdID int) string {
	if e == nil || e.household == nil {
		return ""
	}
	if r, ok := e.household.First(strconv.Itoa(householdID)); ok {
		return r.Get(ColCommValue)
	}
	return ""
}
