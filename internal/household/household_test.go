package household

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
)

func ptr(v int) *int { return &v }

func individuals() *snapshot.Snapshot {
	return snapshot.New("individuals",
		[]string{"IndividualId", "HouseholdId", "FamilyPosition"},
		[][]string{
			// Household 42: visitor listed first, then a child, then the head.
			{"300", "42", "Visitor"},
			{"200", "42", "Child"},
			{"100", "42", "Head"},
			// Household 7: no head.
			{"701", "7", "Visitor"},
			{"702", "7", "Spouse"},
			// Household 8: visitors only.
			{"801", "8", "Visitor"},
			// Unusable rows.
			{"", "9", "Head"},
			{"x", "9", "Head"},
			// A second head in 42 is ignored.
			{"101", "42.0", "head"},
		})
}

func TestResolve_FallbackOrder(t *testing.T) {
	r, err := Build(individuals())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	tests := []struct {
		name       string
		individual *int
		household  *int
		filters    []Filter
		want       Resolution
		found      bool
	}{
		{"explicit individual wins", ptr(555), ptr(42), nil, Resolution{555, ViaExplicit}, true},
		{"head of household", nil, ptr(42), nil, Resolution{100, ViaHead}, true},
		{"first non-visitor without head", nil, ptr(7), nil, Resolution{702, ViaMember}, true},
		{"visitor as last member", nil, ptr(8), nil, Resolution{801, ViaVisitor}, true},
		{"empty household", nil, ptr(99), nil, Resolution{}, false},
		{"no keys", nil, nil, nil, Resolution{}, false},
		{"filter skips head", nil, ptr(42), []Filter{func(m Member) bool { return !m.IsHead() }}, Resolution{200, ViaMember}, true},
		{"adults only", nil, ptr(7), []Filter{Adults}, Resolution{702, ViaMember}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.individual, tt.household, tt.filters...)
			if ok != tt.found {
				t.Fatalf("Resolve() found = %v, want %v", ok, tt.found)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuild_HeadMapAndSkips(t *testing.T) {
	r, err := Build(individuals())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if diff := cmp.Diff(map[int]int{42: 100}, r.HeadMap()); diff != "" {
		t.Errorf("HeadMap() mismatch (-want +got):\n%s", diff)
	}
	if r.Skipped() != 2 {
		t.Errorf("Skipped() = %d, want 2", r.Skipped())
	}
	if got := len(r.Members(42)); got != 4 {
		t.Errorf("Members(42) = %d, want 4", got)
	}
	if m, ok := r.Individual(702); !ok || m.HouseholdID != 7 || !m.IsAdult() {
		t.Errorf("Individual(702) = %+v, %v", m, ok)
	}
}

func TestResolveGiver_BusinessAlias(t *testing.T) {
	r, err := Build(individuals())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	r.WithCompanies(500)

	got, ok := r.ResolveGiver(nil, ptr(500))
	if !ok || got.Via != ViaBusiness || got.PersonID != math.MaxInt32-500 {
		t.Errorf("ResolveGiver(company) = %+v, %v", got, ok)
	}

	// Households with people resolve to a person even when marked.
	r.WithCompanies(42)
	if got, _ := r.ResolveGiver(nil, ptr(42)); got.PersonID != 100 {
		t.Errorf("ResolveGiver(42) = %+v, want head", got)
	}

	if _, ok := r.ResolveGiver(nil, ptr(501)); ok {
		t.Error("unknown non-company household should not resolve")
	}
}

func TestBuild_MissingColumns(t *testing.T) {
	s := snapshot.New("people", []string{"Id"}, nil)
	if _, err := Build(s); !errors.Is(err, ErrMissingColumns) {
		t.Fatalf("Build error = %v, want ErrMissingColumns", err)
	}
}
