package translate

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/chms-migrate/internal/household"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// row builds a single-row snapshot and returns its row.
func row(cols []string, vals ...string) snapshot.Row {
	return snapshot.New("t", cols, [][]string{vals}).Row(0)
}

var individualCols = []string{
	"IndividualId", "HouseholdId", "FamilyPosition", "FirstName", "MiddleName", "LastName",
	"Gender", "MaritalStatus", "DateOfBirth", "MemberStatus", "SubStatus", "EnvelopeNumber", "DateJoined",
}

func testIndividuals() *snapshot.Snapshot {
	return snapshot.New("individuals", individualCols, [][]string{
		{"100", "42", "Head", "Ann", "", "Smith", "F", "M", "1970-05-01", "Member", "North Campus", "17", "2001-09-09"},
		{"101", "42", "Spouse", "Bob", "", "Smith", "M", "M", "", "Member", "South Campus", "", ""},
		{"102", "42", "Child", "Cal", "", "Smith", "M", "S", "", "", "", "", ""},
		{"103", "42", "Visitor", "Dee", "Q", "Jones", "F", "", "", "", "", "", ""},
		{"104", "42", "Grandparent", "Eve", "", "Smith", "F", "W", "", "Moved", "", "", ""},
		{"200", "7", "Spouse", "Fay", "", "Lee", "", "", "", "", "Downtown", "", ""},
	})
}

func testContext(t *testing.T) *Context {
	t.Helper()
	r, err := household.Build(testIndividuals())
	if err != nil {
		t.Fatalf("household.Build: %v", err)
	}
	r.WithCompanies(500)

	comms := snapshot.New("communications",
		[]string{"HouseholdId", "IndividualId", "CommType", "CommValue"},
		[][]string{
			{"42", "101", "Login", "bob@login.example"},
			{"42", "", "Email", "smiths@example.com"},
			{"42", "100", "Email", "ann@example.com"},
			{"42", "100", "Work Email", "ann@work.example"},
			{"42", "100", "Login", "ANN@example.com"},
		})

	ctx := NewContext()
	ctx.Households = r
	ctx.Emails = NewEmailIndex(comms)
	ctx.Allocator = identity.NewAllocator(identity.FallbackRehash, 0)
	return ctx
}

// =============================================================================
// PEOPLE
// =============================================================================

func TestPerson_Rules(t *testing.T) {
	ctx := testContext(t)
	rows := testIndividuals().Rows()

	out := map[int]*types.Person{}
	for _, r := range rows {
		o := Person(r, ctx)
		if !o.OK {
			t.Fatalf("row %d dropped: %v", r.Number, o.Warnings)
		}
		out[o.Record.Id] = o.Record
	}

	head := out[100]
	if head.FamilyRole != types.RoleAdult || head.FamilyId != 42 || head.FamilyName != "Smith Family" {
		t.Errorf("head = %+v", head)
	}
	if head.Gender != "Female" || head.MaritalStatus != "Married" || head.Birthdate == nil {
		t.Errorf("head demographics = %q %q %v", head.Gender, head.MaritalStatus, head.Birthdate)
	}
	if head.Email != "ann@example.com" {
		t.Errorf("head email = %q", head.Email)
	}
	if diff := cmp.Diff([]string{"ann@work.example", "smiths@example.com"}, head.SearchKeys); diff != "" {
		t.Errorf("head search keys (-want +got):\n%s", diff)
	}
	wantAttrs := []types.AttributeValue{{Key: "EnvelopeNumber", Value: "17"}, {Key: "DateJoined", Value: "2001-09-09"}}
	if diff := cmp.Diff(wantAttrs, head.Attributes); diff != "" {
		t.Errorf("head attributes (-want +got):\n%s", diff)
	}

	// Spouse: login before household email; campus comes from the head.
	spouse := out[101]
	if spouse.Email != "bob@login.example" {
		t.Errorf("spouse email = %q", spouse.Email)
	}
	if spouse.CampusName != "North Campus" || spouse.CampusId == nil || *spouse.CampusId != identity.DeriveID("North Campus") {
		t.Errorf("spouse campus = %q %v", spouse.CampusName, spouse.CampusId)
	}

	// Children never get the household email.
	if child := out[102]; child.FamilyRole != types.RoleChild || child.Email != "" {
		t.Errorf("child = role %q email %q", child.FamilyRole, child.Email)
	}

	// Visitor is re-keyed out of the household.
	visitor := out[103]
	if visitor.FamilyId != identity.DeriveID("Dee", "Q", "Jones") || visitor.FamilyRole != types.RoleAdult {
		t.Errorf("visitor family = %d role %q", visitor.FamilyId, visitor.FamilyRole)
	}
	if !strings.Contains(visitor.Note, "Visitor of household 42") {
		t.Errorf("visitor note = %q", visitor.Note)
	}
	if visitor.Email != "" || len(visitor.SearchKeys) != 0 {
		t.Errorf("visitor got household email %q, keys %v", visitor.Email, visitor.SearchKeys)
	}

	// Unrecognized role becomes Child with a note; Moved is inactive.
	gp := out[104]
	if gp.FamilyRole != types.RoleChild || !strings.Contains(gp.Note, `unrecognized family position "Grandparent"`) {
		t.Errorf("grandparent role %q note %q", gp.FamilyRole, gp.Note)
	}
	if gp.RecordStatus != types.StatusInactive || gp.InactiveReason != "Moved" {
		t.Errorf("grandparent status %q reason %q", gp.RecordStatus, gp.InactiveReason)
	}

	// No head: campus from the first non-visitor member.
	if lee := out[200]; lee.CampusName != "Downtown" {
		t.Errorf("headless campus = %q", lee.CampusName)
	}
}

func TestPerson_NonFatalRowErrors(t *testing.T) {
	ctx := NewContext()
	cols := []string{"IndividualId", "HouseholdId", "FamilyPosition", "FirstName", "LastName", "DateOfBirth", "Gender"}
	s := snapshot.New("individuals", cols, [][]string{
		{"1", "10", "Head", "", "", "not-a-date", "X"},
		{"", "10", "Child", "No", "Id"},
		{"3", "abc", "Child", "Bad", "Household"},
	})

	var emitted []*types.Person
	for _, r := range s.Rows() {
		if o := Person(r, ctx); o.OK {
			emitted = append(emitted, o.Record)
		}
	}

	if len(emitted) != 2 {
		t.Fatalf("emitted %d people, want 2", len(emitted))
	}
	first := emitted[0]
	for _, want := range []string{"missing first and last name", "DateOfBirth", `unrecognized value "X"`} {
		if !strings.Contains(first.Note, want) {
			t.Errorf("note %q missing %q", first.Note, want)
		}
	}
	if emitted[1].FamilyId != 3 {
		t.Errorf("bad household falls back to own family, got %d", emitted[1].FamilyId)
	}
}

func TestAddressAndPhone_Owner(t *testing.T) {
	ctx := testContext(t)
	addrCols := []string{"HouseholdId", "IndividualId", "AddressType", "Address1", "City"}

	tests := []struct {
		name   string
		row    snapshot.Row
		person int
		ok     bool
	}{
		{"household to head", row(addrCols, "42", "", "Home", "1 Main St", "Town"), 100, true},
		{"explicit individual", row(addrCols, "42", "102", "Work", "", "Town"), 102, true},
		{"company alias", row(addrCols, "500", "", "", "9 Office Rd", ""), identity.BusinessID(500), true},
		{"empty household", row(addrCols, "999", "", "", "1 Main St", ""), 0, false},
		{"no street or city", row(addrCols, "42", "", "", "", ""), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Address(tt.row, ctx)
			if o.OK != tt.ok {
				t.Fatalf("OK = %v, warnings %v", o.OK, o.Warnings)
			}
			if o.OK && o.Record.PersonID != tt.person {
				t.Errorf("PersonID = %d, want %d", o.Record.PersonID, tt.person)
			}
		})
	}

	phoneCols := []string{"HouseholdId", "IndividualId", "PhoneType", "PhoneNumber"}
	o := Phone(row(phoneCols, "42", "", "Cell", "(555) 123-4567"), ctx)
	want := types.PhoneNumber{PhoneType: "Mobile", Number: "5551234567", IsMessagingEnabled: true}
	if !o.OK || o.Record.PersonID != 100 {
		t.Fatalf("Phone = %+v", o)
	}
	if diff := cmp.Diff(want, o.Record.Value); diff != "" {
		t.Errorf("Phone (-want +got):\n%s", diff)
	}
	if o := Phone(row(phoneCols, "42", "", "Home", "n/a"), ctx); o.OK {
		t.Error("phone without digits should be dropped")
	}
}

func TestAttribute_KeyAndValue(t *testing.T) {
	cols := []string{"IndividualId", "AttributeGroup", "AttributeName", "AttributeValue", "AttributeDate"}
	tests := []struct {
		name      string
		row       snapshot.Row
		key       string
		value     string
		fieldType string
	}{
		{"value", row(cols, "1", "Spiritual Gifts", "Teaching", "Yes", ""), "SpiritualGiftsTeaching", "Yes", "Text"},
		{"date", row(cols, "1", "Milestones", "Baptized!", "", "4/5/2010"), "MilestonesBaptized", "2010-04-05", "Date"},
		{"flag", row(cols, "1", "Skills", "Sound Desk", "", ""), "SkillsSoundDesk", "True", "Boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Attribute(tt.row, NewContext())
			if !o.OK {
				t.Fatalf("dropped: %v", o.Warnings)
			}
			if o.Record.Value.Key != tt.key || o.Record.Value.Value != tt.value || o.Record.Definition.FieldType != tt.fieldType {
				t.Errorf("got %+v %+v", o.Record.Value, o.Record.Definition)
			}
			if o.Record.Definition.Id != identity.DeriveID(tt.key) {
				t.Errorf("definition id = %d", o.Record.Definition.Id)
			}
		})
	}
}

func TestBusiness(t *testing.T) {
	ctx := testContext(t)
	ctx.Addresses = map[int][]types.Address{identity.BusinessID(500): {{Street1: "9 Office Rd"}}}

	o := Business(row([]string{"HouseholdId", "CompanyName", "Status"}, "500", " Acme  Corp ", "Inactive"), ctx)
	if !o.OK {
		t.Fatalf("dropped: %v", o.Warnings)
	}
	b := o.Record
	if b.Id != identity.BusinessID(500) || b.Name != "Acme Corp" || b.RecordStatus != types.StatusInactive || len(b.Addresses) != 1 {
		t.Errorf("business = %+v", b)
	}
}

// =============================================================================
// FINANCIAL
// =============================================================================

var fundCols = []string{"FundName", "SubFundName", "TaxDeductible"}

func TestAccount_MissionsHaiti(t *testing.T) {
	fund := Account(row(fundCols, "Missions", "", "1"), nil)
	if !fund.OK {
		t.Fatalf("fund dropped: %v", fund.Warnings)
	}
	if fund.Record.Account.Id != identity.DeriveID("Missions", "1") || fund.Record.Account.ParentAccountId != nil {
		t.Errorf("fund account = %+v", fund.Record.Account)
	}

	sub := Account(row(fundCols, "Missions", "Haiti", "1"), nil)
	a := sub.Record.Account
	if a.Id != identity.DeriveID("Missions", "Haiti", "1") || a.Name != "Haiti" {
		t.Errorf("sub account = %+v", a)
	}
	if a.ParentAccountId == nil || *a.ParentAccountId != identity.DeriveID("Missions", "1") {
		t.Errorf("sub parent = %v", a.ParentAccountId)
	}
}

func TestAccountSet_SynthesizesParents(t *testing.T) {
	set := NewAccountSet()

	added := set.Add(Account(row(fundCols, "General", "Building", "1"), nil).Record)
	if len(added) != 2 || added[0].Name != "General" || added[0].ParentAccountId != nil {
		t.Fatalf("first Add = %+v", added)
	}
	if added[0].Id != identity.DeriveID("General", "1") {
		t.Errorf("parent id = %d", added[0].Id)
	}

	if again := set.Add(Account(row(fundCols, "General", "", "1"), nil).Record); len(again) != 0 {
		t.Errorf("duplicate fund added %d accounts", len(again))
	}
	if got := len(set.Accounts()); got != 2 {
		t.Errorf("Accounts() = %d", got)
	}
}

var contributionCols = []string{
	"ContributionId", "DetailId", "IndividualId", "HouseholdId", "BatchId", "ReceivedDate",
	"PaymentType", "FundName", "SubFundName", "TaxDeductible", "Amount", "Memo",
}

func TestAccountHierarchyConsistency(t *testing.T) {
	set := NewAccountSet()
	set.Add(Account(row(fundCols, "General", "Building", "1"), nil).Record)

	r := row(contributionCols, "9", "", "100", "", "", "2021-03-07", "Check", "General", "Building", "1", "25.00", "")
	d := Detail(r, nil)
	if !d.OK {
		t.Fatalf("detail dropped: %v", d.Warnings)
	}
	if !set.Contains(d.Record.AccountId) {
		t.Errorf("detail account %d not emitted by accounts", d.Record.AccountId)
	}
	_, parent := FundRef{Fund: "General", SubFund: "Building", TaxDeductible: true}.IDs()
	if !set.Contains(*parent) {
		t.Errorf("parent %d not emitted by accounts", *parent)
	}
}

func TestTransaction_PersonChainAndBatch(t *testing.T) {
	ctx := testContext(t)

	tests := []struct {
		name    string
		row     snapshot.Row
		person  *int
		batch   int
		warning string
	}{
		{"explicit", row(contributionCols, "1", "", "102", "42", "77", "2021-03-07", "Cash", "General", "", "1", "5", ""), types.IntPtr(102), 77, ""},
		{"household head, synthetic batch", row(contributionCols, "2", "", "", "42", "", "3/7/2021", "Check", "General", "", "1", "5", ""), types.IntPtr(100), 920210307, ""},
		{"company", row(contributionCols, "3", "", "", "500", "", "2021-03-08", "ACH", "General", "", "1", "5", ""), types.IntPtr(identity.BusinessID(500)), 920210308, ""},
		{"unresolved", row(contributionCols, "4", "", "", "999", "", "2021-03-08", "Cash", "General", "", "1", "5", "thanks"), nil, 920210308, "no person found for household 999"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Transaction(tt.row, ctx)
			if !o.OK {
				t.Fatalf("dropped: %v", o.Warnings)
			}
			txn := o.Record
			if diff := cmp.Diff(tt.person, txn.AuthorizedPersonId); diff != "" {
				t.Errorf("AuthorizedPersonId (-want +got):\n%s", diff)
			}
			if txn.BatchId != tt.batch {
				t.Errorf("BatchId = %d, want %d", txn.BatchId, tt.batch)
			}
			if tt.warning != "" && !strings.Contains(txn.Summary, tt.warning) {
				t.Errorf("Summary = %q, want %q", txn.Summary, tt.warning)
			}
		})
	}
}

func TestSyntheticBatches(t *testing.T) {
	s := snapshot.New("contributions", contributionCols, [][]string{
		{"1", "", "100", "", "", "2021-03-07 09:00", "", "General", "", "1", "10.50", ""},
		{"2", "", "100", "", "55", "2021-03-07", "", "General", "", "1", "99", ""},
		{"3", "", "100", "", "", "2021-03-07 18:00", "", "General", "", "1", "$4.50", ""},
		{"4", "", "100", "", "", "2021-03-08", "", "General", "", "1", "1", ""},
	})

	sb := NewSyntheticBatches()
	for _, r := range s.Rows() {
		sb.Add(r)
	}
	got := sb.Batches()
	if len(got) != 2 {
		t.Fatalf("got %d synthetic batches", len(got))
	}
	if got[0].Id != 920210307 || !got[0].ControlAmount.Equal(decimal.RequireFromString("15")) {
		t.Errorf("first bucket = %d %s", got[0].Id, got[0].ControlAmount)
	}
	if got[1].StartDate == nil || !got[1].StartDate.Equal(time.Date(2021, 3, 8, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("second bucket start = %v", got[1].StartDate)
	}
}

func TestPledge_Household42(t *testing.T) {
	ctx := testContext(t)
	cols := []string{"PledgeId", "IndividualId", "HouseholdId", "FundName", "SubFundName", "TaxDeductible", "Amount", "Frequency"}

	o := Pledge(row(cols, "5", "", "42", "Missions", "Haiti", "1", "1200", "monthly"), ctx)
	if !o.OK {
		t.Fatalf("dropped: %v", o.Warnings)
	}
	p := o.Record
	if p.PersonId != 100 {
		t.Errorf("PersonId = %d, want 100", p.PersonId)
	}
	if p.AccountId != identity.DeriveID("Missions", "Haiti", "1") || p.PledgeFrequency != "Monthly" {
		t.Errorf("pledge = %+v", p)
	}

	if o := Pledge(row(cols, "6", "", "999", "Missions", "", "1", "1", ""), ctx); o.OK {
		t.Error("pledge for an empty household should be dropped")
	}
}

// =============================================================================
// GROUPS
// =============================================================================

var groupCols = []string{"GroupId", "GroupName", "ParentGroupId", "GroupTypeId", "GroupTypeName", "CampusName"}

func TestGroup_Identity(t *testing.T) {
	verbatim := Group(row(groupCols, "12", "Youth", "", "3", "Classes", ""), nil)
	if !verbatim.OK || verbatim.Record.Id != 12 || *verbatim.Record.ParentGroupId != 900000003 {
		t.Errorf("verbatim = %+v", verbatim.Record)
	}

	derived := Group(row(groupCols, "", "Youth", "", "3", "", "North"), nil)
	if !derived.OK || derived.Record.Id != identity.GroupID("Youth", 900000003) {
		t.Errorf("derived = %+v", derived.Record)
	}
	if derived.Record.CampusId == nil {
		t.Error("derived group lost its campus")
	}

	withParent := Group(row(groupCols, "", "Youth", "12", "3", "", ""), nil)
	if withParent.Record.Id == derived.Record.Id {
		t.Error("explicit parent should change the derived id")
	}

	if o := Group(row(groupCols, "", "", "", "3", "", ""), nil); o.OK {
		t.Error("group with no id and no name should be dropped")
	}

	gt := GroupType(row(groupCols, "", "", "", "3", "", ""), nil)
	if root := RootGroup(gt.Record); root.Id != 900000003 || root.Name != "Group Type 3" || root.ParentGroupId != nil {
		t.Errorf("root = %+v", root)
	}
}

func TestGroupMember_SharesGroupRef(t *testing.T) {
	cols := []string{"GroupId", "GroupName", "ParentGroupId", "GroupTypeId", "IndividualId", "Role"}
	m := GroupMember(row(cols, "", "Youth", "", "3", "100", "Teacher"), NewContext())
	if !m.OK {
		t.Fatalf("dropped: %v", m.Warnings)
	}
	g := Group(row(groupCols, "", "Youth", "", "3", "", ""), nil)
	if m.Record.GroupId != g.Record.Id || m.Record.Role != "Leader" {
		t.Errorf("member = %+v, group %d", m.Record, g.Record.Id)
	}
}

var attendanceCols = []string{"AttendanceId", "IndividualId", "GroupId", "GroupTypeId", "StartDateTime"}

func TestAttendance_Collision(t *testing.T) {
	ctx := NewContext()
	ctx.Allocator = identity.NewAllocator(identity.FallbackRandom, 0)

	r := row(attendanceCols, "", "100", "12", "3", "2021-03-07T09:00:00")
	first := Attendance(r, ctx)
	second := Attendance(r, ctx)
	if !first.OK || !second.OK {
		t.Fatalf("dropped: %v %v", first.Warnings, second.Warnings)
	}

	if first.Record.Id != identity.DeriveID("100", "12", "2021-03-07T09:00:00") {
		t.Errorf("first id = %d", first.Record.Id)
	}
	if second.Record.Id == first.Record.Id {
		t.Fatal("second id should differ from the first")
	}
	if !ctx.Allocator.Contains(second.Record.Id) {
		t.Error("fallback id missing from the uniqueness set")
	}
	if !strings.Contains(second.Record.Note, "collided") {
		t.Errorf("second note = %q", second.Record.Note)
	}
}

func TestAttendance_SourceIDAndDrops(t *testing.T) {
	ctx := NewContext()
	ctx.Allocator = identity.NewAllocator(identity.FallbackRehash, 0)

	o := Attendance(row(attendanceCols, "555", "100", "12", "3", "2021-03-07"), ctx)
	if !o.OK || o.Record.Id != 555 || !ctx.Allocator.Contains(555) {
		t.Errorf("source id = %+v", o.Record)
	}
	repeat := Attendance(row(attendanceCols, "555", "101", "12", "3", "2021-03-08"), ctx)
	if repeat.OK {
		t.Errorf("repeated source id kept: %+v", repeat.Record)
	}
	if len(repeat.Warnings) != 1 || !strings.Contains(repeat.Warnings[0].Message, "repeats an earlier row") {
		t.Errorf("repeat warnings = %v", repeat.Warnings)
	}
	if o := Attendance(row(attendanceCols, "", "100", "12", "3", ""), ctx); o.OK {
		t.Error("attendance without start should be dropped")
	}
	if o := Attendance(row(attendanceCols, "", "", "12", "3", "2021-03-07"), ctx); o.OK {
		t.Error("attendance without person should be dropped")
	}
}

func TestValueMaps_Merge(t *testing.T) {
	vm := DefaultValueMaps()
	vm.Merge(MapGender, map[string]string{" NB ": "Unknown", "W": "Female"}, "")

	for in, want := range map[string]string{"nb": "Unknown", "w": "Female", "Male": "Male"} {
		if got, ok := vm.Get(MapGender).Lookup(in); !ok || got != want {
			t.Errorf("Lookup(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := vm.Get(MapGender).Lookup("??"); ok {
		t.Error("unknown value should report a miss")
	}
}
