package translate

import (
	"fmt"
	"strings"

	"github.com/ginjaninja78/chms-migrate/internal/household"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// Built-in attributes taken from individuals columns. They precede the
// attributes-table fan-out on every person.
var builtinAttributes = []types.PersonAttribute{
	{Key: "EnvelopeNumber", Name: "Envelope Number", Category: "Giving", FieldType: "Integer"},
	{Key: "DateJoined", Name: "Date Joined", Category: "Membership", FieldType: "Date"},
}

// BuiltinAttributes returns the attribute definitions every Individuals run
// emits, with their ids filled in.
func BuiltinAttributes() []*types.PersonAttribute {
	out := make([]*types.PersonAttribute, len(builtinAttributes))
	for i, a := range builtinAttributes {
		a.Id = identity.DeriveID(a.Key)
		out[i] = &a
	}
	return out
}

// Campus derives the campus record for a name. Blank names have no campus.
func Campus(name string) (*types.Campus, bool) {
	name = NormalizeWhitespace(name)
	if name == "" {
		return nil, false
	}
	return &types.Campus{Id: identity.CampusID(name), Name: name}, true
}

// =============================================================================
// PERSON
// =============================================================================

// Person translates an individuals row.
//
// FAMILY ROLE:
//   - Head, Spouse → Adult
//   - Child → Child
//   - Visitor → Adult, re-keyed into a family of their own
//   - anything else → Child, with a note
//
// CAMPUS:
//   Taken from the head of household's SubStatus so a family shares one
//   campus. Households without a head use the resolver's stand-in.
func Person(row snapshot.Row, ctx *Context) Outcome[*types.Person] {
	f := read(row)

	id := f.intPtr(ColIndividualID)
	if id == nil {
		f.warn(ColIndividualID, "missing individual id")
		return drop[*types.Person](f.warnings)
	}

	p := &types.Person{
		Id:           *id,
		FirstName:    f.str(ColFirstName),
		MiddleName:   f.str(ColMiddleName),
		LastName:     f.str(ColLastName),
		NickName:     f.str(ColGoesBy),
		Salutation:   f.str(ColTitle),
		Suffix:       f.str(ColSuffix),
		Grade:        f.str(ColGrade),
		RecordStatus: types.StatusActive,
	}
	if p.FirstName == "" && p.LastName == "" {
		f.warn("Name", "missing first and last name")
	}

	hh := f.intPtr(ColHouseholdID)
	if hh != nil {
		p.FamilyId = *hh
	} else {
		f.warn(ColHouseholdID, "missing household id, person is their own family")
		p.FamilyId = p.Id
	}
	p.FamilyName = familyName(ctx, hh, p.LastName)

	// Family role and visitor re-keying.
	position := f.str(ColFamilyPosition)
	role, known := ctx.Values.Get(MapFamilyRole).Lookup(position)
	p.FamilyRole = role
	switch {
	case position == "":
		f.warn(ColFamilyPosition, "missing family position")
	case !known:
		f.warn(ColFamilyPosition, "unrecognized family position %q", position)
	}
	visitor := strings.EqualFold(position, household.PositionVisitor)
	if visitor {
		if p.FirstName != "" || p.MiddleName != "" || p.LastName != "" {
			p.FamilyId = identity.DeriveID(p.FirstName, p.MiddleName, p.LastName)
			p.FamilyName = strings.TrimSpace(p.LastName + " Family")
			p.GiveIndividually = true
		}
		if hh != nil {
			p.Note = appendNote(p.Note, fmt.Sprintf("Visitor of household %d", *hh))
		}
	}

	p.Gender = lookupWarn(f, ctx.Values.Get(MapGender), ColGender)
	p.MaritalStatus = lookupWarn(f, ctx.Values.Get(MapMaritalStatus), ColMaritalStatus)
	p.Birthdate = f.timePtr(ColDateOfBirth)
	p.CreatedDateTime = f.timePtr(ColCreatedDate)
	p.ModifiedDateTime = f.timePtr(ColModifiedDate)

	// Status.
	status := f.str(ColMemberStatus)
	p.ConnectionStatus = status
	if reason, _ := ctx.Values.Get(MapInactiveStatus).Lookup(status); reason != "" {
		p.RecordStatus = types.StatusInactive
		p.InactiveReason = reason
	}
	p.IsDeceased = f.boolOr(ColDeceased, false) || strings.EqualFold(status, "Deceased")

	// Campus from the head of household.
	if c, ok := Campus(campusSource(ctx, hh, row)); ok {
		p.CampusId = types.IntPtr(c.Id)
		p.CampusName = c.Name
	}

	// Email chain and search keys. Visitors never take the household address.
	if ctx.Emails != nil {
		primary, others := ctx.Emails.Resolve(p.Id, hh, p.FamilyRole == types.RoleAdult && !visitor)
		p.Email = primary
		p.SearchKeys = others
	}

	p.Attributes = append(p.Attributes, builtinValues(f)...)
	p.Attributes = append(p.Attributes, ctx.Attributes[p.Id]...)
	p.Addresses = ctx.Addresses[p.Id]
	p.PhoneNumbers = ctx.Phones[p.Id]

	p.Note = appendNote(p.Note, Notes(f.warnings))
	return emit(p, f.warnings)
}

func lookupWarn(f *fields, m ValueMap, col string) string {
	raw := f.str(col)
	v, known := m.Lookup(raw)
	if !known {
		f.warn(col, "unrecognized value %q", raw)
	}
	return v
}

func familyName(ctx *Context, hh *int, fallback string) string {
	last := fallback
	if hh != nil && ctx.Households != nil {
		if head, ok := ctx.Households.Head(*hh); ok {
			last = firstNonBlank(head.Row.Get(ColLastName), fallback)
		}
	}
	if last == "" {
		return ""
	}
	return last + " Family"
}

// campusSource returns the SubStatus that decides the person's campus.
func campusSource(ctx *Context, hh *int, own snapshot.Row) string {
	if hh == nil || ctx.Households == nil {
		return own.Get(ColSubStatus)
	}
	if head, ok := ctx.Households.Head(*hh); ok {
		return head.Row.Get(ColSubStatus)
	}
	if res, ok := ctx.Households.Resolve(nil, hh); ok {
		if m, found := ctx.Households.Individual(res.PersonID); found {
			return m.Row.Get(ColSubStatus)
		}
	}
	return own.Get(ColSubStatus)
}

func builtinValues(f *fields) []types.AttributeValue {
	var out []types.AttributeValue
	if env := f.str(ColEnvelopeNumber); env != "" {
		out = append(out, types.AttributeValue{Key: "EnvelopeNumber", Value: env})
	}
	if joined := f.timePtr(ColDateJoined); joined != nil {
		out = append(out, types.AttributeValue{Key: "DateJoined", Value: joined.Format("2006-01-02")})
	}
	return out
}

// =============================================================================
// BUSINESS
// =============================================================================

// Business translates a companies row. The id lives in the person space at
// identity.BusinessID(household).
func Business(row snapshot.Row, ctx *Context) Outcome[*types.Business] {
	f := read(row)

	hh := f.intPtr(ColHouseholdID)
	if hh == nil {
		f.warn(ColHouseholdID, "missing household id")
		return drop[*types.Business](f.warnings)
	}

	b := &types.Business{
		Id:           identity.BusinessID(*hh),
		Name:         NormalizeWhitespace(f.str(ColCompanyName)),
		RecordStatus: types.StatusActive,
	}
	if b.Name == "" {
		f.warn(ColCompanyName, "missing company name")
		b.Name = fmt.Sprintf("Company %d", *hh)
	}
	if reason, _ := ctx.Values.Get(MapInactiveStatus).Lookup(f.str(ColStatus)); reason != "" {
		b.RecordStatus = types.StatusInactive
	}
	if ctx.Emails != nil {
		b.Email = ctx.Emails.Household(*hh)
	}
	b.Addresses = ctx.Addresses[b.Id]
	b.PhoneNumbers = ctx.Phones[b.Id]

	b.Note = Notes(f.warnings)
	return emit(b, f.warnings)
}

// =============================================================================
// ADDRESS / PHONE
// =============================================================================

// owner resolves the person (or business) a household-level row belongs to.
func owner(f *fields, ctx *Context) (int, bool) {
	ind := f.intPtr(ColIndividualID)
	hh := f.intPtr(ColHouseholdID)
	if ctx.Households == nil {
		if ind != nil {
			return *ind, true
		}
		return 0, false
	}
	res, ok := ctx.Households.ResolveGiver(ind, hh)
	if !ok {
		if hh != nil {
			f.warn(ColHouseholdID, "household %d has no members", *hh)
		} else {
			f.warn(ColIndividualID, "no individual or household")
		}
		return 0, false
	}
	return res.PersonID, true
}

// Address translates an addresses row. Rows with neither street nor city
// are dropped.
func Address(row snapshot.Row, ctx *Context) Outcome[Attached[types.Address]] {
	f := read(row)

	a := types.Address{
		Street1:    NormalizeWhitespace(f.str(ColAddress1)),
		Street2:    NormalizeWhitespace(f.str(ColAddress2)),
		City:       f.str(ColCity),
		State:      f.str(ColState),
		PostalCode: f.str(ColPostalCode),
		Country:    f.str(ColCountry),
	}
	if a.Street1 == "" && a.City == "" {
		f.warn(ColAddress1, "address has no street or city")
		return drop[Attached[types.Address]](f.warnings)
	}

	personID, ok := owner(f, ctx)
	if !ok {
		return drop[Attached[types.Address]](f.warnings)
	}

	a.AddressType = lookupWarn(f, ctx.Values.Get(MapAddressType), ColAddressType)
	a.IsMailing = a.AddressType == "Home"
	return emit(Attached[types.Address]{PersonID: personID, Value: a}, f.warnings)
}

// Phone translates a phones row. The number is reduced to digits; rows with
// no digits are dropped. Mobile numbers are messaging-enabled.
func Phone(row snapshot.Row, ctx *Context) Outcome[Attached[types.PhoneNumber]] {
	f := read(row)

	number := DigitsOnly(f.str(ColPhoneNumber))
	if number == "" {
		f.warn(ColPhoneNumber, "no digits in phone number")
		return drop[Attached[types.PhoneNumber]](f.warnings)
	}

	personID, ok := owner(f, ctx)
	if !ok {
		return drop[Attached[types.PhoneNumber]](f.warnings)
	}

	p := types.PhoneNumber{
		PhoneType:  lookupWarn(f, ctx.Values.Get(MapPhoneType), ColPhoneType),
		Number:     number,
		Extension:  DigitsOnly(f.str(ColExtension)),
		IsUnlisted: f.boolOr(ColUnlisted, false),
	}
	p.IsMessagingEnabled = p.PhoneType == "Mobile"
	return emit(Attached[types.PhoneNumber]{PersonID: personID, Value: p}, f.warnings)
}

// =============================================================================
// ATTRIBUTES
// =============================================================================

// AttributeFanout is one attribute value plus the definition it needs.
type AttributeFanout struct {
	PersonID   int
	Value      types.AttributeValue
	Definition *types.PersonAttribute
}

// Attribute translates an attributes row.
//
// KEY: alphanumerics of AttributeGroup + AttributeName.
// VALUE: AttributeValue, else AttributeDate, else "True".
func Attribute(row snapshot.Row, ctx *Context) Outcome[AttributeFanout] {
	f := read(row)

	ind := f.intPtr(ColIndividualID)
	if ind == nil {
		f.warn(ColIndividualID, "attribute has no individual")
		return drop[AttributeFanout](f.warnings)
	}

	group := NormalizeWhitespace(f.str(ColAttributeGroup))
	name := NormalizeWhitespace(f.str(ColAttributeName))
	key := Alphanumeric(group + name)
	if key == "" {
		f.warn(ColAttributeName, "attribute has no name")
		return drop[AttributeFanout](f.warnings)
	}

	def := &types.PersonAttribute{
		Id:       identity.DeriveID(key),
		Key:      key,
		Name:     firstNonBlank(name, group),
		Category: group,
	}

	var value string
	switch {
	case f.str(ColAttributeValue) != "":
		value = f.str(ColAttributeValue)
		def.FieldType = "Text"
	case f.str(ColAttributeDate) != "":
		if d := f.timePtr(ColAttributeDate); d != nil {
			value = d.Format("2006-01-02")
		} else {
			value = f.str(ColAttributeDate)
		}
		def.FieldType = "Date"
	default:
		value = "True"
		def.FieldType = "Boolean"
	}

	return emit(AttributeFanout{
		PersonID:   *ind,
		Value:      types.AttributeValue{Key: key, Value: value},
		Definition: def,
	}, f.warnings)
}
