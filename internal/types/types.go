// =============================================================================
// chms-migrate - Canonical Record Types
// =============================================================================
//
// This package contains the interchange records shared by the translators,
// the pipeline and every package writer. Keeping them here avoids import
// cycles between:
//   - translate
//   - pipeline
//   - validation
//   - csvwriter / xmlwriter / importapi
//
// Every record carries a stable integer Id. Fields named "...Id" that point
// at another record are ForeignIds into the same run.
//
// =============================================================================

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECORD KINDS
// =============================================================================

// Kind names one canonical entity kind. It doubles as the file, element and
// endpoint name in the package writers.
type Kind string

const (
	KindPerson                     Kind = "Person"
	KindBusiness                   Kind = "Business"
	KindCampus                     Kind = "Campus"
	KindPersonAttribute            Kind = "PersonAttribute"
	KindPersonNote                 Kind = "PersonNote"
	KindFinancialAccount           Kind = "FinancialAccount"
	KindFinancialBatch             Kind = "FinancialBatch"
	KindFinancialTransaction       Kind = "FinancialTransaction"
	KindFinancialTransactionDetail Kind = "FinancialTransactionDetail"
	KindFinancialPledge            Kind = "FinancialPledge"
	KindGroupType                  Kind = "GroupType"
	KindGroup                      Kind = "Group"
	KindGroupMember                Kind = "GroupMember"
	KindAttendance                 Kind = "Attendance"
)

// Kinds lists every kind in emission order.
func Kinds() []Kind {
	return []Kind{
		KindCampus,
		KindPersonAttribute,
		KindPerson,
		KindBusiness,
		KindPersonNote,
		KindFinancialAccount,
		KindFinancialPledge,
		KindFinancialBatch,
		KindFinancialTransaction,
		KindFinancialTransactionDetail,
		KindGroupType,
		KindGroup,
		KindGroupMember,
		KindAttendance,
	}
}

// Reference is one ForeignId carried by a record.
type Reference struct {
	Field string
	Kind  Kind
	ID    int
}

// Record is implemented by every canonical record.
type Record interface {
	Kind() Kind
	RecordID() int
	References() []Reference
}

// Writer receives records one at a time, in emission order. Batching, if
// any, is the writer's concern.
type Writer interface {
	Write(Record) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(Record) error

func (f WriterFunc) Write(r Record) error { return f(r) }

// =============================================================================
// PEOPLE
// =============================================================================

// Family roles.
const (
	RoleAdult = "Adult"
	RoleChild = "Child"
)

// Record statuses.
const (
	StatusActive   = "Active"
	StatusInactive = "Inactive"
)

// Address is a postal address attached to a person or business.
type Address struct {
	AddressType string `json:"AddressType" xml:"AddressType"`
	Street1     string `json:"Street1" xml:"Street1"`
	Street2     string `json:"Street2,omitempty" xml:"Street2,omitempty"`
	City        string `json:"City" xml:"City"`
	State       string `json:"State,omitempty" xml:"State,omitempty"`
	PostalCode  string `json:"PostalCode,omitempty" xml:"PostalCode,omitempty"`
	Country     string `json:"Country,omitempty" xml:"Country,omitempty"`
	IsMailing   bool   `json:"IsMailing" xml:"IsMailing"`
}

// PhoneNumber is a phone number reduced to digits.
type PhoneNumber struct {
	PhoneType          string `json:"PhoneType" xml:"PhoneType"`
	Number             string `json:"Number" xml:"Number"`
	Extension          string `json:"Extension,omitempty" xml:"Extension,omitempty"`
	IsUnlisted         bool   `json:"IsUnlisted" xml:"IsUnlisted"`
	IsMessagingEnabled bool   `json:"IsMessagingEnabled" xml:"IsMessagingEnabled"`
}

// AttributeValue is one key/value pair on a person.
type AttributeValue struct {
	Key   string `json:"Key" xml:"Key"`
	Value string `json:"Value" xml:"Value"`
}

// Person is an individual.
type Person struct {
	Id               int              `json:"Id" xml:"Id"`
	FamilyId         int              `json:"FamilyId" xml:"FamilyId"`
	FamilyName       string           `json:"FamilyName,omitempty" xml:"FamilyName,omitempty"`
	FamilyRole       string           `json:"FamilyRole" xml:"FamilyRole"`
	FirstName        string           `json:"FirstName" xml:"FirstName"`
	NickName         string           `json:"NickName,omitempty" xml:"NickName,omitempty"`
	MiddleName       string           `json:"MiddleName,omitempty" xml:"MiddleName,omitempty"`
	LastName         string           `json:"LastName" xml:"LastName"`
	Salutation       string           `json:"Salutation,omitempty" xml:"Salutation,omitempty"`
	Suffix           string           `json:"Suffix,omitempty" xml:"Suffix,omitempty"`
	Email            string           `json:"Email,omitempty" xml:"Email,omitempty"`
	Gender           string           `json:"Gender" xml:"Gender"`
	MaritalStatus    string           `json:"MaritalStatus" xml:"MaritalStatus"`
	Birthdate        *time.Time       `json:"Birthdate,omitempty" xml:"Birthdate,omitempty"`
	ConnectionStatus string           `json:"ConnectionStatus,omitempty" xml:"ConnectionStatus,omitempty"`
	RecordStatus     string           `json:"RecordStatus" xml:"RecordStatus"`
	InactiveReason   string           `json:"InactiveReason,omitempty" xml:"InactiveReason,omitempty"`
	IsDeceased       bool             `json:"IsDeceased" xml:"IsDeceased"`
	Grade            string           `json:"Grade,omitempty" xml:"Grade,omitempty"`
	GiveIndividually bool             `json:"GiveIndividually" xml:"GiveIndividually"`
	CampusId         *int             `json:"CampusId,omitempty" xml:"CampusId,omitempty"`
	CampusName       string           `json:"CampusName,omitempty" xml:"CampusName,omitempty"`
	CreatedDateTime  *time.Time       `json:"CreatedDateTime,omitempty" xml:"CreatedDateTime,omitempty"`
	ModifiedDateTime *time.Time       `json:"ModifiedDateTime,omitempty" xml:"ModifiedDateTime,omitempty"`
	Note             string           `json:"Note,omitempty" xml:"Note,omitempty"`
	Attributes       []AttributeValue `json:"Attributes,omitempty" xml:"Attributes>Attribute,omitempty"`
	Addresses        []Address        `json:"Addresses,omitempty" xml:"Addresses>Address,omitempty"`
	PhoneNumbers     []PhoneNumber    `json:"PhoneNumbers,omitempty" xml:"PhoneNumbers>PhoneNumber,omitempty"`
	SearchKeys       []string         `json:"SearchKeys,omitempty" xml:"SearchKeys>SearchKey,omitempty"`
}

func (p *Person) Kind() Kind { return KindPerson }
func (p *Person) RecordID() int { return p.Id }

func (p *Person) References() []Reference {
	return optionalRef(nil, "CampusId", KindCampus, p.CampusId)
}

// Business is an organization that gives. Its Id shares the person space.
type Business struct {
	Id           int           `json:"Id" xml:"Id"`
	Name         string        `json:"Name" xml:"Name"`
	Email        string        `json:"Email,omitempty" xml:"Email,omitempty"`
	RecordStatus string        `json:"RecordStatus" xml:"RecordStatus"`
	CampusId     *int          `json:"CampusId,omitempty" xml:"CampusId,omitempty"`
	CampusName   string        `json:"CampusName,omitempty" xml:"CampusName,omitempty"`
	Note         string        `json:"Note,omitempty" xml:"Note,omitempty"`
	Addresses    []Address     `json:"Addresses,omitempty" xml:"Addresses>Address,omitempty"`
	PhoneNumbers []PhoneNumber `json:"PhoneNumbers,omitempty" xml:"PhoneNumbers>PhoneNumber,omitempty"`
}

func (b *Business) Kind() Kind { return KindBusiness }
func (b *Business) RecordID() int { return b.Id }

func (b *Business) References() []Reference {
	return optionalRef(nil, "CampusId", KindCampus, b.CampusId)
}

// Campus is a physical site.
type Campus struct {
	Id   int    `json:"Id" xml:"Id"`
	Name string `json:"Name" xml:"Name"`
}

func (c *Campus) Kind() Kind { return KindCampus }
func (c *Campus) RecordID() int { return c.Id }
func (c *Campus) References() []Reference { return nil }

// PersonAttribute defines an attribute key used by Person.Attributes.
type PersonAttribute struct {
	Id        int    `json:"Id" xml:"Id"`
	Key       string `json:"Key" xml:"Key"`
	Name      string `json:"Name" xml:"Name"`
	Category  string `json:"Category,omitempty" xml:"Category,omitempty"`
	FieldType string `json:"FieldType" xml:"FieldType"`
}

func (a *PersonAttribute) Kind() Kind { return KindPersonAttribute }
func (a *PersonAttribute) RecordID() int { return a.Id }
func (a *PersonAttribute) References() []Reference { return nil }

// PersonNote is a free-text note about a person.
type PersonNote struct {
	Id        int        `json:"Id" xml:"Id"`
	PersonId  int        `json:"PersonId" xml:"PersonId"`
	NoteType  string     `json:"NoteType,omitempty" xml:"NoteType,omitempty"`
	Caption   string     `json:"Caption,omitempty" xml:"Caption,omitempty"`
	Text      string     `json:"Text" xml:"Text"`
	DateTime  *time.Time `json:"DateTime,omitempty" xml:"DateTime,omitempty"`
	IsPrivate bool       `json:"IsPrivate" xml:"IsPrivate"`
	IsAlert   bool       `json:"IsAlert" xml:"IsAlert"`
	CreatedBy string     `json:"CreatedBy,omitempty" xml:"CreatedBy,omitempty"`
}

func (n *PersonNote) Kind() Kind { return KindPersonNote }
func (n *PersonNote) RecordID() int { return n.Id }

func (n *PersonNote) References() []Reference {
	return []Reference{{Field: "PersonId", Kind: KindPerson, ID: n.PersonId}}
}

// =============================================================================
// FINANCIAL
// =============================================================================

// FinancialAccount is a fund or sub-fund.
type FinancialAccount struct {
	Id              int    `json:"Id" xml:"Id"`
	Name            string `json:"Name" xml:"Name"`
	IsTaxDeductible bool   `json:"IsTaxDeductible" xml:"IsTaxDeductible"`
	IsActive        bool   `json:"IsActive" xml:"IsActive"`
	ParentAccountId *int   `json:"ParentAccountId,omitempty" xml:"ParentAccountId,omitempty"`
	Description     string `json:"Description,omitempty" xml:"Description,omitempty"`
}

func (a *FinancialAccount) Kind() Kind { return KindFinancialAccount }
func (a *FinancialAccount) RecordID() int { return a.Id }

func (a *FinancialAccount) References() []Reference {
	return optionalRef(nil, "ParentAccountId", KindFinancialAccount, a.ParentAccountId)
}

// FinancialBatch groups transactions.
type FinancialBatch struct {
	Id            int             `json:"Id" xml:"Id"`
	Name          string          `json:"Name" xml:"Name"`
	StartDate     *time.Time      `json:"StartDate,omitempty" xml:"StartDate,omitempty"`
	Status        string          `json:"Status" xml:"Status"`
	ControlAmount decimal.Decimal `json:"ControlAmount" xml:"ControlAmount"`
}

func (b *FinancialBatch) Kind() Kind { return KindFinancialBatch }
func (b *FinancialBatch) RecordID() int { return b.Id }
func (b *FinancialBatch) References() []Reference { return nil }

// FinancialTransactionDetail is one fund allocation of a transaction.
type FinancialTransactionDetail struct {
	Id            int             `json:"Id" xml:"Id"`
	TransactionId int             `json:"TransactionId" xml:"TransactionId"`
	AccountId     int             `json:"AccountId" xml:"AccountId"`
	Amount        decimal.Decimal `json:"Amount" xml:"Amount"`
	Summary       string          `json:"Summary,omitempty" xml:"Summary,omitempty"`
}

func (d *FinancialTransactionDetail) Kind() Kind { return KindFinancialTransactionDetail }
func (d *FinancialTransactionDetail) RecordID() int { return d.Id }

func (d *FinancialTransactionDetail) References() []Reference {
	return []Reference{
		{Field: "TransactionId", Kind: KindFinancialTransaction, ID: d.TransactionId},
		{Field: "AccountId", Kind: KindFinancialAccount, ID: d.AccountId},
	}
}

// FinancialTransaction is one gift with its details.
type FinancialTransaction struct {
	Id                 int                          `json:"Id" xml:"Id"`
	BatchId            int                          `json:"BatchId" xml:"BatchId"`
	AuthorizedPersonId *int                         `json:"AuthorizedPersonId,omitempty" xml:"AuthorizedPersonId,omitempty"`
	TransactionDate    *time.Time                   `json:"TransactionDate,omitempty" xml:"TransactionDate,omitempty"`
	TransactionType    string                       `json:"TransactionType" xml:"TransactionType"`
	TransactionCode    string                       `json:"TransactionCode,omitempty" xml:"TransactionCode,omitempty"`
	CurrencyType       string                       `json:"CurrencyType" xml:"CurrencyType"`
	Summary            string                       `json:"Summary,omitempty" xml:"Summary,omitempty"`
	Details            []FinancialTransactionDetail `json:"Details" xml:"Details>Detail"`
}

func (t *FinancialTransaction) Kind() Kind { return KindFinancialTransaction }
func (t *FinancialTransaction) RecordID() int { return t.Id }

// References covers the transaction and its nested details.
func (t *FinancialTransaction) References() []Reference {
	refs := []Reference{{Field: "BatchId", Kind: KindFinancialBatch, ID: t.BatchId}}
	refs = optionalRef(refs, "AuthorizedPersonId", KindPerson, t.AuthorizedPersonId)
	for _, d := range t.Details {
		refs = append(refs, Reference{Field: "Details.AccountId", Kind: KindFinancialAccount, ID: d.AccountId})
	}
	return refs
}

// Total sums the detail amounts.
func (t *FinancialTransaction) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, d := range t.Details {
		sum = sum.Add(d.Amount)
	}
	return sum
}

// FinancialPledge is a giving commitment.
type FinancialPledge struct {
	Id              int             `json:"Id" xml:"Id"`
	PersonId        int             `json:"PersonId" xml:"PersonId"`
	AccountId       int             `json:"AccountId" xml:"AccountId"`
	StartDate       *time.Time      `json:"StartDate,omitempty" xml:"StartDate,omitempty"`
	EndDate         *time.Time      `json:"EndDate,omitempty" xml:"EndDate,omitempty"`
	PledgeFrequency string          `json:"PledgeFrequency,omitempty" xml:"PledgeFrequency,omitempty"`
	TotalAmount     decimal.Decimal `json:"TotalAmount" xml:"TotalAmount"`
}

func (p *FinancialPledge) Kind() Kind { return KindFinancialPledge }
func (p *FinancialPledge) RecordID() int { return p.Id }

func (p *FinancialPledge) References() []Reference {
	return []Reference{
		{Field: "PersonId", Kind: KindPerson, ID: p.PersonId},
		{Field: "AccountId", Kind: KindFinancialAccount, ID: p.AccountId},
	}
}

// =============================================================================
// GROUPS
// =============================================================================

// GroupType classifies groups.
type GroupType struct {
	Id   int    `json:"Id" xml:"Id"`
	Name string `json:"Name" xml:"Name"`
}

func (g *GroupType) Kind() Kind { return KindGroupType }
func (g *GroupType) RecordID() int { return g.Id }
func (g *GroupType) References() []Reference { return nil }

// Group is a small group, class or the synthetic root of a group type.
type Group struct {
	Id            int    `json:"Id" xml:"Id"`
	ParentGroupId *int   `json:"ParentGroupId,omitempty" xml:"ParentGroupId,omitempty"`
	GroupTypeId   int    `json:"GroupTypeId" xml:"GroupTypeId"`
	Name          string `json:"Name" xml:"Name"`
	Description   string `json:"Description,omitempty" xml:"Description,omitempty"`
	IsActive      bool   `json:"IsActive" xml:"IsActive"`
	Capacity      *int   `json:"Capacity,omitempty" xml:"Capacity,omitempty"`
	MeetingDay    string `json:"MeetingDay,omitempty" xml:"MeetingDay,omitempty"`
	MeetingTime   string `json:"MeetingTime,omitempty" xml:"MeetingTime,omitempty"`
	CampusId      *int   `json:"CampusId,omitempty" xml:"CampusId,omitempty"`
}

func (g *Group) Kind() Kind { return KindGroup }
func (g *Group) RecordID() int { return g.Id }

func (g *Group) References() []Reference {
	refs := []Reference{{Field: "GroupTypeId", Kind: KindGroupType, ID: g.GroupTypeId}}
	refs = optionalRef(refs, "ParentGroupId", KindGroup, g.ParentGroupId)
	return optionalRef(refs, "CampusId", KindCampus, g.CampusId)
}

// GroupMember links a person to a group in a role.
type GroupMember struct {
	Id       int    `json:"Id" xml:"Id"`
	GroupId  int    `json:"GroupId" xml:"GroupId"`
	PersonId int    `json:"PersonId" xml:"PersonId"`
	Role     string `json:"Role" xml:"Role"`
}

func (m *GroupMember) Kind() Kind { return KindGroupMember }
func (m *GroupMember) RecordID() int { return m.Id }

func (m *GroupMember) References() []Reference {
	return []Reference{
		{Field: "GroupId", Kind: KindGroup, ID: m.GroupId},
		{Field: "PersonId", Kind: KindPerson, ID: m.PersonId},
	}
}

// Attendance is one check-in.
type Attendance struct {
	Id            int        `json:"Id" xml:"Id"`
	PersonId      int        `json:"PersonId" xml:"PersonId"`
	GroupId       int        `json:"GroupId" xml:"GroupId"`
	StartDateTime time.Time  `json:"StartDateTime" xml:"StartDateTime"`
	EndDateTime   *time.Time `json:"EndDateTime,omitempty" xml:"EndDateTime,omitempty"`
	CampusId      *int       `json:"CampusId,omitempty" xml:"CampusId,omitempty"`
	Note          string     `json:"Note,omitempty" xml:"Note,omitempty"`
}

func (a *Attendance) Kind() Kind { return KindAttendance }
func (a *Attendance) RecordID() int { return a.Id }

func (a *Attendance) References() []Reference {
	refs := []Reference{
		{Field: "PersonId", Kind: KindPerson, ID: a.PersonId},
		{Field: "GroupId", Kind: KindGroup, ID: a.GroupId},
	}
	return optionalRef(refs, "CampusId", KindCampus, a.CampusId)
}

// =============================================================================
// HELPERS
// =============================================================================

func optionalRef(refs []Reference, field string, kind Kind, id *int) []Reference {
	if id == nil {
		return refs
	}
	return append(refs, Reference{Field: field, Kind: kind, ID: *id})
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}
