// =============================================================================
// chms-migrate - Financial Translators
// =============================================================================
//
// ACCOUNT HIERARCHY:
//   A fund row with no sub-fund is the fund-level account,
//   Id = DeriveID(fund, flag). A sub-fund row is a child account,
//   Id = DeriveID(fund, sub, flag), whose ParentAccountId is the fund-level
//   Id computed the same way.
//
//   The funds, contributions and pledges tables all carry FundName,
//   SubFundName and TaxDeductible. Every translator below reads them through
//   fundRef, so a detail's AccountId always matches an account the
//   FinancialAccounts stage emitted from the same columns.
//
// BATCHES:
//   Contributions without a BatchId are bucketed by received date into
//   synthetic batches, Id = 900000000 + yyyymmdd. The batch stage and the
//   transaction translator share batchRef for this.
//
// =============================================================================

package translate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// =============================================================================
// ACCOUNTS
// =============================================================================

// FundRef identifies an account by its natural key.
type FundRef struct {
	Fund          string
	SubFund       string
	TaxDeductible bool
}

// IDs returns the account id and, for sub-funds, the parent id.
func (r FundRef) IDs() (int, *int) {
	return identity.AccountIDs(r.Fund, r.SubFund, r.TaxDeductible)
}

// Parent returns the fund-level ref of a sub-fund ref.
func (r FundRef) Parent() FundRef {
	return FundRef{Fund: r.Fund, TaxDeductible: r.TaxDeductible}
}

// fundRef reads the fund columns. ok is false when there is no fund name.
func fundRef(f *fields) (FundRef, bool) {
	ref := FundRef{
		Fund:          NormalizeWhitespace(f.str(ColFundName)),
		SubFund:       NormalizeWhitespace(f.str(ColSubFundName)),
		TaxDeductible: f.boolOr(ColTaxDeductible, false),
	}
	if ref.Fund == "" {
		f.warn(ColFundName, "missing fund name")
		return ref, false
	}
	return ref, true
}

// AccountEntry is an account with the key it was derived from.
type AccountEntry struct {
	Ref     FundRef
	Account *types.FinancialAccount
}

// Account translates any row carrying fund columns into the account it
// names. IsActive and Description are read when the table has them.
func Account(row snapshot.Row, _ *Context) Outcome[AccountEntry] {
	f := read(row)

	ref, ok := fundRef(f)
	if !ok {
		return drop[AccountEntry](f.warnings)
	}

	id, parent := ref.IDs()
	a := &types.FinancialAccount{
		Id:              id,
		Name:            firstNonBlank(ref.SubFund, ref.Fund),
		IsTaxDeductible: ref.TaxDeductible,
		IsActive:        f.boolOr(ColIsActive, true),
		ParentAccountId: parent,
		Description:     f.str(ColDescription),
	}
	return emit(AccountEntry{Ref: ref, Account: a}, f.warnings)
}

// AccountSet collects accounts in first-seen order, dropping duplicates and
// synthesizing missing parents ahead of their children.
type AccountSet struct {
	order []*types.FinancialAccount
	seen  map[int]struct{}
}

// NewAccountSet returns an empty set.
func NewAccountSet() *AccountSet {
	return &AccountSet{seen: make(map[int]struct{})}
}

// Add records an account and, for a sub-fund, its parent. It returns the
// accounts that were new, parent first.
func (s *AccountSet) Add(e AccountEntry) []*types.FinancialAccount {
	var added []*types.FinancialAccount
	if e.Ref.SubFund != "" {
		pid, _ := e.Ref.Parent().IDs()
		if _, ok := s.seen[pid]; !ok {
			parent := &types.FinancialAccount{
				Id:              pid,
				Name:            e.Ref.Fund,
				IsTaxDeductible: e.Ref.TaxDeductible,
				IsActive:        true,
			}
			s.seen[pid] = struct{}{}
			s.order = append(s.order, parent)
			added = append(added, parent)
		}
	}
	if _, ok := s.seen[e.Account.Id]; !ok {
		s.seen[e.Account.Id] = struct{}{}
		s.order = append(s.order, e.Account)
		added = append(added, e.Account)
	}
	return added
}

// Contains reports whether the id was added.
func (s *AccountSet) Contains(id int) bool {
	_, ok := s.seen[id]
	return ok
}

// Accounts returns the set in emission order.
func (s *AccountSet) Accounts() []*types.FinancialAccount {
	return s.order
}

// =============================================================================
// BATCHES
// =============================================================================

// batchRef returns the batch a contribution row belongs to: its BatchId, or
// the synthetic bucket of its received date.
func batchRef(f *fields) (id int, received *time.Time, synthetic bool) {
	received = f.timePtr(ColReceivedDate)
	if b := f.intPtr(ColBatchID); b != nil {
		return *b, received, false
	}
	if received == nil {
		f.warn(ColReceivedDate, "no batch and no received date, using the undated bucket")
		return identity.SyntheticBatchID(time.Time{}), nil, true
	}
	return identity.SyntheticBatchID(*received), received, true
}

// Batch translates a batches row.
func Batch(row snapshot.Row, ctx *Context) Outcome[*types.FinancialBatch] {
	f := read(row)

	id := f.intPtr(ColBatchID)
	if id == nil {
		f.warn(ColBatchID, "missing batch id")
		return drop[*types.FinancialBatch](f.warnings)
	}

	b := &types.FinancialBatch{
		Id:        *id,
		Name:      firstNonBlank(f.str(ColBatchName), fmt.Sprintf("Batch %d", *id)),
		StartDate: f.timePtr(ColBatchDate),
		Status:    lookupWarn(f, ctx.Values.Get(MapBatchStatus), ColStatus),
	}
	if v, present, err := row.Decimal(ColBatchAmount); err != nil {
		f.warn(ColBatchAmount, "%v", err)
	} else if present {
		b.ControlAmount = v
	}
	return emit(b, f.warnings)
}

// SyntheticBatches buckets contributions that have no BatchId by received
// date. ControlAmount is the sum of the bucket's amounts. Buckets come back
// in first-seen order.
type SyntheticBatches struct {
	order   []int
	batches map[int]*types.FinancialBatch
}

// NewSyntheticBatches returns an empty bucket set.
func NewSyntheticBatches() *SyntheticBatches {
	return &SyntheticBatches{batches: make(map[int]*types.FinancialBatch)}
}

// Add folds one contributions row into its bucket. Rows with a BatchId are
// ignored. It returns the row's warnings.
func (s *SyntheticBatches) Add(row snapshot.Row) []Warning {
	f := read(row)
	id, received, synthetic := batchRef(f)
	if !synthetic {
		return f.warnings
	}

	b, ok := s.batches[id]
	if !ok {
		b = &types.FinancialBatch{
			Id:            id,
			Name:          "Undated contributions",
			Status:        "Closed",
			ControlAmount: decimal.Zero,
		}
		if received != nil {
			day := time.Date(received.Year(), received.Month(), received.Day(), 0, 0, 0, 0, time.UTC)
			b.StartDate = &day
			b.Name = "Contributions received " + day.Format("2006-01-02")
		}
		s.batches[id] = b
		s.order = append(s.order, id)
	}

	if amt, present, err := row.Decimal(ColAmount); err == nil && present {
		b.ControlAmount = b.ControlAmount.Add(amt)
	}
	return f.warnings
}

// Batches returns the buckets in first-seen order.
func (s *SyntheticBatches) Batches() []*types.FinancialBatch {
	out := make([]*types.FinancialBatch, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.batches[id])
	}
	return out
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// Transaction translates the first contributions row of a ContributionId
// group into the transaction header. Details are added with Detail.
//
// AUTHORIZED PERSON: individual → household resolver → business alias for
// company households → unset, with a warning in Summary.
func Transaction(row snapshot.Row, ctx *Context) Outcome[*types.FinancialTransaction] {
	f := read(row)

	id := f.intPtr(ColContributionID)
	if id == nil {
		f.warn(ColContributionID, "missing contribution id")
		return drop[*types.FinancialTransaction](f.warnings)
	}

	batchID, received, _ := batchRef(f)
	t := &types.FinancialTransaction{
		Id:              *id,
		BatchId:         batchID,
		TransactionDate: received,
		TransactionType: "Contribution",
		TransactionCode: f.str(ColCheckNumber),
		CurrencyType:    lookupWarn(f, ctx.Values.Get(MapCurrencyType), ColPaymentType),
		Summary:         f.str(ColMemo),
	}

	ind := f.intPtr(ColIndividualID)
	hh := f.intPtr(ColHouseholdID)
	if ctx.Households != nil {
		if res, ok := ctx.Households.ResolveGiver(ind, hh); ok {
			t.AuthorizedPersonId = types.IntPtr(res.PersonID)
		}
	} else if ind != nil {
		t.AuthorizedPersonId = ind
	}
	if t.AuthorizedPersonId == nil {
		switch {
		case hh != nil:
			f.warn(ColHouseholdID, "no person found for household %d", *hh)
		default:
			f.warn(ColIndividualID, "contribution has no individual or household")
		}
	}

	t.Summary = appendNote(t.Summary, Notes(f.warnings))
	return emit(t, f.warnings)
}

// Detail translates one contributions row into a transaction detail.
// Rows without a fund are dropped; the account would not exist.
//
// ID: DetailId when present, else DeriveID([contribution, fund, sub, flag]).
// Two undifferentiated rows for the same account therefore merge.
func Detail(row snapshot.Row, _ *Context) Outcome[types.FinancialTransactionDetail] {
	f := read(row)

	txn := f.intPtr(ColContributionID)
	if txn == nil {
		f.warn(ColContributionID, "missing contribution id")
		return drop[types.FinancialTransactionDetail](f.warnings)
	}
	ref, ok := fundRef(f)
	if !ok {
		return drop[types.FinancialTransactionDetail](f.warnings)
	}

	accountID, _ := ref.IDs()
	d := types.FinancialTransactionDetail{
		TransactionId: *txn,
		AccountId:     accountID,
		Amount:        f.amount(ColAmount),
	}
	if id := f.intPtr(ColDetailID); id != nil {
		d.Id = *id
	} else {
		d.Id = identity.DeriveID(strconv.Itoa(*txn), ref.Fund, ref.SubFund, identity.Flag(ref.TaxDeductible))
	}
	d.Summary = Notes(f.warnings)
	return emit(d, f.warnings)
}

// =============================================================================
// PLEDGES
// =============================================================================

// Pledge translates a pledges row. PersonId uses the giver chain; pledges
// with no person or no fund are dropped.
func Pledge(row snapshot.Row, ctx *Context) Outcome[*types.FinancialPledge] {
	f := read(row)

	id := f.intPtr(ColPledgeID)
	if id == nil {
		f.warn(ColPledgeID, "missing pledge id")
		return drop[*types.FinancialPledge](f.warnings)
	}

	personID, ok := owner(f, ctx)
	if !ok {
		return drop[*types.FinancialPledge](f.warnings)
	}
	ref, ok := fundRef(f)
	if !ok {
		return drop[*types.FinancialPledge](f.warnings)
	}

	accountID, _ := ref.IDs()
	p := &types.FinancialPledge{
		Id:              *id,
		PersonId:        personID,
		AccountId:       accountID,
		StartDate:       f.timePtr(ColStartDate),
		EndDate:         f.timePtr(ColEndDate),
		PledgeFrequency: lookupWarn(f, ctx.Values.Get(MapPledgeFrequency), ColFrequency),
		TotalAmount:     f.amount(ColAmount),
	}
	return emit(p, f.warnings)
}
