package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/chms-migrate/internal/household"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/snapshot"
	"github.com/ginjaninja78/chms-migrate/internal/source"
	"github.com/ginjaninja78/chms-migrate/internal/translate"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// =============================================================================
// STAGE RUN
// =============================================================================

// stageRun is the working state of one stage. Everything it holds is
// released in cleanup.
type stageRun struct {
	p      *Pipeline
	stage  Stage
	log    logrus.FieldLogger
	tctx   *translate.Context
	snaps  snapshot.Set
	result *StageResult
}

type stageFunc func(ctx context.Context, s *stageRun) error

var stageFuncs = map[Stage]stageFunc{
	StageIndividuals:       runIndividuals,
	StageCompanies:         runCompanies,
	StageNotes:             runNotes,
	StageFinancialAccounts: runFinancialAccounts,
	StageFinancialPledges:  runFinancialPledges,
	StageFinancialBatches:  runFinancialBatches,
	StageContributions:     runContributions,
	StageGroups:            runGroups,
	StageAttendance:        runAttendance,
}

// extract reads a logical table. A missing optional table yields an empty
// snapshot with the requested columns.
func (s *stageRun) extract(ctx context.Context, table string, required bool, columns ...string) (*snapshot.Snapshot, error) {
	q := source.QueryFor(s.p.opts.SourceConfig, table)
	q.Columns = columns

	snap, err := s.p.opts.Source.Execute(ctx, q)
	switch {
	case err == nil:
	case !required && errors.Is(err, source.ErrUnknownTable):
		s.log.WithField("table", table).Debug("Optional table not in export")
		snap = snapshot.New(table, columns, nil)
	default:
		return nil, fmt.Errorf("extract %s: %w", table, err)
	}

	s.snaps = append(s.snaps, snap)
	s.log.WithFields(logrus.Fields{"table": table, "rows": snap.Len()}).Debug("Extracted")
	return snap, nil
}

// translating ends extraction.
func (s *stageRun) translating() error {
	return s.p.transition(s.stage, StateExtracting, StateTranslating)
}

// resolver builds the household resolver from the individuals and companies
// tables. Either snapshot may be passed in when the stage already holds it.
func (s *stageRun) resolver(ctx context.Context, individuals, companies *snapshot.Snapshot) (*household.Resolver, error) {
	if individuals == nil {
		var err error
		individuals, err = s.extract(ctx, source.TableIndividuals, true,
			translate.ColIndividualID, translate.ColHouseholdID, translate.ColFamilyPosition,
			translate.ColLastName, translate.ColSubStatus)
		if err != nil {
			return nil, err
		}
	}
	res, err := household.Build(individuals)
	if err != nil {
		return nil, err
	}
	if n := res.Skipped(); n > 0 {
		s.log.WithField("rows", n).Warn("Individuals without usable ids skipped")
	}

	if companies == nil {
		companies, err = s.extract(ctx, source.TableCompanies, false, translate.ColHouseholdID)
		if err != nil {
			return nil, err
		}
	}
	for _, row := range companies.Rows() {
		if hh, ok, err := row.Int(translate.ColHouseholdID); ok && err == nil {
			res.WithCompanies(hh)
		}
	}

	s.tctx.Households = res
	return res, nil
}

// contacts collects addresses and phones by owner id ahead of the people or
// businesses that carry them.
func (s *stageRun) contacts(ctx context.Context) error {
	addresses, err := s.extract(ctx, source.TableAddresses, false)
	if err != nil {
		return err
	}
	phones, err := s.extract(ctx, source.TablePhones, false)
	if err != nil {
		return err
	}

	s.tctx.Addresses = make(map[int][]types.Address)
	s.tctx.Phones = make(map[int][]types.PhoneNumber)
	if err := each(s, addresses, translate.Address, func(a translate.Attached[types.Address]) error {
		s.tctx.Addresses[a.PersonID] = append(s.tctx.Addresses[a.PersonID], a.Value)
		return nil
	}); err != nil {
		return err
	}
	return each(s, phones, translate.Phone, func(p translate.Attached[types.PhoneNumber]) error {
		s.tctx.Phones[p.PersonID] = append(s.tctx.Phones[p.PersonID], p.Value)
		return nil
	})
}

// emails builds the email index over the communications table.
func (s *stageRun) emails(ctx context.Context) error {
	comms, err := s.extract(ctx, source.TableCommunications, false,
		translate.ColIndividualID, translate.ColHouseholdID, translate.ColCommType, translate.ColCommValue)
	if err != nil {
		return err
	}
	s.tctx.Emails = translate.NewEmailIndex(comms)
	return nil
}

// emit hands a record to the writer.
func (s *stageRun) emit(r types.Record) error {
	if err := s.p.opts.Writer.Write(r); err != nil {
		return fmt.Errorf("write %s %d: %w", r.Kind(), r.RecordID(), err)
	}
	s.result.Emitted[r.Kind()]++
	return nil
}

// emitCampus writes the campus once per run.
func (s *stageRun) emitCampus(name string) (*int, error) {
	c, ok := translate.Campus(name)
	if !ok {
		return nil, nil
	}
	if _, seen := s.p.campuses[c.Id]; !seen {
		if err := s.emit(c); err != nil {
			return nil, err
		}
		s.p.campuses[c.Id] = struct{}{}
	}
	return types.IntPtr(c.Id), nil
}

// warn reports row warnings.
func (s *stageRun) warn(table string, ws []translate.Warning) {
	for _, w := range ws {
		s.result.Warnings++
		s.log.WithFields(logrus.Fields{"table": table, "row": w.Row, "field": w.Field}).Debug(w.Message)
		if s.p.opts.OnWarning != nil {
			s.p.opts.OnWarning(s.stage, table, w)
		}
	}
}

// each translates every row of snap in source order and passes the kept
// records to handle.
func each[R any](s *stageRun, snap *snapshot.Snapshot, fn translate.Func[R], handle func(R) error) error {
	return eachRow(s, snap, fn, func(_ snapshot.Row, r R) error { return handle(r) })
}

// eachRow is each with the source row passed alongside the record.
func eachRow[R any](s *stageRun, snap *snapshot.Snapshot, fn translate.Func[R], handle func(snapshot.Row, R) error) error {
	return eachWhere(s, snap, nil, fn, handle)
}

// eachWhere is eachRow restricted to the rows matching pred. Rows keep their
// snapshot numbering.
func eachWhere[R any](s *stageRun, snap *snapshot.Snapshot, pred snapshot.Predicate, fn translate.Func[R], handle func(snapshot.Row, R) error) error {
	for i := 0; i < snap.Len(); i++ {
		row := snap.Row(i)
		if pred != nil && !pred(row) {
			continue
		}
		s.result.Rows++
		out := fn(row, s.tctx)
		s.warn(snap.Name(), out.Warnings)
		if out.Err != nil {
			return out.Err
		}
		if !out.OK {
			s.result.Dropped++
			continue
		}
		if err := handle(row, out.Record); err != nil {
			return err
		}
	}
	return nil
}

// emitEach is each for translators whose record is written as is.
func emitEach[R types.Record](s *stageRun, snap *snapshot.Snapshot, fn translate.Func[R]) error {
	return each(s, snap, fn, func(r R) error { return s.emit(r) })
}

// =============================================================================
// PEOPLE
// =============================================================================

// runIndividuals writes attribute definitions, then campuses and people in
// individuals order. Addresses, phones and attribute values are gathered
// first and attached to their person.
func runIndividuals(ctx context.Context, s *stageRun) error {
	individuals, err := s.extract(ctx, source.TableIndividuals, true)
	if err != nil {
		return err
	}
	if _, err := s.resolver(ctx, individuals, nil); err != nil {
		return err
	}
	if err := s.emails(ctx); err != nil {
		return err
	}
	attributes, err := s.extract(ctx, source.TableAttributes, false)
	if err != nil {
		return err
	}
	if err := s.contacts(ctx); err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}

	defs := translate.BuiltinAttributes()
	seen := make(map[int]struct{}, len(defs))
	for _, d := range defs {
		seen[d.Id] = struct{}{}
	}
	s.tctx.Attributes = make(map[int][]types.AttributeValue)
	if err := each(s, attributes, translate.Attribute, func(a translate.AttributeFanout) error {
		s.tctx.Attributes[a.PersonID] = append(s.tctx.Attributes[a.PersonID], a.Value)
		if _, dup := seen[a.Definition.Id]; !dup {
			seen[a.Definition.Id] = struct{}{}
			defs = append(defs, a.Definition)
		}
		return nil
	}); err != nil {
		return err
	}
	for _, d := range defs {
		if err := s.emit(d); err != nil {
			return err
		}
	}

	return each(s, individuals, translate.Person, func(p *types.Person) error {
		if p.CampusName != "" {
			if _, err := s.emitCampus(p.CampusName); err != nil {
				return err
			}
		}
		return s.emit(p)
	})
}

// runCompanies writes one business per companies row.
func runCompanies(ctx context.Context, s *stageRun) error {
	companies, err := s.extract(ctx, source.TableCompanies, true)
	if err != nil {
		return err
	}
	if _, err := s.resolver(ctx, nil, companies); err != nil {
		return err
	}
	if err := s.emails(ctx); err != nil {
		return err
	}
	if err := s.contacts(ctx); err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}
	return emitEach(s, companies, translate.Business)
}

func runNotes(ctx context.Context, s *stageRun) error {
	notes, err := s.extract(ctx, source.TableNotes, true)
	if err != nil {
		return err
	}
	if _, err := s.resolver(ctx, nil, nil); err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}
	return emitEach(s, notes, translate.Note)
}

// =============================================================================
// FINANCIAL
// =============================================================================

// runFinancialAccounts writes the union of accounts named by the funds,
// contributions and pledges tables, parents ahead of their sub-funds.
func runFinancialAccounts(ctx context.Context, s *stageRun) error {
	fundCols := []string{translate.ColFundName, translate.ColSubFundName, translate.ColTaxDeductible}

	funds, err := s.extract(ctx, source.TableFunds, false)
	if err != nil {
		return err
	}
	contributions, err := s.extract(ctx, source.TableContributions, false, fundCols...)
	if err != nil {
		return err
	}
	pledges, err := s.extract(ctx, source.TablePledges, false, fundCols...)
	if err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}

	set := translate.NewAccountSet()
	add := func(_ snapshot.Row, e translate.AccountEntry) error {
		for _, a := range set.Add(e) {
			if err := s.emit(a); err != nil {
				return err
			}
		}
		return nil
	}
	// Fund rows go first so a sub-fund listed above its fund does not
	// synthesize a parent in place of the real one.
	passes := []struct {
		snap *snapshot.Snapshot
		pred snapshot.Predicate
	}{
		{funds, snapshot.Blank(translate.ColSubFundName)},
		{funds, snapshot.Present(translate.ColSubFundName)},
		{contributions, nil},
		{pledges, nil},
	}
	for _, pass := range passes {
		if err := eachWhere(s, pass.snap, pass.pred, translate.Account, add); err != nil {
			return err
		}
	}
	return nil
}

func runFinancialPledges(ctx context.Context, s *stageRun) error {
	pledges, err := s.extract(ctx, source.TablePledges, true)
	if err != nil {
		return err
	}
	if _, err := s.resolver(ctx, nil, nil); err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}
	return emitEach(s, pledges, translate.Pledge)
}

// runFinancialBatches writes the source batches, then one synthetic batch
// per received date of contributions that have no batch.
func runFinancialBatches(ctx context.Context, s *stageRun) error {
	batches, err := s.extract(ctx, source.TableBatches, false)
	if err != nil {
		return err
	}
	contributions, err := s.extract(ctx, source.TableContributions, false,
		translate.ColBatchID, translate.ColReceivedDate, translate.ColAmount)
	if err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}

	written := make(map[int]struct{})
	if err := each(s, batches, translate.Batch, func(b *types.FinancialBatch) error {
		if _, dup := written[b.Id]; dup {
			return nil
		}
		written[b.Id] = struct{}{}
		return s.emit(b)
	}); err != nil {
		return err
	}

	synthetic := translate.NewSyntheticBatches()
	for i := 0; i < contributions.Len(); i++ {
		s.result.Rows++
		s.warn(contributions.Name(), synthetic.Add(contributions.Row(i)))
	}
	for _, b := range synthetic.Batches() {
		if _, dup := written[b.Id]; dup {
			continue
		}
		if err := s.emit(b); err != nil {
			return err
		}
	}
	return nil
}

// runContributions writes one transaction per ContributionId, in order of
// first appearance, carrying a detail for each of its rows.
func runContributions(ctx context.Context, s *stageRun) error {
	contributions, err := s.extract(ctx, source.TableContributions, true)
	if err != nil {
		return err
	}
	if _, err := s.resolver(ctx, nil, nil); err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}

	byID := contributions.Index(translate.ColContributionID)
	done := make(map[string]struct{})
	for i := 0; i < contributions.Len(); i++ {
		row := contributions.Row(i)
		key := snapshot.NormalizeKey(row.Get(translate.ColContributionID))
		if _, ok := done[key]; ok && key != "" {
			continue
		}
		done[key] = struct{}{}

		rows := []snapshot.Row{row}
		if key != "" {
			rows = byID.Lookup(key)
		}
		if err := s.transaction(contributions.Name(), rows); err != nil {
			return err
		}
	}
	return nil
}

// transaction translates the rows of one ContributionId.
func (s *stageRun) transaction(table string, rows []snapshot.Row) error {
	s.result.Rows += len(rows)

	head := translate.Transaction(rows[0], s.tctx)
	s.warn(table, head.Warnings)
	if !head.OK {
		s.result.Dropped += len(rows)
		return nil
	}
	t := head.Record

	for _, row := range rows {
		d := translate.Detail(row, s.tctx)
		s.warn(table, d.Warnings)
		if !d.OK {
			s.result.Dropped++
			continue
		}
		t.Details = append(t.Details, d.Record)
	}
	return s.emit(t)
}

// =============================================================================
// GROUPS
// =============================================================================

// runGroups writes each group type with its synthetic root group the first
// time a group of that type appears, then the group, then the members.
func runGroups(ctx context.Context, s *stageRun) error {
	groups, err := s.extract(ctx, source.TableGroups, true)
	if err != nil {
		return err
	}
	members, err := s.extract(ctx, source.TableGroupMembers, false)
	if err != nil {
		return err
	}
	if err := s.translating(); err != nil {
		return err
	}

	seenTypes := make(map[int]struct{})
	written := make(map[int]struct{})
	if err := eachRow(s, groups, translate.Group, func(row snapshot.Row, g *types.Group) error {
		if _, dup := written[g.Id]; dup {
			return nil
		}
		written[g.Id] = struct{}{}

		if _, seen := seenTypes[g.GroupTypeId]; !seen {
			seenTypes[g.GroupTypeId] = struct{}{}
			gt := &types.GroupType{Id: g.GroupTypeId, Name: fmt.Sprintf("Group Type %d", g.GroupTypeId)}
			if out := translate.GroupType(row, s.tctx); out.OK && out.Record.Id == g.GroupTypeId {
				gt = out.Record
			}
			root := translate.RootGroup(gt)
			if err := s.emit(gt); err != nil {
				return err
			}
			if err := s.emit(root); err != nil {
				return err
			}
			written[root.Id] = struct{}{}
		}

		if name := row.Get(translate.ColCampusName); name != "" {
			if _, err := s.emitCampus(name); err != nil {
				return err
			}
		}
		return s.emit(g)
	}); err != nil {
		return err
	}

	return emitEach(s, members, translate.GroupMember)
}

// runAttendance writes attendance with ids made unique by the allocator.
func runAttendance(ctx context.Context, s *stageRun) error {
	attendance, err := s.extract(ctx, source.TableAttendance, true)
	if err != nil {
		return err
	}
	s.tctx.Allocator = identity.NewAllocator(s.p.opts.AttendanceFallback, s.p.opts.AttendanceMaxRetries, s.p.opts.AllocatorOptions...)
	if err := s.translating(); err != nil {
		return err
	}

	return eachRow(s, attendance, translate.Attendance, func(row snapshot.Row, a *types.Attendance) error {
		if a.CampusId != nil {
			if _, err := s.emitCampus(row.Get(translate.ColCampusName)); err != nil {
				return err
			}
		}
		return s.emit(a)
	})
}
