// =============================================================================
// chms-migrate - Pipeline Controller
// =============================================================================
//
// The controller runs the export one stage at a time. Each stage is
// independent and moves through the same states:
//
//   Idle → Extracting → Translating → Cleanup → Idle
//
// STAGE CONTRACT:
//   1. Extracting: read the snapshots the stage needs from the source and
//      build its lookups (household resolver, email index, ...)
//   2. Translating: iterate the rows once, in source order, and hand each
//      record to the writer as soon as it is produced
//   3. Cleanup: release every snapshot and lookup the stage owns. This
//      always runs, whether the stage succeeded or not
//
// FAILURE:
//   An error or panic inside a stage ends that stage and is recorded in its
//   StageResult. The remaining stages still run. Cancellation is checked
//   between stages only.
//
// =============================================================================

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ginjaninja78/chms-migrate/internal/config"
	"github.com/ginjaninja78/chms-migrate/internal/identity"
	"github.com/ginjaninja78/chms-migrate/internal/source"
	"github.com/ginjaninja78/chms-migrate/internal/translate"
	"github.com/ginjaninja78/chms-migrate/internal/types"
)

// =============================================================================
// STAGES
// =============================================================================

// Stage names one export stage.
type Stage string

const (
	StageIndividuals       Stage = "Individuals"
	StageCompanies         Stage = "Companies"
	StageNotes             Stage = "Notes"
	StageFinancialAccounts Stage = "FinancialAccounts"
	StageFinancialPledges  Stage = "FinancialPledges"
	StageFinancialBatches  Stage = "FinancialBatches"
	StageContributions     Stage = "Contributions"
	StageGroups            Stage = "Groups"
	StageAttendance        Stage = "Attendance"
)

// Stages returns every stage in run order.
func Stages() []Stage {
	return []Stage{
		StageIndividuals,
		StageCompanies,
		StageNotes,
		StageFinancialAccounts,
		StageFinancialPledges,
		StageFinancialBatches,
		StageContributions,
		StageGroups,
		StageAttendance,
	}
}

// ParseStages resolves stage names case-insensitively and returns them in
// run order. No names means every stage.
func ParseStages(names []string) ([]Stage, error) {
	if len(names) == 0 {
		return Stages(), nil
	}
	want := make(map[Stage]bool)
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		found := false
		for _, s := range Stages() {
			if strings.EqualFold(string(s), n) {
				want[s] = true
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown stage %q", n)
		}
	}
	var out []Stage
	for _, s := range Stages() {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}

// =============================================================================
// RESULTS
// =============================================================================

// StageResult is the outcome of one stage.
type StageResult struct {
	Stage    Stage
	Rows     int
	Emitted  map[types.Kind]int
	Dropped  int
	Warnings int
	Err      error
	Duration time.Duration
}

// Total returns the number of records the stage emitted.
func (r StageResult) Total() int {
	n := 0
	for _, c := range r.Emitted {
		n += c
	}
	return n
}

// RunResult collects the stage results of one run.
type RunResult struct {
	Stages    []StageResult
	Cancelled error
}

// Err joins every stage error and the cancellation, if any.
func (r *RunResult) Err() error {
	var errs []error
	for _, s := range r.Stages {
		if s.Err != nil {
			errs = append(errs, s.Err)
		}
	}
	if r.Cancelled != nil {
		errs = append(errs, r.Cancelled)
	}
	return errors.Join(errs...)
}

// LastError returns the message of the last stage that failed, or "".
func (r *RunResult) LastError() string {
	for i := len(r.Stages) - 1; i >= 0; i-- {
		if r.Stages[i].Err != nil {
			return r.Stages[i].Err.Error()
		}
	}
	return ""
}

// Emitted sums emitted records per kind across stages.
func (r *RunResult) Emitted() map[types.Kind]int {
	out := make(map[types.Kind]int)
	for _, s := range r.Stages {
		for k, n := range s.Emitted {
			out[k] += n
		}
	}
	return out
}

// =============================================================================
// CONTROLLER
// =============================================================================

// WarningFunc receives every row warning with the stage and table it came
// from.
type WarningFunc func(stage Stage, table string, w translate.Warning)

// Options configures a Pipeline.
type Options struct {
	Source source.Source
	Writer types.Writer

	// SourceConfig maps logical tables to physical names and queries.
	SourceConfig config.SourceConfig

	// Values defaults to translate.DefaultValueMaps.
	Values translate.ValueMaps

	AttendanceFallback   identity.Fallback
	AttendanceMaxRetries int
	AllocatorOptions     []identity.AllocatorOption

	Logger    logrus.FieldLogger
	OnWarning WarningFunc
}

// Pipeline runs export stages against a source and a writer.
type Pipeline struct {
	opts  Options
	log   logrus.FieldLogger
	state State

	// campuses is the only state kept between stages: the campus ids
	// already written, so people, groups and attendance can share them.
	campuses map[int]struct{}
}

// New returns an idle pipeline.
func New(opts Options) *Pipeline {
	if opts.Values == nil {
		opts.Values = translate.DefaultValueMaps()
	}
	if opts.AttendanceFallback == "" {
		opts.AttendanceFallback = identity.FallbackRandom
	}
	if opts.AttendanceMaxRetries <= 0 {
		opts.AttendanceMaxRetries = identity.DefaultMaxRetries
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		opts:     opts,
		log:      log,
		state:    StateIdle,
		campuses: make(map[int]struct{}),
	}
}

// State returns the controller's current state.
func (p *Pipeline) State() State {
	return p.state
}

// Run runs the stages in order. A failed stage does not stop the run; a
// cancelled context stops it before the next stage starts.
func (p *Pipeline) Run(ctx context.Context, stages ...Stage) *RunResult {
	if len(stages) == 0 {
		stages = Stages()
	}
	result := &RunResult{}
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			result.Cancelled = fmt.Errorf("run cancelled before stage %s: %w", stage, err)
			p.log.WithField("stage", stage).Warn("Run cancelled")
			break
		}
		result.Stages = append(result.Stages, p.RunStage(ctx, stage))
	}
	return result
}

// RunStage runs one stage through its full state cycle.
func (p *Pipeline) RunStage(ctx context.Context, stage Stage) (result StageResult) {
	start := time.Now()
	log := p.log.WithField("stage", stage)

	s := &stageRun{
		p:      p,
		stage:  stage,
		log:    log,
		tctx:   translate.NewContext(),
		result: &StageResult{Stage: stage, Emitted: make(map[types.Kind]int)},
	}
	s.tctx.Values = p.opts.Values

	defer func() {
		if r := recover(); r != nil {
			s.result.Err = fmt.Errorf("stage %s: panic: %v", stage, r)
		}
		p.cleanup(s)
		s.result.Duration = time.Since(start)
		if s.result.Err != nil {
			log.WithError(s.result.Err).Error("Stage failed")
		} else {
			log.WithFields(logrus.Fields{
				"rows":     s.result.Rows,
				"emitted":  s.result.Total(),
				"dropped":  s.result.Dropped,
				"warnings": s.result.Warnings,
			}).Info("Stage complete")
		}
		result = *s.result
	}()

	run, ok := stageFuncs[stage]
	if !ok {
		s.result.Err = fmt.Errorf("unknown stage %q", stage)
		return
	}

	if err := p.transition(stage, StateIdle, StateExtracting); err != nil {
		s.result.Err = err
		return
	}
	log.Info("Stage started")

	err := run(ctx, s)
	if ferr := p.flush(); ferr != nil {
		err = errors.Join(err, fmt.Errorf("flush: %w", ferr))
	}
	if err != nil {
		s.result.Err = fmt.Errorf("stage %s: %w", stage, err)
	}
	return
}

// flusher is a writer that buffers records until told to send them.
type flusher interface {
	Flush() error
}

// flush sends whatever the writer still buffers so a failure is charged to
// the stage that wrote the records.
func (p *Pipeline) flush() error {
	if f, ok := p.opts.Writer.(flusher); ok {
		return f.Flush()
	}
	return nil
}

// cleanup releases everything the stage owns and returns the controller to
// Idle from wherever the stage stopped.
func (p *Pipeline) cleanup(s *stageRun) {
	if p.state == StateIdle {
		return
	}
	if err := p.transition(s.stage, p.state, StateCleanup); err != nil {
		s.log.WithError(err).Warn("Forcing cleanup")
		p.state = StateCleanup
	}

	s.tctx.Emails.Release()
	s.snaps.Release()
	s.snaps = nil
	*s.tctx = translate.Context{}

	_ = p.transition(s.stage, StateCleanup, StateIdle)
}
