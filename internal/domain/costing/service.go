package costing

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/numerator"
	"jobcost/internal/core/tx"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/registers/stock"
	"jobcost/pkg/logger"
)

// Service implements the job costing operations.
type Service struct {
	repo      Repository
	movements MovementReader
	numbers   numerator.Generator
	audit     audit.Recorder
	txm       tx.Manager
	registry  *Registry
	staff     StaffDirectory
	jobSeq    numerator.Config
}

// Option configures a Service.
type Option func(*Service)

// WithStaffDirectory enables staff_id existence checks on actual time lines.
func WithStaffDirectory(d StaffDirectory) Option {
	return func(s *Service) { s.staff = d }
}

// WithRegistry replaces the default meta schema registry.
func WithRegistry(r *Registry) Option {
	return func(s *Service) { s.registry = r }
}

// WithJobNumberStart sets the first job number of an empty database.
func WithJobNumberStart(n int64) Option {
	return func(s *Service) { s.jobSeq = numerator.JobConfig(n) }
}

// NewService creates a costing service.
func NewService(repo Repository, movements MovementReader, numbers numerator.Generator, rec audit.Recorder, txm tx.Manager, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		movements: movements,
		numbers:   numbers,
		audit:     rec,
		txm:       txm,
		registry:  DefaultRegistry(),
		jobSeq:    numerator.JobConfig(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the meta schema registry in use.
func (s *Service) Registry() *Registry {
	return s.registry
}

// --- Jobs ---

// CreateJobInput holds the fields of a new job.
type CreateJobInput struct {
	Name       string
	ClientName string
}

// CreateJob numbers a new job and eagerly creates its estimate, quote and actual sets.
func (s *Service) CreateJob(ctx context.Context, in CreateJobInput) (*Job, error) {
	var out *Job
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		num, err := s.numbers.NextNumber(ctx, s.jobSeq, nil)
		if err != nil {
			return fmt.Errorf("next job number: %w", err)
		}

		job := &Job{
			BaseEntity: entity.NewBaseEntity(),
			Number:     num,
			Name:       in.Name,
			ClientName: in.ClientName,
		}
		if err := job.Validate(ctx); err != nil {
			return err
		}
		if err := s.repo.CreateJob(ctx, job); err != nil {
			return fmt.Errorf("create job: %w", err)
		}

		for _, kind := range SetKinds {
			if _, err := s.createSet(ctx, job, kind); err != nil {
				return err
			}
		}
		if err := s.repo.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("update job: %w", err)
		}

		if err := s.record(ctx, audit.EntityJob, job.ID, audit.ActionCreate, map[string]any{
			"job_number": job.Number,
			"name":       job.Name,
		}); err != nil {
			return err
		}

		logger.Info(ctx, "job created", "job_id", job.ID, "job_number", job.Number)
		out = job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetJob returns a job.
func (s *Service) GetJob(ctx context.Context, jobID id.ID) (*Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// GetJobByNumber returns a job by its number.
func (s *Service) GetJobByNumber(ctx context.Context, number int64) (*Job, error) {
	return s.repo.GetJobByNumber(ctx, number)
}

// ListJobs returns jobs newest first.
func (s *Service) ListJobs(ctx context.Context, limit, offset int) ([]Job, error) {
	return s.repo.ListJobs(ctx, limit, offset)
}

// --- Cost sets ---

// CreateCostSet adds an empty revision of kind and makes it the job's latest.
// Earlier revisions stay queryable.
func (s *Service) CreateCostSet(ctx context.Context, jobID id.ID, kind SetKind) (*CostSet, error) {
	if !kind.Valid() {
		return nil, apperror.NewValidation(fmt.Sprintf("unknown cost set kind %q", kind)).WithDetail("field", "kind")
	}

	var out *CostSet
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		job, err := s.repo.GetJobForUpdate(ctx, jobID)
		if err != nil {
			return err
		}
		set, err := s.createSet(ctx, job, kind)
		if err != nil {
			return err
		}
		if err := s.repo.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("update job: %w", err)
		}
		out = set
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReviseQuote starts a new quote revision.
func (s *Service) ReviseQuote(ctx context.Context, jobID id.ID) (*CostSet, error) {
	return s.CreateCostSet(ctx, jobID, SetQuote)
}

func (s *Service) createSet(ctx context.Context, job *Job, kind SetKind) (*CostSet, error) {
	rev, err := s.repo.MaxRevision(ctx, job.ID, kind)
	if err != nil {
		return nil, fmt.Errorf("max revision: %w", err)
	}

	now := time.Now().UTC()
	set := &CostSet{
		ID:        id.New(),
		JobID:     job.ID,
		Kind:      kind,
		Revision:  rev + 1,
		Summary:   zeroSummary(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateCostSet(ctx, set); err != nil {
		return nil, fmt.Errorf("create cost set: %w", err)
	}
	job.setLatest(kind, set.ID)
	job.Touch()

	logger.Info(ctx, "cost set created",
		"job_id", job.ID,
		"cost_set_id", set.ID,
		"kind", string(kind),
		"revision", set.Revision,
	)
	return set, nil
}

// GetCostSet returns a cost set with its lines.
func (s *Service) GetCostSet(ctx context.Context, setID id.ID) (*CostSetWithLines, error) {
	set, err := s.repo.GetCostSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	lines, err := s.repo.ListLines(ctx, LineFilter{CostSetID: &set.ID})
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	return &CostSetWithLines{CostSet: *set, Lines: lines}, nil
}

// ListCostSets returns the revision history of a job, optionally for one kind.
func (s *Service) ListCostSets(ctx context.Context, jobID id.ID, kind *SetKind) ([]CostSet, error) {
	if _, err := s.repo.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return s.repo.ListCostSets(ctx, CostSetFilter{JobID: &jobID, Kind: kind})
}

// JobSummary aggregates the latest estimate, quote and actual of a job.
func (s *Service) JobSummary(ctx context.Context, jobID id.ID) (*JobSummary, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	out := &JobSummary{JobID: job.ID, JobNumber: job.Number, Name: job.Name}
	for _, kind := range SetKinds {
		set, err := s.repo.GetCostSet(ctx, job.LatestSetID(kind))
		if err != nil {
			return nil, fmt.Errorf("get %s cost set: %w", kind, err)
		}
		switch kind {
		case SetEstimate:
			out.Estimate = set.Summary
		case SetQuote:
			out.Quote = set.Summary
		case SetActual:
			out.Actual = set.Summary
		}
	}
	out.Profit = out.Actual.Revenue.Sub(out.Actual.Cost)
	out.CostVariance = out.Actual.Cost.Sub(out.Quote.Cost)
	return out, nil
}

// --- Summary ---

func zeroSummary() Summary {
	return Summary{Cost: decimal.Zero, Revenue: decimal.Zero}
}

// Summarize derives the totals of a set from its lines.
func Summarize(lines []CostLine) Summary {
	sum := zeroSummary()
	for i := range lines {
		l := &lines[i]
		sum.Cost = sum.Cost.Add(l.TotalCost())
		sum.Revenue = sum.Revenue.Add(l.TotalRevenue())
		if l.Kind == LineTime {
			sum.Hours += l.Quantity
		}
		sum.LineCount++
	}
	return sum
}

// RecalculateSummary re-derives the set totals from its current lines and
// stores them. Running it twice yields the same result.
func (s *Service) RecalculateSummary(ctx context.Context, setID id.ID) (Summary, error) {
	var out Summary
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetCostSet(ctx, setID); err != nil {
			return err
		}
		var err error
		out, err = s.recalc(ctx, setID)
		return err
	})
	return out, err
}

func (s *Service) recalc(ctx context.Context, setID id.ID) (Summary, error) {
	lines, err := s.repo.ListLines(ctx, LineFilter{CostSetID: &setID})
	if err != nil {
		return Summary{}, fmt.Errorf("list lines: %w", err)
	}
	sum := Summarize(lines)
	if err := s.repo.UpdateSummary(ctx, setID, sum); err != nil {
		return Summary{}, fmt.Errorf("update summary: %w", err)
	}
	return sum, nil
}

// --- Cost lines ---

// LineInput holds the fields of a new cost line.
type LineInput struct {
	// ID pre-assigns the line id; a consume movement can then point at the
	// line it is about to get.
	ID             *id.ID
	Kind           LineKind
	Description    string
	Quantity       types.Quantity
	UnitCost       types.Money
	UnitRevenue    types.Money
	AccountingDate time.Time
	Meta           entity.Attributes
	ExtRefs        entity.Attributes
}

// UpdateLineInput holds the fields to change. Nil fields are left untouched.
// Kind may be sent, but only if it equals the stored kind.
type UpdateLineInput struct {
	ExpectedVersion int
	Kind            *LineKind
	Description     *string
	Quantity        *types.Quantity
	UnitCost        *types.Money
	UnitRevenue     *types.Money
	AccountingDate  *time.Time
	Meta            *entity.Attributes
	ExtRefs         *entity.Attributes
}

// AddCostLine validates and appends a line to the latest set of its kind.
func (s *Service) AddCostLine(ctx context.Context, setID id.ID, in LineInput) (*CostLine, error) {
	var out *CostLine
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		set, err := s.writableSet(ctx, setID)
		if err != nil {
			return err
		}

		line := &CostLine{BaseEntity: entity.NewBaseEntity(), CostSetID: set.ID}
		if in.ID != nil {
			line.ID = *in.ID
		}
		if err := s.fill(ctx, line, set.Kind, in); err != nil {
			return err
		}
		if err := s.repo.CreateLine(ctx, line); err != nil {
			return fmt.Errorf("create line: %w", err)
		}
		if _, err := s.recalc(ctx, set.ID); err != nil {
			return err
		}

		logger.Info(ctx, "cost line added",
			"cost_set_id", set.ID,
			"line_id", line.ID,
			"kind", string(line.Kind),
		)
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateCostLine corrects a line in place. A different kind is rejected;
// RecreateCostLine is the only way to change it.
func (s *Service) UpdateCostLine(ctx context.Context, lineID id.ID, in UpdateLineInput) (*CostLine, error) {
	var out *CostLine
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		if in.ExpectedVersion > 0 && in.ExpectedVersion != line.Version {
			return apperror.NewConcurrentModification("cost line", line.ID)
		}
		if in.Kind != nil && *in.Kind != line.Kind {
			return apperror.NewKindChange(line.ID, string(line.Kind), string(*in.Kind))
		}
		set, err := s.writableSet(ctx, line.CostSetID)
		if err != nil {
			return err
		}

		merged := inputFromLine(line)
		if in.Description != nil {
			merged.Description = *in.Description
		}
		if in.Quantity != nil {
			merged.Quantity = *in.Quantity
		}
		if in.UnitCost != nil {
			merged.UnitCost = *in.UnitCost
		}
		if in.UnitRevenue != nil {
			merged.UnitRevenue = *in.UnitRevenue
		}
		if in.AccountingDate != nil {
			merged.AccountingDate = *in.AccountingDate
		}
		if in.Meta != nil {
			merged.Meta = *in.Meta
		}
		if in.ExtRefs != nil {
			merged.ExtRefs = *in.ExtRefs
		}

		before := lineState(line)
		if err := s.fill(ctx, line, set.Kind, merged); err != nil {
			return err
		}
		line.Touch()
		if err := s.repo.UpdateLine(ctx, line); err != nil {
			return fmt.Errorf("update line: %w", err)
		}
		if _, err := s.recalc(ctx, set.ID); err != nil {
			return err
		}
		if changes := audit.Diff(before, lineState(line)); len(changes) > 0 {
			if err := s.record(ctx, audit.EntityCostLine, line.ID, audit.ActionUpdate, changes); err != nil {
				return err
			}
		}

		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCostLine removes a line. A line bound to a consume movement can only
// be removed after that consumption has been returned.
func (s *Service) DeleteCostLine(ctx context.Context, lineID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		set, err := s.writableSet(ctx, line.CostSetID)
		if err != nil {
			return err
		}
		if err := s.ensureUnlinked(ctx, line); err != nil {
			return err
		}

		if err := s.repo.DeleteLine(ctx, line.ID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}
		if _, err := s.recalc(ctx, set.ID); err != nil {
			return err
		}
		if err := s.record(ctx, audit.EntityCostLine, line.ID, audit.ActionDelete, lineState(line)); err != nil {
			return err
		}

		logger.Info(ctx, "cost line deleted", "cost_set_id", set.ID, "line_id", line.ID)
		return nil
	})
}

// RecreateCostLine replaces a line with a new one, typically of another kind,
// in one transaction and records both versions in the audit trail.
func (s *Service) RecreateCostLine(ctx context.Context, lineID id.ID, in LineInput) (*CostLine, error) {
	var out *CostLine
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		old, err := s.repo.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		set, err := s.writableSet(ctx, old.CostSetID)
		if err != nil {
			return err
		}

		// A consume-linked line may only be recreated if the new one keeps the link.
		if old.ExtRefs.StockMovementID != nil {
			newRefs, err := ParseExtRefs(in.ExtRefs)
			if err != nil {
				return err
			}
			if !id.Equal(newRefs.StockMovementID, old.ExtRefs.StockMovementID) {
				if err := s.ensureUnlinked(ctx, old); err != nil {
					return err
				}
			}
		}

		if err := s.repo.DeleteLine(ctx, old.ID); err != nil {
			return fmt.Errorf("delete line: %w", err)
		}

		line := &CostLine{BaseEntity: entity.NewBaseEntity(), CostSetID: set.ID}
		in.ID = nil
		if err := s.fill(ctx, line, set.Kind, in); err != nil {
			return err
		}
		if err := s.repo.CreateLine(ctx, line); err != nil {
			return fmt.Errorf("create line: %w", err)
		}
		if _, err := s.recalc(ctx, set.ID); err != nil {
			return err
		}

		if err := s.record(ctx, audit.EntityCostLine, line.ID, audit.ActionRecreate, map[string]any{
			"replaces": old.ID.String(),
			"old_kind": string(old.Kind),
			"new_kind": string(line.Kind),
			"old":      lineState(old),
			"new":      lineState(line),
		}); err != nil {
			return err
		}

		logger.Info(ctx, "cost line recreated",
			"cost_set_id", set.ID,
			"old_line_id", old.ID,
			"line_id", line.ID,
			"old_kind", string(old.Kind),
			"kind", string(line.Kind),
		)
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetCostLine returns a line.
func (s *Service) GetCostLine(ctx context.Context, lineID id.ID) (*CostLine, error) {
	return s.repo.GetLine(ctx, lineID)
}

// RewriteStockReference replaces a legacy stock_id with the movement that
// materializes it. Used only by the reference migration.
func (s *Service) RewriteStockReference(ctx context.Context, lineID, movementID id.ID) (*CostLine, error) {
	var out *CostLine
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.ExtRefs.StockID == nil || line.ExtRefs.StockMovementID != nil {
			return apperror.NewValidation("line does not carry a migratable legacy stock reference").
				WithDetail("line_id", line.ID)
		}
		set, err := s.repo.GetCostSet(ctx, line.CostSetID)
		if err != nil {
			return err
		}

		before := lineState(line)
		refs := line.ExtRefs
		refs.StockID = nil
		refs.StockMovementID = id.Ptr(movementID)

		in := inputFromLine(line)
		in.ExtRefs = refs.Attributes()
		if err := s.fill(ctx, line, set.Kind, in); err != nil {
			return err
		}
		line.Touch()
		if err := s.repo.UpdateLine(ctx, line); err != nil {
			return fmt.Errorf("update line: %w", err)
		}
		if err := s.record(ctx, audit.EntityCostLine, line.ID, audit.ActionMigrate,
			audit.Diff(before, lineState(line))); err != nil {
			return err
		}
		out = line
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// writableSet returns the set if it is the job's latest of its kind.
func (s *Service) writableSet(ctx context.Context, setID id.ID) (*CostSet, error) {
	set, err := s.repo.GetCostSet(ctx, setID)
	if err != nil {
		return nil, err
	}
	job, err := s.repo.GetJob(ctx, set.JobID)
	if err != nil {
		return nil, err
	}
	if job.LatestSetID(set.Kind) != set.ID {
		return nil, apperror.NewConflict("cost set is a superseded revision").
			WithDetail("cost_set_id", set.ID).
			WithDetail("latest_id", job.LatestSetID(set.Kind))
	}
	return set, nil
}

func (s *Service) ensureUnlinked(ctx context.Context, line *CostLine) error {
	if line.ExtRefs.StockMovementID == nil {
		return nil
	}
	reversed, err := s.movements.IsReversed(ctx, *line.ExtRefs.StockMovementID)
	if err != nil {
		return fmt.Errorf("check reversal: %w", err)
	}
	if !reversed {
		return apperror.NewConflict("cost line is bound to a stock consumption; return the material first").
			WithDetail("line_id", line.ID).
			WithDetail("stock_movement_id", *line.ExtRefs.StockMovementID)
	}
	return nil
}

// fill validates in against the set kind and writes it onto line.
func (s *Service) fill(ctx context.Context, line *CostLine, setKind SetKind, in LineInput) error {
	if !in.Kind.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unknown cost line kind %q", in.Kind)).WithDetail("field", "kind")
	}
	if in.AccountingDate.IsZero() {
		return apperror.NewValidation("accounting date is required").WithDetail("field", "accountingDate")
	}
	if in.Kind != LineAdjust {
		if in.Quantity.IsNegative() {
			return apperror.NewValidation("quantity cannot be negative").WithDetail("field", "quantity")
		}
		if in.UnitCost.IsNegative() || in.UnitRevenue.IsNegative() {
			return apperror.NewValidation("unit prices cannot be negative on time or material lines").
				WithDetail("field", "unitCost")
		}
	}

	meta, err := s.registry.Decode(in.Kind, setKind, in.Meta)
	if err != nil {
		return err
	}
	if err := s.checkStaff(ctx, meta, setKind); err != nil {
		return err
	}

	refs, err := ParseExtRefs(in.ExtRefs)
	if err != nil {
		return err
	}
	if err := s.checkRefs(ctx, line.ID, in.Kind, setKind, refs); err != nil {
		return err
	}

	line.Kind = in.Kind
	line.Description = in.Description
	line.Quantity = in.Quantity
	line.UnitCost = in.UnitCost
	line.UnitRevenue = in.UnitRevenue
	line.AccountingDate = in.AccountingDate.UTC()
	line.Meta = meta.Attributes()
	line.ExtRefs = refs
	return nil
}

func (s *Service) checkStaff(ctx context.Context, meta Meta, setKind SetKind) error {
	tm, ok := meta.(TimeMeta)
	if !ok || s.staff == nil || setKind != SetActual || tm.StaffID == nil {
		return nil
	}
	exists, err := s.staff.StaffExists(ctx, *tm.StaffID)
	if err != nil {
		return fmt.Errorf("check staff: %w", err)
	}
	if !exists {
		return apperror.NewSchemaValidation(string(LineTime), []string{"staff_id"}, "unknown staff member")
	}
	return nil
}

// checkRefs enforces that stock linkage goes through a consume movement.
func (s *Service) checkRefs(ctx context.Context, lineID id.ID, kind LineKind, setKind SetKind, refs ExtRefs) error {
	if refs.StockMovementID != nil && refs.StockID != nil {
		return apperror.NewAmbiguousReference(lineID)
	}
	if refs.StockID != nil {
		return apperror.NewLegacyReference(lineID)
	}
	if kind != LineMaterial {
		if refs.HasStockLink() {
			return apperror.NewSchemaValidation(string(kind), []string{"stock_movement_id"},
				"stock references are only allowed on material lines")
		}
		return nil
	}

	if refs.StockMovementID == nil {
		if setKind == SetActual {
			return apperror.NewSchemaValidation(string(kind), []string{"stock_movement_id"},
				"material lines in actual cost sets must reference a stock movement")
		}
		return nil
	}

	m, err := s.movements.GetMovement(ctx, *refs.StockMovementID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return apperror.NewOrphanReference(audit.EntityCostLine, lineID, audit.EntityStockMovement, *refs.StockMovementID)
		}
		return fmt.Errorf("get movement: %w", err)
	}
	if m.Type != stock.MovementConsume {
		return apperror.NewSchemaValidation(string(kind), []string{"stock_movement_id"},
			"stock_movement_id must reference a consume movement").
			WithDetail("movement_type", string(m.Type))
	}

	linked, err := s.repo.ListLines(ctx, LineFilter{StockMovementID: refs.StockMovementID})
	if err != nil {
		return fmt.Errorf("list linked lines: %w", err)
	}
	for _, other := range linked {
		if other.ID != lineID {
			return apperror.NewConflict("stock movement is already bound to another cost line").
				WithDetail("stock_movement_id", *refs.StockMovementID).
				WithDetail("line_id", other.ID)
		}
	}
	return nil
}

// ValidateStoredLine re-checks a persisted line and returns every violation.
// It never modifies the line.
func (s *Service) ValidateStoredLine(ctx context.Context, line LineWithJob) []error {
	var errs []error
	if line.AccountingDate.IsZero() {
		errs = append(errs, apperror.NewValidation("accounting date is required").WithDetail("field", "accountingDate"))
	}
	if _, err := s.registry.Decode(line.Kind, line.SetKind, line.Meta); err != nil {
		errs = append(errs, err)
	}
	if err := s.checkRefs(ctx, line.ID, line.Kind, line.SetKind, line.ExtRefs); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// ListLinesForPeriod returns actual lines of current sets with accounting
// dates in [from, to], joined to their job numbers.
func (s *Service) ListLinesForPeriod(ctx context.Context, from, to time.Time) ([]LineWithJob, error) {
	kind := SetActual
	return s.repo.ListLinesWithJob(ctx, LineFilter{
		SetKind:    &kind,
		LatestOnly: true,
		From:       &from,
		To:         &to,
	})
}

// ListAllLines returns every stored line with its job context.
func (s *Service) ListAllLines(ctx context.Context) ([]LineWithJob, error) {
	return s.repo.ListLinesWithJob(ctx, LineFilter{})
}

func inputFromLine(l *CostLine) LineInput {
	return LineInput{
		Kind:           l.Kind,
		Description:    l.Description,
		Quantity:       l.Quantity,
		UnitCost:       l.UnitCost,
		UnitRevenue:    l.UnitRevenue,
		AccountingDate: l.AccountingDate,
		Meta:           l.Meta.Clone(),
		ExtRefs:        l.ExtRefs.Attributes(),
	}
}

func lineState(l *CostLine) map[string]any {
	return map[string]any{
		"kind":            string(l.Kind),
		"description":     l.Description,
		"quantity":        l.Quantity.String(),
		"unit_cost":       l.UnitCost.String(),
		"unit_revenue":    l.UnitRevenue.String(),
		"accounting_date": l.AccountingDate.Format(DateLayout),
		"meta":            map[string]any(l.Meta.Clone()),
		"ext_refs":        map[string]any(l.ExtRefs.Attributes()),
	}
}

func (s *Service) record(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, audit.Entry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    changes,
	}); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
