package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"jobcost/internal/core/apperror"
	"jobcost/internal/domain/costing"
	"jobcost/pkg/logger"
)

var tracer = otel.Tracer("jobcost/reconcile")

// LineSource lists the internal lines of a period. *costing.Service implements it.
type LineSource interface {
	ListLinesForPeriod(ctx context.Context, from, to time.Time) ([]costing.LineWithJob, error)
}

// SnapshotStore holds the last imported external ledger snapshot.
type SnapshotStore interface {
	// ImportEntries upserts entries by id and returns how many were written.
	ImportEntries(ctx context.Context, entries []ExternalEntry) (int64, error)
	ListEntries(ctx context.Context, from, to time.Time) ([]ExternalEntry, error)
}

// Service runs reconciliations over the stored snapshot or supplied entries.
type Service struct {
	lines     LineSource
	snapshots SnapshotStore
	opts      Options
	validate  *validator.Validate
}

// NewService creates a reconciliation service with default options.
func NewService(lines LineSource, snapshots SnapshotStore, opts Options) *Service {
	return &Service{
		lines:     lines,
		snapshots: snapshots,
		opts:      opts.withDefaults(),
		validate:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Options returns the configured defaults.
func (s *Service) Options() Options {
	return s.opts
}

// RunInput selects the period and, optionally, the external side.
type RunInput struct {
	PeriodStart time.Time
	PeriodEnd   time.Time
	// External replaces the stored snapshot when non-nil.
	External []ExternalEntry
	// Options override the configured defaults field by field.
	Options *Options
}

// Run loads both sides of the period and matches them.
func (s *Service) Run(ctx context.Context, in RunInput) (*Result, error) {
	ctx, span := tracer.Start(ctx, "reconcile.Run")
	defer span.End()

	opts := s.opts
	if in.Options != nil {
		opts = merge(opts, *in.Options)
	}

	from, to := dayOf(in.PeriodStart), dayOf(in.PeriodEnd)
	if to.Before(from) {
		return nil, apperror.NewValidation("period end is before period start").WithDetail("field", "periodEnd")
	}

	external := in.External
	if external == nil {
		var err error
		external, err = s.snapshots.ListEntries(ctx, from, to)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("list snapshot: %w", err)
		}
	} else if err := s.validateEntries(external); err != nil {
		return nil, err
	}

	// Lines dated on the last day of the period belong to it.
	stored, err := s.lines.ListLinesForPeriod(ctx, from, to.Add(24*time.Hour-time.Nanosecond))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("list cost lines: %w", err)
	}
	internal := make([]InternalLine, 0, len(stored))
	for _, l := range stored {
		internal = append(internal, FromCostLine(l))
	}

	res, err := Reconcile(external, internal, from, to, opts)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("reconcile.external", len(external)),
		attribute.Int("reconcile.internal", len(internal)),
		attribute.Int("reconcile.matched", len(res.Matched)),
	)
	logger.Info(ctx, "reconciliation finished",
		"period_start", from.Format(costing.DateLayout),
		"period_end", to.Format(costing.DateLayout),
		"matched", len(res.Matched),
		"unmatched_external", len(res.UnmatchedExternal),
		"unmatched_internal", len(res.UnmatchedInternal),
		"ambiguous", len(res.Ambiguous()),
		"difference", res.Totals.Difference.String())
	return res, nil
}

// ImportSnapshot validates and stores external entries.
func (s *Service) ImportSnapshot(ctx context.Context, entries []ExternalEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, apperror.NewValidation("snapshot has no entries").WithDetail("field", "entries")
	}
	if err := s.validateEntries(entries); err != nil {
		return 0, err
	}
	n, err := s.snapshots.ImportEntries(ctx, entries)
	if err != nil {
		return 0, fmt.Errorf("import snapshot: %w", err)
	}
	logger.Info(ctx, "ledger snapshot imported", "entries", n)
	return n, nil
}

func (s *Service) validateEntries(entries []ExternalEntry) error {
	seen := make(map[string]bool, len(entries))
	for i := range entries {
		e := &entries[i]
		if err := s.validate.Struct(e); err != nil {
			var fields []string
			if ve, ok := err.(validator.ValidationErrors); ok {
				for _, fe := range ve {
					fields = append(fields, fe.Field()+":"+fe.Tag())
				}
			}
			return apperror.NewValidation("invalid external ledger entry").
				WithDetail("index", i).
				WithDetail("fields", strings.Join(fields, ",")).
				WithCause(err)
		}
		if seen[e.ID] {
			return apperror.NewValidation("duplicate external ledger entry id").
				WithDetail("index", i).
				WithDetail("id", e.ID)
		}
		seen[e.ID] = true
	}
	return nil
}

// Reconcile filters both sides to [periodStart, periodEnd] (whole days) and
// the optional scope, then runs MatchEntries.
func Reconcile(external []ExternalEntry, internal []InternalLine, periodStart, periodEnd time.Time, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	from, to := dayOf(periodStart), dayOf(periodEnd)

	var scope *Scope
	if strings.TrimSpace(opts.Scope) != "" {
		var err error
		if scope, err = NewScope(opts.Scope); err != nil {
			return nil, err
		}
	}

	excluded := 0
	ext := make([]ExternalEntry, 0, len(external))
	for _, e := range external {
		if !inPeriod(e.Date, from, to) {
			excluded++
			continue
		}
		if scope != nil {
			ok, err := scope.Includes(e)
			if err != nil {
				return nil, err
			}
			if !ok {
				excluded++
				continue
			}
		}
		ext = append(ext, e)
	}

	in := make([]InternalLine, 0, len(internal))
	for _, l := range internal {
		if inPeriod(l.AccountingDate, from, to) {
			in = append(in, l)
		}
	}

	res := MatchEntries(ext, in, opts)
	res.PeriodStart, res.PeriodEnd = from, to
	res.ExcludedExternal = excluded
	return res, nil
}

func inPeriod(t, from, to time.Time) bool {
	d := dayOf(t)
	return !d.Before(from) && !d.After(to)
}

func merge(base, o Options) Options {
	if o.DateWindowDays > 0 {
		base.DateWindowDays = o.DateWindowDays
	}
	if o.MinScore > 0 {
		base.MinScore = o.MinScore
	}
	if o.AmountTolerance.IsPositive() {
		base.AmountTolerance = o.AmountTolerance
	}
	if o.Basis != "" {
		base.Basis = o.Basis
	}
	if o.Scope != "" {
		base.Scope = o.Scope
	}
	return base
}
