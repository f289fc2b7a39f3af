// Package costing_repo provides the PostgreSQL repository for jobs, cost sets
// and cost lines.
package costing_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/costing"
	"jobcost/internal/infrastructure/storage/postgres"
)

const (
	jobsTable  = "jobs"
	setsTable  = "cost_sets"
	linesTable = "cost_lines"
)

var (
	jobColumns  = postgres.ExtractDBColumns[costing.Job]()
	lineColumns = postgres.ExtractDBColumns[costing.CostLine]()
	setColumns  = postgres.ExtractDBColumns[costSetRow]()
)

// costSetRow flattens the summary into columns.
type costSetRow struct {
	ID               id.ID           `db:"id"`
	JobID            id.ID           `db:"job_id"`
	Kind             costing.SetKind `db:"kind"`
	Revision         int             `db:"revision"`
	SummaryCost      types.Money     `db:"summary_cost"`
	SummaryRevenue   types.Money     `db:"summary_revenue"`
	SummaryHours     types.Quantity  `db:"summary_hours"`
	SummaryLineCount int             `db:"summary_line_count"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

func toSetRow(cs *costing.CostSet) costSetRow {
	return costSetRow{
		ID:               cs.ID,
		JobID:            cs.JobID,
		Kind:             cs.Kind,
		Revision:         cs.Revision,
		SummaryCost:      cs.Summary.Cost,
		SummaryRevenue:   cs.Summary.Revenue,
		SummaryHours:     cs.Summary.Hours,
		SummaryLineCount: cs.Summary.LineCount,
		CreatedAt:        cs.CreatedAt,
		UpdatedAt:        cs.UpdatedAt,
	}
}

func (row costSetRow) toDomain() costing.CostSet {
	return costing.CostSet{
		ID:       row.ID,
		JobID:    row.JobID,
		Kind:     row.Kind,
		Revision: row.Revision,
		Summary: costing.Summary{
			Cost:      row.SummaryCost,
			Revenue:   row.SummaryRevenue,
			Hours:     row.SummaryHours,
			LineCount: row.SummaryLineCount,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// Repo implements costing.Repository.
type Repo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ costing.Repository = (*Repo)(nil)

// NewRepo creates a costing repository.
func NewRepo(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *Repo) exec(ctx context.Context, q squirrel.Sqlizer, what string, key any) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", what, err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(err, what, key)
	}
	return tag.RowsAffected(), nil
}

func (r *Repo) get(ctx context.Context, dst any, q squirrel.Sqlizer, what string, key any) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build %s query: %w", what, err)
	}
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), dst, sql, args...); err != nil {
		return postgres.MapError(err, what, key)
	}
	return nil
}

func (r *Repo) selectAll(ctx context.Context, dst any, q squirrel.Sqlizer) error {
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	return pgxscan.Select(ctx, r.txm.GetQuerier(ctx), dst, sql, args...)
}

// --- Jobs ---

func (r *Repo) CreateJob(ctx context.Context, job *costing.Job) error {
	_, err := r.exec(ctx, r.builder.Insert(jobsTable).SetMap(postgres.StructToMap(job)), "job", job.NumberString())
	return err
}

func (r *Repo) UpdateJob(ctx context.Context, job *costing.Job) error {
	n, err := r.exec(ctx, r.builder.Update(jobsTable).
		SetMap(postgres.StructToMapExcept(job, "id", "created_at", "job_number")).
		Where(squirrel.Eq{"id": job.ID}), "job", job.ID)
	if err == nil && n == 0 {
		return apperror.NewNotFound("job", job.ID)
	}
	return err
}

func (r *Repo) GetJob(ctx context.Context, jobID id.ID) (*costing.Job, error) {
	var job costing.Job
	err := r.get(ctx, &job, r.builder.Select(jobColumns...).From(jobsTable).Where(squirrel.Eq{"id": jobID}), "job", jobID)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetJobForUpdate locks the job row.
func (r *Repo) GetJobForUpdate(ctx context.Context, jobID id.ID) (*costing.Job, error) {
	var job costing.Job
	q := r.builder.Select(jobColumns...).From(jobsTable).Where(squirrel.Eq{"id": jobID}).Suffix("FOR UPDATE")
	if err := r.get(ctx, &job, q, "job", jobID); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repo) GetJobByNumber(ctx context.Context, number int64) (*costing.Job, error) {
	var job costing.Job
	q := r.builder.Select(jobColumns...).From(jobsTable).Where(squirrel.Eq{"job_number": number})
	if err := r.get(ctx, &job, q, "job", number); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *Repo) ListJobs(ctx context.Context, limit, offset int) ([]costing.Job, error) {
	q := r.builder.Select(jobColumns...).From(jobsTable).OrderBy("job_number DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	if offset > 0 {
		q = q.Offset(uint64(offset))
	}
	out := []costing.Job{}
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("select jobs: %w", err)
	}
	return out, nil
}

// --- Cost sets ---

func (r *Repo) CreateCostSet(ctx context.Context, set *costing.CostSet) error {
	_, err := r.exec(ctx, r.builder.Insert(setsTable).SetMap(postgres.StructToMap(toSetRow(set))), "cost set", string(set.Kind))
	return err
}

func (r *Repo) GetCostSet(ctx context.Context, setID id.ID) (*costing.CostSet, error) {
	var row costSetRow
	if err := r.get(ctx, &row, r.builder.Select(setColumns...).From(setsTable).Where(squirrel.Eq{"id": setID}), "cost set", setID); err != nil {
		return nil, err
	}
	cs := row.toDomain()
	return &cs, nil
}

func (r *Repo) ListCostSets(ctx context.Context, filter costing.CostSetFilter) ([]costing.CostSet, error) {
	q := r.builder.Select(setColumns...).From(setsTable).
		OrderBy("CASE kind WHEN 'estimate' THEN 0 WHEN 'quote' THEN 1 ELSE 2 END", "revision")
	if filter.JobID != nil {
		q = q.Where(squirrel.Eq{"job_id": *filter.JobID})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": string(*filter.Kind)})
	}
	var rows []costSetRow
	if err := r.selectAll(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("select cost sets: %w", err)
	}
	out := make([]costing.CostSet, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *Repo) MaxRevision(ctx context.Context, jobID id.ID, kind costing.SetKind) (int, error) {
	var max int
	sql, args, err := r.builder.Select("COALESCE(MAX(revision), 0)").From(setsTable).
		Where(squirrel.Eq{"job_id": jobID, "kind": string(kind)}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&max); err != nil {
		return 0, fmt.Errorf("max revision: %w", err)
	}
	return max, nil
}

func (r *Repo) UpdateSummary(ctx context.Context, setID id.ID, summary costing.Summary) error {
	n, err := r.exec(ctx, r.builder.Update(setsTable).
		Set("summary_cost", summary.Cost).
		Set("summary_revenue", summary.Revenue).
		Set("summary_hours", summary.Hours).
		Set("summary_line_count", summary.LineCount).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": setID}), "cost set", setID)
	if err == nil && n == 0 {
		return apperror.NewNotFound("cost set", setID)
	}
	return err
}

// --- Cost lines ---

func lineMap(line *costing.CostLine) map[string]any {
	m := postgres.StructToMap(line)
	if line.Meta == nil {
		m["meta"] = entity.Attributes{}
	}
	return m
}

func (r *Repo) CreateLine(ctx context.Context, line *costing.CostLine) error {
	_, err := r.exec(ctx, r.builder.Insert(linesTable).SetMap(lineMap(line)), "cost line", line.ID)
	return err
}

func (r *Repo) UpdateLine(ctx context.Context, line *costing.CostLine) error {
	m := lineMap(line)
	delete(m, "id")
	delete(m, "created_at")
	n, err := r.exec(ctx, r.builder.Update(linesTable).SetMap(m).Where(squirrel.Eq{"id": line.ID}), "cost line", line.ID)
	if err == nil && n == 0 {
		return apperror.NewNotFound("cost line", line.ID)
	}
	return err
}

func (r *Repo) DeleteLine(ctx context.Context, lineID id.ID) error {
	n, err := r.exec(ctx, r.builder.Delete(linesTable).Where(squirrel.Eq{"id": lineID}), "cost line", lineID)
	if err == nil && n == 0 {
		return apperror.NewNotFound("cost line", lineID)
	}
	return err
}

func (r *Repo) GetLine(ctx context.Context, lineID id.ID) (*costing.CostLine, error) {
	var line costing.CostLine
	if err := r.get(ctx, &line, r.builder.Select(lineColumns...).From(linesTable).Where(squirrel.Eq{"id": lineID}), "cost line", lineID); err != nil {
		return nil, err
	}
	return &line, nil
}

func (r *Repo) ListLines(ctx context.Context, filter costing.LineFilter) ([]costing.CostLine, error) {
	rows, err := r.ListLinesWithJob(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]costing.CostLine, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.CostLine)
	}
	return out, nil
}

// ListLinesWithJob joins lines to their cost set and job.
func (r *Repo) ListLinesWithJob(ctx context.Context, filter costing.LineFilter) ([]costing.LineWithJob, error) {
	cols := make([]string, 0, len(lineColumns)+3)
	for _, c := range lineColumns {
		cols = append(cols, "l."+c)
	}
	cols = append(cols, "cs.kind AS set_kind", "cs.job_id", "j.job_number")

	q := r.builder.Select(cols...).
		From(linesTable + " l").
		Join(setsTable + " cs ON cs.id = l.cost_set_id").
		Join(jobsTable + " j ON j.id = cs.job_id").
		OrderBy("l.created_at", "l.id")

	if filter.CostSetID != nil {
		q = q.Where(squirrel.Eq{"l.cost_set_id": *filter.CostSetID})
	}
	if filter.StockMovementID != nil {
		q = q.Where(squirrel.Expr("l.ext_refs ->> 'stock_movement_id' = ?", filter.StockMovementID.String()))
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"l.kind": string(*filter.Kind)})
	}
	if filter.SetKind != nil {
		q = q.Where(squirrel.Eq{"cs.kind": string(*filter.SetKind)})
	}
	if filter.LatestOnly {
		q = q.Where("cs.id IN (j.latest_estimate_id, j.latest_quote_id, j.latest_actual_id)")
	}
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"l.accounting_date": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"l.accounting_date": *filter.To})
	}

	out := []costing.LineWithJob{}
	if err := r.selectAll(ctx, &out, q); err != nil {
		return nil, fmt.Errorf("select cost lines: %w", err)
	}
	return out, nil
}
