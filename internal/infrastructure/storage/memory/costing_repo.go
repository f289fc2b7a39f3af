package memory

import (
	"context"
	"sort"
	"time"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/domain/costing"
)

// CostingRepo implements costing.Repository.
type CostingRepo struct {
	s *Store
}

// NewCostingRepo creates a costing repository on s.
func NewCostingRepo(s *Store) *CostingRepo {
	return &CostingRepo{s: s}
}

var _ costing.Repository = (*CostingRepo)(nil)

// --- Jobs ---

func (r *CostingRepo) CreateJob(ctx context.Context, job *costing.Job) error {
	return r.s.write(ctx, func(d *state) error {
		for _, j := range d.jobs {
			if j.Number == job.Number {
				return apperror.NewDuplicate("job", "job_number", job.NumberString())
			}
		}
		d.jobs[job.ID] = *job
		return nil
	})
}

func (r *CostingRepo) UpdateJob(ctx context.Context, job *costing.Job) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.jobs[job.ID]; !ok {
			return apperror.NewNotFound("job", job.ID)
		}
		d.jobs[job.ID] = *job
		return nil
	})
}

func (r *CostingRepo) GetJob(ctx context.Context, jobID id.ID) (*costing.Job, error) {
	var out *costing.Job
	err := r.s.read(ctx, func(d *state) error {
		j, ok := d.jobs[jobID]
		if !ok {
			return apperror.NewNotFound("job", jobID)
		}
		out = &j
		return nil
	})
	return out, err
}

func (r *CostingRepo) GetJobForUpdate(ctx context.Context, jobID id.ID) (*costing.Job, error) {
	return r.GetJob(ctx, jobID)
}

func (r *CostingRepo) GetJobByNumber(ctx context.Context, number int64) (*costing.Job, error) {
	var out *costing.Job
	err := r.s.read(ctx, func(d *state) error {
		for _, j := range d.jobs {
			if j.Number == number {
				j := j
				out = &j
				return nil
			}
		}
		return apperror.NewNotFound("job", number)
	})
	return out, err
}

func (r *CostingRepo) ListJobs(ctx context.Context, limit, offset int) ([]costing.Job, error) {
	var out []costing.Job
	err := r.s.read(ctx, func(d *state) error {
		for _, j := range d.jobs {
			out = append(out, j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number > out[j].Number })
	return page(out, limit, offset), nil
}

// --- Cost sets ---

func (r *CostingRepo) CreateCostSet(ctx context.Context, set *costing.CostSet) error {
	return r.s.write(ctx, func(d *state) error {
		for _, cs := range d.sets {
			if cs.JobID == set.JobID && cs.Kind == set.Kind && cs.Revision == set.Revision {
				return apperror.NewDuplicate("cost set", "revision", string(set.Kind))
			}
		}
		d.sets[set.ID] = *set
		return nil
	})
}

func (r *CostingRepo) GetCostSet(ctx context.Context, setID id.ID) (*costing.CostSet, error) {
	var out *costing.CostSet
	err := r.s.read(ctx, func(d *state) error {
		cs, ok := d.sets[setID]
		if !ok {
			return apperror.NewNotFound("cost set", setID)
		}
		out = &cs
		return nil
	})
	return out, err
}

func (r *CostingRepo) ListCostSets(ctx context.Context, filter costing.CostSetFilter) ([]costing.CostSet, error) {
	var out []costing.CostSet
	err := r.s.read(ctx, func(d *state) error {
		for _, cs := range d.sets {
			if filter.JobID != nil && cs.JobID != *filter.JobID {
				continue
			}
			if filter.Kind != nil && cs.Kind != *filter.Kind {
				continue
			}
			out = append(out, cs)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return kindOrder(out[i].Kind) < kindOrder(out[j].Kind)
		}
		return out[i].Revision < out[j].Revision
	})
	return out, nil
}

func kindOrder(k costing.SetKind) int {
	for i, kind := range costing.SetKinds {
		if kind == k {
			return i
		}
	}
	return len(costing.SetKinds)
}

func (r *CostingRepo) MaxRevision(ctx context.Context, jobID id.ID, kind costing.SetKind) (int, error) {
	max := 0
	err := r.s.read(ctx, func(d *state) error {
		for _, cs := range d.sets {
			if cs.JobID == jobID && cs.Kind == kind && cs.Revision > max {
				max = cs.Revision
			}
		}
		return nil
	})
	return max, err
}

func (r *CostingRepo) UpdateSummary(ctx context.Context, setID id.ID, summary costing.Summary) error {
	return r.s.write(ctx, func(d *state) error {
		cs, ok := d.sets[setID]
		if !ok {
			return apperror.NewNotFound("cost set", setID)
		}
		cs.Summary = summary
		cs.UpdatedAt = time.Now().UTC()
		d.sets[setID] = cs
		return nil
	})
}

// --- Cost lines ---

func copyLine(l costing.CostLine) costing.CostLine {
	l.Meta = l.Meta.Clone()
	if l.ExtRefs.External != nil {
		ext := make(map[string]string, len(l.ExtRefs.External))
		for k, v := range l.ExtRefs.External {
			ext[k] = v
		}
		l.ExtRefs.External = ext
	}
	return l
}

func (r *CostingRepo) CreateLine(ctx context.Context, line *costing.CostLine) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.sets[line.CostSetID]; !ok {
			return apperror.NewNotFound("cost set", line.CostSetID)
		}
		if _, dup := d.lines[line.ID]; dup {
			return apperror.NewDuplicate("cost line", "id", line.ID.String())
		}
		d.lines[line.ID] = copyLine(*line)
		return nil
	})
}

func (r *CostingRepo) UpdateLine(ctx context.Context, line *costing.CostLine) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.lines[line.ID]; !ok {
			return apperror.NewNotFound("cost line", line.ID)
		}
		d.lines[line.ID] = copyLine(*line)
		return nil
	})
}

func (r *CostingRepo) DeleteLine(ctx context.Context, lineID id.ID) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.lines[lineID]; !ok {
			return apperror.NewNotFound("cost line", lineID)
		}
		delete(d.lines, lineID)
		return nil
	})
}

func (r *CostingRepo) GetLine(ctx context.Context, lineID id.ID) (*costing.CostLine, error) {
	var out *costing.CostLine
	err := r.s.read(ctx, func(d *state) error {
		l, ok := d.lines[lineID]
		if !ok {
			return apperror.NewNotFound("cost line", lineID)
		}
		l = copyLine(l)
		out = &l
		return nil
	})
	return out, err
}

func (r *CostingRepo) ListLines(ctx context.Context, filter costing.LineFilter) ([]costing.CostLine, error) {
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

func (r *CostingRepo) ListLinesWithJob(ctx context.Context, filter costing.LineFilter) ([]costing.LineWithJob, error) {
	out := []costing.LineWithJob{}
	err := r.s.read(ctx, func(d *state) error {
		for _, l := range d.lines {
			cs, ok := d.sets[l.CostSetID]
			if !ok {
				continue
			}
			job := d.jobs[cs.JobID]
			if !matchLine(l, cs, job, filter) {
				continue
			}
			out = append(out, costing.LineWithJob{
				CostLine:  copyLine(l),
				SetKind:   cs.Kind,
				JobID:     cs.JobID,
				JobNumber: job.Number,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return id.Less(a.ID, b.ID)
	})
	return out, nil
}

func matchLine(l costing.CostLine, cs costing.CostSet, job costing.Job, f costing.LineFilter) bool {
	if f.CostSetID != nil && l.CostSetID != *f.CostSetID {
		return false
	}
	if f.StockMovementID != nil && !id.Equal(l.ExtRefs.StockMovementID, f.StockMovementID) {
		return false
	}
	if f.Kind != nil && l.Kind != *f.Kind {
		return false
	}
	if f.SetKind != nil && cs.Kind != *f.SetKind {
		return false
	}
	if f.LatestOnly && job.LatestSetID(cs.Kind) != cs.ID {
		return false
	}
	if f.From != nil && l.AccountingDate.Before(*f.From) {
		return false
	}
	if f.To != nil && l.AccountingDate.After(*f.To) {
		return false
	}
	return true
}
