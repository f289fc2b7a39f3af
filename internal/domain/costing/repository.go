package costing

import (
	"context"
	"time"

	"jobcost/internal/core/id"
	"jobcost/internal/domain/registers/stock"
)

// Repository persists jobs, cost sets and cost lines.
type Repository interface {
	// Jobs

	CreateJob(ctx context.Context, job *Job) error
	UpdateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, jobID id.ID) (*Job, error)
	// GetJobForUpdate locks the job row; cost set creation is serialized per job.
	GetJobForUpdate(ctx context.Context, jobID id.ID) (*Job, error)
	GetJobByNumber(ctx context.Context, number int64) (*Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]Job, error)

	// Cost sets

	CreateCostSet(ctx context.Context, set *CostSet) error
	GetCostSet(ctx context.Context, setID id.ID) (*CostSet, error)
	ListCostSets(ctx context.Context, filter CostSetFilter) ([]CostSet, error)
	// MaxRevision returns 0 when the job has no set of that kind.
	MaxRevision(ctx context.Context, jobID id.ID, kind SetKind) (int, error)
	UpdateSummary(ctx context.Context, setID id.ID, summary Summary) error

	// Cost lines

	CreateLine(ctx context.Context, line *CostLine) error
	UpdateLine(ctx context.Context, line *CostLine) error
	DeleteLine(ctx context.Context, lineID id.ID) error
	GetLine(ctx context.Context, lineID id.ID) (*CostLine, error)
	ListLines(ctx context.Context, filter LineFilter) ([]CostLine, error)

	// ListLinesWithJob joins lines to their set kind and job number.
	ListLinesWithJob(ctx context.Context, filter LineFilter) ([]LineWithJob, error)
}

// CostSetFilter for cost set queries. Empty fields do not filter.
type CostSetFilter struct {
	JobID *id.ID
	Kind  *SetKind
}

// LineFilter for cost line queries. Empty fields do not filter.
type LineFilter struct {
	CostSetID       *id.ID
	StockMovementID *id.ID
	Kind            *LineKind
	SetKind         *SetKind
	// LatestOnly restricts to lines of the job's current set of each kind.
	LatestOnly bool
	From       *time.Time
	To         *time.Time
}

// MovementReader resolves stock movements referenced by material lines.
// *stock.Service implements it.
type MovementReader interface {
	GetMovement(ctx context.Context, movementID id.ID) (*stock.Movement, error)
	IsReversed(ctx context.Context, movementID id.ID) (bool, error)
}

// StaffDirectory validates staff references on actual time lines.
// The staff register itself is owned by another system.
type StaffDirectory interface {
	StaffExists(ctx context.Context, staffID id.ID) (bool, error)
}
