package reports

import (
	"context"

	"jobcost/internal/core/id"
	"jobcost/internal/domain/costing"
	"jobcost/internal/domain/registers/stock"
)

// JobSource provides job totals. Implemented by costing.Service.
type JobSource interface {
	ListJobs(ctx context.Context, limit, offset int) ([]costing.Job, error)
	JobSummary(ctx context.Context, jobID id.ID) (*costing.JobSummary, error)
}

// StockSource provides stock rows. Implemented by stock.Service.
type StockSource interface {
	List(ctx context.Context, filter stock.ListFilter) ([]stock.Stock, error)
}

var (
	_ JobSource   = (*costing.Service)(nil)
	_ StockSource = (*stock.Service)(nil)
)
