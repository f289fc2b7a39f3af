package dto

import "jobcost/internal/domain/reports"

// JobCostReportQuery is the query of GET /reports/job-cost.
type JobCostReportQuery struct {
	PageRequest
	OverBudgetOnly bool `form:"overBudgetOnly"`
}

func (q JobCostReportQuery) ToFilter() reports.JobCostReportFilter {
	return reports.JobCostReportFilter{OverBudgetOnly: q.OverBudgetOnly, Limit: q.Limit, Offset: q.Offset}
}

// StockValuationReportQuery is the query of GET /reports/stock-valuation.
type StockValuationReportQuery struct {
	Limit           int    `form:"limit" binding:"omitempty,min=1,max=1000"`
	Offset          int    `form:"offset" binding:"omitempty,min=0"`
	Search          string `form:"search" binding:"max=128"`
	IncludeInactive bool   `form:"includeInactive"`
	ExcludeZero     bool   `form:"excludeZero"`
}

func (q StockValuationReportQuery) ToFilter() reports.StockValuationReportFilter {
	return reports.StockValuationReportFilter{
		Search:          q.Search,
		IncludeInactive: q.IncludeInactive,
		ExcludeZero:     q.ExcludeZero,
		Limit:           q.Limit,
		Offset:          q.Offset,
	}
}
