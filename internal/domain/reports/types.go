// Package reports provides report generation services.
package reports

import (
	"time"

	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

// --- Job Cost Report ---

// JobCostReportFilter defines filter for the job cost report.
type JobCostReportFilter struct {
	// OverBudgetOnly keeps jobs whose actual cost exceeds the quote.
	OverBudgetOnly bool

	// Pagination over jobs, newest first
	Limit  int
	Offset int
}

// JobCostReportItem is one job of the job cost report.
type JobCostReportItem struct {
	JobID     id.ID  `json:"jobId"`
	JobNumber int64  `json:"jobNumber"`
	Name      string `json:"name"`

	EstimateCost  types.Money    `json:"estimateCost"`
	QuoteCost     types.Money    `json:"quoteCost"`
	QuoteRevenue  types.Money    `json:"quoteRevenue"`
	ActualCost    types.Money    `json:"actualCost"`
	ActualRevenue types.Money    `json:"actualRevenue"`
	ActualHours   types.Quantity `json:"actualHours"`

	CostVariance types.Money `json:"costVariance"`
	Profit       types.Money `json:"profit"`
	// MarginPercent is profit over actual revenue; zero when there is no revenue.
	MarginPercent types.Money `json:"marginPercent"`
}

// JobCostReport is the estimate / quote / actual comparison across jobs.
type JobCostReport struct {
	GeneratedAt time.Time           `json:"generatedAt"`
	Items       []JobCostReportItem `json:"items"`
	TotalItems  int                 `json:"totalItems"`

	// Summary
	TotalQuoteCost     types.Money `json:"totalQuoteCost"`
	TotalActualCost    types.Money `json:"totalActualCost"`
	TotalActualRevenue types.Money `json:"totalActualRevenue"`
	TotalProfit        types.Money `json:"totalProfit"`
	OverBudgetJobs     int         `json:"overBudgetJobs"`
}

// --- Stock Valuation Report ---

// StockValuationReportFilter defines filter for the stock valuation report.
type StockValuationReportFilter struct {
	// Search matches item code or description
	Search string

	// Include deactivated rows
	IncludeInactive bool

	// Exclude zero balances
	ExcludeZero bool

	// Pagination
	Limit  int
	Offset int
}

// StockValuationReportItem represents a single row in the stock valuation report.
type StockValuationReportItem struct {
	StockID     id.ID          `json:"stockId"`
	ItemCode    string         `json:"itemCode"`
	Description string         `json:"description"`
	Quantity    types.Quantity `json:"quantity"`
	UnitCost    types.Money    `json:"unitCost"`
	UnitRevenue types.Money    `json:"unitRevenue"`
	// Value is quantity at weighted average cost, rounded to cents.
	Value    types.Money `json:"value"`
	IsActive bool        `json:"isActive"`
}

// StockValuationReport represents the full stock valuation report.
type StockValuationReport struct {
	AsOf       time.Time                  `json:"asOf"`
	Items      []StockValuationReportItem `json:"items"`
	TotalItems int                        `json:"totalItems"`

	// Summary
	TotalQuantity types.Quantity `json:"totalQuantity"`
	TotalValue    types.Money    `json:"totalValue"`
}
