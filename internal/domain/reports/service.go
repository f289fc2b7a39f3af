package reports

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/types"
	"jobcost/internal/domain/costing"
	"jobcost/internal/domain/registers/stock"
)

var hundred = decimal.NewFromInt(100)

// scanBatch is the page size used when a filter must see rows before paging.
const scanBatch = 200

// pageFiltered reads src in batches and returns the [offset, offset+limit)
// window of the rows accepted by keep.
func pageFiltered[T any](ctx context.Context, src func(ctx context.Context, limit, offset int) ([]T, error), limit, offset int, keep func(T) bool) ([]T, error) {
	out := []T{}
	skipped := 0
	for from := 0; ; from += scanBatch {
		batch, err := src(ctx, scanBatch, from)
		if err != nil {
			return nil, err
		}
		for _, row := range batch {
			if !keep(row) {
				continue
			}
			if skipped < offset {
				skipped++
				continue
			}
			out = append(out, row)
			if len(out) == limit {
				return out, nil
			}
		}
		if len(batch) < scanBatch {
			return out, nil
		}
	}
}

// Service provides report generation operations.
type Service struct {
	jobs   JobSource
	stocks StockSource
	now    func() time.Time
}

// NewService creates a new reports service.
func NewService(jobs JobSource, stocks StockSource) *Service {
	return &Service{
		jobs:   jobs,
		stocks: stocks,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// GetJobCost compares estimate, quote and actual totals per job.
func (s *Service) GetJobCost(ctx context.Context, filter JobCostReportFilter) (*JobCostReport, error) {
	// Set default pagination
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 500 {
		filter.Limit = 500
	}

	var (
		sums []*costing.JobSummary
		err  error
	)
	if filter.OverBudgetOnly {
		sums, err = pageFiltered(ctx, s.summaries, filter.Limit, filter.Offset, overBudget)
	} else {
		sums, err = s.summaries(ctx, filter.Limit, filter.Offset)
	}
	if err != nil {
		return nil, err
	}

	report := &JobCostReport{
		GeneratedAt:        s.now(),
		Items:              []JobCostReportItem{},
		TotalQuoteCost:     types.Zero(),
		TotalActualCost:    types.Zero(),
		TotalActualRevenue: types.Zero(),
		TotalProfit:        types.Zero(),
	}
	for _, sum := range sums {
		item := JobCostReportItem{
			JobID:         sum.JobID,
			JobNumber:     sum.JobNumber,
			Name:          sum.Name,
			EstimateCost:  sum.Estimate.Cost,
			QuoteCost:     sum.Quote.Cost,
			QuoteRevenue:  sum.Quote.Revenue,
			ActualCost:    sum.Actual.Cost,
			ActualRevenue: sum.Actual.Revenue,
			ActualHours:   sum.Actual.Hours,
			CostVariance:  sum.CostVariance,
			Profit:        sum.Profit,
			MarginPercent: types.Zero(),
		}
		if !sum.Actual.Revenue.IsZero() {
			item.MarginPercent = sum.Profit.Mul(hundred).Div(sum.Actual.Revenue).Round(2)
		}
		report.Items = append(report.Items, item)

		report.TotalQuoteCost = report.TotalQuoteCost.Add(item.QuoteCost)
		report.TotalActualCost = report.TotalActualCost.Add(item.ActualCost)
		report.TotalActualRevenue = report.TotalActualRevenue.Add(item.ActualRevenue)
		report.TotalProfit = report.TotalProfit.Add(item.Profit)
		if overBudget(sum) {
			report.OverBudgetJobs++
		}
	}
	report.TotalItems = len(report.Items)
	return report, nil
}

func (s *Service) summaries(ctx context.Context, limit, offset int) ([]*costing.JobSummary, error) {
	jobs, err := s.jobs.ListJobs(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	out := make([]*costing.JobSummary, 0, len(jobs))
	for _, job := range jobs {
		sum, err := s.jobs.JobSummary(ctx, job.ID)
		if err != nil {
			return nil, fmt.Errorf("summarize job %d: %w", job.Number, err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// overBudget reports actual cost above the quote.
func overBudget(sum *costing.JobSummary) bool {
	return sum.CostVariance.IsPositive()
}

// GetStockValuation values stock on hand at weighted average cost.
func (s *Service) GetStockValuation(ctx context.Context, filter StockValuationReportFilter) (*StockValuationReport, error) {
	// Set default pagination
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}

	list := func(ctx context.Context, limit, offset int) ([]stock.Stock, error) {
		return s.stocks.List(ctx, stock.ListFilter{
			ActiveOnly: !filter.IncludeInactive,
			Search:     filter.Search,
			Limit:      limit,
			Offset:     offset,
		})
	}
	var (
		rows []stock.Stock
		err  error
	)
	if filter.ExcludeZero {
		rows, err = pageFiltered(ctx, list, filter.Limit, filter.Offset, func(st stock.Stock) bool {
			return !st.Quantity.IsZero()
		})
	} else {
		rows, err = list(ctx, filter.Limit, filter.Offset)
	}
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}

	report := &StockValuationReport{
		AsOf:       s.now(),
		Items:      []StockValuationReportItem{},
		TotalValue: types.Zero(),
	}
	for _, st := range rows {
		value := types.RoundMoney(st.Quantity.Mul(st.UnitCost))
		report.Items = append(report.Items, StockValuationReportItem{
			StockID:     st.ID,
			ItemCode:    st.ItemCode,
			Description: st.Description,
			Quantity:    st.Quantity,
			UnitCost:    st.UnitCost,
			UnitRevenue: st.UnitRevenue,
			Value:       value,
			IsActive:    st.IsActive,
		})
		report.TotalQuantity += st.Quantity
		report.TotalValue = report.TotalValue.Add(value)
	}
	report.TotalItems = len(report.Items)
	return report, nil
}
