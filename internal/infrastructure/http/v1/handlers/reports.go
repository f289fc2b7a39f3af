package handlers

import (
	"github.com/gin-gonic/gin"

	"jobcost/internal/domain/reports"
	"jobcost/internal/infrastructure/http/v1/dto"
)

// ReportsHandler handles report endpoints.
type ReportsHandler struct {
	*BaseHandler
	service *reports.Service
}

// NewReportsHandler creates a new reports handler.
func NewReportsHandler(base *BaseHandler, service *reports.Service) *ReportsHandler {
	return &ReportsHandler{BaseHandler: base, service: service}
}

// JobCost handles GET /reports/job-cost
func (h *ReportsHandler) JobCost(c *gin.Context) {
	var q dto.JobCostReportQuery
	if !h.BindQuery(c, &q) {
		return
	}
	report, err := h.service.GetJobCost(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}

// StockValuation handles GET /reports/stock-valuation
func (h *ReportsHandler) StockValuation(c *gin.Context) {
	var q dto.StockValuationReportQuery
	if !h.BindQuery(c, &q) {
		return
	}
	report, err := h.service.GetStockValuation(c.Request.Context(), q.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, report)
}
