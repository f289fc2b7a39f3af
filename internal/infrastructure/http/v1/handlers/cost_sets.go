package handlers

import (
	"github.com/gin-gonic/gin"

	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
	"jobcost/internal/infrastructure/http/v1/dto"
)

// CostSetHandler serves cost sets and their lines.
type CostSetHandler struct {
	*BaseHandler
	costing    *costing.Service
	allocation *allocation.Service
}

func NewCostSetHandler(base *BaseHandler, costingSvc *costing.Service, allocationSvc *allocation.Service) *CostSetHandler {
	return &CostSetHandler{BaseHandler: base, costing: costingSvc, allocation: allocationSvc}
}

// Create handles POST /cost-sets
func (h *CostSetHandler) Create(c *gin.Context) {
	var req dto.CreateCostSetRequest
	if !h.BindJSON(c, &req) {
		return
	}
	jobID, err := dto.ParseID("jobId", req.JobID)
	if err != nil {
		h.Error(c, err)
		return
	}
	set, err := h.costing.CreateCostSet(c.Request.Context(), jobID, costing.SetKind(req.Kind))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, set)
}

// Get handles GET /cost-sets/:id
func (h *CostSetHandler) Get(c *gin.Context) {
	setID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	set, err := h.costing.GetCostSet(c.Request.Context(), setID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, set)
}

// AddLine handles POST /cost-sets/:id/lines
func (h *CostSetHandler) AddLine(c *gin.Context) {
	setID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.CostLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	line, err := h.costing.AddCostLine(c.Request.Context(), setID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, line)
}

// Recalculate handles POST /cost-sets/:id/recalculate
func (h *CostSetHandler) Recalculate(c *gin.Context) {
	setID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	summary, err := h.costing.RecalculateSummary(c.Request.Context(), setID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// GetLine handles GET /cost-lines/:id
func (h *CostSetHandler) GetLine(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	line, err := h.costing.GetCostLine(c.Request.Context(), lineID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// UpdateLine handles PUT /cost-lines/:id
func (h *CostSetHandler) UpdateLine(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UpdateCostLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	line, err := h.costing.UpdateCostLine(c.Request.Context(), lineID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// DeleteLine handles DELETE /cost-lines/:id
func (h *CostSetHandler) DeleteLine(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.costing.DeleteCostLine(c.Request.Context(), lineID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}

// RecreateLine handles POST /cost-lines/:id/recreate.
// This is the only way to change the kind of a line.
func (h *CostSetHandler) RecreateLine(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.CostLineRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	line, err := h.costing.RecreateCostLine(c.Request.Context(), lineID, in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, line)
}

// ReturnMaterial handles POST /cost-lines/:id/return
func (h *CostSetHandler) ReturnMaterial(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReturnMaterialRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	movement, err := h.allocation.ReturnMaterial(c.Request.Context(), lineID, req.Note)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, movement)
}

// MigrateReference handles POST /cost-lines/:id/migrate-reference
func (h *CostSetHandler) MigrateReference(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.MigrateReferenceRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}
	res, err := h.allocation.MigrateLegacyReference(c.Request.Context(), lineID, req.ToOptions())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}
