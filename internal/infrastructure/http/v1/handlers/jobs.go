package handlers

import (
	"github.com/gin-gonic/gin"

	"jobcost/internal/core/apperror"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
	"jobcost/internal/infrastructure/http/v1/dto"
)

// JobHandler serves jobs and their cost sets.
type JobHandler struct {
	*BaseHandler
	costing    *costing.Service
	allocation *allocation.Service
}

func NewJobHandler(base *BaseHandler, costingSvc *costing.Service, allocationSvc *allocation.Service) *JobHandler {
	return &JobHandler{BaseHandler: base, costing: costingSvc, allocation: allocationSvc}
}

// Create handles POST /jobs
func (h *JobHandler) Create(c *gin.Context) {
	var req dto.CreateJobRequest
	if !h.BindJSON(c, &req) {
		return
	}
	job, err := h.costing.CreateJob(c.Request.Context(), req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, job)
}

// List handles GET /jobs
func (h *JobHandler) List(c *gin.Context) {
	var req dto.PageRequest
	if !h.BindQuery(c, &req) {
		return
	}
	page := req.ListFilter("")
	jobs, err := h.costing.ListJobs(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(jobs))
}

// Get handles GET /jobs/:id
func (h *JobHandler) Get(c *gin.Context) {
	jobID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	job, err := h.costing.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, job)
}

// Summary handles GET /jobs/:id/summary
func (h *JobHandler) Summary(c *gin.Context) {
	jobID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	summary, err := h.costing.JobSummary(c.Request.Context(), jobID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, summary)
}

// ListCostSets handles GET /jobs/:id/cost-sets?kind=
func (h *JobHandler) ListCostSets(c *gin.Context) {
	jobID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var kind *costing.SetKind
	if raw := c.Query("kind"); raw != "" {
		k := costing.SetKind(raw)
		if !k.Valid() {
			h.Error(c, apperror.NewValidation("unknown cost set kind").WithDetail("kind", raw))
			return
		}
		kind = &k
	}
	sets, err := h.costing.ListCostSets(c.Request.Context(), jobID, kind)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(sets))
}

// ReviseQuote handles POST /jobs/:id/quote/revise
func (h *JobHandler) ReviseQuote(c *gin.Context) {
	jobID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	set, err := h.costing.ReviseQuote(c.Request.Context(), jobID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, set)
}

// DrawMaterial handles POST /jobs/:id/materials
func (h *JobHandler) DrawMaterial(c *gin.Context) {
	jobID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.DrawMaterialRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	in.JobID = jobID

	res, err := h.allocation.DrawMaterial(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}
