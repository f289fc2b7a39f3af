package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobcost/internal/domain/reconcile"
	"jobcost/internal/infrastructure/export"
	"jobcost/internal/infrastructure/http/v1/dto"
)

// ReconcileHandler matches the external ledger against actual cost lines.
type ReconcileHandler struct {
	*BaseHandler
	service *reconcile.Service
}

func NewReconcileHandler(base *BaseHandler, service *reconcile.Service) *ReconcileHandler {
	return &ReconcileHandler{BaseHandler: base, service: service}
}

// Run handles POST /reconciliations
func (h *ReconcileHandler) Run(c *gin.Context) {
	var req dto.RunReconciliationRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.Run(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// Export handles GET /reconciliations/export?from=&to=.
// The period is matched against the stored snapshot and returned as a workbook.
func (h *ReconcileHandler) Export(c *gin.Context) {
	var req dto.ReconcileExportQuery
	if !h.BindQuery(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.Run(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, res); err != nil {
		h.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, export.FileName(res)))
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}

// ImportSnapshot handles PUT /ledger-snapshot
func (h *ReconcileHandler) ImportSnapshot(c *gin.Context) {
	var req dto.ImportSnapshotRequest
	if !h.BindJSON(c, &req) {
		return
	}
	entries, err := req.ToEntries()
	if err != nil {
		h.Error(c, err)
		return
	}
	n, err := h.service.ImportSnapshot(c.Request.Context(), entries)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.ImportSnapshotResponse{Imported: n})
}
