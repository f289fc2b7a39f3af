package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobcost/internal/core/apperror"
	"jobcost/internal/metadata"
)

type MetadataHandler struct {
	*BaseHandler
	registry *metadata.Registry
}

func NewMetadataHandler(base *BaseHandler, registry *metadata.Registry) *MetadataHandler {
	return &MetadataHandler{BaseHandler: base, registry: registry}
}

// ListEntities returns every registered entity definition.
// GET /api/v1/meta
func (h *MetadataHandler) ListEntities(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.List())
}

// GetEntity returns the definition of one entity.
// GET /api/v1/meta/:name
func (h *MetadataHandler) GetEntity(c *gin.Context) {
	def, ok := h.registry.Get(c.Param("name"))
	if !ok {
		h.Error(c, apperror.NewNotFound("entity definition", c.Param("name")))
		return
	}
	c.JSON(http.StatusOK, def)
}

// CostLineSchemas returns the JSON Schema of each cost line meta kind and of ext_refs.
// GET /api/v1/meta/cost-line-schemas
func (h *MetadataHandler) CostLineSchemas(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Schemas())
}
