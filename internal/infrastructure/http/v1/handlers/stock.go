package handlers

import (
	"github.com/gin-gonic/gin"

	"jobcost/internal/core/apperror"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/http/v1/dto"
)

// StockHandler serves the stock register and its movement journal.
type StockHandler struct {
	*BaseHandler
	service *stock.Service
}

func NewStockHandler(base *BaseHandler, service *stock.Service) *StockHandler {
	return &StockHandler{BaseHandler: base, service: service}
}

// Upsert handles PUT /stock
func (h *StockHandler) Upsert(c *gin.Context) {
	var req dto.UpsertStockRequest
	if !h.BindJSON(c, &req) {
		return
	}
	st, err := h.service.UpsertStock(c.Request.Context(), req.ItemCode, req.ToAttrs())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}

// List handles GET /stock
func (h *StockHandler) List(c *gin.Context) {
	var req dto.StockListQuery
	if !h.BindQuery(c, &req) {
		return
	}
	rows, err := h.service.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(rows))
}

// Get handles GET /stock/:id
func (h *StockHandler) Get(c *gin.Context) {
	stockID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	st, err := h.service.Get(c.Request.Context(), stockID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}

// Movements handles GET /stock/:id/movements?types=receipt,consume
func (h *StockHandler) Movements(c *gin.Context) {
	stockID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.MovementListQuery
	if !h.BindQuery(c, &req) {
		return
	}
	kinds, valid := req.Kinds()
	if !valid {
		h.Error(c, apperror.NewValidation("unknown movement type").WithDetail("types", req.Types))
		return
	}

	ctx := c.Request.Context()
	st, err := h.service.Get(ctx, stockID)
	if err != nil {
		h.Error(c, err)
		return
	}
	var movements []stock.Movement
	if len(kinds) == 0 {
		movements, err = h.service.History(ctx, stockID)
	} else {
		movements, err = h.service.ListMovements(ctx, stock.MovementFilter{StockID: &stockID, Types: kinds})
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	if movements == nil {
		movements = []stock.Movement{}
	}
	h.OK(c, dto.StockHistoryResponse{Stock: st, Movements: movements})
}

// Consume handles POST /stock/:id/consume
func (h *StockHandler) Consume(c *gin.Context) {
	stockID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.ConsumeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	ref, err := req.ToRef()
	if err != nil {
		h.Error(c, err)
		return
	}
	m, err := h.service.Consume(c.Request.Context(), stockID, req.Quantity, ref)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// Adjust handles POST /stock/:id/adjust
func (h *StockHandler) Adjust(c *gin.Context) {
	stockID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.AdjustRequest
	if !h.BindJSON(c, &req) {
		return
	}
	m, err := h.service.Adjust(c.Request.Context(), stockID, req.Delta, req.Reason)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, m)
}

// Split handles POST /stock/:id/split
func (h *StockHandler) Split(c *gin.Context) {
	stockID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.SplitRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.service.Split(c.Request.Context(), stock.SplitInput{
		SourceID:    stockID,
		Quantity:    req.Quantity,
		ItemCode:    req.ItemCode,
		Description: req.Description,
	})
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Merge handles POST /stock/merge
func (h *StockHandler) Merge(c *gin.Context) {
	var req dto.MergeRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.service.Merge(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// Deactivate handles POST /stock/:id/deactivate
func (h *StockHandler) Deactivate(c *gin.Context) {
	stockID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	st, err := h.service.Deactivate(c.Request.Context(), stockID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, st)
}

// Undo handles POST /stock/movements/:id/undo.
// A receipt is reversed, a consumption is returned to stock.
func (h *StockHandler) Undo(c *gin.Context) {
	movementID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.UndoMovementRequest
	if !h.BindOptionalJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	m, err := h.service.GetMovement(ctx, movementID)
	if err != nil {
		h.Error(c, err)
		return
	}

	var reversal *stock.Movement
	switch m.Type {
	case stock.MovementReceipt:
		reversal, err = h.service.UndoReceipt(ctx, movementID)
	case stock.MovementConsume:
		reversal, err = h.service.ReturnConsumption(ctx, movementID, req.Note)
	default:
		err = apperror.NewConflict("only receipts and consumptions can be undone").
			WithDetail("type", string(m.Type))
	}
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, reversal)
}

// CheckConservation handles GET /stock/conservation
func (h *StockHandler) CheckConservation(c *gin.Context) {
	drifts, err := h.service.CheckConservation(c.Request.Context())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(drifts))
}
