package handlers

import (
	"github.com/gin-gonic/gin"

	"jobcost/internal/domain/allocation"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/infrastructure/http/v1/dto"
)

// PurchaseOrderHandler serves purchase orders, deliveries and the
// allocations derived from their receipts.
type PurchaseOrderHandler struct {
	*BaseHandler
	orders     *po.Service
	allocation *allocation.Service
}

func NewPurchaseOrderHandler(base *BaseHandler, orders *po.Service, allocationSvc *allocation.Service) *PurchaseOrderHandler {
	return &PurchaseOrderHandler{BaseHandler: base, orders: orders, allocation: allocationSvc}
}

// Save handles PUT /purchase-orders.
// The order is matched by number; lines by their external line id.
func (h *PurchaseOrderHandler) Save(c *gin.Context) {
	var req dto.SaveOrderRequest
	if !h.BindJSON(c, &req) {
		return
	}
	in, err := req.ToInput()
	if err != nil {
		h.Error(c, err)
		return
	}
	res, err := h.orders.SaveOrder(c.Request.Context(), in)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, res)
}

// List handles GET /purchase-orders
func (h *PurchaseOrderHandler) List(c *gin.Context) {
	var req dto.OrderListQuery
	if !h.BindQuery(c, &req) {
		return
	}
	res, err := h.orders.List(c.Request.Context(), req.ToFilter())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewOrderList(res))
}

// Get handles GET /purchase-orders/:id
func (h *PurchaseOrderHandler) Get(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	order, err := h.orders.GetByID(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, order)
}

// Deliver handles POST /purchase-orders/:id/deliveries
func (h *PurchaseOrderHandler) Deliver(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.DeliveryRequest
	if !h.BindJSON(c, &req) {
		return
	}
	res, err := h.orders.ProcessDelivery(c.Request.Context(), orderID, req.ToInput())
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, res)
}

// ReverseReceipt handles POST /purchase-orders/lines/:id/reverse
func (h *PurchaseOrderHandler) ReverseReceipt(c *gin.Context) {
	lineID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	var req dto.ReverseReceiptRequest
	if !h.BindJSON(c, &req) {
		return
	}
	line, err := h.orders.ReverseReceipt(c.Request.Context(), lineID, req.Quantity)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, line)
}

// Allocations handles GET /purchase-orders/:id/allocations
func (h *PurchaseOrderHandler) Allocations(c *gin.Context) {
	orderID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	allocations, err := h.allocation.ListAllocations(c.Request.Context(), orderID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewItems(allocations))
}

// GetAllocation handles GET /allocations/:id
func (h *PurchaseOrderHandler) GetAllocation(c *gin.Context) {
	allocationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	detail, err := h.allocation.GetAllocationDetails(c.Request.Context(), allocationID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, detail)
}

// DeleteAllocation handles DELETE /allocations/:id
func (h *PurchaseOrderHandler) DeleteAllocation(c *gin.Context) {
	allocationID, ok := h.ParseID(c, "id")
	if !ok {
		return
	}
	if err := h.allocation.DeleteAllocation(c.Request.Context(), allocationID); err != nil {
		h.Error(c, err)
		return
	}
	h.NoContent(c)
}
