package dto

import (
	"jobcost/internal/core/types"
	"jobcost/internal/domain"
	po "jobcost/internal/domain/documents/purchase_order"
)

// SaveOrderRequest is the full order sent by the upstream purchasing system.
type SaveOrderRequest struct {
	Number    string             `json:"number" binding:"required,max=64"`
	Supplier  string             `json:"supplier" binding:"required,max=200"`
	OrderDate string             `json:"orderDate" binding:"required,datetime=2006-01-02"`
	Lines     []OrderLineRequest `json:"lines" binding:"dive"`
}

// OrderLineRequest is one ordered line. ExternalLineID is checked by the
// service so that a missing id is reported with its line number.
type OrderLineRequest struct {
	ExternalLineID string         `json:"externalLineId" binding:"max=128"`
	Description    string         `json:"description" binding:"max=1000"`
	ItemCode       string         `json:"itemCode" binding:"max=64"`
	Quantity       types.Quantity `json:"quantity" binding:"gt=0"`
	UnitCost       types.Money    `json:"unitCost"`
	JobID          *string        `json:"jobId" binding:"omitempty,uuid"`
}

func (r *SaveOrderRequest) ToInput() (po.SaveOrderInput, error) {
	date, err := ParseDate("orderDate", r.OrderDate)
	if err != nil {
		return po.SaveOrderInput{}, err
	}
	in := po.SaveOrderInput{Number: r.Number, Supplier: r.Supplier, OrderDate: date}
	for _, l := range r.Lines {
		jobID, err := ParseOptionalID("jobId", l.JobID)
		if err != nil {
			return po.SaveOrderInput{}, err
		}
		in.Lines = append(in.Lines, po.LineInput{
			ExternalLineID: l.ExternalLineID,
			Description:    l.Description,
			ItemCode:       l.ItemCode,
			Quantity:       l.Quantity,
			UnitCost:       l.UnitCost,
			JobID:          jobID,
		})
	}
	return in, nil
}

// DeliveryRequest records goods received against an order.
type DeliveryRequest struct {
	Lines []DeliveryLineRequest `json:"lines" binding:"required,min=1,dive"`
}

// DeliveryLineRequest is the received quantity of one order line.
type DeliveryLineRequest struct {
	ExternalLineID string         `json:"externalLineId" binding:"required,max=128"`
	Quantity       types.Quantity `json:"quantity" binding:"gt=0"`
	UnitCost       *types.Money   `json:"unitCost"`
}

func (r *DeliveryRequest) ToInput() []po.DeliveryLine {
	out := make([]po.DeliveryLine, 0, len(r.Lines))
	for _, l := range r.Lines {
		out = append(out, po.DeliveryLine{ExternalLineID: l.ExternalLineID, Quantity: l.Quantity, UnitCost: l.UnitCost})
	}
	return out
}

// OrderListQuery filters the order list.
type OrderListQuery struct {
	PageRequest
	Search   string `form:"search"`
	Supplier string `form:"supplier"`
	Status   string `form:"status" binding:"omitempty,oneof=open partially_received received"`
}

func (q *OrderListQuery) ToFilter() po.ListFilter {
	f := po.ListFilter{ListFilter: q.ListFilter(q.Search), Supplier: q.Supplier}
	if q.Status != "" {
		status := po.Status(q.Status)
		f.Status = &status
	}
	return f
}

// NewOrderList converts a list result.
func NewOrderList(res domain.ListResult[*po.PurchaseOrder]) ListResponse {
	items := res.Items
	if items == nil {
		items = []*po.PurchaseOrder{}
	}
	return ListResponse{Items: items, TotalCount: res.TotalCount, Limit: res.Limit, Offset: res.Offset}
}

// ReverseReceiptRequest takes back part of a line's received quantity.
type ReverseReceiptRequest struct {
	Quantity types.Quantity `json:"quantity" binding:"gt=0"`
}
