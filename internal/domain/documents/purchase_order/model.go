// Package purchase_order provides purchase orders, the synchronization of
// their lines from the upstream system and delivery processing.
package purchase_order

import (
	"context"
	"time"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

// Status is derived from the received quantities of the lines.
type Status string

const (
	StatusOpen              Status = "open"
	StatusPartiallyReceived Status = "partially_received"
	StatusReceived          Status = "received"
)

// PurchaseOrder represents an order placed with a supplier.
type PurchaseOrder struct {
	entity.BaseEntity

	Number    string    `db:"number" json:"number"`
	Supplier  string    `db:"supplier" json:"supplier"`
	OrderDate time.Time `db:"order_date" json:"orderDate"`
	Status    Status    `db:"status" json:"status"`

	// Table part
	Lines []Line `db:"-" json:"lines"`
}

// Line is one ordered item.
//
// ExternalLineID is assigned by the upstream system and is the only identity
// used when the order is synchronized; description and item code may change
// under the same ExternalLineID.
type Line struct {
	ID      id.ID `db:"id" json:"id"`
	OrderID id.ID `db:"order_id" json:"orderId"`
	LineNo  int   `db:"line_no" json:"lineNo"`

	ExternalLineID string `db:"external_line_id" json:"externalLineId"`
	Description    string `db:"description" json:"description"`
	ItemCode       string `db:"item_code" json:"itemCode"`

	Quantity         types.Quantity `db:"quantity" json:"quantity"`
	UnitCost         types.Money    `db:"unit_cost" json:"unitCost"`
	ReceivedQuantity types.Quantity `db:"received_quantity" json:"receivedQuantity"`

	// JobID is set when the material is bought for a specific job.
	JobID *id.ID `db:"job_id" json:"jobId,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Outstanding is the quantity still to be delivered.
func (l *Line) Outstanding() types.Quantity {
	if l.ReceivedQuantity >= l.Quantity {
		return 0
	}
	return l.Quantity - l.ReceivedQuantity
}

// LineByExternalID returns the line with the given upstream id.
func (p *PurchaseOrder) LineByExternalID(externalID string) (*Line, bool) {
	for i := range p.Lines {
		if p.Lines[i].ExternalLineID == externalID {
			return &p.Lines[i], true
		}
	}
	return nil, false
}

// RecalculateStatus derives Status from the line quantities.
func (p *PurchaseOrder) RecalculateStatus() {
	var received, complete int
	for _, l := range p.Lines {
		if l.ReceivedQuantity.IsPositive() {
			received++
		}
		if l.ReceivedQuantity >= l.Quantity {
			complete++
		}
	}
	switch {
	case len(p.Lines) > 0 && complete == len(p.Lines):
		p.Status = StatusReceived
	case received > 0:
		p.Status = StatusPartiallyReceived
	default:
		p.Status = StatusOpen
	}
}

// Validate implements entity.Validatable.
func (p *PurchaseOrder) Validate(_ context.Context) error {
	if p.Number == "" {
		return apperror.NewValidation("order number is required").
			WithDetail("field", "number")
	}
	if p.Supplier == "" {
		return apperror.NewValidation("supplier is required").
			WithDetail("field", "supplier")
	}

	seen := make(map[string]bool, len(p.Lines))
	for i, line := range p.Lines {
		if line.ExternalLineID == "" {
			return apperror.NewMissingExternalID(i + 1)
		}
		if seen[line.ExternalLineID] {
			return apperror.NewValidation("duplicate external line id").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1).
				WithDetail("externalLineId", line.ExternalLineID)
		}
		seen[line.ExternalLineID] = true

		if line.ItemCode == "" {
			return apperror.NewValidation("item code is required").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if !line.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.UnitCost.IsNegative() {
			return apperror.NewValidation("unit cost cannot be negative").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1)
		}
		if line.Quantity < line.ReceivedQuantity {
			return apperror.NewValidation("quantity cannot drop below the received quantity").
				WithDetail("field", "lines").
				WithDetail("lineNo", i+1).
				WithDetail("received", line.ReceivedQuantity.String())
		}
	}
	return nil
}

// ChangeType classifies a structural change found while synchronizing lines.
type ChangeType string

const (
	ChangeAdded   ChangeType = "added"
	ChangeRemoved ChangeType = "removed"
)

// StructuralChange is a line that appeared or disappeared. Edits under an
// unchanged external line id are not structural.
type StructuralChange struct {
	Type           ChangeType `json:"type"`
	ExternalLineID string     `json:"externalLineId"`
	LineID         id.ID      `json:"lineId"`
	Description    string     `json:"description"`
	ItemCode       string     `json:"itemCode"`

	// ReplacesExternalLineID is set on an added line that looks like a removed
	// one recreated upstream under a new id (same item code and description).
	ReplacesExternalLineID string `json:"replacesExternalLineId,omitempty"`
}

// SyncReport is the outcome of synchronizing an order's lines.
type SyncReport struct {
	Created           bool               `json:"created"`
	Updated           []string           `json:"updated"`
	StructuralChanges []StructuralChange `json:"structuralChanges"`
}

// HasStructuralChanges reports whether lines were added or removed.
func (r *SyncReport) HasStructuralChanges() bool {
	return len(r.StructuralChanges) > 0
}
