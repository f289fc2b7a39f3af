// Package stock is the stock ledger: one Stock row per item code and an
// append-only journal of movements whose deltas always sum to the row's quantity.
package stock

import (
	"context"
	"sort"
	"strings"
	"time"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

// MovementType classifies a ledger entry.
type MovementType string

const (
	MovementReceipt MovementType = "receipt"
	MovementConsume MovementType = "consume"
	MovementAdjust  MovementType = "adjust"
	MovementSplit   MovementType = "split"
	MovementMerge   MovementType = "merge"
)

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementReceipt, MovementConsume, MovementAdjust, MovementSplit, MovementMerge:
		return true
	}
	return false
}

// Stock is the current-state cache of one physical item.
// Quantity is written only by the repository while applying a Movement.
type Stock struct {
	entity.BaseEntity

	ItemCode    string         `db:"item_code" json:"itemCode"`
	Description string         `db:"description" json:"description"`
	Quantity    types.Quantity `db:"quantity" json:"quantity"`
	UnitCost    types.Money    `db:"unit_cost" json:"unitCost"`
	UnitRevenue types.Money    `db:"unit_revenue" json:"unitRevenue"`

	// SourcePOLineID is the purchase order line of the first receipt.
	SourcePOLineID *id.ID `db:"source_po_line_id" json:"sourcePoLineId,omitempty"`

	// SourceParentStockID is set for rows split off a larger stock record.
	SourceParentStockID *id.ID `db:"source_parent_stock_id" json:"sourceParentStockId,omitempty"`

	IsActive bool `db:"is_active" json:"isActive"`
}

// NormalizeItemCode trims and upper-cases an item code; stock identity is keyed on it.
func NormalizeItemCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks Stock invariants that need no storage.
func (s *Stock) Validate(_ context.Context) error {
	if s.ItemCode == "" {
		return apperror.NewValidation("item code is required").WithDetail("field", "itemCode")
	}
	if s.Quantity.IsNegative() {
		return apperror.NewValidation("quantity cannot be negative").WithDetail("field", "quantity")
	}
	if s.UnitCost.IsNegative() || s.UnitRevenue.IsNegative() {
		return apperror.NewValidation("unit cost and revenue cannot be negative")
	}
	if s.SourceParentStockID != nil && *s.SourceParentStockID == s.ID {
		return apperror.NewBusinessRule(apperror.CodeStockCycle, "stock cannot be its own parent")
	}
	return nil
}

// Movement is an immutable ledger entry.
type Movement struct {
	ID         id.ID          `db:"id" json:"id"`
	StockID    id.ID          `db:"stock_id" json:"stockId"`
	Type       MovementType   `db:"movement_type" json:"type"`
	Delta      types.Quantity `db:"delta" json:"delta"`
	UnitCost   types.Money    `db:"unit_cost" json:"unitCost"`
	OccurredAt time.Time      `db:"occurred_at" json:"occurredAt"`

	// POLineID is set on receipts.
	POLineID *id.ID `db:"po_line_id" json:"poLineId,omitempty"`

	// JobID and CostLineID are set on consumption.
	JobID      *id.ID `db:"job_id" json:"jobId,omitempty"`
	CostLineID *id.ID `db:"cost_line_id" json:"costLineId,omitempty"`

	// CounterpartStockID is the other side of a split or merge.
	CounterpartStockID *id.ID `db:"counterpart_stock_id" json:"counterpartStockId,omitempty"`

	// ReversesID is set on the adjustment that compensates a consumption.
	ReversesID *id.ID `db:"reverses_id" json:"reversesId,omitempty"`

	Note      string `db:"note" json:"note,omitempty"`
	CreatedBy string `db:"created_by" json:"createdBy,omitempty"`
}

// Before orders movements by timestamp, then id.
func (m Movement) Before(o Movement) bool {
	if !m.OccurredAt.Equal(o.OccurredAt) {
		return m.OccurredAt.Before(o.OccurredAt)
	}
	return id.Less(m.ID, o.ID)
}

// SortMovements sorts in ledger order.
func SortMovements(ms []Movement) {
	sort.SliceStable(ms, func(i, j int) bool { return ms[i].Before(ms[j]) })
}

// StockAttrs are the non-quantity fields accepted by UpsertStock.
// Nil fields leave the stored value untouched.
type StockAttrs struct {
	Description *string
	UnitCost    *types.Money
	UnitRevenue *types.Money
}

// ConsumeRef names the job work that draws stock down.
type ConsumeRef struct {
	JobID      id.ID
	CostLineID *id.ID
	Note       string
}

// Drift is a stock whose quantity disagrees with its journal.
type Drift struct {
	StockID  id.ID          `json:"stockId"`
	ItemCode string         `json:"itemCode"`
	Quantity types.Quantity `json:"quantity"`
	Journal  types.Quantity `json:"journal"`
}
