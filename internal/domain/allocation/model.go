// Package allocation binds purchase order lines to the receipt movements they
// produced and those movements to the cost lines that consumed the stock.
package allocation

import (
	"time"

	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/costing"
	"jobcost/internal/domain/registers/stock"
)

// Allocation is one receipt of a purchase order line. Its id is the receipt
// movement id.
type Allocation struct {
	ID             id.ID          `json:"id"`
	OrderID        id.ID          `json:"orderId"`
	POLineID       id.ID          `json:"poLineId"`
	ExternalLineID string         `json:"externalLineId"`
	StockID        id.ID          `json:"stockId"`
	ItemCode       string         `json:"itemCode"`
	Quantity       types.Quantity `json:"quantity"`
	UnitCost       types.Money    `json:"unitCost"`
	ReceivedAt     time.Time      `json:"receivedAt"`

	// CanDelete is false once any consume movement on the stock follows the receipt.
	CanDelete bool `json:"canDelete"`
}

// Detail is an allocation with what blocks its deletion.
type Detail struct {
	Allocation

	// Consumptions are the consume movements after the receipt, in ledger order.
	Consumptions []stock.Movement `json:"consumptions"`
	// CostLineIDs are the cost lines bound to those consumptions.
	CostLineIDs []id.ID `json:"costLineIds"`
}

// DrawInput draws stock onto a job's actual costs.
type DrawInput struct {
	JobID          id.ID
	StockID        id.ID
	Quantity       types.Quantity
	AccountingDate time.Time
	Description    string
	// UnitRevenue overrides the stock's default sell price.
	UnitRevenue *types.Money
	ConsumedBy  string
	Comments    string
}

// DrawResult is the consume movement and the material line bound to it.
type DrawResult struct {
	Movement *stock.Movement   `json:"movement"`
	Line     *costing.CostLine `json:"line"`
}

// MigrationResult is the consume movement materialized for a legacy stock
// reference and the rewritten line.
type MigrationResult struct {
	Movement *stock.Movement   `json:"movement"`
	Offset   *stock.Movement   `json:"offset,omitempty"`
	Line     *costing.CostLine `json:"line"`
}

// MigrateOptions tunes MigrateLegacyReference.
type MigrateOptions struct {
	// AlreadyDeducted marks stock the previous system already reduced for the
	// line. An offsetting adjustment is booked before the consume so the
	// quantity on hand does not drop twice.
	AlreadyDeducted bool
}
