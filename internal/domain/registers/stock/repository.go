package stock

import (
	"context"

	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

// Repository persists stock rows and their journal.
//
// There is no method that writes Stock.Quantity directly: quantity changes
// only through ApplyMovement and RemoveMovement, which touch the journal and
// the row in the caller's transaction.
type Repository interface {
	// Stock rows

	// Create inserts a new stock row with zero quantity.
	Create(ctx context.Context, s *Stock) error

	// UpdateAttrs persists every field except Quantity.
	UpdateAttrs(ctx context.Context, s *Stock) error

	GetByID(ctx context.Context, stockID id.ID) (*Stock, error)

	// GetForUpdate returns the row locked until the transaction ends.
	// Movements against one stock id are serialized through this lock.
	GetForUpdate(ctx context.Context, stockID id.ID) (*Stock, error)

	GetByItemCode(ctx context.Context, itemCode string) (*Stock, error)
	GetByItemCodeForUpdate(ctx context.Context, itemCode string) (*Stock, error)

	List(ctx context.Context, filter ListFilter) ([]Stock, error)

	// Journal

	// ApplyMovement appends m and adds m.Delta to the stock quantity.
	// Returns the new quantity.
	ApplyMovement(ctx context.Context, m *Movement) (types.Quantity, error)

	// RemoveMovement deletes m and subtracts m.Delta from the stock quantity.
	// Only the guarded receipt undo calls it.
	RemoveMovement(ctx context.Context, m *Movement) (types.Quantity, error)

	GetMovement(ctx context.Context, movementID id.ID) (*Movement, error)

	// ListMovements returns movements in ledger order.
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)

	// JournalTotals sums deltas per stock id.
	JournalTotals(ctx context.Context) (map[id.ID]types.Quantity, error)
}

// ListFilter for stock row queries.
type ListFilter struct {
	ItemCodes  []string
	ActiveOnly bool
	Search     string
	Limit      int
	Offset     int
}

// MovementFilter for journal queries. Empty fields do not filter.
type MovementFilter struct {
	StockID    *id.ID
	Types      []MovementType
	POLineIDs  []id.ID
	IDs        []id.ID
	CostLineID *id.ID
	ReversesID *id.ID
}
