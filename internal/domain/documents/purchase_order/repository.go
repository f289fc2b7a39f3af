package purchase_order

import (
	"context"

	"jobcost/internal/core/id"
	"jobcost/internal/domain"
)

// Repository defines operations for purchase orders.
type Repository interface {
	// Header operations
	Create(ctx context.Context, po *PurchaseOrder) error
	Update(ctx context.Context, po *PurchaseOrder) error
	GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error)
	GetByNumber(ctx context.Context, number string) (*PurchaseOrder, error)

	// Locking
	GetForUpdate(ctx context.Context, orderID id.ID) (*PurchaseOrder, error)

	// Line operations. Lines are written one by one so their ids survive a sync.
	GetLines(ctx context.Context, orderID id.ID) ([]Line, error)
	GetLine(ctx context.Context, lineID id.ID) (*Line, error)
	CreateLine(ctx context.Context, line *Line) error
	UpdateLine(ctx context.Context, line *Line) error
	DeleteLine(ctx context.Context, lineID id.ID) error
	ListLines(ctx context.Context, filter LineFilter) ([]Line, error)

	// List operations
	List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error)
}

// ListFilter for filtering purchase orders.
type ListFilter struct {
	domain.ListFilter

	Supplier string
	Status   *Status
}

// LineFilter for line queries across orders. Empty fields do not filter.
type LineFilter struct {
	IDs []id.ID
	// MissingExternalID selects legacy lines imported without an upstream id.
	MissingExternalID bool
}
