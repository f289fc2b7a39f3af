package dto

import (
	"jobcost/internal/core/entity"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
)

// CreateJobRequest creates a job with its three cost sets.
type CreateJobRequest struct {
	Name       string `json:"name" binding:"required,max=200"`
	ClientName string `json:"clientName" binding:"max=200"`
}

func (r *CreateJobRequest) ToInput() costing.CreateJobInput {
	return costing.CreateJobInput{Name: r.Name, ClientName: r.ClientName}
}

// CreateCostSetRequest opens a new revision of a job's cost set.
type CreateCostSetRequest struct {
	JobID string `json:"jobId" binding:"required,uuid"`
	Kind  string `json:"kind" binding:"required,oneof=estimate quote actual"`
}

// CostLineRequest adds or recreates a cost line.
type CostLineRequest struct {
	Kind           string            `json:"kind" binding:"required,oneof=time material adjust"`
	Description    string            `json:"description" binding:"max=1000"`
	Quantity       types.Quantity    `json:"quantity"`
	UnitCost       types.Money       `json:"unitCost"`
	UnitRevenue    types.Money       `json:"unitRevenue"`
	AccountingDate string            `json:"accountingDate" binding:"required,datetime=2006-01-02"`
	Meta           entity.Attributes `json:"meta"`
	ExtRefs        entity.Attributes `json:"extRefs"`
}

func (r *CostLineRequest) ToInput() (costing.LineInput, error) {
	date, err := ParseDate("accountingDate", r.AccountingDate)
	if err != nil {
		return costing.LineInput{}, err
	}
	return costing.LineInput{
		Kind:           costing.LineKind(r.Kind),
		Description:    r.Description,
		Quantity:       r.Quantity,
		UnitCost:       r.UnitCost,
		UnitRevenue:    r.UnitRevenue,
		AccountingDate: date,
		Meta:           r.Meta,
		ExtRefs:        r.ExtRefs,
	}, nil
}

// UpdateCostLineRequest changes a line in place. Absent fields are kept.
type UpdateCostLineRequest struct {
	Version        int                `json:"version" binding:"required,min=1"`
	Kind           *string            `json:"kind" binding:"omitempty,oneof=time material adjust"`
	Description    *string            `json:"description" binding:"omitempty,max=1000"`
	Quantity       *types.Quantity    `json:"quantity"`
	UnitCost       *types.Money       `json:"unitCost"`
	UnitRevenue    *types.Money       `json:"unitRevenue"`
	AccountingDate *string            `json:"accountingDate" binding:"omitempty,datetime=2006-01-02"`
	Meta           *entity.Attributes `json:"meta"`
	ExtRefs        *entity.Attributes `json:"extRefs"`
}

func (r *UpdateCostLineRequest) ToInput() (costing.UpdateLineInput, error) {
	in := costing.UpdateLineInput{
		ExpectedVersion: r.Version,
		Description:     r.Description,
		Quantity:        r.Quantity,
		UnitCost:        r.UnitCost,
		UnitRevenue:     r.UnitRevenue,
		Meta:            r.Meta,
		ExtRefs:         r.ExtRefs,
	}
	if r.Kind != nil {
		kind := costing.LineKind(*r.Kind)
		in.Kind = &kind
	}
	if r.AccountingDate != nil {
		date, err := ParseDate("accountingDate", *r.AccountingDate)
		if err != nil {
			return in, err
		}
		in.AccountingDate = &date
	}
	return in, nil
}

// DrawMaterialRequest consumes stock onto the job's actual costs.
type DrawMaterialRequest struct {
	StockID        string         `json:"stockId" binding:"required,uuid"`
	Quantity       types.Quantity `json:"quantity" binding:"gt=0"`
	AccountingDate string         `json:"accountingDate" binding:"required,datetime=2006-01-02"`
	Description    string         `json:"description" binding:"max=1000"`
	UnitRevenue    *types.Money   `json:"unitRevenue"`
	ConsumedBy     string         `json:"consumedBy" binding:"max=200"`
	Comments       string         `json:"comments" binding:"max=2000"`
}

func (r *DrawMaterialRequest) ToInput() (allocation.DrawInput, error) {
	stockID, err := ParseID("stockId", r.StockID)
	if err != nil {
		return allocation.DrawInput{}, err
	}
	date, err := ParseDate("accountingDate", r.AccountingDate)
	if err != nil {
		return allocation.DrawInput{}, err
	}
	return allocation.DrawInput{
		StockID:        stockID,
		Quantity:       r.Quantity,
		AccountingDate: date,
		Description:    r.Description,
		UnitRevenue:    r.UnitRevenue,
		ConsumedBy:     r.ConsumedBy,
		Comments:       r.Comments,
	}, nil
}

// ReturnMaterialRequest returns a drawn line's stock.
type ReturnMaterialRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// MigrateReferenceRequest binds a legacy stock reference to a consume movement.
type MigrateReferenceRequest struct {
	AlreadyDeducted bool `json:"alreadyDeducted"`
}

func (r *MigrateReferenceRequest) ToOptions() allocation.MigrateOptions {
	return allocation.MigrateOptions{AlreadyDeducted: r.AlreadyDeducted}
}
