package dto

import (
	"strings"

	"jobcost/internal/core/types"
	"jobcost/internal/domain/registers/stock"
)

// UpsertStockRequest creates a stock row or updates its attributes.
type UpsertStockRequest struct {
	ItemCode    string       `json:"itemCode" binding:"required,max=64"`
	Description *string      `json:"description" binding:"omitempty,max=500"`
	UnitCost    *types.Money `json:"unitCost"`
	UnitRevenue *types.Money `json:"unitRevenue"`
}

func (r *UpsertStockRequest) ToAttrs() stock.StockAttrs {
	return stock.StockAttrs{Description: r.Description, UnitCost: r.UnitCost, UnitRevenue: r.UnitRevenue}
}

// StockListQuery filters the stock list.
type StockListQuery struct {
	PageRequest
	Search     string `form:"search"`
	ItemCodes  string `form:"itemCodes"`
	ActiveOnly bool   `form:"activeOnly"`
}

func (q *StockListQuery) ToFilter() stock.ListFilter {
	page := q.ListFilter(q.Search)
	f := stock.ListFilter{
		ActiveOnly: q.ActiveOnly,
		Search:     page.Search,
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	for _, code := range strings.Split(q.ItemCodes, ",") {
		if code = strings.TrimSpace(code); code != "" {
			f.ItemCodes = append(f.ItemCodes, code)
		}
	}
	return f
}

// MovementListQuery filters a stock row's journal.
type MovementListQuery struct {
	Types string `form:"types"`
}

// Kinds returns the requested movement types, rejecting unknown ones.
func (q *MovementListQuery) Kinds() ([]stock.MovementType, bool) {
	var out []stock.MovementType
	for _, t := range strings.Split(q.Types, ",") {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		mt := stock.MovementType(t)
		if !mt.Valid() {
			return nil, false
		}
		out = append(out, mt)
	}
	return out, true
}

// ConsumeRequest draws stock down for job work.
type ConsumeRequest struct {
	Quantity   types.Quantity `json:"quantity" binding:"gt=0"`
	JobID      string         `json:"jobId" binding:"required,uuid"`
	CostLineID *string        `json:"costLineId" binding:"omitempty,uuid"`
	Note       string         `json:"note" binding:"max=1000"`
}

func (r *ConsumeRequest) ToRef() (stock.ConsumeRef, error) {
	jobID, err := ParseID("jobId", r.JobID)
	if err != nil {
		return stock.ConsumeRef{}, err
	}
	lineID, err := ParseOptionalID("costLineId", r.CostLineID)
	if err != nil {
		return stock.ConsumeRef{}, err
	}
	return stock.ConsumeRef{JobID: jobID, CostLineID: lineID, Note: r.Note}, nil
}

// AdjustRequest corrects a stock quantity by a signed delta.
type AdjustRequest struct {
	Delta  types.Quantity `json:"delta" binding:"required"`
	Reason string         `json:"reason" binding:"required,max=500"`
}

// SplitRequest moves part of a stock row onto another item code.
type SplitRequest struct {
	Quantity    types.Quantity `json:"quantity" binding:"gt=0"`
	ItemCode    string         `json:"itemCode" binding:"required,max=64"`
	Description string         `json:"description" binding:"max=500"`
}

// MergeRequest moves quantity between two existing rows.
type MergeRequest struct {
	SourceID string         `json:"sourceId" binding:"required,uuid"`
	TargetID string         `json:"targetId" binding:"required,uuid"`
	Quantity types.Quantity `json:"quantity" binding:"gt=0"`
	Note     string         `json:"note" binding:"max=1000"`
}

func (r *MergeRequest) ToInput() (stock.MergeInput, error) {
	source, err := ParseID("sourceId", r.SourceID)
	if err != nil {
		return stock.MergeInput{}, err
	}
	target, err := ParseID("targetId", r.TargetID)
	if err != nil {
		return stock.MergeInput{}, err
	}
	return stock.MergeInput{SourceID: source, TargetID: target, Quantity: r.Quantity, Note: r.Note}, nil
}

// UndoMovementRequest reverses a receipt or returns a consumption.
type UndoMovementRequest struct {
	Note string `json:"note" binding:"max=1000"`
}

// StockHistoryResponse is a stock row with its journal.
type StockHistoryResponse struct {
	Stock     *stock.Stock     `json:"stock"`
	Movements []stock.Movement `json:"movements"`
}
