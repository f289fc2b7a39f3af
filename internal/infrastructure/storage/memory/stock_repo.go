package memory

import (
	"context"
	"sort"
	"strings"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/registers/stock"
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	s *Store
}

// NewStockRepo creates a stock repository on s.
func NewStockRepo(s *Store) *StockRepo {
	return &StockRepo{s: s}
}

var _ stock.Repository = (*StockRepo)(nil)

func (r *StockRepo) Create(ctx context.Context, st *stock.Stock) error {
	return r.s.write(ctx, func(d *state) error {
		for _, existing := range d.stocks {
			if existing.ItemCode == st.ItemCode {
				return apperror.NewDuplicate("stock", "item_code", st.ItemCode)
			}
		}
		row := *st
		row.Quantity = 0
		d.stocks[row.ID] = row
		st.Quantity = 0
		return nil
	})
}

func (r *StockRepo) UpdateAttrs(ctx context.Context, st *stock.Stock) error {
	return r.s.write(ctx, func(d *state) error {
		cur, ok := d.stocks[st.ID]
		if !ok {
			return apperror.NewNotFound("stock", st.ID)
		}
		row := *st
		row.Quantity = cur.Quantity
		d.stocks[row.ID] = row
		return nil
	})
}

func (r *StockRepo) GetByID(ctx context.Context, stockID id.ID) (*stock.Stock, error) {
	var out *stock.Stock
	err := r.s.read(ctx, func(d *state) error {
		row, ok := d.stocks[stockID]
		if !ok {
			return apperror.NewNotFound("stock", stockID)
		}
		out = &row
		return nil
	})
	return out, err
}

// GetForUpdate needs no row lock: the caller's transaction holds the store lock.
func (r *StockRepo) GetForUpdate(ctx context.Context, stockID id.ID) (*stock.Stock, error) {
	return r.GetByID(ctx, stockID)
}

func (r *StockRepo) GetByItemCode(ctx context.Context, itemCode string) (*stock.Stock, error) {
	var out *stock.Stock
	err := r.s.read(ctx, func(d *state) error {
		for _, row := range d.stocks {
			if row.ItemCode == itemCode {
				row := row
				out = &row
				return nil
			}
		}
		return apperror.NewNotFound("stock", itemCode)
	})
	return out, err
}

func (r *StockRepo) GetByItemCodeForUpdate(ctx context.Context, itemCode string) (*stock.Stock, error) {
	return r.GetByItemCode(ctx, itemCode)
}

func (r *StockRepo) List(ctx context.Context, filter stock.ListFilter) ([]stock.Stock, error) {
	var out []stock.Stock
	err := r.s.read(ctx, func(d *state) error {
		search := strings.ToLower(filter.Search)
		for _, row := range d.stocks {
			if filter.ActiveOnly && !row.IsActive {
				continue
			}
			if len(filter.ItemCodes) > 0 && !containsString(filter.ItemCodes, row.ItemCode) {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(row.ItemCode), search) &&
				!strings.Contains(strings.ToLower(row.Description), search) {
				continue
			}
			out = append(out, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemCode < out[j].ItemCode })
	return page(out, filter.Limit, filter.Offset), nil
}

// ApplyMovement appends m and moves the stock quantity by m.Delta.
// A negative result is rejected the way the database CHECK would.
func (r *StockRepo) ApplyMovement(ctx context.Context, m *stock.Movement) (types.Quantity, error) {
	var qty types.Quantity
	err := r.s.write(ctx, func(d *state) error {
		row, ok := d.stocks[m.StockID]
		if !ok {
			return apperror.NewNotFound("stock", m.StockID)
		}
		if _, dup := d.movements[m.ID]; dup {
			return apperror.NewDuplicate("stock movement", "id", m.ID.String())
		}
		next := row.Quantity + m.Delta
		if next.IsNegative() {
			return apperror.NewInsufficientStock(row.ItemCode, m.Delta.Abs().String(), row.Quantity.String())
		}
		row.Quantity = next
		d.stocks[row.ID] = row
		d.movements[m.ID] = *m
		qty = next
		return nil
	})
	return qty, err
}

func (r *StockRepo) RemoveMovement(ctx context.Context, m *stock.Movement) (types.Quantity, error) {
	var qty types.Quantity
	err := r.s.write(ctx, func(d *state) error {
		if _, ok := d.movements[m.ID]; !ok {
			return apperror.NewNotFound("stock movement", m.ID)
		}
		row, ok := d.stocks[m.StockID]
		if !ok {
			return apperror.NewNotFound("stock", m.StockID)
		}
		next := row.Quantity - m.Delta
		if next.IsNegative() {
			return apperror.NewReceiptInUse(m.ID)
		}
		row.Quantity = next
		d.stocks[row.ID] = row
		delete(d.movements, m.ID)
		qty = next
		return nil
	})
	return qty, err
}

func (r *StockRepo) GetMovement(ctx context.Context, movementID id.ID) (*stock.Movement, error) {
	var out *stock.Movement
	err := r.s.read(ctx, func(d *state) error {
		m, ok := d.movements[movementID]
		if !ok {
			return apperror.NewNotFound("stock movement", movementID)
		}
		out = &m
		return nil
	})
	return out, err
}

func (r *StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	var out []stock.Movement
	err := r.s.read(ctx, func(d *state) error {
		for _, m := range d.movements {
			if matchMovement(m, filter) {
				out = append(out, m)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	stock.SortMovements(out)
	return out, nil
}

func matchMovement(m stock.Movement, f stock.MovementFilter) bool {
	if f.StockID != nil && m.StockID != *f.StockID {
		return false
	}
	if len(f.Types) > 0 {
		found := false
		for _, t := range f.Types {
			if m.Type == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.POLineIDs) > 0 && (m.POLineID == nil || !containsID(f.POLineIDs, *m.POLineID)) {
		return false
	}
	if len(f.IDs) > 0 && !containsID(f.IDs, m.ID) {
		return false
	}
	if f.CostLineID != nil && !id.Equal(m.CostLineID, f.CostLineID) {
		return false
	}
	if f.ReversesID != nil && !id.Equal(m.ReversesID, f.ReversesID) {
		return false
	}
	return true
}

func (r *StockRepo) JournalTotals(ctx context.Context) (map[id.ID]types.Quantity, error) {
	out := make(map[id.ID]types.Quantity)
	err := r.s.read(ctx, func(d *state) error {
		for _, m := range d.movements {
			out[m.StockID] += m.Delta
		}
		return nil
	})
	return out, err
}

func containsString(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
