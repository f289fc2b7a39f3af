package memory

import (
	"context"
	"sort"
	"strings"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/domain"
	po "jobcost/internal/domain/documents/purchase_order"
)

// PurchaseOrderRepo implements purchase_order.Repository.
type PurchaseOrderRepo struct {
	s *Store
}

// NewPurchaseOrderRepo creates a purchase order repository on s.
func NewPurchaseOrderRepo(s *Store) *PurchaseOrderRepo {
	return &PurchaseOrderRepo{s: s}
}

var _ po.Repository = (*PurchaseOrderRepo)(nil)

func header(p po.PurchaseOrder) *po.PurchaseOrder {
	p.Lines = nil
	return &p
}

func (r *PurchaseOrderRepo) Create(ctx context.Context, order *po.PurchaseOrder) error {
	return r.s.write(ctx, func(d *state) error {
		for _, o := range d.orders {
			if o.Number == order.Number {
				return apperror.NewDuplicate("purchase order", "number", order.Number)
			}
		}
		d.orders[order.ID] = *header(*order)
		return nil
	})
}

func (r *PurchaseOrderRepo) Update(ctx context.Context, order *po.PurchaseOrder) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.orders[order.ID]; !ok {
			return apperror.NewNotFound("purchase order", order.ID)
		}
		d.orders[order.ID] = *header(*order)
		return nil
	})
}

func (r *PurchaseOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*po.PurchaseOrder, error) {
	var out *po.PurchaseOrder
	err := r.s.read(ctx, func(d *state) error {
		o, ok := d.orders[orderID]
		if !ok {
			return apperror.NewNotFound("purchase order", orderID)
		}
		out = header(o)
		return nil
	})
	return out, err
}

func (r *PurchaseOrderRepo) GetByNumber(ctx context.Context, number string) (*po.PurchaseOrder, error) {
	var out *po.PurchaseOrder
	err := r.s.read(ctx, func(d *state) error {
		for _, o := range d.orders {
			if o.Number == number {
				out = header(o)
				return nil
			}
		}
		return apperror.NewNotFound("purchase order", number)
	})
	return out, err
}

func (r *PurchaseOrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*po.PurchaseOrder, error) {
	return r.GetByID(ctx, orderID)
}

func (r *PurchaseOrderRepo) GetLines(ctx context.Context, orderID id.ID) ([]po.Line, error) {
	out := []po.Line{}
	err := r.s.read(ctx, func(d *state) error {
		for _, l := range d.poLines {
			if l.OrderID == orderID {
				out = append(out, l)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].LineNo < out[j].LineNo })
	return out, err
}

func (r *PurchaseOrderRepo) GetLine(ctx context.Context, lineID id.ID) (*po.Line, error) {
	var out *po.Line
	err := r.s.read(ctx, func(d *state) error {
		l, ok := d.poLines[lineID]
		if !ok {
			return apperror.NewNotFound("purchase order line", lineID)
		}
		out = &l
		return nil
	})
	return out, err
}

func (r *PurchaseOrderRepo) CreateLine(ctx context.Context, line *po.Line) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.orders[line.OrderID]; !ok {
			return apperror.NewNotFound("purchase order", line.OrderID)
		}
		for _, l := range d.poLines {
			if l.OrderID == line.OrderID && line.ExternalLineID != "" && l.ExternalLineID == line.ExternalLineID {
				return apperror.NewDuplicate("purchase order line", "external_line_id", line.ExternalLineID)
			}
		}
		d.poLines[line.ID] = *line
		return nil
	})
}

func (r *PurchaseOrderRepo) UpdateLine(ctx context.Context, line *po.Line) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.poLines[line.ID]; !ok {
			return apperror.NewNotFound("purchase order line", line.ID)
		}
		d.poLines[line.ID] = *line
		return nil
	})
}

func (r *PurchaseOrderRepo) DeleteLine(ctx context.Context, lineID id.ID) error {
	return r.s.write(ctx, func(d *state) error {
		if _, ok := d.poLines[lineID]; !ok {
			return apperror.NewNotFound("purchase order line", lineID)
		}
		delete(d.poLines, lineID)
		return nil
	})
}

func (r *PurchaseOrderRepo) ListLines(ctx context.Context, filter po.LineFilter) ([]po.Line, error) {
	out := []po.Line{}
	err := r.s.read(ctx, func(d *state) error {
		for _, l := range d.poLines {
			if len(filter.IDs) > 0 && !containsID(filter.IDs, l.ID) {
				continue
			}
			if filter.MissingExternalID && l.ExternalLineID != "" {
				continue
			}
			out = append(out, l)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i].ID, out[j].ID) })
	return out, err
}

func (r *PurchaseOrderRepo) List(ctx context.Context, filter po.ListFilter) (domain.ListResult[*po.PurchaseOrder], error) {
	var items []*po.PurchaseOrder
	err := r.s.read(ctx, func(d *state) error {
		search := strings.ToLower(filter.Search)
		for _, o := range d.orders {
			if filter.Supplier != "" && !strings.EqualFold(o.Supplier, filter.Supplier) {
				continue
			}
			if filter.Status != nil && o.Status != *filter.Status {
				continue
			}
			if search != "" &&
				!strings.Contains(strings.ToLower(o.Number), search) &&
				!strings.Contains(strings.ToLower(o.Supplier), search) {
				continue
			}
			items = append(items, header(o))
		}
		return nil
	})
	if err != nil {
		return domain.ListResult[*po.PurchaseOrder]{}, err
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].OrderDate.Equal(items[j].OrderDate) {
			return items[i].OrderDate.After(items[j].OrderDate)
		}
		return items[i].Number < items[j].Number
	})

	return domain.ListResult[*po.PurchaseOrder]{
		Items:      page(items, filter.Limit, filter.Offset),
		TotalCount: int64(len(items)),
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}
