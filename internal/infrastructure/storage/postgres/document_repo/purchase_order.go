// Package document_repo provides the PostgreSQL purchase order repository.
package document_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/domain"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/infrastructure/storage/postgres"
)

const (
	ordersTable = "purchase_orders"
	linesTable  = "purchase_order_lines"
)

var (
	orderColumns = postgres.ExtractDBColumns[po.PurchaseOrder]()
	lineColumns  = postgres.ExtractDBColumns[po.Line]()
)

// PurchaseOrderRepo implements purchase_order.Repository. The header and the
// table part live in separate tables; lines are written one by one.
type PurchaseOrderRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ po.Repository = (*PurchaseOrderRepo)(nil)

// NewPurchaseOrderRepo creates a purchase order repository.
func NewPurchaseOrderRepo(txm *postgres.TxManager) *PurchaseOrderRepo {
	return &PurchaseOrderRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *PurchaseOrderRepo) exec(ctx context.Context, q squirrel.Sqlizer, what string, key any) (int64, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s statement: %w", what, err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(err, what, key)
	}
	return tag.RowsAffected(), nil
}

func (r *PurchaseOrderRepo) Create(ctx context.Context, order *po.PurchaseOrder) error {
	_, err := r.exec(ctx, r.builder.Insert(ordersTable).SetMap(postgres.StructToMap(order)), "purchase order", order.Number)
	return err
}

// Update expects order.Version to be already incremented by the caller.
func (r *PurchaseOrderRepo) Update(ctx context.Context, order *po.PurchaseOrder) error {
	n, err := r.exec(ctx, r.builder.Update(ordersTable).
		SetMap(postgres.StructToMapExcept(order, "id", "created_at")).
		Where(squirrel.Eq{"id": order.ID, "version": order.Version - 1}), "purchase order", order.Number)
	if err != nil {
		return err
	}
	if n == 0 {
		return apperror.NewConcurrentModification("purchase order", order.ID)
	}
	return nil
}

func (r *PurchaseOrderRepo) getOrder(ctx context.Context, where squirrel.Sqlizer, suffix string, key any) (*po.PurchaseOrder, error) {
	q := r.builder.Select(orderColumns...).From(ordersTable).Where(where)
	if suffix != "" {
		q = q.Suffix(suffix)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var order po.PurchaseOrder
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &order, sql, args...); err != nil {
		return nil, postgres.MapError(err, "purchase order", key)
	}
	return &order, nil
}

func (r *PurchaseOrderRepo) GetByID(ctx context.Context, orderID id.ID) (*po.PurchaseOrder, error) {
	return r.getOrder(ctx, squirrel.Eq{"id": orderID}, "", orderID)
}

func (r *PurchaseOrderRepo) GetByNumber(ctx context.Context, number string) (*po.PurchaseOrder, error) {
	return r.getOrder(ctx, squirrel.Eq{"number": number}, "", number)
}

// GetForUpdate locks the header row; deliveries and syncs of one order are serialized.
func (r *PurchaseOrderRepo) GetForUpdate(ctx context.Context, orderID id.ID) (*po.PurchaseOrder, error) {
	return r.getOrder(ctx, squirrel.Eq{"id": orderID}, "FOR UPDATE", orderID)
}

func (r *PurchaseOrderRepo) selectLines(ctx context.Context, q squirrel.SelectBuilder) ([]po.Line, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	out := []po.Line{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select purchase order lines: %w", err)
	}
	return out, nil
}

func (r *PurchaseOrderRepo) GetLines(ctx context.Context, orderID id.ID) ([]po.Line, error) {
	return r.selectLines(ctx, r.builder.Select(lineColumns...).From(linesTable).
		Where(squirrel.Eq{"order_id": orderID}).
		OrderBy("line_no"))
}

func (r *PurchaseOrderRepo) GetLine(ctx context.Context, lineID id.ID) (*po.Line, error) {
	sql, args, err := r.builder.Select(lineColumns...).From(linesTable).Where(squirrel.Eq{"id": lineID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var line po.Line
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &line, sql, args...); err != nil {
		return nil, postgres.MapError(err, "purchase order line", lineID)
	}
	return &line, nil
}

func (r *PurchaseOrderRepo) CreateLine(ctx context.Context, line *po.Line) error {
	_, err := r.exec(ctx, r.builder.Insert(linesTable).SetMap(postgres.StructToMap(line)), "purchase order line", line.ExternalLineID)
	return err
}

func (r *PurchaseOrderRepo) UpdateLine(ctx context.Context, line *po.Line) error {
	n, err := r.exec(ctx, r.builder.Update(linesTable).
		SetMap(postgres.StructToMapExcept(line, "id", "order_id", "created_at")).
		Where(squirrel.Eq{"id": line.ID}), "purchase order line", line.ExternalLineID)
	if err == nil && n == 0 {
		return apperror.NewNotFound("purchase order line", line.ID)
	}
	return err
}

func (r *PurchaseOrderRepo) DeleteLine(ctx context.Context, lineID id.ID) error {
	n, err := r.exec(ctx, r.builder.Delete(linesTable).Where(squirrel.Eq{"id": lineID}), "purchase order line", lineID)
	if err == nil && n == 0 {
		return apperror.NewNotFound("purchase order line", lineID)
	}
	return err
}

func (r *PurchaseOrderRepo) ListLines(ctx context.Context, filter po.LineFilter) ([]po.Line, error) {
	q := r.builder.Select(lineColumns...).From(linesTable).OrderBy("id")
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.MissingExternalID {
		q = q.Where(squirrel.Eq{"external_line_id": ""})
	}
	return r.selectLines(ctx, q)
}

func (r *PurchaseOrderRepo) List(ctx context.Context, filter po.ListFilter) (domain.ListResult[*po.PurchaseOrder], error) {
	where := squirrel.And{}
	if filter.Supplier != "" {
		where = append(where, squirrel.Expr("lower(supplier) = lower(?)", filter.Supplier))
	}
	if filter.Status != nil {
		where = append(where, squirrel.Eq{"status": string(*filter.Status)})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		where = append(where, squirrel.Or{
			squirrel.ILike{"number": pattern},
			squirrel.ILike{"supplier": pattern},
		})
	}

	var total int64
	countSQL, countArgs, err := r.builder.Select("COUNT(*)").From(ordersTable).Where(where).ToSql()
	if err != nil {
		return domain.ListResult[*po.PurchaseOrder]{}, fmt.Errorf("build count: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return domain.ListResult[*po.PurchaseOrder]{}, fmt.Errorf("count purchase orders: %w", err)
	}

	q := r.builder.Select(orderColumns...).From(ordersTable).Where(where).OrderBy("order_date DESC", "number")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return domain.ListResult[*po.PurchaseOrder]{}, fmt.Errorf("build query: %w", err)
	}
	items := []*po.PurchaseOrder{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &items, sql, args...); err != nil {
		return domain.ListResult[*po.PurchaseOrder]{}, fmt.Errorf("select purchase orders: %w", err)
	}

	return domain.ListResult[*po.PurchaseOrder]{
		Items:      items,
		TotalCount: total,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
	}, nil
}
