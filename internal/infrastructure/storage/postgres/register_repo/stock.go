// Package register_repo provides the PostgreSQL stock ledger repository.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/postgres"
)

const (
	stockTable     = "stock"
	movementsTable = "stock_movements"
)

var (
	stockColumns    = postgres.ExtractDBColumns[stock.Stock]()
	movementColumns = postgres.ExtractDBColumns[stock.Movement]()
)

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a stock ledger repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *StockRepo) Create(ctx context.Context, st *stock.Stock) error {
	st.Quantity = 0
	sql, args, err := r.builder.Insert(stockTable).SetMap(postgres.StructToMap(st)).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError(err, "stock", st.ItemCode)
	}
	return nil
}

// UpdateAttrs never touches the quantity column.
func (r *StockRepo) UpdateAttrs(ctx context.Context, st *stock.Stock) error {
	sql, args, err := r.builder.Update(stockTable).
		SetMap(postgres.StructToMapExcept(st, "id", "quantity", "created_at")).
		Where(squirrel.Eq{"id": st.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError(err, "stock", st.ItemCode)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("stock", st.ID)
	}
	return nil
}

func (r *StockRepo) getOne(ctx context.Context, where squirrel.Sqlizer, forUpdate bool, key any) (*stock.Stock, error) {
	q := r.builder.Select(stockColumns...).From(stockTable).Where(where).Limit(1)
	if forUpdate {
		q = q.Suffix("FOR UPDATE")
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var st stock.Stock
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &st, sql, args...); err != nil {
		return nil, postgres.MapError(err, "stock", key)
	}
	return &st, nil
}

func (r *StockRepo) GetByID(ctx context.Context, stockID id.ID) (*stock.Stock, error) {
	return r.getOne(ctx, squirrel.Eq{"id": stockID}, false, stockID)
}

// GetForUpdate locks the row until the transaction ends.
func (r *StockRepo) GetForUpdate(ctx context.Context, stockID id.ID) (*stock.Stock, error) {
	return r.getOne(ctx, squirrel.Eq{"id": stockID}, true, stockID)
}

func (r *StockRepo) GetByItemCode(ctx context.Context, itemCode string) (*stock.Stock, error) {
	return r.getOne(ctx, squirrel.Eq{"item_code": itemCode}, false, itemCode)
}

func (r *StockRepo) GetByItemCodeForUpdate(ctx context.Context, itemCode string) (*stock.Stock, error) {
	return r.getOne(ctx, squirrel.Eq{"item_code": itemCode}, true, itemCode)
}

func (r *StockRepo) List(ctx context.Context, filter stock.ListFilter) ([]stock.Stock, error) {
	q := r.builder.Select(stockColumns...).From(stockTable).OrderBy("item_code")
	if filter.ActiveOnly {
		q = q.Where(squirrel.Eq{"is_active": true})
	}
	if len(filter.ItemCodes) > 0 {
		q = q.Where(squirrel.Eq{"item_code": filter.ItemCodes})
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where(squirrel.Or{
			squirrel.ILike{"item_code": pattern},
			squirrel.ILike{"description": pattern},
		})
	}
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	out := []stock.Stock{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select stock: %w", err)
	}
	return out, nil
}

// moveQuantity adds delta to the row unless the result would be negative.
// ok is false when the guard rejected the change.
func (r *StockRepo) moveQuantity(ctx context.Context, stockID id.ID, delta types.Quantity) (qty types.Quantity, ok bool, err error) {
	sql, args, err := r.builder.Update(stockTable).
		Set("quantity", squirrel.Expr("quantity + ?", delta)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": stockID}).
		Where(squirrel.Expr("quantity + ? >= 0", delta)).
		Suffix("RETURNING quantity").
		ToSql()
	if err != nil {
		return 0, false, fmt.Errorf("build update: %w", err)
	}
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&qty); err != nil {
		if pgxscan.NotFound(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("update quantity: %w", err)
	}
	return qty, true, nil
}

// ApplyMovement appends m and moves the stock quantity by m.Delta.
func (r *StockRepo) ApplyMovement(ctx context.Context, m *stock.Movement) (types.Quantity, error) {
	qty, ok, err := r.moveQuantity(ctx, m.StockID, m.Delta)
	if err != nil {
		return 0, err
	}
	if !ok {
		st, err := r.GetByID(ctx, m.StockID)
		if err != nil {
			return 0, err
		}
		return 0, apperror.NewInsufficientStock(st.ItemCode, m.Delta.Abs().String(), st.Quantity.String())
	}

	sql, args, err := r.builder.Insert(movementsTable).SetMap(postgres.StructToMap(m)).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return 0, postgres.MapError(err, "stock movement", m.ID)
	}
	return qty, nil
}

// RemoveMovement deletes m and reverts its delta.
func (r *StockRepo) RemoveMovement(ctx context.Context, m *stock.Movement) (types.Quantity, error) {
	sql, args, err := r.builder.Delete(movementsTable).Where(squirrel.Eq{"id": m.ID}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete: %w", err)
	}
	tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, postgres.MapError(err, "stock movement", m.ID)
	}
	if tag.RowsAffected() == 0 {
		return 0, apperror.NewNotFound("stock movement", m.ID)
	}

	qty, ok, err := r.moveQuantity(ctx, m.StockID, m.Delta.Neg())
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, apperror.NewReceiptInUse(m.ID)
	}
	return qty, nil
}

func (r *StockRepo) GetMovement(ctx context.Context, movementID id.ID) (*stock.Movement, error) {
	sql, args, err := r.builder.Select(movementColumns...).From(movementsTable).
		Where(squirrel.Eq{"id": movementID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var m stock.Movement
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &m, sql, args...); err != nil {
		return nil, postgres.MapError(err, "stock movement", movementID)
	}
	return &m, nil
}

// ListMovements returns movements in ledger order.
func (r *StockRepo) ListMovements(ctx context.Context, filter stock.MovementFilter) ([]stock.Movement, error) {
	q := r.builder.Select(movementColumns...).From(movementsTable).OrderBy("occurred_at", "id")
	if filter.StockID != nil {
		q = q.Where(squirrel.Eq{"stock_id": *filter.StockID})
	}
	if len(filter.Types) > 0 {
		kinds := make([]string, 0, len(filter.Types))
		for _, t := range filter.Types {
			kinds = append(kinds, string(t))
		}
		q = q.Where(squirrel.Eq{"movement_type": kinds})
	}
	if len(filter.POLineIDs) > 0 {
		q = q.Where(squirrel.Eq{"po_line_id": filter.POLineIDs})
	}
	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
	}
	if filter.CostLineID != nil {
		q = q.Where(squirrel.Eq{"cost_line_id": *filter.CostLineID})
	}
	if filter.ReversesID != nil {
		q = q.Where(squirrel.Eq{"reverses_id": *filter.ReversesID})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	out := []stock.Movement{}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return out, nil
}

type journalTotal struct {
	StockID id.ID          `db:"stock_id"`
	Total   types.Quantity `db:"total"`
}

func (r *StockRepo) JournalTotals(ctx context.Context) (map[id.ID]types.Quantity, error) {
	sql, args, err := r.builder.Select("stock_id", "COALESCE(SUM(delta), 0)::bigint AS total").
		From(movementsTable).GroupBy("stock_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	var rows []journalTotal
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("select journal totals: %w", err)
	}
	out := make(map[id.ID]types.Quantity, len(rows))
	for _, row := range rows {
		out[row.StockID] = row.Total
	}
	return out, nil
}
