package allocation_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/memory"
)

type fixture struct {
	costingRepo *memory.CostingRepo
	stock       *stock.Service
	orders      *po.Service
	costing     *costing.Service
	alloc       *allocation.Service

	job   *costing.Job
	order *po.PurchaseOrder
}

var day = time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	store := memory.NewStore()
	rec := memory.NewAuditRecorder(store)
	numbers := memory.NewNumerator(store)

	var tick atomic.Int64
	clock := func() time.Time { return day.Add(time.Duration(tick.Add(1)) * time.Minute) }

	f := &fixture{costingRepo: memory.NewCostingRepo(store)}
	f.stock = stock.NewService(memory.NewStockRepo(store), store).WithClock(clock)
	f.orders = po.NewService(memory.NewPurchaseOrderRepo(store), f.stock, numbers, rec, store)
	f.costing = costing.NewService(f.costingRepo, f.stock, numbers, rec, store)
	f.alloc = allocation.NewService(f.stock, f.orders, f.costing, store)

	var err error
	f.job, err = f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)

	saved, err := f.orders.SaveOrder(ctx, po.SaveOrderInput{
		Number:    "PO-7781",
		Supplier:  "Allied Metals",
		OrderDate: day,
		Lines: []po.LineInput{
			{ExternalLineID: "L1", Description: "Stainless sheet 304", ItemCode: "SS-304-A", Quantity: types.NewQuantity(10), UnitCost: types.MustMoney("12.50")},
			{ExternalLineID: "L2", Description: "Stainless sheet 304", ItemCode: "SS-304-A", Quantity: types.NewQuantity(10), UnitCost: types.MustMoney("12.50")},
		},
	})
	require.NoError(t, err)
	f.order = saved.Order
	return f
}

func (f *fixture) deliver(t *testing.T, ext string, qty int64) po.Receipt {
	t.Helper()
	res, err := f.orders.ProcessDelivery(context.Background(), f.order.ID, []po.DeliveryLine{
		{ExternalLineID: ext, Quantity: types.NewQuantity(qty)},
	})
	require.NoError(t, err)
	require.Len(t, res.Receipts, 1)
	return res.Receipts[0]
}

func (f *fixture) draw(t *testing.T, stockID id.ID, qty int64) *allocation.DrawResult {
	t.Helper()
	res, err := f.alloc.DrawMaterial(context.Background(), allocation.DrawInput{
		JobID:          f.job.ID,
		StockID:        stockID,
		Quantity:       types.NewQuantity(qty),
		AccountingDate: day,
		ConsumedBy:     "workshop",
	})
	require.NoError(t, err)
	return res
}

func TestService_ListAllocations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	first := f.deliver(t, "L1", 10)
	f.draw(t, first.StockID, 3)
	second := f.deliver(t, "L2", 10)

	allocs, err := f.alloc.ListAllocations(ctx, f.order.ID)
	require.NoError(t, err)
	require.Len(t, allocs, 2)

	byID := map[id.ID]allocation.Allocation{}
	for _, a := range allocs {
		byID[a.ID] = a
	}
	assert.False(t, byID[first.MovementID].CanDelete)
	assert.True(t, byID[second.MovementID].CanDelete)
	assert.Equal(t, "L1", byID[first.MovementID].ExternalLineID)
	assert.Equal(t, "SS-304-A", byID[second.MovementID].ItemCode)
}

func TestService_GetAllocationDetails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	receipt := f.deliver(t, "L1", 10)
	drawn := f.draw(t, receipt.StockID, 4)

	d, err := f.alloc.GetAllocationDetails(ctx, receipt.MovementID)
	require.NoError(t, err)
	assert.False(t, d.CanDelete)
	require.Len(t, d.Consumptions, 1)
	assert.Equal(t, drawn.Movement.ID, d.Consumptions[0].ID)
	assert.Equal(t, []id.ID{drawn.Line.ID}, d.CostLineIDs)

	_, err = f.alloc.GetAllocationDetails(ctx, drawn.Movement.ID)
	assert.True(t, apperror.IsNotFound(err))
	_, err = f.alloc.GetAllocationDetails(ctx, id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_DeleteAllocation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	used := f.deliver(t, "L1", 10)
	f.draw(t, used.StockID, 2)
	spare := f.deliver(t, "L2", 6)

	err := f.alloc.DeleteAllocation(ctx, used.MovementID)
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperror.CodeReceiptInUse, appErr.Code)
	assert.Len(t, appErr.Details["consumptions"], 1)

	require.NoError(t, f.alloc.DeleteAllocation(ctx, spare.MovementID))

	line, err := f.orders.GetLine(ctx, spare.LineID)
	require.NoError(t, err)
	assert.True(t, line.ReceivedQuantity.IsZero())

	st, err := f.stock.Get(ctx, spare.StockID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(8), st.Quantity)

	_, err = f.stock.GetMovement(ctx, spare.MovementID)
	assert.True(t, apperror.IsNotFound(err))

	order, err := f.orders.GetByID(ctx, f.order.ID)
	require.NoError(t, err)
	assert.Len(t, order.Lines, 2)
	assert.Equal(t, po.StatusPartiallyReceived, order.Status)
}

func TestService_DrawAndReturnMaterial(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	receipt := f.deliver(t, "L1", 10)

	drawn := f.draw(t, receipt.StockID, 4)
	assert.Equal(t, drawn.Line.ID, *drawn.Movement.CostLineID)
	assert.Equal(t, drawn.Movement.ID, *drawn.Line.ExtRefs.StockMovementID)
	assert.Equal(t, "SS-304-A", drawn.Line.Meta.GetString("item_code"))
	assert.True(t, types.MustMoney("50.00").Equal(drawn.Line.TotalCost()))

	set, err := f.costing.GetCostSet(ctx, f.job.LatestActualID)
	require.NoError(t, err)
	assert.True(t, types.MustMoney("50.00").Equal(set.Summary.Cost))

	_, err = f.alloc.DrawMaterial(ctx, allocation.DrawInput{
		JobID: f.job.ID, StockID: receipt.StockID, Quantity: types.NewQuantity(50), AccountingDate: day,
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	returned, err := f.alloc.ReturnMaterial(ctx, drawn.Line.ID, "offcut unused")
	require.NoError(t, err)
	assert.Equal(t, drawn.Movement.ID, *returned.ReversesID)

	_, err = f.costing.GetCostLine(ctx, drawn.Line.ID)
	assert.True(t, apperror.IsNotFound(err))

	st, err := f.stock.Get(ctx, receipt.StockID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(10), st.Quantity)
}

func TestService_MigrateLegacyReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	receipt := f.deliver(t, "L1", 10)

	// Imported data bypasses the service checks.
	legacy := &costing.CostLine{
		BaseEntity:     entity.NewBaseEntity(),
		CostSetID:      f.job.LatestActualID,
		Kind:           costing.LineMaterial,
		Description:    "sheet drawn before the ledger",
		Quantity:       types.NewQuantity(3),
		UnitCost:       types.MustMoney("12.50"),
		UnitRevenue:    types.MustMoney("20.00"),
		AccountingDate: day,
		Meta:           entity.Attributes{"item_code": "SS-304-A"},
		ExtRefs:        costing.ExtRefs{StockID: id.Ptr(receipt.StockID)},
	}
	require.NoError(t, f.costingRepo.CreateLine(ctx, legacy))

	res, err := f.alloc.MigrateLegacyReference(ctx, legacy.ID, allocation.MigrateOptions{})
	require.NoError(t, err)
	assert.Nil(t, res.Line.ExtRefs.StockID)
	assert.Equal(t, res.Movement.ID, *res.Line.ExtRefs.StockMovementID)
	assert.Equal(t, legacy.ID, *res.Movement.CostLineID)
	assert.Equal(t, stock.MovementConsume, res.Movement.Type)

	st, err := f.stock.Get(ctx, receipt.StockID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(7), st.Quantity)

	_, err = f.alloc.MigrateLegacyReference(ctx, legacy.ID, allocation.MigrateOptions{})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	t.Run("stock already deducted upstream", func(t *testing.T) {
		deducted := &costing.CostLine{
			BaseEntity:     entity.NewBaseEntity(),
			CostSetID:      f.job.LatestActualID,
			Kind:           costing.LineMaterial,
			Description:    "sheet cut by the old system",
			Quantity:       types.NewQuantity(2),
			UnitCost:       types.MustMoney("12.50"),
			AccountingDate: day,
			Meta:           entity.Attributes{"item_code": "SS-304-A"},
			ExtRefs:        costing.ExtRefs{StockID: id.Ptr(receipt.StockID)},
		}
		require.NoError(t, f.costingRepo.CreateLine(ctx, deducted))

		res, err := f.alloc.MigrateLegacyReference(ctx, deducted.ID, allocation.MigrateOptions{AlreadyDeducted: true})
		require.NoError(t, err)
		require.NotNil(t, res.Offset)
		assert.Equal(t, stock.MovementAdjust, res.Offset.Type)
		assert.Equal(t, types.NewQuantity(2), res.Offset.Delta)
		assert.Equal(t, deducted.ID, *res.Movement.CostLineID)

		st, err := f.stock.Get(ctx, receipt.StockID)
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(7), st.Quantity)

		drifts, err := f.stock.CheckConservation(ctx)
		require.NoError(t, err)
		assert.Empty(t, drifts)
	})
}
