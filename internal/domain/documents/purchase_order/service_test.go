package purchase_order_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/types"
	"jobcost/internal/domain"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/memory"
)

type fixture struct {
	stock  *stock.Service
	orders *po.Service
}

func newFixture() *fixture {
	store := memory.NewStore()
	stockSvc := stock.NewService(memory.NewStockRepo(store), store)
	orders := po.NewService(
		memory.NewPurchaseOrderRepo(store),
		stockSvc,
		memory.NewNumerator(store),
		memory.NewAuditRecorder(store),
		store,
	)
	return &fixture{stock: stockSvc, orders: orders}
}

var orderDate = time.Date(2025, 10, 28, 0, 0, 0, 0, time.UTC)

func line(ext, desc, code string, qty int64) po.LineInput {
	return po.LineInput{
		ExternalLineID: ext,
		Description:    desc,
		ItemCode:       code,
		Quantity:       types.NewQuantity(qty),
		UnitCost:       types.MustMoney("12.50"),
	}
}

func order(lines ...po.LineInput) po.SaveOrderInput {
	return po.SaveOrderInput{Number: "PO-7781", Supplier: "Allied Metals", OrderDate: orderDate, Lines: lines}
}

func TestService_SaveOrder_EditInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	created, err := f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304", "SS-304-A", 10),
		line("L2", "Flat bar 50x6", "FB-50-6", 20),
	))
	require.NoError(t, err)
	assert.True(t, created.Report.Created)
	require.Len(t, created.Order.Lines, 2)
	l1 := created.Order.Lines[0]

	edited, err := f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304 2B finish", "ss-304-a", 12),
		line("L2", "Flat bar 50x6", "FB-50-6", 20),
	))
	require.NoError(t, err)
	assert.False(t, edited.Report.Created)
	assert.Equal(t, []string{"L1"}, edited.Report.Updated)
	assert.False(t, edited.Report.HasStructuralChanges())

	got, err := f.orders.GetLine(ctx, l1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Stainless sheet 304 2B finish", got.Description)
	assert.Equal(t, "SS-304-A", got.ItemCode)
	assert.Equal(t, types.NewQuantity(12), got.Quantity)
}

func TestService_SaveOrder_StructuralChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304", "SS-304-A", 10),
		line("L2", "Flat bar 50x6", "FB-50-6", 20),
	))
	require.NoError(t, err)

	res, err := f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304", "SS-304-A", 10),
		line("L9", "flat bar 50x6 ", "FB-50-6", 20),
	))
	require.NoError(t, err)
	require.Len(t, res.Report.StructuralChanges, 2)

	removed, added := res.Report.StructuralChanges[0], res.Report.StructuralChanges[1]
	assert.Equal(t, po.ChangeRemoved, removed.Type)
	assert.Equal(t, "L2", removed.ExternalLineID)
	assert.Equal(t, po.ChangeAdded, added.Type)
	assert.Equal(t, "L9", added.ExternalLineID)
	assert.Equal(t, "L2", added.ReplacesExternalLineID)

	got, err := f.orders.GetByID(ctx, res.Order.ID)
	require.NoError(t, err)
	require.Len(t, got.Lines, 2)
	assert.Equal(t, 3, got.Lines[1].LineNo)
}

func TestService_SaveOrder_ReceivedLinesAreProtected(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	created, err := f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304", "SS-304-A", 10),
		line("L2", "Flat bar 50x6", "FB-50-6", 20),
	))
	require.NoError(t, err)
	_, err = f.orders.ProcessDelivery(ctx, created.Order.ID, []po.DeliveryLine{
		{ExternalLineID: "L1", Quantity: types.NewQuantity(4)},
	})
	require.NoError(t, err)

	t.Run("vanished line with receipts", func(t *testing.T) {
		_, err := f.orders.SaveOrder(ctx, order(line("L2", "Flat bar 50x6 renamed", "FB-50-6", 20)))
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeStructuralChange))

		got, err := f.orders.GetByID(ctx, created.Order.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 2)
		assert.Equal(t, "Flat bar 50x6", got.Lines[1].Description)
	})

	t.Run("item code change on received line", func(t *testing.T) {
		_, err := f.orders.SaveOrder(ctx, order(
			line("L1", "Stainless sheet 316", "SS-316-A", 10),
			line("L2", "Flat bar 50x6", "FB-50-6", 20),
		))
		assert.True(t, apperror.IsCode(err, apperror.CodeStructuralChange))
	})

	t.Run("quantity below received", func(t *testing.T) {
		_, err := f.orders.SaveOrder(ctx, order(
			line("L1", "Stainless sheet 304", "SS-304-A", 3),
			line("L2", "Flat bar 50x6", "FB-50-6", 20),
		))
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})
}

func TestService_SaveOrder_Validation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.orders.SaveOrder(ctx, order(line("", "Stainless sheet 304", "SS-304-A", 10)))
	assert.True(t, apperror.IsCode(err, apperror.CodeMissingExternalID))

	_, err = f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304", "SS-304-A", 10),
		line("L1", "Flat bar 50x6", "FB-50-6", 20),
	))
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	in := order(line("L1", "Stainless sheet 304", "SS-304-A", 10))
	in.Number = ""
	res, err := f.orders.SaveOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, po.NumberPrefix+"1", res.Order.Number)
}

func TestService_ProcessDelivery(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	created, err := f.orders.SaveOrder(ctx, order(
		line("L1", "Stainless sheet 304", "SS-304-A", 10),
		line("L2", "Stainless sheet 304 (job stock)", "SS-304-A", 5),
	))
	require.NoError(t, err)

	res, err := f.orders.ProcessDelivery(ctx, created.Order.ID, []po.DeliveryLine{
		{ExternalLineID: "L1", Quantity: types.NewQuantity(10)},
		{ExternalLineID: "L2", Quantity: types.NewQuantity(2)},
	})
	require.NoError(t, err)
	require.Len(t, res.Receipts, 2)
	assert.Equal(t, res.Receipts[0].StockID, res.Receipts[1].StockID)
	assert.NotEqual(t, res.Receipts[0].MovementID, res.Receipts[1].MovementID)
	assert.Equal(t, po.StatusPartiallyReceived, res.Order.Status)

	st, err := f.stock.GetByItemCode(ctx, "SS-304-A")
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(12), st.Quantity)

	_, err = f.orders.ProcessDelivery(ctx, created.Order.ID, []po.DeliveryLine{
		{ExternalLineID: "L2", Quantity: types.NewQuantity(4)},
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = f.orders.ProcessDelivery(ctx, created.Order.ID, []po.DeliveryLine{
		{ExternalLineID: "L7", Quantity: types.NewQuantity(1)},
	})
	assert.True(t, apperror.IsNotFound(err))

	res, err = f.orders.ProcessDelivery(ctx, created.Order.ID, []po.DeliveryLine{
		{ExternalLineID: "L2", Quantity: types.NewQuantity(3)},
	})
	require.NoError(t, err)
	assert.Equal(t, po.StatusReceived, res.Order.Status)

	t.Run("reverse receipt", func(t *testing.T) {
		l2 := res.Receipts[0].LineID
		got, err := f.orders.ReverseReceipt(ctx, l2, types.NewQuantity(3))
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(2), got.ReceivedQuantity)

		_, err = f.orders.ReverseReceipt(ctx, l2, types.NewQuantity(5))
		assert.True(t, apperror.IsCode(err, apperror.CodeQuantityDrift))

		reloaded, err := f.orders.GetByID(ctx, created.Order.ID)
		require.NoError(t, err)
		assert.Equal(t, po.StatusPartiallyReceived, reloaded.Status)
	})
}

func TestService_Hooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	var seen []string
	f.orders.Hooks().On(domain.AfterSave, func(_ context.Context, r *po.SaveResult) error {
		seen = append(seen, r.Order.Number)
		return nil
	})

	_, err := f.orders.SaveOrder(ctx, order(line("L1", "Stainless sheet 304", "SS-304-A", 10)))
	require.NoError(t, err)
	assert.Equal(t, []string{"PO-7781"}, seen)

	list, err := f.orders.List(ctx, po.ListFilter{ListFilter: domain.ListFilter{Limit: 50}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalCount)
}
