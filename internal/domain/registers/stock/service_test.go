package stock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/memory"
)

func ticker() func() time.Time {
	base := time.Date(2025, 11, 1, 8, 0, 0, 0, time.UTC)
	var n atomic.Int64
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

func newService() *stock.Service {
	store := memory.NewStore()
	return stock.NewService(memory.NewStockRepo(store), store).WithClock(ticker())
}

func seed(t *testing.T, svc *stock.Service, code string, qty int64) *stock.Stock {
	t.Helper()
	ctx := context.Background()
	st, err := svc.UpsertStock(ctx, code, stock.StockAttrs{})
	require.NoError(t, err)
	if qty > 0 {
		_, err = svc.Receive(ctx, st.ID, types.NewQuantity(qty), types.MustMoney("10.00"), id.Ptr(id.New()))
		require.NoError(t, err)
	}
	st, err = svc.Get(ctx, st.ID)
	require.NoError(t, err)
	return st
}

func TestService_QuantityMatchesJournal(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	st := seed(t, svc, "SS-304-A", 30)

	_, err := svc.Consume(ctx, st.ID, types.NewQuantity(12), stock.ConsumeRef{JobID: id.New()})
	require.NoError(t, err)
	_, err = svc.Adjust(ctx, st.ID, types.NewQuantity(-3), "stocktake")
	require.NoError(t, err)

	st, err = svc.Get(ctx, st.ID)
	require.NoError(t, err)
	history, err := svc.History(ctx, st.ID)
	require.NoError(t, err)

	assert.Equal(t, types.NewQuantity(15), st.Quantity)
	assert.Equal(t, st.Quantity, stock.Fold(history))

	drifts, err := svc.CheckConservation(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestService_ConsumeRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	st := seed(t, svc, "SS-304-A", 30)

	_, err := svc.Consume(ctx, st.ID, types.NewQuantity(50), stock.ConsumeRef{JobID: id.New()})
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeInsufficientStock))

	st, err = svc.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(30), st.Quantity)

	history, err := svc.History(ctx, st.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestService_UpsertIsKeyedOnItemCode(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	first, err := svc.UpsertStock(ctx, "SS-304-A", stock.StockAttrs{})
	require.NoError(t, err)
	desc := "Stainless 304 sheet"
	second, err := svc.UpsertStock(ctx, " ss-304-a ", stock.StockAttrs{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	lineA, lineB := id.New(), id.New()
	_, err = svc.Receive(ctx, first.ID, types.NewQuantity(10), types.MustMoney("10.00"), &lineA)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, second.ID, types.NewQuantity(10), types.MustMoney("20.00"), &lineB)
	require.NoError(t, err)

	rows, err := svc.List(ctx, stock.ListFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.NewQuantity(20), rows[0].Quantity)
	assert.Equal(t, desc, rows[0].Description)
	assert.Equal(t, lineA, *rows[0].SourcePOLineID)
	assert.True(t, types.MustMoney("15.00").Equal(rows[0].UnitCost))

	receipts, err := svc.ListMovements(ctx, stock.MovementFilter{Types: []stock.MovementType{stock.MovementReceipt}})
	require.NoError(t, err)
	assert.Len(t, receipts, 2)
}

func TestService_UndoReceipt(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	st, err := svc.UpsertStock(ctx, "SS-304-A", stock.StockAttrs{})
	require.NoError(t, err)

	used, err := svc.Receive(ctx, st.ID, types.NewQuantity(10), types.MustMoney("10.00"), nil)
	require.NoError(t, err)
	_, err = svc.Consume(ctx, st.ID, types.NewQuantity(8), stock.ConsumeRef{JobID: id.New()})
	require.NoError(t, err)
	spare, err := svc.Receive(ctx, st.ID, types.NewQuantity(5), types.MustMoney("10.00"), nil)
	require.NoError(t, err)

	t.Run("receipt drawn on by a later consume", func(t *testing.T) {
		_, err := svc.UndoReceipt(ctx, used.ID)
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeReceiptInUse))
	})

	t.Run("unused receipt", func(t *testing.T) {
		_, err := svc.UndoReceipt(ctx, spare.ID)
		require.NoError(t, err)

		st, err := svc.Get(ctx, st.ID)
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(2), st.Quantity)

		_, err = svc.GetMovement(ctx, spare.ID)
		assert.True(t, apperror.IsNotFound(err))
	})

	t.Run("non-receipt", func(t *testing.T) {
		consumes, err := svc.ListMovements(ctx, stock.MovementFilter{Types: []stock.MovementType{stock.MovementConsume}})
		require.NoError(t, err)
		require.Len(t, consumes, 1)
		_, err = svc.UndoReceipt(ctx, consumes[0].ID)
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})
}

func TestService_ReturnConsumption(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	st := seed(t, svc, "SS-304-A", 30)

	c, err := svc.Consume(ctx, st.ID, types.NewQuantity(10), stock.ConsumeRef{JobID: id.New()})
	require.NoError(t, err)

	r, err := svc.ReturnConsumption(ctx, c.ID, "")
	require.NoError(t, err)
	assert.Equal(t, stock.MovementAdjust, r.Type)
	assert.Equal(t, c.ID, *r.ReversesID)

	reversed, err := svc.IsReversed(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, reversed)

	_, err = svc.ReturnConsumption(ctx, c.ID, "")
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))

	st, err = svc.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(30), st.Quantity)
}

func TestService_SplitAndMerge(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	sheet := seed(t, svc, "SS-304-A", 30)

	res, err := svc.Split(ctx, stock.SplitInput{SourceID: sheet.ID, Quantity: types.NewQuantity(10), ItemCode: "SS-304-A-OFFCUT"})
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantity(20), res.Source.Quantity)
	assert.Equal(t, types.NewQuantity(10), res.Target.Quantity)
	require.NotNil(t, res.Target.SourceParentStockID)
	assert.Equal(t, sheet.ID, *res.Target.SourceParentStockID)
	assert.Equal(t, res.Out.Delta.Neg(), res.In.Delta)

	t.Run("split back onto an ancestor", func(t *testing.T) {
		_, err := svc.Split(ctx, stock.SplitInput{SourceID: res.Target.ID, Quantity: types.NewQuantity(1), ItemCode: "SS-304-A"})
		require.Error(t, err)
		assert.True(t, apperror.IsCode(err, apperror.CodeStockCycle))
	})

	t.Run("merge back", func(t *testing.T) {
		m, err := svc.Merge(ctx, stock.MergeInput{SourceID: res.Target.ID, TargetID: sheet.ID, Quantity: types.NewQuantity(10)})
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantity(30), m.Target.Quantity)
		assert.True(t, m.Source.Quantity.IsZero())
	})

	t.Run("deactivate empty offcut", func(t *testing.T) {
		st, err := svc.Deactivate(ctx, res.Target.ID)
		require.NoError(t, err)
		assert.False(t, st.IsActive)

		_, err = svc.Deactivate(ctx, sheet.ID)
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})

	drifts, err := svc.CheckConservation(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifts)
}

func TestService_ConcurrentConsumeNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	st := seed(t, svc, "SS-304-A", 30)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		rejected  atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Consume(ctx, st.ID, types.NewQuantity(5), stock.ConsumeRef{JobID: id.New()})
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperror.IsCode(err, apperror.CodeInsufficientStock):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(6), succeeded.Load())
	assert.Equal(t, int32(4), rejected.Load())

	st, err := svc.Get(ctx, st.ID)
	require.NoError(t, err)
	assert.True(t, st.Quantity.IsZero())
}

func TestReplay(t *testing.T) {
	at := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	receipt := stock.Movement{ID: id.New(), Type: stock.MovementReceipt, Delta: types.NewQuantity(10), OccurredAt: at}
	consume := stock.Movement{ID: id.New(), Type: stock.MovementConsume, Delta: types.NewQuantity(-4), OccurredAt: at.Add(time.Hour)}
	journal := []stock.Movement{consume, receipt}

	final, low := stock.Replay(journal, nil)
	assert.Equal(t, types.NewQuantity(6), final)
	assert.True(t, low.IsZero())

	final, low = stock.Replay(journal, &receipt.ID)
	assert.Equal(t, types.NewQuantity(-4), final)
	assert.Equal(t, types.NewQuantity(-4), low)

	assert.Equal(t, []stock.Movement{consume}, stock.ConsumedAfter(receipt, journal))
}
