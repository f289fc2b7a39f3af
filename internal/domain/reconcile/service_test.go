package reconcile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/costing"
	"jobcost/internal/domain/reconcile"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/memory"
)

func TestService_Run(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	costingSvc := costing.NewService(
		memory.NewCostingRepo(store),
		stock.NewService(memory.NewStockRepo(store), store),
		memory.NewNumerator(store),
		memory.NewAuditRecorder(store),
		store,
		costing.WithJobNumberStart(95427),
	)
	svc := reconcile.NewService(costingSvc, memory.NewSnapshotStore(store), reconcile.DefaultOptions())

	job, err := costingSvc.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)
	_, err = costingSvc.AddCostLine(ctx, job.LatestActualID, costing.LineInput{
		Kind:           costing.LineAdjust,
		Description:    "Steel angle 50x50",
		Quantity:       types.NewQuantity(1),
		UnitCost:       types.MustMoney("123.45"),
		UnitRevenue:    types.MustMoney("150.00"),
		AccountingDate: time.Date(2025, 11, 2, 15, 30, 0, 0, time.UTC),
		Meta:           entity.Attributes{"reason": "supplier invoice"},
	})
	require.NoError(t, err)

	n, err := svc.ImportSnapshot(ctx, []reconcile.ExternalEntry{
		{ID: "GL-1", Reference: "JOB 95427 - steel angle", Amount: types.MustMoney("123.45"), Date: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "GL-2", Reference: "Rent", Amount: types.MustMoney("900.00"), Date: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	res, err := svc.Run(ctx, reconcile.RunInput{
		PeriodStart: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, reconcile.MethodExactKey, res.Matched[0].Method)
	assert.Equal(t, job.Number, res.Matched[0].Internal.JobNumber)
	require.Len(t, res.UnmatchedExternal, 1)
	assert.Equal(t, "GL-2", res.UnmatchedExternal[0].Entry.ID)

	t.Run("supplied entries override the snapshot", func(t *testing.T) {
		res, err := svc.Run(ctx, reconcile.RunInput{
			PeriodStart: time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC),
			External:    []reconcile.ExternalEntry{},
			Options:     &reconcile.Options{Basis: reconcile.BasisRevenue},
		})
		require.NoError(t, err)
		assert.Empty(t, res.Matched)
		require.Len(t, res.UnmatchedInternal, 1)
		assert.True(t, types.MustMoney("-150.00").Equal(res.Totals.Difference))
	})

	t.Run("inverted period", func(t *testing.T) {
		_, err := svc.Run(ctx, reconcile.RunInput{
			PeriodStart: time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC),
			PeriodEnd:   time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		})
		assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
	})
}

func TestService_ImportSnapshotValidation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := reconcile.NewService(nil, memory.NewSnapshotStore(store), reconcile.Options{})

	_, err := svc.ImportSnapshot(ctx, nil)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	day := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	_, err = svc.ImportSnapshot(ctx, []reconcile.ExternalEntry{{Amount: types.MustMoney("1.00"), Date: day}})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	_, err = svc.ImportSnapshot(ctx, []reconcile.ExternalEntry{
		{ID: "GL-1", Amount: types.MustMoney("1.00"), Date: day},
		{ID: "GL-1", Amount: types.MustMoney("2.00"), Date: day},
	})
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))

	assert.Equal(t, 14, svc.Options().DateWindowDays)
}
