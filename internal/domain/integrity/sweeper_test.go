package integrity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/integrity"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/memory"
)

func TestSweeper_Run(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	rec := memory.NewAuditRecorder(store)
	numbers := memory.NewNumerator(store)
	stockRepo := memory.NewStockRepo(store)
	costingRepo := memory.NewCostingRepo(store)
	orderRepo := memory.NewPurchaseOrderRepo(store)

	stockSvc := stock.NewService(stockRepo, store)
	orders := po.NewService(orderRepo, stockSvc, numbers, rec, store)
	costingSvc := costing.NewService(costingRepo, stockSvc, numbers, rec, store)
	alloc := allocation.NewService(stockSvc, orders, costingSvc, store)
	log := memory.NewViolationLog(store)
	sweeper := integrity.NewSweeper(costingSvc, stockSvc, orders, log, store)

	job, err := costingSvc.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)
	saved, err := orders.SaveOrder(ctx, po.SaveOrderInput{
		Number:    "PO-7781",
		Supplier:  "Allied Metals",
		OrderDate: day,
		Lines: []po.LineInput{
			{ExternalLineID: "L1", Description: "Stainless sheet 304", ItemCode: "SS-304-A", Quantity: types.NewQuantity(10), UnitCost: types.MustMoney("12.50")},
		},
	})
	require.NoError(t, err)
	delivered, err := orders.ProcessDelivery(ctx, saved.Order.ID, []po.DeliveryLine{{ExternalLineID: "L1", Quantity: types.NewQuantity(10)}})
	require.NoError(t, err)
	stockID := delivered.Receipts[0].StockID

	// A clean draw must not be reported.
	_, err = alloc.DrawMaterial(ctx, allocation.DrawInput{JobID: job.ID, StockID: stockID, Quantity: types.NewQuantity(2), AccountingDate: day})
	require.NoError(t, err)

	// Defects as they arrive from imported data.
	legacy := &costing.CostLine{
		BaseEntity:     entity.NewBaseEntity(),
		CostSetID:      job.LatestActualID,
		Kind:           costing.LineMaterial,
		Description:    "sheet drawn before the ledger",
		Quantity:       types.NewQuantity(1),
		UnitCost:       types.MustMoney("12.50"),
		AccountingDate: day,
		Meta:           entity.Attributes{"item_code": "SS-304-A"},
		ExtRefs:        costing.ExtRefs{StockID: id.Ptr(stockID)},
	}
	require.NoError(t, costingRepo.CreateLine(ctx, legacy))

	orphan, err := stockSvc.Consume(ctx, stockID, types.NewQuantity(1), stock.ConsumeRef{JobID: job.ID, CostLineID: id.Ptr(id.New())})
	require.NoError(t, err)

	require.NoError(t, orderRepo.CreateLine(ctx, &po.Line{
		ID:       id.New(),
		OrderID:  saved.Order.ID,
		LineNo:   2,
		ItemCode: "FB-50-6",
		Quantity: types.NewQuantity(1),
	}))

	offcut := &stock.Stock{BaseEntity: entity.NewBaseEntity(), ItemCode: "SS-304-A-OFFCUT", SourceParentStockID: id.Ptr(id.New())}
	require.NoError(t, stockRepo.Create(ctx, offcut))

	report, err := sweeper.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{
		apperror.CodeLegacyReference: 1,
		apperror.CodeOrphanReference: 2,
		apperror.CodeMissingExternalID: 1,
	}, report.CountByCode())
	assert.Equal(t, 2, report.Checked["cost_lines"])

	byEntity := map[string]integrity.Violation{}
	for _, v := range report.Violations {
		byEntity[v.EntityType+"/"+v.Code] = v
	}
	assert.Equal(t, legacy.ID, byEntity[audit.EntityCostLine+"/"+apperror.CodeLegacyReference].EntityID)
	assert.Equal(t, orphan.ID, byEntity[audit.EntityStockMovement+"/"+apperror.CodeOrphanReference].EntityID)
	assert.Equal(t, offcut.ID, byEntity[audit.EntityStock+"/"+apperror.CodeOrphanReference].EntityID)

	open, err := log.ListOpen(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, open, 4)

	t.Run("fixed defects are resolved by the next sweep", func(t *testing.T) {
		_, err := alloc.MigrateLegacyReference(ctx, legacy.ID, allocation.MigrateOptions{})
		require.NoError(t, err)
		_, err = stockSvc.ReturnConsumption(ctx, orphan.ID, "")
		require.NoError(t, err)

		report, err := sweeper.Run(ctx)
		require.NoError(t, err)
		assert.Len(t, report.Violations, 2)
		assert.Equal(t, int64(2), report.Resolved)

		open, err := log.ListOpen(ctx, 50)
		require.NoError(t, err)
		assert.Len(t, open, 2)
	})

	t.Run("sweep never modifies data", func(t *testing.T) {
		drifts, err := stockSvc.CheckConservation(ctx)
		require.NoError(t, err)
		assert.Empty(t, drifts)

		lines, err := orderRepo.ListLines(ctx, po.LineFilter{MissingExternalID: true})
		require.NoError(t, err)
		assert.Len(t, lines, 1)
	})
}

// readOnlySpy counts read-only transactions.
type readOnlySpy struct {
	*memory.Store
	calls int
}

func (s *readOnlySpy) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	s.calls++
	return s.Store.ReadOnly(ctx, fn)
}

func TestSweeper_SameCodeDefectsOnOneLine(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC)

	store := memory.NewStore()
	rec := memory.NewAuditRecorder(store)
	numbers := memory.NewNumerator(store)
	stockSvc := stock.NewService(memory.NewStockRepo(store), store)
	orders := po.NewService(memory.NewPurchaseOrderRepo(store), stockSvc, numbers, rec, store)
	costingRepo := memory.NewCostingRepo(store)
	costingSvc := costing.NewService(costingRepo, stockSvc, numbers, rec, store)
	log := memory.NewViolationLog(store)
	txm := &readOnlySpy{Store: store}
	sweeper := integrity.NewSweeper(costingSvc, stockSvc, orders, log, txm)

	job, err := costingSvc.CreateJob(ctx, costing.CreateJobInput{Name: "Gate"})
	require.NoError(t, err)
	saved, err := orders.SaveOrder(ctx, po.SaveOrderInput{
		Number:    "PO-7790",
		Supplier:  "Allied Metals",
		OrderDate: day,
		Lines: []po.LineInput{
			{ExternalLineID: "L1", Description: "Flat bar 50x6", ItemCode: "FB-50-6", Quantity: types.NewQuantity(4), UnitCost: types.MustMoney("8.00")},
		},
	})
	require.NoError(t, err)
	delivered, err := orders.ProcessDelivery(ctx, saved.Order.ID, []po.DeliveryLine{{ExternalLineID: "L1", Quantity: types.NewQuantity(4)}})
	require.NoError(t, err)

	// Foreign meta key and a receipt where a consume belongs: both SCHEMA_VALIDATION.
	line := &costing.CostLine{
		BaseEntity:     entity.NewBaseEntity(),
		CostSetID:      job.LatestActualID,
		Kind:           costing.LineMaterial,
		Description:    "flat bar",
		Quantity:       types.NewQuantity(1),
		UnitCost:       types.MustMoney("8.00"),
		AccountingDate: day,
		Meta:           entity.Attributes{"item_code": "FB-50-6", "hours": 2},
		ExtRefs:        costing.ExtRefs{StockMovementID: id.Ptr(delivered.Receipts[0].MovementID)},
	}
	require.NoError(t, costingRepo.CreateLine(ctx, line))

	report, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, txm.calls, "checks share one read-only snapshot")
	assert.Equal(t, map[string]int{apperror.CodeSchemaValidation: 2}, report.CountByCode())
	require.Len(t, report.Violations, 2)
	assert.NotEqual(t, report.Violations[0].Key(), report.Violations[1].Key())

	open, err := log.ListOpen(ctx, 50)
	require.NoError(t, err)
	require.Len(t, open, 2)
	for _, v := range open {
		assert.Equal(t, line.ID, v.EntityID)
	}

	again, err := sweeper.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Resolved)
	open, err = log.ListOpen(ctx, 50)
	require.NoError(t, err)
	assert.Len(t, open, 2)
}
