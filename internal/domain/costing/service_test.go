package costing_test

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
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/costing"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/infrastructure/storage/memory"
)

type fixture struct {
	store   *memory.Store
	stock   *stock.Service
	costing *costing.Service
	audit   *memory.AuditRecorder
	staff   *memory.StaffDirectory
}

func newFixture() *fixture {
	store := memory.NewStore()
	stockSvc := stock.NewService(memory.NewStockRepo(store), store)
	rec := memory.NewAuditRecorder(store)
	staff := memory.NewStaffDirectory()
	svc := costing.NewService(
		memory.NewCostingRepo(store),
		stockSvc,
		memory.NewNumerator(store),
		rec,
		store,
		costing.WithStaffDirectory(staff),
		costing.WithJobNumberStart(95427),
	)
	return &fixture{store: store, stock: stockSvc, costing: svc, audit: rec, staff: staff}
}

var day = time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)

func adjustLine(cost string) costing.LineInput {
	return costing.LineInput{
		Kind:           costing.LineAdjust,
		Description:    "freight",
		Quantity:       types.NewQuantity(1),
		UnitCost:       types.MustMoney(cost),
		UnitRevenue:    types.MustMoney(cost),
		AccountingDate: day,
		Meta:           entity.Attributes{"reason": "courier"},
	}
}

func (f *fixture) consume(t *testing.T, jobID id.ID, qty int64) *stock.Movement {
	t.Helper()
	ctx := context.Background()
	st, err := f.stock.UpsertStock(ctx, "SS-304-A", stock.StockAttrs{})
	require.NoError(t, err)
	_, err = f.stock.Receive(ctx, st.ID, types.NewQuantity(100), types.MustMoney("12.50"), nil)
	require.NoError(t, err)
	m, err := f.stock.Consume(ctx, st.ID, types.NewQuantity(qty), stock.ConsumeRef{JobID: jobID})
	require.NoError(t, err)
	return m
}

func requireCode(t *testing.T, err error, code string) *apperror.AppError {
	t.Helper()
	require.Error(t, err)
	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok, "expected AppError, got %v", err)
	require.Equal(t, code, appErr.Code, appErr.Message)
	return appErr
}

func TestService_CreateJob(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade", ClientName: "Harbour Fitouts"})
	require.NoError(t, err)
	assert.Equal(t, int64(95427), job.Number)

	sets, err := f.costing.ListCostSets(ctx, job.ID, nil)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	for i, kind := range costing.SetKinds {
		assert.Equal(t, kind, sets[i].Kind)
		assert.Equal(t, 1, sets[i].Revision)
		assert.Equal(t, job.LatestSetID(kind), sets[i].ID)
	}

	next, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Gate"})
	require.NoError(t, err)
	assert.Equal(t, int64(95428), next.Number)

	byNumber, err := f.costing.GetJobByNumber(ctx, 95427)
	require.NoError(t, err)
	assert.Equal(t, job.ID, byNumber.ID)

	_, err = f.costing.CreateJob(ctx, costing.CreateJobInput{})
	requireCode(t, err, apperror.CodeValidation)
}

func TestService_MetaSchema(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)

	staffID := id.New()
	f.staff.AddStaff(staffID)

	timeLine := func(meta entity.Attributes) costing.LineInput {
		return costing.LineInput{
			Kind:           costing.LineTime,
			Description:    "welding",
			Quantity:       types.NewQuantity(3),
			UnitCost:       types.MustMoney("45.00"),
			UnitRevenue:    types.MustMoney("90.00"),
			AccountingDate: day,
			Meta:           meta,
		}
	}

	tests := []struct {
		name  string
		setID id.ID
		meta  entity.Attributes
		code  string
		keys  []string
	}{
		{
			name:  "estimate time line needs no staff",
			setID: job.LatestEstimateID,
			meta:  nil,
		},
		{
			name:  "actual time line",
			setID: job.LatestActualID,
			meta:  entity.Attributes{"staff_id": staffID.String(), "is_billable": true, "rate_multiplier": "1.5"},
		},
		{
			name:  "foreign material key on time line",
			setID: job.LatestEstimateID,
			meta:  entity.Attributes{"item_code": "SS-304-A"},
			code:  apperror.CodeSchemaValidation,
			keys:  []string{"item_code"},
		},
		{
			name:  "actual time line without staff",
			setID: job.LatestActualID,
			meta:  entity.Attributes{"is_billable": true},
			code:  apperror.CodeSchemaValidation,
			keys:  []string{"staff_id"},
		},
		{
			name:  "unknown staff",
			setID: job.LatestActualID,
			meta:  entity.Attributes{"staff_id": id.New().String(), "is_billable": false},
			code:  apperror.CodeSchemaValidation,
			keys:  []string{"staff_id"},
		},
		{
			name:  "wrong value type",
			setID: job.LatestEstimateID,
			meta:  entity.Attributes{"is_billable": "yes", "date": "02/11/2025"},
			code:  apperror.CodeSchemaValidation,
			keys:  []string{"date", "is_billable"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := f.costing.AddCostLine(ctx, tt.setID, timeLine(tt.meta))
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, costing.LineTime, line.Kind)
				return
			}
			appErr := requireCode(t, err, tt.code)
			assert.Equal(t, tt.keys, appErr.Details["keys"])
		})
	}
}

func TestService_SummaryIsDerived(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)

	_, err = f.costing.AddCostLine(ctx, job.LatestQuoteID, adjustLine("100.00"))
	require.NoError(t, err)
	second, err := f.costing.AddCostLine(ctx, job.LatestQuoteID, adjustLine("23.45"))
	require.NoError(t, err)

	first, err := f.costing.RecalculateSummary(ctx, job.LatestQuoteID)
	require.NoError(t, err)
	again, err := f.costing.RecalculateSummary(ctx, job.LatestQuoteID)
	require.NoError(t, err)
	assert.True(t, first.Equal(again))
	assert.True(t, types.MustMoney("123.45").Equal(first.Cost))
	assert.Equal(t, 2, first.LineCount)

	require.NoError(t, f.costing.DeleteCostLine(ctx, second.ID))
	set, err := f.costing.GetCostSet(ctx, job.LatestQuoteID)
	require.NoError(t, err)
	assert.True(t, types.MustMoney("100.00").Equal(set.Summary.Cost))
	assert.Len(t, set.Lines, 1)
}

func TestService_KindChange(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)

	line, err := f.costing.AddCostLine(ctx, job.LatestEstimateID, adjustLine("50.00"))
	require.NoError(t, err)

	kind := costing.LineTime
	_, err = f.costing.UpdateCostLine(ctx, line.ID, costing.UpdateLineInput{Kind: &kind})
	requireCode(t, err, apperror.CodeKindChange)

	desc := "courier, two legs"
	updated, err := f.costing.UpdateCostLine(ctx, line.ID, costing.UpdateLineInput{
		ExpectedVersion: line.Version,
		Description:     &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)

	_, err = f.costing.UpdateCostLine(ctx, line.ID, costing.UpdateLineInput{ExpectedVersion: line.Version, Description: &desc})
	requireCode(t, err, apperror.CodeConcurrentModification)

	recreated, err := f.costing.RecreateCostLine(ctx, line.ID, costing.LineInput{
		Kind:           costing.LineTime,
		Description:    "courier run",
		Quantity:       types.NewQuantity(2),
		UnitCost:       types.MustMoney("25.00"),
		UnitRevenue:    types.MustMoney("40.00"),
		AccountingDate: day,
	})
	require.NoError(t, err)
	assert.Equal(t, costing.LineTime, recreated.Kind)
	assert.NotEqual(t, line.ID, recreated.ID)

	_, err = f.costing.GetCostLine(ctx, line.ID)
	assert.True(t, apperror.IsNotFound(err))

	history, err := f.audit.History(ctx, audit.EntityCostLine, recreated.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, audit.ActionRecreate, history[0].Action)
	assert.Equal(t, "adjust", history[0].Changes["old_kind"])
	assert.Equal(t, line.ID.String(), history[0].Changes["replaces"])
}

func TestService_ReviseQuote(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)
	oldQuote := job.LatestQuoteID

	_, err = f.costing.AddCostLine(ctx, oldQuote, adjustLine("10.00"))
	require.NoError(t, err)

	rev, err := f.costing.ReviseQuote(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rev.Revision)

	job, err = f.costing.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, rev.ID, job.LatestQuoteID)

	_, err = f.costing.AddCostLine(ctx, oldQuote, adjustLine("10.00"))
	requireCode(t, err, apperror.CodeConflict)

	kind := costing.SetQuote
	quotes, err := f.costing.ListCostSets(ctx, job.ID, &kind)
	require.NoError(t, err)
	assert.Len(t, quotes, 2)

	old, err := f.costing.GetCostSet(ctx, oldQuote)
	require.NoError(t, err)
	assert.Len(t, old.Lines, 1)

	_, err = f.costing.CreateCostSet(ctx, job.ID, costing.SetKind("forecast"))
	requireCode(t, err, apperror.CodeValidation)
}

func TestService_MaterialReferences(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)
	consume := f.consume(t, job.ID, 4)

	receipts, err := f.stock.ListMovements(ctx, stock.MovementFilter{Types: []stock.MovementType{stock.MovementReceipt}})
	require.NoError(t, err)
	require.Len(t, receipts, 1)

	material := func(refs entity.Attributes) costing.LineInput {
		return costing.LineInput{
			Kind:           costing.LineMaterial,
			Description:    "stainless sheet",
			Quantity:       types.NewQuantity(4),
			UnitCost:       types.MustMoney("12.50"),
			UnitRevenue:    types.MustMoney("20.00"),
			AccountingDate: day,
			Meta:           entity.Attributes{"item_code": "SS-304-A", "source": "stock"},
			ExtRefs:        refs,
		}
	}

	t.Run("estimate needs no movement", func(t *testing.T) {
		_, err := f.costing.AddCostLine(ctx, job.LatestEstimateID, material(nil))
		require.NoError(t, err)
	})

	rejected := []struct {
		name string
		refs entity.Attributes
		code string
	}{
		{"missing movement", nil, apperror.CodeSchemaValidation},
		{"unknown movement", entity.Attributes{"stock_movement_id": id.New().String()}, apperror.CodeOrphanReference},
		{"receipt movement", entity.Attributes{"stock_movement_id": receipts[0].ID.String()}, apperror.CodeSchemaValidation},
		{"legacy stock id", entity.Attributes{"stock_id": consume.StockID.String()}, apperror.CodeLegacyReference},
		{"both references", entity.Attributes{
			"stock_id":          consume.StockID.String(),
			"stock_movement_id": consume.ID.String(),
		}, apperror.CodeAmbiguousReference},
		{"unknown key", entity.Attributes{"stock": consume.StockID.String()}, apperror.CodeSchemaValidation},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.costing.AddCostLine(ctx, job.LatestActualID, material(tt.refs))
			requireCode(t, err, tt.code)
		})
	}

	refs := entity.Attributes{"stock_movement_id": consume.ID.String()}
	line, err := f.costing.AddCostLine(ctx, job.LatestActualID, material(refs))
	require.NoError(t, err)
	assert.Equal(t, consume.ID, *line.ExtRefs.StockMovementID)

	_, err = f.costing.AddCostLine(ctx, job.LatestActualID, material(refs))
	requireCode(t, err, apperror.CodeConflict)

	err = f.costing.DeleteCostLine(ctx, line.ID)
	requireCode(t, err, apperror.CodeConflict)

	_, err = f.costing.RecreateCostLine(ctx, line.ID, adjustLine("50.00"))
	requireCode(t, err, apperror.CodeConflict)

	_, err = f.stock.ReturnConsumption(ctx, consume.ID, "unused")
	require.NoError(t, err)
	require.NoError(t, f.costing.DeleteCostLine(ctx, line.ID))

	adjust := adjustLine("1.00")
	adjust.ExtRefs = refs
	_, err = f.costing.AddCostLine(ctx, job.LatestActualID, adjust)
	requireCode(t, err, apperror.CodeSchemaValidation)
}

func TestService_ListLinesForPeriod(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	job, err := f.costing.CreateJob(ctx, costing.CreateJobInput{Name: "Balustrade"})
	require.NoError(t, err)

	inside := adjustLine("10.00")
	outside := adjustLine("20.00")
	outside.AccountingDate = day.AddDate(0, 1, 0)

	_, err = f.costing.AddCostLine(ctx, job.LatestActualID, inside)
	require.NoError(t, err)
	_, err = f.costing.AddCostLine(ctx, job.LatestActualID, outside)
	require.NoError(t, err)
	_, err = f.costing.AddCostLine(ctx, job.LatestQuoteID, inside)
	require.NoError(t, err)

	lines, err := f.costing.ListLinesForPeriod(ctx, day.AddDate(0, 0, -1), day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, job.Number, lines[0].JobNumber)
	assert.Equal(t, costing.SetActual, lines[0].SetKind)
	assert.True(t, types.MustMoney("10.00").Equal(lines[0].TotalCost()))

	summary, err := f.costing.JobSummary(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, types.MustMoney("30.00").Equal(summary.Actual.Cost))
	assert.True(t, summary.Profit.IsZero())
}
