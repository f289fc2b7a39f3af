package v1_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/apperror"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/integrity"
	"jobcost/internal/domain/reconcile"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/domain/reports"
	v1 "jobcost/internal/infrastructure/http/v1"
	"jobcost/internal/infrastructure/export"
	"jobcost/internal/infrastructure/http/v1/handlers"
	"jobcost/internal/infrastructure/http/v1/middleware"
	"jobcost/internal/infrastructure/storage/memory"
	"jobcost/internal/infrastructure/storage/postgres"
	"jobcost/internal/metadata"
	"jobcost/pkg/logger"
)

type fakeIdempotency struct {
	mu   sync.Mutex
	done map[string]*postgres.IdempotencyReplay
}

func (f *fakeIdempotency) AcquireKey(_ context.Context, key, _, _, _ string) (*postgres.IdempotencyReplay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done[key], nil
}

func (f *fakeIdempotency) CompleteKey(_ context.Context, key string, status int, contentType string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.done[key] = &postgres.IdempotencyReplay{StatusCode: status, ContentType: contentType, Body: body}
	return nil
}

type testAPI struct {
	t       *testing.T
	handler http.Handler
}

type option func(*v1.RouterConfig)

func newAPI(t *testing.T, opts ...option) *testAPI {
	t.Helper()

	store := memory.NewStore()
	rec := memory.NewAuditRecorder(store)
	numbers := memory.NewNumerator(store)

	stockSvc := stock.NewService(memory.NewStockRepo(store), store)
	orders := po.NewService(memory.NewPurchaseOrderRepo(store), stockSvc, numbers, rec, store)
	costingSvc := costing.NewService(memory.NewCostingRepo(store), stockSvc, numbers, rec, store)
	violations := memory.NewViolationLog(store)

	registry := metadata.NewRegistry()
	metadata.RegisterCostLineSchemas(registry, costingSvc.Registry())

	cfg := v1.RouterConfig{
		Services: v1.Services{
			Costing:    costingSvc,
			Stock:      stockSvc,
			Orders:     orders,
			Allocation: allocation.NewService(stockSvc, orders, costingSvc, store),
			Reconcile:  reconcile.NewService(costingSvc, memory.NewSnapshotStore(store), reconcile.DefaultOptions()),
			Sweeper:    integrity.NewSweeper(costingSvc, stockSvc, orders, violations, store),
			Violations: violations,
			Reports:    reports.NewService(costingSvc, stockSvc),
		},
		Logger:           logger.NewNop(),
		MetadataRegistry: registry,
		Version:          "test",
		Storage:          "memory",
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &testAPI{t: t, handler: v1.NewRouter(cfg)}
}

func (a *testAPI) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (a *testAPI) createJob(name string) map[string]any {
	a.t.Helper()
	w := a.do(http.MethodPost, "/api/v1/jobs", map[string]any{"name": name})
	require.Equal(a.t, http.StatusCreated, w.Code, w.Body.String())
	return decode(a.t, w)
}

func TestJobLifecycle(t *testing.T) {
	api := newAPI(t)
	job := api.createJob("Balustrade")
	jobID := job["id"].(string)

	w := api.do(http.MethodGet, "/api/v1/jobs/"+jobID+"/cost-sets", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sets := decode(t, w)["items"].([]any)
	assert.Len(t, sets, 3)

	estimateID := job["latestEstimateId"].(string)
	w = api.do(http.MethodPost, "/api/v1/cost-sets/"+estimateID+"/lines", map[string]any{
		"kind":           "adjust",
		"description":    "Site allowance",
		"quantity":       1,
		"unitCost":       "120.00",
		"unitRevenue":    "150.00",
		"accountingDate": "2025-11-03",
		"meta":           map[string]any{"reason": "allowance"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	line := decode(t, w)
	assert.Equal(t, "adjust", line["kind"])

	w = api.do(http.MethodGet, "/api/v1/cost-sets/"+estimateID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["lines"].([]any), 1)

	w = api.do(http.MethodPut, "/api/v1/cost-lines/"+line["id"].(string), map[string]any{
		"version": line["version"],
		"kind":    "time",
	})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
	assert.Equal(t, apperror.CodeKindChange, decode(t, w)["code"])

	w = api.do(http.MethodPost, "/api/v1/jobs/"+jobID+"/quote/revise", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 2, decode(t, w)["revision"])

	w = api.do(http.MethodGet, "/api/v1/jobs/"+jobID+"/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, jobID, decode(t, w)["jobId"])
}

func TestListCostSetsRejectsUnknownKind(t *testing.T) {
	api := newAPI(t)
	job := api.createJob("Gate")

	w := api.do(http.MethodGet, "/api/v1/jobs/"+job["id"].(string)+"/cost-sets?kind=invoice", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidationErrorsNameJSONFields(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodPost, "/api/v1/jobs", map[string]any{"clientName": "Acme"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decode(t, w)
	assert.Equal(t, apperror.CodeValidation, body["code"])
	fields := body["details"].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, "required", fields["name"])
}

func TestInvalidAndUnknownIDs(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodGet, "/api/v1/jobs/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/jobs/0190f0c4-6d7e-7a3b-9c1d-2e3f4a5b6c7d", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, apperror.CodeNotFound, decode(t, w)["code"])
}

func TestStockFlow(t *testing.T) {
	api := newAPI(t)
	job := api.createJob("Handrail")

	w := api.do(http.MethodPut, "/api/v1/stock", map[string]any{"itemCode": "SS-304-A", "unitCost": "12.50"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	stockID := decode(t, w)["id"].(string)

	w = api.do(http.MethodPost, "/api/v1/stock/"+stockID+"/adjust", map[string]any{"delta": 5, "reason": "stocktake"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(http.MethodPost, "/api/v1/stock/"+stockID+"/consume", map[string]any{"quantity": 10, "jobId": job["id"]})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, apperror.CodeInsufficientStock, decode(t, w)["code"])

	for _, qty := range []any{"1.23456", 1e30, "999999999999999999"} {
		w = api.do(http.MethodPost, "/api/v1/stock/"+stockID+"/consume", map[string]any{"quantity": qty, "jobId": job["id"]})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code, "quantity %v", qty)
		assert.Equal(t, apperror.CodeSchemaValidation, decode(t, w)["code"], "quantity %v", qty)
	}

	w = api.do(http.MethodPost, "/api/v1/stock/"+stockID+"/consume", map[string]any{"quantity": 2, "jobId": job["id"]})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	consumeID := decode(t, w)["id"].(string)

	w = api.do(http.MethodGet, "/api/v1/stock/"+stockID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["quantity"])

	w = api.do(http.MethodPost, "/api/v1/stock/movements/"+consumeID+"/undo", map[string]any{"note": "not used"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = api.do(http.MethodGet, "/api/v1/stock/"+stockID+"/movements", nil)
	require.Equal(t, http.StatusOK, w.Code)
	history := decode(t, w)
	assert.Len(t, history["movements"].([]any), 3)
	assert.EqualValues(t, 5, history["stock"].(map[string]any)["quantity"])

	w = api.do(http.MethodGet, "/api/v1/stock/"+stockID+"/movements?types=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/stock/conservation", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])
}

func TestIdempotentReplay(t *testing.T) {
	store := &fakeIdempotency{done: map[string]*postgres.IdempotencyReplay{}}
	api := newAPI(t, func(cfg *v1.RouterConfig) { cfg.Idempotency = store })

	first := api.do(http.MethodPost, "/api/v1/jobs", map[string]any{"name": "Canopy"}, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := api.do(http.MethodPost, "/api/v1/jobs", map[string]any{"name": "Canopy"}, middleware.HeaderIdempotencyKey, "k-1")
	require.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, decode(t, first)["id"], decode(t, second)["id"])

	w := api.do(http.MethodGet, "/api/v1/jobs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"].([]any), 1)
}

func TestHealthReady(t *testing.T) {
	api := newAPI(t, func(cfg *v1.RouterConfig) {
		cfg.HealthChecks = []handlers.HealthCheck{
			{Name: "database", Check: func(context.Context) error { return nil }},
			{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		}
	})

	w := api.do(http.MethodGet, "/health/live", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/health/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	checks := decode(t, w)["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["database"])
	assert.Contains(t, checks["redis"], "connection refused")
}

func TestCostLineSchemasEndpoint(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodGet, "/api/v1/meta/cost-line-schemas", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	for _, name := range []string{"time", "material", "adjust", metadata.ExtRefsSchemaName} {
		assert.Contains(t, body, name)
	}
}

func TestIntegritySweep(t *testing.T) {
	api := newAPI(t)
	api.createJob("Stair")

	w := api.do(http.MethodPost, "/api/v1/integrity/sweeps", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode(t, w)["violations"])

	w = api.do(http.MethodGet, "/api/v1/integrity/violations?limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["items"])
}

func TestReconciliationExport(t *testing.T) {
	api := newAPI(t)

	w := api.do(http.MethodPut, "/api/v1/ledger-snapshot", map[string]any{
		"entries": []map[string]any{
			{"id": "GL-1", "description": "Job 1001 steel", "amount": "250.00", "date": "2025-11-05"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 1, decode(t, w)["imported"])

	w = api.do(http.MethodGet, "/api/v1/reconciliations/export?from=2025-11-01&to=2025-11-30", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, export.ContentTypeXLSX, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reconciliation_20251101_20251130.xlsx")
	assert.NotZero(t, w.Body.Len())

	w = api.do(http.MethodGet, "/api/v1/reconciliations/export?from=2025-11-01", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports(t *testing.T) {
	api := newAPI(t)
	api.createJob("Gate")

	w := api.do(http.MethodGet, "/api/v1/reports/job-cost", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 1, body["totalItems"])
	assert.EqualValues(t, 0, body["overBudgetJobs"])

	w = api.do(http.MethodGet, "/api/v1/reports/stock-valuation?excludeZero=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Empty(t, decode(t, w)["items"])

	w = api.do(http.MethodGet, "/api/v1/reports/stock-valuation?limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
