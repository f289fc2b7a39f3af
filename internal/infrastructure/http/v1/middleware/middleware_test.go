package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"jobcost/internal/core/apperror"
	"jobcost/internal/infrastructure/http/v1/middleware"
	"jobcost/pkg/logger"
)

func newEngine(log *logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Trace(), middleware.Logger(log), middleware.ErrorHandler())
	r.GET("/boom", func(c *gin.Context) {
		logger.Info(c.Request.Context(), "inside handler")
		_ = c.Error(errors.New("boom"))
	})
	r.GET("/panic", func(c *gin.Context) {
		panic("bad state")
	})
	return r
}

func TestErrorHandler_InternalErrorCarriesRequestIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r := newEngine(&logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-1")
	req.Header.Set(middleware.HeaderTraceID, "trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "req-1", w.Header().Get(middleware.HeaderRequestID))

	var body struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-1", body.Details["request_id"])
	assert.Equal(t, "trace-1", body.Details["trace_id"])

	// Service logs go through the request logger.
	inside := logs.FilterMessage("inside handler").All()
	require.Len(t, inside, 1)
	fields := inside[0].ContextMap()
	assert.Equal(t, "/boom", fields["route"])
	assert.Equal(t, "req-1", fields["request_id"])

	access := logs.FilterMessage("http request").All()
	require.Len(t, access, 1)
	assert.Equal(t, "req-1", access[0].ContextMap()["request_id"])
}

func TestRecovery_ReportsRequestID(t *testing.T) {
	r := newEngine(logger.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(middleware.HeaderRequestID, "req-2")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, apperror.CodeInternal, body.Code)
	assert.Equal(t, "req-2", body.Details["request_id"])
}
