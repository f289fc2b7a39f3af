// Package v1 provides HTTP API version 1.
package v1

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/integrity"
	"jobcost/internal/domain/reconcile"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/domain/reports"
	"jobcost/internal/infrastructure/http/v1/handlers"
	"jobcost/internal/infrastructure/http/v1/middleware"
	"jobcost/internal/infrastructure/lock"
	"jobcost/internal/metadata"
	"jobcost/pkg/logger"
)

// Services are the domain services exposed over HTTP.
type Services struct {
	Costing    *costing.Service
	Stock      *stock.Service
	Orders     *po.Service
	Allocation *allocation.Service
	Reconcile  *reconcile.Service
	Sweeper    *integrity.Sweeper
	Violations integrity.ViolationLog
	Reports    *reports.Service
}

// RouterConfig holds router configuration.
type RouterConfig struct {
	Services Services

	// Logger for request logging
	Logger *logger.Logger

	// AllowedOrigins for CORS. Empty disables the CORS middleware.
	AllowedOrigins []string

	// Idempotency stores replayable responses. Nil disables the middleware.
	Idempotency middleware.IdempotencyStore

	// SweepRunner serializes on-demand integrity sweeps with the worker.
	SweepRunner lock.Runner

	// MetadataRegistry stores entity definitions
	MetadataRegistry *metadata.Registry

	// Health probes
	Version      string
	Storage      string
	HealthChecks []handlers.HealthCheck
	HealthStats  func() any

	// Debug switches Gin to debug mode.
	Debug bool
}

var registerTagNames sync.Once

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	registerTagNames.Do(useJSONFieldNames)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  cfg.AllowedOrigins,
			AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:  []string{"Origin", "Content-Type", middleware.HeaderIdempotencyKey, "X-Request-ID", "X-Actor-ID", "X-Actor-Name"},
			ExposeHeaders: []string{"X-Request-ID", "X-Trace-ID", "Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	}
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.Version, cfg.Storage, cfg.HealthChecks...)
	if cfg.HealthStats != nil {
		healthHandler.WithStats(cfg.HealthStats)
	}
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	v1 := router.Group("/api/v1")
	v1.Use(middleware.Actor())
	if cfg.Idempotency != nil {
		v1.Use(middleware.Idempotency(cfg.Idempotency))
	}

	base := handlers.NewBaseHandler()
	registerJobRoutes(v1, base, cfg.Services)
	registerCostLineRoutes(v1, base, cfg.Services)
	registerStockRoutes(v1, base, cfg.Services)
	registerPurchaseOrderRoutes(v1, base, cfg.Services)
	registerReconcileRoutes(v1, base, cfg.Services)
	registerIntegrityRoutes(v1, base, cfg.Services, cfg.SweepRunner)
	registerReportRoutes(v1, base, cfg.Services)
	registerMetaRoutes(v1, base, cfg.MetadataRegistry)

	return router
}

// useJSONFieldNames makes validation errors name the JSON field, or the
// query field for query structs.
func useJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})
}
