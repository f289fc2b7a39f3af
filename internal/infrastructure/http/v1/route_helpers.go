package v1

import (
	"github.com/gin-gonic/gin"

	"jobcost/internal/infrastructure/http/v1/handlers"
	"jobcost/internal/infrastructure/lock"
	"jobcost/internal/metadata"
)

// registerJobRoutes registers jobs and cost sets.
func registerJobRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	jobHandler := handlers.NewJobHandler(base, svc.Costing, svc.Allocation)
	jobs := rg.Group("/jobs")
	{
		jobs.GET("", jobHandler.List)
		jobs.POST("", jobHandler.Create)
		jobs.GET("/:id", jobHandler.Get)
		jobs.GET("/:id/summary", jobHandler.Summary)
		jobs.GET("/:id/cost-sets", jobHandler.ListCostSets)
		jobs.POST("/:id/quote/revise", jobHandler.ReviseQuote)
		jobs.POST("/:id/materials", jobHandler.DrawMaterial)
	}

	setHandler := handlers.NewCostSetHandler(base, svc.Costing, svc.Allocation)
	sets := rg.Group("/cost-sets")
	{
		sets.POST("", setHandler.Create)
		sets.GET("/:id", setHandler.Get)
		sets.POST("/:id/lines", setHandler.AddLine)
		sets.POST("/:id/recalculate", setHandler.Recalculate)
	}
}

// registerCostLineRoutes registers single line operations.
func registerCostLineRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	handler := handlers.NewCostSetHandler(base, svc.Costing, svc.Allocation)
	lines := rg.Group("/cost-lines")
	{
		lines.GET("/:id", handler.GetLine)
		lines.PUT("/:id", handler.UpdateLine)
		lines.DELETE("/:id", handler.DeleteLine)
		lines.POST("/:id/recreate", handler.RecreateLine)
		lines.POST("/:id/return", handler.ReturnMaterial)
		lines.POST("/:id/migrate-reference", handler.MigrateReference)
	}
}

// registerStockRoutes registers the stock register.
func registerStockRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	handler := handlers.NewStockHandler(base, svc.Stock)
	st := rg.Group("/stock")
	{
		st.GET("", handler.List)
		st.PUT("", handler.Upsert)
		st.GET("/conservation", handler.CheckConservation)
		st.POST("/merge", handler.Merge)
		st.POST("/movements/:id/undo", handler.Undo)
		st.GET("/:id", handler.Get)
		st.GET("/:id/movements", handler.Movements)
		st.POST("/:id/consume", handler.Consume)
		st.POST("/:id/adjust", handler.Adjust)
		st.POST("/:id/split", handler.Split)
		st.POST("/:id/deactivate", handler.Deactivate)
	}
}

// registerPurchaseOrderRoutes registers orders, deliveries and allocations.
func registerPurchaseOrderRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	handler := handlers.NewPurchaseOrderHandler(base, svc.Orders, svc.Allocation)
	orders := rg.Group("/purchase-orders")
	{
		orders.GET("", handler.List)
		orders.PUT("", handler.Save)
		orders.POST("/lines/:id/reverse", handler.ReverseReceipt)
		orders.GET("/:id", handler.Get)
		orders.POST("/:id/deliveries", handler.Deliver)
		orders.GET("/:id/allocations", handler.Allocations)
	}

	allocations := rg.Group("/allocations")
	{
		allocations.GET("/:id", handler.GetAllocation)
		allocations.DELETE("/:id", handler.DeleteAllocation)
	}
}

// registerReconcileRoutes registers the reconciliation matcher.
func registerReconcileRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	if svc.Reconcile == nil {
		return
	}
	handler := handlers.NewReconcileHandler(base, svc.Reconcile)
	rg.POST("/reconciliations", handler.Run)
	rg.GET("/reconciliations/export", handler.Export)
	rg.PUT("/ledger-snapshot", handler.ImportSnapshot)
}

// registerIntegrityRoutes registers the violation log.
func registerIntegrityRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services, runner lock.Runner) {
	if svc.Sweeper == nil || svc.Violations == nil {
		return
	}
	handler := handlers.NewIntegrityHandler(base, svc.Sweeper, svc.Violations, runner)
	rg.GET("/integrity/violations", handler.Violations)
	rg.POST("/integrity/sweeps", handler.Sweep)
}

// registerReportRoutes registers report endpoints.
func registerReportRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, svc Services) {
	if svc.Reports == nil {
		return
	}
	handler := handlers.NewReportsHandler(base, svc.Reports)
	rep := rg.Group("/reports")
	{
		rep.GET("/job-cost", handler.JobCost)
		rep.GET("/stock-valuation", handler.StockValuation)
	}
}

// registerMetaRoutes registers metadata/schema endpoints.
func registerMetaRoutes(rg *gin.RouterGroup, base *handlers.BaseHandler, registry *metadata.Registry) {
	if registry == nil {
		return
	}
	handler := handlers.NewMetadataHandler(base, registry)
	meta := rg.Group("/meta")
	{
		meta.GET("", handler.ListEntities)
		meta.GET("/cost-line-schemas", handler.CostLineSchemas)
		meta.GET("/:name", handler.GetEntity)
	}
}
