package main

import (
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/registers/stock"
	"jobcost/internal/metadata"
)

// setupMetadataRegistry initializes and populates the metadata registry.
func setupMetadataRegistry(lineSchemas *costing.Registry) *metadata.Registry {
	reg := metadata.NewRegistry()

	register := func(entity any, name string, typ metadata.EntityType, label string) {
		def := metadata.Inspect(entity, name, typ)
		def.Label = label
		reg.Register(def)
	}

	register(stock.Stock{}, "Stock", metadata.TypeRegister, "Stock")
	register(stock.Movement{}, "StockMovement", metadata.TypeRegister, "Stock movements")
	register(costing.Job{}, "Job", metadata.TypeCosting, "Jobs")
	register(costing.CostSet{}, "CostSet", metadata.TypeCosting, "Cost sets")
	register(costing.CostLine{}, "CostLine", metadata.TypeCosting, "Cost lines")
	register(po.PurchaseOrder{}, "PurchaseOrder", metadata.TypeDocument, "Purchase orders")

	metadata.RegisterCostLineSchemas(reg, lineSchemas)
	return reg
}
