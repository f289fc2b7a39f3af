// Package main provides a CLI tool for seeding the database with demo data.
// Everything is created through the domain services, so the seeded data
// passes the same checks as API traffic.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"jobcost/internal/app"
	"jobcost/internal/config"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/allocation"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/reconcile"
	"jobcost/pkg/logger"
)

type staffMember struct {
	ID   id.ID
	Name string
}

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("failed to load config", "error", err)
	}

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to initialize application", "error", err)
	}
	defer application.Close()

	log.Infow("seeding demo data", "storage", cfg.Storage)
	if err := seedDemoData(ctx, application, log); err != nil {
		log.Fatalw("failed to seed demo data", "error", err)
	}
	log.Info("seed completed")
}

func seedDemoData(ctx context.Context, a *app.App, log *logger.Logger) error {
	day := time.Now().UTC().Truncate(24 * time.Hour)

	staff := []staffMember{
		{ID: id.New(), Name: "Dana Fitter"},
		{ID: id.New(), Name: "Sam Welder"},
	}
	for _, s := range staff {
		if err := a.AddStaff(ctx, s.ID, s.Name); err != nil {
			return fmt.Errorf("add staff %s: %w", s.Name, err)
		}
	}

	job, err := a.Costing.CreateJob(ctx, costing.CreateJobInput{Name: "Stainless balustrade", ClientName: "Harbour Apartments"})
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	log.Infow("job created", "job_number", job.Number)

	estimate := []costing.LineInput{
		{
			Kind:           costing.LineTime,
			Description:    "Fabrication",
			Quantity:       types.NewQuantity(24),
			UnitCost:       types.MustMoney("45.00"),
			UnitRevenue:    types.MustMoney("85.00"),
			AccountingDate: day,
			Meta:           entity.Attributes{"is_billable": true},
		},
		{
			Kind:           costing.LineMaterial,
			Description:    "Stainless sheet 304",
			Quantity:       types.NewQuantity(12),
			UnitCost:       types.MustMoney("12.50"),
			UnitRevenue:    types.MustMoney("18.00"),
			AccountingDate: day,
			Meta:           entity.Attributes{"item_code": "SS-304-A", "source": costing.SourcePurchase},
		},
		{
			Kind:           costing.LineAdjust,
			Description:    "Site allowance",
			Quantity:       types.NewQuantity(1),
			UnitCost:       types.MustMoney("150.00"),
			UnitRevenue:    types.MustMoney("200.00"),
			AccountingDate: day,
			Meta:           entity.Attributes{"reason": "access equipment"},
		},
	}
	for _, in := range estimate {
		if _, err := a.Costing.AddCostLine(ctx, job.LatestEstimateID, in); err != nil {
			return fmt.Errorf("add estimate line: %w", err)
		}
	}

	jobID := job.ID
	saved, err := a.Orders.SaveOrder(ctx, po.SaveOrderInput{
		Number:    fmt.Sprintf("PO-%d", job.Number),
		Supplier:  "Allied Metals",
		OrderDate: day,
		Lines: []po.LineInput{
			{ExternalLineID: "L1", Description: "Stainless sheet 304", ItemCode: "SS-304-A", Quantity: types.NewQuantity(12), UnitCost: types.MustMoney("12.50"), JobID: &jobID},
			{ExternalLineID: "L2", Description: "Handrail tube 42mm", ItemCode: "TB-42-S", Quantity: types.NewQuantity(6), UnitCost: types.MustMoney("31.20"), JobID: &jobID},
		},
	})
	if err != nil {
		return fmt.Errorf("save order: %w", err)
	}

	delivery, err := a.Orders.ProcessDelivery(ctx, saved.Order.ID, []po.DeliveryLine{
		{ExternalLineID: "L1", Quantity: types.NewQuantity(12)},
		{ExternalLineID: "L2", Quantity: types.NewQuantity(4)},
	})
	if err != nil {
		return fmt.Errorf("process delivery: %w", err)
	}
	log.Infow("delivery processed", "order", saved.Order.Number, "receipts", len(delivery.Receipts))

	for _, r := range delivery.Receipts {
		if r.ExternalLineID != "L1" {
			continue
		}
		drawn, err := a.Allocation.DrawMaterial(ctx, allocation.DrawInput{
			JobID:          job.ID,
			StockID:        r.StockID,
			Quantity:       types.NewQuantity(8),
			AccountingDate: day,
			Description:    "Stainless sheet 304",
			ConsumedBy:     staff[1].Name,
		})
		if err != nil {
			return fmt.Errorf("draw material: %w", err)
		}
		log.Infow("material drawn", "line_id", drawn.Line.ID, "movement_id", drawn.Movement.ID)
	}

	for _, s := range staff {
		_, err := a.Costing.AddCostLine(ctx, job.LatestActualID, costing.LineInput{
			Kind:           costing.LineTime,
			Description:    "Fabrication, " + s.Name,
			Quantity:       types.NewQuantity(10),
			UnitCost:       types.MustMoney("45.00"),
			UnitRevenue:    types.MustMoney("85.00"),
			AccountingDate: day,
			Meta:           entity.Attributes{"staff_id": s.ID.String(), "is_billable": true},
		})
		if err != nil {
			return fmt.Errorf("add actual time line: %w", err)
		}
	}

	n, err := a.Reconcile.ImportSnapshot(ctx, []reconcile.ExternalEntry{
		{
			ID:          fmt.Sprintf("GL-%d-1", job.Number),
			Reference:   saved.Order.Number,
			Description: fmt.Sprintf("Job %d stainless sheet", job.Number),
			Amount:      types.MustMoney("100.00"),
			Date:        day,
			Account:     "5100",
		},
		{
			ID:          fmt.Sprintf("GL-%d-2", job.Number),
			Description: fmt.Sprintf("Job %d labour", job.Number),
			Amount:      types.MustMoney("450.00"),
			Date:        day.AddDate(0, 0, 1),
			Account:     "5200",
		},
	})
	if err != nil {
		return fmt.Errorf("import ledger snapshot: %w", err)
	}
	log.Infow("ledger snapshot imported", "entries", n)

	summary, err := a.Costing.JobSummary(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("job summary: %w", err)
	}
	log.Infow("job summary",
		"estimate_cost", summary.Estimate.Cost.String(),
		"actual_cost", summary.Actual.Cost.String(),
		"profit", summary.Profit.String(),
	)
	return nil
}
