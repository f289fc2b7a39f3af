package allocation

import (
	"context"
	"fmt"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/tx"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/registers/stock"
	"jobcost/pkg/logger"
)

// Service resolves and maintains the PO line -> movement -> cost line chain.
type Service struct {
	stock   *stock.Service
	orders  *po.Service
	costing *costing.Service
	txm     tx.Manager
}

// NewService creates an allocation resolver.
func NewService(stockSvc *stock.Service, orders *po.Service, costingSvc *costing.Service, txm tx.Manager) *Service {
	return &Service{
		stock:   stockSvc,
		orders:  orders,
		costing: costingSvc,
		txm:     txm,
	}
}

// ListAllocations returns every receipt of the order's lines.
func (s *Service) ListAllocations(ctx context.Context, orderID id.ID) ([]Allocation, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if len(order.Lines) == 0 {
		return []Allocation{}, nil
	}

	lineIDs := make([]id.ID, 0, len(order.Lines))
	lines := make(map[id.ID]po.Line, len(order.Lines))
	for _, l := range order.Lines {
		lineIDs = append(lineIDs, l.ID)
		lines[l.ID] = l
	}

	receipts, err := s.stock.ListMovements(ctx, stock.MovementFilter{
		POLineIDs: lineIDs,
		Types:     []stock.MovementType{stock.MovementReceipt},
	})
	if err != nil {
		return nil, fmt.Errorf("list receipts: %w", err)
	}

	journals := make(map[id.ID][]stock.Movement)
	items := make(map[id.ID]string)
	out := make([]Allocation, 0, len(receipts))
	for _, r := range receipts {
		journal, ok := journals[r.StockID]
		if !ok {
			if journal, err = s.stock.History(ctx, r.StockID); err != nil {
				return nil, fmt.Errorf("stock history: %w", err)
			}
			journals[r.StockID] = journal
			st, err := s.stock.Get(ctx, r.StockID)
			if err != nil {
				return nil, err
			}
			items[r.StockID] = st.ItemCode
		}
		out = append(out, newAllocation(order.ID, lines[*r.POLineID], r, items[r.StockID], journal))
	}
	return out, nil
}

func newAllocation(orderID id.ID, line po.Line, receipt stock.Movement, itemCode string, journal []stock.Movement) Allocation {
	return Allocation{
		ID:             receipt.ID,
		OrderID:        orderID,
		POLineID:       line.ID,
		ExternalLineID: line.ExternalLineID,
		StockID:        receipt.StockID,
		ItemCode:       itemCode,
		Quantity:       receipt.Delta,
		UnitCost:       receipt.UnitCost,
		ReceivedAt:     receipt.OccurredAt,
		CanDelete:      len(stock.ConsumedAfter(receipt, journal)) == 0,
	}
}

// GetAllocationDetails returns one allocation with the consumptions that block it.
func (s *Service) GetAllocationDetails(ctx context.Context, allocationID id.ID) (*Detail, error) {
	receipt, line, err := s.resolve(ctx, allocationID)
	if err != nil {
		return nil, err
	}
	journal, err := s.stock.History(ctx, receipt.StockID)
	if err != nil {
		return nil, fmt.Errorf("stock history: %w", err)
	}
	st, err := s.stock.Get(ctx, receipt.StockID)
	if err != nil {
		return nil, err
	}

	consumed := stock.ConsumedAfter(*receipt, journal)
	d := &Detail{
		Allocation:   newAllocation(line.OrderID, *line, *receipt, st.ItemCode, journal),
		Consumptions: consumed,
		CostLineIDs:  []id.ID{},
	}
	if d.Consumptions == nil {
		d.Consumptions = []stock.Movement{}
	}
	for _, m := range consumed {
		if m.CostLineID != nil {
			d.CostLineIDs = append(d.CostLineIDs, *m.CostLineID)
		}
	}
	return d, nil
}

// DeleteAllocation undoes the receipt and takes the quantity back off the PO
// line. It fails with RECEIPT_IN_USE while any later consumption exists on
// the stock. The PO line is never deleted.
func (s *Service) DeleteAllocation(ctx context.Context, allocationID id.ID) error {
	return s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		receipt, line, err := s.resolve(ctx, allocationID)
		if err != nil {
			return err
		}

		// Lock the stock row before reading its journal.
		if _, err := s.stock.Lock(ctx, receipt.StockID); err != nil {
			return err
		}
		journal, err := s.stock.History(ctx, receipt.StockID)
		if err != nil {
			return fmt.Errorf("stock history: %w", err)
		}
		if consumed := stock.ConsumedAfter(*receipt, journal); len(consumed) > 0 {
			blocking := make([]string, 0, len(consumed))
			for _, m := range consumed {
				blocking = append(blocking, m.ID.String())
			}
			return apperror.NewReceiptInUse(receipt.ID).
				WithDetail("stock_id", receipt.StockID).
				WithDetail("consumptions", blocking)
		}

		if _, err := s.stock.UndoReceipt(ctx, receipt.ID); err != nil {
			return err
		}
		if _, err := s.orders.ReverseReceipt(ctx, line.ID, receipt.Delta); err != nil {
			return err
		}

		logger.Info(ctx, "allocation deleted",
			"allocation_id", receipt.ID,
			"po_line_id", line.ID,
			"stock_id", receipt.StockID,
			"quantity", receipt.Delta.String())
		return nil
	})
}

// resolve returns the receipt behind an allocation id and its PO line.
func (s *Service) resolve(ctx context.Context, allocationID id.ID) (*stock.Movement, *po.Line, error) {
	m, err := s.stock.GetMovement(ctx, allocationID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewNotFound("allocation", allocationID)
		}
		return nil, nil, err
	}
	if m.Type != stock.MovementReceipt || m.POLineID == nil {
		return nil, nil, apperror.NewNotFound("allocation", allocationID)
	}
	line, err := s.orders.GetLine(ctx, *m.POLineID)
	if err != nil {
		if apperror.IsNotFound(err) {
			return nil, nil, apperror.NewOrphanReference(audit.EntityStockMovement, m.ID, audit.EntityPOLine, *m.POLineID)
		}
		return nil, nil, err
	}
	return m, line, nil
}

// DrawMaterial consumes stock for a job and records the material line in the
// job's current actual set, bound to the consume movement.
func (s *Service) DrawMaterial(ctx context.Context, in DrawInput) (*DrawResult, error) {
	var out *DrawResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		job, err := s.costing.GetJob(ctx, in.JobID)
		if err != nil {
			return err
		}
		st, err := s.stock.Get(ctx, in.StockID)
		if err != nil {
			return err
		}

		lineID := id.New()
		m, err := s.stock.Consume(ctx, st.ID, in.Quantity, stock.ConsumeRef{
			JobID:      job.ID,
			CostLineID: id.Ptr(lineID),
			Note:       in.Description,
		})
		if err != nil {
			return err
		}

		revenue := st.UnitRevenue
		if in.UnitRevenue != nil {
			revenue = *in.UnitRevenue
		}
		desc := in.Description
		if desc == "" {
			desc = st.Description
		}

		meta := entity.Attributes{
			"item_code": st.ItemCode,
			"source":    costing.SourceStock,
		}
		if in.ConsumedBy != "" {
			meta["consumed_by"] = in.ConsumedBy
		}
		if in.Comments != "" {
			meta["comments"] = in.Comments
		}

		line, err := s.costing.AddCostLine(ctx, job.LatestActualID, costing.LineInput{
			ID:             id.Ptr(lineID),
			Kind:           costing.LineMaterial,
			Description:    desc,
			Quantity:       in.Quantity,
			UnitCost:       m.UnitCost,
			UnitRevenue:    revenue,
			AccountingDate: in.AccountingDate,
			Meta:           meta,
			ExtRefs:        costing.ExtRefs{StockMovementID: id.Ptr(m.ID)}.Attributes(),
		})
		if err != nil {
			return err
		}

		out = &DrawResult{Movement: m, Line: line}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReturnMaterial reverses the consumption behind a material line and removes
// the line.
func (s *Service) ReturnMaterial(ctx context.Context, lineID id.ID, note string) (*stock.Movement, error) {
	var out *stock.Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.costing.GetCostLine(ctx, lineID)
		if err != nil {
			return err
		}
		if line.ExtRefs.StockMovementID == nil {
			return apperror.NewValidation("cost line is not bound to a stock consumption").
				WithDetail("line_id", line.ID)
		}

		r, err := s.stock.ReturnConsumption(ctx, *line.ExtRefs.StockMovementID, note)
		if err != nil {
			return err
		}
		if err := s.costing.DeleteCostLine(ctx, line.ID); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MigrateLegacyReference materializes the consume movement for a line that
// still carries a direct stock_id and rewrites its ext_refs to point at it.
func (s *Service) MigrateLegacyReference(ctx context.Context, lineID id.ID, opts MigrateOptions) (*MigrationResult, error) {
	var out *MigrationResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.costing.GetCostLine(ctx, lineID)
		if err != nil {
			return err
		}
		refs := line.ExtRefs
		if refs.StockID != nil && refs.StockMovementID != nil {
			return apperror.NewAmbiguousReference(line.ID)
		}
		if refs.StockID == nil {
			return apperror.NewValidation("cost line carries no legacy stock reference").
				WithDetail("line_id", line.ID)
		}
		if line.Kind != costing.LineMaterial {
			return apperror.NewSchemaValidation(string(line.Kind), []string{"stock_id"},
				"stock references are only allowed on material lines")
		}

		set, err := s.costing.GetCostSet(ctx, line.CostSetID)
		if err != nil {
			return err
		}
		st, err := s.stock.Get(ctx, *refs.StockID)
		if err != nil {
			if apperror.IsNotFound(err) {
				return apperror.NewOrphanReference(audit.EntityCostLine, line.ID, audit.EntityStock, *refs.StockID)
			}
			return err
		}

		var offset *stock.Movement
		if opts.AlreadyDeducted {
			offset, err = s.stock.Adjust(ctx, st.ID, line.Quantity,
				"legacy deduction carried over for line "+line.ID.String())
			if err != nil {
				return err
			}
		}

		m, err := s.stock.Consume(ctx, st.ID, line.Quantity, stock.ConsumeRef{
			JobID:      set.JobID,
			CostLineID: id.Ptr(line.ID),
			Note:       "legacy reference migration",
		})
		if err != nil {
			return err
		}
		rewritten, err := s.costing.RewriteStockReference(ctx, line.ID, m.ID)
		if err != nil {
			return err
		}

		logger.Info(ctx, "legacy stock reference migrated",
			"line_id", line.ID,
			"stock_id", st.ID,
			"movement_id", m.ID,
			"already_deducted", opts.AlreadyDeducted)
		out = &MigrationResult{Movement: m, Offset: offset, Line: rewritten}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
