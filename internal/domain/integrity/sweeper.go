package integrity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/core/tx"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/registers/stock"
	"jobcost/pkg/logger"
)

// maxChainDepth bounds the parent walk for stock rows.
const maxChainDepth = 256

// Sweeper runs every integrity check and logs what it finds.
type Sweeper struct {
	costing *costing.Service
	stock   *stock.Service
	orders  *po.Service
	log     ViolationLog
	txm     tx.ReadOnlyManager
	now     func() time.Time
}

// NewSweeper creates a sweeper. Every check of one run reads the same
// snapshot taken through txm.
func NewSweeper(costingSvc *costing.Service, stockSvc *stock.Service, orders *po.Service, log ViolationLog, txm tx.ReadOnlyManager) *Sweeper {
	return &Sweeper{
		costing: costingSvc,
		stock:   stockSvc,
		orders:  orders,
		log:     log,
		txm:     txm,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sweep. The checks run in one read-only transaction; the
// violations are upserted afterwards and open violations that were not seen
// again are resolved.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	r := &Report{StartedAt: s.now(), Checked: map[string]int{}, Violations: []Violation{}}

	err := s.txm.ReadOnly(ctx, func(ctx context.Context) error {
		return s.check(ctx, r)
	})
	if err != nil {
		return nil, err
	}

	if err := s.record(ctx, r.Violations); err != nil {
		return nil, err
	}
	if r.Resolved, err = s.log.ResolveUnseen(ctx, r.StartedAt); err != nil {
		return nil, fmt.Errorf("resolve violations: %w", err)
	}
	r.FinishedAt = s.now()

	logger.Info(ctx, "integrity sweep finished",
		"violations", len(r.Violations),
		"resolved", r.Resolved,
		"lines", r.Checked["cost_lines"],
		"movements", r.Checked["stock_movements"],
		"duration", r.FinishedAt.Sub(r.StartedAt).String())
	return r, nil
}

func (s *Sweeper) check(ctx context.Context, r *Report) error {
	lines, err := s.costing.ListAllLines(ctx)
	if err != nil {
		return fmt.Errorf("list cost lines: %w", err)
	}
	movements, err := s.stock.ListMovements(ctx, stock.MovementFilter{})
	if err != nil {
		return fmt.Errorf("list movements: %w", err)
	}

	checks := []func(context.Context, *Report) error{
		func(ctx context.Context, r *Report) error { return s.checkLines(ctx, r, lines) },
		func(ctx context.Context, r *Report) error { return s.checkMovements(ctx, r, lines, movements) },
		s.checkConservation,
		s.checkParents,
		s.checkPOLines,
	}
	for _, check := range checks {
		if err := check(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sweeper) record(ctx context.Context, vs []Violation) error {
	if batch, ok := s.log.(BatchViolationLog); ok {
		if err := batch.UpsertMany(ctx, vs); err != nil {
			return fmt.Errorf("log violations: %w", err)
		}
		return nil
	}
	for _, v := range vs {
		if err := s.log.Upsert(ctx, v); err != nil {
			return fmt.Errorf("log violation %s: %w", v.Key(), err)
		}
	}
	return nil
}

func (s *Sweeper) add(r *Report, entityType string, entityID id.ID, err error) {
	v := Violation{
		EntityType: entityType,
		EntityID:   entityID,
		Code:       apperror.CodeInternal,
		Message:    err.Error(),
		DetectedAt: r.StartedAt,
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		v.Code = appErr.Code
		v.Message = appErr.Message
		v.Details = appErr.Details
	}
	v.Subject = subjectOf(v.Message, v.Details)
	r.Violations = append(r.Violations, v)
}

// checkLines re-validates meta and ext_refs of every line. The line kind is
// reported, never changed.
func (s *Sweeper) checkLines(ctx context.Context, r *Report, lines []costing.LineWithJob) error {
	for _, l := range lines {
		for _, err := range s.costing.ValidateStoredLine(ctx, l) {
			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				return fmt.Errorf("validate line %s: %w", l.ID, err)
			}
			s.add(r, audit.EntityCostLine, l.ID, err)
		}
	}
	r.Checked["cost_lines"] = len(lines)
	return nil
}

// checkMovements finds movements pointing at PO lines or cost lines that no
// longer exist.
func (s *Sweeper) checkMovements(ctx context.Context, r *Report, lines []costing.LineWithJob, movements []stock.Movement) error {
	lineIDs := make(map[id.ID]bool, len(lines))
	referenced := make(map[id.ID]bool)
	for _, l := range lines {
		lineIDs[l.ID] = true
		if l.ExtRefs.StockMovementID != nil {
			referenced[*l.ExtRefs.StockMovementID] = true
		}
	}
	reversed := make(map[id.ID]bool)
	for _, m := range movements {
		if m.ReversesID != nil {
			reversed[*m.ReversesID] = true
		}
	}

	var poLineIDs []id.ID
	for _, m := range movements {
		if m.Type == stock.MovementReceipt && m.POLineID != nil {
			poLineIDs = append(poLineIDs, *m.POLineID)
		}
	}
	existing := make(map[id.ID]bool)
	if len(poLineIDs) > 0 {
		found, err := s.orders.ListLines(ctx, po.LineFilter{IDs: poLineIDs})
		if err != nil {
			return fmt.Errorf("list po lines: %w", err)
		}
		for _, l := range found {
			existing[l.ID] = true
		}
	}

	for _, m := range movements {
		switch m.Type {
		case stock.MovementReceipt:
			if m.POLineID != nil && !existing[*m.POLineID] {
				s.add(r, audit.EntityStockMovement, m.ID,
					apperror.NewOrphanReference(audit.EntityStockMovement, m.ID, audit.EntityPOLine, *m.POLineID))
			}
		case stock.MovementConsume:
			if m.CostLineID == nil || lineIDs[*m.CostLineID] {
				continue
			}
			// A returned consumption or one still referenced through ext_refs is accounted for.
			if reversed[m.ID] || referenced[m.ID] {
				continue
			}
			s.add(r, audit.EntityStockMovement, m.ID,
				apperror.NewOrphanReference(audit.EntityStockMovement, m.ID, audit.EntityCostLine, *m.CostLineID))
		}
	}
	r.Checked["stock_movements"] = len(movements)
	return nil
}

func (s *Sweeper) checkConservation(ctx context.Context, r *Report) error {
	drifts, err := s.stock.CheckConservation(ctx)
	if err != nil {
		return fmt.Errorf("check conservation: %w", err)
	}
	for _, d := range drifts {
		s.add(r, audit.EntityStock, d.StockID,
			apperror.NewBusinessRule(apperror.CodeQuantityDrift, "stock quantity differs from its journal").
				WithDetail("item_code", d.ItemCode).
				WithDetail("quantity", d.Quantity.String()).
				WithDetail("journal", d.Journal.String()))
	}
	return nil
}

func (s *Sweeper) checkParents(ctx context.Context, r *Report) error {
	rows, err := s.stock.List(ctx, stock.ListFilter{})
	if err != nil {
		return fmt.Errorf("list stock: %w", err)
	}
	byID := make(map[id.ID]*stock.Stock, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}

	for _, st := range rows {
		if st.SourceParentStockID == nil {
			continue
		}
		if _, ok := byID[*st.SourceParentStockID]; !ok {
			s.add(r, audit.EntityStock, st.ID,
				apperror.NewOrphanReference(audit.EntityStock, st.ID, audit.EntityStock, *st.SourceParentStockID))
			continue
		}
		cur := st.SourceParentStockID
		for depth := 0; cur != nil; depth++ {
			if *cur == st.ID || depth >= maxChainDepth {
				s.add(r, audit.EntityStock, st.ID,
					apperror.NewBusinessRule(apperror.CodeStockCycle, "stock parent chain is cyclic").
						WithDetail("item_code", st.ItemCode))
				break
			}
			parent, ok := byID[*cur]
			if !ok {
				break
			}
			cur = parent.SourceParentStockID
		}
	}
	r.Checked["stock"] = len(rows)
	return nil
}

func (s *Sweeper) checkPOLines(ctx context.Context, r *Report) error {
	lines, err := s.orders.ListLines(ctx, po.LineFilter{MissingExternalID: true})
	if err != nil {
		return fmt.Errorf("list po lines: %w", err)
	}
	for _, l := range lines {
		s.add(r, audit.EntityPOLine, l.ID, apperror.NewMissingExternalID(l.LineNo).
			WithDetail("order_id", l.OrderID))
	}
	return nil
}
