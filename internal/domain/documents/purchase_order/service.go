package purchase_order

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/numerator"
	"jobcost/internal/core/tx"
	"jobcost/internal/core/types"
	"jobcost/internal/domain"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/registers/stock"
	"jobcost/pkg/logger"
)

// StockReceiver is the part of the stock ledger used by deliveries.
// *stock.Service implements it.
type StockReceiver interface {
	UpsertStock(ctx context.Context, itemCode string, attrs stock.StockAttrs) (*stock.Stock, error)
	Receive(ctx context.Context, stockID id.ID, quantity types.Quantity, unitCost types.Money, poLineID *id.ID) (*stock.Movement, error)
}

// Service provides business operations for purchase orders.
type Service struct {
	repo      Repository
	stock     StockReceiver
	numerator numerator.Generator
	audit     audit.Recorder
	txManager tx.Manager
	hooks     *domain.HookRegistry[*SaveResult]
}

// NewService creates a new purchase order service.
func NewService(
	repo Repository,
	stockReceiver StockReceiver,
	numerator numerator.Generator,
	rec audit.Recorder,
	txManager tx.Manager,
) *Service {
	return &Service{
		repo:      repo,
		stock:     stockReceiver,
		numerator: numerator,
		audit:     rec,
		txManager: txManager,
		hooks:     domain.NewHookRegistry[*SaveResult](),
	}
}

// Hooks returns the hook registry for registering callbacks.
func (s *Service) Hooks() *domain.HookRegistry[*SaveResult] {
	return s.hooks
}

// LineInput is one line as sent by the upstream system.
type LineInput struct {
	ExternalLineID string
	Description    string
	ItemCode       string
	Quantity       types.Quantity
	UnitCost       types.Money
	JobID          *id.ID
}

// SaveOrderInput is a full order as sent by the upstream system.
type SaveOrderInput struct {
	Number    string
	Supplier  string
	OrderDate time.Time
	Lines     []LineInput
}

// SaveResult is the saved order and what changed.
type SaveResult struct {
	Order  *PurchaseOrder `json:"order"`
	Report SyncReport     `json:"report"`
}

// SaveOrder creates or updates the order with in.Number. Lines are matched by
// ExternalLineID only: a matching id is updated in place, a new id is added and
// a vanished id is removed unless it already has receipts.
func (s *Service) SaveOrder(ctx context.Context, in SaveOrderInput) (*SaveResult, error) {
	incoming := &PurchaseOrder{
		Number:    strings.TrimSpace(in.Number),
		Supplier:  strings.TrimSpace(in.Supplier),
		OrderDate: in.OrderDate,
	}
	for _, li := range in.Lines {
		incoming.Lines = append(incoming.Lines, Line{
			ExternalLineID: strings.TrimSpace(li.ExternalLineID),
			Description:    li.Description,
			ItemCode:       stock.NormalizeItemCode(li.ItemCode),
			Quantity:       li.Quantity,
			UnitCost:       li.UnitCost,
			JobID:          li.JobID,
		})
	}

	if incoming.Number == "" {
		n, err := s.numerator.NextNumber(ctx, numerator.Config{Sequence: NumberSequence, Start: 1},
			&numerator.Options{Strategy: NumeratorStrategy})
		if err != nil {
			return nil, fmt.Errorf("generate number: %w", err)
		}
		incoming.Number = NumberPrefix + strconv.FormatInt(n, 10)
	}
	if err := incoming.Validate(ctx); err != nil {
		return nil, err
	}

	var result *SaveResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByNumber(ctx, incoming.Number)
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("get order: %w", err)
		}

		if existing == nil {
			result, err = s.create(ctx, incoming)
		} else {
			result, err = s.sync(ctx, existing.ID, incoming)
		}
		if err != nil {
			return err
		}
		return s.hooks.Run(ctx, domain.BeforeSave, result)
	})
	if err != nil {
		return nil, err
	}

	if err := s.hooks.Run(ctx, domain.AfterSave, result); err != nil {
		logger.Warn(ctx, "after-save hook failed", "error", err)
	}

	logger.Info(ctx, "purchase order saved",
		"id", result.Order.ID,
		"number", result.Order.Number,
		"created", result.Report.Created,
		"updated_lines", len(result.Report.Updated),
		"structural_changes", len(result.Report.StructuralChanges))

	return result, nil
}

func (s *Service) create(ctx context.Context, incoming *PurchaseOrder) (*SaveResult, error) {
	po := &PurchaseOrder{
		BaseEntity: entity.NewBaseEntity(),
		Number:     incoming.Number,
		Supplier:   incoming.Supplier,
		OrderDate:  incoming.OrderDate,
		Status:     StatusOpen,
	}
	if err := s.repo.Create(ctx, po); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	report := SyncReport{Created: true}
	now := time.Now().UTC()
	for i, l := range incoming.Lines {
		line := l
		line.ID = id.New()
		line.OrderID = po.ID
		line.LineNo = i + 1
		line.CreatedAt, line.UpdatedAt = now, now
		if err := s.repo.CreateLine(ctx, &line); err != nil {
			return nil, fmt.Errorf("create line %s: %w", line.ExternalLineID, err)
		}
		po.Lines = append(po.Lines, line)
	}

	if err := s.record(ctx, audit.EntityPurchaseOrder, po.ID, audit.ActionCreate, map[string]any{
		"number": po.Number,
		"lines":  len(po.Lines),
	}); err != nil {
		return nil, err
	}
	return &SaveResult{Order: po, Report: report}, nil
}

func (s *Service) sync(ctx context.Context, orderID id.ID, incoming *PurchaseOrder) (*SaveResult, error) {
	po, err := s.repo.GetForUpdate(ctx, orderID)
	if err != nil {
		return nil, err
	}
	current, err := s.repo.GetLines(ctx, po.ID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	po.Lines = current

	report := SyncReport{}
	now := time.Now().UTC()
	wanted := make(map[string]bool, len(incoming.Lines))
	var removed []StructuralChange

	// Vanished lines first, so a blocked removal fails before anything is written.
	for _, inLine := range incoming.Lines {
		wanted[inLine.ExternalLineID] = true
	}
	for _, cur := range current {
		if wanted[cur.ExternalLineID] {
			continue
		}
		if cur.ReceivedQuantity.IsPositive() {
			return nil, apperror.NewStructuralChange(cur.ExternalLineID,
				"line with receipts disappeared from the order; deliveries would be orphaned").
				WithDetail("line_id", cur.ID).
				WithDetail("received", cur.ReceivedQuantity.String())
		}
		removed = append(removed, StructuralChange{
			Type:           ChangeRemoved,
			ExternalLineID: cur.ExternalLineID,
			LineID:         cur.ID,
			Description:    cur.Description,
			ItemCode:       cur.ItemCode,
		})
	}

	var kept []Line
	maxLineNo := 0
	for _, cur := range current {
		if cur.LineNo > maxLineNo {
			maxLineNo = cur.LineNo
		}
	}
	for _, rc := range removed {
		if err := s.repo.DeleteLine(ctx, rc.LineID); err != nil {
			return nil, fmt.Errorf("delete line %s: %w", rc.ExternalLineID, err)
		}
		report.StructuralChanges = append(report.StructuralChanges, rc)
	}

	for _, inLine := range incoming.Lines {
		cur, ok := po.LineByExternalID(inLine.ExternalLineID)
		if !ok {
			maxLineNo++
			line := inLine
			line.ID = id.New()
			line.OrderID = po.ID
			line.LineNo = maxLineNo
			line.CreatedAt, line.UpdatedAt = now, now
			if err := s.repo.CreateLine(ctx, &line); err != nil {
				return nil, fmt.Errorf("create line %s: %w", line.ExternalLineID, err)
			}
			kept = append(kept, line)
			report.StructuralChanges = append(report.StructuralChanges, StructuralChange{
				Type:                   ChangeAdded,
				ExternalLineID:         line.ExternalLineID,
				LineID:                 line.ID,
				Description:            line.Description,
				ItemCode:               line.ItemCode,
				ReplacesExternalLineID: lookalike(removed, line),
			})
			continue
		}

		updated := *cur
		if cur.ReceivedQuantity.IsPositive() && inLine.ItemCode != cur.ItemCode {
			return nil, apperror.NewStructuralChange(cur.ExternalLineID,
				"item code of a line with receipts cannot change").
				WithDetail("line_id", cur.ID).
				WithDetail("from", cur.ItemCode).
				WithDetail("to", inLine.ItemCode)
		}
		updated.Description = inLine.Description
		updated.ItemCode = inLine.ItemCode
		updated.Quantity = inLine.Quantity
		updated.UnitCost = inLine.UnitCost
		updated.JobID = inLine.JobID

		if lineChanged(*cur, updated) {
			updated.UpdatedAt = now
			if err := s.repo.UpdateLine(ctx, &updated); err != nil {
				return nil, fmt.Errorf("update line %s: %w", updated.ExternalLineID, err)
			}
			report.Updated = append(report.Updated, updated.ExternalLineID)
		}
		kept = append(kept, updated)
	}

	po.Lines = kept
	po.Supplier = incoming.Supplier
	po.OrderDate = incoming.OrderDate
	po.RecalculateStatus()
	if err := po.Validate(ctx); err != nil {
		return nil, err
	}
	po.Touch()
	if err := s.repo.Update(ctx, po); err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}

	for _, sc := range report.StructuralChanges {
		logger.Warn(ctx, "purchase order line structural change",
			"order_id", po.ID,
			"type", string(sc.Type),
			"external_line_id", sc.ExternalLineID,
			"replaces", sc.ReplacesExternalLineID)
	}

	if len(report.Updated) > 0 || report.HasStructuralChanges() {
		if err := s.record(ctx, audit.EntityPurchaseOrder, po.ID, audit.ActionUpdate, map[string]any{
			"updated":            report.Updated,
			"structural_changes": len(report.StructuralChanges),
		}); err != nil {
			return nil, err
		}
	}
	return &SaveResult{Order: po, Report: report}, nil
}

func lineChanged(a, b Line) bool {
	return a.Description != b.Description ||
		a.ItemCode != b.ItemCode ||
		a.Quantity != b.Quantity ||
		!a.UnitCost.Equal(b.UnitCost) ||
		!id.Equal(a.JobID, b.JobID)
}

// lookalike returns the external id of a removed line that the added one
// probably replaces.
func lookalike(removed []StructuralChange, added Line) string {
	for _, rc := range removed {
		if rc.ItemCode == added.ItemCode && strings.EqualFold(strings.TrimSpace(rc.Description), strings.TrimSpace(added.Description)) {
			return rc.ExternalLineID
		}
	}
	return ""
}

// DeliveryLine is one delivered line of a delivery note.
type DeliveryLine struct {
	ExternalLineID string
	Quantity       types.Quantity
	// UnitCost overrides the ordered unit cost when the invoice differs.
	UnitCost *types.Money
}

// Receipt is the ledger movement produced for one delivered line.
type Receipt struct {
	LineID         id.ID          `json:"lineId"`
	ExternalLineID string         `json:"externalLineId"`
	StockID        id.ID          `json:"stockId"`
	MovementID     id.ID          `json:"movementId"`
	Quantity       types.Quantity `json:"quantity"`
}

// DeliveryResult is the order after a delivery and the receipts it produced.
type DeliveryResult struct {
	Order    *PurchaseOrder `json:"order"`
	Receipts []Receipt      `json:"receipts"`
}

// ProcessDelivery upserts stock for every delivered line, appends a receipt
// linked to the PO line and updates the received quantities. The whole
// delivery is applied or nothing is.
func (s *Service) ProcessDelivery(ctx context.Context, orderID id.ID, delivery []DeliveryLine) (*DeliveryResult, error) {
	if len(delivery) == 0 {
		return nil, apperror.NewValidation("delivery has no lines").WithDetail("field", "lines")
	}

	var result *DeliveryResult
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		po, err := s.repo.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if po.Lines, err = s.repo.GetLines(ctx, po.ID); err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		result = &DeliveryResult{Order: po}
		for i, d := range delivery {
			if d.ExternalLineID == "" {
				return apperror.NewMissingExternalID(i + 1)
			}
			line, ok := po.LineByExternalID(d.ExternalLineID)
			if !ok {
				return apperror.NewNotFound("purchase order line", d.ExternalLineID)
			}
			if !d.Quantity.IsPositive() {
				return apperror.NewValidation("delivered quantity must be positive").
					WithDetail("field", "lines").
					WithDetail("lineNo", i+1)
			}
			if d.Quantity > line.Outstanding() {
				return apperror.NewValidation("delivery exceeds the outstanding quantity").
					WithDetail("externalLineId", line.ExternalLineID).
					WithDetail("outstanding", line.Outstanding().String()).
					WithDetail("delivered", d.Quantity.String())
			}

			unitCost := line.UnitCost
			if d.UnitCost != nil {
				unitCost = *d.UnitCost
			}

			desc := line.Description
			st, err := s.stock.UpsertStock(ctx, line.ItemCode, stock.StockAttrs{Description: &desc})
			if err != nil {
				return err
			}
			m, err := s.stock.Receive(ctx, st.ID, d.Quantity, unitCost, id.Ptr(line.ID))
			if err != nil {
				return err
			}

			line.ReceivedQuantity += d.Quantity
			line.UpdatedAt = time.Now().UTC()
			if err := s.repo.UpdateLine(ctx, line); err != nil {
				return fmt.Errorf("update line %s: %w", line.ExternalLineID, err)
			}
			result.Receipts = append(result.Receipts, Receipt{
				LineID:         line.ID,
				ExternalLineID: line.ExternalLineID,
				StockID:        st.ID,
				MovementID:     m.ID,
				Quantity:       d.Quantity,
			})
		}

		po.RecalculateStatus()
		po.Touch()
		if err := s.repo.Update(ctx, po); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "delivery processed",
		"order_id", result.Order.ID,
		"number", result.Order.Number,
		"receipts", len(result.Receipts),
		"status", string(result.Order.Status))

	return result, nil
}

// ReverseReceipt takes quantity back off a line after its receipt was undone.
// The line itself is never deleted.
func (s *Service) ReverseReceipt(ctx context.Context, lineID id.ID, quantity types.Quantity) (*Line, error) {
	var out *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		line, err := s.repo.GetLine(ctx, lineID)
		if err != nil {
			return err
		}
		po, err := s.repo.GetForUpdate(ctx, line.OrderID)
		if err != nil {
			return err
		}
		if po.Lines, err = s.repo.GetLines(ctx, po.ID); err != nil {
			return fmt.Errorf("get lines: %w", err)
		}

		for i := range po.Lines {
			if po.Lines[i].ID != lineID {
				continue
			}
			l := &po.Lines[i]
			if l.ReceivedQuantity < quantity {
				return apperror.NewBusinessRule(apperror.CodeQuantityDrift,
					"line received quantity is lower than the receipt being reversed").
					WithDetail("line_id", l.ID).
					WithDetail("received", l.ReceivedQuantity.String()).
					WithDetail("reversed", quantity.String())
			}
			l.ReceivedQuantity -= quantity
			l.UpdatedAt = time.Now().UTC()
			if err := s.repo.UpdateLine(ctx, l); err != nil {
				return fmt.Errorf("update line: %w", err)
			}
			out = l
		}
		if out == nil {
			return apperror.NewNotFound("purchase order line", lineID)
		}

		po.RecalculateStatus()
		po.Touch()
		if err := s.repo.Update(ctx, po); err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		return s.record(ctx, audit.EntityPOLine, lineID, audit.ActionUndo, map[string]any{
			"reversed": quantity.String(),
			"received": out.ReceivedQuantity.String(),
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID retrieves an order with lines.
func (s *Service) GetByID(ctx context.Context, orderID id.ID) (*PurchaseOrder, error) {
	po, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	lines, err := s.repo.GetLines(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get lines: %w", err)
	}
	po.Lines = lines

	return po, nil
}

// GetLine retrieves one line.
func (s *Service) GetLine(ctx context.Context, lineID id.ID) (*Line, error) {
	return s.repo.GetLine(ctx, lineID)
}

// ListLines retrieves lines across orders.
func (s *Service) ListLines(ctx context.Context, filter LineFilter) ([]Line, error) {
	return s.repo.ListLines(ctx, filter)
}

// List retrieves orders with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*PurchaseOrder], error) {
	filter.ListFilter = filter.ListFilter.Normalize()
	return s.repo.List(ctx, filter)
}

func (s *Service) record(ctx context.Context, entityType string, entityID id.ID, action audit.Action, changes map[string]any) error {
	if s.audit == nil {
		return nil
	}
	if err := s.audit.Record(ctx, audit.Entry{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    changes,
	}); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
