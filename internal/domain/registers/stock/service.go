package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/apperror"
	appctx "jobcost/internal/core/context"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/tx"
	"jobcost/internal/core/types"
	"jobcost/pkg/logger"
)

// maxParentDepth bounds the parent-chain walk used for cycle detection.
const maxParentDepth = 256

// Service is the only writer of the stock journal.
type Service struct {
	repo Repository
	txm  tx.Manager
	now  func() time.Time
}

// NewService creates a new stock ledger service.
func NewService(repo Repository, txm tx.Manager) *Service {
	return &Service{
		repo: repo,
		txm:  txm,
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the movement timestamp source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// UpsertStock finds or creates the stock row for itemCode.
// Identity is the normalized item code, never the description.
func (s *Service) UpsertStock(ctx context.Context, itemCode string, attrs StockAttrs) (*Stock, error) {
	code := NormalizeItemCode(itemCode)
	if code == "" {
		return nil, apperror.NewValidation("item code is required").WithDetail("field", "itemCode")
	}

	var out *Stock
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		existing, err := s.repo.GetByItemCodeForUpdate(ctx, code)
		if err != nil && !apperror.IsNotFound(err) {
			return fmt.Errorf("get stock %s: %w", code, err)
		}
		if existing != nil {
			if applyAttrs(existing, attrs) {
				if err := existing.Validate(ctx); err != nil {
					return err
				}
				existing.Touch()
				if err := s.repo.UpdateAttrs(ctx, existing); err != nil {
					return fmt.Errorf("update stock: %w", err)
				}
			}
			out = existing
			return nil
		}

		st := &Stock{
			BaseEntity:  entity.NewBaseEntity(),
			ItemCode:    code,
			UnitCost:    decimal.Zero,
			UnitRevenue: decimal.Zero,
			IsActive:    true,
		}
		applyAttrs(st, attrs)
		if err := st.Validate(ctx); err != nil {
			return err
		}

		if err := s.repo.Create(ctx, st); err != nil {
			if !apperror.IsCode(err, apperror.CodeDuplicate) {
				return fmt.Errorf("create stock: %w", err)
			}
			// Lost a race with another upsert of the same code.
			existing, err = s.repo.GetByItemCodeForUpdate(ctx, code)
			if err != nil {
				return fmt.Errorf("reload stock %s: %w", code, err)
			}
			out = existing
			return nil
		}

		logger.Info(ctx, "stock created", "stock_id", st.ID, "item_code", st.ItemCode)
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func applyAttrs(st *Stock, attrs StockAttrs) bool {
	changed := false
	if attrs.Description != nil && *attrs.Description != st.Description {
		st.Description = *attrs.Description
		changed = true
	}
	if attrs.UnitCost != nil && !attrs.UnitCost.Equal(st.UnitCost) {
		st.UnitCost = *attrs.UnitCost
		changed = true
	}
	if attrs.UnitRevenue != nil && !attrs.UnitRevenue.Equal(st.UnitRevenue) {
		st.UnitRevenue = *attrs.UnitRevenue
		changed = true
	}
	return changed
}

// Receive appends a receipt. It is the only operation that adds new quantity to the shop.
func (s *Service) Receive(ctx context.Context, stockID id.ID, quantity types.Quantity, unitCost types.Money, poLineID *id.ID) (*Movement, error) {
	if !quantity.IsPositive() {
		return nil, apperror.NewValidation("receipt quantity must be positive").WithDetail("field", "quantity")
	}
	if unitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost cannot be negative").WithDetail("field", "unitCost")
	}

	var out *Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}

		m := s.newMovement(ctx, st.ID, MovementReceipt, quantity)
		m.UnitCost = unitCost
		m.POLineID = poLineID

		prevQty, prevCost := st.Quantity, st.UnitCost
		if st.Quantity, err = s.repo.ApplyMovement(ctx, m); err != nil {
			return fmt.Errorf("apply receipt: %w", err)
		}

		st.UnitCost = weightedCost(prevQty, prevCost, quantity, unitCost)
		if st.SourcePOLineID == nil && poLineID != nil {
			st.SourcePOLineID = poLineID
		}
		st.IsActive = true
		st.Touch()
		if err := s.repo.UpdateAttrs(ctx, st); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		logger.Info(ctx, "stock received",
			"stock_id", st.ID,
			"item_code", st.ItemCode,
			"movement_id", m.ID,
			"quantity", quantity.String(),
		)
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// weightedCost is the moving-average unit cost after a receipt.
func weightedCost(onHand types.Quantity, cost types.Money, received types.Quantity, receivedCost types.Money) types.Money {
	if !onHand.IsPositive() {
		return receivedCost
	}
	total := onHand.Mul(cost).Add(received.Mul(receivedCost))
	return total.Div((onHand + received).Decimal()).Round(4)
}

// Consume draws quantity down for job work.
// It fails with INSUFFICIENT_STOCK rather than going negative.
func (s *Service) Consume(ctx context.Context, stockID id.ID, quantity types.Quantity, ref ConsumeRef) (*Movement, error) {
	if !quantity.IsPositive() {
		return nil, apperror.NewValidation("consume quantity must be positive").WithDetail("field", "quantity")
	}
	if id.IsNil(ref.JobID) {
		return nil, apperror.NewValidation("job reference is required").WithDetail("field", "jobId")
	}

	var out *Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		if st.Quantity < quantity {
			return apperror.NewInsufficientStock(st.ItemCode, quantity.String(), st.Quantity.String()).
				WithDetail("stock_id", st.ID)
		}

		m := s.newMovement(ctx, st.ID, MovementConsume, quantity.Neg())
		m.UnitCost = st.UnitCost
		m.JobID = id.Ptr(ref.JobID)
		m.CostLineID = ref.CostLineID
		m.Note = ref.Note

		if st.Quantity, err = s.repo.ApplyMovement(ctx, m); err != nil {
			return fmt.Errorf("apply consume: %w", err)
		}

		logger.Info(ctx, "stock consumed",
			"stock_id", st.ID,
			"item_code", st.ItemCode,
			"movement_id", m.ID,
			"job_id", ref.JobID,
			"quantity", quantity.String(),
		)
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Adjust appends a manual correction (stocktake, scrap). A reason is required.
func (s *Service) Adjust(ctx context.Context, stockID id.ID, delta types.Quantity, reason string) (*Movement, error) {
	if delta.IsZero() {
		return nil, apperror.NewValidation("adjustment cannot be zero").WithDetail("field", "delta")
	}
	if reason == "" {
		return nil, apperror.NewValidation("adjustment reason is required").WithDetail("field", "reason")
	}

	var out *Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		if (st.Quantity + delta).IsNegative() {
			return apperror.NewInsufficientStock(st.ItemCode, delta.Abs().String(), st.Quantity.String()).
				WithDetail("stock_id", st.ID)
		}

		m := s.newMovement(ctx, st.ID, MovementAdjust, delta)
		m.UnitCost = st.UnitCost
		m.Note = reason
		if _, err := s.repo.ApplyMovement(ctx, m); err != nil {
			return fmt.Errorf("apply adjustment: %w", err)
		}

		logger.Info(ctx, "stock adjusted", "stock_id", st.ID, "movement_id", m.ID, "delta", delta.String())
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReturnConsumption compensates a consume movement with an adjustment of the
// opposite sign. The consume movement itself stays in the journal.
func (s *Service) ReturnConsumption(ctx context.Context, consumeID id.ID, note string) (*Movement, error) {
	var out *Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetMovement(ctx, consumeID)
		if err != nil {
			return err
		}
		if m.Type != MovementConsume {
			return apperror.NewValidation("only consume movements can be returned").
				WithDetail("movement_id", m.ID).
				WithDetail("type", string(m.Type))
		}

		st, err := s.repo.GetForUpdate(ctx, m.StockID)
		if err != nil {
			return err
		}
		existing, err := s.repo.ListMovements(ctx, MovementFilter{ReversesID: &m.ID})
		if err != nil {
			return fmt.Errorf("list reversals: %w", err)
		}
		if len(existing) > 0 {
			return apperror.NewConflict("consumption already returned").
				WithDetail("movement_id", m.ID).
				WithDetail("reversal_id", existing[0].ID)
		}

		if note == "" {
			note = "return of " + m.ID.String()
		}
		r := s.newMovement(ctx, st.ID, MovementAdjust, m.Delta.Neg())
		r.UnitCost = m.UnitCost
		r.JobID = m.JobID
		r.ReversesID = id.Ptr(m.ID)
		r.Note = note
		if _, err := s.repo.ApplyMovement(ctx, r); err != nil {
			return fmt.Errorf("apply return: %w", err)
		}

		logger.Info(ctx, "consumption returned", "stock_id", st.ID, "movement_id", r.ID, "reverses_id", m.ID)
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// IsReversed reports whether a compensating movement exists for movementID.
func (s *Service) IsReversed(ctx context.Context, movementID id.ID) (bool, error) {
	ms, err := s.repo.ListMovements(ctx, MovementFilter{ReversesID: &movementID})
	if err != nil {
		return false, err
	}
	return len(ms) > 0, nil
}

// UndoReceipt removes a receipt movement and its quantity.
//
// The remaining journal is replayed in ledger order without the receipt; if
// the running balance dips below zero at any point, some later movement used
// the receipt's quantity and the undo fails with RECEIPT_IN_USE.
func (s *Service) UndoReceipt(ctx context.Context, movementID id.ID) (*Movement, error) {
	var out *Movement
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		m, err := s.repo.GetMovement(ctx, movementID)
		if err != nil {
			return err
		}
		if m.Type != MovementReceipt {
			return apperror.NewValidation("only receipt movements can be undone").
				WithDetail("movement_id", m.ID).
				WithDetail("type", string(m.Type))
		}

		st, err := s.repo.GetForUpdate(ctx, m.StockID)
		if err != nil {
			return err
		}

		journal, err := s.repo.ListMovements(ctx, MovementFilter{StockID: &st.ID})
		if err != nil {
			return fmt.Errorf("list movements: %w", err)
		}
		if !containsMovement(journal, m.ID) {
			return apperror.NewNotFound("stock movement", m.ID)
		}

		if _, low := Replay(journal, &m.ID); low.IsNegative() {
			return apperror.NewReceiptInUse(m.ID).
				WithDetail("stock_id", st.ID).
				WithDetail("item_code", st.ItemCode)
		}

		if st.Quantity, err = s.repo.RemoveMovement(ctx, m); err != nil {
			return fmt.Errorf("remove receipt: %w", err)
		}
		st.Touch()
		if err := s.repo.UpdateAttrs(ctx, st); err != nil {
			return fmt.Errorf("update stock: %w", err)
		}

		logger.Info(ctx, "receipt undone",
			"stock_id", st.ID,
			"movement_id", m.ID,
			"quantity", m.Delta.String(),
		)
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func containsMovement(ms []Movement, movementID id.ID) bool {
	for _, m := range ms {
		if m.ID == movementID {
			return true
		}
	}
	return false
}

// SplitInput moves part of a stock row onto another item code.
type SplitInput struct {
	SourceID    id.ID
	Quantity    types.Quantity
	ItemCode    string
	Description string
}

// TransferResult is the outcome of a split or merge.
type TransferResult struct {
	Source *Stock    `json:"source"`
	Target *Stock    `json:"target"`
	Out    *Movement `json:"out"`
	In     *Movement `json:"in"`
}

// Split moves quantity from the source row onto the row for in.ItemCode,
// creating it with the source as its parent when it does not exist.
func (s *Service) Split(ctx context.Context, in SplitInput) (*TransferResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("split quantity must be positive").WithDetail("field", "quantity")
	}
	code := NormalizeItemCode(in.ItemCode)
	if code == "" {
		return nil, apperror.NewValidation("target item code is required").WithDetail("field", "itemCode")
	}

	var out *TransferResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		src, err := s.repo.GetByID(ctx, in.SourceID)
		if err != nil {
			return err
		}
		if src.ItemCode == code {
			return apperror.NewValidation("split target must differ from source").WithDetail("field", "itemCode")
		}

		desc := in.Description
		if desc == "" {
			desc = src.Description
		}
		target, err := s.UpsertStock(ctx, code, StockAttrs{Description: &desc})
		if err != nil {
			return err
		}

		if target.SourceParentStockID == nil {
			cyclic, err := s.isAncestor(ctx, target.ID, src.ID)
			if err != nil {
				return err
			}
			if cyclic {
				return apperror.NewBusinessRule(apperror.CodeStockCycle, "split would create a parent cycle").
					WithDetail("source_id", src.ID).
					WithDetail("target_id", target.ID)
			}
			target.SourceParentStockID = id.Ptr(src.ID)
			if target.Quantity.IsZero() {
				target.UnitCost = src.UnitCost
				target.UnitRevenue = src.UnitRevenue
			}
			target.Touch()
			if err := s.repo.UpdateAttrs(ctx, target); err != nil {
				return fmt.Errorf("update split target: %w", err)
			}
		}

		out, err = s.transfer(ctx, src.ID, target.ID, in.Quantity, MovementSplit, "split to "+code)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MergeInput folds quantity of one stock row into another.
type MergeInput struct {
	SourceID id.ID
	TargetID id.ID
	Quantity types.Quantity
	Note     string
}

// Merge moves quantity between two existing rows.
func (s *Service) Merge(ctx context.Context, in MergeInput) (*TransferResult, error) {
	if !in.Quantity.IsPositive() {
		return nil, apperror.NewValidation("merge quantity must be positive").WithDetail("field", "quantity")
	}
	if in.SourceID == in.TargetID {
		return nil, apperror.NewValidation("merge source and target must differ")
	}

	var out *TransferResult
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.transfer(ctx, in.SourceID, in.TargetID, in.Quantity, MovementMerge, in.Note)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transfer appends the paired out/in movements. Both rows are locked in id
// order so concurrent transfers in opposite directions cannot deadlock.
func (s *Service) transfer(ctx context.Context, sourceID, targetID id.ID, qty types.Quantity, kind MovementType, note string) (*TransferResult, error) {
	first, second := sourceID, targetID
	if id.Less(second, first) {
		first, second = second, first
	}
	a, err := s.repo.GetForUpdate(ctx, first)
	if err != nil {
		return nil, err
	}
	b, err := s.repo.GetForUpdate(ctx, second)
	if err != nil {
		return nil, err
	}
	src, dst := a, b
	if src.ID != sourceID {
		src, dst = b, a
	}

	if src.Quantity < qty {
		return nil, apperror.NewInsufficientStock(src.ItemCode, qty.String(), src.Quantity.String()).
			WithDetail("stock_id", src.ID)
	}

	outM := s.newMovement(ctx, src.ID, kind, qty.Neg())
	outM.UnitCost = src.UnitCost
	outM.CounterpartStockID = id.Ptr(dst.ID)
	outM.Note = note

	inM := s.newMovement(ctx, dst.ID, kind, qty)
	inM.UnitCost = src.UnitCost
	inM.OccurredAt = outM.OccurredAt
	inM.CounterpartStockID = id.Ptr(src.ID)
	inM.Note = note

	if src.Quantity, err = s.repo.ApplyMovement(ctx, outM); err != nil {
		return nil, fmt.Errorf("apply %s out: %w", kind, err)
	}
	prevQty, prevCost := dst.Quantity, dst.UnitCost
	if dst.Quantity, err = s.repo.ApplyMovement(ctx, inM); err != nil {
		return nil, fmt.Errorf("apply %s in: %w", kind, err)
	}
	dst.UnitCost = weightedCost(prevQty, prevCost, qty, src.UnitCost)
	dst.IsActive = true
	dst.Touch()
	if err := s.repo.UpdateAttrs(ctx, dst); err != nil {
		return nil, fmt.Errorf("update target: %w", err)
	}

	logger.Info(ctx, "stock transferred",
		"type", string(kind),
		"source_id", src.ID,
		"target_id", dst.ID,
		"quantity", qty.String(),
	)
	return &TransferResult{Source: src, Target: dst, Out: outM, In: inM}, nil
}

// isAncestor reports whether candidate appears in the parent chain of start
// (start itself included).
func (s *Service) isAncestor(ctx context.Context, candidate, start id.ID) (bool, error) {
	cur := start
	for depth := 0; depth < maxParentDepth; depth++ {
		if cur == candidate {
			return true, nil
		}
		st, err := s.repo.GetByID(ctx, cur)
		if err != nil {
			if apperror.IsNotFound(err) {
				return false, nil
			}
			return false, err
		}
		if st.SourceParentStockID == nil {
			return false, nil
		}
		cur = *st.SourceParentStockID
	}
	return true, nil
}

// Deactivate soft-deletes an empty stock row. Rows are never hard-deleted.
func (s *Service) Deactivate(ctx context.Context, stockID id.ID) (*Stock, error) {
	var out *Stock
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		st, err := s.repo.GetForUpdate(ctx, stockID)
		if err != nil {
			return err
		}
		if !st.Quantity.IsZero() {
			return apperror.NewValidation("only empty stock can be deactivated").
				WithDetail("quantity", st.Quantity.String())
		}
		if st.IsActive {
			st.IsActive = false
			st.Touch()
			if err := s.repo.UpdateAttrs(ctx, st); err != nil {
				return fmt.Errorf("update stock: %w", err)
			}
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get returns a stock row.
func (s *Service) Get(ctx context.Context, stockID id.ID) (*Stock, error) {
	return s.repo.GetByID(ctx, stockID)
}

// GetByItemCode returns the stock row for a code.
func (s *Service) GetByItemCode(ctx context.Context, itemCode string) (*Stock, error) {
	return s.repo.GetByItemCode(ctx, NormalizeItemCode(itemCode))
}

// List returns stock rows.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Stock, error) {
	return s.repo.List(ctx, filter)
}

// GetMovement returns one journal entry.
func (s *Service) GetMovement(ctx context.Context, movementID id.ID) (*Movement, error) {
	return s.repo.GetMovement(ctx, movementID)
}

// ListMovements returns journal entries matching filter in ledger order.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	return s.repo.ListMovements(ctx, filter)
}

// Lock takes the row lock of a stock row until the caller's transaction ends.
func (s *Service) Lock(ctx context.Context, stockID id.ID) (*Stock, error) {
	return s.repo.GetForUpdate(ctx, stockID)
}

// History returns the journal of a stock row in ledger order.
func (s *Service) History(ctx context.Context, stockID id.ID) ([]Movement, error) {
	if _, err := s.repo.GetByID(ctx, stockID); err != nil {
		return nil, err
	}
	return s.repo.ListMovements(ctx, MovementFilter{StockID: &stockID})
}

// CheckConservation compares every stock quantity with the fold of its journal.
func (s *Service) CheckConservation(ctx context.Context) ([]Drift, error) {
	stocks, err := s.repo.List(ctx, ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("list stock: %w", err)
	}
	totals, err := s.repo.JournalTotals(ctx)
	if err != nil {
		return nil, fmt.Errorf("journal totals: %w", err)
	}

	var drifts []Drift
	for _, st := range stocks {
		if journal := totals[st.ID]; journal != st.Quantity {
			drifts = append(drifts, Drift{
				StockID:  st.ID,
				ItemCode: st.ItemCode,
				Quantity: st.Quantity,
				Journal:  journal,
			})
		}
	}
	return drifts, nil
}

func (s *Service) newMovement(ctx context.Context, stockID id.ID, kind MovementType, delta types.Quantity) *Movement {
	return &Movement{
		ID:         id.New(),
		StockID:    stockID,
		Type:       kind,
		Delta:      delta,
		UnitCost:   decimal.Zero,
		OccurredAt: s.now(),
		CreatedBy:  appctx.GetActorID(ctx),
	}
}
