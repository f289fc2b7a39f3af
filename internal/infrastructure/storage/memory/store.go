// Package memory is an in-process storage backend. One Store holds all
// tables; a transaction takes the store's write lock for its whole duration
// and restores a snapshot when it fails, so it is serializable by construction.
package memory

import (
	"context"
	"errors"
	"sync"

	"jobcost/internal/core/id"
	"jobcost/internal/core/tx"
	"jobcost/internal/domain/audit"
	"jobcost/internal/domain/costing"
	po "jobcost/internal/domain/documents/purchase_order"
	"jobcost/internal/domain/reconcile"
	"jobcost/internal/domain/registers/stock"
)

type (
	txKey struct{}
	roKey struct{}
)

var errReadOnly = errors.New("memory store: write inside a read-only transaction")

type state struct {
	stocks     map[id.ID]stock.Stock
	movements  map[id.ID]stock.Movement
	jobs       map[id.ID]costing.Job
	sets       map[id.ID]costing.CostSet
	lines      map[id.ID]costing.CostLine
	orders     map[id.ID]po.PurchaseOrder
	poLines    map[id.ID]po.Line
	audit      []audit.Entry
	violations map[string]*violationRow
	sequences  map[string]int64
	entries    map[string]reconcile.ExternalEntry
}

func newState() *state {
	return &state{
		stocks:     make(map[id.ID]stock.Stock),
		movements:  make(map[id.ID]stock.Movement),
		jobs:       make(map[id.ID]costing.Job),
		sets:       make(map[id.ID]costing.CostSet),
		lines:      make(map[id.ID]costing.CostLine),
		orders:     make(map[id.ID]po.PurchaseOrder),
		poLines:    make(map[id.ID]po.Line),
		violations: make(map[string]*violationRow),
		sequences:  make(map[string]int64),
		entries:    make(map[string]reconcile.ExternalEntry),
	}
}

// clone copies every table. Stored values are replaced, never mutated in
// place, so copying the maps is enough to roll back.
func (s *state) clone() *state {
	c := &state{
		stocks:     cloneMap(s.stocks),
		movements:  cloneMap(s.movements),
		jobs:       cloneMap(s.jobs),
		sets:       cloneMap(s.sets),
		lines:      cloneMap(s.lines),
		orders:     cloneMap(s.orders),
		poLines:    cloneMap(s.poLines),
		audit:      append([]audit.Entry(nil), s.audit...),
		violations: make(map[string]*violationRow, len(s.violations)),
		sequences:  cloneMap(s.sequences),
		entries:    cloneMap(s.entries),
	}
	for k, v := range s.violations {
		row := *v
		c.violations[k] = &row
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Store is the in-memory database. It implements tx.ReadOnlyManager.
type Store struct {
	mu   sync.RWMutex
	data *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

var _ tx.ReadOnlyManager = (*Store)(nil)

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

func (s *Store) inReadOnly(ctx context.Context) bool {
	owner, _ := ctx.Value(roKey{}).(*Store)
	return owner == s
}

// RunInTransaction runs fn holding the write lock. A nested call joins the
// outer transaction.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if s.inReadOnly(ctx) {
		return errReadOnly
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(context.WithValue(ctx, txKey{}, s))
}

// ReadOnly runs fn holding the read lock.
func (s *Store) ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) || s.inReadOnly(ctx) {
		return fn(ctx)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(context.WithValue(ctx, roKey{}, s))
}

func (s *Store) read(ctx context.Context, fn func(d *state) error) error {
	if !s.inTx(ctx) && !s.inReadOnly(ctx) {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}
	return fn(s.data)
}

func (s *Store) write(ctx context.Context, fn func(d *state) error) error {
	if s.inTx(ctx) {
		return fn(s.data)
	}
	if s.inReadOnly(ctx) {
		return errReadOnly
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsID(ids []id.ID, v id.ID) bool {
	for _, x := range ids {
		if x == v {
			return true
		}
	}
	return false
}
