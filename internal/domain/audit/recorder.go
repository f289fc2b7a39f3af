// Package audit defines the audit trail written by the domain services.
package audit

import (
	"context"
	"fmt"
	"time"

	"jobcost/internal/core/id"
)

// Action is the audited operation.
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionRecreate Action = "recreate"
	ActionMigrate  Action = "migrate"
	ActionUndo     Action = "undo"
)

// Entity types used in audit entries and the violation log.
const (
	EntityJob           = "job"
	EntityCostSet       = "cost_set"
	EntityCostLine      = "cost_line"
	EntityStock         = "stock"
	EntityStockMovement = "stock_movement"
	EntityPurchaseOrder = "purchase_order"
	EntityPOLine        = "purchase_order_line"
)

// Entry is one audit record.
type Entry struct {
	ID         id.ID          `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   id.ID          `json:"entityId"`
	Action     Action         `json:"action"`
	ActorID    string         `json:"actorId"`
	Changes    map[string]any `json:"changes,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// Recorder persists audit entries in the caller's transaction.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
	History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]Entry, error)
}

// Diff returns the fields that differ between two states as {old, new} pairs.
func Diff(oldState, newState map[string]any) map[string]any {
	changes := make(map[string]any)

	for key, newVal := range newState {
		oldVal, exists := oldState[key]
		if !exists {
			changes[key] = map[string]any{"old": nil, "new": newVal}
		} else if !equal(oldVal, newVal) {
			changes[key] = map[string]any{"old": oldVal, "new": newVal}
		}
	}

	for key, oldVal := range oldState {
		if _, exists := newState[key]; !exists {
			changes[key] = map[string]any{"old": oldVal, "new": nil}
		}
	}

	return changes
}

func equal(a, b any) bool {
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
