// Package tx defines the transaction boundary used by the domain services.
// The ledger relies on it for atomic receipt undo, split/merge and delivery processing.
package tx

import (
	"context"
)

// Manager runs fn inside a transaction.
// If fn returns an error, every write made through ctx is rolled back.
// Nested calls reuse the transaction already carried by ctx.
type Manager interface {
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ReadOnlyManager extends Manager with read-only transactions,
// used by the reconciliation and integrity reads.
type ReadOnlyManager interface {
	Manager

	ReadOnly(ctx context.Context, fn func(ctx context.Context) error) error
}
