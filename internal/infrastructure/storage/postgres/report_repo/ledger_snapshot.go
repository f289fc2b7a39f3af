package report_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"jobcost/internal/domain/reconcile"
	"jobcost/internal/infrastructure/storage/postgres"
)

const (
	entriesTable = "ext_ledger_entries"
	stagingTable = "ext_ledger_entries_import"
)

var entryColumns = postgres.ExtractDBColumns[reconcile.ExternalEntry]()

// SnapshotStore implements reconcile.SnapshotStore. Imports are COPYed into
// a temporary table and merged by external id.
type SnapshotStore struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchInserter
	builder squirrel.StatementBuilderType
}

var _ reconcile.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a snapshot store.
func NewSnapshotStore(txm *postgres.TxManager) *SnapshotStore {
	return &SnapshotStore{
		txm:     txm,
		batch:   postgres.NewBatchInserter(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *SnapshotStore) ImportEntries(ctx context.Context, entries []reconcile.ExternalEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}

	var written int64
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.batch.CreateTempTable(ctx, stagingTable, entriesTable); err != nil {
			return err
		}

		rows := make([][]any, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []any{e.ID, e.Reference, e.Description, e.Amount, e.Date.UTC(), e.Account})
		}
		if _, err := s.batch.CopyFromSlice(ctx, stagingTable, entryColumns, rows); err != nil {
			return fmt.Errorf("copy ledger entries: %w", err)
		}

		tag, err := s.txm.GetQuerier(ctx).Exec(ctx, `
			INSERT INTO ext_ledger_entries (external_id, reference, description, amount, entry_date, account, imported_at)
			SELECT external_id, reference, description, amount, entry_date, account, now()
			FROM ext_ledger_entries_import
			ON CONFLICT (external_id) DO UPDATE SET
				reference = EXCLUDED.reference,
				description = EXCLUDED.description,
				amount = EXCLUDED.amount,
				entry_date = EXCLUDED.entry_date,
				account = EXCLUDED.account,
				imported_at = EXCLUDED.imported_at
		`)
		if err != nil {
			return fmt.Errorf("merge ledger entries: %w", err)
		}
		written = tag.RowsAffected()
		return nil
	})
	return written, err
}

// ListEntries returns entries dated within [from, to], whole days inclusive.
func (s *SnapshotStore) ListEntries(ctx context.Context, from, to time.Time) ([]reconcile.ExternalEntry, error) {
	sql, args, err := s.builder.Select(entryColumns...).From(entriesTable).
		Where(squirrel.GtOrEq{"entry_date": from.UTC().Format(time.DateOnly)}).
		Where(squirrel.LtOrEq{"entry_date": to.UTC().Format(time.DateOnly)}).
		OrderBy("entry_date", "external_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	out := []reconcile.ExternalEntry{}
	if err := pgxscan.Select(ctx, s.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select ledger entries: %w", err)
	}
	return out, nil
}
