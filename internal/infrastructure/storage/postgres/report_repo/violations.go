// Package report_repo stores the outputs of the background sweeps: the
// integrity violation log and the imported external ledger snapshot.
package report_repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"jobcost/internal/domain/integrity"
	"jobcost/internal/infrastructure/storage/postgres"
)

const violationsTable = "integrity_violations"

const upsertViolationSQL = `
	INSERT INTO integrity_violations
		(entity_type, entity_id, code, subject, message, details, detected_at, first_seen_at, last_seen_at, resolved_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $7, $7, NULL)
	ON CONFLICT (entity_type, entity_id, code, subject) DO UPDATE SET
		message = EXCLUDED.message,
		details = EXCLUDED.details,
		detected_at = EXCLUDED.detected_at,
		last_seen_at = EXCLUDED.last_seen_at,
		first_seen_at = CASE WHEN integrity_violations.resolved_at IS NULL
			THEN integrity_violations.first_seen_at ELSE EXCLUDED.first_seen_at END,
		resolved_at = NULL
`

// ViolationLog implements integrity.ViolationLog.
type ViolationLog struct {
	txm     *postgres.TxManager
	batch   *postgres.BatchInserter
	builder squirrel.StatementBuilderType
}

var (
	_ integrity.ViolationLog      = (*ViolationLog)(nil)
	_ integrity.BatchViolationLog = (*ViolationLog)(nil)
)

// NewViolationLog creates a violation log.
func NewViolationLog(txm *postgres.TxManager) *ViolationLog {
	return &ViolationLog{
		txm:     txm,
		batch:   postgres.NewBatchInserter(txm),
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func upsertArgs(v integrity.Violation) ([]any, error) {
	var details []byte
	if len(v.Details) > 0 {
		b, err := json.Marshal(v.Details)
		if err != nil {
			return nil, fmt.Errorf("marshal details of %s: %w", v.Key(), err)
		}
		details = b
	}
	return []any{v.EntityType, v.EntityID, v.Code, v.Subject, v.Message, details, v.DetectedAt}, nil
}

// Upsert records v. A resolved row seen again is reopened.
func (l *ViolationLog) Upsert(ctx context.Context, v integrity.Violation) error {
	args, err := upsertArgs(v)
	if err != nil {
		return err
	}
	if _, err := l.txm.GetQuerier(ctx).Exec(ctx, upsertViolationSQL, args...); err != nil {
		return fmt.Errorf("upsert violation: %w", err)
	}
	return nil
}

// UpsertMany records vs in one round trip.
func (l *ViolationLog) UpsertMany(ctx context.Context, vs []integrity.Violation) error {
	if len(vs) == 0 {
		return nil
	}
	return l.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		queries := make([]postgres.BatchQuery, 0, len(vs))
		for _, v := range vs {
			args, err := upsertArgs(v)
			if err != nil {
				return err
			}
			queries = append(queries, postgres.BatchQuery{SQL: upsertViolationSQL, Args: args})
		}
		return l.batch.ExecuteBatch(ctx, queries)
	})
}

func (l *ViolationLog) ResolveUnseen(ctx context.Context, since time.Time) (int64, error) {
	sql, args, err := l.builder.Update(violationsTable).
		Set("resolved_at", time.Now().UTC()).
		Where(squirrel.Eq{"resolved_at": nil}).
		Where(squirrel.Lt{"last_seen_at": since}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}
	tag, err := l.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("resolve violations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (l *ViolationLog) ListOpen(ctx context.Context, limit int) ([]integrity.Violation, error) {
	q := l.builder.Select("entity_type", "entity_id", "code", "subject", "message", "details", "detected_at").
		From(violationsTable).
		Where(squirrel.Eq{"resolved_at": nil}).
		OrderBy("last_seen_at DESC", "entity_type", "entity_id", "code", "subject")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	out := []integrity.Violation{}
	if err := pgxscan.Select(ctx, l.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		return nil, fmt.Errorf("select violations: %w", err)
	}
	return out, nil
}
