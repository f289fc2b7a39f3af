package memory

import (
	"context"
	"time"

	appctx "jobcost/internal/core/context"
	"jobcost/internal/core/id"
	"jobcost/internal/domain/audit"
)

// AuditRecorder implements audit.Recorder.
type AuditRecorder struct {
	s *Store
}

// NewAuditRecorder creates an audit recorder on s.
func NewAuditRecorder(s *Store) *AuditRecorder {
	return &AuditRecorder{s: s}
}

var _ audit.Recorder = (*AuditRecorder)(nil)

// Record appends entry. Missing id, actor and timestamp are filled in.
func (r *AuditRecorder) Record(ctx context.Context, entry audit.Entry) error {
	if id.IsNil(entry.ID) {
		entry.ID = id.New()
	}
	if entry.ActorID == "" {
		entry.ActorID = appctx.GetActorID(ctx)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return r.s.write(ctx, func(d *state) error {
		d.audit = append(d.audit, entry)
		return nil
	})
}

// History returns the entries of one entity, newest first.
func (r *AuditRecorder) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]audit.Entry, error) {
	out := []audit.Entry{}
	err := r.s.read(ctx, func(d *state) error {
		for _, e := range d.audit {
			if e.EntityType == entityType && e.EntityID == entityID {
				out = append(out, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// Entries are appended in commit order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
