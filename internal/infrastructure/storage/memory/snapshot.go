package memory

import (
	"context"
	"sort"
	"time"

	"jobcost/internal/domain/reconcile"
)

// SnapshotStore implements reconcile.SnapshotStore.
type SnapshotStore struct {
	s *Store
}

// NewSnapshotStore creates a snapshot store on s.
func NewSnapshotStore(s *Store) *SnapshotStore {
	return &SnapshotStore{s: s}
}

var _ reconcile.SnapshotStore = (*SnapshotStore)(nil)

func (ss *SnapshotStore) ImportEntries(ctx context.Context, entries []reconcile.ExternalEntry) (int64, error) {
	err := ss.s.write(ctx, func(d *state) error {
		for _, e := range entries {
			d.entries[e.ID] = e
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int64(len(entries)), nil
}

// ListEntries returns entries dated within [from, to] by calendar day.
func (ss *SnapshotStore) ListEntries(ctx context.Context, from, to time.Time) ([]reconcile.ExternalEntry, error) {
	start := truncateDay(from)
	end := truncateDay(to)
	out := []reconcile.ExternalEntry{}
	err := ss.s.read(ctx, func(d *state) error {
		for _, e := range d.entries {
			day := truncateDay(e.Date)
			if day.Before(start) || day.After(end) {
				continue
			}
			out = append(out, e)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
