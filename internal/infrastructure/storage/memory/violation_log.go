package memory

import (
	"context"
	"sort"
	"time"

	"jobcost/internal/domain/integrity"
)

type violationRow struct {
	v          integrity.Violation
	firstSeen  time.Time
	lastSeen   time.Time
	resolvedAt *time.Time
}

// ViolationLog implements integrity.ViolationLog.
type ViolationLog struct {
	s *Store
}

// NewViolationLog creates a violation log on s.
func NewViolationLog(s *Store) *ViolationLog {
	return &ViolationLog{s: s}
}

var _ integrity.ViolationLog = (*ViolationLog)(nil)

// Upsert reopens a resolved violation when it is seen again.
func (l *ViolationLog) Upsert(ctx context.Context, v integrity.Violation) error {
	return l.s.write(ctx, func(d *state) error {
		key := v.Key()
		if row, ok := d.violations[key]; ok {
			first := row.firstSeen
			if row.resolvedAt != nil {
				first = v.DetectedAt
			}
			d.violations[key] = &violationRow{v: v, firstSeen: first, lastSeen: v.DetectedAt}
			return nil
		}
		d.violations[key] = &violationRow{v: v, firstSeen: v.DetectedAt, lastSeen: v.DetectedAt}
		return nil
	})
}

func (l *ViolationLog) ResolveUnseen(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	now := time.Now().UTC()
	err := l.s.write(ctx, func(d *state) error {
		for key, row := range d.violations {
			if row.resolvedAt != nil || !row.lastSeen.Before(since) {
				continue
			}
			resolved := *row
			resolved.resolvedAt = &now
			d.violations[key] = &resolved
			n++
		}
		return nil
	})
	return n, err
}

func (l *ViolationLog) ListOpen(ctx context.Context, limit int) ([]integrity.Violation, error) {
	var rows []violationRow
	err := l.s.read(ctx, func(d *state) error {
		for _, row := range d.violations {
			if row.resolvedAt == nil {
				rows = append(rows, *row)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].lastSeen.Equal(rows[j].lastSeen) {
			return rows[i].lastSeen.After(rows[j].lastSeen)
		}
		return rows[i].v.Key() < rows[j].v.Key()
	})
	out := make([]integrity.Violation, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.v)
	}
	return page(out, limit, 0), nil
}
