// Package integrity re-validates stored data and logs every violation for
// human triage. It never repairs anything.
package integrity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
)

// Violation is one detected defect, keyed by (EntityType, EntityID, Code, Subject).
// Subject tells apart defects of the same code on one entity, such as a bad
// meta key and a bad ext_refs key on the same cost line.
type Violation struct {
	EntityType string         `db:"entity_type" json:"entityType"`
	EntityID   id.ID          `db:"entity_id" json:"entityId"`
	Code       string         `db:"code" json:"code"`
	Subject    string         `db:"subject" json:"subject"`
	Message    string         `db:"message" json:"message"`
	Details    map[string]any `db:"details" json:"details,omitempty"`
	DetectedAt time.Time      `db:"detected_at" json:"detectedAt"`
}

// Key identifies a violation across sweeps.
func (v Violation) Key() string {
	return v.EntityType + "/" + v.EntityID.String() + "/" + v.Code + "/" + v.Subject
}

// subjectOf derives a stable subject from the parts of an error that do not
// change between sweeps: the message and the offending keys or field.
func subjectOf(message string, details map[string]any) string {
	var b strings.Builder
	b.WriteString(message)
	if keys, ok := details["keys"].([]string); ok && len(keys) > 0 {
		sorted := append([]string(nil), keys...)
		sort.Strings(sorted)
		b.WriteString(" [" + strings.Join(sorted, ",") + "]")
	}
	if field := entity.Attributes(details).GetString("field"); field != "" {
		b.WriteString(" (" + field + ")")
	}
	if ref, ok := details["ref_id"]; ok {
		fmt.Fprintf(&b, " -> %v", ref)
	}
	return b.String()
}

// ViolationLog persists violations.
type ViolationLog interface {
	// Upsert records v, refreshing last-seen if the key already exists.
	Upsert(ctx context.Context, v Violation) error

	// ResolveUnseen closes open violations not seen since the given time.
	ResolveUnseen(ctx context.Context, since time.Time) (int64, error)

	// ListOpen returns unresolved violations, newest first.
	ListOpen(ctx context.Context, limit int) ([]Violation, error)
}

// BatchViolationLog is implemented by logs that can upsert a whole sweep at once.
type BatchViolationLog interface {
	UpsertMany(ctx context.Context, vs []Violation) error
}

// Report summarizes one sweep.
type Report struct {
	StartedAt  time.Time      `json:"startedAt"`
	FinishedAt time.Time      `json:"finishedAt"`
	Checked    map[string]int `json:"checked"`
	Violations []Violation    `json:"violations"`
	Resolved   int64          `json:"resolved"`
}

// CountByCode groups the violations of a report.
func (r *Report) CountByCode() map[string]int {
	out := make(map[string]int)
	for _, v := range r.Violations {
		out[v.Code]++
	}
	return out
}
