// Package costing holds jobs, their estimate/quote/actual cost sets and the
// priced cost lines inside them.
package costing

import (
	"context"
	"strconv"
	"time"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/entity"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
)

// SetKind is the lifecycle snapshot a cost set belongs to.
type SetKind string

const (
	SetEstimate SetKind = "estimate"
	SetQuote    SetKind = "quote"
	SetActual   SetKind = "actual"
)

// SetKinds lists every kind in creation order.
var SetKinds = []SetKind{SetEstimate, SetQuote, SetActual}

// Valid reports whether k is a known set kind.
func (k SetKind) Valid() bool {
	return k == SetEstimate || k == SetQuote || k == SetActual
}

// LineKind selects the meta schema of a cost line.
type LineKind string

const (
	LineTime     LineKind = "time"
	LineMaterial LineKind = "material"
	LineAdjust   LineKind = "adjust"
)

// Valid reports whether k is a known line kind.
func (k LineKind) Valid() bool {
	return k == LineTime || k == LineMaterial || k == LineAdjust
}

// Job owns one latest cost set per kind.
type Job struct {
	entity.BaseEntity

	Number     int64  `db:"job_number" json:"jobNumber"`
	Name       string `db:"name" json:"name"`
	ClientName string `db:"client_name" json:"clientName,omitempty"`

	LatestEstimateID id.ID `db:"latest_estimate_id" json:"latestEstimateId"`
	LatestQuoteID    id.ID `db:"latest_quote_id" json:"latestQuoteId"`
	LatestActualID   id.ID `db:"latest_actual_id" json:"latestActualId"`
}

// NumberString is the job number as it appears in external descriptions.
func (j *Job) NumberString() string {
	return strconv.FormatInt(j.Number, 10)
}

// LatestSetID returns the current cost set of a kind.
func (j *Job) LatestSetID(kind SetKind) id.ID {
	switch kind {
	case SetEstimate:
		return j.LatestEstimateID
	case SetQuote:
		return j.LatestQuoteID
	case SetActual:
		return j.LatestActualID
	}
	return id.Nil()
}

func (j *Job) setLatest(kind SetKind, setID id.ID) {
	switch kind {
	case SetEstimate:
		j.LatestEstimateID = setID
	case SetQuote:
		j.LatestQuoteID = setID
	case SetActual:
		j.LatestActualID = setID
	}
}

// Validate checks Job invariants.
func (j *Job) Validate(_ context.Context) error {
	if j.Name == "" {
		return apperror.NewValidation("job name is required").WithDetail("field", "name")
	}
	if j.Number <= 0 {
		return apperror.NewValidation("job number must be positive").WithDetail("field", "jobNumber")
	}
	return nil
}

// Summary is derived from the lines of a cost set; it is never patched incrementally.
type Summary struct {
	Cost      types.Money    `json:"cost"`
	Revenue   types.Money    `json:"revenue"`
	Hours     types.Quantity `json:"hours"`
	LineCount int            `json:"lineCount"`
}

// Equal compares two summaries by value.
func (s Summary) Equal(o Summary) bool {
	return s.Cost.Equal(o.Cost) && s.Revenue.Equal(o.Revenue) && s.Hours == o.Hours && s.LineCount == o.LineCount
}

// CostSet is one revision of a job's costs for one kind.
type CostSet struct {
	ID        id.ID     `json:"id"`
	JobID     id.ID     `json:"jobId"`
	Kind      SetKind   `json:"kind"`
	Revision  int       `json:"revision"`
	Summary   Summary   `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CostLine is one priced entry. Meta is stored in the canonical form produced
// by the schema registry for Kind.
type CostLine struct {
	entity.BaseEntity

	CostSetID      id.ID             `db:"cost_set_id" json:"costSetId"`
	Kind           LineKind          `db:"kind" json:"kind"`
	Description    string            `db:"description" json:"description"`
	Quantity       types.Quantity    `db:"quantity" json:"quantity"`
	UnitCost       types.Money       `db:"unit_cost" json:"unitCost"`
	UnitRevenue    types.Money       `db:"unit_revenue" json:"unitRevenue"`
	AccountingDate time.Time         `db:"accounting_date" json:"accountingDate"`
	Meta           entity.Attributes `db:"meta" json:"meta"`
	ExtRefs        ExtRefs           `db:"ext_refs" json:"extRefs"`
}

// TotalCost is quantity * unit cost.
func (l *CostLine) TotalCost() types.Money {
	return l.Quantity.Mul(l.UnitCost)
}

// TotalRevenue is quantity * unit revenue.
func (l *CostLine) TotalRevenue() types.Money {
	return l.Quantity.Mul(l.UnitRevenue)
}

// LineWithJob is a cost line with the job context needed by reconciliation
// and the integrity sweep.
type LineWithJob struct {
	CostLine
	SetKind   SetKind `db:"set_kind" json:"setKind"`
	JobID     id.ID   `db:"job_id" json:"jobId"`
	JobNumber int64   `db:"job_number" json:"jobNumber"`
}

// CostSetWithLines is a cost set with its current lines.
type CostSetWithLines struct {
	CostSet
	Lines []CostLine `json:"lines"`
}

// JobSummary aggregates the three latest cost sets of a job.
type JobSummary struct {
	JobID     id.ID   `json:"jobId"`
	JobNumber int64   `json:"jobNumber"`
	Name      string  `json:"name"`
	Estimate  Summary `json:"estimate"`
	Quote     Summary `json:"quote"`
	Actual    Summary `json:"actual"`

	// Profit is actual revenue minus actual cost.
	Profit types.Money `json:"profit"`
	// CostVariance is actual cost minus quoted cost.
	CostVariance types.Money `json:"costVariance"`
}
