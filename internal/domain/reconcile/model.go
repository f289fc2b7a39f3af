// Package reconcile matches internal cost lines against entries of an
// external ledger snapshot. It only reads; neither side is ever modified.
package reconcile

import (
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/apperror"
	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/costing"
)

// ExternalEntry is one line of the external ledger snapshot.
type ExternalEntry struct {
	ID          string      `db:"external_id" json:"id" validate:"required,max=128"`
	Reference   string      `db:"reference" json:"reference" validate:"max=256"`
	Description string      `db:"description" json:"description" validate:"max=2048"`
	Amount      types.Money `db:"amount" json:"amount"`
	Date        time.Time   `db:"entry_date" json:"date" validate:"required"`
	Account     string      `db:"account" json:"account" validate:"max=64"`
}

// InternalLine is a cost line as the matcher sees it.
type InternalLine struct {
	LineID         id.ID            `json:"lineId"`
	JobID          id.ID            `json:"jobId"`
	JobNumber      int64            `json:"jobNumber"`
	Kind           costing.LineKind `json:"kind"`
	Description    string           `json:"description"`
	Cost           types.Money      `json:"cost"`
	Revenue        types.Money      `json:"revenue"`
	AccountingDate time.Time        `json:"accountingDate"`
}

// FromCostLine converts a stored line.
func FromCostLine(l costing.LineWithJob) InternalLine {
	return InternalLine{
		LineID:         l.ID,
		JobID:          l.JobID,
		JobNumber:      l.JobNumber,
		Kind:           l.Kind,
		Description:    l.Description,
		Cost:           types.RoundMoney(l.TotalCost()),
		Revenue:        types.RoundMoney(l.TotalRevenue()),
		AccountingDate: l.AccountingDate,
	}
}

// Amount returns the line total on basis.
func (l InternalLine) Amount(basis AmountBasis) types.Money {
	if basis == BasisRevenue {
		return l.Revenue
	}
	return l.Cost
}

// AmountBasis selects which line total is compared with external amounts.
type AmountBasis string

const (
	BasisCost    AmountBasis = "cost"
	BasisRevenue AmountBasis = "revenue"
)

// Method records which tier produced a match.
type Method string

const (
	MethodExactKey         Method = "exact_key"
	MethodExactDescription Method = "exact_description"
	MethodFuzzy            Method = "fuzzy"
)

// Confidence weights.
const (
	ScoreJobMatch    = 100
	ScoreAmountMatch = 50
	ScoreDateMatch   = 20
	ScoreKeyword     = 15
)

// Status of an external entry left unmatched.
type Status string

const (
	StatusUnmatched Status = "unmatched"
	StatusAmbiguous Status = Status(apperror.CodeReconciliationAmbiguous)
)

// maxCandidates bounds the candidates reported per unmatched entry.
const maxCandidates = 5

// Options tune the matcher.
type Options struct {
	DateWindowDays  int         `json:"dateWindowDays"`
	MinScore        int         `json:"minScore"`
	AmountTolerance types.Money `json:"amountTolerance"`
	Basis           AmountBasis `json:"basis"`
	// Scope is an optional CEL expression over account, reference,
	// description and amount; entries for which it is false are excluded.
	Scope string `json:"scope,omitempty"`
}

// DefaultOptions returns the standard thresholds: 14 days, score 100, one cent.
func DefaultOptions() Options {
	return Options{
		DateWindowDays:  14,
		MinScore:        100,
		AmountTolerance: decimal.New(1, -2),
		Basis:           BasisCost,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DateWindowDays <= 0 {
		o.DateWindowDays = d.DateWindowDays
	}
	if o.MinScore <= 0 {
		o.MinScore = d.MinScore
	}
	if !o.AmountTolerance.IsPositive() {
		o.AmountTolerance = d.AmountTolerance
	}
	if o.Basis != BasisRevenue {
		o.Basis = BasisCost
	}
	return o
}

// Match is an auto-matched pair.
type Match struct {
	External    ExternalEntry `json:"external"`
	Internal    InternalLine  `json:"internal"`
	Method      Method        `json:"method"`
	Confidence  int           `json:"confidence"`
	AmountDelta types.Money   `json:"amountDelta"`
}

// Candidate is a possible counterpart that a human has to confirm.
type Candidate struct {
	Internal       InternalLine `json:"internal"`
	Score          int          `json:"score"`
	JobMatch       bool         `json:"jobMatch"`
	AmountMatch    bool         `json:"amountMatch"`
	DateMatch      bool         `json:"dateMatch"`
	SharedKeywords []string     `json:"sharedKeywords"`
}

// UnmatchedExternal is an external entry no tier could match.
type UnmatchedExternal struct {
	Entry      ExternalEntry `json:"entry"`
	Status     Status        `json:"status"`
	Candidates []Candidate   `json:"candidates"`
}

// Totals compares both sides of the period.
type Totals struct {
	External        types.Money `json:"external"`
	Internal        types.Money `json:"internal"`
	MatchedExternal types.Money `json:"matchedExternal"`
	MatchedInternal types.Money `json:"matchedInternal"`
	// Difference is External minus Internal.
	Difference types.Money `json:"difference"`
}

// Result of one reconciliation run.
type Result struct {
	PeriodStart       time.Time           `json:"periodStart"`
	PeriodEnd         time.Time           `json:"periodEnd"`
	Options           Options             `json:"options"`
	Matched           []Match             `json:"matched"`
	UnmatchedExternal []UnmatchedExternal `json:"unmatchedExternal"`
	UnmatchedInternal []InternalLine      `json:"unmatchedInternal"`
	// ExcludedExternal counts entries outside the period or the scope.
	ExcludedExternal int    `json:"excludedExternal"`
	Totals           Totals `json:"totals"`
}

// Ambiguous returns the unmatched entries that have candidates.
func (r *Result) Ambiguous() []UnmatchedExternal {
	var out []UnmatchedExternal
	for _, u := range r.UnmatchedExternal {
		if u.Status == StatusAmbiguous {
			out = append(out, u)
		}
	}
	return out
}
