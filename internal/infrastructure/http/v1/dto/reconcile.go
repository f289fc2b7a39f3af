package dto

import (
	"jobcost/internal/core/types"
	"jobcost/internal/domain/reconcile"
)

// ExternalEntryRequest is one line of the external ledger.
type ExternalEntryRequest struct {
	ID          string      `json:"id" binding:"required,max=128"`
	Reference   string      `json:"reference" binding:"max=256"`
	Description string      `json:"description" binding:"max=2048"`
	Amount      types.Money `json:"amount"`
	Date        string      `json:"date" binding:"required,datetime=2006-01-02"`
	Account     string      `json:"account" binding:"max=64"`
}

func toEntries(reqs []ExternalEntryRequest) ([]reconcile.ExternalEntry, error) {
	out := make([]reconcile.ExternalEntry, 0, len(reqs))
	for _, r := range reqs {
		date, err := ParseDate("date", r.Date)
		if err != nil {
			return nil, err
		}
		out = append(out, reconcile.ExternalEntry{
			ID:          r.ID,
			Reference:   r.Reference,
			Description: r.Description,
			Amount:      r.Amount,
			Date:        date,
			Account:     r.Account,
		})
	}
	return out, nil
}

// ReconcileOptionsRequest overrides matcher defaults for one run.
type ReconcileOptionsRequest struct {
	DateWindowDays  int          `json:"dateWindowDays" binding:"omitempty,min=1,max=366"`
	MinScore        int          `json:"minScore" binding:"omitempty,min=1"`
	AmountTolerance *types.Money `json:"amountTolerance"`
	Basis           string       `json:"basis" binding:"omitempty,oneof=cost revenue"`
	Scope           string       `json:"scope" binding:"max=2000"`
}

// RunReconciliationRequest reconciles a period. Without external entries
// the stored snapshot is used.
type RunReconciliationRequest struct {
	PeriodStart string                   `json:"periodStart" binding:"required,datetime=2006-01-02"`
	PeriodEnd   string                   `json:"periodEnd" binding:"required,datetime=2006-01-02"`
	External    []ExternalEntryRequest   `json:"external" binding:"omitempty,dive"`
	Options     *ReconcileOptionsRequest `json:"options"`
}

func (r *RunReconciliationRequest) ToInput() (reconcile.RunInput, error) {
	return periodInput(r.PeriodStart, r.PeriodEnd, r.External, r.Options)
}

// ReconcileExportQuery selects the period of an exported reconciliation.
type ReconcileExportQuery struct {
	From string `form:"from" binding:"required,datetime=2006-01-02"`
	To   string `form:"to" binding:"required,datetime=2006-01-02"`
}

func (q *ReconcileExportQuery) ToInput() (reconcile.RunInput, error) {
	return periodInput(q.From, q.To, nil, nil)
}

func periodInput(from, to string, external []ExternalEntryRequest, opts *ReconcileOptionsRequest) (reconcile.RunInput, error) {
	start, err := ParseDate("periodStart", from)
	if err != nil {
		return reconcile.RunInput{}, err
	}
	end, err := ParseDate("periodEnd", to)
	if err != nil {
		return reconcile.RunInput{}, err
	}
	in := reconcile.RunInput{PeriodStart: start, PeriodEnd: end}
	if external != nil {
		if in.External, err = toEntries(external); err != nil {
			return reconcile.RunInput{}, err
		}
	}
	if opts != nil {
		o := reconcile.Options{
			DateWindowDays: opts.DateWindowDays,
			MinScore:       opts.MinScore,
			Basis:          reconcile.AmountBasis(opts.Basis),
			Scope:          opts.Scope,
		}
		if opts.AmountTolerance != nil {
			o.AmountTolerance = *opts.AmountTolerance
		}
		in.Options = &o
	}
	return in, nil
}

// ImportSnapshotRequest replaces entries of the stored external ledger snapshot.
type ImportSnapshotRequest struct {
	Entries []ExternalEntryRequest `json:"entries" binding:"required,min=1,dive"`
}

func (r *ImportSnapshotRequest) ToEntries() ([]reconcile.ExternalEntry, error) {
	return toEntries(r.Entries)
}

// ImportSnapshotResponse reports how many entries were written.
type ImportSnapshotResponse struct {
	Imported int64 `json:"imported"`
}
