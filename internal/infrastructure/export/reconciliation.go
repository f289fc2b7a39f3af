// Package export renders reconciliation results as xlsx workbooks.
package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"jobcost/internal/core/types"
	"jobcost/internal/domain/reconcile"
)

// ContentTypeXLSX is the MIME type of the produced workbook.
const ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names, in workbook order.
const (
	SheetMatched           = "Matched"
	SheetUnmatchedExternal = "Unmatched External"
	SheetUnmatchedInternal = "Unmatched Internal"
	SheetCandidates        = "Candidates"
	SheetTotals            = "Totals"
)

var headers = map[string][]any{
	SheetMatched: {"External ID", "Reference", "Description", "Amount", "Date",
		"Job", "Line ID", "Line Description", "Line Amount", "Method", "Confidence", "Delta"},
	SheetUnmatchedExternal: {"External ID", "Reference", "Description", "Amount", "Date", "Account", "Status", "Candidates"},
	SheetUnmatchedInternal: {"Line ID", "Job", "Kind", "Description", "Cost", "Revenue", "Accounting Date"},
	SheetCandidates: {"External ID", "Line ID", "Job", "Score", "Job Match", "Amount Match", "Date Match", "Keywords"},
	SheetTotals:     {"Measure", "Amount"},
}

func money(m types.Money) float64 {
	return m.InexactFloat64()
}

func day(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// Workbook builds the workbook for r. The caller closes it.
func Workbook(r *reconcile.Result) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetMatched); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetUnmatchedExternal, SheetUnmatchedInternal, SheetCandidates, SheetTotals} {
		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("create sheet %q: %w", name, err)
		}
	}

	w := &sheetWriter{f: f, rows: map[string]int{}}
	for _, name := range []string{SheetMatched, SheetUnmatchedExternal, SheetUnmatchedInternal, SheetCandidates, SheetTotals} {
		w.row(name, headers[name]...)
	}

	for _, m := range r.Matched {
		w.row(SheetMatched,
			m.External.ID, m.External.Reference, m.External.Description, money(m.External.Amount), day(m.External.Date),
			m.Internal.JobNumber, m.Internal.LineID.String(), m.Internal.Description,
			money(m.Internal.Amount(r.Options.Basis)), string(m.Method), m.Confidence, money(m.AmountDelta))
	}
	for _, u := range r.UnmatchedExternal {
		w.row(SheetUnmatchedExternal,
			u.Entry.ID, u.Entry.Reference, u.Entry.Description, money(u.Entry.Amount), day(u.Entry.Date),
			u.Entry.Account, string(u.Status), len(u.Candidates))
		for _, c := range u.Candidates {
			w.row(SheetCandidates,
				u.Entry.ID, c.Internal.LineID.String(), c.Internal.JobNumber, c.Score,
				strconv.FormatBool(c.JobMatch), strconv.FormatBool(c.AmountMatch), strconv.FormatBool(c.DateMatch),
				strings.Join(c.SharedKeywords, ", "))
		}
	}
	for _, l := range r.UnmatchedInternal {
		w.row(SheetUnmatchedInternal,
			l.LineID.String(), l.JobNumber, string(l.Kind), l.Description, money(l.Cost), money(l.Revenue), day(l.AccountingDate))
	}

	t := r.Totals
	w.row(SheetTotals, "Period", day(r.PeriodStart)+" .. "+day(r.PeriodEnd))
	w.row(SheetTotals, "External", money(t.External))
	w.row(SheetTotals, "Internal", money(t.Internal))
	w.row(SheetTotals, "Matched External", money(t.MatchedExternal))
	w.row(SheetTotals, "Matched Internal", money(t.MatchedInternal))
	w.row(SheetTotals, "Difference", money(t.Difference))
	w.row(SheetTotals, "Excluded External", r.ExcludedExternal)

	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write streams the workbook for r to out.
func Write(out io.Writer, r *reconcile.Result) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.Write(out); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// FileName is the default name of the workbook for r.
func FileName(r *reconcile.Result) string {
	return fmt.Sprintf("reconciliation_%s_%s.xlsx",
		r.PeriodStart.UTC().Format("20060102"), r.PeriodEnd.UTC().Format("20060102"))
}

type sheetWriter struct {
	f    *excelize.File
	rows map[string]int
	err  error
}

func (w *sheetWriter) row(sheet string, values ...any) {
	if w.err != nil {
		return
	}
	w.rows[sheet]++
	cell, err := excelize.CoordinatesToCellName(1, w.rows[sheet])
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("write %s row %d: %w", sheet, w.rows[sheet], err)
	}
}
