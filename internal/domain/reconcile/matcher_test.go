package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/id"
	"jobcost/internal/core/types"
	"jobcost/internal/domain/costing"
)

func date(s string) time.Time {
	t, err := time.Parse(costing.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func entry(extID, ref, desc, amount, day string) ExternalEntry {
	return ExternalEntry{ID: extID, Reference: ref, Description: desc, Amount: types.MustMoney(amount), Date: date(day)}
}

func line(job int64, desc, cost, day string) InternalLine {
	return InternalLine{
		LineID:         id.New(),
		JobID:          id.New(),
		JobNumber:      job,
		Kind:           costing.LineMaterial,
		Description:    desc,
		Cost:           types.MustMoney(cost),
		Revenue:        types.MustMoney(cost),
		AccountingDate: date(day),
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"JOB 95427 - Steel Angle", "job 95427 steel angle"},
		{"  INV#4411/b  ", "inv 4411 b"},
		{"Laser-cut (x2)", "laser cut x2"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), tt.in)
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords(Normalize("Invoice 4411 for steel angle, steel 50x50 via courier"))
	assert.Equal(t, []string{"50x50", "angle", "courier", "steel"}, got)

	assert.Equal(t, []string{"steel"}, shared([]string{"angle", "steel"}, []string{"bar", "steel"}))
	assert.Empty(t, shared(nil, []string{"steel"}))
}

func TestMatchEntries_JobNumberTier(t *testing.T) {
	ext := []ExternalEntry{entry("X1", "JOB 95427 - steel angle", "", "123.45", "2025-11-01")}
	in := []InternalLine{
		line(95427, "Steel angle 50x50", "123.45", "2025-11-20"),
		line(95427, "Steel angle 50x50", "123.45", "2025-11-02"),
	}

	res := MatchEntries(ext, in, DefaultOptions())
	require.Len(t, res.Matched, 1)

	m := res.Matched[0]
	assert.Equal(t, MethodExactKey, m.Method)
	assert.Equal(t, in[1].LineID, m.Internal.LineID)
	assert.Equal(t, ScoreJobMatch+ScoreAmountMatch+ScoreDateMatch+2*ScoreKeyword, m.Confidence)
	assert.True(t, m.AmountDelta.IsZero())

	require.Len(t, res.UnmatchedInternal, 1)
	assert.Equal(t, in[0].LineID, res.UnmatchedInternal[0].LineID)
	assert.Empty(t, res.UnmatchedExternal)
}

func TestMatchEntries_JobNumberMustBeWholeToken(t *testing.T) {
	ext := []ExternalEntry{entry("X1", "PO 954271", "misc", "10.00", "2025-11-01")}
	in := []InternalLine{line(95427, "Weld consumables", "10.00", "2025-11-01")}

	res := MatchEntries(ext, in, DefaultOptions())
	assert.Empty(t, res.Matched)
	require.Len(t, res.UnmatchedExternal, 1)
	assert.Equal(t, StatusUnmatched, res.UnmatchedExternal[0].Status)
}

func TestMatchEntries_DescriptionTier(t *testing.T) {
	ext := []ExternalEntry{entry("X1", "4411", "Laser cutting - service", "480.00", "2025-11-05")}
	in := []InternalLine{line(95430, "laser cutting service", "480.004", "2025-10-01")}

	res := MatchEntries(ext, in, DefaultOptions())
	require.Len(t, res.Matched, 1)
	assert.Equal(t, MethodExactDescription, res.Matched[0].Method)
}

func TestMatchEntries_FuzzyTier(t *testing.T) {
	ext := []ExternalEntry{
		entry("X1", "", "Galvanising of balustrade posts", "215.00", "2025-11-10"),
		entry("X2", "", "Powder coat balustrade rails", "99.00", "2025-11-10"),
	}
	in := []InternalLine{
		line(95431, "Balustrade posts galvanising batch", "215.00", "2025-11-04"),
		line(95431, "Balustrade rails powder coat", "120.00", "2025-11-04"),
	}

	res := MatchEntries(ext, in, DefaultOptions())
	require.Len(t, res.Matched, 1)
	m := res.Matched[0]
	assert.Equal(t, MethodFuzzy, m.Method)
	assert.Equal(t, "X1", m.External.ID)
	assert.Equal(t, in[0].LineID, m.Internal.LineID)
	assert.GreaterOrEqual(t, m.Confidence, DefaultOptions().MinScore)

	require.Len(t, res.UnmatchedExternal, 1)
	u := res.UnmatchedExternal[0]
	assert.Equal(t, StatusAmbiguous, u.Status)
	require.Len(t, u.Candidates, 1)
	assert.Equal(t, in[1].LineID, u.Candidates[0].Internal.LineID)
	assert.False(t, u.Candidates[0].AmountMatch)
	assert.Equal(t, []string{"balustrade", "coat", "powder", "rails"}, u.Candidates[0].SharedKeywords)
	assert.Len(t, res.Ambiguous(), 1)
}

func TestMatchEntries_FuzzyTierRespectsWindow(t *testing.T) {
	ext := []ExternalEntry{entry("X1", "", "Galvanising balustrade posts", "215.00", "2025-12-30")}
	in := []InternalLine{line(95431, "Balustrade posts galvanising", "215.00", "2025-11-04")}

	res := MatchEntries(ext, in, DefaultOptions())
	assert.Empty(t, res.Matched)
	require.Len(t, res.UnmatchedExternal, 1)
	assert.False(t, res.UnmatchedExternal[0].Candidates[0].DateMatch)
}

func TestMatchEntries_EachSideMatchesOnce(t *testing.T) {
	ext := []ExternalEntry{
		entry("X1", "Job 95427", "", "50.00", "2025-11-01"),
		entry("X2", "Job 95427", "", "50.00", "2025-11-01"),
	}
	in := []InternalLine{line(95427, "Sheet", "50.00", "2025-11-01")}

	res := MatchEntries(ext, in, DefaultOptions())
	require.Len(t, res.Matched, 1)
	assert.Equal(t, "X1", res.Matched[0].External.ID)
	require.Len(t, res.UnmatchedExternal, 1)
	assert.Equal(t, "X2", res.UnmatchedExternal[0].Entry.ID)
	assert.Empty(t, res.UnmatchedExternal[0].Candidates)
}

func TestMatchEntries_CandidatesAreCapped(t *testing.T) {
	ext := []ExternalEntry{entry("X1", "Job 95427", "", "999.00", "2025-11-01")}
	var in []InternalLine
	for i := 0; i < 8; i++ {
		in = append(in, line(95427, "Sheet", "10.00", "2025-11-01"))
	}

	res := MatchEntries(ext, in, DefaultOptions())
	require.Len(t, res.UnmatchedExternal, 1)
	assert.Len(t, res.UnmatchedExternal[0].Candidates, maxCandidates)
	assert.Len(t, res.UnmatchedInternal, 8)
}

func TestReconcile_PeriodScopeAndTotals(t *testing.T) {
	ext := []ExternalEntry{
		entry("X1", "Job 95427", "", "100.00", "2025-11-01"),
		entry("X2", "Job 95427", "", "20.00", "2025-11-30"),
		entry("X3", "Job 95427", "", "30.00", "2025-12-01"),
	}
	ext[0].Account = "310"
	ext[1].Account = "999"
	ext[2].Account = "310"
	in := []InternalLine{
		line(95427, "Sheet", "100.00", "2025-11-01"),
		line(95427, "Grinding discs", "15.00", "2025-11-30"),
		line(95427, "Sheet", "30.00", "2025-12-01"),
	}

	res, err := Reconcile(ext, in, date("2025-11-01"), date("2025-11-30"), Options{Scope: `account == "310"`})
	require.NoError(t, err)

	assert.Equal(t, 2, res.ExcludedExternal)
	require.Len(t, res.Matched, 1)
	assert.Len(t, res.UnmatchedInternal, 1)
	assert.True(t, types.MustMoney("100.00").Equal(res.Totals.External))
	assert.True(t, types.MustMoney("115.00").Equal(res.Totals.Internal))
	assert.True(t, types.MustMoney("-15.00").Equal(res.Totals.Difference))
	assert.Equal(t, date("2025-11-30"), res.PeriodEnd)
}

func TestReconcile_RevenueBasis(t *testing.T) {
	ext := []ExternalEntry{entry("X1", "Job 95427", "", "180.00", "2025-11-01")}
	l := line(95427, "Sheet", "100.00", "2025-11-01")
	l.Revenue = types.MustMoney("180.00")

	res, err := Reconcile(ext, []InternalLine{l}, date("2025-11-01"), date("2025-11-01"), Options{Basis: BasisRevenue})
	require.NoError(t, err)
	assert.Len(t, res.Matched, 1)
}

func TestNewScope(t *testing.T) {
	s, err := NewScope(`account == "310" && amount > 50.0`)
	require.NoError(t, err)

	ok, err := s.Includes(ExternalEntry{Account: "310", Amount: types.MustMoney("75.00")})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Includes(ExternalEntry{Account: "310", Amount: types.MustMoney("10.00")})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = NewScope(`account + 1`)
	assert.Error(t, err)
	_, err = NewScope(`reference`)
	assert.Error(t, err)
}
