package reconcile

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"jobcost/internal/core/types"
)

type extView struct {
	entry    ExternalEntry
	norm     string
	tokens   map[string]bool
	keywords []string
	day      time.Time
}

type intView struct {
	line     InternalLine
	norm     string
	keywords []string
	job      string
	amount   types.Money
	day      time.Time
}

type pair struct {
	ext, in  int
	score    int
	distance int
}

// MatchEntries runs the three tiers over already filtered inputs. Each tier only
// sees entries and lines the earlier tiers left unmatched.
func MatchEntries(external []ExternalEntry, internal []InternalLine, opts Options) *Result {
	opts = opts.withDefaults()

	exts := make([]extView, len(external))
	for i, e := range external {
		norm := Normalize(e.Reference + " " + e.Description)
		tokens := make(map[string]bool)
		for _, t := range Tokens(norm) {
			tokens[t] = true
		}
		exts[i] = extView{
			entry:    e,
			norm:     Normalize(e.Description),
			tokens:   tokens,
			keywords: Keywords(norm),
			day:      dayOf(e.Date),
		}
	}
	ints := make([]intView, len(internal))
	for i, l := range internal {
		norm := Normalize(l.Description)
		ints[i] = intView{
			line:     l,
			norm:     norm,
			keywords: Keywords(norm),
			job:      strconv.FormatInt(l.JobNumber, 10),
			amount:   l.Amount(opts.Basis),
			day:      dayOf(l.AccountingDate),
		}
	}

	m := &matcher{
		opts:    opts,
		exts:    exts,
		ints:    ints,
		extUsed: make([]bool, len(exts)),
		intUsed: make([]bool, len(ints)),
	}

	res := &Result{
		Options:           opts,
		Matched:           []Match{},
		UnmatchedExternal: []UnmatchedExternal{},
		UnmatchedInternal: []InternalLine{},
	}

	// Tier 1: job number embedded in the entry, amount within tolerance.
	m.exactTier(res, MethodExactKey, func(e *extView, in *intView) bool {
		return e.tokens[in.job] && m.amountMatch(e, in)
	})

	// Tier 2: identical normalized description, amount within tolerance.
	m.exactTier(res, MethodExactDescription, func(e *extView, in *intView) bool {
		return e.norm != "" && e.norm == in.norm && m.amountMatch(e, in)
	})

	// Tier 3: fuzzy, highest score first.
	m.fuzzyTier(res)

	for i := range exts {
		if m.extUsed[i] {
			continue
		}
		cands := m.candidates(i)
		status := StatusUnmatched
		if len(cands) > 0 {
			status = StatusAmbiguous
		}
		res.UnmatchedExternal = append(res.UnmatchedExternal, UnmatchedExternal{
			Entry:      exts[i].entry,
			Status:     status,
			Candidates: cands,
		})
	}
	for j := range ints {
		if !m.intUsed[j] {
			res.UnmatchedInternal = append(res.UnmatchedInternal, ints[j].line)
		}
	}

	res.Totals = m.totals(res)
	return res
}

type matcher struct {
	opts    Options
	exts    []extView
	ints    []intView
	extUsed []bool
	intUsed []bool
}

func (m *matcher) exactTier(res *Result, method Method, ok func(e *extView, in *intView) bool) {
	for i := range m.exts {
		if m.extUsed[i] {
			continue
		}
		e := &m.exts[i]
		best, bestDist := -1, 0
		for j := range m.ints {
			if m.intUsed[j] || !ok(e, &m.ints[j]) {
				continue
			}
			d := daysBetween(e.day, m.ints[j].day)
			if best < 0 || d < bestDist {
				best, bestDist = j, d
			}
		}
		if best >= 0 {
			m.accept(res, i, best, method)
		}
	}
}

func (m *matcher) fuzzyTier(res *Result) {
	var pairs []pair
	for i := range m.exts {
		if m.extUsed[i] {
			continue
		}
		for j := range m.ints {
			if m.intUsed[j] {
				continue
			}
			e, in := &m.exts[i], &m.ints[j]
			if !m.amountMatch(e, in) || !m.dateMatch(e, in) {
				continue
			}
			if len(shared(e.keywords, in.keywords)) == 0 {
				continue
			}
			score := m.score(e, in)
			if score < m.opts.MinScore {
				continue
			}
			pairs = append(pairs, pair{ext: i, in: j, score: score, distance: daysBetween(e.day, in.day)})
		}
	}

	sort.SliceStable(pairs, func(a, b int) bool {
		if pairs[a].score != pairs[b].score {
			return pairs[a].score > pairs[b].score
		}
		if pairs[a].distance != pairs[b].distance {
			return pairs[a].distance < pairs[b].distance
		}
		if pairs[a].ext != pairs[b].ext {
			return pairs[a].ext < pairs[b].ext
		}
		return pairs[a].in < pairs[b].in
	})

	for _, p := range pairs {
		if m.extUsed[p.ext] || m.intUsed[p.in] {
			continue
		}
		m.accept(res, p.ext, p.in, MethodFuzzy)
	}
}

// candidates lists unmatched lines sharing a job number or keyword with entry i.
func (m *matcher) candidates(i int) []Candidate {
	e := &m.exts[i]
	out := []Candidate{}
	for j := range m.ints {
		if m.intUsed[j] {
			continue
		}
		in := &m.ints[j]
		kw := shared(e.keywords, in.keywords)
		jobMatch := e.tokens[in.job]
		if !jobMatch && len(kw) == 0 {
			continue
		}
		out = append(out, Candidate{
			Internal:       in.line,
			Score:          m.score(e, in),
			JobMatch:       jobMatch,
			AmountMatch:    m.amountMatch(e, in),
			DateMatch:      m.dateMatch(e, in),
			SharedKeywords: kw,
		})
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out
}

func (m *matcher) accept(res *Result, i, j int, method Method) {
	m.extUsed[i] = true
	m.intUsed[j] = true
	e, in := &m.exts[i], &m.ints[j]
	res.Matched = append(res.Matched, Match{
		External:    e.entry,
		Internal:    in.line,
		Method:      method,
		Confidence:  m.score(e, in),
		AmountDelta: e.entry.Amount.Sub(in.amount),
	})
}

func (m *matcher) score(e *extView, in *intView) int {
	score := 0
	if e.tokens[in.job] {
		score += ScoreJobMatch
	}
	if m.amountMatch(e, in) {
		score += ScoreAmountMatch
	}
	if m.dateMatch(e, in) {
		score += ScoreDateMatch
	}
	score += ScoreKeyword * len(shared(e.keywords, in.keywords))
	return score
}

func (m *matcher) amountMatch(e *extView, in *intView) bool {
	return types.WithinTolerance(e.entry.Amount, in.amount, m.opts.AmountTolerance)
}

func (m *matcher) dateMatch(e *extView, in *intView) bool {
	return daysBetween(e.day, in.day) <= m.opts.DateWindowDays
}

func (m *matcher) totals(res *Result) Totals {
	t := Totals{
		External:        decimal.Zero,
		Internal:        decimal.Zero,
		MatchedExternal: decimal.Zero,
		MatchedInternal: decimal.Zero,
	}
	for _, e := range m.exts {
		t.External = t.External.Add(e.entry.Amount)
	}
	for _, in := range m.ints {
		t.Internal = t.Internal.Add(in.amount)
	}
	for _, mt := range res.Matched {
		t.MatchedExternal = t.MatchedExternal.Add(mt.External.Amount)
		t.MatchedInternal = t.MatchedInternal.Add(mt.Internal.Amount(m.opts.Basis))
	}
	t.Difference = t.External.Sub(t.Internal)
	return t
}

func dayOf(t time.Time) time.Time {
	y, mo, d := t.UTC().Date()
	return time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
