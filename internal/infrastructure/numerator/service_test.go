package numerator

import (
	"context"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corenumerator "jobcost/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the sys_sequences upsert for a single key.
type mockQuerier struct {
	mu      sync.Mutex
	exists  bool
	current int64
	calls   int
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	insertVal := args[1].(int64)
	incr := int64(1)
	if len(args) == 3 {
		incr = args[2].(int64)
	}
	if !m.exists {
		m.exists = true
		m.current = insertVal
	} else {
		m.current += incr
	}
	return &mockRow{val: m.current}
}

func newTestService(q *mockQuerier) *Service {
	return NewService(func(context.Context) Querier { return q })
}

func TestNextNumber_StrictStartsAtConfiguredBase(t *testing.T) {
	q := &mockQuerier{}
	svc := newTestService(q)
	cfg := corenumerator.JobConfig(95000)

	first, err := svc.NextNumber(context.Background(), cfg, nil)
	require.NoError(t, err)
	second, err := svc.NextNumber(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(95000), first)
	assert.Equal(t, int64(95001), second)
	assert.Equal(t, 2, q.calls)
}

func TestNextNumber_CachedReservesRanges(t *testing.T) {
	q := &mockQuerier{}
	svc := newTestService(q)
	cfg := corenumerator.JobConfig(100)
	opts := &corenumerator.Options{Strategy: corenumerator.StrategyCached, RangeSize: 3}

	var got []int64
	for i := 0; i < 5; i++ {
		n, err := svc.NextNumber(context.Background(), cfg, opts)
		require.NoError(t, err)
		got = append(got, n)
	}

	assert.Equal(t, []int64{100, 101, 102, 103, 104}, got)
	assert.Equal(t, 2, q.calls, "one reservation per range")
}

func TestNextNumber_RejectsEmptySequence(t *testing.T) {
	svc := newTestService(&mockQuerier{})
	_, err := svc.NextNumber(context.Background(), corenumerator.Config{}, nil)
	assert.Error(t, err)
}
