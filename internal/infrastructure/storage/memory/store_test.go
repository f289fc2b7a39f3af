package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobcost/internal/core/entity"
	"jobcost/internal/core/numerator"
	"jobcost/internal/domain/registers/stock"
)

func newStock(code string) *stock.Stock {
	return &stock.Stock{BaseEntity: entity.NewBaseEntity(), ItemCode: code, IsActive: true}
}

func TestStore_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewStockRepo(s)

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		require.NoError(t, repo.Create(ctx, newStock("SS-304-A")))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repo.GetByItemCode(ctx, "SS-304-A")
	assert.Error(t, err)
}

func TestStore_RollbackOnPanic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewStockRepo(s)

	assert.Panics(t, func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			require.NoError(t, repo.Create(ctx, newStock("SS-304-A")))
			panic("boom")
		})
	})

	rows, err := repo.List(ctx, stock.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStore_NestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewStockRepo(s)

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(ctx context.Context) error {
			return repo.Create(ctx, newStock("FLAT-BAR-50"))
		})
	})
	require.NoError(t, err)

	st, err := repo.GetByItemCode(ctx, "FLAT-BAR-50")
	require.NoError(t, err)
	assert.Equal(t, "FLAT-BAR-50", st.ItemCode)
}

func TestStore_ReadOnlyRejectsWrites(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	repo := NewStockRepo(s)

	err := s.ReadOnly(ctx, func(ctx context.Context) error {
		return repo.Create(ctx, newStock("SS-304-A"))
	})
	assert.ErrorIs(t, err, errReadOnly)

	err = s.ReadOnly(ctx, func(ctx context.Context) error {
		return s.RunInTransaction(ctx, func(context.Context) error { return nil })
	})
	assert.ErrorIs(t, err, errReadOnly)
}

func TestStockRepo_CreateKeepsItemCodeUnique(t *testing.T) {
	ctx := context.Background()
	repo := NewStockRepo(NewStore())

	require.NoError(t, repo.Create(ctx, newStock("SS-304-A")))
	err := repo.Create(ctx, newStock("SS-304-A"))
	require.Error(t, err)
}

func TestNumerator_StartsAtConfiguredValue(t *testing.T) {
	ctx := context.Background()
	n := NewNumerator(NewStore())
	cfg := numerator.JobConfig(95000)

	first, err := n.NextNumber(ctx, cfg, nil)
	require.NoError(t, err)
	second, err := n.NextNumber(ctx, cfg, nil)
	require.NoError(t, err)

	assert.Equal(t, int64(95000), first)
	assert.Equal(t, int64(95001), second)

	_, err = n.NextNumber(ctx, numerator.Config{}, nil)
	assert.Error(t, err)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2}, page(items, 2, 0))
	assert.Equal(t, []int{4, 5}, page(items, 10, 3))
	assert.Equal(t, []int{}, page(items, 2, 5))
	assert.Equal(t, items, page(items, 0, 0))
}
