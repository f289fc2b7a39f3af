package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MemoryDefaults(t *testing.T) {
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 14, cfg.Reconcile.DateWindowDays)
	assert.Equal(t, 100, cfg.Reconcile.MinScore)
	assert.Equal(t, "0.01", cfg.Reconcile.AmountTolerance.String())
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	t.Setenv("STORAGE", StoragePostgres)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoad_ParsesLists(t *testing.T) {
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,,")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoad_RejectsBadTolerance(t *testing.T) {
	t.Setenv("STORAGE", StorageMemory)
	t.Setenv("RECONCILE_AMOUNT_TOLERANCE", "cents")

	_, err := Load()
	assert.ErrorContains(t, err, "RECONCILE_AMOUNT_TOLERANCE")
}
