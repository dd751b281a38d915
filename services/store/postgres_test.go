package store

import (
	"context"
	"os"
	"testing"
	"time"

	"pokequant/priceworker/internal/normalize"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// This test requires a Postgres database in DATABASE_URL
// If it is not set or not reachable, the test will be skipped
func TestPostgresStoreSave(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL is not set, skipping test")
	}

	ctx := context.Background()
	s, err := NewPostgresStore(ctx, dsn, 2)
	if err != nil {
		t.Skipf("Postgres is not available, skipping test: %v", err)
	}
	defer s.Close()

	require.NoError(t, s.EnsureSchema(ctx))

	key := "test-" + time.Now().Format("20060102150405.000000")
	defer s.pool.Exec(ctx, `DELETE FROM price_points WHERE item_key = $1`, key)

	day := time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC)
	fetched := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)
	series := normalize.Series{
		{Date: day, Amount: decimal.RequireFromString("350.00"), Currency: "USD",
			Provenance: normalize.Provenance{Source: "ebay", Query: "charizard", FetchedAt: fetched}},
		{Date: day.AddDate(0, 0, 1), Amount: decimal.RequireFromString("360.50"), Currency: "USD",
			Provenance: normalize.Provenance{Source: "ebay", Query: "charizard", FetchedAt: fetched}},
	}

	n, err := s.Save(ctx, key, "ebay", series)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// older data does not overwrite newer rows
	stale := normalize.Series{{Date: day, Amount: decimal.RequireFromString("1.00"), Currency: "USD",
		Provenance: normalize.Provenance{Source: "ebay", Query: "charizard", FetchedAt: fetched.Add(-time.Hour)}}}
	n, err = s.Save(ctx, key, "ebay", stale)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	var amount string
	err = s.pool.QueryRow(ctx,
		`SELECT amount::text FROM price_points WHERE item_key = $1 AND point_date = $2::date`, key, day).Scan(&amount)
	require.NoError(t, err)
	assert.Equal(t, "350.00", amount)
}

func TestSaveEmptySeries(t *testing.T) {
	s := &PostgresStore{batch: defaultBatch}
	n, err := s.Save(context.Background(), "k", "ebay", nil)
	assert.NoError(t, err)
	assert.Zero(t, n)
}
