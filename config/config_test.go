package config

import (
	"testing"
	"time"

	perrors "pokequant/priceworker/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	// Test with default values
	config := LoadConfig()
	assert.Equal(t, "localhost:6379", config.RedisAddr)
	assert.Equal(t, 0, config.RedisDB)
	assert.Equal(t, 1, config.RedisStreamCount)
	assert.Equal(t, "localhost:11211", config.MemcacheAddr)
	assert.Equal(t, time.Duration(0), config.CollectInterval)
	assert.Equal(t, 3*time.Second, config.MinDelay)
	assert.Equal(t, 5*time.Second, config.MaxDelay)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.BaseDelay)
	assert.Equal(t, 10*time.Second, config.RequestTimeout)
	assert.Equal(t, 5, config.MaxPages)
	assert.Equal(t, 10000, config.MinPageBytes)
	require.Len(t, config.ArtifactPrices, 1)
	assert.True(t, decimal.RequireFromString("6").Equal(config.ArtifactPrices[0]))
	assert.True(t, decimal.RequireFromString("1").Equal(config.PriceMin))
	assert.True(t, decimal.RequireFromString("100000").Equal(config.PriceMax))
	assert.NoError(t, config.Validate())

	// Test with environment variables
	t.Setenv("REDIS_ADDR", "redis.example.com:6379")
	t.Setenv("REDIS_DB", "1")
	t.Setenv("MEMCACHE_ADDR", "memcache.example.com:11211")
	t.Setenv("COLLECT_INTERVAL_SECONDS", "30")
	t.Setenv("MIN_DELAY_MS", "100")
	t.Setenv("MAX_DELAY_MS", "250")
	t.Setenv("MAX_RESULTS", "120")
	t.Setenv("ARTIFACT_PRICES", "6.00, 9.99")
	t.Setenv("EBAY_URL", "https://example.com/ebay")

	config = LoadConfig()
	assert.Equal(t, "redis.example.com:6379", config.RedisAddr)
	assert.Equal(t, 1, config.RedisDB)
	assert.Equal(t, "memcache.example.com:11211", config.MemcacheAddr)
	assert.Equal(t, 30*time.Second, config.CollectInterval)
	assert.Equal(t, 100*time.Millisecond, config.MinDelay)
	assert.Equal(t, 250*time.Millisecond, config.MaxDelay)
	assert.Equal(t, 120, config.MaxResults)
	require.Len(t, config.ArtifactPrices, 2)
	assert.Equal(t, "9.99", config.ArtifactPrices[1].StringFixed(2))
	assert.Equal(t, "https://example.com/ebay", config.EbayURL)
	assert.NoError(t, config.Validate())
}

func TestArtifactPricesCanBeDisabled(t *testing.T) {
	t.Setenv("ARTIFACT_PRICES", "none")
	config := LoadConfig()
	assert.Empty(t, config.ArtifactPrices)
}

func TestValidateRejectsInconsistentValues(t *testing.T) {
	t.Setenv("MIN_DELAY_MS", "5000")
	t.Setenv("MAX_DELAY_MS", "1000")
	t.Setenv("PRICE_MIN", "50")
	t.Setenv("PRICE_MAX", "10")
	t.Setenv("MAX_RETRIES", "three")

	err := LoadConfig().Validate()
	require.Error(t, err)
	assert.True(t, perrors.IsType(err, perrors.ErrorTypeConfiguration))
	assert.Contains(t, err.Error(), "MIN_DELAY_MS")
	assert.Contains(t, err.Error(), "PRICE_MIN")
	assert.Contains(t, err.Error(), `MAX_RETRIES: invalid integer "three"`)
}

func TestZeroPriceBoundIsDisabled(t *testing.T) {
	t.Setenv("PRICE_MIN", "1.00")
	t.Setenv("PRICE_MAX", "0")

	config := LoadConfig()
	assert.True(t, config.PriceMax.IsZero())
	assert.NoError(t, config.Validate())

	t.Setenv("PRICE_MIN", "-1")
	assert.Error(t, LoadConfig().Validate())
}

func TestParseTargets(t *testing.T) {
	data := []byte(`
targets:
  - id: charizard-base-4
    source: ebay
    card:
      name: Charizard
      number: "4/102"
      set: Base Set
    filters:
      min_price: 50
      sort: "12"
  - id: evolving-skies-bb
    source: pricecharting
    keywords: Evolving Skies Booster Box
`)
	targets, err := ParseTargets(data)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "Charizard", targets[0].Card.Name)
	assert.Equal(t, 50, targets[0].Filters["min_price"])
	assert.Equal(t, "pricecharting", targets[1].Source)
}

func TestParseTargetsRejectsInvalidEntries(t *testing.T) {
	_, err := ParseTargets([]byte("targets:\n  - source: ebay\n    keywords: x\n"))
	assert.Error(t, err)

	_, err = ParseTargets([]byte("targets:\n  - id: a\n    source: ebay\n"))
	assert.Error(t, err)

	_, err = ParseTargets([]byte("targets:\n  - id: a\n    source: ebay\n    keywords: x\n  - id: a\n    source: ebay\n    keywords: y\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate target ebay/a")
}
