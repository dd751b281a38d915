package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	perrors "pokequant/priceworker/pkg/errors"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	// Redis configuration
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string

	// Postgres series store, disabled when empty
	DatabaseURL string

	// Worker configuration
	CollectInterval time.Duration
	Concurrency     int
	TargetsFile     string
	ErrorLogFile    string

	// Fetcher configuration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	RequestTimeout time.Duration
	BlockTime      time.Duration
	GlobalRate     float64
	GlobalBurst    int

	// Pagination configuration
	MaxPages     int
	MaxResults   int
	MinPageBytes int

	// Normalization configuration
	ArtifactPrices []decimal.Decimal
	PriceMin       decimal.Decimal
	PriceMax       decimal.Decimal

	// URLs for the price sources
	EbayURL          string
	PriceChartingURL string

	// Environment
	Environment string

	// parse problems collected by LoadConfig and reported by Validate
	loadErrs []string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	c := &Config{
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		RedisStream:      getEnv("REDIS_STREAM", "price_series"),
		MemcacheAddr:     getEnv("MEMCACHE_ADDR", "localhost:11211"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		TargetsFile:      getEnv("TARGETS_FILE", "targets.yaml"),
		ErrorLogFile:     getEnv("ERROR_LOG_FILE", "collect_errors.log"),
		EbayURL:          getEnv("EBAY_URL", "https://www.ebay.com/sch/i.html"),
		PriceChartingURL: getEnv("PRICECHARTING_URL", "https://www.pricecharting.com"),
		Environment:      getEnv("PRICEWORKER_ENVIRONMENT", "development"),
	}

	c.RedisDB = c.getInt("REDIS_DB", 0)
	c.RedisStreamCount = c.getInt("REDIS_STREAM_COUNT", 1)
	c.RedisStreamMaxLength = c.getInt("REDIS_STREAM_MAX_LENGTH", 1000)
	c.CollectInterval = time.Duration(c.getInt("COLLECT_INTERVAL_SECONDS", 0)) * time.Second
	c.Concurrency = c.getInt("WORKER_CONCURRENCY", 4)

	c.MinDelay = time.Duration(c.getInt("MIN_DELAY_MS", 3000)) * time.Millisecond
	c.MaxDelay = time.Duration(c.getInt("MAX_DELAY_MS", 5000)) * time.Millisecond
	c.MaxRetries = c.getInt("MAX_RETRIES", 3)
	c.BaseDelay = time.Duration(c.getInt("BASE_DELAY_MS", 1000)) * time.Millisecond
	c.RequestTimeout = time.Duration(c.getInt("REQUEST_TIMEOUT_SECONDS", 10)) * time.Second
	c.BlockTime = time.Duration(c.getInt("BLOCK_SECONDS", 500)) * time.Second
	c.GlobalRate = c.getFloat("GLOBAL_RATE_PER_SECOND", 0)
	c.GlobalBurst = c.getInt("GLOBAL_RATE_BURST", 1)

	c.MaxPages = c.getInt("MAX_PAGES", 5)
	c.MaxResults = c.getInt("MAX_RESULTS", 0)
	c.MinPageBytes = c.getInt("MIN_PAGE_BYTES", 10000)

	c.ArtifactPrices = c.getDecimals("ARTIFACT_PRICES", "6.00")
	c.PriceMin = c.getDecimal("PRICE_MIN", "1.00")
	c.PriceMax = c.getDecimal("PRICE_MAX", "100000.00")

	return c
}

// Validate checks the configuration for values the pipeline cannot run with
func (c *Config) Validate() error {
	problems := append([]string(nil), c.loadErrs...)

	if c.RedisStream == "" {
		problems = append(problems, "REDIS_STREAM must not be empty")
	}
	if c.RedisStreamCount < 1 {
		problems = append(problems, "REDIS_STREAM_COUNT must be at least 1")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "WORKER_CONCURRENCY must be at least 1")
	}
	if c.MinDelay < 0 || c.MaxDelay < 0 || c.BaseDelay < 0 || c.CollectInterval < 0 {
		problems = append(problems, "delays must not be negative")
	}
	if c.MinDelay > c.MaxDelay {
		problems = append(problems, fmt.Sprintf("MIN_DELAY_MS (%s) exceeds MAX_DELAY_MS (%s)", c.MinDelay, c.MaxDelay))
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "MAX_RETRIES must not be negative")
	}
	if c.RequestTimeout <= 0 {
		problems = append(problems, "REQUEST_TIMEOUT_SECONDS must be positive")
	}
	if c.MaxPages < 1 {
		problems = append(problems, "MAX_PAGES must be at least 1")
	}
	if c.MaxResults < 0 {
		problems = append(problems, "MAX_RESULTS must not be negative")
	}
	if c.GlobalRate < 0 {
		problems = append(problems, "GLOBAL_RATE_PER_SECOND must not be negative")
	}
	if c.PriceMin.IsNegative() || c.PriceMax.IsNegative() {
		problems = append(problems, "PRICE_MIN and PRICE_MAX must not be negative")
	}
	// A zero bound disables that bound
	if !c.PriceMax.IsZero() && c.PriceMin.GreaterThan(c.PriceMax) {
		problems = append(problems, fmt.Sprintf("PRICE_MIN (%s) exceeds PRICE_MAX (%s)", c.PriceMin, c.PriceMax))
	}

	if len(problems) > 0 {
		return perrors.NewConfiguration(strings.Join(problems, "; "), nil)
	}
	return nil
}

// IsProduction reports whether the worker runs in the production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) getInt(key string, defaultValue int) int {
	raw := getEnv(key, strconv.Itoa(defaultValue))
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.loadErrs = append(c.loadErrs, fmt.Sprintf("%s: invalid integer %q", key, raw))
		return defaultValue
	}
	return v
}

func (c *Config) getFloat(key string, defaultValue float64) float64 {
	raw := getEnv(key, strconv.FormatFloat(defaultValue, 'f', -1, 64))
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.loadErrs = append(c.loadErrs, fmt.Sprintf("%s: invalid number %q", key, raw))
		return defaultValue
	}
	return v
}

func (c *Config) getDecimal(key, defaultValue string) decimal.Decimal {
	raw := getEnv(key, defaultValue)
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		c.loadErrs = append(c.loadErrs, fmt.Sprintf("%s: invalid decimal %q", key, raw))
		return decimal.RequireFromString(defaultValue)
	}
	return v
}

func (c *Config) getDecimals(key, defaultValue string) []decimal.Decimal {
	raw := getEnv(key, defaultValue)
	if strings.EqualFold(strings.TrimSpace(raw), "none") {
		return nil
	}
	var out []decimal.Decimal
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := decimal.NewFromString(part)
		if err != nil {
			c.loadErrs = append(c.loadErrs, fmt.Sprintf("%s: invalid decimal %q", key, part))
			continue
		}
		out = append(out, v)
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}
