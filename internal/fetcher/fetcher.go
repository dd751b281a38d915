// Package fetcher retrieves listing pages politely: randomized pacing between
// requests, exponential backoff on throttling and transient failures, and a
// shared block marker once a host keeps refusing us.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"math"
	mathrand "math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"pokequant/priceworker/helpers"
	"pokequant/priceworker/logger"
	perrors "pokequant/priceworker/pkg/errors"
	"pokequant/priceworker/services/cache"

	"golang.org/x/time/rate"
)

// Status classifies the outcome of a fetch
type Status int

const (
	StatusOK Status = iota
	StatusRateLimited
	StatusNotFound
	StatusTransientError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusRateLimited:
		return "rate_limited"
	case StatusNotFound:
		return "not_found"
	case StatusTransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// Result is the outcome of one Fetch call, after all retries
type Result struct {
	URL string
	// FinalURL is where the last response came from after redirects
	FinalURL   string
	Status     Status
	StatusCode int
	Body       string
	Attempts   int
	FetchedAt  time.Time
	Err        error
}

// ClientConfig is the immutable fetch policy of one source
type ClientConfig struct {
	Source       string
	Headers      helpers.HeaderProfile
	BlockPhrases []string
	MinDelay     time.Duration
	MaxDelay     time.Duration
	BaseDelay    time.Duration
	MaxRetries   int
	Timeout      time.Duration
	MaxBodyBytes int64
	BlockTime    time.Duration
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Source == "" {
		c.Source = "fetcher"
	}
	if len(c.Headers.UserAgents) == 0 {
		c.Headers = helpers.DefaultHeaderProfile()
	}
	if c.MaxDelay < c.MinDelay {
		c.MaxDelay = c.MinDelay
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 10 << 20
	}
	lowered := make([]string, 0, len(c.BlockPhrases))
	for _, p := range c.BlockPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			lowered = append(lowered, p)
		}
	}
	c.BlockPhrases = lowered
	return c
}

// Sleeper waits for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep is the production Sleeper
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithThrottle shares a global outbound limiter between fetchers
func WithThrottle(l *rate.Limiter) Option {
	return func(f *Fetcher) { f.throttle = l }
}

// WithCache stores block markers in cacheSvc
func WithCache(cacheSvc cache.CacheService) Option {
	return func(f *Fetcher) { f.cache = cacheSvc }
}

// WithSleeper replaces the wall-clock sleeper
func WithSleeper(s Sleeper) Option {
	return func(f *Fetcher) { f.sleep = s }
}

// WithRand replaces the random source used for delays and header rotation
func WithRand(r *mathrand.Rand) Option {
	return func(f *Fetcher) { f.rnd = r }
}

// WithClock replaces the clock stamping FetchedAt
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// Fetcher is safe for concurrent use by the queries of one source
type Fetcher struct {
	cfg      ClientConfig
	client   *http.Client
	throttle *rate.Limiter
	cache    cache.CacheService
	sleep    Sleeper
	now      func() time.Time
	log      *logger.Logger

	mu      sync.Mutex
	rnd     *mathrand.Rand
	started bool
}

// New creates a Fetcher for cfg
func New(cfg ClientConfig, opts ...Option) *Fetcher {
	cfg = cfg.withDefaults()
	f := &Fetcher{
		cfg:   cfg,
		sleep: ContextSleep,
		now:   time.Now,
		rnd:   mathrand.New(mathrand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: cfg.Timeout}
	}
	f.log = logger.ForFetcher(cfg.Source)
	return f
}

// Session returns a Fetcher with the same policy, client, throttle and block
// cache but its own pacing state, for one query to use on its own
func (f *Fetcher) Session() *Fetcher {
	f.mu.Lock()
	seed := f.rnd.Int63()
	f.mu.Unlock()
	return &Fetcher{
		cfg:      f.cfg,
		client:   f.client,
		throttle: f.throttle,
		cache:    f.cache,
		sleep:    f.sleep,
		now:      f.now,
		log:      f.log,
		rnd:      mathrand.New(mathrand.NewSource(seed)),
	}
}

// Config returns the fetch policy
func (f *Fetcher) Config() ClientConfig {
	return f.cfg
}

// Fetch retrieves url using the configured retry budget
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Result, error) {
	return f.FetchWithBudget(ctx, rawURL, f.cfg.MaxRetries)
}

// FetchWithBudget retrieves url, retrying rate-limited and transient failures
// up to maxRetries times. NotFound is never retried. The returned error is nil
// exactly when the status is StatusOK.
func (f *Fetcher) FetchWithBudget(ctx context.Context, rawURL string, maxRetries int) (Result, error) {
	res := Result{URL: rawURL}
	if maxRetries < 0 {
		maxRetries = 0
	}

	host := hostOf(rawURL)
	if f.isBlocked(host) {
		res.Status = StatusRateLimited
		res.Err = perrors.NewRateLimit(f.cfg.Source,
			fmt.Sprintf("%s is blocked for %ds", host, int(f.cfg.BlockTime/time.Second)))
		return res, res.Err
	}

	if delay := f.pacingDelay(); delay > 0 {
		if err := f.sleep(ctx, delay); err != nil {
			return f.cancelled(res, err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return f.cancelled(res, err)
		}
		if f.throttle != nil {
			if err := f.throttle.Wait(ctx); err != nil {
				return f.cancelled(res, err)
			}
		}

		res.Attempts++
		out := f.attempt(ctx, rawURL)
		res.Status, res.StatusCode, res.Body, res.Err = out.status, out.code, out.body, out.err
		res.FinalURL = out.finalURL
		res.FetchedAt = f.now()
		if res.Status == StatusOK {
			return res, nil
		}
		if ctx.Err() != nil {
			return f.cancelled(res, ctx.Err())
		}
		if res.Status == StatusNotFound || attempt >= maxRetries {
			break
		}

		delay := f.backoff(attempt)
		f.log.Warn().
			Str("url", rawURL).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("status_kind", res.Status.String()).
			Int("status_code", res.StatusCode).
			Msg("Retrying request")
		if err := f.sleep(ctx, delay); err != nil {
			return f.cancelled(res, err)
		}
	}

	if res.Status == StatusRateLimited {
		f.block(host)
	}
	f.log.Error().
		Str("url", rawURL).
		Int("attempts", res.Attempts).
		Str("status_kind", res.Status.String()).
		Err(res.Err).
		Msg("Request failed")
	return res, res.Err
}

// attemptResult is one classified HTTP round trip
type attemptResult struct {
	status   Status
	code     int
	body     string
	finalURL string
	err      error
}

// attempt performs one HTTP round trip and classifies it
func (f *Fetcher) attempt(ctx context.Context, rawURL string) attemptResult {
	f.mu.Lock()
	req, err := helpers.NewBrowserRequest(ctx, rawURL, f.cfg.Headers, f.rnd)
	f.mu.Unlock()
	if err != nil {
		return attemptResult{status: StatusNotFound, err: perrors.NewValidation(f.cfg.Source, err.Error())}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return attemptResult{status: StatusTransientError, err: perrors.NewNetwork(f.cfg.Source, "request failed", err)}
	}
	defer resp.Body.Close()

	out := attemptResult{code: resp.StatusCode, finalURL: rawURL}
	if resp.Request != nil && resp.Request.URL != nil {
		out.finalURL = resp.Request.URL.String()
	}

	code := resp.StatusCode
	switch {
	case helpers.IsRateLimitStatus(code):
		out.status, out.err = StatusRateLimited, perrors.NewRateLimit(f.cfg.Source, fmt.Sprintf("status %d", code))
		return out
	case code >= 500:
		out.status, out.err = StatusTransientError, perrors.NewNetwork(f.cfg.Source, fmt.Sprintf("server error %d", code), nil)
		return out
	case code >= 400:
		out.status, out.err = StatusNotFound, perrors.NewNotFound(f.cfg.Source, code)
		return out
	case code < 200 || code >= 300:
		out.status, out.err = StatusTransientError, perrors.NewNetwork(f.cfg.Source, fmt.Sprintf("unexpected status %d", code), nil)
		return out
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxBodyBytes))
	if err != nil {
		out.status, out.err = StatusTransientError, perrors.NewNetwork(f.cfg.Source, "failed to read body", err)
		return out
	}
	body, err := helpers.DecodeBody(raw, resp.Header.Get("Content-Type"))
	if err != nil {
		out.status, out.err = StatusTransientError, perrors.NewNetwork(f.cfg.Source, "failed to decode body", err)
		return out
	}

	out.body = body
	if phrase := f.blockPhrase(body); phrase != "" {
		out.status, out.err = StatusRateLimited, perrors.NewRateLimit(f.cfg.Source, fmt.Sprintf("block page (%q)", phrase))
		return out
	}
	out.status = StatusOK
	return out
}

func (f *Fetcher) blockPhrase(body string) string {
	if len(f.cfg.BlockPhrases) == 0 {
		return ""
	}
	lower := strings.ToLower(body)
	for _, p := range f.cfg.BlockPhrases {
		if strings.Contains(lower, p) {
			return p
		}
	}
	return ""
}

// pacingDelay is zero for the first request of the session and uniform in
// [MinDelay, MaxDelay] afterwards
func (f *Fetcher) pacingDelay() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		f.started = true
		return 0
	}
	span := f.cfg.MaxDelay - f.cfg.MinDelay
	if span <= 0 {
		return f.cfg.MinDelay
	}
	return f.cfg.MinDelay + time.Duration(f.rnd.Int63n(int64(span)+1))
}

func (f *Fetcher) backoff(attempt int) time.Duration {
	return time.Duration(float64(f.cfg.BaseDelay) * math.Pow(2, float64(attempt)))
}

func (f *Fetcher) cancelled(res Result, err error) (Result, error) {
	res.Status = StatusTransientError
	res.Err = perrors.NewCancelled(f.cfg.Source, err)
	return res, res.Err
}

// BlockKey is the cache key marking host as blocked
func BlockKey(host string) string {
	return "blocked:" + host
}

func (f *Fetcher) isBlocked(host string) bool {
	if f.cache == nil || host == "" {
		return false
	}
	_, err := f.cache.Get(BlockKey(host))
	return err == nil
}

func (f *Fetcher) block(host string) {
	if f.cache == nil || host == "" || f.cfg.BlockTime <= 0 {
		return
	}
	seconds := fmt.Sprintf("%d", int(f.cfg.BlockTime/time.Second))
	if err := f.cache.Set(BlockKey(host), []byte(seconds), f.cfg.BlockTime); err != nil {
		logger.ForCache().Warn().Err(err).Str("host", host).Msg("Failed to store block marker")
		return
	}
	f.log.Warn().Str("host", host).Dur("block_time", f.cfg.BlockTime).Msg("Host blocked after repeated rate limiting")
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Host
}
