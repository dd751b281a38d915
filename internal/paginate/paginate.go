// Package paginate drives a fetcher across the result pages of one query.
package paginate

import (
	"context"
	"time"

	"pokequant/priceworker/internal/fetcher"
	"pokequant/priceworker/internal/query"
	"pokequant/priceworker/logger"
	perrors "pokequant/priceworker/pkg/errors"
)

// StopReason says why a query stopped paging
type StopReason string

const (
	StopNoMore    StopReason = "no_more"
	StopFailed    StopReason = "failed"
	StopResultCap StopReason = "result_cap"
	StopPageLimit StopReason = "page_limit"
	StopCancelled StopReason = "cancelled"
)

// Pager knows the page layout of a source
type Pager interface {
	Name() string
	PageURL(q query.Query, page int) (string, error)
	// HasNextPage reports whether body offers a next page
	HasNextPage(body string) bool
	// NoResults reports whether body is an explicit empty result page
	NoResults(body string) bool
	// PageEstimate is the expected record count of a full page
	PageEstimate() int
}

// Fetcher retrieves one page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (fetcher.Result, error)
}

// Config bounds a query. Zero MaxResults means no cap; zero MaxPages means no limit.
type Config struct {
	MaxPages     int
	MaxResults   int
	MinPageBytes int
}

// Page is one successfully fetched result page
type Page struct {
	Number    int
	URL       string
	Body      string
	FetchedAt time.Time
}

// Handler consumes a page and returns how many records it yielded
type Handler func(page Page) int

// Outcome summarizes a finished query
type Outcome struct {
	Pages      int
	Records    int
	Stop       StopReason
	Err        error
	Incomplete bool
}

// Controller pages through one source
type Controller struct {
	cfg     Config
	pager   Pager
	fetcher Fetcher
	now     func() time.Time
}

// New creates a Controller
func New(cfg Config, pager Pager, f Fetcher) *Controller {
	return &Controller{cfg: cfg, pager: pager, fetcher: f, now: time.Now}
}

// Run fetches pages of q strictly in order, handing each to handler, until a
// stop condition holds. A nil handler counts PageEstimate records per page.
func (c *Controller) Run(ctx context.Context, q query.Query, handler Handler) Outcome {
	log := logger.ForPaginator(c.pager.Name())
	var out Outcome

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return c.finish(log, out, StopCancelled, perrors.NewCancelled(c.pager.Name(), err))
		}

		url, err := c.pager.PageURL(q, page)
		if err != nil {
			return c.finish(log, out, StopFailed, perrors.NewQueryExhausted(c.pager.Name(), page, err))
		}

		res, err := c.fetcher.Fetch(ctx, url)
		if err != nil {
			if perrors.IsType(err, perrors.ErrorTypeCancelled) || ctx.Err() != nil {
				return c.finish(log, out, StopCancelled, err)
			}
			return c.finish(log, out, StopFailed, perrors.NewQueryExhausted(c.pager.Name(), page, err))
		}

		out.Pages++
		fetchedAt := res.FetchedAt
		if fetchedAt.IsZero() {
			fetchedAt = c.now()
		}
		count := c.pager.PageEstimate()
		if handler != nil {
			count = handler(Page{Number: page, URL: url, Body: res.Body, FetchedAt: fetchedAt})
		}
		out.Records += count
		log.Debug().Int("page", page).Int("records", count).Int("bytes", len(res.Body)).Msg("Page processed")

		if c.cfg.MaxResults > 0 && out.Records >= c.cfg.MaxResults {
			return c.finish(log, out, StopResultCap, nil)
		}
		if c.pager.NoResults(res.Body) || !c.pager.HasNextPage(res.Body) || len(res.Body) < c.cfg.MinPageBytes {
			return c.finish(log, out, StopNoMore, nil)
		}
		if c.cfg.MaxPages > 0 && page >= c.cfg.MaxPages {
			return c.finish(log, out, StopPageLimit, nil)
		}
	}
}

func (c *Controller) finish(log *logger.Logger, out Outcome, stop StopReason, err error) Outcome {
	out.Stop = stop
	out.Err = err
	out.Incomplete = stop == StopFailed || stop == StopCancelled

	event := log.Info()
	if out.Incomplete {
		event = log.Warn().Err(err)
	}
	event.Str("stop", string(stop)).Int("pages", out.Pages).Int("records", out.Records).Msg("Query finished")
	return out
}
