// Package collector runs one query end to end: resolve, paginate, extract,
// normalize, and assemble the series.
package collector

import (
	"context"
	"strings"
	"time"

	"pokequant/priceworker/internal/extract"
	"pokequant/priceworker/internal/fetcher"
	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/internal/paginate"
	"pokequant/priceworker/internal/query"
	"pokequant/priceworker/internal/source"
	"pokequant/priceworker/logger"

	"github.com/PuerkitoBio/goquery"
)

// Job is one query to collect under a stable item key
type Job struct {
	Key    string
	Source string
	Query  query.Query
}

// Stats counts what happened while collecting one job
type Stats struct {
	Pages     int
	Records   int
	Skipped   int
	Fallbacks int
	Ambiguous int
	Points    int
	Drops     map[string]int

	// Rejections counts irrelevant listings by title filter category
	Rejections map[string]int
}

// Result is the outcome of one job. Err is set whenever Incomplete is.
type Result struct {
	Key        string
	Source     string
	Query      query.Query
	Series     normalize.Series
	Incomplete bool
	Stop       paginate.StopReason
	Err        error
	Stats      Stats
}

// Collector collects jobs for one source
type Collector struct {
	source     source.Source
	fetcher    paginate.Fetcher
	pageCfg    paginate.Config
	normalizer *normalize.Normalizer
	schema     extract.Schema
	log        *logger.Logger
	now        func() time.Time
}

// New creates a Collector
func New(src source.Source, f paginate.Fetcher, pageCfg paginate.Config, norm *normalize.Normalizer) *Collector {
	return &Collector{
		source:     src,
		fetcher:    f,
		pageCfg:    pageCfg,
		normalizer: norm,
		schema:     src.Schema(),
		log:        logger.ForCollector(src.Name()),
		now:        time.Now,
	}
}

// Source returns the source name
func (c *Collector) Source() string {
	return c.source.Name()
}

// Collect runs job and returns whatever series could be built, flagged
// incomplete when a page failed or the context was cancelled
func (c *Collector) Collect(ctx context.Context, job Job) Result {
	res := Result{
		Key:    job.Key,
		Source: c.source.Name(),
		Query:  job.Query,
		Stats:  Stats{Drops: make(map[string]int), Rejections: make(map[string]int)},
	}
	fetchedAt := c.now()

	// Each job paces its own requests
	f := c.fetcher
	if s, ok := f.(interface{ Session() *fetcher.Fetcher }); ok {
		f = s.Session()
	}

	q := job.Query
	if r, ok := c.source.(source.Resolver); ok {
		resolved, err := r.Resolve(ctx, f, q)
		if err != nil {
			res.Stop = paginate.StopFailed
			if ctx.Err() != nil {
				res.Stop = paginate.StopCancelled
			}
			res.Incomplete = true
			res.Err = err
			res.Series = normalize.Series{}
			c.log.Warn().Str("key", job.Key).Err(err).Msg("Product resolution failed")
			return res
		}
		q = resolved
		res.Query = resolved
	}

	filter := c.source.ListingFilter(q)

	// Pages arrive strictly in order, so points keep fetch order for dedup
	var points []normalize.Point
	handler := func(page paginate.Page) int {
		prov := normalize.Provenance{Source: c.source.Name(), Query: q.String(), FetchedAt: page.FetchedAt}
		pagePoints, n := c.processPage(page, prov, filter, &res.Stats)
		points = append(points, pagePoints...)
		return n
	}

	outcome := paginate.New(c.pageCfg, c.source, f).Run(ctx, q, handler)
	res.Stop = outcome.Stop
	res.Err = outcome.Err
	res.Incomplete = outcome.Incomplete
	res.Stats.Pages = outcome.Pages

	res.Series = normalize.BuildSeries(points)
	res.Stats.Points = len(res.Series)

	event := c.log.Info()
	if res.Incomplete {
		event = c.log.Warn().Err(res.Err)
	}
	event.Str("key", job.Key).
		Str("stop", string(res.Stop)).
		Int("pages", res.Stats.Pages).
		Int("records", res.Stats.Records).
		Int("skipped", res.Stats.Skipped).
		Int("fallbacks", res.Stats.Fallbacks).
		Int("points", res.Stats.Points).
		Interface("drops", res.Stats.Drops).
		Interface("rejections", res.Stats.Rejections).
		Dur("elapsed", c.now().Sub(fetchedAt)).
		Msg("Collection finished")
	return res
}

// processPage extracts and normalizes one page, returning its points and the
// number of records found on it
func (c *Collector) processPage(page paginate.Page, prov normalize.Provenance, filter *normalize.ListingFilter, stats *Stats) ([]normalize.Point, int) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		c.log.Warn().Int("page", page.Number).Err(err).Msg("Failed to parse page")
		return nil, 0
	}

	records, report := extract.ExtractDocument(doc, c.schema)
	stats.Records += len(records)
	stats.Skipped += report.Skipped
	stats.Fallbacks += report.Fallbacks()
	if report.Ambiguous {
		stats.Ambiguous++
	}

	points := make([]normalize.Point, 0, len(records))
	for _, r := range records {
		p, reason := c.normalizer.Record(r.Fields, prov, filter)
		if reason != normalize.DropNone {
			stats.Drops[string(reason)]++
			if reason == normalize.DropIrrelevant {
				category, _ := filter.Check(r.Fields["title"])
				stats.Rejections[category]++
				c.log.Debug().Str("title", r.Fields["title"]).Str("category", category).Msg("Listing rejected")
			}
			continue
		}
		points = append(points, p)
	}

	if c.source.HasChart() {
		chart, drops := c.normalizer.Chart(page.Body, prov)
		for reason, n := range drops {
			stats.Drops[string(reason)] += n
		}
		points = append(points, chart...)
	}

	c.log.Debug().Int("page", page.Number).Int("records", len(records)).Int("points", len(points)).
		Msg("Page normalized")
	return points, len(records)
}
