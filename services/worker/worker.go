package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"pokequant/priceworker/helpers"
	"pokequant/priceworker/internal/collector"
	"pokequant/priceworker/logger"
	"pokequant/priceworker/services/publisher"
	"pokequant/priceworker/services/store"

	"golang.org/x/sync/errgroup"
)

const deliverTimeout = 10 * time.Second

// Collector runs a single job
type Collector interface {
	Collect(ctx context.Context, job collector.Job) collector.Result
}

// RunStats summarizes one pass over all jobs
type RunStats struct {
	Jobs       int
	Published  int
	Incomplete int
	Failed     int
	Points     int
}

// Worker handles the collecting and publishing process
type Worker struct {
	ctx         context.Context
	jobs        []collector.Job
	collectors  map[string]Collector
	publisher   publisher.Publisher
	store       store.SeriesStore
	logger      helpers.LoggerInterface
	interval    time.Duration
	concurrency int
	verbose     bool
	log         *logger.Logger
}

// Option configures a Worker
type Option func(*Worker)

// WithStore saves every collected series to s in addition to publishing it
func WithStore(s store.SeriesStore) Option {
	return func(w *Worker) { w.store = s }
}

// WithVerbose logs a preview of every published series
func WithVerbose(v bool) Option {
	return func(w *Worker) { w.verbose = v }
}

// NewWorker creates a new worker
func NewWorker(
	ctx context.Context,
	jobs []collector.Job,
	collectors map[string]Collector,
	pub publisher.Publisher,
	failLog helpers.LoggerInterface,
	interval time.Duration,
	concurrency int,
	opts ...Option,
) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	w := &Worker{
		ctx:         ctx,
		jobs:        jobs,
		collectors:  collectors,
		publisher:   pub,
		logger:      failLog,
		interval:    interval,
		concurrency: concurrency,
		log:         logger.ForWorker(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs all jobs, then waits for the interval and runs them again until
// the context is cancelled. A zero interval runs the jobs once.
func (w *Worker) Start() error {
	for {
		start := time.Now()
		stats := w.RunOnce(w.ctx)
		elapsed := time.Since(start)

		w.log.Info().
			Int("jobs", stats.Jobs).
			Int("published", stats.Published).
			Int("incomplete", stats.Incomplete).
			Int("failed", stats.Failed).
			Int("points", stats.Points).
			Dur("elapsed", elapsed).
			Msg("Collection pass finished")

		if w.interval <= 0 {
			return nil
		}

		timer := time.NewTimer(w.interval)
		select {
		case <-w.ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// RunOnce runs every job with bounded concurrency, delivers each result and
// trims the streams afterwards
func (w *Worker) RunOnce(ctx context.Context) RunStats {
	var (
		mu    sync.Mutex
		stats = RunStats{Jobs: len(w.jobs)}
	)

	g := new(errgroup.Group)
	g.SetLimit(w.concurrency)
	for _, job := range w.jobs {
		if ctx.Err() != nil {
			break
		}
		job := job
		g.Go(func() error {
			published, incomplete, failed, points := w.collectAndPublish(ctx, job)
			mu.Lock()
			defer mu.Unlock()
			if published {
				stats.Published++
			}
			if incomplete {
				stats.Incomplete++
			}
			if failed {
				stats.Failed++
			}
			stats.Points += points
			return nil
		})
	}
	_ = g.Wait()

	// Trim all streams after collecting
	trimCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()
	if err := w.publisher.TrimStreams(trimCtx); err != nil {
		w.logger.LogError("StreamTrimming", err)
	}

	return stats
}

// collectAndPublish collects one job and hands its series to the publisher
// and, when configured, the store. Partial series are delivered too.
func (w *Worker) collectAndPublish(ctx context.Context, job collector.Job) (published, incomplete, failed bool, points int) {
	c, ok := w.collectors[job.Source]
	if !ok {
		w.log.Error().Str("key", job.Key).Str("source", job.Source).Msg("No collector for source")
		return false, false, true, 0
	}

	res := c.Collect(ctx, job)
	if res.Err != nil {
		w.logger.LogError(job.Key, res.Err)
	}
	incomplete = res.Incomplete
	points = len(res.Series)

	// Results of a cancelled pass are still delivered
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliverTimeout)
	defer cancel()

	data, err := json.Marshal(NewSeriesMessage(res))
	if err != nil {
		w.logger.LogError(job.Key, err)
		return false, incomplete, true, points
	}

	if err := w.publisher.Publish(deliverCtx, job.Key, data); err != nil {
		w.logger.LogError(job.Key, err)
		failed = true
	} else {
		published = true
	}

	if w.store != nil && len(res.Series) > 0 {
		if _, err := w.store.Save(deliverCtx, job.Key, res.Source, res.Series); err != nil {
			w.logger.LogError(job.Key, err)
			failed = true
		}
	}

	if w.verbose && len(res.Series) > 0 {
		first := res.Series[0]
		w.log.Info().
			Str("key", job.Key).
			Str("source", res.Source).
			Int("points", len(res.Series)).
			Str("first_date", first.Date.Format(time.DateOnly)).
			Str("first_amount", first.Amount.StringFixed(2)).
			Str("currency", first.Currency).
			Msg("Series collected")
	}

	return published, incomplete, failed, points
}

// NewSeriesMessage converts a collection result into its wire form
func NewSeriesMessage(res collector.Result) publisher.SeriesMessage {
	msg := publisher.SeriesMessage{
		Key:        res.Key,
		Source:     res.Source,
		Query:      res.Query.String(),
		Target:     res.Query.Target,
		Incomplete: res.Incomplete,
		Stop:       string(res.Stop),
		Points:     make([]publisher.PointMessage, 0, len(res.Series)),
	}
	if res.Err != nil {
		msg.Error = res.Err.Error()
	}

	for _, p := range res.Series {
		msg.Points = append(msg.Points, publisher.PointMessage{
			Date:      p.Date.Format(time.DateOnly),
			Amount:    p.Amount,
			Currency:  p.Currency,
			FetchedAt: p.Provenance.FetchedAt,
			Title:     p.Title,
			URL:       p.URL,
			Bids:      p.Bids,

			CardNumber: p.Card.Number,
			Set:        p.Card.Set,
			Graded:     p.Card.Graded,
			Grader:     p.Card.GradingCompany,
			Grade:      p.Card.Grade,
		})
	}
	return msg
}
