package collector

import (
	"fmt"

	"pokequant/priceworker/config"
	"pokequant/priceworker/helpers"
	"pokequant/priceworker/internal/fetcher"
	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/internal/paginate"
	"pokequant/priceworker/internal/query"
	"pokequant/priceworker/internal/source"
	"pokequant/priceworker/logger"
	"pokequant/priceworker/services/cache"

	"golang.org/x/time/rate"
)

// CreateCollectors creates one collector per known source. Each source gets
// its own fetcher; throttle, when set, is shared by all of them.
func CreateCollectors(cfg *config.Config, cacheSvc cache.CacheService, throttle *rate.Limiter) map[string]*Collector {
	sources := source.All(source.URLs{Ebay: cfg.EbayURL, PriceCharting: cfg.PriceChartingURL})

	norm := normalize.New(NormalizeConfig(cfg))
	pageCfg := paginate.Config{
		MaxPages:     cfg.MaxPages,
		MaxResults:   cfg.MaxResults,
		MinPageBytes: cfg.MinPageBytes,
	}

	collectors := make(map[string]*Collector, len(sources))
	for name, src := range sources {
		opts := []fetcher.Option{}
		if cacheSvc != nil {
			opts = append(opts, fetcher.WithCache(cacheSvc))
		}
		if throttle != nil {
			opts = append(opts, fetcher.WithThrottle(throttle))
		}
		f := fetcher.New(ClientConfig(cfg, src), opts...)

		// Product pages are a single page, so the listing size floor does not apply
		sourcePageCfg := pageCfg
		if src.HasChart() {
			sourcePageCfg.MinPageBytes = 0
		}
		collectors[name] = New(src, f, sourcePageCfg, norm)
		logger.ForCollector(name).Debug().Int("max_pages", sourcePageCfg.MaxPages).Msg("Collector created")
	}

	logger.ForWorker().Info().Int("count", len(collectors)).Msg("Created collectors")

	return collectors
}

// ClientConfig derives the fetch policy of src from cfg
func ClientConfig(cfg *config.Config, src source.Source) fetcher.ClientConfig {
	return fetcher.ClientConfig{
		Source:       src.Name(),
		Headers:      helpers.DefaultHeaderProfile(),
		BlockPhrases: src.BlockPhrases(),
		MinDelay:     cfg.MinDelay,
		MaxDelay:     cfg.MaxDelay,
		BaseDelay:    cfg.BaseDelay,
		MaxRetries:   cfg.MaxRetries,
		Timeout:      cfg.RequestTimeout,
		BlockTime:    cfg.BlockTime,
	}
}

// NormalizeConfig derives the noise filters from cfg
func NormalizeConfig(cfg *config.Config) normalize.Config {
	return normalize.Config{
		ArtifactPrices: cfg.ArtifactPrices,
		Min:            cfg.PriceMin,
		Max:            cfg.PriceMax,
	}
}

// BuildJobs turns configured targets into jobs. Targets naming an unknown
// source or carrying invalid filters are rejected.
func BuildJobs(targets []config.Target, collectors map[string]*Collector) ([]Job, error) {
	jobs := make([]Job, 0, len(targets))
	for _, t := range targets {
		if _, ok := collectors[t.Source]; !ok {
			return nil, fmt.Errorf("target %s: unknown source %q", t.ID, t.Source)
		}

		var (
			q   query.Query
			err error
		)
		if t.Card != nil {
			q, err = query.ForCard(t.Card.Name, t.Card.Number, t.Card.Set, t.Filters)
		} else {
			q, err = query.New(t.Keywords, t.Filters)
		}
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", t.ID, err)
		}

		jobs = append(jobs, Job{Key: t.ID, Source: t.Source, Query: q})
	}
	return jobs, nil
}
