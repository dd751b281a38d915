// Package source holds the page layouts of the supported price sites.
package source

import (
	"context"
	"fmt"
	"sort"

	"pokequant/priceworker/internal/extract"
	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/internal/paginate"
	"pokequant/priceworker/internal/query"
)

// Source names
const (
	NameEbay          = "ebay"
	NamePriceCharting = "pricecharting"
)

// Source describes one price site
type Source interface {
	paginate.Pager
	Schema() extract.Schema
	BlockPhrases() []string
	// HasChart reports whether pages embed chart pairs worth decoding
	HasChart() bool
	// ListingFilter screens listing titles for q; nil keeps every listing
	ListingFilter(q query.Query) *normalize.ListingFilter
}

// Resolver is implemented by sources that must look up a product page before
// the query can be paged
type Resolver interface {
	Resolve(ctx context.Context, f paginate.Fetcher, q query.Query) (query.Query, error)
}

// URLs configures where each source lives
type URLs struct {
	Ebay          string
	PriceCharting string
}

// All returns every known source keyed by name
func All(urls URLs) map[string]Source {
	return map[string]Source{
		NameEbay:          NewEbay(urls.Ebay),
		NamePriceCharting: NewPriceCharting(urls.PriceCharting),
	}
}

// Lookup returns the named source
func Lookup(sources map[string]Source, name string) (Source, error) {
	s, ok := sources[name]
	if !ok {
		names := make([]string, 0, len(sources))
		for n := range sources {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown source %q (known: %v)", name, names)
	}
	return s, nil
}
