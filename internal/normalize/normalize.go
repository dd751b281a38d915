// Package normalize converts extracted price and date text into canonical
// USD points and assembles them into date-ordered series.
package normalize

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Currency of every point
const Currency = "USD"

// Kind selects how Normalize reads a raw value
type Kind int

const (
	KindPrice Kind = iota
	KindDate
	KindChartPair
)

// DropReason explains why an amount or record was not kept
type DropReason string

const (
	DropNone        DropReason = ""
	DropNonPositive DropReason = "non_positive"
	DropArtifact    DropReason = "artifact"
	DropBelowMin    DropReason = "below_min"
	DropAboveMax    DropReason = "above_max"
	DropUnparseable DropReason = "unparseable"
	DropIrrelevant  DropReason = "irrelevant"
)

// Config holds the noise filters
type Config struct {
	// Amounts equal to one of these are platform artifacts, not sales
	ArtifactPrices []decimal.Decimal
	Min            decimal.Decimal
	Max            decimal.Decimal
	// ReferenceTime supplies the year for dates printed without one
	ReferenceTime time.Time
}

// DefaultConfig returns the filters observed on the card price sites
func DefaultConfig() Config {
	return Config{
		ArtifactPrices: []decimal.Decimal{decimal.RequireFromString("6.00")},
		Min:            decimal.RequireFromString("1.00"),
		Max:            decimal.RequireFromString("100000.00"),
	}
}

// Provenance records where a point came from
type Provenance struct {
	Source    string
	Query     string
	FetchedAt time.Time
}

// Point is one normalized observation
type Point struct {
	Date       time.Time
	Amount     decimal.Decimal
	Currency   string
	Provenance Provenance

	Title string
	URL   string
	Bids  int

	// Card is parsed from Title
	Card CardInfo
}

// Component is the result of normalizing one raw value
type Component struct {
	Date   time.Time
	Amount decimal.Decimal
}

// Normalizer applies Config to raw values
type Normalizer struct {
	cfg Config
}

// New creates a Normalizer
func New(cfg Config) *Normalizer {
	return &Normalizer{cfg: cfg}
}

func (n *Normalizer) reference() time.Time {
	if n.cfg.ReferenceTime.IsZero() {
		return time.Now().UTC()
	}
	return n.cfg.ReferenceTime
}

// Normalize reads raw as kind. Amounts rejected by Check are reported as absent.
func (n *Normalizer) Normalize(raw string, kind Kind) (Component, bool) {
	switch kind {
	case KindPrice:
		amount, ok := CleanPrice(raw)
		if !ok || n.Check(amount) != DropNone {
			return Component{}, false
		}
		return Component{Amount: amount}, true
	case KindDate:
		date, ok := ParseDate(raw, n.reference())
		if !ok {
			return Component{}, false
		}
		return Component{Date: date}, true
	case KindChartPair:
		date, amount, ok := DecodePair(raw)
		if !ok || n.Check(amount) != DropNone {
			return Component{}, false
		}
		return Component{Date: date, Amount: amount}, true
	default:
		return Component{}, false
	}
}

// Check returns why amount must be dropped, or DropNone
func (n *Normalizer) Check(amount decimal.Decimal) DropReason {
	if !amount.IsPositive() {
		return DropNonPositive
	}
	for _, a := range n.cfg.ArtifactPrices {
		if amount.Equal(a) {
			return DropArtifact
		}
	}
	if !n.cfg.Min.IsZero() && amount.LessThan(n.cfg.Min) {
		return DropBelowMin
	}
	if !n.cfg.Max.IsZero() && amount.GreaterThan(n.cfg.Max) {
		return DropAboveMax
	}
	return DropNone
}

// Record turns one extracted listing into a point. A listing without a
// readable date is dated on the day it was fetched. Titles rejected by filter
// are dropped as DropIrrelevant; a nil filter keeps every title.
func (n *Normalizer) Record(fields map[string]string, prov Provenance, filter *ListingFilter) (Point, DropReason) {
	amount, ok := CleanPrice(fields["price"])
	if !ok {
		return Point{}, DropUnparseable
	}
	if reason := n.Check(amount); reason != DropNone {
		return Point{}, reason
	}
	if _, ok := filter.Check(fields["title"]); !ok {
		return Point{}, DropIrrelevant
	}

	date, ok := ParseDate(fields["date"], n.reference())
	if !ok {
		date = toDate(prov.FetchedAt)
	}

	p := Point{
		Date:       date,
		Amount:     amount,
		Currency:   Currency,
		Provenance: prov,
		Title:      fields["title"],
		URL:        fields["link"],
		Card:       ParseTitle(fields["title"]),
	}
	if bids, ok := ParseBids(fields["bids"]); ok {
		p.Bids = bids
	}
	return p, DropNone
}

// Chart decodes every chart pair in text into points, counting the drops
func (n *Normalizer) Chart(text string, prov Provenance) ([]Point, map[DropReason]int) {
	drops := make(map[DropReason]int)
	var points []Point
	for _, pair := range FindPairs(text) {
		date, amount, ok := decodeMatch(pair[0], pair[1])
		if !ok {
			drops[DropUnparseable]++
			continue
		}
		if reason := n.Check(amount); reason != DropNone {
			drops[reason]++
			continue
		}
		points = append(points, Point{Date: date, Amount: amount, Currency: Currency, Provenance: prov})
	}
	return points, drops
}

// Series is a date-ascending sequence with at most one point per date
type Series []Point

// BuildSeries orders points by date and keeps one per date: the most recently
// fetched, with later input winning ties.
func BuildSeries(points []Point) Series {
	byDate := make(map[string]int, len(points))
	kept := make([]Point, 0, len(points))
	for _, p := range points {
		key := p.Date.UTC().Format(time.DateOnly)
		if i, ok := byDate[key]; ok {
			if !p.Provenance.FetchedAt.Before(kept[i].Provenance.FetchedAt) {
				kept[i] = p
			}
			continue
		}
		byDate[key] = len(kept)
		kept = append(kept, p)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Date.Before(kept[j].Date)
	})
	return Series(kept)
}

// Merge combines s with newer points under the same rules as BuildSeries
func (s Series) Merge(points []Point) Series {
	all := make([]Point, 0, len(s)+len(points))
	all = append(all, s...)
	all = append(all, points...)
	return BuildSeries(all)
}
