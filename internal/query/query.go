// Package query defines the immutable search value handed to the pagination controller.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	perrors "pokequant/priceworker/pkg/errors"

	"github.com/shopspring/decimal"
)

// Filter keys accepted by New
const (
	FilterSort         = "sort"
	FilterMinPrice     = "min_price"
	FilterMaxPrice     = "max_price"
	FilterCondition    = "condition"
	FilterItemsPerPage = "items_per_page"
)

var knownFilters = map[string]bool{
	FilterSort:         true,
	FilterMinPrice:     true,
	FilterMaxPrice:     true,
	FilterCondition:    true,
	FilterItemsPerPage: true,
}

// Filters are the optional search refinements a source may honor
type Filters struct {
	Sort         string
	MinPrice     decimal.NullDecimal
	MaxPrice     decimal.NullDecimal
	Condition    string
	ItemsPerPage int
}

// Query is one search invocation: keywords plus validated filters, and the
// resolved product page once a source has looked it up.
type Query struct {
	Keywords string
	Filters  Filters
	Target   string

	searchTerm string
	cardName   string
}

// New builds a Query, rejecting unknown filter keys and values of the wrong type
func New(keywords string, filters map[string]interface{}) (Query, error) {
	keywords = strings.Join(strings.Fields(keywords), " ")
	if keywords == "" {
		return Query{}, perrors.NewValidation("query", "keywords must not be empty")
	}

	q := Query{Keywords: keywords}

	// Sorted so the first reported problem is stable
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !knownFilters[key] {
			return Query{}, perrors.NewValidation("query", fmt.Sprintf("unknown filter %q", key))
		}
		raw := filters[key]
		var err error
		switch key {
		case FilterSort:
			q.Filters.Sort, err = asString(raw)
		case FilterCondition:
			q.Filters.Condition, err = asString(raw)
		case FilterMinPrice:
			q.Filters.MinPrice, err = asPrice(raw)
		case FilterMaxPrice:
			q.Filters.MaxPrice, err = asPrice(raw)
		case FilterItemsPerPage:
			q.Filters.ItemsPerPage, err = asInt(raw)
			if err == nil && q.Filters.ItemsPerPage <= 0 {
				err = fmt.Errorf("must be positive")
			}
		}
		if err != nil {
			return Query{}, perrors.NewValidation("query", fmt.Sprintf("filter %q: %v", key, err))
		}
	}

	if q.Filters.MinPrice.Valid && q.Filters.MaxPrice.Valid &&
		q.Filters.MinPrice.Decimal.GreaterThan(q.Filters.MaxPrice.Decimal) {
		return Query{}, perrors.NewValidation("query", "min_price exceeds max_price")
	}

	return q, nil
}

// ForCard builds a card query the way sold-listing searches are phrased:
// "<name> <number> pokemon card <set>". The short "<name> <number>" form is
// kept as the SearchTerm for price-guide sites.
func ForCard(name, number, set string, filters map[string]interface{}) (Query, error) {
	term := strings.TrimSpace(name)
	if n := strings.TrimPrefix(strings.TrimSpace(number), "#"); n != "" {
		term += " " + n
	}

	parts := []string{term, "pokemon card"}
	if s := strings.TrimSpace(set); s != "" {
		parts = append(parts, s)
	}

	q, err := New(strings.Join(parts, " "), filters)
	if err != nil {
		return Query{}, err
	}
	q.searchTerm = strings.Join(strings.Fields(term), " ")
	q.cardName = strings.Join(strings.Fields(name), " ")
	return q, nil
}

// SearchTerm returns the short product term, falling back to the keywords
func (q Query) SearchTerm() string {
	if q.searchTerm != "" {
		return q.searchTerm
	}
	return q.Keywords
}

// CardName is the card name a ForCard query was built from, or "" for a
// keyword query
func (q Query) CardName() string {
	return q.cardName
}

// WithTarget returns a copy of q pointing at a resolved product page
func (q Query) WithTarget(url string) Query {
	q.Target = url
	return q
}

// String renders the query for logs and provenance
func (q Query) String() string {
	var b strings.Builder
	b.WriteString(q.Keywords)
	if q.Filters.MinPrice.Valid {
		b.WriteString(" min=" + q.Filters.MinPrice.Decimal.String())
	}
	if q.Filters.MaxPrice.Valid {
		b.WriteString(" max=" + q.Filters.MaxPrice.Decimal.String())
	}
	if q.Filters.Condition != "" {
		b.WriteString(" condition=" + q.Filters.Condition)
	}
	return b.String()
}

func asString(v interface{}) (string, error) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func asInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("expected whole number, got %v", t)
		}
		return int(t), nil
	case string:
		return strconv.Atoi(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

func asPrice(v interface{}) (decimal.NullDecimal, error) {
	var d decimal.Decimal
	switch t := v.(type) {
	case int:
		d = decimal.NewFromInt(int64(t))
	case int64:
		d = decimal.NewFromInt(t)
	case float64:
		d = decimal.NewFromFloat(t)
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		d = parsed
	case decimal.Decimal:
		d = t
	default:
		return decimal.NullDecimal{}, fmt.Errorf("expected number, got %T", v)
	}
	if d.IsNegative() {
		return decimal.NullDecimal{}, fmt.Errorf("must not be negative")
	}
	return decimal.NewNullDecimal(d), nil
}
