package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"pokequant/priceworker/helpers"
	"pokequant/priceworker/internal/extract"
	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/internal/paginate"
	"pokequant/priceworker/internal/query"
	"pokequant/priceworker/logger"
	perrors "pokequant/priceworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// productPaths are the page layouts an offers product id may live under
var productPaths = []string{"/console/", "/product/", "/game/"}

// PriceCharting reads the price history of one resolved product page
type PriceCharting struct {
	baseURL string
}

// NewPriceCharting creates the PriceCharting source
func NewPriceCharting(baseURL string) *PriceCharting {
	if baseURL == "" {
		baseURL = "https://www.pricecharting.com"
	}
	return &PriceCharting{baseURL: strings.TrimRight(baseURL, "/")}
}

func (p *PriceCharting) Name() string { return NamePriceCharting }

// PageURL returns the resolved product page. Product pages are not paginated.
func (p *PriceCharting) PageURL(q query.Query, page int) (string, error) {
	if q.Target == "" {
		return "", fmt.Errorf("product page for %q is not resolved", q.SearchTerm())
	}
	if page != 1 {
		return "", fmt.Errorf("product pages have a single page, asked for %d", page)
	}
	return q.Target, nil
}

func (p *PriceCharting) HasNextPage(string) bool { return false }

func (p *PriceCharting) NoResults(string) bool { return false }

func (p *PriceCharting) PageEstimate() int { return 1 }

func (p *PriceCharting) BlockPhrases() []string {
	return []string{"access denied", "unusual traffic"}
}

func (p *PriceCharting) HasChart() bool { return true }

// ListingFilter is nil: sales rows on a product page all belong to that product
func (p *PriceCharting) ListingFilter(q query.Query) *normalize.ListingFilter {
	return nil
}

// SearchURL builds the product search URL for term
func (p *PriceCharting) SearchURL(term string) string {
	params := url.Values{}
	params.Set("q", term)
	params.Set("console", "")
	params.Set("genre", "TCG Card")
	return p.baseURL + "/search-products?" + params.Encode()
}

// Schema reads the completed sales tables of a product page
func (p *PriceCharting) Schema() extract.Schema {
	return extract.Schema{
		Name: NamePriceCharting,
		Containers: []string{
			".completed-auctions-used table tbody tr",
			"#completed-auctions table tbody tr",
			"table.hoverable-rows tbody tr",
		},
		MinContainers: extract.DefaultMinContainers,
		Fields: []extract.Field{
			{
				Name:     "date",
				Required: true,
				Candidates: []extract.Candidate{
					{Selector: "td.date"},
					{Handler: func(s *goquery.Selection) string { return s.Find("td").First().Text() }},
				},
				Plausible: extract.MinLength(6),
			},
			{
				Name:     "title",
				Required: true,
				Candidates: []extract.Candidate{
					{Selector: "td.title a"},
					{Selector: "td.title"},
				},
				// Locked rows advertise the paid subscription instead of a sale
				Plausible: extract.All(extract.MinLength(3), extract.Not(extract.ContainsAny("subscribe", "/month"))),
			},
			{
				Name:     "price",
				Required: true,
				Candidates: []extract.Candidate{
					{Selector: "span.js-price"},
					{Selector: "td.numeric"},
				},
				Plausible: extract.HasCurrency(),
			},
			{
				Name: "link",
				Candidates: []extract.Candidate{
					{Selector: "td.title a", Attr: "href"},
				},
			},
		},
	}
}

// Resolve finds the product page for q through the site search: first via the
// offers links in the results table, then via product links whose text
// matches the search words.
func (p *PriceCharting) Resolve(ctx context.Context, f paginate.Fetcher, q query.Query) (query.Query, error) {
	if q.Target != "" {
		return q, nil
	}
	log := logger.ForSource(NamePriceCharting).WithField("term", q.SearchTerm())

	res, err := f.Fetch(ctx, p.SearchURL(q.SearchTerm()))
	if err != nil {
		return q, err
	}

	// A single hit redirects straight to the product page
	if isProductPage(res.Body) {
		target := res.FinalURL
		if target == "" {
			target = res.URL
		}
		return q.WithTarget(target), nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Body))
	if err != nil {
		return q, perrors.NewValidation(NamePriceCharting, fmt.Sprintf("failed to parse search page: %v", err))
	}

	for _, id := range offerProductIDs(doc) {
		for _, path := range productPaths {
			candidate := p.baseURL + path + id
			page, err := f.Fetch(ctx, candidate)
			if err != nil {
				if perrors.IsType(err, perrors.ErrorTypeCancelled) {
					return q, err
				}
				log.Debug().Str("url", candidate).Err(err).Msg("Product candidate rejected")
				continue
			}
			if isProductPage(page.Body) {
				log.Info().Str("url", candidate).Msg("Product resolved from offers link")
				return q.WithTarget(candidate), nil
			}
		}
	}

	if link := p.matchingProductLink(doc, q.SearchTerm()); link != "" {
		log.Info().Str("url", link).Msg("Product resolved from search results")
		return q.WithTarget(link), nil
	}

	return q, perrors.New(perrors.ErrorTypeNotFound, NamePriceCharting,
		fmt.Sprintf("no product matched %q", q.SearchTerm()), nil)
}

// offerProductIDs returns the product ids of "/offers?product=" links in tables, in order
func offerProductIDs(doc *goquery.Document) []string {
	var ids []string
	seen := make(map[string]bool)
	doc.Find("table a").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.Contains(href, "/offers?product=") {
			return
		}
		part, err := helpers.GetSplitPart(href, "product=", 1)
		if err != nil {
			return
		}
		id, _ := helpers.GetSplitPart(part, "&", 0)
		if id != "" && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	})
	return ids
}

// matchingProductLink returns the first product link whose text contains all
// but at most one of the search words
func (p *PriceCharting) matchingProductLink(doc *goquery.Document, term string) string {
	words := strings.Fields(strings.ToLower(term))
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if strings.Contains(href, "/offers") ||
			!(strings.Contains(href, "/game/") || strings.Contains(href, "/console/")) {
			return true
		}
		text := strings.ToLower(a.Text())
		matches := 0
		for _, w := range words {
			if strings.Contains(text, w) {
				matches++
			}
		}
		if matches >= len(words)-1 && matches > 0 {
			found = p.absolute(href)
			return false
		}
		return true
	})
	return found
}

func (p *PriceCharting) absolute(href string) string {
	if strings.HasPrefix(href, "/") {
		return p.baseURL + href
	}
	return href
}

func isProductPage(body string) bool {
	return len(normalize.FindPairs(body)) > 0 || strings.Contains(body, "chart_data")
}
