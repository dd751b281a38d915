package source

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"pokequant/priceworker/internal/extract"
	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/internal/query"

	"github.com/PuerkitoBio/goquery"
)

const (
	ebayDefaultSort    = "12"
	ebayItemsPerPage   = 60
	ebayNextPageMarker = "Next page"
)

var (
	ebayNoMatches = regexp.MustCompile(`(?i)No exact matches found|\b0 results\b`)
	ebaySoldText  = regexp.MustCompile(`(?i)\b(?:sold|ended)\s+(?:[a-z]{3}\s+\d{1,2}(?:,?\s*\d{4})?|\d{1,2}/\d{1,2}/\d{2,4})`)
	ebayBidsText  = regexp.MustCompile(`(?i)\d+\s+bids?\b`)

	// eBay condition filter codes
	ebayConditions = map[string]string{
		"new":  "1000",
		"used": "3000",
	}
)

// Ebay pages through eBay sold listings
type Ebay struct {
	baseURL string
}

// NewEbay creates the eBay source rooted at the search endpoint
func NewEbay(baseURL string) *Ebay {
	if baseURL == "" {
		baseURL = "https://www.ebay.com/sch/i.html"
	}
	return &Ebay{baseURL: baseURL}
}

func (e *Ebay) Name() string { return NameEbay }

// PageURL builds the sold and completed listings search URL for page
func (e *Ebay) PageURL(q query.Query, page int) (string, error) {
	u, err := url.Parse(e.baseURL)
	if err != nil {
		return "", err
	}

	sortOrder := q.Filters.Sort
	if sortOrder == "" {
		sortOrder = ebayDefaultSort
	}
	perPage := q.Filters.ItemsPerPage
	if perPage <= 0 {
		perPage = ebayItemsPerPage
	}

	params := url.Values{}
	params.Set("_nkw", q.Keywords)
	params.Set("_sop", sortOrder)
	params.Set("LH_Sold", "1")
	params.Set("LH_Complete", "1")
	params.Set("_pgn", strconv.Itoa(page))
	params.Set("_ipg", strconv.Itoa(perPage))
	if q.Filters.MinPrice.Valid {
		params.Set("_udlo", q.Filters.MinPrice.Decimal.String())
	}
	if q.Filters.MaxPrice.Valid {
		params.Set("_udhi", q.Filters.MaxPrice.Decimal.String())
	}
	if code, ok := ebayConditions[strings.ToLower(q.Filters.Condition)]; ok {
		params.Set("LH_ItemCondition", code)
	}

	u.RawQuery = params.Encode()
	return u.String(), nil
}

func (e *Ebay) HasNextPage(body string) bool {
	return strings.Contains(body, ebayNextPageMarker)
}

func (e *Ebay) NoResults(body string) bool {
	return ebayNoMatches.MatchString(body)
}

func (e *Ebay) PageEstimate() int { return ebayItemsPerPage }

func (e *Ebay) BlockPhrases() []string {
	return []string{"blocked", "Pardon Our Interruption"}
}

func (e *Ebay) HasChart() bool { return false }

// ListingFilter keeps single copies of the named card. Keyword searches only
// shed lots, fakes and other games.
func (e *Ebay) ListingFilter(q query.Query) *normalize.ListingFilter {
	if name := q.CardName(); name != "" {
		return normalize.CardListingFilter(name)
	}
	return normalize.ProductListingFilter()
}

// Schema covers both the s-card layout and the older s-item layout
func (e *Ebay) Schema() extract.Schema {
	return extract.Schema{
		Name: NameEbay,
		Containers: []string{
			"ul.srp-results li.s-card",
			"ul.srp-results li.s-item",
			"#srp-river-results li.s-item",
			"li.s-card",
			"li.s-item",
			"div.s-item",
		},
		MinContainers: extract.DefaultMinContainers,
		Fields: []extract.Field{
			{
				Name:     "title",
				Required: true,
				Candidates: []extract.Candidate{
					{Selector: ".s-card__title .su-styled-text"},
					{Selector: ".s-item__title span", Remove: []string{".LIGHT_HIGHLIGHT"}},
					{Selector: ".s-item__title"},
				},
				// eBay pads result lists with a "Shop on eBay" placeholder item
				Plausible: extract.All(extract.MinLength(5), extract.Not(extract.ContainsAny("shop on ebay"))),
			},
			{
				Name:     "price",
				Required: true,
				Candidates: []extract.Candidate{
					{Selector: "span.s-card__price"},
					{Selector: "span.s-item__price"},
				},
				Plausible: extract.HasCurrency(),
			},
			{
				Name: "date",
				Candidates: []extract.Candidate{
					{Selector: ".s-card__caption .su-styled-text"},
					{Selector: "span.s-item__ended-date"},
					{Selector: "span.s-item__time-end"},
					{Selector: "div.s-item__detail--primary"},
					{Selector: "span.s-item__caption--signal"},
					{Selector: `span[class*="sold"]`},
					{Selector: `span[class*="date"]`},
					{Handler: soldTextAnywhere},
				},
				Plausible: extract.ContainsAny("sold", "ended"),
			},
			{
				Name: "bids",
				Candidates: []extract.Candidate{
					{Handler: bidsFromAttributeRows},
					{Selector: "span.s-item__bids"},
				},
				Plausible: extract.ContainsAny("bid"),
			},
			{
				Name: "link",
				Candidates: []extract.Candidate{
					{Selector: "a.su-link", Attr: "href"},
					{Selector: "a.s-item__link", Attr: "href"},
					{Selector: "a", Attr: "href"},
				},
			},
			{
				Name: "image",
				Candidates: []extract.Candidate{
					{Selector: "img", Attr: "data-defer-load"},
					{Selector: "img", Attr: "src"},
				},
			},
			{
				Name: "condition",
				Candidates: []extract.Candidate{
					{Selector: ".s-card__subtitle .su-styled-text"},
					{Selector: ".s-item__subtitle .SECONDARY_INFO"},
				},
			},
		},
	}
}

func soldTextAnywhere(s *goquery.Selection) string {
	return ebaySoldText.FindString(s.Text())
}

func bidsFromAttributeRows(s *goquery.Selection) string {
	var bids string
	s.Find(".s-card__attribute-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		bids = ebayBidsText.FindString(row.Text())
		return bids == ""
	})
	return bids
}
