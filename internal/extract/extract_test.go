package extract

import (
	"fmt"
	"strings"
	"testing"

	perrors "pokequant/priceworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingSchema() Schema {
	return Schema{
		Name:       "test",
		Containers: []string{"ul.results li.card", "li.item", "div.listing"},
		Fields: []Field{
			{
				Name:     "title",
				Required: true,
				Candidates: []Candidate{
					{Selector: ".card-title"},
					{Selector: "h3", Remove: []string{"span.badge"}},
				},
				Plausible: MinLength(5),
			},
			{
				Name:     "price",
				Required: true,
				Candidates: []Candidate{
					{Selector: ".card-price"},
					{Selector: ".price"},
				},
				Plausible: HasCurrency(),
			},
			{
				Name:       "link",
				Candidates: []Candidate{{Selector: "a", Attr: "href"}},
			},
		},
	}
}

func listingNodes(tag string, n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, `<%s class="listing"><h3><span class="badge">NEW</span>Charizard Holo %d</h3><span class="price">$%d.00</span><a href="/itm/%d">view</a></%s>`,
			tag, i, i*10, i, tag)
	}
	return b.String()
}

func TestExtractUsesThirdContainerCandidate(t *testing.T) {
	html := `<html><body>
		<ul class="results"><li class="card"><span class="card-title">Lonely card title</span></li></ul>
		<li class="item">one</li><li class="item">two</li>
		` + listingNodes("div", 6) + `</body></html>`

	records, report, err := Extract(html, listingSchema())
	require.NoError(t, err)

	assert.Equal(t, 2, report.ContainerIndex)
	assert.Equal(t, "div.listing", report.Container)
	require.Len(t, records, 6)
	for i, r := range records {
		assert.Equal(t, fmt.Sprintf("Charizard Holo %d", i+1), r.Get("title"), "badge text is removed")
		assert.Equal(t, fmt.Sprintf("$%d.00", (i+1)*10), r.Get("price"))
		assert.Equal(t, fmt.Sprintf("/itm/%d", i+1), r.Get("link"))
	}
	assert.Equal(t, []int{0, 6}, report.FieldHits["title"])
	assert.Equal(t, 12, report.Fallbacks())
}

func TestExtractSkipsMalformedNode(t *testing.T) {
	html := `<html><body>
		<div class="listing"><h3>Pikachu Illustrator</h3><span class="price">$120.00</span></div>
		<div class="listing"><h3>Mew ex 151 Gold</h3></div>
		<div class="listing"><h3>Umbreon VMAX Alt Art</h3><span class="price">$410.50</span></div>
	</body></html>`

	records, report, err := Extract(html, listingSchema())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "Pikachu Illustrator", records[0].Get("title"))
	assert.Equal(t, 0, records[0].Index)
	assert.Equal(t, "Umbreon VMAX Alt Art", records[1].Get("title"))
	assert.Equal(t, 2, records[1].Index)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.SkipReasons["missing_price"])
	assert.False(t, report.Ambiguous)
}

func TestExtractEmptyPage(t *testing.T) {
	records, report, err := Extract(`<html><body><p>No exact matches found</p></body></html>`, listingSchema())
	require.NoError(t, err)

	assert.NotNil(t, records)
	assert.Empty(t, records)
	assert.True(t, report.Ambiguous)
	assert.Equal(t, -1, report.ContainerIndex)
	assert.True(t, perrors.IsType(report.Err, perrors.ErrorTypeParseAmbiguity))
}

func TestExtractImplausibleValueFallsThrough(t *testing.T) {
	html := `<html><body>` + strings.Repeat(
		`<li class="item"><span class="card-title">Shop</span><h3>Blastoise Base Set Holo</h3><span class="card-price">Free shipping</span><span class="price">US $89.99</span></li>`, 5) +
		`</body></html>`

	records, report, err := Extract(html, listingSchema())
	require.NoError(t, err)

	assert.Equal(t, 1, report.ContainerIndex)
	require.Len(t, records, 5)
	assert.Equal(t, "Blastoise Base Set Holo", records[0].Get("title"))
	assert.Equal(t, "US $89.99", records[0].Get("price"))
	_, hasLink := records[0].Fields["link"]
	assert.False(t, hasLink)
}

func TestExtractHandlerCandidate(t *testing.T) {
	schema := Schema{
		Name:          "handler",
		Containers:    []string{"tr"},
		MinContainers: 1,
		Fields: []Field{{
			Name:     "price",
			Required: true,
			Candidates: []Candidate{{Handler: func(s *goquery.Selection) string {
				return s.Find("td").Last().Text()
			}}},
		}},
	}

	records, _, err := Extract(`<table><tr><td>Jan 2, 2024</td><td>  $5.00 </td></tr></table>`, schema)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "$5.00", records[0].Get("price"))
}

func TestPredicates(t *testing.T) {
	assert.True(t, MinLength(3)("abc"))
	assert.False(t, MinLength(3)(" ab "))
	assert.True(t, HasCurrency()("$1.00"))
	assert.True(t, HasCurrency()("12.00 USD"))
	assert.False(t, HasCurrency()("Best offer"))
	assert.True(t, ContainsAny("sold", "ended")("SOLD Jan 3"))
	assert.True(t, Not(ContainsAny("shop on ebay"))("Charizard"))
	assert.False(t, All(MinLength(3), Not(ContainsAny("shop")))("Shop on eBay"))
}
