package collector

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pokequant/priceworker/config"
	"pokequant/priceworker/internal/fetcher"
	"pokequant/priceworker/internal/normalize"
	"pokequant/priceworker/internal/paginate"
	"pokequant/priceworker/internal/query"
	"pokequant/priceworker/internal/source"
	perrors "pokequant/priceworker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func testFetcher(src source.Source) *fetcher.Fetcher {
	return fetcher.New(fetcher.ClientConfig{
		Source:       src.Name(),
		BlockPhrases: src.BlockPhrases(),
		MaxRetries:   1,
		BaseDelay:    time.Millisecond,
	}, fetcher.WithSleeper(noSleep))
}

func ebayItem(title, price, date string) string {
	return fmt.Sprintf(`<li class="s-item"><div class="s-item__title"><span>%s</span></div>%s<span class="s-item__ended-date">%s</span></li>`,
		title, price, date)
}

func TestCollectEbayTwoValidOneMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("LH_Sold"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><ul class="srp-results">`+
			ebayItem("Charizard 4/102 Base Set Holo", `<span class="s-item__price">$350.00</span>`, "Sold Jun 2, 2024")+
			ebayItem("Charizard 4/102 Shadowless", "", "Sold Jun 3, 2024")+
			ebayItem("Charizard 4/102 1st Edition", `<span class="s-item__price">$1,250.00</span>`, "Sold Jun 4, 2024")+
			`</ul></body></html>`)
	}))
	defer server.Close()

	src := source.NewEbay(server.URL + "/sch/i.html")
	c := New(src, testFetcher(src), paginate.Config{MaxPages: 5, MinPageBytes: 10000}, normalize.New(normalize.DefaultConfig()))

	q, err := query.ForCard("Charizard", "4/102", "Base Set", nil)
	require.NoError(t, err)

	res := c.Collect(context.Background(), Job{Key: "charizard-base-4", Source: "ebay", Query: q})
	require.NoError(t, res.Err)
	assert.False(t, res.Incomplete)
	assert.Equal(t, paginate.StopNoMore, res.Stop)
	assert.Equal(t, 1, res.Stats.Pages)
	assert.Equal(t, 2, res.Stats.Records)
	assert.Equal(t, 1, res.Stats.Skipped)

	require.Len(t, res.Series, 2)
	assert.Equal(t, time.Date(2024, time.June, 2, 0, 0, 0, 0, time.UTC), res.Series[0].Date)
	assert.Equal(t, "350.00", res.Series[0].Amount.StringFixed(2))
	assert.Equal(t, "1250.00", res.Series[1].Amount.StringFixed(2))
	assert.Equal(t, "USD", res.Series[1].Currency)
	assert.Equal(t, "ebay", res.Series[1].Provenance.Source)
	assert.Contains(t, res.Series[1].Provenance.Query, "Charizard 4/102 pokemon card Base Set")
}

func TestCollectEbayRejectsIrrelevantListings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul class="srp-results">`+
			ebayItem("Charizard 4/102 Base Set Holo PSA 8", `<span class="s-item__price">$900.00</span>`, "Sold Jun 2, 2024")+
			ebayItem("Charizard 4/102 Lot", `<span class="s-item__price">$80.00</span>`, "Sold Jun 3, 2024")+
			ebayItem("Blastoise 2/102 Base Set Holo", `<span class="s-item__price">$120.00</span>`, "Sold Jun 4, 2024")+
			ebayItem("Charizard 4/102 Base Set creased", `<span class="s-item__price">$95.00</span>`, "Sold Jun 5, 2024")+
			`</ul></body></html>`)
	}))
	defer server.Close()

	src := source.NewEbay(server.URL + "/sch/i.html")
	c := New(src, testFetcher(src), paginate.Config{MaxPages: 1}, normalize.New(normalize.DefaultConfig()))

	q, err := query.ForCard("Charizard", "4/102", "Base Set", nil)
	require.NoError(t, err)

	res := c.Collect(context.Background(), Job{Key: "charizard-base-4", Source: "ebay", Query: q})
	require.NoError(t, res.Err)
	assert.Equal(t, 4, res.Stats.Records)
	assert.Equal(t, 3, res.Stats.Drops["irrelevant"])
	assert.Equal(t, map[string]int{
		normalize.CategoryLots:         1,
		normalize.CategoryNameMismatch: 1,
		normalize.CategoryDamaged:      1,
	}, res.Stats.Rejections)

	require.Len(t, res.Series, 1)
	assert.Equal(t, "900.00", res.Series[0].Amount.StringFixed(2))
	assert.True(t, res.Series[0].Card.Graded)
	assert.Equal(t, "8", res.Series[0].Card.Grade)
	assert.Equal(t, "base set", res.Series[0].Card.Set)
}

func TestCollectEbayPartialOnFailure(t *testing.T) {
	filler := strings.Repeat("<!-- padding -->", 10)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("_pgn")
		if page == "2" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `<html><body><ul class="srp-results">`+
			ebayItem("Umbreon VMAX 215/203", `<span class="s-item__price">$410.00</span>`, "Sold Jun 5, 2024")+
			`</ul><a>Next page</a>`+filler+`</body></html>`)
	}))
	defer server.Close()

	src := source.NewEbay(server.URL + "/sch/i.html")
	c := New(src, testFetcher(src), paginate.Config{MaxPages: 5}, normalize.New(normalize.DefaultConfig()))

	q, err := query.New("umbreon vmax 215", nil)
	require.NoError(t, err)

	res := c.Collect(context.Background(), Job{Key: "umbreon", Source: "ebay", Query: q})
	assert.True(t, res.Incomplete)
	assert.Equal(t, paginate.StopFailed, res.Stop)
	assert.True(t, perrors.IsType(res.Err, perrors.ErrorTypeQueryExhausted))
	require.Len(t, res.Series, 1, "page 1 data is kept")
	assert.Equal(t, "410.00", res.Series[0].Amount.StringFixed(2))
}

func TestCollectPriceChartingChart(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/search-products", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Charizard V 154", r.URL.Query().Get("q"))
		fmt.Fprint(w, `<a href="/game/pokemon-brilliant-stars/charizard-v-154">Charizard V #154</a>`)
	})
	mux.HandleFunc("/game/pokemon-brilliant-stars/charizard-v-154", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<h1>Charizard V #154</h1><script>VGPC.chart_data = {"used":[[1704067200000,4500],[1704153600000,600],[1704240000000,4700]]};</script>`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	src := source.NewPriceCharting(server.URL)
	c := New(src, testFetcher(src), paginate.Config{MaxPages: 1}, normalize.New(normalize.DefaultConfig()))

	q, err := query.ForCard("Charizard V", "154", "Brilliant Stars", nil)
	require.NoError(t, err)

	res := c.Collect(context.Background(), Job{Key: "charizard-v-154", Source: "pricecharting", Query: q})
	require.NoError(t, res.Err)
	assert.Equal(t, server.URL+"/game/pokemon-brilliant-stars/charizard-v-154", res.Query.Target)
	require.Len(t, res.Series, 2)
	assert.Equal(t, "45.00", res.Series[0].Amount.StringFixed(2))
	assert.Equal(t, "47.00", res.Series[1].Amount.StringFixed(2))
	assert.Equal(t, 1, res.Stats.Drops["artifact"])
	assert.Equal(t, 1, res.Stats.Ambiguous, "product page without a sales table")
}

func TestCollectPriceChartingUnresolved(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>No products</p>`)
	}))
	defer server.Close()

	src := source.NewPriceCharting(server.URL)
	c := New(src, testFetcher(src), paginate.Config{MaxPages: 1}, normalize.New(normalize.DefaultConfig()))

	q, err := query.New("Missingno", nil)
	require.NoError(t, err)

	res := c.Collect(context.Background(), Job{Key: "missingno", Source: "pricecharting", Query: q})
	assert.True(t, res.Incomplete)
	assert.Equal(t, paginate.StopFailed, res.Stop)
	assert.Empty(t, res.Series)
	assert.True(t, perrors.IsType(res.Err, perrors.ErrorTypeNotFound))
}

func TestCreateCollectorsAndBuildJobs(t *testing.T) {
	cfg := config.LoadConfig()
	collectors := CreateCollectors(cfg, nil, nil)
	require.Contains(t, collectors, "ebay")
	require.Contains(t, collectors, "pricecharting")
	assert.Equal(t, "ebay", collectors["ebay"].Source())

	targets, err := config.ParseTargets([]byte(`
targets:
  - id: charizard-base-4
    source: ebay
    card: {name: Charizard, number: "4/102", set: Base Set}
    filters: {min_price: 50}
  - id: evolving-skies-bb
    source: pricecharting
    keywords: Evolving Skies Booster Box
`))
	require.NoError(t, err)

	jobs, err := BuildJobs(targets, collectors)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "Charizard 4/102 pokemon card Base Set", jobs[0].Query.Keywords)
	assert.True(t, jobs[0].Query.Filters.MinPrice.Valid)
	assert.Equal(t, "pricecharting", jobs[1].Source)

	_, err = BuildJobs([]config.Target{{ID: "x", Source: "tcgplayer", Keywords: "x"}}, collectors)
	assert.Error(t, err)

	_, err = BuildJobs([]config.Target{{ID: "x", Source: "ebay", Keywords: "x", Filters: map[string]interface{}{"colour": "red"}}}, collectors)
	assert.Error(t, err)
}

func TestClientConfigFromConfig(t *testing.T) {
	cfg := config.LoadConfig()
	cc := ClientConfig(cfg, source.NewEbay(""))
	assert.Equal(t, "ebay", cc.Source)
	assert.Equal(t, cfg.MaxRetries, cc.MaxRetries)
	assert.Contains(t, cc.BlockPhrases, "blocked")

	nc := NormalizeConfig(cfg)
	assert.True(t, nc.Min.Equal(cfg.PriceMin))
}
