package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTitle(t *testing.T) {
	tests := []struct {
		title string
		want  CardInfo
	}{
		{
			title: "Brilliant Stars Charizard V 154/172 CGC 9.5",
			want:  CardInfo{Name: "Charizard", Number: "154/172", Set: "brilliant stars", Graded: true, GradingCompany: "CGC", Grade: "9.5"},
		},
		{
			title: "Mewtwo GX 72/236 psa10",
			want:  CardInfo{Name: "Mewtwo", Number: "72/236", Graded: true, GradingCompany: "PSA", Grade: "10"},
		},
		{
			title: "Lucario VSTAR 094/189 Astral Radiance",
			want:  CardInfo{Name: "Lucario", Number: "094/189"},
		},
		{
			title: "1st Edition Machamp Holo",
			want:  CardInfo{Set: "base set"},
		},
		{title: "  ", want: CardInfo{}},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseTitle(tt.title))
		})
	}
}

func TestCardListingFilter(t *testing.T) {
	tests := []struct {
		title    string
		expected string
		category string
	}{
		{"Pokemon Charizard V 079/073 Champions Path Secret Rare PSA 10", "Charizard", ""},
		{"Pikachu 25/102 Base Set Shadowless Near Mint", "Pikachu", ""},
		{"Umbreon Gold Star 17/17 POP Series 5 BGS 9", "Umbreon", ""},
		{"Charizard 4/102 Lot", "Charizard", CategoryLots},
		{"34 Vintage Pokemon Card Lot Mixed Condition", "Charizard", CategoryLots},
		{"Pokemon Card Collection 100+ Cards Bulk Sale", "Charizard", CategoryLots},
		{"Charizard Damaged Creased Water Damage", "Charizard", CategoryDamaged},
		{"Pokemon Card Sleeves and Binder", "Charizard", CategoryNonCards},
		{"Custom Fake Charizard Proxy Card", "Charizard", CategoryFake},
		{"Charizard 4/102 mystery box pull", "Charizard", CategoryVague},
		{"Yu-Gi-Oh Blue Eyes White Dragon", "Charizard", CategoryWrongGame},
		{"Pokemon Blastoise V 009/189 Darkness Ablaze PSA 9", "Charizard", CategoryNameMismatch},
		{"PSA 7 (no specific card mentioned)", "Charizard", CategoryNameMismatch},
		{"Charizard", "Charizard", CategoryTooShort},
		{"Charizard Holo", "Charizard", CategoryTooShort},
		{"", "Charizard", CategoryNoTitle},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			category, ok := CardListingFilter(tt.expected).Check(tt.title)
			assert.Equal(t, tt.category == "", ok)
			assert.Equal(t, tt.category, category)
		})
	}
}

func TestProductListingFilter(t *testing.T) {
	f := ProductListingFilter()

	_, ok := f.Check("Evolving Skies Booster Box")
	assert.True(t, ok)
	_, ok = f.Check("ETB sealed") // short titles are fine for product
	assert.True(t, ok)

	category, ok := f.Check("Evolving Skies Booster Box Lot of 2")
	assert.False(t, ok)
	assert.Equal(t, CategoryLots, category)

	category, ok = f.Check("Evolving Skies booster box reproduction")
	assert.False(t, ok)
	assert.Equal(t, CategoryFake, category)
}

func TestNilListingFilterKeepsEverything(t *testing.T) {
	var f *ListingFilter
	category, ok := f.Check("")
	assert.True(t, ok)
	assert.Empty(t, category)
}
