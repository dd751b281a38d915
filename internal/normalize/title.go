package normalize

import (
	"regexp"
	"strings"
)

// Rejection categories reported by ListingFilter.Check
const (
	CategoryNoTitle      = "no_title"
	CategoryLots         = "lots"
	CategoryDamaged      = "damaged"
	CategoryNonCards     = "non_cards"
	CategoryFake         = "fake"
	CategoryVague        = "vague"
	CategoryWrongGame    = "wrong_game"
	CategoryNameMismatch = "name_mismatch"
	CategoryTooShort     = "too_short"
)

var (
	gradingLabel = regexp.MustCompile(`(?i)\b(PSA|BGS|CGC|CBCS)\s*(\d+(?:\.\d+)?)\b`)
	cardNumber   = regexp.MustCompile(`\b(\d+)/(\d+)\b`)

	// Checked in order; the first hit names the set
	setNames = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"base set", regexp.MustCompile(`(?i)\b(base\s*set|1st\s*edition)\b`)},
		{"evolving skies", regexp.MustCompile(`(?i)\bevolving\s*skies\b`)},
		{"brilliant stars", regexp.MustCompile(`(?i)\bbrilliant\s*stars\b`)},
		{"darkness ablaze", regexp.MustCompile(`(?i)\bdarkness\s*ablaze\b`)},
		{"sword shield", regexp.MustCompile(`(?i)\b(sword\s*&?\s*shield|SWSH)`)},
		{"celebrations", regexp.MustCompile(`(?i)\bcelebrations\b`)},
		{"fusion strike", regexp.MustCompile(`(?i)\bfusion\s*strike\b`)},
	}

	popularNames = []string{
		"charizard", "pikachu", "rayquaza", "lugia", "mewtwo",
		"blastoise", "venusaur", "gyarados", "dragonite",
		"eevee", "umbreon", "espeon", "vaporeon", "flareon",
		"jolteon", "leafeon", "glaceon", "sylveon", "mew",
	}

	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\s+(?:V|EX|GX|VMAX|VSTAR)\b`),
		regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)\s+Pokemon\b`),
		regexp.MustCompile(`Pokemon\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`),
	}
)

// CardInfo is what a listing title says about the card it sells
type CardInfo struct {
	Name           string
	Number         string
	Set            string
	Graded         bool
	GradingCompany string
	Grade          string
}

// ParseTitle reads the card name, collector number, set and slab grade out of
// a listing title. Fields the title does not mention are left empty.
func ParseTitle(title string) CardInfo {
	var info CardInfo
	if strings.TrimSpace(title) == "" {
		return info
	}
	lower := strings.ToLower(title)

	if m := gradingLabel.FindStringSubmatch(title); m != nil {
		info.Graded = true
		info.GradingCompany = strings.ToUpper(m[1])
		info.Grade = m[2]
	}
	if m := cardNumber.FindStringSubmatch(title); m != nil {
		info.Number = m[1] + "/" + m[2]
	}
	for _, s := range setNames {
		if s.pattern.MatchString(title) {
			info.Set = s.name
			break
		}
	}

	// "mew" is last so "mewtwo" wins
	for _, name := range popularNames {
		if strings.Contains(lower, name) {
			info.Name = strings.ToUpper(name[:1]) + name[1:]
			return info
		}
	}
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(title); m != nil {
			info.Name = strings.TrimSpace(m[1])
			break
		}
	}
	return info
}

// TitleRule rejects titles matching Pattern under Category
type TitleRule struct {
	Category string
	Pattern  *regexp.Regexp
}

func rules(category string, patterns ...string) []TitleRule {
	out := make([]TitleRule, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, TitleRule{Category: category, Pattern: regexp.MustCompile(`(?i)` + p)})
	}
	return out
}

var (
	lotRules = rules(CategoryLots,
		`\blots?\b`,
		`\bbulk\s*(lot|sale|cards)`,
		`\bcollection\s*lot`,
		`\bwholesale`,
		`\b\d+x\s*cards?`,
		`\bmultiple\s*cards?`,
		`\bvarious\s*cards?`,
		`\bassorted\s*cards?`,
		`\bbundle\s*of`,
		`\bpack\s*of\s*\d+`,
	)
	damagedRules = rules(CategoryDamaged,
		`\bdamaged\b`,
		`\bheavily\s*played\b`,
		`\bpoor\s*condition\b`,
		`\bwater\s*damage`,
		`\bcreased?\b`,
		`\bbent\b`,
		`\btorn\b`,
		`\bworn\b`,
		`\bscratched\b`,
		`\bfaded\b`,
		`\bstained\b`,
		`\bfor\s*parts\b`,
		`\bas\s*is\b`,
	)
	nonCardRules = rules(CategoryNonCards,
		`\bsleeves?\b`,
		`\bbinder\b`,
		`\bplaymat\b`,
		`\bdice\b`,
		`\bcounters?\b`,
		`\bcoins?\b`,
		`\bfigurines?\b`,
		`\bplushies?\b`,
		`\btoys?\b`,
		`\bstickers?\b`,
		`\bposters?\b`,
		`\bbooks?\b`,
		`\bguides?\b`,
		`\bdecks?\b`,
		`\benergy\s*cards?`,
		`\bbasic\s*energy`,
	)
	fakeRules = rules(CategoryFake,
		`\bfake\b`,
		`\bproxy\b`,
		`\bcustom\b`,
		`\bhomemade\b`,
		`\bfan\s*made`,
		`\bunofficial\b`,
		`\breplica\b`,
		`\brepro\b`,
		`\breproduction\b`,
		`\bbootleg\b`,
	)
	vagueRules = rules(CategoryVague,
		`\bmystery\s*box`,
		`\brandom\s*card`,
		`\bsurprise\s*pack`,
		`\bmixed\s*condition`,
		`\bunknown\s*condition`,
		`\bold\s*cards?`,
		`\bmisc\b`,
		`\bmiscellaneous\b`,
		`\betc\b`,
		`\band\s*more\b`,
		`\bplus\s*extras?`,
	)
	wrongGameRules = rules(CategoryWrongGame,
		`\byu-?gi-?oh\b`,
		`\bmagic\s*the\s*gathering\b`,
		`\bmtg\b`,
		`\bdigimon\b`,
		`\bdragon\s*ball\b`,
		`\bnaruto\b`,
		`\bone\s*piece\b`,
		`\bweiss\s*schwarz\b`,
		`\bcardfight\b`,
		`\bvanguard\b`,
	)
)

// ListingFilter decides whether a sold listing is a single copy of the card
// being priced. A nil *ListingFilter accepts everything.
type ListingFilter struct {
	Rules []TitleRule
	// ExpectedName must appear in the title, ignoring case, when set
	ExpectedName string
	MinLength    int
	MinWords     int
}

// CardListingFilter rejects lots, damaged copies, accessories, fakes, vague
// listings, other games, and titles that do not name expectedName.
func CardListingFilter(expectedName string) *ListingFilter {
	var all []TitleRule
	for _, set := range [][]TitleRule{lotRules, damagedRules, nonCardRules, fakeRules, vagueRules, wrongGameRules} {
		all = append(all, set...)
	}
	return &ListingFilter{
		Rules:        all,
		ExpectedName: strings.TrimSpace(expectedName),
		MinLength:    10,
		MinWords:     3,
	}
}

// ProductListingFilter is the looser filter for keyword searches such as
// sealed product, where condition words and short titles are normal.
func ProductListingFilter() *ListingFilter {
	var all []TitleRule
	for _, set := range [][]TitleRule{lotRules, fakeRules, wrongGameRules} {
		all = append(all, set...)
	}
	return &ListingFilter{Rules: all}
}

// Check returns the rejection category for title, or ok when it passes
func (f *ListingFilter) Check(title string) (category string, ok bool) {
	if f == nil {
		return "", true
	}
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return CategoryNoTitle, false
	}
	for _, r := range f.Rules {
		if r.Pattern.MatchString(title) {
			return r.Category, false
		}
	}
	lower := strings.ToLower(title)
	if f.ExpectedName != "" && !strings.Contains(lower, strings.ToLower(f.ExpectedName)) {
		return CategoryNameMismatch, false
	}
	if len(title) < f.MinLength || len(strings.Fields(title)) < f.MinWords {
		return CategoryTooShort, false
	}
	return "", true
}
