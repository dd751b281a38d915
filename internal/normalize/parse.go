package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	rangeSeparator = regexp.MustCompile(`(?i)\bto\b`)
	priceNoise     = regexp.MustCompile(`[^\d.,]`)
	datePrefix     = regexp.MustCompile(`(?i)^\s*(sold|ended)\b[\s:]*`)
	chartPair      = regexp.MustCompile(`\[(\d{13}),(\d+)\]`)
	bidCount       = regexp.MustCompile(`(?i)(\d+)\s*bids?\b`)

	// Date fragments searched inside longer text, most specific first
	embeddedDates = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`(?i)\b[a-z]{3}\s+\d{1,2},?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b[a-z]{3}\s+\d{1,2}\b`),
	}
)

var dateLayouts = []string{
	"Jan 2, 2006",
	"Jan 2 2006",
	"1/2/2006",
	"1/2/06",
	"2006-01-02",
}

// CleanPrice parses a currency-formatted string. Ranges such as
// "$10.00 to $25.00" yield their lower bound. A lone comma followed by exactly
// two digits is a decimal comma; any other comma separates thousands.
func CleanPrice(raw string) (decimal.Decimal, bool) {
	if loc := rangeSeparator.FindStringIndex(raw); loc != nil {
		raw = raw[:loc[0]]
	}
	s := priceNoise.ReplaceAllString(raw, "")
	if s == "" {
		return decimal.Decimal{}, false
	}

	if strings.Contains(s, ",") {
		parts := strings.Split(s, ",")
		if !strings.Contains(s, ".") && len(parts) == 2 && len(parts[1]) == 2 {
			s = parts[0] + "." + parts[1]
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseDate parses the sold-date formats listing pages use. A bare "Jan 2"
// is the latest such day not after ref. Dates are returned at UTC midnight.
func ParseDate(raw string, ref time.Time) (time.Time, bool) {
	s := strings.Join(strings.Fields(datePrefix.ReplaceAllString(raw, "")), " ")
	if s == "" {
		return time.Time{}, false
	}
	if t, ok := parseExact(s, ref); ok {
		return t, true
	}
	for _, re := range embeddedDates {
		if m := re.FindString(s); m != "" {
			if t, ok := parseExact(m, ref); ok {
				return t, true
			}
		}
	}
	return time.Time{}, false
}

func parseExact(s string, ref time.Time) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return toDate(t), true
		}
	}
	if t, err := time.Parse("Jan 2", s); err == nil {
		day := toDate(ref)
		d := time.Date(day.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		// sales are never in the future, so a later day belongs to last year
		if d.After(day) {
			d = time.Date(day.Year()-1, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		}
		return d, true
	}
	return time.Time{}, false
}

// DecodePair decodes one "[<13-digit ms>,<cents>]" chart pair into the UTC
// calendar date of floor(ms/1000) and the amount in dollars.
func DecodePair(text string) (time.Time, decimal.Decimal, bool) {
	m := chartPair.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, decimal.Decimal{}, false
	}
	return decodeMatch(m[1], m[2])
}

// FindPairs returns every chart pair embedded in text, in order
func FindPairs(text string) [][2]string {
	matches := chartPair.FindAllStringSubmatch(text, -1)
	out := make([][2]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, [2]string{m[1], m[2]})
	}
	return out
}

func decodeMatch(msText, centsText string) (time.Time, decimal.Decimal, bool) {
	ms, err := strconv.ParseInt(msText, 10, 64)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, false
	}
	cents, err := strconv.ParseInt(centsText, 10, 64)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, false
	}
	return toDate(time.Unix(ms/1000, 0)), decimal.New(cents, -2), true
}

// ParseBids reads a bid count such as "12 bids"
func ParseBids(raw string) (int, bool) {
	m := bidCount.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func toDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
