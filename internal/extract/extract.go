// Package extract turns listing pages into raw field maps using declarative
// schemas whose container and field selectors are tried in order.
package extract

import (
	"fmt"
	"strings"
	"sync"

	"pokequant/priceworker/logger"
	perrors "pokequant/priceworker/pkg/errors"

	"github.com/PuerkitoBio/goquery"
)

// RawRecord holds the extracted text fields of one listing node
type RawRecord struct {
	Index  int
	Fields map[string]string
}

// Get returns the value of a field, or "" when absent
func (r RawRecord) Get(name string) string {
	return r.Fields[name]
}

// Report describes how a page was extracted
type Report struct {
	Container      string
	ContainerIndex int
	Matched        int
	Skipped        int
	SkipReasons    map[string]int
	// FieldHits counts, per field, how often each candidate index won
	FieldHits map[string][]int
	Ambiguous bool
	Err       error
}

// Fallbacks counts field values that came from a candidate other than the first
func (r Report) Fallbacks() int {
	n := 0
	for _, hits := range r.FieldHits {
		for i, c := range hits {
			if i > 0 {
				n += c
			}
		}
	}
	return n
}

// Extract parses html and runs schema over it
func Extract(html string, schema Schema) ([]RawRecord, Report, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, Report{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	records, report := ExtractDocument(doc, schema)
	return records, report, nil
}

// ExtractDocument runs schema over an already parsed document. A page where no
// container candidate matches yields no records and an ambiguous report.
func ExtractDocument(doc *goquery.Document, schema Schema) ([]RawRecord, Report) {
	log := logger.ForExtractor(schema.Name)
	report := Report{
		ContainerIndex: -1,
		SkipReasons:    make(map[string]int),
		FieldHits:      make(map[string][]int, len(schema.Fields)),
	}
	for _, f := range schema.Fields {
		report.FieldHits[f.Name] = make([]int, len(f.Candidates))
	}

	idx, nodes := selectContainers(doc, schema)
	if idx < 0 {
		report.Ambiguous = true
		report.Err = perrors.NewParseAmbiguity(schema.Name, schema.Containers)
		log.Warn().Strs("candidates", schema.Containers).Msg("No container selector matched")
		return []RawRecord{}, report
	}
	report.Container = schema.Containers[idx]
	report.ContainerIndex = idx
	report.Matched = nodes.Length()
	if idx > 0 {
		log.Info().Str("container", report.Container).Int("candidate", idx).Int("matched", report.Matched).
			Msg("Container fallback selected")
	}

	type outcome struct {
		fields map[string]string
		hits   map[string]int
		reason string
	}
	outcomes := make([]outcome, nodes.Length())

	// Nodes are independent so they are read concurrently; outcomes keep document order
	var wg sync.WaitGroup
	nodes.Each(func(i int, s *goquery.Selection) {
		wg.Add(1)
		go func(i int, s *goquery.Selection) {
			defer wg.Done()
			fields, hits, reason := extractNode(s, schema.Fields)
			outcomes[i] = outcome{fields: fields, hits: hits, reason: reason}
		}(i, s)
	})
	wg.Wait()

	records := make([]RawRecord, 0, len(outcomes))
	for i, o := range outcomes {
		if o.reason != "" {
			report.Skipped++
			report.SkipReasons[o.reason]++
			log.Debug().Int("node", i).Str("reason", o.reason).
				Err(perrors.NewMalformedRecord(schema.Name, o.reason)).Msg("Skipped listing node")
			continue
		}
		for name, c := range o.hits {
			report.FieldHits[name][c]++
			if c > 0 {
				log.Debug().Str("field", name).Int("candidate", c).Msg("Field fallback used")
			}
		}
		records = append(records, RawRecord{Index: i, Fields: o.fields})
	}

	return records, report
}

// selectContainers returns the first candidate reaching the threshold, else the
// candidate with the most matches (earliest on ties), else -1.
func selectContainers(doc *goquery.Document, schema Schema) (int, *goquery.Selection) {
	threshold := schema.minContainers()
	best, bestCount := -1, 0
	var bestSel *goquery.Selection

	for i, selector := range schema.Containers {
		sel := doc.Find(selector)
		n := sel.Length()
		if n >= threshold {
			return i, sel
		}
		if n > bestCount {
			best, bestCount, bestSel = i, n, sel
		}
	}
	return best, bestSel
}

// extractNode reads every field of one container node. A missing required
// field yields a skip reason instead of a record.
func extractNode(s *goquery.Selection, fields []Field) (map[string]string, map[string]int, string) {
	values := make(map[string]string, len(fields))
	hits := make(map[string]int, len(fields))

	for _, f := range fields {
		value, idx := extractField(s, f)
		if idx < 0 {
			if f.Required {
				return nil, nil, "missing_" + f.Name
			}
			continue
		}
		values[f.Name] = value
		hits[f.Name] = idx
	}
	return values, hits, ""
}

// extractField returns the first non-empty plausible candidate value and its index
func extractField(s *goquery.Selection, f Field) (string, int) {
	for i, c := range f.Candidates {
		v := candidateValue(s, c)
		if v == "" {
			continue
		}
		if f.Plausible != nil && !f.Plausible(v) {
			continue
		}
		return v, i
	}
	return "", -1
}

func candidateValue(s *goquery.Selection, c Candidate) string {
	if c.Handler != nil {
		return collapse(c.Handler(s))
	}

	sel := s
	if c.Selector != "" {
		sel = s.Find(c.Selector)
	}
	if sel.Length() == 0 {
		return ""
	}
	sel = sel.First()

	if c.Attr != "" {
		v, _ := sel.Attr(c.Attr)
		return strings.TrimSpace(v)
	}
	return collapse(cleanSelection(sel, c.Remove).Text())
}

// cleanSelection removes sub-elements from a copy of sel
func cleanSelection(sel *goquery.Selection, remove []string) *goquery.Selection {
	if len(remove) == 0 {
		return sel
	}
	clone := sel.Clone()
	for _, r := range remove {
		clone.Find(r).Remove()
	}
	return clone
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
