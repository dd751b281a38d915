package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMinContainers is the match count a container selector needs to be trusted
const DefaultMinContainers = 5

// Predicate reports whether an extracted value is plausible for its field
type Predicate func(string) bool

// HandlerFunc customizes extraction for one candidate
type HandlerFunc func(*goquery.Selection) string

// Candidate is one strategy for reading a field out of a container node.
// An empty Selector reads the container node itself. When Attr is set the
// attribute value is used instead of the text. Remove lists sub-selectors
// stripped from a copy of the match before its text is read.
type Candidate struct {
	Selector string
	Attr     string
	Remove   []string
	Handler  HandlerFunc
}

// Field declares an ordered candidate list for one output field
type Field struct {
	Name       string
	Required   bool
	Candidates []Candidate
	Plausible  Predicate
}

// Schema declares how records are found on a page of one source
type Schema struct {
	Name          string
	Containers    []string
	MinContainers int
	Fields        []Field
}

func (s Schema) minContainers() int {
	if s.MinContainers <= 0 {
		return DefaultMinContainers
	}
	return s.MinContainers
}

// MinLength accepts values with at least n characters
func MinLength(n int) Predicate {
	return func(v string) bool {
		return utf8.RuneCountInString(strings.TrimSpace(v)) >= n
	}
}

var currencyMarker = regexp.MustCompile(`(?i)[$£€¥]|\bUSD\b`)

// HasCurrency accepts values carrying a currency marker
func HasCurrency() Predicate {
	return func(v string) bool {
		return currencyMarker.MatchString(v)
	}
}

// ContainsAny accepts values containing one of words, case-insensitively
func ContainsAny(words ...string) Predicate {
	return func(v string) bool {
		lower := strings.ToLower(v)
		for _, w := range words {
			if strings.Contains(lower, strings.ToLower(w)) {
				return true
			}
		}
		return false
	}
}

// Not inverts p
func Not(p Predicate) Predicate {
	return func(v string) bool { return !p(v) }
}

// All accepts values every predicate accepts
func All(ps ...Predicate) Predicate {
	return func(v string) bool {
		for _, p := range ps {
			if p != nil && !p(v) {
				return false
			}
		}
		return true
	}
}
