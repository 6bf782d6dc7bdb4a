// Package search implements the directory's free-text matcher: symptom and
// neighborhood detection, additive relevance scoring, distance sorting and
// multi-criteria filtering.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Analysis is what Analyze extracted from a query.
type Analysis struct {
	Specialties []string   `json:"specialties"`
	Locations   []Location `json:"locations"`
}

func (a Analysis) Empty() bool {
	return len(a.Specialties) == 0 && len(a.Locations) == 0
}

// Fold lowercases s and strips diacritics so that "Mont-Bouët" and
// "mont-bouet" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return strings.NewReplacer("œ", "oe", "æ", "ae", "’", "'").Replace(folded)
}

type foldedKeyword struct {
	keyword   string
	specialty string
}

type foldedLocation struct {
	name     string
	location Location
}

// Matcher scans queries against a dictionary. It is safe for concurrent use.
type Matcher struct {
	keywords  []foldedKeyword
	locations []foldedLocation
}

func NewMatcher(dict *Dictionary) *Matcher {
	m := &Matcher{}
	for _, k := range dict.Keywords {
		m.keywords = append(m.keywords, foldedKeyword{keyword: Fold(k.Keyword), specialty: k.Specialty})
	}
	for _, l := range dict.Locations {
		m.locations = append(m.locations, foldedLocation{name: Fold(l.Name), location: l})
	}
	return m
}

// Analyze returns the specialties and locations whose keywords occur in the
// query, de-duplicated, in dictionary order.
func (m *Matcher) Analyze(query string) Analysis {
	q := Fold(query)
	result := Analysis{Specialties: []string{}, Locations: []Location{}}
	if q == "" {
		return result
	}

	seenSpecialty := map[string]bool{}
	for _, k := range m.keywords {
		if k.keyword == "" || seenSpecialty[k.specialty] || !strings.Contains(q, k.keyword) {
			continue
		}
		seenSpecialty[k.specialty] = true
		result.Specialties = append(result.Specialties, k.specialty)
	}

	seenLocation := map[string]bool{}
	for _, l := range m.locations {
		if l.name == "" || seenLocation[l.name] || !strings.Contains(q, l.name) {
			continue
		}
		seenLocation[l.name] = true
		result.Locations = append(result.Locations, l.location)
	}
	return result
}
