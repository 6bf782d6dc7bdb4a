package search

import (
	"sort"
	"strings"

	"github.com/jwalitptl/establishment-api/internal/model"
)

const (
	scoreExactName      = 10
	scoreNameContains   = 5
	scoreService        = 4
	scoreType           = 3
	scoreCity           = 2
	scoreOpen24h        = 2
	scoreAcceptsInsurer = 1
)

// Result is a scored establishment. DistanceKm is set only when an origin
// was given and the establishment has coordinates.
type Result struct {
	Establishment *model.Establishment `json:"establishment"`
	Score         int                  `json:"score"`
	DistanceKm    *float64             `json:"distance_km,omitempty"`
}

// Score adds up the relevance points of est for query. The open 24/7 and
// insurance bonuses apply regardless of the query.
func Score(est *model.Establishment, query string) int {
	q := Fold(query)
	score := 0

	if q != "" {
		name := Fold(est.Name)
		switch {
		case name == q:
			score += scoreExactName
		case strings.Contains(name, q):
			score += scoreNameContains
		}
		if strings.Contains(Fold(est.Type), q) {
			score += scoreType
		}
		if strings.Contains(Fold(est.City), q) {
			score += scoreCity
		}
		if anyContains(est.Services, q) || anyContains(est.Specialties, q) {
			score += scoreService
		}
	}

	if est.Open24h {
		score += scoreOpen24h
	}
	if est.AcceptsInsurance {
		score += scoreAcceptsInsurer
	}
	return score
}

func anyContains(values []string, q string) bool {
	for _, v := range values {
		if strings.Contains(Fold(v), q) {
			return true
		}
	}
	return false
}

// Rank scores every establishment and sorts by score, highest first, then
// by name.
func Rank(establishments []*model.Establishment, query string) []Result {
	results := make([]Result, 0, len(establishments))
	for _, est := range establishments {
		results = append(results, Result{Establishment: est, Score: Score(est, query)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Establishment.Name < results[j].Establishment.Name
	})
	return results
}
