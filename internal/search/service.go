package search

import (
	"context"
	"fmt"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository"
	apperrors "github.com/jwalitptl/establishment-api/pkg/errors"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

const defaultLimit = 20

type Query struct {
	Text     string
	Origin   *Point
	RadiusKm float64
	Filter   Filter
	Limit    int
}

type Response struct {
	Analysis Analysis `json:"analysis"`
	Results  []Result `json:"results"`
	Total    int      `json:"total"`
}

// Service runs the matcher over the establishment directory.
type Service struct {
	repo    repository.EstablishmentRepository
	matcher *Matcher
	logger  *logger.Logger
}

func NewService(repo repository.EstablishmentRepository, matcher *Matcher, logger *logger.Logger) *Service {
	return &Service{repo: repo, matcher: matcher, logger: logger}
}

// Search narrows the directory by the specialties and locations detected in
// the text, applies the explicit filter, ranks by relevance and, when an
// origin is given, restricts to the radius and reports distances.
func (s *Service) Search(ctx context.Context, q Query) (*Response, error) {
	analysis := s.matcher.Analyze(q.Text)

	candidates := []*model.Establishment{}
	err := s.repo.Each(ctx, &model.EstablishmentFilter{}, func(est *model.Establishment) error {
		if q.Filter.Match(est) && matchesAnalysis(est, analysis) {
			candidates = append(candidates, est)
		}
		return nil
	})
	if err != nil {
		return nil, apperrors.Internal(fmt.Errorf("failed to scan establishments: %w", err))
	}

	results := Rank(candidates, q.Text)
	if q.Origin != nil {
		withDistance(results, *q.Origin)
		if q.RadiusKm > 0 {
			inRadius := results[:0]
			for _, r := range results {
				if r.DistanceKm != nil && *r.DistanceKm <= q.RadiusKm {
					inRadius = append(inRadius, r)
				}
			}
			results = inRadius
		}
	}

	total := len(results)
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.WithContext(ctx).Debug("Search served",
		"specialties", len(analysis.Specialties),
		"locations", len(analysis.Locations),
		"total", total)

	return &Response{Analysis: analysis, Results: results, Total: total}, nil
}

// matchesAnalysis keeps establishments offering one of the detected
// specialties and located in one of the detected places. A dimension with
// no detection does not restrict.
func matchesAnalysis(est *model.Establishment, a Analysis) bool {
	if len(a.Specialties) > 0 && !offersAny(est, a.Specialties) {
		return false
	}
	if len(a.Locations) == 0 {
		return true
	}
	city, neighborhood := Fold(est.City), Fold(est.Neighborhood)
	for _, l := range a.Locations {
		name := Fold(l.Name)
		if neighborhood == name || city == name || city == Fold(l.City) {
			return true
		}
	}
	return false
}

// Analyze reports what the matcher detects in a query without searching.
func (s *Service) Analyze(text string) Analysis {
	return s.matcher.Analyze(text)
}
