package search

import (
	"github.com/jwalitptl/establishment-api/internal/model"
)

// Filter combines the directory's search criteria. Zero fields do not
// restrict. Text comparisons ignore case and accents.
type Filter struct {
	Types            []string `json:"types,omitempty"`
	Provinces        []string `json:"provinces,omitempty"`
	Cities           []string `json:"cities,omitempty"`
	Services         []string `json:"services,omitempty"`
	Open24h          bool     `json:"open_24h,omitempty"`
	AcceptsInsurance bool     `json:"accepts_insurance,omitempty"`
	MaxDistanceKm    float64  `json:"max_distance_km,omitempty"`
	Origin           *Point   `json:"origin,omitempty"`
}

// Apply returns the establishments matching every criterion, in input order.
func (f *Filter) Apply(establishments []*model.Establishment) []*model.Establishment {
	out := make([]*model.Establishment, 0, len(establishments))
	for _, est := range establishments {
		if f.Match(est) {
			out = append(out, est)
		}
	}
	return out
}

func (f *Filter) Match(est *model.Establishment) bool {
	if len(f.Types) > 0 && !oneOf(est.Type, f.Types) {
		return false
	}
	if len(f.Provinces) > 0 && !oneOf(est.Province, f.Provinces) {
		return false
	}
	if len(f.Cities) > 0 && !oneOf(est.City, f.Cities) {
		return false
	}
	if len(f.Services) > 0 && !offersAny(est, f.Services) {
		return false
	}
	if f.Open24h && !est.Open24h {
		return false
	}
	if f.AcceptsInsurance && !est.AcceptsInsurance {
		return false
	}
	if f.MaxDistanceKm > 0 && f.Origin != nil {
		p, ok := PointOf(est)
		if !ok || Haversine(*f.Origin, p) > f.MaxDistanceKm {
			return false
		}
	}
	return true
}

func oneOf(value string, candidates []string) bool {
	v := Fold(value)
	for _, c := range candidates {
		if Fold(c) == v {
			return true
		}
	}
	return false
}

func offersAny(est *model.Establishment, wanted []string) bool {
	for _, w := range wanted {
		if oneOf(w, est.Services) || oneOf(w, est.Specialties) {
			return true
		}
	}
	return false
}
