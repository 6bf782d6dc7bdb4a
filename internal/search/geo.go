package search

import (
	"math"
	"sort"

	"github.com/jwalitptl/establishment-api/internal/model"
)

const earthRadiusKm = 6371.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PointOf returns the establishment's coordinates, if it has any.
func PointOf(est *model.Establishment) (Point, bool) {
	if est.Latitude == nil || est.Longitude == nil {
		return Point{}, false
	}
	return Point{Lat: *est.Latitude, Lng: *est.Longitude}, true
}

// Haversine returns the great-circle distance between a and b in km.
func Haversine(a, b Point) float64 {
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	dLat := toRadians(b.Lat - a.Lat)
	dLng := toRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func withDistance(results []Result, origin Point) {
	for i := range results {
		if p, ok := PointOf(results[i].Establishment); ok {
			d := Haversine(origin, p)
			results[i].DistanceKm = &d
		}
	}
}

func sortByDistance(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		di, dj := results[i].DistanceKm, results[j].DistanceKm
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		}
		return *di < *dj
	})
}

// SortByDistance orders establishments nearest first. Establishments without
// coordinates come last in their original order.
func SortByDistance(establishments []*model.Establishment, origin Point) []Result {
	results := make([]Result, 0, len(establishments))
	for _, est := range establishments {
		results = append(results, Result{Establishment: est})
	}
	withDistance(results, origin)
	sortByDistance(results)
	return results
}

// Nearby keeps the establishments within radiusKm of origin, nearest first.
func Nearby(establishments []*model.Establishment, origin Point, radiusKm float64) []Result {
	sorted := SortByDistance(establishments, origin)
	out := sorted[:0]
	for _, r := range sorted {
		if r.DistanceKm != nil && *r.DistanceKm <= radiusKm {
			out = append(out, r)
		}
	}
	return out
}
