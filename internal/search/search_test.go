package search

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/establishment-api/internal/model"
	"github.com/jwalitptl/establishment-api/internal/repository/memory"
	"github.com/jwalitptl/establishment-api/pkg/logger"
)

func float(v float64) *float64 { return &v }

func TestAnalyze_SymptomAndNeighborhood(t *testing.T) {
	m := NewMatcher(DefaultDictionary())

	a := m.Analyze("j'ai mal de dos à Akanda")

	assert.Contains(t, a.Specialties, "rhumatologie")
	assert.Equal(t, []Location{{Name: "Akanda", City: "Libreville", Province: "Estuaire"}}, a.Locations)
}

func TestAnalyze_IgnoresCaseAndAccents(t *testing.T) {
	m := NewMatcher(DefaultDictionary())

	a := m.Analyze("FIEVRE et Diarrhee vers MONT-BOUET")

	specialties := append([]string(nil), a.Specialties...)
	sort.Strings(specialties)
	assert.Equal(t, []string{"gastro-entérologie", "médecine générale"}, specialties)
	require.Len(t, a.Locations, 1)
	assert.Equal(t, "Mont-Bouët", a.Locations[0].Name)
}

func TestAnalyze_DeduplicatesAndKeepsOrder(t *testing.T) {
	m := NewMatcher(DefaultDictionary())

	first := m.Analyze("mal au genou, arthrose, mal au coeur")
	second := m.Analyze("mal au genou, arthrose, mal au coeur")

	assert.Equal(t, []string{"rhumatologie", "cardiologie"}, first.Specialties)
	assert.Equal(t, first, second)
}

func TestAnalyze_Empty(t *testing.T) {
	a := NewMatcher(DefaultDictionary()).Analyze("   ")
	assert.True(t, a.Empty())
}

func TestScore_Monotonic(t *testing.T) {
	base := func(name string, services ...string) *model.Establishment {
		return &model.Establishment{Name: name, Type: "clinic", City: "Libreville", Services: pq.StringArray(services)}
	}
	exact := base("Clinique Biyoghe")
	partial := base("Clinique Biyoghe Annexe")
	serviceOnly := base("Centre Médical Nkembo", "consultations Clinique Biyoghe")

	query := "clinique biyoghe"
	assert.Greater(t, Score(exact, query), Score(partial, query))
	assert.Greater(t, Score(partial, query), Score(serviceOnly, query))
	assert.Greater(t, Score(serviceOnly, query), 0)
}

func TestScore_Bonuses(t *testing.T) {
	est := &model.Establishment{Name: "Pharmacie Nzeng-Ayong", Type: "pharmacy", City: "Libreville", Open24h: true, AcceptsInsurance: true}

	assert.Equal(t, scoreOpen24h+scoreAcceptsInsurer, Score(est, ""))
	assert.Equal(t, scoreNameContains+scoreType+scoreOpen24h+scoreAcceptsInsurer, Score(est, "pharma"))
	assert.Equal(t, scoreCity+scoreOpen24h+scoreAcceptsInsurer, Score(est, "libreville"))
}

func TestRank_TiesBreakByName(t *testing.T) {
	results := Rank([]*model.Establishment{
		{Name: "Pharmacie B"},
		{Name: "Pharmacie A"},
		{Name: "Cabinet", Open24h: true},
	}, "")

	require.Len(t, results, 3)
	assert.Equal(t, "Cabinet", results[0].Establishment.Name)
	assert.Equal(t, "Pharmacie A", results[1].Establishment.Name)
	assert.Equal(t, "Pharmacie B", results[2].Establishment.Name)
}

func TestHaversine(t *testing.T) {
	libreville := Point{Lat: 0.4162, Lng: 9.4673}
	portGentil := Point{Lat: -0.7193, Lng: 8.7815}

	assert.InDelta(t, 147, Haversine(libreville, portGentil), 3)
	assert.Zero(t, Haversine(libreville, libreville))
}

func TestSortByDistanceAndNearby(t *testing.T) {
	origin := Point{Lat: 0.4162, Lng: 9.4673}
	far := &model.Establishment{Name: "Port-Gentil", Latitude: float(-0.7193), Longitude: float(8.7815)}
	near := &model.Establishment{Name: "Glass", Latitude: float(0.3980), Longitude: float(9.4440)}
	unknown := &model.Establishment{Name: "Sans coordonnées"}

	sorted := SortByDistance([]*model.Establishment{unknown, far, near}, origin)
	require.Len(t, sorted, 3)
	assert.Equal(t, "Glass", sorted[0].Establishment.Name)
	assert.Equal(t, "Port-Gentil", sorted[1].Establishment.Name)
	assert.Nil(t, sorted[2].DistanceKm)

	nearby := Nearby([]*model.Establishment{unknown, far, near}, origin, 10)
	require.Len(t, nearby, 1)
	assert.Equal(t, "Glass", nearby[0].Establishment.Name)
}

func TestFilter_Apply(t *testing.T) {
	origin := Point{Lat: 0.4162, Lng: 9.4673}
	establishments := []*model.Establishment{
		{Name: "A", Type: "pharmacy", Province: "Estuaire", City: "Libreville", Open24h: true, AcceptsInsurance: true,
			Latitude: float(0.40), Longitude: float(9.45)},
		{Name: "B", Type: "pharmacy", Province: "Estuaire", City: "Libreville"},
		{Name: "C", Type: "hospital", Province: "Ogooué-Maritime", City: "Port-Gentil", Services: pq.StringArray{"Radiologie"}},
	}

	f := &Filter{Types: []string{"Pharmacy"}, Open24h: true}
	assert.Equal(t, []*model.Establishment{establishments[0]}, f.Apply(establishments))

	f = &Filter{Provinces: []string{"ogooue-maritime"}, Services: []string{"radiologie"}}
	assert.Equal(t, []*model.Establishment{establishments[2]}, f.Apply(establishments))

	f = &Filter{MaxDistanceKm: 5, Origin: &origin, AcceptsInsurance: true}
	assert.Equal(t, []*model.Establishment{establishments[0]}, f.Apply(establishments))

	assert.Len(t, (&Filter{}).Apply(establishments), 3)
}

func TestLoadDictionary_ExtendsBuiltIns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
keywords:
  - keyword: drépanocytose
    specialty: hématologie
locations:
  - name: Alibandeng
    city: Libreville
    province: Estuaire
`), 0o600))

	dict, err := LoadDictionary(path)
	require.NoError(t, err)

	a := NewMatcher(dict).Analyze("drepanocytose a Alibandeng, mal de dos")
	assert.Equal(t, []string{"rhumatologie", "hématologie"}, a.Specialties)
	require.Len(t, a.Locations, 1)
	assert.Equal(t, "Alibandeng", a.Locations[0].Name)
}

func TestLoadDictionary_RejectsIncompleteRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.yml")
	require.NoError(t, os.WriteFile(path, []byte("keywords:\n  - keyword: toux\n"), 0o600))

	_, err := LoadDictionary(path)
	assert.Error(t, err)
}

func TestService_Search(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for _, est := range []*model.Establishment{
		{Name: "Cabinet Rhumato Akanda", Type: "cabinet", Province: "Estuaire", City: "Libreville", Neighborhood: "Akanda",
			Specialties: pq.StringArray{"Rhumatologie"}},
		{Name: "Clinique du Dos Owendo", Type: "clinic", Province: "Estuaire", City: "Owendo",
			Specialties: pq.StringArray{"rhumatologie"}},
		{Name: "Pharmacie Akanda", Type: "pharmacy", Province: "Estuaire", City: "Libreville", Neighborhood: "Akanda"},
	} {
		require.NoError(t, store.Establishments().Create(ctx, est))
	}

	svc := NewService(store.Establishments(), NewMatcher(DefaultDictionary()), logger.Nop())
	resp, err := svc.Search(ctx, Query{Text: "j'ai mal de dos à Akanda"})
	require.NoError(t, err)

	require.Equal(t, 1, resp.Total)
	assert.Equal(t, "Cabinet Rhumato Akanda", resp.Results[0].Establishment.Name)
	assert.Contains(t, resp.Analysis.Specialties, "rhumatologie")
}
