package search

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// KeywordRule maps a symptom or body-part keyword to a specialty.
type KeywordRule struct {
	Keyword   string `yaml:"keyword"`
	Specialty string `yaml:"specialty"`
}

// Location is a neighborhood or town and the city it belongs to.
type Location struct {
	Name     string `yaml:"name" json:"name"`
	City     string `yaml:"city" json:"city"`
	Province string `yaml:"province" json:"province"`
}

// Dictionary holds the rules scanned by Analyze. Rules are matched in order,
// which keeps results stable.
type Dictionary struct {
	Keywords  []KeywordRule `yaml:"keywords"`
	Locations []Location    `yaml:"locations"`
}

// DefaultDictionary returns the built-in rules.
func DefaultDictionary() *Dictionary {
	return &Dictionary{
		Keywords: []KeywordRule{
			{"mal de dos", "rhumatologie"},
			{"dos", "rhumatologie"},
			{"articulation", "rhumatologie"},
			{"genou", "rhumatologie"},
			{"arthrose", "rhumatologie"},
			{"rhumatisme", "rhumatologie"},
			{"coeur", "cardiologie"},
			{"cœur", "cardiologie"},
			{"poitrine", "cardiologie"},
			{"tension", "cardiologie"},
			{"palpitation", "cardiologie"},
			{"enfant", "pédiatrie"},
			{"bébé", "pédiatrie"},
			{"nourrisson", "pédiatrie"},
			{"dents", "dentisterie"},
			{"dentaire", "dentisterie"},
			{"carie", "dentisterie"},
			{"gencive", "dentisterie"},
			{"grossesse", "gynécologie"},
			{"enceinte", "gynécologie"},
			{"règles", "gynécologie"},
			{"accouchement", "maternité"},
			{"peau", "dermatologie"},
			{"démangeaison", "dermatologie"},
			{"eczéma", "dermatologie"},
			{"bouton", "dermatologie"},
			{"yeux", "ophtalmologie"},
			{"oeil", "ophtalmologie"},
			{"œil", "ophtalmologie"},
			{"lunettes", "ophtalmologie"},
			{"oreille", "orl"},
			{"gorge", "orl"},
			{"sinus", "orl"},
			{"ventre", "gastro-entérologie"},
			{"estomac", "gastro-entérologie"},
			{"diarrhée", "gastro-entérologie"},
			{"vomissement", "gastro-entérologie"},
			{"migraine", "neurologie"},
			{"mal de tête", "neurologie"},
			{"vertige", "neurologie"},
			{"fracture", "traumatologie"},
			{"entorse", "traumatologie"},
			{"fièvre", "médecine générale"},
			{"paludisme", "médecine générale"},
			{"palu", "médecine générale"},
			{"toux", "pneumologie"},
			{"asthme", "pneumologie"},
			{"respirer", "pneumologie"},
			{"diabète", "endocrinologie"},
			{"thyroïde", "endocrinologie"},
			{"urine", "urologie"},
			{"prostate", "urologie"},
			{"reins", "néphrologie"},
			{"dépression", "psychiatrie"},
			{"anxiété", "psychiatrie"},
			{"insomnie", "psychiatrie"},
		},
		Locations: []Location{
			{"Libreville", "Libreville", "Estuaire"},
			{"Akanda", "Libreville", "Estuaire"},
			{"Angondjé", "Libreville", "Estuaire"},
			{"Nzeng-Ayong", "Libreville", "Estuaire"},
			{"Mont-Bouët", "Libreville", "Estuaire"},
			{"Nombakélé", "Libreville", "Estuaire"},
			{"Batterie IV", "Libreville", "Estuaire"},
			{"Glass", "Libreville", "Estuaire"},
			{"Lalala", "Libreville", "Estuaire"},
			{"Okala", "Libreville", "Estuaire"},
			{"Sotega", "Libreville", "Estuaire"},
			{"Louis", "Libreville", "Estuaire"},
			{"Owendo", "Owendo", "Estuaire"},
			{"Ntoum", "Ntoum", "Estuaire"},
			{"Port-Gentil", "Port-Gentil", "Ogooué-Maritime"},
			{"Franceville", "Franceville", "Haut-Ogooué"},
			{"Moanda", "Moanda", "Haut-Ogooué"},
			{"Oyem", "Oyem", "Woleu-Ntem"},
			{"Lambaréné", "Lambaréné", "Moyen-Ogooué"},
			{"Mouila", "Mouila", "Ngounié"},
			{"Tchibanga", "Tchibanga", "Nyanga"},
			{"Makokou", "Makokou", "Ogooué-Ivindo"},
			{"Koulamoutou", "Koulamoutou", "Ogooué-Lolo"},
		},
	}
}

// LoadDictionary returns the built-in rules extended with those in the YAML
// file at path. An empty path returns the built-in rules.
func LoadDictionary(path string) (*Dictionary, error) {
	dict := DefaultDictionary()
	if path == "" {
		return dict, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search dictionary: %w", err)
	}

	var extra Dictionary
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse search dictionary: %w", err)
	}
	for i, k := range extra.Keywords {
		if k.Keyword == "" || k.Specialty == "" {
			return nil, fmt.Errorf("keyword rule %d: keyword and specialty are required", i+1)
		}
	}
	for i, l := range extra.Locations {
		if l.Name == "" || l.City == "" {
			return nil, fmt.Errorf("location %d: name and city are required", i+1)
		}
	}

	dict.Keywords = append(dict.Keywords, extra.Keywords...)
	dict.Locations = append(dict.Locations, extra.Locations...)
	return dict, nil
}
