// Package diagnosis ranks candidate diseases for an animal from a list of
// observed symptom tags using a static per-species profile table.
package diagnosis

import (
	"cmp"
	"slices"
)

const (
	// UnknownCondition is reported when the resolved profile has no diseases.
	UnknownCondition = "Unknown Condition"

	SeverityLow    = "Low"
	SeverityMedium = "Medium"
	SeverityHigh   = "High"

	symptomWeight = 10
	baseScore     = 20

	confidenceMultiplier = 2
	confidenceMin        = 60
	confidenceMax        = 95
	confidenceUnknown    = 70

	severityHighAbove   = 80
	severityMediumAbove = 60

	SymptomFever               = "fever"
	SymptomDiarrhea            = "diarrhea"
	SymptomVomiting            = "vomiting"
	SymptomDifficultyBreathing = "difficulty_breathing"

	RecommendIsolate     = "Isolate the animal to prevent disease spread"
	RecommendTemperature = "Monitor body temperature regularly"
	RecommendFluids      = "Ensure adequate fluid intake to prevent dehydration"
	RecommendVentilation = "Ensure good ventilation and avoid stress"
)

var baselineRecommendations = []string{
	"Consult with a veterinarian immediately for proper diagnosis",
	"Monitor the animal's condition closely",
	"Ensure proper nutrition and hydration",
	"Keep the animal comfortable and reduce stress",
}

// DiseaseScore is the accumulated score of one candidate disease.
type DiseaseScore struct {
	Disease string `json:"disease" yaml:"disease"`
	Score   int    `json:"score" yaml:"score"`
}

// Verdict is the outcome of scoring one case.
type Verdict struct {
	Disease          string   `json:"disease" yaml:"disease"`
	Confidence       float64  `json:"confidence" yaml:"confidence"`
	SymptomsAnalyzed []string `json:"symptoms_analyzed" yaml:"symptoms_analyzed"`
	Recommendations  []string `json:"recommendations" yaml:"recommendations"`
	Severity         string   `json:"severity" yaml:"severity"`
	AnimalType       string   `json:"animal_type" yaml:"animal_type"`
}

// Scorer ranks diseases against a Table.
type Scorer struct {
	table *Table
}

// NewScorer returns a Scorer over t. A nil table means the default table.
func NewScorer(t *Table) *Scorer {
	if t == nil {
		t = defaultTable
	}
	return &Scorer{table: t}
}

// Table returns the table s scores against.
func (s *Scorer) Table() *Table {
	return s.table
}

// Score scores symptoms against the default table.
func Score(animalType string, symptoms []string) *Verdict {
	return NewScorer(nil).Score(animalType, symptoms)
}

// Rank returns every candidate disease for animalType with its score,
// highest first. Equal scores keep the profile's declared order.
// Repeated symptoms count once per occurrence; unknown tags are ignored.
func (s *Scorer) Rank(animalType string, symptoms []string) []DiseaseScore {
	p := s.table.Resolve(animalType)
	if p == nil {
		return []DiseaseScore{}
	}

	scores := make(map[string]int, len(p.Diseases))
	for _, d := range p.Diseases {
		scores[d] = 0
	}

	for _, symptom := range symptoms {
		for _, d := range p.Symptoms[symptom] {
			if _, ok := scores[d]; ok {
				scores[d] += symptomWeight
			}
		}
	}

	ranked := make([]DiseaseScore, 0, len(p.Diseases))
	for _, d := range p.Diseases {
		ranked = append(ranked, DiseaseScore{Disease: d, Score: scores[d] + baseScore})
	}

	slices.SortStableFunc(ranked, func(a, b DiseaseScore) int {
		return cmp.Compare(b.Score, a.Score)
	})

	return ranked
}

// Score produces the verdict for one case. It never fails: unknown species
// resolve to the fallback profile and unknown symptoms are ignored.
func (s *Scorer) Score(animalType string, symptoms []string) *Verdict {
	ranked := s.Rank(animalType, symptoms)

	disease := UnknownCondition
	confidence := confidenceUnknown
	if len(ranked) > 0 {
		disease = ranked[0].Disease
		confidence = min(confidenceMax, max(confidenceMin, ranked[0].Score*confidenceMultiplier))
	}

	return &Verdict{
		Disease:          disease,
		Confidence:       float64(confidence),
		SymptomsAnalyzed: nonNil(slices.Clone(symptoms)),
		Recommendations:  s.recommend(disease, symptoms),
		Severity:         severityOf(confidence),
		AnimalType:       animalType,
	}
}

func (s *Scorer) recommend(disease string, symptoms []string) []string {
	list := slices.Clone(baselineRecommendations)

	if slices.Contains(symptoms, SymptomFever) {
		list = append(list, RecommendTemperature)
	}
	if slices.Contains(symptoms, SymptomDiarrhea) || slices.Contains(symptoms, SymptomVomiting) {
		list = append(list, RecommendFluids)
	}
	if slices.Contains(symptoms, SymptomDifficultyBreathing) {
		list = append(list, RecommendVentilation)
	}

	if s.table.Contagious(disease) {
		list = slices.Insert(list, 1, RecommendIsolate)
	}

	return list
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// thresholds are strict: exactly 80 is Medium, exactly 60 is Low
func severityOf(confidence int) string {
	switch {
	case confidence > severityHighAbove:
		return SeverityHigh
	case confidence > severityMediumAbove:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
