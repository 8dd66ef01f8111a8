package diagnosis

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

var (
	//go:embed profiles.yaml
	profilesYAML []byte

	defaultTable = mustLoadTable(profilesYAML)
)

// Profile is the set of candidate diseases for one species and the
// symptoms that implicate them. Diseases keep their declared order.
type Profile struct {
	Species  string              `json:"species" yaml:"species"`
	Diseases []string            `json:"diseases" yaml:"diseases"`
	Symptoms map[string][]string `json:"symptoms" yaml:"symptoms"`
}

// SymptomTags returns the symptom tags known to the profile, sorted.
func (p *Profile) SymptomTags() []string {
	tags := make([]string, 0, len(p.Symptoms))
	for tag := range p.Symptoms {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	return tags
}

// Table is an immutable lookup of species profiles. It is safe for
// concurrent use because nothing mutates it after LoadTable returns.
type Table struct {
	profiles   map[string]*Profile
	fallback   *Profile
	contagious map[string]struct{}
}

type tableDoc struct {
	Profiles   map[string]*Profile `yaml:"profiles"`
	Fallback   *Profile            `yaml:"fallback"`
	Contagious []string            `yaml:"contagious"`
}

// DefaultTable returns the table built from the embedded profile document.
func DefaultTable() *Table {
	return defaultTable
}

// LoadTable parses and validates a YAML profile document.
func LoadTable(b []byte) (*Table, error) {
	var doc tableDoc
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing profile table: %w", err)
	}

	if doc.Fallback == nil || len(doc.Fallback.Diseases) == 0 {
		return nil, errors.New("profile table requires a fallback with at least one disease")
	}
	doc.Fallback.Species = ""
	if doc.Fallback.Symptoms == nil {
		doc.Fallback.Symptoms = map[string][]string{}
	}
	if err := validateProfile(doc.Fallback); err != nil {
		return nil, fmt.Errorf("invalid fallback profile: %w", err)
	}

	t := &Table{
		profiles:   make(map[string]*Profile, len(doc.Profiles)),
		fallback:   doc.Fallback,
		contagious: make(map[string]struct{}, len(doc.Contagious)),
	}

	for species, p := range doc.Profiles {
		if species == "" {
			return nil, errors.New("profile with empty species tag")
		}
		if p == nil {
			return nil, fmt.Errorf("profile %s is empty", species)
		}
		p.Species = species
		if p.Symptoms == nil {
			p.Symptoms = map[string][]string{}
		}
		if err := validateProfile(p); err != nil {
			return nil, fmt.Errorf("invalid profile %s: %w", species, err)
		}
		t.profiles[species] = p
	}

	for _, d := range doc.Contagious {
		t.contagious[d] = struct{}{}
	}

	return t, nil
}

func validateProfile(p *Profile) error {
	seen := make(map[string]struct{}, len(p.Diseases))
	for _, d := range p.Diseases {
		if _, ok := seen[d]; ok {
			return fmt.Errorf("duplicate disease %q", d)
		}
		seen[d] = struct{}{}
	}
	for tag, diseases := range p.Symptoms {
		for _, d := range diseases {
			if _, ok := seen[d]; !ok {
				return fmt.Errorf("symptom %q implicates undeclared disease %q", tag, d)
			}
		}
	}
	return nil
}

func mustLoadTable(b []byte) *Table {
	t, err := LoadTable(b)
	if err != nil {
		panic(err)
	}
	return t
}

// Resolve returns the profile for species, or the fallback profile when
// the species is unknown. Matching is exact.
func (t *Table) Resolve(species string) *Profile {
	if p, ok := t.profiles[species]; ok {
		return p
	}
	return t.fallback
}

// Known reports whether species has its own profile.
func (t *Table) Known(species string) bool {
	_, ok := t.profiles[species]
	return ok
}

// Species returns the known species tags, sorted.
func (t *Table) Species() []string {
	list := make([]string, 0, len(t.profiles))
	for s := range t.profiles {
		list = append(list, s)
	}
	slices.Sort(list)
	return list
}

// Profiles returns the known profiles ordered by species tag.
func (t *Table) Profiles() []*Profile {
	list := make([]*Profile, 0, len(t.profiles))
	for _, s := range t.Species() {
		list = append(list, t.profiles[s])
	}
	return list
}

// Fallback returns the profile used for unknown species.
func (t *Table) Fallback() *Profile {
	return t.fallback
}

// Contagious reports whether disease warrants isolating the animal.
func (t *Table) Contagious(disease string) bool {
	_, ok := t.contagious[disease]
	return ok
}

// ContagiousDiseases returns the contagious set, sorted.
func (t *Table) ContagiousDiseases() []string {
	list := make([]string, 0, len(t.contagious))
	for d := range t.contagious {
		list = append(list, d)
	}
	slices.Sort(list)
	return list
}
