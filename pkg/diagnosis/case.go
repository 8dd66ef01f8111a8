package diagnosis

// Case is one submission from a caller. Only AnimalType and Symptoms
// affect scoring; the rest is kept for the record.
type Case struct {
	AnimalType     string   `json:"animal_type" yaml:"animal_type"`
	Symptoms       []string `json:"symptoms" yaml:"symptoms"`
	Age            string   `json:"age,omitempty" yaml:"age,omitempty"`
	Weight         string   `json:"weight,omitempty" yaml:"weight,omitempty"`
	Temperature    string   `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	AdditionalInfo string   `json:"additional_info,omitempty" yaml:"additional_info,omitempty"`
}

// Evaluate scores c against s.
func (s *Scorer) Evaluate(c *Case) *Verdict {
	if c == nil {
		return s.Score("", nil)
	}
	return s.Score(c.AnimalType, c.Symptoms)
}
