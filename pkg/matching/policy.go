package matching

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StepScores are the fixed confidence scores of the exact-key steps and the
// score band of the partial-address step.
type StepScores struct {
	CorporateNumber int `yaml:"corporate_number" json:"corporateNumber"`
	NameAndPostal   int `yaml:"name_and_postal" json:"nameAndPostal"`
	NameAndAddress  int `yaml:"name_and_address" json:"nameAndAddress"`
	PartialMin      int `yaml:"partial_min" json:"partialMin"`
	PartialMax      int `yaml:"partial_max" json:"partialMax"`
	NameOnly        int `yaml:"name_only" json:"nameOnly"`
}

// SignalWeights are summed by the high-precision step.
type SignalWeights struct {
	CorporateNumber int `yaml:"corporate_number" json:"corporateNumber"`
	AddressExact    int `yaml:"address_exact" json:"addressExact"`
	AddressPrefix   int `yaml:"address_prefix" json:"addressPrefix"`
	Representative  int `yaml:"representative" json:"representative"`
}

// Policy holds every scoring constant the matcher uses. Scores at or above
// HighConfidence merge automatically, scores in [LowConfidence,
// HighConfidence) merge flagged for audit, anything lower is no match.
type Policy struct {
	HighConfidence int           `yaml:"high_confidence" json:"highConfidence"`
	LowConfidence  int           `yaml:"low_confidence" json:"lowConfidence"`
	Scores         StepScores    `yaml:"scores" json:"scores"`
	Signals        SignalWeights `yaml:"signals" json:"signals"`
	// PrefixLength is the shortest shared address prefix, in characters,
	// that counts as partial overlap.
	PrefixLength int `yaml:"prefix_length" json:"prefixLength"`
	// MinContainment is the shortest address, in characters, allowed to
	// count as contained in another.
	MinContainment int `yaml:"min_containment" json:"minContainment"`
	// ContainmentRatio is how long the shorter name core must be relative
	// to the longer for containment to count as a name match.
	ContainmentRatio float64 `yaml:"containment_ratio" json:"containmentRatio"`
	// MaxScore caps summed signal scores.
	MaxScore int `yaml:"max_score" json:"maxScore"`
}

// DefaultPolicy returns the production scoring policy.
func DefaultPolicy() Policy {
	return Policy{
		HighConfidence: 70,
		LowConfidence:  50,
		Scores: StepScores{
			CorporateNumber: 100,
			NameAndPostal:   100,
			NameAndAddress:  90,
			PartialMin:      50,
			PartialMax:      75,
			NameOnly:        60,
		},
		Signals: SignalWeights{
			CorporateNumber: 100,
			AddressExact:    50,
			AddressPrefix:   25,
			Representative:  30,
		},
		PrefixLength:     10,
		MinContainment:   4,
		ContainmentRatio: 0.8,
		MaxScore:         100,
	}
}

// LoadPolicy reads a YAML policy file. Keys missing from the file keep
// their default values. An empty path returns DefaultPolicy.
func LoadPolicy(path string) (Policy, error) {
	p := DefaultPolicy()
	if path == "" {
		return p, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("failed to read match policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("failed to parse match policy %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks that the three confidence tiers are well formed.
func (p Policy) Validate() error {
	if p.LowConfidence <= 0 {
		return fmt.Errorf("low_confidence must be positive, got %d", p.LowConfidence)
	}
	if p.HighConfidence <= p.LowConfidence {
		return fmt.Errorf("high_confidence (%d) must exceed low_confidence (%d)", p.HighConfidence, p.LowConfidence)
	}
	if p.Scores.PartialMax < p.Scores.PartialMin {
		return fmt.Errorf("scores.partial_max (%d) is below scores.partial_min (%d)", p.Scores.PartialMax, p.Scores.PartialMin)
	}
	if p.ContainmentRatio <= 0 || p.ContainmentRatio > 1 {
		return fmt.Errorf("containment_ratio must be in (0, 1], got %v", p.ContainmentRatio)
	}
	if p.PrefixLength <= 0 {
		return fmt.Errorf("prefix_length must be positive, got %d", p.PrefixLength)
	}
	return nil
}

// Tier is where a score falls in the policy.
type Tier int

const (
	TierReject Tier = iota
	TierLow
	TierHigh
)

// Classify places score into one of the three tiers.
func (p Policy) Classify(score int) Tier {
	switch {
	case score >= p.HighConfidence:
		return TierHigh
	case score >= p.LowConfidence:
		return TierLow
	default:
		return TierReject
	}
}
