package domain

import "fmt"

// Complexity buckets a scoped project.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityMedium  Complexity = "medium"
	ComplexityComplex Complexity = "complex"
)

// complexityProfile is the fixed timeline and reasoning for a bucket.
type complexityProfile struct {
	timeline  string
	reasoning string
}

var complexityProfiles = map[Complexity]complexityProfile{
	ComplexitySimple: {
		timeline:  "1 week",
		reasoning: "This is a straightforward project that can be built quickly with modern tools.",
	},
	ComplexityMedium: {
		timeline:  "2-4 weeks",
		reasoning: "This project has moderate complexity and will require careful planning and execution.",
	},
	ComplexityComplex: {
		timeline:  "2+ months",
		reasoning: "This project is quite complex and would require extensive planning and development time.",
	},
}

// Valid reports whether c is one of the known buckets.
func (c Complexity) Valid() bool {
	_, ok := complexityProfiles[c]
	return ok
}

// Label returns the capitalized bucket name.
func (c Complexity) Label() string {
	switch c {
	case ComplexitySimple:
		return "Simple"
	case ComplexityMedium:
		return "Medium"
	case ComplexityComplex:
		return "Complex"
	default:
		return string(c)
	}
}

// Assessment is the terminal verdict of a scoping conversation.
type Assessment struct {
	Complexity Complexity `json:"complexity"`
	Timeline   string     `json:"timeline"`
	CanBuild   bool       `json:"can_build"`
	Reasoning  string     `json:"reasoning"`
}

// NewAssessment derives an assessment from the lookup table.
// CanBuild is true for every bucket except complex.
func NewAssessment(c Complexity) (Assessment, error) {
	p, ok := complexityProfiles[c]
	if !ok {
		return Assessment{}, fmt.Errorf("unknown complexity %q", c)
	}
	return Assessment{
		Complexity: c,
		Timeline:   p.timeline,
		CanBuild:   c != ComplexityComplex,
		Reasoning:  p.reasoning,
	}, nil
}
