package scoping

import (
	"math/rand/v2"

	"github.com/niranjanbala/agency-10x/internal/domain"
)

// State is the conversation phase, derived only from transcript length.
type State string

const (
	StateGreeting State = "greeting"
	StateScoping  State = "scoping"
	StateAssessed State = "assessed"
)

// RandomSource yields uniform draws in [0, 1).
type RandomSource interface {
	Float64() float64
}

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() }

// Draw thresholds for the complexity roll.
const (
	complexCutoff = 0.7
	mediumCutoff  = 0.4
)

// assessments holds the verdict for every bucket drawComplexity can yield.
var assessments = map[domain.Complexity]domain.Assessment{
	domain.ComplexitySimple:  mustAssessment(domain.ComplexitySimple),
	domain.ComplexityMedium:  mustAssessment(domain.ComplexityMedium),
	domain.ComplexityComplex: mustAssessment(domain.ComplexityComplex),
}

func mustAssessment(c domain.Complexity) domain.Assessment {
	a, err := domain.NewAssessment(c)
	if err != nil {
		panic(err)
	}
	return a
}

// Reply is the controller's output for one turn.
type Reply struct {
	Text       string
	Assessment *domain.Assessment
	State      State
}

// Controller maps a transcript to the next assistant reply.
// It holds no conversation state; the same transcript always produces the
// same reply except for the complexity draw.
type Controller struct {
	script Script
	rng    RandomSource
}

// NewController creates a controller. A nil rng uses the process-wide generator.
func NewController(script Script, rng RandomSource) *Controller {
	if rng == nil {
		rng = globalRand{}
	}
	if len(script.Questions) == 0 {
		script.Questions = DefaultQuestions
	}
	return &Controller{script: script, rng: rng}
}

// StateAt returns the phase for a transcript holding entries prior messages.
func (c *Controller) StateAt(entries int) State {
	turn := c.script.turn(entries)
	switch {
	case turn <= 0:
		return StateGreeting
	case turn < c.script.threshold():
		return StateScoping
	default:
		return StateAssessed
	}
}

// Advance computes the assistant reply for the transcript as it stood before
// the newest user message. It never mutates transcript. At or beyond the
// threshold every call produces a fresh assessment.
func (c *Controller) Advance(transcript []domain.Message) Reply {
	state := c.StateAt(len(transcript))

	switch state {
	case StateGreeting:
		return Reply{Text: greetingPrefix + c.script.question(0), State: state}
	case StateScoping:
		return Reply{Text: ackPrefix + c.script.question(c.script.turn(len(transcript))), State: state}
	}

	a := assessments[c.drawComplexity()]
	return Reply{Text: renderAssessment(a), Assessment: &a, State: state}
}

// drawComplexity takes a second draw only when the first misses the complex band.
func (c *Controller) drawComplexity() domain.Complexity {
	if c.rng.Float64() > complexCutoff {
		return domain.ComplexityComplex
	}
	if c.rng.Float64() > mediumCutoff {
		return domain.ComplexityMedium
	}
	return domain.ComplexitySimple
}
