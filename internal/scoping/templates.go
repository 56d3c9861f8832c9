package scoping

import (
	"fmt"

	"github.com/niranjanbala/agency-10x/internal/domain"
)

const (
	greetingPrefix = "Hi! I'm here to help scope your project. "
	ackPrefix      = "Great! "
	fallbackPrompt = "Tell me more about any specific features you need."
)

const buildableTemplate = `Based on our conversation, I can help you build this! Here's my assessment:

**Project Complexity:** %s
**Timeline:** %s
**Assessment:** %s

I'd love to discuss this further and get started on your project. Would you like to schedule a call?`

const declineTemplate = `After reviewing your requirements, this project is quite complex and would require more extensive planning and resources than I can provide in my current timeframe.

**Project Complexity:** %s
**Timeline:** %s
**Assessment:** %s

I'd recommend breaking this down into smaller phases or considering a larger development team for this scope.`

func complexityBadge(c domain.Complexity) string {
	switch c {
	case domain.ComplexitySimple:
		return "Simple ✅"
	case domain.ComplexityMedium:
		return "Medium ⏱️"
	default:
		return c.Label() + " 🚫"
	}
}

func renderAssessment(a domain.Assessment) string {
	tmpl := declineTemplate
	if a.CanBuild {
		tmpl = buildableTemplate
	}
	return fmt.Sprintf(tmpl, complexityBadge(a.Complexity), a.Timeline, a.Reasoning)
}
