// Package scoping implements the scripted project-scoping conversation:
// a pure flow controller that maps a transcript to the next assistant reply,
// and the per-dialog session that owns the transcript.
package scoping

// DefaultQuestions is the fixed scoping question list.
var DefaultQuestions = []string{
	"What type of application are you looking to build? (Web app, mobile app, API, etc.)",
	"Do you need user authentication and user management?",
	"Will you need to integrate with any third-party APIs or services?",
	"Do you need AI/ML features in your application?",
	"How many users do you expect to use your app initially?",
	"Do you need a database to store user data?",
	"What's your target launch timeline?",
	"Do you have any specific design requirements or brand guidelines?",
}

// DefaultThreshold is the number of prior transcript entries after which
// the controller stops asking and assesses.
const DefaultThreshold = 4

// Script is the question list and the turn at which assessment happens.
type Script struct {
	Questions   []string
	Threshold   int
	// PerExchange counts turns in completed user/assistant exchanges
	// instead of transcript entries, so every question gets asked.
	PerExchange bool
}

// DefaultScript assesses at DefaultThreshold regardless of remaining questions.
func DefaultScript() Script {
	return Script{Questions: DefaultQuestions, Threshold: DefaultThreshold}
}

// ScriptFor returns the default script, or one that walks the whole question
// list before assessing when exhaustQuestions is set.
func ScriptFor(exhaustQuestions bool) Script {
	s := DefaultScript()
	if exhaustQuestions {
		s.Threshold = len(s.Questions)
		s.PerExchange = true
	}
	return s
}

// AnsweredBeforeAssessment returns how many user messages receive a question
// before the next one receives the assessment.
func (s Script) AnsweredBeforeAssessment() int {
	t := s.threshold()
	if s.PerExchange {
		return t
	}
	// Each exchange adds two entries.
	return (t + 1) / 2
}

// turn maps a transcript length to the index used for questions and threshold.
func (s Script) turn(entries int) int {
	if s.PerExchange {
		return entries / 2
	}
	return entries
}

// question returns the prompt for turn, or the generic fallback.
func (s Script) question(turn int) string {
	if turn >= 0 && turn < len(s.Questions) && s.Questions[turn] != "" {
		return s.Questions[turn]
	}
	return fallbackPrompt
}

func (s Script) threshold() int {
	if s.Threshold <= 0 {
		return DefaultThreshold
	}
	return s.Threshold
}
