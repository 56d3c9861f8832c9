package scoping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/niranjanbala/agency-10x/internal/domain"
)

var (
	// ErrEmptyMessage is returned for blank submissions.
	ErrEmptyMessage = errors.New("message is required")
	// ErrBusy is returned while another reply is pending for the session.
	ErrBusy = errors.New("a reply is already in progress")
	// ErrAssessed is returned once the conversation holds an assessment.
	ErrAssessed = errors.New("conversation already assessed, reset to start over")
	// ErrDiscarded is returned when the session was reset while a reply was pending.
	ErrDiscarded = errors.New("conversation was reset before the reply completed")
)

// DefaultThinkingDelay is the artificial latency before a reply is committed.
const DefaultThinkingDelay = 1500 * time.Millisecond

// Turn is one committed exchange.
type Turn struct {
	User       domain.Message
	Assistant  domain.Message
	Assessment *domain.Assessment
	State      State
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	Transcript []domain.Message   `json:"transcript"`
	Assessment *domain.Assessment `json:"assessment,omitempty"`
	State      State              `json:"state"`
	Processing bool               `json:"processing"`
}

// SessionConfig tunes a Session. Zero values pick defaults.
type SessionConfig struct {
	ThinkingDelay time.Duration
	Logger        *slog.Logger
	Now           func() time.Time
}

// Session owns one conversation: its transcript, the assessment once produced,
// and the processing flag that keeps a single reply in flight.
type Session struct {
	controller *Controller
	delay      time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu         sync.Mutex
	transcript []domain.Message
	assessment *domain.Assessment
	processing bool
	generation uint64
	lastActive time.Time
	input      SpeechInput
	output     SpeechOutput
}

// NewSession creates an empty session driven by controller.
func NewSession(controller *Controller, cfg SessionConfig) *Session {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ThinkingDelay < 0 {
		cfg.ThinkingDelay = 0
	}
	return &Session{
		controller: controller,
		delay:      cfg.ThinkingDelay,
		logger:     cfg.Logger,
		now:        cfg.Now,
		lastActive: cfg.Now(),
		input:      NoopSpeechInput{},
		output:     NoopSpeechOutput{},
	}
}

// BindSpeech replaces the session's speech capabilities. Nil selects the no-op variant.
func (s *Session) BindSpeech(in SpeechInput, out SpeechOutput) {
	if in == nil {
		in = NoopSpeechInput{}
	}
	if out == nil {
		out = NoopSpeechOutput{}
	}
	s.mu.Lock()
	s.input = in
	s.output = out
	s.mu.Unlock()
}

// Submit runs one unit of work: it generates the reply to text against the
// current transcript, waits out the thinking delay, then appends the user and
// assistant messages together. On any failure nothing is appended.
func (s *Session) Submit(ctx context.Context, text string) (*Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.processing {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if s.assessment != nil {
		s.mu.Unlock()
		return nil, ErrAssessed
	}
	prior := slices.Clone(s.transcript)
	gen := s.generation
	s.processing = true
	s.lastActive = s.now()
	s.mu.Unlock()

	userMsg := domain.NewMessage(domain.RoleUser, text, s.now())
	reply := s.controller.Advance(prior)
	err := s.think(ctx)

	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		s.logger.Info("Discarding reply for reset conversation", "turn", len(prior))
		return nil, ErrDiscarded
	}
	s.processing = false
	s.lastActive = s.now()
	if err != nil {
		s.mu.Unlock()
		s.logger.Warn("Reply generation failed", "turn", len(prior), "error", err)
		return nil, fmt.Errorf("generate reply: %w", err)
	}

	assistantMsg := domain.NewMessage(domain.RoleAssistant, reply.Text, s.now())
	s.transcript = append(s.transcript, userMsg, assistantMsg)
	if reply.Assessment != nil {
		a := *reply.Assessment
		s.assessment = &a
	}
	out := s.output
	s.mu.Unlock()

	if err := out.Speak(ctx, reply.Text); err != nil {
		s.logger.Debug("Speech output failed", "error", err)
	}

	return &Turn{
		User:       userMsg,
		Assistant:  assistantMsg,
		Assessment: reply.Assessment,
		State:      reply.State,
	}, nil
}

func (s *Session) think(ctx context.Context) error {
	if s.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset clears the transcript and assessment. Any reply still pending is
// discarded when it completes. Reset is safe to call repeatedly.
func (s *Session) Reset() {
	s.mu.Lock()
	s.transcript = nil
	s.assessment = nil
	s.processing = false
	s.generation++
	s.lastActive = s.now()
	s.mu.Unlock()
}

// Listen performs one voice activation and returns the recognised draft.
// It yields ok=false when voice input is unavailable or nothing was heard.
func (s *Session) Listen(ctx context.Context) (string, bool) {
	s.mu.Lock()
	in := s.input
	s.mu.Unlock()

	if !in.Available() {
		return "", false
	}
	text, ok := in.Capture(ctx)
	text = strings.TrimSpace(text)
	if !ok || text == "" {
		return "", false
	}
	return text, true
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		Transcript: slices.Clone(s.transcript),
		State:      s.stateLocked(),
		Processing: s.processing,
	}
	if snap.Transcript == nil {
		snap.Transcript = []domain.Message{}
	}
	if s.assessment != nil {
		a := *s.assessment
		snap.Assessment = &a
	}
	return snap
}

func (s *Session) stateLocked() State {
	if s.assessment != nil {
		return StateAssessed
	}
	return s.controller.StateAt(len(s.transcript))
}

// Assessment returns the held assessment, if any.
func (s *Session) Assessment() (domain.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.assessment == nil {
		return domain.Assessment{}, false
	}
	return *s.assessment, true
}

// SchedulingAllowed reports whether the scheduling handoff may be offered.
func (s *Session) SchedulingAllowed() bool {
	a, ok := s.Assessment()
	return ok && a.CanBuild
}

// Expired reports whether the session has been idle for at least ttl and has
// no reply in flight.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.processing && now.Sub(s.lastActive) >= ttl
}
