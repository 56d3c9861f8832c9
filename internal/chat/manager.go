// Package chat exposes scoping conversations over HTTP, SSE and websockets.
//
// Each visitor tab owns one in-memory scoping.Session keyed by the anonymous
// visitor ID and the tab session ID. Sessions are created lazily and swept
// once they have been idle past the configured TTL.
package chat

import (
	"log/slog"
	"sync"
	"time"

	"github.com/niranjanbala/agency-10x/internal/scoping"
)

// Key identifies a conversation: one per visitor tab.
type Key struct {
	VisitorID string
	SessionID string
}

func (k Key) String() string {
	return k.VisitorID + ":" + k.SessionID
}

// ManagerConfig configures a Manager. Zero values pick defaults.
type ManagerConfig struct {
	Script        scoping.Script
	ThinkingDelay time.Duration
	Random        scoping.RandomSource
	Logger        *slog.Logger
	Now           func() time.Time
}

// Manager owns the live conversation sessions.
type Manager struct {
	controller *scoping.Controller
	delay      time.Duration
	logger     *slog.Logger
	now        func() time.Time

	mu       sync.Mutex
	sessions map[Key]*scoping.Session
}

// NewManager creates an empty session registry.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		controller: scoping.NewController(cfg.Script, cfg.Random),
		delay:      cfg.ThinkingDelay,
		logger:     cfg.Logger,
		now:        cfg.Now,
		sessions:   make(map[Key]*scoping.Session),
	}
}

// Get returns the session for key, creating it on first use.
func (m *Manager) Get(key Key) *scoping.Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[key]; ok {
		return s
	}
	s := scoping.NewSession(m.controller, scoping.SessionConfig{
		ThinkingDelay: m.delay,
		Logger:        m.logger.With("visitor_id", key.VisitorID, "session_id", key.SessionID),
		Now:           m.now,
	})
	m.sessions[key] = s
	m.logger.Debug("Chat session created", "visitor_id", key.VisitorID, "session_id", key.SessionID)
	return s
}

// Lookup returns the session for key without creating one.
func (m *Manager) Lookup(key Key) (*scoping.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Reset clears the conversation for key. Resetting an unknown key is a no-op.
func (m *Manager) Reset(key Key) {
	if s, ok := m.Lookup(key); ok {
		s.Reset()
	}
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for at least ttl. Sessions with a reply in
// flight are never evicted, nor are keys for which keep reports true.
func (m *Manager) Sweep(ttl time.Duration, keep func(Key) bool) []Key {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	var evicted []Key
	for key, s := range m.sessions {
		if keep != nil && keep(key) {
			continue
		}
		if !s.Expired(now, ttl) {
			continue
		}
		delete(m.sessions, key)
		evicted = append(evicted, key)
	}
	return evicted
}
