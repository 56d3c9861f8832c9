package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const peerWriteTimeout = 5 * time.Second

// Peer is the live websocket attached to a conversation.
type Peer struct {
	key  Key
	conn *websocket.Conn
}

// Send writes one JSON frame to the peer.
func (p *Peer) Send(ctx context.Context, frame serverFrame) error {
	ctx, cancel := context.WithTimeout(ctx, peerWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, p.conn, frame)
}

// Peers tracks at most one live websocket per conversation.
type Peers struct {
	mu     sync.RWMutex
	active map[Key]*Peer
}

// NewPeers creates an empty peer registry.
func NewPeers() *Peers {
	return &Peers{
		active: make(map[Key]*Peer),
	}
}

// Get returns the live peer for key, or nil.
func (m *Peers) Get(key Key) *Peer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active[key]
}

// Has reports whether key has a live peer.
func (m *Peers) Has(key Key) bool {
	return m.Get(key) != nil
}

// Register attaches conn to key. An existing peer for the same key is closed.
func (m *Peers) Register(key Key, conn *websocket.Conn) *Peer {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.active[key]; ok && existing.conn != conn {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}

	p := &Peer{key: key, conn: conn}
	m.active[key] = p
	slog.Info("Chat peer registered", "visitor_id", key.VisitorID, "session_id", key.SessionID)
	return p
}

// Unregister detaches p if it is still the live peer for its key and reports
// whether it was.
func (m *Peers) Unregister(p *Peer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.active[p.key]; ok && current == p {
		delete(m.active, p.key)
		slog.Info("Chat peer unregistered", "visitor_id", p.key.VisitorID, "session_id", p.key.SessionID)
		return true
	}
	return false
}

// CloseAll terminates every live peer.
func (m *Peers) CloseAll(reason string) {
	m.mu.Lock()
	peers := make([]*Peer, 0, len(m.active))
	for _, p := range m.active {
		peers = append(peers, p)
	}
	m.active = make(map[Key]*Peer)
	m.mu.Unlock()

	for _, p := range peers {
		_ = p.conn.Close(websocket.StatusGoingAway, reason)
	}
}
