package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/coder/websocket"

	"github.com/niranjanbala/agency-10x/internal/identity"
	"github.com/niranjanbala/agency-10x/internal/scoping"
)

// wsConn carries the per-connection state the read loop dispatches against.
type wsConn struct {
	key     Key
	peer    *Peer
	session *scoping.Session
	input   *wsSpeechInput
	wg      sync.WaitGroup
}

// ServeWS handles GET /ws/chat. The live socket receives every reply for the
// conversation and carries the browser's speech capabilities.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(w, r)
	if !ok {
		return
	}
	slog.Info("Chat websocket request", "visitor_id", key.VisitorID, "session_id", key.SessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept websocket", "error", err, "visitor_id", key.VisitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", key.VisitorID)
		}
	}()
	ws.SetReadLimit(h.maxBodySize)

	peer := h.peers.Register(key, ws)
	c := &wsConn{
		key:     key,
		peer:    peer,
		session: h.mgr.Get(key),
		input:   newWSSpeechInput(peer),
	}
	c.session.BindSpeech(c.input, wsSpeechOutput{peer: peer})
	defer func() {
		if h.peers.Unregister(peer) {
			c.session.BindSpeech(nil, nil)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		c.wg.Wait()
	}()

	h.send(ctx, peer, serverFrame{Type: eventState, State: h.state(key, c.session)})
	h.readLoop(ctx, ws, c)
	slog.Info("Chat websocket ended", "visitor_id", key.VisitorID, "session_id", key.SessionID)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, c *wsConn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("Chat websocket closed", "visitor_id", c.key.VisitorID)
			} else {
				slog.Warn("Chat websocket read error", "error", err, "visitor_id", c.key.VisitorID)
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			h.send(ctx, c.peer, serverFrame{Type: eventError, Error: "invalid frame", Code: "invalid_frame"})
			continue
		}
		h.dispatch(ctx, c, frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, c *wsConn, frame clientFrame) {
	switch frame.Type {
	case frameHello:
		h.send(ctx, c.peer, serverFrame{Type: eventState, State: h.state(c.key, c.session)})

	case frameMessage:
		h.handleWSMessage(ctx, c, frame.Content)

	case frameReset:
		h.reset(c.key, channelWS)
		h.send(ctx, c.peer, serverFrame{Type: eventState, State: h.state(c.key, c.session)})

	case frameVoiceToggle:
		if c.input.listening() {
			c.input.deliver("", false)
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if text, ok := c.session.Listen(ctx); ok {
				h.send(ctx, c.peer, serverFrame{Type: eventDraft, Text: text})
			}
			h.send(ctx, c.peer, listenFrame(false))
		}()

	case frameVoiceResult:
		c.input.deliver(frame.Content, true)

	case frameVoiceEnd:
		c.input.deliver("", false)

	default:
		h.send(ctx, c.peer, serverFrame{Type: eventError, Error: "unknown frame type", Code: "unknown_frame"})
	}
}

func (h *Handler) handleWSMessage(ctx context.Context, c *wsConn, content string) {
	if !h.limiter.Allow(c.key.VisitorID) {
		h.send(ctx, c.peer, serverFrame{Type: eventError, Error: "rate limit exceeded", Code: "rate_limited"})
		return
	}

	text := strings.TrimSpace(content)
	if text == "" {
		h.sendSubmitError(ctx, c.peer, scoping.ErrEmptyMessage)
		return
	}
	if err := precheck(c.session); err != nil {
		h.sendSubmitError(ctx, c.peer, err)
		return
	}

	h.logUserMessage(c.key, channelWS, text, "")
	h.send(ctx, c.peer, serverFrame{Type: eventAck, Text: text})

	// Submit runs off the read loop so reset and voice frames are still
	// handled during the thinking delay.
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		turn, err := c.session.Submit(ctx, text)
		if err != nil {
			h.logFailure(c.key, channelWS, err, "")
			h.sendSubmitError(ctx, c.peer, err)
			return
		}
		h.afterTurn(ctx, c.key, c.session, turn, channelWS, "")
		for _, frame := range h.turnFrames(c.key, c.session, turn) {
			if frame.Type == eventDone {
				frame.Type = eventState
			}
			h.send(ctx, c.peer, frame)
		}
	}()
}

func (h *Handler) sendSubmitError(ctx context.Context, p *Peer, err error) {
	_, code := submitErrorStatus(err)
	h.send(ctx, p, serverFrame{Type: eventError, Error: publicError(err), Code: code})
}

func (h *Handler) send(ctx context.Context, p *Peer, frame serverFrame) {
	if err := p.Send(ctx, frame); err != nil {
		slog.Debug("Failed to send chat frame", "type", frame.Type, "error", err, "visitor_id", p.key.VisitorID)
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("Chat websocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}
