package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/niranjanbala/agency-10x/internal/api"
	"github.com/niranjanbala/agency-10x/internal/domain"
	"github.com/niranjanbala/agency-10x/internal/identity"
	"github.com/niranjanbala/agency-10x/internal/scoping"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

const leadWriteTimeout = 5 * time.Second

// Conversation log channels.
const (
	channelHTTP = "chat_http"
	channelWS   = "chat_ws"
)

// LeadStore persists captured leads and prunes visitors that never became one.
type LeadStore interface {
	CreateLead(ctx context.Context, lead *domain.Lead) error
	DeleteStaleVisitors(ctx context.Context, ttl time.Duration) (int64, error)
}

// HandlerConfig configures a Handler. Zero values pick defaults.
type HandlerConfig struct {
	SchedulingURL      string
	MaxRequestBodySize int64
	RateLimitRequests  int
	RateLimitWindow    time.Duration
	AllowedOrigins     []string
	IsDev              bool
}

// Handler serves the chat API.
type Handler struct {
	mgr            *Manager
	peers          *Peers
	leads          LeadStore
	limiter        *RateLimiter
	log            ConversationLogger
	schedulingURL  string
	maxBodySize    int64
	allowedOrigins []string
	isDev          bool
}

type messageRequest struct {
	Message string `json:"message"`
}

// NewHandler creates a chat handler. leads may be nil, in which case
// assessments are not persisted.
func NewHandler(mgr *Manager, leads LeadStore, conversationLogger ConversationLogger, cfg HandlerConfig) *Handler {
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	if cfg.MaxRequestBodySize <= 0 {
		cfg.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		mgr:            mgr,
		peers:          NewPeers(),
		leads:          leads,
		limiter:        NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		log:            conversationLogger,
		schedulingURL:  cfg.SchedulingURL,
		maxBodySize:    cfg.MaxRequestBodySize,
		allowedOrigins: cfg.AllowedOrigins,
		isDev:          cfg.IsDev,
	}
}

// RegisterRoutes registers chat routes. Requests must carry identity.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/chat", func(r chi.Router) {
		r.Get("/", h.HandleState)
		r.Post("/messages", h.HandleMessage)
		r.Post("/reset", h.HandleReset)
		r.Get("/schedule", h.HandleSchedule)
	})
	r.Get("/ws/chat", h.ServeWS)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.peers.CloseAll("server shutting down")
	h.limiter.Close()
	if err := h.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

// HandleState handles GET /api/chat.
func (h *Handler) HandleState(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(w, r)
	if !ok {
		return
	}
	api.JSON(w, http.StatusOK, h.stateFor(key))
}

// HandleMessage handles POST /api/chat/messages and streams the reply as SSE.
//
//nolint:gocyclo // Validation and streaming branches are kept inline to preserve request flow.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(w, r)
	if !ok {
		return
	}

	// Rate-limit by visitor only so clients cannot bypass throttling by rotating tabs.
	if !h.limiter.Allow(key.VisitorID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text := strings.TrimSpace(req.Message)
	if text == "" {
		api.Error(w, http.StatusBadRequest, scoping.ErrEmptyMessage.Error())
		return
	}

	session := h.mgr.Get(key)
	if err := precheck(session); err != nil {
		status, code := submitErrorStatus(err)
		api.JSON(w, status, map[string]string{"error": err.Error(), "code": code})
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("Chat message",
		"visitor_id", key.VisitorID,
		"session_id", key.SessionID,
		"message_length", len(text),
	)
	h.logUserMessage(key, channelHTTP, text, reqID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSEJSON(w, eventAck, serverFrame{Text: text}); err != nil {
		slog.Warn("failed to write SSE ack event", "error", err)
		return
	}
	flusher.Flush()

	turn, err := session.Submit(r.Context(), text)
	if err != nil {
		h.logFailure(key, channelHTTP, err, reqID)
		_, code := submitErrorStatus(err)
		if writeErr := writeSSEJSON(w, eventError, serverFrame{Error: publicError(err), Code: code}); writeErr != nil {
			slog.Debug("failed to write SSE error event", "error", writeErr)
			return
		}
		flusher.Flush()
		return
	}

	h.afterTurn(r.Context(), key, session, turn, channelHTTP, reqID)

	for _, frame := range h.turnFrames(key, session, turn) {
		event := frame.Type
		frame.Type = ""
		if err := writeSSEJSON(w, event, frame); err != nil {
			slog.Warn("failed to write SSE event", "event", event, "error", err)
			return
		}
		flusher.Flush()
	}
}

// HandleReset handles POST /api/chat/reset.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(w, r)
	if !ok {
		return
	}
	h.reset(key, channelHTTP)

	if p := h.peers.Get(key); p != nil {
		h.send(context.Background(), p, serverFrame{Type: eventState, State: h.stateFor(key)})
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSchedule handles GET /api/chat/schedule: a redirect to the booking
// link, available only after a buildable assessment.
func (h *Handler) HandleSchedule(w http.ResponseWriter, r *http.Request) {
	key, ok := keyFromRequest(w, r)
	if !ok {
		return
	}

	session, ok := h.mgr.Lookup(key)
	if !ok || !session.SchedulingAllowed() || h.schedulingURL == "" {
		api.Error(w, http.StatusConflict, "scheduling is only available after a buildable assessment")
		return
	}

	h.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID: key.VisitorID,
		SessionID: key.SessionID,
		Channel:   channelHTTP,
		Direction: "inbound",
		EventType: "schedule_clicked",
	})
	http.Redirect(w, r, h.schedulingURL, http.StatusFound)
}

func keyFromRequest(w http.ResponseWriter, r *http.Request) (Key, bool) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return Key{}, false
	}
	return Key{VisitorID: visitorID, SessionID: identity.SessionIDFromContext(r.Context())}, true
}

// precheck rejects submissions that Submit would refuse, before a stream is opened.
func precheck(session *scoping.Session) error {
	snap := session.Snapshot()
	if snap.Processing {
		return scoping.ErrBusy
	}
	if snap.Assessment != nil {
		return scoping.ErrAssessed
	}
	return nil
}

func submitErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, scoping.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, scoping.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, scoping.ErrAssessed):
		return http.StatusConflict, "assessed"
	case errors.Is(err, scoping.ErrDiscarded):
		return http.StatusConflict, "discarded"
	default:
		return http.StatusInternalServerError, "generation_failed"
	}
}

func publicError(err error) string {
	for _, known := range []error{scoping.ErrEmptyMessage, scoping.ErrBusy, scoping.ErrAssessed, scoping.ErrDiscarded} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "failed to generate a reply, please try again"
}

func (h *Handler) state(key Key, session *scoping.Session) *stateResponse {
	resp := &stateResponse{
		Snapshot:  session.Snapshot(),
		SessionID: key.SessionID,
	}
	if resp.Assessment != nil && resp.Assessment.CanBuild {
		resp.SchedulingURL = h.schedulingURL
	}
	return resp
}

func (h *Handler) stateFor(key Key) *stateResponse {
	return h.state(key, h.mgr.Get(key))
}

// turnFrames renders a committed turn in delivery order.
func (h *Handler) turnFrames(key Key, session *scoping.Session, turn *scoping.Turn) []serverFrame {
	userMsg, assistantMsg := turn.User, turn.Assistant
	frames := []serverFrame{
		{Type: eventMessage, Message: &userMsg},
		{Type: eventMessage, Message: &assistantMsg},
	}
	if turn.Assessment != nil {
		frames = append(frames, serverFrame{Type: eventAssessment, Assessment: turn.Assessment})
		if turn.Assessment.CanBuild && h.schedulingURL != "" {
			frames = append(frames, serverFrame{Type: eventSchedule, SchedulingURL: h.schedulingURL})
		}
	}
	return append(frames, serverFrame{Type: eventDone, State: h.state(key, session)})
}

// afterTurn logs the reply and records a lead when the turn produced an assessment.
func (h *Handler) afterTurn(ctx context.Context, key Key, session *scoping.Session, turn *scoping.Turn, channel, reqID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID:  key.VisitorID,
		SessionID:  key.SessionID,
		Channel:    channel,
		Direction:  "outbound",
		EventType:  "chat_assistant_message",
		ContentRaw: turn.Assistant.Content,
		Meta: map[string]any{
			"state":      turn.State,
			"request_id": reqID,
		},
	})

	if turn.Assessment == nil {
		return
	}
	h.recordLead(ctx, key, session, *turn.Assessment)
}

func (h *Handler) recordLead(ctx context.Context, key Key, session *scoping.Session, a domain.Assessment) {
	lead := &domain.Lead{
		ID:         uuid.NewString(),
		VisitorID:  key.VisitorID,
		SessionID:  key.SessionID,
		Complexity: a.Complexity,
		Timeline:   a.Timeline,
		CanBuild:   a.CanBuild,
		Reasoning:  a.Reasoning,
		Answers:    domain.UserContents(session.Snapshot().Transcript),
		CreatedAt:  time.Now(),
	}

	h.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID: key.VisitorID,
		SessionID: key.SessionID,
		Channel:   "system",
		Direction: "outbound",
		EventType: "assessment",
		Meta: map[string]any{
			"lead_id":    lead.ID,
			"complexity": a.Complexity,
			"timeline":   a.Timeline,
			"can_build":  a.CanBuild,
		},
	})

	if h.leads == nil {
		return
	}

	// The client may already be gone; the lead is still worth keeping.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), leadWriteTimeout)
	defer cancel()
	if err := h.leads.CreateLead(ctx, lead); err != nil {
		slog.Error("Failed to record lead",
			"visitor_id", key.VisitorID,
			"session_id", key.SessionID,
			"error", err,
		)
		return
	}
	slog.Info("Lead recorded",
		"lead_id", lead.ID,
		"visitor_id", key.VisitorID,
		"complexity", a.Complexity,
		"can_build", a.CanBuild,
	)
}

func (h *Handler) reset(key Key, channel string) {
	h.mgr.Reset(key)
	h.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID: key.VisitorID,
		SessionID: key.SessionID,
		Channel:   channel,
		Direction: "inbound",
		EventType: "chat_reset",
	})
	slog.Info("Chat reset", "visitor_id", key.VisitorID, "session_id", key.SessionID)
}

func (h *Handler) logUserMessage(key Key, channel, text, reqID string) {
	h.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID:  key.VisitorID,
		SessionID:  key.SessionID,
		Channel:    channel,
		Direction:  "inbound",
		EventType:  "chat_user_message",
		ContentRaw: text,
		Meta: map[string]any{
			"request_id": reqID,
		},
	})
}

func (h *Handler) logFailure(key Key, channel string, err error, reqID string) {
	level := slog.LevelWarn
	if errors.Is(err, scoping.ErrDiscarded) || errors.Is(err, context.Canceled) {
		level = slog.LevelInfo
	}
	slog.Log(context.Background(), level, "Chat reply not delivered",
		"visitor_id", key.VisitorID,
		"session_id", key.SessionID,
		"error", err,
	)
	h.log.Log(ConversationLogEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		VisitorID: key.VisitorID,
		SessionID: key.SessionID,
		Channel:   channel,
		Direction: "outbound",
		EventType: "chat_reply_failed",
		Meta: map[string]any{
			"error":      err.Error(),
			"request_id": reqID,
		},
	})
}
