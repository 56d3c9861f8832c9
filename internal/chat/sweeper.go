package chat

import (
	"context"
	"log/slog"
	"time"
)

// visitorRetention matches the identity cookie lifetime; visitors idle longer
// than that can never return under the same ID.
const visitorRetention = 30 * 24 * time.Hour

// RunSweeper periodically evicts idle conversations until ctx is done.
// Conversations with a live websocket are kept.
func (h *Handler) RunSweeper(ctx context.Context, interval, ttl time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Info("Chat sweeper started", "interval", interval, "ttl", ttl)

	for {
		select {
		case <-ticker.C:
			h.sweep(ctx, ttl)
		case <-ctx.Done():
			slog.Info("Chat sweeper shutting down", "reason", ctx.Err())
			return nil
		}
	}
}

func (h *Handler) sweep(ctx context.Context, ttl time.Duration) {
	evicted := h.mgr.Sweep(ttl, h.peers.Has)
	for _, key := range evicted {
		h.log.Log(ConversationLogEvent{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			VisitorID: key.VisitorID,
			SessionID: key.SessionID,
			Channel:   "system",
			Direction: "outbound",
			EventType: "chat_expired",
		})
	}
	if len(evicted) > 0 {
		slog.Info("Chat sweeper evicted idle sessions", "count", len(evicted), "remaining", h.mgr.Len())
	}

	if h.leads == nil {
		return
	}
	deleted, err := h.leads.DeleteStaleVisitors(ctx, visitorRetention)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("Chat sweeper failed to prune visitors", "error", err)
		}
		return
	}
	if deleted > 0 {
		slog.Info("Chat sweeper pruned stale visitors", "count", deleted)
	}
}
