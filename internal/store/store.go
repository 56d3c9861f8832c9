// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/niranjanbala/agency-10x/internal/domain"
)

// Repository persists anonymous visitors and the leads they produce.
// Chat transcripts are never stored.
type Repository interface {
	// GetVisitor retrieves a visitor by ID. Returns nil, nil when absent.
	GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error)

	// UpsertVisitor creates or updates a visitor record.
	UpsertVisitor(ctx context.Context, visitor *domain.Visitor) error

	// TouchVisitor updates last_seen_at for a visitor.
	TouchVisitor(ctx context.Context, visitorID string, lastSeen time.Time) error

	// DeleteStaleVisitors removes visitors idle longer than ttl that never became leads.
	DeleteStaleVisitors(ctx context.Context, ttl time.Duration) (int64, error)

	// CreateLead records a captured lead.
	CreateLead(ctx context.Context, lead *domain.Lead) error

	// GetLead retrieves a lead by ID. Returns nil, nil when absent.
	GetLead(ctx context.Context, id string) (*domain.Lead, error)

	// ListLeads returns the newest leads first, at most limit of them.
	ListLeads(ctx context.Context, limit int) ([]*domain.Lead, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
