package domain

import (
	"time"
)

// Visitor is an anonymous per-device identity established by cookie.
type Visitor struct {
	VisitorID   string    `json:"visitor_id"`
	DisplayName string    `json:"display_name"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// IdleFor returns how long ago the visitor was last seen, relative to now.
// Returns 0 for a visitor seen in the future (clock skew).
func (v *Visitor) IdleFor(now time.Time) time.Duration {
	d := now.Sub(v.LastSeenAt)
	if d < 0 {
		return 0
	}
	return d
}
