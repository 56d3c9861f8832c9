// Package domain contains core domain types for the agency landing service.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks a visitor-authored message.
	RoleUser Role = "user"
	// RoleAssistant marks a scripted assistant reply.
	RoleAssistant Role = "assistant"
)

// Message is a single transcript entry. Messages are never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message stamped with a fresh ID.
func NewMessage(role Role, content string, at time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: at,
	}
}

// UserContents returns the content of every user message in order.
func UserContents(transcript []Message) []string {
	var out []string
	for _, m := range transcript {
		if m.Role == RoleUser {
			out = append(out, m.Content)
		}
	}
	return out
}
