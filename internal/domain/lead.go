package domain

import (
	"time"
)

// Lead is a captured prospect: the visitor's answers plus the assessment they received.
type Lead struct {
	ID         string     `json:"id"`
	VisitorID  string     `json:"visitor_id"`
	SessionID  string     `json:"session_id"`
	Complexity Complexity `json:"complexity"`
	Timeline   string     `json:"timeline"`
	CanBuild   bool       `json:"can_build"`
	Reasoning  string     `json:"reasoning"`
	Answers    []string   `json:"answers"`
	CreatedAt  time.Time  `json:"created_at"`
}
