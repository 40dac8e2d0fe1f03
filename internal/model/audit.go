package model

import (
	"encoding/json"
	"time"
)

// AuditEntry is one persisted domain event.
type AuditEntry struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ActorID    string          `json:"actor_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

type AuditQuery struct {
	Type    string
	ActorID string
	From    *time.Time
	To      *time.Time
	Page    int
	Limit   int
}
