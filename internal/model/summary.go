package model

import (
	"time"

	"github.com/google/uuid"
)

// FallbackReason tags summaries built from the deterministic template.
const FallbackReason = "Fallback summary"

// Summary is one immutable version of a conversation synopsis.
type Summary struct {
	ID             int64       `json:"id"`
	ConversationID string      `json:"conversation_id"`
	Version        int         `json:"version"`
	Content        string      `json:"content"`
	SubjectIDs     []uuid.UUID `json:"subject_ids"`
	Keywords       []string    `json:"keywords"`
	ChangeReason   string      `json:"change_reason"`
	Fallback       bool        `json:"fallback"`
	PredecessorID  int64       `json:"predecessor_id,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
}
