package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is a single conversational turn.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

var messageNamespace = uuid.MustParse("0b7e1d8c-3f52-4c1a-9a3e-5d2f7c9e4b10")

// EnsureID fills in a content-derived ID when the caller supplied none, so the
// same message submitted twice maps onto the same stored row.
func (m *Message) EnsureID() {
	if m.ID != "" {
		return
	}
	m.ID = uuid.NewSHA1(messageNamespace, []byte(m.idSource())).String()
}

// AssignIDs fills in missing IDs across one batch. Repeated turns with the
// same role, content and timestamp are told apart by their occurrence in
// msgs, so each is kept while resubmitting the batch still maps onto the
// same rows.
func AssignIDs(msgs []Message) {
	seen := make(map[string]int, len(msgs))
	for i := range msgs {
		m := &msgs[i]
		if m.ID != "" {
			continue
		}
		src := m.idSource()
		n := seen[src]
		seen[src]++
		if n > 0 {
			src = fmt.Sprintf("%s\x00%d", src, n)
		}
		m.ID = uuid.NewSHA1(messageNamespace, []byte(src)).String()
	}
}

func (m Message) idSource() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%s", m.ConversationID, m.Role, m.CreatedAt.UnixMilli(), m.Content)
}

// Validate rejects messages that cannot be analyzed.
func (m Message) Validate() error {
	if strings.TrimSpace(m.ConversationID) == "" {
		return fmt.Errorf("%w: message conversation id is empty", ErrValidation)
	}
	switch m.Role {
	case "user", "assistant", "system":
	default:
		return fmt.Errorf("%w: unknown message role %q", ErrValidation, m.Role)
	}
	return nil
}
