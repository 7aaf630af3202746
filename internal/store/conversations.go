package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

// Conversation tracks how many messages a conversation holds and how many of
// them had been seen at its last analysis.
type Conversation struct {
	ID             string
	MessageCount   int
	AnalyzedCount  int
	LastAnalyzedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Unseen is the number of messages added since the last analysis.
func (c Conversation) Unseen() int {
	if n := c.MessageCount - c.AnalyzedCount; n > 0 {
		return n
	}
	return 0
}

const conversationColumns = `id, message_count, analyzed_count, last_analyzed_at, created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (*Conversation, error) {
	var (
		c                    Conversation
		analyzed             sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.MessageCount, &c.AnalyzedCount, &analyzed, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.LastAnalyzedAt = nullMS(analyzed)
	c.CreatedAt = fromMS(createdAt)
	c.UpdatedAt = fromMS(updatedAt)
	return &c, nil
}

// EnsureConversation creates the conversation row if it does not exist.
func (db *DB) EnsureConversation(ctx context.Context, id string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`, id, now, now)
	if err != nil {
		return fmt.Errorf("ensure conversation: %w", err)
	}
	return nil
}

// GetConversation returns a conversation by id, or nil if unknown.
func (db *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

// AddMessages stores messages, skipping ones already present (same
// conversation and message id), and refreshes the conversation's message
// count. It returns how many were new. Messages must carry an ID.
func (db *DB) AddMessages(ctx context.Context, conversationID string, msgs []model.Message) (int, error) {
	if err := db.EnsureConversation(ctx, conversationID); err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin add messages: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, m := range msgs {
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO messages (message_id, conversation_id, role, content, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (conversation_id, message_id) DO NOTHING
		`, m.ID, conversationID, m.Role, m.Content, created.UnixMilli())
		if err != nil {
			return 0, fmt.Errorf("insert message %s: %w", m.ID, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE conversations
		SET message_count = (SELECT COUNT(*) FROM messages WHERE conversation_id = ?), updated_at = ?
		WHERE id = ?
	`, conversationID, time.Now().UnixMilli(), conversationID); err != nil {
		return 0, fmt.Errorf("update message count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add messages: %w", err)
	}
	return added, nil
}

// Messages returns a conversation's messages in insertion order. A positive
// limit keeps only the most recent ones.
func (db *DB) Messages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	query := `
		SELECT message_id, conversation_id, role, content, created_at FROM (
			SELECT id, message_id, conversation_id, role, content, created_at
			FROM messages WHERE conversation_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var (
			m       model.Message
			created int64
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = fromMS(created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkAnalyzed records that analyzedCount messages have been analyzed.
func (db *DB) MarkAnalyzed(ctx context.Context, conversationID string, analyzedCount int) error {
	now := time.Now().UnixMilli()
	res, err := db.ExecContext(ctx, `
		UPDATE conversations SET analyzed_count = ?, last_analyzed_at = ?, updated_at = ?
		WHERE id = ?
	`, analyzedCount, now, now, conversationID)
	if err != nil {
		return fmt.Errorf("mark analyzed: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: conversation %s", model.ErrNotFound, conversationID)
	}
	return nil
}

// PendingConversations returns conversations with at least threshold unseen
// messages, most behind first.
func (db *DB) PendingConversations(ctx context.Context, threshold int) ([]Conversation, error) {
	if threshold < 1 {
		threshold = 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE message_count - analyzed_count >= ?
		ORDER BY message_count - analyzed_count DESC, id
	`, threshold)
	if err != nil {
		return nil, fmt.Errorf("pending conversations: %w", err)
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}
