package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/resonance/internal/model"
)

const summaryColumns = `id, conversation_id, version, content, subject_ids, keywords, change_reason,
	fallback, predecessor_id, created_at`

func scanSummary(row interface{ Scan(...any) error }) (*model.Summary, error) {
	var (
		s                  model.Summary
		subjects, keywords string
		predecessor        sql.NullInt64
		created            int64
	)
	if err := row.Scan(&s.ID, &s.ConversationID, &s.Version, &s.Content, &subjects, &keywords,
		&s.ChangeReason, &s.Fallback, &predecessor, &created); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(subjects), &s.SubjectIDs); err != nil {
		return nil, fmt.Errorf("summary %d subject ids: %w", s.ID, err)
	}
	if err := json.Unmarshal([]byte(keywords), &s.Keywords); err != nil {
		return nil, fmt.Errorf("summary %d keywords: %w", s.ID, err)
	}
	s.PredecessorID = predecessor.Int64
	s.CreatedAt = fromMS(created)
	return &s, nil
}

// InsertSummary stores a new summary version. Version and PredecessorID are
// assigned from the conversation's latest summary; the stored row is returned.
func (db *DB) InsertSummary(ctx context.Context, s model.Summary) (*model.Summary, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin insert summary: %w", err)
	}
	defer tx.Rollback()

	var (
		prevID      sql.NullInt64
		prevVersion int
	)
	err = tx.QueryRowContext(ctx, `
		SELECT id, version FROM summaries WHERE conversation_id = ? ORDER BY version DESC LIMIT 1
	`, s.ConversationID).Scan(&prevID, &prevVersion)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	s.Version = prevVersion + 1
	s.PredecessorID = prevID.Int64
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if s.SubjectIDs == nil {
		s.SubjectIDs = []uuid.UUID{}
	}
	if s.Keywords == nil {
		s.Keywords = []string{}
	}

	subjects, err := json.Marshal(s.SubjectIDs)
	if err != nil {
		return nil, fmt.Errorf("marshal summary subjects: %w", err)
	}
	keywords, err := json.Marshal(s.Keywords)
	if err != nil {
		return nil, fmt.Errorf("marshal summary keywords: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO summaries (conversation_id, version, content, subject_ids, keywords, change_reason,
			fallback, predecessor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ConversationID, s.Version, s.Content, string(subjects), string(keywords), s.ChangeReason,
		s.Fallback, prevID, s.CreatedAt.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert summary: %w", err)
	}
	s.ID, _ = res.LastInsertId()
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit summary: %w", err)
	}
	s.CreatedAt = fromMS(s.CreatedAt.UnixMilli())
	return &s, nil
}

// LatestSummary returns the newest summary of a conversation, or nil.
func (db *DB) LatestSummary(ctx context.Context, conversationID string) (*model.Summary, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+summaryColumns+` FROM summaries WHERE conversation_id = ? ORDER BY version DESC LIMIT 1
	`, conversationID)
	s, err := scanSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest summary: %w", err)
	}
	return s, nil
}

// SummaryHistory returns every summary version of a conversation, oldest first.
func (db *DB) SummaryHistory(ctx context.Context, conversationID string) ([]model.Summary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+summaryColumns+` FROM summaries WHERE conversation_id = ? ORDER BY version
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("summary history: %w", err)
	}
	defer rows.Close()

	var out []model.Summary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
