package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/lazypower/resonance/internal/model"
)

const subjectColumns = `id, conversation_id, keywords, description, message_count, confidence,
	first_seen, last_seen, state, superseded_by`

func scanSubject(row interface{ Scan(...any) error }) (*model.Subject, error) {
	var (
		s                 model.Subject
		id, keywords      string
		state             string
		superseded        sql.NullString
		firstSeen, lastSN int64
	)
	if err := row.Scan(&id, &s.ConversationID, &keywords, &s.Description, &s.MessageCount, &s.Confidence,
		&firstSeen, &lastSN, &state, &superseded); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("subject id %q: %w", id, err)
	}
	s.ID = parsed
	if err := json.Unmarshal([]byte(keywords), &s.Keywords); err != nil {
		return nil, fmt.Errorf("subject %s keywords: %w", id, err)
	}
	s.Lifecycle, err = model.ParseLifecycle(state, superseded.String)
	if err != nil {
		return nil, fmt.Errorf("subject %s: %w", id, err)
	}
	s.FirstSeen, s.LastSeen = fromMS(firstSeen), fromMS(lastSN)
	return &s, nil
}

func collectSubjects(rows *sql.Rows) ([]model.Subject, error) {
	defer rows.Close()
	var out []model.Subject
	for rows.Next() {
		s, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// UpsertSubject stores a subject. An existing row keeps its lifecycle (an
// archived subject stays archived) and its earliest first_seen; message
// count, confidence, last_seen and a non-empty description are refreshed.
// It reports whether the row was newly created.
func (db *DB) UpsertSubject(ctx context.Context, s model.Subject) (bool, error) {
	keywords, err := json.Marshal(s.Keywords)
	if err != nil {
		return false, fmt.Errorf("marshal subject keywords: %w", err)
	}
	var superseded sql.NullString
	if id, ok := s.Lifecycle.SupersededBy(); ok {
		superseded = sql.NullString{String: id.String(), Valid: true}
	}

	var existed int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subjects WHERE id = ?`, s.ID.String()).Scan(&existed); err != nil {
		return false, fmt.Errorf("check subject: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO subjects (id, conversation_id, keywords, description, message_count, confidence,
			first_seen, last_seen, state, superseded_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description   = CASE WHEN excluded.description <> '' THEN excluded.description ELSE subjects.description END,
			message_count = excluded.message_count,
			confidence    = excluded.confidence,
			first_seen    = MIN(subjects.first_seen, excluded.first_seen),
			last_seen     = MAX(subjects.last_seen, excluded.last_seen)
	`, s.ID.String(), s.ConversationID, string(keywords), s.Description, s.MessageCount, s.Confidence,
		ms(s.FirstSeen), ms(s.LastSeen), string(s.Lifecycle.State()), superseded)
	if err != nil {
		return false, fmt.Errorf("upsert subject: %w", err)
	}
	return existed == 0, nil
}

// ArchiveSubject marks a subject as superseded by successor. The row is kept.
// origin records whether a later analysis may revive it.
func (db *DB) ArchiveSubject(ctx context.Context, id, successor uuid.UUID, origin model.ArchiveOrigin) error {
	res, err := db.ExecContext(ctx, `
		UPDATE subjects SET state = 'archived', superseded_by = ?, archive_origin = ? WHERE id = ?
	`, successor.String(), string(origin), id.String())
	if err != nil {
		return fmt.Errorf("archive subject: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: subject %s", model.ErrNotFound, id)
	}
	return nil
}

// ReviveSubject reactivates a subject that consolidation archived. Subjects
// archived by an explicit merge stay archived. It reports whether the row changed.
func (db *DB) ReviveSubject(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE subjects SET state = 'active', superseded_by = NULL, archive_origin = NULL
		WHERE id = ? AND state = 'archived' AND archive_origin = ?
	`, id.String(), string(model.ArchiveConsolidated))
	if err != nil {
		return false, fmt.Errorf("revive subject: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows > 0, nil
}

// GetSubject returns a subject by id, or nil if unknown.
func (db *DB) GetSubject(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	row := db.QueryRowContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id.String())
	s, err := scanSubject(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return s, nil
}

// GetSubjects returns the subjects with the given ids, in id order. Unknown
// ids are skipped.
func (db *DB) GetSubjects(ctx context.Context, ids []uuid.UUID) ([]model.Subject, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	rows, err := db.QueryContext(ctx, `SELECT `+subjectColumns+` FROM subjects WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get subjects: %w", err)
	}
	return collectSubjects(rows)
}

// ConversationSubjects returns a conversation's subjects, busiest first.
// Archived subjects are included only when withArchived is set.
func (db *DB) ConversationSubjects(ctx context.Context, conversationID string, withArchived bool) ([]model.Subject, error) {
	query := `SELECT ` + subjectColumns + ` FROM subjects WHERE conversation_id = ?`
	if !withArchived {
		query += ` AND state = 'active'`
	}
	query += ` ORDER BY message_count DESC, keywords`
	rows, err := db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation subjects: %w", err)
	}
	return collectSubjects(rows)
}

// HistoricalSubjects returns active subjects of every conversation except
// exclude, newest first.
func (db *DB) HistoricalSubjects(ctx context.Context, exclude string) ([]model.Subject, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+subjectColumns+` FROM subjects
		WHERE state = 'active' AND conversation_id <> ?
		ORDER BY first_seen DESC, id
	`, exclude)
	if err != nil {
		return nil, fmt.Errorf("historical subjects: %w", err)
	}
	return collectSubjects(rows)
}

// SubjectsWithKeyword returns active subjects outside exclude whose keyword
// set contains term.
func (db *DB) SubjectsWithKeyword(ctx context.Context, term, exclude string) ([]model.Subject, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT `+subjectColumns+` FROM subjects s
		WHERE s.state = 'active' AND s.conversation_id <> ?
		AND EXISTS (SELECT 1 FROM json_each(s.keywords) WHERE json_each.value = ?)
		ORDER BY s.message_count DESC, s.id
	`, exclude, term)
	if err != nil {
		return nil, fmt.Errorf("subjects with keyword: %w", err)
	}
	return collectSubjects(rows)
}
