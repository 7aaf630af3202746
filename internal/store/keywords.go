package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/lazypower/resonance/internal/model"
)

// KeywordStat is one keyword's statistics within one conversation.
type KeywordStat struct {
	Term           string
	ConversationID string
	Frequency      int
	Score          float64
	FirstSeen      time.Time
	LastSeen       time.Time
}

// UpsertKeywords records keyword statistics for a conversation. Frequency and
// score are replaced, first_seen keeps its earliest value and last_seen its
// latest. Rows are never deleted.
func (db *DB) UpsertKeywords(ctx context.Context, conversationID string, stats []KeywordStat) error {
	if len(stats) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert keywords: %w", err)
	}
	defer tx.Rollback()

	for _, k := range stats {
		first, last := ms(k.FirstSeen), ms(k.LastSeen)
		if first == 0 {
			first = time.Now().UnixMilli()
		}
		if last < first {
			last = first
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO keywords (term, conversation_id, frequency, score, first_seen, last_seen)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (term, conversation_id) DO UPDATE SET
				frequency  = excluded.frequency,
				score      = excluded.score,
				first_seen = MIN(keywords.first_seen, excluded.first_seen),
				last_seen  = MAX(keywords.last_seen, excluded.last_seen)
		`, k.Term, conversationID, k.Frequency, k.Score, first, last); err != nil {
			return fmt.Errorf("upsert keyword %q: %w", k.Term, err)
		}
	}
	return tx.Commit()
}

// ConversationKeywords returns a conversation's keywords by score, then
// frequency. A positive limit caps the result.
func (db *DB) ConversationKeywords(ctx context.Context, conversationID string, limit int) ([]KeywordStat, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT term, conversation_id, frequency, score, first_seen, last_seen
		FROM keywords WHERE conversation_id = ?
		ORDER BY score DESC, frequency DESC, term
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("conversation keywords: %w", err)
	}
	defer rows.Close()

	var out []KeywordStat
	for rows.Next() {
		var (
			k           KeywordStat
			first, last int64
		)
		if err := rows.Scan(&k.Term, &k.ConversationID, &k.Frequency, &k.Score, &first, &last); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		k.FirstSeen, k.LastSeen = fromMS(first), fromMS(last)
		out = append(out, k)
	}
	return out, rows.Err()
}

// KeywordExists reports whether term was ever observed.
func (db *DB) KeywordExists(ctx context.Context, term string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM keywords WHERE term = ?`, term).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("keyword exists: %w", err)
	}
	return n > 0, nil
}

// ConversationsWithKeyword returns the ids of conversations other than
// exclude that recorded term, most recently seen first.
func (db *DB) ConversationsWithKeyword(ctx context.Context, term, exclude string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT conversation_id FROM keywords
		WHERE term = ? AND conversation_id <> ?
		ORDER BY last_seen DESC, conversation_id
		LIMIT ?
	`, term, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("conversations with keyword: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Keyword sort orders accepted by AggregatedKeywords.
const (
	SortFrequency = "frequency"
	SortScore     = "score"
	SortLastSeen  = "last_seen"
	SortFirstSeen = "first_seen"
	SortTerm      = "term"
)

var keywordOrder = map[string]string{
	SortFrequency: "frequency DESC",
	SortScore:     "score DESC",
	SortLastSeen:  "last_seen DESC",
	SortFirstSeen: "first_seen ASC",
	SortTerm:      "term ASC",
}

// ValidKeywordSort reports whether sortBy names a supported order.
func ValidKeywordSort(sortBy string) bool {
	_, ok := keywordOrder[sortBy]
	return ok
}

// SourceConversation is a conversation a keyword was observed in.
type SourceConversation struct {
	ConversationID string `json:"conversation_id"`
	MessageCount   int    `json:"message_count"`
}

// AggregatedKeyword is a keyword folded across every conversation it appears
// in.
type AggregatedKeyword struct {
	model.Keyword
	ConversationCount int                  `json:"conversation_count"`
	TopConversations  []SourceConversation `json:"top_conversations"`
	HasRestrictions   bool                 `json:"has_restrictions"`
}

// topSources is how many source conversations each aggregated keyword lists.
const topSources = 3

// latestDeny matches terms whose current access state, for any principal, is deny.
const latestDeny = `EXISTS (
	SELECT 1 FROM access_states a
	WHERE a.keyword = k.term AND a.state = 'deny'
	AND a.version = (SELECT MAX(b.version) FROM access_states b
		WHERE b.keyword = a.keyword AND b.principal_id = a.principal_id)
)`

// AggregatedKeywords returns one page of keywords aggregated across
// conversations: summed frequency, frequency-weighted average score, earliest
// first_seen, latest last_seen and the top source conversations by message
// count. It also returns the total number of distinct keywords.
func (db *DB) AggregatedKeywords(ctx context.Context, sortBy string, limit, offset int) ([]AggregatedKeyword, int, error) {
	order, ok := keywordOrder[sortBy]
	if !ok {
		return nil, 0, fmt.Errorf("%w: unknown keyword sort %q", model.ErrValidation, sortBy)
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT term) FROM keywords`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count keywords: %w", err)
	}

	query, args, err := squirrel.Select(
		"k.term",
		"SUM(k.frequency) AS frequency",
		"CASE WHEN SUM(k.frequency) > 0 THEN SUM(k.score * k.frequency) / SUM(k.frequency) ELSE AVG(k.score) END AS score",
		"MIN(k.first_seen) AS first_seen",
		"MAX(k.last_seen) AS last_seen",
		"COUNT(*) AS conversation_count",
		latestDeny+" AS restricted",
	).
		From("keywords k").
		GroupBy("k.term").
		OrderBy(order, "term ASC").
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build keyword query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate keywords: %w", err)
	}
	var out []AggregatedKeyword
	for rows.Next() {
		var (
			k           AggregatedKeyword
			first, last int64
		)
		if err := rows.Scan(&k.Term, &k.Frequency, &k.Score, &first, &last, &k.ConversationCount, &k.HasRestrictions); err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("scan aggregated keyword: %w", err)
		}
		k.FirstSeen, k.LastSeen = fromMS(first), fromMS(last)
		out = append(out, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(out) == 0 {
		return out, total, nil
	}

	terms := make([]string, len(out))
	for i, k := range out {
		terms[i] = k.Term
	}
	sources, err := db.sourceConversations(ctx, terms)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		src := sources[out[i].Term]
		out[i].TopConversations = src
		for _, s := range src {
			out[i].Conversations = append(out[i].Conversations, s.ConversationID)
		}
	}
	return out, total, nil
}

// sourceConversations maps each term to its top conversations by message count.
func (db *DB) sourceConversations(ctx context.Context, terms []string) (map[string][]SourceConversation, error) {
	query, args, err := squirrel.Select("k.term", "c.id", "c.message_count").
		From("keywords k").
		Join("conversations c ON c.id = k.conversation_id").
		Where(squirrel.Eq{"k.term": terms}).
		OrderBy("k.term", "c.message_count DESC", "c.id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build source query: %w", err)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("source conversations: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]SourceConversation, len(terms))
	for rows.Next() {
		var (
			term string
			s    SourceConversation
		)
		if err := rows.Scan(&term, &s.ConversationID, &s.MessageCount); err != nil {
			return nil, fmt.Errorf("scan source conversation: %w", err)
		}
		if len(out[term]) < topSources {
			out[term] = append(out[term], s)
		}
	}
	return out, rows.Err()
}
