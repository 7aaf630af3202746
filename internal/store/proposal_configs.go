package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

// LatestProposalConfig returns the owner's current config, or nil when none
// was ever stored.
func (db *DB) LatestProposalConfig(ctx context.Context, owner string) (*model.ProposalConfig, error) {
	var (
		c                 model.ProposalConfig
		windowMS, updated int64
	)
	err := db.QueryRowContext(ctx, `
		SELECT owner_id, version, match_weight, recency_weight, recency_window_ms, min_similarity,
			max_proposals, updated_at
		FROM proposal_configs WHERE owner_id = ? ORDER BY version DESC LIMIT 1
	`, owner).Scan(&c.OwnerID, &c.Version, &c.MatchWeight, &c.RecencyWeight, &windowMS,
		&c.MinSimilarity, &c.MaxProposals, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest proposal config: %w", err)
	}
	c.RecencyWindow = time.Duration(windowMS) * time.Millisecond
	c.UpdatedAt = fromMS(updated)
	return &c, nil
}

// AppendProposalConfig stores c as the owner's next version and returns it.
func (db *DB) AppendProposalConfig(ctx context.Context, c model.ProposalConfig) (*model.ProposalConfig, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin proposal config: %w", err)
	}
	defer tx.Rollback()

	var latest int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0) FROM proposal_configs WHERE owner_id = ?
	`, c.OwnerID).Scan(&latest); err != nil {
		return nil, fmt.Errorf("latest proposal config version: %w", err)
	}
	c.Version = latest + 1
	c.UpdatedAt = fromMS(time.Now().UnixMilli())

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO proposal_configs (owner_id, version, match_weight, recency_weight, recency_window_ms,
			min_similarity, max_proposals, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, c.OwnerID, c.Version, c.MatchWeight, c.RecencyWeight, c.RecencyWindow.Milliseconds(),
		c.MinSimilarity, c.MaxProposals, c.UpdatedAt.UnixMilli()); err != nil {
		return nil, fmt.Errorf("insert proposal config: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit proposal config: %w", err)
	}
	return &c, nil
}
