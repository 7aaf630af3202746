package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProposalConfig tunes proposal scoring for one owning user. Weights are not
// required to sum to 1.
type ProposalConfig struct {
	OwnerID       string        `json:"owner_id"`
	Version       int           `json:"version"`
	MatchWeight   float64       `json:"match_weight"`
	RecencyWeight float64       `json:"recency_weight"`
	RecencyWindow time.Duration `json:"recency_window"`
	MinSimilarity float64       `json:"min_similarity"`
	MaxProposals  int           `json:"max_proposals"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// MaxProposalsLimit bounds MaxProposals.
const MaxProposalsLimit = 100

// DefaultProposalConfig returns the configuration created on first use.
func DefaultProposalConfig(owner string) ProposalConfig {
	return ProposalConfig{
		OwnerID:       owner,
		MatchWeight:   0.7,
		RecencyWeight: 0.3,
		RecencyWindow: 30 * 24 * time.Hour,
		MinSimilarity: 0.2,
		MaxProposals:  10,
	}
}

// Validate rejects out-of-range values.
func (c ProposalConfig) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("%w: proposal config owner is empty", ErrValidation)
	}
	if c.MatchWeight < 0 || c.MatchWeight > 1 {
		return fmt.Errorf("%w: match weight %v outside [0,1]", ErrValidation, c.MatchWeight)
	}
	if c.RecencyWeight < 0 || c.RecencyWeight > 1 {
		return fmt.Errorf("%w: recency weight %v outside [0,1]", ErrValidation, c.RecencyWeight)
	}
	if c.RecencyWindow <= 0 {
		return fmt.Errorf("%w: recency window must be positive", ErrValidation)
	}
	if c.MinSimilarity < 0 || c.MinSimilarity > 1 {
		return fmt.Errorf("%w: min similarity %v outside [0,1]", ErrValidation, c.MinSimilarity)
	}
	if c.MaxProposals < 1 || c.MaxProposals > MaxProposalsLimit {
		return fmt.Errorf("%w: max proposals %d outside [1,%d]", ErrValidation, c.MaxProposals, MaxProposalsLimit)
	}
	return nil
}

// Proposal links a current subject to a historical one from another
// conversation. It is computed on demand and never stored.
type Proposal struct {
	PastSubjectID        uuid.UUID `json:"past_subject_id"`
	CurrentSubjectID     uuid.UUID `json:"current_subject_id"`
	PastDescription      string    `json:"past_description,omitempty"`
	MatchedKeywords      []string  `json:"matched_keywords"`
	Similarity           float64   `json:"similarity"`
	RecencyBoost         float64   `json:"recency_boost"`
	RelevanceScore       float64   `json:"relevance_score"`
	SourceConversationID string    `json:"source_conversation_id"`
	CreatedAt            time.Time `json:"created_at"`
}
