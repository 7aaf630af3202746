// Package proposal links a conversation's current subjects to historical
// subjects of other conversations.
package proposal

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lazypower/resonance/internal/model"
)

// Jaccard returns |a ∩ b| / |a ∪ b| and the intersection. Two empty sets
// score 0.
func Jaccard(a, b model.KeywordSet) (float64, []string) {
	inter := a.Intersect(b)
	union := a.Len() + b.Len() - inter.Len()
	if union == 0 {
		return 0, nil
	}
	return float64(inter.Len()) / float64(union), inter.Terms()
}

// RecencyBoost decays linearly from 1 at age zero to 0 at window.
func RecencyBoost(age, window time.Duration) float64 {
	if window <= 0 {
		return 0
	}
	if age < 0 {
		age = 0
	}
	return max(0, 1-float64(age)/float64(window))
}

// Rank scores every (current, past) pair and returns the candidates whose
// similarity reaches cfg.MinSimilarity, best first. Past subjects from a
// current subject's own conversation and archived subjects are skipped. Each
// past subject appears at most once, paired with the current subject it
// scores best against. The result is not truncated.
func Rank(current, past []model.Subject, cfg model.ProposalConfig, now time.Time) []model.Proposal {
	best := make(map[uuid.UUID]int)
	var out []model.Proposal
	for _, p := range past {
		if p.Lifecycle.IsArchived() {
			continue
		}
		boost := RecencyBoost(now.Sub(p.LastSeen), cfg.RecencyWindow)
		for _, c := range current {
			if c.ConversationID == p.ConversationID || c.Lifecycle.IsArchived() {
				continue
			}
			sim, matched := Jaccard(c.Keywords, p.Keywords)
			// recency alone never rescues an unrelated pair
			if sim == 0 || sim < cfg.MinSimilarity {
				continue
			}
			prop := model.Proposal{
				PastSubjectID:        p.ID,
				CurrentSubjectID:     c.ID,
				PastDescription:      p.Description,
				MatchedKeywords:      matched,
				Similarity:           sim,
				RecencyBoost:         boost,
				RelevanceScore:       sim*cfg.MatchWeight + boost*cfg.RecencyWeight,
				SourceConversationID: p.ConversationID,
				CreatedAt:            now,
			}
			if i, ok := best[p.ID]; ok {
				if better(prop, out[i]) {
					out[i] = prop
				}
				continue
			}
			best[p.ID] = len(out)
			out = append(out, prop)
		}
	}
	sort.Slice(out, func(i, j int) bool { return better(out[i], out[j]) })
	return out
}

// better orders proposals by relevance, then similarity, then identity so the
// order is total.
func better(a, b model.Proposal) bool {
	if a.RelevanceScore != b.RelevanceScore {
		return a.RelevanceScore > b.RelevanceScore
	}
	if a.Similarity != b.Similarity {
		return a.Similarity > b.Similarity
	}
	if a.PastSubjectID != b.PastSubjectID {
		return a.PastSubjectID.String() < b.PastSubjectID.String()
	}
	return a.CurrentSubjectID.String() < b.CurrentSubjectID.String()
}
