package subject

import (
	"fmt"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

// Merge combines two subjects of the same conversation into one holding the
// union of their keywords, with the identity that union derives. Each input
// that is not itself the union comes back archived, superseded by the result.
func Merge(a, b model.Subject) (merged model.Subject, archived []model.Subject, err error) {
	if a.ConversationID != b.ConversationID {
		return model.Subject{}, nil, fmt.Errorf("%w: cannot merge subjects of conversations %s and %s",
			model.ErrValidation, a.ConversationID, b.ConversationID)
	}
	if a.ID == b.ID {
		return model.Subject{}, nil, fmt.Errorf("%w: cannot merge subject %s with itself", model.ErrValidation, a.ID)
	}

	key := model.SubjectKey{ConversationID: a.ConversationID, Keywords: a.Keywords.Union(b.Keywords)}
	merged = model.NewSubject(key, earliest(a.FirstSeen, b.FirstSeen))
	merged.LastSeen = latest(a.LastSeen, b.LastSeen)
	// supporting messages may overlap, so the larger count is the safe bound
	merged.MessageCount = max(a.MessageCount, b.MessageCount)
	merged.Confidence = max(a.Confidence, b.Confidence)
	merged.Description = a.Description
	if merged.Description == "" {
		merged.Description = b.Description
	}

	for _, s := range []model.Subject{a, b} {
		if s.ID == merged.ID {
			// the input already was the union; it survives as the result
			merged.Description = firstNonEmpty(s.Description, merged.Description)
			continue
		}
		s.Lifecycle = model.Archived(merged.ID)
		archived = append(archived, s)
	}
	return merged, archived, nil
}

// Consolidate archives every singleton subject subsumed by a pair subject of
// the same conversation: the pair contains its keyword and is supported by
// at least as many messages. The busiest such pair supersedes it. Archived
// inputs pass through untouched.
func Consolidate(subjects []model.Subject) (kept, archived []model.Subject) {
	var pairs []model.Subject
	for _, s := range subjects {
		if s.Keywords.Len() == 2 && !s.Lifecycle.IsArchived() {
			pairs = append(pairs, s)
		}
	}
	SortByActivity(pairs)

	for _, s := range subjects {
		if s.Keywords.Len() != 1 || s.Lifecycle.IsArchived() {
			kept = append(kept, s)
			continue
		}
		var successor *model.Subject
		for i := range pairs {
			p := &pairs[i]
			if p.ConversationID == s.ConversationID && s.Keywords.SubsetOf(p.Keywords) && p.MessageCount >= s.MessageCount {
				successor = p
				break
			}
		}
		if successor == nil {
			kept = append(kept, s)
			continue
		}
		s.Lifecycle = model.Archived(successor.ID)
		archived = append(archived, s)
	}
	return kept, archived
}

func earliest(a, b time.Time) time.Time {
	if a.IsZero() || (!b.IsZero() && b.Before(a)) {
		return b
	}
	return a
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
