package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/keyword"
	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/store"
	"github.com/lazypower/resonance/internal/subject"
)

// ReasonNewSubjects is the change reason of a summary revised for new subjects.
const ReasonNewSubjects = "New subjects identified"

// AnalysisResult is the answer of AnalyzeConversation.
type AnalysisResult struct {
	ConversationID string              `json:"conversation_id"`
	Analyzed       bool                `json:"analyzed"`
	NewMessages    int                 `json:"new_messages"`
	Subjects       []model.Subject     `json:"subjects"`
	NewSubjects    int                 `json:"new_subjects"`
	Archived       int                 `json:"archived"`
	Revived        int                 `json:"revived"`
	Keywords       []keyword.Candidate `json:"keywords"`
	SummaryVersion int                 `json:"summary_version"`
}

// AnalyzeConversation stores msgs, then re-analyzes the conversation when
// its unseen messages reach the threshold or force is set. Subjects, keywords
// and a new summary version are persisted. Analysis of one conversation is
// serialized.
func (e *Engine) AnalyzeConversation(ctx context.Context, conversationID string, msgs []model.Message, force bool) (*AnalysisResult, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", model.ErrValidation)
	}
	for i := range msgs {
		m := &msgs[i]
		if m.ConversationID == "" {
			m.ConversationID = conversationID
		}
		if m.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: message %d belongs to conversation %q", model.ErrValidation, i, m.ConversationID)
		}
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	model.AssignIDs(msgs)

	unlock := e.locks.Lock(conversationID)
	defer unlock()

	added, err := e.DB.AddMessages(ctx, conversationID, msgs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	conv, err := e.DB.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if conv == nil {
		return nil, fmt.Errorf("%w: conversation %s", model.ErrNotFound, conversationID)
	}

	result := &AnalysisResult{ConversationID: conversationID, NewMessages: added}
	if !e.policy.ShouldAnalyze(conv.Unseen(), force) {
		return e.current(ctx, result)
	}

	all, err := e.DB.Messages(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if force {
		texts := make([]string, len(all))
		for i, m := range all {
			texts[i] = m.Content
		}
		if n := e.extractor.Forget(texts...); n > 0 {
			e.log.Debug("forced re-analysis purged extraction cache", zap.String("conversation", conversationID), zap.Int("entries", n))
		}
	}

	identified, err := e.identifier.Identify(ctx, conversationID, all)
	if err != nil {
		return nil, err
	}
	kept, archived := subject.Consolidate(identified.Subjects)

	var fresh []model.Subject
	revived := 0
	for _, s := range kept {
		created, err := e.DB.UpsertSubject(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		if created {
			fresh = append(fresh, s)
			continue
		}
		// a singleton archived by an earlier consolidation that now stands on its own
		ok, err := e.DB.ReviveSubject(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		if ok {
			revived++
		}
	}
	for _, s := range archived {
		if _, err := e.DB.UpsertSubject(ctx, s); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		successor, _ := s.Lifecycle.SupersededBy()
		if err := e.DB.ArchiveSubject(ctx, s.ID, successor, model.ArchiveConsolidated); err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
	}

	keywords, err := e.conversationKeywords(ctx, conv, all, identified.Keywords, force)
	if err != nil {
		return nil, err
	}
	if err := e.DB.UpsertKeywords(ctx, conversationID, keywordStats(keywords, all)); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}

	version, err := e.summarize(ctx, conversationID, all, fresh, force)
	if err != nil {
		return nil, err
	}

	if err := e.DB.MarkAnalyzed(ctx, conversationID, conv.MessageCount); err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if len(fresh) > 0 || len(archived) > 0 || revived > 0 {
		e.proposals.InvalidateConversation(conversationID)
	}

	e.log.Info("conversation analyzed",
		zap.String("conversation", conversationID),
		zap.Int("messages", len(all)), zap.Int("subjects", len(kept)),
		zap.Int("new_subjects", len(fresh)), zap.Int("archived", len(archived)), zap.Int("revived", revived),
		zap.Int("summary_version", version), zap.Bool("forced", force))

	result.Analyzed = true
	result.NewSubjects = len(fresh)
	result.Archived = len(archived)
	result.Revived = revived
	result.Keywords = keywords
	result.SummaryVersion = version
	return e.current(ctx, result)
}

// current fills result with the conversation's persisted state.
func (e *Engine) current(ctx context.Context, result *AnalysisResult) (*AnalysisResult, error) {
	subjects, err := e.DB.ConversationSubjects(ctx, result.ConversationID, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	result.Subjects = subjects

	if result.Keywords == nil {
		stats, err := e.DB.ConversationKeywords(ctx, result.ConversationID, e.cfg.Analysis.MaxKeywords)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		result.Keywords = candidates(stats)
	}

	if result.SummaryVersion == 0 {
		latest, err := e.DB.LatestSummary(ctx, result.ConversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		if latest != nil {
			result.SummaryVersion = latest.Version
		}
	}
	return result, nil
}

// conversationKeywords ranks the conversation's keywords. A first or forced
// analysis takes the full aggregate; otherwise the retained ranking is merged
// with the keywords of the unseen messages.
func (e *Engine) conversationKeywords(ctx context.Context, conv *store.Conversation, all []model.Message, full []keyword.Candidate, force bool) ([]keyword.Candidate, error) {
	max := e.cfg.Analysis.MaxKeywords
	if force || conv.AnalyzedCount == 0 || conv.AnalyzedCount >= len(all) {
		if len(full) > max {
			full = full[:max]
		}
		return full, nil
	}

	stored, err := e.DB.ConversationKeywords(ctx, conv.ID, max)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	unseen := all[conv.AnalyzedCount:]
	ranked := make([][]keyword.Candidate, len(unseen))
	for i, m := range unseen {
		ranked[i] = e.extractor.Rank(m.Content, max)
	}
	return keyword.MergeIncremental(candidates(stored), keyword.Aggregate(ranked, max), max), nil
}

// summarize writes a new summary version when the conversation has none, on
// force, or when new subjects appeared. It returns the latest version.
func (e *Engine) summarize(ctx context.Context, conversationID string, msgs []model.Message, fresh []model.Subject, force bool) (int, error) {
	previous, err := e.DB.LatestSummary(ctx, conversationID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}

	var next model.Summary
	switch {
	case previous == nil || force:
		subjects, err := e.DB.ConversationSubjects(ctx, conversationID, false)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		next = e.summaries.Generate(ctx, conversationID, subjects, msgs, previous)
	case len(fresh) > 0:
		next = e.summaries.Update(ctx, *previous, fresh, ReasonNewSubjects)
	default:
		return previous.Version, nil
	}

	stored, err := e.DB.InsertSummary(ctx, next)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	return stored.Version, nil
}

// keywordStats converts a ranking into stored statistics. A term's first and
// last sighting are the first and last message containing it.
func keywordStats(ranked []keyword.Candidate, msgs []model.Message) []store.KeywordStat {
	seen := make(map[string][2]time.Time, len(ranked))
	wanted := make(map[string]bool, len(ranked))
	for _, c := range ranked {
		wanted[c.Term] = true
	}
	for _, m := range msgs {
		for _, t := range keyword.Tokens(m.Content) {
			if !wanted[t] {
				continue
			}
			span, ok := seen[t]
			if !ok {
				span[0] = m.CreatedAt
			}
			span[1] = m.CreatedAt
			seen[t] = span
		}
	}

	out := make([]store.KeywordStat, len(ranked))
	for i, c := range ranked {
		span := seen[c.Term]
		out[i] = store.KeywordStat{
			Term:      c.Term,
			Frequency: c.Frequency,
			Score:     min(max(c.Score, 0), 1),
			FirstSeen: span[0],
			LastSeen:  span[1],
		}
	}
	return out
}

func candidates(stats []store.KeywordStat) []keyword.Candidate {
	out := make([]keyword.Candidate, len(stats))
	for i, k := range stats {
		out[i] = keyword.Candidate{Term: k.Term, Frequency: k.Frequency, Score: k.Score}
	}
	return out
}

// Subjects returns a conversation's subjects.
func (e *Engine) Subjects(ctx context.Context, conversationID string, withArchived bool) ([]model.Subject, error) {
	subjects, err := e.DB.ConversationSubjects(ctx, conversationID, withArchived)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	return subjects, nil
}

// Summary returns a conversation's latest summary and, when history is set,
// every earlier version oldest first.
func (e *Engine) Summary(ctx context.Context, conversationID string, history bool) (*model.Summary, []model.Summary, error) {
	latest, err := e.DB.LatestSummary(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if latest == nil {
		return nil, nil, fmt.Errorf("%w: no summary for conversation %s", model.ErrNotFound, conversationID)
	}
	if !history {
		return latest, nil, nil
	}
	all, err := e.DB.SummaryHistory(ctx, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	return latest, all, nil
}

// MergeSubjects merges two subjects of one conversation. The originals are
// archived, superseded by the merged subject, which is returned.
func (e *Engine) MergeSubjects(ctx context.Context, a, b uuid.UUID) (model.Subject, error) {
	subjects, err := e.DB.GetSubjects(ctx, []uuid.UUID{a, b})
	if err != nil {
		return model.Subject{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	byID := make(map[uuid.UUID]model.Subject, len(subjects))
	for _, s := range subjects {
		byID[s.ID] = s
	}
	for _, id := range []uuid.UUID{a, b} {
		if _, ok := byID[id]; !ok {
			return model.Subject{}, fmt.Errorf("%w: subject %s", model.ErrNotFound, id)
		}
		if byID[id].Lifecycle.IsArchived() {
			return model.Subject{}, fmt.Errorf("%w: subject %s is archived", model.ErrValidation, id)
		}
	}

	conversationID := byID[a].ConversationID
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	merged, archived, err := subject.Merge(byID[a], byID[b])
	if err != nil {
		return model.Subject{}, err
	}
	if _, err := e.DB.UpsertSubject(ctx, merged); err != nil {
		return model.Subject{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	for _, s := range archived {
		if err := e.DB.ArchiveSubject(ctx, s.ID, merged.ID, model.ArchiveMerged); err != nil {
			return model.Subject{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
	}
	e.proposals.InvalidateConversation(conversationID)
	e.log.Info("subjects merged",
		zap.String("conversation", conversationID), zap.Stringer("merged", merged.ID), zap.Int("archived", len(archived)))

	stored, err := e.DB.GetSubject(ctx, merged.ID)
	if err != nil || stored == nil {
		return merged, nil
	}
	return *stored, nil
}
