// Package summary writes versioned conversation synopses, through the
// text-generation capability when it answers and a deterministic template
// when it does not.
package summary

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/llm"
	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/transcript"
)

const (
	// DefaultRecent is how many trailing messages feed a synopsis.
	DefaultRecent  = 10
	DefaultTimeout = 30 * time.Second

	ReasonInitial    = "Initial analysis"
	ReasonReanalysis = "Re-analysis"

	maxSummaryChars = 1200
	maxSubjectLines = 20
)

// Options tune a Generator. Zero values take the defaults.
type Options struct {
	Recent  int
	Timeout time.Duration
}

// Generator produces Summary values. It never fails: a generation error
// yields a fallback summary instead. Version and predecessor are assigned
// by the store when the summary is saved.
type Generator struct {
	client  llm.Client
	recent  int
	timeout time.Duration
	log     *zap.Logger
	now     func() time.Time
}

// NewGenerator returns a Generator. client may be nil, in which case every
// summary is a fallback.
func NewGenerator(client llm.Client, opts Options, log *zap.Logger) *Generator {
	if opts.Recent <= 0 {
		opts.Recent = DefaultRecent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Generator{
		client:  client,
		recent:  opts.Recent,
		timeout: opts.Timeout,
		log:     logging.OrNop(log),
		now:     time.Now,
	}
}

// Generate builds a fresh synopsis from the conversation's subjects and its
// most recent messages. previous, when set, only affects the change reason.
func (g *Generator) Generate(ctx context.Context, conversationID string, subjects []model.Subject, msgs []model.Message, previous *model.Summary) model.Summary {
	active := activeSubjects(subjects)
	s := model.Summary{
		ConversationID: conversationID,
		SubjectIDs:     subjectIDs(active),
		Keywords:       keywordsOf(active),
		ChangeReason:   ReasonInitial,
		CreatedAt:      g.now().UTC(),
	}
	if previous != nil {
		s.ChangeReason = ReasonReanalysis
		s.PredecessorID = previous.ID
	}

	recent := transcript.Condense(transcript.Recent(msgs, g.recent))
	content, err := g.complete(ctx, llm.SummaryPrompt(subjectLines(active), recent))
	if err != nil {
		g.log.Warn("summary generation failed, using fallback",
			zap.String("conversation", conversationID), zap.Error(err))
		s.Content = Fallback(active)
		s.ChangeReason = model.FallbackReason
		s.Fallback = true
		return s
	}
	s.Content = content
	return s
}

// Update revises existing with a delta of new or changed subjects. On
// generation failure the prior content is kept and a delta note appended.
func (g *Generator) Update(ctx context.Context, existing model.Summary, delta []model.Subject, reason string) model.Summary {
	active := activeSubjects(delta)
	s := model.Summary{
		ConversationID: existing.ConversationID,
		SubjectIDs:     mergeIDs(existing.SubjectIDs, subjectIDs(active)),
		Keywords:       mergeTerms(existing.Keywords, keywordsOf(active)),
		ChangeReason:   reason,
		PredecessorID:  existing.ID,
		CreatedAt:      g.now().UTC(),
	}
	if s.ChangeReason == "" {
		s.ChangeReason = ReasonReanalysis
	}
	if len(active) == 0 {
		s.Content = existing.Content
		s.Fallback = existing.Fallback
		return s
	}

	content, err := g.complete(ctx, llm.SummaryUpdatePrompt(existing.Content, subjectLines(active), s.ChangeReason))
	if err != nil {
		g.log.Warn("summary update failed, appending delta note",
			zap.String("conversation", existing.ConversationID), zap.Error(err))
		s.Content = DeltaNote(existing.Content, active)
		s.ChangeReason = model.FallbackReason
		s.Fallback = true
		return s
	}
	s.Content = content
	return s
}

func (g *Generator) complete(ctx context.Context, req llm.Request) (string, error) {
	if g.client == nil {
		return "", errNoClient
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Complete(ctx, req)
	if err != nil {
		return "", err
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", errEmpty
	}
	return llm.Truncate(content, maxSummaryChars), nil
}

// Fallback renders the deterministic synopsis used when generation fails.
func Fallback(subjects []model.Subject) string {
	if len(subjects) == 0 {
		return "No recurring topics identified yet."
	}
	lines := subjectLines(subjects)
	return "Topics discussed: " + strings.Join(lines, "; ") + "."
}

// DeltaNote appends a terse note about changed subjects to prior content.
func DeltaNote(prior string, delta []model.Subject) string {
	terms := make([]string, 0, len(delta))
	for _, s := range delta {
		terms = append(terms, s.Keywords.String())
	}
	note := "Updated topics: " + strings.Join(terms, "; ") + "."
	if strings.TrimSpace(prior) == "" {
		return note
	}
	return strings.TrimRight(prior, "\n ") + "\n\n" + note
}

func activeSubjects(subjects []model.Subject) []model.Subject {
	out := make([]model.Subject, 0, len(subjects))
	for _, s := range subjects {
		if !s.Lifecycle.IsArchived() {
			out = append(out, s)
		}
	}
	return out
}

// subjectLines describes each subject by its description, or its keywords
// when it has none.
func subjectLines(subjects []model.Subject) []string {
	n := min(len(subjects), maxSubjectLines)
	lines := make([]string, 0, n)
	for _, s := range subjects[:n] {
		if s.Description != "" {
			lines = append(lines, s.Description+" ("+s.Keywords.String()+")")
			continue
		}
		lines = append(lines, s.Keywords.String())
	}
	return lines
}

func subjectIDs(subjects []model.Subject) []uuid.UUID {
	ids := make([]uuid.UUID, len(subjects))
	for i, s := range subjects {
		ids[i] = s.ID
	}
	return ids
}

// keywordsOf returns the distinct terms of subjects in first-seen order.
func keywordsOf(subjects []model.Subject) []string {
	var out []string
	for _, s := range subjects {
		out = mergeTerms(out, s.Keywords.Terms())
	}
	return out
}

func mergeTerms(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, t := range append(append([]string(nil), a...), b...) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

func mergeIDs(a, b []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	out := make([]uuid.UUID, 0, len(a)+len(b))
	for _, id := range append(append([]uuid.UUID(nil), a...), b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
