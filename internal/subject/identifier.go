// Package subject clusters conversation messages into subjects by keyword
// co-occurrence, and merges or archives subjects that others subsume.
package subject

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/keyword"
	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/transcript"
)

// Config bounds identification.
type Config struct {
	MaxKeywords     int // aggregate keywords considered per conversation
	PerMessage      int // keywords extracted per message
	MinMessageCount int // significance filter: the number of supporting messages, each counted once
	BatchSize       int // messages processed between cooperative yields
}

// DefaultConfig returns the identification defaults.
func DefaultConfig() Config {
	return Config{MaxKeywords: 20, PerMessage: keyword.DefaultMax, MinMessageCount: 2, BatchSize: 10}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = d.MaxKeywords
	}
	if c.PerMessage <= 0 {
		c.PerMessage = d.PerMessage
	}
	if c.MinMessageCount <= 0 {
		c.MinMessageCount = d.MinMessageCount
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	return c
}

// Describer supplies a description and confidence for a subject, given an
// excerpt of the messages supporting it.
type Describer interface {
	Describe(ctx context.Context, s model.Subject, excerpt string) (string, float64, error)
}

// Identifier clusters messages into subjects.
type Identifier struct {
	extractor *keyword.Extractor
	cfg       Config
	describer Describer
	log       *zap.Logger
	now       func() time.Time
}

// New returns an Identifier. describer may be nil, in which case descriptions
// stay empty and confidence stays at the default.
func New(extractor *keyword.Extractor, cfg Config, describer Describer, log *zap.Logger) *Identifier {
	if extractor == nil {
		extractor = keyword.NewExtractor(keyword.DefaultCacheSize)
	}
	return &Identifier{
		extractor: extractor,
		cfg:       cfg.withDefaults(),
		describer: describer,
		log:       logging.OrNop(log),
		now:       time.Now,
	}
}

// Extractor returns the extraction cache the identifier reads through.
func (id *Identifier) Extractor() *keyword.Extractor { return id.extractor }

// Result is the outcome of one identification pass.
type Result struct {
	// Subjects passing the significance filter, busiest first.
	Subjects []model.Subject
	// Keywords aggregated across the messages, bounded to Config.MaxKeywords.
	Keywords []keyword.Candidate
}

// Identify clusters msgs of one conversation into subjects. Identical input
// always yields identical subject identities. It fails only on an empty
// conversation id or a cancelled context.
func (id *Identifier) Identify(ctx context.Context, conversationID string, msgs []model.Message) (Result, error) {
	if strings.TrimSpace(conversationID) == "" {
		return Result{}, fmt.Errorf("%w: conversation id is empty", model.ErrValidation)
	}

	perMessage := make([][]keyword.Candidate, len(msgs))
	for i, m := range msgs {
		if err := id.yield(ctx, i); err != nil {
			return Result{}, err
		}
		perMessage[i] = id.extractor.Rank(m.Content, id.cfg.PerMessage)
	}
	top := keyword.Aggregate(perMessage, id.cfg.MaxKeywords)
	if len(top) == 0 {
		return Result{Keywords: top}, nil
	}

	topTerms := make(map[string]bool, len(top))
	for _, c := range top {
		topTerms[c.Term] = true
	}

	subjects := make(map[uuid.UUID]*model.Subject)
	for i, m := range msgs {
		if err := id.yield(ctx, i); err != nil {
			return Result{}, err
		}
		contained := containedTerms(m.Content, topTerms)
		if len(contained) == 0 {
			continue
		}
		seen := m.CreatedAt
		if seen.IsZero() {
			seen = id.now()
		}
		for _, combo := range combinations(contained) {
			key := model.SubjectKey{ConversationID: conversationID, Keywords: model.NewKeywordSet(combo...)}
			sid := key.ID()
			s, ok := subjects[sid]
			if !ok {
				created := model.NewSubject(key, seen)
				s = &created
				subjects[sid] = s
			}
			s.Observe(seen)
		}
	}

	out := make([]model.Subject, 0, len(subjects))
	for _, s := range subjects {
		if s.MessageCount >= id.cfg.MinMessageCount {
			out = append(out, *s)
		}
	}
	SortByActivity(out)

	if id.describer != nil {
		id.describe(ctx, out, msgs)
	}
	return Result{Subjects: out, Keywords: top}, nil
}

func (id *Identifier) yield(ctx context.Context, i int) error {
	if i == 0 || i%id.cfg.BatchSize != 0 {
		return nil
	}
	runtime.Gosched()
	return ctx.Err()
}

// describe fills descriptions in place. A failing describer leaves the
// subject's defaults untouched.
func (id *Identifier) describe(ctx context.Context, subjects []model.Subject, msgs []model.Message) {
	for i := range subjects {
		s := &subjects[i]
		desc, conf, err := id.describer.Describe(ctx, *s, excerpt(*s, msgs, 3))
		if err != nil {
			id.log.Warn("subject description failed, keeping defaults",
				zap.String("subject", s.ID.String()), zap.Stringer("keywords", s.Keywords), zap.Error(err))
			if ctx.Err() != nil {
				return
			}
			continue
		}
		s.Description = desc
		s.Confidence = conf
	}
}

// excerpt condenses up to n messages that support s.
func excerpt(s model.Subject, msgs []model.Message, n int) string {
	var support []model.Message
	for _, m := range msgs {
		tokens := tokenSet(m.Content)
		all := true
		for _, t := range s.Keywords.Terms() {
			if !tokens[t] {
				all = false
				break
			}
		}
		if all {
			support = append(support, m)
			if len(support) == n {
				break
			}
		}
	}
	return transcript.Condense(support)
}

func tokenSet(text string) map[string]bool {
	toks := keyword.Tokens(text)
	set := make(map[string]bool, len(toks))
	for _, t := range toks {
		set[t] = true
	}
	return set
}

// containedTerms returns the sorted members of terms that occur as tokens of text.
func containedTerms(text string, terms map[string]bool) []string {
	var out []string
	for t := range tokenSet(text) {
		if terms[t] {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// combinations returns every singleton and every unordered pair of sorted
// terms, each pair in sorted order.
func combinations(terms []string) [][]string {
	out := make([][]string, 0, len(terms)*(len(terms)+1)/2)
	for i, a := range terms {
		out = append(out, []string{a})
		for _, b := range terms[i+1:] {
			out = append(out, []string{a, b})
		}
	}
	return out
}

// SortByActivity orders subjects by message count, descending, with ties
// broken by keyword tuple so the order is deterministic.
func SortByActivity(subjects []model.Subject) {
	sort.SliceStable(subjects, func(i, j int) bool {
		if subjects[i].MessageCount != subjects[j].MessageCount {
			return subjects[i].MessageCount > subjects[j].MessageCount
		}
		return subjects[i].Keywords.String() < subjects[j].Keywords.String()
	})
}
