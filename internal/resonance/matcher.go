// Package resonance builds compact context hints from keyword overlap with
// other conversations.
package resonance

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lazypower/resonance/internal/keyword"
	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/store"
)

const (
	// MaxDepth saturates Hint.Depth.
	MaxDepth = 42

	conversationsPerTerm = 5
	keywordsPerMatch     = 10
)

// Pattern types.
const (
	TypeSubject      = "subject"
	TypeConversation = "conversation"
)

// Lookup is the read side of the store the matcher searches.
type Lookup interface {
	ConversationKeywords(ctx context.Context, conversationID string, limit int) ([]store.KeywordStat, error)
	ConversationsWithKeyword(ctx context.Context, term, exclude string, limit int) ([]string, error)
	SubjectsWithKeyword(ctx context.Context, term, exclude string) ([]model.Subject, error)
}

// Config bounds matching. Zero values take the defaults.
type Config struct {
	Threshold   float64 // minimum resonance, exclusive
	MaxPatterns int
	QueryLimit  int // stored keywords joined to the query
	Parallelism int // concurrent store lookups
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = 0.3
	}
	if c.MaxPatterns <= 0 {
		c.MaxPatterns = 5
	}
	if c.QueryLimit <= 0 {
		c.QueryLimit = 10
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 4
	}
	return c
}

// Pattern is one resonant match.
type Pattern struct {
	Type      string   `json:"type"`
	Ref       string   `json:"ref"`
	Abstract  string   `json:"abstract"`
	Keywords  []string `json:"keywords"`
	Resonance float64  `json:"resonance"`
}

// Hint is the context handed to a text-generation call. The zero Hint means
// nothing resonated.
type Hint struct {
	Keywords    []string  `json:"keywords"`
	Patterns    []Pattern `json:"patterns"`
	Abstraction string    `json:"abstraction"`
	Depth       int       `json:"depth"`
}

// MarshalJSON renders missing lists as [] and a missing abstraction as null.
func (h Hint) MarshalJSON() ([]byte, error) {
	w := struct {
		Keywords    []string  `json:"keywords"`
		Patterns    []Pattern `json:"patterns"`
		Abstraction *string   `json:"abstraction"`
		Depth       int       `json:"depth"`
	}{Keywords: h.Keywords, Patterns: h.Patterns, Depth: h.Depth}
	if w.Keywords == nil {
		w.Keywords = []string{}
	}
	if w.Patterns == nil {
		w.Patterns = []Pattern{}
	}
	if h.Abstraction != "" {
		w.Abstraction = &h.Abstraction
	}
	return json.Marshal(w)
}

// IsZero reports whether h carries nothing.
func (h Hint) IsZero() bool {
	return len(h.Keywords) == 0 && len(h.Patterns) == 0 && h.Abstraction == "" && h.Depth == 0
}

// String renders h as hint text, omitting empty fields.
func (h Hint) String() string {
	var b strings.Builder
	if len(h.Keywords) > 0 {
		fmt.Fprintf(&b, "keywords: %s\n", strings.Join(h.Keywords, ", "))
	}
	if len(h.Patterns) > 0 {
		b.WriteString("patterns:\n")
		for _, p := range h.Patterns {
			fmt.Fprintf(&b, "- [%s] %s (%.2f)\n", p.Type, p.Abstract, p.Resonance)
		}
	}
	if h.Abstraction != "" {
		fmt.Fprintf(&b, "abstraction: %s\n", h.Abstraction)
	}
	if h.Depth > 0 {
		fmt.Fprintf(&b, "depth: %d\n", h.Depth)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Matcher computes Hints.
type Matcher struct {
	lookup    Lookup
	extractor *keyword.Extractor
	cfg       Config
	log       *zap.Logger
}

// NewMatcher returns a Matcher reading through lookup.
func NewMatcher(lookup Lookup, extractor *keyword.Extractor, cfg Config, log *zap.Logger) *Matcher {
	if extractor == nil {
		extractor = keyword.NewExtractor(keyword.DefaultCacheSize)
	}
	return &Matcher{lookup: lookup, extractor: extractor, cfg: cfg.withDefaults(), log: logging.OrNop(log)}
}

// Match builds the hint for the newest message of a conversation. Any lookup
// failure yields the zero Hint.
func (m *Matcher) Match(ctx context.Context, conversationID, newest string) Hint {
	hint, err := m.match(ctx, conversationID, newest)
	if err != nil {
		m.log.Warn("resonance lookup failed, returning empty hint",
			zap.String("conversation", conversationID), zap.Error(err))
		return Hint{}
	}
	return hint
}

func (m *Matcher) match(ctx context.Context, conversationID, newest string) (Hint, error) {
	existing, err := m.lookup.ConversationKeywords(ctx, conversationID, 0)
	if err != nil {
		return Hint{}, err
	}
	query := querySet(m.extractor.Extract(newest, keyword.DefaultMax), existing, m.cfg.QueryLimit)
	if len(query) == 0 {
		return Hint{}, nil
	}

	historical := make(map[string]bool, len(existing)+len(query))
	for _, k := range existing {
		historical[k.Term] = true
	}
	for _, t := range query {
		historical[t] = true
	}

	perTerm := make([][]Pattern, len(query))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.cfg.Parallelism)
	for i, term := range query {
		g.Go(func() error {
			found, err := m.search(gctx, conversationID, term)
			if err != nil {
				return fmt.Errorf("search %q: %w", term, err)
			}
			perTerm[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Hint{}, err
	}

	var patterns []Pattern
	seen := make(map[string]bool)
	for _, found := range perTerm {
		for _, p := range found {
			id := p.Type + "/" + p.Ref
			if seen[id] {
				continue
			}
			seen[id] = true
			p.Resonance = Containment(p.Keywords, historical)
			if p.Resonance > m.cfg.Threshold {
				patterns = append(patterns, p)
			}
		}
	}
	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].Resonance != patterns[j].Resonance {
			return patterns[i].Resonance > patterns[j].Resonance
		}
		if patterns[i].Type != patterns[j].Type {
			return patterns[i].Type > patterns[j].Type // subjects first
		}
		return patterns[i].Ref < patterns[j].Ref
	})
	if len(patterns) > m.cfg.MaxPatterns {
		patterns = patterns[:m.cfg.MaxPatterns]
	}

	hint := Hint{Keywords: query, Patterns: patterns}
	if len(patterns) > 0 {
		abstracts := make([]string, len(patterns))
		sum := 0.0
		for i, p := range patterns {
			abstracts[i] = p.Abstract
			sum += p.Resonance
		}
		hint.Abstraction = strings.Join(abstracts, "; ")
		hint.Depth = Depth(sum / float64(len(patterns)))
	}
	return hint, nil
}

// search finds the subjects and conversations of other conversations that
// recorded term.
func (m *Matcher) search(ctx context.Context, conversationID, term string) ([]Pattern, error) {
	subjects, err := m.lookup.SubjectsWithKeyword(ctx, term, conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]Pattern, 0, len(subjects))
	for _, s := range subjects {
		abstract := s.Description
		if abstract == "" {
			abstract = s.Keywords.String()
		}
		out = append(out, Pattern{Type: TypeSubject, Ref: s.ID.String(), Abstract: abstract, Keywords: s.Keywords.Terms()})
	}

	convs, err := m.lookup.ConversationsWithKeyword(ctx, term, conversationID, conversationsPerTerm)
	if err != nil {
		return nil, err
	}
	for _, conv := range convs {
		stats, err := m.lookup.ConversationKeywords(ctx, conv, keywordsPerMatch)
		if err != nil {
			return nil, err
		}
		terms := make([]string, len(stats))
		for i, k := range stats {
			terms[i] = k.Term
		}
		out = append(out, Pattern{
			Type:     TypeConversation,
			Ref:      conv,
			Abstract: fmt.Sprintf("conversation %s: %s", conv, strings.Join(terms, ", ")),
			Keywords: terms,
		})
	}
	return out, nil
}

// querySet puts the newest message's keywords first, then the conversation's
// top limit keywords, de-duplicated. Only the stored keywords are capped.
func querySet(fresh []string, existing []store.KeywordStat, limit int) []string {
	if len(existing) > limit {
		existing = existing[:limit]
	}
	seen := make(map[string]bool, len(fresh)+len(existing))
	out := make([]string, 0, len(fresh)+len(existing))
	add := func(t string) {
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range fresh {
		add(t)
	}
	for _, k := range existing {
		add(k.Term)
	}
	return out
}

// Containment is the share of match keywords already known to the
// conversation: |match ∩ known| / |match|. Unlike the Jaccard similarity
// proposals use, it is asymmetric.
func Containment(match []string, known map[string]bool) float64 {
	if len(match) == 0 {
		return 0
	}
	hit := 0
	for _, t := range match {
		if known[t] {
			hit++
		}
	}
	return float64(hit) / float64(len(match))
}

// Depth maps an average resonance onto [0, MaxDepth].
func Depth(avg float64) int {
	return int(math.Floor(math.Min(MaxDepth, avg*MaxDepth)))
}
