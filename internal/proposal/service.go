package proposal

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/model"
)

const (
	DefaultCacheSize = 50
	DefaultCacheTTL  = 60 * time.Second
	DefaultOwner     = "default"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resonance_proposal_cache_hits_total",
		Help: "Proposal lookups answered from the cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "resonance_proposal_cache_misses_total",
		Help: "Proposal lookups that had to rank.",
	})
)

// Store is the persistence the service reads subjects and configs from.
type Store interface {
	ConversationSubjects(ctx context.Context, conversationID string, withArchived bool) ([]model.Subject, error)
	GetSubjects(ctx context.Context, ids []uuid.UUID) ([]model.Subject, error)
	HistoricalSubjects(ctx context.Context, exclude string) ([]model.Subject, error)
	LatestProposalConfig(ctx context.Context, owner string) (*model.ProposalConfig, error)
	AppendProposalConfig(ctx context.Context, c model.ProposalConfig) (*model.ProposalConfig, error)
}

// Options tune a Service. Zero values take the defaults.
type Options struct {
	CacheSize int
	CacheTTL  time.Duration
	Owner     string // whose config scores proposals
}

// cacheKey identifies one ranking: a conversation and its sorted current
// subject ids, packed 16 bytes each.
type cacheKey struct {
	conversation string
	subjects     string
}

func newCacheKey(conversationID string, ids []uuid.UUID) cacheKey {
	sorted := slices.Clone(ids)
	slices.SortFunc(sorted, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	sorted = slices.Compact(sorted)
	var b strings.Builder
	b.Grow(len(sorted) * 16)
	for _, id := range sorted {
		b.Write(id[:])
	}
	return cacheKey{conversation: conversationID, subjects: b.String()}
}

func (k cacheKey) flight() string { return k.conversation + "\x00" + k.subjects }

// entry is a full, untruncated ranking. gen is the cache generation it was
// computed under; a purge bumps the generation so a ranking racing with the
// purge is never served.
type entry struct {
	ranked []model.Proposal
	gen    uint64
}

// Result is the answer to one Get.
type Result struct {
	Proposals   []model.Proposal
	Cached      bool
	ComputeTime time.Duration
}

// Service computes, caches and filters proposals.
type Service struct {
	store Store
	owner string
	log   *zap.Logger
	now   func() time.Time

	cache *expirable.LRU[cacheKey, entry]
	group singleflight.Group
	gen   atomic.Uint64

	cfgMu     sync.Mutex // serializes first-use config creation
	mu        sync.Mutex
	configs   map[string]model.ProposalConfig
	dismissed map[string]map[uuid.UUID]struct{}
}

// NewService returns a Service with its own cache.
func NewService(store Store, opts Options, log *zap.Logger) *Service {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Owner == "" {
		opts.Owner = DefaultOwner
	}
	return &Service{
		store:     store,
		owner:     opts.Owner,
		log:       logging.OrNop(log),
		now:       time.Now,
		cache:     expirable.NewLRU[cacheKey, entry](opts.CacheSize, nil, opts.CacheTTL),
		configs:   make(map[string]model.ProposalConfig),
		dismissed: make(map[string]map[uuid.UUID]struct{}),
	}
}

// Get returns the proposals for a conversation's current subjects. With no
// subjectIDs the conversation's active subjects are used. forceRefresh
// bypasses the cache and replaces its entry.
func (s *Service) Get(ctx context.Context, conversationID string, subjectIDs []uuid.UUID, forceRefresh bool) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(conversationID) == "" {
		return Result{}, fmt.Errorf("%w: conversation id is empty", model.ErrValidation)
	}
	cfg, err := s.Config(ctx, "")
	if err != nil {
		return Result{}, err
	}

	var current []model.Subject
	if len(subjectIDs) == 0 {
		current, err = s.store.ConversationSubjects(ctx, conversationID, false)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		subjectIDs = make([]uuid.UUID, len(current))
		for i, c := range current {
			subjectIDs[i] = c.ID
		}
	}
	key := newCacheKey(conversationID, subjectIDs)

	if !forceRefresh {
		if e, ok := s.cache.Get(key); ok && e.gen == s.gen.Load() {
			cacheHitsTotal.Inc()
			return Result{Proposals: s.finish(conversationID, e.ranked, cfg), Cached: true, ComputeTime: time.Since(start)}, nil
		}
	}
	cacheMissesTotal.Inc()

	v, err, _ := s.group.Do(key.flight(), func() (any, error) {
		gen := s.gen.Load()
		subjects := current
		if subjects == nil {
			loaded, err := s.loadCurrent(ctx, conversationID, subjectIDs)
			if err != nil {
				return nil, err
			}
			subjects = loaded
		}
		past, err := s.store.HistoricalSubjects(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
		ranked := Rank(subjects, past, cfg, s.now())
		s.cache.Add(key, entry{ranked: ranked, gen: gen})
		s.log.Debug("proposals ranked",
			zap.String("conversation", conversationID),
			zap.Int("current", len(subjects)), zap.Int("past", len(past)), zap.Int("ranked", len(ranked)))
		return ranked, nil
	})
	if err != nil {
		return Result{}, err
	}
	return Result{Proposals: s.finish(conversationID, v.([]model.Proposal), cfg), ComputeTime: time.Since(start)}, nil
}

// loadCurrent resolves explicit subject ids, which must all belong to the
// conversation.
func (s *Service) loadCurrent(ctx context.Context, conversationID string, ids []uuid.UUID) ([]model.Subject, error) {
	subjects, err := s.store.GetSubjects(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	found := make(map[uuid.UUID]bool, len(subjects))
	for _, sub := range subjects {
		if sub.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: subject %s belongs to conversation %s", model.ErrValidation, sub.ID, sub.ConversationID)
		}
		found[sub.ID] = true
	}
	for _, id := range ids {
		if !found[id] {
			return nil, fmt.Errorf("%w: subject %s", model.ErrNotFound, id)
		}
	}
	return subjects, nil
}

// finish drops dismissed past subjects, then truncates.
func (s *Service) finish(conversationID string, ranked []model.Proposal, cfg model.ProposalConfig) []model.Proposal {
	s.mu.Lock()
	dismissed := s.dismissed[conversationID]
	out := make([]model.Proposal, 0, min(len(ranked), cfg.MaxProposals))
	for _, p := range ranked {
		if len(out) == cfg.MaxProposals {
			break
		}
		if _, ok := dismissed[p.PastSubjectID]; ok {
			continue
		}
		p.MatchedKeywords = slices.Clone(p.MatchedKeywords)
		out = append(out, p)
	}
	s.mu.Unlock()
	return out
}

// Dismiss hides a past subject from a conversation's proposals for the rest
// of the session.
func (s *Service) Dismiss(conversationID string, pastSubjectID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.dismissed[conversationID]
	if !ok {
		set = make(map[uuid.UUID]struct{})
		s.dismissed[conversationID] = set
	}
	set[pastSubjectID] = struct{}{}
}

// InvalidateConversation drops every cached ranking of a conversation.
func (s *Service) InvalidateConversation(conversationID string) int {
	n := 0
	for _, k := range s.cache.Keys() {
		if k.conversation == conversationID && s.cache.Remove(k) {
			n++
		}
	}
	return n
}

// SwitchConversation is called when the user leaves a conversation: its
// cached rankings and dismissals are dropped.
func (s *Service) SwitchConversation(from string) {
	s.InvalidateConversation(from)
	s.mu.Lock()
	delete(s.dismissed, from)
	s.mu.Unlock()
}

// Purge drops every cached ranking.
func (s *Service) Purge() {
	s.gen.Add(1)
	s.cache.Purge()
}

// Config returns the owner's current config, storing the defaults on first
// use. An empty owner means the service's owner.
func (s *Service) Config(ctx context.Context, owner string) (model.ProposalConfig, error) {
	if owner == "" {
		owner = s.owner
	}
	s.mu.Lock()
	cfg, ok := s.configs[owner]
	s.mu.Unlock()
	if ok {
		return cfg, nil
	}

	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.mu.Lock()
	cfg, ok = s.configs[owner]
	s.mu.Unlock()
	if ok {
		return cfg, nil
	}

	stored, err := s.store.LatestProposalConfig(ctx, owner)
	if err != nil {
		return model.ProposalConfig{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if stored == nil {
		if stored, err = s.store.AppendProposalConfig(ctx, model.DefaultProposalConfig(owner)); err != nil {
			return model.ProposalConfig{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
		}
	}
	s.mu.Lock()
	s.configs[owner] = *stored
	s.mu.Unlock()
	return *stored, nil
}

// UpdateConfig validates and stores a new config version for owner. Every
// cached ranking is dropped, since weights change every score.
func (s *Service) UpdateConfig(ctx context.Context, owner string, cfg model.ProposalConfig) (model.ProposalConfig, error) {
	if owner == "" {
		owner = s.owner
	}
	cfg.OwnerID = owner
	if err := cfg.Validate(); err != nil {
		return model.ProposalConfig{}, err
	}
	stored, err := s.store.AppendProposalConfig(ctx, cfg)
	if err != nil {
		return model.ProposalConfig{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	s.mu.Lock()
	s.configs[owner] = *stored
	s.mu.Unlock()
	s.Purge()
	s.log.Info("proposal config updated", zap.String("owner", owner), zap.Int("version", stored.Version))
	return *stored, nil
}

// CacheLen reports the number of cached rankings.
func (s *Service) CacheLen() int { return s.cache.Len() }
