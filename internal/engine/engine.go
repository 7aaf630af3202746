// Package engine wires the extraction, subject, summary, resonance, proposal
// and access components over one store and exposes the knowledge engine's
// entry points.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/access"
	"github.com/lazypower/resonance/internal/config"
	"github.com/lazypower/resonance/internal/keyword"
	"github.com/lazypower/resonance/internal/llm"
	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/proposal"
	"github.com/lazypower/resonance/internal/resonance"
	"github.com/lazypower/resonance/internal/store"
	"github.com/lazypower/resonance/internal/subject"
	"github.com/lazypower/resonance/internal/summary"
)

// Engine orchestrates analysis and serves proposals, hints and access state.
type Engine struct {
	DB  *store.DB
	LLM llm.Client

	cfg        config.Config
	log        *zap.Logger
	extractor  *keyword.Extractor
	identifier *subject.Identifier
	policy     subject.Policy
	summaries  *summary.Generator
	matcher    *resonance.Matcher
	proposals  *proposal.Service
	access     *access.Manager
	locks      *keyedMutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an Engine. client may be nil, in which case every generated
// text takes its fallback.
func New(db *store.DB, client llm.Client, cfg config.Config, log *zap.Logger) *Engine {
	log = logging.OrNop(log)
	extractor := keyword.NewExtractor(cfg.Analysis.ExtractCacheSize)

	var describer subject.Describer
	if client != nil && cfg.LLM.Describe {
		describer = subject.LLMDescriber{Client: client}
	}

	return &Engine{
		DB:        db,
		LLM:       client,
		cfg:       cfg,
		log:       log,
		extractor: extractor,
		identifier: subject.New(extractor, subject.Config{
			MaxKeywords:     cfg.Analysis.SubjectKeywords,
			PerMessage:      cfg.Analysis.MaxKeywords,
			MinMessageCount: cfg.Analysis.MinMessageCount,
		}, describer, log.Named("subject")),
		policy: subject.Policy{Threshold: cfg.Analysis.ReanalyzeThreshold},
		summaries: summary.NewGenerator(client, summary.Options{
			Recent:  cfg.Analysis.RecentMessages,
			Timeout: cfg.LLM.Timeout,
		}, log.Named("summary")),
		matcher: resonance.NewMatcher(db, extractor, resonance.Config{
			Threshold:   cfg.Resonance.Threshold,
			MaxPatterns: cfg.Resonance.MaxPatterns,
			QueryLimit:  cfg.Resonance.QueryLimit,
			Parallelism: cfg.Resonance.Parallelism,
		}, log.Named("resonance")),
		proposals: proposal.NewService(db, proposal.Options{
			CacheSize: cfg.Proposals.CacheSize,
			CacheTTL:  cfg.Proposals.CacheTTL,
			Owner:     cfg.Proposals.Owner,
		}, log.Named("proposal")),
		access: access.NewManager(db, db, db, log.Named("access")),
		locks:  newKeyedMutex(),
		stopCh: make(chan struct{}),
	}
}

// Stop shuts down the engine's background goroutines and waits for them.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// Extractor exposes the engine's extraction cache.
func (e *Engine) Extractor() *keyword.Extractor { return e.extractor }

// SuggestKeywords asks the text-generation capability for keywords, falling
// back to local extraction.
func (e *Engine) SuggestKeywords(ctx context.Context, text string, max int) ([]string, llm.Tier) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.LLM.Timeout)
	defer cancel()
	return keyword.Suggest(ctx, e.LLM, text, max, e.log.Named("keyword"))
}

// ProposalsResult is the answer of GetProposals.
type ProposalsResult struct {
	Proposals     []model.Proposal `json:"proposals"`
	Cached        bool             `json:"cached"`
	ComputeTimeMs float64          `json:"compute_time_ms"`
}

// GetProposals returns ranked proposals for a conversation's current subjects.
func (e *Engine) GetProposals(ctx context.Context, conversationID string, subjectIDs []uuid.UUID, forceRefresh bool) (*ProposalsResult, error) {
	res, err := e.proposals.Get(ctx, conversationID, subjectIDs, forceRefresh)
	if err != nil {
		return nil, err
	}
	if res.Proposals == nil {
		res.Proposals = []model.Proposal{}
	}
	return &ProposalsResult{
		Proposals:     res.Proposals,
		Cached:        res.Cached,
		ComputeTimeMs: float64(res.ComputeTime.Microseconds()) / 1000,
	}, nil
}

// DismissProposal hides a past subject from a conversation's proposals for
// this session.
func (e *Engine) DismissProposal(conversationID string, pastSubjectID uuid.UUID) error {
	if strings.TrimSpace(conversationID) == "" {
		return fmt.Errorf("%w: conversation id is empty", model.ErrValidation)
	}
	e.proposals.Dismiss(conversationID, pastSubjectID)
	return nil
}

// SwitchConversation records that the user left from for another
// conversation. from's cached proposals and dismissals are dropped.
func (e *Engine) SwitchConversation(from, to string) {
	e.proposals.SwitchConversation(from)
	e.log.Debug("conversation switched", zap.String("from", from), zap.String("to", to))
}

// ProposalConfig returns the owner's proposal config; empty means the default owner.
func (e *Engine) ProposalConfig(ctx context.Context, owner string) (model.ProposalConfig, error) {
	return e.proposals.Config(ctx, owner)
}

// UpdateProposalConfig stores a new proposal config version.
func (e *Engine) UpdateProposalConfig(ctx context.Context, owner string, cfg model.ProposalConfig) (model.ProposalConfig, error) {
	return e.proposals.UpdateConfig(ctx, owner, cfg)
}

// Resonance builds the context hint for the newest message of a
// conversation. An empty newest uses the latest stored message.
func (e *Engine) Resonance(ctx context.Context, conversationID, newest string) (resonance.Hint, error) {
	if strings.TrimSpace(conversationID) == "" {
		return resonance.Hint{}, fmt.Errorf("%w: conversation id is empty", model.ErrValidation)
	}
	if newest == "" {
		msgs, err := e.DB.Messages(ctx, conversationID, 1)
		if err != nil {
			e.log.Warn("resonance: latest message unavailable", zap.String("conversation", conversationID), zap.Error(err))
			return resonance.Hint{}, nil
		}
		if len(msgs) > 0 {
			newest = msgs[0].Content
		}
	}
	return e.matcher.Match(ctx, conversationID, newest), nil
}

// AccessResult is the answer of UpdateAccessState.
type AccessResult struct {
	AccessState model.AccessState `json:"access_state"`
	Created     bool              `json:"created"`
}

// UpdateAccessState records a principal's preference for a keyword.
func (e *Engine) UpdateAccessState(ctx context.Context, keyword, principalID, principalType, state, updatedBy string) (*AccessResult, error) {
	a, created, err := e.access.Update(ctx, keyword, principalID, principalType, state, updatedBy)
	if err != nil {
		return nil, err
	}
	return &AccessResult{AccessState: a, Created: created}, nil
}

// LookupAccess returns the current state for (keyword, principal), or nil.
func (e *Engine) LookupAccess(ctx context.Context, keyword, principalID string) (*model.AccessState, error) {
	return e.access.Lookup(ctx, keyword, principalID)
}

// ListAccess returns a keyword's current states and the principal roster.
func (e *Engine) ListAccess(ctx context.Context, keyword string) (access.Listing, error) {
	return e.access.List(ctx, keyword)
}

// GetAllKeywordsAggregated returns one page of keywords across conversations.
func (e *Engine) GetAllKeywordsAggregated(ctx context.Context, sortBy string, limit, offset int) (access.KeywordPage, error) {
	return e.access.AllKeywords(ctx, sortBy, limit, offset)
}

// RegisterPrincipal adds or renames a user or group. Members are added to a
// group; they are ignored for users.
func (e *Engine) RegisterPrincipal(ctx context.Context, id, principalType, displayName string, members []string) (model.Principal, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return model.Principal{}, fmt.Errorf("%w: principal id is empty", model.ErrValidation)
	}
	ptype, err := model.ParsePrincipalType(principalType)
	if err != nil {
		return model.Principal{}, err
	}
	p := model.Principal{ID: id, Type: ptype, DisplayName: strings.TrimSpace(displayName)}
	if err := e.DB.UpsertPrincipal(ctx, p); err != nil {
		return model.Principal{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if ptype == model.PrincipalGroup {
		for _, m := range members {
			if err := e.DB.AddGroupMember(ctx, id, strings.TrimSpace(m)); err != nil {
				return model.Principal{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
			}
		}
	}
	return p, nil
}

// Principals lists registered users and groups.
func (e *Engine) Principals(ctx context.Context) ([]model.Principal, error) {
	ps, err := e.DB.ListPrincipals(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if ps == nil {
		ps = []model.Principal{}
	}
	return ps, nil
}
