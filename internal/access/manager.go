// Package access records per-principal keyword preferences as versioned
// states and aggregates keywords across conversations for management views.
package access

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/logging"
	"github.com/lazypower/resonance/internal/model"
	"github.com/lazypower/resonance/internal/store"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 500
)

// Store is the persistence behind the manager.
type Store interface {
	KeywordExists(ctx context.Context, term string) (bool, error)
	LatestAccessState(ctx context.Context, keyword, principalID string) (*model.AccessState, error)
	AppendAccessState(ctx context.Context, a model.AccessState) (*model.AccessState, bool, error)
	AccessStates(ctx context.Context, keyword string) ([]model.AccessState, error)
	AggregatedKeywords(ctx context.Context, sortBy string, limit, offset int) ([]store.AggregatedKeyword, int, error)
}

// IdentityRegistry resolves principals for display.
type IdentityRegistry interface {
	GetPrincipal(ctx context.Context, id string) (*model.Principal, error)
	ListPrincipals(ctx context.Context) ([]model.Principal, error)
}

// GroupRegistry sizes groups.
type GroupRegistry interface {
	GroupMemberCount(ctx context.Context, groupID string) (int, error)
}

// Entry is a current access state enriched for display.
type Entry struct {
	model.AccessState
	DisplayName string `json:"display_name,omitempty"`
	MemberCount int    `json:"member_count,omitempty"`
}

// RosterEntry is a known principal, marked when it already has a state for
// the listed keyword.
type RosterEntry struct {
	model.Principal
	MemberCount int  `json:"member_count,omitempty"`
	HasState    bool `json:"has_state"`
}

// Listing is every current state of one keyword plus the principal roster.
type Listing struct {
	Keyword    string        `json:"keyword"`
	States     []Entry       `json:"states"`
	Principals []RosterEntry `json:"principals"`
}

// KeywordPage is one page of aggregated keywords.
type KeywordPage struct {
	Keywords   []store.AggregatedKeyword `json:"keywords"`
	TotalCount int                       `json:"total_count"`
	HasMore    bool                      `json:"has_more"`
}

// Manager applies and reads access states.
type Manager struct {
	store      Store
	identities IdentityRegistry
	groups     GroupRegistry
	log        *zap.Logger
	now        func() time.Time
}

// NewManager returns a Manager. identities and groups may be nil, which
// disables enrichment.
func NewManager(s Store, identities IdentityRegistry, groups GroupRegistry, log *zap.Logger) *Manager {
	return &Manager{store: s, identities: identities, groups: groups, log: logging.OrNop(log), now: time.Now}
}

// Update records state for (keyword, principal). The first record for the
// pair reports created; later ones append a version and report false.
func (m *Manager) Update(ctx context.Context, keyword, principalID, principalType, state, updatedBy string) (model.AccessState, bool, error) {
	term := model.NormalizeTerm(keyword)
	if term == "" {
		return model.AccessState{}, false, fmt.Errorf("%w: keyword is empty", model.ErrValidation)
	}
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return model.AccessState{}, false, fmt.Errorf("%w: principal id is empty", model.ErrValidation)
	}
	ptype, err := model.ParsePrincipalType(principalType)
	if err != nil {
		return model.AccessState{}, false, err
	}
	access, err := model.ParseAccess(state)
	if err != nil {
		return model.AccessState{}, false, err
	}
	if err := m.requireKeyword(ctx, term); err != nil {
		return model.AccessState{}, false, err
	}

	stored, created, err := m.store.AppendAccessState(ctx, model.AccessState{
		Keyword:       term,
		PrincipalID:   principalID,
		PrincipalType: ptype,
		State:         access,
		UpdatedAt:     m.now(),
		UpdatedBy:     updatedBy,
	})
	if err != nil {
		return model.AccessState{}, false, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	m.log.Info("access state recorded",
		zap.String("keyword", term), zap.String("principal", principalID),
		zap.String("state", string(access)), zap.Int("version", stored.Version), zap.Bool("created", created))
	return *stored, created, nil
}

// Lookup returns the current state for (keyword, principal). A nil state
// with a nil error means no record exists, which is distinct from a record
// whose state is none.
func (m *Manager) Lookup(ctx context.Context, keyword, principalID string) (*model.AccessState, error) {
	term := model.NormalizeTerm(keyword)
	if term == "" {
		return nil, fmt.Errorf("%w: keyword is empty", model.ErrValidation)
	}
	a, err := m.store.LatestAccessState(ctx, term, strings.TrimSpace(principalID))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	return a, nil
}

// List returns the current states of keyword, enriched with display names
// and group sizes, and the principal roster. Enrichment failures are logged
// and leave the fields empty.
func (m *Manager) List(ctx context.Context, keyword string) (Listing, error) {
	term := model.NormalizeTerm(keyword)
	if term == "" {
		return Listing{}, fmt.Errorf("%w: keyword is empty", model.ErrValidation)
	}
	if err := m.requireKeyword(ctx, term); err != nil {
		return Listing{}, err
	}
	states, err := m.store.AccessStates(ctx, term)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}

	out := Listing{Keyword: term, States: make([]Entry, 0, len(states)), Principals: []RosterEntry{}}
	has := make(map[string]bool, len(states))
	for _, a := range states {
		has[a.PrincipalID] = true
		e := Entry{AccessState: a}
		if p := m.principal(ctx, a.PrincipalID); p != nil {
			e.DisplayName = p.DisplayName
		}
		if a.PrincipalType == model.PrincipalGroup {
			e.MemberCount = m.memberCount(ctx, a.PrincipalID)
		}
		out.States = append(out.States, e)
	}

	if m.identities == nil {
		return out, nil
	}
	roster, err := m.identities.ListPrincipals(ctx)
	if err != nil {
		m.log.Warn("principal roster unavailable", zap.Error(err))
		return out, nil
	}
	for _, p := range roster {
		r := RosterEntry{Principal: p, HasState: has[p.ID]}
		if p.Type == model.PrincipalGroup {
			r.MemberCount = m.memberCount(ctx, p.ID)
		}
		out.Principals = append(out.Principals, r)
	}
	return out, nil
}

// AllKeywords returns one page of keywords aggregated across conversations.
// An empty sortBy sorts by frequency; a zero limit takes the default page
// size.
func (m *Manager) AllKeywords(ctx context.Context, sortBy string, limit, offset int) (KeywordPage, error) {
	if sortBy == "" {
		sortBy = store.SortFrequency
	}
	if !store.ValidKeywordSort(sortBy) {
		return KeywordPage{}, fmt.Errorf("%w: unknown sort %q", model.ErrValidation, sortBy)
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if limit < 1 || limit > MaxPageSize {
		return KeywordPage{}, fmt.Errorf("%w: limit %d outside [1,%d]", model.ErrValidation, limit, MaxPageSize)
	}
	if offset < 0 {
		return KeywordPage{}, fmt.Errorf("%w: negative offset %d", model.ErrValidation, offset)
	}

	keywords, total, err := m.store.AggregatedKeywords(ctx, sortBy, limit, offset)
	if err != nil {
		return KeywordPage{}, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if keywords == nil {
		keywords = []store.AggregatedKeyword{}
	}
	return KeywordPage{Keywords: keywords, TotalCount: total, HasMore: offset+len(keywords) < total}, nil
}

func (m *Manager) requireKeyword(ctx context.Context, term string) error {
	ok, err := m.store.KeywordExists(ctx, term)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	if !ok {
		return fmt.Errorf("%w: keyword %q", model.ErrNotFound, term)
	}
	return nil
}

func (m *Manager) principal(ctx context.Context, id string) *model.Principal {
	if m.identities == nil {
		return nil
	}
	p, err := m.identities.GetPrincipal(ctx, id)
	if err != nil {
		m.log.Warn("principal lookup failed", zap.String("principal", id), zap.Error(err))
		return nil
	}
	return p
}

func (m *Manager) memberCount(ctx context.Context, groupID string) int {
	if m.groups == nil {
		return 0
	}
	n, err := m.groups.GroupMemberCount(ctx, groupID)
	if err != nil {
		m.log.Warn("group size lookup failed", zap.String("group", groupID), zap.Error(err))
		return 0
	}
	return n
}
