package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewKeywordSetCanonical(t *testing.T) {
	a := NewKeywordSet("Pizza", "cooking", "pizza", "  ", "Italian   Food")
	assert.Equal(t, []string{"cooking", "italian food", "pizza"}, a.Terms())

	b := NewKeywordSet("italian food", "pizza", "cooking")
	assert.True(t, a.Equal(b))
}

func TestKeywordSetAlgebra(t *testing.T) {
	cur := NewKeywordSet("pizza", "recipes", "cooking", "italian-food")
	past := NewKeywordSet("cooking", "italian-food", "pasta", "techniques")

	assert.Equal(t, []string{"cooking", "italian-food"}, cur.Intersect(past).Terms())
	assert.Equal(t, 6, cur.Union(past).Len())
	assert.True(t, NewKeywordSet("pasta").SubsetOf(past))
	assert.False(t, cur.SubsetOf(past))
	assert.Equal(t, 0, KeywordSet{}.Intersect(cur).Len())
}

func TestKeywordSetJSON(t *testing.T) {
	data, err := json.Marshal(KeywordSet{})
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))

	var k KeywordSet
	require.NoError(t, json.Unmarshal([]byte(`["b","a","b"]`), &k))
	assert.Equal(t, []string{"a", "b"}, k.Terms())
}

func TestSubjectKeyDeterministic(t *testing.T) {
	k1 := SubjectKey{ConversationID: "conv-1", Keywords: NewKeywordSet("go", "sqlite")}
	k2 := SubjectKey{ConversationID: "conv-1", Keywords: NewKeywordSet("sqlite", "go")}
	assert.Equal(t, k1.ID(), k2.ID())

	other := SubjectKey{ConversationID: "conv-2", Keywords: NewKeywordSet("go", "sqlite")}
	assert.NotEqual(t, k1.ID(), other.ID())

	// length prefixing keeps these apart
	a := SubjectKey{ConversationID: "c", Keywords: NewKeywordSet("ab", "c")}
	b := SubjectKey{ConversationID: "c", Keywords: NewKeywordSet("a", "bc")}
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestLifecycle(t *testing.T) {
	var zero Lifecycle
	assert.Equal(t, StateActive, zero.State())
	assert.False(t, zero.IsArchived())

	succ := uuid.New()
	l := Archived(succ)
	got, ok := l.SupersededBy()
	require.True(t, ok)
	assert.Equal(t, succ, got)

	data, err := json.Marshal(l)
	require.NoError(t, err)
	var back Lifecycle
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, l, back)

	_, err = ParseLifecycle("archived", "not-a-uuid")
	assert.Error(t, err)
	_, err = ParseLifecycle("deleted", "")
	assert.Error(t, err)
}

func TestSubjectObserve(t *testing.T) {
	t0 := time.UnixMilli(1_000_000)
	s := NewSubject(SubjectKey{ConversationID: "c", Keywords: NewKeywordSet("go")}, t0)
	s.Observe(t0.Add(time.Minute))
	s.Observe(t0.Add(-time.Minute))

	assert.Equal(t, 2, s.MessageCount)
	assert.Equal(t, t0.Add(-time.Minute), s.FirstSeen)
	assert.Equal(t, t0.Add(time.Minute), s.LastSeen)
	assert.Equal(t, DefaultConfidence, s.Confidence)
}

func TestParseAccess(t *testing.T) {
	for _, in := range []string{"allow", "DENY", " none "} {
		_, err := ParseAccess(in)
		assert.NoError(t, err, in)
	}
	_, err := ParseAccess("maybe")
	assert.True(t, errors.Is(err, ErrValidation))

	_, err = ParsePrincipalType("robot")
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestProposalConfigValidate(t *testing.T) {
	cfg := DefaultProposalConfig("me")
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*ProposalConfig)
	}{
		{"negative match weight", func(c *ProposalConfig) { c.MatchWeight = -0.1 }},
		{"recency weight above one", func(c *ProposalConfig) { c.RecencyWeight = 1.5 }},
		{"zero window", func(c *ProposalConfig) { c.RecencyWindow = 0 }},
		{"min similarity above one", func(c *ProposalConfig) { c.MinSimilarity = 2 }},
		{"zero max proposals", func(c *ProposalConfig) { c.MaxProposals = 0 }},
		{"no owner", func(c *ProposalConfig) { c.OwnerID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultProposalConfig("me")
			tt.mutate(&c)
			assert.ErrorIs(t, c.Validate(), ErrValidation)
		})
	}
}

func TestMessageEnsureID(t *testing.T) {
	m1 := Message{ConversationID: "c", Role: "user", Content: "hello", CreatedAt: time.UnixMilli(5)}
	m2 := m1
	m1.EnsureID()
	m2.EnsureID()
	assert.NotEmpty(t, m1.ID)
	assert.Equal(t, m1.ID, m2.ID)

	m3 := Message{ID: "given"}
	m3.EnsureID()
	assert.Equal(t, "given", m3.ID)

	assert.ErrorIs(t, Message{ConversationID: "c", Role: "bot"}.Validate(), ErrValidation)
}

func TestAssignIDsKeepsRepeatedTurns(t *testing.T) {
	batch := func() []Message {
		turn := Message{ConversationID: "c", Role: "user", Content: "pizza recipes please"}
		return []Message{turn, turn, {ID: "given", ConversationID: "c", Role: "user", Content: "pizza recipes please"}}
	}
	a := batch()
	AssignIDs(a)
	assert.NotEmpty(t, a[0].ID)
	assert.NotEqual(t, a[0].ID, a[1].ID)
	assert.Equal(t, "given", a[2].ID)

	b := batch()
	AssignIDs(b)
	assert.Equal(t, a, b)

	single := Message{ConversationID: "c", Role: "user", Content: "pizza recipes please"}
	single.EnsureID()
	assert.Equal(t, a[0].ID, single.ID)
}
