package subject

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/resonance/internal/keyword"
	"github.com/lazypower/resonance/internal/llm"
	"github.com/lazypower/resonance/internal/model"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func pizzaMessages() []model.Message {
	texts := []string{"pizza dough", "pizza dough oven", "pizza basil", "oven basil"}
	msgs := make([]model.Message, len(texts))
	for i, text := range texts {
		msgs[i] = model.Message{
			ConversationID: "c1",
			Role:           "user",
			Content:        text,
			CreatedAt:      t0.Add(time.Duration(i) * time.Minute),
		}
	}
	return msgs
}

func keywordStrings(subjects []model.Subject) []string {
	out := make([]string, len(subjects))
	for i, s := range subjects {
		out[i] = s.Keywords.String()
	}
	return out
}

func findSubject(t *testing.T, subjects []model.Subject, terms ...string) model.Subject {
	t.Helper()
	want := model.NewKeywordSet(terms...)
	for _, s := range subjects {
		if s.Keywords.Equal(want) {
			return s
		}
	}
	t.Fatalf("no subject with keywords %v", want)
	return model.Subject{}
}

func TestIdentifyClustersByCooccurrence(t *testing.T) {
	id := New(nil, Config{}, nil, nil)
	res, err := id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)

	want := []string{"pizza", "basil", "dough", "dough, pizza", "oven"}
	if diff := cmp.Diff(want, keywordStrings(res.Subjects)); diff != "" {
		t.Errorf("subjects mismatch (-want +got):\n%s", diff)
	}

	pizza := findSubject(t, res.Subjects, "pizza")
	assert.Equal(t, 3, pizza.MessageCount)
	assert.Equal(t, t0, pizza.FirstSeen)
	assert.Equal(t, t0.Add(2*time.Minute), pizza.LastSeen)
	assert.Equal(t, model.DefaultConfidence, pizza.Confidence)
	assert.Empty(t, pizza.Description)
	assert.False(t, pizza.Lifecycle.IsArchived())

	pair := findSubject(t, res.Subjects, "pizza", "dough")
	assert.Equal(t, 2, pair.MessageCount)

	assert.Equal(t, "pizza", res.Keywords[0].Term)
	assert.Equal(t, 3, res.Keywords[0].Frequency)
}

func TestIdentifyIsDeterministic(t *testing.T) {
	id := New(keyword.NewExtractor(10), Config{}, nil, nil)
	first, err := id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)
	second, err := id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)

	require.Len(t, second.Subjects, len(first.Subjects))
	seen := make(map[uuid.UUID]bool)
	for i := range first.Subjects {
		assert.Equal(t, first.Subjects[i].ID, second.Subjects[i].ID)
		assert.False(t, seen[first.Subjects[i].ID], "duplicate subject %s", first.Subjects[i].ID)
		seen[first.Subjects[i].ID] = true

		key := model.SubjectKey{ConversationID: "c1", Keywords: first.Subjects[i].Keywords}
		assert.Equal(t, key.ID(), first.Subjects[i].ID)
	}

	// same keywords in another conversation is another subject
	other, err := id.Identify(context.Background(), "c2", pizzaMessages())
	require.NoError(t, err)
	assert.NotEqual(t, first.Subjects[0].ID, other.Subjects[0].ID)
}

func TestIdentifySignificanceFilter(t *testing.T) {
	id := New(nil, Config{MinMessageCount: 1}, nil, nil)
	res, err := id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)
	// 4 singletons and 5 distinct pairs
	assert.Len(t, res.Subjects, 9)

	id = New(nil, Config{MinMessageCount: 3}, nil, nil)
	res, err = id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)
	assert.Equal(t, []string{"pizza"}, keywordStrings(res.Subjects))
	// three supporting messages, the first included
	assert.Equal(t, 3, res.Subjects[0].MessageCount)
}

func TestIdentifyEdgeCases(t *testing.T) {
	id := New(nil, Config{}, nil, nil)

	_, err := id.Identify(context.Background(), " ", pizzaMessages())
	assert.ErrorIs(t, err, model.ErrValidation)

	res, err := id.Identify(context.Background(), "c1", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Subjects)
	assert.Empty(t, res.Keywords)

	res, err = id.Identify(context.Background(), "c1", []model.Message{{Content: "the and of it"}})
	require.NoError(t, err)
	assert.Empty(t, res.Subjects)
}

func TestIdentifyHonorsCancellation(t *testing.T) {
	id := New(nil, Config{BatchSize: 1}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := id.Identify(ctx, "c1", pizzaMessages())
	assert.ErrorIs(t, err, context.Canceled)
}

type fakeDescriber struct {
	fail map[string]bool
}

func (f fakeDescriber) Describe(_ context.Context, s model.Subject, excerpt string) (string, float64, error) {
	if f.fail[s.Keywords.String()] {
		return "", 0, errors.New("generation failed")
	}
	if excerpt == "" {
		return "", 0, errors.New("empty excerpt")
	}
	return "About " + s.Keywords.String(), 0.9, nil
}

func TestIdentifyDescriberFailureKeepsDefaults(t *testing.T) {
	id := New(nil, Config{}, fakeDescriber{fail: map[string]bool{"oven": true}}, nil)
	res, err := id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)

	pizza := findSubject(t, res.Subjects, "pizza")
	assert.Equal(t, "About pizza", pizza.Description)
	assert.Equal(t, 0.9, pizza.Confidence)

	oven := findSubject(t, res.Subjects, "oven")
	assert.Empty(t, oven.Description)
	assert.Equal(t, model.DefaultConfidence, oven.Confidence)
}

func TestLLMDescriber(t *testing.T) {
	s := model.NewSubject(model.SubjectKey{ConversationID: "c1", Keywords: model.NewKeywordSet("pizza")}, t0)

	mock := llm.Reply("```json\n{\"description\": \"Baking pizza at home\", \"confidence\": 0.85}\n```")
	desc, conf, err := LLMDescriber{Client: mock}.Describe(context.Background(), s, "[user]: pizza dough")
	require.NoError(t, err)
	assert.Equal(t, "Baking pizza at home", desc)
	assert.Equal(t, 0.85, conf)
	require.Equal(t, 1, mock.Calls())
	assert.Contains(t, mock.Requests[0].Messages[1].Content, "pizza")

	_, _, err = LLMDescriber{Client: llm.Reply("I think it is about pizza")}.Describe(context.Background(), s, "")
	assert.ErrorIs(t, err, model.ErrExternal)

	_, _, err = LLMDescriber{Client: &llm.MockClient{Err: errors.New("boom")}}.Describe(context.Background(), s, "")
	assert.ErrorIs(t, err, model.ErrExternal)
}

func TestCombinations(t *testing.T) {
	got := combinations([]string{"basil", "dough", "pizza"})
	want := [][]string{
		{"basil"}, {"basil", "dough"}, {"basil", "pizza"},
		{"dough"}, {"dough", "pizza"},
		{"pizza"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("combinations mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, combinations(nil))
}

func TestContainedTermsUsesTokenMembership(t *testing.T) {
	terms := map[string]bool{"pizza": true, "oven": true}
	assert.Equal(t, []string{"oven", "pizza"}, containedTerms("An OVEN for pizza.", terms))
	// substring of a longer token does not count
	assert.Empty(t, containedTerms("pizzas in ovens", terms))
}

func subjectOf(conv string, count int, seen time.Time, terms ...string) model.Subject {
	s := model.NewSubject(model.SubjectKey{ConversationID: conv, Keywords: model.NewKeywordSet(terms...)}, seen)
	s.MessageCount = count
	return s
}

func TestMerge(t *testing.T) {
	a := subjectOf("c1", 3, t0, "pizza")
	a.Description = "Pizza"
	b := subjectOf("c1", 2, t0.Add(-time.Hour), "dough")
	b.LastSeen = t0.Add(time.Hour)

	merged, archived, err := Merge(a, b)
	require.NoError(t, err)
	assert.True(t, merged.Keywords.Equal(model.NewKeywordSet("pizza", "dough")))
	assert.Equal(t, model.SubjectKey{ConversationID: "c1", Keywords: merged.Keywords}.ID(), merged.ID)
	assert.Equal(t, 3, merged.MessageCount)
	assert.Equal(t, t0.Add(-time.Hour), merged.FirstSeen)
	assert.Equal(t, t0.Add(time.Hour), merged.LastSeen)
	assert.Equal(t, "Pizza", merged.Description)

	require.Len(t, archived, 2)
	for _, s := range archived {
		succ, ok := s.Lifecycle.SupersededBy()
		assert.True(t, ok)
		assert.Equal(t, merged.ID, succ)
	}
}

func TestMergeIntoSuperset(t *testing.T) {
	single := subjectOf("c1", 3, t0, "pizza")
	pair := subjectOf("c1", 2, t0, "pizza", "dough")
	pair.Description = "Dough for pizza"

	merged, archived, err := Merge(single, pair)
	require.NoError(t, err)
	assert.Equal(t, pair.ID, merged.ID)
	assert.Equal(t, "Dough for pizza", merged.Description)
	require.Len(t, archived, 1)
	assert.Equal(t, single.ID, archived[0].ID)
}

func TestMergeRejects(t *testing.T) {
	a := subjectOf("c1", 1, t0, "pizza")
	_, _, err := Merge(a, subjectOf("c2", 1, t0, "dough"))
	assert.ErrorIs(t, err, model.ErrValidation)
	_, _, err = Merge(a, a)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestConsolidate(t *testing.T) {
	id := New(nil, Config{}, nil, nil)
	res, err := id.Identify(context.Background(), "c1", pizzaMessages())
	require.NoError(t, err)

	kept, archived := Consolidate(res.Subjects)
	assert.Equal(t, []string{"pizza", "basil", "dough, pizza", "oven"}, keywordStrings(kept))
	require.Len(t, archived, 1)
	assert.Equal(t, "dough", archived[0].Keywords.String())
	succ, ok := archived[0].Lifecycle.SupersededBy()
	require.True(t, ok)
	assert.Equal(t, findSubject(t, res.Subjects, "dough", "pizza").ID, succ)
}

func TestSortByActivity(t *testing.T) {
	subjects := []model.Subject{
		subjectOf("c1", 1, t0, "zeta"),
		subjectOf("c1", 4, t0, "beta"),
		subjectOf("c1", 1, t0, "alpha"),
	}
	SortByActivity(subjects)
	assert.Equal(t, []string{"beta", "alpha", "zeta"}, keywordStrings(subjects))
}

func TestPolicy(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
		unseen    int
		force     bool
		want      bool
	}{
		{"nothing new", 1, 0, false, false},
		{"one new at threshold one", 1, 1, false, true},
		{"below threshold", 5, 4, false, false},
		{"at threshold", 5, 5, false, true},
		{"zero threshold acts as one", 0, 0, false, false},
		{"zero threshold one new", 0, 1, false, true},
		{"force", 5, 0, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Policy{Threshold: tt.threshold}.ShouldAnalyze(tt.unseen, tt.force)
			if got != tt.want {
				t.Errorf("ShouldAnalyze(%d, %v) = %v, want %v", tt.unseen, tt.force, got, tt.want)
			}
		})
	}
}
