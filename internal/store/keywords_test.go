package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

func TestUpsertKeywords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", 1)
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	if err := db.UpsertKeywords(ctx, "c1", []KeywordStat{
		{Term: "pizza", Frequency: 2, Score: 1, FirstSeen: t1, LastSeen: t1},
		{Term: "oven", Frequency: 1, Score: 0.5, FirstSeen: t1, LastSeen: t1},
	}); err != nil {
		t.Fatalf("UpsertKeywords: %v", err)
	}
	if err := db.UpsertKeywords(ctx, "c1", []KeywordStat{
		{Term: "pizza", Frequency: 5, Score: 0.9, FirstSeen: t2, LastSeen: t2},
	}); err != nil {
		t.Fatalf("UpsertKeywords again: %v", err)
	}

	got, err := db.ConversationKeywords(ctx, "c1", 0)
	if err != nil {
		t.Fatalf("ConversationKeywords: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d keywords, want 2", len(got))
	}
	pizza := got[0]
	if pizza.Term != "pizza" || pizza.Frequency != 5 || pizza.Score != 0.9 {
		t.Errorf("pizza = %+v", pizza)
	}
	if !pizza.FirstSeen.Equal(t1) || !pizza.LastSeen.Equal(t2) {
		t.Errorf("pizza seen = %v..%v, want %v..%v", pizza.FirstSeen, pizza.LastSeen, t1, t2)
	}

	top, _ := db.ConversationKeywords(ctx, "c1", 1)
	if len(top) != 1 {
		t.Errorf("limit ignored: %d", len(top))
	}

	ok, err := db.KeywordExists(ctx, "oven")
	if err != nil || !ok {
		t.Errorf("KeywordExists(oven) = %v, %v", ok, err)
	}
	ok, _ = db.KeywordExists(ctx, "sushi")
	if ok {
		t.Error("KeywordExists(sushi) = true")
	}
}

func TestConversationsWithKeyword(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now()
	for i, id := range []string{"a", "b", "c"} {
		seedConversation(t, db, id, 1)
		db.UpsertKeywords(ctx, id, []KeywordStat{{Term: "pizza", Frequency: 1, Score: 1,
			FirstSeen: now, LastSeen: now.Add(time.Duration(i) * time.Minute)}})
	}

	got, err := db.ConversationsWithKeyword(ctx, "pizza", "b", 0)
	if err != nil {
		t.Fatalf("ConversationsWithKeyword: %v", err)
	}
	if len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Errorf("got %v, want [c a]", got)
	}
}

func TestAggregatedKeywords(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	t1 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	seedConversation(t, db, "small", 1)
	seedConversation(t, db, "medium", 3)
	seedConversation(t, db, "large", 6)
	seedConversation(t, db, "huge", 9)

	db.UpsertKeywords(ctx, "small", []KeywordStat{{Term: "pizza", Frequency: 1, Score: 1.0, FirstSeen: t1, LastSeen: t1}})
	db.UpsertKeywords(ctx, "medium", []KeywordStat{{Term: "pizza", Frequency: 3, Score: 0.6, FirstSeen: t1.Add(time.Hour), LastSeen: t1.Add(2 * time.Hour)}})
	db.UpsertKeywords(ctx, "large", []KeywordStat{
		{Term: "pizza", Frequency: 1, Score: 0.2, FirstSeen: t1.Add(time.Hour), LastSeen: t1.Add(3 * time.Hour)},
		{Term: "oven", Frequency: 2, Score: 0.5, FirstSeen: t1, LastSeen: t1},
	})
	db.UpsertKeywords(ctx, "huge", []KeywordStat{{Term: "pizza", Frequency: 5, Score: 0.4, FirstSeen: t1.Add(time.Hour), LastSeen: t1.Add(time.Hour)}})

	// a deny for one principal marks the keyword restricted; a later allow for
	// another principal does not clear it
	db.AppendAccessState(ctx, model.AccessState{Keyword: "pizza", PrincipalID: "u1", PrincipalType: model.PrincipalUser, State: model.AccessDeny})
	db.AppendAccessState(ctx, model.AccessState{Keyword: "pizza", PrincipalID: "u2", PrincipalType: model.PrincipalUser, State: model.AccessAllow})
	// oven was denied and later allowed again: not restricted
	db.AppendAccessState(ctx, model.AccessState{Keyword: "oven", PrincipalID: "u1", PrincipalType: model.PrincipalUser, State: model.AccessDeny})
	db.AppendAccessState(ctx, model.AccessState{Keyword: "oven", PrincipalID: "u1", PrincipalType: model.PrincipalUser, State: model.AccessAllow})

	got, total, err := db.AggregatedKeywords(ctx, SortFrequency, 10, 0)
	if err != nil {
		t.Fatalf("AggregatedKeywords: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("total %d, len %d, want 2, 2", total, len(got))
	}

	pizza := got[0]
	if pizza.Term != "pizza" || pizza.Frequency != 10 {
		t.Errorf("pizza = %+v", pizza)
	}
	// (1×1.0 + 3×0.6 + 1×0.2 + 5×0.4) / 10
	if want := 0.5; pizza.Score < want-1e-9 || pizza.Score > want+1e-9 {
		t.Errorf("pizza score = %v, want %v", pizza.Score, want)
	}
	if !pizza.FirstSeen.Equal(t1) || !pizza.LastSeen.Equal(t1.Add(3*time.Hour)) {
		t.Errorf("pizza seen = %v..%v", pizza.FirstSeen, pizza.LastSeen)
	}
	if pizza.ConversationCount != 4 {
		t.Errorf("ConversationCount = %d, want 4", pizza.ConversationCount)
	}
	wantTop := []string{"huge", "large", "medium"}
	if len(pizza.TopConversations) != 3 {
		t.Fatalf("TopConversations = %+v", pizza.TopConversations)
	}
	for i, id := range wantTop {
		if pizza.TopConversations[i].ConversationID != id {
			t.Errorf("TopConversations[%d] = %s, want %s", i, pizza.TopConversations[i].ConversationID, id)
		}
	}
	if !pizza.HasRestrictions {
		t.Error("pizza should be restricted")
	}
	if got[1].HasRestrictions {
		t.Error("oven should not be restricted after allow")
	}

	page, total, err := db.AggregatedKeywords(ctx, SortTerm, 1, 1)
	if err != nil {
		t.Fatalf("AggregatedKeywords page: %v", err)
	}
	if total != 2 || len(page) != 1 || page[0].Term != "pizza" {
		t.Errorf("page = %+v (total %d)", page, total)
	}

	empty, _, err := db.AggregatedKeywords(ctx, SortScore, 10, 5)
	if err != nil || len(empty) != 0 {
		t.Errorf("past the end = %+v, %v", empty, err)
	}
}

func TestAggregatedKeywordsUnknownSort(t *testing.T) {
	db := testDB(t)
	_, _, err := db.AggregatedKeywords(context.Background(), "popularity", 10, 0)
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("err = %v, want ErrValidation", err)
	}
}
