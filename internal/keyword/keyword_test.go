package keyword

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lazypower/resonance/internal/llm"
)

func TestTokens(t *testing.T) {
	got := Tokens("Don't PANIC: pizza-dough, 42 times!")
	want := []string{"dont", "panic", "pizza", "dough", "42", "times"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestPassesQuality(t *testing.T) {
	tests := []struct {
		term string
		want bool
	}{
		{"pizza", true},
		{"recipes", true},
		{"kubernetes", true},
		{"café", true},
		{"cat", false},       // too short
		{"would", false},     // stop word
		{"because", false},   // stop word
		{"2024", false},      // numeric
		{"brrrr", false},     // repeat run
		{"zzzzzz", false},    // repeat run
		{"myths", true},      // y counts as a vowel
		{"rhythm", false},    // consonant heavy
		{"tsktsk", false},    // no vowel
		{"strengths", false}, // consonant heavy
		{"talking", false},   // generic
		{"examples", false},  // generic
		{"messages", false},  // generic
		{"thanks", false},    // stop word
		{"assistant", false}, // generic
		{"mornings", false},  // generic
		{"testing", false},   // generic
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			if got := passesQuality(tt.term); got != tt.want {
				t.Errorf("passesQuality(%q) = %v, want %v", tt.term, got, tt.want)
			}
		})
	}
}

func TestStopWordListIsExtensive(t *testing.T) {
	assert.Greater(t, len(stopWords), 300)
	assert.True(t, IsStopWord("the"))
	assert.False(t, IsStopWord("pizza"))
}

func TestExtractRanksByFrequency(t *testing.T) {
	text := "Pizza dough needs flour. Pizza sauce needs tomatoes. Pizza ovens and flour."
	got := Extract(text, 0)
	want := []string{"pizza", "flour", "dough", "sauce", "tomatoes", "ovens"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Extract mismatch (-want +got):\n%s", diff)
	}

	ranked := Rank(text, 2)
	require.Len(t, ranked, 2)
	assert.Equal(t, 3, ranked[0].Frequency)
	assert.InDelta(t, 1.0, ranked[0].Score, 1e-9)
	assert.InDelta(t, 2.0/3.0, ranked[1].Score, 1e-9)
}

func TestExtractIdempotent(t *testing.T) {
	text := "Kubernetes operators reconcile custom resources; operators watch resources."
	first := Extract(text, 10)
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(first, Extract(text, 10)); diff != "" {
			t.Fatalf("run %d differs:\n%s", i, diff)
		}
	}
}

func TestExtractEmpty(t *testing.T) {
	for _, text := range []string{"", "   ", "the and of it", "1234 5678", "!!!"} {
		assert.Empty(t, Extract(text, 10), "text %q", text)
	}
}

func TestExtractCapsDefault(t *testing.T) {
	words := []string{"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
		"india", "juliet", "kilo", "lima", "mike", "november", "oscar", "papa", "quebec", "romeo"}
	got := Extract(strings.Join(words, " "), 0)
	assert.Len(t, got, DefaultMax)
	assert.Equal(t, "alpha", got[0])
}

func TestExtractBatchTFIDF(t *testing.T) {
	texts := []string{
		"golang channels and golang goroutines",
		"golang modules",
		"python packaging",
	}
	got := ExtractBatch(texts, 10)
	require.NotEmpty(t, got)

	byTerm := map[string]Candidate{}
	for _, c := range got {
		byTerm[c.Term] = c
		assert.GreaterOrEqual(t, c.Score, 0.0)
		assert.LessOrEqual(t, c.Score, 1.0)
	}
	// golang: tf 3 × log(3/2); channels: tf 1 × log(3)
	assert.Equal(t, 2, byTerm["golang"].DocFrequency)
	assert.Equal(t, 3, byTerm["golang"].Frequency)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "golang", got[0].Term)
	assert.Greater(t, byTerm["golang"].Score, byTerm["channels"].Score)
}

func TestExtractBatchSingleDocumentFallsBackToFrequency(t *testing.T) {
	got := ExtractBatch([]string{"pizza pizza pasta"}, 5)
	require.Len(t, got, 2)
	assert.Equal(t, "pizza", got[0].Term)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.InDelta(t, 0.5, got[1].Score, 1e-9)
}

func TestExtractBatchManyTexts(t *testing.T) {
	texts := make([]string, 35)
	for i := range texts {
		texts[i] = "shared vocabulary"
	}
	texts[34] = "shared vocabulary unusual"
	got := ExtractBatch(texts, 3)
	require.NotEmpty(t, got)
	assert.Equal(t, "unusual", got[0].Term)
}

func TestAggregateSumsFrequency(t *testing.T) {
	got := Aggregate([][]Candidate{
		Rank("pizza pasta", 5),
		Rank("pizza pizza oven", 5),
	}, 5)
	want := []string{"pizza", "pasta", "oven"}
	if diff := cmp.Diff(want, Terms(got)); diff != "" {
		t.Errorf("Aggregate mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, got[0].Frequency)
	assert.Equal(t, 2, got[0].DocFrequency)
}

func TestMergeIncremental(t *testing.T) {
	previous := []Candidate{
		{Term: "pizza", Frequency: 4, Score: 1.0},
		{Term: "oven", Frequency: 1, Score: 0.25},
	}
	fresh := []Candidate{
		{Term: "pizza", Frequency: 1, Score: 1.0},
		{Term: "dough", Frequency: 1, Score: 1.0},
	}
	got := MergeIncremental(previous, fresh, 3)
	// pizza 1.0+0.25+1.0, oven 0.25+0.25, dough 0.5; ties keep first-seen order
	want := []string{"pizza", "oven", "dough"}
	if diff := cmp.Diff(want, Terms(got)); diff != "" {
		t.Errorf("MergeIncremental mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 5, got[0].Frequency)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)

	truncated := MergeIncremental(previous, fresh, 1)
	assert.Equal(t, []string{"pizza"}, Terms(truncated))
	assert.Empty(t, MergeIncremental(nil, nil, 5))
}

func TestExtractorCache(t *testing.T) {
	e := NewExtractor(2)
	a := "sourdough starter hydration"
	b := "espresso grinder calibration"
	c := "mountain bike suspension"

	first := e.Extract(a, 5)
	assert.Equal(t, first, e.Extract(a, 5))
	assert.Equal(t, CacheStats{Hits: 1, Misses: 1, Entries: 1}, e.Stats())

	e.Extract(b, 5)
	e.Extract(a, 5) // a becomes most recently used
	e.Extract(c, 5) // evicts b
	stats := e.Stats()
	assert.Equal(t, 2, stats.Entries)

	e.Extract(b, 5)
	assert.Equal(t, stats.Misses+1, e.Stats().Misses, "b should have been evicted")
}

func TestExtractorKeyIncludesMax(t *testing.T) {
	e := NewExtractor(10)
	text := "alpha bravo charlie delta"
	assert.Len(t, e.Extract(text, 2), 2)
	assert.Len(t, e.Extract(text, 4), 4)
	assert.Equal(t, uint64(2), e.Stats().Misses)
}

func TestExtractorLongTextsSharingPrefix(t *testing.T) {
	e := NewExtractor(10)
	prefix := strings.Repeat("lasagna ", 64)
	assert.NotEqual(t, e.Extract(prefix+"ricotta", 5), e.Extract(prefix+"ricotta mozzarella", 5))
}

func TestExtractorForget(t *testing.T) {
	e := NewExtractor(10)
	e.Extract("sourdough starter", 5)
	e.Extract("sourdough starter", 3)
	e.Extract("espresso grinder", 5)

	assert.Equal(t, 2, e.Forget("sourdough starter"))
	assert.Equal(t, 1, e.Stats().Entries)
	assert.Equal(t, 0, e.Forget())
}

func TestExtractorReturnsCopies(t *testing.T) {
	e := NewExtractor(10)
	got := e.Rank("sourdough starter", 5)
	got[0].Term = "mutated"
	assert.Equal(t, "sourdough", e.Rank("sourdough starter", 5)[0].Term)
}

func TestExtractorConcurrent(t *testing.T) {
	e := NewExtractor(4)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			texts := []string{"sourdough starter", "espresso grinder", "mountain bike", "garden soil", "piano chords"}
			for j := 0; j < 50; j++ {
				e.Extract(texts[(i+j)%len(texts)], 5)
			}
		}(i)
	}
	wg.Wait()
	stats := e.Stats()
	assert.Equal(t, uint64(16*50), stats.Hits+stats.Misses)
	assert.LessOrEqual(t, stats.Entries, 4)
}

func TestSuggest(t *testing.T) {
	ctx := context.Background()
	text := "We baked pizza with sourdough and talked about ovens."

	tests := []struct {
		name     string
		client   llm.Client
		wantTier llm.Tier
		want     []string
	}{
		{"nil client", nil, llm.TierHeuristic, Extract(text, 5)},
		{"strict", llm.Reply(`["Pizza", "Sourdough", "wood ovens", "pizza", "the"]`), llm.TierStrict,
			[]string{"pizza", "sourdough", "wood ovens"}},
		{"lenient", llm.Reply("pizza, sourdough"), llm.TierLenient, []string{"pizza", "sourdough"}},
		{"garbage", llm.Reply("  "), llm.TierHeuristic, Extract(text, 5)},
		{"only stop words", llm.Reply(`["the", "would"]`), llm.TierHeuristic, Extract(text, 5)},
		{"error", &llm.MockClient{Err: errors.New("rate limited")}, llm.TierHeuristic, Extract(text, 5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, tier := Suggest(ctx, tt.client, text, 5, nil)
			assert.Equal(t, tt.wantTier, tier)
			assert.Equal(t, tt.want, got)
		})
	}
}
