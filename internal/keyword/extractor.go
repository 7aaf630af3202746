// Package keyword turns free text into ranked candidate keywords.
package keyword

import (
	"math"
	"runtime"
	"sort"
	"strings"
	"unicode"
)

// DefaultMax is the default cap on returned keywords.
const DefaultMax = 15

// batchYield is how many texts a batch operation processes before yielding.
const batchYield = 10

// persistenceBonus is added to the score of a term that survives an
// incremental merge.
const persistenceBonus = 0.25

// Candidate is a ranked keyword.
type Candidate struct {
	Term         string  `json:"term"`
	Frequency    int     `json:"frequency"`
	DocFrequency int     `json:"doc_frequency,omitempty"`
	Score        float64 `json:"score"`
}

// Tokens lowercases text, turns every non letter/digit into a separator and
// splits on whitespace. Apostrophes are dropped so contractions collapse
// ("don't" -> "dont").
func Tokens(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

// candidates returns the tokens of text that pass every gate, in order.
func candidates(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if passesQuality(tok) {
			out = append(out, tok)
		}
	}
	return out
}

type tally struct {
	term  string
	count int
	docs  int
	first int
	score float64
}

// Rank returns up to max candidates of text ordered by frequency, ties kept in
// first-seen order. Score is the frequency relative to the top term.
func Rank(text string, max int) []Candidate {
	if max <= 0 {
		max = DefaultMax
	}
	index := make(map[string]*tally)
	var order []*tally
	for _, tok := range candidates(text) {
		t, ok := index[tok]
		if !ok {
			t = &tally{term: tok, first: len(order), docs: 1}
			index[tok] = t
			order = append(order, t)
		}
		t.count++
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].count > order[j].count })
	if len(order) > max {
		order = order[:max]
	}

	top := float64(order[0].count)
	out := make([]Candidate, len(order))
	for i, t := range order {
		out[i] = Candidate{Term: t.term, Frequency: t.count, DocFrequency: 1, Score: float64(t.count) / top}
	}
	return out
}

// Extract returns up to max keywords of text. Empty or keyword-free text
// yields an empty list.
func Extract(text string, max int) []string {
	return Terms(Rank(text, max))
}

// Terms projects candidates onto their terms.
func Terms(cs []Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Term
	}
	return out
}

// ExtractBatch scores terms across texts by term frequency times
// log(totalDocuments / documentFrequency). Scores are normalized to [0,1];
// when every raw score is zero (a single document, or terms present in all of
// them) the normalized frequency is used instead.
func ExtractBatch(texts []string, max int) []Candidate {
	if max <= 0 {
		max = DefaultMax
	}
	index := make(map[string]*tally)
	var order []*tally
	docs := 0
	for i, text := range texts {
		if i > 0 && i%batchYield == 0 {
			runtime.Gosched()
		}
		toks := candidates(text)
		if len(toks) == 0 {
			continue
		}
		docs++
		seen := make(map[string]bool, len(toks))
		for _, tok := range toks {
			t, ok := index[tok]
			if !ok {
				t = &tally{term: tok, first: len(order)}
				index[tok] = t
				order = append(order, t)
			}
			t.count++
			if !seen[tok] {
				seen[tok] = true
				t.docs++
			}
		}
	}
	if len(order) == 0 {
		return nil
	}

	maxRaw, maxCount := 0.0, 0
	for _, t := range order {
		t.score = float64(t.count) * math.Log(float64(docs)/float64(t.docs))
		maxRaw = math.Max(maxRaw, t.score)
		if t.count > maxCount {
			maxCount = t.count
		}
	}
	for _, t := range order {
		if maxRaw > 0 {
			t.score /= maxRaw
		} else {
			t.score = float64(t.count) / float64(maxCount)
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].score != order[j].score {
			return order[i].score > order[j].score
		}
		return order[i].count > order[j].count
	})
	if len(order) > max {
		order = order[:max]
	}

	out := make([]Candidate, len(order))
	for i, t := range order {
		out[i] = Candidate{Term: t.term, Frequency: t.count, DocFrequency: t.docs, Score: t.score}
	}
	return out
}

// Aggregate folds per-text rankings into one ranking by summed frequency,
// ties kept in first-seen order. DocFrequency counts the texts a term appeared
// in; Score is relative to the top term.
func Aggregate(ranked [][]Candidate, max int) []Candidate {
	if max <= 0 {
		max = DefaultMax
	}
	index := make(map[string]*tally)
	var order []*tally
	for i, cs := range ranked {
		if i > 0 && i%batchYield == 0 {
			runtime.Gosched()
		}
		for _, c := range cs {
			t, ok := index[c.Term]
			if !ok {
				t = &tally{term: c.Term, first: len(order)}
				index[c.Term] = t
				order = append(order, t)
			}
			t.count += c.Frequency
			t.docs++
		}
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].count > order[j].count })
	if len(order) > max {
		order = order[:max]
	}
	top := float64(order[0].count)
	out := make([]Candidate, len(order))
	for i, t := range order {
		out[i] = Candidate{Term: t.term, Frequency: t.count, DocFrequency: t.docs, Score: float64(t.count) / top}
	}
	return out
}

// MergeIncremental combines a previously retained top-N list with freshly
// extracted keywords without re-scanning the source text. Retained terms keep
// their score plus a persistence bonus; fresh terms score by rank position.
// The result is re-ranked, normalized to [0,1] and truncated to max.
func MergeIncremental(previous, fresh []Candidate, max int) []Candidate {
	if max <= 0 {
		max = DefaultMax
	}
	index := make(map[string]*tally)
	var order []*tally
	get := func(term string) *tally {
		t, ok := index[term]
		if !ok {
			t = &tally{term: term, first: len(order)}
			index[term] = t
			order = append(order, t)
		}
		return t
	}

	for _, c := range previous {
		t := get(c.Term)
		t.score += c.Score + persistenceBonus
		t.count += c.Frequency
	}
	for i, c := range fresh {
		t := get(c.Term)
		t.score += 1 - float64(i)/float64(len(fresh))
		t.count += c.Frequency
	}
	if len(order) == 0 {
		return nil
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i].score > order[j].score })
	if len(order) > max {
		order = order[:max]
	}
	top := order[0].score
	out := make([]Candidate, len(order))
	for i, t := range order {
		score := 0.0
		if top > 0 {
			score = t.score / top
		}
		out[i] = Candidate{Term: t.term, Frequency: t.count, Score: score}
	}
	return out
}
