package model

import (
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// Keyword is a normalized term with frequency and score metadata.
type Keyword struct {
	Term          string    `json:"term"`
	Frequency     int       `json:"frequency"`
	Score         float64   `json:"score"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	Conversations []string  `json:"conversations,omitempty"`
}

// NormalizeTerm lowercases a term and collapses internal whitespace.
func NormalizeTerm(term string) string {
	return strings.Join(strings.Fields(strings.ToLower(term)), " ")
}

// KeywordSet is a sorted, de-duplicated, immutable set of normalized terms.
// The zero value is the empty set.
type KeywordSet struct {
	terms []string
}

// NewKeywordSet normalizes, sorts and de-duplicates terms. Empty terms are dropped.
func NewKeywordSet(terms ...string) KeywordSet {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = NormalizeTerm(t)
		if t != "" {
			out = append(out, t)
		}
	}
	slices.Sort(out)
	return KeywordSet{terms: slices.Compact(out)}
}

// Terms returns a copy of the sorted terms.
func (k KeywordSet) Terms() []string {
	return slices.Clone(k.terms)
}

func (k KeywordSet) Len() int { return len(k.terms) }

func (k KeywordSet) Contains(term string) bool {
	_, ok := slices.BinarySearch(k.terms, term)
	return ok
}

// Equal reports whether both sets hold exactly the same terms.
func (k KeywordSet) Equal(o KeywordSet) bool {
	return slices.Equal(k.terms, o.terms)
}

// SubsetOf reports whether every term of k is in o.
func (k KeywordSet) SubsetOf(o KeywordSet) bool {
	for _, t := range k.terms {
		if !o.Contains(t) {
			return false
		}
	}
	return true
}

// Intersect returns the terms present in both sets.
func (k KeywordSet) Intersect(o KeywordSet) KeywordSet {
	var out []string
	i, j := 0, 0
	for i < len(k.terms) && j < len(o.terms) {
		switch strings.Compare(k.terms[i], o.terms[j]) {
		case 0:
			out = append(out, k.terms[i])
			i++
			j++
		case -1:
			i++
		default:
			j++
		}
	}
	return KeywordSet{terms: out}
}

// Union returns the terms present in either set.
func (k KeywordSet) Union(o KeywordSet) KeywordSet {
	out := make([]string, 0, len(k.terms)+len(o.terms))
	out = append(out, k.terms...)
	out = append(out, o.terms...)
	slices.Sort(out)
	return KeywordSet{terms: slices.Compact(out)}
}

func (k KeywordSet) String() string {
	return strings.Join(k.terms, ", ")
}

func (k KeywordSet) MarshalJSON() ([]byte, error) {
	if k.terms == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(k.terms)
}

func (k *KeywordSet) UnmarshalJSON(data []byte) error {
	var terms []string
	if err := json.Unmarshal(data, &terms); err != nil {
		return err
	}
	*k = NewKeywordSet(terms...)
	return nil
}
