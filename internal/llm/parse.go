package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// Tier records which stage of the parse chain produced a result.
type Tier int

const (
	TierFailed Tier = iota
	TierStrict
	TierLenient
	TierHeuristic
)

func (t Tier) String() string {
	switch t {
	case TierStrict:
		return "strict"
	case TierLenient:
		return "lenient"
	case TierHeuristic:
		return "heuristic"
	}
	return "failed"
}

// StripFences removes a surrounding markdown code fence, if any.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseStringList decodes a list of strings out of model output. The strict
// tier requires the whole (fence-stripped) output to be a JSON array of
// strings; the lenient tier splits on commas, newlines and semicolons after
// removing brackets, quotes and list markers. It returns TierFailed when
// neither yields an entry.
func ParseStringList(raw string) ([]string, Tier) {
	body := StripFences(raw)
	if body == "" {
		return nil, TierFailed
	}

	var strict []string
	if err := json.Unmarshal([]byte(body), &strict); err == nil {
		if out := cleanList(strict); len(out) > 0 {
			return out, TierStrict
		}
		return nil, TierFailed
	}

	body = strings.Trim(body, "[]")
	fields := strings.FieldsFunc(body, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})
	for i, f := range fields {
		f = strings.TrimSpace(f)
		f = strings.TrimLeft(f, "-*•0123456789.) ")
		fields[i] = strings.Trim(f, "\"'` ")
	}
	if out := cleanList(fields); len(out) > 0 {
		return out, TierLenient
	}
	return nil, TierFailed
}

func cleanList(items []string) []string {
	var out []string
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" && len(it) <= 64 {
			out = append(out, it)
		}
	}
	return out
}

// SubjectDescription is the schema of a subject labelling answer.
type SubjectDescription struct {
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// ParseSubjectDescription strictly decodes a SubjectDescription: unknown
// fields, an empty description and a confidence outside [0,1] are rejected.
func ParseSubjectDescription(raw string) (SubjectDescription, error) {
	var d SubjectDescription
	dec := json.NewDecoder(strings.NewReader(StripFences(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&d); err != nil {
		return SubjectDescription{}, fmt.Errorf("decode subject description: %w", err)
	}
	d.Description = strings.TrimSpace(d.Description)
	if d.Description == "" {
		return SubjectDescription{}, fmt.Errorf("subject description is empty")
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return SubjectDescription{}, fmt.Errorf("subject confidence %v outside [0,1]", d.Confidence)
	}
	return d, nil
}

// Truncate cuts s to at most maxLen bytes at the last word boundary, so model
// output never ends mid-word.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}

	cut := maxLen
	// back up to a rune boundary
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	truncated := s[:cut]
	if idx := strings.LastIndexFunc(truncated, unicode.IsSpace); idx > cut-200 {
		truncated = truncated[:idx]
	}
	return strings.TrimSpace(truncated)
}
