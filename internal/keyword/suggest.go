package keyword

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lazypower/resonance/internal/llm"
	"github.com/lazypower/resonance/internal/logging"
)

// Suggest asks the text-generation capability for keywords and parses the
// answer through the strict, lenient and heuristic tiers in turn. Model terms
// are normalized and pass the same quality gate as local extraction. A nil
// client, a failed call or an unusable answer falls back to Extract; Suggest
// never fails.
func Suggest(ctx context.Context, client llm.Client, text string, max int, log *zap.Logger) ([]string, llm.Tier) {
	log = logging.OrNop(log)
	if max <= 0 {
		max = DefaultMax
	}
	if client == nil {
		return Extract(text, max), llm.TierHeuristic
	}

	resp, err := client.Complete(ctx, llm.KeywordPrompt(text, max))
	if err != nil {
		log.Warn("keyword suggestion failed, using local extraction", zap.Error(err))
		return Extract(text, max), llm.TierHeuristic
	}

	terms, tier := llm.ParseStringList(resp.Content)
	switch tier {
	case llm.TierStrict:
		log.Debug("keyword suggestion parsed", zap.Stringer("tier", tier), zap.Int("terms", len(terms)))
	case llm.TierLenient:
		log.Info("keyword suggestion was not a JSON array, split on delimiters",
			zap.Stringer("tier", tier), zap.Int("terms", len(terms)))
	default:
		log.Warn("keyword suggestion unparseable, using local extraction",
			zap.String("provider", resp.Provider), zap.Int("bytes", len(resp.Content)))
		return Extract(text, max), llm.TierHeuristic
	}

	out := make([]string, 0, max)
	seen := make(map[string]bool)
	for _, t := range terms {
		t = normalizeSuggested(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == max {
			break
		}
	}
	if len(out) == 0 {
		log.Warn("keyword suggestion had no usable terms, using local extraction",
			zap.Stringer("tier", tier), zap.Int("raw", len(terms)))
		return Extract(text, max), llm.TierHeuristic
	}
	return out, tier
}

// normalizeSuggested lowercases a model term and keeps it only when every
// word of it is a token that passes the quality gate.
func normalizeSuggested(term string) string {
	toks := Tokens(term)
	if len(toks) == 0 {
		return ""
	}
	for _, tok := range toks {
		if !passesQuality(tok) {
			return ""
		}
	}
	return strings.Join(toks, " ")
}
