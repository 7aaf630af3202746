package subject

import (
	"context"
	"fmt"

	"github.com/lazypower/resonance/internal/llm"
	"github.com/lazypower/resonance/internal/model"
)

const maxDescriptionChars = 280

// LLMDescriber asks the text-generation capability for subject descriptions.
type LLMDescriber struct {
	Client llm.Client
}

// Describe requests a description and strictly validates the answer.
func (d LLMDescriber) Describe(ctx context.Context, s model.Subject, excerpt string) (string, float64, error) {
	resp, err := d.Client.Complete(ctx, llm.SubjectPrompt(s.Keywords.Terms(), excerpt))
	if err != nil {
		return "", 0, fmt.Errorf("%w: describe subject: %w", model.ErrExternal, err)
	}
	parsed, err := llm.ParseSubjectDescription(resp.Content)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", model.ErrExternal, err)
	}
	return llm.Truncate(parsed.Description, maxDescriptionChars), parsed.Confidence, nil
}
