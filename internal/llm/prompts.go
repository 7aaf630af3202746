package llm

import (
	"fmt"
	"strings"
)

// KeywordPrompt asks for the salient keywords of a text.
func KeywordPrompt(text string, max int) Request {
	return Prompt(
		"You are a keyword extraction system. You answer with JSON only.",
		fmt.Sprintf(`Extract at most %d keywords from the text below.

TEXT:
%s

Rules:
- Single lowercase words or short noun phrases
- Prefer topics, technologies, places and named things over generic words
- Return ONLY a JSON array of strings, no other text

Example: ["pizza", "recipes", "italian food"]`, max, text))
}

// SubjectPrompt asks for a one-sentence description of a keyword cluster, in
// the context of the messages that support it.
func SubjectPrompt(keywords []string, excerpt string) Request {
	return Prompt(
		"You are a topic labelling system. You answer with JSON only.",
		fmt.Sprintf(`A conversation contains a recurring topic identified by these keywords: %s

RELEVANT MESSAGES:
%s

Describe the topic in one sentence (at most 25 words) and rate how coherent it is.

Return ONLY a JSON object, no other text:
{"description": "one sentence", "confidence": 0.0-1.0}`, strings.Join(keywords, ", "), excerpt))
}

// SummaryPrompt asks for a fresh conversation synopsis.
func SummaryPrompt(subjects []string, recent string) Request {
	return Prompt(
		"You write short, factual synopses of conversations.",
		fmt.Sprintf(`Summarize this conversation in at most 120 words.

TOPICS:
%s

RECENT MESSAGES:
%s

Rules:
- Plain prose, no headings or lists
- Mention the main topics and any decision or open question
- Do not invent details that are not in the messages`, bullets(subjects), recent))
}

// SummaryUpdatePrompt asks for a revision of an existing synopsis.
func SummaryUpdatePrompt(existing string, changes []string, reason string) Request {
	return Prompt(
		"You write short, factual synopses of conversations.",
		fmt.Sprintf(`Revise the conversation summary below to account for the changes listed.

CURRENT SUMMARY:
%s

CHANGES (%s):
%s

Rules:
- At most 120 words of plain prose
- Keep what is still accurate, integrate the changes
- Return only the revised summary`, existing, reason, bullets(changes)))
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for i, it := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(it)
	}
	return b.String()
}
