package transcript

import (
	"strings"

	"github.com/lazypower/resonance/internal/model"
)

const (
	firstLastAssistantMax = 1000
	midAssistantMax       = 200
	userMax               = 2000
)

// Condense renders messages as prompt text, in order:
// - user messages up to 2000 chars
// - first and last assistant message up to 1000 chars
// - other assistant messages up to 200 chars
// - system messages dropped
// Cut messages end in "...".
func Condense(msgs []model.Message) string {
	if len(msgs) == 0 {
		return ""
	}

	firstAssistant, lastAssistant := -1, -1
	for i, m := range msgs {
		if m.Role == "assistant" {
			if firstAssistant < 0 {
				firstAssistant = i
			}
			lastAssistant = i
		}
	}

	var b strings.Builder
	for i, m := range msgs {
		switch m.Role {
		case "user":
			b.WriteString("[USER] ")
			b.WriteString(clip(m.Content, userMax))
		case "assistant":
			b.WriteString("[ASSISTANT] ")
			max := midAssistantMax
			if i == firstAssistant || i == lastAssistant {
				max = firstLastAssistantMax
			}
			b.WriteString(clip(m.Content, max))
		default:
			continue
		}
		b.WriteString("\n\n")
	}

	return strings.TrimSpace(b.String())
}

// Recent returns the last n messages.
func Recent(msgs []model.Message, n int) []model.Message {
	if n <= 0 || len(msgs) <= n {
		return msgs
	}
	return msgs[len(msgs)-n:]
}

// clip cuts s to max runes, appending "..." when it was cut.
func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
