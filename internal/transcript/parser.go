// Package transcript imports conversations from JSONL exports and condenses
// message lists into prompt-sized text.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

// line is one JSONL record. Two shapes are accepted: flat
// {"id","role","content","created_at"} records, and chat exports that nest
// the turn under "message" with a "type" tag.
type line struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Role      string          `json:"role"`
	Content   json.RawMessage `json:"content"`
	CreatedAt time.Time       `json:"created_at"`
	Timestamp time.Time       `json:"timestamp"`
	Message   *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"` // string or []contentItem
	} `json:"message"`
}

// contentItem is a single content block (text, tool_use, tool_result).
type contentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var systemReminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

// ParseFile reads a JSONL transcript file into messages of conversationID.
func ParseFile(path, conversationID string) ([]model.Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parse(f, conversationID)
}

// Parse reads JSONL records from r. Malformed lines, records without text and
// records with an unknown role are skipped. Messages without an id get a
// content-derived one; repeated identical turns each keep their own.
func Parse(r io.Reader, conversationID string) ([]model.Message, error) {
	var msgs []model.Message
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB line buffer

	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}
		m, ok := parseLine(raw, conversationID)
		if !ok {
			continue
		}
		msgs = append(msgs, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	model.AssignIDs(msgs)
	return msgs, nil
}

// ParseLines parses transcript content from a string.
func ParseLines(content, conversationID string) ([]model.Message, error) {
	return Parse(strings.NewReader(content), conversationID)
}

func parseLine(raw []byte, conversationID string) (model.Message, bool) {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return model.Message{}, false
	}

	role, content := l.Role, l.Content
	if l.Message != nil {
		role, content = l.Message.Role, l.Message.Content
		if role == "" {
			role = l.Type
		}
	}

	text := extractText(content)
	text = systemReminderRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if text == "" {
		return model.Message{}, false
	}

	created := l.CreatedAt
	if created.IsZero() {
		created = l.Timestamp
	}
	m := model.Message{
		ID:             l.ID,
		ConversationID: conversationID,
		Role:           role,
		Content:        text,
		CreatedAt:      created,
	}
	if m.Validate() != nil {
		return model.Message{}, false
	}
	return m, true
}

// extractText handles the polymorphic content field.
// It may be a plain string or an array of content items.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []contentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}

	return ""
}
