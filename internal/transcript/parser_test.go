package transcript

import (
	"strings"
	"testing"
	"time"

	"github.com/lazypower/resonance/internal/model"
)

func TestParseLinesNested(t *testing.T) {
	lines := `{"type":"user","message":{"role":"user","content":"Hello, help me with Go code"}}
{"type":"assistant","message":{"role":"assistant","content":"Sure, I can help with Go."}}
{"type":"user","message":{"role":"user","content":"Write a function to sort a slice"}}
{"type":"assistant","message":{"role":"assistant","content":"Here is a sort function for you."}}`

	msgs, err := ParseLines(lines, "c1")
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[0].Content != "Hello, help me with Go code" {
		t.Errorf("msgs[0] = %+v", msgs[0])
	}
	if msgs[1].Role != "assistant" {
		t.Errorf("msgs[1].Role = %q, want assistant", msgs[1].Role)
	}
	for _, m := range msgs {
		if m.ConversationID != "c1" || m.ID == "" {
			t.Errorf("message missing conversation or id: %+v", m)
		}
	}
}

func TestParseLinesFlat(t *testing.T) {
	lines := `{"id":"m1","role":"user","content":"pizza tonight?","created_at":"2026-01-02T03:04:05Z"}
{"role":"assistant","content":"Sure, margherita."}`

	msgs, err := ParseLines(lines, "c1")
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != "m1" {
		t.Errorf("ID = %q, want m1", msgs[0].ID)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !msgs[0].CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", msgs[0].CreatedAt, want)
	}
}

func TestParseLinesContentArray(t *testing.T) {
	lines := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"Here is the code:"},{"type":"tool_use","id":"tu_1","name":"Write"}]}}`

	msgs, err := ParseLines(lines, "c1")
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Content != "Here is the code:" {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestParseLinesSkipsJunk(t *testing.T) {
	lines := `not json
{"type":"user","message":{"role":"user","content":"<system-reminder>ignore</system-reminder>"}}
{"role":"robot","content":"beep boop"}
{"type":"summary","summary":"no message"}

{"type":"user","message":{"role":"user","content":"This is a real message"}}`

	msgs, err := ParseLines(lines, "c1")
	if err != nil {
		t.Fatalf("ParseLines: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "This is a real message" {
		t.Errorf("msgs = %+v", msgs)
	}
}

func TestParseLinesStableIDs(t *testing.T) {
	lines := `{"role":"user","content":"same text"}`
	a, _ := ParseLines(lines, "c1")
	b, _ := ParseLines(lines, "c1")
	if a[0].ID != b[0].ID {
		t.Errorf("ids differ: %s vs %s", a[0].ID, b[0].ID)
	}
}

func TestCondense(t *testing.T) {
	long := strings.Repeat("x", 1500)
	msgs := []model.Message{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: long},
		{Role: "system", Content: "hidden"},
		{Role: "assistant", Content: long},
		{Role: "assistant", Content: "short last"},
	}
	got := Condense(msgs)

	if !strings.HasPrefix(got, "[USER] first question") {
		t.Errorf("condensed should start with the user turn: %q", got[:40])
	}
	if strings.Contains(got, "hidden") {
		t.Error("system messages should be dropped")
	}
	parts := strings.Split(got, "\n\n")
	if len(parts) != 4 {
		t.Fatalf("expected 4 parts, got %d", len(parts))
	}
	if len(parts[1]) != len("[ASSISTANT] ")+firstLastAssistantMax+3 {
		t.Errorf("first assistant length = %d", len(parts[1]))
	}
	if len(parts[2]) != len("[ASSISTANT] ")+midAssistantMax+3 {
		t.Errorf("mid assistant length = %d", len(parts[2]))
	}
	if parts[3] != "[ASSISTANT] short last" {
		t.Errorf("last = %q", parts[3])
	}
	if Condense(nil) != "" {
		t.Error("Condense(nil) should be empty")
	}
}

func TestRecent(t *testing.T) {
	msgs := make([]model.Message, 15)
	for i := range msgs {
		msgs[i].Content = string(rune('a' + i))
	}
	got := Recent(msgs, 10)
	if len(got) != 10 || got[0].Content != "f" {
		t.Errorf("Recent = %d msgs starting %q", len(got), got[0].Content)
	}
	if len(Recent(msgs[:3], 10)) != 3 {
		t.Error("short list should be returned whole")
	}
}
