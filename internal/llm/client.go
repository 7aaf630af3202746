package llm

import (
	"context"
	"fmt"

	"github.com/lazypower/resonance/internal/config"
)

// Roles accepted in a Request.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role/content turn sent to a provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a text-generation call: a list of turns plus sampling limits.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Prompt builds a single-turn request with the package defaults.
func Prompt(system, user string) Request {
	var msgs []Message
	if system != "" {
		msgs = append(msgs, Message{Role: RoleSystem, Content: system})
	}
	msgs = append(msgs, Message{Role: RoleUser, Content: user})
	return Request{Messages: msgs, Temperature: DefaultTemperature, MaxTokens: DefaultMaxTokens}
}

const (
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 1024
)

// Client is the interface for LLM providers.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Response holds the result of an LLM completion.
type Response struct {
	Content    string
	Provider   string
	TokensUsed int
}

// split separates system turns from the conversation, for providers that take
// the system prompt out of band.
func split(msgs []Message) (system string, rest []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		rest = append(rest, m)
	}
	return system, rest
}

func (r Request) limits() (float64, int) {
	temp, max := r.Temperature, r.MaxTokens
	if temp < 0 {
		temp = DefaultTemperature
	}
	if max <= 0 {
		max = DefaultMaxTokens
	}
	return temp, max
}

// NewClient creates an LLM client based on the config provider setting.
// Provider "none" yields a nil Client: every caller has a local fallback.
func NewClient(cfg config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "claude-cli":
		model := cfg.Model
		if model == "" {
			model = "haiku"
		}
		return NewClaudeCLI(model), nil
	case "anthropic":
		if cfg.AnthropicKey == "" {
			return nil, fmt.Errorf("anthropic provider requires ANTHROPIC_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "claude-haiku-4-5-20251001"
		}
		return NewAnthropic(cfg.AnthropicKey, model), nil
	case "ollama":
		url := cfg.OllamaURL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "llama3.2"
		}
		return NewOllama(url, model), nil
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("gemini provider requires GEMINI_API_KEY or config")
		}
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return NewGemini(context.Background(), cfg.GeminiKey, model)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
