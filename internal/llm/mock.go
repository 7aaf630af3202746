package llm

import (
	"context"
	"sync"
)

// MockClient is a test double for the LLM Client interface.
// Fn, when set, takes precedence over Response/Err.
type MockClient struct {
	Response *Response
	Err      error
	Fn       func(Request) (*Response, error)

	mu       sync.Mutex
	Requests []Request // records requests sent
}

// Complete records the call and returns the mock response.
func (m *MockClient) Complete(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.Fn != nil {
		return m.Fn(req)
	}
	return m.Response, m.Err
}

// Calls returns the number of recorded requests.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Reply returns a MockClient that always answers content.
func Reply(content string) *MockClient {
	return &MockClient{Response: &Response{Content: content, Provider: "mock"}}
}
