package llm

import (
	"context"
	"sync"
	"time"
)

// MockGenerator is a scripted Generator for tests and examples.
//
// By default it returns a fixed response. WithResponses cycles through a
// list, WithError fails every call and WithCompleteFunc takes full control.
type MockGenerator struct {
	mu        sync.Mutex
	response  string
	responses []string
	index     int
	err       error
	fn        func(ctx context.Context, req Request) (*Response, error)

	// Calls records every request, in order.
	Calls []Request
}

var (
	_ Generator = (*MockGenerator)(nil)
	_ Streamer  = (*MockGenerator)(nil)
)

// NewMockGenerator creates a mock returning response.
func NewMockGenerator(response string) *MockGenerator {
	return &MockGenerator{response: response}
}

// WithResponses makes the mock cycle through responses.
func (m *MockGenerator) WithResponses(responses ...string) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = responses
	m.index = 0
	return m
}

// WithError makes every call fail with err.
func (m *MockGenerator) WithError(err error) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithCompleteFunc replaces the scripted behavior.
func (m *MockGenerator) WithCompleteFunc(fn func(ctx context.Context, req Request) (*Response, error)) *MockGenerator {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// Complete implements Generator.
func (m *MockGenerator) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn, err := m.fn, m.err
	content := m.next()
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}

	in := estimateTokens(req)
	out := max(len(content)/4, 1)
	return &Response{
		Content:      content,
		Model:        req.Model,
		FinishReason: "stop",
		Usage:        TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
		Duration:     time.Millisecond,
	}, nil
}

// Stream implements Streamer by completing the request and emitting the
// whole response as one final chunk.
func (m *MockGenerator) Stream(ctx context.Context, req Request) (<-chan StreamChunk, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan StreamChunk, 1)
	usage := resp.Usage
	ch <- StreamChunk{Content: resp.Content, Usage: &usage, Done: true}
	close(ch)
	return ch, nil
}

// next must be called with mu held.
func (m *MockGenerator) next() string {
	if len(m.responses) == 0 {
		return m.response
	}
	r := m.responses[m.index%len(m.responses)]
	m.index++
	return r
}

// CallCount returns the number of calls made.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or nil before the first call.
func (m *MockGenerator) LastCall() *Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return nil
	}
	req := m.Calls[len(m.Calls)-1]
	return &req
}

// Reset clears recorded calls and rewinds the response cycle.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = nil
	m.index = 0
}

func estimateTokens(req Request) int {
	n := len(req.SystemPrompt)
	for _, msg := range req.Messages {
		n += len(msg.Content)
	}
	return max(n/4, 1)
}
