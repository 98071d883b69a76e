// Package llm defines the text-generation capability used by model-backed
// nodes, an OpenAI-compatible implementation and a scripted mock for tests.
//
// Nodes obtain a Generator from the run's service container under
// service.LLM and, when one is registered, push partial output through the
// StreamSink registered under service.Stream.
package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrEmptyResponse indicates a provider returned no choices.
var ErrEmptyResponse = errors.New("model returned no content")

// Generator produces a completion for a request.
type Generator interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Streamer is implemented by generators that can emit partial output. The
// channel is closed after the chunk with Done set or an error chunk.
type Streamer interface {
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)
}

// StreamSink receives incremental text produced by a node.
type StreamSink interface {
	Emit(ctx context.Context, nodeID, text string) error
}

// SinkFunc adapts a function to StreamSink.
type SinkFunc func(ctx context.Context, nodeID, text string) error

// Emit implements StreamSink.
func (f SinkFunc) Emit(ctx context.Context, nodeID, text string) error {
	return f(ctx, nodeID, text)
}

// BufferSink collects emitted text per node. It is safe for concurrent use.
type BufferSink struct {
	mu     sync.Mutex
	chunks map[string][]string
}

// NewBufferSink creates an empty sink.
func NewBufferSink() *BufferSink {
	return &BufferSink{chunks: make(map[string][]string)}
}

// Emit implements StreamSink.
func (b *BufferSink) Emit(_ context.Context, nodeID, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks[nodeID] = append(b.chunks[nodeID], text)
	return nil
}

// Chunks returns the chunks emitted for a node, in order.
func (b *BufferSink) Chunks(nodeID string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.chunks[nodeID]...)
}

// Text returns everything emitted for a node.
func (b *BufferSink) Text(nodeID string) string {
	return strings.Join(b.Chunks(nodeID), "")
}

// StreamTo runs req on gen, forwarding every chunk to emit, and returns the
// assembled response. Generators that cannot stream are completed normally
// and their whole output is emitted once.
func StreamTo(ctx context.Context, gen Generator, req Request, emit func(text string) error) (*Response, error) {
	s, ok := gen.(Streamer)
	if !ok {
		resp, err := gen.Complete(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.Content != "" {
			if err := emit(resp.Content); err != nil {
				return nil, err
			}
		}
		return resp, nil
	}

	start := time.Now()
	ch, err := s.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	// Unblock the producer if we stop reading early.
	defer func() {
		go func() {
			for range ch {
			}
		}()
	}()

	var content strings.Builder
	resp := &Response{Model: req.Model}
	for chunk := range ch {
		if chunk.Error != nil {
			return nil, chunk.Error
		}
		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if err := emit(chunk.Content); err != nil {
				return nil, err
			}
		}
		if chunk.Usage != nil {
			resp.Usage = *chunk.Usage
		}
		if chunk.Done {
			resp.FinishReason = "stop"
		}
	}
	resp.Content = content.String()
	resp.Duration = time.Since(start)
	return resp, nil
}
