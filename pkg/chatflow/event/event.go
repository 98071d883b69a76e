// Package event carries run and node lifecycle notifications out of the
// executor: node running/completed/failed updates for streaming UIs, run
// start/finish, and swallowed persistence failures.
//
// Events are published on a Bus; subscribers receive them asynchronously, in
// publish order, on a goroutine per subscription.
package event

import (
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Event types published by the executor.
const (
	TypeRunStarted        = "run.started"
	TypeRunFinished       = "run.finished"
	TypeNodeRunning       = "node.running"
	TypeNodeCompleted     = "node.completed"
	TypeNodeFailed        = "node.failed"
	TypePersistenceFailed = "persistence.failed"
)

// PreviewLength is the maximum length of node output previews.
const PreviewLength = 200

// Event is one notification.
type Event interface {
	ID() string
	Type() string
	// RunID correlates every event of one run.
	RunID() string
	Timestamp() time.Time
	Data() any
}

// Metadata contains common event fields.
type Metadata struct {
	EventID   string    `json:"id"`
	EventType string    `json:"type"`
	Run       string    `json:"run_id"`
	Time      time.Time `json:"timestamp"`
}

// BaseEvent is an event with a typed payload.
type BaseEvent[T any] struct {
	Meta    Metadata `json:"metadata"`
	Payload T        `json:"payload"`
}

// ID returns the unique event identifier.
func (e *BaseEvent[T]) ID() string { return e.Meta.EventID }

// Type returns the event type.
func (e *BaseEvent[T]) Type() string { return e.Meta.EventType }

// RunID returns the run the event belongs to.
func (e *BaseEvent[T]) RunID() string { return e.Meta.Run }

// Timestamp returns when the event occurred.
func (e *BaseEvent[T]) Timestamp() time.Time { return e.Meta.Time }

// Data returns the payload.
func (e *BaseEvent[T]) Data() any { return e.Payload }

// TypedData returns the strongly-typed payload.
func (e *BaseEvent[T]) TypedData() T { return e.Payload }

// New creates an event with a generated id and the current time.
func New[T any](eventType, runID string, payload T) *BaseEvent[T] {
	return &BaseEvent[T]{
		Meta: Metadata{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Run:       runID,
			Time:      time.Now(),
		},
		Payload: payload,
	}
}

// RunStarted is published before the first node runs.
type RunStarted struct {
	SessionID string `json:"session_id"`
	NodeCount int    `json:"node_count"`
	Depth     int    `json:"depth"`
}

// RunFinished is published once a run reaches a final state.
type RunFinished struct {
	Status      string  `json:"status"`
	Response    string  `json:"response,omitempty"`
	TotalTokens int     `json:"total_tokens"`
	DurationMs  float64 `json:"duration_ms"`
	Error       string  `json:"error,omitempty"`
}

// NodeStatus describes one node lifecycle transition.
type NodeStatus struct {
	NodeID     string  `json:"node_id"`
	NodeType   string  `json:"node_type"`
	Status     string  `json:"status"`
	Preview    string  `json:"preview,omitempty"`
	DurationMs float64 `json:"duration_ms,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// PersistenceFailed reports an audit write that failed and was swallowed.
type PersistenceFailed struct {
	Operation string `json:"operation"`
	NodeID    string `json:"node_id,omitempty"`
	Error     string `json:"error"`
}

// Preview renders v as a short string for status updates. Maps and lists are
// JSON encoded; the result is cut to PreviewLength runes.
func Preview(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		s = string(b)
	}
	if utf8.RuneCountInString(s) <= PreviewLength {
		return s
	}
	return string([]rune(s)[:PreviewLength])
}
