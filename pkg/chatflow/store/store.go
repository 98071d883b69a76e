// Package store is the persistence boundary of the engine: run records,
// node-execution records and conversation variables.
//
// Audit writes are best-effort. The executor logs, counts and publishes
// failures but never fails a run because of them.
package store

import (
	"context"
	"errors"
	"time"
)

// Errors returned by stores.
var (
	ErrStoreClosed = errors.New("store is closed")
	ErrNotFound    = errors.New("record not found")
)

// Status is the state of a run or node execution.
type Status string

// Run and node states.
const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// RunRecord is the audit row for one workflow run.
type RunRecord struct {
	ID        string
	BotID     string
	SessionID string
	// Graph is a snapshot of the executed graph.
	Graph       map[string]any
	Inputs      map[string]any
	Outputs     map[string]any
	Status      Status
	Error       string
	StartedAt   time.Time
	FinishedAt  time.Time
	ElapsedMs   int64
	TotalTokens int
	TotalSteps  int
}

// RunResult is what FinalizeRun writes onto a run record.
type RunResult struct {
	Status      Status
	Outputs     map[string]any
	Error       string
	FinishedAt  time.Time
	ElapsedMs   int64
	TotalTokens int
	TotalSteps  int
}

// NodeExecution is the audit row for one node invocation.
type NodeExecution struct {
	ID         string
	RunID      string
	NodeID     string
	NodeType   string
	Order      int
	Inputs     map[string]any
	Outputs    map[string]any
	Status     Status
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	ElapsedMs  int64
	TokensUsed int
}

// Recorder receives the audit trail of runs.
type Recorder interface {
	CreateRun(ctx context.Context, run *RunRecord) error
	RecordNodeExecution(ctx context.Context, exec *NodeExecution) error
	FinalizeRun(ctx context.Context, runID string, result RunResult) error
}

// RunFilter selects runs for ListRuns. Zero fields do not filter.
type RunFilter struct {
	BotID     string
	SessionID string
	Status    Status
	Since     time.Time
	Until     time.Time
	// Limit defaults to 50.
	Limit  int
	Offset int
}

// RunPage is one page of runs, newest first.
type RunPage struct {
	Items  []RunRecord
	Total  int
	Limit  int
	Offset int
}

// RunStats aggregates runs of one bot.
type RunStats struct {
	TotalRuns     int
	SucceededRuns int
	FailedRuns    int
	AvgElapsedMs  float64
	TotalTokens   int
}

// Reader queries the audit trail.
type Reader interface {
	Run(ctx context.Context, runID string) (*RunRecord, error)
	NodeExecutions(ctx context.Context, runID string) ([]NodeExecution, error)
	ListRuns(ctx context.Context, filter RunFilter) (*RunPage, error)
	Stats(ctx context.Context, botID string, since, until time.Time) (*RunStats, error)
	DeleteRun(ctx context.Context, runID string) error
}

// ConversationStore persists conversation variables per bot and session.
type ConversationStore interface {
	LoadConversation(ctx context.Context, botID, sessionID string) (map[string]any, error)
	// SaveConversation upserts the given keys. Keys not present are kept.
	SaveConversation(ctx context.Context, botID, sessionID string, vars map[string]any) error
}

// DefaultListLimit is used when RunFilter.Limit is zero.
const DefaultListLimit = 50

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f RunFilter) matches(r *RunRecord) bool {
	if f.BotID != "" && r.BotID != f.BotID {
		return false
	}
	if f.SessionID != "" && r.SessionID != f.SessionID {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && r.StartedAt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.StartedAt.After(f.Until) {
		return false
	}
	return true
}
