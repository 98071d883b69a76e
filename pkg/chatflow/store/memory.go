package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. It is intended for tests and
// single-process development.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*RunRecord
	order  []string
	nodes  map[string][]NodeExecution
	conv   map[convKey]map[string]any
	closed bool
}

type convKey struct {
	botID     string
	sessionID string
}

var (
	_ Recorder          = (*MemoryStore)(nil)
	_ Reader            = (*MemoryStore)(nil)
	_ ConversationStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:  make(map[string]*RunRecord),
		nodes: make(map[string][]NodeExecution),
		conv:  make(map[convKey]map[string]any),
	}
}

// CreateRun implements Recorder.
func (s *MemoryStore) CreateRun(_ context.Context, run *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if run.ID == "" {
		return fmt.Errorf("create run: empty run id")
	}
	if _, ok := s.runs[run.ID]; ok {
		return fmt.Errorf("create run %s: already exists", run.ID)
	}
	cp := *run
	if cp.Status == "" {
		cp.Status = StatusRunning
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now()
	}
	s.runs[run.ID] = &cp
	s.order = append(s.order, run.ID)
	return nil
}

// RecordNodeExecution implements Recorder.
func (s *MemoryStore) RecordNodeExecution(_ context.Context, exec *NodeExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.runs[exec.RunID]; !ok {
		return fmt.Errorf("record node %s: run %s: %w", exec.NodeID, exec.RunID, ErrNotFound)
	}
	s.nodes[exec.RunID] = append(s.nodes[exec.RunID], *exec)
	return nil
}

// FinalizeRun implements Recorder.
func (s *MemoryStore) FinalizeRun(_ context.Context, runID string, res RunResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("finalize run %s: %w", runID, ErrNotFound)
	}
	applyResult(run, res)
	return nil
}

func applyResult(run *RunRecord, res RunResult) {
	run.Status = res.Status
	run.Outputs = res.Outputs
	run.Error = res.Error
	run.FinishedAt = res.FinishedAt
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now()
	}
	run.ElapsedMs = res.ElapsedMs
	run.TotalTokens = res.TotalTokens
	run.TotalSteps = res.TotalSteps
}

// Run implements Reader.
func (s *MemoryStore) Run(_ context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	run, ok := s.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

// NodeExecutions implements Reader. Records are ordered by execution order.
func (s *MemoryStore) NodeExecutions(_ context.Context, runID string) ([]NodeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	out := slices.Clone(s.nodes[runID])
	slices.SortStableFunc(out, func(a, b NodeExecution) int { return a.Order - b.Order })
	return out, nil
}

// ListRuns implements Reader.
func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) (*RunPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var matched []RunRecord
	// Newest first: reverse creation order.
	for i := len(s.order) - 1; i >= 0; i-- {
		if run := s.runs[s.order[i]]; filter.matches(run) {
			matched = append(matched, *run)
		}
	}

	page := &RunPage{Total: len(matched), Limit: filter.limit(), Offset: filter.Offset}
	if filter.Offset < len(matched) {
		end := min(filter.Offset+page.Limit, len(matched))
		page.Items = matched[filter.Offset:end]
	}
	return page, nil
}

// Stats implements Reader.
func (s *MemoryStore) Stats(_ context.Context, botID string, since, until time.Time) (*RunStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	filter := RunFilter{BotID: botID, Since: since, Until: until}
	stats := &RunStats{}
	var elapsed int64
	var timed int
	for _, run := range s.runs {
		if !filter.matches(run) {
			continue
		}
		stats.TotalRuns++
		switch run.Status {
		case StatusSucceeded:
			stats.SucceededRuns++
		case StatusFailed:
			stats.FailedRuns++
		}
		if !run.FinishedAt.IsZero() {
			elapsed += run.ElapsedMs
			timed++
		}
		stats.TotalTokens += run.TotalTokens
	}
	if timed > 0 {
		stats.AvgElapsedMs = float64(elapsed) / float64(timed)
	}
	return stats, nil
}

// DeleteRun implements Reader. Node executions of the run are deleted too.
func (s *MemoryStore) DeleteRun(_ context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.runs[runID]; !ok {
		return ErrNotFound
	}
	delete(s.runs, runID)
	delete(s.nodes, runID)
	s.order = slices.DeleteFunc(s.order, func(id string) bool { return id == runID })
	return nil
}

// LoadConversation implements ConversationStore.
func (s *MemoryStore) LoadConversation(_ context.Context, botID, sessionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	return maps.Clone(s.conv[convKey{botID, sessionID}]), nil
}

// SaveConversation implements ConversationStore.
func (s *MemoryStore) SaveConversation(_ context.Context, botID, sessionID string, vars map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	key := convKey{botID, sessionID}
	if s.conv[key] == nil {
		s.conv[key] = make(map[string]any, len(vars))
	}
	maps.Copy(s.conv[key], vars)
	return nil
}

// Close marks the store closed. Further calls fail with ErrStoreClosed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
