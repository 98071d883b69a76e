package store_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/chatflow/pkg/chatflow/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fullStore interface {
	store.Recorder
	store.Reader
	store.ConversationStore
	Close() error
}

// forEachStore runs the same contract test against every implementation.
func forEachStore(t *testing.T, fn func(t *testing.T, s fullStore)) {
	t.Run("memory", func(t *testing.T) {
		s := store.NewMemoryStore()
		defer s.Close()
		fn(t, s)
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "chatflow.db"))
		require.NoError(t, err)
		defer s.Close()
		fn(t, s)
	})
}

func seedRun(t *testing.T, s store.Recorder, id, bot string, started time.Time) {
	t.Helper()
	require.NoError(t, s.CreateRun(context.Background(), &store.RunRecord{
		ID:        id,
		BotID:     bot,
		SessionID: "sess-" + id,
		Inputs:    map[string]any{"query": "hi"},
		Graph:     map[string]any{"nodes": []any{}},
		StartedAt: started,
	}))
}

func TestStore_RunLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		ctx := context.Background()
		seedRun(t, s, "run-1", "bot", time.Now())

		run, err := s.Run(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, store.StatusRunning, run.Status)
		assert.Equal(t, "hi", run.Inputs["query"])
		assert.True(t, run.FinishedAt.IsZero())

		started := time.Now()
		for i, id := range []string{"start", "llm", "end"} {
			require.NoError(t, s.RecordNodeExecution(ctx, &store.NodeExecution{
				ID:         fmt.Sprintf("exec-%d", i),
				RunID:      "run-1",
				NodeID:     id,
				NodeType:   id,
				Order:      i + 1,
				Inputs:     map[string]any{"i": i},
				Outputs:    map[string]any{"o": id},
				Status:     store.StatusSucceeded,
				StartedAt:  started,
				FinishedAt: started.Add(time.Millisecond),
				ElapsedMs:  1,
				TokensUsed: i * 10,
			}))
		}

		require.NoError(t, s.FinalizeRun(ctx, "run-1", store.RunResult{
			Status:      store.StatusSucceeded,
			Outputs:     map[string]any{"response": "done"},
			ElapsedMs:   12,
			TotalTokens: 30,
			TotalSteps:  3,
		}))

		run, err = s.Run(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, store.StatusSucceeded, run.Status)
		assert.Equal(t, "done", run.Outputs["response"])
		assert.Equal(t, int64(12), run.ElapsedMs)
		assert.Equal(t, 30, run.TotalTokens)
		assert.Equal(t, 3, run.TotalSteps)
		assert.False(t, run.FinishedAt.IsZero())

		execs, err := s.NodeExecutions(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, execs, 3)
		assert.Equal(t, []string{"start", "llm", "end"}, []string{execs[0].NodeID, execs[1].NodeID, execs[2].NodeID})
		assert.Equal(t, "llm", execs[1].Outputs["o"])
		assert.Equal(t, 20, execs[2].TokensUsed)
	})
}

func TestStore_NotFound(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		ctx := context.Background()
		_, err := s.Run(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		err = s.FinalizeRun(ctx, "missing", store.RunResult{Status: store.StatusFailed})
		assert.ErrorIs(t, err, store.ErrNotFound)

		assert.ErrorIs(t, s.DeleteRun(ctx, "missing"), store.ErrNotFound)

		execs, err := s.NodeExecutions(ctx, "missing")
		require.NoError(t, err)
		assert.Empty(t, execs)
	})
}

func TestStore_DuplicateRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		seedRun(t, s, "dup", "bot", time.Now())
		err := s.CreateRun(context.Background(), &store.RunRecord{ID: "dup"})
		assert.Error(t, err)
	})
}

func TestStore_ListAndStats(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		seedRun(t, s, "a", "bot-1", base)
		seedRun(t, s, "b", "bot-1", base.Add(time.Minute))
		seedRun(t, s, "c", "bot-1", base.Add(2*time.Minute))
		seedRun(t, s, "other", "bot-2", base.Add(3*time.Minute))

		require.NoError(t, s.FinalizeRun(ctx, "a", store.RunResult{Status: store.StatusSucceeded, ElapsedMs: 100, TotalTokens: 5}))
		require.NoError(t, s.FinalizeRun(ctx, "b", store.RunResult{Status: store.StatusFailed, ElapsedMs: 300, TotalTokens: 7}))

		page, err := s.ListRuns(ctx, store.RunFilter{BotID: "bot-1", Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, page.Total)
		require.Len(t, page.Items, 2)
		assert.Equal(t, "c", page.Items[0].ID)
		assert.Equal(t, "b", page.Items[1].ID)

		page, err = s.ListRuns(ctx, store.RunFilter{BotID: "bot-1", Limit: 2, Offset: 2})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "a", page.Items[0].ID)

		page, err = s.ListRuns(ctx, store.RunFilter{Status: store.StatusFailed})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "b", page.Items[0].ID)
		assert.Equal(t, store.DefaultListLimit, page.Limit)

		page, err = s.ListRuns(ctx, store.RunFilter{Since: base.Add(90 * time.Second)})
		require.NoError(t, err)
		assert.Equal(t, 2, page.Total)

		stats, err := s.Stats(ctx, "bot-1", time.Time{}, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 3, stats.TotalRuns)
		assert.Equal(t, 1, stats.SucceededRuns)
		assert.Equal(t, 1, stats.FailedRuns)
		assert.InDelta(t, 200.0, stats.AvgElapsedMs, 0.001)
		assert.Equal(t, 12, stats.TotalTokens)
	})
}

func TestStore_DeleteRun(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		ctx := context.Background()
		seedRun(t, s, "gone", "bot", time.Now())
		require.NoError(t, s.RecordNodeExecution(ctx, &store.NodeExecution{
			ID: "e1", RunID: "gone", NodeID: "start", NodeType: "start", Order: 1,
			Status: store.StatusSucceeded, StartedAt: time.Now(), FinishedAt: time.Now(),
		}))

		require.NoError(t, s.DeleteRun(ctx, "gone"))
		_, err := s.Run(ctx, "gone")
		assert.ErrorIs(t, err, store.ErrNotFound)
		execs, err := s.NodeExecutions(ctx, "gone")
		require.NoError(t, err)
		assert.Empty(t, execs)
	})
}

func TestStore_Conversation(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		ctx := context.Background()
		vars, err := s.LoadConversation(ctx, "bot", "sess")
		require.NoError(t, err)
		assert.Empty(t, vars)

		require.NoError(t, s.SaveConversation(ctx, "bot", "sess", map[string]any{
			"topic": "billing",
			"count": 1.0,
		}))
		require.NoError(t, s.SaveConversation(ctx, "bot", "sess", map[string]any{
			"count": 2.0,
			"tags":  []any{"a"},
		}))
		require.NoError(t, s.SaveConversation(ctx, "bot", "other", map[string]any{"topic": "x"}))

		vars, err = s.LoadConversation(ctx, "bot", "sess")
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"topic": "billing",
			"count": 2.0,
			"tags":  []any{"a"},
		}, vars)
	})
}

func TestStore_Closed(t *testing.T) {
	forEachStore(t, func(t *testing.T, s fullStore) {
		ctx := context.Background()
		require.NoError(t, s.Close())
		require.NoError(t, s.Close())

		assert.ErrorIs(t, s.CreateRun(ctx, &store.RunRecord{ID: "x"}), store.ErrStoreClosed)
		_, err := s.Run(ctx, "x")
		assert.ErrorIs(t, err, store.ErrStoreClosed)
		_, err = s.LoadConversation(ctx, "b", "s")
		assert.ErrorIs(t, err, store.ErrStoreClosed)
	})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	seedRun(t, s1, "persisted", "bot", time.Now())
	require.NoError(t, s1.SaveConversation(context.Background(), "bot", "sess", map[string]any{"k": "v"}))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	run, err := s2.Run(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, "bot", run.BotID)
	vars, err := s2.LoadConversation(context.Background(), "bot", "sess")
	require.NoError(t, err)
	assert.Equal(t, "v", vars["k"])
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := store.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer s.Close()
	seedRun(t, s, "m", "bot", time.Now())
	_, err = s.Run(context.Background(), "m")
	assert.NoError(t, err)
}

// orderedRecorder records call order and can fail selected operations.
type orderedRecorder struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	delay time.Duration
}

func (r *orderedRecorder) record(call string) error {
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
	return r.fail[call]
}

func (r *orderedRecorder) CreateRun(_ context.Context, run *store.RunRecord) error {
	return r.record("create:" + run.ID)
}

func (r *orderedRecorder) RecordNodeExecution(_ context.Context, e *store.NodeExecution) error {
	return r.record("node:" + e.RunID + ":" + e.NodeID)
}

func (r *orderedRecorder) FinalizeRun(_ context.Context, runID string, _ store.RunResult) error {
	return r.record("finalize:" + runID)
}

func (r *orderedRecorder) callsFor(runID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, c := range r.calls {
		if c == "create:"+runID || c == "finalize:"+runID || strings.HasPrefix(c, "node:"+runID+":") {
			out = append(out, c)
		}
	}
	return out
}

func TestAsyncRecorder_PreservesPerRunOrder(t *testing.T) {
	inner := &orderedRecorder{delay: time.Millisecond}
	a, err := store.NewAsyncRecorder(inner, 2)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	for _, run := range []string{"r1", "r2"} {
		require.NoError(t, a.CreateRun(ctx, &store.RunRecord{ID: run}))
		for _, n := range []string{"a", "b", "c"} {
			require.NoError(t, a.RecordNodeExecution(ctx, &store.NodeExecution{RunID: run, NodeID: n}))
		}
		require.NoError(t, a.FinalizeRun(ctx, run, store.RunResult{}))
	}

	a.WaitRun("r1")
	assert.Equal(t, []string{"create:r1", "node:r1:a", "node:r1:b", "node:r1:c", "finalize:r1"}, inner.callsFor("r1"))
	a.Flush()
	assert.Equal(t, []string{"create:r2", "node:r2:a", "node:r2:b", "node:r2:c", "finalize:r2"}, inner.callsFor("r2"))
}

func TestAsyncRecorder_ReportsFailures(t *testing.T) {
	boom := errors.New("db down")
	inner := &orderedRecorder{fail: map[string]error{"node:r1:b": boom}}

	var mu sync.Mutex
	var failed []store.Op
	a, err := store.NewAsyncRecorder(inner, 1, store.WithErrorHandler(func(op store.Op, err error) {
		mu.Lock()
		defer mu.Unlock()
		assert.ErrorIs(t, err, boom)
		failed = append(failed, op)
	}))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, a.CreateRun(ctx, &store.RunRecord{ID: "r1"}))
	require.NoError(t, a.RecordNodeExecution(ctx, &store.NodeExecution{RunID: "r1", NodeID: "b"}))
	require.NoError(t, a.FinalizeRun(ctx, "r1", store.RunResult{}))
	a.WaitRun("r1")

	mu.Lock()
	assert.Equal(t, []store.Op{{Name: store.OpRecordNodeExecution, RunID: "r1", NodeID: "b"}}, failed)
	mu.Unlock()
	// Later writes still ran.
	assert.Contains(t, inner.callsFor("r1"), "finalize:r1")

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestAsyncRecorder_Closed(t *testing.T) {
	var got error
	a, err := store.NewAsyncRecorder(&orderedRecorder{}, 0, store.WithErrorHandler(func(_ store.Op, err error) {
		got = err
	}))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	require.NoError(t, a.CreateRun(context.Background(), &store.RunRecord{ID: "late"}))
	assert.ErrorIs(t, got, store.ErrStoreClosed)
}

func TestAsyncRecorder_CancelledContext(t *testing.T) {
	inner := store.NewMemoryStore()
	a, err := store.NewAsyncRecorder(inner, 1)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, a.CreateRun(ctx, &store.RunRecord{ID: "r"}))
	require.NoError(t, a.FinalizeRun(ctx, "r", store.RunResult{Status: store.StatusCancelled}))
	a.WaitRun("r")

	run, err := inner.Run(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, run.Status)
}

func TestAsyncRecorder_NilInner(t *testing.T) {
	_, err := store.NewAsyncRecorder(nil, 1)
	assert.Error(t, err)
}
