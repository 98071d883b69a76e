package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// DefaultAsyncWorkers is the worker count used when none is given.
const DefaultAsyncWorkers = 4

// Operation names reported to error handlers.
const (
	OpCreateRun           = "create_run"
	OpRecordNodeExecution = "record_node_execution"
	OpFinalizeRun         = "finalize_run"
	OpLoadConversation    = "load_conversation"
	OpSaveConversation    = "save_conversation"
)

// Op identifies a recorder call.
type Op struct {
	Name   string
	RunID  string
	NodeID string
}

// ErrorHandler receives failures of asynchronous writes.
type ErrorHandler func(op Op, err error)

// AsyncRecorder hands writes to a bounded worker pool so callers never wait
// on the database. Writes of one run are applied in submission order; writes
// of different runs proceed in parallel.
//
// Recorder methods always return nil. Failures go to the ErrorHandler.
type AsyncRecorder struct {
	inner   Recorder
	pool    *ants.PoolWithFunc
	onError ErrorHandler

	mu     sync.Mutex
	queues map[string]*runQueue
	closed bool

	pending sync.WaitGroup
}

var _ Recorder = (*AsyncRecorder)(nil)

type runQueue struct {
	runID   string
	mu      sync.Mutex
	tasks   []task
	running bool
	pending sync.WaitGroup
}

type task struct {
	op  Op
	ctx context.Context
	fn  func(ctx context.Context) error
}

// AsyncOption configures an AsyncRecorder.
type AsyncOption func(*AsyncRecorder)

// WithErrorHandler sets the failure callback.
func WithErrorHandler(h ErrorHandler) AsyncOption {
	return func(a *AsyncRecorder) {
		a.onError = h
	}
}

// NewAsyncRecorder wraps inner with a pool of the given size.
func NewAsyncRecorder(inner Recorder, workers int, opts ...AsyncOption) (*AsyncRecorder, error) {
	if inner == nil {
		return nil, errors.New("async recorder: nil inner recorder")
	}
	if workers <= 0 {
		workers = DefaultAsyncWorkers
	}
	a := &AsyncRecorder{
		inner:  inner,
		queues: make(map[string]*runQueue),
	}
	for _, opt := range opts {
		opt(a)
	}

	pool, err := ants.NewPoolWithFunc(workers, func(args any) {
		q, ok := args.(*runQueue)
		if !ok {
			panic("async recorder pool args type error")
		}
		a.drain(q)
	})
	if err != nil {
		return nil, fmt.Errorf("create persistence pool: %w", err)
	}
	a.pool = pool
	return a, nil
}

// CreateRun implements Recorder.
func (a *AsyncRecorder) CreateRun(ctx context.Context, run *RunRecord) error {
	cp := *run
	a.submit(ctx, Op{Name: OpCreateRun, RunID: run.ID}, func(ctx context.Context) error {
		return a.inner.CreateRun(ctx, &cp)
	})
	return nil
}

// RecordNodeExecution implements Recorder.
func (a *AsyncRecorder) RecordNodeExecution(ctx context.Context, exec *NodeExecution) error {
	cp := *exec
	a.submit(ctx, Op{Name: OpRecordNodeExecution, RunID: exec.RunID, NodeID: exec.NodeID}, func(ctx context.Context) error {
		return a.inner.RecordNodeExecution(ctx, &cp)
	})
	return nil
}

// FinalizeRun implements Recorder.
func (a *AsyncRecorder) FinalizeRun(ctx context.Context, runID string, res RunResult) error {
	a.submit(ctx, Op{Name: OpFinalizeRun, RunID: runID}, func(ctx context.Context) error {
		return a.inner.FinalizeRun(ctx, runID, res)
	})
	return nil
}

func (a *AsyncRecorder) submit(ctx context.Context, op Op, fn func(context.Context) error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.fail(op, ErrStoreClosed)
		return
	}
	q := a.queues[op.RunID]
	if q == nil {
		q = &runQueue{runID: op.RunID}
		a.queues[op.RunID] = q
	}
	a.pending.Add(1)
	q.pending.Add(1)

	q.mu.Lock()
	// Writes outlive run cancellation.
	q.tasks = append(q.tasks, task{op: op, ctx: context.WithoutCancel(ctx), fn: fn})
	start := !q.running
	q.running = true
	q.mu.Unlock()
	a.mu.Unlock()

	if !start {
		return
	}
	if err := a.pool.Invoke(q); err != nil {
		a.drain(q)
	}
}

func (a *AsyncRecorder) drain(q *runQueue) {
	for {
		q.mu.Lock()
		if len(q.tasks) == 0 {
			q.running = false
			q.mu.Unlock()
			a.forget(q)
			return
		}
		t := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.mu.Unlock()

		if err := t.fn(t.ctx); err != nil {
			a.fail(t.op, err)
		}
		q.pending.Done()
		a.pending.Done()
	}
}

func (a *AsyncRecorder) fail(op Op, err error) {
	if a.onError != nil {
		a.onError(op, err)
	}
}

// forget drops an idle queue so finished runs do not accumulate.
func (a *AsyncRecorder) forget(q *runQueue) {
	a.mu.Lock()
	defer a.mu.Unlock()
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.tasks) == 0 && !q.running && a.queues[q.runID] == q {
		delete(a.queues, q.runID)
	}
}

// WaitRun blocks until every write submitted for runID has been applied.
func (a *AsyncRecorder) WaitRun(runID string) {
	a.mu.Lock()
	q := a.queues[runID]
	a.mu.Unlock()
	if q != nil {
		q.pending.Wait()
	}
}

// Flush blocks until every submitted write has been applied.
func (a *AsyncRecorder) Flush() {
	a.pending.Wait()
}

// Close flushes pending writes and releases the workers. Later writes fail
// with ErrStoreClosed.
func (a *AsyncRecorder) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	a.Flush()
	a.pool.Release()
	return nil
}
