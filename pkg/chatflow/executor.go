package chatflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"github.com/randalmurphal/chatflow/pkg/chatflow/event"
	"github.com/randalmurphal/chatflow/pkg/chatflow/expr"
	"github.com/randalmurphal/chatflow/pkg/chatflow/node"
	"github.com/randalmurphal/chatflow/pkg/chatflow/observability"
	"github.com/randalmurphal/chatflow/pkg/chatflow/pool"
	"github.com/randalmurphal/chatflow/pkg/chatflow/service"
	"github.com/randalmurphal/chatflow/pkg/chatflow/store"
)

// Executor runs workflow graphs. One Executor may run many graphs
// concurrently; each Execute call owns its own pool and service view.
type Executor struct {
	registry *node.Registry
	cfg      executorConfig
	recorder store.Recorder
	async    *store.AsyncRecorder
}

// NewExecutor creates an executor that builds nodes from reg.
func NewExecutor(reg *node.Registry, opts ...ExecutorOption) *Executor {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Executor{registry: reg, cfg: cfg, recorder: cfg.recorder}
	if cfg.recorder != nil && cfg.asyncWorkers > 0 {
		async, err := store.NewAsyncRecorder(cfg.recorder, cfg.asyncWorkers,
			store.WithErrorHandler(func(op store.Op, err error) {
				e.persistenceFailed(context.Background(), op.RunID, op.Name, op.NodeID, err)
			}),
		)
		if err != nil {
			cfg.logger.Warn("async persistence unavailable, writing synchronously", "error", err)
		} else {
			e.async = async
			e.recorder = async
		}
	}
	return e
}

// Registry returns the node registry the executor builds nodes from.
func (e *Executor) Registry() *node.Registry {
	return e.registry
}

// Close waits for pending persistence writes and releases the persistence
// workers. It does not close the underlying recorder.
func (e *Executor) Close() error {
	if e.async != nil {
		return e.async.Close()
	}
	return nil
}

// run is the state of one Execute call.
type run struct {
	e      *Executor
	id     string
	req    Request
	plan   *plan
	sched  *schedule
	pool   *pool.Pool
	rc     *node.RunContext
	start  time.Time
	order  []string
	tokens int
}

// Execute runs g for one conversational turn.
//
// The graph is validated before any node runs; a rejected graph returns a
// nil Result. Otherwise the returned Result describes the run even when err
// is non-nil.
//
// Execution flow:
//  1. Validate and order the graph
//  2. Load conversation variables and seed the pool
//  3. Run ready nodes one at a time in FIFO order, pruning branches not taken
//  4. Extract the response from the terminal node
//  5. Save changed conversation variables and finalize the run record
func (e *Executor) Execute(ctx context.Context, g *Graph, req Request) (res *Result, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if e.cfg.depth > e.cfg.maxDepth {
		return nil, fmt.Errorf("%w: depth %d, max %d", ErrMaxDepthExceeded, e.cfg.depth, e.cfg.maxDepth)
	}

	known := make(map[string]bool, len(req.InitialOutputs))
	for id := range req.InitialOutputs {
		known[id] = true
	}
	p, err := compile(g, e.registry, known, e.cfg.logger)
	if err != nil {
		return nil, err
	}

	r := &run{
		e:     e,
		id:    req.RunID,
		req:   req,
		plan:  p,
		sched: newSchedule(p),
		start: time.Now(),
	}
	if r.id == "" {
		r.id = uuid.New().String()
	}

	r.pool = pool.New(
		pool.WithLogger(e.cfg.logger.With("run_id", r.id)),
		pool.WithEnvironment(g.Environment),
		pool.WithConversation(e.loadConversation(ctx, r.id, g, req)),
		pool.WithSystem(map[string]any{
			pool.SysSessionID:   req.SessionID,
			pool.SysUserMessage: req.UserMessage,
			pool.SysBotID:       req.BotID,
			pool.SysRunID:       r.id,
		}),
	)
	for id, outs := range req.InitialOutputs {
		r.pool.SetOutputs(id, outs)
	}

	ctx, runSpan := e.cfg.spans.StartRunSpan(ctx, r.id, e.cfg.depth)
	defer func() {
		e.cfg.spans.EndSpanWithError(runSpan, err)
	}()

	services := e.cfg.services
	if services == nil {
		services = service.NewContainer()
	}
	r.rc = node.NewRunContext(ctx,
		node.WithLogger(e.cfg.logger),
		node.WithPool(r.pool),
		node.WithServices(services),
		node.WithRegistry(e.registry),
		node.WithRunID(r.id),
		node.WithDepth(e.cfg.depth, e.cfg.maxDepth),
	)

	e.persist(ctx, r.id, store.OpCreateRun, "", func(ctx context.Context, rec store.Recorder) error {
		return rec.CreateRun(ctx, &store.RunRecord{
			ID:        r.id,
			BotID:     req.BotID,
			SessionID: req.SessionID,
			Graph:     g.Document(),
			Inputs: map[string]any{
				pool.SysUserMessage: req.UserMessage,
				pool.SysSessionID:   req.SessionID,
			},
			Status:    store.StatusRunning,
			StartedAt: r.start,
		})
	})
	e.publish(ctx, event.New(event.TypeRunStarted, r.id, event.RunStarted{
		SessionID: req.SessionID,
		NodeCount: len(p.declared),
		Depth:     e.cfg.depth,
	}))
	observability.LogRunStart(e.cfg.logger, r.id, len(p.declared), e.cfg.depth)

	runErr := r.loop(ctx)
	return r.finish(ctx, runErr)
}

// loop drains the ready-queue.
func (r *run) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return &CancelledError{
				NodeID:   r.sched.peek(),
				Executed: r.rc.Executed(),
				Cause:    ctx.Err(),
			}
		default:
		}

		id, ok := r.sched.next()
		if !ok {
			return nil
		}
		if err := r.executeNode(ctx, id); err != nil {
			return err
		}
	}
}

// executeNode gathers inputs, invokes one node and records the outcome.
func (r *run) executeNode(ctx context.Context, id string) error {
	e := r.e
	n := r.plan.nodes[id]
	logger := e.cfg.logger.With("run_id", r.id)

	observability.LogNodeStart(logger, id, n.Type())
	e.publish(ctx, event.New(event.TypeNodeRunning, r.id, event.NodeStatus{
		NodeID:   id,
		NodeType: n.Type(),
		Status:   string(store.StatusRunning),
	}))

	nodeCtx, span := e.cfg.spans.StartNodeSpan(ctx, id, n.Type())
	started := time.Now()

	in, err := gatherInputs(n, r.pool)
	var out node.Outputs
	nctx := r.rc.ForNode(id, n.Type()).WithContext(nodeCtx)
	if err == nil {
		out, err = invoke(nctx, n, in)
	}

	duration := time.Since(started)
	e.cfg.metrics.RecordNodeExecution(nodeCtx, n.Type(), duration, err)
	e.cfg.spans.EndSpanWithError(span, err)

	exec := &store.NodeExecution{
		ID:         uuid.New().String(),
		RunID:      r.id,
		NodeID:     id,
		NodeType:   n.Type(),
		Order:      len(r.order) + 1,
		Inputs:     in,
		Outputs:    out,
		Status:     store.StatusSucceeded,
		StartedAt:  started,
		FinishedAt: started.Add(duration),
		ElapsedMs:  duration.Milliseconds(),
	}

	if err != nil {
		exec.Status = store.StatusFailed
		exec.Error = err.Error()
		cancelled := ctx.Err() != nil &&
			(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
		if cancelled {
			exec.Status = store.StatusCancelled
		}
		e.persist(ctx, r.id, store.OpRecordNodeExecution, id, func(ctx context.Context, rec store.Recorder) error {
			return rec.RecordNodeExecution(ctx, exec)
		})
		observability.LogNodeError(logger, id, err)
		e.publish(ctx, event.New(event.TypeNodeFailed, r.id, event.NodeStatus{
			NodeID:     id,
			NodeType:   n.Type(),
			Status:     string(exec.Status),
			DurationMs: float64(duration.Microseconds()) / 1000,
			Error:      err.Error(),
		}))
		if cancelled {
			return &CancelledError{
				NodeID:       id,
				Executed:     r.rc.Executed(),
				Cause:        ctx.Err(),
				WasExecuting: true,
			}
		}
		var nodeErr *NodeExecutionError
		if errors.As(err, &nodeErr) && nodeErr.NodeID == id {
			return err
		}
		return &NodeExecutionError{NodeID: id, NodeType: n.Type(), Err: err}
	}

	if tr, ok := n.(node.TokenReporter); ok {
		exec.TokensUsed = tr.TokensUsed(out)
		r.tokens += exec.TokensUsed
	}
	r.pool.SetOutputs(id, out)
	r.rc.MarkExecuted(id)
	r.order = append(r.order, id)

	e.persist(ctx, r.id, store.OpRecordNodeExecution, id, func(ctx context.Context, rec store.Recorder) error {
		return rec.RecordNodeExecution(ctx, exec)
	})
	observability.LogNodeComplete(logger, id, float64(duration.Microseconds())/1000)
	e.publish(ctx, event.New(event.TypeNodeCompleted, r.id, event.NodeStatus{
		NodeID:     id,
		NodeType:   n.Type(),
		Status:     string(store.StatusSucceeded),
		Preview:    event.Preview(map[string]any(out)),
		DurationMs: float64(duration.Microseconds()) / 1000,
	}))

	handles, declared := nctx.NextEdges()
	if pruned := r.sched.complete(id, handles, declared); pruned > 0 {
		e.cfg.metrics.RecordPrunedNodes(ctx, pruned)
	}
	return nil
}

// invoke calls Execute, converting a panic into a *PanicError.
func invoke(ctx node.Context, n node.Node, in node.Inputs) (out node.Outputs, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out = nil
			err = &PanicError{
				NodeID: n.ID(),
				Value:  rec,
				Stack:  string(debug.Stack()),
			}
		}
	}()
	out, err = n.Execute(ctx, in)
	if out == nil && err == nil {
		out = node.Outputs{}
	}
	return out, err
}

// finish extracts the response, flushes conversation variables and closes
// the run record.
func (r *run) finish(ctx context.Context, runErr error) (*Result, error) {
	e := r.e
	logger := e.cfg.logger.With("run_id", r.id)

	res := &Result{
		RunID:     r.id,
		Status:    store.StatusSucceeded,
		NodeOrder: r.order,
		Pruned:    r.sched.prunedNodes(),
		Outputs:   make(map[string]map[string]any, len(r.order)),
		pool:      r.pool,
	}
	for _, id := range r.order {
		res.Outputs[id] = r.pool.Outputs(id)
	}

	if runErr == nil {
		if stranded := r.sched.stranded(); len(stranded) > 0 {
			observability.LogSkippedNodes(e.cfg.logger, r.id, stranded)
		}
		res.Response, runErr = r.response()
	}

	if runErr == nil {
		r.flushConversation(ctx, logger)
	}

	var cancelled *CancelledError
	switch {
	case errors.As(runErr, &cancelled):
		res.Status = store.StatusCancelled
	case runErr != nil:
		res.Status = store.StatusFailed
	}
	res.TotalTokens = r.tokens
	res.Duration = time.Since(r.start)

	result := store.RunResult{
		Status:      res.Status,
		FinishedAt:  r.start.Add(res.Duration),
		ElapsedMs:   res.Duration.Milliseconds(),
		TotalTokens: res.TotalTokens,
		TotalSteps:  len(r.order),
	}
	if runErr != nil {
		result.Error = runErr.Error()
	} else {
		result.Outputs = map[string]any{"response": res.Response}
	}
	e.persist(ctx, r.id, store.OpFinalizeRun, "", func(ctx context.Context, rec store.Recorder) error {
		return rec.FinalizeRun(ctx, r.id, result)
	})

	durationMs := float64(res.Duration.Microseconds()) / 1000
	finished := event.RunFinished{
		Status:      string(res.Status),
		Response:    res.Response,
		TotalTokens: res.TotalTokens,
		DurationMs:  durationMs,
	}
	if runErr != nil {
		finished.Error = runErr.Error()
	}
	e.publish(ctx, event.New(event.TypeRunFinished, r.id, finished))
	e.cfg.metrics.RecordRun(ctx, string(res.Status), res.Duration, res.TotalTokens)

	if runErr != nil {
		observability.LogRunError(e.cfg.logger, r.id, runErr, durationMs, lastNode(runErr, r.order))
	} else {
		observability.LogRunComplete(e.cfg.logger, r.id, durationMs, len(r.order), res.TotalTokens)
	}

	if e.async != nil {
		e.async.WaitRun(r.id)
	}
	return res, runErr
}

// response returns the last executed terminal node's final_output.response,
// falling back to the response port of the last response producer.
func (r *run) response() (string, error) {
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		if !node.IsTerminal(r.plan.nodes[id]) {
			continue
		}
		final, ok := r.pool.Output(id, "final_output")
		if !ok {
			continue
		}
		if m, ok := final.(map[string]any); ok {
			if resp, ok := m["response"]; ok {
				return expr.ToString(resp), nil
			}
		}
	}
	for i := len(r.order) - 1; i >= 0; i-- {
		id := r.order[i]
		rp, ok := r.plan.nodes[id].(node.ResponseProducer)
		if !ok {
			continue
		}
		if v, ok := r.pool.Output(id, rp.ResponsePort()); ok {
			return expr.ToString(v), nil
		}
	}
	return "", ErrNoResponse
}

func (r *run) flushConversation(ctx context.Context, logger *slog.Logger) {
	e := r.e
	dirty := r.pool.DrainDirtyConversation()
	if len(dirty) == 0 || e.cfg.conversations == nil || r.req.SessionID == "" {
		return
	}
	err := e.cfg.conversations.SaveConversation(context.WithoutCancel(ctx), r.req.BotID, r.req.SessionID, dirty)
	if err != nil {
		e.persistenceFailed(ctx, r.id, store.OpSaveConversation, "", err)
		return
	}
	r.pool.ClearDirty()
	logger.Debug("conversation variables saved", "count", len(dirty))
}

// loadConversation overlays stored conversation variables on the graph's
// declared defaults.
func (e *Executor) loadConversation(ctx context.Context, runID string, g *Graph, req Request) map[string]any {
	conv := maps.Clone(g.Conversation)
	if conv == nil {
		conv = make(map[string]any)
	}
	if e.cfg.conversations == nil || req.SessionID == "" {
		return conv
	}
	stored, err := e.cfg.conversations.LoadConversation(ctx, req.BotID, req.SessionID)
	if err != nil {
		e.persistenceFailed(ctx, runID, store.OpLoadConversation, "", err)
		return conv
	}
	maps.Copy(conv, stored)
	return conv
}

// persist runs one recorder call. Failures are reported and swallowed.
func (e *Executor) persist(ctx context.Context, runID, op, nodeID string, fn func(context.Context, store.Recorder) error) {
	if e.recorder == nil {
		return
	}
	if err := fn(context.WithoutCancel(ctx), e.recorder); err != nil {
		e.persistenceFailed(ctx, runID, op, nodeID, err)
	}
}

func (e *Executor) persistenceFailed(ctx context.Context, runID, op, nodeID string, err error) {
	observability.LogPersistenceError(e.cfg.logger, runID, op, err)
	e.cfg.metrics.RecordPersistenceFailure(context.WithoutCancel(ctx), op)
	e.publish(ctx, event.New(event.TypePersistenceFailed, runID, event.PersistenceFailed{
		Operation: op,
		NodeID:    nodeID,
		Error:     err.Error(),
	}))
}

func (e *Executor) publish(ctx context.Context, evt event.Event) {
	if e.cfg.events == nil {
		return
	}
	if err := e.cfg.events.Publish(context.WithoutCancel(ctx), evt); err != nil {
		e.cfg.logger.Debug("event not published",
			"event_type", evt.Type(),
			"run_id", evt.RunID(),
			"error", err,
		)
	}
}

func lastNode(err error, order []string) string {
	var nodeErr *NodeExecutionError
	var cancelled *CancelledError
	switch {
	case errors.As(err, &nodeErr):
		return nodeErr.NodeID
	case errors.As(err, &cancelled):
		return cancelled.NodeID
	case len(order) > 0:
		return order[len(order)-1]
	}
	return ""
}
