package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists runs, node executions and conversation variables to
// SQLite. It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var (
	_ Recorder          = (*SQLiteStore)(nil)
	_ Reader            = (*SQLiteStore)(nil)
	_ ConversationStore = (*SQLiteStore)(nil)
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflow_runs (
		id TEXT PRIMARY KEY,
		bot_id TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		graph TEXT,
		inputs TEXT,
		outputs TEXT,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT '',
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		total_steps INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_runs_bot ON workflow_runs(bot_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_runs_session ON workflow_runs(session_id)`,
	`CREATE TABLE IF NOT EXISTS node_executions (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL REFERENCES workflow_runs(id) ON DELETE CASCADE,
		node_id TEXT NOT NULL,
		node_type TEXT NOT NULL,
		execution_order INTEGER NOT NULL,
		inputs TEXT,
		outputs TEXT,
		status TEXT NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		tokens_used INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_node_executions_run ON node_executions(run_id, execution_order)`,
	`CREATE TABLE IF NOT EXISTS conversation_variables (
		bot_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (bot_id, session_id, key)
	)`,
}

// NewSQLiteStore opens (or creates) a database at path. Use ":memory:" for
// tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: in-memory databases are per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// CreateRun implements Recorder.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *RunRecord) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	status := run.Status
	if status == "" {
		status = StatusRunning
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (id, bot_id, session_id, graph, inputs, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.BotID, run.SessionID, encodeJSON(run.Graph), encodeJSON(run.Inputs), string(status), formatTime(started))
	if err != nil {
		return fmt.Errorf("create run %s: %w", run.ID, err)
	}
	return nil
}

// RecordNodeExecution implements Recorder.
func (s *SQLiteStore) RecordNodeExecution(ctx context.Context, exec *NodeExecution) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO node_executions (
			id, run_id, node_id, node_type, execution_order, inputs, outputs,
			status, error_message, started_at, finished_at, elapsed_ms, tokens_used
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.ID, exec.RunID, exec.NodeID, exec.NodeType, exec.Order,
		encodeJSON(exec.Inputs), encodeJSON(exec.Outputs),
		string(exec.Status), exec.Error, formatTime(exec.StartedAt), formatTime(exec.FinishedAt),
		exec.ElapsedMs, exec.TokensUsed)
	if err != nil {
		return fmt.Errorf("record node %s: %w", exec.NodeID, err)
	}
	return nil
}

// FinalizeRun implements Recorder.
func (s *SQLiteStore) FinalizeRun(ctx context.Context, runID string, res RunResult) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_runs
		SET status = ?, outputs = ?, error_message = ?, finished_at = ?,
			elapsed_ms = ?, total_tokens = ?, total_steps = ?
		WHERE id = ?
	`, string(res.Status), encodeJSON(res.Outputs), res.Error, formatTime(finished),
		res.ElapsedMs, res.TotalTokens, res.TotalSteps, runID)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finalize run %s: %w", runID, ErrNotFound)
	}
	return nil
}

const runColumns = `id, bot_id, session_id, graph, inputs, outputs, status, error_message,
	started_at, finished_at, elapsed_ms, total_tokens, total_steps`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		run                     RunRecord
		graph, inputs, outputs  sql.NullString
		status, started, finish string
	)
	if err := row.Scan(&run.ID, &run.BotID, &run.SessionID, &graph, &inputs, &outputs,
		&status, &run.Error, &started, &finish, &run.ElapsedMs, &run.TotalTokens, &run.TotalSteps); err != nil {
		return nil, err
	}
	run.Status = Status(status)
	run.Graph = decodeJSON(graph)
	run.Inputs = decodeJSON(inputs)
	run.Outputs = decodeJSON(outputs)
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finish)
	return &run, nil
}

// Run implements Reader.
func (s *SQLiteStore) Run(ctx context.Context, runID string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM workflow_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return run, nil
}

// NodeExecutions implements Reader.
func (s *SQLiteStore) NodeExecutions(ctx context.Context, runID string) ([]NodeExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, node_id, node_type, execution_order, inputs, outputs,
			status, error_message, started_at, finished_at, elapsed_ms, tokens_used
		FROM node_executions
		WHERE run_id = ?
		ORDER BY execution_order
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("list node executions: %w", err)
	}
	defer rows.Close()

	var out []NodeExecution
	for rows.Next() {
		var (
			e                       NodeExecution
			inputs, outputs         sql.NullString
			status, started, finish string
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.NodeID, &e.NodeType, &e.Order, &inputs, &outputs,
			&status, &e.Error, &started, &finish, &e.ElapsedMs, &e.TokensUsed); err != nil {
			return nil, fmt.Errorf("scan node execution: %w", err)
		}
		e.Status = Status(status)
		e.Inputs = decodeJSON(inputs)
		e.Outputs = decodeJSON(outputs)
		e.StartedAt = parseTime(started)
		e.FinishedAt = parseTime(finish)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (f RunFilter) where() (string, []any) {
	var clauses []string
	var args []any
	if f.BotID != "" {
		clauses = append(clauses, "bot_id = ?")
		args = append(args, f.BotID)
	}
	if f.SessionID != "" {
		clauses = append(clauses, "session_id = ?")
		args = append(args, f.SessionID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(f.Status))
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "started_at <= ?")
		args = append(args, formatTime(f.Until))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListRuns implements Reader.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) (*RunPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	where, args := filter.where()
	page := &RunPage{Limit: filter.limit(), Offset: filter.Offset}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM workflow_runs`+where, args...).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs`+where+` ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		page.Items = append(page.Items, *run)
	}
	return page, rows.Err()
}

// Stats implements Reader.
func (s *SQLiteStore) Stats(ctx context.Context, botID string, since, until time.Time) (*RunStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	where, args := RunFilter{BotID: botID, Since: since, Until: until}.where()
	var (
		stats RunStats
		avg   sql.NullFloat64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'succeeded' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN finished_at != '' THEN elapsed_ms END),
			COALESCE(SUM(total_tokens), 0)
		FROM workflow_runs`+where, args...).
		Scan(&stats.TotalRuns, &stats.SucceededRuns, &stats.FailedRuns, &avg, &stats.TotalTokens)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	stats.AvgElapsedMs = avg.Float64
	return &stats, nil
}

// DeleteRun implements Reader.
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM node_executions WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("delete node executions of %s: %w", runID, err)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow_runs WHERE id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadConversation implements ConversationStore.
func (s *SQLiteStore) LoadConversation(ctx context.Context, botID, sessionID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT key, value FROM conversation_variables
		WHERE bot_id = ? AND session_id = ?
	`, botID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	defer rows.Close()

	vars := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan conversation variable: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("decode conversation variable %q: %w", key, err)
		}
		vars[key] = v
	}
	return vars, rows.Err()
}

// SaveConversation implements ConversationStore. All keys are written in one
// transaction.
func (s *SQLiteStore) SaveConversation(ctx context.Context, botID, sessionID string, vars map[string]any) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if len(vars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	now := formatTime(time.Now())
	for key, v := range vars {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode conversation variable %q: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_variables (bot_id, session_id, key, value, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(bot_id, session_id, key) DO UPDATE SET
				value = excluded.value,
				updated_at = excluded.updated_at
		`, botID, sessionID, key, string(raw), now); err != nil {
			return fmt.Errorf("save conversation variable %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Close closes the database. It is safe to call more than once.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeJSON(m map[string]any) any {
	if m == nil {
		return nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		// Values that cannot be encoded are recorded as a marker.
		b, _ = json.Marshal(map[string]any{"_encode_error": err.Error()})
	}
	return string(b)
}

func decodeJSON(s sql.NullString) map[string]any {
	if !s.Valid || s.String == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil
	}
	return m
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
