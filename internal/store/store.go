// Package store persists traces, their event streams, and QA results in
// SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"
	_ "modernc.org/sqlite"

	"github.com/tracelab-ai/tracelab/pkg/types"
)

// Store is a SQLite-backed trace store.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at path and prepares the
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s, err := New(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New creates the traces, events, and qa_results tables if they don't
// exist, then returns a Store backed by the provided *sql.DB.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS traces (
			trace_id        TEXT    PRIMARY KEY,
			developer_id    TEXT    NOT NULL,
			repo_url        TEXT    NOT NULL,
			bug_description TEXT    NOT NULL,
			status          TEXT    NOT NULL,
			error_detail    TEXT    NOT NULL DEFAULT '',
			created_at      TEXT    NOT NULL,
			updated_at      TEXT    NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create traces table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS events (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT    NOT NULL REFERENCES traces(trace_id),
			payload  TEXT    NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create events table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_events_trace_id
		ON events (trace_id, id)
	`); err != nil {
		return nil, fmt.Errorf("create events index: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS qa_results (
			trace_id        TEXT PRIMARY KEY REFERENCES traces(trace_id),
			tests_passed    INTEGER NOT NULL,
			test_output     TEXT    NOT NULL,
			reasoning_score REAL    NOT NULL,
			detailed_scores TEXT    NOT NULL,
			strengths       TEXT    NOT NULL,
			weaknesses      TEXT    NOT NULL,
			recommendations TEXT    NOT NULL,
			judge_comments  TEXT    NOT NULL,
			evaluated_at    TEXT    NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("create qa_results table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateTrace inserts a trace and its initial events in one transaction.
func (s *Store) CreateTrace(ctx context.Context, trace *types.Trace) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create trace: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if trace.CreatedAt == "" {
		trace.CreatedAt = now
	}
	if trace.UpdatedAt == "" {
		trace.UpdatedAt = now
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO traces (trace_id, developer_id, repo_url, bug_description, status, error_detail, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		trace.TraceID, trace.DeveloperID, trace.RepoURL, trace.BugDescription, trace.Status, trace.ErrorDetail, trace.CreatedAt, trace.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert trace: %w", err)
	}

	for i := range trace.Events {
		if err := insertEvent(ctx, tx, trace.TraceID, &trace.Events[i]); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create trace: %w", err)
	}
	return nil
}

// AppendEvents appends events to a pending trace. Appending to a trace
// that is processing or terminal fails with types.ErrTraceFrozen.
func (s *Store) AppendEvents(ctx context.Context, traceID string, events []types.Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append events: %w", err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM traces WHERE trace_id = ?`, traceID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("trace %s: %w", traceID, types.ErrTraceNotFound)
	}
	if err != nil {
		return fmt.Errorf("query trace status: %w", err)
	}
	if status != types.StatusPending {
		return fmt.Errorf("trace %s has status %q: %w", traceID, status, types.ErrTraceFrozen)
	}

	for i := range events {
		if err := insertEvent(ctx, tx, traceID, &events[i]); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE traces SET updated_at = ? WHERE trace_id = ?`,
		time.Now().UTC().Format(time.RFC3339), traceID,
	); err != nil {
		return fmt.Errorf("touch trace: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append events: %w", err)
	}
	return nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, traceID string, event *types.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (trace_id, payload) VALUES (?, ?)`,
		traceID, string(payload),
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// GetTrace loads a trace, its events in recorded order, and its QA result
// if one exists. Returns types.ErrTraceNotFound for unknown ids.
func (s *Store) GetTrace(ctx context.Context, traceID string) (*types.Trace, error) {
	trace := &types.Trace{TraceID: traceID}
	err := s.db.QueryRowContext(ctx,
		`SELECT developer_id, repo_url, bug_description, status, error_detail, created_at, updated_at
		 FROM traces WHERE trace_id = ?`,
		traceID,
	).Scan(&trace.DeveloperID, &trace.RepoURL, &trace.BugDescription, &trace.Status,
		&trace.ErrorDetail, &trace.CreatedAt, &trace.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trace %s: %w", traceID, types.ErrTraceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query trace: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM events WHERE trace_id = ? ORDER BY id`,
		traceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		var event types.Event
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		trace.Events = append(trace.Events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query events rows: %w", err)
	}

	result, err := s.getResult(ctx, traceID)
	if err != nil {
		return nil, err
	}
	trace.QAResult = result
	return trace, nil
}

func (s *Store) getResult(ctx context.Context, traceID string) (*types.QAResult, error) {
	var (
		result                              types.QAResult
		testsPassed                         int
		scores, strengths, weaknesses, recs string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT tests_passed, test_output, reasoning_score, detailed_scores,
		        strengths, weaknesses, recommendations, judge_comments, evaluated_at
		 FROM qa_results WHERE trace_id = ?`,
		traceID,
	).Scan(&testsPassed, &result.TestOutput, &result.OverallScore, &scores,
		&strengths, &weaknesses, &recs, &result.JudgeComments, &result.EvaluatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query qa result: %w", err)
	}

	result.TestsPassed = testsPassed != 0
	for _, col := range []struct {
		raw string
		dst any
	}{
		{scores, &result.DetailedScores},
		{strengths, &result.Strengths},
		{weaknesses, &result.Weaknesses},
		{recs, &result.Recommendations},
	} {
		if err := json.Unmarshal([]byte(col.raw), col.dst); err != nil {
			return nil, fmt.Errorf("decode qa result column: %w", err)
		}
	}
	return &result, nil
}

// UpdateTraceStatus sets a trace's status. Unknown ids fail with
// types.ErrTraceNotFound.
func (s *Store) UpdateTraceStatus(ctx context.Context, traceID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE traces SET status = ?, updated_at = ? WHERE trace_id = ?`,
		status, time.Now().UTC().Format(time.RFC3339), traceID,
	)
	if err != nil {
		return fmt.Errorf("update trace status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update trace status: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trace %s: %w", traceID, types.ErrTraceNotFound)
	}
	return nil
}

// SaveResult stores the QA result and marks the trace completed in one
// transaction.
func (s *Store) SaveResult(ctx context.Context, traceID string, result *types.QAResult) error {
	scores, err := json.Marshal(result.DetailedScores)
	if err != nil {
		return fmt.Errorf("marshal detailed scores: %w", err)
	}
	strengths, err := json.Marshal(emptyIfNil(result.Strengths))
	if err != nil {
		return fmt.Errorf("marshal strengths: %w", err)
	}
	weaknesses, err := json.Marshal(emptyIfNil(result.Weaknesses))
	if err != nil {
		return fmt.Errorf("marshal weaknesses: %w", err)
	}
	recs, err := json.Marshal(emptyIfNil(result.Recommendations))
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save result: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO qa_results (trace_id, tests_passed, test_output, reasoning_score,
		                         detailed_scores, strengths, weaknesses, recommendations,
		                         judge_comments, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		traceID, boolToInt(result.TestsPassed), result.TestOutput, result.OverallScore,
		string(scores), string(strengths), string(weaknesses), string(recs),
		result.JudgeComments, result.EvaluatedAt,
	); err != nil {
		return fmt.Errorf("insert qa result: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE traces SET status = ?, updated_at = ? WHERE trace_id = ?`,
		types.StatusCompleted, time.Now().UTC().Format(time.RFC3339), traceID,
	)
	if err != nil {
		return fmt.Errorf("mark trace completed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark trace completed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trace %s: %w", traceID, types.ErrTraceNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save result: %w", err)
	}
	return nil
}

// SaveFailure marks the trace failed and records the error detail.
func (s *Store) SaveFailure(ctx context.Context, traceID, detail string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE traces SET status = ?, error_detail = ?, updated_at = ? WHERE trace_id = ?`,
		types.StatusFailed, detail, time.Now().UTC().Format(time.RFC3339), traceID,
	)
	if err != nil {
		return fmt.Errorf("mark trace failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark trace failed: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("trace %s: %w", traceID, types.ErrTraceNotFound)
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
