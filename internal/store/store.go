package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/authprobe/internal/reporting"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// ErrRunNotFound is returned by LoadRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the run history tables. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    url          TEXT NOT NULL,
    run_at       TIMESTAMPTZ NOT NULL,
    total        INTEGER NOT NULL,
    passed       INTEGER NOT NULL,
    failed       INTEGER NOT NULL,
    success_rate DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS test_results (
    run_id      TEXT NOT NULL REFERENCES runs (id) ON DELETE CASCADE,
    seq         INTEGER NOT NULL,
    name        TEXT NOT NULL,
    passed      BOOLEAN NOT NULL,
    details     TEXT NOT NULL,
    screenshot  TEXT NOT NULL,
    recorded_at TIMESTAMPTZ,
    PRIMARY KEY (run_id, seq)
);`

const (
	sqlInsertRun = `
        INSERT INTO runs (id, url, run_at, total, passed, failed, success_rate)
        VALUES ($1, $2, $3, $4, $5, $6, $7);
    `
	sqlSelectRun = `
        SELECT url, run_at, total, passed, failed, success_rate
        FROM runs
        WHERE id = $1;
    `
	sqlSelectResults = `
        SELECT name, passed, details, screenshot, recorded_at
        FROM test_results
        WHERE run_id = $1
        ORDER BY seq ASC;
    `
)

var resultColumns = []string{"run_id", "seq", "name", "passed", "details", "screenshot", "recorded_at"}

// Store persists run reports in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool cannot be nil")
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Connect opens a pool for url and wraps it in a Store. The caller closes the
// returned pool.
func Connect(ctx context.Context, url string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// EnsureSchema creates the tables when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun stores the report and its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, r *reporting.Report) error {
	if r == nil || r.RunID == "" {
		return errors.New("report must carry a run ID")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertRun,
		r.RunID, r.URL, r.Date.UTC(),
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.SuccessRate,
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}

	if len(r.Results) > 0 {
		if err := s.persistResults(ctx, tx, r.RunID, r.Results); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Run persisted.", zap.String("run_id", r.RunID), zap.Int("results", len(r.Results)))
	return nil
}

func (s *Store) persistResults(ctx context.Context, tx pgx.Tx, runID string, rs []results.TestResult) error {
	rows := make([][]any, len(rs))
	for i, tr := range rs {
		var recordedAt any
		if !tr.Timestamp.IsZero() {
			recordedAt = tr.Timestamp.UTC()
		}
		rows[i] = []any{runID, i, tr.Name, tr.Passed, tr.Details, tr.Screenshot, recordedAt}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"test_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy test results: %w", err)
	}
	if int(copyCount) != len(rs) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(rs), copyCount)
	}
	return nil
}

// LoadRun rebuilds the report of a stored run. Timestamps are returned in
// local time so the report renders as it did when written.
func (s *Store) LoadRun(ctx context.Context, runID string) (*reporting.Report, error) {
	r := &reporting.Report{RunID: runID}
	var runAt time.Time
	err := s.pool.QueryRow(ctx, sqlSelectRun, runID).Scan(
		&r.URL, &runAt,
		&r.Summary.Total, &r.Summary.Passed, &r.Summary.Failed, &r.Summary.SuccessRate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run %s: %w", runID, err)
	}
	r.Date = results.NewTimestamp(runAt.Local())

	rows, err := s.pool.Query(ctx, sqlSelectResults, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query test results: %w", err)
	}
	defer rows.Close()

	r.Results = []results.TestResult{}
	for rows.Next() {
		var tr results.TestResult
		var recordedAt *time.Time
		if err := rows.Scan(&tr.Name, &tr.Passed, &tr.Details, &tr.Screenshot, &recordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan test result row: %w", err)
		}
		if recordedAt != nil {
			tr.Timestamp = results.NewTimestamp(recordedAt.Local())
		}
		r.Results = append(r.Results, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return r, nil
}
