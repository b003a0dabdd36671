package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/authprobe/internal/reporting"
	"github.com/xkilldash9x/authprobe/internal/results"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(any) bool

func (f ArgumentMatcherFunc) Match(v any) bool {
	return f(v)
}

// sameInstant matches a time.Time argument equal to want.
func sameInstant(want time.Time) ArgumentMatcherFunc {
	return func(v any) bool {
		got, ok := v.(time.Time)
		return ok && got.Equal(want)
	}
}

var runAt = time.Date(2025, 2, 3, 14, 0, 0, 0, time.Local)

func testReport() *reporting.Report {
	ts := results.NewTimestamp(runAt)
	rs := []results.TestResult{
		{Name: "Login avec credentials valides", Passed: true, Details: "ok", Timestamp: ts},
		{Name: "Protection XSS", Passed: false, Details: "Vulnérabilités détectées: Alerte XSS déclenchée: XSS", Timestamp: ts, Screenshot: "screenshots/2_protection_xss.png"},
	}
	return reporting.NewReport("http://localhost:4201", "run-42", rs, runAt)
}

func newTestStore(t *testing.T) (*Store, pgxmock.PgxPoolIface, *observer.ObservedLogs) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	core, logs := observer.New(zapcore.InfoLevel)
	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, zap.New(core))
	require.NoError(t, err)
	return s, mockPool, logs
}

func expectRunInsert(mock pgxmock.PgxPoolIface, r *reporting.Report) *pgxmock.ExpectedExec {
	return mock.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(
		r.RunID, r.URL, sameInstant(r.Date.Time),
		r.Summary.Total, r.Summary.Passed, r.Summary.Failed, r.Summary.SuccessRate,
	)
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a nil pool", func(t *testing.T) {
		_, err := New(context.Background(), nil, zap.NewNop())
		assert.EqualError(t, err, "pool cannot be nil")
	})
}

func TestEnsureSchema(t *testing.T) {
	s, mock, _ := newTestStore(t)
	mock.ExpectExec(flexibleSQLMatcher(Schema)).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveRun(t *testing.T) {
	t.Run("should persist run and results in one transaction", func(t *testing.T) {
		s, mock, logs := newTestStore(t)
		r := testReport()

		mock.ExpectBegin()
		expectRunInsert(mock, r).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).WillReturnResult(2)
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(context.Background(), r))
		assert.NoError(t, mock.ExpectationsWereMet())

		entries := logs.FilterMessage("Run persisted.").All()
		require.Len(t, entries, 1)
		assert.Equal(t, "run-42", entries[0].ContextMap()["run_id"])
		assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "closed transaction is not an error")
	})

	t.Run("should skip the copy for an empty run", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		r := reporting.NewReport("http://app", "run-empty", nil, runAt)

		mock.ExpectBegin()
		expectRunInsert(mock, r).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
		mock.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveRun(context.Background(), r))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should roll back when the copy count mismatches", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		r := testReport()

		mock.ExpectBegin()
		expectRunInsert(mock, r).WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCopyFrom(pgx.Identifier{"test_results"}, resultColumns).WillReturnResult(1)
		mock.ExpectRollback()

		err := s.SaveRun(context.Background(), r)
		assert.EqualError(t, err, "mismatch in copied results count: expected 2, got 1")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should roll back when the run insert fails", func(t *testing.T) {
		s, mock, logs := newTestStore(t)
		r := testReport()
		dbErr := errors.New("duplicate key")

		mock.ExpectBegin()
		expectRunInsert(mock, r).WillReturnError(dbErr)
		rollbackErr := errors.New("connection reset")
		mock.ExpectRollback().WillReturnError(rollbackErr)

		err := s.SaveRun(context.Background(), r)
		assert.ErrorIs(t, err, dbErr)
		assert.ErrorContains(t, err, "failed to insert run run-42")
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.Equal(t, 1, logs.FilterMessage("Failed to rollback transaction").Len())
	})

	t.Run("should fail when begin fails", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		mock.ExpectBegin().WillReturnError(errors.New("pool exhausted"))

		err := s.SaveRun(context.Background(), testReport())
		assert.ErrorContains(t, err, "failed to begin transaction: pool exhausted")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should require a run ID", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		r := testReport()
		r.RunID = ""

		assert.EqualError(t, s.SaveRun(context.Background(), r), "report must carry a run ID")
		assert.EqualError(t, s.SaveRun(context.Background(), nil), "report must carry a run ID")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoadRun(t *testing.T) {
	t.Run("should rebuild the report in order", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		want := testReport()
		recorded := runAt.UTC()

		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).WithArgs("run-42").WillReturnRows(
			pgxmock.NewRows([]string{"url", "run_at", "total", "passed", "failed", "success_rate"}).
				AddRow(want.URL, runAt.UTC(), 2, 1, 1, 50.0),
		)
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectResults)).WithArgs("run-42").WillReturnRows(
			pgxmock.NewRows([]string{"name", "passed", "details", "screenshot", "recorded_at"}).
				AddRow(want.Results[0].Name, true, want.Results[0].Details, "", &recorded).
				AddRow(want.Results[1].Name, false, want.Results[1].Details, want.Results[1].Screenshot, nil),
		)

		got, err := s.LoadRun(context.Background(), "run-42")
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())

		assert.Equal(t, "run-42", got.RunID)
		assert.Equal(t, want.URL, got.URL)
		assert.Equal(t, want.Summary, got.Summary)
		assert.True(t, got.Date.Equal(runAt))
		assert.Equal(t, time.Local, got.Date.Location())
		require.Len(t, got.Results, 2)
		assert.Equal(t, "Login avec credentials valides", got.Results[0].Name)
		assert.True(t, got.Results[0].Timestamp.Equal(runAt))
		assert.False(t, got.Results[1].Passed)
		assert.Equal(t, "screenshots/2_protection_xss.png", got.Results[1].Screenshot)
		assert.True(t, got.Results[1].Timestamp.IsZero())
	})

	t.Run("should report an unknown run", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).WithArgs("nope").WillReturnRows(
			pgxmock.NewRows([]string{"url", "run_at", "total", "passed", "failed", "success_rate"}),
		)

		_, err := s.LoadRun(context.Background(), "nope")
		assert.ErrorIs(t, err, ErrRunNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("should propagate result query errors", func(t *testing.T) {
		s, mock, _ := newTestStore(t)
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectRun)).WithArgs("run-42").WillReturnRows(
			pgxmock.NewRows([]string{"url", "run_at", "total", "passed", "failed", "success_rate"}).
				AddRow("http://app", runAt, 0, 0, 0, 0.0),
		)
		queryErr := errors.New("relation does not exist")
		mock.ExpectQuery(flexibleSQLMatcher(sqlSelectResults)).WithArgs("run-42").WillReturnError(queryErr)

		_, err := s.LoadRun(context.Background(), "run-42")
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
