package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// SQLiteAttemptStore journals action attempts in SQLite.
type SQLiteAttemptStore struct {
	db *sql.DB
}

// Ensure SQLiteAttemptStore implements AttemptStore.
var _ AttemptStore = (*SQLiteAttemptStore)(nil)

func NewSQLiteAttemptStore(db *sql.DB) (*SQLiteAttemptStore, error) {
	s := &SQLiteAttemptStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteAttemptStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS attempts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL DEFAULT -1,
			label TEXT NOT NULL DEFAULT '',
			attempt INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			elapsed_ns INTEGER NOT NULL DEFAULT 0,
			timed_out INTEGER NOT NULL DEFAULT 0,
			at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_attempts_run_id ON attempts(run_id, id);
	`)
	return err
}

func (s *SQLiteAttemptStore) AppendAttempt(ctx context.Context, ev api.AttemptEvent) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	timedOut := 0
	if ev.TimedOut {
		timedOut = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (run_id, step, label, attempt, outcome, error, elapsed_ns, timed_out, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RunID,
		ev.Step,
		ev.Label,
		ev.Attempt,
		string(ev.Outcome),
		ev.Error,
		int64(ev.Elapsed),
		timedOut,
		at.UnixNano(),
	)
	return err
}

func (s *SQLiteAttemptStore) ListAttempts(ctx context.Context, runID string) ([]api.AttemptEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, step, label, attempt, outcome, error, elapsed_ns, timed_out, at
		FROM attempts
		WHERE run_id = ?
		ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []api.AttemptEvent
	for rows.Next() {
		var (
			ev        api.AttemptEvent
			outcome   string
			elapsedNs int64
			timedOut  int
			atN       int64
		)
		if err := rows.Scan(&ev.RunID, &ev.Step, &ev.Label, &ev.Attempt, &outcome, &ev.Error, &elapsedNs, &timedOut, &atN); err != nil {
			return nil, err
		}
		ev.Outcome = api.AttemptOutcome(outcome)
		ev.Elapsed = time.Duration(elapsedNs)
		ev.TimedOut = timedOut != 0
		ev.At = time.Unix(0, atN)
		out = append(out, ev)
	}
	return out, rows.Err()
}
