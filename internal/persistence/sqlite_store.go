package persistence

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/petrijr/uiflow/pkg/api"
)

// SQLiteRunStore is a RunStore backed by SQLite.
//
// It expects an *sql.DB that uses a SQLite driver (for example,
// "modernc.org/sqlite"). The caller is responsible for importing
// the driver, e.g.:
//
//	import _ "modernc.org/sqlite"
type SQLiteRunStore struct {
	db *sql.DB
}

// Ensure SQLiteRunStore implements RunStore.
var _ RunStore = (*SQLiteRunStore)(nil)

// NewSQLiteRunStore initializes the required schema in the given
// database and returns a new SQLiteRunStore.
func NewSQLiteRunStore(db *sql.DB) (*SQLiteRunStore, error) {
	s := &SQLiteRunStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteRunStore) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			flow_name TEXT NOT NULL,
			status TEXT NOT NULL,
			current_step INTEGER NOT NULL,
			input BLOB,
			output BLOB,
			step_results BLOB,
			error TEXT,
			started_at INTEGER NOT NULL DEFAULT 0,
			finished_at INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
	`)
	return err
}

// runRow holds the encoded columns of a run.
type runRow struct {
	input, output, stepResults []byte
	errStr                     string
	startedAt, finishedAt      int64
}

func encodeRun(run *api.FlowRun) (runRow, error) {
	var row runRow
	var err error

	if row.input, err = EncodeValue(run.Input); err != nil {
		return row, fmt.Errorf("run %s input: %w", run.ID, err)
	}
	if row.output, err = EncodeValue(run.Output); err != nil {
		return row, fmt.Errorf("run %s output: %w", run.ID, err)
	}
	if row.stepResults, err = EncodeValue(run.StepResults); err != nil {
		return row, fmt.Errorf("run %s step results: %w", run.ID, err)
	}
	if run.Err != nil {
		row.errStr = run.Err.Error()
	}
	row.startedAt = unixNanos(run.StartedAt)
	row.finishedAt = unixNanos(run.FinishedAt)
	return row, nil
}

func (s *SQLiteRunStore) SaveRun(run *api.FlowRun) error {
	row, err := encodeRun(run)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO runs (id, flow_name, status, current_step, input, output, step_results, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Name,
		string(run.Status),
		run.CurrentStep,
		row.input,
		row.output,
		row.stepResults,
		row.errStr,
		row.startedAt,
		row.finishedAt,
	)
	return err
}

func (s *SQLiteRunStore) UpdateRun(run *api.FlowRun) error {
	row, err := encodeRun(run)
	if err != nil {
		return err
	}

	res, err := s.db.Exec(`
		UPDATE runs
		SET flow_name = ?, status = ?, current_step = ?, input = ?, output = ?, step_results = ?, error = ?,
		    started_at = ?, finished_at = ?
		WHERE id = ?`,
		run.Name,
		string(run.Status),
		run.CurrentStep,
		row.input,
		row.output,
		row.stepResults,
		row.errStr,
		row.startedAt,
		row.finishedAt,
		run.ID,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

const runColumns = `id, flow_name, status, current_step, input, output, step_results, error, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(sc rowScanner) (*api.FlowRun, error) {
	var run api.FlowRun
	var statusStr string
	var input, output, stepResults []byte
	var errStr sql.NullString
	var startedAt, finishedAt int64

	if err := sc.Scan(&run.ID, &run.Name, &statusStr, &run.CurrentStep, &input, &output, &stepResults, &errStr, &startedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = api.Status(statusStr)
	run.StartedAt = fromUnixNanos(startedAt)
	run.FinishedAt = fromUnixNanos(finishedAt)

	var err error
	if run.Input, err = DecodeValue[any](input); err != nil {
		return nil, fmt.Errorf("run %s input: %w", run.ID, err)
	}
	if run.Output, err = DecodeValue[any](output); err != nil {
		return nil, fmt.Errorf("run %s output: %w", run.ID, err)
	}
	if run.StepResults, err = DecodeValue[map[int]any](stepResults); err != nil {
		return nil, fmt.Errorf("run %s step results: %w", run.ID, err)
	}
	if run.StepResults == nil {
		run.StepResults = make(map[int]any)
	}

	if errStr.Valid && errStr.String != "" {
		run.Err = errors.New(errStr.String)
	}

	return &run, nil
}

func (s *SQLiteRunStore) GetRun(id string) (*api.FlowRun, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	return run, nil
}

func (s *SQLiteRunStore) ListRuns(filter RunFilter) ([]*api.FlowRun, error) {
	query := `SELECT ` + runColumns + ` FROM runs`
	var args []any
	var clauses []string

	if filter.FlowName != "" {
		clauses = append(clauses, "flow_name = ?")
		args = append(args, filter.FlowName)
	}
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}

	if len(clauses) > 0 {
		query = query + " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY started_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*api.FlowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

func unixNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
