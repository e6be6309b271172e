// Package ledger records pipeline runs and their step executions in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a SQLite-backed run ledger. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens or creates the ledger at path. ":memory:" gives a private
// in-memory ledger.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps an in-memory database
	// shared.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		pipeline TEXT NOT NULL,
		config_path TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		error TEXT
	);

	CREATE TABLE IF NOT EXISTS step_executions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL REFERENCES runs(id),
		node TEXT NOT NULL,
		step TEXT NOT NULL,
		step_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		command TEXT,
		exit_code INTEGER,
		pid INTEGER,
		outputs TEXT,
		error TEXT,
		started_at TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE(run_id, node)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_step_executions_run ON step_executions(run_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateRun inserts run and sets its ID.
func (s *Store) CreateRun(ctx context.Context, run *Run) (int64, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = RunStatusRunning
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (pipeline, config_path, status, created_at) VALUES (?, ?, ?, ?)`,
		run.Pipeline, run.ConfigPath, run.Status, run.CreatedAt,
	)
	if err != nil {
		return 0, err
	}
	run.ID, err = result.LastInsertId()
	return run.ID, err
}

// FinishRun records the final status of a run.
func (s *Store) FinishRun(ctx context.Context, id int64, status RunStatus, runErr error) error {
	var msg *string
	if runErr != nil {
		m := runErr.Error()
		msg = &m
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, completed_at = ?, error = ? WHERE id = ?`,
		status, time.Now(), msg, id,
	)
	return err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, config_path, status, created_at, completed_at, error
		 FROM runs ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		var run Run
		var completedAt sql.NullTime
		var runErr sql.NullString
		if err := rows.Scan(&run.ID, &run.Pipeline, &run.ConfigPath, &run.Status,
			&run.CreatedAt, &completedAt, &runErr); err != nil {
			return nil, err
		}
		if completedAt.Valid {
			run.CompletedAt = &completedAt.Time
		}
		run.Error = runErr.String
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// StartStep inserts a running step execution and sets its ID.
func (s *Store) StartStep(ctx context.Context, exec *StepExecution) (int64, error) {
	if exec.StartedAt == nil {
		now := time.Now()
		exec.StartedAt = &now
	}
	if exec.Status == "" {
		exec.Status = StepStatusRunning
	}
	command, err := marshalOptional(exec.Command)
	if err != nil {
		return 0, err
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO step_executions (run_id, node, step, step_type, status, command, started_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		exec.RunID, exec.Node, exec.Step, exec.StepType, exec.Status, command, exec.StartedAt,
	)
	if err != nil {
		return 0, err
	}
	exec.ID, err = result.LastInsertId()
	return exec.ID, err
}

// UpdateStepPID records the process ID of a running step's tool.
func (s *Store) UpdateStepPID(ctx context.Context, runID int64, node string, pid int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE step_executions SET pid = ? WHERE run_id = ? AND node = ?`, pid, runID, node)
	return err
}

// UpdateStepExitCode records the exit code of a step's tool.
func (s *Store) UpdateStepExitCode(ctx context.Context, runID int64, node string, code int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE step_executions SET exit_code = ? WHERE run_id = ? AND node = ?`, code, runID, node)
	return err
}

// FinishStep records the outcome of a step. Skipped steps that never
// started are inserted.
func (s *Store) FinishStep(ctx context.Context, exec *StepExecution) error {
	now := time.Now()
	if exec.CompletedAt == nil {
		exec.CompletedAt = &now
	}
	outputs, err := marshalOptional(exec.Outputs)
	if err != nil {
		return err
	}
	var msg *string
	if exec.Error != "" {
		msg = &exec.Error
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO step_executions (run_id, node, step, step_type, status, outputs, error, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, node) DO UPDATE SET
		   status = excluded.status, outputs = excluded.outputs,
		   error = excluded.error, completed_at = excluded.completed_at`,
		exec.RunID, exec.Node, exec.Step, exec.StepType, exec.Status, outputs, msg, exec.CompletedAt,
	)
	return err
}

// Steps returns the step executions of a run in start order.
func (s *Store) Steps(ctx context.Context, runID int64) ([]*StepExecution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node, step, step_type, status, command, exit_code, pid, outputs, error, started_at, completed_at
		 FROM step_executions WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*StepExecution
	for rows.Next() {
		var exec StepExecution
		var command, outputs, stepErr sql.NullString
		var exitCode, pid sql.NullInt64
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&exec.ID, &exec.RunID, &exec.Node, &exec.Step, &exec.StepType, &exec.Status,
			&command, &exitCode, &pid, &outputs, &stepErr, &startedAt, &completedAt,
		)
		if err != nil {
			return nil, err
		}
		if command.Valid {
			if err := json.Unmarshal([]byte(command.String), &exec.Command); err != nil {
				return nil, err
			}
		}
		if outputs.Valid {
			if err := json.Unmarshal([]byte(outputs.String), &exec.Outputs); err != nil {
				return nil, err
			}
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			exec.ExitCode = &code
		}
		if pid.Valid {
			p := int(pid.Int64)
			exec.PID = &p
		}
		if startedAt.Valid {
			exec.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			exec.CompletedAt = &completedAt.Time
		}
		exec.Error = stepErr.String
		execs = append(execs, &exec)
	}
	return execs, rows.Err()
}

// ErrNoRuns is returned by LatestRun on an empty ledger.
var ErrNoRuns = errors.New("no runs recorded")

// LatestRun returns the most recent run.
func (s *Store) LatestRun(ctx context.Context) (*Run, error) {
	runs, err := s.ListRuns(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNoRuns
	}
	return runs[0], nil
}

func marshalOptional[T any](v T) (*string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	str := string(data)
	return &str, nil
}
