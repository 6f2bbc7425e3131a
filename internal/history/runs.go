package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ffpipe/internal/progress"
)

// Status is how a run ended.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
)

// Run is one recorded invocation.
type Run struct {
	ID         string
	Program    string
	Args       []string
	Status     Status
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   *int
	Frames     *uint64
	OutTimeUS  *uint64
	TotalSize  *uint64
	Speed      *float64
	Error      string
}

// Duration is the wall-clock time of a finished run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Outcome describes how a run ended.
type Outcome struct {
	Status   Status
	ExitCode *int
	Last     *progress.Snapshot
	Err      error
}

// timeLayout is fixed width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when a run id is unknown.
var ErrNotFound = errors.New("run not found")

// Begin records a new running invocation and returns its id.
func (s *Store) Begin(ctx context.Context, program string, args []string) (string, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("marshal args: %w", err)
	}
	id := uuid.NewString()
	_, err = s.exec(ctx,
		`INSERT INTO runs (id, program, args_json, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		id,
		program,
		string(argsJSON),
		StatusRunning,
		time.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Finish stores the outcome of run id.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	var frames, outTime, size, speed any
	if out.Last != nil {
		frames = nullableUint(out.Last.Frame)
		outTime = nullableUint(out.Last.OutTimeUS)
		size = nullableUint(out.Last.TotalSize)
		if out.Last.Speed != nil {
			speed = *out.Last.Speed
		}
	}
	var exitCode any
	if out.ExitCode != nil {
		exitCode = *out.ExitCode
	}
	var message any
	if out.Err != nil {
		message = out.Err.Error()
	}
	res, err := s.exec(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, exit_code = ?, frames = ?, out_time_us = ?,
            total_size = ?, speed = ?, error_message = ? WHERE id = ?`,
		out.Status,
		time.Now().UTC().Format(timeLayout),
		exitCode,
		frames,
		outTime,
		size,
		speed,
		message,
		id,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

const selectRuns = `SELECT id, program, args_json, status, started_at, finished_at, exit_code,
    frames, out_time_us, total_size, speed, error_message FROM runs`

// Get returns run id.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, selectRuns+" WHERE id = ?", id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

// List returns the most recent runs first. limit <= 0 returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := selectRuns + " ORDER BY started_at DESC, rowid DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Prune deletes all but the keep most recent runs.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.exec(ctx,
		`DELETE FROM runs WHERE id NOT IN (SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		run        Run
		argsJSON   string
		status     string
		startedAt  string
		finishedAt sql.NullString
		exitCode   sql.NullInt64
		frames     sql.NullInt64
		outTime    sql.NullInt64
		size       sql.NullInt64
		speed      sql.NullFloat64
		message    sql.NullString
	)
	if err := row.Scan(&run.ID, &run.Program, &argsJSON, &status, &startedAt, &finishedAt,
		&exitCode, &frames, &outTime, &size, &speed, &message); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(argsJSON), &run.Args); err != nil {
		return nil, fmt.Errorf("decode args for run %s: %w", run.ID, err)
	}
	run.Status = Status(status)
	run.StartedAt = parseTime(startedAt)
	if finishedAt.Valid {
		run.FinishedAt = parseTime(finishedAt.String)
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		run.ExitCode = &code
	}
	run.Frames = uintFromNull(frames)
	run.OutTimeUS = uintFromNull(outTime)
	run.TotalSize = uintFromNull(size)
	if speed.Valid {
		v := speed.Float64
		run.Speed = &v
	}
	run.Error = message.String
	return &run, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func uintFromNull(v sql.NullInt64) *uint64 {
	if !v.Valid || v.Int64 < 0 {
		return nil
	}
	u := uint64(v.Int64)
	return &u
}
