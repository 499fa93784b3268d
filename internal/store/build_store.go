package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/agentgen/internal/build"
)

// ErrNotFound is returned when a build run does not exist.
var ErrNotFound = errors.New("build run not found")

// DefaultListLimit bounds List when the caller passes no limit.
const DefaultListLimit = 20

// BuildRun is one recorded build.
type BuildRun struct {
	ID         string      `json:"id"`
	Target     string      `json:"target"`
	UseCase    string      `json:"use_case,omitempty"`
	State      build.State `json:"state"`
	TaskCount  int         `json:"task_count"`
	Manifest   []string    `json:"manifest"`
	Error      string      `json:"error,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
}

// BuildStore records build runs. It satisfies build.Recorder.
type BuildStore struct {
	db  *DB
	now func() time.Time
}

var _ build.Recorder = (*BuildStore)(nil)

// NewBuildStore creates a build store on db.
func NewBuildStore(db *DB) *BuildStore {
	return &BuildStore{db: db, now: time.Now}
}

// RecordStart inserts a running build.
func (s *BuildStore) RecordStart(ctx context.Context, run build.Run) error {
	started := run.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	_, err := s.db.sql.ExecContext(ctx,
		`INSERT INTO build_runs (id, target, use_case, state, task_count, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Target, run.UseCase, string(build.StateRunning), run.TaskCount, formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("recording build %s: %w", run.ID, err)
	}
	return nil
}

// RecordFinish stores the final state, manifest and error of a build.
func (s *BuildStore) RecordFinish(ctx context.Context, runID string, state build.State, manifest []string, buildErr error) error {
	if manifest == nil {
		manifest = []string{}
	}
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	msg := ""
	if buildErr != nil {
		msg = buildErr.Error()
	}
	res, err := s.db.sql.ExecContext(ctx,
		`UPDATE build_runs SET state = ?, manifest = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(state), string(data), msg, formatTime(s.now()), runID,
	)
	if err != nil {
		return fmt.Errorf("finishing build %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finishing build %s: %w", runID, ErrNotFound)
	}
	return nil
}

const selectRun = `SELECT id, target, use_case, state, task_count, manifest, error, started_at, finished_at FROM build_runs`

// Get returns one build run.
func (s *BuildStore) Get(ctx context.Context, id string) (*BuildRun, error) {
	row := s.db.sql.QueryRowContext(ctx, selectRun+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// List returns the most recent runs first.
func (s *BuildStore) List(ctx context.Context, limit int) ([]BuildRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.sql.QueryContext(ctx, selectRun+` ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing builds: %w", err)
	}
	defer rows.Close()

	runs := []BuildRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*BuildRun, error) {
	var (
		run      BuildRun
		state    string
		manifest string
		started  string
		finished sql.NullString
	)
	if err := sc.Scan(&run.ID, &run.Target, &run.UseCase, &state, &run.TaskCount, &manifest, &run.Error, &started, &finished); err != nil {
		return nil, err
	}
	run.State = build.State(state)
	if err := json.Unmarshal([]byte(manifest), &run.Manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest of %s: %w", run.ID, err)
	}
	var err error
	if run.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if finished.Valid {
		t, err := parseTime(finished.String)
		if err != nil {
			return nil, err
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

// timeLayout is fixed width so stored times sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}
