// Package store implements the persistent task table shared by all
// workers of a run. A single SQLite file is the source of truth; every
// mutation is one atomic statement so that concurrent workers, local or
// remote, coordinate purely through the database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"sweepq/internal/task"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// busyTimeout bounds how long a statement blocks on a locked database
// before surfacing the store as unavailable.
const busyTimeout = 15 * time.Second

var ddls = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		task_id     TEXT PRIMARY KEY,
		task_info   TEXT,
		result_info TEXT,
		status      TEXT DEFAULT 'pending',
		node        TEXT,
		error       TEXT,
		ts_start    DATETIME,
		ts_end      DATETIME
	)`,
}

// Record is one row of the task table.
type Record struct {
	TaskID     string
	TaskInfo   string
	ResultInfo sql.NullString
	Status     Status
	Node       sql.NullString
	Error      sql.NullString
	StartedAt  sql.NullString
	FinishedAt sql.NullString
}

// Store is a handle on one task database. The embedded sql.DB is the
// connection pool: one Store per path, passed explicitly to everything
// that touches the queue.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the task database at path. WAL mode
// and the busy timeout are set per connection through the DSN so every
// pooled connection carries them.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?mode=rwc&_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		path, busyTimeout.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open task store %s: %w", path, err)
	}

	for _, ddl := range ddls {
		if _, err := db.Exec(ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init task store schema: %w", err)
		}
	}

	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the location of the backing file.
func (s *Store) Path() string {
	return s.path
}

// Enqueue inserts one pending row per distinct task. Rows that already
// exist, whatever their status, are left untouched, so re-queuing the
// same task list against a partially or fully drained store is a no-op
// for the overlapping tasks.
func (s *Store) Enqueue(ctx context.Context, tasks []any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO tasks (task_id, task_info) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare enqueue: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		info, err := task.Marshal(t)
		if err != nil {
			return err
		}
		id, err := task.Hash(t)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id, info); err != nil {
			return fmt.Errorf("enqueue task %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	return nil
}

// ClaimNext atomically transitions one pending row to running, stamping
// the owner and start time, and returns its payload. The second return
// is false when no pending row existed at call time. The claim is a
// single conditional update; two concurrent callers can never receive
// the same task.
func (s *Store) ClaimNext(ctx context.Context, owner string) (any, bool, error) {
	var info string
	err := s.db.QueryRowContext(ctx, `
		UPDATE tasks SET status='running', node=?, ts_start=CURRENT_TIMESTAMP
		WHERE task_id = (SELECT task_id FROM tasks WHERE status='pending' LIMIT 1)
		RETURNING task_info`, owner).Scan(&info)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("claim task: %w", err)
	}

	v, err := task.Unmarshal(info)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

// Finish records the outcome for the given task: failed with the error
// message when errMsg is non-empty, done with the serialized result
// otherwise.
func (s *Store) Finish(ctx context.Context, taskValue any, errMsg string, result any) error {
	id, err := task.Hash(taskValue)
	if err != nil {
		return err
	}

	status := StatusDone
	var errArg sql.NullString
	var resultArg sql.NullString
	if errMsg != "" {
		status = StatusFailed
		errArg = sql.NullString{String: errMsg, Valid: true}
	} else if result != nil {
		info, err := task.Marshal(result)
		if err != nil {
			return err
		}
		resultArg = sql.NullString{String: info, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE tasks SET status=?, error=?, result_info=?, ts_end=CURRENT_TIMESTAMP
		WHERE task_id=?`, status, errArg, resultArg, id)
	if err != nil {
		return fmt.Errorf("finish task %s: %w", id, err)
	}
	return nil
}

// PendingCount reports how many rows are still claimable.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks WHERE status='pending'`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending tasks: %w", err)
	}
	return n, nil
}

// Counts reports the row count per status, for logging and inspection.
func (s *Store) Counts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM tasks GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tasks: %w", err)
	}
	defer rows.Close()

	counts := map[Status]int{}
	for rows.Next() {
		var st Status
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, fmt.Errorf("scan task counts: %w", err)
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// Record returns the stored row for a task value.
func (s *Store) Record(ctx context.Context, taskValue any) (*Record, error) {
	id, err := task.Hash(taskValue)
	if err != nil {
		return nil, err
	}

	var r Record
	err = s.db.QueryRowContext(ctx, `
		SELECT task_id, task_info, result_info, status, node, error, ts_start, ts_end
		FROM tasks WHERE task_id=?`, id).
		Scan(&r.TaskID, &r.TaskInfo, &r.ResultInfo, &r.Status, &r.Node, &r.Error, &r.StartedAt, &r.FinishedAt)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", id, err)
	}
	return &r, nil
}

// Records returns every row in the table, ordered by task id. Meant
// for inspection tooling, not the hot path.
func (s *Store) Records(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT task_id, task_info, result_info, status, node, error, ts_start, ts_end
		FROM tasks ORDER BY task_id`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.TaskID, &r.TaskInfo, &r.ResultInfo, &r.Status, &r.Node, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ExportCompleted writes every done and failed row, ordered by finish
// time, as a YAML list of result values (or the original payload when
// no result was recorded) to dest. The file is written to a temp path
// and renamed so a concurrent reader never observes a partial file.
func (s *Store) ExportCompleted(ctx context.Context, dest string) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT result_info, task_info FROM tasks
		WHERE status IN ('done','failed') ORDER BY ts_end`)
	if err != nil {
		return fmt.Errorf("query completed tasks: %w", err)
	}
	defer rows.Close()

	out := []any{}
	for rows.Next() {
		var result, info sql.NullString
		if err := rows.Scan(&result, &info); err != nil {
			return fmt.Errorf("scan completed task: %w", err)
		}
		raw := info.String
		if result.Valid {
			raw = result.String
		}
		if raw == "" {
			continue
		}
		v, err := task.Unmarshal(raw)
		if err != nil {
			return err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate completed tasks: %w", err)
	}

	data, err := yaml.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp result file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write result file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close result file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("publish result file: %w", err)
	}
	return nil
}
