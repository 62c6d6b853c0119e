package schedtask

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Execution records one firing of a scheduler task, kept for audit and
// for the health-service reporting path of spec.md §4.11 ("Report every
// outcome to the health service when present"). Adapted from the
// teacher's internal/scheduler/store.go Execution persistence — the
// schema and CRUD shape carry over unchanged, retargeted from
// wake-task executions to clock-scheduler job executions.
type Execution struct {
	ID          string
	TaskName    string
	ScheduledAt int64 // simulation nanoseconds (spec.md §3 timestamp domain)
	StartedAt   time.Time
	CompletedAt time.Time
	DurationNs  int64
	Violated    bool
	Strategy    string // one of ignore/warn/skip_output/set_stm_to_error
	Result      string
}

// Store persists Execution rows in a SQLite database, exactly as the
// teacher's scheduler store persists Task/Execution rows.
type Store struct {
	db *sql.DB
}

// NewStore opens (and migrates) a SQLite-backed execution-history
// store at dbPath. Use ":memory:" for ephemeral/test use, matching the
// teacher's NewStore contract.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS task_executions (
		id TEXT PRIMARY KEY,
		task_name TEXT NOT NULL,
		scheduled_at INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL,
		duration_ns INTEGER NOT NULL,
		violated INTEGER NOT NULL DEFAULT 0,
		strategy TEXT NOT NULL DEFAULT '',
		result TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_task_executions_task_name ON task_executions(task_name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// NewExecutionID generates a new UUIDv7-based execution ID, falling
// back to v4 if v7 generation fails — same fallback the teacher's
// scheduler.NewID uses.
func NewExecutionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// RecordExecution persists one completed job firing.
func (s *Store) RecordExecution(e *Execution) error {
	if e.ID == "" {
		e.ID = NewExecutionID()
	}
	_, err := s.db.Exec(
		`INSERT INTO task_executions
			(id, task_name, scheduled_at, started_at, completed_at, duration_ns, violated, strategy, result)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskName, e.ScheduledAt,
		e.StartedAt.Format(time.RFC3339Nano), e.CompletedAt.Format(time.RFC3339Nano),
		e.DurationNs, boolToInt(e.Violated), e.Strategy, e.Result,
	)
	if err != nil {
		return fmt.Errorf("record execution: %w", err)
	}
	return nil
}

// ListExecutions returns up to limit most recent executions for
// taskName, newest first. limit <= 0 means unbounded.
func (s *Store) ListExecutions(taskName string, limit int) ([]*Execution, error) {
	query := `SELECT id, task_name, scheduled_at, started_at, completed_at, duration_ns, violated, strategy, result
		FROM task_executions WHERE task_name = ? ORDER BY scheduled_at DESC`
	args := []any{taskName}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var out []*Execution
	for rows.Next() {
		e := &Execution{}
		var startedAt, completedAt string
		var violated int
		if err := rows.Scan(&e.ID, &e.TaskName, &e.ScheduledAt, &startedAt, &completedAt,
			&e.DurationNs, &violated, &e.Strategy, &e.Result); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
		e.CompletedAt, _ = time.Parse(time.RFC3339Nano, completedAt)
		e.Violated = violated != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// MarshalResult is a small helper for callers that want to store a
// structured result (e.g. an error message plus context) as JSON in
// Execution.Result.
func MarshalResult(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
