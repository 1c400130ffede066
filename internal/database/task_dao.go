package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/zenovak/2100-AAA/internal/task"
	"github.com/zenovak/2100-AAA/internal/types"
)

// TaskDAO provides database operations for task records. Upsert is the
// write path both for the engine's own persistence and for the callback
// receiver: keyed by task id, replaying the same snapshot converges to one
// row.
type TaskDAO interface {
	// Upsert inserts the snapshot or replaces the existing row with the
	// same id.
	Upsert(ctx context.Context, snap task.Snapshot) error

	// GetByID retrieves a task by id.
	GetByID(ctx context.Context, id types.ID) (*task.Snapshot, error)

	// List lists tasks, newest first, optionally filtered by status.
	List(ctx context.Context, status task.Status) ([]*task.Snapshot, error)

	// Delete removes a task record.
	Delete(ctx context.Context, id types.ID) error
}

type taskDAO struct {
	db *DB
}

// NewTaskDAO creates a new task DAO.
func NewTaskDAO(db *DB) TaskDAO {
	return &taskDAO{db: db}
}

func (d *taskDAO) Upsert(ctx context.Context, snap task.Snapshot) error {
	logsJSON, err := json.Marshal(snap.Logs)
	if err != nil {
		return fmt.Errorf("failed to marshal logs: %w", err)
	}

	var outputJSON sql.NullString
	if snap.Output != nil {
		encoded, err := json.Marshal(snap.Output)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		outputJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	var completedAt sql.NullTime
	if snap.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *snap.CompletedAt, Valid: true}
	}

	query := `
		INSERT INTO tasks (
			id, agent, status, logs, output, error, callback, created_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent = excluded.agent,
			status = excluded.status,
			logs = excluded.logs,
			output = excluded.output,
			error = excluded.error,
			callback = excluded.callback,
			completed_at = excluded.completed_at
	`

	_, err = d.db.conn.ExecContext(
		ctx, query,
		snap.ID,
		snap.Agent,
		snap.Status,
		string(logsJSON),
		outputJSON,
		snap.Error,
		snap.Callback,
		snap.CreatedAt,
		completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert task: %w", err)
	}
	return nil
}

func (d *taskDAO) GetByID(ctx context.Context, id types.ID) (*task.Snapshot, error) {
	query := `
		SELECT id, agent, status, logs, output, error, callback, created_at, completed_at
		FROM tasks
		WHERE id = ?
	`

	snap, err := scanTask(d.db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, types.NewError(types.TASK_NOT_FOUND,
			fmt.Sprintf("task not found: %s", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return snap, nil
}

func (d *taskDAO) List(ctx context.Context, status task.Status) ([]*task.Snapshot, error) {
	query := `
		SELECT id, agent, status, logs, output, error, callback, created_at, completed_at
		FROM tasks
	`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := d.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Snapshot
	for rows.Next() {
		snap, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, snap)
	}
	return tasks, rows.Err()
}

func (d *taskDAO) Delete(ctx context.Context, id types.ID) error {
	result, err := d.db.conn.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return types.NewError(types.TASK_NOT_FOUND,
			fmt.Sprintf("task not found: %s", id))
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*task.Snapshot, error) {
	var snap task.Snapshot
	var logsJSON string
	var outputJSON sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&snap.ID,
		&snap.Agent,
		&snap.Status,
		&logsJSON,
		&outputJSON,
		&snap.Error,
		&snap.Callback,
		&snap.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(logsJSON), &snap.Logs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal logs: %w", err)
	}
	if outputJSON.Valid && outputJSON.String != "" {
		if err := json.Unmarshal([]byte(outputJSON.String), &snap.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}
	if completedAt.Valid {
		completed := completedAt.Time
		snap.CompletedAt = &completed
	}
	return &snap, nil
}
