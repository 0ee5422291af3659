package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/model"
)

const taskColumns = "id, description, priority, deadline, note, status, created_at"

// AddTask inserts a new open task and returns its id. The caller is
// responsible for validating the description.
func (s *SQLiteStore) AddTask(ctx context.Context, t model.NewTask) (int64, error) {
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (description, priority, deadline, note, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		t.Description, string(t.Priority), t.Deadline, t.Note,
		boolToInt(false), time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("adding task: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading new task id: %w", err)
	}

	s.log.Info("task added",
		zap.Int64("task_id", id),
		zap.String("description", t.Description),
		zap.String("priority", string(t.Priority)),
	)
	return id, nil
}

// GetTask retrieves a single task by id.
func (s *SQLiteStore) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	err := s.db.GetContext(ctx, &task,
		"SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting task %d: %w", id, ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %d: %w", id, err)
	}
	return &task, nil
}

// ListTasks returns tasks newest first. Completed tasks are included only
// when includeDone is true.
func (s *SQLiteStore) ListTasks(ctx context.Context, includeDone bool) ([]model.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks"
	var args []interface{}
	if !includeDone {
		query += " WHERE status = ?"
		args = append(args, boolToInt(false))
	}
	query += " ORDER BY created_at DESC, id DESC"

	tasks := []model.Task{}
	if err := s.db.SelectContext(ctx, &tasks, query, args...); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	return tasks, nil
}

// MarkDone flags a task as completed. Unknown ids are ignored.
func (s *SQLiteStore) MarkDone(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tasks SET status = ? WHERE id = ?", boolToInt(true), id)
	if err != nil {
		return fmt.Errorf("marking task %d done: %w", id, err)
	}
	s.log.Info("task marked done", zap.Int64("task_id", id))
	return nil
}

// DeleteTask removes a task. Unknown ids are ignored.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting task %d: %w", id, err)
	}
	s.log.Info("task deleted", zap.Int64("task_id", id))
	return nil
}

// TaskExists reports whether an open task's description contains
// description as a substring (case-insensitive for ASCII, as with SQL
// LIKE) and, when deadline is given, has exactly that deadline.
func (s *SQLiteStore) TaskExists(
	ctx context.Context,
	description string,
	deadline *string,
) (bool, error) {
	query := `SELECT COUNT(*) FROM tasks
		WHERE description LIKE ? ESCAPE '\' AND status = ?`
	args := []interface{}{"%" + escapeLike(description) + "%", boolToInt(false)}
	if deadline != nil {
		query += " AND deadline = ?"
		args = append(args, *deadline)
	}

	var count int
	if err := s.db.GetContext(ctx, &count, query, args...); err != nil {
		return false, fmt.Errorf("checking task existence: %w", err)
	}
	return count > 0, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
