package store

import (
	"context"
	"errors"

	"github.com/nhle/mail2tasks/internal/model"
)

// ErrTaskNotFound is returned by lookups for a task id that does not exist.
var ErrTaskNotFound = errors.New("task not found")

// TaskStore persists tasks.
type TaskStore interface {
	AddTask(ctx context.Context, t model.NewTask) (int64, error)
	GetTask(ctx context.Context, id int64) (*model.Task, error)
	ListTasks(ctx context.Context, includeDone bool) ([]model.Task, error)
	MarkDone(ctx context.Context, id int64) error
	DeleteTask(ctx context.Context, id int64) error

	// TaskExists reports whether an open task's description contains
	// description and, when deadline is non-nil, has that exact deadline.
	TaskExists(ctx context.Context, description string, deadline *string) (bool, error)
}

// Ledger records which emails have already been handled by a sync run.
type Ledger interface {
	IsEmailProcessed(ctx context.Context, subject, body string) (bool, error)
	MarkEmailProcessed(ctx context.Context, subject, body string) error
	ClearProcessedEmails(ctx context.Context) error
	CountProcessedEmails(ctx context.Context) (int, error)
	RecentProcessedEmails(ctx context.Context, limit int) ([]model.ProcessedEmail, error)
}

// Store is the full persistence surface.
type Store interface {
	TaskStore
	Ledger
}
