package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/ai"
	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/source/email"
	"github.com/nhle/mail2tasks/internal/store"
)

// Mailbox supplies the keyword-matched emails for a run.
type Mailbox interface {
	FetchCandidates(ctx context.Context) ([]email.Message, error)
}

// Extractor turns email content into a task candidate. It must always
// return a usable candidate.
type Extractor interface {
	Extract(ctx context.Context, content string) ai.Candidate
}

// Store is the persistence needed by a sync run.
type Store interface {
	store.Ledger
	TaskExists(ctx context.Context, description string, deadline *string) (bool, error)
	AddTask(ctx context.Context, t model.NewTask) (int64, error)
}

// Report summarizes a single sync run.
type Report struct {
	RunID           string    `json:"run_id"`
	TasksAdded      int       `json:"tasks_added"`
	EmailsProcessed int       `json:"emails_processed"`
	EmailsSkipped   int       `json:"emails_skipped"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Orchestrator runs the ingest pipeline: mailbox, extractor, store.
type Orchestrator struct {
	mailbox   Mailbox
	extractor Extractor
	store     Store
	log       *zap.Logger
}

// NewOrchestrator wires the pipeline components together.
func NewOrchestrator(m Mailbox, e Extractor, s Store, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		mailbox:   m,
		extractor: e,
		store:     s,
		log:       log.Named("sync"),
	}
}

// EmailContent is the text handed to the extractor for msg.
func EmailContent(msg email.Message) string {
	return "Subject: " + msg.Subject + "\n\nBody: " + msg.Body
}

// Run processes every candidate email once. Emails already in the
// processed ledger are skipped without extraction. Every other email is
// extracted, its task added unless a matching open task exists, and then
// recorded as processed whether or not a task was added.
//
// A mailbox connection failure aborts the run with a zero-count report.
// Storage errors abort the run; the report holds the counts so far.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	log := o.log.With(zap.String("run_id", report.RunID))
	log.Info("sync started")

	finish := func(err error) (Report, error) {
		report.FinishedAt = time.Now()
		if err != nil {
			log.Error("sync failed", zap.Error(err))
			return report, err
		}
		log.Info("sync finished",
			zap.Int("tasks_added", report.TasksAdded),
			zap.Int("emails_processed", report.EmailsProcessed),
			zap.Int("emails_skipped", report.EmailsSkipped),
			zap.Duration("duration", report.Duration()),
		)
		return report, nil
	}

	msgs, err := o.mailbox.FetchCandidates(ctx)
	if err != nil {
		return finish(fmt.Errorf("fetching candidate emails: %w", err))
	}

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}

		processed, err := o.store.IsEmailProcessed(ctx, msg.Subject, msg.Body)
		if err != nil {
			return finish(err)
		}
		if processed {
			report.EmailsSkipped++
			continue
		}

		added, err := o.ingest(ctx, log, msg)
		if err != nil {
			return finish(err)
		}
		if added {
			report.TasksAdded++
		}

		if err := o.store.MarkEmailProcessed(ctx, msg.Subject, msg.Body); err != nil {
			return finish(err)
		}
		report.EmailsProcessed++
	}

	return finish(nil)
}

// ingest extracts a task from msg and stores it unless an open task with
// a similar description already exists.
func (o *Orchestrator) ingest(ctx context.Context, log *zap.Logger, msg email.Message) (bool, error) {
	candidate := o.extractor.Extract(ctx, EmailContent(msg))

	task := candidate.NewTask()
	if err := task.Validate(); err != nil {
		log.Warn("discarding invalid candidate",
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return false, nil
	}

	exists, err := o.store.TaskExists(ctx, task.Description, task.Deadline)
	if err != nil {
		return false, err
	}
	if exists {
		log.Info("similar task already open",
			zap.String("subject", msg.Subject),
			zap.String("description", task.Description),
		)
		return false, nil
	}

	id, err := o.store.AddTask(ctx, task)
	if err != nil {
		return false, err
	}

	log.Info("task created from email",
		zap.Int64("task_id", id),
		zap.String("subject", msg.Subject),
		zap.Strings("keywords", msg.MatchedKeywords),
		zap.Bool("fallback", candidate.Fallback),
	)
	return true, nil
}
