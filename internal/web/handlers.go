package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/source/email"
	tasksync "github.com/nhle/mail2tasks/internal/sync"
)

const genericFailure = "Something went wrong, please try again"

type indexPage struct {
	Tasks          []model.Task
	Keywords       []string
	ProcessedCount int
	Status         tasksync.SyncStatus
	Flash          *Flash
	Error          string
}

func (s *Server) index(c *gin.Context) {
	ctx := c.Request.Context()
	page := indexPage{
		Keywords: s.keywords,
		Status:   s.syncer.Status(),
		Flash:    popFlash(c),
	}

	tasks, err := s.store.ListTasks(ctx, false)
	if err != nil {
		s.log.Error("failed to list tasks", zap.Error(err))
		page.Error = genericFailure
		c.HTML(http.StatusInternalServerError, "index.html", page)
		return
	}
	page.Tasks = tasks

	page.ProcessedCount, err = s.store.CountProcessedEmails(ctx)
	if err != nil {
		s.log.Error("failed to count processed emails", zap.Error(err))
		page.Error = genericFailure
		c.HTML(http.StatusInternalServerError, "index.html", page)
		return
	}

	c.HTML(http.StatusOK, "index.html", page)
}

// sync runs one synchronization. The run is detached from the request
// context and completes even if the client disconnects.
func (s *Server) sync(c *gin.Context) {
	report, err := s.syncer.RunNow(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, tasksync.ErrSyncInProgress):
		setFlash(c, flashWarning, "A sync is already running")
	case email.IsConnectionError(err):
		setFlash(c, flashError, "Could not connect to the mailbox, check the mail settings")
	case err != nil:
		setFlash(c, flashError, "Sync failed: "+genericFailure)
	case report.TasksAdded > 0:
		setFlash(c, flashSuccess, fmt.Sprintf(
			"%d new task(s) added (%d email(s) processed, %d already seen)",
			report.TasksAdded, report.EmailsProcessed, report.EmailsSkipped,
		))
	case report.EmailsProcessed > 0 || report.EmailsSkipped > 0:
		setFlash(c, flashInfo, fmt.Sprintf(
			"No new tasks (%d email(s) processed, %d already seen)",
			report.EmailsProcessed, report.EmailsSkipped,
		))
	default:
		setFlash(c, flashInfo, "No new emails matching the keywords")
	}
	c.Redirect(http.StatusFound, "/")
}

type addPage struct {
	Priorities []model.Priority
	Flash      *Flash
}

func (s *Server) addForm(c *gin.Context) {
	c.HTML(http.StatusOK, "add.html", addPage{
		Priorities: []model.Priority{model.PriorityLow, model.PriorityMedium, model.PriorityHigh},
		Flash:      popFlash(c),
	})
}

func (s *Server) addTask(c *gin.Context) {
	task := model.NewTask{
		Description: c.PostForm("description"),
		Priority:    model.Priority(c.DefaultPostForm("priority", string(model.PriorityMedium))),
		Note:        c.PostForm("note"),
	}
	if deadline := c.PostForm("deadline"); deadline != "" {
		task.Deadline = &deadline
	}

	if err := task.Validate(); err != nil {
		setFlash(c, flashError, err.Error())
		c.Redirect(http.StatusFound, "/add")
		return
	}

	if _, err := s.store.AddTask(c.Request.Context(), task); err != nil {
		s.log.Error("failed to add task", zap.Error(err))
		setFlash(c, flashError, genericFailure)
		c.Redirect(http.StatusFound, "/add")
		return
	}

	setFlash(c, flashSuccess, "Task added")
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) markDone(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := s.store.MarkDone(c.Request.Context(), id); err != nil {
		s.log.Error("failed to mark task done", zap.Int64("task_id", id), zap.Error(err))
		setFlash(c, flashError, genericFailure)
	} else {
		setFlash(c, flashSuccess, "Task marked as done")
	}
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) deleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	if err := s.store.DeleteTask(c.Request.Context(), id); err != nil {
		s.log.Error("failed to delete task", zap.Int64("task_id", id), zap.Error(err))
		setFlash(c, flashError, genericFailure)
	} else {
		setFlash(c, flashSuccess, "Task deleted")
	}
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) resetProcessed(c *gin.Context) {
	if err := s.store.ClearProcessedEmails(c.Request.Context()); err != nil {
		s.log.Error("failed to clear processed emails", zap.Error(err))
		setFlash(c, flashError, genericFailure)
	} else {
		setFlash(c, flashSuccess, "Processed email history cleared, all emails will be analyzed again")
	}
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) debugEmail(c *gin.Context) {
	info, err := s.mailbox.Check(c.Request.Context())
	if err != nil {
		s.log.Warn("mailbox check failed", zap.Error(err))
		setFlash(c, flashError, "Mailbox check failed: "+err.Error())
		c.Redirect(http.StatusFound, "/")
		return
	}

	msg := fmt.Sprintf("Connected as %s: %d message(s) in the inbox", info.Address, info.Messages)
	if info.LatestSubject != "" {
		msg += fmt.Sprintf(", latest: %q", info.LatestSubject)
	}
	setFlash(c, flashSuccess, msg)
	c.Redirect(http.StatusFound, "/")
}

func (s *Server) apiTasks(c *gin.Context) {
	tasks, err := s.store.ListTasks(c.Request.Context(), false)
	if err != nil {
		s.log.Error("failed to list tasks", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list tasks"})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// taskID parses the :id parameter. On failure it flashes an error and
// redirects, and ok is false.
func taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		setFlash(c, flashError, "Invalid task id")
		c.Redirect(http.StatusFound, "/")
		return 0, false
	}
	return id, true
}
