package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/source/email"
	"github.com/nhle/mail2tasks/internal/store"
	tasksync "github.com/nhle/mail2tasks/internal/sync"
)

//go:embed templates/*.html
var templateFS embed.FS

const shutdownTimeout = 10 * time.Second

// Syncer runs syncs on demand and reports the latest outcome.
type Syncer interface {
	RunNow(ctx context.Context) (tasksync.Report, error)
	Status() tasksync.SyncStatus
}

// MailboxChecker verifies the mailbox connection.
type MailboxChecker interface {
	Check(ctx context.Context) (email.MailboxInfo, error)
}

// Server serves the task list UI and the JSON task listing.
type Server struct {
	store    store.Store
	syncer   Syncer
	mailbox  MailboxChecker
	keywords []string
	log      *zap.Logger
	engine   *gin.Engine
}

// NewServer builds the router and parses the embedded templates.
func NewServer(
	s store.Store,
	syncer Syncer,
	mailbox MailboxChecker,
	keywords []string,
	log *zap.Logger,
) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	srv := &Server{
		store:    s,
		syncer:   syncer,
		mailbox:  mailbox,
		keywords: keywords,
		log:      log.Named("web"),
	}

	r := gin.New()
	r.Use(recoverWithFlash(srv.log), GinZapMiddleware(srv.log))
	r.SetHTMLTemplate(tmpl)
	srv.registerRoutes(r)
	srv.engine = r

	return srv, nil
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/", s.index)
	r.GET("/sync", s.sync)
	r.GET("/add", s.addForm)
	r.POST("/add", s.addTask)
	r.GET("/done/:id", s.markDone)
	r.GET("/delete/:id", s.deleteTask)
	r.GET("/reset-processed", s.resetProcessed)
	r.GET("/debug-email", s.debugEmail)

	api := r.Group("/api")
	{
		api.GET("/tasks", s.apiTasks)
	}

	r.NoRoute(func(c *gin.Context) {
		setFlash(c, flashError, "Page not found")
		c.Redirect(http.StatusFound, "/")
	})
}

// Handler returns the HTTP handler for the UI.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting server", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("shutting down server")
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}
