package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/keys"
	"github.com/nhle/mail2tasks/internal/theme"
	"github.com/nhle/mail2tasks/internal/ui/tasklist"
	"github.com/nhle/mail2tasks/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web UI and the background sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.Web.Addr = addr
			}
			if cmd.Flags().Changed("interval") {
				a.cfg.Sync.Interval = interval
			}

			mailbox, poller, err := a.services()
			if err != nil {
				return err
			}

			srv, err := web.NewServer(a.store, poller, mailbox, a.cfg.Keywords, a.log)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			poller.Start()
			defer poller.Stop()

			a.log.Info("mail2tasks started",
				zap.String("addr", a.cfg.Web.Addr),
				zap.Duration("sync_interval", a.cfg.Sync.Interval),
				zap.Int("keywords", len(a.cfg.Keywords)),
			)
			return srv.Run(ctx, a.cfg.Web.Addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides web.addr)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "background sync interval, 0 disables (overrides sync.interval)")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Fetch matching emails once and extract tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, poller, err := a.services()
			if err != nil {
				return err
			}

			report, err := poller.RunNow(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.SuccessStyle.Render(fmt.Sprintf(
				"%d task(s) added, %d email(s) processed, %d already seen",
				report.TasksAdded, report.EmailsProcessed, report.EmailsSkipped,
			)))
			fmt.Fprintln(out, theme.HelpStyle.Render(fmt.Sprintf(
				"run %s in %s", report.RunID, report.Duration().Round(time.Millisecond),
			)))
			return nil
		},
	}
}

func newResetProcessedCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-processed",
		Short: "Forget which emails were already processed",
		Long: `Clear the processed-email history so the next sync analyzes every
matching email again. Existing tasks are kept and still deduplicated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			count, err := s.CountProcessedEmails(cmd.Context())
			if err != nil {
				return err
			}
			if err := s.ClearProcessedEmails(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), theme.SuccessStyle.Render(
				fmt.Sprintf("Cleared %d processed email record(s)", count)))
			return nil
		},
	}
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently processed emails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			entries, err := s.RecentProcessedEmails(cmd.Context(), limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, theme.NoteStyle.Render("No processed emails."))
				return nil
			}
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %s  %s\n",
					theme.HelpStyle.Render(e.ProcessedAt.Local().Format("2006-01-02 15:04")),
					theme.NoteStyle.Render(e.BodyFingerprint[:8]),
					e.Subject,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of entries to show")
	return cmd
}

func newCheckMailCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-mail",
		Short: "Verify the mailbox connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.resolveSecrets(); err != nil {
				return err
			}

			info, err := a.mailbox().Check(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, theme.SuccessStyle.Render(fmt.Sprintf(
				"Connected to %s as %s", a.cfg.Mail.MailAddr(), info.Address)))
			fmt.Fprintf(out, "Messages in INBOX: %d\n", info.Messages)
			if info.LatestSubject != "" {
				fmt.Fprintf(out, "Latest subject:    %s\n", info.LatestSubject)
			}
			return nil
		},
	}
}

func newBrowseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Browse and manage tasks interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, poller, err := a.services()
			if err != nil {
				return err
			}

			m := tasklist.New(a.store, poller, keys.DefaultKeyMap(), 80, 24)
			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil {
				return fmt.Errorf("running task browser: %w", err)
			}
			return nil
		},
	}
}
