// Package cli implements the mail2tasks command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nhle/mail2tasks/internal/ai"
	"github.com/nhle/mail2tasks/internal/credential"
	"github.com/nhle/mail2tasks/internal/logging"
	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/source/email"
	"github.com/nhle/mail2tasks/internal/store"
	tasksync "github.com/nhle/mail2tasks/internal/sync"
)

// app carries the state shared by all commands of one invocation. The
// store is opened lazily so commands that never touch it do not create
// a database file.
type app struct {
	configPath string
	dbPath     string

	cfg   *model.AppConfig
	log   *zap.Logger
	store *store.SQLiteStore
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	a := &app{}
	root := newRootCmd(a)
	err := root.ExecuteContext(context.Background())
	a.close()
	if err != nil {
		return 1
	}
	return 0
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "mail2tasks",
		Short: "Turn keyword-matched emails into tasks",
		Long: `mail2tasks polls an IMAP inbox for messages containing task keywords,
asks a language model to extract a task from each one and keeps the
results in a local SQLite database.

Examples:
  mail2tasks serve              # web UI with background sync
  mail2tasks sync               # run one sync and print the summary
  mail2tasks list --all         # show every task
  mail2tasks add -d "Call Bob"  # add a task by hand
  mail2tasks browse             # interactive task browser`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", model.DefaultConfigPath(), "path to the YAML config file")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "path to the SQLite database (overrides store.path)")

	root.AddCommand(
		newServeCmd(a),
		newSyncCmd(a),
		newListCmd(a),
		newAddCmd(a),
		newDoneCmd(a),
		newDeleteCmd(a),
		newResetProcessedCmd(a),
		newHistoryCmd(a),
		newCheckMailCmd(a),
		newBrowseCmd(a),
		newCredentialCmd(a),
		newConfigCmd(a),
	)

	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	cfg, err := model.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Store.Path = a.dbPath
	}
	a.cfg = cfg

	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	a.log = log
	zap.ReplaceGlobals(log)

	return nil
}

// openStore returns the shared store, opening it on first use.
func (a *app) openStore() (*store.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	s, err := store.NewSQLiteStore(a.cfg.Store.Path, store.WithLogger(a.log))
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}
	a.store = s
	return s, nil
}

// resolveSecrets fills the mail password and LLM API key from the
// keyring when neither the config file nor the environment set them.
func (a *app) resolveSecrets() error {
	password, err := credential.Resolve(a.cfg.Mail.Password, credential.KeyMailPassword)
	if err != nil {
		return fmt.Errorf("resolving mail password: %w", err)
	}
	a.cfg.Mail.Password = password

	apiKey, err := credential.Resolve(a.cfg.LLM.APIKey, credential.KeyLLMAPIKey)
	if err != nil {
		return fmt.Errorf("resolving LLM API key: %w", err)
	}
	a.cfg.LLM.APIKey = apiKey

	if apiKey == "" {
		a.log.Warn("no LLM API key configured, tasks will be created in fallback mode")
	}
	return nil
}

func (a *app) mailbox() *email.IMAPClient {
	return email.NewIMAPClient(a.cfg.Mail, a.cfg.Keywords, a.log)
}

// services wires the sync pipeline: mailbox, extractor, store and the
// poller that serialises runs.
func (a *app) services() (*email.IMAPClient, *tasksync.Poller, error) {
	if err := a.resolveSecrets(); err != nil {
		return nil, nil, err
	}
	s, err := a.openStore()
	if err != nil {
		return nil, nil, err
	}

	mailbox := a.mailbox()
	extractor := ai.NewExtractor(a.cfg.LLM, a.log)
	orch := tasksync.NewOrchestrator(mailbox, extractor, s, a.log)
	poller := tasksync.NewPoller(orch, a.cfg.Sync.Interval, a.log)

	return mailbox, poller, nil
}

func (a *app) close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing task store: %v\n", err)
		}
		a.store = nil
	}
	if a.log != nil {
		_ = a.log.Sync()
	}
}
