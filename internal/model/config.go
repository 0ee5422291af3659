package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// MailConfig holds the IMAP mailbox settings.
type MailConfig struct {
	Server   string `mapstructure:"server" yaml:"server"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Address  string `mapstructure:"address" yaml:"address"`
	Password string `mapstructure:"password" yaml:"password"`

	// MaxMessages bounds how many of the most recent inbox messages are
	// examined on each sync.
	MaxMessages int `mapstructure:"max_messages" yaml:"max_messages"`

	// MarkSeen fetches with BODY[] (setting \Seen) instead of BODY.PEEK[].
	MarkSeen bool `mapstructure:"mark_seen" yaml:"mark_seen"`

	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LLMConfig holds settings for the chat-completion API used for extraction.
type LLMConfig struct {
	APIKey  string        `mapstructure:"api_key" yaml:"api_key"`
	URL     string        `mapstructure:"url" yaml:"url"`
	Model   string        `mapstructure:"model" yaml:"model"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// StoreConfig holds the SQLite database location.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// WebConfig holds the HTTP listener settings.
type WebConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SyncConfig controls background synchronization.
type SyncConfig struct {
	// Interval between scheduled syncs. Zero disables scheduling; syncs
	// then only run when triggered.
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// AppConfig is the top-level application configuration. It is loaded
// once at startup and passed to each component's constructor.
type AppConfig struct {
	Mail     MailConfig  `mapstructure:"mail" yaml:"mail"`
	LLM      LLMConfig   `mapstructure:"llm" yaml:"llm"`
	Keywords []string    `mapstructure:"keywords" yaml:"keywords"`
	Store    StoreConfig `mapstructure:"store" yaml:"store"`
	Web      WebConfig   `mapstructure:"web" yaml:"web"`
	Sync     SyncConfig  `mapstructure:"sync" yaml:"sync"`
	Log      LogConfig   `mapstructure:"log" yaml:"log"`
}

// MailAddr returns the host:port of the IMAP server.
func (c MailConfig) MailAddr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}

// DefaultKeywords is the term list used to decide whether an email is
// worth sending to the extractor.
var DefaultKeywords = []string{
	"urgent", "action", "à faire", "deadline", "important", "tâche",
	"task", "réunion", "meeting", "projet", "project", "préparer",
	"préparation", "todo", "à réaliser", "work", "travail", "dossier",
	"file", "document", "rapport", "dead line", "échéance", "reminder",
	"rappeler", "check", "vérifier", "confirmer", "valider", "envoyer",
	"mail", "email", "message", "contact", "appel", "call", "urgence",
	"crucial", "essentiel", "nécessaire", "besoin", "demande",
	"request", "required", "must", "doit", "devoir", "obligatoire",
	"impératif", "priorité", "priority", "high", "haute", "moyenne",
	"basse", "asap", "soon", "rapidement", "quick", "fast", "livrable",
	"deliverable", "rendre", "submit", "due", "date limite",
	"time limit", "schedule", "calendrier", "agenda", "planning",
	"plan", "prévu", "prévoir", "organiser", "coordinate", "gérer",
	"manage", "superviser", "supervise", "contrôler", "control",
	"review", "réviser", "corriger", "correct", "fix", "repair",
	"réparer", "modifier", "modify", "changer", "change", "update",
	"mettre à jour", "upgrade", "améliorer", "improve", "créer",
	"create", "nouveau", "new", "develop", "développer", "test",
	"tester", "validate", "approuver", "approve", "signer", "sign",
	"confirm", "finaliser", "finalize", "répondre", "reply", "answer",
	"solution", "résoudre", "solve", "probleme", "problem", "issue",
	"bug", "erreur", "error", "correction", "correctif", "hotfix",
	"patch",
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/mail2tasks/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "mail2tasks", "config.yaml")
}

// legacyEnv maps flat environment variable names, as found in existing
// .env files, onto config keys.
var legacyEnv = map[string]string{
	"mail.server":   "IMAP_SERVER",
	"mail.port":     "IMAP_PORT",
	"mail.address":  "EMAIL_ADDRESS",
	"mail.password": "EMAIL_PASSWORD",
	"llm.api_key":   "MISTRAL_API_KEY",
	"llm.url":       "MISTRAL_API_URL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mail.server", "imap.gmail.com")
	v.SetDefault("mail.port", 993)
	v.SetDefault("mail.max_messages", 10)
	v.SetDefault("mail.mark_seen", true)
	v.SetDefault("mail.timeout", 30*time.Second)
	v.SetDefault("llm.url", "https://api.mistral.ai/v1/chat/completions")
	v.SetDefault("llm.model", "mistral-small-latest")
	v.SetDefault("llm.timeout", 60*time.Second)
	v.SetDefault("keywords", DefaultKeywords)
	v.SetDefault("store.path", "tasks.db")
	v.SetDefault("web.addr", ":5000")
	v.SetDefault("sync.interval", time.Duration(0))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A .env file in the working directory is loaded into the environment
// first. Environment variables prefixed with MAIL2TASKS_ (for example
// MAIL2TASKS_MAIL_ADDRESS) override file values. A missing file is not an
// error; defaults and the environment are used instead.
func LoadConfig(path string) (*AppConfig, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("MAIL2TASKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for key, env := range legacyEnv {
		if err := v.BindEnv(key, "MAIL2TASKS_"+envName(key), env); err != nil {
			return nil, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		var pathErr *os.PathError
		if !errors.As(err, &notFound) && !errors.As(err, &pathErr) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if cfg.Mail.MaxMessages <= 0 {
		cfg.Mail.MaxMessages = 10
	}
	cfg.Keywords = cleanKeywords(cfg.Keywords)

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed. Secrets are not written.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	mail := cfg.Mail
	mail.Password = ""
	llm := cfg.LLM
	llm.APIKey = ""

	v.Set("mail", mail)
	v.Set("llm", llm)
	v.Set("keywords", cfg.Keywords)
	v.Set("store", cfg.Store)
	v.Set("web", cfg.Web)
	v.Set("sync", cfg.Sync)
	v.Set("log", cfg.Log)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}

func envName(key string) string {
	return strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// cleanKeywords trims entries and drops empty and duplicate terms
// (compared case-insensitively), keeping the first occurrence.
func cleanKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.TrimSpace(kw)
		key := strings.ToLower(kw)
		if kw == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, kw)
	}
	return out
}
