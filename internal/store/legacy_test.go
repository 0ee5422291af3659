package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mail2tasks/internal/model"
	"github.com/nhle/mail2tasks/internal/store"
)

const unversionedSchema = `
CREATE TABLE tasks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tache TEXT NOT NULL,
	priorite TEXT NOT NULL,
	deadline TEXT,
	info TEXT,
	status INTEGER DEFAULT 0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE processed_emails (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email_subject TEXT NOT NULL,
	email_body_hash TEXT NOT NULL,
	processed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

func writeUnversionedDB(t *testing.T, path string) {
	t.Helper()

	db, err := sqlx.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(unversionedSchema)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO tasks (tache, priorite, deadline, info, status)
		VALUES (?, ?, ?, ?, ?)`, "Préparer le rapport trimestriel", "haute", "2025-03-31", nil, 0)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO tasks (tache, priorite, deadline, info, status)
		VALUES (?, ?, ?, ?, ?)`, "Appeler le fournisseur", "basse", nil, "contrat", 1)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO processed_emails (email_subject, email_body_hash)
		VALUES (?, ?)`, "Rapport urgent", store.Fingerprint("corps du message"))
	require.NoError(t, err)
}

func TestNewSQLiteStore_UpgradesUnversionedDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")
	writeUnversionedDB(t, path)

	s, err := store.NewSQLiteStore(path)
	require.NoError(t, err)

	tasks, err := s.ListTasks(ctx, true)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	byDesc := map[string]model.Task{}
	for _, task := range tasks {
		byDesc[task.Description] = task
	}

	report := byDesc["Préparer le rapport trimestriel"]
	assert.Equal(t, model.PriorityHigh, report.Priority)
	require.NotNil(t, report.Deadline)
	assert.Equal(t, "2025-03-31", *report.Deadline)
	assert.Equal(t, "", report.Note)
	assert.False(t, report.Done)

	call := byDesc["Appeler le fournisseur"]
	assert.Equal(t, model.PriorityLow, call.Priority)
	assert.Equal(t, "contrat", call.Note)
	assert.True(t, call.Done)

	exists, err := s.TaskExists(ctx, "rapport trimestriel", nil)
	require.NoError(t, err)
	assert.True(t, exists)

	processed, err := s.IsEmailProcessed(ctx, "Rapport urgent", "corps du message")
	require.NoError(t, err)
	assert.True(t, processed)

	_, err = s.AddTask(ctx, model.NewTask{Description: "Nouvelle tâche"})
	require.NoError(t, err)
	require.NoError(t, s.MarkEmailProcessed(ctx, "Autre", "body"))
	require.NoError(t, s.Close())

	// Reopening a versioned database leaves it untouched.
	s, err = store.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()

	tasks, err = s.ListTasks(ctx, true)
	require.NoError(t, err)
	assert.Len(t, tasks, 3)

	count, err := s.CountProcessedEmails(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestNewSQLiteStore_FreshDatabaseSkipsLegacyUpgrade(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	defer s.Close()

	tasks, err := s.ListTasks(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}
