package store

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// legacyColumns lists the columns of databases written before the schema
// was versioned, together with their current names.
var legacyColumns = []struct {
	table, from, to string
}{
	{"tasks", "tache", "description"},
	{"tasks", "priorite", "priority"},
	{"tasks", "info", "note"},
	{"processed_emails", "email_subject", "subject"},
	{"processed_emails", "email_body_hash", "body_hash"},
}

// legacyTaskFixups normalises rows of an upgraded tasks table to the
// values the current code reads back.
const legacyTaskFixups = `
UPDATE tasks SET note = '' WHERE note IS NULL;
UPDATE tasks SET status = 0 WHERE status IS NULL;
UPDATE tasks SET priority = CASE lower(trim(priority))
	WHEN 'haute'   THEN 'high'
	WHEN 'high'    THEN 'high'
	WHEN 'basse'   THEN 'low'
	WHEN 'low'     THEN 'low'
	ELSE 'medium'
END;
`

// upgradeLegacySchema renames the columns of an unversioned database to
// their current names so the versioned migrations can run on top of it.
// It does nothing on a fresh database.
func (s *SQLiteStore) upgradeLegacySchema() error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning legacy upgrade: %w", err)
	}
	defer tx.Rollback()

	var renamed []string
	tasksRenamed := false
	for _, c := range legacyColumns {
		ok, err := hasColumn(tx, c.table, c.from)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", c.table, c.from, c.to)
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("renaming %s.%s: %w", c.table, c.from, err)
		}
		renamed = append(renamed, c.table+"."+c.from)
		if c.table == "tasks" {
			tasksRenamed = true
		}
	}

	if tasksRenamed {
		if _, err := tx.Exec(legacyTaskFixups); err != nil {
			return fmt.Errorf("normalising legacy tasks: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing legacy upgrade: %w", err)
	}
	if len(renamed) > 0 {
		s.log.Info("upgraded legacy database schema", zap.Strings("columns", renamed))
	}
	return nil
}

func hasColumn(tx *sqlx.Tx, table, column string) (bool, error) {
	var count int
	err := tx.Get(&count,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column)
	if err != nil {
		return false, fmt.Errorf("inspecting %s columns: %w", table, err)
	}
	return count > 0, nil
}
