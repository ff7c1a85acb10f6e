package engine

import (
	"database/sql"
	"fmt"
	"io/fs"
	"sort"

	"github.com/vkolb/waldb/rpc/common"
)

// runMigrations applies every embedded migration not yet recorded in
// _migrations, in name-lexicographic order, each inside its own
// transaction. Failure is fatal to the caller's Open attempt: the
// database remains exactly as far along as the last successfully
// committed migration.
func runMigrations(db *sql.DB, migrationsFS fs.FS, logger common.ILogger) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS _migrations (
			id INTEGER PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create _migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		applied, err := migrationApplied(db, name)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		sqlBytes, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if err := applyMigration(db, name, string(sqlBytes)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		logger.Infof("applied migration %s", name)
	}

	return nil
}

func migrationApplied(db *sql.DB, name string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM _migrations WHERE name = ?`, name).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func applyMigration(db *sql.DB, name, sqlText string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqlText); err != nil {
		return err
	}

	if _, err := tx.Exec(
		`INSERT INTO _migrations (name, applied_at) VALUES (?, CAST(strftime('%s','now') AS INTEGER))`,
		name,
	); err != nil {
		return err
	}

	return tx.Commit()
}
