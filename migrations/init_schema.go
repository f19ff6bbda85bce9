package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

// Tables lists every table the result store relies on
var Tables = []string{"test_results", "board_yield", "skipped_entries", "runs"}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS test_results (
		test       TEXT NOT NULL,
		sn         INTEGER NOT NULL,
		row_index  INTEGER NOT NULL,
		tester_id  INTEGER NOT NULL,
		source_dir TEXT NOT NULL,
		fields     TEXT NOT NULL,
		pass       BOOLEAN,
		PRIMARY KEY (test, sn, row_index)
	)`,
	`CREATE TABLE IF NOT EXISTS board_yield (
		sn       INTEGER NOT NULL,
		test     TEXT NOT NULL,
		position INTEGER NOT NULL,
		pass     BOOLEAN NOT NULL,
		PRIMARY KEY (sn, test)
	)`,
	`CREATE TABLE IF NOT EXISTS skipped_entries (
		dir    TEXT NOT NULL,
		test   TEXT NOT NULL,
		kind   TEXT NOT NULL,
		reason TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id            TEXT PRIMARY KEY,
		started_at    TEXT NOT NULL,
		base_dir      TEXT NOT NULL,
		directories   INTEGER NOT NULL,
		boards        INTEGER NOT NULL,
		skipped       INTEGER NOT NULL,
		overall_yield DOUBLE PRECISION NOT NULL
	)`,
}

// InitSchema creates missing tables and verifies that all required tables exist
func InitSchema(ctx context.Context, db *sql.DB, driver string) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	query := `
		SELECT EXISTS (
			SELECT FROM information_schema.tables
			WHERE table_schema = 'public'
			AND table_name = $1
		)`
	if driver == "sqlite3" {
		query = `SELECT EXISTS (SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = $1)`
	}

	for _, table := range Tables {
		var exists bool
		if err := db.QueryRowContext(ctx, query, table).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}

	return nil
}
