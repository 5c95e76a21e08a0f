package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// migrations holds the schema statements applied at startup. Statements are
// idempotent so repeated application is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS escrow_balances (
		account    TEXT PRIMARY KEY,
		balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_tasks (
		id          BIGINT PRIMARY KEY,
		creator     TEXT NOT NULL,
		description TEXT NOT NULL,
		bounty      BIGINT NOT NULL CHECK (bounty > 0),
		assignee    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS escrow_journal (
		id            TEXT PRIMARY KEY,
		account       TEXT NOT NULL,
		entry_type    TEXT NOT NULL,
		amount        BIGINT NOT NULL,
		task_id       BIGINT,
		balance_after BIGINT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_escrow_journal_account ON escrow_journal (account, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_escrow_tasks_status ON escrow_tasks (status)`,
}

// Apply runs all schema migrations against the database.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i, err)
		}
	}
	return nil
}
