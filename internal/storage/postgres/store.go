// Package postgres implements the ledger store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/internal/storage"
)

// Store implements storage.LedgerStore over a PostgreSQL database.
type Store struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

var _ storage.LedgerStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, ext: db}
}

func (s *Store) GetBalance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := sqlx.GetContext(ctx, s.ext, &balance, `
		SELECT balance FROM escrow_balances WHERE account = $1
	`, account)
	if stderrors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

func (s *Store) SetBalance(ctx context.Context, account string, balance int64) error {
	if balance < 0 {
		return errors.InvalidArgument("balance for %s cannot be negative", account)
	}
	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO escrow_balances (account, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account) DO UPDATE SET balance = $2, updated_at = now()
	`, account, balance)
	return err
}

func (s *Store) ListBalances(ctx context.Context) (map[string]int64, error) {
	rows, err := s.ext.QueryContext(ctx, `
		SELECT account, balance FROM escrow_balances
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]int64)
	for rows.Next() {
		var (
			account string
			balance int64
		)
		if err := rows.Scan(&account, &balance); err != nil {
			return nil, err
		}
		result[account] = balance
	}
	return result, rows.Err()
}

func (s *Store) AppendTask(ctx context.Context, task ledger.Task) (ledger.Task, error) {
	// Tasks are append-only and never deleted, so the next dense id equals
	// the current row count.
	var count uint64
	if err := sqlx.GetContext(ctx, s.ext, &count, `SELECT COUNT(*) FROM escrow_tasks`); err != nil {
		return ledger.Task{}, err
	}

	now := time.Now().UTC()
	task.ID = count
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO escrow_tasks (id, creator, description, bounty, assignee, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, task.ID, task.Creator, task.Description, task.Bounty, task.Assignee, task.Status, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return ledger.Task{}, err
	}
	return task, nil
}

func (s *Store) GetTask(ctx context.Context, id uint64) (ledger.Task, error) {
	var task ledger.Task
	err := sqlx.GetContext(ctx, s.ext, &task, `
		SELECT id, creator, description, bounty, assignee, status, created_at, updated_at
		FROM escrow_tasks
		WHERE id = $1
	`, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return ledger.Task{}, errors.NotFound("task %d not found", id)
	}
	if err != nil {
		return ledger.Task{}, err
	}
	return task, nil
}

func (s *Store) UpdateTaskStatus(ctx context.Context, id uint64, status ledger.TaskStatus, assignee string) (ledger.Task, error) {
	result, err := s.ext.ExecContext(ctx, `
		UPDATE escrow_tasks
		SET status = $2,
		    assignee = CASE WHEN $3 <> '' THEN $3 ELSE assignee END,
		    updated_at = now()
		WHERE id = $1
	`, id, status, assignee)
	if err != nil {
		return ledger.Task{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ledger.Task{}, errors.NotFound("task %d not found", id)
	}
	return s.GetTask(ctx, id)
}

func (s *Store) TaskCount(ctx context.Context) (uint64, error) {
	var count uint64
	if err := sqlx.GetContext(ctx, s.ext, &count, `SELECT COUNT(*) FROM escrow_tasks`); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *Store) ListTasks(ctx context.Context) ([]ledger.Task, error) {
	var tasks []ledger.Task
	err := sqlx.SelectContext(ctx, s.ext, &tasks, `
		SELECT id, creator, description, bounty, assignee, status, created_at, updated_at
		FROM escrow_tasks
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Store) AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	_, err := s.ext.ExecContext(ctx, `
		INSERT INTO escrow_journal (id, account, entry_type, amount, task_id, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.Account, entry.Type, entry.Amount, taskIDValue(entry.TaskID), entry.BalanceAfter, entry.CreatedAt)
	if err != nil {
		return ledger.Entry{}, err
	}
	return entry, nil
}

func (s *Store) ListEntries(ctx context.Context, account string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = storage.DefaultEntryLimit
	}
	var entries []ledger.Entry
	err := sqlx.SelectContext(ctx, s.ext, &entries, `
		SELECT id, account, entry_type, amount, task_id, balance_after, created_at
		FROM escrow_journal
		WHERE $1 = '' OR account = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, account, limit)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) SumEntries(ctx context.Context, entryType string) (int64, error) {
	var total int64
	err := sqlx.GetContext(ctx, s.ext, &total, `
		SELECT COALESCE(SUM(amount), 0) FROM escrow_journal WHERE entry_type = $1
	`, entryType)
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Transact runs fn inside a SQL transaction; fn's writes either all commit
// or all roll back.
func (s *Store) Transact(ctx context.Context, fn func(tx storage.LedgerStore) error) error {
	if s.db == nil {
		// Already inside a transaction; nested groups join it.
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	txStore := &Store{ext: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func taskIDValue(id *uint64) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}
