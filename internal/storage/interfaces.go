// Package storage defines the persistence contract for the escrow ledger.
// The ledger store is the single source of truth for balances, tasks and
// the journal; the escrow engine is its only writer.
package storage

import (
	"context"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
)

// DefaultEntryLimit bounds ListEntries results when the caller passes no
// limit. Both store backends apply it.
const DefaultEntryLimit = 1000

// LedgerStore persists account balances, tasks and journal entries.
//
// A missing account reads as balance zero, not as an error. GetTask and
// UpdateTaskStatus fail with errors.NotFound for unknown task ids. Every
// individual mutation is atomic; multi-step mutations are grouped with
// Transact so no partial update is ever observable.
type LedgerStore interface {
	// GetBalance returns the balance for an account, zero when unknown.
	GetBalance(ctx context.Context, account string) (int64, error)
	// SetBalance stores the balance for an account, creating it if needed.
	SetBalance(ctx context.Context, account string, balance int64) error
	// ListBalances returns a snapshot of all known account balances.
	ListBalances(ctx context.Context) (map[string]int64, error)

	// AppendTask stores a new task, assigning the next dense task id.
	AppendTask(ctx context.Context, task ledger.Task) (ledger.Task, error)
	// GetTask returns the task with the given id.
	GetTask(ctx context.Context, id uint64) (ledger.Task, error)
	// UpdateTaskStatus moves a task to the given status. A non-empty
	// assignee replaces the stored assignee; an empty one keeps it.
	UpdateTaskStatus(ctx context.Context, id uint64, status ledger.TaskStatus, assignee string) (ledger.Task, error)
	// TaskCount returns the number of tasks ever created.
	TaskCount(ctx context.Context) (uint64, error)
	// ListTasks returns a snapshot of all tasks in creation order.
	ListTasks(ctx context.Context) ([]ledger.Task, error)

	// AppendEntry records an immutable journal entry.
	AppendEntry(ctx context.Context, entry ledger.Entry) (ledger.Entry, error)
	// ListEntries returns journal entries, newest first, optionally scoped
	// to one account and bounded by limit (0 applies DefaultEntryLimit).
	ListEntries(ctx context.Context, account string, limit int) ([]ledger.Entry, error)
	// SumEntries returns the total recorded amount for one entry type.
	SumEntries(ctx context.Context, entryType string) (int64, error)

	// Transact applies fn as a single all-or-nothing mutation. The store
	// passed to fn is only valid for the duration of the call.
	Transact(ctx context.Context, fn func(tx LedgerStore) error) error
}
