// Package ledger defines the escrow ledger's data model: accounts are
// opaque wallet addresses mapped to balances, tasks carry bounties
// reserved from the shared pool.
package ledger

import "time"

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	StatusOpen      TaskStatus = "open"
	StatusAssigned  TaskStatus = "assigned"
	StatusCompleted TaskStatus = "completed"
)

// CanTransition reports whether a task may move from its current status to
// the target. The only legal transitions are open->assigned and
// assigned->completed; completed is terminal.
func (s TaskStatus) CanTransition(target TaskStatus) bool {
	switch s {
	case StatusOpen:
		return target == StatusAssigned
	case StatusAssigned:
		return target == StatusCompleted
	default:
		return false
	}
}

// Task is a bounty-bearing work item. The bounty is deducted from the
// creator's balance at creation and held in escrow until completion.
type Task struct {
	ID          uint64     `json:"id" db:"id"`
	Creator     string     `json:"creator" db:"creator"`
	Description string     `json:"description" db:"description"`
	Bounty      int64      `json:"bounty" db:"bounty"`
	Assignee    string     `json:"assignee,omitempty" db:"assignee"`
	Status      TaskStatus `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Escrowed reports whether the task's bounty is still held by the pool.
func (t Task) Escrowed() bool {
	return t.Status == StatusOpen || t.Status == StatusAssigned
}

// Entry types recorded in the ledger journal.
const (
	EntryDeposit  = "deposit"
	EntryWithdraw = "withdraw"
	EntryEscrow   = "escrow"
	EntryPayout   = "payout"
)

// Entry is an immutable journal record of a balance movement. Deposits and
// withdrawals move funds across the pool boundary; escrow and payout
// entries move funds between balances and task escrow.
type Entry struct {
	ID           string    `json:"id" db:"id"`
	Account      string    `json:"account" db:"account"`
	Type         string    `json:"type" db:"entry_type"`
	Amount       int64     `json:"amount" db:"amount"`
	TaskID       *uint64   `json:"task_id,omitempty" db:"task_id"`
	BalanceAfter int64     `json:"balance_after" db:"balance_after"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
