// Package engine implements the escrow engine, the only writer of ledger
// state. Every operation validates input, authorizes the caller, then
// applies its writes as one atomic group.
package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/internal/storage"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

// Engine serializes all ledger mutations behind a single lock. Reads go
// through the query service and never take this lock.
type Engine struct {
	mu     sync.Mutex
	store  storage.LedgerStore
	policy Policy
	log    *logger.Logger
}

// New creates an engine over the given store. The policy is normalized;
// callers validate it before wiring.
func New(store storage.LedgerStore, policy Policy, log *logger.Logger) *Engine {
	policy.Normalize()
	if log == nil {
		log = logger.NewDefault("engine")
	}
	return &Engine{
		store:  store,
		policy: policy,
		log:    log.WithComponent("engine"),
	}
}

// Policy returns the authorization policy the engine was built with.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Deposit credits the caller's balance and records a journal entry.
func (e *Engine) Deposit(ctx context.Context, caller string, amount int64) (ledger.Entry, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ledger.Entry{}, errors.InvalidArgument("account is required")
	}
	if amount <= 0 {
		return ledger.Entry{}, errors.InvalidArgument("deposit amount must be positive, got %d", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var entry ledger.Entry
	err := e.store.Transact(ctx, func(tx storage.LedgerStore) error {
		balance, err := tx.GetBalance(ctx, caller)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, caller, balance+amount); err != nil {
			return err
		}
		entry, err = tx.AppendEntry(ctx, ledger.Entry{
			Account:      caller,
			Type:         ledger.EntryDeposit,
			Amount:       amount,
			BalanceAfter: balance + amount,
		})
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	e.log.WithField("account", caller).WithField("amount", amount).Info("deposit recorded")
	return entry, nil
}

// Withdraw debits the caller's balance. Funds escrowed in open or assigned
// tasks are not part of the balance and cannot be withdrawn.
func (e *Engine) Withdraw(ctx context.Context, caller string, amount int64) (ledger.Entry, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ledger.Entry{}, errors.InvalidArgument("account is required")
	}
	if amount <= 0 {
		return ledger.Entry{}, errors.InvalidArgument("withdraw amount must be positive, got %d", amount)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var entry ledger.Entry
	err := e.store.Transact(ctx, func(tx storage.LedgerStore) error {
		balance, err := tx.GetBalance(ctx, caller)
		if err != nil {
			return err
		}
		if balance < amount {
			return errors.InsufficientFunds("balance %d is less than withdrawal %d", balance, amount)
		}
		if err := tx.SetBalance(ctx, caller, balance-amount); err != nil {
			return err
		}
		entry, err = tx.AppendEntry(ctx, ledger.Entry{
			Account:      caller,
			Type:         ledger.EntryWithdraw,
			Amount:       -amount,
			BalanceAfter: balance - amount,
		})
		return err
	})
	if err != nil {
		return ledger.Entry{}, err
	}

	e.log.WithField("account", caller).WithField("amount", amount).Info("withdrawal recorded")
	return entry, nil
}

// CreateTask opens a task and moves the bounty from the caller's balance
// into escrow in one atomic step.
func (e *Engine) CreateTask(ctx context.Context, caller, description string, bounty int64) (ledger.Task, error) {
	caller = strings.TrimSpace(caller)
	description = strings.TrimSpace(description)
	if caller == "" {
		return ledger.Task{}, errors.InvalidArgument("account is required")
	}
	if description == "" {
		return ledger.Task{}, errors.InvalidArgument("description is required")
	}
	if bounty <= 0 {
		return ledger.Task{}, errors.InvalidArgument("bounty must be positive, got %d", bounty)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var task ledger.Task
	err := e.store.Transact(ctx, func(tx storage.LedgerStore) error {
		balance, err := tx.GetBalance(ctx, caller)
		if err != nil {
			return err
		}
		if balance < bounty {
			return errors.InsufficientFunds("balance %d is less than bounty %d", balance, bounty)
		}
		if err := tx.SetBalance(ctx, caller, balance-bounty); err != nil {
			return err
		}
		task, err = tx.AppendTask(ctx, ledger.Task{
			Creator:     caller,
			Description: description,
			Bounty:      bounty,
			Status:      ledger.StatusOpen,
		})
		if err != nil {
			return err
		}
		_, err = tx.AppendEntry(ctx, ledger.Entry{
			Account:      caller,
			Type:         ledger.EntryEscrow,
			Amount:       -bounty,
			TaskID:       &task.ID,
			BalanceAfter: balance - bounty,
		})
		return err
	})
	if err != nil {
		return ledger.Task{}, err
	}

	e.log.WithField("task_id", task.ID).
		WithField("creator", caller).
		WithField("bounty", bounty).
		Info("task created")
	return task, nil
}

// AssignTask moves an open task to assigned. An empty assignee means the
// caller claims the task for themselves; the policy decides who may assign.
func (e *Engine) AssignTask(ctx context.Context, caller string, taskID uint64, assignee string) (ledger.Task, error) {
	caller = strings.TrimSpace(caller)
	assignee = strings.TrimSpace(assignee)
	if caller == "" {
		return ledger.Task{}, errors.InvalidArgument("account is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if !task.Status.CanTransition(ledger.StatusAssigned) {
		return ledger.Task{}, errors.InvalidState("task %d is %s, not open", taskID, task.Status)
	}

	resolved, err := e.policy.ResolveAssignee(caller, task, assignee)
	if err != nil {
		return ledger.Task{}, err
	}

	updated, err := e.store.UpdateTaskStatus(ctx, taskID, ledger.StatusAssigned, resolved)
	if err != nil {
		return ledger.Task{}, err
	}

	e.log.WithField("task_id", taskID).WithField("assignee", resolved).Info("task assigned")
	return updated, nil
}

// CompleteTask settles an assigned task: the escrowed bounty is credited to
// the assignee and the task becomes terminal.
func (e *Engine) CompleteTask(ctx context.Context, caller string, taskID uint64) (ledger.Task, error) {
	caller = strings.TrimSpace(caller)
	if caller == "" {
		return ledger.Task{}, errors.InvalidArgument("account is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return ledger.Task{}, err
	}
	if !task.Status.CanTransition(ledger.StatusCompleted) {
		return ledger.Task{}, errors.InvalidState("task %d is %s, not assigned", taskID, task.Status)
	}
	if err := e.policy.AuthorizeComplete(caller, task); err != nil {
		return ledger.Task{}, err
	}

	var updated ledger.Task
	err = e.store.Transact(ctx, func(tx storage.LedgerStore) error {
		balance, err := tx.GetBalance(ctx, task.Assignee)
		if err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, task.Assignee, balance+task.Bounty); err != nil {
			return err
		}
		updated, err = tx.UpdateTaskStatus(ctx, taskID, ledger.StatusCompleted, "")
		if err != nil {
			return err
		}
		_, err = tx.AppendEntry(ctx, ledger.Entry{
			Account:      task.Assignee,
			Type:         ledger.EntryPayout,
			Amount:       task.Bounty,
			TaskID:       &task.ID,
			BalanceAfter: balance + task.Bounty,
		})
		return err
	})
	if err != nil {
		return ledger.Task{}, err
	}

	e.log.WithField("task_id", taskID).
		WithField("assignee", task.Assignee).
		WithField("bounty", task.Bounty).
		Info("task completed")
	return updated, nil
}
