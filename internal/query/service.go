// Package query provides read-only access to ledger state. It never
// mutates the store and never takes the engine's mutation lock; each call
// reads one consistent snapshot.
package query

import (
	"context"
	"strings"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/internal/storage"
	"github.com/DeBounty-Network/escrow_layer/pkg/logger"
)

// PoolReport summarizes where every unit in the pool currently sits. For a
// healthy ledger Drift is zero: deposits minus withdrawals equals spendable
// balances plus outstanding escrow.
type PoolReport struct {
	TotalBalances int64 `json:"total_balances"`
	TotalEscrowed int64 `json:"total_escrowed"`
	Deposited     int64 `json:"deposited"`
	Withdrawn     int64 `json:"withdrawn"`
	Drift         int64 `json:"drift"`
}

// Service answers read queries against the ledger store.
type Service struct {
	store storage.LedgerStore
	log   *logger.Logger
}

// New creates a query service over the given store.
func New(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("query")
	}
	return &Service{store: store, log: log.WithComponent("query")}
}

// Balance returns the spendable balance for an account. Unknown accounts
// read as zero.
func (s *Service) Balance(ctx context.Context, account string) (int64, error) {
	account = strings.TrimSpace(account)
	if account == "" {
		return 0, errors.InvalidArgument("account is required")
	}
	return s.store.GetBalance(ctx, account)
}

// Balances returns a snapshot of all known account balances.
func (s *Service) Balances(ctx context.Context) (map[string]int64, error) {
	return s.store.ListBalances(ctx)
}

// Task returns a single task by id.
func (s *Service) Task(ctx context.Context, id uint64) (ledger.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Tasks returns all tasks in creation order, optionally filtered by status.
func (s *Service) Tasks(ctx context.Context, status ledger.TaskStatus) ([]ledger.Task, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return tasks, nil
	}
	filtered := make([]ledger.Task, 0, len(tasks))
	for _, task := range tasks {
		if task.Status == status {
			filtered = append(filtered, task)
		}
	}
	return filtered, nil
}

// TaskCount returns the number of tasks ever created.
func (s *Service) TaskCount(ctx context.Context) (uint64, error) {
	return s.store.TaskCount(ctx)
}

// Entries returns journal entries, newest first. An empty account means all
// accounts; limit bounds the result (0 means no limit).
func (s *Service) Entries(ctx context.Context, account string, limit int) ([]ledger.Entry, error) {
	if limit < 0 {
		return nil, errors.InvalidArgument("limit cannot be negative")
	}
	return s.store.ListEntries(ctx, strings.TrimSpace(account), limit)
}

// Pool computes the pool report from balances, tasks and the journal.
func (s *Service) Pool(ctx context.Context) (PoolReport, error) {
	var report PoolReport
	err := s.store.Transact(ctx, func(tx storage.LedgerStore) error {
		balances, err := tx.ListBalances(ctx)
		if err != nil {
			return err
		}
		for _, balance := range balances {
			report.TotalBalances += balance
		}

		tasks, err := tx.ListTasks(ctx)
		if err != nil {
			return err
		}
		for _, task := range tasks {
			if task.Escrowed() {
				report.TotalEscrowed += task.Bounty
			}
		}

		report.Deposited, err = tx.SumEntries(ctx, ledger.EntryDeposit)
		if err != nil {
			return err
		}
		withdrawn, err := tx.SumEntries(ctx, ledger.EntryWithdraw)
		if err != nil {
			return err
		}
		// Withdrawals are journaled as negative amounts.
		report.Withdrawn = -withdrawn
		return nil
	})
	if err != nil {
		return PoolReport{}, err
	}

	report.Drift = report.Deposited - report.Withdrawn - report.TotalBalances - report.TotalEscrowed
	return report, nil
}
