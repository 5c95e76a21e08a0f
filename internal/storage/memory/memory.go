// Package memory provides an in-memory ledger store. It is safe for
// concurrent use and is primarily intended for tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/internal/storage"
)

// Store is an in-memory implementation of storage.LedgerStore.
type Store struct {
	mu       sync.RWMutex
	balances map[string]int64
	tasks    []ledger.Task
	entries  []ledger.Entry
}

var _ storage.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		balances: make(map[string]int64),
	}
}

func (s *Store) GetBalance(_ context.Context, account string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balances[account], nil
}

func (s *Store) SetBalance(_ context.Context, account string, balance int64) error {
	if balance < 0 {
		return errors.InvalidArgument("balance for %s cannot be negative", account)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[account] = balance
	return nil
}

func (s *Store) ListBalances(_ context.Context) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]int64, len(s.balances))
	for account, balance := range s.balances {
		out[account] = balance
	}
	return out, nil
}

func (s *Store) AppendTask(_ context.Context, task ledger.Task) (ledger.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	task.ID = uint64(len(s.tasks))
	task.CreatedAt = now
	task.UpdatedAt = now

	s.tasks = append(s.tasks, task)
	return task, nil
}

func (s *Store) GetTask(_ context.Context, id uint64) (ledger.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id >= uint64(len(s.tasks)) {
		return ledger.Task{}, errors.NotFound("task %d not found", id)
	}
	return s.tasks[id], nil
}

func (s *Store) UpdateTaskStatus(_ context.Context, id uint64, status ledger.TaskStatus, assignee string) (ledger.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id >= uint64(len(s.tasks)) {
		return ledger.Task{}, errors.NotFound("task %d not found", id)
	}

	task := s.tasks[id]
	task.Status = status
	if assignee != "" {
		task.Assignee = assignee
	}
	task.UpdatedAt = time.Now().UTC()

	s.tasks[id] = task
	return task, nil
}

func (s *Store) TaskCount(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.tasks)), nil
}

func (s *Store) ListTasks(_ context.Context) ([]ledger.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ledger.Task(nil), s.tasks...), nil
}

func (s *Store) AppendEntry(_ context.Context, entry ledger.Entry) (ledger.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()

	s.entries = append(s.entries, entry)
	return entry, nil
}

func (s *Store) ListEntries(_ context.Context, account string, limit int) ([]ledger.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterEntries(s.entries, account, limit), nil
}

func (s *Store) SumEntries(_ context.Context, entryType string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, entry := range s.entries {
		if entry.Type == entryType {
			total += entry.Amount
		}
	}
	return total, nil
}

// Transact runs fn against a view that mutates the store directly, holding
// the write lock for the whole call so readers never observe intermediate
// state. On error the pre-transaction state is restored.
func (s *Store) Transact(ctx context.Context, fn func(tx storage.LedgerStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.cloneLocked()
	if err := fn(&txView{store: s}); err != nil {
		s.balances = snapshot.balances
		s.tasks = snapshot.tasks
		s.entries = snapshot.entries
		return err
	}
	return nil
}

func (s *Store) cloneLocked() *Store {
	clone := &Store{
		balances: make(map[string]int64, len(s.balances)),
		tasks:    append([]ledger.Task(nil), s.tasks...),
		entries:  append([]ledger.Entry(nil), s.entries...),
	}
	for account, balance := range s.balances {
		clone.balances[account] = balance
	}
	return clone
}

// txView exposes the store without re-acquiring its lock; it is only handed
// to Transact callbacks while the write lock is held.
type txView struct {
	store *Store
}

var _ storage.LedgerStore = (*txView)(nil)

func (v *txView) GetBalance(_ context.Context, account string) (int64, error) {
	return v.store.balances[account], nil
}

func (v *txView) SetBalance(_ context.Context, account string, balance int64) error {
	if balance < 0 {
		return errors.InvalidArgument("balance for %s cannot be negative", account)
	}
	v.store.balances[account] = balance
	return nil
}

func (v *txView) ListBalances(_ context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(v.store.balances))
	for account, balance := range v.store.balances {
		out[account] = balance
	}
	return out, nil
}

func (v *txView) AppendTask(_ context.Context, task ledger.Task) (ledger.Task, error) {
	now := time.Now().UTC()
	task.ID = uint64(len(v.store.tasks))
	task.CreatedAt = now
	task.UpdatedAt = now
	v.store.tasks = append(v.store.tasks, task)
	return task, nil
}

func (v *txView) GetTask(_ context.Context, id uint64) (ledger.Task, error) {
	if id >= uint64(len(v.store.tasks)) {
		return ledger.Task{}, errors.NotFound("task %d not found", id)
	}
	return v.store.tasks[id], nil
}

func (v *txView) UpdateTaskStatus(_ context.Context, id uint64, status ledger.TaskStatus, assignee string) (ledger.Task, error) {
	if id >= uint64(len(v.store.tasks)) {
		return ledger.Task{}, errors.NotFound("task %d not found", id)
	}
	task := v.store.tasks[id]
	task.Status = status
	if assignee != "" {
		task.Assignee = assignee
	}
	task.UpdatedAt = time.Now().UTC()
	v.store.tasks[id] = task
	return task, nil
}

func (v *txView) TaskCount(_ context.Context) (uint64, error) {
	return uint64(len(v.store.tasks)), nil
}

func (v *txView) ListTasks(_ context.Context) ([]ledger.Task, error) {
	return append([]ledger.Task(nil), v.store.tasks...), nil
}

func (v *txView) AppendEntry(_ context.Context, entry ledger.Entry) (ledger.Entry, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.CreatedAt = time.Now().UTC()
	v.store.entries = append(v.store.entries, entry)
	return entry, nil
}

func (v *txView) ListEntries(ctx context.Context, account string, limit int) ([]ledger.Entry, error) {
	return filterEntries(v.store.entries, account, limit), nil
}

// filterEntries walks the journal newest first, scoped to account when set
// and bounded by limit (0 applies storage.DefaultEntryLimit).
func filterEntries(entries []ledger.Entry, account string, limit int) []ledger.Entry {
	if limit <= 0 {
		limit = storage.DefaultEntryLimit
	}
	result := make([]ledger.Entry, 0)
	for i := len(entries) - 1; i >= 0; i-- {
		if account != "" && entries[i].Account != account {
			continue
		}
		result = append(result, entries[i])
		if len(result) >= limit {
			break
		}
	}
	return result
}

func (v *txView) SumEntries(_ context.Context, entryType string) (int64, error) {
	var total int64
	for _, entry := range v.store.entries {
		if entry.Type == entryType {
			total += entry.Amount
		}
	}
	return total, nil
}

func (v *txView) Transact(ctx context.Context, fn func(tx storage.LedgerStore) error) error {
	return fn(v)
}
