package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DeBounty-Network/escrow_layer/internal/domain/ledger"
	"github.com/DeBounty-Network/escrow_layer/internal/errors"
	"github.com/DeBounty-Network/escrow_layer/internal/storage/memory"
)

const (
	alice   = "NAliceAddr1"
	bob     = "NBobAddr2"
	charlie = "NCharlieAddr3"
)

func newTestEngine(policy Policy) (*Engine, *memory.Store) {
	store := memory.New()
	return New(store, policy, nil), store
}

func TestBountyLifecycle(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)

	task, err := eng.CreateTask(ctx, alice, "fix bug", 40)
	require.NoError(t, err)
	require.Equal(t, uint64(0), task.ID)
	require.Equal(t, ledger.StatusOpen, task.Status)

	balance, err := eng.store.GetBalance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), balance)

	task, err = eng.AssignTask(ctx, bob, task.ID, "")
	require.NoError(t, err)
	require.Equal(t, ledger.StatusAssigned, task.Status)
	require.Equal(t, bob, task.Assignee)

	task, err = eng.CompleteTask(ctx, bob, task.ID)
	require.NoError(t, err)
	require.Equal(t, ledger.StatusCompleted, task.Status)

	balance, err = eng.store.GetBalance(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(40), balance)

	balance, err = eng.store.GetBalance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(60), balance)
}

func TestDepositValidation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, "", 10)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = eng.Deposit(ctx, alice, 0)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = eng.Deposit(ctx, alice, -5)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Withdraw(ctx, alice, 1)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)

	_, err = eng.Deposit(ctx, alice, 50)
	require.NoError(t, err)

	_, err = eng.Withdraw(ctx, alice, 51)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)

	entry, err := eng.Withdraw(ctx, alice, 50)
	require.NoError(t, err)
	require.Equal(t, int64(0), entry.BalanceAfter)
}

func TestEscrowedFundsAreNotWithdrawable(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)

	_, err = eng.CreateTask(ctx, alice, "write docs", 40)
	require.NoError(t, err)

	_, err = eng.Withdraw(ctx, alice, 70)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)

	_, err = eng.Withdraw(ctx, alice, 60)
	require.NoError(t, err)
}

func TestCreateTaskValidation(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)

	_, err = eng.CreateTask(ctx, alice, "  ", 10)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = eng.CreateTask(ctx, alice, "task", 0)
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	_, err = eng.CreateTask(ctx, alice, "task", 101)
	require.ErrorIs(t, err, errors.ErrInsufficientFunds)

	// Failed creations must leave no trace.
	count, err := store.TaskCount(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(0), count)

	balance, err := store.GetBalance(ctx, alice)
	require.NoError(t, err)
	require.Equal(t, int64(100), balance)
}

func TestTaskIDsAreDense(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		task, err := eng.CreateTask(ctx, alice, "task", 10)
		require.NoError(t, err)
		require.Equal(t, uint64(i), task.ID)
	}
}

func TestAssignTransitions(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.AssignTask(ctx, bob, 42, "")
	require.ErrorIs(t, err, errors.ErrNotFound)

	_, err = eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, alice, "task", 10)
	require.NoError(t, err)

	_, err = eng.CompleteTask(ctx, bob, task.ID)
	require.ErrorIs(t, err, errors.ErrInvalidState)

	_, err = eng.AssignTask(ctx, bob, task.ID, "")
	require.NoError(t, err)

	_, err = eng.AssignTask(ctx, charlie, task.ID, "")
	require.ErrorIs(t, err, errors.ErrInvalidState)
}

func TestCompletedIsTerminal(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, alice, "task", 10)
	require.NoError(t, err)
	_, err = eng.AssignTask(ctx, bob, task.ID, "")
	require.NoError(t, err)
	_, err = eng.CompleteTask(ctx, bob, task.ID)
	require.NoError(t, err)

	_, err = eng.CompleteTask(ctx, bob, task.ID)
	require.ErrorIs(t, err, errors.ErrInvalidState)

	_, err = eng.AssignTask(ctx, charlie, task.ID, "")
	require.ErrorIs(t, err, errors.ErrInvalidState)

	// Double completion must not pay twice.
	balance, err := eng.store.GetBalance(ctx, bob)
	require.NoError(t, err)
	require.Equal(t, int64(10), balance)
}

func TestCompleteAuthorization(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, alice, "task", 10)
	require.NoError(t, err)
	_, err = eng.AssignTask(ctx, bob, task.ID, "")
	require.NoError(t, err)

	_, err = eng.CompleteTask(ctx, charlie, task.ID)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	// The creator may settle under the default policy.
	_, err = eng.CompleteTask(ctx, alice, task.ID)
	require.NoError(t, err)
}

func TestOpenAssignRejectsThirdPartyAssignee(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, alice, "task", 10)
	require.NoError(t, err)

	_, err = eng.AssignTask(ctx, bob, task.ID, charlie)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	got, err := eng.AssignTask(ctx, bob, task.ID, bob)
	require.NoError(t, err)
	require.Equal(t, bob, got.Assignee)
}

func TestCreatorAssignPolicy(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(Policy{Assign: AssignCreator, Complete: CompleteAssignee})

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, alice, "task", 10)
	require.NoError(t, err)

	_, err = eng.AssignTask(ctx, bob, task.ID, bob)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	_, err = eng.AssignTask(ctx, alice, task.ID, "")
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	got, err := eng.AssignTask(ctx, alice, task.ID, bob)
	require.NoError(t, err)
	require.Equal(t, bob, got.Assignee)

	// Under the assignee-only rule even the creator may not complete.
	_, err = eng.CompleteTask(ctx, alice, task.ID)
	require.ErrorIs(t, err, errors.ErrUnauthorized)

	_, err = eng.CompleteTask(ctx, bob, task.ID)
	require.NoError(t, err)
}

func TestPolicyValidate(t *testing.T) {
	p := Policy{Assign: "anyone", Complete: CompleteAssignee}
	require.ErrorIs(t, p.Validate(), errors.ErrInvalidArgument)

	p = Policy{Assign: AssignOpen, Complete: "nobody"}
	require.ErrorIs(t, p.Validate(), errors.ErrInvalidArgument)

	p = Policy{}
	p.Normalize()
	require.NoError(t, p.Validate())
	require.Equal(t, DefaultPolicy(), p)
}

func TestJournalEntries(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 100)
	require.NoError(t, err)
	task, err := eng.CreateTask(ctx, alice, "task", 40)
	require.NoError(t, err)
	_, err = eng.AssignTask(ctx, bob, task.ID, "")
	require.NoError(t, err)
	_, err = eng.CompleteTask(ctx, bob, task.ID)
	require.NoError(t, err)
	_, err = eng.Withdraw(ctx, bob, 15)
	require.NoError(t, err)

	entries, err := store.ListEntries(ctx, alice, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Newest first.
	require.Equal(t, ledger.EntryEscrow, entries[0].Type)
	require.Equal(t, int64(-40), entries[0].Amount)
	require.NotNil(t, entries[0].TaskID)
	require.Equal(t, task.ID, *entries[0].TaskID)
	require.Equal(t, ledger.EntryDeposit, entries[1].Type)
	require.Equal(t, int64(100), entries[1].Amount)

	entries, err = store.ListEntries(ctx, bob, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, ledger.EntryWithdraw, entries[0].Type)
	require.Equal(t, int64(-15), entries[0].Amount)
	require.Equal(t, ledger.EntryPayout, entries[1].Type)
	require.Equal(t, int64(40), entries[1].Amount)
	require.Equal(t, int64(40), entries[1].BalanceAfter)
}

func TestFundConservation(t *testing.T) {
	ctx := context.Background()
	eng, store := newTestEngine(DefaultPolicy())

	_, err := eng.Deposit(ctx, alice, 500)
	require.NoError(t, err)
	_, err = eng.Deposit(ctx, bob, 200)
	require.NoError(t, err)

	t1, err := eng.CreateTask(ctx, alice, "first", 120)
	require.NoError(t, err)
	t2, err := eng.CreateTask(ctx, bob, "second", 50)
	require.NoError(t, err)
	_, err = eng.CreateTask(ctx, alice, "third", 80)
	require.NoError(t, err)

	_, err = eng.AssignTask(ctx, charlie, t1.ID, "")
	require.NoError(t, err)
	_, err = eng.CompleteTask(ctx, charlie, t1.ID)
	require.NoError(t, err)

	_, err = eng.AssignTask(ctx, bob, t2.ID, "")
	require.NoError(t, err)

	_, err = eng.Withdraw(ctx, charlie, 100)
	require.NoError(t, err)

	balances, err := store.ListBalances(ctx)
	require.NoError(t, err)
	var total int64
	for _, balance := range balances {
		total += balance
	}

	tasks, err := store.ListTasks(ctx)
	require.NoError(t, err)
	var escrowed int64
	for _, task := range tasks {
		if task.Escrowed() {
			escrowed += task.Bounty
		}
	}

	deposited, err := store.SumEntries(ctx, ledger.EntryDeposit)
	require.NoError(t, err)
	withdrawn, err := store.SumEntries(ctx, ledger.EntryWithdraw)
	require.NoError(t, err)

	require.Equal(t, deposited+withdrawn, total+escrowed)
}
