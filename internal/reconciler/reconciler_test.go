package reconciler

import (
	"context"
	"testing"

	"github.com/DeBounty-Network/escrow_layer/internal/engine"
	"github.com/DeBounty-Network/escrow_layer/internal/query"
	"github.com/DeBounty-Network/escrow_layer/internal/storage/memory"
)

func TestSweepCleanLedger(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := engine.New(store, engine.DefaultPolicy(), nil)
	rec := New(query.New(store, nil), "", nil)

	if _, err := eng.Deposit(ctx, "NAlice", 100); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	if _, err := eng.CreateTask(ctx, "NAlice", "task", 30); err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}

	drift, err := rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if drift != 0 {
		t.Fatalf("expected zero drift, got %d", drift)
	}
}

func TestSweepDetectsDrift(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	eng := engine.New(store, engine.DefaultPolicy(), nil)
	rec := New(query.New(store, nil), "", nil)

	if _, err := eng.Deposit(ctx, "NAlice", 100); err != nil {
		t.Fatalf("Deposit failed: %v", err)
	}
	// Corrupt the store behind the engine's back.
	if err := store.SetBalance(ctx, "NAlice", 150); err != nil {
		t.Fatalf("SetBalance failed: %v", err)
	}

	drift, err := rec.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if drift != -50 {
		t.Fatalf("expected drift -50, got %d", drift)
	}
}
