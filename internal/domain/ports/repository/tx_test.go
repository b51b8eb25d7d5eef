//go:build !integration

package repository

import (
	"context"
	"testing"
)

func TestOnCommit(t *testing.T) {
	ctx := context.Background()

	t.Run("runs right away without a transaction", func(t *testing.T) {
		ran := false
		txCtx, _ := TrackCommit(ctx)
		OnCommit(txCtx, NoTX, func() { ran = true })
		if !ran {
			t.Error("expected the callback to run immediately")
		}
	})

	t.Run("runs right away when nothing tracks the transaction", func(t *testing.T) {
		ran := false
		OnCommit(ctx, struct{}{}, func() { ran = true })
		if !ran {
			t.Error("expected the callback to run immediately")
		}
	})

	t.Run("waits for commit and runs once in order", func(t *testing.T) {
		// --- Arrange ---
		var order []int
		txCtx, commit := TrackCommit(ctx)

		// --- Act ---
		OnCommit(txCtx, struct{}{}, func() { order = append(order, 1) })
		OnCommit(txCtx, struct{}{}, func() { order = append(order, 2) })
		pending := len(order)
		commit()
		commit()

		// --- Assert ---
		if pending != 0 {
			t.Errorf("callbacks ran before commit")
		}
		if len(order) != 2 || order[0] != 1 || order[1] != 2 {
			t.Errorf("expected [1 2], got %v", order)
		}
	})
}
