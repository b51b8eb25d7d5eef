package repository

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v4"
)

// Tx is an opaque transaction handle; its concrete type is defined by the
// storage backend (pgx.Tx for Postgres). Repositories accept nil for the
// non-transactional path.
type Tx interface{}

var NoTX interface{}

// TransactionManager runs fn inside a transaction and passes the handle on.
//
//	tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx Tx) error {
//		u, err := users.FindByTelegramID(ctx, tx, tgID)
//		...
//		return users.Save(ctx, tx, u)
//	})
//
// Callbacks registered with OnCommit on the ctx handed to fn run only after
// a successful commit.
type TransactionManager interface {
	WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx Tx) error) error
}

type commitHooksKey struct{}

type commitHooks struct {
	mu  sync.Mutex
	fns []func()
}

// TrackCommit returns a ctx that collects OnCommit callbacks and a func
// that runs them in registration order. Call run only after commit.
func TrackCommit(ctx context.Context) (context.Context, func()) {
	h := &commitHooks{}
	run := func() {
		h.mu.Lock()
		fns := h.fns
		h.fns = nil
		h.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	}
	return context.WithValue(ctx, commitHooksKey{}, h), run
}

// OnCommit defers fn until the transaction tracked by ctx commits. With no
// transaction, or when nothing tracks ctx, fn runs right away.
func OnCommit(ctx context.Context, tx Tx, fn func()) {
	h, ok := ctx.Value(commitHooksKey{}).(*commitHooks)
	if tx == nil || !ok {
		fn()
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}
