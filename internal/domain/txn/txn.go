// Package txn declares the unit of work shared by domain services.
package txn

import (
	"context"
	"sync"
)

// Runner executes fn inside a single transaction. Repositories called with
// the context passed to fn take part in that transaction. Nested calls join
// the outer transaction.
type Runner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Func adapts a function to Runner.
type Func func(ctx context.Context, fn func(ctx context.Context) error) error

func (f Func) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}

// Inline runs fn directly without a database transaction. Hooks registered
// with AfterCommit still run only when fn succeeds.
var Inline Runner = Func(func(ctx context.Context, fn func(ctx context.Context) error) error {
	if Active(ctx) {
		return fn(ctx)
	}
	txCtx, hooks := Begin(ctx)
	if err := fn(txCtx); err != nil {
		return err
	}
	hooks.Run(ctx)
	return nil
})

type hooksKey struct{}

// Hooks collects callbacks for the outermost transaction.
type Hooks struct {
	mu  sync.Mutex
	fns []func(context.Context)
}

// Begin marks ctx as running inside a transaction. Runner implementations
// call it when they open the outermost transaction and call Run on the
// returned Hooks after a successful commit.
func Begin(ctx context.Context) (context.Context, *Hooks) {
	h := &Hooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// Active reports whether ctx belongs to an open transaction.
func Active(ctx context.Context) bool {
	_, ok := ctx.Value(hooksKey{}).(*Hooks)
	return ok
}

// AfterCommit defers fn until the transaction in ctx commits. Outside a
// transaction fn runs immediately. fn is dropped if the transaction rolls
// back.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	h, ok := ctx.Value(hooksKey{}).(*Hooks)
	if !ok {
		fn(ctx)
		return
	}
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

// Run invokes the registered callbacks in order with ctx.
func (h *Hooks) Run(ctx context.Context) {
	h.mu.Lock()
	fns := h.fns
	h.fns = nil
	h.mu.Unlock()
	for _, fn := range fns {
		fn(ctx)
	}
}
