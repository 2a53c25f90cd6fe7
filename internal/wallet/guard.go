package wallet

import (
	"context"
	"sync"
)

// guardKey marks a context as running inside a vault operation.
type guardKey struct{}

// guard serializes vault operations and rejects nested ones.
// Nesting is detected through the context handed to collaborators,
// so an outbound call that re-enters the vault fails instead of deadlocking.
type guard struct {
	mu sync.Mutex
}

// enter acquires the guard. The returned context must be passed to any
// outbound call; release must be called exactly once.
func (g *guard) enter(ctx context.Context) (context.Context, func(), error) {
	if held, _ := ctx.Value(guardKey{}).(*guard); held == g {
		return nil, nil, ErrReentrant
	}

	g.mu.Lock()

	return context.WithValue(ctx, guardKey{}, g), g.mu.Unlock, nil
}

// txIDKey carries the hash of the transaction driving an operation.
type txIDKey struct{}

// WithTxID binds a transaction hash to ctx. The operation run with this
// context records the hash and rejects a second application of it.
func WithTxID(ctx context.Context, id Hash) context.Context {
	return context.WithValue(ctx, txIDKey{}, id)
}

// txIDFrom returns the transaction hash bound to ctx, if any.
func txIDFrom(ctx context.Context) (Hash, bool) {
	id, ok := ctx.Value(txIDKey{}).(Hash)
	return id, ok
}
