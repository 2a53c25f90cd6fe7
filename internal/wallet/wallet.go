package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"GuardVault/internal/logger"
	"GuardVault/internal/storage"
)

// CallExecutor runs the owner's outgoing calls. refund lets the callee send
// value back to the vault; it goes through the same reentrancy guard.
// Implementations must run the callee with the ctx they were given: any
// vault operation the callee reaches finds the held guard in it and fails
// with ErrReentrant. An operation started from an unrelated context waits
// for the guard instead, and blocks forever from inside the call.
type CallExecutor interface {
	Call(ctx context.Context, target [32]byte, input []byte, value uint64, refund func(context.Context, uint64) error) ([]byte, error)
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithClock sets the logical clock. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(w *Wallet) { w.clock = c }
}

// WithRemovalDelay sets the guardian removal timelock of a new vault.
// Defaults to DefaultRemovalDelay. Create stores the delay with the vault
// and Open uses the stored one, so the option has no effect on an
// existing vault.
func WithRemovalDelay(d time.Duration) Option {
	return func(w *Wallet) { w.delay = int64(d / time.Second) }
}

// WithExecutor sets the outgoing call executor.
func WithExecutor(e CallExecutor) Option {
	return func(w *Wallet) { w.executor = e }
}

// WithSink adds a receiver of committed events.
func WithSink(s Sink) Option {
	return func(w *Wallet) { w.sinks = append(w.sinks, s) }
}

// Wallet is the guardian-recoverable vault. All state lives in storage;
// every operation is serialized and applied as one atomic batch.
type Wallet struct {
	db       *storage.Storage
	clock    Clock
	delay    int64 // delay is the removal timelock in seconds
	executor CallExecutor
	sinks    []Sink
	guard    guard
}

func newWallet(db *storage.Storage, opts []Option) *Wallet {
	w := &Wallet{
		db:    db,
		clock: SystemClock{},
		delay: int64(DefaultRemovalDelay / time.Second),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Create initializes a new vault in db.
// Fails on duplicate guardian commitments, a threshold above the guardian
// count, a zero owner, or a db that already holds a vault.
func Create(db *storage.Storage, g Genesis, opts ...Option) (*Wallet, error) {
	w := newWallet(db, opts)

	err := w.apply(context.Background(), "create", func(t *txn) error {
		existing, err := t.get(keyOwner)
		if err != nil {
			return err
		}

		if existing != nil {
			return reject(KindState, ErrAlreadyInitialized)
		}

		if g.Owner.IsZero() {
			return reject(KindValidation, ErrInvalidOwner)
		}

		if g.Threshold > uint64(len(g.Guardians)) {
			return rejectf(KindValidation, ErrInvalidThreshold, "threshold=%d guardians=%d", g.Threshold, len(g.Guardians))
		}

		seen := make(map[Commitment]struct{}, len(g.Guardians))

		for _, c := range g.Guardians {
			if _, dup := seen[c]; dup {
				return rejectf(KindValidation, ErrDuplicateGuardian, "%s", c.Short())
			}
			seen[c] = struct{}{}

			if err := t.setGuardian(c); err != nil {
				return err
			}

			if err := t.emit(Event{Kind: EventGuardianAdded, Actor: g.Owner, Subject: c}); err != nil {
				return err
			}
		}

		if err := t.setCount(uint64(len(g.Guardians))); err != nil {
			return err
		}

		if err := t.setThreshold(g.Threshold); err != nil {
			return err
		}

		if err := t.setRemovalDelay(w.delay); err != nil {
			return err
		}

		if err := t.setRound(0); err != nil {
			return err
		}

		if err := t.setRecovering(false); err != nil {
			return err
		}

		return t.setOwner(g.Owner)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("vault created",
		"owner", g.Owner.String()[:16],
		"guardians", len(g.Guardians),
		"threshold", g.Threshold,
		"removal_delay", time.Duration(w.delay)*time.Second,
	)

	return w, nil
}

// Open loads an existing vault from db.
func Open(db *storage.Storage, opts ...Option) (*Wallet, error) {
	w := newWallet(db, opts)

	owner, err := reader{r: db}.get(keyOwner)
	if err != nil {
		return nil, err
	}

	if owner == nil {
		return nil, &Error{Op: "open", Kind: KindState, Err: ErrNotInitialized}
	}

	delay, stored, err := reader{r: db}.removalDelay()
	if err != nil {
		return nil, err
	}

	if stored {
		w.delay = delay
	}

	return w, nil
}

// apply runs fn as one atomic operation. Any error discards every write fn
// made; on success the batch is committed and the events published.
func (w *Wallet) apply(ctx context.Context, op string, fn func(t *txn) error) error {
	ctx, release, err := w.guard.enter(ctx)
	if err != nil {
		return &Error{Op: op, Kind: KindState, Err: err}
	}
	defer release()

	b := w.db.NewBatch()
	defer b.Discard()

	t := newTxn(ctx, b, w.clock.Now())

	if id, ok := txIDFrom(ctx); ok {
		if err := t.claimReceipt(id); err != nil {
			return named(op, err)
		}
	}

	if err := fn(t); err != nil {
		logger.Debug("operation rejected", "op", op, "error", err)
		return named(op, err)
	}

	if err := b.Commit(); err != nil {
		return fmt.Errorf("%s: commit:\n%w", op, err)
	}

	w.publish(t.events)

	return nil
}

// claimReceipt records a transaction hash, rejecting a replay.
func (t *txn) claimReceipt(id Hash) error {
	seen, err := t.hasReceipt(id)
	if err != nil {
		return err
	}

	if seen {
		return rejectf(KindValidation, ErrDuplicateTx, "%x", id[:8])
	}

	return t.putReceipt(id)
}

// named fills in the operation name of a rejection.
func named(op string, err error) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		e.Op = op
		return e
	}

	if e == nil {
		return fmt.Errorf("%s:\n%w", op, err)
	}

	return err
}

// publish hands committed events to every sink.
func (w *Wallet) publish(events []Event) {
	for _, e := range events {
		logger.Info("event", "seq", e.Seq, "kind", e.Kind.String(), "round", e.Round)

		for _, s := range w.sinks {
			s.Publish(e)
		}
	}
}
