package wallet

import (
	"context"
	"testing"
	"time"
)

func TestRemovalTimelock(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)
	old := v.commitment(2)
	next := Commit(testAddr(0x70))

	if err := v.QueueRemoval(ctx, v.owner, old); err != nil {
		t.Fatalf("queue: %v", err)
	}

	deadline, err := v.RemovalDeadline(old)
	if err != nil {
		t.Fatalf("deadline: %v", err)
	}

	if want := int64(1000) + int64(DefaultRemovalDelay/time.Second); deadline != want {
		t.Errorf("deadline = %d, want %d", deadline, want)
	}

	err = v.ExecuteRemoval(ctx, v.owner, old, next)
	expectRejected(t, err, KindTimelock, ErrTimelockActive)

	v.clock.Advance(DefaultRemovalDelay - time.Second)

	err = v.ExecuteRemoval(ctx, v.owner, old, next)
	expectRejected(t, err, KindTimelock, ErrTimelockActive)

	// Exactly at the deadline
	v.clock.Advance(time.Second)

	if err := v.ExecuteRemoval(ctx, v.owner, old, next); err != nil {
		t.Fatalf("execute removal: %v", err)
	}

	if ok, _ := v.IsGuardian(old); ok {
		t.Error("old commitment still registered")
	}

	if ok, _ := v.IsGuardian(next); !ok {
		t.Error("replacement not registered")
	}

	if n := mustCount(t, v); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	if d, _ := v.RemovalDeadline(old); d != 0 {
		t.Errorf("request not cleared: deadline = %d", d)
	}

	// Nothing queued any more
	err = v.ExecuteRemoval(ctx, v.owner, old, Commit(testAddr(0x71)))
	expectRejected(t, err, KindTimelock, ErrNotQueued)
}

func TestRemovalCustomDelay(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 2, 1, WithRemovalDelay(time.Hour))

	if err := v.QueueRemoval(ctx, v.owner, v.commitment(0)); err != nil {
		t.Fatalf("queue: %v", err)
	}

	v.clock.Advance(time.Hour)

	if err := v.ExecuteRemoval(ctx, v.owner, v.commitment(0), Commit(testAddr(0x70))); err != nil {
		t.Errorf("execute after custom delay: %v", err)
	}
}

// The delay chosen at creation survives a reopen, even one that passes a
// different delay option.
func TestRemovalDelayStoredWithVault(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 2, 1, WithRemovalDelay(time.Hour))

	for _, opts := range [][]Option{
		{WithClock(v.clock)},
		{WithClock(v.clock), WithRemovalDelay(5 * time.Hour)},
	} {
		w, err := Open(v.db, opts...)
		if err != nil {
			t.Fatalf("reopen: %v", err)
		}

		c := v.commitment(0)
		if err := w.QueueRemoval(ctx, v.owner, c); err != nil {
			t.Fatalf("queue: %v", err)
		}

		deadline, err := w.RemovalDeadline(c)
		if err != nil {
			t.Fatalf("deadline: %v", err)
		}

		if got := deadline - v.clock.Now(); got != int64(time.Hour/time.Second) {
			t.Errorf("deadline - now = %ds, want 3600s", got)
		}

		if err := w.CancelRemoval(ctx, v.owner, c); err != nil {
			t.Fatalf("cancel: %v", err)
		}
	}
}

func TestQueueRemovalRejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	err := v.QueueRemoval(ctx, v.guardians[0], v.commitment(1))
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	err = v.QueueRemoval(ctx, v.owner, Commit(testAddr(0x99)))
	expectRejected(t, err, KindValidation, ErrUnknownGuardian)

	if err := v.InitiateRecovery(ctx, v.guardians[0], testAddr(0xAA)); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	err = v.QueueRemoval(ctx, v.owner, v.commitment(1))
	expectRejected(t, err, KindState, ErrRecovering)
}

func TestExecuteRemovalRejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)
	next := Commit(testAddr(0x70))

	err := v.ExecuteRemoval(ctx, v.owner, v.commitment(0), next)
	expectRejected(t, err, KindTimelock, ErrNotQueued)

	if err := v.QueueRemoval(ctx, v.owner, v.commitment(0)); err != nil {
		t.Fatalf("queue: %v", err)
	}

	v.clock.Advance(DefaultRemovalDelay)

	err = v.ExecuteRemoval(ctx, v.guardians[1], v.commitment(0), next)
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	err = v.ExecuteRemoval(ctx, v.owner, v.commitment(0), v.commitment(1))
	expectRejected(t, err, KindValidation, ErrAlreadyGuardian)

	// The queued guardian left through the immediate path meanwhile
	if err := v.AddGuardian(ctx, v.owner, testAddr(0x80)); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := v.QueueRemoval(ctx, v.owner, v.commitment(1)); err != nil {
		t.Fatalf("queue second: %v", err)
	}

	if err := v.RemoveGuardian(ctx, v.owner, v.guardians[1]); err != nil {
		t.Fatalf("remove: %v", err)
	}

	v.clock.Advance(DefaultRemovalDelay)

	err = v.ExecuteRemoval(ctx, v.owner, v.commitment(1), next)
	expectRejected(t, err, KindTimelock, ErrNotQueued)
}

func TestCancelRemoval(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	if err := v.QueueRemoval(ctx, v.owner, v.commitment(0)); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if err := v.CancelRemoval(ctx, v.owner, v.commitment(0)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	v.clock.Advance(DefaultRemovalDelay)

	err := v.ExecuteRemoval(ctx, v.owner, v.commitment(0), Commit(testAddr(0x70)))
	expectRejected(t, err, KindTimelock, ErrNotQueued)

	// Cancelling nothing is accepted
	if err := v.CancelRemoval(ctx, v.owner, Commit(testAddr(0x99))); err != nil {
		t.Errorf("cancel of absent request: %v", err)
	}

	err = v.CancelRemoval(ctx, v.guardians[0], v.commitment(0))
	expectRejected(t, err, KindAuthorization, ErrNotOwner)
}
