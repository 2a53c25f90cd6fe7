package wallet

import (
	"context"
	"testing"
)

func TestAddGuardian(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)
	newbie := testAddr(0x30)

	if err := v.AddGuardian(ctx, v.owner, newbie); err != nil {
		t.Fatalf("add guardian: %v", err)
	}

	if n := mustCount(t, v); n != 4 {
		t.Errorf("count = %d, want 4", n)
	}

	if ok, _ := v.IsGuardian(Commit(newbie)); !ok {
		t.Error("added guardian not registered")
	}

	// The new guardian can act immediately
	if err := v.InitiateRecovery(ctx, newbie, testAddr(0xAA)); err != nil {
		t.Errorf("new guardian initiate: %v", err)
	}
}

func TestAddGuardianRejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	err := v.AddGuardian(ctx, v.guardians[0], testAddr(0x30))
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	if err := v.InitiateRecovery(ctx, v.guardians[0], testAddr(0xAA)); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	err = v.AddGuardian(ctx, v.owner, testAddr(0x30))
	expectRejected(t, err, KindState, ErrRecovering)

	if n := mustCount(t, v); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
}

// TestAddGuardianTwiceInflatesCount pins the accepted duplicate add:
// the count grows while membership does not.
func TestAddGuardianTwiceInflatesCount(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 3)

	if err := v.AddGuardian(ctx, v.owner, v.guardians[0]); err != nil {
		t.Fatalf("duplicate add: %v", err)
	}

	if n := mustCount(t, v); n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
}

func TestRemoveGuardian(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	if err := v.RemoveGuardian(ctx, v.owner, v.guardians[2]); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if n := mustCount(t, v); n != 2 {
		t.Errorf("count = %d, want 2", n)
	}

	if ok, _ := v.IsGuardian(v.commitment(2)); ok {
		t.Error("removed guardian still registered")
	}

	// Count == threshold now
	err := v.RemoveGuardian(ctx, v.owner, v.guardians[1])
	expectRejected(t, err, KindValidation, ErrBelowThreshold)

	err = v.InitiateRecovery(ctx, v.guardians[2], testAddr(0xAA))
	expectRejected(t, err, KindAuthorization, ErrNotGuardian)
}

func TestRemoveGuardianRejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 1)

	err := v.RemoveGuardian(ctx, v.guardians[0], v.guardians[1])
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	err = v.RemoveGuardian(ctx, v.owner, testAddr(0x77))
	expectRejected(t, err, KindValidation, ErrUnknownGuardian)

	if err := v.InitiateRecovery(ctx, v.guardians[0], testAddr(0xAA)); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	err = v.RemoveGuardian(ctx, v.owner, v.guardians[1])
	expectRejected(t, err, KindState, ErrRecovering)
}

func TestRemoveGuardianDropsPendingRemoval(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 1)

	if err := v.QueueRemoval(ctx, v.owner, v.commitment(1)); err != nil {
		t.Fatalf("queue: %v", err)
	}

	if err := v.RemoveGuardian(ctx, v.owner, v.guardians[1]); err != nil {
		t.Fatalf("remove: %v", err)
	}

	if d, _ := v.RemovalDeadline(v.commitment(1)); d != 0 {
		t.Errorf("deadline = %d after remove, want 0", d)
	}
}

// TestThresholdNeverExceedsCount drives the registry through adds and
// removes and checks the invariant after each step.
func TestThresholdNeverExceedsCount(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	steps := []func() error{
		func() error { return v.RemoveGuardian(ctx, v.owner, v.guardians[0]) },
		func() error { return v.RemoveGuardian(ctx, v.owner, v.guardians[1]) },
		func() error { return v.RemoveGuardian(ctx, v.owner, v.guardians[2]) },
		func() error { return v.AddGuardian(ctx, v.owner, testAddr(0x40)) },
		func() error { return v.RemoveGuardian(ctx, v.owner, v.guardians[1]) },
		func() error { return v.RemoveGuardian(ctx, v.owner, testAddr(0x40)) },
		func() error { return v.RemoveGuardian(ctx, v.owner, v.guardians[2]) },
	}

	for i, step := range steps {
		_ = step()

		count := mustCount(t, v)
		threshold, err := v.Threshold()
		if err != nil {
			t.Fatalf("threshold: %v", err)
		}

		if threshold > count {
			t.Fatalf("step %d: threshold %d > count %d", i, threshold, count)
		}
	}
}

func TestTransferGuardianship(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)
	next := testAddr(0x50)

	if err := v.TransferGuardianship(ctx, v.guardians[0], Commit(next)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if ok, _ := v.IsGuardian(v.commitment(0)); ok {
		t.Error("old commitment still registered")
	}

	if ok, _ := v.IsGuardian(Commit(next)); !ok {
		t.Error("new commitment not registered")
	}

	if n := mustCount(t, v); n != 3 {
		t.Errorf("count = %d, want 3", n)
	}

	err := v.InitiateRecovery(ctx, v.guardians[0], testAddr(0xAA))
	expectRejected(t, err, KindAuthorization, ErrNotGuardian)

	if err := v.InitiateRecovery(ctx, next, testAddr(0xAA)); err != nil {
		t.Errorf("new holder initiate: %v", err)
	}
}

func TestTransferGuardianshipRejections(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	err := v.TransferGuardianship(ctx, v.owner, Commit(testAddr(0x50)))
	expectRejected(t, err, KindAuthorization, ErrNotGuardian)

	err = v.TransferGuardianship(ctx, v.guardians[0], v.commitment(1))
	expectRejected(t, err, KindValidation, ErrAlreadyGuardian)

	if err := v.InitiateRecovery(ctx, v.guardians[1], testAddr(0xAA)); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	err = v.TransferGuardianship(ctx, v.guardians[0], Commit(testAddr(0x50)))
	expectRejected(t, err, KindState, ErrRecovering)
}

func TestQueuedGuardianCannotTransfer(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)

	if err := v.QueueRemoval(ctx, v.owner, v.commitment(0)); err != nil {
		t.Fatalf("queue: %v", err)
	}

	err := v.TransferGuardianship(ctx, v.guardians[0], Commit(testAddr(0x50)))
	expectRejected(t, err, KindTimelock, ErrQueuedForRemoval)

	// Cancelling the request frees the guardian again
	if err := v.CancelRemoval(ctx, v.owner, v.commitment(0)); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if err := v.TransferGuardianship(ctx, v.guardians[0], Commit(testAddr(0x50))); err != nil {
		t.Errorf("transfer after cancel: %v", err)
	}
}

func TestRevealIdentity(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 2, 1)

	before, _ := v.Status()

	if err := v.RevealIdentity(ctx, v.guardians[1]); err != nil {
		t.Fatalf("reveal: %v", err)
	}

	events, err := v.Events(before.LastEvent+1, 10)
	if err != nil || len(events) != 1 {
		t.Fatalf("events after reveal: %d (err=%v)", len(events), err)
	}

	e := events[0]
	if e.Kind != EventGuardianRevealed || e.Actor != v.guardians[1] || Commitment(e.Subject) != v.commitment(1) {
		t.Errorf("unexpected reveal event: %+v", e)
	}

	after, _ := v.Status()
	after.LastEvent = before.LastEvent
	if after != before {
		t.Error("reveal changed vault state")
	}

	err = v.RevealIdentity(ctx, testAddr(0x99))
	expectRejected(t, err, KindAuthorization, ErrNotGuardian)
}
