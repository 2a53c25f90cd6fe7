package wallet

import (
	"context"
)

// QueueRemoval starts the timelock for replacing guardian c. The swap can be
// executed once the removal delay has passed. Owner only, not during recovery.
func (w *Wallet) QueueRemoval(ctx context.Context, caller Address, c Commitment) error {
	return w.apply(ctx, "queue_removal", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		present, err := t.isGuardian(c)
		if err != nil {
			return err
		}

		if !present {
			return rejectf(KindValidation, ErrUnknownGuardian, "%s", c.Short())
		}

		if err := t.requireRecovering(false); err != nil {
			return err
		}

		eligibleAt := t.now + w.delay

		if err := t.setDeadline(c, eligibleAt); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventGuardianQueued, Actor: caller, Subject: c, Deadline: eligibleAt})
	})
}

// ExecuteRemoval replaces the queued guardian old with next once its delay
// has elapsed. The guardian count is unchanged and the request is cleared.
func (w *Wallet) ExecuteRemoval(ctx context.Context, caller Address, old, next Commitment) error {
	return w.apply(ctx, "execute_removal", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		eligibleAt, err := t.deadline(old)
		if err != nil {
			return err
		}

		if eligibleAt == 0 {
			return rejectf(KindTimelock, ErrNotQueued, "%s", old.Short())
		}

		if t.now < eligibleAt {
			return rejectf(KindTimelock, ErrTimelockActive, "now=%d eligible=%d", t.now, eligibleAt)
		}

		present, err := t.isGuardian(old)
		if err != nil {
			return err
		}

		if !present {
			return rejectf(KindValidation, ErrUnknownGuardian, "%s", old.Short())
		}

		if err := swapGuardian(t, old, next); err != nil {
			return err
		}

		if err := t.clearDeadline(old); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventGuardianRemoved, Actor: caller, Subject: old, Target: next, Deadline: eligibleAt})
	})
}

// CancelRemoval clears any removal request for c. Owner only; clearing a
// request that does not exist is not an error.
func (w *Wallet) CancelRemoval(ctx context.Context, caller Address, c Commitment) error {
	return w.apply(ctx, "cancel_removal", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		if err := t.clearDeadline(c); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventRemovalCancelled, Actor: caller, Subject: c})
	})
}
