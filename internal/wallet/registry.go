package wallet

import (
	"context"

	"GuardVault/internal/logger"
)

// AddGuardian registers id as a guardian. Owner only, not during recovery.
//
// An id that is already registered is accepted again and still increments
// the guardian count, which inflates the count without adding a voter.
func (w *Wallet) AddGuardian(ctx context.Context, caller, id Address) error {
	return w.apply(ctx, "add_guardian", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		if err := t.requireRecovering(false); err != nil {
			return err
		}

		c := Commit(id)

		present, err := t.isGuardian(c)
		if err != nil {
			return err
		}

		if present {
			logger.Warn("guardian added twice", "commitment", c.Short())
		}

		count, err := t.guardianCount()
		if err != nil {
			return err
		}

		if err := t.setGuardian(c); err != nil {
			return err
		}

		if err := t.setCount(count + 1); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventGuardianAdded, Actor: caller, Subject: c})
	})
}

// RemoveGuardian removes id immediately. Owner only, not during recovery,
// and never below the threshold. Any pending removal request for id is dropped.
func (w *Wallet) RemoveGuardian(ctx context.Context, caller, id Address) error {
	return w.apply(ctx, "remove_guardian", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		if err := t.requireRecovering(false); err != nil {
			return err
		}

		c := Commit(id)

		present, err := t.isGuardian(c)
		if err != nil {
			return err
		}

		if !present {
			return rejectf(KindValidation, ErrUnknownGuardian, "%s", c.Short())
		}

		count, err := t.guardianCount()
		if err != nil {
			return err
		}

		threshold, err := t.threshold()
		if err != nil {
			return err
		}

		if count == 0 || count-1 < threshold {
			return rejectf(KindValidation, ErrBelowThreshold, "count=%d threshold=%d", count, threshold)
		}

		if err := t.clearGuardian(c); err != nil {
			return err
		}

		if err := t.setCount(count - 1); err != nil {
			return err
		}

		if err := t.clearDeadline(c); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventGuardianRemoved, Actor: caller, Subject: c})
	})
}

// TransferGuardianship moves the caller's guardian seat to a new commitment.
// Guardian only, not during recovery, and not while the caller is queued
// for removal. The guardian count is unchanged.
func (w *Wallet) TransferGuardianship(ctx context.Context, caller Address, next Commitment) error {
	return w.apply(ctx, "transfer_guardianship", func(t *txn) error {
		current, err := t.requireGuardian(caller)
		if err != nil {
			return err
		}

		if err := t.requireRecovering(false); err != nil {
			return err
		}

		deadline, err := t.deadline(current)
		if err != nil {
			return err
		}

		if deadline != 0 {
			return rejectf(KindTimelock, ErrQueuedForRemoval, "eligible at %d", deadline)
		}

		if err := swapGuardian(t, current, next); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventGuardianChanged, Actor: caller, Subject: current, Target: next})
	})
}

// RevealIdentity publishes the caller's address next to its commitment so
// that guardians can coordinate. Guardian only; the registry is unchanged.
func (w *Wallet) RevealIdentity(ctx context.Context, caller Address) error {
	return w.apply(ctx, "reveal_identity", func(t *txn) error {
		c, err := t.requireGuardian(caller)
		if err != nil {
			return err
		}

		return t.emit(Event{Kind: EventGuardianRevealed, Actor: caller, Subject: c})
	})
}

// swapGuardian replaces old with next in the membership set.
func swapGuardian(t *txn, old, next Commitment) error {
	taken, err := t.isGuardian(next)
	if err != nil {
		return err
	}

	if taken {
		return rejectf(KindValidation, ErrAlreadyGuardian, "%s", next.Short())
	}

	if err := t.clearGuardian(old); err != nil {
		return err
	}

	return t.setGuardian(next)
}
