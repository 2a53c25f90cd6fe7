package wallet

import (
	"context"
)

// InitiateRecovery opens a new round and casts the caller's vote for
// candidate. Guardian only, and only while not already recovering.
func (w *Wallet) InitiateRecovery(ctx context.Context, caller, candidate Address) error {
	return w.apply(ctx, "initiate_recovery", func(t *txn) error {
		c, err := t.requireGuardian(caller)
		if err != nil {
			return err
		}

		if err := t.requireRecovering(false); err != nil {
			return err
		}

		if candidate.IsZero() {
			return reject(KindValidation, ErrInvalidOwner)
		}

		round, err := t.round()
		if err != nil {
			return err
		}

		round++

		if err := t.setRound(round); err != nil {
			return err
		}

		if err := castVote(t, c, candidate, round); err != nil {
			return err
		}

		if err := t.setRecovering(true); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventRecoveryInitiated, Actor: caller, Subject: c, Target: candidate, Round: round})
	})
}

// SupportRecovery casts the caller's vote for candidate in the current
// round, replacing any earlier vote. Guardian only, during recovery.
func (w *Wallet) SupportRecovery(ctx context.Context, caller, candidate Address) error {
	return w.apply(ctx, "support_recovery", func(t *txn) error {
		c, err := t.requireGuardian(caller)
		if err != nil {
			return err
		}

		if err := t.requireRecovering(true); err != nil {
			return err
		}

		if candidate.IsZero() {
			return reject(KindValidation, ErrInvalidOwner)
		}

		round, err := t.round()
		if err != nil {
			return err
		}

		if err := castVote(t, c, candidate, round); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventRecoverySupported, Actor: caller, Subject: c, Target: candidate, Round: round})
	})
}

// CancelRecovery ends the current round without changing the owner.
// Votes are left in place; they go stale once a new round starts.
func (w *Wallet) CancelRecovery(ctx context.Context, caller Address) error {
	return w.apply(ctx, "cancel_recovery", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		if err := t.requireRecovering(true); err != nil {
			return err
		}

		round, err := t.round()
		if err != nil {
			return err
		}

		if err := t.setRecovering(false); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventRecoveryCancelled, Actor: caller, Round: round})
	})
}

// ExecuteRecoveryWithList installs newOwner on the strength of an explicit
// voter list. Every listed guardian must hold an unconsumed vote for
// newOwner in the current round; each vote is consumed as it is checked,
// so a guardian listed twice fails on its second occurrence.
//
// The list is checked before the recovery mode, so replaying an executed
// list reports the consumed vote rather than the closed round.
func (w *Wallet) ExecuteRecoveryWithList(ctx context.Context, caller, newOwner Address, guardians []Commitment) error {
	return w.apply(ctx, "execute_recovery_list", func(t *txn) error {
		c, err := t.requireGuardian(caller)
		if err != nil {
			return err
		}

		if newOwner.IsZero() {
			return reject(KindValidation, ErrInvalidOwner)
		}

		threshold, err := t.threshold()
		if err != nil {
			return err
		}

		if uint64(len(guardians)) < threshold {
			return rejectf(KindValidation, ErrThresholdNotMet, "listed=%d threshold=%d", len(guardians), threshold)
		}

		round, err := t.round()
		if err != nil {
			return err
		}

		for _, g := range guardians {
			if err := consumeVote(t, g, newOwner, round); err != nil {
				return err
			}
		}

		if err := t.requireRecovering(true); err != nil {
			return err
		}

		data := make([]byte, 0, len(guardians)*32)
		for _, g := range guardians {
			data = append(data, g[:]...)
		}

		return finishRecovery(t, Event{
			Kind:    EventRecoveryExecuted,
			Actor:   caller,
			Subject: c,
			Target:  newOwner,
			Round:   round,
			Amount:  uint64(len(guardians)),
			Data:    data,
		})
	})
}

// ExecuteRecovery installs newOwner when its tally in the current round
// reaches the threshold. The tally counts votes as cast; it is not
// reduced when a guardian later votes for someone else.
func (w *Wallet) ExecuteRecovery(ctx context.Context, caller, newOwner Address) error {
	return w.apply(ctx, "execute_recovery", func(t *txn) error {
		c, err := t.requireGuardian(caller)
		if err != nil {
			return err
		}

		if err := t.requireRecovering(true); err != nil {
			return err
		}

		if newOwner.IsZero() {
			return reject(KindValidation, ErrInvalidOwner)
		}

		threshold, err := t.threshold()
		if err != nil {
			return err
		}

		round, err := t.round()
		if err != nil {
			return err
		}

		tally, err := t.tally(round, newOwner)
		if err != nil {
			return err
		}

		if tally < threshold {
			return rejectf(KindValidation, ErrThresholdNotMet, "tally=%d threshold=%d", tally, threshold)
		}

		return finishRecovery(t, Event{
			Kind:    EventRecoveryExecuted,
			Actor:   caller,
			Subject: c,
			Target:  newOwner,
			Round:   round,
			Amount:  tally,
		})
	})
}

// castVote overwrites the guardian's vote and bumps the round-scoped tally.
func castVote(t *txn, c Commitment, candidate Address, round uint64) error {
	if err := t.setVote(c, Vote{Candidate: candidate, Round: round}); err != nil {
		return err
	}

	tally, err := t.tally(round, candidate)
	if err != nil {
		return err
	}

	return t.setTally(round, candidate, tally+1)
}

// consumeVote checks one listed guardian and marks its vote consumed.
func consumeVote(t *txn, g Commitment, newOwner Address, round uint64) error {
	present, err := t.isGuardian(g)
	if err != nil {
		return err
	}

	if !present {
		return rejectf(KindValidation, ErrUnknownGuardian, "%s", g.Short())
	}

	vote, ok, err := t.vote(g)
	if err != nil {
		return err
	}

	if !ok || vote.Round != round || vote.Candidate != newOwner {
		return rejectf(KindValidation, ErrVoteMismatch, "%s", g.Short())
	}

	if vote.Consumed {
		return rejectf(KindValidation, ErrVoteConsumed, "%s", g.Short())
	}

	vote.Consumed = true

	return t.setVote(g, vote)
}

// finishRecovery leaves recovery mode and installs the event's target as owner.
func finishRecovery(t *txn, e Event) error {
	if err := t.setRecovering(false); err != nil {
		return err
	}

	if err := installOwner(t, Address(e.Target)); err != nil {
		return err
	}

	return t.emit(e)
}
