package wallet

import (
	"errors"
	"fmt"

	"GuardVault/internal/ledger"
	"GuardVault/internal/storage"
)

// Queries read committed state and never take the operation guard.

// errStop ends an iteration early.
var errStop = errors.New("stop")

// RecoveryRound returns the current round number; 0 means no round yet.
func (w *Wallet) RecoveryRound() (uint64, error) {
	return w.read().round()
}

// InRecovery reports whether a round is open.
func (w *Wallet) InRecovery() (bool, error) {
	return w.read().recovering()
}

// GuardianRecovery returns the latest vote of guardian c.
func (w *Wallet) GuardianRecovery(c Commitment) (Vote, bool, error) {
	return w.read().vote(c)
}

// NewOwnerVoteCount returns the tally for candidate in round.
func (w *Wallet) NewOwnerVoteCount(round uint64, candidate Address) (uint64, error) {
	return w.read().tally(round, candidate)
}

// IsGuardian reports whether c is a registered commitment.
func (w *Wallet) IsGuardian(c Commitment) (bool, error) {
	return w.read().isGuardian(c)
}

// GuardianCount returns the registered guardian count.
func (w *Wallet) GuardianCount() (uint64, error) {
	return w.read().guardianCount()
}

// Threshold returns the number of votes a recovery needs.
func (w *Wallet) Threshold() (uint64, error) {
	return w.read().threshold()
}

// RemovalDeadline returns when c becomes removable; 0 if not queued.
func (w *Wallet) RemovalDeadline(c Commitment) (int64, error) {
	return w.read().deadline(c)
}

// Balance returns the native balance.
func (w *Wallet) Balance() (uint64, error) {
	return ledger.Balance(w.db, ledger.Native)
}

// Status summarizes the vault.
func (w *Wallet) Status() (Status, error) {
	r := w.read()

	var (
		s   Status
		err error
	)

	if s.Owner, err = r.owner(); err != nil {
		return s, err
	}
	if s.GuardianCount, err = r.guardianCount(); err != nil {
		return s, err
	}
	if s.Threshold, err = r.threshold(); err != nil {
		return s, err
	}
	if s.InRecovery, err = r.recovering(); err != nil {
		return s, err
	}
	if s.Round, err = r.round(); err != nil {
		return s, err
	}
	if s.LastEvent, err = r.eventSeq(); err != nil {
		return s, err
	}
	if s.Balance, err = ledger.Balance(w.db, ledger.Native); err != nil {
		return s, err
	}

	return s, nil
}

// Events returns up to limit events with sequence number >= from.
func (w *Wallet) Events(from uint64, limit int) ([]Event, error) {
	var events []Event

	err := w.db.IterateFrom(prefixEvent, eventKey(from), func(key, value []byte) error {
		if len(events) >= limit {
			return errStop
		}

		e, err := UnmarshalEvent(value)
		if err != nil {
			return fmt.Errorf("decode event %x:\n%w", key, err)
		}

		events = append(events, e)

		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return nil, err
	}

	return events, nil
}

// LastEventSeq reads the sequence number of the latest event from r,
// which may be a storage view taken independently of any Wallet.
func LastEventSeq(r storage.Reader) (uint64, error) {
	return reader{r: r}.eventSeq()
}

func (w *Wallet) read() reader {
	return reader{r: w.db}
}
