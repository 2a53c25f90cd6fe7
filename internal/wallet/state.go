package wallet

import (
	"context"
	"encoding/binary"
	"fmt"

	"GuardVault/internal/storage"
)

// reader reads vault facts from storage or from a pending batch.
type reader struct {
	r storage.Reader
}

// get reads a raw value; nil means absent.
func (s reader) get(key []byte) ([]byte, error) {
	v, err := s.r.Get(key)
	if err != nil {
		return nil, fmt.Errorf("read %x:\n%w", key, err)
	}

	return v, nil
}

// uint64At reads a big-endian counter; absent reads as zero.
func (s reader) uint64At(key []byte) (uint64, error) {
	v, err := s.get(key)
	if err != nil || len(v) != 8 {
		return 0, err
	}

	return binary.BigEndian.Uint64(v), nil
}

func (s reader) isGuardian(c Commitment) (bool, error) {
	v, err := s.get(guardianKey(c))
	return v != nil, err
}

func (s reader) guardianCount() (uint64, error) {
	return s.uint64At(keyCount)
}

func (s reader) threshold() (uint64, error) {
	return s.uint64At(keyThreshold)
}

func (s reader) round() (uint64, error) {
	return s.uint64At(keyRound)
}

func (s reader) eventSeq() (uint64, error) {
	return s.uint64At(keyEventSeq)
}

// removalDelay returns the timelock stored at creation, if any.
func (s reader) removalDelay() (int64, bool, error) {
	v, err := s.get(keyDelay)
	if err != nil || len(v) != 8 {
		return 0, false, err
	}

	return int64(binary.BigEndian.Uint64(v)), true, nil
}

func (s reader) tally(round uint64, candidate Address) (uint64, error) {
	return s.uint64At(tallyKey(round, candidate))
}

func (s reader) owner() (Address, error) {
	var a Address

	v, err := s.get(keyOwner)
	if err != nil || len(v) != len(a) {
		return a, err
	}

	copy(a[:], v)

	return a, nil
}

func (s reader) recovering() (bool, error) {
	v, err := s.get(keyRecovering)
	return len(v) == 1 && v[0] == 1, err
}

// vote returns the latest vote of a guardian, if one was ever cast.
func (s reader) vote(c Commitment) (Vote, bool, error) {
	v, err := s.get(voteKey(c))
	if err != nil || v == nil {
		return Vote{}, false, err
	}

	vote, ok := decodeVote(v)
	if !ok {
		return Vote{}, false, fmt.Errorf("corrupt vote record for %s", c.Short())
	}

	return vote, true, nil
}

// deadline returns the removal eligibility time, 0 if not queued.
func (s reader) deadline(c Commitment) (int64, error) {
	v, err := s.uint64At(removalKey(c))
	return int64(v), err
}

func (s reader) hasReceipt(id Hash) (bool, error) {
	v, err := s.get(receiptKey(id))
	return v != nil, err
}

// txn is one vault operation in flight. Reads observe the operation's own
// writes; nothing is visible to others until the batch commits.
type txn struct {
	reader
	b      *storage.Batch
	ctx    context.Context
	now    int64
	events []Event
}

func newTxn(ctx context.Context, b *storage.Batch, now int64) *txn {
	return &txn{reader: reader{r: b}, b: b, ctx: ctx, now: now}
}

func (t *txn) set(key, value []byte) error {
	if err := t.b.Set(key, value); err != nil {
		return fmt.Errorf("write %x:\n%w", key, err)
	}

	return nil
}

func (t *txn) del(key []byte) error {
	if err := t.b.Delete(key); err != nil {
		return fmt.Errorf("delete %x:\n%w", key, err)
	}

	return nil
}

func (t *txn) putUint64(key []byte, v uint64) error {
	return t.set(key, binary.BigEndian.AppendUint64(nil, v))
}

func (t *txn) setGuardian(c Commitment) error {
	return t.set(guardianKey(c), []byte{1})
}

func (t *txn) clearGuardian(c Commitment) error {
	return t.del(guardianKey(c))
}

func (t *txn) setCount(n uint64) error {
	return t.putUint64(keyCount, n)
}

func (t *txn) setThreshold(n uint64) error {
	return t.putUint64(keyThreshold, n)
}

func (t *txn) setRound(n uint64) error {
	return t.putUint64(keyRound, n)
}

func (t *txn) setRemovalDelay(seconds int64) error {
	return t.putUint64(keyDelay, uint64(seconds))
}

func (t *txn) setTally(round uint64, candidate Address, n uint64) error {
	return t.putUint64(tallyKey(round, candidate), n)
}

func (t *txn) setOwner(a Address) error {
	return t.set(keyOwner, a[:])
}

func (t *txn) setRecovering(on bool) error {
	v := []byte{0}
	if on {
		v[0] = 1
	}

	return t.set(keyRecovering, v)
}

func (t *txn) setVote(c Commitment, v Vote) error {
	return t.set(voteKey(c), encodeVote(v))
}

func (t *txn) setDeadline(c Commitment, at int64) error {
	return t.putUint64(removalKey(c), uint64(at))
}

func (t *txn) clearDeadline(c Commitment) error {
	return t.del(removalKey(c))
}

func (t *txn) putReceipt(id Hash) error {
	return t.set(receiptKey(id), binary.BigEndian.AppendUint64(nil, uint64(t.now)))
}

// emit appends an audit event to the log within the same batch.
func (t *txn) emit(e Event) error {
	seq, err := t.eventSeq()
	if err != nil {
		return err
	}

	seq++
	e.Seq = seq
	e.Time = t.now

	if err := t.set(eventKey(seq), e.Marshal()); err != nil {
		return err
	}

	if err := t.putUint64(keyEventSeq, seq); err != nil {
		return err
	}

	t.events = append(t.events, e)

	return nil
}

// requireGuardian rejects callers whose commitment is not registered.
// Returns the caller's commitment.
func (t *txn) requireGuardian(caller Address) (Commitment, error) {
	c := Commit(caller)

	ok, err := t.isGuardian(c)
	if err != nil {
		return Commitment{}, err
	}

	if !ok {
		return Commitment{}, reject(KindAuthorization, ErrNotGuardian)
	}

	return c, nil
}

// requireRecovering rejects the operation unless the recovery flag equals want.
func (t *txn) requireRecovering(want bool) error {
	on, err := t.recovering()
	if err != nil {
		return err
	}

	switch {
	case on && !want:
		return reject(KindState, ErrRecovering)
	case !on && want:
		return reject(KindState, ErrNotRecovering)
	}

	return nil
}
