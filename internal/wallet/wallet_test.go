package wallet

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"GuardVault/internal/storage"
)

// testVault bundles a wallet with the handles tests need.
type testVault struct {
	*Wallet
	db        *storage.Storage
	clock     *ManualClock
	owner     Address
	guardians []Address
}

// testAddr returns an address filled with b.
func testAddr(b byte) Address {
	var a Address
	for i := range a {
		a[i] = b
	}

	return a
}

// newTestStorage creates a temporary storage for testing.
func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// newTestVault creates a vault owned by testAddr(0x01) with n guardians
// testAddr(0x10), testAddr(0x11), ... The clock starts at 1000.
func newTestVault(t *testing.T, n int, threshold uint64, opts ...Option) *testVault {
	t.Helper()

	v := &testVault{
		db:    newTestStorage(t),
		clock: NewManualClock(1000),
		owner: testAddr(0x01),
	}

	g := Genesis{Owner: v.owner, Threshold: threshold}
	for i := 0; i < n; i++ {
		addr := testAddr(byte(0x10 + i))
		v.guardians = append(v.guardians, addr)
		g.Guardians = append(g.Guardians, Commit(addr))
	}

	w, err := Create(v.db, g, append([]Option{WithClock(v.clock)}, opts...)...)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}

	v.Wallet = w

	return v
}

// commitment returns the commitment of guardian i.
func (v *testVault) commitment(i int) Commitment {
	return Commit(v.guardians[i])
}

// expectRejected fails unless err is a rejection of the given kind wrapping sentinel.
func expectRejected(t *testing.T, err error, kind Kind, sentinel error) {
	t.Helper()

	if err == nil {
		t.Fatalf("expected %s rejection, got nil", kind)
	}

	if !errors.Is(err, kind) {
		t.Errorf("expected %s rejection, got %v", kind, err)
	}

	if sentinel != nil && !errors.Is(err, sentinel) {
		t.Errorf("expected %v, got %v", sentinel, err)
	}
}

func mustCount(t *testing.T, v *testVault) uint64 {
	t.Helper()

	n, err := v.GuardianCount()
	if err != nil {
		t.Fatalf("guardian count: %v", err)
	}

	return n
}

func mustOwner(t *testing.T, v *testVault) Address {
	t.Helper()

	o, err := v.Owner()
	if err != nil {
		t.Fatalf("owner: %v", err)
	}

	return o
}

func TestCreate(t *testing.T) {
	v := newTestVault(t, 3, 2)

	status, err := v.Status()
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	if status.Owner != v.owner {
		t.Errorf("owner = %s, want %s", status.Owner, v.owner)
	}

	if status.GuardianCount != 3 || status.Threshold != 2 {
		t.Errorf("count=%d threshold=%d, want 3 and 2", status.GuardianCount, status.Threshold)
	}

	if status.InRecovery || status.Round != 0 {
		t.Errorf("fresh vault: inRecovery=%v round=%d", status.InRecovery, status.Round)
	}

	for i := range v.guardians {
		ok, err := v.IsGuardian(v.commitment(i))
		if err != nil || !ok {
			t.Errorf("guardian %d not registered (err=%v)", i, err)
		}
	}

	// The registry never stores plain addresses
	if ok, _ := v.IsGuardian(Commitment(v.guardians[0])); ok {
		t.Error("raw address must not be a member")
	}
}

func TestCreateValidation(t *testing.T) {
	c1, c2 := Commit(testAddr(0x10)), Commit(testAddr(0x11))

	tests := []struct {
		name     string
		genesis  Genesis
		sentinel error
	}{
		{"duplicate guardian", Genesis{Owner: testAddr(1), Guardians: []Commitment{c1, c2, c1}, Threshold: 1}, ErrDuplicateGuardian},
		{"threshold above count", Genesis{Owner: testAddr(1), Guardians: []Commitment{c1, c2}, Threshold: 3}, ErrInvalidThreshold},
		{"zero owner", Genesis{Guardians: []Commitment{c1}, Threshold: 1}, ErrInvalidOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestStorage(t)

			_, err := Create(db, tt.genesis)
			expectRejected(t, err, KindValidation, tt.sentinel)

			// Nothing written
			if _, err := Open(db); !errors.Is(err, ErrNotInitialized) {
				t.Errorf("failed create left state behind: %v", err)
			}
		})
	}
}

func TestCreateZeroThreshold(t *testing.T) {
	v := newTestVault(t, 0, 0)

	if n := mustCount(t, v); n != 0 {
		t.Errorf("count = %d, want 0", n)
	}
}

func TestCreateTwice(t *testing.T) {
	v := newTestVault(t, 2, 1)

	_, err := Create(v.db, Genesis{Owner: testAddr(0x02)})
	expectRejected(t, err, KindState, ErrAlreadyInitialized)

	if o := mustOwner(t, v); o != v.owner {
		t.Error("second create must not change owner")
	}
}

func TestOpen(t *testing.T) {
	db := newTestStorage(t)

	if _, err := Open(db); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("open empty db: expected ErrNotInitialized, got %v", err)
	}

	g := Genesis{Owner: testAddr(0x01), Guardians: []Commitment{Commit(testAddr(0x10))}, Threshold: 1}
	if _, err := Create(db, g); err != nil {
		t.Fatalf("create: %v", err)
	}

	w, err := Open(db)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	owner, err := w.Owner()
	if err != nil || owner != g.Owner {
		t.Errorf("reopened owner = %s (err=%v), want %s", owner, err, g.Owner)
	}
}

// TestFailedOperationLeavesNoWrites checks that a rejection part-way through
// an operation discards the writes made before it.
func TestFailedOperationLeavesNoWrites(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 3, 2)
	x := testAddr(0xAA)

	if err := v.InitiateRecovery(ctx, v.guardians[0], x); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// guardian 1 votes for someone else: the list check consumes c0, then fails on c1
	if err := v.SupportRecovery(ctx, v.guardians[1], testAddr(0xBB)); err != nil {
		t.Fatalf("support: %v", err)
	}

	before, _ := v.Status()

	err := v.ExecuteRecoveryWithList(ctx, v.guardians[0], x, []Commitment{v.commitment(0), v.commitment(1)})
	expectRejected(t, err, KindValidation, ErrVoteMismatch)

	vote, ok, err := v.GuardianRecovery(v.commitment(0))
	if err != nil || !ok {
		t.Fatalf("vote lookup: ok=%v err=%v", ok, err)
	}

	if vote.Consumed {
		t.Error("vote consumed by a rejected execution")
	}

	after, _ := v.Status()
	if after != before {
		t.Errorf("status changed by rejected operation: %+v -> %+v", before, after)
	}
}

func TestReplayRejected(t *testing.T) {
	v := newTestVault(t, 1, 1)
	ctx := WithTxID(context.Background(), Hash{0x42})

	if err := v.Deposit(ctx, testAddr(0x05), 10); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := v.Deposit(ctx, testAddr(0x05), 10)
	expectRejected(t, err, KindValidation, ErrDuplicateTx)

	if bal, _ := v.Balance(); bal != 10 {
		t.Errorf("balance = %d, want 10", bal)
	}
}

func TestRejectedTxCanBeResubmitted(t *testing.T) {
	v := newTestVault(t, 1, 1)
	ctx := WithTxID(context.Background(), Hash{0x43})

	// Rejected: the receipt is discarded with the rest of the batch
	err := v.Withdraw(ctx, testAddr(0x05), testAddr(0x05), 1)
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	if err := v.Deposit(ctx, testAddr(0x05), 3); err != nil {
		t.Fatalf("deposit with reused tx id: %v", err)
	}
}

func TestEventsLog(t *testing.T) {
	ctx := context.Background()

	var (
		mu        sync.Mutex
		published []Event
	)

	sink := SinkFunc(func(e Event) {
		mu.Lock()
		published = append(published, e)
		mu.Unlock()
	})

	v := newTestVault(t, 2, 1, WithSink(sink))

	if err := v.InitiateRecovery(ctx, v.guardians[0], testAddr(0xAA)); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	// Rejected operations publish nothing
	_ = v.InitiateRecovery(ctx, v.guardians[1], testAddr(0xAA))

	events, err := v.Events(1, 100)
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}

	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("event %d: seq = %d", i, e.Seq)
		}
	}

	if events[0].Kind != EventGuardianAdded || events[0].Subject != v.commitment(0) {
		t.Errorf("first event = %s %x", events[0].Kind, events[0].Subject[:4])
	}

	last := events[2]
	if last.Kind != EventRecoveryInitiated || last.Round != 1 || Address(last.Target) != testAddr(0xAA) {
		t.Errorf("unexpected last event: %+v", last)
	}

	if last.Time != 1000 {
		t.Errorf("event time = %d, want 1000", last.Time)
	}

	mu.Lock()
	defer mu.Unlock()

	if len(published) != 3 {
		t.Errorf("sink got %d events, want 3", len(published))
	}
}

func TestEventsFromAndLimit(t *testing.T) {
	v := newTestVault(t, 4, 1)

	events, err := v.Events(2, 2)
	if err != nil {
		t.Fatalf("events: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("Events(2, 2) returned %d events", len(events))
	}

	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Errorf("Events(2, 2) seqs = %d, %d", events[0].Seq, events[1].Seq)
	}

	events, err = v.Events(10, 5)
	if err != nil || len(events) != 0 {
		t.Errorf("Events past the end = %d (err=%v)", len(events), err)
	}
}

func TestEventMarshalRoundTrip(t *testing.T) {
	e := Event{
		Seq:      7,
		Kind:     EventGuardianQueued,
		Time:     1234,
		Actor:    testAddr(1),
		Subject:  testAddr(2),
		Target:   testAddr(3),
		Round:    4,
		Amount:   5,
		Deadline: 99,
		Data:     []byte("payload"),
	}

	got, err := UnmarshalEvent(e.Marshal())
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.Seq != e.Seq || got.Kind != e.Kind || got.Deadline != e.Deadline || string(got.Data) != "payload" {
		t.Errorf("round trip mismatch: %+v", got)
	}

	if _, err := UnmarshalEvent([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short data")
	}
}

func TestConcurrentDeposits(t *testing.T) {
	v := newTestVault(t, 1, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := v.Deposit(context.Background(), testAddr(0x05), 5); err != nil {
				t.Errorf("deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	if bal, _ := v.Balance(); bal != 100 {
		t.Errorf("balance = %d, want 100", bal)
	}
}

func TestKindOf(t *testing.T) {
	v := newTestVault(t, 1, 1)

	err := v.AddGuardian(context.Background(), testAddr(0x09), testAddr(0x20))
	if KindOf(err) != KindAuthorization {
		t.Errorf("KindOf = %s, want authorization", KindOf(err))
	}

	var rej *Error
	if !errors.As(err, &rej) || rej.Op != "add_guardian" {
		t.Errorf("expected op name add_guardian, got %v", err)
	}

	if KindOf(errors.New("plain")) != 0 {
		t.Error("KindOf plain error should be 0")
	}
}
