package dispatch

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"path/filepath"
	"testing"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"GuardVault/internal/storage"
	"GuardVault/internal/wallet"
)

// testKey derives a deterministic Ed25519 key from b.
func testKey(b byte) ed25519.PrivateKey {
	seed := bytes.Repeat([]byte{b}, ed25519.SeedSize)
	return ed25519.NewKeyFromSeed(seed)
}

// addrOf returns the vault address of key.
func addrOf(key ed25519.PrivateKey) wallet.Address {
	var a wallet.Address
	copy(a[:], key.Public().(ed25519.PublicKey))

	return a
}

type testEnv struct {
	d         *Dispatcher
	w         *wallet.Wallet
	owner     ed25519.PrivateKey
	guardians []ed25519.PrivateKey
	nonce     uint64
}

// newTestEnv creates a vault with three guardians and threshold 2.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := storage.New(filepath.Join(t.TempDir(), "db"))
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env := &testEnv{owner: testKey(1)}

	g := wallet.Genesis{Owner: addrOf(env.owner), Threshold: 2}
	for i := 0; i < 3; i++ {
		key := testKey(byte(0x10 + i))
		env.guardians = append(env.guardians, key)
		g.Guardians = append(g.Guardians, wallet.Commit(addrOf(key)))
	}

	w, err := wallet.Create(db, g)
	if err != nil {
		t.Fatalf("create vault: %v", err)
	}

	env.w = w
	env.d = New(w)

	return env
}

// submit signs and submits a transaction with a fresh nonce.
func (e *testEnv) submit(key ed25519.PrivateKey, fn string, args []byte, value uint64) (*Result, error) {
	e.nonce++
	data, _ := BuildSignedTx(key, e.nonce, fn, args, value)

	return e.d.Submit(context.Background(), data)
}

func TestParseTx(t *testing.T) {
	key := testKey(7)
	args := EncodeID(wallet.Address{0xAA})

	data, hash := BuildSignedTx(key, 42, FnInitiateRecovery, args, 0)

	tx, err := ParseTx(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if tx.Hash != hash || tx.Sender != addrOf(key) || tx.Nonce != 42 {
		t.Errorf("unexpected header: %+v", tx)
	}

	if tx.Function != FnInitiateRecovery || !bytes.Equal(tx.Args, args) {
		t.Errorf("unexpected body: %s %x", tx.Function, tx.Args)
	}
}

func TestParseTxRejects(t *testing.T) {
	key := testKey(7)
	data, _ := BuildSignedTx(key, 1, FnDeposit, nil, 5)

	tests := []struct {
		name string
		data []byte
	}{
		{"short", []byte{1, 2, 3}},
		{"garbage", bytes.Repeat([]byte{0xff}, 64)},
		{"flipped byte", flipLast(data)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseTx(tt.data); !errors.Is(err, ErrInvalidTx) {
				t.Errorf("expected ErrInvalidTx, got %v", err)
			}
		})
	}
}

// flipLast returns a copy of data with a bit flipped inside the payload.
func flipLast(data []byte) []byte {
	out := append([]byte(nil), data...)
	out[len(out)-5] ^= 0x01

	return out
}

func TestWrongSignerRejected(t *testing.T) {
	key, other := testKey(7), testKey(8)
	sender := key.Public().(ed25519.PublicKey)

	// Claims key as sender but carries a signature by other
	hash := blake3.Sum256(BuildUnsignedTxBytes(sender, 1, FnDeposit, nil, 5))
	sig := ed25519.Sign(other, hash[:])

	builder := flatbuffers.NewBuilder(256)
	builder.Finish(buildTxTable(builder, sender, 1, FnDeposit, nil, 5, hash, sig))

	if _, err := ParseTx(builder.FinishedBytes()); !errors.Is(err, ErrInvalidTx) {
		t.Errorf("expected ErrInvalidTx, got %v", err)
	}
}

func TestRecoveryThroughTransactions(t *testing.T) {
	env := newTestEnv(t)
	x := addrOf(testKey(0xAA))

	if _, err := env.submit(env.guardians[0], FnInitiateRecovery, EncodeID(x), 0); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if _, err := env.submit(env.guardians[1], FnSupportRecovery, EncodeID(x), 0); err != nil {
		t.Fatalf("support: %v", err)
	}

	list := []wallet.Commitment{
		wallet.Commit(addrOf(env.guardians[0])),
		wallet.Commit(addrOf(env.guardians[1])),
	}

	if _, err := env.submit(env.guardians[2], FnExecuteRecoveryList, EncodeRecoveryListArgs(x, list), 0); err != nil {
		t.Fatalf("execute: %v", err)
	}

	owner, err := env.w.Owner()
	if err != nil || owner != x {
		t.Errorf("owner = %s (err=%v), want %s", owner, err, x)
	}
}

func TestRemovalThroughTransactions(t *testing.T) {
	env := newTestEnv(t)
	c := wallet.Commit(addrOf(env.guardians[2]))

	if _, err := env.submit(env.owner, FnQueueRemoval, EncodeID(c), 0); err != nil {
		t.Fatalf("queue: %v", err)
	}

	_, err := env.submit(env.owner, FnExecuteRemoval, EncodePair(c, wallet.Commitment{0x77}), 0)
	if !errors.Is(err, wallet.KindTimelock) {
		t.Errorf("expected timelock rejection, got %v", err)
	}

	if _, err := env.submit(env.owner, FnCancelRemoval, EncodeID(c), 0); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if d, _ := env.w.RemovalDeadline(c); d != 0 {
		t.Errorf("deadline = %d after cancel", d)
	}
}

func TestValueRouting(t *testing.T) {
	env := newTestEnv(t)
	stranger := testKey(0x33)

	if _, err := env.submit(stranger, FnDeposit, nil, 30); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	// Unknown function with value falls back to a deposit
	res, err := env.submit(stranger, "tip", []byte("thanks"), 12)
	if err != nil {
		t.Fatalf("fallback deposit: %v", err)
	}

	if res.Function != FnDeposit {
		t.Errorf("routed to %s, want deposit", res.Function)
	}

	if bal, _ := env.w.Balance(); bal != 42 {
		t.Errorf("balance = %d, want 42", bal)
	}

	if _, err := env.submit(stranger, "tip", nil, 0); !errors.Is(err, ErrUnknownFunction) {
		t.Errorf("expected ErrUnknownFunction, got %v", err)
	}

	_, err = env.submit(env.owner, FnCancelRemoval, EncodeID(wallet.Commitment{1}), 5)
	if !errors.Is(err, ErrUnexpectedValue) {
		t.Errorf("expected ErrUnexpectedValue, got %v", err)
	}

	if _, err := env.submit(env.owner, FnWithdraw, EncodeWithdrawArgs(addrOf(stranger), 40), 0); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if bal, _ := env.w.Balance(); bal != 2 {
		t.Errorf("balance = %d, want 2", bal)
	}
}

func TestReceiveAssetThroughTransaction(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.submit(testKey(0x33), FnReceiveAsset, EncodeAssetArgs(wallet.Hash{1}, wallet.Hash{2}, []byte("memo")), 0)
	if err != nil {
		t.Fatalf("receive asset: %v", err)
	}

	if !bytes.Equal(res.Output, wallet.AssetReceivedSelector[:]) {
		t.Errorf("output = %x, want selector", res.Output)
	}
}

func TestExecuteCallWithoutExecutor(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.submit(env.owner, FnExecuteCall, EncodeCallArgs(wallet.Hash{1}, []byte("in")), 0)
	if !errors.Is(err, wallet.ErrNoExecutor) {
		t.Errorf("expected ErrNoExecutor, got %v", err)
	}
}

func TestBadArgs(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		fn   string
		args []byte
	}{
		{"short id", FnAddGuardian, []byte{1, 2, 3}},
		{"trailing bytes", FnCancelRecovery, []byte{1}},
		{"truncated list", FnExecuteRecoveryList, EncodeRecoveryListArgs(wallet.Address{1}, make([]wallet.Commitment, 2))[:60]},
		{"truncated input", FnExecuteCall, EncodeCallArgs(wallet.Hash{1}, []byte("input"))[:38]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := env.submit(env.owner, tt.fn, tt.args, 0); !errors.Is(err, ErrInvalidTx) {
				t.Errorf("expected ErrInvalidTx, got %v", err)
			}
		})
	}
}

func TestReplayedTransactionRejected(t *testing.T) {
	env := newTestEnv(t)

	data, _ := BuildSignedTx(testKey(0x33), 1, FnDeposit, nil, 10)

	if _, err := env.d.Submit(context.Background(), data); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	_, err := env.d.Submit(context.Background(), data)
	if !errors.Is(err, wallet.ErrDuplicateTx) {
		t.Errorf("expected ErrDuplicateTx, got %v", err)
	}

	if bal, _ := env.w.Balance(); bal != 10 {
		t.Errorf("balance = %d, want 10", bal)
	}
}

func TestRecoveryListArgsRoundTrip(t *testing.T) {
	list := []wallet.Commitment{{1}, {2}, {3}}

	owner, got, err := decodeRecoveryList(EncodeRecoveryListArgs(wallet.Address{9}, list))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if owner != (wallet.Address{9}) || len(got) != 3 || got[2] != list[2] {
		t.Errorf("decoded %x %v", owner[:1], got)
	}
}
