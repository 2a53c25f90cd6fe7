package wallet

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"GuardVault/internal/ledger"
)

// fakeExecutor runs fn as the callee.
type fakeExecutor struct {
	fn    func(ctx context.Context, refund func(context.Context, uint64) error) ([]byte, error)
	calls int
	last  struct {
		target [32]byte
		input  []byte
		value  uint64
	}
}

func (f *fakeExecutor) Call(ctx context.Context, target [32]byte, input []byte, value uint64, refund func(context.Context, uint64) error) ([]byte, error) {
	f.calls++
	f.last.target = target
	f.last.input = input
	f.last.value = value

	if f.fn == nil {
		return []byte("ok"), nil
	}

	return f.fn(ctx, refund)
}

func mustBalance(t *testing.T, v *testVault) uint64 {
	t.Helper()

	bal, err := v.Balance()
	if err != nil {
		t.Fatalf("balance: %v", err)
	}

	return bal
}

func TestDepositWithdraw(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 1, 1)

	// Anyone can deposit
	if err := v.Deposit(ctx, testAddr(0x05), 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if err := v.Withdraw(ctx, v.owner, testAddr(0x06), 40); err != nil {
		t.Fatalf("withdraw: %v", err)
	}

	if bal := mustBalance(t, v); bal != 60 {
		t.Errorf("balance = %d, want 60", bal)
	}

	err := v.Withdraw(ctx, v.owner, testAddr(0x06), 61)
	expectRejected(t, err, KindValidation, ErrInsufficientFunds)

	err = v.Withdraw(ctx, v.guardians[0], v.guardians[0], 1)
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	if bal := mustBalance(t, v); bal != 60 {
		t.Errorf("balance after rejections = %d, want 60", bal)
	}
}

func TestDepositOverflow(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 1, 1)

	if err := v.Deposit(ctx, testAddr(0x05), math.MaxUint64); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	err := v.Deposit(ctx, testAddr(0x05), 1)
	expectRejected(t, err, KindValidation, ErrBalanceOverflow)

	if errors.Is(err, ErrInsufficientFunds) {
		t.Errorf("overflow reported as insufficient funds: %v", err)
	}

	if bal := mustBalance(t, v); bal != math.MaxUint64 {
		t.Errorf("balance = %d, want %d", bal, uint64(math.MaxUint64))
	}
}

// The vault keeps working for value while recovery is open.
func TestDepositDuringRecovery(t *testing.T) {
	ctx := context.Background()
	v := newTestVault(t, 1, 1)

	if err := v.InitiateRecovery(ctx, v.guardians[0], testAddr(0xAA)); err != nil {
		t.Fatalf("initiate: %v", err)
	}

	if err := v.Deposit(ctx, testAddr(0x05), 7); err != nil {
		t.Errorf("deposit during recovery: %v", err)
	}
}

func TestExecuteCall(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{}
	v := newTestVault(t, 1, 1, WithExecutor(exec))
	target := Hash{0xCA}

	if err := v.Deposit(ctx, testAddr(0x05), 50); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	out, err := v.ExecuteCall(ctx, v.owner, target, []byte("input"), 20)
	if err != nil {
		t.Fatalf("execute call: %v", err)
	}

	if string(out) != "ok" {
		t.Errorf("output = %q, want ok", out)
	}

	if exec.last.target != target || string(exec.last.input) != "input" || exec.last.value != 20 {
		t.Errorf("executor saw %+v", exec.last)
	}

	if bal := mustBalance(t, v); bal != 30 {
		t.Errorf("balance = %d, want 30", bal)
	}

	_, err = v.ExecuteCall(ctx, v.guardians[0], target, nil, 0)
	expectRejected(t, err, KindAuthorization, ErrNotOwner)

	_, err = v.ExecuteCall(ctx, v.owner, target, nil, 31)
	expectRejected(t, err, KindValidation, ErrInsufficientFunds)

	if exec.calls != 1 {
		t.Errorf("executor called %d times, want 1", exec.calls)
	}
}

func TestExecuteCallWithoutExecutor(t *testing.T) {
	v := newTestVault(t, 1, 1)

	_, err := v.ExecuteCall(context.Background(), v.owner, Hash{1}, nil, 0)
	expectRejected(t, err, KindState, ErrNoExecutor)
}

func TestExecuteCallFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	exec := &fakeExecutor{fn: func(context.Context, func(context.Context, uint64) error) ([]byte, error) {
		return nil, errors.New("trap")
	}}
	v := newTestVault(t, 1, 1, WithExecutor(exec))

	if err := v.Deposit(ctx, testAddr(0x05), 50); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := v.ExecuteCall(ctx, v.owner, Hash{1}, nil, 20); err == nil {
		t.Fatal("expected call failure")
	}

	if bal := mustBalance(t, v); bal != 50 {
		t.Errorf("balance = %d, want 50", bal)
	}
}

// TestReentrantCallRejected has the callee try to re-enter the vault
// through both the refund hook and a direct operation.
func TestReentrantCallRejected(t *testing.T) {
	ctx := context.Background()

	var (
		v          *testVault
		refundErr  error
		reenterErr error
	)

	exec := &fakeExecutor{fn: func(ctx context.Context, refund func(context.Context, uint64) error) ([]byte, error) {
		refundErr = refund(ctx, 5)
		reenterErr = v.AddGuardian(ctx, v.owner, testAddr(0x30))
		return nil, nil
	}}

	v = newTestVault(t, 1, 1, WithExecutor(exec))

	if err := v.Deposit(ctx, testAddr(0x05), 50); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	if _, err := v.ExecuteCall(ctx, v.owner, Hash{1}, nil, 10); err != nil {
		t.Fatalf("execute call: %v", err)
	}

	expectRejected(t, refundErr, KindState, ErrReentrant)
	expectRejected(t, reenterErr, KindState, ErrReentrant)

	if bal := mustBalance(t, v); bal != 40 {
		t.Errorf("balance = %d, want 40", bal)
	}

	if n := mustCount(t, v); n != 1 {
		t.Errorf("reentrant add went through: count = %d", n)
	}

	// The guard is released afterwards
	if err := v.Deposit(ctx, testAddr(0x05), 1); err != nil {
		t.Errorf("deposit after call: %v", err)
	}
}

// A callee that drops the context it was given still gets its refund
// refused instead of waiting on the held guard.
func TestRefundWithFreshContext(t *testing.T) {
	ctx := context.Background()

	done := make(chan error, 1)
	exec := &fakeExecutor{fn: func(_ context.Context, refund func(context.Context, uint64) error) ([]byte, error) {
		done <- refund(context.Background(), 5)
		return nil, nil
	}}

	v := newTestVault(t, 1, 1, WithExecutor(exec))

	if err := v.Deposit(ctx, testAddr(0x05), 50); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	result := make(chan error, 1)
	go func() {
		_, err := v.ExecuteCall(ctx, v.owner, Hash{1}, nil, 10)
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("execute call: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("execute call blocked on the refund")
	}

	expectRejected(t, <-done, KindState, ErrReentrant)

	if bal := mustBalance(t, v); bal != 40 {
		t.Errorf("balance = %d, want 40", bal)
	}
}

func TestReceiveAsset(t *testing.T) {
	v := newTestVault(t, 1, 1)
	asset, token := Hash{0xA5}, Hash{0x70}

	sel, err := v.ReceiveAsset(context.Background(), testAddr(0x05), asset, token, []byte("memo"))
	if err != nil {
		t.Fatalf("receive asset: %v", err)
	}

	if sel != AssetReceivedSelector {
		t.Errorf("selector = %x, want %x", sel, AssetReceivedSelector)
	}

	held, err := ledger.HasHolding(v.db, asset, token)
	if err != nil || !held {
		t.Errorf("holding not recorded (err=%v)", err)
	}
}
