package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"

	"GuardVault/internal/ledger"
)

// AssetReceivedSelector acknowledges an inbound asset transfer. Senders
// treat any other answer as a refusal.
var AssetReceivedSelector = assetSelector()

func assetSelector() [4]byte {
	sum := blake3.Sum256([]byte("guardvault.onAssetReceived"))

	var sel [4]byte
	copy(sel[:], sum[:4])

	return sel
}

// Deposit credits amount of native value from any sender.
func (w *Wallet) Deposit(ctx context.Context, from Address, amount uint64) error {
	return w.apply(ctx, "deposit", func(t *txn) error {
		if err := ledger.Credit(t.b, ledger.Native, amount); err != nil {
			return ledgerError(err)
		}

		return t.emit(Event{Kind: EventDeposited, Actor: from, Amount: amount})
	})
}

// Withdraw sends amount of native value to recipient. Owner only.
func (w *Wallet) Withdraw(ctx context.Context, caller, recipient Address, amount uint64) error {
	return w.apply(ctx, "withdraw", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		if err := ledger.Debit(t.b, ledger.Native, amount); err != nil {
			return ledgerError(err)
		}

		return t.emit(Event{Kind: EventWithdrawn, Actor: caller, Target: recipient, Amount: amount})
	})
}

// ExecuteCall forwards value and input to target through the configured
// executor and returns its output. Owner only. The guard stays held for the
// whole call, so the callee cannot re-enter any vault operation.
func (w *Wallet) ExecuteCall(ctx context.Context, caller Address, target Hash, input []byte, value uint64) ([]byte, error) {
	var output []byte

	err := w.apply(ctx, "execute_call", func(t *txn) error {
		if err := t.requireOwner(caller); err != nil {
			return err
		}

		if w.executor == nil {
			return reject(KindState, ErrNoExecutor)
		}

		if err := ledger.Debit(t.b, ledger.Native, value); err != nil {
			return ledgerError(err)
		}

		// The refund runs under the call's guarded context whatever the
		// callee hands back, so it is refused rather than left waiting on
		// the guard.
		refund := func(_ context.Context, amount uint64) error {
			return w.Deposit(t.ctx, Address(target), amount)
		}

		out, err := w.executor.Call(t.ctx, target, input, value, refund)
		if err != nil {
			return fmt.Errorf("call %x:\n%w", target[:8], err)
		}

		output = out

		return t.emit(Event{Kind: EventCallExecuted, Actor: caller, Subject: target, Amount: value, Data: out})
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// ReceiveAsset accepts a non-native token sent to the vault and returns the
// acknowledgement selector.
func (w *Wallet) ReceiveAsset(ctx context.Context, from Address, asset, token Hash, data []byte) ([4]byte, error) {
	err := w.apply(ctx, "receive_asset", func(t *txn) error {
		if err := ledger.AddHolding(t.b, asset, token); err != nil {
			return err
		}

		return t.emit(Event{Kind: EventAssetReceived, Actor: from, Subject: asset, Target: token, Data: data})
	})
	if err != nil {
		return [4]byte{}, err
	}

	return AssetReceivedSelector, nil
}

// ledgerError classifies ledger failures.
func ledgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return &Error{Kind: KindValidation, Err: fmt.Errorf("%w: %v", ErrInsufficientFunds, err)}
	case errors.Is(err, ledger.ErrOverflow):
		return &Error{Kind: KindValidation, Err: fmt.Errorf("%w: %v", ErrBalanceOverflow, err)}
	}

	return err
}
