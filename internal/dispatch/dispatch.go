package dispatch

import (
	"context"
	"errors"
	"fmt"

	"GuardVault/internal/logger"
	"GuardVault/internal/wallet"
)

// Function names carried by transactions.
const (
	FnAddGuardian          = "add_guardian"
	FnRemoveGuardian       = "remove_guardian"
	FnTransferGuardianship = "transfer_guardianship"
	FnRevealIdentity       = "reveal_identity"
	FnInitiateRecovery     = "initiate_recovery"
	FnSupportRecovery      = "support_recovery"
	FnCancelRecovery       = "cancel_recovery"
	FnExecuteRecovery      = "execute_recovery"
	FnExecuteRecoveryList  = "execute_recovery_list"
	FnQueueRemoval         = "queue_removal"
	FnExecuteRemoval       = "execute_removal"
	FnCancelRemoval        = "cancel_removal"
	FnDeposit              = "deposit"
	FnWithdraw             = "withdraw"
	FnExecuteCall          = "execute_call"
	FnReceiveAsset         = "receive_asset"
)

var (
	// ErrUnknownFunction is returned for an unrecognized function without value.
	ErrUnknownFunction = errors.New("unknown function")

	// ErrUnexpectedValue is returned when value is attached to an operation that does not take it.
	ErrUnexpectedValue = errors.New("operation does not accept value")
)

// Result is the outcome of an applied transaction.
type Result struct {
	Hash     wallet.Hash // Hash identifies the transaction
	Function string      // Function is the operation actually run
	Output   []byte      // Output is call output or the asset acknowledgement
}

// Dispatcher routes signed transactions to vault operations.
// The transaction sender is the caller of the operation.
type Dispatcher struct {
	w *wallet.Wallet
}

// New creates a dispatcher for w.
func New(w *wallet.Wallet) *Dispatcher {
	return &Dispatcher{w: w}
}

// Submit validates raw transaction bytes and applies them.
func (d *Dispatcher) Submit(ctx context.Context, data []byte) (*Result, error) {
	tx, err := ParseTx(data)
	if err != nil {
		return nil, err
	}

	return d.Apply(ctx, tx)
}

// Apply runs a validated transaction. The transaction hash is bound to the
// operation so a replay is rejected by the vault.
func (d *Dispatcher) Apply(ctx context.Context, tx *Tx) (*Result, error) {
	ctx = wallet.WithTxID(ctx, tx.Hash)

	fn, out, err := d.route(ctx, tx)
	if err != nil {
		logger.Debug("tx rejected", "hash", fmt.Sprintf("%x", tx.Hash[:8]), "fn", tx.Function, "error", err)
		return nil, err
	}

	logger.Debug("tx applied", "hash", fmt.Sprintf("%x", tx.Hash[:8]), "fn", fn)

	return &Result{Hash: tx.Hash, Function: fn, Output: out}, nil
}

// route decodes arguments and calls the matching operation.
// Returns the name of the operation run.
func (d *Dispatcher) route(ctx context.Context, tx *Tx) (string, []byte, error) {
	caller := tx.Sender

	switch tx.Function {
	case FnDeposit:
		return FnDeposit, nil, d.w.Deposit(ctx, caller, tx.Value)

	case FnExecuteCall:
		r := &argReader{data: tx.Args}
		target := wallet.Hash(r.id())
		input := r.bytes()
		if err := argsError(tx, r.done()); err != nil {
			return "", nil, err
		}

		out, err := d.w.ExecuteCall(ctx, caller, target, input, tx.Value)
		return FnExecuteCall, out, err
	}

	if !isKnown(tx.Function) {
		// Unrecognized calls carrying value are plain deposits.
		if tx.Value > 0 {
			return FnDeposit, nil, d.w.Deposit(ctx, caller, tx.Value)
		}

		return "", nil, fmt.Errorf("%w: %q", ErrUnknownFunction, tx.Function)
	}

	if tx.Value > 0 {
		return "", nil, fmt.Errorf("%w: %s", ErrUnexpectedValue, tx.Function)
	}

	out, err := d.routeNoValue(ctx, caller, tx)

	return tx.Function, out, err
}

// routeNoValue handles the operations that move no native value.
func (d *Dispatcher) routeNoValue(ctx context.Context, caller wallet.Address, tx *Tx) ([]byte, error) {
	r := &argReader{data: tx.Args}

	switch tx.Function {
	case FnAddGuardian:
		id := wallet.Address(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.AddGuardian(ctx, caller, id)

	case FnRemoveGuardian:
		id := wallet.Address(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.RemoveGuardian(ctx, caller, id)

	case FnTransferGuardianship:
		next := wallet.Commitment(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.TransferGuardianship(ctx, caller, next)

	case FnRevealIdentity:
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.RevealIdentity(ctx, caller)

	case FnInitiateRecovery:
		candidate := wallet.Address(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.InitiateRecovery(ctx, caller, candidate)

	case FnSupportRecovery:
		candidate := wallet.Address(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.SupportRecovery(ctx, caller, candidate)

	case FnCancelRecovery:
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.CancelRecovery(ctx, caller)

	case FnExecuteRecovery:
		newOwner := wallet.Address(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.ExecuteRecovery(ctx, caller, newOwner)

	case FnExecuteRecoveryList:
		newOwner, list, err := decodeRecoveryList(tx.Args)
		if err := argsError(tx, err); err != nil {
			return nil, err
		}
		return nil, d.w.ExecuteRecoveryWithList(ctx, caller, newOwner, list)

	case FnQueueRemoval:
		c := wallet.Commitment(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.QueueRemoval(ctx, caller, c)

	case FnExecuteRemoval:
		old := wallet.Commitment(r.id())
		next := wallet.Commitment(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.ExecuteRemoval(ctx, caller, old, next)

	case FnCancelRemoval:
		c := wallet.Commitment(r.id())
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.CancelRemoval(ctx, caller, c)

	case FnWithdraw:
		to := wallet.Address(r.id())
		amount := r.u64()
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		return nil, d.w.Withdraw(ctx, caller, to, amount)

	case FnReceiveAsset:
		asset := wallet.Hash(r.id())
		token := wallet.Hash(r.id())
		data := r.bytes()
		if err := argsError(tx, r.done()); err != nil {
			return nil, err
		}
		sel, err := d.w.ReceiveAsset(ctx, caller, asset, token, data)
		if err != nil {
			return nil, err
		}
		return sel[:], nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, tx.Function)
}

// argsError classifies an argument decoding failure as an invalid transaction.
func argsError(tx *Tx, err error) error {
	if err == nil {
		return nil
	}

	return fmt.Errorf("%w: %s args: %v", ErrInvalidTx, tx.Function, err)
}

// isKnown reports whether name is a vault operation.
func isKnown(name string) bool {
	switch name {
	case FnAddGuardian, FnRemoveGuardian, FnTransferGuardianship, FnRevealIdentity,
		FnInitiateRecovery, FnSupportRecovery, FnCancelRecovery, FnExecuteRecovery,
		FnExecuteRecoveryList, FnQueueRemoval, FnExecuteRemoval, FnCancelRemoval,
		FnDeposit, FnWithdraw, FnExecuteCall, FnReceiveAsset:
		return true
	}

	return false
}
