package client

import (
	"fmt"

	"GuardVault/internal/dispatch"
	"GuardVault/internal/wallet"
)

// send signs fn with the account key and submits it.
func (a *Account) send(c *Client, fn string, args []byte, value uint64) (*Receipt, error) {
	txBytes, _ := dispatch.BuildSignedTx(a.privKey, a.nextNonce(), fn, args, value)

	r, err := c.submitTx(txBytes)
	if err != nil {
		return nil, fmt.Errorf("submit %s tx:\n%w", fn, err)
	}

	return r, nil
}

// AddGuardian registers guardian. Owner only.
func (a *Account) AddGuardian(c *Client, guardian wallet.Address) (*Receipt, error) {
	return a.send(c, dispatch.FnAddGuardian, dispatch.EncodeID(guardian), 0)
}

// RemoveGuardian unregisters guardian immediately. Owner only.
func (a *Account) RemoveGuardian(c *Client, guardian wallet.Address) (*Receipt, error) {
	return a.send(c, dispatch.FnRemoveGuardian, dispatch.EncodeID(guardian), 0)
}

// TransferGuardianship moves the account's guardian seat to next.
func (a *Account) TransferGuardianship(c *Client, next wallet.Commitment) (*Receipt, error) {
	return a.send(c, dispatch.FnTransferGuardianship, dispatch.EncodeID(next), 0)
}

// RevealIdentity publishes the link between the account and its commitment.
func (a *Account) RevealIdentity(c *Client) (*Receipt, error) {
	return a.send(c, dispatch.FnRevealIdentity, nil, 0)
}

// InitiateRecovery opens a recovery round for candidate.
func (a *Account) InitiateRecovery(c *Client, candidate wallet.Address) (*Receipt, error) {
	return a.send(c, dispatch.FnInitiateRecovery, dispatch.EncodeID(candidate), 0)
}

// SupportRecovery votes for candidate in the open round.
func (a *Account) SupportRecovery(c *Client, candidate wallet.Address) (*Receipt, error) {
	return a.send(c, dispatch.FnSupportRecovery, dispatch.EncodeID(candidate), 0)
}

// CancelRecovery closes the open round. Owner only.
func (a *Account) CancelRecovery(c *Client) (*Receipt, error) {
	return a.send(c, dispatch.FnCancelRecovery, nil, 0)
}

// ExecuteRecovery installs newOwner once its tally reaches the threshold.
func (a *Account) ExecuteRecovery(c *Client, newOwner wallet.Address) (*Receipt, error) {
	return a.send(c, dispatch.FnExecuteRecovery, dispatch.EncodeID(newOwner), 0)
}

// ExecuteRecoveryWithList installs newOwner on the votes of the listed guardians.
func (a *Account) ExecuteRecoveryWithList(c *Client, newOwner wallet.Address, guardians []wallet.Commitment) (*Receipt, error) {
	return a.send(c, dispatch.FnExecuteRecoveryList, dispatch.EncodeRecoveryListArgs(newOwner, guardians), 0)
}

// QueueRemoval starts the removal timelock for commitment. Owner only.
func (a *Account) QueueRemoval(c *Client, commitment wallet.Commitment) (*Receipt, error) {
	return a.send(c, dispatch.FnQueueRemoval, dispatch.EncodeID(commitment), 0)
}

// ExecuteRemoval swaps old for next after the timelock. Owner only.
func (a *Account) ExecuteRemoval(c *Client, old, next wallet.Commitment) (*Receipt, error) {
	return a.send(c, dispatch.FnExecuteRemoval, dispatch.EncodePair(old, next), 0)
}

// CancelRemoval clears a pending removal. Owner only.
func (a *Account) CancelRemoval(c *Client, commitment wallet.Commitment) (*Receipt, error) {
	return a.send(c, dispatch.FnCancelRemoval, dispatch.EncodeID(commitment), 0)
}

// Deposit credits amount to the vault.
func (a *Account) Deposit(c *Client, amount uint64) (*Receipt, error) {
	return a.send(c, dispatch.FnDeposit, nil, amount)
}

// Withdraw sends amount from the vault to recipient. Owner only.
func (a *Account) Withdraw(c *Client, recipient wallet.Address, amount uint64) (*Receipt, error) {
	return a.send(c, dispatch.FnWithdraw, dispatch.EncodeWithdrawArgs(recipient, amount), 0)
}

// ExecuteCall invokes target with input, attaching value. Owner only.
// Returns the call output.
func (a *Account) ExecuteCall(c *Client, target wallet.Hash, input []byte, value uint64) ([]byte, error) {
	r, err := a.send(c, dispatch.FnExecuteCall, dispatch.EncodeCallArgs(target, input), value)
	if err != nil {
		return nil, err
	}

	return r.Output, nil
}

// ReceiveAsset hands a non-native asset to the vault and returns its
// acknowledgement selector.
func (a *Account) ReceiveAsset(c *Client, asset, token wallet.Hash, data []byte) ([4]byte, error) {
	var sel [4]byte

	r, err := a.send(c, dispatch.FnReceiveAsset, dispatch.EncodeAssetArgs(asset, token, data), 0)
	if err != nil {
		return sel, err
	}

	if len(r.Output) != len(sel) {
		return sel, fmt.Errorf("invalid acknowledgement length: %d", len(r.Output))
	}

	copy(sel[:], r.Output)

	return sel, nil
}
