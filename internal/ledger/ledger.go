// Package ledger keeps the vault's balances and the non-native assets it holds.
// It has no authorization of its own: the vault checks the caller and runs
// every ledger write inside the same batch as the rest of the operation.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"GuardVault/internal/storage"
)

var (
	// ErrInsufficientFunds is returned when a debit exceeds the balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrOverflow is returned when a credit would wrap the balance.
	ErrOverflow = errors.New("balance overflow")
)

var (
	prefixBalance = []byte("b:") // b:<asset> -> u64 balance
	prefixHolding = []byte("h:") // h:<asset><token> -> holding marker
)

// Native is the asset id of the chain's native value.
var Native [32]byte

// Writer is the write side of a storage batch.
type Writer interface {
	storage.Reader
	Set(key, value []byte) error
	Delete(key []byte) error
}

// Balance returns the balance of an asset. Unknown assets read as zero.
func Balance(r storage.Reader, asset [32]byte) (uint64, error) {
	v, err := r.Get(balanceKey(asset))
	if err != nil {
		return 0, fmt.Errorf("read balance:\n%w", err)
	}

	if len(v) != 8 {
		return 0, nil
	}

	return binary.LittleEndian.Uint64(v), nil
}

// Credit adds amount to the asset balance.
func Credit(w Writer, asset [32]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}

	balance, err := Balance(w, asset)
	if err != nil {
		return err
	}

	newBalance := balance + amount
	if newBalance < balance {
		return fmt.Errorf("%w: balance=%d + amount=%d", ErrOverflow, balance, amount)
	}

	return setBalance(w, asset, newBalance)
}

// Debit removes amount from the asset balance.
// Fails without writing if the balance does not cover it.
func Debit(w Writer, asset [32]byte, amount uint64) error {
	if amount == 0 {
		return nil
	}

	balance, err := Balance(w, asset)
	if err != nil {
		return err
	}

	if balance < amount {
		return fmt.Errorf("%w: balance=%d, amount=%d", ErrInsufficientFunds, balance, amount)
	}

	return setBalance(w, asset, balance-amount)
}

// AddHolding records receipt of a non-fungible token of an asset.
func AddHolding(w Writer, asset, token [32]byte) error {
	if err := w.Set(holdingKey(asset, token), []byte{1}); err != nil {
		return fmt.Errorf("write holding:\n%w", err)
	}

	return nil
}

// HasHolding reports whether the vault holds the token.
func HasHolding(r storage.Reader, asset, token [32]byte) (bool, error) {
	v, err := r.Get(holdingKey(asset, token))
	if err != nil {
		return false, fmt.Errorf("read holding:\n%w", err)
	}

	return v != nil, nil
}

// Prefixes lists the key prefixes owned by the ledger, for snapshots.
func Prefixes() [][]byte {
	return [][]byte{prefixBalance, prefixHolding}
}

func setBalance(w Writer, asset [32]byte, balance uint64) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, balance)

	if err := w.Set(balanceKey(asset), buf); err != nil {
		return fmt.Errorf("write balance:\n%w", err)
	}

	return nil
}

func balanceKey(asset [32]byte) []byte {
	key := make([]byte, 0, len(prefixBalance)+32)
	key = append(key, prefixBalance...)
	return append(key, asset[:]...)
}

func holdingKey(asset, token [32]byte) []byte {
	key := make([]byte, 0, len(prefixHolding)+64)
	key = append(key, prefixHolding...)
	key = append(key, asset[:]...)
	return append(key, token[:]...)
}
