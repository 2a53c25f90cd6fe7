package dispatch

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/zeebo/blake3"

	"GuardVault/internal/types"
	"GuardVault/internal/wallet"
)

const (
	// hashSize is the expected size of a transaction hash.
	hashSize = 32

	// senderSize is the expected size of an Ed25519 public key.
	senderSize = 32

	// signatureSize is the expected size of an Ed25519 signature.
	signatureSize = 64

	// maxFunctionName bounds the function name length.
	maxFunctionName = 64
)

// ErrInvalidTx marks transactions rejected before reaching the vault.
var ErrInvalidTx = errors.New("invalid transaction")

// Tx is a validated, decoded transaction.
type Tx struct {
	Hash     wallet.Hash    // Hash is blake3 of the unsigned transaction
	Sender   wallet.Address // Sender is the signing Ed25519 public key
	Nonce    uint64         // Nonce makes otherwise identical transactions distinct
	Function string         // Function is the vault operation name
	Args     []byte         // Args are the Borsh-style encoded arguments
	Value    uint64         // Value is the native amount attached
}

// BuildSignedTx builds a signed Transaction.
// Returns the serialized Transaction bytes and the transaction hash.
func BuildSignedTx(privKey ed25519.PrivateKey, nonce uint64, funcName string, args []byte, value uint64) ([]byte, wallet.Hash) {
	pubKey := privKey.Public().(ed25519.PublicKey)

	unsignedBytes := BuildUnsignedTxBytes(pubKey, nonce, funcName, args, value)
	hash := blake3.Sum256(unsignedBytes)
	sig := ed25519.Sign(privKey, hash[:])

	builder := flatbuffers.NewBuilder(256 + len(args))
	txOffset := buildTxTable(builder, pubKey, nonce, funcName, args, value, hash, sig)
	builder.Finish(txOffset)

	return builder.FinishedBytes(), hash
}

// BuildUnsignedTxBytes creates transaction bytes without hash and signature for hashing.
func BuildUnsignedTxBytes(sender []byte, nonce uint64, funcName string, args []byte, value uint64) []byte {
	builder := flatbuffers.NewBuilder(256 + len(args))

	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	funcNameOff := builder.CreateString(funcName)

	types.TransactionStart(builder)
	types.TransactionAddSender(builder, senderVec)
	types.TransactionAddNonce(builder, nonce)
	types.TransactionAddFunctionName(builder, funcNameOff)
	types.TransactionAddArgs(builder, argsVec)
	types.TransactionAddValue(builder, value)
	txOff := types.TransactionEnd(builder)

	builder.Finish(txOff)

	return builder.FinishedBytes()
}

// buildTxTable builds a Transaction table in the given builder.
func buildTxTable(builder *flatbuffers.Builder, sender []byte, nonce uint64, funcName string, args []byte, value uint64, hash [32]byte, sig []byte) flatbuffers.UOffsetT {
	hashVec := builder.CreateByteVector(hash[:])
	sigVec := builder.CreateByteVector(sig)
	argsVec := builder.CreateByteVector(args)
	senderVec := builder.CreateByteVector(sender)
	funcNameOff := builder.CreateString(funcName)

	types.TransactionStart(builder)
	types.TransactionAddHash(builder, hashVec)
	types.TransactionAddSender(builder, senderVec)
	types.TransactionAddNonce(builder, nonce)
	types.TransactionAddFunctionName(builder, funcNameOff)
	types.TransactionAddArgs(builder, argsVec)
	types.TransactionAddValue(builder, value)
	types.TransactionAddSignature(builder, sigVec)

	return types.TransactionEnd(builder)
}

// ParseTx decodes raw Transaction bytes and checks structural integrity,
// hash correctness and the Ed25519 signature.
func ParseTx(data []byte) (tx *Tx, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			tx = nil
			retErr = fmt.Errorf("%w: malformed transaction data", ErrInvalidTx)
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("%w: transaction data too short", ErrInvalidTx)
	}

	fb := types.GetRootAsTransaction(data, 0)

	if err := validateFieldSizes(fb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}

	if err := validateHash(fb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}

	if err := validateSignature(fb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTx, err)
	}

	tx = &Tx{
		Nonce:    fb.Nonce(),
		Function: string(fb.FunctionName()),
		Args:     append([]byte(nil), fb.ArgsBytes()...),
		Value:    fb.Value(),
	}

	copy(tx.Hash[:], fb.HashBytes())
	copy(tx.Sender[:], fb.SenderBytes())

	return tx, nil
}

// validateFieldSizes checks that all fixed-size fields have the correct length.
func validateFieldSizes(tx *types.Transaction) error {
	if len(tx.HashBytes()) != hashSize {
		return fmt.Errorf("invalid hash size: got %d, want %d", len(tx.HashBytes()), hashSize)
	}

	if len(tx.SenderBytes()) != senderSize {
		return fmt.Errorf("invalid sender size: got %d, want %d", len(tx.SenderBytes()), senderSize)
	}

	if len(tx.SignatureBytes()) != signatureSize {
		return fmt.Errorf("invalid signature size: got %d, want %d", len(tx.SignatureBytes()), signatureSize)
	}

	name := tx.FunctionName()
	if len(name) == 0 {
		return fmt.Errorf("empty function name")
	}

	if len(name) > maxFunctionName {
		return fmt.Errorf("function name too long: %d", len(name))
	}

	return nil
}

// validateHash recomputes the transaction hash and compares it to the declared hash.
// The hash is blake3 of the unsigned transaction (all fields except hash and signature).
func validateHash(tx *types.Transaction) error {
	unsignedBytes := BuildUnsignedTxBytes(tx.SenderBytes(), tx.Nonce(), string(tx.FunctionName()), tx.ArgsBytes(), tx.Value())
	expected := blake3.Sum256(unsignedBytes)

	hash := tx.HashBytes()

	for i := 0; i < hashSize; i++ {
		if hash[i] != expected[i] {
			return fmt.Errorf("hash mismatch")
		}
	}

	return nil
}

// validateSignature verifies the Ed25519 signature over the transaction hash.
func validateSignature(tx *types.Transaction) error {
	if !ed25519.Verify(tx.SenderBytes(), tx.HashBytes(), tx.SignatureBytes()) {
		return fmt.Errorf("invalid signature")
	}

	return nil
}
