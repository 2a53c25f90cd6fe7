package wallet

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// commitmentDST separates guardian commitments from other blake3 uses.
var commitmentDST = []byte("guardvault-guardian-commitment")

// Address is an Ed25519 public key identifying an owner, guardian or candidate.
type Address [32]byte

// Commitment is the one-way binding of a guardian address.
// The registry only ever stores commitments.
type Commitment [32]byte

// Hash identifies call targets, assets and transactions.
type Hash [32]byte

// Commit returns the guardian commitment for an address:
// blake3(commitmentDST || address).
func Commit(id Address) Commitment {
	h := blake3.New()
	h.Write(commitmentDST)
	h.Write(id[:])

	var c Commitment
	h.Sum(c[:0])

	return c
}

// String returns the hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the hex encoding of the commitment.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// Short returns the first 8 bytes in hex, for logs.
func (c Commitment) Short() string {
	return hex.EncodeToString(c[:8])
}

// String returns the hex encoding of the hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// MarshalText encodes the address as hex.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes a hex address.
func (a *Address) UnmarshalText(b []byte) error {
	return decodeHex32(string(b), a[:])
}

// MarshalText encodes the commitment as hex.
func (c Commitment) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a hex commitment.
func (c *Commitment) UnmarshalText(b []byte) error {
	return decodeHex32(string(b), c[:])
}

// MarshalText encodes the hash as hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText decodes a hex hash.
func (h *Hash) UnmarshalText(b []byte) error {
	return decodeHex32(string(b), h[:])
}

// ParseAddress decodes a 32-byte hex address.
func ParseAddress(s string) (Address, error) {
	var a Address
	err := decodeHex32(s, a[:])
	return a, err
}

// ParseCommitment decodes a 32-byte hex commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	err := decodeHex32(s, c[:])
	return c, err
}

// ParseHash decodes a 32-byte hex hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	err := decodeHex32(s, h[:])
	return h, err
}

// decodeHex32 decodes s into dst, which must be 32 bytes.
func decodeHex32(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decode hex: %w", err)
	}

	if len(b) != 32 {
		return fmt.Errorf("invalid length: got %d, want 32", len(b))
	}

	copy(dst, b)

	return nil
}

// Vote is the latest recovery vote cast by a guardian.
// A new vote overwrites the previous one, whatever its round.
type Vote struct {
	Candidate Address // Candidate is the proposed new owner
	Round     uint64  // Round is the recovery round the vote was cast in
	Consumed  bool    // Consumed is set once the vote executed a recovery
}

// Genesis is the initial configuration of a vault.
type Genesis struct {
	Owner     Address      // Owner is the initial owner
	Guardians []Commitment // Guardians must be duplicate-free
	Threshold uint64       // Threshold must not exceed len(Guardians)
}

// Status is a point-in-time summary of the vault.
type Status struct {
	Owner         Address `json:"owner"`
	GuardianCount uint64  `json:"guardianCount"`
	Threshold     uint64  `json:"threshold"`
	InRecovery    bool    `json:"inRecovery"`
	Round         uint64  `json:"round"`
	Balance       uint64  `json:"balance"`
	LastEvent     uint64  `json:"lastEvent"`
}
