package dispatch

import (
	"encoding/binary"
	"fmt"

	"GuardVault/internal/wallet"
)

// Arguments are Borsh-style: fixed 32-byte ids, u64 little-endian amounts,
// and Vec<u8> as a u32 little-endian length followed by the bytes.

// maxListLen bounds the guardian list of execute_recovery_list.
const maxListLen = 256

// EncodeID encodes a single 32-byte argument (address or commitment).
func EncodeID(id [32]byte) []byte {
	buf := make([]byte, 32)
	copy(buf, id[:])

	return buf
}

// EncodePair encodes two 32-byte arguments.
// Format: [u8; 32] first + [u8; 32] second.
func EncodePair(first, second [32]byte) []byte {
	buf := make([]byte, 64)
	copy(buf[:32], first[:])
	copy(buf[32:], second[:])

	return buf
}

// EncodeWithdrawArgs encodes withdraw arguments.
// Format: [u8; 32] recipient + u64 amount.
func EncodeWithdrawArgs(recipient wallet.Address, amount uint64) []byte {
	buf := make([]byte, 40)
	copy(buf[:32], recipient[:])
	binary.LittleEndian.PutUint64(buf[32:], amount)

	return buf
}

// EncodeRecoveryListArgs encodes execute_recovery_list arguments.
// Format: [u8; 32] new_owner + u32 count + count * [u8; 32] commitment.
func EncodeRecoveryListArgs(newOwner wallet.Address, guardians []wallet.Commitment) []byte {
	buf := make([]byte, 36, 36+32*len(guardians))
	copy(buf[:32], newOwner[:])
	binary.LittleEndian.PutUint32(buf[32:36], uint32(len(guardians)))

	for _, g := range guardians {
		buf = append(buf, g[:]...)
	}

	return buf
}

// EncodeCallArgs encodes execute_call arguments. The forwarded value is the
// transaction value.
// Format: [u8; 32] target + Vec<u8> input.
func EncodeCallArgs(target wallet.Hash, input []byte) []byte {
	buf := make([]byte, 0, 36+len(input))
	buf = append(buf, target[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(input)))

	return append(buf, input...)
}

// EncodeAssetArgs encodes receive_asset arguments.
// Format: [u8; 32] asset + [u8; 32] token + Vec<u8> data.
func EncodeAssetArgs(asset, token wallet.Hash, data []byte) []byte {
	buf := make([]byte, 0, 68+len(data))
	buf = append(buf, asset[:]...)
	buf = append(buf, token[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))

	return append(buf, data...)
}

// argReader decodes arguments front to back. The first failure sticks.
type argReader struct {
	data []byte
	off  int
	err  error
}

func (r *argReader) id() [32]byte {
	var id [32]byte

	if r.err != nil {
		return id
	}

	if len(r.data)-r.off < 32 {
		r.err = fmt.Errorf("truncated id at offset %d", r.off)
		return id
	}

	copy(id[:], r.data[r.off:r.off+32])
	r.off += 32

	return id
}

func (r *argReader) u32() uint32 {
	if r.err != nil {
		return 0
	}

	if len(r.data)-r.off < 4 {
		r.err = fmt.Errorf("truncated u32 at offset %d", r.off)
		return 0
	}

	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4

	return v
}

func (r *argReader) u64() uint64 {
	if r.err != nil {
		return 0
	}

	if len(r.data)-r.off < 8 {
		r.err = fmt.Errorf("truncated u64 at offset %d", r.off)
		return 0
	}

	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8

	return v
}

func (r *argReader) bytes() []byte {
	n := r.u32()
	if r.err != nil {
		return nil
	}

	if uint64(len(r.data)-r.off) < uint64(n) {
		r.err = fmt.Errorf("truncated bytes: want %d at offset %d", n, r.off)
		return nil
	}

	out := make([]byte, n)
	copy(out, r.data[r.off:r.off+int(n)])
	r.off += int(n)

	return out
}

// done returns the first decode error, or an error for trailing bytes.
func (r *argReader) done() error {
	if r.err != nil {
		return r.err
	}

	if r.off != len(r.data) {
		return fmt.Errorf("%d trailing bytes", len(r.data)-r.off)
	}

	return nil
}

// decodeRecoveryList decodes execute_recovery_list arguments.
func decodeRecoveryList(data []byte) (wallet.Address, []wallet.Commitment, error) {
	r := &argReader{data: data}

	newOwner := wallet.Address(r.id())

	n := r.u32()
	if r.err == nil && n > maxListLen {
		return wallet.Address{}, nil, fmt.Errorf("guardian list too long: %d (max %d)", n, maxListLen)
	}

	list := make([]wallet.Commitment, 0, n)
	for i := uint32(0); i < n && r.err == nil; i++ {
		list = append(list, wallet.Commitment(r.id()))
	}

	if err := r.done(); err != nil {
		return wallet.Address{}, nil, err
	}

	return newOwner, list, nil
}
