package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"GuardVault/internal/ledger"
	"GuardVault/internal/storage"
	"GuardVault/internal/types"
	"GuardVault/internal/wallet"
)

// snapshotVersion is the current snapshot format version.
const snapshotVersion = 1

var (
	// ErrChecksum is returned when a snapshot does not match its checksum.
	ErrChecksum = errors.New("snapshot checksum mismatch")

	// ErrNotEmpty is returned when applying a snapshot over existing vault state.
	ErrNotEmpty = errors.New("target storage already holds vault state")
)

// Entry is one stored key-value pair.
type Entry struct {
	Key   []byte
	Value []byte
}

// Manifest is a decoded, verified snapshot.
type Manifest struct {
	Version   uint32  // Version is the snapshot format version
	LastEvent uint64  // LastEvent is the event sequence number at export time
	Entries   []Entry // Entries are sorted by key
}

// Prefixes lists every key prefix a snapshot covers: vault and ledger state.
func Prefixes() [][]byte {
	prefixes := make([][]byte, 0, len(wallet.Prefixes)+2)
	prefixes = append(prefixes, wallet.Prefixes...)

	return append(prefixes, ledger.Prefixes()...)
}

// Create captures the vault and ledger state of db as of one point in time.
func Create(db *storage.Storage) ([]byte, error) {
	view := db.View()
	defer view.Close()

	entries, err := collectEntries(view)
	if err != nil {
		return nil, fmt.Errorf("collect entries:\n%w", err)
	}

	lastEvent, err := wallet.LastEventSeq(view)
	if err != nil {
		return nil, fmt.Errorf("read event sequence:\n%w", err)
	}

	return buildSnapshot(lastEvent, entries), nil
}

// collectEntries reads every covered key from the view.
func collectEntries(view *storage.View) ([]Entry, error) {
	var entries []Entry

	for _, prefix := range Prefixes() {
		err := view.IteratePrefix(prefix, func(key, value []byte) error {
			// Copy key and value to avoid iterator invalidation
			entries = append(entries, Entry{
				Key:   append([]byte(nil), key...),
				Value: append([]byte(nil), value...),
			})

			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// buildSnapshot creates the FlatBuffers snapshot with checksum.
func buildSnapshot(lastEvent uint64, entries []Entry) []byte {
	// Sort entries by key for deterministic checksum
	sortEntries(entries)

	checksum := computeChecksum(snapshotVersion, lastEvent, entries)

	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		keyOffset := builder.CreateByteVector(e.Key)
		valueOffset := builder.CreateByteVector(e.Value)

		types.SnapshotEntryStart(builder)
		types.SnapshotEntryAddKey(builder, keyOffset)
		types.SnapshotEntryAddValue(builder, valueOffset)
		offsets[i] = types.SnapshotEntryEnd(builder)
	}

	types.SnapshotStartEntriesVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	entriesVector := builder.EndVector(len(offsets))

	checksumOffset := builder.CreateByteVector(checksum[:])

	types.SnapshotStart(builder)
	types.SnapshotAddVersion(builder, snapshotVersion)
	types.SnapshotAddLastEvent(builder, lastEvent)
	types.SnapshotAddEntries(builder, entriesVector)
	types.SnapshotAddChecksum(builder, checksumOffset)
	offset := types.SnapshotEnd(builder)
	builder.Finish(offset)

	return builder.FinishedBytes()
}

// sortEntries sorts entries by key for deterministic ordering.
func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Key, entries[j].Key) < 0
	})
}

// computeChecksum computes a blake3 checksum over canonical snapshot data.
// Format: version (4 bytes) + last event (8 bytes) + each entry as
// u32 key len + key + u32 value len + value.
func computeChecksum(version uint32, lastEvent uint64, entries []Entry) [32]byte {
	hasher := blake3.New()

	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], version)
	hasher.Write(buf[:4])

	binary.BigEndian.PutUint64(buf[:], lastEvent)
	hasher.Write(buf[:])

	for _, e := range entries {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.Key)))
		hasher.Write(buf[:4])
		hasher.Write(e.Key)

		binary.BigEndian.PutUint32(buf[:4], uint32(len(e.Value)))
		hasher.Write(buf[:4])
		hasher.Write(e.Value)
	}

	var checksum [32]byte
	hasher.Sum(checksum[:0])

	return checksum
}

// Decode parses snapshot data and verifies its checksum.
func Decode(data []byte) (m *Manifest, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			m = nil
			retErr = fmt.Errorf("malformed snapshot data")
		}
	}()

	if len(data) < 8 {
		return nil, fmt.Errorf("snapshot data too short")
	}

	snap := types.GetRootAsSnapshot(data, 0)

	stored := snap.ChecksumBytes()
	if len(stored) != 32 {
		return nil, fmt.Errorf("invalid checksum length: %d", len(stored))
	}

	m = &Manifest{
		Version:   snap.Version(),
		LastEvent: snap.LastEvent(),
		Entries:   make([]Entry, snap.EntriesLength()),
	}

	var e types.SnapshotEntry

	for i := range m.Entries {
		if !snap.Entries(&e, i) {
			return nil, fmt.Errorf("read entry %d", i)
		}

		// Copy bytes to avoid FlatBuffers buffer reuse issues
		m.Entries[i] = Entry{
			Key:   append([]byte(nil), e.KeyBytes()...),
			Value: append([]byte(nil), e.ValueBytes()...),
		}
	}

	sortEntries(m.Entries)
	computed := computeChecksum(m.Version, m.LastEvent, m.Entries)

	if !bytes.Equal(computed[:], stored) {
		return nil, ErrChecksum
	}

	return m, nil
}

// Apply verifies a snapshot and writes its entries to db in one batch.
// db must not hold any vault or ledger state yet.
func Apply(db *storage.Storage, data []byte) (*Manifest, error) {
	m, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("verify snapshot:\n%w", err)
	}

	if err := requireEmpty(db); err != nil {
		return nil, err
	}

	pairs := make([]storage.KeyValue, len(m.Entries))
	for i, e := range m.Entries {
		pairs[i] = storage.KeyValue{Key: e.Key, Value: e.Value}
	}

	// Write all entries atomically
	if err := db.SetBatch(pairs); err != nil {
		return nil, fmt.Errorf("write entries:\n%w", err)
	}

	return m, nil
}

// errFound stops the emptiness scan at the first key.
var errFound = errors.New("found")

// requireEmpty rejects a db holding any covered key.
func requireEmpty(db *storage.Storage) error {
	for _, prefix := range Prefixes() {
		err := db.IteratePrefix(prefix, func(key, value []byte) error {
			return errFound
		})

		if errors.Is(err, errFound) {
			return ErrNotEmpty
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// Compress compresses snapshot data using zstd.
func Compress(data []byte) ([]byte, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create encoder:\n%w", err)
	}
	defer encoder.Close()

	return encoder.EncodeAll(data, nil), nil
}

// Decompress decompresses zstd-compressed snapshot data.
func Decompress(data []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	return decoder.DecodeAll(data, nil)
}
