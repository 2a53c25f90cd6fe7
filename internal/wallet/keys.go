package wallet

import "encoding/binary"

// Pebble key layout. Each fact of the vault lives under its own key so
// that an operation touches only what it changes.
var (
	prefixGuardian = []byte("g:") // g:<commitment> -> membership marker
	prefixTally    = []byte("t:") // t:<round BE><candidate> -> u64 tally
	prefixVote     = []byte("v:") // v:<commitment> -> encoded Vote
	prefixRemoval  = []byte("q:") // q:<commitment> -> i64 eligible-at time
	prefixEvent    = []byte("e:") // e:<seq BE> -> FlatBuffers Event
	prefixReceipt  = []byte("x:") // x:<tx hash> -> applied marker

	keyCount      = []byte("m:count")
	keyThreshold  = []byte("m:threshold")
	keyOwner      = []byte("m:owner")
	keyRecovering = []byte("m:recovering")
	keyRound      = []byte("m:round")
	keyEventSeq   = []byte("m:eventseq")
	keyDelay      = []byte("m:delay") // removal timelock in seconds, fixed at Create
)

// Prefixes lists every key prefix owned by the vault, for snapshots.
var Prefixes = [][]byte{
	prefixGuardian, prefixTally, prefixVote, prefixRemoval,
	prefixEvent, prefixReceipt, []byte("m:"),
}

// voteSize is the encoded Vote length: candidate + round + consumed flag.
const voteSize = 32 + 8 + 1

func guardianKey(c Commitment) []byte {
	return appendKey(prefixGuardian, c[:])
}

func voteKey(c Commitment) []byte {
	return appendKey(prefixVote, c[:])
}

func removalKey(c Commitment) []byte {
	return appendKey(prefixRemoval, c[:])
}

func receiptKey(id Hash) []byte {
	return appendKey(prefixReceipt, id[:])
}

// tallyKey scopes a tally to its round so stale rounds never merge.
func tallyKey(round uint64, candidate Address) []byte {
	key := make([]byte, 0, len(prefixTally)+8+32)
	key = append(key, prefixTally...)
	key = binary.BigEndian.AppendUint64(key, round)
	key = append(key, candidate[:]...)

	return key
}

// eventKey orders events by sequence number.
func eventKey(seq uint64) []byte {
	key := make([]byte, 0, len(prefixEvent)+8)
	key = append(key, prefixEvent...)
	key = binary.BigEndian.AppendUint64(key, seq)

	return key
}

func appendKey(prefix, id []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(id))
	key = append(key, prefix...)
	key = append(key, id...)

	return key
}

// encodeVote serializes a vote: candidate (32) + round (u64 LE) + consumed (u8).
func encodeVote(v Vote) []byte {
	buf := make([]byte, voteSize)
	copy(buf[:32], v.Candidate[:])
	binary.LittleEndian.PutUint64(buf[32:40], v.Round)

	if v.Consumed {
		buf[40] = 1
	}

	return buf
}

// decodeVote parses an encoded vote. Returns false on malformed data.
func decodeVote(data []byte) (Vote, bool) {
	if len(data) != voteSize {
		return Vote{}, false
	}

	var v Vote
	copy(v.Candidate[:], data[:32])
	v.Round = binary.LittleEndian.Uint64(data[32:40])
	v.Consumed = data[40] == 1

	return v, true
}
