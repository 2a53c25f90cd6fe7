package network

import (
	"encoding/binary"
	"fmt"
	"io"

	"GuardVault/internal/wallet"
)

const (
	// maxMessageSize is the maximum allowed message size (16 MB).
	maxMessageSize = 16 << 20

	// lengthPrefixSize is the size of the length prefix in bytes.
	lengthPrefixSize = 4
)

// writeMessage writes a length-prefixed message to the writer.
// Format: [4 bytes big-endian length] [payload]
func writeMessage(w io.Writer, data []byte) error {
	if len(data) > maxMessageSize {
		return fmt.Errorf("message too large: %d > %d", len(data), maxMessageSize)
	}

	// Write length prefix
	var lengthBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(data)))

	if _, err := w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length: %w", err)
	}

	// Write payload
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}

	return nil
}

// readMessage reads a length-prefixed message from the reader.
func readMessage(r io.Reader) ([]byte, error) {
	// Read length prefix
	var lengthBuf [lengthPrefixSize]byte

	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, fmt.Errorf("read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lengthBuf[:])

	if length > maxMessageSize {
		return nil, fmt.Errorf("message too large: %d > %d", length, maxMessageSize)
	}

	// Read payload
	data := make([]byte, length)

	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	return data, nil
}

// Feed message and request types. The first byte of every payload.
const (
	msgEvent byte = 1 // msgEvent carries one FlatBuffers audit event (uni stream)

	reqSubmitTx byte = 2 // reqSubmitTx carries a signed transaction
	reqEvents   byte = 3 // reqEvents asks for events from a sequence number
)

// Reply status, the first byte of every response.
const (
	replyOK       byte = 0
	replyRejected byte = 1
)

// maxBackfill caps the number of events in one reqEvents reply.
const maxBackfill = 1000

// encodeEventMessage frames an event for broadcast.
func encodeEventMessage(e *wallet.Event) []byte {
	data := e.Marshal()

	msg := make([]byte, 1+len(data))
	msg[0] = msgEvent
	copy(msg[1:], data)

	return msg
}

// decodeEventMessage parses a broadcast event.
func decodeEventMessage(msg []byte) (wallet.Event, error) {
	if len(msg) == 0 || msg[0] != msgEvent {
		return wallet.Event{}, fmt.Errorf("not an event message")
	}

	return wallet.UnmarshalEvent(msg[1:])
}

// encodeEventsRequest builds a reqEvents payload: from (u64 BE) + limit (u32 BE).
func encodeEventsRequest(from uint64, limit uint32) []byte {
	req := make([]byte, 13)
	req[0] = reqEvents
	binary.BigEndian.PutUint64(req[1:9], from)
	binary.BigEndian.PutUint32(req[9:13], limit)

	return req
}

// decodeEventsRequest parses a reqEvents payload without its type byte.
func decodeEventsRequest(body []byte) (uint64, uint32, error) {
	if len(body) != 12 {
		return 0, 0, fmt.Errorf("invalid events request length: %d", len(body))
	}

	return binary.BigEndian.Uint64(body[:8]), binary.BigEndian.Uint32(body[8:12]), nil
}

// encodeTxReply builds an accepted transaction reply:
// status + hash (32) + function name len (u32 BE) + name + output.
func encodeTxReply(hash [32]byte, function string, output []byte) []byte {
	reply := make([]byte, 0, 1+32+4+len(function)+len(output))
	reply = append(reply, replyOK)
	reply = append(reply, hash[:]...)
	reply = binary.BigEndian.AppendUint32(reply, uint32(len(function)))
	reply = append(reply, function...)

	return append(reply, output...)
}

// decodeTxReply parses an accepted transaction reply without its status byte.
func decodeTxReply(body []byte) (*TxReceipt, error) {
	if len(body) < 36 {
		return nil, fmt.Errorf("tx reply too short")
	}

	r := &TxReceipt{}
	copy(r.Hash[:], body[:32])

	n := binary.BigEndian.Uint32(body[32:36])
	if uint64(n) > uint64(len(body)-36) {
		return nil, fmt.Errorf("invalid function name length: %d", n)
	}

	r.Function = string(body[36 : 36+n])
	r.Output = append([]byte(nil), body[36+n:]...)

	return r, nil
}

// encodeEventsReply builds a backfill reply: status + count (u32 BE) +
// each event as length (u32 BE) + FlatBuffers bytes.
func encodeEventsReply(events []wallet.Event) []byte {
	reply := []byte{replyOK}
	reply = binary.BigEndian.AppendUint32(reply, uint32(len(events)))

	for i := range events {
		data := events[i].Marshal()
		reply = binary.BigEndian.AppendUint32(reply, uint32(len(data)))
		reply = append(reply, data...)
	}

	return reply
}

// decodeEventsReply parses a backfill reply without its status byte.
func decodeEventsReply(body []byte) ([]wallet.Event, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("events reply too short")
	}

	count := binary.BigEndian.Uint32(body[:4])
	if count > maxBackfill {
		return nil, fmt.Errorf("too many events: %d", count)
	}

	body = body[4:]
	events := make([]wallet.Event, 0, count)

	for i := uint32(0); i < count; i++ {
		if len(body) < 4 {
			return nil, fmt.Errorf("event %d: truncated", i)
		}

		n := binary.BigEndian.Uint32(body[:4])
		if uint64(n) > uint64(len(body)-4) {
			return nil, fmt.Errorf("event %d: truncated", i)
		}

		e, err := wallet.UnmarshalEvent(body[4 : 4+n])
		if err != nil {
			return nil, fmt.Errorf("event %d:\n%w", i, err)
		}

		events = append(events, e)
		body = body[4+n:]
	}

	return events, nil
}

// encodeRejection builds an error reply: status + kind + message.
// kind is 0 for failures outside the vault error taxonomy.
func encodeRejection(err error) []byte {
	msg := err.Error()

	reply := make([]byte, 0, 2+len(msg))
	reply = append(reply, replyRejected, byte(wallet.KindOf(err)))

	return append(reply, msg...)
}

// decodeReply splits a reply into its body, or returns the remote rejection.
func decodeReply(reply []byte) ([]byte, error) {
	if len(reply) == 0 {
		return nil, fmt.Errorf("empty reply")
	}

	switch reply[0] {
	case replyOK:
		return reply[1:], nil
	case replyRejected:
		if len(reply) < 2 {
			return nil, fmt.Errorf("truncated rejection")
		}
		return nil, &RemoteError{Kind: wallet.Kind(reply[1]), Message: string(reply[2:])}
	}

	return nil, fmt.Errorf("unknown reply status: %d", reply[0])
}
