package wallet

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"

	"GuardVault/internal/types"
)

// EventKind identifies an audit event.
type EventKind uint8

const (
	EventGuardianAdded EventKind = iota + 1
	EventGuardianRemoved
	EventGuardianChanged
	EventGuardianQueued
	EventRemovalCancelled
	EventGuardianRevealed
	EventRecoveryInitiated
	EventRecoverySupported
	EventRecoveryCancelled
	EventRecoveryExecuted
	EventDeposited
	EventWithdrawn
	EventCallExecuted
	EventAssetReceived
)

var eventNames = map[EventKind]string{
	EventGuardianAdded:     "guardian_added",
	EventGuardianRemoved:   "guardian_removed",
	EventGuardianChanged:   "guardian_changed",
	EventGuardianQueued:    "guardian_queued",
	EventRemovalCancelled:  "removal_cancelled",
	EventGuardianRevealed:  "guardian_revealed",
	EventRecoveryInitiated: "recovery_initiated",
	EventRecoverySupported: "recovery_supported",
	EventRecoveryCancelled: "recovery_cancelled",
	EventRecoveryExecuted:  "recovery_executed",
	EventDeposited:         "deposited",
	EventWithdrawn:         "withdrawn",
	EventCallExecuted:      "call_executed",
	EventAssetReceived:     "asset_received",
}

// String returns the snake_case event name.
func (k EventKind) String() string {
	if name, ok := eventNames[k]; ok {
		return name
	}

	return fmt.Sprintf("event(%d)", uint8(k))
}

// Event is one entry of the audit log. Field meaning depends on Kind:
// Subject is a guardian commitment (or asset/target id), Target is the
// candidate owner, replacement commitment or recipient.
type Event struct {
	Seq      uint64    // Seq is the position in the log, starting at 1
	Kind     EventKind // Kind identifies the event
	Time     int64     // Time is the logical time of the operation
	Actor    Address   // Actor is the caller
	Subject  [32]byte  // Subject is what the event is about
	Target   [32]byte  // Target is the destination of the change
	Round    uint64    // Round is the recovery round, when relevant
	Amount   uint64    // Amount is a value or a count, when relevant
	Deadline int64     // Deadline is the removal eligibility time for queue events
	Data     []byte    // Data carries call output or asset payload
}

// Sink receives committed events.
type Sink interface {
	Publish(e Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(e Event)

// Publish calls f.
func (f SinkFunc) Publish(e Event) {
	f(e)
}

// Marshal encodes the event as a FlatBuffers Event table.
func (e *Event) Marshal() []byte {
	builder := flatbuffers.NewBuilder(128 + len(e.Data))

	actorVec := builder.CreateByteVector(e.Actor[:])
	subjectVec := builder.CreateByteVector(e.Subject[:])
	targetVec := builder.CreateByteVector(e.Target[:])

	var dataVec flatbuffers.UOffsetT
	if len(e.Data) > 0 {
		dataVec = builder.CreateByteVector(e.Data)
	}

	types.EventStart(builder)
	types.EventAddSeq(builder, e.Seq)
	types.EventAddKind(builder, byte(e.Kind))
	types.EventAddTime(builder, e.Time)
	types.EventAddActor(builder, actorVec)
	types.EventAddSubject(builder, subjectVec)
	types.EventAddTarget(builder, targetVec)
	types.EventAddRound(builder, e.Round)
	types.EventAddAmount(builder, e.Amount)
	types.EventAddDeadline(builder, e.Deadline)
	if dataVec != 0 {
		types.EventAddData(builder, dataVec)
	}
	offset := types.EventEnd(builder)

	builder.Finish(offset)

	return builder.FinishedBytes()
}

// UnmarshalEvent decodes a FlatBuffers Event table.
func UnmarshalEvent(data []byte) (e Event, retErr error) {
	// FlatBuffers panics on malformed data, recover gracefully
	defer func() {
		if r := recover(); r != nil {
			retErr = fmt.Errorf("malformed event data")
		}
	}()

	if len(data) < 8 {
		return Event{}, fmt.Errorf("event data too short")
	}

	fb := types.GetRootAsEvent(data, 0)

	e = Event{
		Seq:      fb.Seq(),
		Kind:     EventKind(fb.Kind()),
		Time:     fb.Time(),
		Round:    fb.Round(),
		Amount:   fb.Amount(),
		Deadline: fb.Deadline(),
	}

	copy32(e.Actor[:], fb.ActorBytes())
	copy32(e.Subject[:], fb.SubjectBytes())
	copy32(e.Target[:], fb.TargetBytes())

	if d := fb.DataBytes(); len(d) > 0 {
		e.Data = make([]byte, len(d))
		copy(e.Data, d)
	}

	return e, nil
}

// copy32 copies src into dst when it has the expected 32-byte length.
func copy32(dst, src []byte) {
	if len(src) == 32 {
		copy(dst, src)
	}
}
