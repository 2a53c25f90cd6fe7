package api

import (
	"encoding/hex"

	"GuardVault/internal/wallet"
)

// Response bodies. They are shared with the Go client.

// TxResponse is returned by POST /tx.
type TxResponse struct {
	Hash     string `json:"hash"`
	Function string `json:"function"`
	Output   string `json:"output,omitempty"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// VoteResponse is a guardian's latest vote.
type VoteResponse struct {
	Candidate wallet.Address `json:"candidate"`
	Round     uint64         `json:"round"`
	Consumed  bool           `json:"consumed"`
}

// GuardianResponse is returned by GET /guardians/{commitment}.
type GuardianResponse struct {
	Commitment wallet.Commitment `json:"commitment"`
	Guardian   bool              `json:"guardian"`
	Vote       *VoteResponse     `json:"vote,omitempty"`
}

// TallyResponse is returned by GET /votes/{round}/{candidate}.
type TallyResponse struct {
	Round     uint64         `json:"round"`
	Candidate wallet.Address `json:"candidate"`
	Count     uint64         `json:"count"`
}

// RemovalResponse is returned by GET /removals/{commitment}.
type RemovalResponse struct {
	Commitment wallet.Commitment `json:"commitment"`
	Queued     bool              `json:"queued"`
	Deadline   int64             `json:"deadline"`
}

// EventResponse is one audit event.
type EventResponse struct {
	Seq      uint64         `json:"seq"`
	Kind     string         `json:"kind"`
	Time     int64          `json:"time"`
	Actor    wallet.Address `json:"actor"`
	Subject  string         `json:"subject"`
	Target   string         `json:"target"`
	Round    uint64         `json:"round,omitempty"`
	Amount   uint64         `json:"amount,omitempty"`
	Deadline int64          `json:"deadline,omitempty"`
	Data     string         `json:"data,omitempty"`
}

// NewEventResponse renders e for JSON output.
func NewEventResponse(e wallet.Event) EventResponse {
	return EventResponse{
		Seq:      e.Seq,
		Kind:     e.Kind.String(),
		Time:     e.Time,
		Actor:    e.Actor,
		Subject:  hex.EncodeToString(e.Subject[:]),
		Target:   hex.EncodeToString(e.Target[:]),
		Round:    e.Round,
		Amount:   e.Amount,
		Deadline: e.Deadline,
		Data:     hex.EncodeToString(e.Data),
	}
}
