package network

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"

	"GuardVault/internal/logger"
	"GuardVault/internal/wallet"
)

// ErrNotConnected is returned when the monitor has no live connection.
var ErrNotConnected = errors.New("not connected to vault")

// TxReceipt is the outcome of a transaction accepted by the vault.
type TxReceipt struct {
	Hash     [32]byte // Hash identifies the transaction
	Function string   // Function is the operation that ran
	Output   []byte   // Output is call output or the asset acknowledgement
}

// RemoteError is a rejection reported by the vault.
// errors.Is matches it against a wallet.Kind.
type RemoteError struct {
	Kind    wallet.Kind
	Message string
}

// Error implements error.
func (e *RemoteError) Error() string {
	return e.Message
}

// Is matches a wallet.Kind target.
func (e *RemoteError) Is(target error) bool {
	k, ok := target.(wallet.Kind)
	return ok && e.Kind != 0 && k == e.Kind
}

// Monitor is a dial-only node following a vault's event feed.
type Monitor struct {
	node    *Node
	onEvent func(wallet.Event)

	mu     sync.RWMutex
	server ed25519.PublicKey // server is the vault node's key once connected
}

// NewMonitor creates a monitor. onEvent receives each event once, possibly
// out of sequence order and from several goroutines.
func NewMonitor(key ed25519.PrivateKey, onEvent func(wallet.Event)) (*Monitor, error) {
	m := &Monitor{onEvent: onEvent}

	node, err := NewNode(Config{
		PrivateKey: key,
		Handlers:   Handlers{Message: m.handleMessage},
	})
	if err != nil {
		return nil, err
	}

	m.node = node

	return m, nil
}

// Connect dials the vault node at addr. The connection is re-established
// with backoff if it drops.
func (m *Monitor) Connect(addr string) error {
	peer, err := m.node.Connect(addr)
	if err != nil {
		return fmt.Errorf("connect %s:\n%w", addr, err)
	}

	m.mu.Lock()
	m.server = peer.PublicKey()
	m.mu.Unlock()

	logger.Info("connected to vault", "addr", addr)

	return nil
}

// SubmitTx sends a signed transaction to the vault.
func (m *Monitor) SubmitTx(ctx context.Context, tx []byte) (*TxReceipt, error) {
	req := make([]byte, 1+len(tx))
	req[0] = reqSubmitTx
	copy(req[1:], tx)

	body, err := m.request(ctx, req)
	if err != nil {
		return nil, err
	}

	return decodeTxReply(body)
}

// Backfill fetches up to limit persisted events from sequence from and
// delivers the ones not seen yet to the event handler.
func (m *Monitor) Backfill(ctx context.Context, from uint64, limit uint32) ([]wallet.Event, error) {
	body, err := m.request(ctx, encodeEventsRequest(from, limit))
	if err != nil {
		return nil, err
	}

	events, err := decodeEventsReply(body)
	if err != nil {
		return nil, err
	}

	for i := range events {
		m.deliver(encodeEventMessage(&events[i]), events[i])
	}

	return events, nil
}

// Close disconnects and stops reconnecting.
func (m *Monitor) Close() error {
	return m.node.Close()
}

// request sends req to the vault and unwraps the reply.
func (m *Monitor) request(ctx context.Context, req []byte) ([]byte, error) {
	m.mu.RLock()
	server := m.server
	m.mu.RUnlock()

	if server == nil {
		return nil, ErrNotConnected
	}

	peer := m.node.GetPeer(server)
	if peer == nil {
		return nil, ErrNotConnected
	}

	reply, err := peer.Request(ctx, req)
	if err != nil {
		return nil, err
	}

	return decodeReply(reply)
}

// handleMessage delivers a broadcast event. Duplicates were already
// filtered by the node.
func (m *Monitor) handleMessage(p *Peer, msg []byte) {
	e, err := decodeEventMessage(msg)
	if err != nil {
		logger.Debug("invalid feed message", "peer", p.Address(), "error", err)
		return
	}

	if m.onEvent != nil {
		m.onEvent(e)
	}
}

// deliver hands a backfilled event to the handler unless the live feed
// already delivered it.
func (m *Monitor) deliver(msg []byte, e wallet.Event) {
	if !m.node.dedup.Check(msg) {
		return
	}

	if m.onEvent != nil {
		m.onEvent(e)
	}
}
