package network

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"GuardVault/internal/logger"
)

const (
	// defaultReconnectDelay is the default delay between reconnection attempts.
	defaultReconnectDelay = 5 * time.Second

	// maxReconnectDelay is the maximum delay between reconnection attempts.
	maxReconnectDelay = 60 * time.Second

	// defaultMaxPeers bounds the connections a listening node accepts.
	defaultMaxPeers = 64

	// alpnProtocol is the ALPN protocol identifier.
	alpnProtocol = "guardvault/1"
)

// QUIC application error codes sent when a connection is closed.
const (
	codeClosed   quic.ApplicationErrorCode = 0
	codeSetup    quic.ApplicationErrorCode = 1
	codeRejected quic.ApplicationErrorCode = 2
)

var (
	// ErrPeerNotAllowed is returned when a key outside the allowlist connects.
	ErrPeerNotAllowed = errors.New("peer not allowed")

	// ErrTooManyPeers is returned when the peer limit is reached.
	ErrTooManyPeers = errors.New("too many peers")
)

// Handlers receive connection events. Any of them may be nil.
// They are fixed when the node is created.
type Handlers struct {
	Connect    func(*Peer)                          // Connect is called when a peer connects
	Message    func(*Peer, []byte)                 // Message is called for each new one-way message
	Disconnect func(*Peer)                         // Disconnect is called when a peer goes away
	Request    func(*Peer, []byte) ([]byte, error) // Request answers a request stream
}

// Config holds the configuration for a Node.
type Config struct {
	PrivateKey     ed25519.PrivateKey  // PrivateKey is the node's ed25519 private key
	ListenAddr     string              // ListenAddr is the address to listen on (e.g., ":9000"), empty for dial-only nodes
	ReconnectDelay time.Duration       // ReconnectDelay is the initial delay between reconnection attempts
	DedupTTL       time.Duration       // DedupTTL is how long a received message is remembered, 0 for the default
	MaxPeers       int                 // MaxPeers bounds incoming connections, 0 for the default
	AllowedPeers   []ed25519.PublicKey // AllowedPeers restricts incoming connections to these keys; empty allows any
	Handlers       Handlers            // Handlers receive connection events
}

// Node is a QUIC endpoint. The vault daemon listens and monitors dial it;
// dialed peers are reconnected with backoff when the connection drops.
type Node struct {
	privateKey ed25519.PrivateKey // privateKey is the node's ed25519 private key
	publicKey  ed25519.PublicKey  // publicKey is the node's ed25519 public key
	listenAddr string             // listenAddr is the address to listen on
	tlsConfig  *tls.Config        // tlsConfig is the TLS configuration
	quicConfig *quic.Config       // quicConfig is the QUIC configuration
	handlers   Handlers           // handlers receive connection events

	listener *quic.Listener // listener is the QUIC listener

	maxPeers int                 // maxPeers bounds incoming peers
	allowed  map[string]struct{} // allowed holds hex keys of permitted incoming peers, nil for any

	mu         sync.RWMutex      // mu protects peers and knownAddrs
	peers      map[string]*Peer  // peers maps public key hex to peer
	knownAddrs map[string]string // knownAddrs maps public key hex to dialed address (for reconnection)

	reconnectDelay time.Duration // reconnectDelay is the initial reconnection delay

	dedup *Dedup // dedup drops messages delivered twice, e.g. backfilled and live events

	ctx    context.Context    // ctx is the node's context
	cancel context.CancelFunc // cancel cancels the node's context
	wg     sync.WaitGroup     // wg waits for goroutines to finish
	once   sync.Once          // once guards Close
}

// NewNode creates a new network node.
func NewNode(cfg Config) (*Node, error) {
	if cfg.PrivateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	tlsConfig, err := newTLSConfig(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("tls config:\n%w", err)
	}

	n := &Node{
		privateKey: cfg.PrivateKey,
		publicKey:  cfg.PrivateKey.Public().(ed25519.PublicKey),
		listenAddr: cfg.ListenAddr,
		tlsConfig:  tlsConfig,
		quicConfig: &quic.Config{
			MaxIdleTimeout:  30 * time.Second,
			KeepAlivePeriod: 10 * time.Second,
		},
		handlers:       cfg.Handlers,
		maxPeers:       cfg.MaxPeers,
		peers:          make(map[string]*Peer),
		knownAddrs:     make(map[string]string),
		reconnectDelay: cfg.ReconnectDelay,
		dedup:          NewDedup(cfg.DedupTTL),
	}

	if n.maxPeers <= 0 {
		n.maxPeers = defaultMaxPeers
	}

	if n.reconnectDelay <= 0 {
		n.reconnectDelay = defaultReconnectDelay
	}

	if len(cfg.AllowedPeers) > 0 {
		n.allowed = make(map[string]struct{}, len(cfg.AllowedPeers))
		for _, k := range cfg.AllowedPeers {
			n.allowed[hex.EncodeToString(k)] = struct{}{}
		}
	}

	n.ctx, n.cancel = context.WithCancel(context.Background())

	return n, nil
}

// PublicKey returns the node's public key.
func (n *Node) PublicKey() ed25519.PublicKey {
	return n.publicKey
}

// Addr returns the listener's address. Returns empty string if not started.
func (n *Node) Addr() string {
	if n.listener == nil {
		return ""
	}

	return n.listener.Addr().String()
}

// Start starts the node and begins accepting connections.
func (n *Node) Start() error {
	if n.listenAddr == "" {
		return fmt.Errorf("listen address is required")
	}

	listener, err := quic.ListenAddr(n.listenAddr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return fmt.Errorf("listen:\n%w", err)
	}

	n.listener = listener

	n.wg.Add(1)
	go n.acceptLoop()

	return nil
}

// Connect connects to a remote node at the given address.
func (n *Node) Connect(addr string) (*Peer, error) {
	conn, err := quic.DialAddr(n.ctx, addr, n.tlsConfig, n.quicConfig)
	if err != nil {
		return nil, fmt.Errorf("dial:\n%w", err)
	}

	peer, err := n.setupPeer(conn, addr, true)
	if err != nil {
		conn.CloseWithError(codeSetup, "setup failed")
		return nil, err
	}

	return peer, nil
}

// Broadcast sends a message to all connected peers. It returns the last
// send error; a failing peer does not stop delivery to the others.
func (n *Node) Broadcast(data []byte) error {
	var lastErr error

	for _, p := range n.Peers() {
		if err := p.Send(data); err != nil {
			lastErr = err
		}
	}

	return lastErr
}

// Peers returns a list of all connected peers.
func (n *Node) Peers() []*Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()

	peers := make([]*Peer, 0, len(n.peers))
	for _, p := range n.peers {
		peers = append(peers, p)
	}

	return peers
}

// GetPeer returns the peer for the given public key, or nil if not connected.
func (n *Node) GetPeer(pubkey ed25519.PublicKey) *Peer {
	n.mu.RLock()
	defer n.mu.RUnlock()

	return n.peers[hex.EncodeToString(pubkey)]
}

// Forget stops reconnecting to the peer with the given public key.
func (n *Node) Forget(pubkey ed25519.PublicKey) {
	n.mu.Lock()
	delete(n.knownAddrs, hex.EncodeToString(pubkey))
	n.mu.Unlock()
}

// Close stops the node and closes all connections. It is safe to call
// more than once.
func (n *Node) Close() error {
	n.once.Do(func() {
		n.cancel()

		if n.listener != nil {
			n.listener.Close()
		}

		n.mu.Lock()
		peers := n.peers
		n.peers = make(map[string]*Peer)
		n.mu.Unlock()

		for _, p := range peers {
			p.Close()
		}

		n.wg.Wait()
	})

	return nil
}

// acceptLoop accepts incoming connections.
func (n *Node) acceptLoop() {
	defer n.wg.Done()

	for {
		conn, err := n.listener.Accept(n.ctx)
		if err != nil {
			return // Listener closed
		}

		go n.handleIncoming(conn)
	}
}

// handleIncoming admits an incoming connection.
func (n *Node) handleIncoming(conn *quic.Conn) {
	peer, err := n.setupPeer(conn, conn.RemoteAddr().String(), false)
	if err != nil {
		code := codeSetup
		if errors.Is(err, ErrPeerNotAllowed) || errors.Is(err, ErrTooManyPeers) {
			code = codeRejected
		}

		logger.Warn("peer refused", "addr", conn.RemoteAddr().String(), "error", err)
		conn.CloseWithError(code, err.Error())

		return
	}

	if n.handlers.Connect != nil {
		n.handlers.Connect(peer)
	}
}

// setupPeer authenticates a QUIC connection and registers its peer.
// Only dialed peers are remembered for reconnection.
func (n *Node) setupPeer(conn *quic.Conn, addr string, dialed bool) (*Peer, error) {
	pubKey, err := peerKey(conn.ConnectionState().TLS)
	if err != nil {
		return nil, fmt.Errorf("extract public key:\n%w", err)
	}

	keyHex := hex.EncodeToString(pubKey)

	peer := &Peer{
		publicKey: pubKey,
		address:   addr,
		conn:      conn,
		node:      n,
		dialed:    dialed,
	}

	n.mu.Lock()

	if !dialed {
		if err := n.admit(keyHex); err != nil {
			n.mu.Unlock()
			return nil, err
		}
	}

	n.peers[keyHex] = peer
	if dialed {
		n.knownAddrs[keyHex] = addr
	}

	n.mu.Unlock()

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		peer.receiveLoop()
	}()

	return peer, nil
}

// admit checks an incoming key against the allowlist and the peer limit.
// Caller holds mu.
func (n *Node) admit(keyHex string) error {
	if n.allowed != nil {
		if _, ok := n.allowed[keyHex]; !ok {
			return fmt.Errorf("%s: %w", keyHex[:16], ErrPeerNotAllowed)
		}
	}

	// A reconnecting peer replaces its old entry.
	if _, exists := n.peers[keyHex]; !exists && len(n.peers) >= n.maxPeers {
		return fmt.Errorf("limit %d: %w", n.maxPeers, ErrTooManyPeers)
	}

	return nil
}

// handlePeerDisconnect handles a peer disconnection.
func (n *Node) handlePeerDisconnect(p *Peer) {
	keyHex := hex.EncodeToString(p.publicKey)

	n.mu.Lock()
	if n.peers[keyHex] == p {
		delete(n.peers, keyHex)
	}
	n.mu.Unlock()

	if n.handlers.Disconnect != nil {
		n.handlers.Disconnect(p)
	}

	if !p.dialed || n.ctx.Err() != nil {
		return
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.reconnectPeer(keyHex)
	}()
}

// reconnectPeer attempts to reconnect to a peer with exponential backoff.
func (n *Node) reconnectPeer(keyHex string) {
	delay := n.reconnectDelay

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(delay):
		}

		n.mu.RLock()
		addr, known := n.knownAddrs[keyHex]
		_, connected := n.peers[keyHex]
		n.mu.RUnlock()

		if !known || connected {
			return
		}

		peer, err := n.Connect(addr)
		if err == nil {
			logger.Info("reconnected", "addr", addr)

			if n.handlers.Connect != nil {
				n.handlers.Connect(peer)
			}

			return
		}

		logger.Debug("reconnect failed", "addr", addr, "retry", delay, "error", err)

		delay = min(delay*2, maxReconnectDelay)
	}
}

// request answers a request stream.
func (n *Node) request(p *Peer, data []byte) ([]byte, error) {
	if n.handlers.Request == nil {
		return nil, fmt.Errorf("no request handler registered")
	}

	return n.handlers.Request(p, data)
}

// deliver hands a one-way message to the handler unless it is a duplicate.
func (n *Node) deliver(p *Peer, data []byte) {
	if !n.dedup.Check(data) {
		logger.Debug("dedup filtered", "peer", p.address, "bytes", len(data))
		return
	}

	if n.handlers.Message != nil {
		n.handlers.Message(p, data)
	}
}
