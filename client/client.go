package client

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"GuardVault/internal/api"
	"GuardVault/internal/wallet"
)

// Client talks to a GuardVault node over its HTTP API.
type Client struct {
	nodeAddr string       // nodeAddr is the HTTP address (e.g. "127.0.0.1:8080")
	http     *http.Client // http carries the requests
}

// Account holds a keypair and signs transactions as its address.
type Account struct {
	privKey ed25519.PrivateKey // privKey is the Ed25519 private key
	pubKey  ed25519.PublicKey  // pubKey is the Ed25519 public key
	nonce   atomic.Uint64      // nonce makes every transaction hash unique
}

// Receipt is the outcome of an applied transaction.
type Receipt struct {
	Hash     wallet.Hash // Hash identifies the transaction
	Function string      // Function is the operation that ran
	Output   []byte      // Output is call output or the asset acknowledgement
}

// NewClient creates a client for the node at nodeAddr.
func NewClient(nodeAddr string) *Client {
	return &Client{
		nodeAddr: nodeAddr,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// NewAccount creates an account with a random Ed25519 keypair.
func NewAccount() *Account {
	_, priv, _ := ed25519.GenerateKey(rand.Reader)
	return AccountFromKey(priv)
}

// AccountFromKey wraps an existing private key. The nonce is seeded from the
// clock so separate processes signing with one key do not collide.
func AccountFromKey(priv ed25519.PrivateKey) *Account {
	a := &Account{
		privKey: priv,
		pubKey:  priv.Public().(ed25519.PublicKey),
	}
	a.nonce.Store(uint64(time.Now().UnixNano()))

	return a
}

// Address returns the account's vault address.
func (a *Account) Address() wallet.Address {
	var addr wallet.Address
	copy(addr[:], a.pubKey)

	return addr
}

// Commitment returns the guardian commitment of the account.
func (a *Account) Commitment() wallet.Commitment {
	return wallet.Commit(a.Address())
}

// nextNonce returns a fresh nonce.
func (a *Account) nextNonce() uint64 {
	return a.nonce.Add(1)
}

// Health checks that the node is serving.
func (c *Client) Health() error {
	var resp map[string]string
	return c.get("/health", &resp)
}

// Status returns the vault summary.
func (c *Client) Status() (*wallet.Status, error) {
	var st wallet.Status
	if err := c.get("/status", &st); err != nil {
		return nil, fmt.Errorf("get status:\n%w", err)
	}

	return &st, nil
}

// Guardian returns the membership and latest vote of a commitment.
func (c *Client) Guardian(commitment wallet.Commitment) (*api.GuardianResponse, error) {
	var resp api.GuardianResponse
	if err := c.get("/guardians/"+commitment.String(), &resp); err != nil {
		return nil, fmt.Errorf("get guardian:\n%w", err)
	}

	return &resp, nil
}

// VoteCount returns the tally for candidate in round.
func (c *Client) VoteCount(round uint64, candidate wallet.Address) (uint64, error) {
	var resp api.TallyResponse

	path := "/votes/" + strconv.FormatUint(round, 10) + "/" + candidate.String()
	if err := c.get(path, &resp); err != nil {
		return 0, fmt.Errorf("get votes:\n%w", err)
	}

	return resp.Count, nil
}

// RemovalDeadline returns when commitment becomes removable, 0 if not queued.
func (c *Client) RemovalDeadline(commitment wallet.Commitment) (int64, error) {
	var resp api.RemovalResponse
	if err := c.get("/removals/"+commitment.String(), &resp); err != nil {
		return 0, fmt.Errorf("get removal:\n%w", err)
	}

	return resp.Deadline, nil
}

// Events returns up to limit audit events starting at sequence from.
func (c *Client) Events(from uint64, limit int) ([]api.EventResponse, error) {
	q := url.Values{}
	q.Set("from", strconv.FormatUint(from, 10))
	q.Set("limit", strconv.Itoa(limit))

	var resp []api.EventResponse
	if err := c.get("/events?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("get events:\n%w", err)
	}

	return resp, nil
}

// Snapshot downloads the compressed state snapshot.
func (c *Client) Snapshot() ([]byte, error) {
	data, err := c.getRaw("/snapshot")
	if err != nil {
		return nil, fmt.Errorf("get snapshot:\n%w", err)
	}

	return data, nil
}
