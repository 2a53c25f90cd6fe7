package client

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"GuardVault/internal/api"
	"GuardVault/internal/wallet"
)

// maxResponseSize bounds a response body; snapshots are the largest.
const maxResponseSize = 256 << 20

// APIError is a non-2xx response from the node.
// errors.Is matches it against the wallet.Kind it reports.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Kind    string // Kind is the rejection kind, empty for other failures
	Message string // Message is the server's error text
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("status %d (%s): %s", e.Status, e.Kind, e.Message)
	}

	return fmt.Sprintf("status %d: %s", e.Status, e.Message)
}

// Is matches a wallet.Kind target.
func (e *APIError) Is(target error) bool {
	k, ok := target.(wallet.Kind)
	return ok && e.Kind != "" && k.String() == e.Kind
}

// submitTx sends transaction bytes via POST /tx.
func (c *Client) submitTx(txBytes []byte) (*Receipt, error) {
	resp, err := c.http.Post(
		"http://"+c.nodeAddr+"/tx",
		"application/octet-stream",
		bytes.NewReader(txBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("post tx:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var body api.TxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tx response:\n%w", err)
	}

	return parseReceipt(body)
}

// parseReceipt decodes the hex fields of a tx response.
func parseReceipt(body api.TxResponse) (*Receipt, error) {
	hash, err := wallet.ParseHash(body.Hash)
	if err != nil {
		return nil, fmt.Errorf("invalid tx hash %q:\n%w", body.Hash, err)
	}

	output, err := hex.DecodeString(body.Output)
	if err != nil {
		return nil, fmt.Errorf("invalid output hex:\n%w", err)
	}

	return &Receipt{Hash: hash, Function: body.Function, Output: output}, nil
}

// get performs a GET request and decodes the JSON response.
func (c *Client) get(path string, result any) error {
	resp, err := c.http.Get("http://" + c.nodeAddr + path)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", path, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// getRaw performs a GET request and returns the body.
func (c *Client) getRaw(path string) ([]byte, error) {
	resp, err := c.http.Get("http://" + c.nodeAddr + path)
	if err != nil {
		return nil, fmt.Errorf("GET %s:\n%w", path, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	return io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
}

// readAPIError builds an APIError from an error response.
func readAPIError(resp *http.Response) error {
	var body api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		body.Error = http.StatusText(resp.StatusCode)
	}

	return &APIError{Status: resp.StatusCode, Kind: body.Kind, Message: body.Error}
}
