package api

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"GuardVault/internal/dispatch"
	"GuardVault/internal/logger"
	"GuardVault/internal/wallet"
)

const (
	// maxTxSize is the maximum transaction size in bytes.
	maxTxSize = 1 << 20 // 1 MB

	// defaultEventLimit is the page size of GET /events without a limit.
	defaultEventLimit = 100

	// maxEventLimit caps the page size of GET /events.
	maxEventLimit = 1000
)

// TxSubmitter validates and applies signed transactions.
type TxSubmitter interface {
	Submit(ctx context.Context, data []byte) (*dispatch.Result, error)
}

// VaultReader exposes committed vault state.
type VaultReader interface {
	Status() (wallet.Status, error)
	IsGuardian(c wallet.Commitment) (bool, error)
	GuardianRecovery(c wallet.Commitment) (wallet.Vote, bool, error)
	RemovalDeadline(c wallet.Commitment) (int64, error)
	NewOwnerVoteCount(round uint64, candidate wallet.Address) (uint64, error)
	Events(from uint64, limit int) ([]wallet.Event, error)
}

// SnapshotProvider exports a compressed state snapshot.
type SnapshotProvider interface {
	Snapshot() ([]byte, error)
}

// Server is the HTTP API server.
type Server struct {
	addr      string           // addr is the HTTP listen address
	submitter TxSubmitter      // submitter applies transactions to the vault
	vault     VaultReader      // vault answers state queries
	snapshots SnapshotProvider // snapshots exports state, may be nil
	server    *http.Server     // server is the underlying HTTP server
}

// New creates a new HTTP API server.
func New(addr string, submitter TxSubmitter, vault VaultReader, snapshots SnapshotProvider) *Server {
	return &Server{
		addr:      addr,
		submitter: submitter,
		vault:     vault,
		snapshots: snapshots,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tx", s.handleSubmitTx)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /guardians/{commitment}", s.handleGuardian)
	mux.HandleFunc("GET /votes/{round}/{candidate}", s.handleVotes)
	mux.HandleFunc("GET /removals/{commitment}", s.handleRemoval)
	mux.HandleFunc("GET /events", s.handleEvents)
	mux.HandleFunc("GET /snapshot", s.handleSnapshot)

	return mux
}

// Start starts the HTTP server in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("http api started", "addr", s.addr)

		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// handleSubmitTx handles POST /tx requests.
func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	// Read transaction bytes
	body, err := io.ReadAll(io.LimitReader(r.Body, maxTxSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty transaction")
		return
	}

	res, err := s.submitter.Submit(r.Context(), body)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TxResponse{
		Hash:     res.Hash.String(),
		Function: res.Function,
		Output:   hex.EncodeToString(res.Output),
	})
}

// handleHealth handles GET /health requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleStatus handles GET /status requests.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.vault.Status()
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// handleGuardian handles GET /guardians/{commitment} requests.
func (s *Server) handleGuardian(w http.ResponseWriter, r *http.Request) {
	c, err := wallet.ParseCommitment(r.PathValue("commitment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid commitment: %v", err))
		return
	}

	isGuardian, err := s.vault.IsGuardian(c)
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := GuardianResponse{Commitment: c, Guardian: isGuardian}

	vote, ok, err := s.vault.GuardianRecovery(c)
	if err != nil {
		writeFailure(w, err)
		return
	}

	if ok {
		resp.Vote = &VoteResponse{Candidate: vote.Candidate, Round: vote.Round, Consumed: vote.Consumed}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleVotes handles GET /votes/{round}/{candidate} requests.
func (s *Server) handleVotes(w http.ResponseWriter, r *http.Request) {
	round, err := strconv.ParseUint(r.PathValue("round"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid round")
		return
	}

	candidate, err := wallet.ParseAddress(r.PathValue("candidate"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid candidate: %v", err))
		return
	}

	count, err := s.vault.NewOwnerVoteCount(round, candidate)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, TallyResponse{Round: round, Candidate: candidate, Count: count})
}

// handleRemoval handles GET /removals/{commitment} requests.
func (s *Server) handleRemoval(w http.ResponseWriter, r *http.Request) {
	c, err := wallet.ParseCommitment(r.PathValue("commitment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid commitment: %v", err))
		return
	}

	deadline, err := s.vault.RemovalDeadline(c)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, RemovalResponse{Commitment: c, Queued: deadline > 0, Deadline: deadline})
}

// handleEvents handles GET /events?from=N&limit=M requests.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from, err := queryUint(r, "from", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}

	limit, err := queryUint(r, "limit", defaultEventLimit)
	if err != nil || limit == 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}

	limit = min(limit, maxEventLimit)

	events, err := s.vault.Events(from, int(limit))
	if err != nil {
		writeFailure(w, err)
		return
	}

	resp := make([]EventResponse, len(events))
	for i, e := range events {
		resp[i] = NewEventResponse(e)
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSnapshot handles GET /snapshot requests.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		writeError(w, http.StatusServiceUnavailable, "snapshots not available")
		return
	}

	data, err := s.snapshots.Snapshot()
	if err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zstd")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// queryUint parses an optional unsigned query parameter.
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}

	return strconv.ParseUint(v, 10, 64)
}

// statusFor maps an operation error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dispatch.ErrInvalidTx),
		errors.Is(err, dispatch.ErrUnknownFunction),
		errors.Is(err, dispatch.ErrUnexpectedValue):
		return http.StatusBadRequest
	}

	switch wallet.KindOf(err) {
	case wallet.KindAuthorization:
		return http.StatusForbidden
	case wallet.KindState:
		return http.StatusConflict
	case wallet.KindValidation:
		return http.StatusUnprocessableEntity
	case wallet.KindTimelock:
		return http.StatusTooEarly
	}

	return http.StatusInternalServerError
}

// writeFailure writes an operation error with its mapped status.
func writeFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)

	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}

	resp := ErrorResponse{Error: err.Error()}
	if k := wallet.KindOf(err); k != 0 {
		resp.Kind = k.String()
	}

	writeJSON(w, status, resp)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}
