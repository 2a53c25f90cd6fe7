package wallet

import (
	"errors"
	"fmt"
)

// Kind classifies a rejected operation.
// A Kind is itself an error so that errors.Is(err, KindTimelock) works.
type Kind uint8

const (
	// KindAuthorization means the caller is not the owner or not a current guardian.
	KindAuthorization Kind = iota + 1

	// KindState means the operation was invoked in the wrong recovery mode.
	KindState

	// KindValidation means the arguments or stored votes do not satisfy the operation.
	KindValidation

	// KindTimelock means a removal is not queued or its delay has not elapsed.
	KindTimelock
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	case KindValidation:
		return "validation"
	case KindTimelock:
		return "timelock"
	default:
		return "unknown"
	}
}

// Error implements error.
func (k Kind) Error() string {
	return k.String() + " error"
}

var (
	ErrNotOwner           = errors.New("caller is not the owner")
	ErrNotGuardian        = errors.New("caller is not a guardian")
	ErrRecovering         = errors.New("vault is in recovery")
	ErrNotRecovering      = errors.New("vault is not in recovery")
	ErrReentrant          = errors.New("reentrant call")
	ErrNoExecutor         = errors.New("no call executor configured")
	ErrAlreadyInitialized = errors.New("vault already initialized")
	ErrNotInitialized     = errors.New("vault not initialized")

	ErrThresholdNotMet   = errors.New("threshold not met")
	ErrVoteMismatch      = errors.New("vote does not match round and candidate")
	ErrVoteConsumed      = errors.New("vote already consumed")
	ErrBelowThreshold    = errors.New("guardian count would fall below threshold")
	ErrDuplicateGuardian = errors.New("duplicate guardian commitment")
	ErrAlreadyGuardian   = errors.New("commitment is already a guardian")
	ErrUnknownGuardian   = errors.New("commitment is not a guardian")
	ErrInvalidThreshold  = errors.New("threshold exceeds guardian count")
	ErrInvalidOwner      = errors.New("owner address is zero")
	ErrDuplicateTx       = errors.New("transaction already applied")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrBalanceOverflow   = errors.New("balance would overflow")

	ErrQueuedForRemoval = errors.New("guardian is queued for removal")
	ErrNotQueued        = errors.New("removal not queued")
	ErrTimelockActive   = errors.New("removal delay has not elapsed")
)

// Error is a rejected operation. No state was changed.
type Error struct {
	Op   string // Op is the operation name, e.g. "execute_recovery"
	Kind Kind   // Kind is the taxonomy class
	Err  error  // Err wraps the sentinel and any detail
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the wrapped sentinel.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a Kind target.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the kind of a rejected operation, or 0 for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}

	return 0
}

// reject builds a rejection. The operation name is filled in by apply.
func reject(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// rejectf builds a rejection wrapping sentinel with detail.
func rejectf(kind Kind, sentinel error, format string, args ...any) error {
	return &Error{Kind: kind, Err: fmt.Errorf("%w: "+format, append([]any{sentinel}, args...)...)}
}
