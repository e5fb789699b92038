// Package errs defines the broker's error taxonomy: a small set of
// kinds shared by the store and manager packages, wrapped in a typed
// error carrying both the kind and the underlying cause.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a BrokerError without pinning callers to a Go type
// per error; errors.Is/As still work via sentinel values below.
type Kind string

const (
	KindInvalidArgument      Kind = "invalid_argument"
	KindNoSuchTransaction    Kind = "no_such_transaction"
	KindManagerAlreadyStarted Kind = "manager_already_started"
	KindManagerNotStarted    Kind = "manager_not_started"
	KindStoreUnavailable     Kind = "store_unavailable"
	KindStoreCorrupt         Kind = "store_corrupt"
	KindRemoteUnavailable    Kind = "remote_unavailable"
	KindTransactionAborted   Kind = "transaction_aborted"
)

// BrokerError carries a Kind plus human detail, and unwraps to a
// sentinel so callers can errors.Is against the Kind's sentinel
// without importing this package's constructor.
type BrokerError struct {
	Kind   Kind
	Detail string
	base   error
}

func (e *BrokerError) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *BrokerError) Unwrap() error {
	return e.base
}

// sentinels returned by Unwrap, so errors.Is(err, errs.ErrInvalidArgument)
// works without extracting the *BrokerError first.
var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrNoSuchTransaction     = errors.New("no such transaction")
	ErrManagerAlreadyStarted = errors.New("manager already started")
	ErrManagerNotStarted     = errors.New("manager not started")
	ErrStoreUnavailable      = errors.New("store unavailable")
	ErrStoreCorrupt          = errors.New("store corrupt")
	ErrRemoteUnavailable     = errors.New("remote unavailable")
	ErrTransactionAborted    = errors.New("transaction aborted")
)

var sentinels = map[Kind]error{
	KindInvalidArgument:       ErrInvalidArgument,
	KindNoSuchTransaction:     ErrNoSuchTransaction,
	KindManagerAlreadyStarted: ErrManagerAlreadyStarted,
	KindManagerNotStarted:     ErrManagerNotStarted,
	KindStoreUnavailable:      ErrStoreUnavailable,
	KindStoreCorrupt:          ErrStoreCorrupt,
	KindRemoteUnavailable:     ErrRemoteUnavailable,
	KindTransactionAborted:    ErrTransactionAborted,
}

// New builds a BrokerError of the given kind with a formatted detail.
func New(kind Kind, format string, args ...any) *BrokerError {
	return &BrokerError{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
		base:   sentinels[kind],
	}
}

// Wrap builds a BrokerError of the given kind whose Unwrap chain
// reaches both the kind's sentinel and the supplied cause.
func Wrap(kind Kind, cause error, format string, args ...any) *BrokerError {
	detail := fmt.Sprintf(format, args...)
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", detail, cause)
	}
	return &BrokerError{Kind: kind, Detail: detail, base: joinCause(sentinels[kind], cause)}
}

func joinCause(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	if sentinel == nil {
		return cause
	}
	return fmt.Errorf("%w: %w", sentinel, cause)
}

// As extracts the Kind of err if it is (or wraps) a *BrokerError.
func As(err error) (Kind, bool) {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return "", false
}
