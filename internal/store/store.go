// Package store defines the contract every message-store backend
// (disk, SQL) implements: setup/activate/deactivate lifecycle, an
// atomic transaction primitive, and read paths for queues and topics.
// Backends never interpret locking, DLQ routing, or expiration; that
// is the manager's job (see internal/manager).
package store

import (
	"errors"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
)

var (
	// ErrUnavailable means the backend could not be activated (bad
	// path, unreachable database, lock already held by another process).
	ErrUnavailable = errs.ErrStoreUnavailable
	// ErrCorrupt means a persisted index or body could not be
	// deserialized during recovery.
	ErrCorrupt = errs.ErrStoreCorrupt
	// ErrNotActive means a call was made before Activate or after
	// Deactivate.
	ErrNotActive = errors.New("store: not active")
)

// Insert stages a new message into a queue (Topic=false) or replaces a
// topic's current value (Topic=true).
type Insert struct {
	Destination string
	Topic       bool
	Message     message.Message
}

// Delete stages removal of a message from a queue or topic by id.
type Delete struct {
	Destination string
	Topic       bool
	ID          string
}

// DLQMove stages moving a message, unchanged, from a queue to the DLQ
// as part of the same atomic transaction.
type DLQMove struct {
	From string
	ID   string
}

// Collector is the interface a Transaction callback uses to stage the
// three kinds of pending change. The store applies everything a
// callback stages only if the callback returns nil.
type Collector interface {
	Insert(ins Insert)
	Delete(del Delete)
	MoveToDLQ(mv DLQMove)
}

// MessageStore is the persistence contract shared by every backend.
type MessageStore interface {
	// Setup idempotently creates on-disk/db resources.
	Setup() error
	// Activate acquires exclusive ownership of the backend and loads
	// its index into memory.
	Activate() error
	// Deactivate releases resources acquired by Activate.
	Deactivate() error
	// Transaction invokes fn with a Collector; if fn returns nil, all
	// staged inserts/deletes/DLQ moves are applied atomically. If fn
	// returns an error, or the atomic apply itself fails, the backend
	// reloads its cache from durable storage and the error propagates.
	Transaction(fn func(Collector) error) error
	// GetHeaders returns the current priority-ordered header list for
	// a queue (or topic, as a single-element list).
	GetHeaders(queue string) ([]message.Headers, error)
	// GetMessage returns the first header in queue matching sel, with
	// its body materialized, or nil if none match.
	GetMessage(queue string, sel message.Selector) (*message.Message, error)
	// GetLast returns topic's current message iff its id differs from
	// seenID and it satisfies sel, or nil otherwise.
	GetLast(topic string, seenID string, sel message.Selector) (*message.Message, error)
}
