// Package client implements the broker's client façade: per-destination
// handles that invoke a backend (in-process manager or remote
// transport), transaction-per-block orchestration via an explicit Tx
// value rather than thread-local state, and a pluggable
// body-marshalling boundary around the manager's opaque []byte
// bodies.
package client

import (
	"time"

	"github.com/assaf/reliable-msg/internal/message"
)

// Backend is the operation set a Client drives, implemented by both
// *manager.Manager (in-process) and *transport.Client (remote), so
// either can be swapped in without touching the façade.
type Backend interface {
	Put(queue string, body []byte, headers message.Headers, tid string) (string, error)
	Publish(topic string, body []byte, headers message.Headers, tid string) (string, error)
	List(queue string) ([]message.Headers, error)
	Dequeue(queue string, sel message.Selector, tid string) (*message.Message, error)
	Retrieve(topic, seenID string, sel message.Selector, tid string) (*message.Message, error)
	Begin(timeout time.Duration) (string, error)
	Commit(tid string) error
	Abort(tid string) error
}

// DefaultTxTimeout is used by Begin/WithTransaction when the Client
// was not configured with a different one.
const DefaultTxTimeout = 30 * time.Second

// Client is the top-level façade a program holds; destination handles
// (Queue, Topic) are obtained from it.
type Client struct {
	backend   Backend
	txTimeout time.Duration
	codec     Codec
}

// Option configures a Client at construction.
type Option func(*Client)

// WithTxTimeout overrides the duration passed to Begin by
// WithTransaction and Client.Begin.
func WithTxTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.txTimeout = d
		}
	}
}

// WithCodec overrides the body marshalling codec; defaults to JSON.
func WithCodec(codec Codec) Option {
	return func(c *Client) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// New builds a Client around backend.
func New(backend Backend, opts ...Option) *Client {
	c := &Client{backend: backend, txTimeout: DefaultTxTimeout, codec: JSONCodec{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Queue returns a handle bound to the named queue.
func (c *Client) Queue(name string) *QueueHandle {
	return &QueueHandle{client: c, name: name}
}

// Topic returns a handle bound to the named topic.
func (c *Client) Topic(name string) *TopicHandle {
	return &TopicHandle{client: c, name: name}
}

// Tx is an explicit handle to an in-flight transaction, passed
// through to Put/Get/Publish/Retrieve calls that should be staged
// rather than applied immediately. It is an ordinary value threaded
// by the caller, not state scoped to the current goroutine.
type Tx struct {
	client *Client
	id     string
}

// Begin starts a transaction with the client's configured timeout.
func (c *Client) Begin() (*Tx, error) {
	return c.BeginTimeout(c.txTimeout)
}

// BeginTimeout starts a transaction with an explicit timeout.
func (c *Client) BeginTimeout(timeout time.Duration) (*Tx, error) {
	id, err := c.backend.Begin(timeout)
	if err != nil {
		return nil, err
	}
	return &Tx{client: c, id: id}, nil
}

// Commit applies everything staged under tx.
func (tx *Tx) Commit() error {
	return tx.client.backend.Commit(tx.id)
}

// Abort discards everything staged under tx and requeues any
// in-flight gets with their redelivery counter incremented; a
// once-delivery get stays in the DLQ instead.
func (tx *Tx) Abort() error {
	return tx.client.backend.Abort(tx.id)
}

// WithTransaction begins a transaction, runs fn, and commits on a nil
// return or aborts otherwise, including on panic, which it recovers
// from just long enough to abort before re-panicking, so the
// transaction never leaks past the block.
func (c *Client) WithTransaction(fn func(tx *Tx) error) error {
	tx, err := c.Begin()
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if done {
			return
		}
		if r := recover(); r != nil {
			_ = tx.Abort()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		done = true
		_ = tx.Abort()
		return err
	}
	done = true
	return tx.Commit()
}
