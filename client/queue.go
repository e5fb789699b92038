package client

import "github.com/assaf/reliable-msg/internal/message"

// QueueHandle is a per-destination handle invoking the manager for
// one named queue.
type QueueHandle struct {
	client *Client
	name   string
}

// Name returns the queue's name.
func (q *QueueHandle) Name() string { return q.name }

func txID(tx *Tx) string {
	if tx == nil {
		return ""
	}
	return tx.id
}

// Put marshals body with the client's codec and stages or commits a
// put into this queue. headers may be nil.
func (q *QueueHandle) Put(tx *Tx, body any, headers message.Headers) (string, error) {
	raw, err := q.client.codec.Marshal(body)
	if err != nil {
		return "", err
	}
	return q.client.backend.Put(q.name, raw, headers, txID(tx))
}

// Message is the client-facing view of a dequeued/retrieved record:
// headers plus a body still in its wire-encoded form, decoded on
// demand via Decode.
type Message struct {
	ID      string
	Headers message.Headers
	body    []byte
	codec   Codec
}

// Decode unmarshals the message body into v using the client's codec.
func (m *Message) Decode(v any) error {
	return m.codec.Unmarshal(m.body, v)
}

// RawBody returns the undecoded body bytes.
func (m *Message) RawBody() []byte { return m.body }

func (c *Client) wrap(msg *message.Message) *Message {
	if msg == nil {
		return nil
	}
	return &Message{ID: msg.ID, Headers: msg.Headers, body: msg.Body, codec: c.codec}
}

// Get dequeues the first message matching an equality-map or
// id-literal selector, the two forms the broker evaluates
// server-side. Pass nil for "any".
func (q *QueueHandle) Get(tx *Tx, sel message.Selector) (*Message, error) {
	if sel == nil {
		sel = message.AnySelector{}
	}
	msg, err := q.client.backend.Dequeue(q.name, sel, txID(tx))
	if err != nil {
		return nil, err
	}
	return q.client.wrap(msg), nil
}

// Predicate is a client-side selector: a pure, side-effect-free
// function over a message's headers and the current epoch-seconds
// clock. The broker never evaluates it; GetWhere resolves it locally
// against List's results before issuing an id-literal Get.
type Predicate func(headers message.Headers, now int64) bool

// GetWhere pulls the queue's header list via List, evaluates pred
// locally against each entry in order, and dequeues the first match
// by id. If no header satisfies pred, GetWhere returns (nil, nil)
// without dequeuing anything (List may still route expired entries).
func (q *QueueHandle) GetWhere(tx *Tx, now func() int64, pred Predicate) (*Message, error) {
	headers, err := q.client.backend.List(q.name)
	if err != nil {
		return nil, err
	}
	nowSec := epochNow(now)
	for _, h := range headers {
		if pred(h, nowSec) {
			return q.Get(tx, message.IDSelector(h.ID()))
		}
	}
	return nil, nil
}

func epochNow(now func() int64) int64 {
	if now != nil {
		return now()
	}
	return message.NowUnix()
}

// List returns the queue's current priority-ordered header list,
// routing expired/exhausted entries as a side effect.
func (q *QueueHandle) List() ([]message.Headers, error) {
	return q.client.backend.List(q.name)
}
