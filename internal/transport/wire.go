// Package transport implements the RPC surface: an HTTP+JSON
// transport exposing the manager's operations, access-control-listed
// by client address, with a handler per method, access-logged, JSON
// request/response bodies.
package transport

import (
	"fmt"

	"github.com/assaf/reliable-msg/internal/message"
)

// selectorWire is the JSON form of a message.Selector travelling over
// the wire: either an equality map or a single id literal. The
// client-side predicate form never reaches the wire; the client
// façade resolves it to an id literal first.
type selectorWire struct {
	Equality message.Headers `json:"equality,omitempty"`
	ID       string          `json:"id,omitempty"`
}

func encodeSelector(sel message.Selector) selectorWire {
	switch s := sel.(type) {
	case message.IDSelector:
		return selectorWire{ID: string(s)}
	case message.EqualitySelector:
		return selectorWire{Equality: message.Headers(s)}
	case message.AnySelector:
		return selectorWire{}
	default:
		return selectorWire{}
	}
}

func decodeSelector(w selectorWire) (message.Selector, error) {
	if w.ID != "" {
		return message.IDSelector(w.ID), nil
	}
	if len(w.Equality) > 0 {
		return message.EqualitySelector(w.Equality), nil
	}
	return message.AnySelector{}, nil
}

type messageWire struct {
	ID      string          `json:"id"`
	Headers message.Headers `json:"headers"`
	Body    []byte          `json:"body"` // JSON base64-encodes []byte
}

func encodeMessage(m *message.Message) *messageWire {
	if m == nil {
		return nil
	}
	return &messageWire{ID: m.ID, Headers: m.Headers, Body: m.Body}
}

func decodeMessage(w *messageWire) *message.Message {
	if w == nil {
		return nil
	}
	return &message.Message{ID: w.ID, Headers: w.Headers, Body: w.Body}
}

type errorWire struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail"`
}

func (e errorWire) asError() error {
	return fmt.Errorf("%s: %s", e.Kind, e.Detail)
}

type putRequest struct {
	Queue   string          `json:"queue"`
	Body    []byte          `json:"body"`
	Headers message.Headers `json:"headers"`
	Tid     string          `json:"tid,omitempty"`
}

type putResponse struct {
	ID string `json:"id"`
}

type publishRequest struct {
	Topic   string          `json:"topic"`
	Body    []byte          `json:"body"`
	Headers message.Headers `json:"headers"`
	Tid     string          `json:"tid,omitempty"`
}

type publishResponse struct {
	ID string `json:"id"`
}

type listRequest struct {
	Queue string `json:"queue"`
}

type listResponse struct {
	Headers []message.Headers `json:"headers"`
}

type dequeueRequest struct {
	Queue    string        `json:"queue"`
	Selector selectorWire  `json:"selector"`
	Tid      string        `json:"tid,omitempty"`
}

type dequeueResponse struct {
	Message *messageWire `json:"message"`
}

type retrieveRequest struct {
	Topic    string       `json:"topic"`
	SeenID   string       `json:"seen_id"`
	Selector selectorWire `json:"selector"`
	Tid      string       `json:"tid,omitempty"`
}

type retrieveResponse struct {
	Message *messageWire `json:"message"`
}

type beginRequest struct {
	TimeoutSec float64 `json:"timeout_sec"`
}

type beginResponse struct {
	Tid string `json:"tid"`
}

type tidRequest struct {
	Tid string `json:"tid"`
}

type emptyResponse struct{}

type statsRequest struct {
	Queues []string `json:"queues"`
}

type statsResponse struct {
	Queues []queueStatsWire `json:"queues"`
}

type queueStatsWire struct {
	Queue        string `json:"queue"`
	Ready        int    `json:"ready"`
	Locked       int    `json:"locked"`
	OldestAgeSec int64  `json:"oldest_age_sec"`
}
