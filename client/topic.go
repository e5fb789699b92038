package client

import "github.com/assaf/reliable-msg/internal/message"

// TopicHandle is a per-destination handle invoking the manager for
// one named topic.
type TopicHandle struct {
	client *Client
	name   string
}

// Name returns the topic's name.
func (t *TopicHandle) Name() string { return t.name }

// Publish marshals body and replaces the topic's current value.
// delivery/priority/max_deliveries headers are not meaningful for
// topics and should not be set.
func (t *TopicHandle) Publish(tx *Tx, body any, headers message.Headers) (string, error) {
	raw, err := t.client.codec.Marshal(body)
	if err != nil {
		return "", err
	}
	return t.client.backend.Publish(t.name, raw, headers, txID(tx))
}

// Retrieve returns the topic's current message iff its id differs
// from the last id this caller observed. Callers track seenID
// themselves between calls, e.g. by keeping the returned Message.ID.
func (t *TopicHandle) Retrieve(tx *Tx, seenID string) (*Message, error) {
	msg, err := t.client.backend.Retrieve(t.name, seenID, message.AnySelector{}, txID(tx))
	if err != nil {
		return nil, err
	}
	return t.client.wrap(msg), nil
}

// RetrieveWhere is Retrieve's client-side-predicate counterpart,
// useful when a topic subscriber wants to skip a value that doesn't
// satisfy a local condition without treating it as "already seen".
func (t *TopicHandle) RetrieveWhere(tx *Tx, seenID string, now func() int64, pred Predicate) (*Message, error) {
	msg, err := t.Retrieve(tx, seenID)
	if err != nil || msg == nil {
		return nil, err
	}
	if !pred(msg.Headers, epochNow(now)) {
		return nil, nil
	}
	return msg, nil
}
