// Package storetest runs the same scenario suite against every
// MessageStore backend: insert/priority/delete/DLQ/topic semantics
// and transactional atomicity on failure.
package storetest

import (
	"testing"

	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
)

// Factory constructs a fresh, already-activated MessageStore for one
// subtest; cleanup is registered on t.
type Factory func(t *testing.T) store.MessageStore

// Run exercises the MessageStore contract against every backend
// factory in backends.
func Run(t *testing.T, backends map[string]Factory) {
	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			t.Run("InsertAndGetHeaders", func(t *testing.T) { testInsertAndGetHeaders(t, factory) })
			t.Run("PriorityOrder", func(t *testing.T) { testPriorityOrder(t, factory) })
			t.Run("DeleteRemovesMessage", func(t *testing.T) { testDeleteRemovesMessage(t, factory) })
			t.Run("MoveToDLQ", func(t *testing.T) { testMoveToDLQ(t, factory) })
			t.Run("TopicLastValue", func(t *testing.T) { testTopicLastValue(t, factory) })
			t.Run("TransactionFailureLeavesNoPartialInsert", func(t *testing.T) {
				testTransactionFailureLeavesNoPartialInsert(t, factory)
			})
		})
	}
}

func mustInsert(t *testing.T, s store.MessageStore, dest string, topic bool, msg message.Message) {
	t.Helper()
	if err := s.Transaction(func(c store.Collector) error {
		c.Insert(store.Insert{Destination: dest, Topic: topic, Message: msg})
		return nil
	}); err != nil {
		t.Fatalf("insert into %q: %v", dest, err)
	}
}

func msgWithPriority(id string, priority int64) message.Message {
	return message.Message{
		ID: id,
		Headers: message.Headers{
			message.HeaderID:       message.String(id),
			message.HeaderPriority: message.Int(priority),
		},
		Body: []byte(id),
	}
}

func testInsertAndGetHeaders(t *testing.T, factory Factory) {
	s := factory(t)
	mustInsert(t, s, "q1", false, msgWithPriority("a", 0))

	headers, err := s.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	if len(headers) != 1 || headers[0].ID() != "a" {
		t.Fatalf("unexpected headers: %+v", headers)
	}
}

func testPriorityOrder(t *testing.T, factory Factory) {
	s := factory(t)
	mustInsert(t, s, "q1", false, msgWithPriority("a", 1))
	mustInsert(t, s, "q1", false, msgWithPriority("b", 3))
	mustInsert(t, s, "q1", false, msgWithPriority("c", 2))

	headers, err := s.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	got := []string{}
	for _, h := range headers {
		got = append(got, h.ID())
	}
	want := []string{"b", "c", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("priority order = %v, want %v", got, want)
		}
	}
}

func testDeleteRemovesMessage(t *testing.T, factory Factory) {
	s := factory(t)
	mustInsert(t, s, "q1", false, msgWithPriority("a", 0))

	if err := s.Transaction(func(c store.Collector) error {
		c.Delete(store.Delete{Destination: "q1", ID: "a"})
		return nil
	}); err != nil {
		t.Fatalf("delete: %v", err)
	}

	headers, err := s.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	if len(headers) != 0 {
		t.Fatalf("expected empty queue, got %+v", headers)
	}
}

func testMoveToDLQ(t *testing.T, factory Factory) {
	s := factory(t)
	mustInsert(t, s, "q1", false, msgWithPriority("a", 0))

	if err := s.Transaction(func(c store.Collector) error {
		c.MoveToDLQ(store.DLQMove{From: "q1", ID: "a"})
		return nil
	}); err != nil {
		t.Fatalf("move to dlq: %v", err)
	}

	qHeaders, err := s.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get q1 headers: %v", err)
	}
	if len(qHeaders) != 0 {
		t.Fatalf("expected q1 empty after dlq move, got %+v", qHeaders)
	}

	dlqHeaders, err := s.GetHeaders(message.DLQ)
	if err != nil {
		t.Fatalf("get dlq headers: %v", err)
	}
	if len(dlqHeaders) != 1 || dlqHeaders[0].ID() != "a" {
		t.Fatalf("expected dlq to contain a, got %+v", dlqHeaders)
	}
}

func testTopicLastValue(t *testing.T, factory Factory) {
	s := factory(t)
	mustInsert(t, s, "t1", true, message.Message{
		ID:      "m1",
		Headers: message.Headers{message.HeaderID: message.String("m1")},
		Body:    []byte("v1"),
	})
	mustInsert(t, s, "t1", true, message.Message{
		ID:      "m2",
		Headers: message.Headers{message.HeaderID: message.String("m2")},
		Body:    []byte("v2"),
	})

	msg, err := s.GetLast("t1", "", message.AnySelector{})
	if err != nil {
		t.Fatalf("get last: %v", err)
	}
	if msg == nil || msg.ID != "m2" {
		t.Fatalf("expected m2, got %+v", msg)
	}

	msg, err = s.GetLast("t1", "m2", message.AnySelector{})
	if err != nil {
		t.Fatalf("get last with seen: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil for already-seen id, got %+v", msg)
	}
}

func testTransactionFailureLeavesNoPartialInsert(t *testing.T, factory Factory) {
	s := factory(t)
	mustInsert(t, s, "q1", false, msgWithPriority("a", 0))

	err := s.Transaction(func(c store.Collector) error {
		c.Insert(store.Insert{Destination: "q1", Message: msgWithPriority("b", 1)})
		return errIntentional
	})
	if err == nil {
		t.Fatalf("expected transaction failure to propagate")
	}

	headers, err := s.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	if len(headers) != 1 || headers[0].ID() != "a" {
		t.Fatalf("expected only the pre-existing message, got %+v", headers)
	}
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errIntentional = sentinelErr("storetest: intentional failure")
