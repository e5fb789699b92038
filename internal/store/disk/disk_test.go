package disk

import (
	"testing"

	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
	"github.com/assaf/reliable-msg/internal/store/storetest"
)

func newActivated(t *testing.T) store.MessageStore {
	t.Helper()
	dir := t.TempDir()
	s := New(dir)
	if err := s.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	t.Cleanup(func() { s.Deactivate() })
	return s
}

func TestDiskStoreContract(t *testing.T) {
	storetest.Run(t, map[string]storetest.Factory{
		"disk": newActivated,
	})
}

func testMessage(id string, priority int64) message.Message {
	return message.Message{
		ID: id,
		Headers: message.Headers{
			message.HeaderID:       message.String(id),
			message.HeaderPriority: message.Int(priority),
		},
		Body: []byte(id),
	}
}

func TestDiskStoreSurvivesReload(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, WithFsync(true))
	if err := s.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := s.Transaction(func(c store.Collector) error {
		c.Insert(store.Insert{Destination: "q1", Message: testMessage("a", 0)})
		return nil
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := s.Deactivate(); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	reopened := New(dir, WithFsync(true))
	if err := reopened.Activate(); err != nil {
		t.Fatalf("reactivate: %v", err)
	}
	defer reopened.Deactivate()

	headers, err := reopened.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	if len(headers) != 1 || headers[0].ID() != "a" {
		t.Fatalf("expected recovered message a, got %+v", headers)
	}

	msg, err := reopened.GetMessage("q1", message.AnySelector{})
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if msg == nil || string(msg.Body) != "a" {
		t.Fatalf("expected body to survive reload, got %+v", msg)
	}
}

func TestDiskStoreActivateTwiceFails(t *testing.T) {
	dir := t.TempDir()
	s1 := New(dir)
	if err := s1.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s1.Activate(); err != nil {
		t.Fatalf("activate s1: %v", err)
	}
	defer s1.Deactivate()

	s2 := New(dir)
	if err := s2.Activate(); err == nil {
		t.Fatalf("expected second activate on same dir to fail")
	}
}

func TestDiskStoreHoldsMoreMessagesThanMaxOpenFiles(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)
	if err := s.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := s.Activate(); err != nil {
		t.Fatalf("activate: %v", err)
	}
	defer s.Deactivate()

	for i := 0; i < MaxOpenFiles+10; i++ {
		id := message.NewID()
		if err := s.Transaction(func(c store.Collector) error {
			c.Insert(store.Insert{Destination: "q1", Message: testMessage(id, 0)})
			return nil
		}); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	headers, err := s.GetHeaders("q1")
	if err != nil {
		t.Fatalf("get headers: %v", err)
	}
	if len(headers) != MaxOpenFiles+10 {
		t.Fatalf("expected %d messages, got %d", MaxOpenFiles+10, len(headers))
	}
}
