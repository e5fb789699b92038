package manager

import (
	"testing"
	"time"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store/disk"
)

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	dir := t.TempDir()
	backend := disk.New(dir)
	if err := backend.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	m, err := Start(backend, opts...)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Stop(); err != nil {
			t.Errorf("stop: %v", err)
		}
	})
	return m
}

func TestStartTwiceFails(t *testing.T) {
	m := newTestManager(t)
	dir2 := t.TempDir()
	backend2 := disk.New(dir2)
	if err := backend2.Setup(); err != nil {
		t.Fatalf("setup: %v", err)
	}
	_, err := Start(backend2)
	if kind, ok := errs.As(err); !ok || kind != errs.KindManagerAlreadyStarted {
		t.Fatalf("expected ManagerAlreadyStarted, got %v", err)
	}
	_ = m
}

func TestPutAndDequeuePriorityOrder(t *testing.T) {
	m := newTestManager(t)

	lowID, err := m.Put("work", []byte("low"), message.Headers{message.HeaderPriority: message.Int(1)}, "")
	if err != nil {
		t.Fatalf("put low: %v", err)
	}
	highID, err := m.Put("work", []byte("high"), message.Headers{message.HeaderPriority: message.Int(9)}, "")
	if err != nil {
		t.Fatalf("put high: %v", err)
	}

	msg, err := m.Dequeue("work", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg == nil || msg.ID != highID {
		t.Fatalf("expected high-priority message %q first, got %+v", highID, msg)
	}

	msg, err = m.Dequeue("work", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("dequeue 2: %v", err)
	}
	if msg == nil || msg.ID != lowID {
		t.Fatalf("expected low-priority message %q second, got %+v", lowID, msg)
	}
}

func TestDequeueDoesNotReturnLockedMessageTwice(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Put("work", []byte("a"), nil, ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	first, err := m.Dequeue("work", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("first dequeue: %v", err)
	}
	if first == nil {
		t.Fatalf("expected a message on the first dequeue")
	}

	second, err := m.Dequeue("work", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("second dequeue: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no message while the only one is locked, got %+v", second)
	}
}

func TestAbortRoundTripIncrementsRedelivery(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Put("work", []byte("a"), message.Headers{message.HeaderDelivery: message.Symbol(string(message.DeliveryRepeated))}, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	tid, err := m.Begin(time.Minute)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	msg, err := m.Dequeue("work", message.AnySelector{}, tid)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg == nil || msg.ID != id {
		t.Fatalf("expected to dequeue %q, got %+v", id, msg)
	}
	if err := m.Abort(tid); err != nil {
		t.Fatalf("abort: %v", err)
	}

	msg, err = m.Dequeue("work", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("redequeue: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected the message to be visible again after abort")
	}
	if msg.Headers.Redelivery() != 1 {
		t.Fatalf("redelivery = %d, want 1", msg.Headers.Redelivery())
	}
}

func TestCommitAppliesInsertAndDeleteAtomically(t *testing.T) {
	m := newTestManager(t)
	srcID, err := m.Put("src", []byte("a"), nil, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	tid, err := m.Begin(time.Minute)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	msg, err := m.Dequeue("src", message.AnySelector{}, tid)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg == nil || msg.ID != srcID {
		t.Fatalf("expected to dequeue %q, got %+v", srcID, msg)
	}
	if _, err := m.Put("dst", msg.Body, nil, tid); err != nil {
		t.Fatalf("put into dst: %v", err)
	}
	if err := m.Commit(tid); err != nil {
		t.Fatalf("commit: %v", err)
	}

	srcMsg, err := m.Dequeue("src", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("dequeue src after commit: %v", err)
	}
	if srcMsg != nil {
		t.Fatalf("expected src to be empty after commit, got %+v", srcMsg)
	}
	dstMsg, err := m.Dequeue("dst", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("dequeue dst after commit: %v", err)
	}
	if dstMsg == nil || string(dstMsg.Body) != "a" {
		t.Fatalf("expected the moved message in dst, got %+v", dstMsg)
	}
}

func TestOnceDeliveryMovesToDLQImmediatelyAndStaysOnAbort(t *testing.T) {
	m := newTestManager(t)
	id, err := m.Put("work", []byte("a"), message.Headers{message.HeaderDelivery: message.Symbol(string(message.DeliveryOnce))}, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	tid, err := m.Begin(time.Minute)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	msg, err := m.Dequeue("work", message.AnySelector{}, tid)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg == nil || msg.ID != id {
		t.Fatalf("expected to dequeue %q, got %+v", id, msg)
	}

	dlqHeaders, err := m.List(message.DLQ)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(dlqHeaders) != 1 || dlqHeaders[0].ID() != id {
		t.Fatalf("expected once-mode message to be in dlq immediately, got %+v", dlqHeaders)
	}

	if err := m.Abort(tid); err != nil {
		t.Fatalf("abort: %v", err)
	}

	workHeaders, err := m.List("work")
	if err != nil {
		t.Fatalf("list work: %v", err)
	}
	if len(workHeaders) != 0 {
		t.Fatalf("expected once-mode message to never return to work, got %+v", workHeaders)
	}
	dlqHeaders, err = m.List(message.DLQ)
	if err != nil {
		t.Fatalf("list dlq after abort: %v", err)
	}
	if len(dlqHeaders) != 1 || dlqHeaders[0].ID() != id {
		t.Fatalf("expected once-mode message to remain in dlq after abort, got %+v", dlqHeaders)
	}
}

func TestExpiredMessageRoutesToDLQOnList(t *testing.T) {
	now := time.Unix(1000, 0)
	m := newTestManager(t, WithNow(func() time.Time { return now }))

	id, err := m.Put("work", []byte("a"), message.Headers{
		message.HeaderDelivery: message.Symbol(string(message.DeliveryRepeated)),
		"expires":               message.Int(1),
	}, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	now = now.Add(2 * time.Second)
	headers, err := m.List("work")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(headers) != 0 {
		t.Fatalf("expected expired message to be routed out of work, got %+v", headers)
	}

	dlqHeaders, err := m.List(message.DLQ)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(dlqHeaders) != 1 || dlqHeaders[0].ID() != id {
		t.Fatalf("expected expired repeated-delivery message in dlq, got %+v", dlqHeaders)
	}
}

func TestExhaustedBestEffortMessageIsDeleted(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Put("work", []byte("a"), message.Headers{
		message.HeaderMaxDeliveries: message.Int(1),
		message.HeaderDelivery:      message.Symbol(string(message.DeliveryBestEffort)),
	}, ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	tid, err := m.Begin(time.Minute)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	msg, err := m.Dequeue("work", message.AnySelector{}, tid)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected a message")
	}
	if err := m.Abort(tid); err != nil {
		t.Fatalf("abort: %v", err)
	}

	headers, err := m.List("work")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(headers) != 0 {
		t.Fatalf("expected exhausted best_effort message to be deleted, got %+v", headers)
	}
	dlqHeaders, err := m.List(message.DLQ)
	if err != nil {
		t.Fatalf("list dlq: %v", err)
	}
	if len(dlqHeaders) != 0 {
		t.Fatalf("best_effort never routes to dlq, got %+v", dlqHeaders)
	}
}

func TestPublishAndRetrieveLastValue(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Publish("status", []byte("v1"), nil, ""); err != nil {
		t.Fatalf("publish v1: %v", err)
	}
	id2, err := m.Publish("status", []byte("v2"), nil, "")
	if err != nil {
		t.Fatalf("publish v2: %v", err)
	}

	msg, err := m.Retrieve("status", "", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if msg == nil || msg.ID != id2 {
		t.Fatalf("expected the latest value %q, got %+v", id2, msg)
	}

	msg, err = m.Retrieve("status", id2, message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("retrieve with seenID: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected nil for already-seen id, got %+v", msg)
	}
}

func TestRetrieveDropsExpiredPublish(t *testing.T) {
	now := time.Unix(3000, 0)
	m := newTestManager(t, WithNow(func() time.Time { return now }))

	if _, err := m.Publish("status", []byte("v1"), message.Headers{
		"expires": message.Int(1),
	}, ""); err != nil {
		t.Fatalf("publish: %v", err)
	}

	now = now.Add(2 * time.Second)
	msg, err := m.Retrieve("status", "", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected expired publish to be dropped, got %+v", msg)
	}

	headers, err := m.List("status")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(headers) != 0 {
		t.Fatalf("expected expired publish removed from topic, got %+v", headers)
	}
}

func TestBeginRejectsNonPositiveTimeout(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Begin(0); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestReaperAbortsExpiredTransactions(t *testing.T) {
	now := time.Unix(2000, 0)
	clock := func() time.Time { return now }
	m := newTestManager(t, WithNow(clock), WithReaperInterval(20*time.Millisecond))

	id, err := m.Put("work", []byte("a"), nil, "")
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	tid, err := m.Begin(time.Second)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Dequeue("work", message.AnySelector{}, tid); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	now = now.Add(2 * time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m.mu.Lock()
		_, stillOpen := m.txs[tid]
		m.mu.Unlock()
		if !stillOpen {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg, err := m.Dequeue("work", message.AnySelector{}, "")
	if err != nil {
		t.Fatalf("dequeue after reap: %v", err)
	}
	if msg == nil || msg.ID != id {
		t.Fatalf("expected the reaper to reopen %q, got %+v", id, msg)
	}
}

func TestStatsCountsReadyAndLocked(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.Put("work", []byte("a"), nil, ""); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if _, err := m.Put("work", []byte("b"), nil, ""); err != nil {
		t.Fatalf("put b: %v", err)
	}

	tid, err := m.Begin(time.Minute)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := m.Dequeue("work", message.AnySelector{}, tid); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	stats, err := m.Stats([]string{"work"})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if len(stats) != 1 {
		t.Fatalf("expected one queue in stats, got %d", len(stats))
	}
	if stats[0].Ready != 1 || stats[0].Locked != 1 {
		t.Fatalf("stats = %+v, want Ready=1 Locked=1", stats[0])
	}
}
