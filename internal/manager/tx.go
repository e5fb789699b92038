package manager

import (
	"log/slog"
	"time"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
	"github.com/google/uuid"
)

// txState models the per-transaction state machine: open ->
// committing -> closed, or open -> aborting -> closed.
type txState int

const (
	txOpen txState = iota
	txCommitting
	txAborting
	txClosed
)

// pendingInsert stages a put/publish applied at commit time.
type pendingInsert struct {
	Destination string
	Topic       bool
	Message     message.Message
}

// pendingDelete stages a dequeue consume applied at commit
// time. Message carries the full record (headers+body) so abort can
// reinsert it with an incremented redelivery counter without a second
// store read. DLQImmediate marks the once-mode case where the message
// was already physically moved to DLQ outside the transaction at
// dequeue time; abort must leave it there rather than reinsert it
// anywhere.
type pendingDelete struct {
	Destination  string
	Topic        bool
	ID           string
	Message      message.Message
	DLQImmediate bool
}

// txn is a transaction record.
type txn struct {
	id       string
	state    txState
	inserts  []pendingInsert
	deletes  []pendingDelete
	deadline time.Time
}

// Begin creates a transaction with deadline now+timeout. timeout <= 0
// is rejected as InvalidArgument.
func (m *Manager) Begin(timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", errs.New(errs.KindInvalidArgument, "begin: timeout must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.NewString()
	m.txs[id] = &txn{
		id:       id,
		state:    txOpen,
		deadline: m.now().Add(timeout),
	}
	return id, nil
}

// lookupOpenTx returns the open transaction for tid, or
// NoSuchTransaction if it is closed or never existed. Caller must
// hold m.mu.
func (m *Manager) lookupOpenTx(tid string) (*txn, error) {
	t, ok := m.txs[tid]
	if !ok || t.state != txOpen {
		return nil, errs.New(errs.KindNoSuchTransaction, "transaction %q not found", tid)
	}
	return t, nil
}

// Commit applies a transaction's staged inserts and deletes through a
// single store transaction, then releases locks on its deletes. Store
// failure aborts the transaction automatically, requeueing its
// deletes exactly as an explicit Abort would, and re-raises.
func (m *Manager) Commit(tid string) error {
	m.mu.Lock()
	t, err := m.lookupOpenTx(tid)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	t.state = txCommitting
	inserts, deletes := t.inserts, t.deletes
	m.mu.Unlock()

	applyErr := m.store.Transaction(func(c store.Collector) error {
		for _, ins := range inserts {
			c.Insert(store.Insert{Destination: ins.Destination, Topic: ins.Topic, Message: ins.Message})
		}
		for _, del := range deletes {
			c.Delete(store.Delete{Destination: del.Destination, Topic: del.Topic, ID: del.ID})
		}
		return nil
	})

	if applyErr != nil {
		m.log.Error("transaction_commit_failed", slog.String("tid", tid), slog.Any("err", applyErr))
		m.mu.Lock()
		t.state = txAborting
		m.mu.Unlock()
		m.requeueAndClose(tid, t, deletes)
		return errs.Wrap(errs.KindTransactionAborted, applyErr, "commit %q failed, transaction aborted", tid)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t.state = txClosed
	delete(m.txs, tid)
	for _, del := range deletes {
		m.unlock(del.ID)
	}
	return nil
}

// Abort releases locks and increments the redelivery counter on each
// deleted message's header so subsequent consumers observe the retry
// count. Staged inserts are discarded outright. Once-mode messages
// already moved to DLQ (DLQImmediate) are left in place, never
// redelivered to the origin queue.
func (m *Manager) Abort(tid string) error {
	m.mu.Lock()
	t, err := m.lookupOpenTx(tid)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	t.state = txAborting
	deletes := t.deletes
	m.mu.Unlock()

	m.requeueAndClose(tid, t, deletes)
	return nil
}

// requeueAndClose increments the redelivery counter on every
// non-DLQImmediate delete and reinserts it at its origin, then closes
// the transaction and releases its locks. Shared by Abort and by
// Commit's store-failure path, which aborts the same way.
func (m *Manager) requeueAndClose(tid string, t *txn, deletes []pendingDelete) {
	var toRequeue []pendingDelete
	for _, del := range deletes {
		if !del.DLQImmediate {
			toRequeue = append(toRequeue, del)
		}
	}

	if len(toRequeue) > 0 {
		err := m.store.Transaction(func(c store.Collector) error {
			for _, del := range toRequeue {
				headers := del.Message.Headers.Clone()
				headers[message.HeaderRedelivery] = message.Int(headers.Redelivery() + 1)
				c.Delete(store.Delete{Destination: del.Destination, Topic: del.Topic, ID: del.ID})
				c.Insert(store.Insert{
					Destination: del.Destination,
					Topic:       del.Topic,
					Message:     message.Message{ID: del.ID, Headers: headers, Body: del.Message.Body},
				})
			}
			return nil
		})
		if err != nil {
			m.log.Error("transaction_abort_requeue_failed", slog.String("tid", tid), slog.Any("err", err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t.state = txClosed
	delete(m.txs, tid)
	for _, del := range deletes {
		m.unlock(del.ID)
	}
}

// runReaper scans the transaction table at ReaperInterval and aborts
// anything past its deadline. It restarts itself on panic so a single
// bad transaction can't kill the supervisory loop.
func (m *Manager) runReaper() {
	defer close(m.reaperDone)
	for {
		select {
		case <-m.reaperStop:
			return
		case <-time.After(m.reaperInterval):
			m.reapOnce()
		}
	}
}

func (m *Manager) reapOnce() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("reaper_panic_recovered", slog.Any("recover", r))
		}
	}()

	now := m.now()
	m.mu.Lock()
	var expired []string
	for id, t := range m.txs {
		if t.state == txOpen && now.After(t.deadline) {
			expired = append(expired, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		if err := m.Abort(id); err != nil {
			m.log.Error("reaper_abort_failed", slog.String("tid", id), slog.Any("err", err))
		} else {
			m.log.Info("transaction_reaped", slog.String("tid", id))
		}
	}
}
