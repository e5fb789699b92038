// Package manager implements the QueueManager: the concurrency,
// transaction, locking, expiration, redelivery, and DLQ routing logic
// layered over a MessageStore backend. Exactly one Manager may be
// active per process (see Start/Stop below).
package manager

import (
	"log/slog"
	"sync"
	"time"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
)

// ReaperInterval is the fixed cadence at which the timeout reaper
// scans the transaction table.
const ReaperInterval = 30 * time.Second

// Manager coordinates clients against a single MessageStore. The
// manager lock (mu) protects the lock set and the transaction table,
// and is held around the store's header reads (GetHeaders, GetLast).
// store.Transaction calls and body reads are made without mu;
// store.Transaction itself is the atomic unit beneath it.
type Manager struct {
	store store.MessageStore
	log   *slog.Logger
	now   func() time.Time

	mu     sync.Mutex
	locked map[string]struct{}
	txs    map[string]*txn

	reaperInterval time.Duration
	reaperStop     chan struct{}
	reaperDone     chan struct{}
}

// processLock enforces "at most one active manager per process":
// Start acquires it, Stop releases it.
var processLock struct {
	mu     sync.Mutex
	active *Manager
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithNow overrides the clock, for deterministic tests.
func WithNow(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithReaperInterval overrides the reaper cadence, for tests that
// don't want to wait 30 seconds.
func WithReaperInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.reaperInterval = d
		}
	}
}

func newManager(backend store.MessageStore, opts ...Option) *Manager {
	m := &Manager{
		store:          backend,
		log:            slog.Default(),
		now:            func() time.Time { return time.Now() },
		locked:         make(map[string]struct{}),
		txs:            make(map[string]*txn),
		reaperInterval: ReaperInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start activates backend and returns a running Manager, enforcing
// the process-wide singleton.
func Start(backend store.MessageStore, opts ...Option) (*Manager, error) {
	processLock.mu.Lock()
	defer processLock.mu.Unlock()
	if processLock.active != nil {
		return nil, errs.New(errs.KindManagerAlreadyStarted, "a manager is already active in this process")
	}

	m := newManager(backend, opts...)
	if err := m.store.Activate(); err != nil {
		return nil, err
	}

	m.reaperStop = make(chan struct{})
	m.reaperDone = make(chan struct{})
	go m.runReaper()

	processLock.active = m
	m.log.Info("manager_started")
	return m, nil
}

// Stop deactivates the store and releases the process-wide singleton.
// Stop on a Manager that isn't the active one raises
// ManagerNotStarted.
func (m *Manager) Stop() error {
	processLock.mu.Lock()
	if processLock.active != m {
		processLock.mu.Unlock()
		return errs.New(errs.KindManagerNotStarted, "this manager is not the active process manager")
	}
	processLock.active = nil
	processLock.mu.Unlock()

	close(m.reaperStop)
	<-m.reaperDone

	m.log.Info("manager_stopped")
	return m.store.Deactivate()
}

func (m *Manager) lock(id string) {
	m.locked[id] = struct{}{}
}

func (m *Manager) unlock(id string) {
	delete(m.locked, id)
}

func (m *Manager) isLocked(id string) bool {
	_, ok := m.locked[id]
	return ok
}

func cloneMessage(msg *message.Message) *message.Message {
	if msg == nil {
		return nil
	}
	return &message.Message{ID: msg.ID, Headers: msg.Headers.Clone(), Body: append([]byte(nil), msg.Body...)}
}
