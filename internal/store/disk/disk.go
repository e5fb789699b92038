// Package disk implements the crash-safe DiskStore backend: an
// append-updated master index file plus a bounded pool of per-message
// body files, one open file lock enforcing single-writer ownership of
// the directory.
package disk

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
)

// MaxOpenFiles bounds how many message-body files the store keeps
// open beyond the currently live set.
const MaxOpenFiles = 20

const indexFileName = "master.idx"

// Store is the disk-backed MessageStore. All mutation happens inside
// Transaction, serialized by mu; GetHeaders/GetMessage/GetLast read
// from the in-memory snapshot cache, falling back to disk for bodies.
type Store struct {
	dir   string
	fsync bool
	log   *slog.Logger

	mu       sync.Mutex
	lockFile *os.File
	idx      *indexFile
	snap     *snapshot

	filesMu sync.Mutex
	pool    *filePool
}

// Option configures a Store at construction.
type Option func(*Store)

// WithFsync enables fsync after every index write.
func WithFsync(enabled bool) Option {
	return func(s *Store) { s.fsync = enabled }
}

// WithLogger attaches a structured logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a Store rooted at dir. Setup/Activate must still be
// called before use.
func New(dir string, opts ...Option) *Store {
	s := &Store{dir: dir, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.MessageStore = (*Store)(nil)

// Setup idempotently creates dir if it does not already exist.
func (s *Store) Setup() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: create directory %q", s.dir)
	}
	info, err := os.Stat(s.dir)
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: stat directory %q", s.dir)
	}
	if !info.IsDir() {
		return errs.New(errs.KindStoreUnavailable, "disk store: %q is not a directory", s.dir)
	}
	return nil
}

// Activate acquires the directory's exclusive lock and loads the
// master index, or starts from a fresh snapshot if none exists yet.
func (s *Store) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if info, err := os.Stat(s.dir); err != nil || !info.IsDir() {
		return errs.New(errs.KindStoreUnavailable, "disk store: %q is not a directory", s.dir)
	}

	lockPath := filepath.Join(s.dir, indexFileName+".lock")
	lf, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: open lock file")
	}
	if err := lockFile(lf); err != nil {
		lf.Close()
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: directory already owned by another process")
	}

	idx, err := openIndexFile(filepath.Join(s.dir, indexFileName), s.fsync)
	if err != nil {
		unlockFile(lf)
		lf.Close()
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: open master index")
	}

	snap, err := idx.load()
	if err != nil {
		unlockFile(lf)
		lf.Close()
		return errs.Wrap(errs.KindStoreCorrupt, err, "disk store: load master index")
	}

	s.lockFile = lf
	s.idx = idx
	s.snap = snap
	s.pool = newFilePool(s.dir, MaxOpenFiles)
	s.log.Info("disk_store_activated", slog.String("dir", s.dir))
	return nil
}

// Deactivate releases the open-file pool and the directory lock.
func (s *Store) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pool != nil {
		s.pool.closeAll()
	}
	if s.idx != nil {
		s.idx.close()
	}
	var err error
	if s.lockFile != nil {
		if uerr := unlockFile(s.lockFile); uerr != nil {
			err = uerr
		}
		s.lockFile.Close()
	}
	s.lockFile, s.idx, s.snap, s.pool = nil, nil, nil, nil
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: release lock")
	}
	return nil
}

func (s *Store) requireActive() error {
	if s.idx == nil {
		return store.ErrNotActive
	}
	return nil
}

// collector accumulates staged changes during one Transaction call.
type collector struct {
	inserts []store.Insert
	deletes []store.Delete
	dlqs    []store.DLQMove
}

func (c *collector) Insert(ins store.Insert)   { c.inserts = append(c.inserts, ins) }
func (c *collector) Delete(del store.Delete)   { c.deletes = append(c.deletes, del) }
func (c *collector) MoveToDLQ(mv store.DLQMove) { c.dlqs = append(c.dlqs, mv) }

// Transaction runs fn against a fresh collector and, if fn succeeds,
// applies every staged change to an in-memory copy of the snapshot,
// writes and fsyncs every new message body, and only then persists the
// index image that points at them: a crash can leave an orphaned body
// file, never an index entry pointing at one that doesn't exist yet.
// Freed body files are released back to the pool only after the index
// pointing away from them is durable. Any failure before the index
// write reloads the cache from durable storage and returns the error.
func (s *Store) Transaction(fn func(store.Collector) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireActive(); err != nil {
		return err
	}

	c := &collector{}
	if err := fn(c); err != nil {
		s.reloadLocked()
		return err
	}

	next := s.snap.clone()
	var bodyWrites []bodyWrite
	var toFree []string

	for _, ins := range c.inserts {
		fn, bw, err := s.allocateBody(next, ins.Message.ID, ins.Message.Body)
		if err != nil {
			s.reloadLocked()
			return err
		}
		next.Files[ins.Message.ID] = fn
		bodyWrites = append(bodyWrites, bw)
		e := entry{ID: ins.Message.ID, Headers: ins.Message.Headers.Clone()}
		if ins.Topic {
			next.Topics[ins.Destination] = e
		} else {
			next.Queues[ins.Destination] = insertOrdered(next.Queues[ins.Destination], e)
		}
	}

	for _, del := range c.deletes {
		if del.Topic {
			if cur, ok := next.Topics[del.Destination]; ok && cur.ID == del.ID {
				delete(next.Topics, del.Destination)
				s.releaseBody(next, del.ID, &toFree)
			}
			continue
		}
		if list, ok := removeByID(next.Queues[del.Destination], del.ID); ok {
			next.Queues[del.Destination] = list
			s.releaseBody(next, del.ID, &toFree)
		}
	}

	for _, mv := range c.dlqs {
		list, ok := removeByID(next.Queues[mv.From], mv.ID)
		if !ok {
			continue
		}
		var moved entry
		for _, e := range s.snap.Queues[mv.From] {
			if e.ID == mv.ID {
				moved = e
				break
			}
		}
		next.Queues[mv.From] = list
		next.Queues[message.DLQ] = insertOrdered(next.Queues[message.DLQ], moved)
	}

	s.filesMu.Lock()
	for _, bw := range bodyWrites {
		if err := s.pool.write(bw.filename, bw.body); err != nil {
			s.filesMu.Unlock()
			s.reloadLocked()
			return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: write message body")
		}
	}
	s.filesMu.Unlock()

	if err := s.persistLocked(next); err != nil {
		s.reloadLocked()
		return err
	}

	s.filesMu.Lock()
	for _, fn := range toFree {
		s.pool.free(fn)
	}
	s.filesMu.Unlock()

	s.snap = next
	return nil
}

type bodyWrite struct {
	filename string
	body     []byte
}

// allocateBody picks a free filename (or mints a new one) for id and
// removes it from next's free list.
func (s *Store) allocateBody(next *snapshot, id string, body []byte) (string, bodyWrite, error) {
	var filename string
	if len(next.Free) > 0 {
		filename = next.Free[len(next.Free)-1]
		next.Free = next.Free[:len(next.Free)-1]
	} else {
		filename = uuid.NewString() + ".msg"
	}
	return filename, bodyWrite{filename: filename, body: body}, nil
}

// releaseBody returns the body file id was mapped to before this
// transaction to the free list and schedules it for pool release once
// the index is durably updated. A file that an insert in the same
// transaction assigned to id (a requeue deletes and reinserts one id)
// keeps its mapping.
func (s *Store) releaseBody(next *snapshot, id string, toFree *[]string) {
	fn, ok := s.snap.Files[id]
	if !ok {
		fn, ok = next.Files[id]
	}
	if !ok {
		return
	}
	if next.Files[id] == fn {
		delete(next.Files, id)
	}
	next.Free = append(next.Free, fn)
	*toFree = append(*toFree, fn)
}

func (s *Store) persistLocked(next *snapshot) error {
	data, err := encodeSnapshot(next)
	if err != nil {
		return errs.Wrap(errs.KindStoreCorrupt, err, "disk store: encode index image")
	}
	if err := s.idx.writeImage(data); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "disk store: write index image")
	}
	return nil
}

func (s *Store) reloadLocked() {
	snap, err := s.idx.load()
	if err != nil {
		s.log.Error("disk_store_reload_failed", slog.Any("err", err))
		return
	}
	s.snap = snap
}

// GetHeaders returns the current priority-ordered header list for a
// queue or a topic's single-element list.
func (s *Store) GetHeaders(dest string) ([]message.Headers, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	if e, ok := s.snap.Topics[dest]; ok {
		return []message.Headers{e.Headers.Clone()}, nil
	}
	list := s.snap.Queues[dest]
	out := make([]message.Headers, len(list))
	for i, e := range list {
		out[i] = e.Headers.Clone()
	}
	return out, nil
}

// GetMessage returns the first header in queue matching sel with its
// body materialized, or nil if none match.
func (s *Store) GetMessage(queue string, sel message.Selector) (*message.Message, error) {
	s.mu.Lock()
	var match *entry
	var filename string
	if err := s.requireActive(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	for _, e := range s.snap.Queues[queue] {
		if sel.Match(e.Headers) {
			copyE := e
			match = &copyE
			filename = s.snap.Files[e.ID]
			break
		}
	}
	s.mu.Unlock()

	if match == nil {
		return nil, nil
	}

	s.filesMu.Lock()
	body, err := s.pool.read(filename)
	s.filesMu.Unlock()
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreCorrupt, err, "disk store: read message body %q", match.ID)
	}

	return &message.Message{ID: match.ID, Headers: match.Headers.Clone(), Body: body}, nil
}

// GetLast returns topic's current message iff its id differs from
// seenID and it satisfies sel.
func (s *Store) GetLast(topic string, seenID string, sel message.Selector) (*message.Message, error) {
	s.mu.Lock()
	if err := s.requireActive(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	e, ok := s.snap.Topics[topic]
	if !ok || e.ID == seenID || !sel.Match(e.Headers) {
		s.mu.Unlock()
		return nil, nil
	}
	filename := s.snap.Files[e.ID]
	id, headers := e.ID, e.Headers.Clone()
	s.mu.Unlock()

	s.filesMu.Lock()
	body, err := s.pool.read(filename)
	s.filesMu.Unlock()
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreCorrupt, err, "disk store: read message body %q", id)
	}
	return &message.Message{ID: id, Headers: headers, Body: body}, nil
}

// Path returns the directory this store is rooted at, for diagnostics
// and the CLI's install/list flows.
func (s *Store) Path() string { return s.dir }

func (s *Store) String() string { return fmt.Sprintf("disk.Store(%s)", s.dir) }
