// Package sqlstore implements the SQLStore backend: the same
// MessageStore contract as the disk backend, against a relational
// database, using a two-table (queues, topics) schema plus a
// monotonic sequence column for insertion-order tie-breaking within a
// priority band.
//
// Two dialects are wired: PostgreSQL via pgx's stdlib driver, and
// SQLite via modernc.org/sqlite.
package sqlstore

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
)

// Dialect names the SQL flavor a Store targets; schema DDL and a few
// syntax differences (placeholders, autoincrement) vary by dialect.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// Store is the SQL-backed MessageStore.
type Store struct {
	db      *sql.DB
	dialect Dialect
	driver  string
	dsn     string
	prefix  string
	log     *slog.Logger

	mu sync.Mutex
}

var _ store.MessageStore = (*Store)(nil)

// NewPostgres builds a Store against a PostgreSQL database reachable
// at dsn, using prefix-qualified table names.
func NewPostgres(dsn, prefix string, log *slog.Logger) *Store {
	return newStore(DialectPostgres, "pgx", dsn, prefix, log)
}

// NewSQLite builds a Store against an embedded SQLite database file
// at path, using prefix-qualified table names.
func NewSQLite(path, prefix string, log *slog.Logger) *Store {
	return newStore(DialectSQLite, "sqlite", path, prefix, log)
}

func newStore(dialect Dialect, driver, dsn, prefix string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{dialect: dialect, driver: driver, dsn: dsn, prefix: prefix, log: log}
}

func (s *Store) table(name string) string {
	return s.prefix + name
}

// Setup idempotently creates the queues/topics tables.
func (s *Store) Setup() error {
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: open")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: ping")
	}
	for _, stmt := range s.schema() {
		if _, err := db.Exec(stmt); err != nil {
			return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: create schema")
		}
	}
	return nil
}

func (s *Store) schema() []string {
	switch s.dialect {
	case DialectPostgres:
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				seq BIGSERIAL PRIMARY KEY,
				id TEXT NOT NULL UNIQUE,
				queue TEXT NOT NULL,
				priority BIGINT NOT NULL DEFAULT 0,
				headers BYTEA NOT NULL,
				body BYTEA NOT NULL
			)`, s.table("queues")),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_by_queue ON %s(queue, priority DESC, seq ASC)`,
				s.table("queues"), s.table("queues")),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				topic TEXT PRIMARY KEY,
				id TEXT NOT NULL,
				headers BYTEA NOT NULL,
				body BYTEA NOT NULL
			)`, s.table("topics")),
		}
	default: // SQLite
		return []string{
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				queue TEXT NOT NULL,
				priority INTEGER NOT NULL DEFAULT 0,
				headers BLOB NOT NULL,
				body BLOB NOT NULL
			)`, s.table("queues")),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_by_queue ON %s(queue, priority DESC, seq ASC)`,
				s.table("queues"), s.table("queues")),
			fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
				topic TEXT PRIMARY KEY,
				id TEXT NOT NULL,
				headers BLOB NOT NULL,
				body BLOB NOT NULL
			)`, s.table("topics")),
		}
	}
}

// Activate opens the database connection pool. The SQL backend relies
// on the database's own locking rather than an advisory file lock.
func (s *Store) Activate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: open")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: ping")
	}
	s.db = db
	s.log.Info("sql_store_activated", slog.String("dialect", string(s.dialect)))
	return nil
}

func (s *Store) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: close")
	}
	return nil
}

func (s *Store) requireActive() error {
	if s.db == nil {
		return store.ErrNotActive
	}
	return nil
}

type collector struct {
	inserts []store.Insert
	deletes []store.Delete
	dlqs    []store.DLQMove
}

func (c *collector) Insert(ins store.Insert)    { c.inserts = append(c.inserts, ins) }
func (c *collector) Delete(del store.Delete)    { c.deletes = append(c.deletes, del) }
func (c *collector) MoveToDLQ(mv store.DLQMove) { c.dlqs = append(c.dlqs, mv) }

// Transaction runs fn, then applies every staged change inside a
// single SQL transaction (BEGIN/COMMIT/ROLLBACK). The database itself
// is the source of truth, so failure needs no separate cache reload:
// ROLLBACK already discards partial writes.
func (s *Store) Transaction(fn func(store.Collector) error) error {
	if err := s.requireActive(); err != nil {
		return err
	}

	c := &collector{}
	if err := fn(c); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: begin")
	}

	if err := s.applyLocked(tx, c); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: commit")
	}
	return nil
}

func (s *Store) applyLocked(tx *sql.Tx, c *collector) error {
	for _, ins := range c.inserts {
		headers, err := message.EncodeHeaders(ins.Message.Headers)
		if err != nil {
			return errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: encode headers")
		}
		if ins.Topic {
			q := fmt.Sprintf(`DELETE FROM %s WHERE topic = $1`, s.table("topics"))
			if s.dialect == DialectSQLite {
				q = fmt.Sprintf(`DELETE FROM %s WHERE topic = ?`, s.table("topics"))
			}
			if _, err := tx.Exec(q, ins.Destination); err != nil {
				return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: replace topic")
			}
			q = fmt.Sprintf(`INSERT INTO %s (topic, id, headers, body) VALUES ($1,$2,$3,$4)`, s.table("topics"))
			if s.dialect == DialectSQLite {
				q = fmt.Sprintf(`INSERT INTO %s (topic, id, headers, body) VALUES (?,?,?,?)`, s.table("topics"))
			}
			if _, err := tx.Exec(q, ins.Destination, ins.Message.ID, headers, ins.Message.Body); err != nil {
				return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: insert topic")
			}
			continue
		}
		q := fmt.Sprintf(`INSERT INTO %s (id, queue, priority, headers, body) VALUES ($1,$2,$3,$4,$5)`, s.table("queues"))
		if s.dialect == DialectSQLite {
			q = fmt.Sprintf(`INSERT INTO %s (id, queue, priority, headers, body) VALUES (?,?,?,?,?)`, s.table("queues"))
		}
		if _, err := tx.Exec(q, ins.Message.ID, ins.Destination, ins.Message.Headers.Priority(), headers, ins.Message.Body); err != nil {
			return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: insert message")
		}
	}

	for _, del := range c.deletes {
		if del.Topic {
			q := fmt.Sprintf(`DELETE FROM %s WHERE topic = $1 AND id = $2`, s.table("topics"))
			if s.dialect == DialectSQLite {
				q = fmt.Sprintf(`DELETE FROM %s WHERE topic = ? AND id = ?`, s.table("topics"))
			}
			if _, err := tx.Exec(q, del.Destination, del.ID); err != nil {
				return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: delete topic")
			}
			continue
		}
		q := fmt.Sprintf(`DELETE FROM %s WHERE queue = $1 AND id = $2`, s.table("queues"))
		if s.dialect == DialectSQLite {
			q = fmt.Sprintf(`DELETE FROM %s WHERE queue = ? AND id = ?`, s.table("queues"))
		}
		if _, err := tx.Exec(q, del.Destination, del.ID); err != nil {
			return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: delete message")
		}
	}

	for _, mv := range c.dlqs {
		q := fmt.Sprintf(`UPDATE %s SET queue = $1 WHERE queue = $2 AND id = $3`, s.table("queues"))
		if s.dialect == DialectSQLite {
			q = fmt.Sprintf(`UPDATE %s SET queue = ? WHERE queue = ? AND id = ?`, s.table("queues"))
		}
		if _, err := tx.Exec(q, message.DLQ, mv.From, mv.ID); err != nil {
			return errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: move to dlq")
		}
	}
	return nil
}

// GetHeaders returns the current priority-ordered header list for a
// queue or topic.
func (s *Store) GetHeaders(dest string) ([]message.Headers, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	if headers, ok, err := s.topicHeaders(dest); err != nil {
		return nil, err
	} else if ok {
		return []message.Headers{headers}, nil
	}

	q := fmt.Sprintf(`SELECT headers FROM %s WHERE queue = $1 ORDER BY priority DESC, seq ASC`, s.table("queues"))
	if s.dialect == DialectSQLite {
		q = fmt.Sprintf(`SELECT headers FROM %s WHERE queue = ? ORDER BY priority DESC, seq ASC`, s.table("queues"))
	}
	rows, err := s.db.Query(q, dest)
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: query headers")
	}
	defer rows.Close()

	var out []message.Headers
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: scan headers")
		}
		h, err := message.DecodeHeaders(raw)
		if err != nil {
			return nil, errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: decode headers")
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) topicHeaders(dest string) (message.Headers, bool, error) {
	q := fmt.Sprintf(`SELECT headers FROM %s WHERE topic = $1`, s.table("topics"))
	if s.dialect == DialectSQLite {
		q = fmt.Sprintf(`SELECT headers FROM %s WHERE topic = ?`, s.table("topics"))
	}
	var raw []byte
	err := s.db.QueryRow(q, dest).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: query topic")
	}
	h, err := message.DecodeHeaders(raw)
	if err != nil {
		return nil, false, errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: decode topic headers")
	}
	return h, true, nil
}

// GetMessage returns the first header in queue matching sel, body
// materialized.
func (s *Store) GetMessage(queue string, sel message.Selector) (*message.Message, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, headers, body FROM %s WHERE queue = $1 ORDER BY priority DESC, seq ASC`, s.table("queues"))
	if s.dialect == DialectSQLite {
		q = fmt.Sprintf(`SELECT id, headers, body FROM %s WHERE queue = ? ORDER BY priority DESC, seq ASC`, s.table("queues"))
	}
	rows, err := s.db.Query(q, queue)
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: query messages")
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var rawHeaders, body []byte
		if err := rows.Scan(&id, &rawHeaders, &body); err != nil {
			return nil, errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: scan message")
		}
		h, err := message.DecodeHeaders(rawHeaders)
		if err != nil {
			return nil, errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: decode message headers")
		}
		if sel.Match(h) {
			return &message.Message{ID: id, Headers: h, Body: body}, nil
		}
	}
	return nil, rows.Err()
}

// GetLast returns topic's current message iff its id differs from
// seenID and it satisfies sel.
func (s *Store) GetLast(topic string, seenID string, sel message.Selector) (*message.Message, error) {
	if err := s.requireActive(); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT id, headers, body FROM %s WHERE topic = $1`, s.table("topics"))
	if s.dialect == DialectSQLite {
		q = fmt.Sprintf(`SELECT id, headers, body FROM %s WHERE topic = ?`, s.table("topics"))
	}
	var id string
	var rawHeaders, body []byte
	err := s.db.QueryRow(q, topic).Scan(&id, &rawHeaders, &body)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreUnavailable, err, "sqlstore: query topic")
	}
	if id == seenID {
		return nil, nil
	}
	h, err := message.DecodeHeaders(rawHeaders)
	if err != nil {
		return nil, errs.Wrap(errs.KindStoreCorrupt, err, "sqlstore: decode topic headers")
	}
	if !sel.Match(h) {
		return nil, nil
	}
	return &message.Message{ID: id, Headers: h, Body: body}, nil
}

func (s *Store) String() string {
	return fmt.Sprintf("sqlstore.Store(%s)", s.dialect)
}
