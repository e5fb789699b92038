package manager

import (
	"strings"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
	"github.com/assaf/reliable-msg/internal/store"
)

// expiresHeader is the caller-supplied offset (seconds from now) that
// Put and Publish both translate into the reserved expires_at header.
const expiresHeader = "expires"

// Put validates headers, fills in reserved headers, and stages or
// commits an insert into queue.
func (m *Manager) Put(queue string, body []byte, headers message.Headers, tid string) (string, error) {
	if strings.TrimSpace(queue) == "" {
		return "", errs.New(errs.KindInvalidArgument, "put: queue name must be non-empty")
	}
	if err := message.ValidateUserHeaders(headers); err != nil {
		return "", errs.Wrap(errs.KindInvalidArgument, err, "put")
	}

	full, err := m.fillReservedHeaders(headers)
	if err != nil {
		return "", err
	}
	msg := message.Message{ID: full.ID(), Headers: full, Body: body}

	if err := m.stageOrApplyInsert(queue, false, msg, tid); err != nil {
		return "", err
	}
	return msg.ID, nil
}

// Publish is like Put, but targets a topic's single slot; delivery,
// priority, and max_deliveries are not meaningful for topics and are
// not filled in.
func (m *Manager) Publish(topic string, body []byte, headers message.Headers, tid string) (string, error) {
	if strings.TrimSpace(topic) == "" {
		return "", errs.New(errs.KindInvalidArgument, "publish: topic name must be non-empty")
	}
	if err := message.ValidateUserHeaders(headers); err != nil {
		return "", errs.Wrap(errs.KindInvalidArgument, err, "publish")
	}

	full := headers.Clone()
	if full == nil {
		full = message.Headers{}
	}
	id := message.NewID()
	full[message.HeaderID] = message.String(id)
	now := m.now().Unix()
	full[message.HeaderCreated] = message.Int(now)

	if v, ok := full[expiresHeader]; ok {
		delete(full, expiresHeader)
		offset, ok := v.AsInt()
		if !ok {
			return "", errs.New(errs.KindInvalidArgument, "publish: expires must be an integer offset in seconds")
		}
		full[message.HeaderExpiresAt] = message.Int(now + offset)
	}

	msg := message.Message{ID: id, Headers: full, Body: body}
	if err := m.stageOrApplyInsert(topic, true, msg, tid); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Manager) stageOrApplyInsert(dest string, topic bool, msg message.Message, tid string) error {
	if tid == "" {
		return m.store.Transaction(func(c store.Collector) error {
			c.Insert(store.Insert{Destination: dest, Topic: topic, Message: msg})
			return nil
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookupOpenTx(tid)
	if err != nil {
		return err
	}
	t.inserts = append(t.inserts, pendingInsert{Destination: dest, Topic: topic, Message: msg})
	return nil
}

// fillReservedHeaders builds the full reserved-header set for a put:
// fresh id, created=now, delivery default best_effort, max_deliveries
// default 5 (>=1), priority default 0 (>=0), expires translated to
// expires_at.
func (m *Manager) fillReservedHeaders(user message.Headers) (message.Headers, error) {
	h := user.Clone()
	if h == nil {
		h = message.Headers{}
	}

	h[message.HeaderID] = message.String(message.NewID())
	now := m.now().Unix()
	h[message.HeaderCreated] = message.Int(now)

	delivery := message.DeliveryBestEffort
	if v, ok := h[message.HeaderDelivery]; ok {
		s, ok := v.AsSymbol()
		if !ok {
			s, ok = v.AsString()
		}
		if !ok || !message.Delivery(s).Valid() {
			return nil, errs.New(errs.KindInvalidArgument, "put: invalid delivery mode")
		}
		delivery = message.Delivery(s)
	}
	h[message.HeaderDelivery] = message.Symbol(string(delivery))

	maxDeliveries := int64(message.DefaultMaxDeliveries)
	if v, ok := h[message.HeaderMaxDeliveries]; ok {
		i, ok := v.AsInt()
		if !ok || i < 1 {
			return nil, errs.New(errs.KindInvalidArgument, "put: max_deliveries must be an integer >= 1")
		}
		maxDeliveries = i
	}
	h[message.HeaderMaxDeliveries] = message.Int(maxDeliveries)

	priority := int64(message.DefaultPriority)
	if v, ok := h[message.HeaderPriority]; ok {
		i, ok := v.AsInt()
		if !ok || i < 0 {
			return nil, errs.New(errs.KindInvalidArgument, "put: priority must be an integer >= 0")
		}
		priority = i
	}
	h[message.HeaderPriority] = message.Int(priority)

	if v, ok := h[expiresHeader]; ok {
		delete(h, expiresHeader)
		offset, ok := v.AsInt()
		if !ok {
			return nil, errs.New(errs.KindInvalidArgument, "put: expires must be an integer offset in seconds")
		}
		h[message.HeaderExpiresAt] = message.Int(now + offset)
	}

	return h, nil
}

// List returns headers currently visible in queue, routing any
// expired/exhausted message to DLQ or deleting it as a side effect.
func (m *Manager) List(queue string) ([]message.Headers, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "list: queue name must be non-empty")
	}

	for {
		m.mu.Lock()
		headers, err := m.store.GetHeaders(queue)
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}

		routed := false
		if queue != message.DLQ {
			for _, h := range headers {
				if m.isExpiredOrExhausted(h) {
					if err := m.routeExpired(queue, h); err != nil {
						return nil, err
					}
					routed = true
					break
				}
			}
		}
		if routed {
			continue
		}

		out := make([]message.Headers, len(headers))
		for i, h := range headers {
			out[i] = h.Clone()
		}
		return out, nil
	}
}

func (m *Manager) isExpiredOrExhausted(h message.Headers) bool {
	return h.IsExpired(m.now().Unix()) || h.IsExhausted()
}

// routeExpired routes a single expired/exhausted header outside of
// any lock: once/repeated moves to DLQ, best_effort deletes outright.
func (m *Manager) routeExpired(queue string, h message.Headers) error {
	id := h.ID()
	switch h.Delivery() {
	case message.DeliveryBestEffort:
		return m.store.Transaction(func(c store.Collector) error {
			c.Delete(store.Delete{Destination: queue, ID: id})
			return nil
		})
	default:
		return m.store.Transaction(func(c store.Collector) error {
			c.MoveToDLQ(store.DLQMove{From: queue, ID: id})
			return nil
		})
	}
}

// Dequeue selects, locks, and returns the first unlocked message in
// queue matching sel, applying expiration/exhaustion routing and
// once-mode DLQ semantics along the way.
func (m *Manager) Dequeue(queue string, sel message.Selector, tid string) (*message.Message, error) {
	if strings.TrimSpace(queue) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "dequeue: queue name must be non-empty")
	}
	if tid != "" {
		m.mu.Lock()
		_, err := m.lookupOpenTx(tid)
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	for {
		id, err := m.selectAndLock(queue, sel)
		if err != nil {
			return nil, err
		}
		if id == "" {
			return nil, nil
		}

		msg, err := m.fetchLocked(queue, id)
		if err != nil {
			m.mu.Lock()
			m.unlock(id)
			m.mu.Unlock()
			return nil, err
		}
		if msg == nil {
			// Raced with a concurrent structural change; retry.
			m.mu.Lock()
			m.unlock(id)
			m.mu.Unlock()
			continue
		}

		if queue != message.DLQ && m.isExpiredOrExhausted(msg.Headers) {
			if err := m.routeExpired(queue, msg.Headers); err != nil {
				m.mu.Lock()
				m.unlock(id)
				m.mu.Unlock()
				return nil, err
			}
			m.mu.Lock()
			m.unlock(id)
			m.mu.Unlock()
			continue
		}

		result, err := m.completeDequeue(queue, *msg, tid)
		if err != nil {
			m.mu.Lock()
			m.unlock(id)
			m.mu.Unlock()
			return nil, err
		}
		return result, nil
	}
}

// selectAndLock iterates queue's priority-ordered headers under the
// manager lock, skipping locked ids, and locks the first match.
func (m *Manager) selectAndLock(queue string, sel message.Selector) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	headers, err := m.store.GetHeaders(queue)
	if err != nil {
		return "", err
	}
	for _, h := range headers {
		id := h.ID()
		if m.isLocked(id) {
			continue
		}
		if sel.Match(h) {
			m.lock(id)
			return id, nil
		}
	}
	return "", nil
}

func (m *Manager) fetchLocked(queue, id string) (*message.Message, error) {
	return m.store.GetMessage(queue, message.IDSelector(id))
}

// completeDequeue handles once-mode on a non-DLQ queue by moving the
// message to DLQ immediately (keeping the lock) and staging only the
// DLQ-side deletion; every other mode stages (or applies) an ordinary
// delete.
func (m *Manager) completeDequeue(queue string, msg message.Message, tid string) (*message.Message, error) {
	once := queue != message.DLQ && msg.Headers.Delivery() == message.DeliveryOnce

	if once {
		if err := m.store.Transaction(func(c store.Collector) error {
			c.MoveToDLQ(store.DLQMove{From: queue, ID: msg.ID})
			return nil
		}); err != nil {
			return nil, err
		}
	}

	del := pendingDelete{
		Destination:  queue,
		ID:           msg.ID,
		Message:      msg,
		DLQImmediate: once,
	}
	if once {
		del.Destination = message.DLQ
	}

	if tid == "" {
		if err := m.store.Transaction(func(c store.Collector) error {
			c.Delete(store.Delete{Destination: del.Destination, ID: del.ID})
			return nil
		}); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.unlock(msg.ID)
		m.mu.Unlock()
		return cloneMessage(&msg), nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := m.lookupOpenTx(tid)
	if err != nil {
		return nil, err
	}
	t.deletes = append(t.deletes, del)
	return cloneMessage(&msg), nil
}

// Retrieve reads topic's current entry; nil if it matches seenID or
// is expired (after deleting it) or fails sel.
func (m *Manager) Retrieve(topic string, seenID string, sel message.Selector, tid string) (*message.Message, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, errs.New(errs.KindInvalidArgument, "retrieve: topic name must be non-empty")
	}
	if tid != "" {
		m.mu.Lock()
		_, err := m.lookupOpenTx(tid)
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	msg, err := m.store.GetLast(topic, seenID, message.AnySelector{})
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}

	if msg.Headers.IsExpired(m.now().Unix()) {
		if err := m.store.Transaction(func(c store.Collector) error {
			c.Delete(store.Delete{Destination: topic, Topic: true, ID: msg.ID})
			return nil
		}); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if !sel.Match(msg.Headers) {
		return nil, nil
	}
	return cloneMessage(msg), nil
}
