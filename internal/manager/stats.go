package manager

import "github.com/assaf/reliable-msg/internal/message"

// QueueStats summarizes one queue's rough state, supplementing spec.md
// with the backlog-visibility feature every comparable system in the
// retrieved pack ships (see SPEC_FULL.md SUPPLEMENTED FEATURES).
type QueueStats struct {
	Queue        string
	Ready        int
	Locked       int
	OldestAgeSec int64
}

// Stats returns per-queue counts split by ready/locked, plus the age
// of the oldest ready header, for each queue named in queues (the DLQ
// only when message.DLQ is among them).
func (m *Manager) Stats(queues []string) ([]QueueStats, error) {
	now := m.now().Unix()
	out := make([]QueueStats, 0, len(queues))

	for _, q := range queues {
		m.mu.Lock()
		headers, err := m.store.GetHeaders(q)
		locked := make(map[string]struct{}, len(m.locked))
		for id := range m.locked {
			locked[id] = struct{}{}
		}
		m.mu.Unlock()
		if err != nil {
			return nil, err
		}

		st := QueueStats{Queue: q}
		var oldest int64
		for _, h := range headers {
			id := h.ID()
			if _, ok := locked[id]; ok {
				st.Locked++
				continue
			}
			st.Ready++
			if created, ok := h[message.HeaderCreated]; ok {
				if v, ok := created.AsInt(); ok {
					age := now - v
					if age > oldest {
						oldest = age
					}
				}
			}
		}
		st.OldestAgeSec = oldest
		out = append(out, st)
	}
	return out, nil
}
