package disk

import (
	"encoding/json"

	"github.com/assaf/reliable-msg/internal/message"
)

// entry is one header list member: the durable id plus its headers.
// Bodies are never part of the snapshot; they live in per-message files.
type entry struct {
	ID      string          `json:"id"`
	Headers message.Headers `json:"headers"`
}

// snapshot is the complete image persisted to the master index: every
// queue's priority-ordered header list, every topic's current entry,
// the id-to-filename mapping, and the free-file list. It is the single
// source of truth for queue/topic state.
type snapshot struct {
	Queues map[string][]entry `json:"queues"`
	Topics map[string]entry   `json:"topics"`
	Files  map[string]string  `json:"files"` // message id -> filename
	Free   []string           `json:"free"`  // filenames available for reuse
}

func newSnapshot() *snapshot {
	return &snapshot{
		Queues: make(map[string][]entry),
		Topics: make(map[string]entry),
		Files:  make(map[string]string),
	}
}

func (s *snapshot) clone() *snapshot {
	out := newSnapshot()
	for q, list := range s.Queues {
		cloned := make([]entry, len(list))
		for i, e := range list {
			cloned[i] = entry{ID: e.ID, Headers: e.Headers.Clone()}
		}
		out.Queues[q] = cloned
	}
	for t, e := range s.Topics {
		out.Topics[t] = entry{ID: e.ID, Headers: e.Headers.Clone()}
	}
	for id, fn := range s.Files {
		out.Files[id] = fn
	}
	out.Free = append(out.Free, s.Free...)
	return out
}

func encodeSnapshot(s *snapshot) ([]byte, error) {
	return json.Marshal(s)
}

func decodeSnapshot(data []byte) (*snapshot, error) {
	s := newSnapshot()
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, err
	}
	if s.Queues == nil {
		s.Queues = make(map[string][]entry)
	}
	if s.Topics == nil {
		s.Topics = make(map[string]entry)
	}
	if s.Files == nil {
		s.Files = make(map[string]string)
	}
	return s, nil
}

// insertOrdered inserts e into the priority-descending list for queue,
// placing it before the first element with strictly lower priority
// (I2: priority-descending, ties broken by insertion order, i.e.
// stable append at the tail of the equal-priority run).
func insertOrdered(list []entry, e entry) []entry {
	p := e.Headers.Priority()
	idx := len(list)
	for i, existing := range list {
		if existing.Headers.Priority() < p {
			idx = i
			break
		}
	}
	out := make([]entry, 0, len(list)+1)
	out = append(out, list[:idx]...)
	out = append(out, e)
	out = append(out, list[idx:]...)
	return out
}

func removeByID(list []entry, id string) ([]entry, bool) {
	for i, e := range list {
		if e.ID == id {
			out := make([]entry, 0, len(list)-1)
			out = append(out, list[:i]...)
			out = append(out, list[i+1:]...)
			return out, true
		}
	}
	return list, false
}
