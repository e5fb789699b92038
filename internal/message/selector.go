package message

// Selector is the predicate a consumer supplies to dequeue/retrieve. The
// broker only ever evaluates the two forms below server-side; a general
// boolean expression over headers is evaluated by the client (see the
// client package) and resubmitted as an IDSelector.
type Selector interface {
	// Match reports whether the given headers satisfy the selector.
	Match(headers Headers) bool
}

// EqualitySelector matches when every listed header equals the given
// value.
type EqualitySelector map[string]Value

func (s EqualitySelector) Match(headers Headers) bool {
	for name, want := range s {
		got, ok := headers[name]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// IDSelector matches only the message carrying the given id.
type IDSelector string

func (s IDSelector) Match(headers Headers) bool {
	id, ok := headers[HeaderID]
	if !ok {
		return false
	}
	got, ok := id.AsString()
	return ok && got == string(s)
}

// AnySelector matches every message; used for list/dequeue calls that
// want the head of the queue without discrimination.
type AnySelector struct{}

func (AnySelector) Match(Headers) bool { return true }
