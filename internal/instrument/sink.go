package instrument

import "sync"

// MemorySink keeps events in memory instead of writing them anywhere.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Enqueue(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

// Events returns a copy of everything enqueued so far.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
