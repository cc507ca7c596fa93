package events

import "sync"

// Ring holds the most recent events for late joiners and /events.
type Ring struct {
	mu    sync.RWMutex
	slots []Event
	next  int
	count int
	total uint64
}

// NewRing returns a ring holding up to size events.
func NewRing(size int) *Ring {
	if size < 1 {
		size = 1
	}
	return &Ring{slots: make([]Event, size)}
}

func (r *Ring) Add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slots[r.next] = e
	r.next = (r.next + 1) % len(r.slots)
	if r.count < len(r.slots) {
		r.count++
	}
	r.total++
}

// Snapshot copies the held events, oldest first.
func (r *Ring) Snapshot() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Event, 0, r.count)
	start := (r.next - r.count + len(r.slots)) % len(r.slots)
	for i := 0; i < r.count; i++ {
		out = append(out, r.slots[(start+i)%len(r.slots)])
	}
	return out
}

// Total counts every event ever added, overwritten ones included.
func (r *Ring) Total() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.slots)
	r.next, r.count, r.total = 0, 0, 0
}
