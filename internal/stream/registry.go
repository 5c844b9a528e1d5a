package stream

import (
	"sync"
	"time"
)

// registry maps live stream handles to their catch-up buffers.
type registry struct {
	mu   sync.Mutex
	bufs map[string]*buffer
}

func newRegistry() *registry {
	return &registry{bufs: make(map[string]*buffer)}
}

// getOrCreate returns the buffer for a handle, creating it on first use.
// The second result reports whether this call created it.
func (r *registry) getOrCreate(id string) (*buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.bufs[id]; ok {
		return b, false
	}
	b := newBuffer()
	r.bufs[id] = b
	return b, true
}

func (r *registry) get(id string) (*buffer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.bufs[id]
	return b, ok
}

// pruneCompleted drops buffers whose streams finished longer than keep ago.
// A completed buffer stays around for the freshness window so late resumes
// can still catch up in-memory.
func (r *registry) pruneCompleted(keep time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-keep)
	pruned := 0
	for id, b := range r.bufs {
		if at, done := b.completedAt(); done && at.Before(cutoff) {
			delete(r.bufs, id)
			pruned++
		}
	}
	return pruned
}
