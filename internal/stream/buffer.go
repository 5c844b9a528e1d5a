package stream

import (
	"context"
	"sync"
	"time"
)

// buffer is an append-only chunk log. Writers append, readers replay from
// offset zero; that makes catch-up for late joiners a plain read.
type buffer struct {
	mu      sync.Mutex
	chunks  []Chunk
	done    bool
	doneAt  time.Time
	changed chan struct{} // closed and replaced on every state change
}

func newBuffer() *buffer {
	return &buffer{changed: make(chan struct{})}
}

func (b *buffer) append(c Chunk) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.chunks = append(b.chunks, c)
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *buffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.doneAt = time.Now()
	close(b.changed)
	b.changed = make(chan struct{})
}

func (b *buffer) isDone() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.done
}

func (b *buffer) completedAt() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doneAt, b.done
}

// subscribe returns a channel that replays every chunk from position zero
// and then follows the live tail. The channel closes when the buffer is
// complete or ctx is cancelled; cancelling delivery never affects the buffer.
func (b *buffer) subscribe(ctx context.Context) <-chan Chunk {
	out := make(chan Chunk, 16)

	go func() {
		defer close(out)
		next := 0

		for {
			b.mu.Lock()
			for next < len(b.chunks) {
				c := b.chunks[next]
				next++
				b.mu.Unlock()

				select {
				case out <- c:
				case <-ctx.Done():
					return
				}

				b.mu.Lock()
			}
			if b.done {
				b.mu.Unlock()
				return
			}
			wait := b.changed
			b.mu.Unlock()

			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
