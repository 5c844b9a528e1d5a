// Package stream manages resumable output streams. A stream outlives the
// HTTP request that started it: production is decoupled from delivery, and
// late or reconnecting consumers catch up by replaying from offset zero.
package stream

// Chunk is one unit of output text with a monotonically increasing sequence
// position within its stream.
type Chunk struct {
	Seq   int    `json:"seq"`
	Delta string `json:"delta,omitempty"`
	Final bool   `json:"final,omitempty"`
	Err   string `json:"error,omitempty"`
}

// Single returns a closed channel carrying one terminal chunk. Used for
// command results and final-message replays.
func Single(text string) <-chan Chunk {
	ch := make(chan Chunk, 1)
	ch <- Chunk{Seq: 0, Delta: text, Final: true}
	close(ch)
	return ch
}

// Empty returns a closed channel carrying nothing: the signal that there is
// nothing to resume.
func Empty() <-chan Chunk {
	ch := make(chan Chunk)
	close(ch)
	return ch
}

// Fault returns a closed channel carrying one terminal error chunk.
func Fault(msg string) <-chan Chunk {
	ch := make(chan Chunk, 1)
	ch <- Chunk{Seq: 0, Final: true, Err: msg}
	close(ch)
	return ch
}
