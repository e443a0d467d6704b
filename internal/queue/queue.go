// Package queue implements the bounded many-to-one hand-off between
// capture adapters and the repacketizer, with drop-newest overflow
// discipline.
package queue

import (
	"errors"

	"github.com/ColonelBlimp/audiosender/internal/audio"
)

// Capacity is the fixed channel capacity: at a 5ms frame and typical
// 10-30ms adapter callback cadences this gives >5s of burst tolerance
// while bounding memory (spec.md §4.2).
const Capacity = 512

// ErrClosed is returned by Pop once every producer side has gone away.
// It is treated as a fatal pipeline error by the caller.
var ErrClosed = errors.New("capture queue closed")

// Queue is a bounded multi-producer / single-consumer channel of capture
// chunks. Producers never block: TryPush drops the newest chunk and
// reports the drop when the queue is full.
type Queue struct {
	ch chan audio.Chunk
}

// New creates a Queue at the fixed Capacity.
func New() *Queue {
	return &Queue{ch: make(chan audio.Chunk, Capacity)}
}

// Chan exposes the underlying channel for tests and for callers that need
// to close it; capture adapters enqueue through TryPush, never here.
func (q *Queue) Chan() chan audio.Chunk {
	return q.ch
}

// TryPush attempts a non-blocking enqueue. It returns false if the queue
// was full and the chunk was dropped.
func (q *Queue) TryPush(c audio.Chunk) bool {
	select {
	case q.ch <- c:
		return true
	default:
		return false
	}
}

// Pop blocks until a chunk is available or the queue is closed.
func (q *Queue) Pop() (audio.Chunk, error) {
	c, ok := <-q.ch
	if !ok {
		return audio.Chunk{}, ErrClosed
	}
	return c, nil
}

// Len reports the current backlog, used for telemetry's "q=" field.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close signals no more producers will send. Safe to call once.
func (q *Queue) Close() {
	close(q.ch)
}
