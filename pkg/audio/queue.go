package audio

import "sync/atomic"

// DefaultQueueDepth is the number of chunks a ChunkQueue holds before dropping.
const DefaultQueueDepth = 32

// ChunkQueue hands chunks from the real-time producer to a slower consumer.
//
// There must be exactly one producer, and only the producer may call Close.
// TryPush never blocks; a full queue drops the chunk.
type ChunkQueue struct {
	ch      chan Chunk
	closed  atomic.Bool
	pushed  atomic.Uint64
	dropped atomic.Uint64
}

// NewChunkQueue creates a queue holding up to depth chunks.
func NewChunkQueue(depth int) *ChunkQueue {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	return &ChunkQueue{ch: make(chan Chunk, depth)}
}

// TryPush enqueues chunk without blocking. A chunk that cannot be queued is
// released and counted as dropped.
func (q *ChunkQueue) TryPush(chunk Chunk) bool {
	if q.closed.Load() {
		q.drop(chunk)
		return false
	}
	select {
	case q.ch <- chunk:
		q.pushed.Add(1)
		return true
	default:
		q.drop(chunk)
		return false
	}
}

func (q *ChunkQueue) drop(chunk Chunk) {
	chunk.Release()
	q.dropped.Add(1)
}

// C returns the receive side for the consumer.
func (q *ChunkQueue) C() <-chan Chunk { return q.ch }

// Close stops accepting chunks. Queued chunks remain readable.
func (q *ChunkQueue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.ch)
	}
}

// Len returns the number of queued chunks.
func (q *ChunkQueue) Len() int { return len(q.ch) }

// Cap returns the queue depth.
func (q *ChunkQueue) Cap() int { return cap(q.ch) }

// Pushed returns the number of chunks accepted.
func (q *ChunkQueue) Pushed() uint64 { return q.pushed.Load() }

// Dropped returns the number of chunks discarded because the queue was full or closed.
func (q *ChunkQueue) Dropped() uint64 { return q.dropped.Load() }
