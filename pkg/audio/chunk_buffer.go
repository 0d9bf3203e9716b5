package audio

import "fmt"

// DefaultBufferCapacity is the number of samples in a full chunk.
const DefaultBufferCapacity = 2048

// Chunk is a batch of PCM16 samples handed to the consumer.
//
// Samples come from the int16 pool; the receiver owns them and may call
// Release once it no longer needs them.
type Chunk struct {
	Seq     uint64
	Samples []int16
	// Partial is set for an undersized chunk flushed at session close.
	Partial bool
}

// Release returns the samples to the pool. The chunk must not be used afterwards.
func (c *Chunk) Release() {
	if c == nil || c.Samples == nil {
		return
	}
	ReleaseInt16(c.Samples)
	c.Samples = nil
}

// ChunkBuffer accumulates samples and emits a chunk each time it fills.
type ChunkBuffer struct {
	buf     []int16
	cursor  int
	nextSeq uint64
}

// NewChunkBuffer creates a buffer holding capacity samples.
func NewChunkBuffer(capacity int) (*ChunkBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity %d: %w", capacity, ErrInvalidCapacity)
	}
	return &ChunkBuffer{buf: make([]int16, capacity)}, nil
}

// Push appends one sample. When the buffer becomes full it returns the
// complete chunk and starts over from an empty buffer.
func (b *ChunkBuffer) Push(sample int16) (Chunk, bool) {
	b.buf[b.cursor] = sample
	b.cursor++
	if b.cursor < len(b.buf) {
		return Chunk{}, false
	}
	return b.emit(false), true
}

// Flush emits whatever is buffered as a partial chunk. An empty buffer emits nothing.
func (b *ChunkBuffer) Flush() (Chunk, bool) {
	if b.cursor == 0 {
		return Chunk{}, false
	}
	return b.emit(b.cursor < len(b.buf)), true
}

func (b *ChunkBuffer) emit(partial bool) Chunk {
	samples := AcquireInt16(b.cursor)
	copy(samples, b.buf[:b.cursor])
	chunk := Chunk{Seq: b.nextSeq, Samples: samples, Partial: partial}
	b.nextSeq++
	b.cursor = 0
	return chunk
}

// Len returns the number of buffered samples.
func (b *ChunkBuffer) Len() int { return b.cursor }

// Cap returns the chunk size.
func (b *ChunkBuffer) Cap() int { return len(b.buf) }

// Reset discards buffered samples. Sequence numbers keep counting.
func (b *ChunkBuffer) Reset() { b.cursor = 0 }
