package audio

import (
	"errors"
	"testing"
)

func TestChunkBufferFlushesAtCapacity(t *testing.T) {
	b, err := NewChunkBuffer(4)
	if err != nil {
		t.Fatalf("NewChunkBuffer error: %v", err)
	}
	for i, sample := range []int16{1, 2, 3} {
		if _, ok := b.Push(sample); ok {
			t.Fatalf("Push #%d emitted a chunk before capacity", i)
		}
	}
	chunk, ok := b.Push(4)
	if !ok {
		t.Fatal("Push at capacity did not emit a chunk")
	}
	want := []int16{1, 2, 3, 4}
	if len(chunk.Samples) != len(want) {
		t.Fatalf("chunk len=%d, want %d", len(chunk.Samples), len(want))
	}
	for i := range want {
		if chunk.Samples[i] != want[i] {
			t.Fatalf("chunk[%d]=%d, want %d", i, chunk.Samples[i], want[i])
		}
	}
	if chunk.Partial {
		t.Fatal("full chunk marked partial")
	}
	if b.Len() != 0 {
		t.Fatalf("Len=%d after flush, want 0", b.Len())
	}
}

func TestChunkBufferCapacityPlusOne(t *testing.T) {
	b, _ := NewChunkBuffer(3)
	emitted := 0
	for i := 0; i < 4; i++ {
		if _, ok := b.Push(int16(i)); ok {
			emitted++
		}
	}
	if emitted != 1 {
		t.Fatalf("emitted=%d, want 1", emitted)
	}
	if b.Len() != 1 {
		t.Fatalf("Len=%d, want 1", b.Len())
	}
}

func TestChunkBufferChunkIsSnapshot(t *testing.T) {
	b, _ := NewChunkBuffer(2)
	b.Push(7)
	first, _ := b.Push(8)
	b.Push(9)
	b.Push(10)
	if first.Samples[0] != 7 || first.Samples[1] != 8 {
		t.Fatalf("first chunk=%v, want [7 8]", first.Samples)
	}
}

func TestChunkBufferSequence(t *testing.T) {
	b, _ := NewChunkBuffer(1)
	for want := uint64(0); want < 3; want++ {
		chunk, ok := b.Push(1)
		if !ok || chunk.Seq != want {
			t.Fatalf("seq=%d ok=%v, want %d", chunk.Seq, ok, want)
		}
	}
}

func TestChunkBufferFlushPartial(t *testing.T) {
	b, _ := NewChunkBuffer(8)
	if _, ok := b.Flush(); ok {
		t.Fatal("Flush on empty buffer emitted a chunk")
	}
	b.Push(5)
	b.Push(6)
	chunk, ok := b.Flush()
	if !ok {
		t.Fatal("Flush with buffered samples emitted nothing")
	}
	if !chunk.Partial || len(chunk.Samples) != 2 {
		t.Fatalf("chunk partial=%v len=%d, want partial len 2", chunk.Partial, len(chunk.Samples))
	}
	chunk.Release()
	if chunk.Samples != nil {
		t.Fatal("Release left samples attached")
	}
}

func TestNewChunkBufferRejectsInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		if _, err := NewChunkBuffer(capacity); !errors.Is(err, ErrInvalidCapacity) {
			t.Fatalf("NewChunkBuffer(%d) err=%v, want ErrInvalidCapacity", capacity, err)
		}
	}
}
