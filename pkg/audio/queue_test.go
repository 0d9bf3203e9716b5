package audio

import "testing"

func TestChunkQueuePreservesOrder(t *testing.T) {
	q := NewChunkQueue(4)
	for seq := uint64(0); seq < 3; seq++ {
		if !q.TryPush(Chunk{Seq: seq}) {
			t.Fatalf("TryPush(%d)=false, want true", seq)
		}
	}
	q.Close()
	want := uint64(0)
	for chunk := range q.C() {
		if chunk.Seq != want {
			t.Fatalf("seq=%d, want %d", chunk.Seq, want)
		}
		want++
	}
	if want != 3 {
		t.Fatalf("received=%d, want 3", want)
	}
}

func TestChunkQueueDropsWhenFull(t *testing.T) {
	q := NewChunkQueue(2)
	q.TryPush(Chunk{Seq: 0})
	q.TryPush(Chunk{Seq: 1})
	if q.TryPush(Chunk{Seq: 2, Samples: AcquireInt16(4)}) {
		t.Fatal("TryPush on full queue=true, want false")
	}
	if q.Dropped() != 1 || q.Pushed() != 2 {
		t.Fatalf("dropped=%d pushed=%d, want 1 and 2", q.Dropped(), q.Pushed())
	}
	if q.Len() != 2 {
		t.Fatalf("Len=%d, want 2", q.Len())
	}
}

func TestChunkQueueRejectsAfterClose(t *testing.T) {
	q := NewChunkQueue(0)
	if q.Cap() != DefaultQueueDepth {
		t.Fatalf("Cap=%d, want %d", q.Cap(), DefaultQueueDepth)
	}
	q.Close()
	q.Close()
	if q.TryPush(Chunk{}) {
		t.Fatal("TryPush after Close=true, want false")
	}
}
