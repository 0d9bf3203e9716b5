package audio

import "sync"

var int16Pool sync.Pool

func acquire[T any](pool *sync.Pool, size int) []T {
	if size <= 0 {
		return nil
	}
	if v := pool.Get(); v != nil {
		buf := v.([]T)
		if cap(buf) >= size {
			return buf[:size]
		}
	}
	return make([]T, size)
}

func release[T any](pool *sync.Pool, buf []T) {
	if buf == nil {
		return
	}
	pool.Put(buf[:0])
}

// AcquireInt16 returns an int16 slice with length size. Chunk samples come from here.
func AcquireInt16(size int) []int16 { return acquire[int16](&int16Pool, size) }

// ReleaseInt16 puts an int16 slice back to the pool.
func ReleaseInt16(buf []int16) { release(&int16Pool, buf) }
