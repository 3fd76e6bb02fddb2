package engine

// ring is a bounded FIFO with silent oldest-first eviction. The time buffer
// and every value buffer share one capacity so they stay index-aligned.
type ring[T any] struct {
	data  []T
	start int
	count int
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{data: make([]T, capacity)}
}

// Append adds v, dropping the oldest entry when full.
func (r *ring[T]) Append(v T) {
	if r.count < len(r.data) {
		r.data[(r.start+r.count)%len(r.data)] = v
		r.count++
		return
	}
	r.data[r.start] = v
	r.start = (r.start + 1) % len(r.data)
}

// Values returns the buffered entries oldest first as a fresh slice.
func (r *ring[T]) Values() []T {
	out := make([]T, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.data[(r.start+i)%len(r.data)]
	}
	return out
}

func (r *ring[T]) Len() int { return r.count }

func (r *ring[T]) Cap() int { return len(r.data) }

// Clear empties the buffer without releasing its backing storage.
func (r *ring[T]) Clear() {
	var zero T
	for i := range r.data {
		r.data[i] = zero
	}
	r.start = 0
	r.count = 0
}
