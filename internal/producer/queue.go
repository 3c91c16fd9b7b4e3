package producer

// fifo is a fixed-capacity ring. Removal is strictly from the head,
// so delivery order always equals insertion order.
type fifo[T any] struct {
	items []T
	head  int
	size  int
}

func newFIFO[T any](capacity int) *fifo[T] {
	return &fifo[T]{items: make([]T, capacity)}
}

func (q *fifo[T]) Len() int { return q.size }

func (q *fifo[T]) Cap() int { return len(q.items) }

func (q *fifo[T]) Full() bool { return q.size == len(q.items) }

// Push appends v and reports false if the ring is full.
func (q *fifo[T]) Push(v T) bool {
	if q.Full() {
		return false
	}
	q.items[(q.head+q.size)%len(q.items)] = v
	q.size++
	return true
}

// PopN removes and returns the n oldest items, or all of them if fewer remain.
func (q *fifo[T]) PopN(n int) []T {
	if n > q.size {
		n = q.size
	}
	out := make([]T, n)
	for i := range out {
		out[i] = q.items[q.head]
		var zero T
		q.items[q.head] = zero
		q.head = (q.head + 1) % len(q.items)
	}
	q.size -= n
	return out
}
