package engine

// ring is a fixed-capacity buffer that overwrites its oldest entry. It is not
// safe for concurrent use; owners guard it with their own lock.
type ring[T any] struct {
	items []T
	next  int
	count int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{items: make([]T, max(capacity, 1))}
}

func (r *ring[T]) capacity() int { return len(r.items) }

func (r *ring[T]) add(v T) {
	r.items[r.next] = v
	r.next = (r.next + 1) % len(r.items)
	r.count = min(r.count+1, len(r.items))
}

// last returns the most recently added entry.
func (r *ring[T]) last() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.items[(r.next+len(r.items)-1)%len(r.items)], true
}

// snapshot copies the entries oldest first, or returns nil when empty.
func (r *ring[T]) snapshot() []T {
	if r.count == 0 {
		return nil
	}
	out := make([]T, 0, r.count)
	if r.count < len(r.items) {
		return append(out, r.items[:r.count]...)
	}
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}
