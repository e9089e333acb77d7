package testing

import (
	"sync"

	"github.com/go-drift/reactive/pkg/vars"
)

// Recorder collects every value a variable's hooks observe.
type Recorder[T any] struct {
	mu     sync.Mutex
	values []T
	handle vars.HookHandle
}

// Record hooks v and returns a recorder of the values it commits.
func Record[T any](v vars.Var[T]) *Recorder[T] {
	r := &Recorder[T]{}
	r.handle = v.Hook(func(value T) bool {
		r.mu.Lock()
		r.values = append(r.values, value)
		r.mu.Unlock()
		return true
	})
	return r
}

// Values returns the recorded values in order.
func (r *Recorder[T]) Values() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...)
}

// Len returns the number of recorded values.
func (r *Recorder[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Last returns the most recent value. ok is false if nothing was recorded.
func (r *Recorder[T]) Last() (value T, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return value, false
	}
	return r.values[len(r.values)-1], true
}

// Reset forgets the recorded values.
func (r *Recorder[T]) Reset() {
	r.mu.Lock()
	r.values = nil
	r.mu.Unlock()
}

// Stop unhooks the recorder.
func (r *Recorder[T]) Stop() {
	r.handle.Unhook()
}
