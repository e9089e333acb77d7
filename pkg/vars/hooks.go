package vars

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-drift/reactive/pkg/errors"
)

// HookHandle controls a registered hook. The zero value is a valid handle
// for a hook that will never be called.
type HookHandle struct {
	entry hookEntry
}

type hookEntry interface {
	unhook()
	active() bool
}

// Unhook unregisters the hook. No invocation starts after Unhook returns,
// even for a change already queued. Calling it more than once, or after the
// variable is gone, is a no-op.
func (h HookHandle) Unhook() {
	if h.entry != nil {
		h.entry.unhook()
	}
}

// IsActive reports whether the hook is still registered.
func (h HookHandle) IsActive() bool {
	return h.entry != nil && h.entry.active()
}

type hook[T any] struct {
	fn      func(T) bool
	removed atomic.Bool
}

func (h *hook[T]) unhook()      { h.removed.Store(true) }
func (h *hook[T]) active() bool { return !h.removed.Load() }

// hookRegistry is the list of callbacks owned by one observed variable.
type hookRegistry[T any] struct {
	mu      sync.Mutex
	entries []*hook[T]
}

func (r *hookRegistry[T]) add(fn func(T) bool) HookHandle {
	if fn == nil {
		return HookHandle{}
	}
	h := &hook[T]{fn: fn}
	r.mu.Lock()
	r.entries = append(r.entries, h)
	r.mu.Unlock()
	return HookHandle{entry: h}
}

// count returns the number of hooks that have not been removed.
func (r *hookRegistry[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, h := range r.entries {
		if h.active() {
			n++
		}
	}
	return n
}

// notify calls every active hook with value. Hooks registered during the
// dispatch are first called on the next change.
func (r *hookRegistry[T]) notify(value T) {
	r.mu.Lock()
	if len(r.entries) == 0 {
		r.mu.Unlock()
		return
	}
	entries := slices.Clone(r.entries)
	r.mu.Unlock()

	compact := false
	for _, h := range entries {
		if !h.active() {
			compact = true
			continue
		}
		if !callHook(h.fn, value) {
			h.unhook()
			compact = true
		}
	}
	if compact {
		r.compact()
	}
}

func (r *hookRegistry[T]) compact() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = slices.DeleteFunc(r.entries, func(h *hook[T]) bool {
		return !h.active()
	})
}

// callHook runs one hook. A panicking hook is reported and stays registered.
func callHook[T any](fn func(T) bool, value T) (keep bool) {
	keep = true
	defer errors.Recover("vars.hook")
	return fn(value)
}
