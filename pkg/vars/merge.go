package vars

import (
	"sync"
	"weak"

	"github.com/go-drift/reactive/pkg/errors"
)

// mergeSource is the type-erased part of a merged variable's input.
type mergeSource interface {
	IsNew() bool
	LastUpdate() UpdateID
	Version() Version
	Capabilities() Capability
	hookChange(fn func() bool) HookHandle
}

type erased[T any] struct {
	v Var[T]
}

func (e erased[T]) IsNew() bool              { return e.v.IsNew() }
func (e erased[T]) LastUpdate() UpdateID     { return e.v.LastUpdate() }
func (e erased[T]) Version() Version         { return e.v.Version() }
func (e erased[T]) Capabilities() Capability { return e.v.Capabilities() }

func (e erased[T]) hookChange(fn func() bool) HookHandle {
	return e.v.Hook(func(T) bool { return fn() })
}

// mergeVar is a read-only view computed from several sources. Its hooks fire
// at most once per tick, however many sources changed in it.
type mergeVar[O any] struct {
	sources []mergeSource
	compute func() O

	mu         sync.Mutex
	subscribed bool
	srcHooks   []HookHandle
	notified   UpdateID

	hooks hookRegistry[O]
}

func newMerge[O any](sources []mergeSource, compute func() O) Var[O] {
	allConst := true
	for _, s := range sources {
		if s.Capabilities().Has(CapNew) {
			allConst = false
			break
		}
	}
	if allConst {
		return Const(compute())
	}
	return &mergeVar[O]{sources: sources, compute: compute}
}

// Merge returns a read-only view whose value is fn applied to the current
// values of sources, in order.
func Merge[T, O any](sources []Var[T], fn func([]T) O) Var[O] {
	srcs := append([]Var[T](nil), sources...)
	erasedSrcs := make([]mergeSource, len(srcs))
	for i, s := range srcs {
		erasedSrcs[i] = erased[T]{s}
	}
	return newMerge(erasedSrcs, func() O {
		values := make([]T, len(srcs))
		for i, s := range srcs {
			values[i] = s.Get()
		}
		return fn(values)
	})
}

// Merge2 is [Merge] over two sources of different types.
func Merge2[A, B, O any](a Var[A], b Var[B], fn func(A, B) O) Var[O] {
	return newMerge([]mergeSource{erased[A]{a}, erased[B]{b}}, func() O {
		return fn(a.Get(), b.Get())
	})
}

// Merge3 is [Merge] over three sources of different types.
func Merge3[A, B, C, O any](a Var[A], b Var[B], c Var[C], fn func(A, B, C) O) Var[O] {
	return newMerge([]mergeSource{erased[A]{a}, erased[B]{b}, erased[C]{c}}, func() O {
		return fn(a.Get(), b.Get(), c.Get())
	})
}

func (m *mergeVar[O]) kind() varKind     { return kindMerge }
func (m *mergeVar[O]) Get() O            { return m.compute() }
func (m *mergeVar[O]) With(read func(O)) { read(m.compute()) }

func (m *mergeVar[O]) IsNew() bool {
	for _, s := range m.sources {
		if s.IsNew() {
			return true
		}
	}
	return false
}

func (m *mergeVar[O]) LastUpdate() UpdateID {
	last := NeverUpdated
	for _, s := range m.sources {
		u := s.LastUpdate()
		if u == NeverUpdated {
			continue
		}
		if last == NeverUpdated || u.After(last) {
			last = u
		}
	}
	return last
}

// Version is the sum of the source versions. Source versions only grow, so
// the sum changes whenever any source changes.
func (m *mergeVar[O]) Version() Version {
	var sum Version
	for _, s := range m.sources {
		sum += s.Version()
	}
	return sum
}

func (m *mergeVar[O]) Capabilities() Capability {
	var caps Capability
	for _, s := range m.sources {
		caps |= s.Capabilities()
	}
	return caps &^ CapModify
}

func (m *mergeVar[O]) Modify(func(O) O) error {
	return errors.ReadOnly(opName[O](m, "Modify"))
}

func (m *mergeVar[O]) Set(O) error {
	return errors.ReadOnly(opName[O](m, "Set"))
}

func (m *mergeVar[O]) Hook(hook func(O) bool) HookHandle {
	h := m.hooks.add(hook)
	if h.entry != nil {
		m.subscribe()
	}
	return h
}

func (m *mergeVar[O]) ReadOnly() Var[O] { return m }

func (m *mergeVar[O]) Downgrade() WeakVar[O] {
	return downgrade[O](m)
}

func (m *mergeVar[O]) subscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return
	}
	m.subscribed = true
	forward := forwardMerge(weak.Make(m))
	m.srcHooks = make([]HookHandle, len(m.sources))
	for i, s := range m.sources {
		m.srcHooks[i] = s.hookChange(forward)
	}
}

func forwardMerge[O any](wm weak.Pointer[mergeVar[O]]) func() bool {
	return func() bool {
		m := wm.Value()
		if m == nil {
			return false
		}
		return m.sourceChanged()
	}
}

func (m *mergeVar[O]) sourceChanged() bool {
	m.mu.Lock()
	if m.hooks.count() == 0 {
		// Drop every source subscription, not just the calling one.
		for _, h := range m.srcHooks {
			h.Unhook()
		}
		m.srcHooks = nil
		m.subscribed = false
		m.mu.Unlock()
		return false
	}
	update := CurrentUpdate()
	if m.notified == update {
		m.mu.Unlock()
		return true
	}
	m.notified = update
	m.mu.Unlock()

	m.hooks.notify(m.compute())
	return true
}
