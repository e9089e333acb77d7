package vars

import (
	"sync"
	"weak"

	"github.com/go-drift/reactive/pkg/errors"
)

// mapVar is a read-only view computing fn over a source variable.
//
// The view subscribes to its source lazily, the first time a hook is
// registered on it. The subscription only holds the view weakly, and it
// removes itself once the view is gone or has no hooks left.
type mapVar[S, T any] struct {
	source Var[S]
	fn     func(S) T
	local  bool

	mu            sync.Mutex
	subscribed    bool
	hasCache      bool
	cached        T
	cachedVersion Version

	hooks hookRegistry[T]
}

// Map returns a read-only view whose value is fn applied to the value of
// source. fn runs on every read and on every source change while the view
// has hooks, so it should be cheap and free of side effects.
//
// Mapping a constant yields a constant.
func Map[S, T any](source Var[S], fn func(S) T) Var[T] {
	if isConst(source) {
		return Const(fn(source.Get()))
	}
	return &mapVar[S, T]{source: source, fn: fn}
}

// MapLocal is like [Map] but caches the computed value and recomputes only
// when the source version changes. Use it when fn is expensive.
func MapLocal[S, T any](source Var[S], fn func(S) T) Var[T] {
	if isConst(source) {
		return Const(fn(source.Get()))
	}
	return &mapVar[S, T]{source: source, fn: fn, local: true}
}

func (m *mapVar[S, T]) kind() varKind {
	if m.local {
		return kindMapLocal
	}
	return kindMap
}

func (m *mapVar[S, T]) Get() T {
	if !m.local {
		return m.fn(m.source.Get())
	}
	// Read the version before the value so a concurrent commit can only
	// leave a cache entry that is recomputed on the next read.
	version := m.source.Version()
	m.mu.Lock()
	if m.hasCache && m.cachedVersion == version {
		v := m.cached
		m.mu.Unlock()
		return v
	}
	m.mu.Unlock()

	v := m.fn(m.source.Get())
	m.mu.Lock()
	m.cached, m.cachedVersion, m.hasCache = v, version, true
	m.mu.Unlock()
	return v
}

func (m *mapVar[S, T]) With(read func(T))    { read(m.Get()) }
func (m *mapVar[S, T]) IsNew() bool          { return m.source.IsNew() }
func (m *mapVar[S, T]) LastUpdate() UpdateID { return m.source.LastUpdate() }
func (m *mapVar[S, T]) Version() Version     { return m.source.Version() }

func (m *mapVar[S, T]) Capabilities() Capability {
	return m.source.Capabilities() &^ CapModify
}

func (m *mapVar[S, T]) Modify(func(T) T) error {
	return errors.ReadOnly(opName[T](m, "Modify"))
}

func (m *mapVar[S, T]) Set(T) error {
	return errors.ReadOnly(opName[T](m, "Set"))
}

func (m *mapVar[S, T]) Hook(hook func(T) bool) HookHandle {
	h := m.hooks.add(hook)
	if h.entry != nil {
		m.subscribe()
	}
	return h
}

func (m *mapVar[S, T]) ReadOnly() Var[T] { return m }

func (m *mapVar[S, T]) Downgrade() WeakVar[T] {
	return downgrade[T](m)
}

func (m *mapVar[S, T]) subscribe() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed {
		return
	}
	m.subscribed = true
	m.source.Hook(forwardMap(weak.Make(m)))
}

// forwardMap builds the source hook. It must not capture the view strongly.
func forwardMap[S, T any](wm weak.Pointer[mapVar[S, T]]) func(S) bool {
	return func(value S) bool {
		m := wm.Value()
		if m == nil {
			return false
		}
		return m.sourceChanged(value)
	}
}

func (m *mapVar[S, T]) sourceChanged(value S) bool {
	m.mu.Lock()
	if m.hooks.count() == 0 {
		m.subscribed = false
		m.mu.Unlock()
		return false
	}
	v := m.fn(value)
	if m.local {
		m.cached, m.cachedVersion, m.hasCache = v, m.source.Version(), true
	}
	m.mu.Unlock()

	m.hooks.notify(v)
	return true
}

// bidiVar is a writable view: reads map the source forward and writes map
// the new value back into the source.
type bidiVar[S, T any] struct {
	view    *mapVar[S, T]
	source  Var[S]
	reverse func(T) S
}

// MapBidi returns a view of source through forward whose writes are
// translated by reverse and enqueued on source. The view is writable only
// when source is.
func MapBidi[S, T any](source Var[S], forward func(S) T, reverse func(T) S) Var[T] {
	return &bidiVar[S, T]{
		view:    &mapVar[S, T]{source: source, fn: forward},
		source:  source,
		reverse: reverse,
	}
}

func (b *bidiVar[S, T]) kind() varKind            { return kindMapBidi }
func (b *bidiVar[S, T]) Get() T                   { return b.view.Get() }
func (b *bidiVar[S, T]) With(read func(T))        { b.view.With(read) }
func (b *bidiVar[S, T]) IsNew() bool              { return b.view.IsNew() }
func (b *bidiVar[S, T]) LastUpdate() UpdateID     { return b.view.LastUpdate() }
func (b *bidiVar[S, T]) Version() Version         { return b.view.Version() }
func (b *bidiVar[S, T]) Capabilities() Capability { return b.source.Capabilities() }

func (b *bidiVar[S, T]) Modify(modify func(T) T) error {
	if modify == nil {
		return nil
	}
	forward := b.view.fn
	return b.source.Modify(func(s S) S {
		return b.reverse(modify(forward(s)))
	})
}

func (b *bidiVar[S, T]) Set(value T) error {
	return b.source.Set(b.reverse(value))
}

func (b *bidiVar[S, T]) Hook(hook func(T) bool) HookHandle {
	return b.view.Hook(hook)
}

func (b *bidiVar[S, T]) ReadOnly() Var[T] {
	return &readOnlyVar[T]{inner: b}
}

func (b *bidiVar[S, T]) Downgrade() WeakVar[T] {
	return downgrade[T](b)
}
