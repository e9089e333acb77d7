package vars

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"

	"github.com/go-drift/reactive/pkg/errors"
)

// cell is the concrete storage behind [New].
type cell[T any] struct {
	mu         sync.RWMutex
	value      T
	version    Version
	lastUpdate UpdateID
	equal      func(a, b T) bool

	qmu       sync.Mutex
	queue     []func(T) T
	scheduled bool

	applying   atomic.Bool
	importance atomic.Uint64

	amu  sync.Mutex
	anim *transition

	hooks hookRegistry[T]
}

// New creates a writable variable holding initial.
//
// Every applied modify commits a new version, even when the value is
// unchanged. Use [NewWithEquality] to skip commits that do not change the
// value.
func New[T any](initial T) Var[T] {
	return &cell[T]{value: initial}
}

// NewWithEquality creates a writable variable that only commits, bumps its
// version and notifies hooks when equal reports the folded value differs
// from the current one.
func NewWithEquality[T any](initial T, equal func(a, b T) bool) Var[T] {
	return &cell[T]{value: initial, equal: equal}
}

// NewComparable is [NewWithEquality] using ==.
func NewComparable[T comparable](initial T) Var[T] {
	return NewWithEquality(initial, func(a, b T) bool { return a == b })
}

func (c *cell[T]) kind() varKind { return kindCell }

func (c *cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *cell[T]) With(read func(T)) {
	read(c.Get())
}

func (c *cell[T]) IsNew() bool {
	last := c.LastUpdate()
	return last != NeverUpdated && last == CurrentUpdate()
}

func (c *cell[T]) LastUpdate() UpdateID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

func (c *cell[T]) Version() Version {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *cell[T]) Capabilities() Capability {
	return CapNew | CapModify
}

func (c *cell[T]) Modify(modify func(T) T) error {
	if modify == nil {
		return nil
	}
	c.enqueue(modify, nextImportance())
	return nil
}

func (c *cell[T]) Set(value T) error {
	return c.Modify(func(T) T { return value })
}

func (c *cell[T]) Hook(hook func(T) bool) HookHandle {
	return c.hooks.add(hook)
}

func (c *cell[T]) ReadOnly() Var[T] {
	return &readOnlyVar[T]{inner: c}
}

func (c *cell[T]) Downgrade() WeakVar[T] {
	return downgrade[T](c)
}

// enqueue appends modify to the queue. A non-zero importance marks a user
// request, which overrides animations started before it.
func (c *cell[T]) enqueue(modify func(T) T, imp Importance) {
	if c.applying.Load() && inApply() {
		panic(&errors.RecursiveModifyError{Var: c.describe()})
	}
	if imp != 0 {
		storeMaxImportance(&c.importance, imp)
	}

	c.qmu.Lock()
	c.queue = append(c.queue, modify)
	first := !c.scheduled
	c.scheduled = true
	c.qmu.Unlock()

	if first {
		schedule(c)
	}
}

func (c *cell[T]) apply(id UpdateID) func() {
	c.qmu.Lock()
	queue := c.queue
	c.queue = nil
	c.scheduled = false
	c.qmu.Unlock()
	if len(queue) == 0 {
		return nil
	}

	old := c.Get()
	value := old
	applied := false
	c.applying.Store(true)
	defer c.applying.Store(false)
	for _, modify := range queue {
		var ok bool
		value, ok = c.runModify(modify, value)
		applied = applied || ok
	}

	if !applied || c.unchanged(old, value) {
		return nil
	}

	c.mu.Lock()
	c.value = value
	c.version++
	c.lastUpdate = id
	c.mu.Unlock()

	return func() { c.hooks.notify(value) }
}

// runModify calls one queued closure. A panicking closure is reported and
// its result discarded; the fold continues with the previous value.
func (c *cell[T]) runModify(modify func(T) T, value T) (result T, ok bool) {
	result = value
	defer func() {
		if r := recover(); r != nil {
			result, ok = value, false
			c.reportModifyPanic(r)
		}
	}()
	return modify(value), true
}

// unchanged reports whether the equality function considers the folded
// value equal to the committed one. A panicking equality function is
// reported and the value is committed as changed.
func (c *cell[T]) unchanged(old, value T) (same bool) {
	if c.equal == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			same = false
			errors.ReportPanic(&errors.PanicError{
				Op:         "vars.cell.equal",
				Value:      r,
				StackTrace: errors.CaptureStack(),
			})
		}
	}()
	return c.equal(old, value)
}

func (c *cell[T]) reportModifyPanic(r any) {
	stack := errors.CaptureStack()
	if rec, ok := r.(*errors.RecursiveModifyError); ok {
		errors.Report(&errors.VarError{
			Op:         "vars.cell.Modify",
			Kind:       errors.KindRecursiveModify,
			Err:        rec,
			Key:        c.describe(),
			StackTrace: stack,
		})
		return
	}
	errors.ReportPanic(&errors.PanicError{
		Op:         "vars.cell.Modify",
		Value:      r,
		StackTrace: stack,
	})
}

func (c *cell[T]) describe() string {
	return fmt.Sprintf("%T@%p", c, c)
}

// setAnimation makes t the running animation and returns the one it replaced.
func (c *cell[T]) setAnimation(t *transition) *transition {
	c.amu.Lock()
	defer c.amu.Unlock()
	prev := c.anim
	c.anim = t
	return prev
}

// clearAnimation forgets t if it is still the running animation.
func (c *cell[T]) clearAnimation(t *transition) {
	c.amu.Lock()
	defer c.amu.Unlock()
	if c.anim == t {
		c.anim = nil
	}
}

func (c *cell[T]) animation() *transition {
	c.amu.Lock()
	defer c.amu.Unlock()
	return c.anim
}

func downgrade[T any, P any](p *P) WeakVar[T] {
	wp := weak.Make(p)
	return WeakVar[T]{upgrade: func() Var[T] {
		if strong := wp.Value(); strong != nil {
			if v, ok := any(strong).(Var[T]); ok {
				return v
			}
		}
		return nil
	}}
}
