package vars

import (
	"sync"
	"sync/atomic"

	"github.com/go-drift/reactive/pkg/errors"
)

// ContextSlot is a key for a value that can be overridden for the duration
// of a call. Outside any override the slot resolves to its default.
//
// Overrides are scoped to the goroutine that installs them. Use
// [CaptureContext] to carry the active overrides to another goroutine.
type ContextSlot[T any] struct {
	id  uint64
	def Var[T]
}

var slotIDs atomic.Uint64

// NewContextSlot creates a slot whose default is the constant def.
func NewContextSlot[T any](def T) *ContextSlot[T] {
	return NewContextSlotVar(Const(def))
}

// NewContextSlotVar creates a slot whose default is the variable def.
func NewContextSlotVar[T any](def Var[T]) *ContextSlot[T] {
	return &ContextSlot[T]{id: slotIDs.Add(1), def: def}
}

// Default returns the variable the slot resolves to outside any override.
func (s *ContextSlot[T]) Default() Var[T] { return s.def }

// Current returns the value the slot resolves to on this goroutine.
func (s *ContextSlot[T]) Current() T {
	v, _ := s.resolve()
	return v.Get()
}

// Var returns a proxy that resolves the slot on every access.
func (s *ContextSlot[T]) Var() Var[T] {
	return ContextVar(s)
}

func (s *ContextSlot[T]) resolve() (Var[T], uint64) {
	if activeFrames.Load() == 0 {
		return s.def, 0
	}
	f, ok := lookupFrame(goroutineID(), s.id)
	if !ok {
		return s.def, 0
	}
	return f.value.(Var[T]), f.serial
}

// WithContext runs fn with slot resolving to the constant value.
func WithContext[T any](slot *ContextSlot[T], value T, fn func()) {
	WithContextVar(slot, Const(value), fn)
}

// WithContextVar runs fn with slot resolving to v. The override is removed
// when fn returns or panics; overrides nest and the innermost one wins.
func WithContextVar[T any](slot *ContextSlot[T], v Var[T], fn func()) {
	gid := goroutineID()
	pushFrames(gid, frame{slot: slot.id, value: v, serial: frameSerial.Add(1)})
	defer popFrames(gid, 1)
	fn()
}

type frame struct {
	slot   uint64
	value  any // Var[T] for the slot's T
	serial uint64
}

// scopeStack holds one goroutine's overrides. Only the owning goroutine
// touches it, so it needs no lock.
type scopeStack struct {
	frames []frame
}

var (
	scopes       sync.Map // goroutine id -> *scopeStack
	activeFrames atomic.Int64
	frameSerial  atomic.Uint64
)

func pushFrames(gid uint64, frames ...frame) {
	if len(frames) == 0 {
		return
	}
	st, _ := scopes.LoadOrStore(gid, &scopeStack{})
	stack := st.(*scopeStack)
	stack.frames = append(stack.frames, frames...)
	activeFrames.Add(int64(len(frames)))
}

func popFrames(gid uint64, n int) {
	if n == 0 {
		return
	}
	st, ok := scopes.Load(gid)
	if !ok {
		return
	}
	stack := st.(*scopeStack)
	stack.frames = stack.frames[:len(stack.frames)-n]
	if len(stack.frames) == 0 {
		scopes.Delete(gid)
	}
	activeFrames.Add(-int64(n))
}

func lookupFrame(gid, slot uint64) (frame, bool) {
	st, ok := scopes.Load(gid)
	if !ok {
		return frame{}, false
	}
	frames := st.(*scopeStack).frames
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i].slot == slot {
			return frames[i], true
		}
	}
	return frame{}, false
}

// ContextSnapshot is a captured set of context overrides.
type ContextSnapshot struct {
	frames []frame
}

// CaptureContext returns the overrides active on the calling goroutine.
func CaptureContext() ContextSnapshot {
	if activeFrames.Load() == 0 {
		return ContextSnapshot{}
	}
	st, ok := scopes.Load(goroutineID())
	if !ok {
		return ContextSnapshot{}
	}
	return ContextSnapshot{frames: append([]frame(nil), st.(*scopeStack).frames...)}
}

// Len returns the number of captured overrides.
func (s ContextSnapshot) Len() int { return len(s.frames) }

// Run calls fn with the captured overrides installed on top of the calling
// goroutine's own.
func (s ContextSnapshot) Run(fn func()) {
	if len(s.frames) == 0 {
		fn()
		return
	}
	gid := goroutineID()
	pushFrames(gid, s.frames...)
	defer popFrames(gid, len(s.frames))
	fn()
}

// contextVar resolves a slot on every access.
type contextVar[T any] struct {
	slot *ContextSlot[T]
}

// ContextVar returns a read-only proxy for slot. Every read resolves the
// slot on the calling goroutine. Hooks attach to whatever the slot resolves
// to when Hook is called.
func ContextVar[T any](slot *ContextSlot[T]) Var[T] {
	return &contextVar[T]{slot: slot}
}

func (c *contextVar[T]) kind() varKind { return kindContext }

func (c *contextVar[T]) Get() T {
	v, _ := c.slot.resolve()
	return v.Get()
}

func (c *contextVar[T]) With(read func(T)) {
	v, _ := c.slot.resolve()
	v.With(read)
}

func (c *contextVar[T]) IsNew() bool {
	v, _ := c.slot.resolve()
	return v.IsNew()
}

func (c *contextVar[T]) LastUpdate() UpdateID {
	v, _ := c.slot.resolve()
	return v.LastUpdate()
}

// Version mixes the override's identity into the resolved version so that
// entering or leaving an override changes it.
func (c *contextVar[T]) Version() Version {
	v, serial := c.slot.resolve()
	return Version(serial<<32) ^ v.Version()
}

func (c *contextVar[T]) Capabilities() Capability {
	return CapNew
}

func (c *contextVar[T]) Modify(func(T) T) error {
	return errors.ReadOnly(opName[T](c, "Modify"))
}

func (c *contextVar[T]) Set(T) error {
	return errors.ReadOnly(opName[T](c, "Set"))
}

func (c *contextVar[T]) Hook(hook func(T) bool) HookHandle {
	v, _ := c.slot.resolve()
	return v.Hook(hook)
}

func (c *contextVar[T]) ReadOnly() Var[T] { return c }

func (c *contextVar[T]) Downgrade() WeakVar[T] {
	return downgrade[T](c)
}
