package vars

import "strings"

// Capability describes what a variable allows.
type Capability uint8

const (
	// CapNew means the value can change over time.
	CapNew Capability = 1 << iota
	// CapModify means Set and Modify are accepted.
	CapModify
)

// Has reports whether c includes every bit of other.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	if c == 0 {
		return "read-only"
	}
	var parts []string
	if c.Has(CapNew) {
		parts = append(parts, "new")
	}
	if c.Has(CapModify) {
		parts = append(parts, "modify")
	}
	return strings.Join(parts, "|")
}

// Var is a shared, observable, versioned value.
//
// Reads return the value committed by the last applied tick. Writes are
// enqueued and become visible only after the next [AdvanceTick]. All methods
// are safe for concurrent use.
//
// The set of implementations is closed: cells ([New]), constants ([Const]),
// derived views ([Map], [MapLocal], [MapBidi], [Merge]), read-only wrappers
// and context proxies ([ContextVar]).
type Var[T any] interface {
	// Get returns a copy of the committed value.
	Get() T
	// With calls read with the committed value.
	With(read func(T))
	// IsNew reports whether the value changed in the tick just applied.
	IsNew() bool
	// LastUpdate returns the tick that produced the current value.
	LastUpdate() UpdateID
	// Version returns a token that changes whenever the value changes.
	Version() Version
	// Capabilities reports whether the variable can change and be written.
	Capabilities() Capability

	// Modify enqueues modify to run during the next tick with the value as
	// of the previous closure. It returns an error wrapping
	// errors.ErrReadOnly if the variable cannot be written.
	//
	// The closure must return a new value instead of mutating shared memory
	// reachable from its argument; readers may be holding the old value.
	Modify(modify func(T) T) error
	// Set enqueues an unconditional replacement of the value.
	Set(value T) error

	// Hook registers a callback invoked after every committed change, in
	// registration order. Returning false unregisters the hook.
	Hook(hook func(T) bool) HookHandle

	// ReadOnly returns a view that forwards reads and rejects writes.
	ReadOnly() Var[T]
	// Downgrade returns a handle that does not keep the variable alive.
	Downgrade() WeakVar[T]

	kind() varKind
}

type varKind int

const (
	kindCell varKind = iota
	kindConst
	kindMap
	kindMapLocal
	kindMapBidi
	kindMerge
	kindReadOnly
	kindContext
)

func (k varKind) String() string {
	switch k {
	case kindCell:
		return "cell"
	case kindConst:
		return "const"
	case kindMap:
		return "map"
	case kindMapLocal:
		return "map-local"
	case kindMapBidi:
		return "map-bidi"
	case kindMerge:
		return "merge"
	case kindReadOnly:
		return "read-only"
	case kindContext:
		return "context"
	default:
		return "unknown"
	}
}

func opName[T any](v Var[T], op string) string {
	return "vars." + v.kind().String() + "." + op
}

// Read calls read with the committed value of v and returns its result.
func Read[T, R any](v Var[T], read func(T) R) R {
	var r R
	v.With(func(value T) {
		r = read(value)
	})
	return r
}

// IsReadOnly reports whether v rejects writes.
func IsReadOnly[T any](v Var[T]) bool {
	return !v.Capabilities().Has(CapModify)
}
