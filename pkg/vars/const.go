package vars

import "github.com/go-drift/reactive/pkg/errors"

type constVar[T any] struct {
	value T
}

// Const returns a variable that always holds value. It is never new, its
// version never changes, hooks are never called and writes fail with a
// read-only error.
func Const[T any](value T) Var[T] {
	return &constVar[T]{value: value}
}

func (c *constVar[T]) kind() varKind            { return kindConst }
func (c *constVar[T]) Get() T                   { return c.value }
func (c *constVar[T]) With(read func(T))        { read(c.value) }
func (c *constVar[T]) IsNew() bool              { return false }
func (c *constVar[T]) LastUpdate() UpdateID     { return NeverUpdated }
func (c *constVar[T]) Version() Version         { return 0 }
func (c *constVar[T]) Capabilities() Capability { return 0 }
func (c *constVar[T]) Hook(func(T) bool) HookHandle {
	return HookHandle{}
}

func (c *constVar[T]) Modify(func(T) T) error {
	return errors.ReadOnly(opName[T](c, "Modify"))
}

func (c *constVar[T]) Set(T) error {
	return errors.ReadOnly(opName[T](c, "Set"))
}

func (c *constVar[T]) ReadOnly() Var[T] { return c }

// Downgrade on a constant returns a handle that always upgrades; constants
// hold no shared state worth reclaiming.
func (c *constVar[T]) Downgrade() WeakVar[T] {
	return WeakVar[T]{upgrade: func() Var[T] { return c }}
}

func isConst[T any](v Var[T]) bool {
	return v.kind() == kindConst
}
