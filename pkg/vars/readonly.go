package vars

import "github.com/go-drift/reactive/pkg/errors"

// readOnlyVar forwards reads and hooks to inner and rejects writes.
type readOnlyVar[T any] struct {
	inner Var[T]
}

// ReadOnly returns a read-only view of v. Views that are already read-only
// are returned as is.
func ReadOnly[T any](v Var[T]) Var[T] {
	return v.ReadOnly()
}

func (r *readOnlyVar[T]) kind() varKind        { return kindReadOnly }
func (r *readOnlyVar[T]) Get() T               { return r.inner.Get() }
func (r *readOnlyVar[T]) With(read func(T))    { r.inner.With(read) }
func (r *readOnlyVar[T]) IsNew() bool          { return r.inner.IsNew() }
func (r *readOnlyVar[T]) LastUpdate() UpdateID { return r.inner.LastUpdate() }
func (r *readOnlyVar[T]) Version() Version     { return r.inner.Version() }

func (r *readOnlyVar[T]) Capabilities() Capability {
	return r.inner.Capabilities() &^ CapModify
}

func (r *readOnlyVar[T]) Modify(func(T) T) error {
	return errors.ReadOnly(opName[T](r, "Modify"))
}

func (r *readOnlyVar[T]) Set(T) error {
	return errors.ReadOnly(opName[T](r, "Set"))
}

func (r *readOnlyVar[T]) Hook(hook func(T) bool) HookHandle {
	return r.inner.Hook(hook)
}

func (r *readOnlyVar[T]) ReadOnly() Var[T] { return r }

// Downgrade tracks the underlying variable: the handle stays alive as long
// as the source does and upgrades to a fresh read-only view.
func (r *readOnlyVar[T]) Downgrade() WeakVar[T] {
	inner := r.inner.Downgrade()
	return WeakVar[T]{upgrade: func() Var[T] {
		if v, ok := inner.Upgrade(); ok {
			return v.ReadOnly()
		}
		return nil
	}}
}
