package vars

// WeakVar is a non-owning handle to a variable. It does not keep the
// variable alive; once every strong reference is gone and the garbage
// collector has reclaimed it, Upgrade fails.
//
// The zero WeakVar never upgrades.
type WeakVar[T any] struct {
	upgrade func() Var[T]
}

// Downgrade returns a weak handle to v.
func Downgrade[T any](v Var[T]) WeakVar[T] {
	return v.Downgrade()
}

// Upgrade returns a strong reference to the variable if it is still alive.
func (w WeakVar[T]) Upgrade() (Var[T], bool) {
	if w.upgrade == nil {
		return nil, false
	}
	v := w.upgrade()
	return v, v != nil
}

// Alive reports whether Upgrade would currently succeed.
func (w WeakVar[T]) Alive() bool {
	_, ok := w.Upgrade()
	return ok
}
