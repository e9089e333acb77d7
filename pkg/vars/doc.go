// Package vars implements shared observable variables updated in discrete
// ticks.
//
// A variable created with [New] holds a value that any goroutine can read.
// Writes never happen in place: [Var.Set] and [Var.Modify] enqueue a request,
// and the requests of every variable are applied together by [AdvanceTick].
// Each tick advances a global update clock, so "did this change in the last
// tick" is answered by [Var.IsNew] without any bookkeeping by the caller.
//
// # Ticks
//
// A tick runs in two phases. First every variable with queued requests folds
// them in FIFO order and commits the result once, with a new [Version]. Then
// hooks registered with [Var.Hook] run for every committed variable. Because
// all commits happen before any hook, hooks always observe a consistent
// snapshot. Requests issued from hooks are applied by the following tick.
// The New example shows the basic cycle.
//
// Something has to call AdvanceTick. The engine package provides a loop that
// does so whenever requests are pending; tests call it directly.
//
// # Derived Variables
//
// [Map], [MapLocal] and [Merge] compute read-only views from other variables.
// Views subscribe to their sources only while they have hooks, and only hold
// themselves weakly from the source, so dropping a view is enough to stop its
// work. [MapBidi] also maps writes back to its source.
//
// # Context
//
// A [ContextSlot] names a value that can be overridden for a call with
// [WithContext]. [ContextVar] turns a slot into a variable that reads the
// innermost override on the calling goroutine. [CaptureContext] carries the
// overrides across goroutines.
//
// # Animation
//
// [Animate] and [AnimateTo] drive a variable toward a target over time using
// the curves and interpolators of the animation package. Animation steps are
// ordinary queued requests, so everything above applies to them.
//
// # Errors
//
// Writes to read-only variables return an error matching
// errors.ErrReadOnly. Panics raised by user functions called during a tick
// (modify closures, equality functions, hooks, interpolators, easing curves
// and stop callbacks) are recovered and reported to the handler installed with errors.SetHandler;
// a closure that modifies the variable it is being applied to is reported as
// an errors.RecursiveModifyError.
package vars
