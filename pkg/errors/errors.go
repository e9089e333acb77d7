// Package errors provides structured error handling for the variable engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	// KindUnknown indicates an error of unknown type.
	KindUnknown ErrorKind = iota
	// KindReadOnly indicates a write to a variable that cannot be modified.
	KindReadOnly
	// KindRecursiveModify indicates a modify closure that modified its own variable.
	KindRecursiveModify
	// KindTickReentrancy indicates a tick started while another was applying.
	KindTickReentrancy
	// KindModify indicates a modify closure that failed during apply.
	KindModify
	// KindHook indicates a hook callback that failed during dispatch.
	KindHook
	// KindPanic indicates a recovered panic.
	KindPanic
	// KindConfig indicates a configuration source failure.
	KindConfig
	// KindStore indicates a persistence failure.
	KindStore
	// KindTick indicates a failure in the driver loop.
	KindTick
)

func (k ErrorKind) String() string {
	switch k {
	case KindReadOnly:
		return "read-only"
	case KindRecursiveModify:
		return "recursive-modify"
	case KindTickReentrancy:
		return "tick-reentrancy"
	case KindModify:
		return "modify"
	case KindHook:
		return "hook"
	case KindPanic:
		return "panic"
	case KindConfig:
		return "config"
	case KindStore:
		return "store"
	case KindTick:
		return "tick"
	default:
		return "unknown"
	}
}

// ErrReadOnly is the sentinel wrapped by every read-only rejection.
// Test for it with errors.Is.
var ErrReadOnly = stderrors.New("variable is read-only")

// VarError represents a structured error raised by the engine.
type VarError struct {
	// Op is the operation that failed (e.g., "vars.Set").
	Op string
	// Kind categorizes the error.
	Kind ErrorKind
	// Err is the underlying error.
	Err error
	// Key names the config key or variable involved, if any.
	Key string
	// StackTrace contains the call stack at the time of the error.
	StackTrace string
	// Timestamp is when the error occurred.
	Timestamp time.Time
}

func (e *VarError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s [%s] key=%s: %v", e.Op, e.Kind, e.Key, e.Err)
	}
	return fmt.Sprintf("%s [%s]: %v", e.Op, e.Kind, e.Err)
}

func (e *VarError) Unwrap() error {
	return e.Err
}

// ReadOnly returns the error reported when op attempts to write a variable
// whose capabilities exclude modification.
func ReadOnly(op string) error {
	return &VarError{Op: op, Kind: KindReadOnly, Err: ErrReadOnly}
}

// IsReadOnly reports whether err is a read-only rejection.
func IsReadOnly(err error) bool {
	return stderrors.Is(err, ErrReadOnly)
}

// RecursiveModifyError is the panic value raised when a modify closure for a
// variable enqueues another modify on the same variable before returning.
type RecursiveModifyError struct {
	// Var is the type name of the variable.
	Var string
}

func (e *RecursiveModifyError) Error() string {
	return fmt.Sprintf("recursive modify of %s from inside its own modify closure", e.Var)
}

// TickReentrancyError is the panic value raised when a tick is advanced while
// another tick is still applying.
type TickReentrancyError struct {
	// Update is the update id of the tick that was in progress, if known.
	Update uint32
}

func (e *TickReentrancyError) Error() string {
	if e.Update != 0 {
		return fmt.Sprintf("tick advanced while update %d was still applying", e.Update)
	}
	return "tick advanced while another tick was still applying"
}

// PanicError represents a recovered panic.
type PanicError struct {
	// Op is the operation that panicked (e.g., "vars.hook").
	Op string
	// Value is the value passed to panic().
	Value any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes panic values that are themselves errors, such as
// *RecursiveModifyError.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// BoundaryError represents a panic recovered at the driver's tick boundary.
type BoundaryError struct {
	// Phase is the tick phase that failed (e.g., "dispatch", "apply").
	Phase string
	// Update is the update id that was being applied, if known.
	Update uint32
	// Recovered is the panic value.
	Recovered any
	// StackTrace contains the call stack at the time of the panic.
	StackTrace string
	// Timestamp is when the panic occurred.
	Timestamp time.Time
}

func (e *BoundaryError) Error() string {
	if e.Update != 0 {
		return fmt.Sprintf("panic during %s of update %d: %v", e.Phase, e.Update, e.Recovered)
	}
	return fmt.Sprintf("panic during %s: %v", e.Phase, e.Recovered)
}

// Unwrap exposes recovered values that are errors.
func (e *BoundaryError) Unwrap() error {
	if err, ok := e.Recovered.(error); ok {
		return err
	}
	return nil
}

// ErrorHandler receives errors reported by the engine.
type ErrorHandler interface {
	// HandleError is called when an error occurs.
	HandleError(err *VarError)
	// HandlePanic is called when a panic is recovered.
	HandlePanic(err *PanicError)
	// HandleBoundaryError is called when a tick fails at the driver boundary.
	HandleBoundaryError(err *BoundaryError)
}
