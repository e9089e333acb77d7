package errors

import (
	"runtime"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Errors raised while a tick is applied have no caller to return to: modify
// closures run on the ticking goroutine long after Modify returned. The
// engine recovers them where they happen and reports them here, so one bad
// closure, hook or animation never stops other variables from committing.

type handlerBox struct{ ErrorHandler }

var handler atomic.Pointer[handlerBox]

func init() {
	handler.Store(&handlerBox{&LogHandler{}})
}

// SetHandler installs h as the receiver of every reported variable error,
// recovered panic and tick boundary failure, and returns the handler it
// replaced so tests can restore it. A nil h installs a default [LogHandler].
func SetHandler(h ErrorHandler) ErrorHandler {
	if h == nil {
		h = &LogHandler{}
	}
	return handler.Swap(&handlerBox{h}).ErrorHandler
}

func getHandler() ErrorHandler {
	return handler.Load().ErrorHandler
}

func stamp(ts *time.Time) {
	if ts.IsZero() {
		*ts = time.Now()
	}
}

// Report hands a variable error to the installed handler, stamping it with
// the current time if it has none. Used for failures detected during a tick
// such as recursive modifies, config decode errors and failed write-backs.
func Report(err *VarError) {
	if err == nil {
		return
	}
	stamp(&err.Timestamp)
	getHandler().HandleError(err)
}

// ReportPanic hands a panic recovered from user code to the installed handler.
func ReportPanic(err *PanicError) {
	if err == nil {
		return
	}
	stamp(&err.Timestamp)
	getHandler().HandlePanic(err)
}

// ReportBoundaryError hands a failed tick to the installed handler. Drivers
// call it when a panic escapes a whole tick phase.
func ReportBoundaryError(err *BoundaryError) {
	if err == nil {
		return
	}
	stamp(&err.Timestamp)
	getHandler().HandleBoundaryError(err)
}

// Recover reports a panic in progress as a [PanicError] for op.
//
//	defer errors.Recover("vars.hook")
func Recover(op string) {
	if r := recover(); r != nil {
		reportRecovered(op, r)
	}
}

// RecoverWithCallback is [Recover] followed by callback(r), which lets the
// caller undo partial work after the panic has been reported.
func RecoverWithCallback(op string, callback func(r any)) {
	if r := recover(); r != nil {
		reportRecovered(op, r)
		if callback != nil {
			callback(r)
		}
	}
}

func reportRecovered(op string, r any) {
	ReportPanic(&PanicError{
		Op:         op,
		Value:      r,
		StackTrace: CaptureStack(),
	})
}

// CaptureStack returns the stack of its caller's caller, one frame per
// "function\n\tfile:line" pair.
func CaptureStack() string {
	const maxDepth = 32
	var pcs [maxDepth]uintptr
	n := runtime.Callers(3, pcs[:])
	if n == 0 {
		return ""
	}

	frames := runtime.CallersFrames(pcs[:n])
	var sb strings.Builder
	for {
		frame, more := frames.Next()
		sb.WriteString(frame.Function)
		sb.WriteString("\n\t")
		sb.WriteString(frame.File)
		sb.WriteString(":")
		sb.WriteString(strconv.Itoa(frame.Line))
		sb.WriteString("\n")
		if !more {
			break
		}
	}
	return sb.String()
}
