package errors

import (
	"bytes"
	stderrors "errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarErrorString(t *testing.T) {
	err := &VarError{
		Op:   "vars.Set",
		Kind: KindReadOnly,
		Err:  ErrReadOnly,
	}
	assert.Equal(t, "vars.Set [read-only]: variable is read-only", err.Error())
}

func TestVarErrorWithKey(t *testing.T) {
	err := &VarError{
		Op:   "config.Bind",
		Kind: KindConfig,
		Key:  "tick_rate",
		Err:  stderrors.New("bad value"),
	}
	assert.Contains(t, err.Error(), "key=tick_rate")
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindReadOnly, "read-only"},
		{KindRecursiveModify, "recursive-modify"},
		{KindTickReentrancy, "tick-reentrancy"},
		{KindModify, "modify"},
		{KindHook, "hook"},
		{KindPanic, "panic"},
		{KindConfig, "config"},
		{KindStore, "store"},
		{KindTick, "tick"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestReadOnlyIsDetectable(t *testing.T) {
	err := ReadOnly("vars.Modify")
	assert.True(t, IsReadOnly(err))
	assert.True(t, stderrors.Is(err, ErrReadOnly))

	var varErr *VarError
	require.True(t, stderrors.As(err, &varErr))
	assert.Equal(t, KindReadOnly, varErr.Kind)
	assert.Equal(t, "vars.Modify", varErr.Op)

	assert.False(t, IsReadOnly(stderrors.New("other")))
}

func TestPanicErrorString(t *testing.T) {
	err := &PanicError{Value: "test panic", Timestamp: time.Now()}
	assert.Equal(t, "panic: test panic", err.Error())

	err.Op = "vars.hook"
	assert.Equal(t, "panic in vars.hook: test panic", err.Error())
}

func TestPanicErrorUnwrapsErrorValues(t *testing.T) {
	inner := &RecursiveModifyError{Var: "*vars.cell[int]"}
	err := &PanicError{Op: "vars.apply", Value: inner}

	var recursive *RecursiveModifyError
	require.True(t, stderrors.As(err, &recursive))
	assert.Same(t, inner, recursive)

	assert.Nil(t, (&PanicError{Value: 3}).Unwrap())
}

func TestBoundaryErrorString(t *testing.T) {
	err := &BoundaryError{Phase: "apply", Update: 7, Recovered: "boom"}
	assert.Equal(t, "panic during apply of update 7: boom", err.Error())

	err = &BoundaryError{Phase: "dispatch", Recovered: "boom"}
	assert.Equal(t, "panic during dispatch: boom", err.Error())
}

func TestTickReentrancyErrorString(t *testing.T) {
	assert.Contains(t, (&TickReentrancyError{}).Error(), "still applying")
	assert.Contains(t, (&TickReentrancyError{Update: 4}).Error(), "update 4")
}

func TestReport(t *testing.T) {
	var captured *VarError
	prev := SetHandler(&testHandler{onError: func(err *VarError) { captured = err }})
	defer SetHandler(prev)

	Report(&VarError{Op: "test.op", Kind: KindConfig, Err: stderrors.New("x")})

	require.NotNil(t, captured)
	assert.Equal(t, "test.op", captured.Op)
	assert.False(t, captured.Timestamp.IsZero(), "expected Timestamp to be set")
}

func TestReportNil(t *testing.T) {
	called := false
	prev := SetHandler(&testHandler{onError: func(*VarError) { called = true }})
	defer SetHandler(prev)

	Report(nil)
	ReportPanic(nil)
	ReportBoundaryError(nil)
	assert.False(t, called)
}

func TestRecover(t *testing.T) {
	var captured *PanicError
	prev := SetHandler(&testHandler{onPanic: func(err *PanicError) { captured = err }})
	defer SetHandler(prev)

	func() {
		defer Recover("test.recover")
		panic("intentional test panic")
	}()

	require.NotNil(t, captured)
	assert.Equal(t, "intentional test panic", captured.Value)
	assert.Equal(t, "test.recover", captured.Op)
	assert.NotEmpty(t, captured.StackTrace)
}

func TestRecoverWithCallback(t *testing.T) {
	prev := SetHandler(&testHandler{})
	defer SetHandler(prev)

	var got any
	func() {
		defer RecoverWithCallback("test.cb", func(r any) { got = r })
		panic(42)
	}()
	assert.Equal(t, 42, got)
}

func TestReportBoundaryError(t *testing.T) {
	var captured *BoundaryError
	prev := SetHandler(&testHandler{onBoundary: func(err *BoundaryError) { captured = err }})
	defer SetHandler(prev)

	ReportBoundaryError(&BoundaryError{Phase: "apply", Recovered: "x"})
	require.NotNil(t, captured)
	assert.False(t, captured.Timestamp.IsZero())
}

func TestCaptureStack(t *testing.T) {
	stack := CaptureStack()
	require.NotEmpty(t, stack)
	if !strings.Contains(stack, "testing") && !strings.Contains(stack, "runtime") {
		t.Errorf("stack trace should contain testing or runtime frames, got: %s", stack)
	}
}

func TestSetHandlerNil(t *testing.T) {
	prev := SetHandler(nil)
	defer SetHandler(prev)

	_, ok := getHandler().(*LogHandler)
	assert.True(t, ok, "SetHandler(nil) should install a LogHandler, got %T", getHandler())
}

func TestLogHandlerWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	h := &LogHandler{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Verbose: true}

	h.HandleError(&VarError{Op: "config.reload", Kind: KindConfig, Key: "tick_rate", Err: stderrors.New("bad"), StackTrace: "frame"})
	h.HandlePanic(&PanicError{Op: "vars.hook", Value: "boom"})
	h.HandleBoundaryError(&BoundaryError{Phase: "apply", Update: 3, Recovered: "boom"})

	out := buf.String()
	assert.Contains(t, out, "op=config.reload")
	assert.Contains(t, out, "kind=config")
	assert.Contains(t, out, "key=tick_rate")
	assert.Contains(t, out, "stack=frame")
	assert.Contains(t, out, "op=vars.hook")
	assert.Contains(t, out, "phase=apply")
	assert.Contains(t, out, "update=3")
}

type testHandler struct {
	onError    func(*VarError)
	onPanic    func(*PanicError)
	onBoundary func(*BoundaryError)
}

func (h *testHandler) HandleError(err *VarError) {
	if h.onError != nil {
		h.onError(err)
	}
}

func (h *testHandler) HandlePanic(err *PanicError) {
	if h.onPanic != nil {
		h.onPanic(err)
	}
}

func (h *testHandler) HandleBoundaryError(err *BoundaryError) {
	if h.onBoundary != nil {
		h.onBoundary(err)
	}
}
