package testing

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/errors"
	"github.com/go-drift/reactive/pkg/vars"
)

// DefaultTickInterval is how far Settle advances the fake clock per tick.
const DefaultTickInterval = 16 * time.Millisecond

// ErrSettleTimeout is returned when Settle exceeds its timeout.
var ErrSettleTimeout = stderrors.New("Settle timed out: variables did not settle")

// Tester drives the variable engine deterministically. It installs a fake
// animation clock and an error handler that records everything reported
// during the test, and restores both on Cleanup.
type Tester struct {
	clock       *FakeClock
	prevClock   animation.Clock
	prevHandler errors.ErrorHandler
	interval    time.Duration

	mu         sync.Mutex
	dispatches []func()
	reported   []error
	last       vars.TickStats
}

// NewTester creates a tester. Call Cleanup when done, or use
// NewTesterWithT instead.
func NewTester() *Tester {
	clk := NewFakeClock()
	t := &Tester{
		clock:    clk,
		interval: DefaultTickInterval,
	}
	t.prevClock = animation.SetClock(clk)
	t.prevHandler = errors.SetHandler(&recordingHandler{tester: t})
	return t
}

// NewTesterWithT creates a tester that auto-cleans up via t.Cleanup().
// This is the recommended constructor for tests.
func NewTesterWithT(t testing.TB) *Tester {
	tester := NewTester()
	t.Cleanup(tester.Cleanup)
	return tester
}

// Cleanup applies leftover requests without advancing time and restores the
// animation clock and error handler.
func (t *Tester) Cleanup() {
	for i := 0; i < 8 && t.needsWork(); i++ {
		t.Tick()
	}
	animation.SetClock(t.prevClock)
	errors.SetHandler(t.prevHandler)
}

// Clock returns the fake clock for advancing time in tests.
func (t *Tester) Clock() *FakeClock {
	return t.clock
}

// SetTickInterval changes how far Settle advances the clock per tick.
func (t *Tester) SetTickInterval(d time.Duration) {
	if d > 0 {
		t.interval = d
	}
}

// Tick runs queued dispatches and then applies one tick.
func (t *Tester) Tick() vars.TickStats {
	t.mu.Lock()
	dispatches := t.dispatches
	t.dispatches = nil
	t.mu.Unlock()
	for _, fn := range dispatches {
		fn()
	}

	stats := vars.AdvanceTick()
	t.mu.Lock()
	t.last = stats
	t.mu.Unlock()
	return stats
}

// Advance moves the fake clock forward by d and applies one tick.
func (t *Tester) Advance(d time.Duration) vars.TickStats {
	t.clock.Advance(d)
	return t.Tick()
}

// Settle ticks until nothing is queued and no animation is running, or the
// timeout is reached. Each tick after the first advances the fake clock by
// the tick interval. Returns ErrSettleTimeout if work remains.
func (t *Tester) Settle(timeout time.Duration) error {
	var elapsed time.Duration
	for elapsed <= timeout {
		t.Tick()
		if !t.needsWork() {
			return nil
		}
		t.clock.Advance(t.interval)
		elapsed += t.interval
	}
	return ErrSettleTimeout
}

// LastTick returns the stats of the most recent Tick.
func (t *Tester) LastTick() vars.TickStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tester) needsWork() bool {
	t.mu.Lock()
	pending := len(t.dispatches) > 0
	t.mu.Unlock()
	return pending || vars.HasPending()
}

// Dispatch queues a callback for the next tick, mirroring engine.Dispatch.
func (t *Tester) Dispatch(fn func()) {
	t.mu.Lock()
	t.dispatches = append(t.dispatches, fn)
	t.mu.Unlock()
}

// Errors returns every error and panic reported since the tester was
// created or since the last call to ClearErrors.
func (t *Tester) Errors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]error(nil), t.reported...)
}

// ClearErrors forgets the recorded errors.
func (t *Tester) ClearErrors() {
	t.mu.Lock()
	t.reported = nil
	t.mu.Unlock()
}

func (t *Tester) record(err error) {
	t.mu.Lock()
	t.reported = append(t.reported, err)
	t.mu.Unlock()
}

type recordingHandler struct {
	tester *Tester
}

func (h *recordingHandler) HandleError(err *errors.VarError)             { h.tester.record(err) }
func (h *recordingHandler) HandlePanic(err *errors.PanicError)           { h.tester.record(err) }
func (h *recordingHandler) HandleBoundaryError(err *errors.BoundaryError) { h.tester.record(err) }
