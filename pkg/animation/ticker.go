// Package animation provides the timing and interpolation primitives used by
// the variable engine's animation overlay.
//
// # Core Components
//
//   - [Ticker]: calls a callback once per engine tick while active. Tickers are
//     stepped by [StepTickers], which the variable engine calls at the start of
//     every tick so animation values are applied like any other modify.
//
//   - [Curve]: easing functions that transform linear progress into
//     natural-feeling motion ([Ease], [EaseIn], [EaseOut], [EaseInOut],
//     [CubicBezier], [Steps]).
//
//   - [Lerp] and [Tween]: interpolation between a start and end value of any
//     type ([LerpFloat64], [LerpNumber], [LerpDuration], [LerpStep]).
//
//   - [Clock]: the time source. Tests install a fake clock with [SetClock].
//
// # Basic Usage
//
// Most code animates a variable and never touches tickers directly:
//
//	height := vars.New(0.0)
//	handle, _ := vars.AnimateTo(height, 120, 300*time.Millisecond, animation.EaseOut)
//	handle.OnStop(func(reason vars.StopReason) { ... })
package animation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-drift/reactive/pkg/errors"
)

var (
	tickerMu      sync.Mutex
	activeTickers = make(map[*Ticker]struct{})
)

// Ticker calls a callback on each tick while active.
//
// The callback receives the elapsed time since Start was called. Tickers are
// driven by the engine's tick loop via [StepTickers]. Start and Stop are safe
// to call from any goroutine.
type Ticker struct {
	callback func(elapsed time.Duration)
	isActive atomic.Bool
	start    time.Time
}

// NewTicker creates a new ticker with the given callback.
func NewTicker(callback func(elapsed time.Duration)) *Ticker {
	return &Ticker{
		callback: callback,
	}
}

// Start activates the ticker.
func (t *Ticker) Start() {
	tickerMu.Lock()
	defer tickerMu.Unlock()
	if t.isActive.Load() {
		return
	}
	t.start = Now()
	t.isActive.Store(true)
	activeTickers[t] = struct{}{}
}

// Stop deactivates the ticker. Stopping an inactive ticker is a no-op.
func (t *Ticker) Stop() {
	tickerMu.Lock()
	defer tickerMu.Unlock()
	if !t.isActive.Load() {
		return
	}
	t.isActive.Store(false)
	delete(activeTickers, t)
}

// IsActive returns whether the ticker is currently running.
func (t *Ticker) IsActive() bool {
	return t.isActive.Load()
}

// Elapsed returns the time since the ticker started.
func (t *Ticker) Elapsed() time.Duration {
	tickerMu.Lock()
	defer tickerMu.Unlock()
	if !t.isActive.Load() {
		return 0
	}
	return Now().Sub(t.start)
}

// StepTickers advances all active tickers.
// This should be called once per tick from the engine. A callback that
// panics is reported to the error handler and its ticker stopped; the other
// tickers still run.
func StepTickers() {
	type step struct {
		ticker  *Ticker
		elapsed time.Duration
	}

	tickerMu.Lock()
	if len(activeTickers) == 0 {
		tickerMu.Unlock()
		return
	}
	now := Now()
	// Copy to avoid holding the lock during callbacks.
	steps := make([]step, 0, len(activeTickers))
	for ticker := range activeTickers {
		steps = append(steps, step{ticker, now.Sub(ticker.start)})
	}
	tickerMu.Unlock()

	for _, s := range steps {
		if s.ticker.isActive.Load() && s.ticker.callback != nil {
			s.ticker.step(s.elapsed)
		}
	}
}

// step runs the callback once. A panicking ticker is reported and stopped so
// it cannot fail every following tick.
func (t *Ticker) step(elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			t.Stop()
			errors.ReportPanic(&errors.PanicError{
				Op:         "animation.Ticker",
				Value:      r,
				StackTrace: errors.CaptureStack(),
			})
		}
	}()
	t.callback(elapsed)
}

// HasActiveTickers returns true if any tickers are active.
func HasActiveTickers() bool {
	return ActiveTickers() > 0
}

// ActiveTickers returns the number of running tickers.
func ActiveTickers() int {
	tickerMu.Lock()
	defer tickerMu.Unlock()
	return len(activeTickers)
}
