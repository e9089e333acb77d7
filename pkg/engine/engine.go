// Package engine drives the variable engine: it owns the tick loop that
// applies queued modifies, runs dispatched callbacks between ticks, and
// exposes tracing and an optional HTTP debug server.
package engine

import (
	"context"
	stderrors "errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-drift/reactive/pkg/errors"
	"github.com/go-drift/reactive/pkg/vars"
)

// DefaultTickRate is the tick rate used by Run when no rate is configured.
const DefaultTickRate = 60.0

// tickLock serializes StepTick and SetDiagnostics.
var tickLock sync.Mutex

var runner = newTickRunner()

func init() {
	vars.SetScheduleHandler(RequestTick)
}

type dispatchItem struct {
	fn  func()
	ctx vars.ContextSnapshot
}

type tickRunner struct {
	dispatchMu    sync.Mutex
	dispatchQueue []dispatchItem

	pendingTick atomic.Bool
	wake        chan struct{}
	ticks       atomic.Uint64
	lastError   atomic.Pointer[errors.BoundaryError]

	// Guarded by tickLock.
	diagnostics *DiagnosticsConfig

	tickTrace      atomic.Pointer[TickTraceBuffer]
	runtimeSamples atomic.Pointer[RuntimeSampleBuffer]
}

func newTickRunner() *tickRunner {
	return &tickRunner{wake: make(chan struct{}, 1)}
}

// Dispatch schedules fn to run at the start of the next tick. The context
// slots active at the call site are active again while fn runs. Safe to
// call from any goroutine.
func Dispatch(fn func()) {
	if fn == nil {
		return
	}
	item := dispatchItem{fn: fn, ctx: vars.CaptureContext()}
	runner.dispatchMu.Lock()
	runner.dispatchQueue = append(runner.dispatchQueue, item)
	runner.dispatchMu.Unlock()
	RequestTick()
}

// RequestTick marks the engine as needing a tick and wakes Run.
func RequestTick() {
	runner.pendingTick.Store(true)
	select {
	case runner.wake <- struct{}{}:
	default:
	}
}

// NeedsTick reports whether a tick would do any work: pending dispatches,
// queued modifies, running animations or an explicit request.
func NeedsTick() bool {
	if runner.pendingTick.Load() {
		return true
	}
	runner.dispatchMu.Lock()
	queued := len(runner.dispatchQueue) > 0
	runner.dispatchMu.Unlock()
	return queued || vars.HasPending()
}

// Ticks returns the number of ticks completed by StepTick.
func Ticks() uint64 {
	return runner.ticks.Load()
}

// LastError returns the most recent panic recovered at the tick boundary,
// or nil.
func LastError() *errors.BoundaryError {
	return runner.lastError.Load()
}

// TickTrace returns the active trace buffer, or nil when tracing is off.
func TickTrace() *TickTraceBuffer {
	return runner.tickTrace.Load()
}

// StepTick runs queued dispatches and applies one tick. A panic escaping a
// dispatched callback or the apply phase is recovered into an
// [errors.BoundaryError], which is reported and returned.
//
// StepTick must not be called from a dispatched callback or a hook.
func StepTick(ctx context.Context) (*TickSample, error) {
	return runner.stepTick(ctx)
}

func (r *tickRunner) stepTick(ctx context.Context) (sample *TickSample, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tickLock.Lock()
	defer tickLock.Unlock()

	ctx, span := startTickSpan(ctx)
	defer span.End()

	phase := "dispatch"
	defer func() {
		if rec := recover(); rec != nil {
			be := &errors.BoundaryError{
				Phase:      phase,
				Update:     uint32(vars.CurrentUpdate()),
				Recovered:  rec,
				StackTrace: errors.CaptureStack(),
				Timestamp:  time.Now(),
			}
			r.lastError.Store(be)
			errors.ReportBoundaryError(be)
			recordTickPanic(ctx, phase)
			setTickSpanError(span, be)
			// Work queued before the panic still needs a tick.
			r.pendingTick.Store(true)
			sample, err = nil, be
		}
	}()

	start := time.Now()
	sample = &TickSample{Timestamp: start.UnixMilli()}

	items := r.drainDispatchQueue()
	for _, item := range items {
		item.ctx.Run(item.fn)
	}
	sample.Counts.Dispatched = len(items)
	sample.Phases.DispatchMs = durationToMillis(time.Since(start))

	phase = "apply"
	// Requests that miss this tick set the flag again.
	r.pendingTick.Store(false)
	stats := vars.AdvanceTick()
	sample.Update = uint32(stats.Update)
	sample.Phases.ApplyMs = durationToMillis(stats.ApplyDuration)
	sample.Phases.HookMs = durationToMillis(stats.HookDuration)
	sample.Counts.Animations = stats.Animations
	sample.Counts.Scheduled = stats.Scheduled
	sample.Counts.Committed = stats.Committed

	duration := time.Since(start)
	sample.TickMs = durationToMillis(duration)
	r.ticks.Add(1)
	if trace := r.tickTrace.Load(); trace != nil {
		trace.Add(*sample, duration)
	}
	recordTickMetrics(ctx, duration, sample)
	setTickSpanResult(span, sample)
	return sample, nil
}

func (r *tickRunner) drainDispatchQueue() []dispatchItem {
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()
	items := r.dispatchQueue
	r.dispatchQueue = nil
	return items
}

// Options configures Run.
type Options struct {
	// TickRate is the maximum number of ticks per second. Changes to the
	// variable apply to the running loop. Nil or non-positive values use
	// DefaultTickRate; +Inf disables pacing.
	TickRate vars.Var[float64]
	// OnTick, if set, receives every successful tick sample.
	OnTick func(*TickSample)
	// Logger receives tick failures. Defaults to slog.Default().
	Logger *slog.Logger
}

// Run drives ticks until ctx is cancelled. It sleeps while there is no
// work and paces ticks with a rate limiter following Options.TickRate.
// Run returns nil when ctx is cancelled.
func Run(ctx context.Context, opts Options) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "engine")

	hz := DefaultTickRate
	if opts.TickRate != nil {
		hz = opts.TickRate.Get()
	}
	limiter := rate.NewLimiter(tickLimit(hz), 1)
	if opts.TickRate != nil {
		h := opts.TickRate.Hook(func(hz float64) bool {
			limiter.SetLimit(tickLimit(hz))
			logger.Debug("tick rate changed", "hz", hz)
			return true
		})
		defer h.Unhook()
	}

	logger.Debug("engine started", "hz", hz)
	for {
		if !NeedsTick() {
			select {
			case <-ctx.Done():
				return nil
			case <-runner.wake:
			}
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		sample, err := StepTick(ctx)
		if err != nil {
			if stderrors.Is(err, ctx.Err()) {
				return nil
			}
			logger.Warn("tick failed", "error", err)
			continue
		}
		if opts.OnTick != nil {
			opts.OnTick(sample)
		}
	}
}

func tickLimit(hz float64) rate.Limit {
	switch {
	case math.IsInf(hz, 1):
		return rate.Inf
	case hz <= 0 || math.IsNaN(hz):
		return rate.Limit(DefaultTickRate)
	default:
		return rate.Limit(hz)
	}
}

// SetDiagnostics configures tick tracing, runtime sampling and the debug
// server. Pass nil to disable all of them.
func SetDiagnostics(config *DiagnosticsConfig) {
	tickLock.Lock()
	defer tickLock.Unlock()

	var cfg *DiagnosticsConfig
	if config != nil {
		copyCfg := *config
		cfg = &copyCfg
	}

	oldPort := 0
	if runner.diagnostics != nil {
		oldPort = runner.diagnostics.DebugServerPort
	}
	newPort := 0
	if cfg != nil {
		newPort = cfg.DebugServerPort
	}

	runner.diagnostics = cfg

	if oldPort != newPort {
		if oldPort > 0 {
			stopDebugServer()
		}
		if newPort > 0 {
			if _, err := startDebugServer(newPort); err != nil {
				slog.Warn("debug server failed to start", "port", newPort, "error", err)
			}
		}
	}

	if cfg.traceEnabled() {
		trace := runner.tickTrace.Load()
		if trace == nil || trace.Capacity() != cfg.traceSamples() {
			runner.tickTrace.Store(NewTickTraceBuffer(cfg.traceSamples(), cfg.SlowTickThreshold))
		} else {
			trace.SetThreshold(cfg.SlowTickThreshold)
		}
	} else {
		runner.tickTrace.Store(nil)
	}

	if cfg != nil && cfg.DebugServerPort > 0 {
		interval, window := runtimeSampleConfig(cfg)
		next := NewRuntimeSampleBuffer(window, interval)
		buf := runner.runtimeSamples.Load()
		if buf == nil || buf.Interval() != next.Interval() || buf.Window() != next.Window() {
			runner.runtimeSamples.Store(next)
			startRuntimeSampler(next, interval)
		}
	} else if runner.runtimeSamples.Load() != nil {
		stopRuntimeSampler()
		runner.runtimeSamples.Store(nil)
	}
}
