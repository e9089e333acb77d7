package vars

import (
	stderrors "errors"
	"sync"
	"time"
	"weak"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/errors"
)

// ErrNotAnimatable is returned by [Animate] for writable variables that are
// not cells, such as [MapBidi] views.
var ErrNotAnimatable = stderrors.New("variable cannot be animated")

// StopReason tells an animation's stop callbacks why it ended.
type StopReason int

const (
	// StopCompleted means the final value was committed.
	StopCompleted StopReason = iota
	// StopCancelled means the handle was stopped or the variable was
	// reclaimed.
	StopCancelled
	// StopSuperseded means a newer animation or a later Set or Modify took
	// over the variable.
	StopSuperseded
)

func (r StopReason) String() string {
	switch r {
	case StopCompleted:
		return "completed"
	case StopCancelled:
		return "cancelled"
	case StopSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// transition is the type-independent state of one running animation.
type transition struct {
	importance Importance
	ticker     *animation.Ticker
	detach     func()

	mu       sync.Mutex
	stopped  bool
	finished bool // final value applied
	reason   StopReason
	onStop   []func(StopReason)
}

// finish marks the final value as applied. A transition stopped after that
// reports StopCompleted whatever stopped it.
func (t *transition) finish() {
	t.mu.Lock()
	t.finished = true
	t.mu.Unlock()
}

// stop ends the transition and runs its stop callbacks once. It reports
// whether this call did the stopping.
func (t *transition) stop(reason StopReason) bool {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return false
	}
	if t.finished {
		reason = StopCompleted
	}
	t.stopped = true
	t.reason = reason
	callbacks := t.onStop
	t.onStop = nil
	t.mu.Unlock()

	t.ticker.Stop()
	if t.detach != nil {
		t.detach()
	}
	for _, fn := range callbacks {
		runStopCallback(fn, reason)
	}
	return true
}

func runStopCallback(fn func(StopReason), reason StopReason) {
	defer errors.Recover("vars.animation.onStop")
	fn(reason)
}

// AnimationHandle controls a running animation. The zero value refers to no
// animation: it reports StopCancelled and ignores Stop.
type AnimationHandle struct {
	t *transition
}

// Stop cancels the animation. Stop callbacks run before Stop returns; the
// variable keeps its last committed value.
func (h AnimationHandle) Stop() {
	if h.t != nil {
		h.t.stop(StopCancelled)
	}
}

// OnStop registers fn to run exactly once when the animation ends. If it has
// already ended, fn runs immediately.
func (h AnimationHandle) OnStop(fn func(StopReason)) {
	if fn == nil {
		return
	}
	if h.t == nil {
		runStopCallback(fn, StopCancelled)
		return
	}
	h.t.mu.Lock()
	if h.t.stopped {
		reason := h.t.reason
		h.t.mu.Unlock()
		runStopCallback(fn, reason)
		return
	}
	h.t.onStop = append(h.t.onStop, fn)
	h.t.mu.Unlock()
}

// IsRunning reports whether the animation is still producing values.
func (h AnimationHandle) IsRunning() bool {
	if h.t == nil {
		return false
	}
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return !h.t.stopped
}

// Reason returns why the animation stopped. The second result is false
// while it is still running.
func (h AnimationHandle) Reason() (StopReason, bool) {
	if h.t == nil {
		return StopCancelled, true
	}
	h.t.mu.Lock()
	defer h.t.mu.Unlock()
	return h.t.reason, h.t.stopped
}

// Importance returns the importance the animation was started with.
func (h AnimationHandle) Importance() Importance {
	if h.t == nil {
		return 0
	}
	return h.t.importance
}

// Animate transitions v from its current value to target over duration.
//
// On every tick the animation enqueues lerp(from, target, easing(progress))
// like an ordinary modify. from is the value v holds when the first step is
// applied, so a Set queued before Animate is animated from. The animation
// completes by committing target and then running its stop callbacks with
// StopCompleted at the end of that tick.
//
// A panic in lerp or easing is reported and cancels the animation; v keeps
// its last committed value.
//
// Starting a new animation on v stops the running one with StopSuperseded
// before Animate returns. A Set or Modify issued after Animate overrides the
// animation, which stops with StopSuperseded on its next step.
//
// A nil easing is linear. A non-positive duration jumps to target on the
// next tick.
func Animate[T any](v Var[T], target T, duration time.Duration, easing animation.Curve, lerp animation.Lerp[T]) (AnimationHandle, error) {
	c, ok := v.(*cell[T])
	if !ok {
		if !v.Capabilities().Has(CapModify) {
			return AnimationHandle{}, errors.ReadOnly(opName(v, "Animate"))
		}
		return AnimationHandle{}, &errors.VarError{
			Op:   opName(v, "Animate"),
			Kind: errors.KindModify,
			Err:  ErrNotAnimatable,
		}
	}
	if easing == nil {
		easing = animation.Linear
	}
	if lerp == nil {
		lerp = animation.LerpStep[T]
	}

	imp := nextImportance()
	storeMaxImportance(&c.importance, imp)

	t := &transition{importance: imp}
	wc := weak.Make(c)
	t.detach = detachFunc(wc, t)
	t.ticker = animation.NewTicker(stepFunc(wc, t, target, duration, easing, lerp))

	if prev := c.setAnimation(t); prev != nil {
		prev.stop(StopSuperseded)
	}
	t.ticker.Start()
	return AnimationHandle{t: t}, nil
}

// AnimateTo is [Animate] for numeric variables.
func AnimateTo[T animation.Number](v Var[T], target T, duration time.Duration, easing animation.Curve) (AnimationHandle, error) {
	return Animate(v, target, duration, easing, animation.LerpNumber[T])
}

func detachFunc[T any](wc weak.Pointer[cell[T]], t *transition) func() {
	return func() {
		if c := wc.Value(); c != nil {
			c.clearAnimation(t)
		}
	}
}

// stepFunc builds the ticker callback. It holds the cell weakly so a running
// animation does not keep an otherwise unreachable variable alive.
//
// Interpolation runs inside the queued closure, during apply, so the first
// step starts from the folded queue and the from value is only touched by the
// ticking goroutine.
func stepFunc[T any](wc weak.Pointer[cell[T]], t *transition, to T, duration time.Duration, easing animation.Curve, lerp animation.Lerp[T]) func(time.Duration) {
	var from T
	started := false
	return func(elapsed time.Duration) {
		c := wc.Value()
		if c == nil {
			t.stop(StopCancelled)
			return
		}
		if Importance(c.importance.Load()) > t.importance {
			t.stop(StopSuperseded)
			return
		}

		progress := 1.0
		if duration > 0 {
			progress = animation.ClampUnit(float64(elapsed) / float64(duration))
		}
		c.enqueue(func(cur T) T {
			if !(AnimationHandle{t: t}).IsRunning() {
				return cur
			}
			if !started {
				from, started = cur, true
			}
			value, ok := interpolate(lerp, easing, from, to, progress)
			if !ok {
				t.ticker.Stop()
				afterTick(func() { t.stop(StopCancelled) })
				return cur
			}
			if progress >= 1 {
				t.ticker.Stop()
				t.finish()
				afterTick(func() { t.stop(StopCompleted) })
			}
			return value
		}, 0)
	}
}

// interpolate evaluates one animation step. A panic in lerp or easing is
// reported and yields ok == false.
func interpolate[T any](lerp animation.Lerp[T], easing animation.Curve, from, to T, progress float64) (value T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			errors.ReportPanic(&errors.PanicError{
				Op:         "vars.Animate",
				Value:      r,
				StackTrace: errors.CaptureStack(),
			})
		}
	}()
	return lerp(from, to, easing(progress)), true
}

// HookAnimationStop registers fn on the animation currently running on v.
// It returns false when v is not animating.
func HookAnimationStop[T any](v Var[T], fn func(StopReason)) bool {
	c, ok := v.(*cell[T])
	if !ok {
		return false
	}
	t := c.animation()
	if t == nil {
		return false
	}
	h := AnimationHandle{t: t}
	if !h.IsRunning() {
		return false
	}
	h.OnStop(fn)
	return true
}

// IsAnimating reports whether an animation is running on v.
func IsAnimating[T any](v Var[T]) bool {
	c, ok := v.(*cell[T])
	if !ok {
		return false
	}
	t := c.animation()
	return t != nil && AnimationHandle{t: t}.IsRunning()
}
