package vars

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/errors"
)

// applier is a variable with queued modify requests.
type applier interface {
	// apply folds the queued requests and commits the result under update
	// id. It returns the hook dispatch to run after every cell has
	// committed, or nil when nothing changed.
	apply(id UpdateID) (notify func())
}

// TickStats describes one applied tick.
type TickStats struct {
	// Update is the clock value the tick produced.
	Update UpdateID
	// Animations is the number of animation tickers stepped.
	Animations int
	// Scheduled is the number of variables that had queued requests.
	Scheduled int
	// Committed is the number of variables whose value changed.
	Committed int
	// ApplyDuration covers folding and committing the queued requests.
	ApplyDuration time.Duration
	// HookDuration covers hook dispatch and tick-end callbacks.
	HookDuration time.Duration
}

var updates struct {
	mu       sync.Mutex
	pending  []applier
	tickEnd  []func()
	ticking  atomic.Bool
	applying atomic.Uint64 // goroutine id of the running AdvanceTick

	scheduleTick atomic.Pointer[func()]
}

// SetScheduleHandler registers fn to be called whenever a variable gets its
// first queued request since the last tick. Drivers use it to wake their
// tick loop. Pass nil to remove the handler.
func SetScheduleHandler(fn func()) {
	if fn == nil {
		updates.scheduleTick.Store(nil)
		return
	}
	updates.scheduleTick.Store(&fn)
}

func schedule(a applier) {
	updates.mu.Lock()
	updates.pending = append(updates.pending, a)
	updates.mu.Unlock()
	requestTick()
}

func requestTick() {
	if fn := updates.scheduleTick.Load(); fn != nil {
		(*fn)()
	}
}

// afterTick registers fn to run once the next tick has dispatched its hooks.
// Called during a tick, fn runs at the end of that same tick.
func afterTick(fn func()) {
	updates.mu.Lock()
	updates.tickEnd = append(updates.tickEnd, fn)
	updates.mu.Unlock()
	requestTick()
}

// HasPending reports whether a call to [AdvanceTick] would have work to do:
// queued modify requests, tick-end callbacks or running animations.
func HasPending() bool {
	updates.mu.Lock()
	pending := len(updates.pending) > 0 || len(updates.tickEnd) > 0
	updates.mu.Unlock()
	return pending || animation.HasActiveTickers()
}

// Ticking reports whether an [AdvanceTick] is in progress.
func Ticking() bool {
	return updates.ticking.Load()
}

// AdvanceTick applies every request queued since the previous tick.
//
// Running animations are stepped first so their values enter the same
// queues as ordinary modifies. The clock is then advanced, and each variable
// folds its queue in FIFO order and commits once. Hooks run only after every
// variable has committed, so a hook reading any variable sees the values of
// this tick. Requests enqueued by hooks are applied by the next tick.
//
// AdvanceTick must not be called while another tick is running; doing so
// panics with an [errors.TickReentrancyError].
func AdvanceTick() TickStats {
	if !updates.ticking.CompareAndSwap(false, true) {
		panic(&errors.TickReentrancyError{Update: uint32(CurrentUpdate())})
	}
	defer updates.ticking.Store(false)

	var stats TickStats
	stats.Animations = animation.ActiveTickers()
	animation.StepTickers()

	updates.mu.Lock()
	pending := updates.pending
	updates.pending = nil
	updates.mu.Unlock()

	applyStart := time.Now()
	id := advanceClock()
	stats.Update = id
	stats.Scheduled = len(pending)

	notifies := make([]func(), 0, len(pending))
	next := 0
	updates.applying.Store(goroutineID())
	defer func() {
		updates.applying.Store(0)
		// An unwinding apply leaves the rest of the batch for the next tick.
		if rest := pending[next:]; len(rest) > 0 {
			updates.mu.Lock()
			updates.pending = append(rest[:len(rest):len(rest)], updates.pending...)
			updates.mu.Unlock()
		}
	}()
	for i, a := range pending {
		next = i + 1
		if notify := a.apply(id); notify != nil {
			notifies = append(notifies, notify)
		}
	}
	stats.Committed = len(notifies)
	stats.ApplyDuration = time.Since(applyStart)

	hookStart := time.Now()
	for _, notify := range notifies {
		notify()
	}

	updates.mu.Lock()
	tickEnd := updates.tickEnd
	updates.tickEnd = nil
	updates.mu.Unlock()
	for _, fn := range tickEnd {
		runTickEnd(fn)
	}
	stats.HookDuration = time.Since(hookStart)
	return stats
}

func runTickEnd(fn func()) {
	defer errors.Recover("vars.tickEnd")
	fn()
}

// inApply reports whether the calling goroutine is folding queued requests.
func inApply() bool {
	id := updates.applying.Load()
	return id != 0 && id == goroutineID()
}
