package vars

import (
	"runtime"
	"sync/atomic"
)

// UpdateID identifies one applied tick of the process-wide update clock.
//
// The clock is advanced exactly once per [AdvanceTick]. A variable is "new"
// when its LastUpdate equals [CurrentUpdate]. IDs wrap around; zero is
// reserved for [NeverUpdated] and is skipped by the clock.
type UpdateID uint32

// NeverUpdated is the LastUpdate of a variable that has not changed since it
// was created.
const NeverUpdated UpdateID = 0

var updateClock atomic.Uint32

// CurrentUpdate returns the id of the most recently applied tick.
func CurrentUpdate() UpdateID {
	return UpdateID(updateClock.Load())
}

// After reports whether id was produced by a later tick than other,
// tolerating wrap-around.
func (id UpdateID) After(other UpdateID) bool {
	return int32(uint32(id)-uint32(other)) > 0
}

func advanceClock() UpdateID {
	for {
		if id := updateClock.Add(1); id != uint32(NeverUpdated) {
			return UpdateID(id)
		}
	}
}

// Version is an opaque token that changes every time a variable's value
// changes. Compare versions with == only; the numeric value carries no
// meaning across variables.
type Version uint64

// Importance stamps every modify and animation request. A request with a
// higher importance overrides animations started with a lower one.
type Importance uint64

var importanceCounter atomic.Uint64

func nextImportance() Importance {
	return Importance(importanceCounter.Add(1))
}

// storeMaxImportance raises dst to imp unless a larger value is already stored.
func storeMaxImportance(dst *atomic.Uint64, imp Importance) {
	for {
		cur := dst.Load()
		if cur >= uint64(imp) || dst.CompareAndSwap(cur, uint64(imp)) {
			return
		}
	}
}

// goroutineID returns the current goroutine's ID.
// This uses runtime internals and is only for re-entrancy detection and
// for keying context scope stacks.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	// Stack trace starts with "goroutine NNN ["
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}
