package animation

import (
	"sync/atomic"
	"time"
)

// Clock provides time for animations. The default implementation uses
// system time. Tests can inject a fake clock via SetClock to control
// animation timing deterministically.
type Clock interface {
	Now() time.Time
}

// realClock uses system time.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type clockBox struct{ Clock }

// clock is the package-level time source, replaceable for testing.
var clock atomic.Pointer[clockBox]

func init() {
	clock.Store(&clockBox{realClock{}})
}

// SetClock replaces the animation clock. Returns the previous clock
// so callers can restore it during cleanup. A nil clock restores system time.
func SetClock(c Clock) Clock {
	if c == nil {
		c = realClock{}
	}
	return clock.Swap(&clockBox{c}).Clock
}

// Now returns the current time from the active clock.
func Now() time.Time { return clock.Load().Now() }
