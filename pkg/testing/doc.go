// Package testing provides helpers for testing code built on variables.
//
// # Quick Start
//
// Create a tester, change some variables and tick:
//
//	func TestCounter(t *testing.T) {
//	    tester := varstest.NewTesterWithT(t)
//	    count := vars.New(0)
//	    rec := varstest.Record(count)
//
//	    count.Set(1)
//	    tester.Tick()
//
//	    if got := rec.Values(); len(got) != 1 || got[0] != 1 {
//	        t.Errorf("unexpected hook values %v", got)
//	    }
//	}
//
// # Animation Testing
//
// The tester installs a fake clock, so animations progress only when the
// test says so:
//
//	vars.AnimateTo(height, 100, 300*time.Millisecond, animation.Linear)
//	tester.Advance(150 * time.Millisecond) // height is now 50
//	tester.Settle(time.Second)             // height is now 100
//
// # Reported Errors
//
// Panics in hooks or modify closures are recovered by the engine and sent to
// the error handler. The tester records them; inspect them with Errors.
//
// # Import Alias
//
// Since this package has the same name as the standard library testing
// package, import it with an alias:
//
//	import varstest "github.com/go-drift/reactive/pkg/testing"
package testing
