package vars_test

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/reactive/pkg/errors"
	varstest "github.com/go-drift/reactive/pkg/testing"
	"github.com/go-drift/reactive/pkg/vars"
)

func TestEndToEnd_CounterScenario(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	count := vars.New(0)

	fired := 0
	var seen []int
	count.Hook(func(n int) bool {
		fired++
		seen = append(seen, n)
		return true
	})

	require.NoError(t, count.Set(1))
	require.NoError(t, count.Set(2))
	tester.Tick()

	assert.Equal(t, 2, count.Get())
	assert.Equal(t, 1, fired)
	assert.Equal(t, []int{2}, seen)
	assert.True(t, count.IsNew())

	tester.Tick()
	assert.False(t, count.IsNew())
	assert.Equal(t, 1, fired)
}

func TestTickAtomicity_FoldsInOrderAndBumpsVersionOnce(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New([]string{})
	before := v.Version()

	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, v.Modify(func(list []string) []string {
			return append(append([]string(nil), list...), s)
		}))
	}
	assert.Empty(t, v.Get(), "writes must not be visible before the tick")
	assert.Equal(t, before, v.Version())

	tester.Tick()
	assert.Equal(t, []string{"a", "b", "c"}, v.Get())
	assert.NotEqual(t, before, v.Version())
	after := v.Version()

	tester.Tick()
	assert.Equal(t, after, v.Version())
}

func TestIsNew_OnlyInTheChangingTick(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New("x")
	other := vars.New(0)

	assert.False(t, v.IsNew())
	assert.Equal(t, vars.NeverUpdated, v.LastUpdate())

	require.NoError(t, v.Set("y"))
	stats := tester.Tick()
	assert.True(t, v.IsNew())
	assert.Equal(t, stats.Update, v.LastUpdate())
	assert.Equal(t, stats.Update, vars.CurrentUpdate())

	require.NoError(t, other.Set(1))
	tester.Tick()
	assert.False(t, v.IsNew())
	assert.True(t, other.IsNew())
	assert.True(t, vars.CurrentUpdate().After(v.LastUpdate()))
}

func TestNewComparable_SkipsEqualCommits(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.NewComparable(5)
	rec := varstest.Record(v)
	version := v.Version()

	require.NoError(t, v.Set(5))
	tester.Tick()
	assert.False(t, v.IsNew())
	assert.Equal(t, version, v.Version())
	assert.Zero(t, rec.Len())

	require.NoError(t, v.Set(6))
	tester.Tick()
	assert.True(t, v.IsNew())
	assert.Equal(t, []int{6}, rec.Values())
}

func TestNew_CommitsEvenWhenUnchanged(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(5)
	rec := varstest.Record(v)

	require.NoError(t, v.Set(5))
	tester.Tick()
	assert.True(t, v.IsNew())
	assert.Equal(t, []int{5}, rec.Values())
}

func TestModify_NilIsIgnored(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(1)

	require.NoError(t, v.Modify(nil))
	tester.Tick()
	assert.False(t, v.IsNew())
}

func TestModify_PanicIsReportedAndSkipped(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(1)

	require.NoError(t, v.Modify(func(int) int { panic("bad closure") }))
	require.NoError(t, v.Modify(func(n int) int { return n + 10 }))
	tester.Tick()

	assert.Equal(t, 11, v.Get())
	reported := tester.Errors()
	require.Len(t, reported, 1)
	var pe *errors.PanicError
	require.ErrorAs(t, reported[0], &pe)
	assert.Equal(t, "bad closure", pe.Value)
}

func TestModify_AllPanickingLeavesValueUntouched(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(1)
	version := v.Version()

	require.NoError(t, v.Modify(func(int) int { panic("bad closure") }))
	tester.Tick()

	assert.Equal(t, 1, v.Get())
	assert.Equal(t, version, v.Version())
	assert.False(t, v.IsNew())
}

func TestModify_RecursiveIsReported(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(1)

	require.NoError(t, v.Modify(func(n int) int {
		_ = v.Set(100)
		return n + 1
	}))
	tester.Tick()

	assert.Equal(t, 1, v.Get(), "the recursive closure's result is discarded")
	reported := tester.Errors()
	require.Len(t, reported, 1)

	var ve *errors.VarError
	require.ErrorAs(t, reported[0], &ve)
	assert.Equal(t, errors.KindRecursiveModify, ve.Kind)
	var rec *errors.RecursiveModifyError
	assert.True(t, stderrors.As(reported[0], &rec))

	tester.Tick()
	assert.Equal(t, 1, v.Get(), "the nested Set was never queued")
}

func TestModify_OtherVariableFromClosureIsAllowed(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	a := vars.New(1)
	b := vars.New(0)

	require.NoError(t, a.Modify(func(n int) int {
		_ = b.Set(n * 10)
		return n + 1
	}))

	// b had nothing queued, so its request joins the next batch.
	tester.Tick()
	assert.Equal(t, 2, a.Get())
	assert.Equal(t, 0, b.Get())

	tester.Tick()
	assert.Equal(t, 10, b.Get())
	assert.Empty(t, tester.Errors())
}

func TestModify_ConcurrentWritersAreAllApplied(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(0)

	const writers, perWriter = 8, 100
	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_ = v.Modify(func(n int) int { return n + 1 })
				_ = v.Get()
			}
		}()
	}
	wg.Wait()
	tester.Tick()

	assert.Equal(t, writers*perWriter, v.Get())
}

func TestAdvanceTick_ReentrancyPanics(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	v := vars.New(0)
	v.Hook(func(int) bool {
		vars.AdvanceTick()
		return true
	})

	require.NoError(t, v.Set(1))
	tester.Tick()

	reported := tester.Errors()
	require.Len(t, reported, 1)
	var pe *errors.PanicError
	require.ErrorAs(t, reported[0], &pe)
	var re *errors.TickReentrancyError
	assert.True(t, stderrors.As(pe, &re))
	assert.False(t, vars.Ticking())
}

func TestTickStats(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	a, b := vars.New(0), vars.NewComparable(0)

	require.NoError(t, a.Set(1))
	require.NoError(t, a.Set(2))
	require.NoError(t, b.Set(0))
	stats := tester.Tick()

	assert.Equal(t, 2, stats.Scheduled)
	assert.Equal(t, 1, stats.Committed)
	assert.False(t, vars.HasPending())
}

func TestCapabilities(t *testing.T) {
	v := vars.New(0)
	assert.True(t, v.Capabilities().Has(vars.CapNew|vars.CapModify))
	assert.Equal(t, "new|modify", v.Capabilities().String())
	assert.Equal(t, "new", v.ReadOnly().Capabilities().String())
	assert.Equal(t, "read-only", vars.Const(1).Capabilities().String())
	assert.False(t, vars.IsReadOnly(v))
	assert.True(t, vars.IsReadOnly(v.ReadOnly()))
}

func TestRead(t *testing.T) {
	v := vars.New([]int{1, 2, 3})
	n := vars.Read(v, func(s []int) int { return len(s) })
	assert.Equal(t, 3, n)
}

func TestConst(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	c := vars.Const("fixed")

	assert.Equal(t, "fixed", c.Get())
	assert.False(t, c.IsNew())
	assert.Equal(t, vars.Version(0), c.Version())
	assert.True(t, errors.IsReadOnly(c.Set("x")))
	assert.True(t, errors.IsReadOnly(c.Modify(func(s string) string { return s })))
	assert.False(t, c.Hook(func(string) bool { return true }).IsActive())

	tester.Tick()
	assert.Equal(t, "fixed", c.Get())
}

func TestNewWithEquality_PanicIsReportedAndCommits(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	bad := vars.NewWithEquality(0, func(a, b int) bool { panic("equal boom") })
	other := vars.New(0)

	require.NoError(t, bad.Set(1))
	require.NoError(t, other.Set(7))
	require.NotPanics(t, func() { tester.Tick() })

	assert.Equal(t, 1, bad.Get(), "a failing comparison counts as a change")
	assert.True(t, bad.IsNew())
	assert.Equal(t, 7, other.Get())
	reported := tester.Errors()
	require.Len(t, reported, 1)
	var pe *errors.PanicError
	require.ErrorAs(t, reported[0], &pe)
	assert.Equal(t, "vars.cell.equal", pe.Op)

	// Both variables keep working on later ticks.
	require.NoError(t, other.Set(9))
	require.NoError(t, bad.Set(2))
	tester.Tick()
	assert.Equal(t, 9, other.Get())
	assert.Equal(t, 2, bad.Get())
}
