package vars_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/reactive/pkg/errors"
	varstest "github.com/go-drift/reactive/pkg/testing"
	"github.com/go-drift/reactive/pkg/vars"
)

func TestContext_RoundTrip(t *testing.T) {
	slot := vars.NewContextSlot("default")
	cv := vars.ContextVar(slot)

	assert.Equal(t, "default", cv.Get())

	var inside string
	vars.WithContext(slot, "override", func() {
		inside = cv.Get()
	})
	assert.Equal(t, "override", inside)
	assert.Equal(t, "default", cv.Get())
	assert.Equal(t, "default", slot.Current())
}

func TestContext_Nesting(t *testing.T) {
	slot := vars.NewContextSlot(0)
	other := vars.NewContextSlot("x")

	var got []int
	vars.WithContext(slot, 1, func() {
		got = append(got, slot.Current())
		vars.WithContext(other, "y", func() {
			vars.WithContext(slot, 2, func() {
				got = append(got, slot.Current())
				assert.Equal(t, "y", other.Current())
			})
			got = append(got, slot.Current())
		})
		assert.Equal(t, "x", other.Current())
	})
	got = append(got, slot.Current())

	assert.Equal(t, []int{1, 2, 1, 0}, got)
}

func TestContext_PopsOnPanic(t *testing.T) {
	slot := vars.NewContextSlot("default")

	assert.Panics(t, func() {
		vars.WithContext(slot, "override", func() {
			panic("escape")
		})
	})
	assert.Equal(t, "default", slot.Current())
}

func TestContext_IsPerGoroutine(t *testing.T) {
	slot := vars.NewContextSlot("default")

	var other string
	vars.WithContext(slot, "override", func() {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			other = slot.Current()
		}()
		wg.Wait()
	})
	assert.Equal(t, "default", other)
}

func TestContext_CaptureCarriesOverrides(t *testing.T) {
	slot := vars.NewContextSlot("default")

	assert.Zero(t, vars.CaptureContext().Len())

	var snap vars.ContextSnapshot
	vars.WithContext(slot, "captured", func() {
		snap = vars.CaptureContext()
	})
	assert.Equal(t, 1, snap.Len())

	var got, after string
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		snap.Run(func() { got = slot.Current() })
		after = slot.Current()
	}()
	wg.Wait()

	assert.Equal(t, "captured", got)
	assert.Equal(t, "default", after)
}

func TestContextVar_TracksOverrideVariable(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	slot := vars.NewContextSlot(0)
	cv := vars.ContextVar(slot)
	inner := vars.New(5)

	var rec *varstest.Recorder[int]
	var versionInside vars.Version
	vars.WithContextVar(slot, inner, func() {
		assert.Equal(t, 5, cv.Get())
		versionInside = cv.Version()
		rec = varstest.Record(cv)
	})
	assert.NotEqual(t, versionInside, cv.Version())

	require.NoError(t, inner.Set(6))
	tester.Tick()
	assert.Equal(t, []int{6}, rec.Values(), "hooks attach to the resolved variable")

	vars.WithContextVar(slot, inner, func() {
		assert.True(t, cv.IsNew())
		assert.Equal(t, inner.LastUpdate(), cv.LastUpdate())
	})
	assert.False(t, cv.IsNew())
}

func TestContextVar_IsReadOnly(t *testing.T) {
	slot := vars.NewContextSlot(1)
	cv := slot.Var()

	assert.True(t, errors.IsReadOnly(cv.Set(2)))
	assert.True(t, vars.IsReadOnly(cv))
	assert.Same(t, cv.ReadOnly(), cv.ReadOnly())
}

func TestContextSlot_VarDefault(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	def := vars.New("a")
	slot := vars.NewContextSlotVar(def)

	require.NoError(t, def.Set("b"))
	tester.Tick()
	assert.Equal(t, "b", slot.Current())
	assert.Equal(t, def, slot.Default())
}
