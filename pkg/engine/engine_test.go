package engine

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/go-drift/reactive/pkg/errors"
	varstest "github.com/go-drift/reactive/pkg/testing"
	"github.com/go-drift/reactive/pkg/vars"
)

// drain steps until the engine has nothing left to do.
func drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 8 && NeedsTick(); i++ {
		_, err := StepTick(context.Background())
		require.NoError(t, err)
	}
}

func TestStepTick_AppliesModifies(t *testing.T) {
	drain(t)
	v := vars.New(1)
	require.NoError(t, v.Set(2))
	assert.True(t, NeedsTick())

	before := Ticks()
	sample, err := StepTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, v.Get())
	assert.True(t, v.IsNew())
	assert.Equal(t, uint32(vars.CurrentUpdate()), sample.Update)
	assert.Equal(t, 1, sample.Counts.Committed)
	assert.Equal(t, 1, sample.Counts.Scheduled)
	assert.Equal(t, before+1, Ticks())
	assert.False(t, NeedsTick())
}

func TestDispatch_RunsBeforeApplyInCapturedContext(t *testing.T) {
	drain(t)
	slot := vars.NewContextSlot("default")
	v := vars.New(0)

	var seen string
	vars.WithContext(slot, "scoped", func() {
		Dispatch(func() {
			seen = slot.Current()
			_ = v.Set(5)
		})
	})
	Dispatch(nil)
	require.True(t, NeedsTick())

	sample, err := StepTick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "scoped", seen)
	assert.Equal(t, "default", slot.Current())
	assert.Equal(t, 5, v.Get(), "modifies from dispatched callbacks land in the same tick")
	assert.Equal(t, 1, sample.Counts.Dispatched)
}

func TestStepTick_RecoversPanic(t *testing.T) {
	drain(t)
	tester := varstest.NewTesterWithT(t)

	Dispatch(func() { panic("boom") })
	sample, err := StepTick(context.Background())
	assert.Nil(t, sample)

	var be *errors.BoundaryError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "dispatch", be.Phase)
	assert.Equal(t, "boom", be.Recovered)
	assert.NotEmpty(t, be.StackTrace)
	assert.Same(t, be, LastError())

	require.Len(t, tester.Errors(), 1)
	assert.ErrorAs(t, tester.Errors()[0], &be)

	// The failed tick leaves a request behind so the loop retries.
	assert.True(t, NeedsTick())
	_, err = StepTick(context.Background())
	assert.NoError(t, err)
}

func TestStepTick_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	before := Ticks()
	_, err := StepTick(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, Ticks())
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	drain(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticked := make(chan *TickSample, 64)
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{
			TickRate: vars.New(math.Inf(1)),
			OnTick: func(s *TickSample) {
				select {
				case ticked <- s:
				default:
				}
			},
		})
	}()

	v := vars.New(0)
	require.NoError(t, v.Set(1))
	require.Eventually(t, func() bool { return v.Get() == 1 }, 2*time.Second, time.Millisecond)

	select {
	case s := <-ticked:
		assert.NotZero(t, s.Update)
	case <-time.After(2 * time.Second):
		t.Fatal("OnTick was not called")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestTickLimit(t *testing.T) {
	tests := []struct {
		name string
		hz   float64
		want rate.Limit
	}{
		{"positive", 30, 30},
		{"zero uses default", 0, rate.Limit(DefaultTickRate)},
		{"negative uses default", -5, rate.Limit(DefaultTickRate)},
		{"nan uses default", math.NaN(), rate.Limit(DefaultTickRate)},
		{"infinite disables pacing", math.Inf(1), rate.Inf},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tickLimit(tt.hz))
		})
	}
}

func TestSetDiagnostics_TraceRecordsTicks(t *testing.T) {
	drain(t)
	SetDiagnostics(&DiagnosticsConfig{TraceTicks: true, TraceSamples: 4})
	t.Cleanup(func() { SetDiagnostics(nil) })

	trace := TickTrace()
	require.NotNil(t, trace)
	assert.Equal(t, 4, trace.Capacity())

	for range 6 {
		_, err := StepTick(context.Background())
		require.NoError(t, err)
	}

	timeline := trace.Snapshot()
	require.Len(t, timeline.Samples, 4)
	for i := 1; i < len(timeline.Samples); i++ {
		assert.Equal(t, timeline.Samples[i-1].Update+1, timeline.Samples[i].Update)
	}
	assert.Equal(t, uint32(vars.CurrentUpdate()), timeline.Samples[3].Update)

	SetDiagnostics(nil)
	assert.Nil(t, TickTrace())
}

func TestSetDiagnostics_KeepsBufferWhenCapacityUnchanged(t *testing.T) {
	SetDiagnostics(&DiagnosticsConfig{TraceTicks: true, TraceSamples: 8})
	t.Cleanup(func() { SetDiagnostics(nil) })
	first := TickTrace()

	SetDiagnostics(&DiagnosticsConfig{TraceTicks: true, TraceSamples: 8, SlowTickThreshold: time.Second})
	assert.Same(t, first, TickTrace())
	assert.Equal(t, time.Second, first.Threshold())

	SetDiagnostics(&DiagnosticsConfig{TraceTicks: true, TraceSamples: 16})
	assert.NotSame(t, first, TickTrace())
}
