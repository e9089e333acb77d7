package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock_Advance(t *testing.T) {
	clk := NewFakeClock()
	assert.Equal(t, Epoch, clk.Now())

	clk.Advance(100 * time.Millisecond)
	clk.Advance(-time.Second)
	clk.Advance(0)

	assert.Equal(t, 100*time.Millisecond, clk.Now().Sub(Epoch))
	assert.Equal(t, 100*time.Millisecond, clk.Elapsed())
}

func TestFakeClock_SetRebases(t *testing.T) {
	clk := NewFakeClock()
	clk.Advance(time.Second)

	target := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	clk.Set(target)
	assert.True(t, clk.Now().Equal(target))
	assert.Zero(t, clk.Elapsed())
}

func TestTester_Advance(t *testing.T) {
	tester := NewTesterWithT(t)

	tester.Advance(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, tester.Clock().Elapsed())
}
