package engine

import (
	"sync"
	"time"
)

const (
	tickTraceSamplesDefault  = 240
	defaultSlowTickThreshold = 16667 * time.Microsecond
)

// TickPhaseTimings captures time spent in each tick phase (ms).
type TickPhaseTimings struct {
	DispatchMs float64 `json:"dispatchMs"`
	ApplyMs    float64 `json:"applyMs"`
	HookMs     float64 `json:"hookMs"`
}

// TickCounts captures per-tick workload indicators.
type TickCounts struct {
	Dispatched int `json:"dispatched"`
	Animations int `json:"animations"`
	Scheduled  int `json:"scheduled"`
	Committed  int `json:"committed"`
}

// TickSample is a single tick trace sample.
type TickSample struct {
	Timestamp int64            `json:"ts"`
	Update    uint32           `json:"update"`
	TickMs    float64          `json:"tickMs"`
	Phases    TickPhaseTimings `json:"phases"`
	Counts    TickCounts       `json:"counts"`
}

// TickTimeline is the debug server response shape.
type TickTimeline struct {
	Samples     []TickSample `json:"samples"`
	SlowTicks   int          `json:"slowTicks"`
	ThresholdMs float64      `json:"thresholdMs"`
}

// TickTraceBuffer stores recent tick samples in a ring buffer.
type TickTraceBuffer struct {
	mu        sync.RWMutex
	samples   ring[TickSample]
	slow      int
	threshold time.Duration
}

// NewTickTraceBuffer creates a new tick trace buffer.
func NewTickTraceBuffer(capacity int, threshold time.Duration) *TickTraceBuffer {
	if capacity <= 0 {
		capacity = tickTraceSamplesDefault
	}
	if threshold <= 0 {
		threshold = defaultSlowTickThreshold
	}
	return &TickTraceBuffer{
		samples:   newRing[TickSample](capacity),
		threshold: threshold,
	}
}

// Capacity returns the buffer capacity.
func (b *TickTraceBuffer) Capacity() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples.capacity()
}

// SetThreshold updates the slow tick threshold.
func (b *TickTraceBuffer) SetThreshold(threshold time.Duration) {
	if threshold <= 0 {
		threshold = defaultSlowTickThreshold
	}
	b.mu.Lock()
	b.threshold = threshold
	b.mu.Unlock()
}

// Threshold returns the slow tick threshold.
func (b *TickTraceBuffer) Threshold() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.threshold
}

// Add records a tick sample and updates the slow tick count.
func (b *TickTraceBuffer) Add(sample TickSample, tickDuration time.Duration) {
	b.mu.Lock()
	b.samples.add(sample)
	if tickDuration > b.threshold {
		b.slow++
	}
	b.mu.Unlock()
}

// Snapshot returns a chronological copy of samples and stats.
func (b *TickTraceBuffer) Snapshot() TickTimeline {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return TickTimeline{
		Samples:     b.samples.snapshot(),
		SlowTicks:   b.slow,
		ThresholdMs: durationToMillis(b.threshold),
	}
}

func durationToMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
