package engine

import (
	"runtime"
	"sync"
	"time"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/vars"
)

const (
	runtimeSampleIntervalDefault = 5 * time.Second
	runtimeSampleWindowDefault   = 60 * time.Second
	runtimeSampleMinInterval     = 1 * time.Second
	runtimeSampleMaxSamples      = 120
)

// RuntimeSample pairs Go runtime memory stats with the engine's progress at
// the same instant.
type RuntimeSample struct {
	Timestamp  int64  `json:"ts"`
	Update     uint32 `json:"update"`
	Ticks      uint64 `json:"ticks"`
	Animations int    `json:"animations"`
	Goroutines int    `json:"goroutines"`
	// TickRate is the ticks per second applied since the previous sample.
	TickRate     float64 `json:"tickRate"`
	HeapAlloc    uint64  `json:"heapAlloc"`
	HeapInuse    uint64  `json:"heapInuse"`
	HeapSys      uint64  `json:"heapSys"`
	NumGC        uint32  `json:"numGC"`
	LastGCTime   int64   `json:"lastGCTime"`
	PauseTotalNs uint64  `json:"pauseTotalNs"`
	LastPauseNs  uint64  `json:"lastPauseNs"`
}

// RuntimeSampleBuffer keeps the runtime samples of a sliding window.
type RuntimeSampleBuffer struct {
	mu       sync.RWMutex
	samples  ring[RuntimeSample]
	interval time.Duration
	window   time.Duration
}

// NewRuntimeSampleBuffer sizes a buffer to hold window worth of samples
// taken every interval. Both are normalized first, and the window is
// rounded to a whole number of samples.
func NewRuntimeSampleBuffer(window, interval time.Duration) *RuntimeSampleBuffer {
	interval = normalizeRuntimeInterval(interval)
	window = normalizeRuntimeWindow(window, interval)

	n := min(max(int(window/interval), 1), runtimeSampleMaxSamples)
	return &RuntimeSampleBuffer{
		samples:  newRing[RuntimeSample](n),
		interval: interval,
		window:   time.Duration(n) * interval,
	}
}

func (b *RuntimeSampleBuffer) Interval() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.interval
}

func (b *RuntimeSampleBuffer) Window() time.Duration {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.window
}

// Add stores sample, deriving its TickRate from the previous sample.
func (b *RuntimeSampleBuffer) Add(sample RuntimeSample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.samples.last(); ok && sample.Timestamp > prev.Timestamp && sample.Ticks >= prev.Ticks {
		secs := float64(sample.Timestamp-prev.Timestamp) / 1000
		sample.TickRate = float64(sample.Ticks-prev.Ticks) / secs
	}
	b.samples.add(sample)
}

// Snapshot returns samples oldest first.
func (b *RuntimeSampleBuffer) Snapshot() []RuntimeSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.samples.snapshot()
}

func normalizeRuntimeInterval(interval time.Duration) time.Duration {
	if interval <= 0 {
		return runtimeSampleIntervalDefault
	}
	return max(interval, runtimeSampleMinInterval)
}

func normalizeRuntimeWindow(window, interval time.Duration) time.Duration {
	if window <= 0 {
		window = runtimeSampleWindowDefault
	}
	return max(window, interval)
}

func runtimeSampleConfig(config *DiagnosticsConfig) (interval, window time.Duration) {
	if config == nil {
		return 0, 0
	}
	interval = normalizeRuntimeInterval(config.RuntimeSampleInterval)
	return interval, normalizeRuntimeWindow(config.RuntimeSampleWindow, interval)
}

func readRuntimeSample() RuntimeSample {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	s := RuntimeSample{
		Timestamp:    time.Now().UnixMilli(),
		Update:       uint32(vars.CurrentUpdate()),
		Ticks:        Ticks(),
		Animations:   animation.ActiveTickers(),
		Goroutines:   runtime.NumGoroutine(),
		HeapAlloc:    stats.HeapAlloc,
		HeapInuse:    stats.HeapInuse,
		HeapSys:      stats.HeapSys,
		NumGC:        stats.NumGC,
		PauseTotalNs: stats.PauseTotalNs,
	}
	if stats.NumGC > 0 {
		s.LastPauseNs = stats.PauseNs[(stats.NumGC+255)%256]
	}
	if stats.LastGC > 0 {
		s.LastGCTime = time.Unix(0, int64(stats.LastGC)).UnixMilli()
	}
	return s
}

// sampler is the single background goroutine filling the runtime buffer.
var sampler struct {
	mu   sync.Mutex
	stop chan struct{}
}

// startRuntimeSampler replaces any running sampler with one that fills
// buffer every interval. The first sample is taken immediately.
func startRuntimeSampler(buffer *RuntimeSampleBuffer, interval time.Duration) {
	if buffer == nil {
		stopRuntimeSampler()
		return
	}
	interval = normalizeRuntimeInterval(interval)

	sampler.mu.Lock()
	if sampler.stop != nil {
		close(sampler.stop)
	}
	stop := make(chan struct{})
	sampler.stop = stop
	sampler.mu.Unlock()

	buffer.Add(readRuntimeSample())
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				buffer.Add(readRuntimeSample())
			}
		}
	}()
}

func stopRuntimeSampler() {
	sampler.mu.Lock()
	defer sampler.mu.Unlock()
	if sampler.stop != nil {
		close(sampler.stop)
		sampler.stop = nil
	}
}
