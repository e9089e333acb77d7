package engine

import "time"

// DiagnosticsConfig controls tick tracing and the debug server.
type DiagnosticsConfig struct {
	// TraceTicks records a TickSample for every tick. Tracing is always on
	// while the debug server runs.
	TraceTicks bool
	// TraceSamples is the number of tick samples kept.
	// Defaults to 240 if zero.
	TraceSamples int
	// SlowTickThreshold marks ticks that take longer as slow.
	// Defaults to 16.67ms if zero.
	SlowTickThreshold time.Duration
	// DebugServerPort enables an HTTP debug server on the specified port.
	// 0 = disabled, >0 = port number (e.g., 9999).
	// The server exposes /ticks, /runtime, /slow, /debug and /health.
	DebugServerPort int
	// RuntimeSampleInterval is how often runtime memory stats are sampled
	// while the debug server runs. Defaults to 5s; minimum 1s.
	RuntimeSampleInterval time.Duration
	// RuntimeSampleWindow is how much runtime history is kept.
	// Defaults to 60s.
	RuntimeSampleWindow time.Duration
}

// DefaultDiagnosticsConfig returns a DiagnosticsConfig with sensible defaults.
func DefaultDiagnosticsConfig() *DiagnosticsConfig {
	return &DiagnosticsConfig{
		TraceTicks:            true,
		TraceSamples:          tickTraceSamplesDefault,
		SlowTickThreshold:     defaultSlowTickThreshold,
		RuntimeSampleInterval: runtimeSampleIntervalDefault,
		RuntimeSampleWindow:   runtimeSampleWindowDefault,
	}
}

func (c *DiagnosticsConfig) traceEnabled() bool {
	return c != nil && (c.TraceTicks || c.DebugServerPort > 0)
}

func (c *DiagnosticsConfig) traceSamples() int {
	if c == nil || c.TraceSamples <= 0 {
		return tickTraceSamplesDefault
	}
	return c.TraceSamples
}
