package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/png"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-drift/reactive/pkg/animation"
	"github.com/go-drift/reactive/pkg/vars"
)

// debugServer manages the HTTP server for engine inspection.
type debugServer struct {
	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

var debugSrv debugServer

// EngineState is the /debug response shape.
type EngineState struct {
	Update     uint32      `json:"update"`
	Ticks      uint64      `json:"ticks"`
	Ticking    bool        `json:"ticking"`
	NeedsTick  bool        `json:"needsTick"`
	Animations int         `json:"animations"`
	Tracing    bool        `json:"tracing"`
	LastError  *ErrorState `json:"lastError,omitempty"`
}

// ErrorState describes the last panic recovered at the tick boundary.
type ErrorState struct {
	Phase     string `json:"phase"`
	Update    uint32 `json:"update"`
	Message   string `json:"message"`
	Timestamp int64  `json:"ts"`
}

// startDebugServer starts the HTTP debug server on the specified port.
// Returns the actual port (useful when port=0 for ephemeral allocation).
func startDebugServer(port int) (int, error) {
	debugSrv.mu.Lock()
	defer debugSrv.mu.Unlock()

	if debugSrv.server != nil {
		// Already running - return current port
		if debugSrv.listener != nil {
			return debugSrv.listener.Addr().(*net.TCPAddr).Port, nil
		}
		return port, nil
	}

	// Bind listener first to fail fast on port conflicts
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return 0, fmt.Errorf("debug server listen: %w", err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port

	server := &http.Server{Handler: debugMux()}
	debugSrv.server = server
	debugSrv.listener = listener

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			// Server failed - clear state so it can be restarted
			debugSrv.mu.Lock()
			debugSrv.server = nil
			debugSrv.listener = nil
			debugSrv.mu.Unlock()
			slog.Error("debug server failed", "error", err)
		}
	}()

	return actualPort, nil
}

// debugMux routes the read-only inspection endpoints. Method patterns make
// the mux answer 405 for anything but GET and HEAD.
func debugMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handleHealth)
	mux.HandleFunc("GET /debug", handleDebug)
	mux.HandleFunc("GET /ticks", handleTickTimeline)
	mux.HandleFunc("GET /ticks.png", handleTickChart)
	mux.HandleFunc("GET /runtime", handleRuntime)
	mux.HandleFunc("GET /slow", handleSlowSnapshot)
	return mux
}

// stopDebugServer gracefully shuts down the debug server.
func stopDebugServer() {
	debugSrv.mu.Lock()
	server := debugSrv.server
	debugSrv.server = nil
	debugSrv.listener = nil
	debugSrv.mu.Unlock()

	if server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleDebug reports the driver state.
//
// Reads go through atomics and the trace buffer's own lock, so the handler
// never waits for a running tick.
func handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, currentEngineState())
}

func currentEngineState() EngineState {
	state := EngineState{
		Update:     uint32(vars.CurrentUpdate()),
		Ticks:      Ticks(),
		Ticking:    vars.Ticking(),
		NeedsTick:  NeedsTick(),
		Animations: animation.ActiveTickers(),
		Tracing:    runner.tickTrace.Load() != nil,
	}
	if be := LastError(); be != nil {
		state.LastError = &ErrorState{
			Phase:     be.Phase,
			Update:    be.Update,
			Message:   fmt.Sprint(be.Recovered),
			Timestamp: be.Timestamp.UnixMilli(),
		}
	}
	return state
}

// tickTimeline returns the filtered trace, or writes 503 and returns false
// when tracing is off.
func tickTimeline(w http.ResponseWriter, r *http.Request) (TickTimeline, bool) {
	trace := runner.tickTrace.Load()
	if trace == nil {
		http.Error(w, "tick tracing disabled", http.StatusServiceUnavailable)
		return TickTimeline{}, false
	}
	timeline := trace.Snapshot()
	applyTickFilters(r, &timeline)
	return timeline, true
}

func handleTickTimeline(w http.ResponseWriter, r *http.Request) {
	if timeline, ok := tickTimeline(w, r); ok {
		writeJSON(w, timeline)
	}
}

// handleTickChart renders the filtered tick timeline as a PNG bar chart
// sized by the w and h query parameters.
func handleTickChart(w http.ResponseWriter, r *http.Request) {
	timeline, ok := tickTimeline(w, r)
	if !ok {
		return
	}

	width := min(parseIntQuery(r, "w", 720), 4096)
	height := min(parseIntQuery(r, "h", 240), 4096)

	var buf bytes.Buffer
	if err := png.Encode(&buf, RenderTimeline(timeline, width, height)); err != nil {
		http.Error(w, fmt.Sprintf("png encode error: %v", err), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(buf.Bytes())
}

func handleRuntime(w http.ResponseWriter, r *http.Request) {
	buffer := runner.runtimeSamples.Load()
	if buffer == nil {
		http.Error(w, "runtime sampling disabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, struct {
		Samples []RuntimeSample `json:"samples"`
	}{applyRuntimeFilters(r, buffer.Snapshot())})
}

// handleSlowSnapshot pairs slow ticks with the runtime samples around them.
// Without a min_ms filter it keeps the ticks over the slow threshold.
func handleSlowSnapshot(w http.ResponseWriter, r *http.Request) {
	trace := runner.tickTrace.Load()
	runtimeBuffer := runner.runtimeSamples.Load()
	if trace == nil {
		http.Error(w, "tick tracing disabled", http.StatusServiceUnavailable)
		return
	}
	if runtimeBuffer == nil {
		http.Error(w, "runtime sampling disabled", http.StatusServiceUnavailable)
		return
	}

	ticks := trace.Snapshot()
	if r.URL.Query().Get("min_ms") == "" {
		ticks.Samples = filter(ticks.Samples, func(s TickSample) bool {
			return s.TickMs > ticks.ThresholdMs
		})
	}
	applyTickFilters(r, &ticks)

	writeJSON(w, struct {
		Ticks   TickTimeline    `json:"ticks"`
		Runtime []RuntimeSample `json:"runtime"`
	}{ticks, applyRuntimeFilters(r, runtimeBuffer.Snapshot())})
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, fmt.Sprintf("json encode error: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func applyTickFilters(r *http.Request, resp *TickTimeline) {
	var filters []func(TickSample) bool

	if v := parseFloatQuery(r, "min_ms"); v > 0 {
		filters = append(filters, func(s TickSample) bool { return s.TickMs >= v })
	}
	if v := parseFloatQuery(r, "dispatch_ms"); v > 0 {
		filters = append(filters, func(s TickSample) bool { return s.Phases.DispatchMs >= v })
	}
	if v := parseFloatQuery(r, "apply_ms"); v > 0 {
		filters = append(filters, func(s TickSample) bool { return s.Phases.ApplyMs >= v })
	}
	if v := parseFloatQuery(r, "hook_ms"); v > 0 {
		filters = append(filters, func(s TickSample) bool { return s.Phases.HookMs >= v })
	}
	if value := r.URL.Query().Get("committed"); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil && parsed {
			filters = append(filters, func(s TickSample) bool { return s.Counts.Committed > 0 })
		}
	}

	if len(filters) > 0 {
		resp.Samples = filter(resp.Samples, func(s TickSample) bool {
			for _, f := range filters {
				if !f(s) {
					return false
				}
			}
			return true
		})
	}

	resp.Samples = lastN(resp.Samples, parseLimit(r))
}

func filter[T any](samples []T, keep func(T) bool) []T {
	out := make([]T, 0, len(samples))
	for _, s := range samples {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func applyRuntimeFilters(r *http.Request, samples []RuntimeSample) []RuntimeSample {
	if secs := parseFloatQuery(r, "window"); secs > 0 {
		cutoff := time.Now().Add(-time.Duration(secs * float64(time.Second))).UnixMilli()
		samples = filter(samples, func(s RuntimeSample) bool { return s.Timestamp >= cutoff })
	}
	return lastN(samples, parseLimit(r))
}

// lastN keeps the newest n samples; n <= 0 keeps all.
func lastN[T any](samples []T, n int) []T {
	if n > 0 && len(samples) > n {
		return samples[len(samples)-n:]
	}
	return samples
}

func parseLimit(r *http.Request) int {
	return parseIntQuery(r, "limit", 0)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseFloatQuery(r *http.Request, key string) float64 {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || parsed <= 0 {
		return 0
	}
	return parsed
}
