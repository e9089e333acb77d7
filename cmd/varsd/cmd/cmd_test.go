package cmd

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/reactive/pkg/engine"
	varstest "github.com/go-drift/reactive/pkg/testing"
)

func TestVersionString(t *testing.T) {
	tests := []struct {
		version string
		want    string
	}{
		{"1.2.3", "varsd v1.2.3 (release,"},
		{"v1.2", "varsd v1.2.0 (release,"},
		{"0.1.0-dev", "varsd v0.1.0-dev (pre-release,"},
		{"devel", "varsd devel (unversioned,"},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			got := versionString(tt.version, "today")
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("versionString(%q) = %q, want prefix %q", tt.version, got, tt.want)
			}
			assert.Contains(t, got, "built today")
		})
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	varstest.NewTesterWithT(t)
	s, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer s.store.Close()

	assert.Equal(t, engine.DefaultTickRate, s.tickRate.Get())
	assert.Equal(t, ":9464", s.metricsAddr.Get())
	assert.False(t, s.trace.Get())
	assert.Zero(t, s.debugPort.Get())
	assert.Equal(t, "ease-in-out", s.easing.Get())
}

func TestLoadSettings_FromFile(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("tick_rate: 120\ntrace: true\ndebug_port: 9999\n"), 0o644))

	s, err := loadSettings(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer s.store.Close()
	assert.Equal(t, 120.0, s.tickRate.Get())

	diag := s.diagnostics()
	cfg := diag.Get()
	assert.True(t, cfg.TraceTicks)
	assert.Equal(t, 9999, cfg.DebugServerPort)
	assert.Equal(t, engine.DefaultDiagnosticsConfig().TraceSamples, cfg.TraceSamples)

	var seen []engine.DiagnosticsConfig
	h := diag.Hook(func(c engine.DiagnosticsConfig) bool {
		seen = append(seen, c)
		return true
	})
	defer h.Unhook()

	require.NoError(t, s.trace.Set(false))
	require.NoError(t, s.debugPort.Set(0))
	tester.Tick()
	require.Len(t, seen, 1, "both changes arrive in one notification")
	assert.False(t, seen[0].TraceTicks)
	assert.Zero(t, seen[0].DebugServerPort)
	runtime.KeepAlive(diag)
}

func TestLoadSettings_BadValue(t *testing.T) {
	varstest.NewTesterWithT(t)
	path := filepath.Join(t.TempDir(), "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("debug_port: nine\n"), 0o644))

	_, err := loadSettings(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
