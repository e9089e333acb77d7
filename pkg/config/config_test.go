package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/reactive/pkg/config"
	"github.com/go-drift/reactive/pkg/errors"
	varstest "github.com/go-drift/reactive/pkg/testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func openStore(t *testing.T, content string) (*config.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vars.yaml")
	if content != "" {
		writeFile(t, path, content)
	}
	src, err := config.OpenFile(path, config.WithDebounce(10*time.Millisecond))
	require.NoError(t, err)
	store, err := config.New(src)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

type window struct {
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	Title  string `yaml:"title"`
}

func TestBind_ReadsValuesAndDefaults(t *testing.T) {
	varstest.NewTesterWithT(t)
	store, _ := openStore(t, "tick_rate: 30\nwindow:\n  width: 800\n  height: 600\n")

	rate, err := config.Bind(store, "tick_rate", 60.0)
	require.NoError(t, err)
	assert.Equal(t, 30.0, rate.Get())

	win, err := config.Bind(store, "window", window{Title: "untitled"})
	require.NoError(t, err)
	if diff := cmp.Diff(window{Width: 800, Height: 600, Title: "untitled"}, win.Get()); diff != "" {
		t.Errorf("window mismatch (-want +got):\n%s", diff)
	}

	trace, err := config.Bind(store, "trace", true)
	require.NoError(t, err)
	assert.True(t, trace.Get())

	assert.Equal(t, []string{"tick_rate", "window"}, store.Keys())
}

func TestBind_SameKeyReturnsSameVariable(t *testing.T) {
	varstest.NewTesterWithT(t)
	store, _ := openStore(t, "name: a\n")

	first, err := config.Bind(store, "name", "")
	require.NoError(t, err)
	second, err := config.Bind(store, "name", "other")
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = config.Bind(store, "name", 1)
	var verr *errors.VarError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, errors.KindConfig, verr.Kind)
	assert.Equal(t, "name", verr.Key)
}

func TestBind_DecodeError(t *testing.T) {
	varstest.NewTesterWithT(t)
	store, _ := openStore(t, "tick_rate: fast\n")

	_, err := config.Bind(store, "tick_rate", 60.0)
	var verr *errors.VarError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, errors.KindConfig, verr.Kind)
}

func TestBind_WritesBackOnCommit(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	store, path := openStore(t, "# settings\ntick_rate: 30\nother: keep\n")

	rate, err := config.Bind(store, "tick_rate", 60.0)
	require.NoError(t, err)
	require.NoError(t, rate.Set(120))

	// Nothing is written before the change commits.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "tick_rate: 30")

	tester.Tick()

	reopened, err := config.OpenFile(path)
	require.NoError(t, err)
	values, err := reopened.Load()
	require.NoError(t, err)
	want := map[string][]byte{
		"tick_rate": []byte("120\n"),
		"other":     []byte("keep\n"),
	}
	if diff := cmp.Diff(want, values); diff != "" {
		t.Errorf("file mismatch (-want +got):\n%s", diff)
	}

	raw, ok := store.Raw("tick_rate")
	require.True(t, ok)
	assert.Equal(t, "120\n", string(raw))
}

func TestReload_UpdatesWithoutWritingBack(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	store, path := openStore(t, "tick_rate: 30\n")

	rate, err := config.Bind(store, "tick_rate", 60.0)
	require.NoError(t, err)
	rec := varstest.Record(rate)

	// Formatting the source differently than the encoder would is not a change.
	writeFile(t, path, "tick_rate: 30.0\n")
	require.NoError(t, store.Reload())
	tester.Tick()
	assert.Zero(t, rec.Len())

	writeFile(t, path, "tick_rate:   45.5   # comment\n")
	require.NoError(t, store.Reload())
	tester.Tick()
	assert.Equal(t, []float64{45.5}, rec.Values())

	// The file keeps its own formatting: the reloaded value is not written back.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tick_rate:   45.5   # comment\n", string(data))
}

func TestReload_BadFileReportsStatus(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	store, path := openStore(t, "a: 1\nb: 2\n")
	tester.Tick()

	status := store.Status().Get()
	assert.Equal(t, 1, status.Loads)
	assert.Equal(t, 2, status.Keys)
	assert.NoError(t, status.Err)

	writeFile(t, path, "a: [unterminated\n")
	err := store.Reload()
	require.Error(t, err)
	tester.Tick()

	status = store.Status().Get()
	assert.Error(t, status.Err)
	assert.Equal(t, 1, status.Loads)
	require.NotEmpty(t, tester.Errors())

	writeFile(t, path, "a: 3\n")
	require.NoError(t, store.Reload())
	tester.Tick()
	status = store.Status().Get()
	assert.NoError(t, status.Err)
	assert.Equal(t, 2, status.Loads)
	assert.Equal(t, 1, status.Keys)
}

func TestStatus_IsReadOnly(t *testing.T) {
	varstest.NewTesterWithT(t)
	store, _ := openStore(t, "")
	assert.True(t, errors.IsReadOnly(store.Status().Set(config.Status{})))
}

func TestWatch_ReloadsOnFileChange(t *testing.T) {
	tester := varstest.NewTesterWithT(t)
	store, path := openStore(t, "title: before\n")

	title, err := config.Bind(store, "title", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Give the watcher time to register before the write.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte("title: after\n"), 0o644)
		tester.Tick()
		return title.Get() == "after"
	}, 3*time.Second, 50*time.Millisecond)
}

func TestWatch_WithoutWatcherBlocksUntilCancel(t *testing.T) {
	varstest.NewTesterWithT(t)
	src, err := config.OpenBolt(filepath.Join(t.TempDir(), "state.db"), "")
	require.NoError(t, err)
	store, err := config.New(src)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, store.Watch(ctx))
}
