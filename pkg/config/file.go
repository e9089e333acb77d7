package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// DefaultDebounce is how long File.Watch waits for further events before
// reporting a change.
const DefaultDebounce = 100 * time.Millisecond

// File is a Source backed by a YAML mapping document. A missing file reads
// as empty and is created by the first Store.
type File struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger

	mu sync.Mutex
}

// FileOption configures a File.
type FileOption func(*File)

// WithDebounce sets the debounce window of Watch.
func WithDebounce(d time.Duration) FileOption {
	return func(f *File) {
		if d > 0 {
			f.debounce = d
		}
	}
}

// WithFileLogger sets the logger used for watcher errors.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(f *File) {
		if l != nil {
			f.logger = l
		}
	}
}

// OpenFile returns a File source for path.
func OpenFile(path string, opts ...FileOption) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	f := &File{
		path:     abs,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Path returns the absolute path of the file.
func (f *File) Path() string { return f.path }

// Load reads the file and returns each top-level key with its value
// re-encoded on its own.
func (f *File) Load() (map[string][]byte, error) {
	f.mu.Lock()
	doc, err := f.read()
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(doc))
	for key, node := range doc {
		data, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		values[key] = data
	}
	return values, nil
}

// Store rewrites the file with key set to value.
func (f *File) Store(key string, value []byte) error {
	var node yaml.Node
	if err := yaml.Unmarshal(value, &node); err != nil {
		return fmt.Errorf("failed to parse value of %s: %w", key, err)
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = *node.Content[0]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc[key] = node

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", f.path, err)
	}
	return writeFileAtomic(f.path, data)
}

// Close is a no-op; File holds no open handles between calls.
func (f *File) Close() error { return nil }

func (f *File) read() (map[string]yaml.Node, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]yaml.Node{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", f.path, err)
	}

	doc := map[string]yaml.Node{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", f.path, err)
	}
	return doc, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Watch reports changes to the file until ctx is cancelled. The parent
// directory is watched so editors that replace the file are seen too.
// Bursts of events within the debounce window are reported once.
func (f *File) Watch(ctx context.Context, changed func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.path, err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", f.path, err)
	}

	timer := time.NewTimer(f.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				timer.Reset(f.debounce)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("config watcher error", "path", f.path, "error", err)

		case <-timer.C:
			changed()
		}
	}
}
