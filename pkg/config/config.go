package config

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-drift/reactive/pkg/errors"
	"github.com/go-drift/reactive/pkg/vars"
)

// Status describes the health of a Store.
type Status struct {
	// Loads counts successful loads, including the initial one.
	Loads int
	// Keys is the number of keys in the last successful load.
	Keys int
	// Err is the most recent load or write-back failure, nil once a later
	// load succeeds.
	Err error
	// At is when the status last changed.
	At time.Time
}

// binding is a variable bound to one key.
type binding interface {
	reload(raw []byte)
}

// Store loads a Source and keeps bound variables in sync with it.
type Store struct {
	src    Source
	logger *slog.Logger
	status vars.Var[Status]

	mu       sync.Mutex
	values   map[string][]byte
	bindings map[string]binding
	loads    int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for reloads and write-back failures.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New loads src and returns a store over it.
func New(src Source, opts ...Option) (*Store, error) {
	s := &Store{
		src:      src,
		logger:   slog.Default(),
		status:   vars.New(Status{}),
		bindings: map[string]binding{},
	}
	for _, opt := range opts {
		opt(s)
	}

	values, err := src.Load()
	if err != nil {
		return nil, &errors.VarError{Op: "config.New", Kind: errors.KindConfig, Err: err}
	}
	s.values = values
	s.loads = 1
	s.setStatus(nil)
	return s, nil
}

// Status returns a read-only variable tracking the store's health.
func (s *Store) Status() vars.Var[Status] {
	return s.status.ReadOnly()
}

// Keys returns the loaded keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.values))
}

// Raw returns the encoded value of key from the last load.
func (s *Store) Raw(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.values[key]
	return raw, ok
}

// Reload loads the source again and pushes changed values into the bound
// variables. Keys that disappeared keep their current variable value.
func (s *Store) Reload() error {
	values, err := s.src.Load()
	if err != nil {
		verr := &errors.VarError{Op: "config.Reload", Kind: errors.KindConfig, Err: err}
		errors.Report(verr)
		s.mu.Lock()
		s.setStatus(verr)
		s.mu.Unlock()
		return verr
	}

	s.mu.Lock()
	s.values = values
	s.loads++
	s.setStatus(nil)
	type pending struct {
		b   binding
		raw []byte
	}
	var reloads []pending
	for key, b := range s.bindings {
		if raw, ok := values[key]; ok {
			reloads = append(reloads, pending{b, raw})
		}
	}
	s.mu.Unlock()

	for _, p := range reloads {
		p.b.reload(p.raw)
	}
	s.logger.Debug("config reloaded", "keys", len(values))
	return nil
}

// Watch reloads the store whenever the source reports a change, until ctx
// is cancelled. Sources that cannot watch make Watch block until then.
func (s *Store) Watch(ctx context.Context) error {
	w, ok := s.src.(Watcher)
	if !ok {
		<-ctx.Done()
		return nil
	}
	return w.Watch(ctx, func() {
		if err := s.Reload(); err != nil {
			s.logger.Warn("config reload failed", "error", err)
		}
	})
}

// Close closes the source.
func (s *Store) Close() error {
	return s.src.Close()
}

// setStatus publishes a new status. Callers hold s.mu.
func (s *Store) setStatus(err error) {
	s.status.Set(Status{
		Loads: s.loads,
		Keys:  len(s.values),
		Err:   err,
		At:    time.Now(),
	})
}

func (s *Store) writeBack(key string, raw []byte) {
	if err := s.src.Store(key, raw); err != nil {
		verr := &errors.VarError{Op: "config.Store", Kind: errors.KindStore, Key: key, Err: err}
		errors.Report(verr)
		s.mu.Lock()
		s.setStatus(verr)
		s.mu.Unlock()
		return
	}
	s.mu.Lock()
	s.values[key] = raw
	s.mu.Unlock()
}

// Bind returns a variable holding the value of key, or def when the key
// is absent. Setting the variable writes the encoded value back to the
// source once the change commits; reloads update the variable. Binding a
// key twice with the same type returns the same variable.
func Bind[T any](s *Store, key string, def T) (vars.Var[T], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bindings[key]; ok {
		b, ok := existing.(*typedBinding[T])
		if !ok {
			return nil, &errors.VarError{
				Op:   "config.Bind",
				Kind: errors.KindConfig,
				Key:  key,
				Err:  fmt.Errorf("already bound with type %T", existing),
			}
		}
		return b.v, nil
	}

	value := def
	if raw, ok := s.values[key]; ok {
		if err := yaml.Unmarshal(raw, &value); err != nil {
			return nil, &errors.VarError{Op: "config.Bind", Kind: errors.KindConfig, Key: key, Err: err}
		}
	}
	last, err := yaml.Marshal(value)
	if err != nil {
		return nil, &errors.VarError{Op: "config.Bind", Kind: errors.KindConfig, Key: key, Err: err}
	}

	b := &typedBinding[T]{store: s, key: key, v: vars.New(value), last: last}
	b.v.Hook(b.changed)
	s.bindings[key] = b
	return b.v, nil
}

type typedBinding[T any] struct {
	store *Store
	key   string
	v     vars.Var[T]

	mu   sync.Mutex
	last []byte // encoding of the value the source holds
}

// changed writes a committed value back unless it came from the source.
func (b *typedBinding[T]) changed(value T) bool {
	raw, err := yaml.Marshal(value)
	if err != nil {
		errors.Report(&errors.VarError{Op: "config.Bind", Kind: errors.KindConfig, Key: b.key, Err: err})
		return true
	}

	b.mu.Lock()
	same := bytes.Equal(raw, b.last)
	b.last = raw
	b.mu.Unlock()
	if !same {
		b.store.writeBack(b.key, raw)
	}
	return true
}

func (b *typedBinding[T]) reload(raw []byte) {
	var value T
	if err := yaml.Unmarshal(raw, &value); err != nil {
		errors.Report(&errors.VarError{Op: "config.Reload", Kind: errors.KindConfig, Key: b.key, Err: err})
		return
	}
	// Compare encodings so formatting differences in the source are not
	// mistaken for changes.
	normalized, err := yaml.Marshal(value)
	if err != nil {
		return
	}

	b.mu.Lock()
	same := bytes.Equal(normalized, b.last)
	b.last = normalized
	b.mu.Unlock()
	if !same {
		b.v.Set(value)
	}
}
