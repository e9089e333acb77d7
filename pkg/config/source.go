// Package config exposes the keys of a configuration source as variables.
//
// A [Store] loads a [Source] (a YAML file or a bolt database) and [Bind]
// turns one key into a vars.Var. Changing the variable writes the new value
// back to the source; reloading the source updates every bound variable.
// Values are YAML-encoded in every source, so any type yaml.v3 can decode
// can be bound.
package config

import "context"

// Source is a flat key/value store of YAML-encoded values.
type Source interface {
	// Load returns every key with its encoded value. A source with no data
	// yet returns an empty map.
	Load() (map[string][]byte, error)
	// Store replaces the value of one key, leaving the others untouched.
	Store(key string, value []byte) error
	// Close releases the source.
	Close() error
}

// Watcher is implemented by sources that can report external changes.
type Watcher interface {
	// Watch calls changed after the source was modified from outside,
	// until ctx is cancelled.
	Watch(ctx context.Context, changed func()) error
}
