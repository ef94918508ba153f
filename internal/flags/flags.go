// Package flags holds the feature flags read from the flags section of the
// config file.
package flags

import (
	"maps"
	"slices"

	"github.com/zjrosen/fsync/internal/log"
)

const (
	// FlagHistory records every transfer and removal to the history database.
	FlagHistory = "history"

	// FlagArchiveXML keeps a zstd copy of each engine XML log in engine.archive_dir.
	FlagArchiveXML = "archive-xml"

	// FlagVerifyRemote makes realtime uploads check (and create) the remote
	// directory before the first upload into it.
	FlagVerifyRemote = "verify-remote"
)

var known = []string{FlagHistory, FlagArchiveXML, FlagVerifyRemote}

// Known returns the names of every flag fsync reads.
func Known() []string {
	return slices.Clone(known)
}

// Registry is an immutable set of flag values. The zero value and a nil
// *Registry report every flag as off.
type Registry struct {
	values map[string]bool
	logger *log.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger logs the loaded flags, misspelled config keys and lookups of
// flags that were never set.
func WithLogger(l *log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New copies values into a Registry.
func New(values map[string]bool, opts ...Option) *Registry {
	r := &Registry{values: maps.Clone(values)}
	for _, opt := range opts {
		opt(r)
	}

	for _, name := range slices.Sorted(maps.Keys(r.values)) {
		if !slices.Contains(known, name) {
			r.logger.Warn(log.CatConfig, "Ignoring unknown feature flag", "flag", name)
		}
	}
	r.logger.Debug(log.CatConfig, "Feature flags initialized", "count", len(r.values), "flags", r.values)
	return r
}

// Enabled reports whether name is set to true. Unset flags are off.
func (r *Registry) Enabled(name string) bool {
	if r == nil {
		return false
	}
	on, ok := r.values[name]
	if !ok {
		r.logger.Debug(log.CatConfig, "Unknown flag accessed", "flag", name)
	}
	return on
}

// All returns a copy of the configured values.
func (r *Registry) All() map[string]bool {
	if r == nil || r.values == nil {
		return map[string]bool{}
	}
	return maps.Clone(r.values)
}
