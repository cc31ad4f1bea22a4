// Package settings is a typed facade over an asynchronous key-value
// backend. A Store binds a schema of defaults to one backend area and
// exposes bulk and per-key reads and writes, default management, and
// change notification.
//
// The backend is the sole source of truth: the Store never caches a
// value between calls, so every Get round-trips to the backend and a
// Get for an unset key reports it unset rather than substituting the
// declared default. Defaults only reach the backend through
// InitDefaults, Reset and ResetAll.
//
// Change notification multiplexes the backend's single event feed:
// the Store subscribes once, discards events for other areas, and
// fans each changed key out to that key's listeners followed by the
// wildcard listeners. Event delivery is asynchronous with respect to
// the write that produced it.
//
// Accessors are per-key convenience handles built lazily and
// memoized: Accessor returns the identical handle for the same key
// on every call for the lifetime of the Store.
package settings
