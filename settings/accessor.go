package settings

import (
	"context"
)

// Accessor is a convenience handle bound to one setting key. Every
// operation forwards to the owning Store's key-scoped operations, so
// an Accessor caches nothing: its reads round-trip to the backend
// like the Store's own. The declared default is captured when the
// accessor is built and not re-read afterwards.
type Accessor struct {
	store      *Store
	key        string
	def        interface{}
	hasDefault bool
}

// Key returns the setting key this accessor is bound to.
func (accessor *Accessor) Key() string {
	return accessor.key
}

// Default returns the default value captured at accessor creation.
// ok is false if the key had no declared default.
func (accessor *Accessor) Default() (interface{}, bool) {
	return accessor.def, accessor.hasDefault
}

// Get returns the stored value for this key. ok is false if the key
// is unset.
func (accessor *Accessor) Get(ctx context.Context) (interface{}, bool, error) {
	return accessor.store.Get(ctx, accessor.key)
}

// Set writes this key.
func (accessor *Accessor) Set(ctx context.Context, value interface{}) error {
	return accessor.store.Set(ctx, accessor.key, value)
}

// Reset writes this key's declared default, or fails with
// ErrNoDefault if it has none.
func (accessor *Accessor) Reset(ctx context.Context) error {
	return accessor.store.Reset(ctx, accessor.key)
}

// AddListener registers a listener scoped to this key.
func (accessor *Accessor) AddListener(listener Listener) error {
	return accessor.store.AddKeyListener(accessor.key, listener)
}

// RemoveListener removes a listener scoped to this key.
func (accessor *Accessor) RemoveListener(listener Listener) error {
	return accessor.store.RemoveKeyListener(accessor.key, listener)
}
