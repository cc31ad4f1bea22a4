// Package memory implements the storage backend contract with plain
// in-process maps. It is the reference driver for tests and for
// consumers that don't need persistence.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/jrife/magpie/storage"
)

var _ storage.Backend = (*Backend)(nil)

// Backend is an in-memory storage backend.
type Backend struct {
	hub *storage.Hub

	mu     sync.Mutex
	areas  map[string]*area
	names  []string
	closed bool
}

// New creates a backend serving the standard areas.
func New() *Backend {
	return NewWithAreas(storage.DefaultAreas...)
}

// NewWithAreas creates a backend serving exactly the named areas.
// Duplicate names are collapsed.
func NewWithAreas(names ...string) *Backend {
	backend := &Backend{
		hub:   storage.NewHub(nil),
		areas: make(map[string]*area, len(names)),
	}

	for _, name := range names {
		if _, ok := backend.areas[name]; ok {
			continue
		}

		backend.areas[name] = &area{
			backend: backend,
			name:    name,
			items:   make(map[string]interface{}),
		}
		backend.names = append(backend.names, name)
	}

	sort.Strings(backend.names)

	return backend
}

// Area implements Backend.Area
func (backend *Backend) Area(name string) (storage.Area, error) {
	area, ok := backend.areas[name]

	if !ok {
		return nil, storage.ErrNoSuchArea
	}

	return area, nil
}

// Areas implements Backend.Areas
func (backend *Backend) Areas() []string {
	names := make([]string, len(backend.names))
	copy(names, backend.names)

	return names
}

// Subscribe implements Backend.Subscribe
func (backend *Backend) Subscribe(handler storage.EventHandler) (storage.Subscription, error) {
	return backend.hub.Subscribe(handler)
}

// Close implements Backend.Close
func (backend *Backend) Close() error {
	backend.mu.Lock()

	if backend.closed {
		backend.mu.Unlock()
		return nil
	}

	backend.closed = true
	backend.mu.Unlock()

	backend.hub.Close()

	return nil
}

var _ storage.Area = (*area)(nil)

type area struct {
	backend *Backend
	name    string
	items   map[string]interface{}
}

// Name implements Area.Name
func (area *area) Name() string {
	return area.name
}

// GetAll implements Area.GetAll
func (area *area) GetAll(ctx context.Context) (map[string]interface{}, error) {
	area.backend.mu.Lock()
	defer area.backend.mu.Unlock()

	if area.backend.closed {
		return nil, storage.ErrClosed
	}

	items := make(map[string]interface{}, len(area.items))

	for key, value := range area.items {
		items[key] = value
	}

	return items, nil
}

// Get implements Area.Get
func (area *area) Get(ctx context.Context, keys ...string) (map[string]interface{}, error) {
	area.backend.mu.Lock()
	defer area.backend.mu.Unlock()

	if area.backend.closed {
		return nil, storage.ErrClosed
	}

	items := make(map[string]interface{}, len(keys))

	for _, key := range keys {
		if value, ok := area.items[key]; ok {
			items[key] = value
		}
	}

	return items, nil
}

// Set implements Area.Set
func (area *area) Set(ctx context.Context, items map[string]interface{}) error {
	area.backend.mu.Lock()

	if area.backend.closed {
		area.backend.mu.Unlock()
		return storage.ErrClosed
	}

	changes := make(map[string]storage.Change, len(items))

	for key, value := range items {
		old, ok := area.items[key]
		changes[key] = storage.Change{
			OldValue:  old,
			OldExists: ok,
			NewValue:  value,
			NewExists: true,
		}
		area.items[key] = value
	}

	area.backend.mu.Unlock()

	area.backend.hub.Publish(area.name, changes)

	return nil
}

// Remove implements Area.Remove
func (area *area) Remove(ctx context.Context, keys ...string) error {
	area.backend.mu.Lock()

	if area.backend.closed {
		area.backend.mu.Unlock()
		return storage.ErrClosed
	}

	changes := make(map[string]storage.Change, len(keys))

	for _, key := range keys {
		old, ok := area.items[key]

		// Deleting an absent key has no effect and produces no event
		if !ok {
			continue
		}

		changes[key] = storage.Change{OldValue: old, OldExists: true}
		delete(area.items, key)
	}

	area.backend.mu.Unlock()

	area.backend.hub.Publish(area.name, changes)

	return nil
}

// Clear implements Area.Clear
func (area *area) Clear(ctx context.Context) error {
	area.backend.mu.Lock()

	if area.backend.closed {
		area.backend.mu.Unlock()
		return storage.ErrClosed
	}

	changes := make(map[string]storage.Change, len(area.items))

	for key, old := range area.items {
		changes[key] = storage.Change{OldValue: old, OldExists: true}
	}

	area.items = make(map[string]interface{})

	area.backend.mu.Unlock()

	area.backend.hub.Publish(area.name, changes)

	return nil
}
