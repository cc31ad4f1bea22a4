// Package bolt implements the storage backend contract on top of a
// bbolt database file. Each area maps to one top-level bucket and
// values are stored JSON-encoded. JSON round-tripping means numeric
// values read back as float64 and maps as map[string]interface{}.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/jrife/magpie/storage"
	bolt "go.etcd.io/bbolt"
)

var _ storage.Backend = (*Backend)(nil)

// Backend is a bbolt-backed storage backend.
type Backend struct {
	db  *bolt.DB
	hub *storage.Hub

	mu     sync.Mutex
	areas  map[string]*area
	names  []string
	closed bool
}

// Open opens (creating if necessary) a bbolt database at path and
// ensures a bucket exists for each of the standard areas.
func Open(path string) (*Backend, error) {
	return OpenWithAreas(path, storage.DefaultAreas...)
}

// OpenWithAreas opens a bbolt database at path serving exactly the
// named areas.
func OpenWithAreas(path string, names ...string) (*Backend, error) {
	db, err := bolt.Open(path, 0600, nil)

	if err != nil {
		return nil, fmt.Errorf("could not open database at %s: %s", path, err.Error())
	}

	backend := &Backend{
		db:    db,
		hub:   storage.NewHub(nil),
		areas: make(map[string]*area, len(names)),
	}

	err = db.Update(func(transaction *bolt.Tx) error {
		for _, name := range names {
			if _, err := transaction.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("could not create bucket %s: %s", name, err.Error())
			}
		}

		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	for _, name := range names {
		if _, ok := backend.areas[name]; ok {
			continue
		}

		backend.areas[name] = &area{backend: backend, name: name}
		backend.names = append(backend.names, name)
	}

	sort.Strings(backend.names)

	return backend, nil
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

	return backend.db.Close()
}

func (backend *Backend) isClosed() bool {
	backend.mu.Lock()
	defer backend.mu.Unlock()

	return backend.closed
}

var _ storage.Area = (*area)(nil)

type area struct {
	backend *Backend
	name    string
}

// Name implements Area.Name
func (area *area) Name() string {
	return area.name
}

// GetAll implements Area.GetAll
func (area *area) GetAll(ctx context.Context) (map[string]interface{}, error) {
	if area.backend.isClosed() {
		return nil, storage.ErrClosed
	}

	items := make(map[string]interface{})

	err := area.backend.db.View(func(transaction *bolt.Tx) error {
		return area.bucket(transaction).ForEach(func(key []byte, data []byte) error {
			value, err := decode(data)

			if err != nil {
				return fmt.Errorf("could not decode value for key %s: %s", key, err.Error())
			}

			items[string(key)] = value

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// Get implements Area.Get
func (area *area) Get(ctx context.Context, keys ...string) (map[string]interface{}, error) {
	if area.backend.isClosed() {
		return nil, storage.ErrClosed
	}

	items := make(map[string]interface{}, len(keys))

	err := area.backend.db.View(func(transaction *bolt.Tx) error {
		bucket := area.bucket(transaction)

		for _, key := range keys {
			data := bucket.Get([]byte(key))

			if data == nil {
				continue
			}

			value, err := decode(data)

			if err != nil {
				return fmt.Errorf("could not decode value for key %s: %s", key, err.Error())
			}

			items[key] = value
		}

		return nil
	})

	if err != nil {
		return nil, err
	}

	return items, nil
}

// Set implements Area.Set
func (area *area) Set(ctx context.Context, items map[string]interface{}) error {
	if area.backend.isClosed() {
		return storage.ErrClosed
	}

	changes := make(map[string]storage.Change, len(items))

	err := area.backend.db.Update(func(transaction *bolt.Tx) error {
		bucket := area.bucket(transaction)

		for key, value := range items {
			change := storage.Change{NewValue: value, NewExists: true}

			if data := bucket.Get([]byte(key)); data != nil {
				old, err := decode(data)

				if err != nil {
					return fmt.Errorf("could not decode value for key %s: %s", key, err.Error())
				}

				change.OldValue = old
				change.OldExists = true
			}

			data, err := json.Marshal(value)

			if err != nil {
				return fmt.Errorf("could not encode value for key %s: %s", key, err.Error())
			}

			if err := bucket.Put([]byte(key), data); err != nil {
				return fmt.Errorf("could not put key %s: %s", key, err.Error())
			}

			changes[key] = change
		}

		return nil
	})

	if err != nil {
		return err
	}

	area.backend.hub.Publish(area.name, changes)

	return nil
}

// Remove implements Area.Remove
func (area *area) Remove(ctx context.Context, keys ...string) error {
	if area.backend.isClosed() {
		return storage.ErrClosed
	}

	changes := make(map[string]storage.Change, len(keys))

	err := area.backend.db.Update(func(transaction *bolt.Tx) error {
		bucket := area.bucket(transaction)

		for _, key := range keys {
			data := bucket.Get([]byte(key))

			if data == nil {
				continue
			}

			old, err := decode(data)

			if err != nil {
				return fmt.Errorf("could not decode value for key %s: %s", key, err.Error())
			}

			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("could not delete key %s: %s", key, err.Error())
			}

			changes[key] = storage.Change{OldValue: old, OldExists: true}
		}

		return nil
	})

	if err != nil {
		return err
	}

	area.backend.hub.Publish(area.name, changes)

	return nil
}

// Clear implements Area.Clear
func (area *area) Clear(ctx context.Context) error {
	if area.backend.isClosed() {
		return storage.ErrClosed
	}

	changes := make(map[string]storage.Change)

	err := area.backend.db.Update(func(transaction *bolt.Tx) error {
		bucket := area.bucket(transaction)

		err := bucket.ForEach(func(key []byte, data []byte) error {
			old, err := decode(data)

			if err != nil {
				return fmt.Errorf("could not decode value for key %s: %s", key, err.Error())
			}

			changes[string(key)] = storage.Change{OldValue: old, OldExists: true}

			return nil
		})

		if err != nil {
			return err
		}

		for key := range changes {
			if err := bucket.Delete([]byte(key)); err != nil {
				return fmt.Errorf("could not delete key %s: %s", key, err.Error())
			}
		}

		return nil
	})

	if err != nil {
		return err
	}

	area.backend.hub.Publish(area.name, changes)

	return nil
}

func (area *area) bucket(transaction *bolt.Tx) *bolt.Bucket {
	// Buckets for all areas are created in Open so this can't be nil
	return transaction.Bucket([]byte(area.name))
}

func decode(data []byte) (interface{}, error) {
	var value interface{}

	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}

	return value, nil
}
