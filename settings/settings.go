package settings

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/jrife/magpie/storage"
	"github.com/jrife/magpie/utils/log"
	"go.uber.org/zap"
)

// Config contains configuration for a Store
type Config struct {
	// Backend is the storage backend the facade delegates to.
	// Required.
	Backend storage.Backend
	// Defaults is the schema: every known setting key with its
	// declared default value. The Store keeps a reference to this
	// map and never copies or mutates it.
	Defaults Defaults
	// Area names the backend area this Store reads and writes.
	// Defaults to storage.AreaLocal.
	Area string
	// Logger defaults to the global zap logger.
	Logger *zap.Logger
}

// Store is a settings facade bound to one (schema, backend area)
// pair. All reads and writes round-trip to the backend; the Store
// holds no value cache.
type Store struct {
	logger   *zap.Logger
	backend  storage.Backend
	defaults Defaults
	area     storage.Area
	areaName string
	fields   map[string]struct{}
	registry *listenerRegistry

	mu           sync.Mutex
	accessors    map[string]*Accessor
	subscription storage.Subscription
	closed       bool
}

// New creates a Store over the configured backend area. It fails
// with ErrInvalidStorageArea if the backend does not serve that
// area. The returned Store is already subscribed to the backend's
// change feed.
func New(config Config) (*Store, error) {
	if config.Backend == nil {
		return nil, ErrInvalidArgument
	}

	areaName := config.Area

	if areaName == "" {
		areaName = storage.AreaLocal
	}

	area, err := config.Backend.Area(areaName)

	if err != nil {
		return nil, ErrInvalidStorageArea
	}

	logger := config.Logger

	if logger == nil {
		logger = zap.L()
	}

	store := &Store{
		logger:    logger.With(zap.String("area", areaName)),
		backend:   config.Backend,
		defaults:  config.Defaults,
		area:      area,
		areaName:  areaName,
		fields:    fieldTable(config.Defaults),
		registry:  newListenerRegistry(),
		accessors: make(map[string]*Accessor),
	}

	subscription, err := config.Backend.Subscribe(store.handleEvent)

	if err != nil {
		return nil, err
	}

	store.subscription = subscription

	return store, nil
}

// fieldTable decides, once at construction, which schema keys get an
// entry in the per-key field table. A key whose name collides with a
// Store method is skipped so that it cannot shadow an operation; it
// stays reachable through Accessor. The comparison is
// case-insensitive to cover spellings like "get" and "reset".
func fieldTable(defaults Defaults) map[string]struct{} {
	reserved := make(map[string]struct{})
	storeType := reflect.TypeOf(&Store{})

	for i := 0; i < storeType.NumMethod(); i++ {
		reserved[strings.ToLower(storeType.Method(i).Name)] = struct{}{}
	}

	fields := make(map[string]struct{}, len(defaults))

	for key := range defaults {
		if _, ok := reserved[strings.ToLower(key)]; ok {
			continue
		}

		fields[key] = struct{}{}
	}

	return fields
}

// Defaults returns the schema this Store was created with. It is the
// same map the caller passed to New, not a copy.
func (store *Store) Defaults() Defaults {
	return store.defaults
}

// Area returns the name of the backend area this Store is bound to.
func (store *Store) Area() string {
	return store.areaName
}

// GetAll returns the full stored map for this Store's area. Unset
// schema keys are absent from the result; defaults are not merged in.
func (store *Store) GetAll(ctx context.Context) (map[string]interface{}, error) {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "GetAll"))
	logger.Debug("start GetAll()")

	items, err := store.area.GetAll(ctx)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return nil, err
	}

	return items, nil
}

// Get returns the stored value for key. ok is false if the key is
// unset; the declared default is never substituted.
func (store *Store) Get(ctx context.Context, key string) (interface{}, bool, error) {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "Get"), zap.String("key", key))
	logger.Debug("start Get()")

	items, err := store.area.Get(ctx, key)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return nil, false, err
	}

	value, ok := items[key]

	return value, ok, nil
}

// IsDefined reports whether key currently has a stored value.
func (store *Store) IsDefined(ctx context.Context, key string) (bool, error) {
	_, ok, err := store.Get(ctx, key)

	return ok, err
}

// Set writes one key. The write reaches the backend as a single
// bulk write of one pair.
func (store *Store) Set(ctx context.Context, key string, value interface{}) error {
	return store.SetAll(ctx, map[string]interface{}{key: value})
}

// SetAll writes every pair in items as one bulk write.
func (store *Store) SetAll(ctx context.Context, items map[string]interface{}) error {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "SetAll"))
	logger.Debug("start SetAll()", zap.Int("keys", len(items)))

	if err := store.area.Set(ctx, items); err != nil {
		logger.Debug("error", zap.Error(err))

		return err
	}

	return nil
}

// Remove deletes the given keys from the backend area.
func (store *Store) Remove(ctx context.Context, keys ...string) error {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "Remove"))
	logger.Debug("start Remove()", zap.Strings("keys", keys))

	if err := store.area.Remove(ctx, keys...); err != nil {
		logger.Debug("error", zap.Error(err))

		return err
	}

	return nil
}

// Clear deletes every key in the backend area.
func (store *Store) Clear(ctx context.Context) error {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "Clear"))
	logger.Debug("start Clear()")

	if err := store.area.Clear(ctx); err != nil {
		logger.Debug("error", zap.Error(err))

		return err
	}

	return nil
}

// InitDefaults writes the declared default for every schema key that
// is currently unset, leaving stored values untouched. The read and
// the write are two separate backend calls: a concurrent Set landing
// between them on a key InitDefaults decided was unset will be
// overwritten by the default. No serialization is attempted beyond
// what the backend's single bulk write provides.
func (store *Store) InitDefaults(ctx context.Context) error {
	logger := log.WithContext(ctx, store.logger).With(zap.String("operation", "InitDefaults"))
	logger.Debug("start InitDefaults()")

	stored, err := store.area.GetAll(ctx)

	if err != nil {
		logger.Debug("error", zap.Error(err))

		return err
	}

	missing := make(map[string]interface{})

	for key, def := range store.defaults {
		if _, ok := stored[key]; !ok {
			missing[key] = def
		}
	}

	if len(missing) == 0 {
		return nil
	}

	logger.Debug("writing missing defaults", zap.Int("keys", len(missing)))

	if err := store.area.Set(ctx, missing); err != nil {
		logger.Debug("error", zap.Error(err))

		return err
	}

	return nil
}

// Reset writes the declared default for key, overwriting any stored
// value. It fails with ErrNoDefault, without touching the backend,
// if key has no declared default.
func (store *Store) Reset(ctx context.Context, key string) error {
	def, ok := store.defaults[key]

	if !ok {
		return ErrNoDefault
	}

	return store.SetAll(ctx, map[string]interface{}{key: def})
}

// ResetAll writes the entire default map, overwriting every schema
// key regardless of its current value.
func (store *Store) ResetAll(ctx context.Context) error {
	items := make(map[string]interface{}, len(store.defaults))

	for key, def := range store.defaults {
		items[key] = def
	}

	return store.SetAll(ctx, items)
}

// Accessor returns the per-key accessor for key, building it on
// first call. The same key always yields the identical accessor for
// the lifetime of this Store.
func (store *Store) Accessor(key string) *Accessor {
	store.mu.Lock()
	defer store.mu.Unlock()

	if accessor, ok := store.accessors[key]; ok {
		return accessor
	}

	def, hasDefault := store.defaults[key]

	accessor := &Accessor{
		store:      store,
		key:        key,
		def:        def,
		hasDefault: hasDefault,
	}
	store.accessors[key] = accessor

	return accessor
}

// Field resolves a schema key from the per-key field table built at
// construction. It returns nil for keys outside the table: keys not
// in the schema, and schema keys skipped by the collision rule (see
// fieldTable), which remain reachable through Accessor.
func (store *Store) Field(key string) *Accessor {
	if _, ok := store.fields[key]; !ok {
		return nil
	}

	return store.Accessor(key)
}

// AddListener registers a wildcard listener: it observes every key's
// changes in this Store's area. Registration is idempotent under the
// callback's identity (see Listener).
func (store *Store) AddListener(listener Listener) error {
	if listener == nil {
		return ErrInvalidArgument
	}

	store.registry.addWildcard(listener)

	return nil
}

// AddKeyListener registers a listener scoped to one key.
func (store *Store) AddKeyListener(key string, listener Listener) error {
	if key == "" || listener == nil {
		return ErrInvalidArgument
	}

	store.registry.addKey(key, listener)

	return nil
}

// RemoveListener removes a wildcard listener. Removing a callback
// that was never registered is a no-op.
func (store *Store) RemoveListener(listener Listener) error {
	if listener == nil {
		return ErrInvalidArgument
	}

	store.registry.removeWildcard(listener)

	return nil
}

// RemoveKeyListener removes a key-scoped listener. Removing a
// callback that was never registered is a no-op.
func (store *Store) RemoveKeyListener(key string, listener Listener) error {
	if key == "" || listener == nil {
		return ErrInvalidArgument
	}

	store.registry.removeKey(key, listener)

	return nil
}

// Close detaches the Store from the backend's change feed and drops
// every registered listener. No events are delivered after Close
// returns. Close does not close the backend; other consumers may
// still be using it.
func (store *Store) Close() error {
	store.mu.Lock()

	if store.closed {
		store.mu.Unlock()
		return nil
	}

	store.closed = true
	store.mu.Unlock()

	store.subscription.Cancel()
	store.registry.clear()

	return nil
}

// handleEvent is the Store's subscription on the backend feed. The
// backend serves every facade over every area, so events for other
// areas are discarded here. For each changed key, key-scoped
// listeners run before wildcard listeners.
func (store *Store) handleEvent(area string, changes map[string]storage.Change) {
	if area != store.areaName {
		return
	}

	store.mu.Lock()
	closed := store.closed
	store.mu.Unlock()

	if closed {
		return
	}

	for key, change := range changes {
		store.registry.dispatch(store.logger, key, change)
	}
}
