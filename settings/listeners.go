package settings

import (
	"sync"
	"unsafe"

	"github.com/emirpasic/gods/sets/linkedhashset"
	"github.com/jrife/magpie/storage"
	"go.uber.org/zap"
)

// Listener observes changes to one or more setting keys. It receives
// the changed key and the change that landed on it.
type Listener func(key string, change storage.Change)

// listenerID is the identity under which a callback registers: the
// address of the function value itself. Registering the same
// function value twice collapses to one registration, while two
// closures built separately from the same literal stay distinct.
// The registry holds a reference to every registered Listener, so a
// registered callback's address cannot be recycled out from under
// its id.
type listenerID uintptr

func idOf(listener Listener) listenerID {
	return listenerID(*(*uintptr)(unsafe.Pointer(&listener)))
}

// listenerSet is an insertion-ordered set of callbacks.
type listenerSet struct {
	order *linkedhashset.Set
	byID  map[listenerID]Listener
}

func newListenerSet() *listenerSet {
	return &listenerSet{
		order: linkedhashset.New(),
		byID:  make(map[listenerID]Listener),
	}
}

func (set *listenerSet) add(listener Listener) {
	id := idOf(listener)

	if _, ok := set.byID[id]; ok {
		return
	}

	set.order.Add(id)
	set.byID[id] = listener
}

func (set *listenerSet) remove(listener Listener) {
	id := idOf(listener)

	if _, ok := set.byID[id]; !ok {
		return
	}

	set.order.Remove(id)
	delete(set.byID, id)
}

func (set *listenerSet) listeners() []Listener {
	listeners := make([]Listener, 0, len(set.byID))

	for _, id := range set.order.Values() {
		listeners = append(listeners, set.byID[id.(listenerID)])
	}

	return listeners
}

func (set *listenerSet) empty() bool {
	return len(set.byID) == 0
}

// listenerRegistry maps each key to its listener set and keeps the
// wildcard bucket as a separate collection so that no setting key
// can collide with it.
type listenerRegistry struct {
	mu       sync.Mutex
	byKey    map[string]*listenerSet
	wildcard *listenerSet
}

func newListenerRegistry() *listenerRegistry {
	return &listenerRegistry{
		byKey:    make(map[string]*listenerSet),
		wildcard: newListenerSet(),
	}
}

func (registry *listenerRegistry) addKey(key string, listener Listener) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	set, ok := registry.byKey[key]

	if !ok {
		set = newListenerSet()
		registry.byKey[key] = set
	}

	set.add(listener)
}

func (registry *listenerRegistry) removeKey(key string, listener Listener) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	set, ok := registry.byKey[key]

	if !ok {
		return
	}

	set.remove(listener)

	if set.empty() {
		delete(registry.byKey, key)
	}
}

func (registry *listenerRegistry) addWildcard(listener Listener) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.wildcard.add(listener)
}

func (registry *listenerRegistry) removeWildcard(listener Listener) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.wildcard.remove(listener)
}

func (registry *listenerRegistry) clear() {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.byKey = make(map[string]*listenerSet)
	registry.wildcard = newListenerSet()
}

// snapshot returns the callbacks to run for one key's change:
// key-specific listeners first, then wildcard listeners, each group
// in registration order.
func (registry *listenerRegistry) snapshot(key string) []Listener {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	var listeners []Listener

	if set, ok := registry.byKey[key]; ok {
		listeners = set.listeners()
	}

	return append(listeners, registry.wildcard.listeners()...)
}

// dispatch delivers one key's change to its listeners. A panicking
// listener is logged and does not stop its siblings.
func (registry *listenerRegistry) dispatch(logger *zap.Logger, key string, change storage.Change) {
	for _, listener := range registry.snapshot(key) {
		invoke(logger, listener, key, change)
	}
}

func invoke(logger *zap.Logger, listener Listener, key string, change storage.Change) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("listener panicked", zap.String("key", key), zap.Any("panic", r))
		}
	}()

	listener(key, change)
}
