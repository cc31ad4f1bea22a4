package storage

import (
	"context"
	"errors"
)

var (
	// ErrClosed indicates that the backend was closed
	ErrClosed = errors.New("backend was closed")
	// ErrNoSuchArea is returned when a caller requests a storage
	// area that the backend does not serve.
	ErrNoSuchArea = errors.New("storage area does not exist")
)

// Standard area names. Every backend serves at least these three.
const (
	AreaLocal   = "local"
	AreaManaged = "managed"
	AreaSync    = "sync"
)

// DefaultAreas lists the areas a backend creates when the consumer
// doesn't ask for a specific set.
var DefaultAreas = []string{AreaLocal, AreaManaged, AreaSync}

// Backend is an asynchronous key-value store organized into named
// areas. All writes, no matter their source, feed one shared change
// stream that every subscriber observes.
type Backend interface {
	// Area returns a handle for the area with this name. It must
	// return ErrNoSuchArea if the backend does not serve an area
	// with this name.
	Area(name string) (Area, error)
	// Areas lists the names of all areas served by this backend
	// in ascending lexicographical order.
	Areas() []string
	// Subscribe registers a handler on the backend's shared change
	// feed. The handler observes every write to every area, tagged
	// with the area name. Delivery is asynchronous with respect to
	// the write that produced the event: a writer must not assume
	// its event has been delivered by the time the write call
	// returns. Delivery order matches write order. Subscribe must
	// return ErrClosed if its invocation starts after Close()
	// returns.
	Subscribe(handler EventHandler) (Subscription, error)
	// Close shuts down the backend. Once Close returns, area
	// operations return ErrClosed and no further events are
	// delivered to any subscriber. Events published before Close
	// may or may not be delivered.
	Close() error
}

// Area is one named partition of a backend. Keys within an area are
// independent of equally-named keys in other areas.
type Area interface {
	// Name returns the name of this area
	Name() string
	// GetAll reads every key stored in this area.
	GetAll(ctx context.Context) (map[string]interface{}, error)
	// Get reads the requested keys. The result contains only keys
	// that are present: absent keys are omitted from the map, not
	// mapped to nil.
	Get(ctx context.Context, keys ...string) (map[string]interface{}, error)
	// Set writes every pair in items. A call either applies all of
	// items or none of it; there is no partial-failure mode.
	Set(ctx context.Context, items map[string]interface{}) error
	// Remove deletes the requested keys. Keys that are not present
	// are skipped. Deletions appear on the change feed with no new
	// value.
	Remove(ctx context.Context, keys ...string) error
	// Clear deletes every key in this area.
	Clear(ctx context.Context) error
}

// EventHandler receives one backend event: the set of per-key changes
// a single write produced, tagged with the area it landed in.
type EventHandler func(area string, changes map[string]Change)

// Change describes one key's transition within an area.
type Change struct {
	// OldValue is the value before the write. OldExists is false
	// if the key was not present before, in which case OldValue
	// is nil.
	OldValue  interface{}
	OldExists bool
	// NewValue is the value after the write. NewExists is false
	// if the write deleted the key, in which case NewValue is nil.
	NewValue  interface{}
	NewExists bool
}

// Subscription is a handle for one registration on a backend's
// change feed.
type Subscription interface {
	// Cancel detaches the handler from the feed. After Cancel
	// returns no further events are delivered through this
	// subscription. Cancel is idempotent.
	Cancel()
}
