// Package storage defines the contract for asynchronous key-value
// backends that serve settings facades.
//
// A backend contains a fixed set of named areas. Each area is an
// independent flat key-value map supporting bulk reads and bulk
// writes. One shared change feed spans the whole backend: every write
// to any area, from any writer, produces an event carrying the area
// name and the per-key changes.
//
//  - Backend
//    - Area "local"
//      - key1: abc
//      - key2: def
//    - Area "managed"
//    - Area "sync"
//      - keyN: xyz
//    - change feed (all areas)
//
// Areas were kept at this layer rather than modeled as separate
// backends because the change feed is shared: a single subscriber
// observes writes to every area and filters by area name. This
// mirrors how multiple consumers over different areas share one
// event source without coordinating with each other.
//
// The Hub type in this package implements the subscriber bookkeeping
// and ordered asynchronous delivery that the feed requires, so that
// drivers only have to compute per-write change sets.
package storage
