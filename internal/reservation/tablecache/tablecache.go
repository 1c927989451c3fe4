// Package tablecache implements the Table Status Cache (C2): a
// concurrent, non-authoritative hint map from table-id to its
// last-known status, written by the Table Assigner when it assigns or
// releases a table and consulted by it to skip obviously unavailable
// tables in the REST fallback. No inbound TableStatusChanged consumer
// writes to it in this process.
//
// Grounded on the teacher's patrickmn/go-cache read-through wrapper
// (internal/cache/memory/book.go), adapted from read-through (fetch on
// miss) to write-through (populated only by Put) since C2 has no
// backing repository of its own — spec §4.2 says a miss returns null,
// not a lazily-fetched value.
package tablecache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Status is the table's last-known operational state.
type Status string

const (
	StatusAvailable    Status = "AVAILABLE"
	StatusReserved     Status = "RESERVED"
	StatusOccupied     Status = "OCCUPIED"
	StatusOutOfService Status = "OUT_OF_SERVICE"
)

// Cache is a table_id -> Status hint map. Never treated as
// authoritative for decisions that must be serialized at the
// restaurant service.
type Cache struct {
	c *cache.Cache
}

// New builds a Cache with no expiration: entries live until
// overwritten by the next Put, matching spec §4.2's
// "put overwrites" semantics (there is no TTL in the contract).
func New() *Cache {
	return &Cache{c: cache.New(cache.NoExpiration, 10*time.Minute)}
}

// Get returns the known status for tableID, or ("", false) if unknown.
func (c *Cache) Get(tableID string) (Status, bool) {
	v, ok := c.c.Get(tableID)
	if !ok {
		return "", false
	}
	return v.(Status), true
}

// Put overwrites the cached status for tableID.
func (c *Cache) Put(tableID string, status Status) {
	c.c.Set(tableID, status, cache.NoExpiration)
}
