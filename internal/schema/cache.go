package schema

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/marlindb/marlin/internal/util/lazyerrors"
)

// Cache is an LRU cache of collection introspection info.
//
// Cached values are shared; callers must treat them as immutable.
// The cache must be invalidated on schema-mutating administrative commands.
type Cache struct {
	c *lru.Cache[string, *CollectionInfo]
}

// NewCache creates a cache holding up to size collections.
func NewCache(size int) (*Cache, error) {
	c, err := lru.New[string, *CollectionInfo](size)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}

	return &Cache{c: c}, nil
}

// Get returns the cached info for a collection.
func (c *Cache) Get(name string) (*CollectionInfo, bool) {
	return c.c.Get(name)
}

// Put stores info for a collection.
func (c *Cache) Put(name string, info *CollectionInfo) {
	c.c.Add(name, info)
}

// Invalidate drops the cached info for one collection.
func (c *Cache) Invalidate(name string) {
	c.c.Remove(name)
}

// Reset drops all cached info.
func (c *Cache) Reset() {
	c.c.Purge()
}
