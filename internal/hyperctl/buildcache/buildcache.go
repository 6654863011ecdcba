// Package buildcache is hyperctl's on-disk string key/value cache, backed by
// github.com/syndtr/goleveldb, the way pk-put's have-cache keeps blob
// existence checks in a local LevelDB file. Only hyperctl's cache
// subcommands open it; validate and inspect neither read nor write it.
package buildcache

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
)

// Cache is a single mutable LevelDB file on disk. Close must be called to
// release its lock file.
type Cache struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the LevelDB database rooted at dir.
func Open(dir string) (*Cache, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("buildcache: opening %s: %w", dir, err)
	}
	return &Cache{db: db}, nil
}

func (c *Cache) Close() error { return c.db.Close() }

// Get returns the cached value for key, and ok=false on a clean miss.
func (c *Cache) Get(key string) (string, bool, error) {
	val, err := c.db.Get([]byte(key), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return "", false, nil
		}
		return "", false, fmt.Errorf("buildcache: get %q: %w", key, err)
	}
	return string(val), true, nil
}

// Put stores value under key, overwriting any previous entry.
func (c *Cache) Put(key, value string) error {
	if err := c.db.Put([]byte(key), []byte(value), nil); err != nil {
		return fmt.Errorf("buildcache: put %q: %w", key, err)
	}
	return nil
}

// Delete removes key, if present.
func (c *Cache) Delete(key string) error {
	if err := c.db.Delete([]byte(key), nil); err != nil {
		return fmt.Errorf("buildcache: delete %q: %w", key, err)
	}
	return nil
}

// Count returns the number of keys currently stored, for `hyperctl cache
// stats`.
func (c *Cache) Count() (int, error) {
	iter := c.db.NewIterator(nil, nil)
	defer iter.Release()

	n := 0
	for iter.Next() {
		n++
	}
	return n, iter.Error()
}
