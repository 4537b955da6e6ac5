package tiledbcore

import (
	"log"
	"os"
	"sync"

	"github.com/dstorehq/tiledbcore/internal/cache"
	"github.com/dstorehq/tiledbcore/internal/vfs"
)

// Context carries every piece of process-wide mutable state a call
// used to reach through a singleton for (spec §9: "Global mutable state
// ... becomes a Context struct passed explicitly into every public
// call"). Built once per process (or per test), then threaded through
// Array/Query/Consolidator.
type Context struct {
	FS     vfs.FS
	Config *Config
	Logger *log.Logger

	TileCache             *cache.LRU
	FragmentMetadataCache *cache.LRU
	ArrayMetadataCache    *cache.LRU

	Pool *Pool

	locksMu sync.Mutex
	locks   map[string]*LockedArray
}

// NewContext builds a Context over fs with cfg's cache-size settings,
// logging to stderr the way the teacher's package-level calls to
// log.Printf implicitly do (spec §7: logging is side-channel, never
// control flow).
func NewContext(fs vfs.FS, cfg *Config) (*Context, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	tileCacheSize, err := cfg.GetInt("sm.tile_cache_size")
	if err != nil {
		return nil, err
	}
	fragCacheSize, err := cfg.GetInt("sm.fragment_metadata_cache_size")
	if err != nil {
		return nil, err
	}
	arrCacheSize, err := cfg.GetInt("sm.array_metadata_cache_size")
	if err != nil {
		return nil, err
	}

	return &Context{
		FS:                    fs,
		Config:                cfg,
		Logger:                log.New(os.Stderr, "tiledbcore: ", log.LstdFlags),
		TileCache:             cache.New(uint64(tileCacheSize), nil),
		FragmentMetadataCache: cache.New(uint64(fragCacheSize), nil),
		ArrayMetadataCache:    cache.New(uint64(arrCacheSize), nil),
		Pool:                  NewPool(0),
		locks:                 make(map[string]*LockedArray),
	}, nil
}

// lockedArray returns (lazily creating) the LockedArray bookkeeping
// entry for uri. Entries are refcounted via LockedArray.NoLocks and
// reaped opportunistically; a live entry is always safe to reuse
// (spec §5: "allocated lazily and refcounted").
func (c *Context) lockedArray(uri string) *LockedArray {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	la, ok := c.locks[uri]
	if !ok {
		la = NewLockedArray()
		c.locks[uri] = la
	}
	return la
}

// releaseLockedArrayIfIdle drops uri's bookkeeping entry once nothing
// holds it, so long-lived processes don't accumulate one entry per
// array ever opened.
func (c *Context) releaseLockedArrayIfIdle(uri string) {
	c.locksMu.Lock()
	defer c.locksMu.Unlock()
	if la, ok := c.locks[uri]; ok && la.NoLocks() {
		delete(c.locks, uri)
	}
}
