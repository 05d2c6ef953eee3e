package collection

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/entry"
	"github.com/Voskan/datawatch/pkg/errs"
	"github.com/Voskan/datawatch/pkg/storage"
)

// Collection indexes a Storage backend by keyhash, lazily loading each key's
// Entry on first access and caching it for the lifetime of the Collection.
// Concurrent lookups of the same keyhash are deduplicated with a
// singleflight.Group so that two goroutines racing to read the same
// not-yet-cached key only pay the storage read once.
type Collection struct {
	cfg   *config
	store storage.Storage
	cache *codec.Cache

	mu          sync.Mutex
	entries     map[string]*entry.Entry
	keys        map[string]struct{}
	keyHashes   map[string]struct{}
	lastFlushed map[string]int64 // unix nanos, per keyhash

	group singleflight.Group
}

// New constructs a Collection over store, using cache for all key-hash and
// filename codec operations.
func New(store storage.Storage, cache *codec.Cache, opts ...Option) (*Collection, error) {
	cfg := defaultConfig()
	if err := applyOptions(cfg, opts); err != nil {
		return nil, err
	}
	return &Collection{
		cfg:         cfg,
		store:       store,
		cache:       cache,
		entries:     make(map[string]*entry.Entry),
		keys:        make(map[string]struct{}),
		keyHashes:   make(map[string]struct{}),
		lastFlushed: make(map[string]int64),
	}, nil
}

func (c *Collection) recordEntry(e *entry.Entry) error {
	info, err := e.Info()
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries[info.KeyHash] = e
	c.keys[e.Key()] = struct{}{}
	c.keyHashes[info.KeyHash] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *Collection) cachedEntry(keyHash string) (*entry.Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[keyHash]
	return e, ok
}

// tryGetEntryByKeyHash returns the Entry for keyHash, loading it from
// storage on first access. A nil, nil result means no chunk for this
// keyhash exists in storage.
func (c *Collection) tryGetEntryByKeyHash(keyHash string) (*entry.Entry, error) {
	if e, ok := c.cachedEntry(keyHash); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(keyHash, func() (interface{}, error) {
		if e, ok := c.cachedEntry(keyHash); ok {
			return e, nil
		}
		names, err := storage.ListFilteredChunks(c.store, c.cache, storage.ChunkFilter{KeyHash: []string{keyHash}})
		if err != nil {
			return nil, err
		}
		if len(names) == 0 {
			return (*entry.Entry)(nil), nil
		}
		var e *entry.Entry
		if c.cfg.fullHistory {
			e, err = entry.LoadDumps(c.cache, c.store, names, entry.FullHistory)
		} else {
			e, err = entry.LoadDumps(c.cache, c.store, names, entry.OnlyFromLastCheckpoint)
		}
		if err != nil {
			return nil, err
		}
		for range names {
			c.cfg.metrics.IncChunksRead()
		}
		if !c.cfg.fullHistory {
			// A freshly loaded checkpoint trail is immediately collapsed to
			// its current incarnation: the just-loaded chunks have already
			// paid for reconstructing history, so there is no reason to
			// keep carrying the dependency forward.
			e.Flush(0)
		}
		if err := c.recordEntry(e); err != nil {
			return nil, err
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	e, _ := v.(*entry.Entry)
	return e, nil
}

func (c *Collection) tryGetEntryByKey(key string) (*entry.Entry, error) {
	keyHash := c.cache.KeyHash(key)
	e, err := c.tryGetEntryByKeyHash(keyHash)
	if err != nil || e == nil {
		return e, err
	}
	if e.Key() != key {
		return nil, &errs.CollisionError{KeyHash: keyHash, Existing: e.Key(), New: key}
	}
	return e, nil
}

// UpdateData appends data at version to key's Entry, creating it if this is
// the first time key has been seen.
func (c *Collection) UpdateData(key string, data []byte, version string) (*entry.Entry, error) {
	keyHash := c.cache.KeyHash(key)
	e, err := c.tryGetEntryByKeyHash(keyHash)
	if err != nil {
		return nil, err
	}
	if e == nil {
		e = entry.CreateInitial(c.cache, key, data, version)
		if err := c.recordEntry(e); err != nil {
			return nil, err
		}
	} else if err := e.UpdateData(data, version); err != nil {
		return nil, err
	}
	if e.Key() != key {
		return nil, &errs.CollisionError{KeyHash: keyHash, Existing: e.Key(), New: key}
	}
	return e, nil
}

// EntryByKey returns the Entry for key, or an error if key has never been
// seen in memory or in storage.
func (c *Collection) EntryByKey(key string) (*entry.Entry, error) {
	e, err := c.tryGetEntryByKey(key)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("collection: key not found: %s", key)
	}
	return e, nil
}

// Get returns the Entry for keyHash, loading it from storage on first
// access.
func (c *Collection) Get(keyHash string) (*entry.Entry, error) {
	e, err := c.tryGetEntryByKeyHash(keyHash)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("collection: keyhash not found: %s", keyHash)
	}
	return e, nil
}

// KeyHashes lists every keyhash this Collection currently knows about (has
// loaded or been updated with), in no particular order.
func (c *Collection) KeyHashes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.keyHashes))
	for kh := range c.keyHashes {
		out = append(out, kh)
	}
	return out
}
