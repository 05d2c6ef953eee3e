// Package codec implements the fixed method registry of the storage format:
// content hashing, binary diff/patch, deflate compression, the key-prefix
// filename codec, and version sharding. All of it is pure, and the four
// operations that are repeatedly hit with the same input on every path
// operation (key hash, version shard, key-prefix encode/decode) are
// LRU-cached; content hashing and diffing operate over effectively unbounded
// byte blobs and are not globally cached here — Entry memoizes the one
// reuse that matters (the chosen record encoding against a given baseline,
// see pkg/entry).
//
// Per Design Notes §9 ("Codecs handle"), the caches are not package globals:
// callers construct a *Cache and thread it through Collection/Entry
// construction, so that two Collections in the same process (as legitimately
// happens on the summarize path) don't contend on one lock.
//
// © 2025 arena-cache authors. MIT License.
package codec

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheSize bounds every LRU at 1024 entries, per spec: "All codec caches
// ... are process-wide LRUs bounded at 1024 entries."
const cacheSize = 1024

// ActiveMethods is the fixed method registry reported in every chunk header
// so that readers can reject unknown encodings written by a future version.
var ActiveMethods = map[string]string{
	"hash":             hashMethod,
	"diff":             diffMethod,
	"key_encoding":     keyEncodingMethod,
	"version_sharding": versionShardMethod,
}

// Cache bundles the four bounded LRUs used by the codec layer. The zero
// value is not usable; construct with New.
type Cache struct {
	keyHash      *lru.Cache[string, string]
	versionShard *lru.Cache[string, string]
	prefixEncode *lru.Cache[string, prefixResult]
	prefixDecode *lru.Cache[string, string]
}

type prefixResult struct {
	encoded string
	n       int
}

// New constructs a Cache with all four LRUs sized per cacheSize.
func New() *Cache {
	kh, err := lru.New[string, string](cacheSize)
	if err != nil {
		panic(err) // only returns an error for size <= 0, which cacheSize never is
	}
	vs, err := lru.New[string, string](cacheSize)
	if err != nil {
		panic(err)
	}
	pe, err := lru.New[string, prefixResult](cacheSize)
	if err != nil {
		panic(err)
	}
	pd, err := lru.New[string, string](cacheSize)
	if err != nil {
		panic(err)
	}
	return &Cache{keyHash: kh, versionShard: vs, prefixEncode: pe, prefixDecode: pd}
}
