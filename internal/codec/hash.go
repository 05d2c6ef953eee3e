package codec

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/Voskan/datawatch/internal/unsafehelpers"
)

const hashMethod = "sha256-hex"

// ContentHash is the wire shape of a hash value: {"method":..., "digest":...}.
type ContentHash struct {
	Method string `json:"method"`
	Digest string `json:"digest"`
}

// HashBytes computes the SHA-256 digest of data as lowercase hex. It is not
// cached: content blobs are effectively unbounded and unique per call, so
// memoizing here would never hit.
func HashBytes(data []byte) ContentHash {
	sum := sha256.Sum256(data)
	return ContentHash{Method: hashMethod, Digest: hex.EncodeToString(sum[:])}
}

// KeyHash computes the SHA-256 digest of key's UTF-8 bytes, the keyhash used
// throughout the filesystem layout and Collection's in-memory index. Results
// are LRU-cached: the same key is hashed on every update_data/lookup call for
// the lifetime of a Collection.
func (c *Cache) KeyHash(key string) string {
	if v, ok := c.keyHash.Get(key); ok {
		return v
	}
	sum := sha256.Sum256(unsafehelpers.StringToBytes(key))
	digest := hex.EncodeToString(sum[:])
	c.keyHash.Add(key, digest)
	return digest
}
