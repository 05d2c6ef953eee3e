package codec

import (
	"fmt"
	"strings"
)

// versionShardDigits is the number of leading decimal digits kept verbatim
// in a version shard; the rest are zero-padded.
const versionShardDigits = 5

const versionShardMethod = "5digits-zero"

// VersionShard computes the top-level storage shard for a decimal version
// string: its first 5 digits, right-padded with '0' to the original width.
// Results are LRU-cached since the same handful of versions recur across
// every filename operation touching one chunk.
func (c *Cache) VersionShard(version string) (string, error) {
	if v, ok := c.versionShard.Get(version); ok {
		return v, nil
	}
	shard, err := computeVersionShard(version)
	if err != nil {
		return "", err
	}
	c.versionShard.Add(version, shard)
	return shard, nil
}

func computeVersionShard(version string) (string, error) {
	if !isDecimal(version) {
		return "", fmt.Errorf("codec: version must be a decimal string, got %q", version)
	}
	n := versionShardDigits
	if n > len(version) {
		n = len(version)
	}
	prefix := version[:n]
	shard := prefix + strings.Repeat("0", len(version)-n)
	return shard, nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
