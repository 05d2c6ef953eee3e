package collection

import (
	"iter"
	"sort"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/entry"
	"github.com/Voskan/datawatch/pkg/storage"
)

// StreamItem pairs an Entry with one of its Incarnations, in the order
// ReadStreaming visits them: oldest to newest within a key, keys in sorted
// keyhash order.
type StreamItem struct {
	Entry       *entry.Entry
	Incarnation *entry.Incarnation
}

// ReadStreaming walks every incarnation of every key in store, restricted to
// keyFilter when non-nil, skipping a byte-identical run of consecutive
// incarnations unless includeUnchanged is set. Grounded on
// original_source's read_streaming: each key's full history is loaded in
// one shot (there is no random access inside a chunk, per spec §1
// Non-goals), then walked in version order. Iteration stops early, and no
// further storage reads happen, as soon as the consuming range statement
// stops pulling (yield returns false).
//
// Errors surface as the iterator's second value; a non-nil error on one
// item does not imply later items are also in error, so callers that want
// fail-fast behavior should break out of the range on the first error.
func ReadStreaming(store storage.Storage, cache *codec.Cache, keyFilter []string, includeUnchanged bool) iter.Seq2[StreamItem, error] {
	return func(yield func(StreamItem, error) bool) {
		full, err := New(store, cache, WithFullHistory())
		if err != nil {
			yield(StreamItem{}, err)
			return
		}
		keyHashes, err := full.GetKeyHashNamesFromStorage()
		if err != nil {
			yield(StreamItem{}, err)
			return
		}
		sort.Strings(keyHashes)

		var onlyKeys, onlyKeyHashes map[string]struct{}
		if keyFilter != nil {
			onlyKeys = make(map[string]struct{}, len(keyFilter))
			onlyKeyHashes = make(map[string]struct{}, len(keyFilter))
			for _, k := range keyFilter {
				onlyKeys[k] = struct{}{}
				onlyKeyHashes[cache.KeyHash(k)] = struct{}{}
			}
		}

		for _, kh := range keyHashes {
			if onlyKeyHashes != nil {
				if _, ok := onlyKeyHashes[kh]; !ok {
					continue
				}
			}
			e, err := full.Get(kh)
			if err != nil {
				if !yield(StreamItem{}, err) {
					return
				}
				continue
			}
			if onlyKeys != nil {
				if _, ok := onlyKeys[e.Key()]; !ok {
					continue
				}
			}
			var last *entry.Incarnation
			for _, inc := range e.Incarnations() {
				skip := last != nil && inc.SameDataAs(last) && !includeUnchanged
				last = inc
				if skip {
					continue
				}
				if !yield(StreamItem{Entry: e, Incarnation: inc}, nil) {
					return
				}
			}
		}
	}
}
