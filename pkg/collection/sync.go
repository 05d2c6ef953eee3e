package collection

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/Voskan/datawatch/internal/filenames"
	"github.com/Voskan/datawatch/pkg/entry"
	"github.com/Voskan/datawatch/pkg/storage"
)

func (c *Collection) lastStoredVersion(keyHash string) (string, bool, error) {
	names, err := storage.ListFilteredChunks(c.store, c.cache, storage.ChunkFilter{KeyHash: []string{keyHash}})
	if err != nil {
		return "", false, err
	}
	if len(names) == 0 {
		return "", false, nil
	}
	var best string
	var bestVer int64
	for i, name := range names {
		fni, err := filenames.DecodeFilename(c.cache, name)
		if err != nil {
			return "", false, err
		}
		v, err := parseVersion(fni.LastVersion)
		if err != nil {
			return "", false, err
		}
		if i == 0 || v > bestVer {
			best = fni.LastVersion
			bestVer = v
		}
	}
	return best, true, nil
}

func parseVersion(v string) (int64, error) {
	var n int64
	_, err := fmt.Sscanf(v, "%d", &n)
	if err != nil {
		return 0, fmt.Errorf("collection: invalid version %q: %w", v, err)
	}
	return n, nil
}

// writeToStorageAndFlush writes e's in-memory incarnations to store as a new
// chunk and then flushes e, so that its next chunk depends on the one just
// written. It is a no-op (reporting written=false) when store already has a
// chunk at or past e's current version.
func writeToStorageAndFlush(c *Collection, e *entry.Entry, store storage.Storage) (bool, error) {
	lastStored, ok, err := (&Collection{store: store, cache: c.cache}).lastStoredVersion(e.KeyHash())
	if err != nil {
		return false, err
	}
	if ok {
		stored, err := parseVersion(lastStored)
		if err != nil {
			return false, err
		}
		cur, err := parseVersion(e.CurrentVersion())
		if err != nil {
			return false, err
		}
		if stored >= cur {
			return false, nil
		}
	}
	if err := e.WriteDump(store); err != nil {
		return false, err
	}
	c.cfg.metrics.IncChunksWritten()
	e.Flush(c.cfg.chainLengthLimit)
	c.cfg.metrics.IncFlushes()
	return true, nil
}

// syncToOther writes every Entry this Collection currently knows about into
// other's storage, skipping keyhashes already at or past their stored
// version there.
func (c *Collection) syncToOther(other *Collection) (int, error) {
	wrote := 0
	for _, kh := range c.KeyHashes() {
		e, err := c.Get(kh)
		if err != nil {
			return wrote, err
		}
		ok, err := writeToStorageAndFlush(other, e, other.store)
		if err != nil {
			return wrote, err
		}
		if ok {
			wrote++
		}
	}
	return wrote, nil
}

// LoadKeyHashFromStorage forces keyHash to be (re)loaded from storage,
// discarding any in-memory state for it.
func (c *Collection) LoadKeyHashFromStorage(keyHash string) error {
	c.mu.Lock()
	delete(c.entries, keyHash)
	delete(c.keyHashes, keyHash)
	c.mu.Unlock()
	_, err := c.tryGetEntryByKeyHash(keyHash)
	return err
}

// GetKeyHashNamesFromStorage lists every distinct keyhash present in store,
// independent of what this Collection has loaded into memory so far.
func (c *Collection) GetKeyHashNamesFromStorage() ([]string, error) {
	names, err := c.store.ListChunks()
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	for _, name := range names {
		fni, err := filenames.DecodeFilename(c.cache, name)
		if err != nil {
			return nil, err
		}
		seen[fni.KeyHash] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for kh := range seen {
		out = append(out, kh)
	}
	return out, nil
}

// LoadAllFromStorage loads every keyhash found in store into memory.
func (c *Collection) LoadAllFromStorage() error {
	keyHashes, err := c.GetKeyHashNamesFromStorage()
	if err != nil {
		return err
	}
	for _, kh := range keyHashes {
		if _, err := c.tryGetEntryByKeyHash(kh); err != nil {
			return err
		}
	}
	return nil
}

// summarizeToSpecific reconstructs the full history of each of keyHashes from
// this Collection's storage and writes the resulting summarized chunks into
// other.
func (c *Collection) summarizeToSpecific(other *Collection, keyHashes []string) error {
	full, err := New(c.store, c.cache, WithFullHistory())
	if err != nil {
		return err
	}
	for _, kh := range keyHashes {
		if _, err := full.tryGetEntryByKeyHash(kh); err != nil {
			return err
		}
	}
	_, err = full.syncToOther(other)
	return err
}

// SummarizeTo summarizes every keyhash this Collection knows about into
// other.
func (c *Collection) SummarizeTo(other *Collection) error {
	return c.summarizeToSpecific(other, c.KeyHashes())
}

// SummarizeOneTo summarizes a single, randomly chosen keyhash into other,
// reporting ok=false if this Collection has nothing loaded yet.
func (c *Collection) SummarizeOneTo(other *Collection) (bool, error) {
	keyHashes := c.KeyHashes()
	if len(keyHashes) == 0 {
		return false, nil
	}
	kh := keyHashes[rand.Intn(len(keyHashes))]
	if err := c.summarizeToSpecific(other, []string{kh}); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Collection) syncAndFlushSingle(keyHash string) (bool, error) {
	e, err := c.Get(keyHash)
	if err != nil {
		return false, err
	}
	ok, err := writeToStorageAndFlush(c, e, c.store)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	c.lastFlushed[keyHash] = time.Now().UnixNano()
	c.mu.Unlock()
	return ok, nil
}

// SyncAndFlush writes and flushes every in-memory Entry this Collection
// currently knows about, per spec §4.4 ("for each entry in memory,
// write-if-newer then flush"). It reports how many Entries actually
// produced a write.
func (c *Collection) SyncAndFlush() (int, error) {
	wrote := 0
	for _, kh := range c.KeyHashes() {
		ok, err := c.syncAndFlushSingle(kh)
		if err != nil {
			return wrote, err
		}
		if ok {
			wrote++
		}
	}
	return wrote, nil
}

// SyncAndFlushOne writes and flushes a single in-memory Entry to this
// Collection's own storage, preferring one that has never been flushed
// before and otherwise the one flushed longest ago. It keeps trying
// candidates, oldest first, until one actually produces a write or the
// candidate set is exhausted.
func (c *Collection) SyncAndFlushOne() (bool, error) {
	c.mu.Lock()
	candidates := make([]string, 0, len(c.keyHashes))
	for kh := range c.keyHashes {
		candidates = append(candidates, kh)
	}
	lastFlushed := make(map[string]int64, len(c.lastFlushed))
	for kh, t := range c.lastFlushed {
		lastFlushed[kh] = t
	}
	c.mu.Unlock()

	sortCandidatesByFlushRecency(candidates, lastFlushed)

	for _, kh := range candidates {
		ok, err := c.syncAndFlushSingle(kh)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func sortCandidatesByFlushRecency(candidates []string, lastFlushed map[string]int64) {
	less := func(i, j int) bool {
		ti, iok := lastFlushed[candidates[i]]
		tj, jok := lastFlushed[candidates[j]]
		if !iok && jok {
			return true
		}
		if iok && !jok {
			return false
		}
		if !iok && !jok {
			return candidates[i] < candidates[j]
		}
		return ti < tj
	}
	insertionSortStrings(candidates, less)
}

func insertionSortStrings(s []string, less func(i, j int) bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
