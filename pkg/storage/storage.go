// Package storage implements the three backends chunks are written to and
// read from: an in-memory map for tests, an atomically-publishing local
// filesystem tree for production single-writer use, and a Badger-backed
// store for workloads that want a single embedded file instead of a
// directory tree of small JSON chunks.
//
// © 2025 arena-cache authors. MIT License.
package storage

import (
	"io"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/internal/filenames"
)

// Storage is the append-only chunk store contract. WriteChunk must reject a
// filename that already exists; ReadChunk must fail for one that doesn't.
// Both the write and read callbacks are handed a stream rather than a []byte
// so that large chunks never need to be held twice in memory.
type Storage interface {
	ListChunks() ([]string, error)
	WriteChunk(filename string, write func(io.Writer) error) error
	ReadChunk(filename string, read func(io.Reader) error) error
}

// ChunkFilter narrows ListFilteredChunks to chunks whose decoded filename
// fields are in the given sets. A nil field means "no constraint"; a
// non-nil, empty slice matches nothing.
type ChunkFilter struct {
	VersionShard []string
	KeyHash      []string
}

// ListFilteredChunks lists every chunk in s, then decodes and keeps only
// those matching filter. It is the Go analogue of the Python base class's
// list_filtered_chunks, expressed as a function since Storage implementations
// have no dependency on internal/codec themselves.
func ListFilteredChunks(s Storage, c *codec.Cache, filter ChunkFilter) ([]string, error) {
	chunks, err := s.ListChunks()
	if err != nil {
		return nil, err
	}
	if filter.VersionShard == nil && filter.KeyHash == nil {
		return chunks, nil
	}
	out := make([]string, 0, len(chunks))
	for _, item := range chunks {
		info, err := filenames.DecodeFilename(c, item)
		if err != nil {
			return nil, err
		}
		if !matchesFilter(info.VersionShard, filter.VersionShard) {
			continue
		}
		if !matchesFilter(info.KeyHash, filter.KeyHash) {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func matchesFilter(value string, allowed []string) bool {
	if allowed == nil {
		return true
	}
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}
