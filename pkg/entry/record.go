// Package entry implements the per-key append-only version chain: the
// DataIncarnation/Entry pair from the original datawatch storage engine.
// An Entry holds one key's incarnations in memory and knows how to encode
// them as a dump chunk (write_dump) or rebuild itself from one or more dump
// chunks (load_dumps), following depends_on_version back through prior
// chunks exactly as the filename codec describes it.
//
// © 2025 arena-cache authors. MIT License.
package entry

import (
	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/internal/filenames"
)

const (
	formatMagic     = "datadiff"
	formatVersion   = "0.0.1"
	softwareVersion = "datawatch-go/0.1.0"
)

// VersionsHeader records the version range an Entry's in-memory chain
// covers and, if it was built from a checkpoint, which external version it
// depends on.
type VersionsHeader struct {
	FirstContainedVersion        string `json:"first_contained_version"`
	LastContainedVersion         string `json:"last_contained_version"`
	FirstKnownVersion            string `json:"first_known_version"`
	LastContainedVersionWithDiff string `json:"last_contained_version_with_diff,omitempty"`
	DependsOnExternalVersion     string `json:"depends_on_external_version,omitempty"`
}

// Header is the JSON header written at the top of every dump chunk.
type Header struct {
	Magic           string                `json:"magic"`
	FormatVersion   string                `json:"format_version"`
	SoftwareVersion string                `json:"software_version"`
	Name            string                `json:"name"`
	NameInfo        filenames.EncodedInfo `json:"nameinfo"`
	Key             string                `json:"key"`
	Methods         map[string]string     `json:"methods"`
	VersionInfo     VersionsHeader        `json:"versioninfo"`
}

// IncarnationHeader is the per-record metadata block: which version this
// incarnation holds data for, and enough about its content to validate a
// reconstruction against it.
type IncarnationHeader struct {
	Version       string            `json:"version"`
	ContentHash   codec.ContentHash `json:"content_hash"`
	ContentLength int               `json:"content_length"`
}

// FullCompressedContent is the content shape used when deflate compression
// saves more than a small fixed margin over storing the content_length
// bytes raw.
type FullCompressedContent struct {
	Method string `json:"method"`
	Data   string `json:"data"`
}

// DiffContent is the content shape used when a binary diff against the
// baseline incarnation is smaller than storing the new content in full.
type DiffContent struct {
	Method string `json:"method"`
	Data   string `json:"data"`
}

// ContentRecord is the tagged union of the four ways one incarnation's
// content can be encoded: full, full_compressed, diff (against
// BaselineVersion), or unchanged (also against BaselineVersion). Exactly one
// of Full, FullCompressed, Diff, Unchanged is set.
type ContentRecord struct {
	BaselineVersion string                 `json:"baseline_version,omitempty"`
	Full            *string                `json:"full,omitempty"`
	FullCompressed  *FullCompressedContent `json:"full_compressed,omitempty"`
	Diff            *DiffContent           `json:"diff,omitempty"`
	Unchanged       bool                   `json:"unchanged,omitempty"`
}

// Record pairs one incarnation's metadata with its encoded content; this is
// the unit written to and read from the JSON "content" array of a dump
// chunk.
type Record struct {
	Metadata IncarnationHeader `json:"metadata"`
	Content  ContentRecord     `json:"content"`
}

// dumpFile is the top-level shape of a dump chunk: {"datawatch": {"header":
// ..., "content": [...]}}.
type dumpFile struct {
	Datawatch struct {
		Header  Header   `json:"header"`
		Content []Record `json:"content"`
	} `json:"datawatch"`
}

func makeHeader(nameInfo filenames.EncodedInfo, versionInfo VersionsHeader, key string) Header {
	name, err := filenames.EncodeFilenameFromEncodedInfo(nameInfo)
	if err != nil {
		// nameInfo was itself produced by ComputeNameInfo, so re-rendering it
		// can only fail if the caller mutated it into an inconsistent state.
		panic(err)
	}
	return Header{
		Magic:           formatMagic,
		FormatVersion:   formatVersion,
		SoftwareVersion: softwareVersion,
		Name:            name,
		NameInfo:        nameInfo,
		Key:             key,
		Methods:         codec.ActiveMethods,
		VersionInfo:     versionInfo,
	}
}
