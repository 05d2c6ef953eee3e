package entry

import (
	"encoding/base64"
	"fmt"
	"unicode/utf8"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/errs"
)

// minCompressionSavings is the margin a deflate-compressed encoding must
// beat a raw encoding by before full_compressed is chosen over full; below
// this it isn't worth spending a decompression on every read.
const minCompressionSavings = 50

// Incarnation is one version's worth of data for a key, together with the
// metadata (content hash, length) needed to validate it was reconstructed
// correctly after a diff/patch or compress/decompress round trip.
type Incarnation struct {
	version           string
	data              []byte
	contentHashDigest string
	metadata          IncarnationHeader

	textMemo    string
	textMemoSet bool
	textMemoOK  bool

	recordMemoKey memoKey
	recordMemo    *ContentRecord
}

type memoKey struct {
	version string
	digest  string
}

// New builds an Incarnation from raw data observed at version.
func New(data []byte, version string) *Incarnation {
	hash := codec.HashBytes(data)
	return &Incarnation{
		version:           version,
		data:              data,
		contentHashDigest: hash.Digest,
		metadata: IncarnationHeader{
			Version:       version,
			ContentHash:   hash,
			ContentLength: len(data),
		},
	}
}

// Data returns the incarnation's raw bytes.
func (i *Incarnation) Data() []byte { return i.data }

// DataVersion is the version this incarnation's data was observed at.
func (i *Incarnation) DataVersion() string { return i.version }

// ContentHashDigest is the hex SHA-256 digest of Data().
func (i *Incarnation) ContentHashDigest() string { return i.contentHashDigest }

// SameDataAs reports whether i and other hold byte-identical content.
func (i *Incarnation) SameDataAs(other *Incarnation) bool {
	if i.contentHashDigest != other.contentHashDigest {
		return false
	}
	return string(i.data) == string(other.data)
}

// DataAsText returns the content decoded as UTF-8 text, and whether that
// decoding succeeded. The result is memoized: repeated calls don't re-run
// utf8.Valid over large payloads.
func (i *Incarnation) DataAsText() (string, bool) {
	if i.textMemoSet {
		return i.textMemo, i.textMemoOK
	}
	if utf8.Valid(i.data) {
		i.textMemo = string(i.data)
		i.textMemoOK = true
	} else {
		i.textMemoOK = false
	}
	i.textMemoSet = true
	return i.textMemo, i.textMemoOK
}

func packBytes(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func packBytesPtr(data []byte) *string {
	s := packBytes(data)
	return &s
}

func unpackBytes(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func (i *Incarnation) fullContentRecord() (ContentRecord, error) {
	compressed, err := codec.Compress(i.data)
	if err != nil {
		return ContentRecord{}, err
	}
	if len(compressed) < len(i.data)-minCompressionSavings {
		return ContentRecord{
			FullCompressed: &FullCompressedContent{
				Method: codec.CompressMethod,
				Data:   packBytes(compressed),
			},
		}, nil
	}
	return ContentRecord{Full: packBytesPtr(i.data)}, nil
}

func (i *Incarnation) contentRecordSameAs(equalPrevious *Incarnation) ContentRecord {
	return ContentRecord{
		BaselineVersion: equalPrevious.version,
		Unchanged:       true,
	}
}

func (i *Incarnation) deltaContentRecord(last *Incarnation) (ContentRecord, error) {
	if string(last.data) == string(i.data) {
		return i.contentRecordSameAs(last), nil
	}
	diff, err := codec.Diff(last.data, i.data)
	if err != nil {
		return ContentRecord{}, err
	}
	full, err := i.fullContentRecord()
	if err != nil {
		return ContentRecord{}, err
	}
	var fullData []byte
	if full.Full != nil {
		fullData, err = unpackBytes(*full.Full)
	} else {
		fullData, err = unpackBytes(full.FullCompressed.Data)
	}
	if err != nil {
		return ContentRecord{}, err
	}
	if len(diff) > len(fullData) {
		return full, nil
	}
	return ContentRecord{
		BaselineVersion: last.version,
		Diff: &DiffContent{
			Method: codec.ActiveMethods["diff"],
			Data:   packBytes(diff),
		},
	}, nil
}

func (i *Incarnation) contentRecord(last *Incarnation, previousByContent map[string]*Incarnation) (ContentRecord, error) {
	if last == nil {
		return i.fullContentRecord()
	}
	if equalOld, ok := previousByContent[i.contentHashDigest]; ok {
		if string(i.data) == string(equalOld.data) {
			return i.contentRecordSameAs(equalOld), nil
		}
	}
	key := memoKey{version: last.version, digest: last.contentHashDigest}
	if i.recordMemo != nil && i.recordMemoKey == key {
		return *i.recordMemo, nil
	}
	rv, err := i.deltaContentRecord(last)
	if err != nil {
		return ContentRecord{}, err
	}
	i.recordMemoKey = key
	i.recordMemo = &rv
	return rv, nil
}

// AsRecord renders this incarnation as a Record, choosing the cheapest
// content encoding available given baseline (the previous incarnation in
// sequence, or nil for the first) and previousByContent (a content-hash
// index of every incarnation written so far, for "unchanged" detection
// against a version that isn't the immediate predecessor).
func (i *Incarnation) AsRecord(baseline *Incarnation, previousByContent map[string]*Incarnation) (Record, error) {
	content, err := i.contentRecord(baseline, previousByContent)
	if err != nil {
		return Record{}, err
	}
	return Record{Metadata: i.metadata, Content: content}, nil
}

// BuildFromRecord reverses AsRecord: given a Record and the baseline
// incarnation its content may reference, reconstructs the Incarnation and
// validates it against the record's recorded length and hash.
func BuildFromRecord(record Record, baseline *Incarnation) (*Incarnation, error) {
	content := record.Content
	set := 0
	if content.Full != nil {
		set++
	}
	if content.FullCompressed != nil {
		set++
	}
	if content.Diff != nil {
		set++
	}
	if content.Unchanged {
		set++
	}
	if set != 1 {
		return nil, errs.NewValidation("parse_record", fmt.Errorf("expected exactly one encoding method, got %d", set))
	}
	if content.BaselineVersion != "" {
		if baseline == nil || baseline.version != content.BaselineVersion {
			got := "<nil>"
			if baseline != nil {
				got = baseline.version
			}
			return nil, errs.NewIntegrity("parse_record", fmt.Errorf("no baseline provided or wrong baseline provided (%s; wanted %s)", got, content.BaselineVersion))
		}
	}

	var data []byte
	var err error
	switch {
	case content.Full != nil:
		data, err = unpackBytes(*content.Full)
	case content.FullCompressed != nil:
		if content.FullCompressed.Method != codec.CompressMethod {
			return nil, fmt.Errorf("entry: invalid full_compressed section: unexpected method %q", content.FullCompressed.Method)
		}
		var raw []byte
		raw, err = unpackBytes(content.FullCompressed.Data)
		if err == nil {
			data, err = codec.Decompress(raw)
		}
	case content.Diff != nil:
		if content.Diff.Method != codec.ActiveMethods["diff"] {
			return nil, fmt.Errorf("entry: invalid or unhandled diff section: unknown method %q; perhaps from a future version?", content.Diff.Method)
		}
		if baseline == nil {
			return nil, fmt.Errorf("entry: invalid diff section: missing baseline")
		}
		var patchBytes []byte
		patchBytes, err = unpackBytes(content.Diff.Data)
		if err == nil {
			data, err = codec.Patch(baseline.data, patchBytes)
		}
	case content.Unchanged:
		if baseline == nil {
			return nil, fmt.Errorf("entry: invalid unchanged section: missing baseline")
		}
		data = baseline.data
	}
	if err != nil {
		return nil, err
	}

	inc := New(data, record.Metadata.Version)
	if inc.metadata.ContentLength != record.Metadata.ContentLength {
		return nil, errs.NewIntegrity("parse_record", fmt.Errorf("data for %s could not be reconstructed to pass length check (%d vs. %d)",
			record.Metadata.Version, inc.metadata.ContentLength, record.Metadata.ContentLength))
	}
	if inc.contentHashDigest != record.Metadata.ContentHash.Digest {
		return nil, errs.NewIntegrity("parse_record", fmt.Errorf("data for %s could not be reconstructed to pass hash check (%s vs. %s)",
			record.Metadata.Version, inc.contentHashDigest, record.Metadata.ContentHash.Digest))
	}
	return inc, nil
}
