package entry

import (
	"fmt"
	"strconv"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/internal/filenames"
	"github.com/Voskan/datawatch/pkg/errs"
)

// DefaultChainLengthLimit is the dependency_chain_length_limit Collection
// uses for its normal sync_and_flush path: after this many consecutive
// external-dependency flushes, the chain is cut and the next flush starts a
// fresh, self-contained baseline.
const DefaultChainLengthLimit = 10

// NoChainLengthLimit disables the chain-length cutoff entirely.
const NoChainLengthLimit = -1

// Entry is one key's append-only chain of incarnations: the in-memory,
// not-yet-flushed tail of a key's full history, plus (once flushed at least
// once) a pointer to the external baseline the tail's first diff depends on.
type Entry struct {
	cache *codec.Cache

	key         string
	keyHash     string
	versionInfo VersionsHeader
	chainLength int

	incarnations []*Incarnation
	externalLast *Incarnation
}

// CreateInitial starts a brand-new Entry for key, holding a single
// incarnation at version observed with the given data.
func CreateInitial(c *codec.Cache, key string, data []byte, version string) *Entry {
	return &Entry{
		cache:   c,
		key:     key,
		keyHash: c.KeyHash(key),
		versionInfo: VersionsHeader{
			FirstContainedVersion: version,
			LastContainedVersion:  version,
			FirstKnownVersion:     version,
		},
		chainLength:  0,
		incarnations: []*Incarnation{New(data, version)},
	}
}

// Key is the full, original key this Entry tracks.
func (e *Entry) Key() string { return e.key }

// KeyHash is the SHA-256 digest used to shard and index this Entry in
// storage.
func (e *Entry) KeyHash() string { return e.keyHash }

// CurrentVersion is the most recent version held in memory.
func (e *Entry) CurrentVersion() string { return e.versionInfo.LastContainedVersion }

// CurrentContentHashDigest is the content hash of the most recent
// incarnation.
func (e *Entry) CurrentContentHashDigest() string {
	return e.incarnations[len(e.incarnations)-1].ContentHashDigest()
}

// LoadedVersions lists the versions currently held in memory, oldest first.
func (e *Entry) LoadedVersions() []string {
	out := make([]string, len(e.incarnations))
	for i, inc := range e.incarnations {
		out[i] = inc.DataVersion()
	}
	return out
}

// Incarnations returns the in-memory incarnations, oldest first. Callers
// must not mutate the returned slice's elements.
func (e *Entry) Incarnations() []*Incarnation {
	return e.incarnations
}

// GetOldestDataAge returns currentVersion minus the first contained
// version, both parsed as integers (nanosecond timestamps in practice).
func (e *Entry) GetOldestDataAge(currentVersion string) (int64, error) {
	if currentVersion == "" {
		currentVersion = e.CurrentVersion()
	}
	cur, err := strconv.ParseInt(currentVersion, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("entry: invalid version %q: %w", currentVersion, err)
	}
	first, err := strconv.ParseInt(e.versionInfo.FirstContainedVersion, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("entry: invalid version %q: %w", e.versionInfo.FirstContainedVersion, err)
	}
	return cur - first, nil
}

func parseVersion(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}

// UpdateData appends a new incarnation at data_version, which must be
// strictly greater than CurrentVersion().
func (e *Entry) UpdateData(data []byte, dataVersion string) error {
	cur, err := parseVersion(e.CurrentVersion())
	if err != nil {
		return err
	}
	next, err := parseVersion(dataVersion)
	if err != nil {
		return err
	}
	if cur == next {
		return errs.NewValidation("update_data", fmt.Errorf("cannot update with same version %s", dataVersion))
	}
	if cur > next {
		return errs.NewValidation("update_data", fmt.Errorf("cannot update with older version %s (current is %s)", dataVersion, e.CurrentVersion()))
	}
	hasDiff := string(data) != string(e.incarnations[len(e.incarnations)-1].Data())
	e.incarnations = append(e.incarnations, New(data, dataVersion))
	e.versionInfo.LastContainedVersion = dataVersion
	if hasDiff {
		e.versionInfo.LastContainedVersionWithDiff = dataVersion
	}
	return nil
}

func (e *Entry) hasData() bool {
	return e.versionInfo != (VersionsHeader{})
}

func (e *Entry) makeFileInfo() filenames.FileInfo {
	if !e.hasData() {
		panic("entry: makeFileInfo called on an Entry with no version info")
	}
	return filenames.FileInfo{
		Key:                   e.key,
		FirstVersion:          e.versionInfo.FirstContainedVersion,
		LastVersion:           e.versionInfo.LastContainedVersion,
		DependsOnVersion:      e.versionInfo.DependsOnExternalVersion,
		DependencyChainLength: e.chainLength,
	}
}

// Info computes this Entry's current filename/nameinfo without writing
// anything.
func (e *Entry) Info() (filenames.EncodedInfo, error) {
	return filenames.ComputeNameInfo(e.cache, e.makeFileInfo())
}

func (e *Entry) makeMetadataHeader() (Header, error) {
	nameInfo, err := e.Info()
	if err != nil {
		return Header{}, err
	}
	return makeHeader(nameInfo, e.versionInfo, e.key), nil
}

// generateRecords renders every in-memory incarnation as a Record, in
// order, threading the baseline/previous-by-content state AsRecord needs.
func (e *Entry) generateRecords() ([]Record, error) {
	last := e.externalLast
	prev := map[string]*Incarnation{}
	records := make([]Record, 0, len(e.incarnations))
	for _, inc := range e.incarnations {
		if last != nil {
			lastVer, err := parseVersion(last.DataVersion())
			if err != nil {
				return nil, err
			}
			incVer, err := parseVersion(inc.DataVersion())
			if err != nil {
				return nil, err
			}
			if incVer <= lastVer {
				return nil, fmt.Errorf("entry: incarnations are in inconsistent state (out of order)")
			}
		}
		rec, err := inc.AsRecord(last, prev)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
		last = inc
		prev[inc.ContentHashDigest()] = inc
	}
	return records, nil
}

// Flush promotes the second-to-last incarnation to an external baseline and
// drops everything but the current incarnation from memory, incrementing
// the dependency chain length. Once the chain length exceeds limit (ignored
// entirely when limit is NoChainLengthLimit), the chain is cut: the next
// flush starts a fresh, dependency-free baseline. Flush is a no-op when
// fewer than two incarnations are loaded.
func (e *Entry) Flush(limit int) {
	if len(e.incarnations) < 2 {
		return
	}
	e.externalLast = e.incarnations[len(e.incarnations)-2]
	cur := e.incarnations[len(e.incarnations)-1]
	hasDiff := !cur.SameDataAs(e.externalLast)
	e.incarnations = []*Incarnation{cur}
	e.chainLength++
	e.versionInfo.FirstContainedVersion = cur.DataVersion()
	e.versionInfo.LastContainedVersion = cur.DataVersion()
	if hasDiff {
		e.versionInfo.LastContainedVersionWithDiff = cur.DataVersion()
	} else {
		e.versionInfo.LastContainedVersionWithDiff = ""
	}
	e.versionInfo.DependsOnExternalVersion = e.externalLast.DataVersion()
	if limit != NoChainLengthLimit && e.chainLength > limit {
		e.externalLast = nil
		e.chainLength = 0
		e.versionInfo.DependsOnExternalVersion = ""
	}
}

func (e *Entry) findIncarnation(target string) (*Incarnation, error) {
	targetVer, err := parseVersion(target)
	if err != nil {
		return nil, err
	}
	var last *Incarnation
	for _, inc := range e.incarnations {
		incVer, err := parseVersion(inc.DataVersion())
		if err != nil {
			return nil, err
		}
		if targetVer == incVer {
			return inc, nil
		}
		if targetVer < incVer {
			if last == nil {
				return nil, fmt.Errorf("entry: no incarnation found at or before version %s", target)
			}
			return last, nil
		}
		last = inc
	}
	return last, nil
}

// ReadDataAt returns the bytes of the incarnation in effect at dataVersion:
// the most recent incarnation whose version is <= dataVersion.
func (e *Entry) ReadDataAt(dataVersion string) ([]byte, error) {
	target, err := parseVersion(dataVersion)
	if err != nil {
		return nil, err
	}
	firstKnown, err := parseVersion(e.versionInfo.FirstKnownVersion)
	if err != nil {
		return nil, err
	}
	if target < firstKnown {
		return nil, &errs.NotFoundError{
			Key: e.key, Version: dataVersion, Reason: errs.ReasonNeverKnown,
			Detail: fmt.Sprintf("first known version is %s", e.versionInfo.FirstKnownVersion),
		}
	}
	firstContained, err := parseVersion(e.versionInfo.FirstContainedVersion)
	if err != nil {
		return nil, err
	}
	if target < firstContained {
		return nil, &errs.NotFoundError{
			Key: e.key, Version: dataVersion, Reason: errs.ReasonFlushed,
			Detail: fmt.Sprintf("data prior to %s has been flushed", e.versionInfo.FirstContainedVersion),
		}
	}
	current, err := parseVersion(e.CurrentVersion())
	if err != nil {
		return nil, err
	}
	if target > current {
		return nil, &errs.NotFoundError{
			Key: e.key, Version: dataVersion, Reason: errs.ReasonNotYet,
			Detail: fmt.Sprintf("latest known version is %s", e.CurrentVersion()),
		}
	}
	inc, err := e.findIncarnation(dataVersion)
	if err != nil {
		return nil, err
	}
	return inc.Data(), nil
}

// Stats is the computed-on-demand summary returned by ComputeStats.
type Stats struct {
	SerializedJSONSizeBytes           int     `json:"serialized_json_size_bytes"`
	SerializedCompressedJSONSizeBytes int     `json:"serialized_compressed_json_size_bytes"`
	NumberOfIncarnations              int     `json:"number_of_incarnations"`
	TotalDataSizeBytes                int     `json:"total_data_size_bytes"`
	Ratio                             float64 `json:"ratio"`
	CompressedRatio                   float64 `json:"compressed_ratio"`
}

// ComputeStats serializes the Entry as it would be written to a dump chunk
// and reports its size versus the total size of the raw data it holds.
func (e *Entry) ComputeStats() (Stats, error) {
	serialized, err := e.marshalDump()
	if err != nil {
		return Stats{}, err
	}
	totalSize := 0
	for _, inc := range e.incarnations {
		totalSize += len(inc.Data())
	}
	compressed, err := codec.Compress(serialized)
	if err != nil {
		return Stats{}, err
	}
	var ratio, compressedRatio float64
	if totalSize > 0 {
		ratio = float64(len(serialized)) / float64(totalSize)
		compressedRatio = float64(len(compressed)) / float64(totalSize)
	}
	return Stats{
		SerializedJSONSizeBytes:           len(serialized),
		SerializedCompressedJSONSizeBytes: len(compressed),
		NumberOfIncarnations:              len(e.incarnations),
		TotalDataSizeBytes:                totalSize,
		Ratio:                             ratio,
		CompressedRatio:                   compressedRatio,
	}, nil
}
