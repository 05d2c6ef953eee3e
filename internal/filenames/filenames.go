// Package filenames implements the bijective mapping between a chunk's
// identity (key, version range, dependency) and the on-disk path it is
// stored under. The mapping must round-trip exactly: decoding a path
// produced by EncodeFilename recovers every field except the full key when
// the key was too long to embed (only its encoded prefix survives).
//
// © 2025 arena-cache authors. MIT License.
package filenames

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Voskan/datawatch/internal/codec"
)

const filenameSuffix = ".datawatch.json"

// MaxFilenameLength bounds every encoded path, including the version-shard
// and keyhash directory components.
const MaxFilenameLength = 768

// FileInfo is the caller-supplied identity of one chunk: the full key (used
// only at encode time), its version range, and its dependency edge.
type FileInfo struct {
	Key                   string
	FirstVersion          string
	LastVersion           string
	DependsOnVersion      string // "" means independent (no dependency)
	DependencyChainLength int
}

// EncodedInfo is what a path decodes to. MaybeKey is non-empty only when the
// key was short enough to be embedded verbatim; otherwise callers only learn
// KeyPrefix, KeyLength and KeyHash, and must resolve the full key some other
// way (e.g. a reverse index) if they need it.
type EncodedInfo struct {
	MaybeKey              string
	KeyHash               string
	KeyLength             int
	KeyPrefix             string
	EncodedKeyPrefix      string
	VersionSpan           string
	FirstVersion          string
	LastVersion           string
	DependsOnVersion      string
	DependencyChainLength int
	VersionShard          string
}

const filenameTemplate = "%s/%s/%s.%s.%s.%d.%d.%s" + filenameSuffix

func encodeFromEncodedInfo(fni EncodedInfo) (string, error) {
	externaldepOrZero := fni.DependsOnVersion
	if externaldepOrZero == "" {
		externaldepOrZero = "0"
	}
	name := fmt.Sprintf(filenameTemplate,
		fni.VersionShard,
		fni.KeyHash,
		fni.LastVersion,
		fni.VersionSpan,
		externaldepOrZero,
		fni.DependencyChainLength,
		fni.KeyLength,
		fni.EncodedKeyPrefix,
	)
	if len(name) > MaxFilenameLength {
		return "", fmt.Errorf("filenames: encoded filename length %d exceeds limit %d", len(name), MaxFilenameLength)
	}
	return name, nil
}

// ComputeNameInfo validates info and derives the full EncodedInfo (key hash,
// key prefix encoding, version shard, version span) that EncodeFilename and
// DecodeFilename both operate on.
func ComputeNameInfo(c *codec.Cache, info FileInfo) (EncodedInfo, error) {
	if info.Key == "" {
		return EncodedInfo{}, fmt.Errorf("filenames: no key provided")
	}
	ver0, err := strconv.ParseInt(info.FirstVersion, 10, 64)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid first_version %q: %w", info.FirstVersion, err)
	}
	ver1, err := strconv.ParseInt(info.LastVersion, 10, 64)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid last_version %q: %w", info.LastVersion, err)
	}
	if ver1 < ver0 {
		return EncodedInfo{}, fmt.Errorf("filenames: last version %d cannot be smaller than first version %d", ver1, ver0)
	}
	if info.DependsOnVersion != "" {
		verdep, err := strconv.ParseInt(info.DependsOnVersion, 10, 64)
		if err != nil {
			return EncodedInfo{}, fmt.Errorf("filenames: invalid depends_on_version %q: %w", info.DependsOnVersion, err)
		}
		if verdep >= ver0 {
			return EncodedInfo{}, fmt.Errorf("filenames: dependent version %d must be smaller than first version %d", verdep, ver0)
		}
		if info.DependencyChainLength <= 0 {
			return EncodedInfo{}, fmt.Errorf("filenames: invalid dependency chain length %d for dependent file", info.DependencyChainLength)
		}
	} else if info.DependencyChainLength != 0 {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid dependency chain length %d for independent file", info.DependencyChainLength)
	}

	keyHash := c.KeyHash(info.Key)
	versionShard, err := c.VersionShard(strconv.FormatInt(ver1, 10))
	if err != nil {
		return EncodedInfo{}, err
	}
	encodedPrefix, prefixLen, err := c.EncodeKeyPrefix(info.Key)
	if err != nil {
		return EncodedInfo{}, err
	}
	keyRunes := []rune(info.Key)
	var maybeKey string
	if prefixLen == len(keyRunes) {
		maybeKey = info.Key
	}
	return EncodedInfo{
		MaybeKey:              maybeKey,
		KeyHash:               keyHash,
		KeyLength:             len(keyRunes),
		KeyPrefix:             string(keyRunes[:prefixLen]),
		EncodedKeyPrefix:      encodedPrefix,
		VersionSpan:           strconv.FormatInt(ver1-ver0, 10),
		LastVersion:           strconv.FormatInt(ver1, 10),
		FirstVersion:          strconv.FormatInt(ver0, 10),
		DependsOnVersion:      info.DependsOnVersion,
		DependencyChainLength: info.DependencyChainLength,
		VersionShard:          versionShard,
	}, nil
}

// EncodeFilename validates info and renders its storage path.
func EncodeFilename(c *codec.Cache, info FileInfo) (string, error) {
	nameInfo, err := ComputeNameInfo(c, info)
	if err != nil {
		return "", err
	}
	return encodeFromEncodedInfo(nameInfo)
}

// EncodeFilenameFromEncodedInfo re-renders a path from an already-computed
// EncodedInfo (used when round-tripping a decoded filename without owning
// the original key).
func EncodeFilenameFromEncodedInfo(info EncodedInfo) (string, error) {
	return encodeFromEncodedInfo(info)
}

// DecodeFilename parses a storage path back into an EncodedInfo.
func DecodeFilename(c *codec.Cache, filename string) (EncodedInfo, error) {
	if strings.Count(filename, "/") != 2 {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid number of slashes in filename %q", filename)
	}
	parts := strings.SplitN(filename, "/", 3)
	versionShard, keyHash, rest := parts[0], parts[1], parts[2]
	if !strings.HasSuffix(rest, filenameSuffix) {
		return EncodedInfo{}, fmt.Errorf("filenames: filename %q does not end with %s", filename, filenameSuffix)
	}
	rest = rest[:len(rest)-len(filenameSuffix)]
	if strings.Count(rest, ".") != 5 {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid number of dots in filename %q", filename)
	}
	fields := strings.SplitN(rest, ".", 6)
	lastVersion, versionSpan, externaldepOrZero, chainlenStr, keyLengthStr, encodedKeyPrefix := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]

	lastVer, err := strconv.ParseInt(lastVersion, 10, 64)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid last_version in %q: %w", filename, err)
	}
	span, err := strconv.ParseInt(versionSpan, 10, 64)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid version_span in %q: %w", filename, err)
	}
	firstVersion := strconv.FormatInt(lastVer-span, 10)

	chainlen, err := strconv.Atoi(chainlenStr)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid chain length in %q: %w", filename, err)
	}
	keyLength, err := strconv.Atoi(keyLengthStr)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid key length in %q: %w", filename, err)
	}
	keyPrefix, err := c.DecodeKeyPrefix(encodedKeyPrefix)
	if err != nil {
		return EncodedInfo{}, fmt.Errorf("filenames: invalid encoded key prefix in %q: %w", filename, err)
	}

	var maybeKey string
	if keyLength == len([]rune(keyPrefix)) {
		maybeKey = keyPrefix
	}
	var dependsOn string
	if externaldepOrZero != "0" {
		dependsOn = externaldepOrZero
	}

	return EncodedInfo{
		MaybeKey:              maybeKey,
		KeyHash:               keyHash,
		KeyLength:             keyLength,
		KeyPrefix:             keyPrefix,
		EncodedKeyPrefix:      encodedKeyPrefix,
		VersionSpan:           versionSpan,
		FirstVersion:          firstVersion,
		LastVersion:           lastVersion,
		DependsOnVersion:      dependsOn,
		DependencyChainLength: chainlen,
		VersionShard:          versionShard,
	}, nil
}
