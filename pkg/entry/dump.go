package entry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/internal/filenames"
	"github.com/Voskan/datawatch/pkg/errs"
	"github.com/Voskan/datawatch/pkg/storage"
)

func (e *Entry) marshalDump() ([]byte, error) {
	hdr, err := e.makeMetadataHeader()
	if err != nil {
		return nil, err
	}
	records, err := e.generateRecords()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"datawatch":{"header":`)
	headerJSON, err := json.MarshalIndent(hdr, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("entry: marshal header: %w", err)
	}
	buf.Write(headerJSON)
	buf.WriteString(`,"content":[`)
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		recJSON, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("entry: marshal record: %w", err)
		}
		buf.Write(recJSON)
	}
	buf.WriteString("]}}\n")
	return buf.Bytes(), nil
}

// WriteDump renders this Entry as a dump chunk and writes it to store under
// its current filename.
func (e *Entry) WriteDump(store storage.Storage) error {
	hdr, err := e.makeMetadataHeader()
	if err != nil {
		return err
	}
	return store.WriteChunk(hdr.Name, func(w io.Writer) error {
		data, err := e.marshalDump()
		if err != nil {
			return err
		}
		_, err = w.Write(data)
		return err
	})
}

// LoadMode selects how LoadDumps reconstructs an Entry from the chunks it is
// given.
type LoadMode int

const (
	// OnlyFromLastCheckpoint follows depends_on_version back from the
	// newest chunk only as far as needed to reach a self-contained trail,
	// ignoring any other chunks among those given.
	OnlyFromLastCheckpoint LoadMode = iota
	// FullHistory loads every given chunk, building the complete version
	// history rather than just the most recent checkpoint's trail.
	FullHistory
)

type loadCtx struct {
	key              string
	haveKey          bool
	firstKnown       string
	haveFirstKnown   bool
	lastWithDiff     string
	haveLastWithDiff bool
}

func (c *loadCtx) ensureKey(name, value string) error {
	if !c.haveKey {
		c.key = value
		c.haveKey = true
		return nil
	}
	if c.key != value {
		return errs.NewIntegrity("load_dumps", fmt.Errorf("file %s has field key set to %q, which is not the same as the previously loaded value %q", name, value, c.key))
	}
	return nil
}

func (c *loadCtx) ensureFirstKnown(name, value string) error {
	if !c.haveFirstKnown {
		c.firstKnown = value
		c.haveFirstKnown = true
		return nil
	}
	if c.firstKnown != value {
		return errs.NewIntegrity("load_dumps", fmt.Errorf("file %s has field first_known_version set to %q, which is not the same as the previously loaded value %q", name, value, c.firstKnown))
	}
	return nil
}

func (c *loadCtx) mergeLastWithDiff(value string) error {
	if value == "" {
		return nil
	}
	if !c.haveLastWithDiff {
		c.lastWithDiff = value
		c.haveLastWithDiff = true
		return nil
	}
	cur, err := parseVersion(c.lastWithDiff)
	if err != nil {
		return err
	}
	next, err := parseVersion(value)
	if err != nil {
		return err
	}
	if next > cur {
		c.lastWithDiff = value
	}
	return nil
}

func parseDumpFile(data []byte) (dumpFile, error) {
	var df dumpFile
	if err := json.Unmarshal(data, &df); err != nil {
		return dumpFile{}, fmt.Errorf("entry: parse dump file: %w", err)
	}
	return df, nil
}

type stampedStep struct {
	lastVersion int64
	fni         filenames.EncodedInfo
	name        string
}

func findStepByVersion(stamped []stampedStep, byStamp map[string]stampedStep, k string) (stampedStep, error) {
	if step, ok := byStamp[k]; ok {
		return step, nil
	}
	target, err := parseVersion(k)
	if err != nil {
		return stampedStep{}, err
	}
	for _, step := range stamped {
		first, err := parseVersion(step.fni.FirstVersion)
		if err != nil {
			return stampedStep{}, err
		}
		if first <= target && target <= step.lastVersion {
			return step, nil
		}
	}
	return stampedStep{}, fmt.Errorf("entry: provided set of %d chunks does not contain a file containing %s", len(stamped), k)
}

// LoadDumps reconstructs an Entry from one or more dump chunks in store,
// following depends_on_version back through prior chunks as needed.
func LoadDumps(c *codec.Cache, store storage.Storage, chunkNames []string, mode LoadMode) (*Entry, error) {
	if len(chunkNames) == 0 {
		return nil, fmt.Errorf("entry: no files specified")
	}

	stamped := make([]stampedStep, 0, len(chunkNames))
	for _, name := range chunkNames {
		fni, err := filenames.DecodeFilename(c, name)
		if err != nil {
			return nil, err
		}
		lastVer, err := parseVersion(fni.LastVersion)
		if err != nil {
			return nil, err
		}
		stamped = append(stamped, stampedStep{lastVersion: lastVer, fni: fni, name: name})
	}
	sort.Slice(stamped, func(i, j int) bool { return stamped[i].lastVersion < stamped[j].lastVersion })
	byStamp := make(map[string]stampedStep, len(stamped))
	for _, step := range stamped {
		byStamp[step.fni.LastVersion] = step
	}

	latest := stamped[len(stamped)-1]
	trail := []stampedStep{latest}
	for trail[len(trail)-1].fni.DependsOnVersion != "" {
		k := trail[len(trail)-1].fni.DependsOnVersion
		next, err := findStepByVersion(stamped, byStamp, k)
		if err != nil {
			return nil, err
		}
		trail = append(trail, next)
	}

	var toLoad []stampedStep
	switch mode {
	case OnlyFromLastCheckpoint:
		toLoad = trail
	case FullHistory:
		toLoad = stamped
	default:
		return nil, fmt.Errorf("entry: unknown load mode %v", mode)
	}

	ctx := &loadCtx{}
	recsByVersion := map[string]Record{}
	versionsRequired := map[string]bool{}

	for _, step := range toLoad {
		data, err := readChunk(store, step.name)
		if err != nil {
			return nil, err
		}
		df, err := parseDumpFile(data)
		if err != nil {
			return nil, err
		}
		hdr := df.Datawatch.Header
		if err := ctx.ensureKey(hdr.Name, hdr.Key); err != nil {
			return nil, err
		}
		if err := ctx.ensureFirstKnown(hdr.Name, hdr.VersionInfo.FirstKnownVersion); err != nil {
			return nil, err
		}
		if err := ctx.mergeLastWithDiff(hdr.VersionInfo.LastContainedVersionWithDiff); err != nil {
			return nil, err
		}
		for _, rec := range df.Datawatch.Content {
			recsByVersion[rec.Metadata.Version] = rec
			if rec.Content.BaselineVersion != "" {
				versionsRequired[rec.Content.BaselineVersion] = true
			}
		}
	}
	if len(recsByVersion) == 0 {
		return nil, fmt.Errorf("entry: no files specified")
	}

	var externalVersionsReq []string
	for v := range versionsRequired {
		if _, ok := recsByVersion[v]; !ok {
			externalVersionsReq = append(externalVersionsReq, v)
		}
	}
	if len(externalVersionsReq) > 1 {
		return nil, errs.NewIntegrity("load_dumps", fmt.Errorf("files do not cover a contiguous set of versions: multiple external versions would be required (forbidden): %v", externalVersionsReq))
	}
	if len(externalVersionsReq) == 1 {
		return nil, errs.NewIntegrity("load_dumps", fmt.Errorf("files do not cover a self-contained set of versions: external version would be required (forbidden): %v", externalVersionsReq))
	}

	versionList := make([]string, 0, len(recsByVersion))
	for v := range recsByVersion {
		versionList = append(versionList, v)
	}
	sort.Slice(versionList, func(i, j int) bool {
		vi, _ := parseVersion(versionList[i])
		vj, _ := parseVersion(versionList[j])
		return vi < vj
	})

	versionInfo := VersionsHeader{
		FirstContainedVersion:        versionList[0],
		LastContainedVersion:         versionList[len(versionList)-1],
		LastContainedVersionWithDiff: ctx.lastWithDiff,
		FirstKnownVersion:            ctx.firstKnown,
	}

	builtIncarnations := make([]*Incarnation, 0, len(versionList))
	builtIndex := map[string]*Incarnation{}
	for _, v := range versionList {
		rec := recsByVersion[v]
		var baselineInc *Incarnation
		if rec.Content.BaselineVersion != "" {
			var ok bool
			baselineInc, ok = builtIndex[rec.Content.BaselineVersion]
			if !ok {
				return nil, errs.NewIntegrity("load_dumps", fmt.Errorf("content for %s refers to version %s out of sequence", v, rec.Content.BaselineVersion))
			}
		}
		inc, err := BuildFromRecord(rec, baselineInc)
		if err != nil {
			return nil, err
		}
		builtIncarnations = append(builtIncarnations, inc)
		builtIndex[v] = inc
	}

	return &Entry{
		cache:        c,
		key:          ctx.key,
		keyHash:      c.KeyHash(ctx.key),
		versionInfo:  versionInfo,
		chainLength:  0,
		incarnations: builtIncarnations,
	}, nil
}

func readChunk(store storage.Storage, name string) ([]byte, error) {
	var data []byte
	err := store.ReadChunk(name, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		data = b
		return err
	})
	return data, err
}
