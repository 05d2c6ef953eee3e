// Command datawatch-yamlcat dumps one YAML document per incarnation:
// {key, data_version, info?, value}, document-delimited with "---"/"...",
// matching original_source/src/yamlcat.py.
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/collection"
	"github.com/Voskan/datawatch/pkg/entry"
	"github.com/Voskan/datawatch/pkg/storage"
)

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	dataDir          string
	includeUnchanged bool
	omitData         bool
	extraInfo        bool
	selectKeys       stringList
	valueType        string
}

func parseFlags() *options {
	opts := &options{}
	fset := flag.NewFlagSet("datawatch-yamlcat", flag.ExitOnError)
	fset.StringVar(&opts.dataDir, "data-dir", "", "Input directory containing datawatch data.")
	fset.BoolVar(&opts.includeUnchanged, "include-unchanged", false, "Perform reduction even when nothing has changed from the previous version.")
	fset.BoolVar(&opts.omitData, "omit-data", false, "Omit the actual data from the output.")
	fset.BoolVar(&opts.extraInfo, "extra-info", false, "Add some extra descriptive metadata in the output.")
	fset.Var(&opts.selectKeys, "select-key", "Select only a specific set of keys (repeatable).")
	fset.StringVar(&opts.valueType, "value-type", "auto", "Choose kind of value to output: auto, raw, or string.")
	fset.Parse(os.Args[1:])
	if opts.dataDir == "" {
		fatal(fmt.Errorf("--data-dir is required"))
	}
	switch opts.valueType {
	case "auto", "raw", "string":
	default:
		fatal(fmt.Errorf("unknown or unhandled --value-type: %q (options: auto, raw, string)", opts.valueType))
	}
	return opts
}

// yamlInfo is the optional "info" block added by --extra-info.
type yamlInfo struct {
	KeyHash    string `yaml:"keyhash"`
	DataLength int    `yaml:"data_length"`
	DataHash   string `yaml:"data_hash"`
}

// yamlRecord is the per-incarnation document shape; field order matches
// Python's dict insertion order (key, data_version, info, value).
type yamlRecord struct {
	Key         string    `yaml:"key"`
	DataVersion string    `yaml:"data_version"`
	Info        *yamlInfo `yaml:"info,omitempty"`
	Value       any       `yaml:"value,omitempty"`
}

func main() {
	opts := parseFlags()

	store, err := storage.NewLocalFileStorage(opts.dataDir)
	if err != nil {
		fatal(err)
	}
	cache := codec.New()

	var keyFilter []string
	if len(opts.selectKeys) > 0 {
		keyFilter = opts.selectKeys
	}

	out := os.Stdout

	for item, err := range collection.ReadStreaming(store, cache, keyFilter, opts.includeUnchanged) {
		if err != nil {
			fatal(err)
		}
		rec := yamlRecord{
			Key:         item.Entry.Key(),
			DataVersion: item.Incarnation.DataVersion(),
		}
		if opts.extraInfo {
			rec.Info = &yamlInfo{
				KeyHash:    item.Entry.KeyHash(),
				DataLength: len(item.Incarnation.Data()),
				DataHash:   item.Incarnation.ContentHashDigest(),
			}
		}
		if !opts.omitData {
			value, err := decodeValue(opts.valueType, item.Incarnation)
			if err != nil {
				fatal(err)
			}
			rec.Value = value
		}
		docBytes, err := yaml.Marshal(rec)
		if err != nil {
			fatal(err)
		}
		fmt.Fprintln(out, "---")
		out.Write(docBytes)
		fmt.Fprintln(out, "...")
	}
}

func decodeValue(valueType string, inc *entry.Incarnation) (any, error) {
	switch valueType {
	case "raw":
		return inc.Data(), nil
	case "string":
		text, ok := inc.DataAsText()
		if !ok {
			return nil, fmt.Errorf("datawatch-yamlcat: data is not valid UTF-8 text")
		}
		return text, nil
	default: // "auto"
		if text, ok := inc.DataAsText(); ok {
			return text, nil
		}
		return inc.Data(), nil
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "datawatch-yamlcat:", err)
	os.Exit(1)
}
