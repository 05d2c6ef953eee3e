// Command datawatch-stats prints one tab-separated summary line per key:
// (num_revisions, num_revisions_with_diff, total_bytes,
// total_bytes_with_diff, keyhash, key), grounded on
// original_source/src/stats.py.
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

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
	dataDir    string
	selectKeys stringList
}

func parseFlags() *options {
	opts := &options{}
	fset := flag.NewFlagSet("datawatch-stats", flag.ExitOnError)
	fset.StringVar(&opts.dataDir, "data-dir", "", "Input directory containing datawatch data.")
	fset.Var(&opts.selectKeys, "select-key", "Select only a specific set of keys (repeatable).")
	fset.Parse(os.Args[1:])
	if opts.dataDir == "" {
		fatal(fmt.Errorf("--data-dir is required"))
	}
	return opts
}

type accumulator struct {
	numRevisions         int
	numRevisionsWithDiff int
	totalBytes           int
	totalBytesWithDiff   int
}

func flush(w *bufio.Writer, e *entry.Entry, acc accumulator) {
	fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%s\n",
		acc.numRevisions, acc.numRevisionsWithDiff, acc.totalBytes, acc.totalBytesWithDiff,
		e.KeyHash(), e.Key())
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

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	var lastEntry *entry.Entry
	var lastIncarnation *entry.Incarnation
	var acc accumulator

	for item, err := range collection.ReadStreaming(store, cache, keyFilter, true) {
		if err != nil {
			fatal(err)
		}
		if lastEntry != nil && item.Entry != lastEntry {
			flush(w, lastEntry, acc)
			acc = accumulator{}
		}
		diff := lastIncarnation == nil || !item.Incarnation.SameDataAs(lastIncarnation)
		acc.numRevisions++
		acc.totalBytes += len(item.Incarnation.Data())
		if diff {
			acc.numRevisionsWithDiff++
			acc.totalBytesWithDiff += len(item.Incarnation.Data())
		}
		lastIncarnation = item.Incarnation
		lastEntry = item.Entry
	}
	if lastEntry != nil {
		flush(w, lastEntry, acc)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "datawatch-stats:", err)
	os.Exit(1)
}
