// Command datawatch-reduce streams every (by default, changed-only)
// incarnation's bytes to a child process's stdin, passing the key and data
// version as argv, and copies the child's stdout onward. Grounded on
// original_source/src/reducer.py.
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"
	"os/exec"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/collection"
	"github.com/Voskan/datawatch/pkg/storage"
)

type stringList []string

func (s *stringList) String() string { return fmt.Sprint([]string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

type options struct {
	script           string
	dataDir          string
	includeUnchanged bool
	allowOverwrite   bool
	output           string
	selectKeys       stringList
}

func parseFlags() *options {
	opts := &options{}
	fset := flag.NewFlagSet("datawatch-reduce", flag.ExitOnError)
	fset.StringVar(&opts.script, "script", "", "Script binary to call on each version.")
	fset.StringVar(&opts.dataDir, "data-dir", "", "Input directory containing datawatch data.")
	fset.BoolVar(&opts.includeUnchanged, "include-unchanged", false, "Perform reduction even when nothing has changed from the previous version.")
	fset.BoolVar(&opts.allowOverwrite, "allow-overwrite", false, "Allow overwriting the output file.")
	fset.StringVar(&opts.output, "output", "-", "Output file.")
	fset.Var(&opts.selectKeys, "select-key", "Select only a specific set of keys (repeatable).")
	fset.Parse(os.Args[1:])
	if opts.script == "" {
		fatal(fmt.Errorf("--script is required"))
	}
	if opts.dataDir == "" {
		fatal(fmt.Errorf("--data-dir is required"))
	}
	return opts
}

func openOutput(opts *options) (*os.File, error) {
	if opts.output == "-" {
		return os.Stdout, nil
	}
	flags := os.O_CREATE | os.O_WRONLY
	if opts.allowOverwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	return os.OpenFile(opts.output, flags, 0o644)
}

func main() {
	opts := parseFlags()

	out, err := openOutput(opts)
	if err != nil {
		fatal(err)
	}
	if out != os.Stdout {
		defer out.Close()
	}

	store, err := storage.NewLocalFileStorage(opts.dataDir)
	if err != nil {
		fatal(err)
	}
	cache := codec.New()

	var keyFilter []string
	if len(opts.selectKeys) > 0 {
		keyFilter = opts.selectKeys
	}

	for item, err := range collection.ReadStreaming(store, cache, keyFilter, opts.includeUnchanged) {
		if err != nil {
			fatal(err)
		}
		cmd := exec.Command(opts.script, item.Entry.Key(), item.Incarnation.DataVersion())
		cmd.Stdin = bytes.NewReader(item.Incarnation.Data())
		cmd.Stdout = out
		cmd.Stderr = os.Stderr
		if err := cmd.Run(); err != nil {
			fatal(fmt.Errorf("reduce script failed for %s@%s: %w", item.Entry.Key(), item.Incarnation.DataVersion(), err))
		}
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "datawatch-reduce:", err)
	os.Exit(1)
}
