// Command corpus-gen generates a deterministic synthetic corpus of chunk
// files for benchmarking Entry/Collection reads outside `go test`, the
// datawatch analogue of the teacher's tools/dataset_gen: same flag shape
// (-n, -seed, -out), with -dist's uniform/zipf choice repurposed as the
// distribution of version deltas between a key's successive synthetic
// revisions instead of a distribution over cache keys.
//
// Usage:
//
//	go run ./tools/corpus-gen -n 200 -revisions 20 -dist zipf -seed 42 -out ./corpus
//
// © 2025 arena-cache authors. MIT License.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/collection"
	"github.com/Voskan/datawatch/pkg/storage"
)

func main() {
	var (
		n         = flag.Int("n", 200, "number of synthetic keys to generate")
		revisions = flag.Int("revisions", 20, "revisions per key")
		dist      = flag.String("dist", "uniform", "version-delta distribution: uniform or zipf")
		zipfS     = flag.Float64("zipfs", 1.2, "zipf s parameter (>1)")
		zipfV     = flag.Float64("zipfv", 1.0, "zipf v parameter (>0)")
		seedVal   = flag.Int64("seed", 42, "PRNG seed")
		outPath   = flag.String("out", "", "output directory (must already exist)")
		payload   = flag.Int("payload-bytes", 2048, "approximate size of each revision's payload")
		editRate  = flag.Float64("edit-rate", 0.1, "fraction of payload bytes mutated per revision")
	)
	flag.Parse()

	if *outPath == "" {
		fmt.Fprintln(os.Stderr, "corpus-gen: -out is required")
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(*seedVal))

	var deltaGen func() int64
	switch *dist {
	case "uniform":
		deltaGen = func() int64 { return 1 + rnd.Int63n(1000) }
	case "zipf":
		if *zipfS <= 1.0 || *zipfV <= 0 {
			fmt.Fprintln(os.Stderr, "corpus-gen: zipfs must be >1 and zipfv >0")
			os.Exit(1)
		}
		z := rand.NewZipf(rnd, *zipfS, *zipfV, 100000)
		deltaGen = func() int64 { return 1 + int64(z.Uint64()) }
	default:
		fmt.Fprintln(os.Stderr, "corpus-gen: unknown -dist:", *dist)
		os.Exit(1)
	}

	store, err := storage.NewLocalFileStorage(*outPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corpus-gen:", err)
		os.Exit(1)
	}
	cache := codec.New()
	coll, err := collection.New(store, cache)
	if err != nil {
		fmt.Fprintln(os.Stderr, "corpus-gen:", err)
		os.Exit(1)
	}

	for k := 0; k < *n; k++ {
		key := "https://corpus-gen.example/key-" + strconv.Itoa(k)
		data := randomBytes(rnd, *payload)
		version := int64(1)
		for rev := 0; rev < *revisions; rev++ {
			if rev > 0 {
				version += deltaGen()
				mutate(rnd, data, *editRate)
			}
			if _, err := coll.UpdateData(key, append([]byte(nil), data...), strconv.FormatInt(version, 10)); err != nil {
				fmt.Fprintln(os.Stderr, "corpus-gen:", err)
				os.Exit(1)
			}
		}
	}

	wrote, err := coll.SyncAndFlush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "corpus-gen:", err)
		os.Exit(1)
	}
	fmt.Printf("corpus-gen: wrote %d key(s) (%d chunks) to %s\n", *n, wrote, *outPath)
}

func randomBytes(rnd *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rnd.Read(b)
	return b
}

func mutate(rnd *rand.Rand, data []byte, rate float64) {
	edits := int(float64(len(data)) * rate)
	for i := 0; i < edits; i++ {
		data[rnd.Intn(len(data))] = byte(rnd.Intn(256))
	}
}
