package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"
	"github.com/gabstv/go-bsdiff/pkg/bspatch"
	"github.com/klauspost/compress/zlib"
)

// diffMethod names the composition used to produce a diff record: bsdiff
// over the raw bytes, deflate-compressed. Matches the Python original's
// "zlib.compress . bsdiff4.diff".
const diffMethod = "zlib.compress . bsdiff4.diff"

// Diff computes a binary patch taking a to b, deflate-compressed. Apply with
// Patch to recover b from a.
func Diff(a, b []byte) ([]byte, error) {
	raw, err := bsdiff.Bytes(a, b)
	if err != nil {
		return nil, fmt.Errorf("codec: bsdiff: %w", err)
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("codec: compress diff: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("codec: compress diff: %w", err)
	}
	return buf.Bytes(), nil
}

// Patch reverses Diff: given a and the deflate-compressed bsdiff patch from a
// to b, reconstructs b.
func Patch(a, patch []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(patch))
	if err != nil {
		return nil, fmt.Errorf("codec: decompress patch: %w", err)
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("codec: decompress patch: %w", err)
	}
	out, err := bspatch.Bytes(a, raw)
	if err != nil {
		return nil, fmt.Errorf("codec: bspatch: %w", err)
	}
	return out, nil
}
