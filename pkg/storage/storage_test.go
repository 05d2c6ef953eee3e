package storage

import (
	"io"
	"reflect"
	"testing"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/internal/filenames"
)

func writeString(data string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := w.Write([]byte(data))
		return err
	}
}

func readAll(t *testing.T, s Storage, filename string) string {
	t.Helper()
	var got []byte
	err := s.ReadChunk(filename, func(r io.Reader) error {
		b, err := io.ReadAll(r)
		got = b
		return err
	})
	if err != nil {
		t.Fatalf("ReadChunk(%q): %v", filename, err)
	}
	return string(got)
}

func TestInMemoryStorage(t *testing.T) {
	s := NewInMemoryStorage()

	chunks, err := s.ListChunks()
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected no chunks, got %v", chunks)
	}

	if err := s.WriteChunk("foo/bar/baz", writeString("helloworld")); err != nil {
		t.Fatal(err)
	}
	chunks, _ = s.ListChunks()
	if !reflect.DeepEqual(chunks, []string{"foo/bar/baz"}) {
		t.Fatalf("got %v", chunks)
	}
	if got := readAll(t, s, "foo/bar/baz"); got != "helloworld" {
		t.Fatalf("got %q", got)
	}

	// Rewriting an existing chunk is rejected, as for every Storage.
	if err := s.WriteChunk("foo/bar/baz", writeString("helloworld")); err == nil {
		t.Fatal("expected error rewriting an existing chunk")
	}

	if err := s.WriteChunk("foo/bar/quux", writeString("")); err != nil {
		t.Fatal(err)
	}
	chunks, _ = s.ListChunks()
	if !reflect.DeepEqual(chunks, []string{"foo/bar/baz", "foo/bar/quux"}) {
		t.Fatalf("got %v", chunks)
	}
	if got := readAll(t, s, "foo/bar/quux"); got != "" {
		t.Fatalf("got %q", got)
	}
	if got := readAll(t, s, "foo/bar/baz"); got != "helloworld" {
		t.Fatalf("got %q", got)
	}

	if err := s.WriteChunk("foo/bar/baz", writeString("overwrite")); err == nil {
		t.Fatal("expected error overwriting an existing chunk")
	}
	if got := readAll(t, s, "foo/bar/baz"); got != "helloworld" {
		t.Fatalf("got %q", got)
	}
}

func TestInMemoryStorageMissingChunk(t *testing.T) {
	s := NewInMemoryStorage()
	err := s.ReadChunk("nope", func(r io.Reader) error { return nil })
	if err == nil {
		t.Fatal("expected error reading missing chunk")
	}
}

func TestLocalFileStorageRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalFileStorage(dir)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.WriteChunk("a/b/c.txt", writeString("hello")); err != nil {
		t.Fatal(err)
	}
	chunks, err := s.ListChunks()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, []string{"a/b/c.txt"}) {
		t.Fatalf("got %v", chunks)
	}
	if got := readAll(t, s, "a/b/c.txt"); got != "hello" {
		t.Fatalf("got %q", got)
	}

	if err := s.WriteChunk("a/b/c.txt", writeString("again")); err == nil {
		t.Fatal("expected error writing over existing chunk")
	}
}

func TestLocalFileStorageRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalFileStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteChunk("../escape.txt", writeString("x")); err == nil {
		t.Fatal("expected path-escape rejection")
	}
}

func TestLocalFileStorageRejectsMissingRoot(t *testing.T) {
	if _, err := NewLocalFileStorage(t.TempDir() + "/does-not-exist"); err == nil {
		t.Fatal("expected error for nonexistent root")
	}
}

func TestListFilteredChunksByKeyHash(t *testing.T) {
	c := codec.New()
	s := NewInMemoryStorage()

	nameA, err := filenames.EncodeFilename(c, filenames.FileInfo{Key: "alpha", FirstVersion: "1", LastVersion: "1"})
	if err != nil {
		t.Fatal(err)
	}
	nameB, err := filenames.EncodeFilename(c, filenames.FileInfo{Key: "beta", FirstVersion: "1", LastVersion: "1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.WriteChunk(nameA, writeString("")); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteChunk(nameB, writeString("")); err != nil {
		t.Fatal(err)
	}

	infoA, err := filenames.DecodeFilename(c, nameA)
	if err != nil {
		t.Fatal(err)
	}

	filtered, err := ListFilteredChunks(s, c, ChunkFilter{KeyHash: []string{infoA.KeyHash}})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(filtered, []string{nameA}) {
		t.Fatalf("got %v, want [%s]", filtered, nameA)
	}
}

func TestBadgerStorageRoundtrip(t *testing.T) {
	s, err := NewBadgerStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.WriteChunk("shard/keyhash/chunk.datawatch.json", writeString("hello")); err != nil {
		t.Fatal(err)
	}
	chunks, err := s.ListChunks()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(chunks, []string{"shard/keyhash/chunk.datawatch.json"}) {
		t.Fatalf("got %v", chunks)
	}
	if got := readAll(t, s, "shard/keyhash/chunk.datawatch.json"); got != "hello" {
		t.Fatalf("got %q", got)
	}
	if err := s.WriteChunk("shard/keyhash/chunk.datawatch.json", writeString("again")); err == nil {
		t.Fatal("expected error writing over existing chunk")
	}
}
