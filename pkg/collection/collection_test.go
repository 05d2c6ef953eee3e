package collection

import (
	"strconv"
	"testing"

	"github.com/Voskan/datawatch/internal/codec"
	"github.com/Voskan/datawatch/pkg/storage"
)

func TestUpdateDataAndEntryByKey(t *testing.T) {
	c := codec.New()
	store := storage.NewInMemoryStorage()
	coll, err := New(store, c)
	if err != nil {
		t.Fatal(err)
	}

	key := "https://example.com/foo"
	if _, err := coll.UpdateData(key, []byte("mycontent"), "123456789"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.UpdateData(key, []byte("newcontent"), "123546789"); err != nil {
		t.Fatal(err)
	}

	e, err := coll.EntryByKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if e.CurrentVersion() != "123546789" {
		t.Fatalf("CurrentVersion = %q, want 123546789", e.CurrentVersion())
	}
	got, err := e.ReadDataAt("123546789")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "newcontent" {
		t.Fatalf("ReadDataAt = %q, want newcontent", got)
	}
}

func TestSyncAndFlushRoundtrip(t *testing.T) {
	c := codec.New()
	store := storage.NewInMemoryStorage()
	coll, err := New(store, c)
	if err != nil {
		t.Fatal(err)
	}

	keys := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	for _, key := range keys {
		if _, err := coll.UpdateData(key, []byte("v1-"+key), "100"); err != nil {
			t.Fatal(err)
		}
		if _, err := coll.UpdateData(key, []byte("v2-"+key), "200"); err != nil {
			t.Fatal(err)
		}
	}

	wrote, err := coll.SyncAndFlush()
	if err != nil {
		t.Fatal(err)
	}
	if wrote != len(keys) {
		t.Fatalf("SyncAndFlush wrote = %d, want %d", wrote, len(keys))
	}

	// A second sweep with nothing new to write should be a no-op.
	wrote, err = coll.SyncAndFlush()
	if err != nil {
		t.Fatal(err)
	}
	if wrote != 0 {
		t.Fatalf("SyncAndFlush (second sweep) wrote = %d, want 0", wrote)
	}

	reloaded, err := New(store, c, WithFullHistory())
	if err != nil {
		t.Fatal(err)
	}
	for _, key := range keys {
		e, err := reloaded.EntryByKey(key)
		if err != nil {
			t.Fatalf("EntryByKey(%s): %v", key, err)
		}
		got, err := e.ReadDataAt("200")
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != "v2-"+key {
			t.Fatalf("ReadDataAt(200) = %q, want %q", got, "v2-"+key)
		}
	}
}

func TestSummarizeToCompactsIntoOther(t *testing.T) {
	c := codec.New()
	srcStore := storage.NewInMemoryStorage()
	src, err := New(srcStore, c)
	if err != nil {
		t.Fatal(err)
	}

	key := "https://example.com/summarized"
	for i, version := range []string{"100", "200", "300"} {
		if _, err := src.UpdateData(key, []byte("payload-"+strconv.Itoa(i)), version); err != nil {
			t.Fatal(err)
		}
	}

	// SummarizeTo compacts what src has stored, so write it out first.
	if _, err := src.SyncAndFlush(); err != nil {
		t.Fatal(err)
	}

	dstStore := storage.NewInMemoryStorage()
	dst, err := New(dstStore, c)
	if err != nil {
		t.Fatal(err)
	}

	if err := src.SummarizeTo(dst); err != nil {
		t.Fatal(err)
	}

	e, err := dst.EntryByKey(key)
	if err != nil {
		t.Fatal(err)
	}
	if e.CurrentVersion() != "300" {
		t.Fatalf("CurrentVersion = %q, want 300", e.CurrentVersion())
	}
	got, err := e.ReadDataAt("300")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "payload-2" {
		t.Fatalf("ReadDataAt(300) = %q, want payload-2", got)
	}
}

func TestReadStreamingSkipsUnchangedByDefault(t *testing.T) {
	c := codec.New()
	store := storage.NewInMemoryStorage()
	coll, err := New(store, c)
	if err != nil {
		t.Fatal(err)
	}

	keyA := "https://example.com/a"
	keyB := "https://example.com/b"
	if _, err := coll.UpdateData(keyA, []byte("same"), "100"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.UpdateData(keyA, []byte("same"), "200"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.UpdateData(keyA, []byte("different"), "300"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.UpdateData(keyB, []byte("only"), "150"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.SyncAndFlush(); err != nil {
		t.Fatal(err)
	}

	var keys, versions []string
	for item, err := range ReadStreaming(store, c, nil, false) {
		if err != nil {
			t.Fatal(err)
		}
		keys = append(keys, item.Entry.Key())
		versions = append(versions, item.Incarnation.DataVersion())
	}
	if len(keys) != 3 {
		t.Fatalf("got %d items, want 3 (skip-unchanged should drop the repeated 'same' at 200): %v / %v", len(keys), keys, versions)
	}

	var allVersions []string
	for item, err := range ReadStreaming(store, c, nil, true) {
		if err != nil {
			t.Fatal(err)
		}
		allVersions = append(allVersions, item.Incarnation.DataVersion())
	}
	if len(allVersions) != 4 {
		t.Fatalf("include-unchanged got %d items, want 4: %v", len(allVersions), allVersions)
	}
}

func TestReadStreamingKeyFilter(t *testing.T) {
	c := codec.New()
	store := storage.NewInMemoryStorage()
	coll, err := New(store, c)
	if err != nil {
		t.Fatal(err)
	}

	keyA := "https://example.com/a"
	keyB := "https://example.com/b"
	if _, err := coll.UpdateData(keyA, []byte("a"), "100"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.UpdateData(keyB, []byte("b"), "100"); err != nil {
		t.Fatal(err)
	}
	if _, err := coll.SyncAndFlush(); err != nil {
		t.Fatal(err)
	}

	var seen []string
	for item, err := range ReadStreaming(store, c, []string{keyA}, true) {
		if err != nil {
			t.Fatal(err)
		}
		seen = append(seen, item.Entry.Key())
	}
	if len(seen) != 1 || seen[0] != keyA {
		t.Fatalf("ReadStreaming with keyFilter = %v, want only %q", seen, keyA)
	}
}
