package codec

import (
	"strings"
	"testing"
)

func TestHashBytesEmpty(t *testing.T) {
	h := HashBytes(nil)
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if h.Digest != want {
		t.Fatalf("hash of empty bytes = %q, want %q", h.Digest, want)
	}
	if h.Method != hashMethod {
		t.Fatalf("method = %q, want %q", h.Method, hashMethod)
	}
}

func TestKeyHashCached(t *testing.T) {
	c := New()
	a := c.KeyHash("https://example.com/foo")
	b := c.KeyHash("https://example.com/foo")
	if a != b {
		t.Fatalf("KeyHash not stable across calls: %q != %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("KeyHash length = %d, want 64", len(a))
	}
}

func TestVersionShard(t *testing.T) {
	c := New()
	got, err := c.VersionShard("123456789123456789")
	if err != nil {
		t.Fatal(err)
	}
	want := "123450000000000000"
	if got != want {
		t.Fatalf("VersionShard = %q, want %q", got, want)
	}
}

func TestVersionShardShortInput(t *testing.T) {
	c := New()
	got, err := c.VersionShard("12")
	if err != nil {
		t.Fatal(err)
	}
	if got != "12" {
		t.Fatalf("VersionShard(%q) = %q, want unchanged", "12", got)
	}
}

func TestVersionShardRejectsNonDecimal(t *testing.T) {
	c := New()
	if _, err := c.VersionShard("12a45"); err == nil {
		t.Fatal("expected error for non-decimal version")
	}
}

func TestDiffPatchRoundtrip(t *testing.T) {
	a := []byte("mycontent")
	b := []byte("newcontent")
	patch, err := Diff(a, b)
	if err != nil {
		t.Fatal(err)
	}
	out, err := Patch(a, patch)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(b) {
		t.Fatalf("Patch(a, Diff(a,b)) = %q, want %q", out, b)
	}
}

func TestCompressDecompressRoundtrip(t *testing.T) {
	data := []byte(strings.Repeat("abcdefgh", 1000))
	compressed, err := Compress(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("compressed size %d not smaller than original %d", len(compressed), len(data))
	}
	out, err := Decompress(compressed)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(data) {
		t.Fatal("Decompress(Compress(data)) != data")
	}
}

func TestKeyPrefixRoundtripShortKey(t *testing.T) {
	c := New()
	key := "https://example.com/foo"
	encoded, n, err := c.EncodeKeyPrefix(key)
	if err != nil {
		t.Fatal(err)
	}
	if n != len([]rune(key)) {
		t.Fatalf("n = %d, want full key length %d", n, len([]rune(key)))
	}
	decoded, err := c.DecodeKeyPrefix(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != key {
		t.Fatalf("DecodeKeyPrefix(EncodeKeyPrefix(key)) = %q, want %q", decoded, key)
	}
}

func TestKeyPrefixRoundtripLongKey(t *testing.T) {
	c := New()
	for n := 1; n <= 400; n += 10 {
		key := "https://example.com/" + strings.Repeat("a", n)
		encoded, gotN, err := c.EncodeKeyPrefix(key)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(encoded) > EncodedKeyLengthLimit {
			t.Fatalf("n=%d: encoded length %d exceeds limit %d", n, len(encoded), EncodedKeyLengthLimit)
		}
		decoded, err := c.DecodeKeyPrefix(encoded)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		want := string([]rune(key)[:gotN])
		if decoded != want {
			t.Fatalf("n=%d: decoded prefix = %q, want %q", n, decoded, want)
		}
	}
}

func TestEncodeKeyPrefixMonotonic(t *testing.T) {
	c := New()
	// Pseudo-random letters barely compress, so 2001 of them cannot fit in
	// the 256-character encoded limit and a strict prefix must be chosen.
	var sb strings.Builder
	sb.WriteString("x")
	seed := uint32(1)
	for i := 0; i < 2000; i++ {
		seed = seed*1664525 + 1013904223
		sb.WriteByte(byte('a' + (seed>>24)%26))
	}
	key := sb.String()
	_, n, err := c.EncodeKeyPrefix(key)
	if err != nil {
		t.Fatal(err)
	}
	if n <= 0 || n >= len([]rune(key)) {
		t.Fatalf("expected a truncated prefix strictly within bounds, got n=%d", n)
	}
}
