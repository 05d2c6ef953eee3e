package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

const keyEncodingMethod = "unpad . base64.urlsafe_b64encode . zlib.compress"

// EncodedKeyLengthLimit bounds the encoded form embedded in a filename (spec
// §4.1/§4.2: total filename length must stay under 768, and the encoded key
// prefix itself must fit in 256).
const EncodedKeyLengthLimit = 256

// EncodeKeyPrefix returns (encoded, n) where encoded is the deflate+base64url
// encoding of the first n runes of key, chosen so that len(encoded) <= 256.
// If the whole key fits, n == len([]rune(key)); otherwise the largest fitting
// n is found by binary search over rune count. Results are LRU-cached.
func (c *Cache) EncodeKeyPrefix(key string) (string, int, error) {
	if v, ok := c.prefixEncode.Get(key); ok {
		return v.encoded, v.n, nil
	}
	encoded, n, err := encodeKeyPrefix(key)
	if err != nil {
		return "", 0, err
	}
	c.prefixEncode.Add(key, prefixResult{encoded: encoded, n: n})
	return encoded, n, nil
}

// DecodeKeyPrefix reverses the encoding side of EncodeKeyPrefix, recovering
// the exact rune prefix that was encoded. Results are LRU-cached.
func (c *Cache) DecodeKeyPrefix(encoded string) (string, error) {
	if v, ok := c.prefixDecode.Get(encoded); ok {
		return v, nil
	}
	decoded, err := decodeKeyPrefix(encoded)
	if err != nil {
		return "", err
	}
	c.prefixDecode.Add(encoded, decoded)
	return decoded, nil
}

func encodeRunes(runes []rune) (string, error) {
	msg := []byte(string(runes))
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(msg); err != nil {
		return "", fmt.Errorf("codec: key-prefix compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("codec: key-prefix compress: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

func encodeKeyPrefix(key string) (string, int, error) {
	runes := []rune(key)
	simple, err := encodeRunes(runes)
	if err != nil {
		return "", 0, err
	}
	if len(simple) <= EncodedKeyLengthLimit {
		return simple, len(runes), nil
	}
	low := 0
	encoded, err := encodeRunes(runes[:low])
	if err != nil {
		return "", 0, err
	}
	high := len(runes)
	candidate := encoded
	mid := low
	for high > low {
		mid = (high + low) / 2
		if mid == low {
			break
		}
		enc, err := encodeRunes(runes[:mid])
		if err != nil {
			return "", 0, err
		}
		if len(enc) <= EncodedKeyLengthLimit {
			candidate = enc
			low = mid
		} else {
			high = mid
		}
	}
	return candidate, low, nil
}

func decodeKeyPrefix(encoded string) (string, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("codec: key-prefix base64 decode: %w", err)
	}
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return "", fmt.Errorf("codec: key-prefix decompress: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("codec: key-prefix decompress: %w", err)
	}
	return string(data), nil
}
