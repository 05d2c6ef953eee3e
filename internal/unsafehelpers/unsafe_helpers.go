// Package unsafehelpers centralises the unavoidable usage of the `unsafe`
// standard-library package so the rest of datawatch stays clean and easier to
// audit. Every helper is documented with clear pre-/post-conditions.
//
// ⚠️  DISCLAIMER  These helpers deliberately bypass normal Go memory-safety
// guarantees for the sake of zero-allocation conversions. Use ONLY inside
// this repository; they are not part of the public API and may change
// without notice. Misuse leads to subtle data races or corrupted strings.
//
// © 2025 arena-cache authors. MIT License.
package unsafehelpers

import "unsafe"

/* -------------------------------------------------------------------------
   Zero-copy string/[]byte conversions
   ------------------------------------------------------------------------- */

// BytesToString converts a byte slice to a string without allocating. The
// caller must guarantee that b is never modified for the lifetime of the
// returned string; otherwise the program exhibits undefined behaviour.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// StringToBytes re-interprets string data as a byte slice without copying.
// The returned slice MUST be treated as read-only: writing to it corrupts
// the (supposedly immutable) string backing it.
//
// Used on the key-hashing hot path in internal/codec, which hashes each key
// string without first copying it into a new byte slice.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
