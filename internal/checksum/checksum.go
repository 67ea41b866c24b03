// Package checksum computes content digests used for change detection and
// relay event ids.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Parts returns the hex-encoded SHA-256 digest of parts, each terminated by
// a zero byte so that ("ab", "c") and ("a", "bc") differ.
func Parts(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
