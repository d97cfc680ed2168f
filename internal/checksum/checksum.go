// Package checksum fingerprints file content.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the number of hex characters kept by Short.
const ShortLen = 7

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Short returns the first ShortLen characters of Sum. It is meant for change
// detection only.
func Short(data []byte) string {
	return Sum(data)[:ShortLen]
}
