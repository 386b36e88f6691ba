// Package contenthash fingerprints resource content for change detection.
//
// Digests are the first 16 hex characters of a sha256 over the raw bytes.
// They identify drift between declared and remote content; they are not a
// security boundary.
package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// Length is the number of hex characters kept from the full digest.
const Length = 16

// Of returns the fingerprint of content.
func Of(content string) string {
	return OfBytes([]byte(content))
}

// OfBytes returns the fingerprint of raw content.
func OfBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])[:Length]
}

// File reads path and returns the fingerprint of its contents.
func File(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return OfBytes(data), nil
}

// Valid reports whether s has the shape of a fingerprint produced by Of.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
