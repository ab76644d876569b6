// Package integrity computes and verifies the content digests that bind a
// report row to the bytes stored on disk. Verification always hashes the
// file at rest, so out-of-band modification of a stored artifact is
// detectable the next time anyone opens or verifies it.
package integrity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// DigestHexLen is the length of a hex-encoded SHA-256 digest.
const DigestHexLen = 64

// Hash returns the SHA-256 digest of data as a lowercase hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashFile returns the SHA-256 digest of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("integrity: open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("integrity: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal compares two hex digests in constant time.
func Equal(aHex, bHex string) bool {
	a := strings.ToLower(aHex)
	b := strings.ToLower(bHex)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Verify recomputes the digest of the file at path and compares it to
// expectedHex in constant time.
func Verify(path, expectedHex string) (bool, error) {
	actual, err := HashFile(path)
	if err != nil {
		return false, err
	}
	return Equal(actual, expectedHex), nil
}

// ValidDigest reports whether s looks like a hex SHA-256 digest.
func ValidDigest(s string) bool {
	if len(s) != DigestHexLen {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
