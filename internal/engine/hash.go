// Package engine implements the Akashica repository engine: the
// content-addressed object and manifest layer, commits, branches,
// workspaces, sessions, and the repository orchestrator. It is a pure
// library — every I/O operation goes through a storage.Adapter (§4.1), and
// the package itself holds no global state.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// Hash is a lowercase, 64-character hex-encoded SHA-256 digest, the
// identity of a content object or directory manifest.
type Hash string

// NewHash validates s as a 64-character lowercase hex string and returns
// it as a Hash.
func NewHash(s string) (Hash, error) {
	if len(s) != 64 {
		return "", fmt.Errorf("invalid hash length: %d", len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", fmt.Errorf("invalid hash: %w", err)
	}
	if strings.ToLower(s) != s {
		return "", fmt.Errorf("invalid hash: not lowercase")
	}
	return Hash(s), nil
}

// HashBytes returns the SHA-256 digest of data as a Hash. Hashing is
// idempotent: two calls on identical bytes produce the same Hash, which is
// what makes object writes safe to repeat (§4.2).
func HashBytes(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// Short returns the first 8 characters of the hash, or the full hash if
// shorter — useful for log lines and CLI summaries.
func (h Hash) Short() string {
	if len(h) < 8 {
		return string(h)
	}
	return string(h)[:8]
}

// String implements fmt.Stringer.
func (h Hash) String() string { return string(h) }
