package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Cache stores catalog answers so sibling barcodes of an already-seen item
// do not hit the network again.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration) error
	Delete(key string) error
	Clear() error
}

// Key builds a cache key from a kind ("record", "holdings") and its
// identifying parts.
func Key(parts ...string) string {
	hash := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return "checkit:v1:" + hex.EncodeToString(hash[:])
}
