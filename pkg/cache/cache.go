// Package cache provides byte caching for registry index responses.
//
// Two backends are available: a file-based cache for normal CLI usage and a
// null cache for tests or --refresh runs. Keys are hashed with SHA-256 before
// hitting the filesystem, so arbitrary key strings (crate names, URLs) are
// safe.
//
// Cache operations are not goroutine-safe; crateherd runs strictly
// sequentially, so no synchronization is needed.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is a byte store with per-entry TTL.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key was
	// present and unexpired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value. A ttl of 0 means the entry never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any held resources.
	Close() error
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
