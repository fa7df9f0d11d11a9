// Package cache implements the TTL-bounded entry store (component A):
// a persistent string-to-bytes mapping with optional expiry, shared by the
// scheduler (LastTickAt), the dedupe layer (fingerprints), and the
// full-article content cache.
package cache

import (
	"context"
	"time"
)

// Store is the contract every backend (memory, postgres, filesystem)
// satisfies. Implementations must give read-your-writes within a process
// and treat a get past expires_at as a miss.
type Store interface {
	// Get returns the value for key and true, or (nil, false) on miss or expiry.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes key with an optional ttl. ttl <= 0 means "never expires".
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Has is a cheap existence check equivalent to Get without payload transfer.
	Has(ctx context.Context, key string) (bool, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Clear removes all keys, or all keys sharing prefix when prefix != "".
	Clear(ctx context.Context, prefix string) error
	// Close releases any resources held by the backend.
	Close() error
}

// FingerprintKey namespaces a post fingerprint under the dedupe prefix.
func FingerprintKey(fingerprint string) string { return "fp:" + fingerprint }

// ArticleKey namespaces a canonical article URL under the content cache prefix.
func ArticleKey(canonicalURL string) string { return "article:" + canonicalURL }

// TickKey namespaces a source's last-tick marker.
func TickKey(sourceName string) string { return "tick:" + sourceName }

// FeedDigestKey namespaces a per-source raw-feed content digest. No component
// in this module reads or writes feed digests under this key.
func FeedDigestKey(sourceName string) string { return "feed:" + sourceName }
