package cache

import (
	"time"
)

// CacheEntry represents a cached upstream response.
type CacheEntry struct {
	// Data is the response payload
	Data []byte `json:"data"`

	// Tags label the entry for invalidation
	Tags []string `json:"tags"`

	// Expires is when the entry must be revalidated
	Expires time.Time `json:"expires"`

	// CachedAt is when we cached this response
	CachedAt time.Time `json:"cached_at"`
}

// NewEntry builds an entry that expires after the policy's revalidate interval.
func NewEntry(data []byte, policy Policy) *CacheEntry {
	now := time.Now()
	revalidate := policy.Revalidate
	if revalidate <= 0 {
		revalidate = DefaultRevalidate
	}
	return &CacheEntry{
		Data:     data,
		Tags:     cloneTags(policy.Tags),
		Expires:  now.Add(revalidate),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *CacheEntry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *CacheEntry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
