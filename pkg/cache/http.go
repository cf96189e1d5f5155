package cache

import (
	"fmt"
	"net/http"
	"strings"
)

// Header names of the edge tagging contract.
const (
	HeaderCacheControl = "Cache-Control"
	HeaderCacheTag     = "Cache-Tag"
)

// CacheControl renders the Cache-Control value for a resolved policy.
// Public responses may be stored by shared caches for the revalidate interval and served
// stale for one more interval while the edge refetches.
func CacheControl(p Policy) string {
	if p.Mode() == ModePublic {
		seconds := int(p.Revalidate.Seconds())
		if seconds <= 0 {
			seconds = int(DefaultRevalidate.Seconds())
		}
		return fmt.Sprintf("public, s-maxage=%d, stale-while-revalidate=%d", seconds, seconds)
	}
	return "private, no-store"
}

// WriteHeaders applies the policy's caching headers to h.
// An unresolved shopper-conditional policy is written as private.
func WriteHeaders(h http.Header, p Policy) {
	h.Set(HeaderCacheControl, CacheControl(p))
	if len(p.Tags) > 0 {
		h.Set(HeaderCacheTag, strings.Join(p.Tags, ","))
	} else {
		h.Del(HeaderCacheTag)
	}
}

// ParseCacheTags splits a Cache-Tag header value.
func ParseCacheTags(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
