package cache

import (
	"fmt"
	"sort"
	"strings"
)

// CacheKey represents a unique identifier for a cached upstream response.
type CacheKey struct {
	// Operation is the upstream operation name (e.g. "ProductQuery")
	Operation string

	// ChannelID is the channel the response was fetched for
	ChannelID string

	// Params are the request parameters that change the response (e.g. {"entityId": "77"})
	Params map[string]string

	// Customer is a customer digest for per-customer entries (empty for shared entries)
	Customer string
}

// String generates a deterministic cache key string.
// Format: storefront:channel:operation:param1=val1:param2=val2:cust=digest
//
// Example:
//
//	storefront:1705754:ProductQuery:entityId=77
func (k CacheKey) String() string {
	parts := []string{"storefront"}

	if k.ChannelID != "" {
		parts = append(parts, k.ChannelID)
	}

	if op := strings.TrimSpace(k.Operation); op != "" {
		parts = append(parts, op)
	}

	// Params sorted for determinism
	if len(k.Params) > 0 {
		keys := make([]string, 0, len(k.Params))
		for key := range k.Params {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", key, k.Params[key]))
		}
	}

	if k.Customer != "" {
		parts = append(parts, "cust="+k.Customer)
	}

	return strings.Join(parts, ":")
}
