package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// DefaultRevalidate is the revalidation interval used when none is configured.
const DefaultRevalidate = 3600 * time.Second

// Kind identifies a policy variant.
type Kind int

const (
	// KindAnonymous is data that is the same for every shopper.
	KindAnonymous Kind = iota

	// KindDoNotCache is data that must never be written to a shared cache.
	KindDoNotCache

	// KindShopperConditional is unresolved: it becomes DoNotCache or Anonymous per request.
	KindShopperConditional
)

func (k Kind) String() string {
	switch k {
	case KindAnonymous:
		return "anonymous"
	case KindDoNotCache:
		return "do_not_cache"
	case KindShopperConditional:
		return "shopper_conditional"
	default:
		return "unknown"
	}
}

// Mode is the edge caching mode a policy maps to.
type Mode string

const (
	ModePublic  Mode = "public"
	ModePrivate Mode = "private"
)

// Policy is a cache policy variant plus the tags the response carries.
type Policy struct {
	Kind Kind

	// Tags label the response for invalidation.
	Tags []string

	// Revalidate is how long an Anonymous response may be served before refetching.
	Revalidate time.Duration

	// CacheForCustomer lets a shopper-conditional policy cache an identified shopper's
	// response under a per-customer key instead of bypassing the cache.
	CacheForCustomer bool

	// VaryBy is a digest of the customer token for per-customer entries.
	// Set only by Resolve; an Anonymous policy with VaryBy is private at the edge.
	VaryBy string
}

// Mode returns the edge mode of a resolved policy.
// Unresolved shopper-conditional policies report private.
func (p Policy) Mode() Mode {
	if p.Kind == KindAnonymous && p.VaryBy == "" {
		return ModePublic
	}
	return ModePrivate
}

// Cacheable reports whether the response may be written to the shared cache.
func (p Policy) Cacheable() bool {
	return p.Kind == KindAnonymous
}

// Resolve turns a shopper-conditional policy into a concrete one for this request.
// Other kinds are returned unchanged. Call it on every request; the result depends only on
// customerToken.
func (p Policy) Resolve(customerToken string) Policy {
	if p.Kind != KindShopperConditional {
		return p
	}

	if customerToken == "" {
		return Policy{
			Kind:       KindAnonymous,
			Tags:       p.Tags,
			Revalidate: p.Revalidate,
		}
	}

	if p.CacheForCustomer {
		return Policy{
			Kind:       KindAnonymous,
			Tags:       p.Tags,
			Revalidate: p.Revalidate,
			VaryBy:     customerDigest(customerToken),
		}
	}

	return Policy{
		Kind: KindDoNotCache,
		Tags: p.Tags,
	}
}

func customerDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}

// Selector builds policies with a configured revalidation interval.
type Selector struct {
	revalidate time.Duration
}

// NewSelector creates a selector. A non-positive interval uses DefaultRevalidate.
func NewSelector(revalidate time.Duration) *Selector {
	if revalidate <= 0 {
		revalidate = DefaultRevalidate
	}
	return &Selector{revalidate: revalidate}
}

// Revalidate returns the configured interval.
func (s *Selector) Revalidate() time.Duration {
	return s.revalidate
}

// Anonymous returns a public policy for data shared by all shoppers.
func (s *Selector) Anonymous(tags []string) Policy {
	return Policy{
		Kind:       KindAnonymous,
		Tags:       cloneTags(tags),
		Revalidate: s.revalidate,
	}
}

// DoNotCache returns a private policy that forbids shared caching.
func (s *Selector) DoNotCache(tags []string) Policy {
	return Policy{
		Kind: KindDoNotCache,
		Tags: cloneTags(tags),
	}
}

// ShopperConditional returns an unresolved policy. Resolve it per request.
func (s *Selector) ShopperConditional(tags []string, cacheForCustomer bool) Policy {
	return Policy{
		Kind:             KindShopperConditional,
		Tags:             cloneTags(tags),
		Revalidate:       s.revalidate,
		CacheForCustomer: cacheForCustomer,
	}
}

// Shopper resolves immediately: DoNotCache if customerToken is non-empty, Anonymous otherwise.
func (s *Selector) Shopper(customerToken string, tags []string) Policy {
	return s.ShopperConditional(tags, false).Resolve(customerToken)
}

func cloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}
