// Package cache provides channel-scoped cache tagging, cache policy selection and a
// Redis-backed shared response cache with tag invalidation.
//
// # Tags
//
// Every cached response is labelled with a hierarchical tag set so a single catalog change
// can invalidate everything that depends on it:
//
//	deriver := cache.NewDeriver("abc123", "1")
//	tags := deriver.Tags(cache.TagInput{
//		ChannelID:  "1705754",
//		EntityType: cache.EntityProduct,
//		EntityID:   "77",
//	})
//	// store/abc123
//	// store/abc123/channel/1705754
//	// store/abc123/product
//	// store/abc123/channel/1705754/product
//	// store/abc123/product:77
//	// store/abc123/channel/1705754/product:77
//
// Tag derivation is pure: the same input always yields the same sequence in the same order.
//
// # Policies
//
// A Policy decides whether a response may live in the shared cache:
//
//   - Anonymous: public, shared, revalidated every Revalidate interval
//   - DoNotCache: private, never written to the shared cache
//   - ShopperConditional: resolved per request; DoNotCache when a customer access token is
//     present, Anonymous otherwise
//
// Resolution is a pure function of the token passed in. Never store a resolved policy on a
// session or reuse it for another request.
//
//	selector := cache.NewSelector(time.Hour)
//	policy := selector.Shopper(customerToken, tags)
//	cache.WriteHeaders(w.Header(), policy)
//
// # Shared cache
//
// Manager stores entries in Redis and indexes each entry key under every tag it carries.
// InvalidateTags removes all entries indexed under any of the given tags; RevalidatePath does
// the same for the path tags produced by PathTags.
//
// # Metrics
//
//   - storefront_cache_hits_total{layer="redis"} - Cache hits
//   - storefront_cache_misses_total - Cache misses
//   - storefront_cache_errors_total{operation} - Cache operation errors
//   - storefront_cache_invalidations_total - Tags invalidated
//   - storefront_cache_invalidated_entries_total - Entries removed by invalidation
package cache
